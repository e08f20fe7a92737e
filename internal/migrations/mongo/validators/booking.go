package validators

import "go.mongodb.org/mongo-driver/bson"

var BookingValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"client_id",
			"address",
			"service_category",
			"window",
			"required_providers",
			"mode",
			"status",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "string",
			},

			"client_id": bson.M{
				"bsonType": "string",
			},

			"address": bson.M{
				"bsonType":  "string",
				"minLength": 5,
				"maxLength": 300,
			},

			"service_category": bson.M{
				"bsonType":  "string",
				"minLength": 2,
				"maxLength": 100,
			},

			"window": bson.M{
				"bsonType": "object",
				"required": []string{"start", "end"},
				"properties": bson.M{
					"start": bson.M{"bsonType": "date"},
					"end":   bson.M{"bsonType": "date"},
				},
			},

			"required_providers": bson.M{
				"bsonType": "int",
				"minimum":  1,
				"maximum":  20,
			},

			"mode": bson.M{
				"enum": []string{"manual", "smart_match"},
			},

			"status": bson.M{
				"enum": []string{
					"draft",
					"pending_provider",
					"pending_client",
					"confirmed",
					"in_progress",
					"completed",
					"cancelled",
					"disputed",
				},
			},

			"matching_retry_count": bson.M{
				"bsonType": "int",
				"minimum":  0,
			},

			"fallback_requested_at": bson.M{
				"bsonType": []string{"date", "null"},
			},

			"fallback_escalated_at": bson.M{
				"bsonType": []string{"date", "null"},
			},

			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
