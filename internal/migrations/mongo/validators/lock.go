package validators

import "go.mongodb.org/mongo-driver/bson"

var LockValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"booking_id",
			"target",
			"status",
			"window",
			"expires_at",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "string",
			},

			"booking_id": bson.M{
				"bsonType": "string",
			},

			"target": bson.M{
				"bsonType": "object",
				"required": []string{"kind", "id"},
				"properties": bson.M{
					"kind": bson.M{"enum": []string{"provider", "team"}},
					"id":   bson.M{"bsonType": "string"},
				},
			},

			"status": bson.M{
				"enum": []string{"HELD", "CONFIRMED", "RELEASED"},
			},

			"window": bson.M{
				"bsonType": "object",
				"required": []string{"start", "end"},
				"properties": bson.M{
					"start": bson.M{"bsonType": "date"},
					"end":   bson.M{"bsonType": "date"},
				},
			},

			"expires_at": bson.M{
				"bsonType": "date",
			},

			"released_at": bson.M{
				"bsonType": []string{"date", "null"},
			},

			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}

var TargetGuardValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType":             "object",
		"required":             []string{"expires_at", "created_at"},
		"additionalProperties": true,

		"properties": bson.M{
			"_id":        bson.M{"bsonType": "string"},
			"expires_at": bson.M{"bsonType": "date"},
			"created_at": bson.M{"bsonType": "date"},
		},
	},
}
