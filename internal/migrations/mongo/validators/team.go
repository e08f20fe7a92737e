package validators

import "go.mongodb.org/mongo-driver/bson"

var ProviderTeamValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"name",
			"owner_id",
			"members",
			"preferred_size",
			"service_categories",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "string",
			},

			"name": bson.M{
				"bsonType":  "string",
				"minLength": 2,
				"maxLength": 100,
			},

			"owner_id": bson.M{
				"bsonType": "string",
			},

			"members": bson.M{
				"bsonType": "array",
				"minItems": 1,
				"items": bson.M{
					"bsonType": "object",
					"required": []string{"provider_id"},
					"properties": bson.M{
						"provider_id": bson.M{"bsonType": "string"},
						"role":        bson.M{"bsonType": "string"},
						"lead":        bson.M{"bsonType": "bool"},
					},
				},
			},

			"preferred_size": bson.M{
				"bsonType": "int",
				"minimum":  1,
				"maximum":  50,
			},

			"default_daily_capacity": bson.M{
				"bsonType": "int",
				"minimum":  0,
			},

			"service_categories": bson.M{
				"bsonType": "array",
				"minItems": 1,
				"items":    bson.M{"bsonType": "string"},
			},

			"fallback_queue": bson.M{
				"bsonType": "array",
				"items": bson.M{
					"bsonType": "object",
					"required": []string{"booking_id"},
					"properties": bson.M{
						"booking_id":  bson.M{"bsonType": "string"},
						"enqueued_at": bson.M{"bsonType": "date"},
					},
				},
			},
		},
	},
}

var TeamPlanSlotValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType":             "object",
		"required":             []string{"team_id", "day", "capacity_slots", "capacity_booked"},
		"additionalProperties": true,

		"properties": bson.M{
			"_id":     bson.M{"bsonType": "string"},
			"team_id": bson.M{"bsonType": "string"},
			"day": bson.M{
				"bsonType": "string",
				"pattern":  `^\d{4}-\d{2}-\d{2}$`,
			},
			"capacity_slots": bson.M{
				"bsonType": "int",
				"minimum":  0,
			},
			"capacity_booked": bson.M{
				"bsonType": "int",
				"minimum":  0,
			},
		},
	},
}
