package validators

import "go.mongodb.org/mongo-driver/bson"

var PropertyValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"host_id",
			"title",
			"is_approved",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"host_id": objectIDString,

			"title": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 200,
			},

			"city": bson.M{
				"bsonType": "string",
			},

			"price_per_night": bson.M{
				"bsonType": []string{"double", "int", "long", "decimal"},
				"minimum":  0,
			},

			"room_details": bson.M{
				"bsonType": "array",
				"items": bson.M{
					"bsonType": "object",
					"required": []string{"room_type"},
					"properties": bson.M{
						"room_type": bson.M{"bsonType": "string"},
						"total_rooms": bson.M{
							"bsonType": []string{"int", "long"},
							"minimum":  0,
						},
						"available_rooms": bson.M{
							"bsonType": []string{"int", "long"},
							"minimum":  0,
						},
						"capacity": bson.M{
							"bsonType": []string{"int", "long"},
							"minimum":  0,
						},
					},
				},
			},

			"is_approved": bson.M{
				"bsonType": "bool",
			},
		},
	},
}

var UserValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"email",
			"user_type",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"name": bson.M{
				"bsonType": "string",
			},

			"email": bson.M{
				"bsonType":  "string",
				"minLength": 3,
			},

			"user_type": bson.M{
				"bsonType": "string",
				"enum": []string{
					"customer",
					"host",
					"admin",
				},
			},
		},
	},
}
