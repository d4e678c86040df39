package validators

import "go.mongodb.org/mongo-driver/bson"

var BookingLockValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"_id", "token", "expires_at"},
		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "string",
			},
			"token": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},
			"expires_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}

var BookingGuardValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"_id", "seq", "fenced_at"},
		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "string",
			},
			"seq": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  0,
			},
			"fenced_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}

var OutboxValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"_id",
			"event_type",
			"aggregate_id",
			"payload",
			"status",
			"attempts",
			"next_attempt_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "string",
			},
			"event_type": bson.M{
				"bsonType": "string",
			},
			"aggregate_id": objectIDString,
			"payload": bson.M{
				"bsonType": "binData",
			},
			"status": bson.M{
				"bsonType": "string",
				"enum": []string{
					"pending",
					"published",
					"dead",
				},
			},
			"attempts": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  0,
			},
			"next_attempt_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
