//go:build integration

package testutil

import (
	"fmt"
	"testing"
	"time"

	migrations "staybook/internal/migrations/mongo"
	"staybook/pkg/auth"
	"staybook/pkg/client"
	"staybook/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
)

const tokenTTL = time.Hour

// Fixture holds seeded parties and a client authenticated as each of them.
type Fixture struct {
	PropertyID string
	HostID     string
	CustomerID string
	Customer2  string
	AdminID    string

	Host            *client.BookingClient
	Customer        *client.BookingClient
	Customer2Client *client.BookingClient
	Admin           *client.BookingClient
	Anonymous       *client.BookingClient
}

func NewFixture(t *testing.T, m *MongoHelper, base *client.BookingClient, secret string) *Fixture {
	t.Helper()

	now := time.Now().UTC()
	user := func(name string, userType model.UserType) string {
		return m.Insert(t, migrations.UsersCollection, bson.M{
			"name":       name,
			"email":      fmt.Sprintf("%s-%d@example.com", name, now.UnixNano()),
			"user_type":  string(userType),
			"created_at": now,
		})
	}

	f := &Fixture{
		HostID:     user("host", model.UserTypeHost),
		CustomerID: user("customer", model.UserTypeCustomer),
		Customer2:  user("customer2", model.UserTypeCustomer),
		AdminID:    user("admin", model.UserTypeAdmin),
	}
	f.PropertyID = m.Insert(t, migrations.PropertiesCollection, bson.M{
		"host_id":         f.HostID,
		"title":           "Sea View Loft",
		"city":            "Lisbon",
		"price_per_night": 120.0,
		"room_details": bson.A{
			bson.M{"room_type": "double", "total_rooms": 2, "available_rooms": 2, "price_per_night": 120.0, "capacity": 2},
		},
		"is_approved": false,
		"created_at":  now,
		"updated_at":  now,
	})

	verifier := auth.NewTokenVerifier(secret)
	token := func(id string, userType model.UserType) string {
		tok, err := verifier.Issue(&auth.Identity{ID: id, Email: id + "@example.com", UserType: userType}, tokenTTL)
		if err != nil {
			t.Fatalf("failed to issue token: %v", err)
		}
		return tok
	}

	f.Host = base.WithToken(token(f.HostID, model.UserTypeHost))
	f.Customer = base.WithToken(token(f.CustomerID, model.UserTypeCustomer))
	f.Customer2Client = base.WithToken(token(f.Customer2, model.UserTypeCustomer))
	f.Admin = base.WithToken(token(f.AdminID, model.UserTypeAdmin))
	f.Anonymous = base
	return f
}

// BookingRequest builds a valid request for the seeded property.
func (f *Fixture) BookingRequest(customerID, checkIn, checkOut string, total float64) *model.BookingRequest {
	guests := 2
	return &model.BookingRequest{
		PropertyID:     f.PropertyID,
		OwnerID:        f.HostID,
		CustomerID:     customerID,
		RoomType:       "double",
		NumberOfGuests: &guests,
		CheckIn:        checkIn,
		CheckOut:       checkOut,
		TotalAmount:    &total,
	}
}
