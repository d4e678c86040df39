//go:build integration

package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"

	"staybook/pkg/client"
)

type TestEnv struct {
	MongoURI     string
	DatabaseName string
	ServerURL    string
	ServerPort   string
	JWTSecret    string
}

func NewTestEnv() *TestEnv {
	mongoURI := getEnv("TEST_MONGO_URI", DefaultMongoURI)
	dbName := getEnv("TEST_DB_NAME", DefaultDatabaseName)
	serverPort := getEnv("TEST_SERVER_PORT", "8080")
	serverURL := getEnv("TEST_SERVER_URL", fmt.Sprintf("http://localhost:%s", serverPort))

	return &TestEnv{
		MongoURI:     mongoURI,
		DatabaseName: dbName,
		ServerURL:    serverURL,
		ServerPort:   serverPort,
		JWTSecret:    getEnv("TEST_JWT_SECRET", getEnv("JWT_SECRET", "")),
	}
}

// Setup cleans the database, seeds the marketplace parties and waits for the
// bookings service to become healthy.
func (e *TestEnv) Setup(t *testing.T) (*MongoHelper, *Fixture) {
	t.Helper()

	if e.JWTSecret == "" {
		t.Skip("TEST_JWT_SECRET not set")
	}

	mongo := NewMongoHelper(t, e.MongoURI, e.DatabaseName)
	mongo.CleanDatabase(t)

	base := client.NewBookingClient(e.ServerURL, "")
	ctx, cancel := context.WithTimeout(context.Background(), DefaultHealthCheckTimeout)
	defer cancel()
	if err := base.WaitForHealthy(ctx); err != nil {
		t.Fatalf("service not healthy: %v", err)
	}

	return mongo, NewFixture(t, mongo, base, e.JWTSecret)
}

func (e *TestEnv) Cleanup(t *testing.T, mongo *MongoHelper) {
	t.Helper()

	if mongo != nil {
		mongo.CleanDatabase(t)
		mongo.Close(t)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

const (
	DefaultHealthCheckTimeout = 3 * ConnectionTimeout
)
