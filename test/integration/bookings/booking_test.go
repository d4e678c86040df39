//go:build integration

package bookings

import (
	"context"
	"net/http"
	"sync"
	"testing"

	migrations "staybook/internal/migrations/mongo"
	"staybook/pkg/client"
	apperrors "staybook/pkg/errors"
	"staybook/pkg/model"
	"staybook/test/integration/testutil"

	"go.mongodb.org/mongo-driver/bson"
)

func setup(t *testing.T) (*testutil.MongoHelper, *testutil.Fixture) {
	t.Helper()
	env := testutil.NewTestEnv()
	mongo, fixture := env.Setup(t)
	t.Cleanup(func() { env.Cleanup(t, mongo) })
	return mongo, fixture
}

func mustStatus(t *testing.T, resp *client.Response, err error, want int) *client.Response {
	t.Helper()
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != want {
		t.Fatalf("expected status %d, got %s", want, resp.ToString())
	}
	return resp
}

func createBooking(t *testing.T, f *testutil.Fixture, c *client.BookingClient, customerID, checkIn, checkOut string) *model.Booking {
	t.Helper()
	return createBookingWithTotal(t, f, c, customerID, checkIn, checkOut, 400)
}

func createBookingWithTotal(t *testing.T, f *testutil.Fixture, c *client.BookingClient, customerID, checkIn, checkOut string, total float64) *model.Booking {
	t.Helper()
	resp, err := c.Create(context.Background(), f.BookingRequest(customerID, checkIn, checkOut, total))
	mustStatus(t, resp, err, http.StatusCreated)
	booking, err := c.DecodeBooking(resp)
	if err != nil {
		t.Fatal(err)
	}
	return booking
}

func TestCreateAndGet(t *testing.T) {
	mongo, f := setup(t)
	ctx := context.Background()

	created := createBooking(t, f, f.Customer, f.CustomerID, "2030-01-01", "2030-01-05")
	if created.Status != model.BookingStatusPending || created.IsApproved() || created.IsCancelled() {
		t.Errorf("unexpected new booking state: %+v", created)
	}

	resp, err := f.Host.GetByID(ctx, created.ID)
	mustStatus(t, resp, err, http.StatusOK)
	got, err := f.Host.DecodeBooking(resp)
	if err != nil {
		t.Fatal(err)
	}
	if got.Property == nil || got.Property.Title != "Sea View Loft" || got.Customer == nil {
		t.Errorf("summaries not attached: %+v", got)
	}

	if n := mongo.CountDocuments(t, migrations.OutboxCollection, bson.M{"aggregate_id": created.ID, "event_type": string(model.BookingEventCreated)}); n != 1 {
		t.Errorf("expected one booking.created outbox event, got %d", n)
	}

	resp, err = f.Customer2Client.GetByID(ctx, created.ID)
	mustStatus(t, resp, err, http.StatusForbidden)
}

func TestCreate_Overlap(t *testing.T) {
	mongo, f := setup(t)
	ctx := context.Background()

	existing := createBooking(t, f, f.Customer, f.CustomerID, "2030-02-10", "2030-02-15")

	tests := []struct {
		name     string
		checkIn  string
		checkOut string
		wantCode int
	}{
		{name: "identical stay", checkIn: "2030-02-10", checkOut: "2030-02-15", wantCode: http.StatusConflict},
		{name: "partial overlap", checkIn: "2030-02-14", checkOut: "2030-02-18", wantCode: http.StatusConflict},
		{name: "contained", checkIn: "2030-02-11", checkOut: "2030-02-12", wantCode: http.StatusConflict},
		{name: "check out on existing check in", checkIn: "2030-02-05", checkOut: "2030-02-10", wantCode: http.StatusCreated},
		{name: "check in on existing check out", checkIn: "2030-02-15", checkOut: "2030-02-17", wantCode: http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := f.Customer.Create(ctx, f.BookingRequest(f.CustomerID, tt.checkIn, tt.checkOut, 100))
			mustStatus(t, resp, err, tt.wantCode)
			if tt.wantCode == http.StatusConflict && client.GetErrorCode(resp) != apperrors.CodeConflict {
				t.Errorf("expected conflict code, got %s", resp.ToString())
			}
		})
	}

	// Another customer may book the same dates.
	createBooking(t, f, f.Customer2Client, f.Customer2, "2030-02-10", "2030-02-15")

	// Cancelling frees the dates for the original customer.
	resp, err := f.Customer.Cancel(ctx, existing.ID)
	mustStatus(t, resp, err, http.StatusOK)
	createBooking(t, f, f.Customer, f.CustomerID, "2030-02-10", "2030-02-15")

	active := bson.M{"customer_id": f.CustomerID, "status": bson.M{"$in": bson.A{"pending", "confirmed"}}}
	if n := mongo.CountDocuments(t, migrations.BookingsCollection, active); n != 3 {
		t.Errorf("expected 3 active bookings, got %d", n)
	}
}

func TestCreate_ConcurrentRequests(t *testing.T) {
	mongo, f := setup(t)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	codes := make(chan int, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := f.Customer.Create(ctx, f.BookingRequest(f.CustomerID, "2030-03-01", "2030-03-04", 300))
			if err != nil {
				t.Errorf("request failed: %v", err)
				return
			}
			codes <- resp.StatusCode
		}()
	}
	wg.Wait()
	close(codes)

	created := 0
	for code := range codes {
		switch code {
		case http.StatusCreated:
			created++
		case http.StatusConflict:
		default:
			t.Errorf("unexpected status %d", code)
		}
	}
	if created != 1 {
		t.Errorf("expected exactly one booking created, got %d", created)
	}
	if n := mongo.CountDocuments(t, migrations.BookingsCollection, bson.M{"customer_id": f.CustomerID}); n != 1 {
		t.Errorf("expected one stored booking, got %d", n)
	}
}

func TestCreate_Rejected(t *testing.T) {
	_, f := setup(t)
	ctx := context.Background()

	resp, err := f.Anonymous.Create(ctx, f.BookingRequest(f.CustomerID, "2030-04-01", "2030-04-02", 100))
	mustStatus(t, resp, err, http.StatusUnauthorized)

	resp, err = f.Host.Create(ctx, f.BookingRequest(f.CustomerID, "2030-04-01", "2030-04-02", 100))
	mustStatus(t, resp, err, http.StatusForbidden)

	resp, err = f.Customer.Create(ctx, f.BookingRequest(f.CustomerID, "2030-04-02", "2030-04-01", 100))
	mustStatus(t, resp, err, http.StatusBadRequest)

	resp, err = f.Customer.CreateRaw(ctx, []byte(`{"property_id":"`+f.PropertyID+`","total_amount":`))
	mustStatus(t, resp, err, http.StatusBadRequest)

	req := f.BookingRequest(f.CustomerID, "2030-04-01", "2030-04-02", 100)
	req.TotalAmount = nil
	resp, err = f.Customer.Create(ctx, req)
	mustStatus(t, resp, err, http.StatusBadRequest)
}

func TestLifecycle(t *testing.T) {
	_, f := setup(t)
	ctx := context.Background()

	booking := createBooking(t, f, f.Customer, f.CustomerID, "2030-05-01", "2030-05-03")

	resp, err := f.Customer.Confirm(ctx, booking.ID)
	mustStatus(t, resp, err, http.StatusForbidden)

	resp, err = f.Host.Confirm(ctx, booking.ID)
	mustStatus(t, resp, err, http.StatusOK)
	confirmed, err := f.Host.DecodeBooking(resp)
	if err != nil {
		t.Fatal(err)
	}
	if !confirmed.IsApproved() {
		t.Errorf("expected approved booking, got %+v", confirmed)
	}

	resp, err = f.Customer.Cancel(ctx, booking.ID)
	mustStatus(t, resp, err, http.StatusConflict)
	if code := client.GetErrorCode(resp); code != apperrors.CodeInvalidTransition {
		t.Errorf("expected %s, got %s", apperrors.CodeInvalidTransition, code)
	}

	resp, err = f.Host.Complete(ctx, booking.ID)
	mustStatus(t, resp, err, http.StatusOK)

	resp, err = f.Host.Confirm(ctx, booking.ID)
	mustStatus(t, resp, err, http.StatusConflict)
}

func TestList_Scoping(t *testing.T) {
	_, f := setup(t)
	ctx := context.Background()

	createBooking(t, f, f.Customer, f.CustomerID, "2030-06-01", "2030-06-03")
	createBooking(t, f, f.Customer, f.CustomerID, "2030-06-10", "2030-06-12")
	createBooking(t, f, f.Customer2Client, f.Customer2, "2030-06-01", "2030-06-03")

	tests := []struct {
		name      string
		client    *client.BookingClient
		filter    model.BookingFilter
		wantTotal int64
	}{
		{name: "customer sees own", client: f.Customer, wantTotal: 2},
		{name: "customer cannot widen scope", client: f.Customer, filter: model.BookingFilter{CustomerID: f.Customer2}, wantTotal: 0},
		{name: "host sees property bookings", client: f.Host, wantTotal: 3},
		{name: "admin filters by customer", client: f.Admin, filter: model.BookingFilter{CustomerID: f.Customer2}, wantTotal: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := tt.client.GetAll(ctx, tt.filter, 10, 0)
			mustStatus(t, resp, err, http.StatusOK)
			_, meta, err := tt.client.DecodeBookings(resp)
			if err != nil {
				t.Fatal(err)
			}
			if meta.TotalCount != tt.wantTotal {
				t.Errorf("total = %d, want %d", meta.TotalCount, tt.wantTotal)
			}
		})
	}
}

func TestAdminProperties(t *testing.T) {
	_, f := setup(t)
	ctx := context.Background()

	confirmed := createBookingWithTotal(t, f, f.Customer, f.CustomerID, "2030-07-01", "2030-07-03", 1000)
	createBookingWithTotal(t, f, f.Customer, f.CustomerID, "2030-07-10", "2030-07-12", 500)
	cancelled := createBookingWithTotal(t, f, f.Customer, f.CustomerID, "2030-07-20", "2030-07-22", 2000)
	completed := createBookingWithTotal(t, f, f.Customer, f.CustomerID, "2030-06-01", "2030-06-03", 250)

	resp, err := f.Host.Confirm(ctx, confirmed.ID)
	mustStatus(t, resp, err, http.StatusOK)
	resp, err = f.Customer.Cancel(ctx, cancelled.ID)
	mustStatus(t, resp, err, http.StatusOK)
	resp, err = f.Host.Confirm(ctx, completed.ID)
	mustStatus(t, resp, err, http.StatusOK)
	resp, err = f.Host.Complete(ctx, completed.ID)
	mustStatus(t, resp, err, http.StatusOK)

	resp, err = f.Customer.ListProperties(ctx, 10, 0)
	mustStatus(t, resp, err, http.StatusForbidden)

	resp, err = f.Admin.ListProperties(ctx, 10, 0)
	mustStatus(t, resp, err, http.StatusOK)
	properties, meta, err := f.Admin.DecodeProperties(resp)
	if err != nil {
		t.Fatal(err)
	}
	if meta.TotalCount != 1 || len(properties) != 1 {
		t.Fatalf("expected the seeded property, got %d", meta.TotalCount)
	}
	// Confirmed 1000 plus completed 250; pending 500 and cancelled 2000 do not count.
	if properties[0].TotalRevenue != 1250 {
		t.Errorf("revenue = %v, want 1250 from the confirmed and completed bookings", properties[0].TotalRevenue)
	}

	resp, err = f.Admin.SetApproval(ctx, f.PropertyID, true)
	mustStatus(t, resp, err, http.StatusOK)
	property, err := f.Admin.DecodeProperty(resp)
	if err != nil {
		t.Fatal(err)
	}
	if !property.IsApproved {
		t.Error("property not approved")
	}

	resp, err = f.Admin.SetApproval(ctx, "650000000000000000000000", true)
	mustStatus(t, resp, err, http.StatusNotFound)
}
