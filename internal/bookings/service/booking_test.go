package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	bookingserrors "staybook/internal/bookings/errors"
	"staybook/internal/bookings/validator"
	propertieserrors "staybook/internal/properties/errors"
	userserrors "staybook/internal/users/errors"
	"staybook/pkg/auth"
	"staybook/pkg/config"
	mongotx "staybook/pkg/db/mongo"
	apperrors "staybook/pkg/errors"
	"staybook/pkg/logger"
	"staybook/pkg/model"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	propertyID      = "650000000000000000000001"
	hostID          = "650000000000000000000002"
	customerID      = "650000000000000000000003"
	otherCustomerID = "650000000000000000000004"
	adminID         = "650000000000000000000005"
	otherHostID     = "650000000000000000000006"
)

var (
	customer      = &auth.Identity{ID: customerID, UserType: model.UserTypeCustomer}
	otherCustomer = &auth.Identity{ID: otherCustomerID, UserType: model.UserTypeCustomer}
	host          = &auth.Identity{ID: hostID, UserType: model.UserTypeHost}
	otherHost     = &auth.Identity{ID: otherHostID, UserType: model.UserTypeHost}
	admin         = &auth.Identity{ID: adminID, UserType: model.UserTypeAdmin}
)

// --- fakes ---

// errWriteConflict stands in for Mongo's transient WriteConflict.
var errWriteConflict = errors.New("write conflict")

const maxFakeTxAttempts = 5000

type fakeTxKey struct{}

// fakeTx records the writes of one transaction attempt so a rollback undoes
// only those and leaves concurrent writers alone.
type fakeTx struct {
	created  []string
	previous map[string]model.Booking
	events   []*model.OutboxEvent
	onEnd    []func()
}

func txFrom(ctx context.Context) *fakeTx {
	tx, _ := ctx.Value(fakeTxKey{}).(*fakeTx)
	return tx
}

func (tx *fakeTx) end() {
	for _, fn := range tx.onEnd {
		fn()
	}
}

type fakeOutbox struct {
	mu     sync.Mutex
	events []*model.OutboxEvent
}

func (f *fakeOutbox) Insert(ctx context.Context, event *model.OutboxEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	if tx := txFrom(ctx); tx != nil {
		tx.events = append(tx.events, event)
	}
	return nil
}

func (f *fakeOutbox) remove(events []*model.OutboxEvent) {
	if len(events) == 0 {
		return
	}
	drop := make(map[*model.OutboxEvent]bool, len(events))
	for _, e := range events {
		drop[e] = true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.events[:0]
	for _, e := range f.events {
		if !drop[e] {
			kept = append(kept, e)
		}
	}
	f.events = kept
}

func (f *fakeOutbox) Claim(context.Context, time.Time, time.Duration) (*model.OutboxEvent, error) {
	return nil, nil
}

func (f *fakeOutbox) MarkPublished(context.Context, string, time.Time) error { return nil }

func (f *fakeOutbox) MarkFailed(context.Context, string, int, string, time.Time, bool) error {
	return nil
}

func (f *fakeOutbox) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, e := range f.events {
		out = append(out, e.EventType)
	}
	return out
}

type fakeBookingRepo struct {
	mu       sync.Mutex
	bookings map[string]*model.Booking
	outbox   *fakeOutbox

	// beforeTransition runs ahead of the conditional update, letting tests
	// simulate a concurrent writer.
	beforeTransition func(b *model.Booking)
	// afterOverlapQuery runs once the overlap query has been answered.
	afterOverlapQuery func()
}

func newFakeBookingRepo(outbox *fakeOutbox) *fakeBookingRepo {
	return &fakeBookingRepo{bookings: map[string]*model.Booking{}, outbox: outbox}
}

func (r *fakeBookingRepo) put(b *model.Booking) *model.Booking {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b.ID == "" {
		b.ID = primitive.NewObjectID().Hex()
	}
	cp := *b
	r.bookings[b.ID] = &cp
	return b
}

func (r *fakeBookingRepo) get(id string) *model.Booking {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bookings[id]
}

func (r *fakeBookingRepo) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bookings)
}

func (r *fakeBookingRepo) Create(ctx context.Context, booking *model.Booking) error {
	booking.ID = primitive.NewObjectID().Hex()
	booking.CreatedAt = time.Now().UTC()
	booking.UpdatedAt = booking.CreatedAt
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *booking
	stored.Property, stored.Customer, stored.Owner = nil, nil, nil
	r.bookings[booking.ID] = &stored
	if tx := txFrom(ctx); tx != nil {
		tx.created = append(tx.created, booking.ID)
	}
	return nil
}

func (r *fakeBookingRepo) FindByID(_ context.Context, id string) (*model.Booking, error) {
	if !primitive.IsValidObjectID(id) {
		return nil, bookingserrors.ErrInvalidID
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, bookingserrors.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (r *fakeBookingRepo) matching(filter model.BookingFilter) []*model.Booking {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Booking
	for _, b := range r.bookings {
		if filter.PropertyID != "" && b.PropertyID != filter.PropertyID {
			continue
		}
		if filter.CustomerID != "" && b.CustomerID != filter.CustomerID {
			continue
		}
		if filter.OwnerID != "" && b.OwnerID != filter.OwnerID {
			continue
		}
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		cp := *b
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CheckIn.Before(out[j].CheckIn) })
	return out
}

func (r *fakeBookingRepo) FindAll(_ context.Context, filter model.BookingFilter, limit int, offset int64) ([]*model.Booking, error) {
	all := r.matching(filter)
	if offset >= int64(len(all)) {
		return []*model.Booking{}, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *fakeBookingRepo) Count(_ context.Context, filter model.BookingFilter) (int64, error) {
	return int64(len(r.matching(filter))), nil
}

func (r *fakeBookingRepo) FindOverlapping(_ context.Context, customerID, propertyID string, checkIn, checkOut time.Time) ([]*model.Booking, error) {
	out := r.overlapping(customerID, propertyID, checkIn, checkOut)
	if r.afterOverlapQuery != nil {
		r.afterOverlapQuery()
	}
	return out, nil
}

func (r *fakeBookingRepo) overlapping(customerID, propertyID string, checkIn, checkOut time.Time) []*model.Booking {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Booking
	for _, b := range r.bookings {
		if b.CustomerID != customerID || b.PropertyID != propertyID {
			continue
		}
		if b.Status != model.BookingStatusPending && b.Status != model.BookingStatusConfirmed {
			continue
		}
		if b.CheckIn.Before(checkOut) && b.CheckOut.After(checkIn) {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out
}

func (r *fakeBookingRepo) TransitionStatus(ctx context.Context, id string, from, to model.BookingStatus) (*model.Booking, error) {
	if r.beforeTransition != nil {
		if b := r.get(id); b != nil {
			r.beforeTransition(b)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok || b.Status != from {
		return nil, bookingserrors.ErrStatusMismatch
	}
	if tx := txFrom(ctx); tx != nil {
		if _, seen := tx.previous[id]; !seen {
			tx.previous[id] = *b
		}
	}
	b.Status = to
	b.UpdatedAt = time.Now().UTC()
	cp := *b
	return &cp, nil
}

func (r *fakeBookingRepo) FindConfirmedEndedBefore(_ context.Context, before time.Time, limit int) ([]*model.Booking, error) {
	var out []*model.Booking
	for _, b := range r.matching(model.BookingFilter{Status: model.BookingStatusConfirmed}) {
		if !b.CheckOut.After(before) && len(out) < limit {
			out = append(out, b)
		}
	}
	return out, nil
}

// ExecuteTransaction undoes the attempt's own writes when fn fails and
// retries write conflicts the way session.WithTransaction does.
func (r *fakeBookingRepo) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	for attempt := 1; ; attempt++ {
		tx := &fakeTx{previous: map[string]model.Booking{}}
		err := fn(context.WithValue(ctx, fakeTxKey{}, tx))
		if err != nil {
			r.rollback(tx)
		}
		tx.end()
		if err == nil {
			return nil
		}
		if !errors.Is(err, errWriteConflict) || attempt == maxFakeTxAttempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

func (r *fakeBookingRepo) rollback(tx *fakeTx) {
	r.mu.Lock()
	for _, id := range tx.created {
		delete(r.bookings, id)
	}
	for id, prev := range tx.previous {
		cp := prev
		r.bookings[id] = &cp
	}
	r.mu.Unlock()
	r.outbox.remove(tx.events)
}

type fakeLockRepo struct {
	mu      sync.Mutex
	locks   map[string]*model.BookingLock
	guards  map[string]*fakeTx
	created int
	deleted int
	ensured int

	// contended receives a signal whenever a fence loses to another
	// transaction.
	contended chan struct{}
}

func newFakeLockRepo() *fakeLockRepo {
	return &fakeLockRepo{
		locks:     map[string]*model.BookingLock{},
		guards:    map[string]*fakeTx{},
		contended: make(chan struct{}, 1),
	}
}

func (r *fakeLockRepo) Create(_ context.Context, lock *model.BookingLock) (*model.BookingLock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.locks[lock.ID]; ok {
		return nil, bookingserrors.ErrLockHeld
	}
	cp := *lock
	r.locks[lock.ID] = &cp
	r.created++
	return lock, nil
}

func (r *fakeLockRepo) Delete(_ context.Context, lockID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted++
	if lock, ok := r.locks[lockID]; ok && lock.Token == token {
		delete(r.locks, lockID)
	}
	return nil
}

func (r *fakeLockRepo) DeleteExpired(_ context.Context, lockID string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[lockID]
	if !ok || now.Before(lock.ExpiresAt) {
		return false, nil
	}
	delete(r.locks, lockID)
	return true, nil
}

func (r *fakeLockRepo) EnsureGuard(context.Context, string, time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensured++
	return nil
}

// Fence holds the guard until the calling transaction ends. Another
// transaction fencing the same guard meanwhile gets errWriteConflict.
func (r *fakeLockRepo) Fence(ctx context.Context, lockID string, _ time.Time) error {
	tx := txFrom(ctx)
	if tx == nil {
		return errors.New("fence outside a transaction")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if holder, ok := r.guards[lockID]; ok && holder != tx {
		select {
		case r.contended <- struct{}{}:
		default:
		}
		return errWriteConflict
	}
	r.guards[lockID] = tx
	tx.onEnd = append(tx.onEnd, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.guards[lockID] == tx {
			delete(r.guards, lockID)
		}
	})
	return nil
}

func (r *fakeLockRepo) lock(lockID string) (model.BookingLock, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[lockID]
	if !ok {
		return model.BookingLock{}, false
	}
	return *lock, true
}

type fakePropertyRepo struct {
	properties map[string]*model.Property
}

func (r *fakePropertyRepo) FindByID(_ context.Context, id string) (*model.Property, error) {
	if !primitive.IsValidObjectID(id) {
		return nil, propertieserrors.ErrInvalidID
	}
	p, ok := r.properties[id]
	if !ok {
		return nil, propertieserrors.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *fakePropertyRepo) FindAll(context.Context, int, int64) ([]*model.Property, error) {
	return nil, nil
}

func (r *fakePropertyRepo) Count(context.Context) (int64, error) { return 0, nil }

func (r *fakePropertyRepo) RevenueByProperty(context.Context, []string) (map[string]float64, error) {
	return nil, nil
}

func (r *fakePropertyRepo) SetApproval(context.Context, string, bool) (*model.Property, error) {
	return nil, nil
}

type fakeUserRepo struct {
	users map[string]*model.User
}

func (r *fakeUserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	if !primitive.IsValidObjectID(id) {
		return nil, userserrors.ErrInvalidID
	}
	u, ok := r.users[id]
	if !ok {
		return nil, userserrors.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// --- fixture ---

type fixture struct {
	svc    *bookingService
	repo   *fakeBookingRepo
	locks  *fakeLockRepo
	outbox *fakeOutbox
	clock  time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logger.Discard()
	cfg := &config.Config{Log: log, AdmissionLockTTL: 10 * time.Second}

	outbox := &fakeOutbox{}
	repo := newFakeBookingRepo(outbox)
	locks := newFakeLockRepo()
	properties := &fakePropertyRepo{properties: map[string]*model.Property{
		propertyID: {
			ID:          propertyID,
			HostID:      hostID,
			Title:       "Sea View Loft",
			City:        "Lisbon",
			RoomDetails: []model.RoomDetail{{RoomType: "Standard", TotalRooms: 3}},
		},
	}}
	users := &fakeUserRepo{users: map[string]*model.User{
		hostID:          {ID: hostID, Name: "Hana Host", Email: "host@example.com", UserType: model.UserTypeHost},
		customerID:      {ID: customerID, Name: "Carl Customer", Email: "carl@example.com", UserType: model.UserTypeCustomer},
		otherCustomerID: {ID: otherCustomerID, Name: "Cora Customer", Email: "cora@example.com", UserType: model.UserTypeCustomer},
		adminID:         {ID: adminID, Name: "Ada Admin", Email: "admin@example.com", UserType: model.UserTypeAdmin},
	}}

	f := &fixture{
		repo:   repo,
		locks:  locks,
		outbox: outbox,
		clock:  time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	svc := NewBookingService(repo, locks, properties, users, outbox, validator.NewBookingValidator(log), cfg).(*bookingService)
	svc.now = func() time.Time { return f.clock }
	f.svc = svc
	return f
}

func ptr[T any](v T) *T { return &v }

func request(checkIn, checkOut string) *model.BookingRequest {
	return &model.BookingRequest{
		PropertyID:  propertyID,
		OwnerID:     hostID,
		CustomerID:  customerID,
		CheckIn:     checkIn,
		CheckOut:    checkOut,
		TotalAmount: ptr(500.0),
	}
}

func date(s string) time.Time {
	t, err := model.ParseBookingDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func seed(f *fixture, status model.BookingStatus, checkIn, checkOut string) *model.Booking {
	return f.repo.put(&model.Booking{
		PropertyID:     propertyID,
		OwnerID:        hostID,
		CustomerID:     customerID,
		RoomType:       model.DefaultRoomType,
		NumberOfGuests: 1,
		CheckIn:        date(checkIn),
		CheckOut:       date(checkOut),
		TotalAmount:    500,
		Status:         status,
	})
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	if !apperrors.HasCode(err, code) {
		t.Fatalf("expected %s error, got %v", code, err)
	}
}

// --- Create ---

func TestCreate_Success(t *testing.T) {
	f := newFixture(t)

	booking, err := f.svc.Create(context.Background(), customer, request("2025-03-01", "2025-03-05"))
	if err != nil {
		t.Fatalf("Create() unexpected error: %v", err)
	}

	if booking.ID == "" {
		t.Error("expected generated id")
	}
	if booking.Status != model.BookingStatusPending {
		t.Errorf("status = %s, want pending", booking.Status)
	}
	if booking.RoomType != model.DefaultRoomType || booking.NumberOfGuests != 1 {
		t.Errorf("defaults not applied: room_type=%q guests=%d", booking.RoomType, booking.NumberOfGuests)
	}
	if booking.Property == nil || booking.Property.Title != "Sea View Loft" {
		t.Errorf("property summary = %+v", booking.Property)
	}
	if booking.Customer == nil || booking.Customer.Email != "carl@example.com" {
		t.Errorf("customer summary = %+v", booking.Customer)
	}
	if booking.Owner == nil || booking.Owner.ID != hostID {
		t.Errorf("owner summary = %+v", booking.Owner)
	}
	if got := f.outbox.types(); len(got) != 1 || got[0] != model.BookingEventCreated {
		t.Errorf("outbox events = %v, want [booking.created]", got)
	}
	if len(f.locks.locks) != 0 || f.locks.deleted != 1 {
		t.Errorf("lock not released: %d held, %d deleted", len(f.locks.locks), f.locks.deleted)
	}
	if f.locks.ensured != 1 || len(f.locks.guards) != 0 {
		t.Errorf("guard ensured %d times, %d still fenced", f.locks.ensured, len(f.locks.guards))
	}
}

func TestCreate_Overlap(t *testing.T) {
	tests := []struct {
		name     string
		existing model.BookingStatus
		checkIn  string
		checkOut string
		wantErr  string
	}{
		{name: "touching after existing stay", existing: model.BookingStatusPending, checkIn: "2025-01-05", checkOut: "2025-01-08"},
		{name: "touching before existing stay", existing: model.BookingStatusConfirmed, checkIn: "2024-12-28", checkOut: "2025-01-01"},
		{name: "overlapping pending", existing: model.BookingStatusPending, checkIn: "2025-01-03", checkOut: "2025-01-07", wantErr: apperrors.CodeConflict},
		{name: "overlapping confirmed", existing: model.BookingStatusConfirmed, checkIn: "2025-01-02", checkOut: "2025-01-03", wantErr: apperrors.CodeConflict},
		{name: "enclosing stay", existing: model.BookingStatusPending, checkIn: "2024-12-30", checkOut: "2025-01-10", wantErr: apperrors.CodeConflict},
		{name: "overlapping cancelled is ignored", existing: model.BookingStatusCancelled, checkIn: "2025-01-03", checkOut: "2025-01-07"},
		{name: "overlapping completed is ignored", existing: model.BookingStatusCompleted, checkIn: "2025-01-03", checkOut: "2025-01-07"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			seed(f, tt.existing, "2025-01-01", "2025-01-05")

			_, err := f.svc.Create(context.Background(), customer, request(tt.checkIn, tt.checkOut))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Create() unexpected error: %v", err)
				}
				if f.repo.size() != 2 {
					t.Errorf("stored bookings = %d, want 2", f.repo.size())
				}
				return
			}
			assertCode(t, err, tt.wantErr)
			if f.repo.size() != 1 {
				t.Errorf("stored bookings = %d, want 1", f.repo.size())
			}
			if len(f.outbox.types()) != 0 {
				t.Errorf("outbox events = %v, want none", f.outbox.types())
			}
		})
	}
}

func TestCreate_OverlapOnlyForSameCustomer(t *testing.T) {
	f := newFixture(t)
	seed(f, model.BookingStatusConfirmed, "2025-01-01", "2025-01-05")

	req := request("2025-01-02", "2025-01-04")
	req.CustomerID = otherCustomerID
	if _, err := f.svc.Create(context.Background(), otherCustomer, req); err != nil {
		t.Fatalf("Create() unexpected error: %v", err)
	}
}

func TestCreate_MissingTotalAmountPersistsNothing(t *testing.T) {
	f := newFixture(t)
	req := request("2025-01-01", "2025-01-05")
	req.TotalAmount = nil

	_, err := f.svc.Create(context.Background(), customer, req)
	assertCode(t, err, apperrors.CodeValidation)

	if f.repo.size() != 0 {
		t.Errorf("stored bookings = %d, want 0", f.repo.size())
	}
	if len(f.outbox.types()) != 0 {
		t.Error("expected no outbox events")
	}
	if f.locks.created != 0 {
		t.Error("expected no lock to be taken")
	}
}

func TestCreate_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		caller  *auth.Identity
		mutate  func(r *model.BookingRequest)
		wantErr string
	}{
		{name: "anonymous", caller: nil, mutate: func(*model.BookingRequest) {}, wantErr: apperrors.CodeUnauthorized},
		{name: "host cannot book", caller: host, mutate: func(*model.BookingRequest) {}, wantErr: apperrors.CodeForbidden},
		{name: "customer books for someone else", caller: otherCustomer, mutate: func(*model.BookingRequest) {}, wantErr: apperrors.CodeForbidden},
		{name: "check out before check in", caller: customer, mutate: func(r *model.BookingRequest) { r.CheckOut = "2024-12-01" }, wantErr: apperrors.CodeValidation},
		{name: "unknown property", caller: customer, mutate: func(r *model.BookingRequest) { r.PropertyID = "650000000000000000000099" }, wantErr: apperrors.CodeNotFound},
		{name: "owner is not the host", caller: customer, mutate: func(r *model.BookingRequest) { r.OwnerID = otherHostID }, wantErr: apperrors.CodeValidation},
		{name: "unknown customer", caller: admin, mutate: func(r *model.BookingRequest) { r.CustomerID = "650000000000000000000098" }, wantErr: apperrors.CodeNotFound},
		{name: "customer is not a customer", caller: admin, mutate: func(r *model.BookingRequest) { r.CustomerID = adminID }, wantErr: apperrors.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := request("2025-01-01", "2025-01-05")
			tt.mutate(req)

			_, err := f.svc.Create(context.Background(), tt.caller, req)
			assertCode(t, err, tt.wantErr)
			if f.repo.size() != 0 {
				t.Errorf("stored bookings = %d, want 0", f.repo.size())
			}
		})
	}
}

func TestCreate_StatusHint(t *testing.T) {
	tests := []struct {
		name   string
		caller *auth.Identity
		hint   string
		want   model.BookingStatus
	}{
		{name: "admin approved", caller: admin, hint: "approved", want: model.BookingStatusConfirmed},
		{name: "admin approved mixed case", caller: admin, hint: " Approved ", want: model.BookingStatusConfirmed},
		{name: "customer hint ignored", caller: customer, hint: "approved", want: model.BookingStatusPending},
		{name: "unknown hint ignored", caller: admin, hint: "completed", want: model.BookingStatusPending},
		{name: "no hint", caller: admin, want: model.BookingStatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := request("2025-01-01", "2025-01-05")
			req.Status = tt.hint

			booking, err := f.svc.Create(context.Background(), tt.caller, req)
			if err != nil {
				t.Fatalf("Create() unexpected error: %v", err)
			}
			if booking.Status != tt.want {
				t.Errorf("status = %s, want %s", booking.Status, tt.want)
			}
		})
	}
}

func TestCreate_LockHeld(t *testing.T) {
	f := newFixture(t)
	lockID := model.BookingLockID(customerID, propertyID)
	f.locks.locks[lockID] = &model.BookingLock{ID: lockID, ExpiresAt: f.clock.Add(5 * time.Second)}

	_, err := f.svc.Create(context.Background(), customer, request("2025-01-01", "2025-01-05"))
	assertCode(t, err, apperrors.CodeConflict)

	if _, ok := f.locks.locks[lockID]; !ok {
		t.Error("foreign lock must not be released")
	}
	if f.repo.size() != 0 {
		t.Errorf("stored bookings = %d, want 0", f.repo.size())
	}
}

func TestCreate_ReclaimsExpiredLock(t *testing.T) {
	f := newFixture(t)
	lockID := model.BookingLockID(customerID, propertyID)
	f.locks.locks[lockID] = &model.BookingLock{ID: lockID, ExpiresAt: f.clock.Add(-time.Second)}

	if _, err := f.svc.Create(context.Background(), customer, request("2025-01-01", "2025-01-05")); err != nil {
		t.Fatalf("Create() unexpected error: %v", err)
	}
	if len(f.locks.locks) != 0 {
		t.Error("reclaimed lock should be released after admission")
	}
}

func TestCreate_ConcurrentOverlappingRequests(t *testing.T) {
	f := newFixture(t)

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := f.svc.Create(context.Background(), customer, request("2025-02-01", "2025-02-04"))
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			if !apperrors.HasCode(err, apperrors.CodeConflict) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Errorf("successful admissions = %d, want 1", succeeded)
	}
	if f.repo.size() != 1 {
		t.Errorf("stored bookings = %d, want 1", f.repo.size())
	}
}

func TestCreate_StalledAdmissionAfterLockExpiry(t *testing.T) {
	f := newFixture(t)

	var clockMu sync.Mutex
	now := f.clock
	f.svc.now = func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return now
	}

	stalled := make(chan struct{})
	resume := make(chan struct{})
	var once sync.Once
	f.repo.afterOverlapQuery = func() {
		once.Do(func() {
			close(stalled)
			<-resume
		})
	}

	type result struct {
		booking *model.Booking
		err     error
	}
	first := make(chan result, 1)
	go func() {
		b, err := f.svc.Create(context.Background(), customer, request("2025-03-01", "2025-03-05"))
		first <- result{b, err}
	}()
	<-stalled

	// The first admission outlives its lock, so the second one reclaims it.
	clockMu.Lock()
	now = now.Add(11 * time.Second)
	clockMu.Unlock()

	second := make(chan result, 1)
	go func() {
		b, err := f.svc.Create(context.Background(), customer, request("2025-03-02", "2025-03-04"))
		second <- result{b, err}
	}()

	select {
	case <-f.locks.contended:
	case <-time.After(5 * time.Second):
		close(resume)
		t.Fatal("second admission never reached the guard")
	}
	close(resume)

	a, b := <-first, <-second
	if a.err != nil {
		t.Fatalf("first Create() unexpected error: %v", a.err)
	}
	assertCode(t, b.err, apperrors.CodeConflict)
	if f.repo.size() != 1 {
		t.Errorf("stored bookings = %d, want 1", f.repo.size())
	}
	if got := f.outbox.types(); len(got) != 1 {
		t.Errorf("outbox events = %v, want one booking.created", got)
	}
}

func TestCreate_ReleaseKeepsReclaimedLock(t *testing.T) {
	f := newFixture(t)
	lockID := model.BookingLockID(customerID, propertyID)

	// Another request reclaims the lock while this admission is in flight.
	f.repo.afterOverlapQuery = func() {
		f.locks.mu.Lock()
		defer f.locks.mu.Unlock()
		f.locks.locks[lockID] = &model.BookingLock{ID: lockID, Token: "other-holder", ExpiresAt: f.clock.Add(time.Minute)}
	}

	if _, err := f.svc.Create(context.Background(), customer, request("2025-01-01", "2025-01-05")); err != nil {
		t.Fatalf("Create() unexpected error: %v", err)
	}

	lock, ok := f.locks.lock(lockID)
	if !ok || lock.Token != "other-holder" {
		t.Errorf("lock after release = %+v (held=%v), want the other holder's lock", lock, ok)
	}
}

func TestCreate_LockCarriesOwnerToken(t *testing.T) {
	f := newFixture(t)
	lockID := model.BookingLockID(customerID, propertyID)

	var seen model.BookingLock
	f.repo.afterOverlapQuery = func() {
		seen, _ = f.locks.lock(lockID)
	}

	if _, err := f.svc.Create(context.Background(), customer, request("2025-01-01", "2025-01-05")); err != nil {
		t.Fatalf("Create() unexpected error: %v", err)
	}
	if seen.Token == "" {
		t.Error("admission lock has no owner token")
	}
	if want := f.clock.Add(f.svc.cfg.AdmissionLockTTL); !seen.ExpiresAt.Equal(want) {
		t.Errorf("lock expires at %s, want %s", seen.ExpiresAt, want)
	}
}

// --- Read ---

func TestGetByID_Access(t *testing.T) {
	f := newFixture(t)
	b := seed(f, model.BookingStatusPending, "2025-01-01", "2025-01-05")

	tests := []struct {
		name    string
		caller  *auth.Identity
		wantErr string
	}{
		{name: "customer", caller: customer},
		{name: "owning host", caller: host},
		{name: "admin", caller: admin},
		{name: "other customer", caller: otherCustomer, wantErr: apperrors.CodeForbidden},
		{name: "other host", caller: otherHost, wantErr: apperrors.CodeForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.GetByID(context.Background(), tt.caller, b.ID)
			if tt.wantErr != "" {
				assertCode(t, err, tt.wantErr)
				return
			}
			if err != nil {
				t.Fatalf("GetByID() unexpected error: %v", err)
			}
			if got.Property == nil || got.Customer == nil || got.Owner == nil {
				t.Error("expected summaries to be attached")
			}
		})
	}
}

func TestGetByID_Errors(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetByID(context.Background(), admin, "650000000000000000000077")
	assertCode(t, err, apperrors.CodeNotFound)

	_, err = f.svc.GetByID(context.Background(), admin, "bogus")
	assertCode(t, err, apperrors.CodeInvalidInput)

	_, err = f.svc.GetByID(context.Background(), admin, "  ")
	assertCode(t, err, apperrors.CodeInvalidInput)
}

func TestList_Scoping(t *testing.T) {
	f := newFixture(t)
	seed(f, model.BookingStatusPending, "2025-01-01", "2025-01-05")
	seed(f, model.BookingStatusConfirmed, "2025-02-01", "2025-02-05")
	f.repo.put(&model.Booking{
		PropertyID: propertyID, OwnerID: otherHostID, CustomerID: otherCustomerID,
		CheckIn: date("2025-03-01"), CheckOut: date("2025-03-02"), Status: model.BookingStatusPending,
	})

	tests := []struct {
		name   string
		caller *auth.Identity
		filter model.BookingFilter
		want   int64
	}{
		{name: "admin sees all", caller: admin, want: 3},
		{name: "admin filters by status", caller: admin, filter: model.BookingFilter{Status: model.BookingStatusConfirmed}, want: 1},
		{name: "customer sees own", caller: customer, want: 2},
		{name: "customer cannot widen scope", caller: customer, filter: model.BookingFilter{CustomerID: otherCustomerID}, want: 2},
		{name: "host sees own properties", caller: host, want: 2},
		{name: "other host", caller: otherHost, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bookings, total, err := f.svc.List(context.Background(), tt.caller, tt.filter, 10, 0)
			if err != nil {
				t.Fatalf("List() unexpected error: %v", err)
			}
			if total != tt.want || int64(len(bookings)) != tt.want {
				t.Errorf("List() total=%d len=%d, want %d", total, len(bookings), tt.want)
			}
		})
	}

	_, _, err := f.svc.List(context.Background(), admin, model.BookingFilter{Status: "approved"}, 10, 0)
	assertCode(t, err, apperrors.CodeInvalidInput)
}

// --- Lifecycle ---

func TestTransitions(t *testing.T) {
	tests := []struct {
		name      string
		from      model.BookingStatus
		caller    *auth.Identity
		action    func(s *bookingService, ctx context.Context, caller *auth.Identity, id string) (*model.Booking, error)
		want      model.BookingStatus
		wantErr   string
		wantEvent string
	}{
		{name: "host confirms pending", from: model.BookingStatusPending, caller: host, action: (*bookingService).Confirm, want: model.BookingStatusConfirmed, wantEvent: "booking.confirmed"},
		{name: "admin confirms pending", from: model.BookingStatusPending, caller: admin, action: (*bookingService).Confirm, want: model.BookingStatusConfirmed, wantEvent: "booking.confirmed"},
		{name: "customer cannot confirm", from: model.BookingStatusPending, caller: customer, action: (*bookingService).Confirm, want: model.BookingStatusPending, wantErr: apperrors.CodeForbidden},
		{name: "other host cannot confirm", from: model.BookingStatusPending, caller: otherHost, action: (*bookingService).Confirm, want: model.BookingStatusPending, wantErr: apperrors.CodeForbidden},
		{name: "customer cancels pending", from: model.BookingStatusPending, caller: customer, action: (*bookingService).Cancel, want: model.BookingStatusCancelled, wantEvent: "booking.cancelled"},
		{name: "other customer cannot cancel", from: model.BookingStatusPending, caller: otherCustomer, action: (*bookingService).Cancel, want: model.BookingStatusPending, wantErr: apperrors.CodeForbidden},
		{name: "cancel confirmed is invalid", from: model.BookingStatusConfirmed, caller: admin, action: (*bookingService).Cancel, want: model.BookingStatusConfirmed, wantErr: apperrors.CodeInvalidTransition},
		{name: "host completes confirmed", from: model.BookingStatusConfirmed, caller: host, action: (*bookingService).Complete, want: model.BookingStatusCompleted, wantEvent: "booking.completed"},
		{name: "complete pending is invalid", from: model.BookingStatusPending, caller: host, action: (*bookingService).Complete, want: model.BookingStatusPending, wantErr: apperrors.CodeInvalidTransition},
		{name: "cancelled is terminal", from: model.BookingStatusCancelled, caller: admin, action: (*bookingService).Confirm, want: model.BookingStatusCancelled, wantErr: apperrors.CodeInvalidTransition},
		{name: "completed is terminal", from: model.BookingStatusCompleted, caller: admin, action: (*bookingService).Cancel, want: model.BookingStatusCompleted, wantErr: apperrors.CodeInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			b := seed(f, tt.from, "2025-01-01", "2025-01-05")

			got, err := tt.action(f.svc, context.Background(), tt.caller, b.ID)
			if tt.wantErr != "" {
				assertCode(t, err, tt.wantErr)
				if len(f.outbox.types()) != 0 {
					t.Errorf("outbox events = %v, want none", f.outbox.types())
				}
			} else {
				if err != nil {
					t.Fatalf("transition unexpected error: %v", err)
				}
				if got.Status != tt.want {
					t.Errorf("returned status = %s, want %s", got.Status, tt.want)
				}
				if got.Customer == nil || got.Customer.Email != "carl@example.com" {
					t.Errorf("customer summary = %+v", got.Customer)
				}
				if events := f.outbox.types(); len(events) != 1 || events[0] != tt.wantEvent {
					t.Errorf("outbox events = %v, want [%s]", events, tt.wantEvent)
				}
			}

			if stored := f.repo.get(b.ID); stored.Status != tt.want {
				t.Errorf("stored status = %s, want %s", stored.Status, tt.want)
			}
		})
	}
}

func TestTransition_ConcurrentChange(t *testing.T) {
	f := newFixture(t)
	b := seed(f, model.BookingStatusPending, "2025-01-01", "2025-01-05")

	// Host confirms while the customer's cancel is in flight.
	f.repo.beforeTransition = func(current *model.Booking) {
		f.repo.beforeTransition = nil
		current.Status = model.BookingStatusConfirmed
		f.repo.put(current)
	}

	_, err := f.svc.Cancel(context.Background(), customer, b.ID)
	assertCode(t, err, apperrors.CodeInvalidTransition)

	appErr := apperrors.AsAppError(err)
	if appErr.Details["from"] != "confirmed" {
		t.Errorf("details = %v, want from=confirmed", appErr.Details)
	}
	if stored := f.repo.get(b.ID); stored.Status != model.BookingStatusConfirmed {
		t.Errorf("stored status = %s, want confirmed", stored.Status)
	}
}

func TestTransition_TerminalBookingIsReported(t *testing.T) {
	tests := []struct {
		name         string
		from         model.BookingStatus
		action       func(s *bookingService, ctx context.Context, caller *auth.Identity, id string) (*model.Booking, error)
		wantTerminal bool
	}{
		{name: "confirm cancelled", from: model.BookingStatusCancelled, action: (*bookingService).Confirm, wantTerminal: true},
		{name: "cancel completed", from: model.BookingStatusCompleted, action: (*bookingService).Cancel, wantTerminal: true},
		{name: "complete pending", from: model.BookingStatusPending, action: (*bookingService).Complete},
		{name: "cancel confirmed", from: model.BookingStatusConfirmed, action: (*bookingService).Cancel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			b := seed(f, tt.from, "2025-01-01", "2025-01-05")

			_, err := tt.action(f.svc, context.Background(), admin, b.ID)
			assertCode(t, err, apperrors.CodeInvalidTransition)

			appErr := apperrors.AsAppError(err)
			_, terminal := appErr.Details["terminal"]
			if terminal != tt.wantTerminal {
				t.Errorf("terminal detail = %v, want %v (details %v)", terminal, tt.wantTerminal, appErr.Details)
			}
			if tt.wantTerminal && !strings.Contains(appErr.Message, "already "+tt.from.String()) {
				t.Errorf("message = %q, want it to name the %s status", appErr.Message, tt.from)
			}
		})
	}
}

func TestTransition_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Confirm(context.Background(), admin, "650000000000000000000077")
	assertCode(t, err, apperrors.CodeNotFound)

	_, err = f.svc.Confirm(context.Background(), nil, "650000000000000000000077")
	assertCode(t, err, apperrors.CodeUnauthorized)
}

func TestCompleteElapsed(t *testing.T) {
	f := newFixture(t)
	past := seed(f, model.BookingStatusConfirmed, "2024-12-20", "2024-12-24")
	endsNow := seed(f, model.BookingStatusConfirmed, "2024-12-28", "2025-01-01")
	future := seed(f, model.BookingStatusConfirmed, "2025-01-10", "2025-01-12")
	pending := seed(f, model.BookingStatusPending, "2024-12-01", "2024-12-03")

	completed, err := f.svc.CompleteElapsed(context.Background(), date("2025-01-01"), 10)
	if err != nil {
		t.Fatalf("CompleteElapsed() unexpected error: %v", err)
	}
	if completed != 2 {
		t.Errorf("completed = %d, want 2", completed)
	}

	want := map[string]model.BookingStatus{
		past.ID:    model.BookingStatusCompleted,
		endsNow.ID: model.BookingStatusCompleted,
		future.ID:  model.BookingStatusConfirmed,
		pending.ID: model.BookingStatusPending,
	}
	for id, status := range want {
		if got := f.repo.get(id).Status; got != status {
			t.Errorf("booking %s status = %s, want %s", id, got, status)
		}
	}
	if events := f.outbox.types(); len(events) != 2 {
		t.Errorf("outbox events = %v, want 2", events)
	}
}

func TestCompleteElapsed_SkipsConcurrentChanges(t *testing.T) {
	f := newFixture(t)
	seed(f, model.BookingStatusConfirmed, "2024-12-20", "2024-12-24")

	f.repo.beforeTransition = func(current *model.Booking) {
		current.Status = model.BookingStatusCompleted
		f.repo.put(current)
	}

	completed, err := f.svc.CompleteElapsed(context.Background(), date("2025-01-01"), 10)
	if err != nil {
		t.Fatalf("CompleteElapsed() unexpected error: %v", err)
	}
	if completed != 0 {
		t.Errorf("completed = %d, want 0", completed)
	}
}
