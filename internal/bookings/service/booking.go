package service

import (
	"context"
	"errors"
	bookingserrors "staybook/internal/bookings/errors"
	"staybook/internal/bookings/repository"
	"staybook/internal/bookings/validator"
	outboxrepo "staybook/internal/outbox/repository"
	propertieserrors "staybook/internal/properties/errors"
	propertyrepo "staybook/internal/properties/repository"
	userserrors "staybook/internal/users/errors"
	userrepo "staybook/internal/users/repository"
	"staybook/pkg/auth"
	"staybook/pkg/config"
	apperrors "staybook/pkg/errors"
	"staybook/pkg/model"
	"staybook/pkg/sanitizer"
	"sync"
	"time"

	"github.com/google/uuid"
)

type BookingService interface {
	Create(ctx context.Context, caller *auth.Identity, req *model.BookingRequest) (*model.Booking, error)
	GetByID(ctx context.Context, caller *auth.Identity, id string) (*model.Booking, error)
	List(ctx context.Context, caller *auth.Identity, filter model.BookingFilter, limit int, offset int64) ([]*model.Booking, int64, error)
	Confirm(ctx context.Context, caller *auth.Identity, id string) (*model.Booking, error)
	Cancel(ctx context.Context, caller *auth.Identity, id string) (*model.Booking, error)
	Complete(ctx context.Context, caller *auth.Identity, id string) (*model.Booking, error)
	// CompleteElapsed completes up to limit confirmed bookings whose stay
	// ended before now and returns how many were completed.
	CompleteElapsed(ctx context.Context, now time.Time, limit int) (int, error)
}

type bookingService struct {
	repo       repository.BookingRepository
	lockRepo   repository.BookingLockRepository
	properties propertyrepo.PropertyRepository
	users      userrepo.UserRepository
	outbox     outboxrepo.OutboxRepository
	validator  *validator.BookingValidator
	cfg        *config.Config
	now        func() time.Time
}

func NewBookingService(
	repo repository.BookingRepository,
	lockRepo repository.BookingLockRepository,
	properties propertyrepo.PropertyRepository,
	users userrepo.UserRepository,
	outbox outboxrepo.OutboxRepository,
	validator *validator.BookingValidator,
	cfg *config.Config,
) BookingService {
	return &bookingService{
		repo:       repo,
		lockRepo:   lockRepo,
		properties: properties,
		users:      users,
		outbox:     outbox,
		validator:  validator,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *bookingService) Create(ctx context.Context, caller *auth.Identity, req *model.BookingRequest) (*model.Booking, error) {
	if caller == nil {
		return nil, apperrors.Unauthorized("Authentication required")
	}

	s.sanitizeRequest(req)
	if err := s.validator.ValidateRequest(req); err != nil {
		s.cfg.Log.Warn("Booking validation failed", "error", err)
		return nil, apperrors.Validation("Booking validation failed", map[string]any{"error": err.Error()})
	}

	switch {
	case caller.IsHost():
		return nil, apperrors.Forbidden("Hosts cannot create bookings")
	case caller.IsCustomer() && caller.ID != req.CustomerID:
		return nil, apperrors.Forbidden("Customers can only book for themselves")
	case !caller.IsAdmin() && !caller.IsCustomer():
		return nil, apperrors.Forbidden("Not allowed to create bookings")
	}

	booking, err := req.ToBooking()
	if err != nil {
		return nil, apperrors.Validation("Booking validation failed", map[string]any{"error": err.Error()})
	}

	property, customer, owner, err := s.loadParties(ctx, booking)
	if err != nil {
		return nil, err
	}

	if !property.HasRoomType(booking.RoomType) {
		s.cfg.Log.Warn("Room type not listed for property",
			"property_id", property.ID,
			"room_type", booking.RoomType,
		)
	}

	booking.Status = s.initialStatus(caller, property, req.Status)
	booking.Property = property.Summary()
	booking.Customer = customer.Summary()
	booking.Owner = owner.Summary()

	if err := s.validator.Validate(booking); err != nil {
		s.cfg.Log.Warn("Booking validation failed", "error", err)
		return nil, apperrors.Validation("Booking validation failed", map[string]any{"error": err.Error()})
	}

	lock, err := s.acquireAdmissionLock(ctx, booking.CustomerID, booking.PropertyID)
	if err != nil {
		return nil, err
	}
	defer s.releaseAdmissionLock(ctx, lock)

	err = s.repo.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		// Fence errors stay unwrapped so a write conflict is retried.
		if err := s.lockRepo.Fence(txCtx, lock.ID, s.now()); err != nil {
			return err
		}
		if err := s.verifyNoOverlap(txCtx, booking); err != nil {
			return err
		}
		if err := s.repo.Create(txCtx, booking); err != nil {
			return apperrors.Internal("Failed to create booking", err)
		}
		return s.enqueueEvent(txCtx, model.BookingEventCreated, booking)
	})
	if err != nil {
		s.cfg.Log.Error("Failed to create booking",
			"customer_id", booking.CustomerID,
			"property_id", booking.PropertyID,
			"error", err,
		)
		if !apperrors.IsAppError(err) {
			return nil, apperrors.Internal("Failed to create booking", err)
		}
		return nil, err
	}

	s.cfg.Log.Info("Booking created successfully",
		"id", booking.ID,
		"property_id", booking.PropertyID,
		"customer_id", booking.CustomerID,
		"status", booking.Status,
		"check_in", booking.CheckIn,
		"check_out", booking.CheckOut,
	)
	return booking, nil
}

func (s *bookingService) GetByID(ctx context.Context, caller *auth.Identity, id string) (*model.Booking, error) {
	if caller == nil {
		return nil, apperrors.Unauthorized("Authentication required")
	}

	booking, err := s.findBooking(ctx, id)
	if err != nil {
		return nil, err
	}

	if !isParty(caller, booking) {
		return nil, apperrors.Forbidden("Not allowed to view this booking")
	}

	s.attachSummaries(ctx, booking)
	return booking, nil
}

func (s *bookingService) List(ctx context.Context, caller *auth.Identity, filter model.BookingFilter, limit int, offset int64) ([]*model.Booking, int64, error) {
	if caller == nil {
		return nil, 0, apperrors.Unauthorized("Authentication required")
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, 0, apperrors.InvalidInput("Invalid booking status filter")
	}

	switch {
	case caller.IsAdmin():
	case caller.IsHost():
		filter.OwnerID = caller.ID
	case caller.IsCustomer():
		filter.CustomerID = caller.ID
	default:
		return nil, 0, apperrors.Forbidden("Not allowed to list bookings")
	}

	var count int64
	var bookings []*model.Booking
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.repo.Count(ctx, filter)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count bookings", "error", errCount)
			errCount = apperrors.Internal("Failed to count bookings", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		bookings, errFind = s.repo.FindAll(ctx, filter, limit, offset)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list bookings", "error", errFind)
			errFind = apperrors.Internal("Failed to retrieve bookings", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}

	return bookings, count, nil
}

// --- Helpers ---

func (s *bookingService) sanitizeRequest(req *model.BookingRequest) {
	req.PropertyID = sanitizer.SanitizeID(req.PropertyID)
	req.OwnerID = sanitizer.SanitizeID(req.OwnerID)
	req.CustomerID = sanitizer.SanitizeID(req.CustomerID)
	req.RoomType = sanitizer.SanitizeRoomType(req.RoomType)
	req.SpecialRequests = sanitizer.SanitizeFreeText(req.SpecialRequests)
	req.CheckIn = sanitizer.TrimAndNormalize(req.CheckIn)
	req.CheckOut = sanitizer.TrimAndNormalize(req.CheckOut)
	req.Status = sanitizer.NormalizeForComparison(req.Status)
}

// loadParties resolves the property, customer and owner of a new booking and
// checks that they fit together.
func (s *bookingService) loadParties(ctx context.Context, booking *model.Booking) (*model.Property, *model.User, *model.User, error) {
	property, err := s.properties.FindByID(ctx, booking.PropertyID)
	if err != nil {
		return nil, nil, nil, translatePropertyError(err, booking.PropertyID)
	}
	if property.HostID != booking.OwnerID {
		return nil, nil, nil, apperrors.Validation("Booking validation failed", map[string]any{
			"error": "owner_id does not match the property's host",
		})
	}

	customer, err := s.users.FindByID(ctx, booking.CustomerID)
	if err != nil {
		return nil, nil, nil, translateUserError(err, "Customer", booking.CustomerID)
	}
	if customer.UserType != model.UserTypeCustomer {
		return nil, nil, nil, apperrors.Validation("Booking validation failed", map[string]any{
			"error": "customer_id does not reference a customer",
		})
	}

	owner, err := s.users.FindByID(ctx, booking.OwnerID)
	if err != nil {
		return nil, nil, nil, translateUserError(err, "Owner", booking.OwnerID)
	}

	return property, customer, owner, nil
}

// initialStatus honours the "approved" hint only for admins and the host who
// owns the property.
func (s *bookingService) initialStatus(caller *auth.Identity, property *model.Property, hint string) model.BookingStatus {
	if hint == "" {
		return model.BookingStatusPending
	}
	if hint == model.StatusHintApproved && (caller.IsAdmin() || (caller.IsHost() && caller.ID == property.HostID)) {
		return model.BookingStatusConfirmed
	}
	s.cfg.Log.Warn("Ignoring booking status hint",
		"hint", hint,
		"caller_id", caller.ID,
		"caller_type", caller.UserType,
	)
	return model.BookingStatusPending
}

func (s *bookingService) acquireAdmissionLock(ctx context.Context, customerID, propertyID string) (*model.BookingLock, error) {
	lockID := model.BookingLockID(customerID, propertyID)
	now := s.now()
	lock := &model.BookingLock{
		ID:        lockID,
		Token:     uuid.NewString(),
		ExpiresAt: now.Add(s.cfg.AdmissionLockTTL),
	}

	_, err := s.lockRepo.Create(ctx, lock)
	if errors.Is(err, bookingserrors.ErrLockHeld) {
		reclaimed, reclaimErr := s.lockRepo.DeleteExpired(ctx, lockID, now)
		if reclaimErr != nil {
			return nil, apperrors.Internal("Failed to acquire booking lock", reclaimErr)
		}
		if reclaimed {
			s.cfg.Log.Warn("Reclaimed expired booking lock", "lock_id", lockID)
			_, err = s.lockRepo.Create(ctx, lock)
		}
	}
	if err != nil {
		if errors.Is(err, bookingserrors.ErrLockHeld) {
			return nil, apperrors.Conflict("This property is currently being booked by another request. Please try again.")
		}
		return nil, apperrors.Internal("Failed to acquire booking lock", err)
	}

	if err := s.lockRepo.EnsureGuard(ctx, lockID, now); err != nil {
		s.releaseAdmissionLock(ctx, lock)
		return nil, apperrors.Internal("Failed to acquire booking lock", err)
	}

	return lock, nil
}

func (s *bookingService) releaseAdmissionLock(ctx context.Context, lock *model.BookingLock) {
	if err := s.lockRepo.Delete(context.WithoutCancel(ctx), lock.ID, lock.Token); err != nil {
		s.cfg.Log.Warn("Failed to release booking lock", "lock_id", lock.ID, "error", err)
	}
}

func (s *bookingService) verifyNoOverlap(ctx context.Context, booking *model.Booking) error {
	existing, err := s.repo.FindOverlapping(ctx, booking.CustomerID, booking.PropertyID, booking.CheckIn, booking.CheckOut)
	if err != nil {
		return apperrors.Internal("Failed to check existing bookings", err)
	}

	for _, b := range existing {
		if b.Overlaps(booking.CheckIn, booking.CheckOut) {
			return apperrors.Conflict("Customer already has a booking for this property on overlapping dates").
				WithDetails(map[string]any{
					"booking_id": b.ID,
					"check_in":   b.CheckIn.Format(model.DateLayout),
					"check_out":  b.CheckOut.Format(model.DateLayout),
				})
		}
	}
	return nil
}

func (s *bookingService) enqueueEvent(ctx context.Context, eventType string, booking *model.Booking) error {
	event, err := outboxrepo.NewBookingEvent(eventType, booking, s.now())
	if err != nil {
		return apperrors.Internal("Failed to build booking event", err)
	}
	if err := s.outbox.Insert(ctx, event); err != nil {
		return apperrors.Internal("Failed to record booking event", err)
	}
	return nil
}

func (s *bookingService) findBooking(ctx context.Context, id string) (*model.Booking, error) {
	id = sanitizer.SanitizeID(id)
	if id == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}

	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Booking", id)
		}
		if errors.Is(err, bookingserrors.ErrInvalidID) {
			return nil, apperrors.InvalidInput("Invalid booking ID format")
		}
		return nil, apperrors.Internal("Failed to retrieve booking", err)
	}
	return booking, nil
}

// attachSummaries fills the property and party summaries of a stored booking.
// Missing records are logged and left out.
func (s *bookingService) attachSummaries(ctx context.Context, booking *model.Booking) {
	if property, err := s.properties.FindByID(ctx, booking.PropertyID); err == nil {
		booking.Property = property.Summary()
	} else {
		s.cfg.Log.Warn("Failed to load property summary", "booking_id", booking.ID, "error", err)
	}
	if customer, err := s.users.FindByID(ctx, booking.CustomerID); err == nil {
		booking.Customer = customer.Summary()
	} else {
		s.cfg.Log.Warn("Failed to load customer summary", "booking_id", booking.ID, "error", err)
	}
	if owner, err := s.users.FindByID(ctx, booking.OwnerID); err == nil {
		booking.Owner = owner.Summary()
	} else {
		s.cfg.Log.Warn("Failed to load owner summary", "booking_id", booking.ID, "error", err)
	}
}

func isParty(caller *auth.Identity, booking *model.Booking) bool {
	switch {
	case caller.IsAdmin():
		return true
	case caller.IsHost():
		return caller.ID == booking.OwnerID
	case caller.IsCustomer():
		return caller.ID == booking.CustomerID
	}
	return false
}

func translatePropertyError(err error, id string) error {
	if errors.Is(err, propertieserrors.ErrNotFound) {
		return apperrors.NotFoundWithID("Property", id)
	}
	if errors.Is(err, propertieserrors.ErrInvalidID) {
		return apperrors.InvalidInput("Invalid property ID format")
	}
	return apperrors.Internal("Failed to retrieve property", err)
}

func translateUserError(err error, resource, id string) error {
	if errors.Is(err, userserrors.ErrNotFound) {
		return apperrors.NotFoundWithID(resource, id)
	}
	if errors.Is(err, userserrors.ErrInvalidID) {
		return apperrors.InvalidInput("Invalid " + resource + " ID format")
	}
	return apperrors.Internal("Failed to retrieve "+resource, err)
}
