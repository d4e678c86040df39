package service

import (
	"context"
	"errors"
	bookingserrors "staybook/internal/bookings/errors"
	"staybook/pkg/auth"
	apperrors "staybook/pkg/errors"
	"staybook/pkg/model"
	"time"
)

func (s *bookingService) Confirm(ctx context.Context, caller *auth.Identity, id string) (*model.Booking, error) {
	return s.transition(ctx, caller, id, model.BookingStatusConfirmed)
}

func (s *bookingService) Cancel(ctx context.Context, caller *auth.Identity, id string) (*model.Booking, error) {
	return s.transition(ctx, caller, id, model.BookingStatusCancelled)
}

func (s *bookingService) Complete(ctx context.Context, caller *auth.Identity, id string) (*model.Booking, error) {
	return s.transition(ctx, caller, id, model.BookingStatusCompleted)
}

func (s *bookingService) CompleteElapsed(ctx context.Context, now time.Time, limit int) (int, error) {
	elapsed, err := s.repo.FindConfirmedEndedBefore(ctx, now, limit)
	if err != nil {
		return 0, apperrors.Internal("Failed to find elapsed bookings", err)
	}

	completed := 0
	for _, booking := range elapsed {
		if ctx.Err() != nil {
			return completed, ctx.Err()
		}
		if _, err := s.applyTransition(ctx, booking, model.BookingStatusCompleted); err != nil {
			if apperrors.HasCode(err, apperrors.CodeInvalidTransition) || apperrors.HasCode(err, apperrors.CodeNotFound) {
				s.cfg.Log.Debug("Booking changed before completion", "id", booking.ID, "error", err)
				continue
			}
			return completed, err
		}
		completed++
	}

	if completed > 0 {
		s.cfg.Log.Info("Completed elapsed bookings", "count", completed, "before", now)
	}
	return completed, nil
}

func (s *bookingService) transition(ctx context.Context, caller *auth.Identity, id string, to model.BookingStatus) (*model.Booking, error) {
	if caller == nil {
		return nil, apperrors.Unauthorized("Authentication required")
	}

	booking, err := s.findBooking(ctx, id)
	if err != nil {
		return nil, err
	}

	if !canTransition(caller, booking, to) {
		return nil, apperrors.Forbidden("Not allowed to change this booking to " + to.String())
	}

	updated, err := s.applyTransition(ctx, booking, to)
	if err != nil {
		return nil, err
	}

	s.cfg.Log.Info("Booking status changed",
		"id", updated.ID,
		"from", booking.Status,
		"to", updated.Status,
		"caller_id", caller.ID,
	)
	return updated, nil
}

// applyTransition moves booking from its loaded status to next with a
// compare-and-set update and records the event in the same transaction.
func (s *bookingService) applyTransition(ctx context.Context, booking *model.Booking, next model.BookingStatus) (*model.Booking, error) {
	from := booking.Status
	if !from.CanTransitionTo(next) {
		return nil, invalidTransition(from, next)
	}

	s.attachSummaries(ctx, booking)

	var updated *model.Booking
	err := s.repo.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		result, err := s.repo.TransitionStatus(txCtx, booking.ID, from, next)
		if err != nil {
			if errors.Is(err, bookingserrors.ErrStatusMismatch) {
				return s.explainMismatch(txCtx, booking.ID, next)
			}
			return apperrors.Internal("Failed to update booking status", err)
		}

		result.Property = booking.Property
		result.Customer = booking.Customer
		result.Owner = booking.Owner
		if err := s.enqueueEvent(txCtx, model.BookingEventType(next), result); err != nil {
			return err
		}
		updated = result
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// explainMismatch reloads a booking whose conditional update matched nothing
// to tell a vanished booking apart from a concurrent status change.
func (s *bookingService) explainMismatch(ctx context.Context, id string, next model.BookingStatus) error {
	current, err := s.findBooking(ctx, id)
	if err != nil {
		return err
	}
	return invalidTransition(current.Status, next)
}

// invalidTransition tells a finished booking apart from a move that is only
// out of order.
func invalidTransition(from, next model.BookingStatus) *apperrors.AppError {
	err := apperrors.InvalidTransition("Booking", from.String(), next.String())
	if from.IsTerminal() {
		err.Message = "Booking is already " + from.String() + " and can no longer change"
		err.Details["terminal"] = true
	}
	return err
}

func canTransition(caller *auth.Identity, booking *model.Booking, to model.BookingStatus) bool {
	if caller.IsAdmin() {
		return true
	}
	owningHost := caller.IsHost() && caller.ID == booking.OwnerID
	switch to {
	case model.BookingStatusConfirmed, model.BookingStatusCompleted:
		return owningHost
	case model.BookingStatusCancelled:
		return owningHost || (caller.IsCustomer() && caller.ID == booking.CustomerID)
	}
	return false
}
