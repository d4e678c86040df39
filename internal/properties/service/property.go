package service

import (
	"context"
	"errors"
	propertieserrors "staybook/internal/properties/errors"
	"staybook/internal/properties/repository"
	"staybook/pkg/config"
	apperrors "staybook/pkg/errors"
	"staybook/pkg/model"
	"staybook/pkg/sanitizer"
	"sync"
)

type PropertyService interface {
	ListWithRevenue(ctx context.Context, limit int, offset int64) ([]*model.PropertyWithRevenue, int64, error)
	SetApproval(ctx context.Context, id string, isApproved bool) (*model.Property, error)
}

type propertyService struct {
	repo repository.PropertyRepository
	cfg  *config.Config
}

func NewPropertyService(repo repository.PropertyRepository, cfg *config.Config) PropertyService {
	return &propertyService{
		repo: repo,
		cfg:  cfg,
	}
}

// ListWithRevenue returns a page of properties, each with the sum of its
// confirmed and completed booking amounts.
func (s *propertyService) ListWithRevenue(ctx context.Context, limit int, offset int64) ([]*model.PropertyWithRevenue, int64, error) {
	var count int64
	var properties []*model.Property
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.repo.Count(ctx)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count properties", "error", errCount)
			errCount = apperrors.Internal("Failed to count properties", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		properties, errFind = s.repo.FindAll(ctx, limit, offset)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list properties", "error", errFind)
			errFind = apperrors.Internal("Failed to retrieve properties", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}

	ids := make([]string, 0, len(properties))
	for _, p := range properties {
		ids = append(ids, p.ID)
	}

	revenue, err := s.repo.RevenueByProperty(ctx, ids)
	if err != nil {
		s.cfg.Log.Error("Failed to aggregate property revenue", "error", err)
		return nil, 0, apperrors.Internal("Failed to aggregate property revenue", err)
	}

	result := make([]*model.PropertyWithRevenue, 0, len(properties))
	for _, p := range properties {
		result = append(result, &model.PropertyWithRevenue{
			Property:     *p,
			TotalRevenue: revenue[p.ID],
		})
	}

	return result, count, nil
}

func (s *propertyService) SetApproval(ctx context.Context, id string, isApproved bool) (*model.Property, error) {
	id = sanitizer.SanitizeID(id)
	if id == "" {
		return nil, apperrors.InvalidInput("Property ID cannot be empty")
	}

	property, err := s.repo.SetApproval(ctx, id, isApproved)
	if err != nil {
		if errors.Is(err, propertieserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Property", id)
		}
		if errors.Is(err, propertieserrors.ErrInvalidID) {
			return nil, apperrors.InvalidInput("Invalid property ID format")
		}
		s.cfg.Log.Error("Failed to update property approval", "id", id, "error", err)
		return nil, apperrors.Internal("Failed to update property approval", err)
	}

	s.cfg.Log.Info("Property approval updated", "id", id, "is_approved", isApproved)
	return property, nil
}
