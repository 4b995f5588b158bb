package patients

import (
	"context"

	"citas-backend/internal/models"
)

type CreateRequest struct {
	FullName string `json:"fullName" validate:"required,min=2,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"required,phone"`
	Notes    string `json:"notes" validate:"omitempty,max=2000"`
}

type UpdateRequest struct {
	FullName string  `json:"fullName" validate:"omitempty,min=2,max=120"`
	Phone    string  `json:"phone" validate:"omitempty,phone"`
	Notes    *string `json:"notes" validate:"omitempty,max=2000"`
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateOrFetch keys patients by email. Booking from the portal always
// passes contact data; an existing patient gets their name and phone
// refreshed rather than a duplicate record.
func (s *Service) CreateOrFetch(ctx context.Context, req CreateRequest) (models.Patient, bool, error) {
	existing, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		return models.Patient{}, false, err
	}
	if existing != nil {
		updated, err := s.repo.Update(ctx, existing.ID, UpdateRequest{
			FullName: req.FullName,
			Phone:    req.Phone,
		})
		if err != nil {
			return models.Patient{}, false, err
		}
		if updated == nil {
			return *existing, false, nil
		}
		return *updated, false, nil
	}

	created, err := s.repo.Create(ctx, models.Patient{
		FullName: req.FullName,
		Email:    req.Email,
		Phone:    req.Phone,
		Notes:    req.Notes,
	})
	if err != nil {
		return models.Patient{}, false, err
	}
	return created, true, nil
}

func (s *Service) FindByID(ctx context.Context, id string) (*models.Patient, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (*models.Patient, error) {
	return s.repo.Update(ctx, id, req)
}

func (s *Service) List(ctx context.Context, search string, limit, offset int64) ([]models.Patient, error) {
	return s.repo.List(ctx, search, limit, offset)
}
