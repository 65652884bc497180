package doctor

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type Service struct {
	repo Repository
	// cost is lowered in tests.
	cost int
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, cost: bcrypt.DefaultCost}
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*Doctor, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	d := &Doctor{
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Email:        normalizeEmail(req.Email),
		PhoneNumber:  strings.TrimSpace(req.PhoneNumber),
		Specialty:    strings.TrimSpace(req.Specialty),
		PasswordHash: string(hash),
	}
	if err := s.repo.Create(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, req UpdateRequest) (*Doctor, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	d.FirstName = strings.TrimSpace(req.FirstName)
	d.LastName = strings.TrimSpace(req.LastName)
	d.Email = normalizeEmail(req.Email)
	d.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	d.Specialty = strings.TrimSpace(req.Specialty)
	if err := s.repo.Update(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// Delete removes the doctor. Assigned patients keep their records with the
// assignment cleared.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) List(ctx context.Context) ([]*Doctor, error) {
	return s.repo.List(ctx)
}

func (s *Service) Patients(ctx context.Context, doctorID uuid.UUID) ([]AssignedPatient, error) {
	if _, err := s.repo.GetByID(ctx, doctorID); err != nil {
		return nil, err
	}
	return s.repo.ListPatients(ctx, doctorID)
}

// CheckPassword reports whether password matches the doctor's stored hash.
func (d *Doctor) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(d.PasswordHash), []byte(password)) == nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
