package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vekaria04/hospital-management-system/internal/platform/db"
	"github.com/vekaria04/hospital-management-system/internal/platform/events"
)

type Service struct {
	repo   Repository
	txdb   db.Beginner
	events events.Publisher
}

// NewService wires the repository. txdb may be nil, in which case multi-step
// operations run without a surrounding transaction.
func NewService(repo Repository, txdb db.Beginner, pub events.Publisher) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Service{repo: repo, txdb: txdb, events: pub}
}

func (s *Service) withTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.txdb == nil {
		return fn(ctx)
	}
	return db.WithTx(ctx, s.txdb, fn)
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Patient, error) {
	age := req.Age
	p := &Patient{
		FirstName:   strings.TrimSpace(req.FirstName),
		LastName:    strings.TrimSpace(req.LastName),
		Gender:      strings.TrimSpace(req.Gender),
		Age:         &age,
		PhoneNumber: strings.TrimSpace(req.PhoneNumber),
		Email:       normalizeEmail(req.Email),
		Address:     strings.TrimSpace(req.Address),
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	s.publishRegistered(ctx, p)
	return p, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

// Returning looks up a patient by email for the returning-patient flow.
func (s *Service) Returning(ctx context.Context, email string) (*Patient, error) {
	return s.repo.GetByEmail(ctx, normalizeEmail(email))
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, req UpdateRequest) (*Patient, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	age := req.Age
	p.FirstName = strings.TrimSpace(req.FirstName)
	p.LastName = strings.TrimSpace(req.LastName)
	p.Gender = strings.TrimSpace(req.Gender)
	p.Age = &age
	p.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	p.Email = normalizeEmail(req.Email)
	p.Address = strings.TrimSpace(req.Address)
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// RegisterFamily registers or reuses the primary member, makes sure they
// belong to a family group, and adds every complete, not yet registered
// member to that group. Incomplete and duplicate members are reported as
// skipped. All writes share one transaction.
func (s *Service) RegisterFamily(ctx context.Context, req FamilyRequest) (*FamilyResult, error) {
	if req.PrimaryMember == nil || !req.PrimaryMember.complete() {
		return nil, fmt.Errorf("%w: primary member details are incomplete", ErrIncompleteFamily)
	}
	if len(req.FamilyMembers) == 0 {
		return nil, fmt.Errorf("%w: at least one family member must be added", ErrIncompleteFamily)
	}

	result := &FamilyResult{Registered: []*Patient{}, Skipped: []SkippedMember{}}
	err := s.withTx(ctx, func(ctx context.Context) error {
		result.Registered = result.Registered[:0]
		result.Skipped = result.Skipped[:0]

		groupID, created, err := s.ensurePrimary(ctx, *req.PrimaryMember)
		if err != nil {
			return err
		}
		result.FamilyGroupID = groupID
		if created != nil {
			result.Registered = append(result.Registered, created)
		}

		seen := map[string]bool{normalizeEmail(req.PrimaryMember.Email): true}
		for _, m := range req.FamilyMembers {
			email := normalizeEmail(m.Email)
			if !m.complete() {
				result.Skipped = append(result.Skipped, SkippedMember{Email: email, Reason: "incomplete"})
				continue
			}
			if seen[email] {
				result.Skipped = append(result.Skipped, SkippedMember{Email: email, Reason: "duplicate email"})
				continue
			}
			seen[email] = true

			_, err := s.repo.GetByEmail(ctx, email)
			if err == nil {
				result.Skipped = append(result.Skipped, SkippedMember{Email: email, Reason: "already registered"})
				continue
			}
			if !errors.Is(err, ErrNotFound) {
				return err
			}

			p := fromMember(m, &groupID)
			if err := s.repo.Create(ctx, p); err != nil {
				return err
			}
			result.Registered = append(result.Registered, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, p := range result.Registered {
		s.publishRegistered(ctx, p)
	}
	return result, nil
}

// ensurePrimary returns the primary member's family group, creating the
// member and/or the group as needed. The newly created patient, if any, is
// returned as well.
func (s *Service) ensurePrimary(ctx context.Context, m FamilyMember) (uuid.UUID, *Patient, error) {
	existing, err := s.repo.GetByEmail(ctx, normalizeEmail(m.Email))
	switch {
	case err == nil:
		if existing.FamilyGroupID != nil {
			return *existing.FamilyGroupID, nil, nil
		}
		groupID, err := s.repo.CreateFamilyGroup(ctx)
		if err != nil {
			return uuid.Nil, nil, fmt.Errorf("create family group: %w", err)
		}
		if err := s.repo.SetFamilyGroup(ctx, existing.ID, groupID); err != nil {
			return uuid.Nil, nil, err
		}
		return groupID, nil, nil
	case errors.Is(err, ErrNotFound):
		groupID, err := s.repo.CreateFamilyGroup(ctx)
		if err != nil {
			return uuid.Nil, nil, fmt.Errorf("create family group: %w", err)
		}
		p := fromMember(m, &groupID)
		if err := s.repo.Create(ctx, p); err != nil {
			return uuid.Nil, nil, err
		}
		return groupID, p, nil
	default:
		return uuid.Nil, nil, err
	}
}

// FamilyGroup returns the member registered under email together with every
// member of their group, the member included.
func (s *Service) FamilyGroup(ctx context.Context, email string) (*FamilyGroup, error) {
	primary, err := s.repo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if primary.FamilyGroupID == nil {
		return nil, ErrNoFamilyGroup
	}
	members, err := s.repo.ListByFamilyGroup(ctx, *primary.FamilyGroupID)
	if err != nil {
		return nil, err
	}
	return &FamilyGroup{PrimaryMember: primary, FamilyMembers: members}, nil
}

func (s *Service) UpdateMember(ctx context.Context, id uuid.UUID, req UpdateMemberRequest) (*Patient, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p.FirstName = strings.TrimSpace(req.FirstName)
	p.LastName = strings.TrimSpace(req.LastName)
	p.PhoneNumber = strings.TrimSpace(req.Phone)
	p.Email = normalizeEmail(req.Email)
	p.Address = strings.TrimSpace(req.Address)
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// RemoveMember deletes the patient record and returns it.
func (s *Service) RemoveMember(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) AssignDoctor(ctx context.Context, id uuid.UUID, doctorID *uuid.UUID) (*Patient, error) {
	if err := s.repo.AssignDoctor(ctx, id, doctorID); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) publishRegistered(ctx context.Context, p *Patient) {
	data := map[string]interface{}{
		"patientId":     p.ID,
		"email":         p.Email,
		"familyGroupId": p.FamilyGroupID,
	}
	if err := s.events.Publish(ctx, events.PatientRegistered, data); err != nil {
		log.Warn().Err(err).Str("patient_id", p.ID.String()).Msg("patient.registered not published")
	}
}

func fromMember(m FamilyMember, groupID *uuid.UUID) *Patient {
	return &Patient{
		FirstName:     strings.TrimSpace(m.FirstName),
		LastName:      strings.TrimSpace(m.LastName),
		Gender:        strings.TrimSpace(m.Gender),
		Age:           m.Age,
		PhoneNumber:   strings.TrimSpace(m.PhoneNumber),
		Email:         normalizeEmail(m.Email),
		Address:       strings.TrimSpace(m.Address),
		FamilyGroupID: groupID,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
