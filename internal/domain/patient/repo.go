package patient

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByEmail(ctx context.Context, email string) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
	ListByFamilyGroup(ctx context.Context, groupID uuid.UUID) ([]*Patient, error)
	CreateFamilyGroup(ctx context.Context) (uuid.UUID, error)
	SetFamilyGroup(ctx context.Context, patientID, groupID uuid.UUID) error
	AssignDoctor(ctx context.Context, patientID uuid.UUID, doctorID *uuid.UUID) error
}
