package patient

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound         = errors.New("patient not found")
	ErrDuplicate        = errors.New("patient with this email already exists")
	ErrNoFamilyGroup    = errors.New("no family group associated with this member")
	ErrDoctorNotFound   = errors.New("doctor not found")
	ErrIncompleteFamily = errors.New("family registration is incomplete")
)

type Patient struct {
	ID               uuid.UUID  `json:"id"`
	FirstName        string     `json:"firstName"`
	LastName         string     `json:"lastName"`
	Gender           string     `json:"gender"`
	Age              *int       `json:"age"`
	PhoneNumber      string     `json:"phoneNumber"`
	Email            string     `json:"email"`
	Address          string     `json:"address"`
	FamilyGroupID    *uuid.UUID `json:"familyGroupId"`
	AssignedDoctorID *uuid.UUID `json:"assignedDoctorId"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

type RegisterRequest struct {
	FirstName   string `json:"firstName" validate:"notblank"`
	LastName    string `json:"lastName" validate:"notblank"`
	Gender      string `json:"gender" validate:"notblank"`
	Age         int    `json:"age" validate:"required,min=1,max=130"`
	PhoneNumber string `json:"phoneNumber" validate:"notblank"`
	Email       string `json:"email" validate:"required,email"`
	Address     string `json:"address"`
}

// UpdateRequest replaces the demographic fields of a patient.
type UpdateRequest RegisterRequest

// FamilyMember is one entry of a family registration. Members missing a
// name or email are skipped rather than rejected.
type FamilyMember struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Gender      string `json:"gender"`
	Age         *int   `json:"age"`
	PhoneNumber string `json:"phoneNumber"`
	Email       string `json:"email"`
	Address     string `json:"address"`
}

func (m FamilyMember) complete() bool {
	return !blank(m.FirstName) && !blank(m.LastName) && !blank(m.Email)
}

type FamilyRequest struct {
	PrimaryMember *FamilyMember  `json:"primaryMember"`
	FamilyMembers []FamilyMember `json:"familyMembers"`
}

type SkippedMember struct {
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

type FamilyResult struct {
	FamilyGroupID uuid.UUID       `json:"familyGroupId"`
	Registered    []*Patient      `json:"registered"`
	Skipped       []SkippedMember `json:"skipped"`
}

type FamilyGroup struct {
	PrimaryMember *Patient   `json:"primaryMember"`
	FamilyMembers []*Patient `json:"familyMembers"`
}

// UpdateMemberRequest edits a family member's contact details; every field
// is required.
type UpdateMemberRequest struct {
	FirstName string `json:"firstName" validate:"notblank"`
	LastName  string `json:"lastName" validate:"notblank"`
	Phone     string `json:"phone" validate:"notblank"`
	Email     string `json:"email" validate:"required,email"`
	Address   string `json:"address" validate:"notblank"`
}

// AssignDoctorRequest sets or, with a null doctorId, clears the assignment.
type AssignDoctorRequest struct {
	DoctorID *uuid.UUID `json:"doctorId"`
}
