package patient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var ErrInvalidInput = errors.New("invalid input")

type Service struct {
	repo Repository
	log  zerolog.Logger
}

func NewService(repo Repository, log zerolog.Logger) *Service {
	return &Service{repo: repo, log: log}
}

type CreateRequest struct {
	UserID      uuid.UUID
	PatientName string
	IDNumber    *string
	BirthDate   string
	Gender      string
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*Patient, error) {
	if req.UserID == uuid.Nil || req.PatientName == "" || req.BirthDate == "" || req.Gender == "" {
		return nil, fmt.Errorf("%w: missing required fields: userId, patientName, birthDate, gender", ErrInvalidInput)
	}
	birth, err := parseBirthDate(req.BirthDate)
	if err != nil {
		return nil, err
	}

	p := &Patient{
		UserID:      req.UserID,
		PatientName: req.PatientName,
		IDNumber:    req.IDNumber,
		BirthDate:   &birth,
		Gender:      &req.Gender,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create patient: %w", err)
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID) ([]*Patient, error) {
	return s.repo.ListByUser(ctx, userID)
}

type UpdateRequest struct {
	PatientName *string
	IDNumber    *string
	BirthDate   *string
	Gender      *string
}

// Update applies only the fields present in the request.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req UpdateRequest) (*Patient, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.PatientName != nil {
		p.PatientName = *req.PatientName
	}
	if req.IDNumber != nil {
		p.IDNumber = req.IDNumber
	}
	if req.BirthDate != nil {
		birth, err := parseBirthDate(*req.BirthDate)
		if err != nil {
			return nil, err
		}
		p.BirthDate = &birth
	}
	if req.Gender != nil {
		p.Gender = req.Gender
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

// Owner reports whether the patient belongs to the given user, loading the
// patient row on the way so handlers can reuse it.
func (s *Service) Owner(ctx context.Context, patientID, userID uuid.UUID) (*Patient, bool, error) {
	p, err := s.repo.GetByID(ctx, patientID)
	if err != nil {
		return nil, false, err
	}
	return p, p.UserID == userID, nil
}

func parseBirthDate(v string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", v, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid birthDate, expected YYYY-MM-DD", ErrInvalidInput)
	}
	return t, nil
}
