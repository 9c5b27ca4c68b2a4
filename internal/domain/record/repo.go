package record

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, r *Record) error
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*Record, error)
	// ListByPatient returns a page of a patient's records ordered by check
	// time descending, plus the total count.
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Record, int, error)
	// RecentByPatient returns up to limit records ordered by check time
	// descending.
	RecentByPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]*Record, error)
	Update(ctx context.Context, r *Record) error
	Delete(ctx context.Context, id uuid.UUID) error
	// DeleteByIDs removes all listed records in one statement and reports the
	// affected row count.
	DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error)
}
