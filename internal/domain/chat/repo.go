package chat

import (
	"context"

	"github.com/google/uuid"
)

type MessageRepository interface {
	Create(ctx context.Context, m *Message) error
	// ListByUser returns a page of messages newest-first, plus the total
	// count. A non-nil patientID narrows the history to one patient.
	ListByUser(ctx context.Context, userID uuid.UUID, patientID *uuid.UUID, limit, offset int) ([]*Message, int, error)
	// DeleteByUser removes a user's history, optionally for one patient, and
	// reports how many rows went away.
	DeleteByUser(ctx context.Context, userID uuid.UUID, patientID *uuid.UUID) (int64, error)
}

type AnalysisRepository interface {
	Create(ctx context.Context, a *AnalysisResult) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*AnalysisResult, int, error)
}
