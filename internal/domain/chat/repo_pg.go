package chat

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medrec/medrec/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type messageRepoPG struct{ pool *pgxpool.Pool }

func NewMessageRepoPG(pool *pgxpool.Pool) MessageRepository {
	return &messageRepoPG{pool: pool}
}

func (r *messageRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const messageCols = `id, user_id, patient_id, user_message, ai_reply, message_type, timestamp`

func (r *messageRepoPG) Create(ctx context.Context, m *Message) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.MessageType == "" {
		m.MessageType = "text"
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO chat_histories (id, user_id, patient_id, user_message, ai_reply, message_type)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING timestamp`,
		m.ID, m.UserID, m.PatientID, m.UserMessage, m.AIReply, m.MessageType).
		Scan(&m.Timestamp)
}

func (r *messageRepoPG) ListByUser(ctx context.Context, userID uuid.UUID, patientID *uuid.UUID, limit, offset int) ([]*Message, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM chat_histories
		WHERE user_id = $1 AND ($2::uuid IS NULL OR patient_id = $2)`,
		userID, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+messageCols+` FROM chat_histories
		WHERE user_id = $1 AND ($2::uuid IS NULL OR patient_id = $2)
		ORDER BY timestamp DESC LIMIT $3 OFFSET $4`,
		userID, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.UserID, &m.PatientID, &m.UserMessage, &m.AIReply,
			&m.MessageType, &m.Timestamp); err != nil {
			return nil, 0, err
		}
		items = append(items, &m)
	}
	return items, total, rows.Err()
}

func (r *messageRepoPG) DeleteByUser(ctx context.Context, userID uuid.UUID, patientID *uuid.UUID) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		DELETE FROM chat_histories
		WHERE user_id = $1 AND ($2::uuid IS NULL OR patient_id = $2)`,
		userID, patientID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type analysisRepoPG struct{ pool *pgxpool.Pool }

func NewAnalysisRepoPG(pool *pgxpool.Pool) AnalysisRepository {
	return &analysisRepoPG{pool: pool}
}

func (r *analysisRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *analysisRepoPG) Create(ctx context.Context, a *AnalysisResult) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO analysis_results (id, patient_id, record_ids, analysis_type, analysis_content)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING analysis_time`,
		a.ID, a.PatientID, a.RecordIDs, a.AnalysisType, a.AnalysisContent).
		Scan(&a.AnalysisTime)
}

func (r *analysisRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*AnalysisResult, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM analysis_results WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, patient_id, record_ids, analysis_type, analysis_content, analysis_time
		FROM analysis_results WHERE patient_id = $1
		ORDER BY analysis_time DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*AnalysisResult
	for rows.Next() {
		var a AnalysisResult
		if err := rows.Scan(&a.ID, &a.PatientID, &a.RecordIDs, &a.AnalysisType,
			&a.AnalysisContent, &a.AnalysisTime); err != nil {
			return nil, 0, err
		}
		items = append(items, &a)
	}
	return items, total, rows.Err()
}
