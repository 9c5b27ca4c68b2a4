package chat

import (
	"time"

	"github.com/google/uuid"
)

// Message maps to the chat_histories table: one user message and the
// assistant's reply, optionally tied to a patient.
type Message struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	UserID      uuid.UUID  `db:"user_id" json:"userId"`
	PatientID   *uuid.UUID `db:"patient_id" json:"patientId,omitempty"`
	UserMessage string     `db:"user_message" json:"userMessage"`
	AIReply     string     `db:"ai_reply" json:"aiReply"`
	MessageType string     `db:"message_type" json:"messageType"`
	Timestamp   time.Time  `db:"timestamp" json:"timestamp"`
}

// Analysis types stored on analysis_results rows.
const (
	AnalysisAbnormal = "abnormal"
	AnalysisTrend    = "trend"
)

// AnalysisResult maps to the analysis_results table: a persisted AI analysis
// over a set of a patient's records.
type AnalysisResult struct {
	ID              uuid.UUID   `db:"id" json:"id"`
	PatientID       uuid.UUID   `db:"patient_id" json:"patientId"`
	RecordIDs       []uuid.UUID `db:"record_ids" json:"medicalRecordIds"`
	AnalysisType    string      `db:"analysis_type" json:"analysisType"`
	AnalysisContent string      `db:"analysis_content" json:"analysisContent"`
	AnalysisTime    time.Time   `db:"analysis_time" json:"analysisTime"`
}
