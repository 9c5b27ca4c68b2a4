package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medrec/medrec/internal/domain/record"
	"github.com/medrec/medrec/internal/platform/llm"
)

const (
	// ContextRecordLimit caps how many records feed the chat context.
	ContextRecordLimit = 10
	// contextSnippetLen bounds each record's text contribution so the
	// downstream prompt stays bounded in size.
	contextSnippetLen = 500
)

var ErrEmptyMessage = errors.New("user id and message are required")

// RecordSource provides the recent records the context is assembled from.
type RecordSource interface {
	RecentByPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]*record.Record, error)
}

type Service struct {
	messages MessageRepository
	analyses AnalysisRepository
	records  RecordSource
	analyst  llm.Analyst
	log      zerolog.Logger
}

func NewService(messages MessageRepository, analyses AnalysisRepository, records RecordSource, analyst llm.Analyst, log zerolog.Logger) *Service {
	return &Service{
		messages: messages,
		analyses: analyses,
		records:  records,
		analyst:  analyst,
		log:      log,
	}
}

// BuildContext renders a patient's most recent records, newest check time
// first, into the text block fed to the assistant. No records yields an
// empty string, which callers treat as "no relevant history".
func (s *Service) BuildContext(ctx context.Context, patientID uuid.UUID, limit int) (string, error) {
	if limit <= 0 {
		limit = ContextRecordLimit
	}
	records, err := s.records.RecentByPatient(ctx, patientID, limit)
	if err != nil {
		return "", fmt.Errorf("load records for context: %w", err)
	}
	if len(records) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("Relevant medical records:\n")
	for i, rec := range records {
		fmt.Fprintf(&b, "\n%d. [%s] %s\n", i+1, rec.RecordType, rec.CheckTime.Format("2006-01-02"))
		if rec.ExtractedText != "" {
			b.WriteString("Content: " + snippet(rec.ExtractedText) + "\n")
		}
	}
	return b.String(), nil
}

func snippet(text string) string {
	runes := []rune(text)
	if len(runes) <= contextSnippetLen {
		return text
	}
	return string(runes[:contextSnippetLen]) + "..."
}

// Send assembles the patient context, asks the assistant, and persists the
// exchange as one history row.
func (s *Service) Send(ctx context.Context, userID uuid.UUID, patientID *uuid.UUID, message string) (*Message, error) {
	if userID == uuid.Nil || message == "" {
		return nil, ErrEmptyMessage
	}

	contextText := ""
	if patientID != nil {
		var err error
		contextText, err = s.BuildContext(ctx, *patientID, ContextRecordLimit)
		if err != nil {
			return nil, err
		}
	}

	reply, err := s.analyst.Ask(ctx, message, contextText)
	if err != nil {
		s.log.Error().Err(err).Msg("llm call failed")
		return nil, err
	}

	msg := &Message{
		UserID:      userID,
		PatientID:   patientID,
		UserMessage: message,
		AIReply:     reply,
		MessageType: "text",
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("save chat history: %w", err)
	}
	return msg, nil
}

// History returns a page of a user's chat history in ascending time order.
func (s *Service) History(ctx context.Context, userID uuid.UUID, patientID *uuid.UUID, limit, offset int) ([]*Message, int, error) {
	items, total, err := s.messages.ListByUser(ctx, userID, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	// The repository pages newest-first; present each page oldest-first.
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items, total, nil
}

// ClearHistory removes a user's history, optionally scoped to one patient.
func (s *Service) ClearHistory(ctx context.Context, userID uuid.UUID, patientID *uuid.UUID) (int64, error) {
	return s.messages.DeleteByUser(ctx, userID, patientID)
}

// AnalyzeAbnormal asks the assistant for the abnormal findings across the
// patient's recent records and persists the result.
func (s *Service) AnalyzeAbnormal(ctx context.Context, patientID uuid.UUID) (*AnalysisResult, error) {
	const message = "Please list all abnormal findings in these records, ordered by severity."
	return s.analyze(ctx, patientID, AnalysisAbnormal, message)
}

// AnalyzeTrend asks the assistant how the named indicator develops across the
// patient's recent records and persists the result.
func (s *Service) AnalyzeTrend(ctx context.Context, patientID uuid.UUID, indicator string) (*AnalysisResult, error) {
	if indicator == "" {
		return nil, errors.New("indicator name is required")
	}
	message := fmt.Sprintf(
		"Please analyze the trend of %s, including value changes, rate of change and possible causes.",
		indicator)
	return s.analyze(ctx, patientID, AnalysisTrend, message)
}

func (s *Service) analyze(ctx context.Context, patientID uuid.UUID, analysisType, message string) (*AnalysisResult, error) {
	records, err := s.records.RecentByPatient(ctx, patientID, ContextRecordLimit)
	if err != nil {
		return nil, fmt.Errorf("load records for analysis: %w", err)
	}

	reply, err := s.analyst.Ask(ctx, message, formatRecordsForAnalysis(records))
	if err != nil {
		s.log.Error().Err(err).Str("analysis_type", analysisType).Msg("llm call failed")
		return nil, err
	}

	recordIDs := make([]uuid.UUID, 0, len(records))
	for _, rec := range records {
		recordIDs = append(recordIDs, rec.ID)
	}

	result := &AnalysisResult{
		PatientID:       patientID,
		RecordIDs:       recordIDs,
		AnalysisType:    analysisType,
		AnalysisContent: reply,
	}
	if err := s.analyses.Create(ctx, result); err != nil {
		return nil, fmt.Errorf("save analysis result: %w", err)
	}
	return result, nil
}

// AnalysisHistory returns a page of a patient's stored analyses, newest first.
func (s *Service) AnalysisHistory(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*AnalysisResult, int, error) {
	return s.analyses.ListByPatient(ctx, patientID, limit, offset)
}

func formatRecordsForAnalysis(records []*record.Record) string {
	parts := make([]string, 0, len(records))
	for i, rec := range records {
		parts = append(parts, fmt.Sprintf("\nRecord %d:\nCheck time: %s\nType: %s\nContent: %s\n",
			i+1, rec.CheckTime.Format("2006-01-02"), rec.RecordType, rec.ExtractedText))
	}
	return strings.Join(parts, "\n---\n")
}
