package record

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medrec/medrec/internal/platform/filestore"
	"github.com/medrec/medrec/internal/platform/ocr"
)

// ErrInvalidBatch rejects a malformed batch request before any work is done.
var ErrInvalidBatch = errors.New("invalid batch request")

// Service coordinates the file store, the OCR provider and the record table.
// The ordering invariants live here: a blob is written before its record row
// on ingestion, and deleted before the row on removal, so a record never
// points at a blob that was never written.
type Service struct {
	repo      Repository
	files     filestore.Store
	extractor ocr.Extractor
	uploadDir string
	log       zerolog.Logger
}

func NewService(repo Repository, files filestore.Store, extractor ocr.Extractor, uploadDir string, log zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		files:     files,
		extractor: extractor,
		uploadDir: uploadDir,
		log:       log,
	}
}

// UploadFile is one file submitted in an ingestion batch.
type UploadFile struct {
	Name string
	Data []byte
}

// IngestRequest is the batch ingestion contract.
type IngestRequest struct {
	UserID     string
	PatientID  uuid.UUID
	RecordType string
	CheckTime  string // YYYY-MM-DD, empty for "now"
	Remarks    string
	Files      []UploadFile
}

// ItemOutcome is the per-file result of a batch ingestion. The batch never
// fails atomically: every submitted file gets exactly one outcome.
type ItemOutcome struct {
	Success          bool       `json:"success"`
	FileName         string     `json:"fileName"`
	Message          string     `json:"message,omitempty"`
	RecordID         *uuid.UUID `json:"recordId,omitempty"`
	OriginalFileName string     `json:"originalFileName,omitempty"`
	FilePath         string     `json:"filePath,omitempty"`
	ExtractedText    string     `json:"extractedText,omitempty"`
	UploadedAt       *time.Time `json:"uploadedAt,omitempty"`
}

// DeleteFailure pairs a record id with the reason its blob deletion failed.
type DeleteFailure struct {
	ID     uuid.UUID `json:"id"`
	Reason string    `json:"reason"`
}

// BatchDeleteResult reports a partial-failure-aware batch deletion.
type BatchDeleteResult struct {
	DeletedCount int64           `json:"deletedCount"`
	Failures     []DeleteFailure `json:"failures"`
}

// Ingest validates the batch, then processes files independently in input
// order: classify, upload the blob, attempt extraction (non-fatal), persist
// the record row. A structural problem rejects the whole batch with no side
// effects; any later failure is scoped to its item.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) ([]ItemOutcome, error) {
	if req.UserID == "" || req.PatientID == uuid.Nil || len(req.Files) == 0 {
		return nil, fmt.Errorf("%w: missing required fields: userId, patientId, file", ErrInvalidBatch)
	}
	if req.RecordType == "" {
		return nil, fmt.Errorf("%w: missing field: recordType", ErrInvalidBatch)
	}
	checkTime, err := NormalizeCheckDate(req.CheckTime)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidBatch, err)
	}

	saveDir := fmt.Sprintf("%s/%s/%s", s.uploadDir, req.UserID, req.PatientID)

	outcomes := make([]ItemOutcome, 0, len(req.Files))
	for _, f := range req.Files {
		outcomes = append(outcomes, s.ingestOne(ctx, req, f, checkTime, saveDir))
	}
	return outcomes, nil
}

func (s *Service) ingestOne(ctx context.Context, req IngestRequest, f UploadFile, checkTime time.Time, saveDir string) ItemOutcome {
	fileType, err := ClassifyFile(f.Name)
	if err != nil {
		return ItemOutcome{Success: false, FileName: f.Name, Message: err.Error()}
	}

	// Server-assigned name: date prefix for humans, uuid for collision
	// resistance across concurrent uploads.
	savedName := time.Now().Format("2006-01-02") + "_" + uuid.New().String() + filepath.Ext(f.Name)

	stored, err := s.files.Put(ctx, f.Data, savedName, saveDir)
	if err != nil {
		s.log.Error().Err(err).Str("file", f.Name).Msg("file store upload failed")
		return ItemOutcome{Success: false, FileName: f.Name, Message: fmt.Sprintf("saving file failed: %v", err)}
	}

	extracted, err := s.extractor.Extract(ctx, f.Data, ocr.FileKind(fileType), f.Name)
	if err != nil {
		// Best-effort enrichment: the failure is encoded as data, never
		// dropped and never fatal for the item.
		s.log.Warn().Err(err).Str("file", f.Name).Msg("text extraction failed")
		extracted = ExtractionFailedPrefix + err.Error()
	}

	originalName := f.Name
	rec := &Record{
		PatientID:        req.PatientID,
		RecordType:       req.RecordType,
		CheckTime:        checkTime,
		FileName:         savedName,
		OriginalFileName: &originalName,
		FilePath:         stored.URL,
		ExtractedText:    extracted,
		FileType:         fileType,
		Remarks:          req.Remarks,
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		s.log.Error().Err(err).Str("file", f.Name).Msg("record insert failed")
		return ItemOutcome{Success: false, FileName: f.Name, Message: fmt.Sprintf("saving record failed: %v", err)}
	}

	s.log.Info().Str("record_id", rec.ID.String()).Str("file", savedName).Msg("record ingested")

	id := rec.ID
	uploadedAt := rec.UploadedAt
	return ItemOutcome{
		Success:          true,
		FileName:         rec.FileName,
		RecordID:         &id,
		OriginalFileName: originalName,
		FilePath:         rec.FilePath,
		ExtractedText:    rec.ExtractedText,
		UploadedAt:       &uploadedAt,
	}
}

// Get returns a single record.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	return s.repo.GetByID(ctx, id)
}

// ListByPatient returns a page of a patient's records, newest check time
// first, plus the total count.
func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Record, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

// ReadFile fetches the stored bytes for a record so handlers can proxy them.
func (s *Service) ReadFile(ctx context.Context, id uuid.UUID) ([]byte, *Record, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if rec.FilePath == "" {
		return nil, nil, fmt.Errorf("record %s has no file path", id)
	}
	data, err := s.files.Get(ctx, rec.FilePath)
	if err != nil {
		return nil, nil, fmt.Errorf("read stored file: %w", err)
	}
	return data, rec, nil
}

// UpdateRequest carries the fields a PATCH may change. A nil ExtractedText
// leaves the stored text untouched; an empty string clears it.
type UpdateRequest struct {
	RecordType    string  `json:"recordType"`
	CheckTime     string  `json:"checkTime"`
	ExtractedText *string `json:"extractedText"`
}

// Update applies a partial update to a record.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req UpdateRequest) (*Record, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.RecordType != "" {
		rec.RecordType = req.RecordType
	}
	if req.CheckTime != "" {
		t, err := NormalizeCheckDate(req.CheckTime)
		if err != nil {
			return nil, err
		}
		rec.CheckTime = t
	}
	if req.ExtractedText != nil {
		rec.ExtractedText = *req.ExtractedText
	}
	if err := s.repo.Update(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Delete removes one record, blob first. If the blob deletion fails the row
// stays intact so a retry can still find it; metadata is never dropped for a
// blob that might still exist.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.files.Remove(ctx, rec.FilePath); err != nil {
		s.log.Error().Err(err).Str("record_id", id.String()).Msg("blob deletion failed")
		return fmt.Errorf("file deletion failed: %w", err)
	}
	s.log.Info().Str("record_id", id.String()).Str("path", rec.FilePath).Msg("stored file deleted")
	return s.repo.Delete(ctx, id)
}

// BatchDelete deletes blobs per record independently, then removes exactly
// the rows whose blob deletion succeeded in one statement. Failed ids keep
// their rows and are reported with the blob deletion reason; resubmitting the
// same id set retries them.
func (s *Service) BatchDelete(ctx context.Context, ids []uuid.UUID) (*BatchDeleteResult, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: recordIds must be a non-empty array", ErrInvalidBatch)
	}

	records, err := s.repo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	successIDs := make([]uuid.UUID, 0, len(records))
	var failures []DeleteFailure
	for _, rec := range records {
		if err := s.files.Remove(ctx, rec.FilePath); err != nil {
			s.log.Error().Err(err).Str("record_id", rec.ID.String()).Msg("blob deletion failed")
			failures = append(failures, DeleteFailure{ID: rec.ID, Reason: err.Error()})
			continue
		}
		s.log.Info().Str("record_id", rec.ID.String()).Str("path", rec.FilePath).Msg("stored file deleted")
		successIDs = append(successIDs, rec.ID)
	}

	var deleted int64
	if len(successIDs) > 0 {
		deleted, err = s.repo.DeleteByIDs(ctx, successIDs)
		if err != nil {
			return nil, err
		}
	}

	return &BatchDeleteResult{DeletedCount: deleted, Failures: failures}, nil
}
