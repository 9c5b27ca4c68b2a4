package record

import (
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medrec/medrec/internal/platform/ocr"
)

// ExtractionFailedPrefix marks extracted text that could not be produced.
// Extraction failure never blocks ingestion; the provider's message is kept
// behind this prefix so it stays visible to the user.
const ExtractionFailedPrefix = "[OCR extraction failed] "

// File type values stored on a record, fixed at ingestion time.
const (
	FileTypeImage = string(ocr.KindImage)
	FileTypePDF   = string(ocr.KindPDF)
)

var (
	ErrNotFound            = errors.New("medical record not found")
	ErrUnsupportedFileType = errors.New("unsupported file type, only JPG, PNG and PDF are accepted")
)

// Record maps to the medical_records table: one uploaded document's metadata
// plus its extracted text, scoped to one patient.
type Record struct {
	ID               uuid.UUID `db:"id" json:"recordId"`
	PatientID        uuid.UUID `db:"patient_id" json:"patientId"`
	RecordType       string    `db:"record_type" json:"recordType"`
	CheckTime        time.Time `db:"check_time" json:"checkTime"`
	FileName         string    `db:"file_name" json:"fileName"`
	OriginalFileName *string   `db:"original_file_name" json:"originalFileName,omitempty"`
	FilePath         string    `db:"file_path" json:"filePath"`
	ExtractedText    string    `db:"extracted_text" json:"extractedText"`
	FileType         string    `db:"file_type" json:"fileType"`
	Remarks          string    `db:"remarks" json:"remarks"`
	UploadedAt       time.Time `db:"uploaded_at" json:"uploadedAt"`
	UpdatedAt        time.Time `db:"updated_at" json:"updatedAt"`
}

// ClassifyFile derives the stored file type from the file name extension.
func ClassifyFile(fileName string) (string, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".jpg", ".jpeg", ".png":
		return FileTypeImage, nil
	case ".pdf":
		return FileTypePDF, nil
	default:
		return "", ErrUnsupportedFileType
	}
}

// ContentType maps the record's stored file name to the MIME type used when
// proxying the file back to a browser.
func (r *Record) ContentType() string {
	switch strings.ToLower(filepath.Ext(r.FileName)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

// NormalizeCheckDate converts a user-supplied YYYY-MM-DD date into midnight
// of that day. An empty value defaults to now; check time carries date-only
// meaning either way.
func NormalizeCheckDate(val string) (time.Time, error) {
	if val == "" {
		return time.Now(), nil
	}
	t, err := time.ParseInLocation("2006-01-02", val, time.Local)
	if err != nil {
		return time.Time{}, errors.New("invalid checkTime, expected YYYY-MM-DD")
	}
	return t, nil
}
