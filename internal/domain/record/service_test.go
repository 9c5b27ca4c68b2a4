package record

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medrec/medrec/internal/platform/filestore"
	"github.com/medrec/medrec/internal/platform/ocr"
)

// fakeRepo is an in-memory Repository for service tests.
type fakeRepo struct {
	records    map[uuid.UUID]*Record
	failCreate bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: make(map[uuid.UUID]*Record)}
}

func (r *fakeRepo) Create(_ context.Context, rec *Record) error {
	if r.failCreate {
		return errors.New("insert failed")
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	cp := *rec
	r.records[rec.ID] = &cp
	return nil
}

func (r *fakeRepo) GetByID(_ context.Context, id uuid.UUID) (*Record, error) {
	rec, ok := r.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *fakeRepo) GetByIDs(_ context.Context, ids []uuid.UUID) ([]*Record, error) {
	var out []*Record
	for _, id := range ids {
		if rec, ok := r.records[id]; ok {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Record, int, error) {
	all := r.byPatient(patientID)
	total := len(all)
	if offset >= len(all) {
		return nil, total, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, total, nil
}

func (r *fakeRepo) RecentByPatient(_ context.Context, patientID uuid.UUID, limit int) ([]*Record, error) {
	all := r.byPatient(patientID)
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (r *fakeRepo) byPatient(patientID uuid.UUID) []*Record {
	var out []*Record
	for _, rec := range r.records {
		if rec.PatientID == patientID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CheckTime.After(out[j].CheckTime) })
	return out
}

func (r *fakeRepo) Update(_ context.Context, rec *Record) error {
	if _, ok := r.records[rec.ID]; !ok {
		return ErrNotFound
	}
	cp := *rec
	r.records[rec.ID] = &cp
	return nil
}

func (r *fakeRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := r.records[id]; !ok {
		return ErrNotFound
	}
	delete(r.records, id)
	return nil
}

func (r *fakeRepo) DeleteByIDs(_ context.Context, ids []uuid.UUID) (int64, error) {
	var n int64
	for _, id := range ids {
		if _, ok := r.records[id]; ok {
			delete(r.records, id)
			n++
		}
	}
	return n, nil
}

// stubExtractor returns a fixed text, or an error when failWith is set.
type stubExtractor struct {
	text     string
	failWith error
}

func (e *stubExtractor) Extract(context.Context, []byte, ocr.FileKind, string) (string, error) {
	if e.failWith != nil {
		return "", e.failWith
	}
	return e.text, nil
}

func newTestService(repo Repository, store filestore.Store, ex ocr.Extractor) *Service {
	return NewService(repo, store, ex, "medical-records", zerolog.Nop())
}

func TestIngestSuccess(t *testing.T) {
	repo := newFakeRepo()
	store := filestore.NewMemoryStore()
	svc := newTestService(repo, store, &stubExtractor{text: "blood glucose 5.2 mmol/L"})

	patientID := uuid.New()
	outcomes, err := svc.Ingest(context.Background(), IngestRequest{
		UserID:     "u1",
		PatientID:  patientID,
		RecordType: "lab_report",
		CheckTime:  "2026-05-01",
		Files: []UploadFile{
			{Name: "scan1.pdf", Data: []byte("pdf-bytes")},
			{Name: "photo.jpg", Data: []byte("jpg-bytes")},
		},
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("got %d outcomes, want 2", len(outcomes))
	}
	for i, o := range outcomes {
		if !o.Success {
			t.Errorf("outcome %d failed: %s", i, o.Message)
		}
		if o.RecordID == nil {
			t.Fatalf("outcome %d has no record id", i)
		}
		if o.ExtractedText != "blood glucose 5.2 mmol/L" {
			t.Errorf("outcome %d extracted text = %q", i, o.ExtractedText)
		}
	}
	if outcomes[0].OriginalFileName != "scan1.pdf" || outcomes[1].OriginalFileName != "photo.jpg" {
		t.Errorf("outcomes out of input order: %q, %q",
			outcomes[0].OriginalFileName, outcomes[1].OriginalFileName)
	}
	if !strings.HasSuffix(outcomes[0].FileName, ".pdf") {
		t.Errorf("server-assigned name %q lost the extension", outcomes[0].FileName)
	}
	if store.Len() != 2 {
		t.Errorf("store holds %d blobs, want 2", store.Len())
	}

	// The stored blob must be retrievable through the persisted record.
	data, rec, err := svc.ReadFile(context.Background(), *outcomes[0].RecordID)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "pdf-bytes" {
		t.Errorf("ReadFile() = %q, want %q", data, "pdf-bytes")
	}
	if rec.FileType != FileTypePDF {
		t.Errorf("file type = %q, want %q", rec.FileType, FileTypePDF)
	}
}

func TestIngestRejectsStructuralProblems(t *testing.T) {
	repo := newFakeRepo()
	store := filestore.NewMemoryStore()
	svc := newTestService(repo, store, &stubExtractor{text: "x"})

	cases := []struct {
		name string
		req  IngestRequest
	}{
		{"missing user", IngestRequest{PatientID: uuid.New(), RecordType: "t", Files: []UploadFile{{Name: "a.pdf"}}}},
		{"missing patient", IngestRequest{UserID: "u1", RecordType: "t", Files: []UploadFile{{Name: "a.pdf"}}}},
		{"no files", IngestRequest{UserID: "u1", PatientID: uuid.New(), RecordType: "t"}},
		{"missing record type", IngestRequest{UserID: "u1", PatientID: uuid.New(), Files: []UploadFile{{Name: "a.pdf"}}}},
		{"bad check time", IngestRequest{UserID: "u1", PatientID: uuid.New(), RecordType: "t",
			CheckTime: "05/01/2026", Files: []UploadFile{{Name: "a.pdf"}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Ingest(context.Background(), tc.req)
			if !errors.Is(err, ErrInvalidBatch) {
				t.Fatalf("Ingest() error = %v, want ErrInvalidBatch", err)
			}
		})
	}
	if store.Len() != 0 || len(repo.records) != 0 {
		t.Errorf("structural reject left side effects: %d blobs, %d rows", store.Len(), len(repo.records))
	}
}

func TestIngestMixedOutcomes(t *testing.T) {
	repo := newFakeRepo()
	store := filestore.NewMemoryStore()
	svc := newTestService(repo, store, &stubExtractor{text: "ok"})

	outcomes, err := svc.Ingest(context.Background(), IngestRequest{
		UserID:     "u1",
		PatientID:  uuid.New(),
		RecordType: "lab_report",
		Files: []UploadFile{
			{Name: "good.png", Data: []byte("a")},
			{Name: "notes.txt", Data: []byte("b")},
			{Name: "also-good.pdf", Data: []byte("c")},
		},
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("got %d outcomes, want 3", len(outcomes))
	}
	if !outcomes[0].Success || outcomes[1].Success || !outcomes[2].Success {
		t.Fatalf("success pattern = %v,%v,%v, want true,false,true",
			outcomes[0].Success, outcomes[1].Success, outcomes[2].Success)
	}
	if outcomes[1].Message != ErrUnsupportedFileType.Error() {
		t.Errorf("rejected file message = %q", outcomes[1].Message)
	}
	if len(repo.records) != 2 {
		t.Errorf("repo holds %d rows, want 2", len(repo.records))
	}
	if store.Len() != 2 {
		t.Errorf("store holds %d blobs, want 2", store.Len())
	}
}

func TestIngestExtractionFailureIsNotFatal(t *testing.T) {
	repo := newFakeRepo()
	store := filestore.NewMemoryStore()
	svc := newTestService(repo, store, &stubExtractor{failWith: errors.New("provider timeout")})

	outcomes, err := svc.Ingest(context.Background(), IngestRequest{
		UserID:     "u1",
		PatientID:  uuid.New(),
		RecordType: "lab_report",
		Files:      []UploadFile{{Name: "scan.jpg", Data: []byte("img")}},
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	o := outcomes[0]
	if !o.Success {
		t.Fatalf("extraction failure made the item fail: %s", o.Message)
	}
	want := ExtractionFailedPrefix + "provider timeout"
	if o.ExtractedText != want {
		t.Errorf("extracted text = %q, want %q", o.ExtractedText, want)
	}
	rec, err := repo.GetByID(context.Background(), *o.RecordID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if rec.ExtractedText != want {
		t.Errorf("persisted text = %q, want %q", rec.ExtractedText, want)
	}
}

func TestIngestRowInsertFailure(t *testing.T) {
	repo := newFakeRepo()
	repo.failCreate = true
	store := filestore.NewMemoryStore()
	svc := newTestService(repo, store, &stubExtractor{text: "x"})

	outcomes, err := svc.Ingest(context.Background(), IngestRequest{
		UserID:     "u1",
		PatientID:  uuid.New(),
		RecordType: "lab_report",
		Files:      []UploadFile{{Name: "scan.pdf", Data: []byte("p")}},
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if outcomes[0].Success {
		t.Fatal("item succeeded despite row insert failure")
	}
	if !strings.HasPrefix(outcomes[0].Message, "saving record failed") {
		t.Errorf("message = %q", outcomes[0].Message)
	}
}

func ingestOneRecord(t *testing.T, svc *Service, patientID uuid.UUID, name string) uuid.UUID {
	t.Helper()
	outcomes, err := svc.Ingest(context.Background(), IngestRequest{
		UserID:     "u1",
		PatientID:  patientID,
		RecordType: "lab_report",
		Files:      []UploadFile{{Name: name, Data: []byte("data-" + name)}},
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if !outcomes[0].Success {
		t.Fatalf("ingest %s failed: %s", name, outcomes[0].Message)
	}
	return *outcomes[0].RecordID
}

func TestDeleteRemovesBlobThenRow(t *testing.T) {
	repo := newFakeRepo()
	store := filestore.NewMemoryStore()
	svc := newTestService(repo, store, &stubExtractor{text: "x"})

	patientID := uuid.New()
	id := ingestOneRecord(t, svc, patientID, "scan.pdf")

	if err := svc.Delete(context.Background(), id); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("blob survived deletion")
	}
	if _, err := repo.GetByID(context.Background(), id); !errors.Is(err, ErrNotFound) {
		t.Errorf("row survived deletion: err = %v", err)
	}
}

func TestDeleteKeepsRowWhenBlobDeletionFails(t *testing.T) {
	repo := newFakeRepo()
	store := filestore.NewMemoryStore()
	svc := newTestService(repo, store, &stubExtractor{text: "x"})

	patientID := uuid.New()
	id := ingestOneRecord(t, svc, patientID, "scan.pdf")

	// Make the blob vanish out from under the record so Remove fails.
	rec, _ := repo.GetByID(context.Background(), id)
	if err := store.Remove(context.Background(), rec.FilePath); err != nil {
		t.Fatalf("setup remove failed: %v", err)
	}

	err := svc.Delete(context.Background(), id)
	if err == nil {
		t.Fatal("Delete() succeeded despite blob deletion failure")
	}
	if !errors.Is(err, filestore.ErrNothingDeleted) {
		t.Errorf("Delete() error = %v, want wrapped ErrNothingDeleted", err)
	}
	if _, gerr := repo.GetByID(context.Background(), id); gerr != nil {
		t.Errorf("row was dropped for a blob that may still exist: %v", gerr)
	}
}

func TestBatchDeletePartialFailure(t *testing.T) {
	repo := newFakeRepo()
	store := filestore.NewMemoryStore()
	svc := newTestService(repo, store, &stubExtractor{text: "x"})

	patientID := uuid.New()
	idA := ingestOneRecord(t, svc, patientID, "a.pdf")
	idB := ingestOneRecord(t, svc, patientID, "b.jpg")
	idC := ingestOneRecord(t, svc, patientID, "c.png")

	// B's blob disappears so its deletion fails; A and C go through.
	recB, _ := repo.GetByID(context.Background(), idB)
	if err := store.Remove(context.Background(), recB.FilePath); err != nil {
		t.Fatalf("setup remove failed: %v", err)
	}

	result, err := svc.BatchDelete(context.Background(), []uuid.UUID{idA, idB, idC})
	if err != nil {
		t.Fatalf("BatchDelete() error = %v", err)
	}
	if result.DeletedCount != 2 {
		t.Errorf("DeletedCount = %d, want 2", result.DeletedCount)
	}
	if len(result.Failures) != 1 {
		t.Fatalf("got %d failures, want 1", len(result.Failures))
	}
	if result.Failures[0].ID != idB {
		t.Errorf("failure id = %s, want %s", result.Failures[0].ID, idB)
	}
	if result.Failures[0].Reason == "" {
		t.Error("failure carries no reason")
	}

	// A and C are gone; B's row stays for a retry.
	for _, id := range []uuid.UUID{idA, idC} {
		if _, err := repo.GetByID(context.Background(), id); !errors.Is(err, ErrNotFound) {
			t.Errorf("record %s survived batch deletion: %v", id, err)
		}
	}
	if _, err := repo.GetByID(context.Background(), idB); err != nil {
		t.Errorf("failed record lost its row: %v", err)
	}
}

func TestBatchDeleteRejectsEmptyAndSkipsUnknown(t *testing.T) {
	repo := newFakeRepo()
	store := filestore.NewMemoryStore()
	svc := newTestService(repo, store, &stubExtractor{text: "x"})

	if _, err := svc.BatchDelete(context.Background(), nil); !errors.Is(err, ErrInvalidBatch) {
		t.Fatalf("BatchDelete(nil) error = %v, want ErrInvalidBatch", err)
	}

	// Ids with no rows are simply not counted, not failures.
	result, err := svc.BatchDelete(context.Background(), []uuid.UUID{uuid.New(), uuid.New()})
	if err != nil {
		t.Fatalf("BatchDelete() error = %v", err)
	}
	if result.DeletedCount != 0 || len(result.Failures) != 0 {
		t.Errorf("got deleted=%d failures=%d, want 0 and 0", result.DeletedCount, len(result.Failures))
	}
}

func TestUpdatePartialApplication(t *testing.T) {
	repo := newFakeRepo()
	store := filestore.NewMemoryStore()
	svc := newTestService(repo, store, &stubExtractor{text: "original text"})

	patientID := uuid.New()
	id := ingestOneRecord(t, svc, patientID, "scan.pdf")

	empty := ""
	rec, err := svc.Update(context.Background(), id, UpdateRequest{
		CheckTime:     "2025-12-31",
		ExtractedText: &empty,
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if rec.RecordType != "lab_report" {
		t.Errorf("record type changed unexpectedly: %q", rec.RecordType)
	}
	if got := rec.CheckTime.Format("2006-01-02"); got != "2025-12-31" {
		t.Errorf("check time = %s, want 2025-12-31", got)
	}
	if rec.ExtractedText != "" {
		t.Errorf("empty-string update did not clear text: %q", rec.ExtractedText)
	}

	if _, err := svc.Update(context.Background(), id, UpdateRequest{CheckTime: "not-a-date"}); err == nil {
		t.Error("Update() accepted a malformed check time")
	}
}

func TestListByPatient(t *testing.T) {
	repo := newFakeRepo()
	store := filestore.NewMemoryStore()
	svc := newTestService(repo, store, &stubExtractor{text: "x"})

	patientID := uuid.New()
	for i := 1; i <= 5; i++ {
		_, err := svc.Ingest(context.Background(), IngestRequest{
			UserID:     "u1",
			PatientID:  patientID,
			RecordType: "lab_report",
			CheckTime:  fmt.Sprintf("2026-03-%02d", i),
			Files:      []UploadFile{{Name: fmt.Sprintf("r%d.pdf", i), Data: []byte("d")}},
		})
		if err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}
	}

	items, total, err := svc.ListByPatient(context.Background(), patientID, 2, 0)
	if err != nil {
		t.Fatalf("ListByPatient() error = %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if got := items[0].CheckTime.Format("2006-01-02"); got != "2026-03-05" {
		t.Errorf("first item check time = %s, want newest first", got)
	}
}
