package ingestion_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/ap-engine/ap"
	"github.com/warp/ap-engine/docstore"
	"github.com/warp/ap-engine/ingestion"
	"github.com/warp/ap-engine/matching"
	"github.com/warp/ap-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const (
	poFile  = "Set1_PO-78001.pdf"
	grnFile = "Set1_GRN-84001_for_PO-78001.pdf"
	invFile = "Set1_INV-1001_for_GRN_GRN-84001.pdf"

	poJSON = `{"document_type":"Purchase Order","po_number":"PO-78001","vendor_name":"Acme Supplies",
		"buyer_name":"Warp Inc","order_date":"2024-03-01",
		"line_items":[{"description":"Industrial Widget","ordered_qty":10,"unit_price":50,"sku":null,"unit":"pcs"}],
		"subtotal":500,"tax":50,"grand_total":550}`
	grnJSON = `{"document_type":"Goods Receipt Note","grn_number":"GRN-84001","po_number":"PO-78001",
		"received_date":"2024-03-05",
		"line_items":[{"description":"Industrial Widget","received_qty":10,"unit":"pieces"}]}`
	invJSON = `{"document_type":"Invoice","invoice_id":"INV-1001","vendor_name":"Acme Supplies",
		"related_po_numbers":[],"related_grn_numbers":["GRN-84001"],
		"invoice_date":"2024-03-10","due_date":"2024-04-09",
		"line_items":[{"description":"Industrial Widget","quantity":10,"unit_price":50,"line_total":500,"unit":"each"}],
		"subtotal":500,"tax":50,"grand_total":550,"discount_terms":null,"discount_amount":null,"discount_due_date":null}`
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// fakeExtractor answers from a filename table.
type fakeExtractor struct {
	byName map[string]string
	errs   map[string]error
}

func (f *fakeExtractor) Extract(_ context.Context, filename string, _ []byte) ([]byte, error) {
	if err, ok := f.errs[filename]; ok {
		return nil, err
	}
	raw, ok := f.byName[filename]
	if !ok {
		return []byte(`{"document_type":"Error","error_message":"not an AP document"}`), nil
	}
	return []byte(raw), nil
}

func standardExtractor() *fakeExtractor {
	return &fakeExtractor{byName: map[string]string{poFile: poJSON, grnFile: grnJSON, invFile: invJSON}}
}

func newEngine(t *testing.T, store *sqlite.Store) *matching.Engine {
	m, err := matching.NewMatcher(matching.StrategyLevenshtein, matching.DefaultThreshold)
	require.NoError(t, err)
	return matching.NewEngine(store, m, matching.DefaultConfig(), quietLogger())
}

func files(names ...string) []ingestion.File {
	out := make([]ingestion.File, 0, len(names))
	for _, n := range names {
		out = append(out, ingestion.File{Name: n, Content: []byte("%PDF-1.4 " + n)})
	}
	return out
}

// =============================================================================
// CLASSIFY
// =============================================================================

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		want ingestion.Pass
	}{
		{"Set1_PO-78001.pdf", ingestion.PassPO},
		{"po-123.pdf", ingestion.PassPO},
		{"Set1_GRN-84001_for_PO-78001.pdf", ingestion.PassGRN},
		{"uploads/Set2_GRN-1.PDF", ingestion.PassGRN},
		{"Set1_INV-1001_for_GRN_GRN-84001.pdf", ingestion.PassInvoice},
		{"Set1_INV-2_for_PO-78001.pdf", ingestion.PassInvoice},
		{"scan_0001.pdf", ingestion.PassInvoice},
		{"PORTFOLIO.pdf", ingestion.PassInvoice},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ingestion.Classify(tt.name), tt.name)
	}
}

// =============================================================================
// DECODE
// =============================================================================

func TestDecode_Variants(t *testing.T) {
	p, err := ingestion.Decode([]byte(poJSON))
	require.NoError(t, err)
	po, ok := p.(*ingestion.POPayload)
	require.True(t, ok)
	assert.Equal(t, "PO-78001", po.PONumber)
	require.Len(t, po.LineItems, 1)
	assert.True(t, po.LineItems[0].OrderedQty.Equal(decimal.NewFromInt(10)))

	p, err = ingestion.Decode([]byte(invJSON))
	require.NoError(t, err)
	assert.Equal(t, ap.DocInvoice, p.DocumentType())

	p, err = ingestion.Decode([]byte(`{"document_type":"Error","error_message":"illegible"}`))
	require.NoError(t, err)
	assert.Equal(t, "illegible", p.(*ingestion.ErrorPayload).ErrorMessage)
}

func TestDecode_Rejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"not json", `<html>`, ap.ErrInvalidPayload},
		{"missing type", `{"po_number":"PO-1"}`, ap.ErrInvalidPayload},
		{"unknown type", `{"document_type":"Credit Note"}`, ap.ErrUnknownDocumentType},
		{"missing number", `{"document_type":"Purchase Order","line_items":[]}`, ap.ErrInvalidPayload},
		{"bad date", `{"document_type":"Goods Receipt Note","grn_number":"G","received_date":"05/03/2024"}`, ap.ErrInvalidPayload},
		{"line without description", `{"document_type":"Invoice","invoice_id":"I","line_items":[{"quantity":1}]}`, ap.ErrInvalidPayload},
		{"string money", `{"document_type":"Invoice","invoice_id":"I","subtotal":"$1,800.00"}`, ap.ErrInvalidPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ingestion.Decode([]byte(tt.raw))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

// =============================================================================
// SERVICE
// =============================================================================

func TestIngestDocument_PurchaseOrder(t *testing.T) {
	store := newStore(t)
	docs, err := docstore.NewLocal(t.TempDir())
	require.NoError(t, err)
	svc := ingestion.NewService(store, standardExtractor(), docs, quietLogger())
	ctx := context.Background()

	res, err := svc.IngestDocument(ctx, "job-1", poFile, []byte("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, ap.DocPurchaseOrder, res.DocumentType)
	assert.Equal(t, []string{"PO-78001"}, res.AffectedPONumbers)

	po, err := store.GetPurchaseOrder(ctx, "PO-78001")
	require.NoError(t, err)
	assert.Equal(t, poFile, po.FilePath)
	assert.Equal(t, "2024-03-01", po.OrderDate.String())
	assert.Equal(t, "pcs", po.LineItems[0].NormalizedUnit)
	assert.NotEmpty(t, po.RawPayload)

	rc, err := docs.Open(ctx, poFile)
	require.NoError(t, err)
	rc.Close()
}

func TestIngestDocument_DuplicatePOStillReportsAffectedPO(t *testing.T) {
	store := newStore(t)
	svc := ingestion.NewService(store, standardExtractor(), nil, quietLogger())
	ctx := context.Background()

	_, err := svc.IngestDocument(ctx, "job-1", poFile, nil)
	require.NoError(t, err)

	res, err := svc.IngestDocument(ctx, "job-2", poFile, nil)
	assert.True(t, ap.IsConflict(err))
	require.NotNil(t, res)
	assert.Equal(t, []string{"PO-78001"}, res.AffectedPONumbers)
}

func TestIngestDocument_InvoiceReachesPOThroughGRN(t *testing.T) {
	store := newStore(t)
	svc := ingestion.NewService(store, standardExtractor(), nil, quietLogger())
	ctx := context.Background()

	_, err := svc.IngestDocument(ctx, "job-1", poFile, nil)
	require.NoError(t, err)
	_, err = svc.IngestDocument(ctx, "job-1", grnFile, nil)
	require.NoError(t, err)

	res, err := svc.IngestDocument(ctx, "job-1", invFile, nil)
	require.NoError(t, err)
	assert.NotZero(t, res.InvoiceRowID)
	assert.Equal(t, []string{"PO-78001"}, res.AffectedPONumbers)

	inv, err := store.GetInvoice(ctx, res.InvoiceRowID)
	require.NoError(t, err)
	assert.Equal(t, ap.StatusIngested, inv.Status)
	assert.Equal(t, "job-1", inv.JobID)
	assert.True(t, inv.DiscountDueDate.IsZero())
}

func TestIngestDocument_ExtractionFailures(t *testing.T) {
	store := newStore(t)
	ex := standardExtractor()
	ex.errs = map[string]error{"broken.pdf": errors.New("connection reset")}
	svc := ingestion.NewService(store, ex, nil, quietLogger())
	ctx := context.Background()

	_, err := svc.IngestDocument(ctx, "job-1", "broken.pdf", nil)
	assert.ErrorIs(t, err, ap.ErrExtractionFailed)

	res, err := svc.IngestDocument(ctx, "job-1", "holiday-photo.pdf", nil)
	assert.ErrorIs(t, err, ap.ErrExtractionFailed)
	assert.Contains(t, err.Error(), "not an AP document")
	assert.Equal(t, ap.DocError, res.DocumentType)
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

func TestRun_EndToEndSameBatch(t *testing.T) {
	// GIVEN: A PO, its GRN and an invoice uploaded together in reverse order
	// WHEN: The job runs
	// THEN: The invoice finds both documents and is matched

	store := newStore(t)
	svc := ingestion.NewService(store, standardExtractor(), nil, quietLogger())
	orch := ingestion.NewOrchestrator(svc, store, newEngine(t, store), ingestion.Options{Workers: 3, ProgressEvery: 5}, quietLogger())
	ctx := context.Background()

	job, err := orch.CreateJob(ctx, 3)
	require.NoError(t, err)

	summary, err := orch.Run(ctx, job.ID, files(invFile, grnFile, poFile))
	require.NoError(t, err)

	assert.Equal(t, 3, summary.SuccessfulFiles)
	assert.Equal(t, 0, summary.FailedFiles)
	assert.Equal(t, 1, summary.InvoicesMatched)
	assert.Equal(t, []string{"PO-78001"}, summary.AffectedPONumbers)
	require.Len(t, summary.Files, 3)
	assert.Equal(t, invFile, summary.Files[0].Filename)

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, ap.JobCompleted, got.Status)
	assert.Equal(t, 3, got.ProcessedFiles)
	require.NotNil(t, got.Summary)
	assert.Equal(t, 1, got.Summary.InvoicesMatched)
	assert.NotNil(t, got.CompletedAt)

	inv, err := store.GetInvoice(ctx, summary.Files[0].InvoiceRowID)
	require.NoError(t, err)
	assert.Equal(t, ap.StatusMatched, inv.Status)
}

func TestRun_FailedFileDoesNotAbortBatch(t *testing.T) {
	store := newStore(t)
	ex := standardExtractor()
	ex.errs = map[string]error{"Set1_PO-99.pdf": errors.New("timeout")}
	svc := ingestion.NewService(store, ex, nil, quietLogger())
	orch := ingestion.NewOrchestrator(svc, store, newEngine(t, store), ingestion.DefaultOptions(), quietLogger())
	ctx := context.Background()

	job, err := orch.CreateJob(ctx, 4)
	require.NoError(t, err)
	summary, err := orch.Run(ctx, job.ID, files(poFile, "Set1_PO-99.pdf", grnFile, invFile))
	require.NoError(t, err)

	assert.Equal(t, 3, summary.SuccessfulFiles)
	assert.Equal(t, 1, summary.FailedFiles)
	assert.False(t, summary.Files[1].Success)
	assert.Contains(t, summary.Files[1].Message, "timeout")
}

// recorder captures the order of ingestion and matching calls.
type recorder struct {
	mu     sync.Mutex
	events []string
	nextID int64
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) IngestDocument(_ context.Context, _, filename string, _ []byte) (*ingestion.Result, error) {
	pass := ingestion.Classify(filename)
	r.add(fmt.Sprintf("ingest:%d", pass))
	res := &ingestion.Result{DocumentType: ap.DocInvoice}
	if pass == ingestion.PassInvoice {
		r.mu.Lock()
		r.nextID++
		res.InvoiceRowID = r.nextID
		r.mu.Unlock()
	}
	return res, nil
}

func (r *recorder) RunMatchSafely(_ context.Context, id int64) (*ap.Invoice, error) {
	r.add(fmt.Sprintf("match:%d", id))
	if id%2 == 0 {
		return nil, errors.New("engine exploded")
	}
	return &ap.Invoice{ID: id, Status: ap.StatusMatched}, nil
}

func TestRun_PassesAreBarriers(t *testing.T) {
	// GIVEN: Interleaved PO, GRN and invoice files and a wide pool
	// WHEN: The job runs
	// THEN: Every PO precedes every GRN, which precedes every invoice, and
	//       matching starts only after ingestion ends

	store := newStore(t)
	rec := &recorder{}
	orch := ingestion.NewOrchestrator(rec, store, rec, ingestion.Options{Workers: 4, ProgressEvery: 2}, quietLogger())
	ctx := context.Background()

	names := []string{
		"INV-1.pdf", "Set1_GRN-1_for_PO-1.pdf", "Set1_PO-1.pdf",
		"INV-2.pdf", "Set1_GRN-2_for_PO-2.pdf", "Set1_PO-2.pdf",
		"INV-3.pdf", "Set1_PO-3.pdf", "INV-4.pdf",
	}
	job, err := orch.CreateJob(ctx, len(names))
	require.NoError(t, err)
	summary, err := orch.Run(ctx, job.ID, files(names...))
	require.NoError(t, err)

	require.Len(t, rec.events, len(names)+4)
	last := -1
	for i, e := range rec.events[:len(names)] {
		var pass int
		_, err := fmt.Sscanf(e, "ingest:%d", &pass)
		require.NoError(t, err, "event %d: %s", i, e)
		assert.GreaterOrEqual(t, pass, last, "event %d out of pass order", i)
		last = pass
	}
	for _, e := range rec.events[len(names):] {
		assert.Contains(t, e, "match:")
	}

	assert.Equal(t, 2, summary.InvoicesMatched)
	assert.Equal(t, 2, summary.InvoicesForReview)
}

// progressLog records progress writes.
type progressLog struct {
	*sqlite.Store
	mu     sync.Mutex
	writes []int
	fail   ap.JobStatus
}

func (p *progressLog) UpdateJobProgress(ctx context.Context, id string, processed int, status ap.JobStatus) error {
	if status == p.fail {
		return errors.New("database is locked")
	}
	p.mu.Lock()
	p.writes = append(p.writes, processed)
	p.mu.Unlock()
	return p.Store.UpdateJobProgress(ctx, id, processed, status)
}

func TestRun_ProgressFlushedEveryNAndAtPassEnd(t *testing.T) {
	store := newStore(t)
	jobs := &progressLog{Store: store}
	rec := &recorder{}
	orch := ingestion.NewOrchestrator(rec, jobs, rec, ingestion.Options{Workers: 2, ProgressEvery: 5}, quietLogger())
	ctx := context.Background()

	job, err := orch.CreateJob(ctx, 7)
	require.NoError(t, err)
	_, err = orch.Run(ctx, job.ID, files("a.pdf", "b.pdf", "c.pdf", "d.pdf", "e.pdf", "f.pdf", "g.pdf"))
	require.NoError(t, err)

	assert.Equal(t, []int{5, 7, 7}, jobs.writes, "every 5th, pass end, matching phase")
}

func TestRun_CatastrophicFailureFailsJob(t *testing.T) {
	store := newStore(t)
	jobs := &progressLog{Store: store, fail: ap.JobMatching}
	rec := &recorder{}
	orch := ingestion.NewOrchestrator(rec, jobs, rec, ingestion.DefaultOptions(), quietLogger())
	ctx := context.Background()

	job, err := orch.CreateJob(ctx, 1)
	require.NoError(t, err)
	_, err = orch.Run(ctx, job.ID, files("a.pdf"))
	require.Error(t, err)

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, ap.JobFailed, got.Status)
	require.NotNil(t, got.Summary)
	assert.Contains(t, got.Summary.Error, "database is locked")
}

func TestSubmit_RunsInBackground(t *testing.T) {
	store := newStore(t)
	svc := ingestion.NewService(store, standardExtractor(), nil, quietLogger())
	orch := ingestion.NewOrchestrator(svc, store, newEngine(t, store), ingestion.DefaultOptions(), quietLogger())
	ctx := context.Background()

	job, err := orch.Submit(ctx, files(poFile, grnFile, invFile))
	require.NoError(t, err)
	assert.Equal(t, ap.JobProcessing, job.Status)

	orch.Wait()
	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, ap.JobCompleted, got.Status)
}
