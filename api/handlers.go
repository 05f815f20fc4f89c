/*
handlers.go - HTTP API handlers for the AP reconciliation engine

PURPOSE:
  Thin transport over ingestion, workflow and the store. Handlers parse
  the request, call one operation, and serialize the result. No matching
  or workflow rules live here.

ENDPOINTS:
  Documents:
    POST   /api/documents/upload                     Start an ingestion job (202)
    GET    /api/documents/jobs                       Recent jobs
    GET    /api/documents/jobs/{id}                  Job progress and summary
    GET    /api/documents/file/{filename}            Original uploaded file
    PUT    /api/documents/purchase-orders/{poNumber} Correct a PO, re-match
    PUT    /api/documents/grns/{grnNumber}           Correct a GRN, re-match

  Invoices:
    GET    /api/invoices                   ?status=a,b&category=&vendor=&job_id=
    GET    /api/invoices/{id}              Invoice with match trace
    POST   /api/invoices/{id}/status       Status change
    POST   /api/invoices/{id}/rematch      Queue a re-match (202)
    ...    see server.go for the rest

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid status or transition
  - 404: Resource not found
  - 409: Conflict (duplicate rule, invoice busy)
  - 500: Internal errors

SECURITY NOTE:
  No authentication. The actor recorded in the audit log is whatever the
  client sends (body "actor", else the X-User header).

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/ap-engine/ap"
	"github.com/warp/ap-engine/config"
	"github.com/warp/ap-engine/docstore"
	"github.com/warp/ap-engine/ingestion"
	"github.com/warp/ap-engine/monitor"
	"github.com/warp/ap-engine/workflow"
)

const maxUploadMemory = 32 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers. Monitor may be nil.
type Handler struct {
	Store    ap.Store
	Workflow *workflow.Service
	Ingest   *ingestion.Orchestrator
	Docs     docstore.Store
	Monitor  *monitor.Scheduler
	Log      logrus.FieldLogger

	validate *validator.Validate
}

func NewHandler(store ap.Store, wf *workflow.Service, ingest *ingestion.Orchestrator, docs docstore.Store, mon *monitor.Scheduler, log logrus.FieldLogger) *Handler {
	return &Handler{
		Store:    store,
		Workflow: wf,
		Ingest:   ingest,
		Docs:     docs,
		Monitor:  mon,
		Log:      log,
		validate: validator.New(),
	}
}

// =============================================================================
// DOCUMENTS
// =============================================================================

// UploadDocuments starts a job for the multipart "files" and returns it
// immediately; clients poll the job.
func (h *Handler) UploadDocuments(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart upload", err)
		return
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "No files uploaded", nil)
		return
	}

	files := make([]ingestion.File, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "Failed to read upload", err)
			return
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, "Failed to read upload", err)
			return
		}
		files = append(files, ingestion.File{Name: fh.Filename, Content: content})
	}

	job, err := h.Ingest.Submit(r.Context(), files)
	if err != nil {
		h.writeDomainError(w, "Failed to start ingestion job", err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}
	jobs, err := h.Store.ListJobs(r.Context(), limit)
	if err != nil {
		h.writeDomainError(w, "Failed to list jobs", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(jobs))
}

func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.Store.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, "Failed to get job", err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// GetDocumentFile streams an uploaded file back by its stored name.
func (h *Handler) GetDocumentFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	rc, err := h.Docs.Open(r.Context(), name)
	if err != nil {
		if errors.Is(err, docstore.ErrInvalidName) {
			writeError(w, http.StatusBadRequest, "Invalid filename", err)
			return
		}
		h.writeDomainError(w, "Failed to open document", err)
		return
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		h.writeDomainError(w, "Failed to read document", err)
		return
	}
	w.Header().Set("Content-Type", docstore.ContentType(name, data))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *Handler) EditPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	var req PurchaseOrderEditRequest
	if !h.decode(w, r, &req) {
		return
	}
	po, ids, err := h.Workflow.EditPurchaseOrder(r.Context(), chi.URLParam(r, "poNumber"), workflow.PurchaseOrderEdit{
		VendorName: req.VendorName,
		BuyerName:  req.BuyerName,
		OrderDate:  req.OrderDate,
		LineItems:  lineEdits(req.LineItems),
	}, actor(r, req.Actor))
	if err != nil {
		h.writeDomainError(w, "Failed to update purchase order", err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentEditResponse{Document: po, RematchedInvoices: nonNil(ids)})
}

func (h *Handler) EditGoodsReceipt(w http.ResponseWriter, r *http.Request) {
	var req GoodsReceiptEditRequest
	if !h.decode(w, r, &req) {
		return
	}
	grn, ids, err := h.Workflow.EditGoodsReceipt(r.Context(), chi.URLParam(r, "grnNumber"), workflow.GoodsReceiptEdit{
		PONumber:     req.PONumber,
		ReceivedDate: req.ReceivedDate,
		LineItems:    lineEdits(req.LineItems),
	}, actor(r, req.Actor))
	if err != nil {
		h.writeDomainError(w, "Failed to update goods receipt", err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentEditResponse{Document: grn, RematchedInvoices: nonNil(ids)})
}

// =============================================================================
// INVOICES
// =============================================================================

func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter ap.InvoiceFilter
	if v := q.Get("status"); v != "" {
		for _, part := range strings.Split(v, ",") {
			st, err := ap.ParseStatus(strings.TrimSpace(part))
			if err != nil {
				writeError(w, http.StatusBadRequest, "Invalid status filter", err)
				return
			}
			filter.Statuses = append(filter.Statuses, st)
		}
	}
	if v := q.Get("category"); v != "" {
		c, err := ap.ParseReviewCategory(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid category filter", err)
			return
		}
		filter.Category = c
	}
	filter.VendorName = q.Get("vendor")
	filter.JobID = q.Get("job_id")
	filter.PaymentBatchID = q.Get("payment_batch_id")

	invoices, err := h.Store.ListInvoices(r.Context(), filter)
	if err != nil {
		h.writeDomainError(w, "Failed to list invoices", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(invoices))
}

func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := invoiceID(w, r)
	if !ok {
		return
	}
	inv, err := h.Store.GetInvoice(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *Handler) UpdateInvoiceStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := invoiceID(w, r)
	if !ok {
		return
	}
	var req StatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	inv, err := h.Workflow.UpdateStatus(r.Context(), id, req.Status, actor(r, req.Actor), req.Reason)
	if err != nil {
		h.writeDomainError(w, "Failed to update status", err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *Handler) BatchUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req BatchStatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.Workflow.BatchUpdateStatus(r.Context(), req.InvoiceIDs, req.Status, actor(r, req.Actor), req.Reason)
	if err != nil {
		h.writeDomainError(w, "Failed to update statuses", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) RematchInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := invoiceID(w, r)
	if !ok {
		return
	}
	if err := h.Workflow.Rematch(r.Context(), actor(r, ""), id); err != nil {
		h.writeDomainError(w, "Failed to queue re-match", err)
		return
	}
	writeJSON(w, http.StatusAccepted, AcceptedResponse{Message: "Re-match queued", InvoiceIDs: []int64{id}})
}

func (h *Handler) BatchRematch(w http.ResponseWriter, r *http.Request) {
	var req BatchRematchRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.Workflow.Rematch(r.Context(), actor(r, req.Actor), req.InvoiceIDs...); err != nil {
		h.writeDomainError(w, "Failed to queue re-match", err)
		return
	}
	writeJSON(w, http.StatusAccepted, AcceptedResponse{Message: "Re-match queued", InvoiceIDs: req.InvoiceIDs})
}

func (h *Handler) UpdateNotes(w http.ResponseWriter, r *http.Request) {
	id, ok := invoiceID(w, r)
	if !ok {
		return
	}
	var req NotesRequest
	if !h.decode(w, r, &req) {
		return
	}
	inv, err := h.Workflow.UpdateNotes(r.Context(), id, req.Notes, actor(r, req.Actor))
	if err != nil {
		h.writeDomainError(w, "Failed to update notes", err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *Handler) UpdateGLCode(w http.ResponseWriter, r *http.Request) {
	id, ok := invoiceID(w, r)
	if !ok {
		return
	}
	var req GLCodeRequest
	if !h.decode(w, r, &req) {
		return
	}
	inv, err := h.Workflow.UpdateGLCode(r.Context(), id, req.GLCode, actor(r, req.Actor))
	if err != nil {
		h.writeDomainError(w, "Failed to update GL code", err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *Handler) GetSuggestion(w http.ResponseWriter, r *http.Request) {
	id, ok := invoiceID(w, r)
	if !ok {
		return
	}
	s, err := h.Workflow.Suggest(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to compute suggestion", err)
		return
	}
	resp := SuggestionResponse{}
	if s != nil {
		resp.Suggestion = s
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetAuditLog(w http.ResponseWriter, r *http.Request) {
	id, ok := invoiceID(w, r)
	if !ok {
		return
	}
	if _, err := h.Store.GetInvoice(r.Context(), id); err != nil {
		h.writeDomainError(w, "Failed to get invoice", err)
		return
	}
	entries, err := h.Store.ListAudit(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to list audit log", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(entries))
}

func (h *Handler) RequestVendorResponse(w http.ResponseWriter, r *http.Request) {
	h.requestResponse(w, r, h.Workflow.RequestVendorResponse)
}

func (h *Handler) RequestInternalResponse(w http.ResponseWriter, r *http.Request) {
	h.requestResponse(w, r, h.Workflow.RequestInternalResponse)
}

type requestFunc func(ctx context.Context, id int64, message, actor string) (*ap.Invoice, error)

func (h *Handler) requestResponse(w http.ResponseWriter, r *http.Request, fn requestFunc) {
	id, ok := invoiceID(w, r)
	if !ok {
		return
	}
	var req MessageRequest
	if !h.decode(w, r, &req) {
		return
	}
	inv, err := fn(r.Context(), id, req.Message, actor(r, req.Actor))
	if err != nil {
		h.writeDomainError(w, "Failed to request response", err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *Handler) GetVendorDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := invoiceID(w, r)
	if !ok {
		return
	}
	draft, err := h.Workflow.DraftVendorQuery(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to draft vendor query", err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func (h *Handler) ExportReviewQueue(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.Workflow.ExportReviewQueue(r.Context(), &buf); err != nil {
		h.writeDomainError(w, "Failed to export review queue", err)
		return
	}
	w.Header().Set("Content-Type", workflow.XLSXContentType)
	w.Header().Set("Content-Disposition", "attachment; filename=review-queue.xlsx")
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}

// =============================================================================
// PAYMENTS
// =============================================================================

func (h *Handler) ListPayable(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := workflow.PaymentProposal{VendorName: q.Get("vendor")}
	if v := q.Get("due_in_days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid due_in_days", err)
			return
		}
		p.DueInDays = n
	}
	invoices, err := h.Workflow.PayableInvoices(r.Context(), p)
	if err != nil {
		h.writeDomainError(w, "Failed to list payable invoices", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(invoices))
}

func (h *Handler) CreatePaymentBatch(w http.ResponseWriter, r *http.Request) {
	var req PaymentBatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	batch, err := h.Workflow.CreatePaymentBatch(r.Context(), workflow.PaymentProposal{
		InvoiceIDs: req.InvoiceIDs,
		VendorName: req.VendorName,
		DueInDays:  req.DueInDays,
	}, actor(r, req.Actor))
	if err != nil {
		h.writeDomainError(w, "Failed to create payment batch", err)
		return
	}
	writeJSON(w, http.StatusCreated, batch)
}

func (h *Handler) MarkBatchPaid(w http.ResponseWriter, r *http.Request) {
	paid, err := h.Workflow.MarkBatchPaid(r.Context(), chi.URLParam(r, "batchID"), actor(r, ""))
	if err != nil {
		h.writeDomainError(w, "Failed to mark batch paid", err)
		return
	}
	writeJSON(w, http.StatusOK, PaidResponse{Paid: nonNil(paid)})
}

func (h *Handler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	var req MarkPaidRequest
	if !h.decode(w, r, &req) {
		return
	}
	paid, err := h.Workflow.MarkPaid(r.Context(), req.InvoiceIDs, actor(r, req.Actor))
	if err != nil {
		h.writeDomainError(w, "Failed to mark invoices paid", err)
		return
	}
	writeJSON(w, http.StatusOK, PaidResponse{Paid: nonNil(paid)})
}

// ExportBatch renders the workbook into memory first so a missing batch is
// still a JSON 404.
func (h *Handler) ExportBatch(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")
	var buf bytes.Buffer
	if err := h.Workflow.ExportBatch(r.Context(), batchID, &buf); err != nil {
		h.writeDomainError(w, "Failed to export batch", err)
		return
	}
	w.Header().Set("Content-Type", workflow.XLSXContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.xlsx", batchID))
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}

// =============================================================================
// LEARNING & NOTIFICATIONS
// =============================================================================

func (h *Handler) ListHeuristics(w http.ResponseWriter, r *http.Request) {
	hs, err := h.Store.ListHeuristics(r.Context(), r.URL.Query().Get("vendor"))
	if err != nil {
		h.writeDomainError(w, "Failed to list heuristics", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(hs))
}

func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	unreadOnly := r.URL.Query().Get("unread") == "true"
	ns, err := h.Store.ListNotifications(r.Context(), unreadOnly)
	if err != nil {
		h.writeDomainError(w, "Failed to list notifications", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(ns))
}

func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.MarkNotificationRead(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeDomainError(w, "Failed to mark notification read", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AcceptSuggestion(w http.ResponseWriter, r *http.Request) {
	rule, err := h.Workflow.AcceptSuggestion(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, "Failed to accept suggestion", err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

// RunMonitor runs one monitoring cycle now.
func (h *Handler) RunMonitor(w http.ResponseWriter, r *http.Request) {
	if h.Monitor == nil {
		writeError(w, http.StatusNotFound, "Monitor is not configured", nil)
		return
	}
	res, err := h.Monitor.RunOnce(r.Context())
	if err != nil {
		h.writeDomainError(w, "Monitoring cycle failed", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// =============================================================================
// CONFIGURATION
// =============================================================================

func (h *Handler) ListVendorSettings(w http.ResponseWriter, r *http.Request) {
	vs, err := h.Store.ListVendorSettings(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to list vendor settings", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(vs))
}

func (h *Handler) UpsertVendorSetting(w http.ResponseWriter, r *http.Request) {
	var req VendorSettingRequest
	if !h.decode(w, r, &req) {
		return
	}
	if t := req.PriceTolerancePercent; t != nil && (t.IsNegative() || t.GreaterThan(decimal.NewFromInt(100))) {
		writeError(w, http.StatusBadRequest, "price_tolerance_percent must be within 0..100", nil)
		return
	}
	vs := &ap.VendorSetting{
		VendorName:            strings.TrimSpace(req.VendorName),
		PriceTolerancePercent: req.PriceTolerancePercent,
		ContactEmail:          req.ContactEmail,
	}
	if err := h.Store.UpsertVendorSetting(r.Context(), vs); err != nil {
		h.writeDomainError(w, "Failed to save vendor setting", err)
		return
	}
	writeJSON(w, http.StatusOK, vs)
}

func (h *Handler) ListAutomationRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.Store.ListAutomationRules(r.Context(), r.URL.Query().Get("active") == "true")
	if err != nil {
		h.writeDomainError(w, "Failed to list automation rules", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rules))
}

func (h *Handler) CreateAutomationRule(w http.ResponseWriter, r *http.Request) {
	var req AutomationRuleRequest
	if !h.decode(w, r, &req) {
		return
	}
	rule, err := h.Workflow.CreateAutomationRule(r.Context(), workflow.RuleInput{
		RuleName:   req.RuleName,
		VendorName: req.VendorName,
		Conditions: req.Conditions,
		Action:     req.Action,
	}, "user")
	if err != nil {
		h.writeDomainError(w, "Failed to create automation rule", err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", PendingRematch: h.Workflow.PendingRematches()}
	if h.Monitor != nil {
		if last := h.Monitor.LastRun(); !last.IsZero() {
			resp.MonitorLastRun = last.UTC().Format("2006-01-02T15:04:05Z07:00")
			resp.MonitorNextRun = h.Monitor.NextRunTime().UTC().Format("2006-01-02T15:04:05Z07:00")
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors to status codes. Unexpected errors are
// logged and returned as 500.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case ap.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	case ap.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case ap.IsConflict(err), errors.Is(err, workflow.ErrLockNotObtained):
		writeError(w, http.StatusConflict, message, err)
	default:
		config.LogError(h.Log, "api", "writeDomainError", message, nil, err)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

// decode reads a JSON body and validates it, writing a 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func invoiceID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid invoice id", err)
		return 0, false
	}
	return id, true
}

func actor(r *http.Request, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	if u := r.Header.Get("X-User"); u != "" {
		return u
	}
	return "user"
}

// nonNil keeps empty lists as [] in JSON.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
