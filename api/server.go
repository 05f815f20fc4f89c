/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, the middleware stack and the route table.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, carried into the request log
  2. Logger:     Structured request logging through logrus
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the review UI

ROUTE GROUPS:
  /api/documents/*      Upload, jobs, source files, PO/GRN corrections
  /api/invoices/*       Review queue, status workflow, re-matching
  /api/payments/*       Payment batches and exports
  /api/learning/*       Learned heuristics
  /api/notifications/*  Suggestions and optimizations
  /api/config/*         Vendor settings and automation rules
  /api/monitor/run      Run a monitoring cycle now
  /api/health           Liveness

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.Log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Route("/documents", func(r chi.Router) {
			r.Post("/upload", h.UploadDocuments)
			r.Get("/jobs", h.ListJobs)
			r.Get("/jobs/{id}", h.GetJob)
			r.Get("/file/{filename}", h.GetDocumentFile)
			r.Put("/purchase-orders/{poNumber}", h.EditPurchaseOrder)
			r.Put("/grns/{grnNumber}", h.EditGoodsReceipt)
		})

		r.Route("/invoices", func(r chi.Router) {
			r.Get("/", h.ListInvoices)
			r.Get("/review-queue.xlsx", h.ExportReviewQueue)
			r.Post("/batch-status", h.BatchUpdateStatus)
			r.Post("/batch-rematch", h.BatchRematch)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetInvoice)
				r.Post("/status", h.UpdateInvoiceStatus)
				r.Post("/rematch", h.RematchInvoice)
				r.Put("/notes", h.UpdateNotes)
				r.Put("/gl-code", h.UpdateGLCode)
				r.Get("/suggestion", h.GetSuggestion)
				r.Get("/audit-log", h.GetAuditLog)
				r.Post("/request-vendor-response", h.RequestVendorResponse)
				r.Post("/request-internal-response", h.RequestInternalResponse)
				r.Get("/vendor-draft", h.GetVendorDraft)
			})
		})

		r.Route("/payments", func(r chi.Router) {
			r.Get("/payable", h.ListPayable)
			r.Post("/paid", h.MarkPaid)
			r.Post("/batches", h.CreatePaymentBatch)
			r.Post("/batches/{batchID}/paid", h.MarkBatchPaid)
			r.Get("/batches/{batchID}/export", h.ExportBatch)
		})

		r.Get("/learning/heuristics", h.ListHeuristics)

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", h.ListNotifications)
			r.Post("/{id}/read", h.MarkNotificationRead)
			r.Post("/{id}/accept", h.AcceptSuggestion)
		})

		r.Route("/config", func(r chi.Router) {
			r.Get("/vendor-settings", h.ListVendorSettings)
			r.Put("/vendor-settings", h.UpsertVendorSetting)
			r.Get("/automation-rules", h.ListAutomationRules)
			r.Post("/automation-rules", h.CreateAutomationRule)
		})

		r.Post("/monitor/run", h.RunMonitor)
	})

	return r
}

// requestLogger logs one line per request with its status and latency.
func requestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			entry := log.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"duration":   time.Since(start).String(),
				"request_id": middleware.GetReqID(r.Context()),
			})
			if ww.Status() >= http.StatusInternalServerError {
				entry.Warn("[HTTP] Request failed")
				return
			}
			entry.Debug("[HTTP] Request")
		})
	}
}
