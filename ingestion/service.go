/*
Package ingestion turns uploaded files into stored documents.

PURPOSE:
  Service.IngestDocument handles one file: keep the blob, call the
  extraction service, validate the typed payload, and store the PO, GRN or
  invoice it describes. Orchestrator runs a whole upload batch through the
  service in three ordered passes and then matches the new invoices.

SEE ALSO:
  - payload.go: Extraction payload types and validation
  - orchestrator.go: Batch passes, worker pool, job progress
  - classify.go: Filename to pass
*/
package ingestion

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/warp/ap-engine/ap"
	"github.com/warp/ap-engine/docstore"
)

// Store is the persistence ingestion writes to.
type Store interface {
	ap.DocumentStore
	ap.InvoiceStore
}

// Result describes what one file became. On a duplicate PO or GRN it is
// returned alongside the error so callers still learn the affected POs.
type Result struct {
	DocumentType      ap.DocumentType
	AffectedPONumbers []string
	InvoiceRowID      int64
	Payload           Payload
}

type Service struct {
	store     Store
	extractor Extractor
	docs      docstore.Store
	log       logrus.FieldLogger
}

// NewService builds the single-file ingester. docs may be nil when blobs are
// not kept.
func NewService(store Store, extractor Extractor, docs docstore.Store, log logrus.FieldLogger) *Service {
	return &Service{store: store, extractor: extractor, docs: docs, log: log}
}

// IngestDocument extracts and stores one file. Every failure is returned as
// an error; none of them is fatal to a batch.
func (s *Service) IngestDocument(ctx context.Context, jobID, filename string, content []byte) (*Result, error) {
	name, err := docstore.CleanName(filename)
	if err != nil {
		return nil, err
	}
	log := s.log.WithFields(logrus.Fields{"job_id": jobID, "filename": name})

	if s.docs != nil {
		if err := s.docs.Put(ctx, name, content); err != nil {
			return nil, fmt.Errorf("store blob: %w", err)
		}
	}

	raw, err := s.extractor.Extract(ctx, name, content)
	if err != nil {
		if !errors.Is(err, ap.ErrExtractionFailed) {
			err = &ap.ExtractionError{Filename: name, Message: err.Error()}
		}
		return nil, err
	}

	payload, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	res := &Result{DocumentType: payload.DocumentType(), Payload: payload}

	switch p := payload.(type) {
	case *ErrorPayload:
		msg := p.ErrorMessage
		if msg == "" {
			msg = "document could not be read"
		}
		return res, &ap.ExtractionError{Filename: name, Message: msg}

	case *POPayload:
		po := p.PurchaseOrder(raw, name)
		res.AffectedPONumbers = []string{po.PONumber}
		if err := s.store.SavePurchaseOrder(ctx, po); err != nil {
			return res, err
		}

	case *GRNPayload:
		grn := p.GoodsReceipt(name)
		if grn.PONumber != "" {
			res.AffectedPONumbers = []string{grn.PONumber}
		}
		if err := s.store.SaveGoodsReceipt(ctx, grn); err != nil {
			return res, err
		}

	case *InvoicePayload:
		inv := p.Invoice(jobID, name)
		if err := s.store.CreateInvoice(ctx, inv); err != nil {
			return res, err
		}
		res.InvoiceRowID = inv.ID
		res.AffectedPONumbers, err = s.invoicePOs(ctx, inv)
		if err != nil {
			return res, err
		}
	}

	log.WithFields(logrus.Fields{
		"document_type": res.DocumentType,
		"affected_pos":  res.AffectedPONumbers,
	}).Info("document ingested")
	return res, nil
}

// invoicePOs lists the POs an invoice touches, including those reached
// through its GRNs.
func (s *Service) invoicePOs(ctx context.Context, inv *ap.Invoice) ([]string, error) {
	out := inv.AllPONumbers()
	seen := make(map[string]bool, len(out))
	for _, n := range out {
		seen[n] = true
	}
	for _, number := range inv.GRNNumbers {
		grn, err := s.store.GetGoodsReceipt(ctx, number)
		if ap.IsNotFound(err) {
			continue
		}
		if err != nil {
			return out, fmt.Errorf("resolve GRN %s: %w", number, err)
		}
		if grn.PONumber != "" && !seen[grn.PONumber] {
			seen[grn.PONumber] = true
			out = append(out, grn.PONumber)
		}
	}
	return out, nil
}
