/*
orchestrator.go - Multi-pass batch ingestion

PURPOSE:
  Runs one upload batch (a job) end to end:

    1. Classify every file into the PO, GRN or invoice pass
    2. Run the passes in that order; within a pass a bounded pool of
       workers ingests files concurrently; a pass finishes completely
       before the next starts, so GRNs find their POs and invoices both
    3. Match each newly created invoice, one at a time
    4. Persist the job summary

PROGRESS:
  The processed-file counter is written every Options.ProgressEvery
  completions and at the end of each pass. Jobs cannot be cancelled;
  callers poll the job record.

FAILURES:
  A failed file is recorded in the summary and the batch continues. An
  engine failure on one invoice is recorded on that invoice. Anything else
  (the job record cannot be written, a panic outside a worker) fails the
  whole job with the error in its summary.
*/
package ingestion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/warp/ap-engine/ap"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// Ingester stores one file. *Service implements it.
type Ingester interface {
	IngestDocument(ctx context.Context, jobID, filename string, content []byte) (*Result, error)
}

// InvoiceMatcher runs the engine on one invoice, recording engine failures on
// the invoice itself. *matching.Engine implements it.
type InvoiceMatcher interface {
	RunMatchSafely(ctx context.Context, invoiceRowID int64) (*ap.Invoice, error)
}

// File is one uploaded document.
type File struct {
	Name    string
	Content []byte
}

type Options struct {
	// Workers bounds concurrent ingestion within a pass.
	Workers int
	// ProgressEvery is how many completions pass between progress writes.
	ProgressEvery int
}

func DefaultOptions() Options {
	return Options{Workers: 9, ProgressEvery: 5}
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

type Orchestrator struct {
	ingester Ingester
	jobs     ap.JobStore
	matcher  InvoiceMatcher
	opts     Options
	log      logrus.FieldLogger
	now      func() time.Time

	wg sync.WaitGroup
}

func NewOrchestrator(ingester Ingester, jobs ap.JobStore, matcher InvoiceMatcher, opts Options, log logrus.FieldLogger) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = DefaultOptions().Workers
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = DefaultOptions().ProgressEvery
	}
	return &Orchestrator{ingester: ingester, jobs: jobs, matcher: matcher, opts: opts, log: log, now: time.Now}
}

// Submit creates a job and processes it in the background. The returned job
// is in the processing state; poll the job store for the outcome.
func (o *Orchestrator) Submit(ctx context.Context, files []File) (*ap.Job, error) {
	job, err := o.CreateJob(ctx, len(files))
	if err != nil {
		return nil, err
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		// Detached: the upload request returns before the job finishes.
		if _, err := o.Run(context.WithoutCancel(ctx), job.ID, files); err != nil {
			o.log.WithError(err).WithField("job_id", job.ID).Error("job failed")
		}
	}()
	return job, nil
}

// Wait blocks until every submitted job has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) CreateJob(ctx context.Context, totalFiles int) (*ap.Job, error) {
	job := &ap.Job{
		ID:         uuid.NewString(),
		Status:     ap.JobProcessing,
		TotalFiles: totalFiles,
		CreatedAt:  o.now().UTC(),
	}
	if err := o.jobs.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	return job, nil
}

// Run processes files for an existing job and returns its final summary.
// The returned error is the catastrophic one that failed the job.
func (o *Orchestrator) Run(ctx context.Context, jobID string, files []File) (summary *ap.JobSummary, err error) {
	log := o.log.WithField("job_id", jobID)
	summary = &ap.JobSummary{TotalFiles: len(files)}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("orchestrator panic: %v", r)
		}
		if err != nil {
			summary.Message = "Job failed."
			summary.Error = err.Error()
			if ferr := o.jobs.FinishJob(ctx, jobID, ap.JobFailed, summary, o.now().UTC()); ferr != nil {
				log.WithError(ferr).Error("cannot record job failure")
			}
		}
	}()

	var passes [3][]int
	for i, f := range files {
		p := Classify(f.Name)
		passes[p] = append(passes[p], i)
	}

	results := make([]ap.FileResult, len(files))
	progress := &progress{every: o.opts.ProgressEvery}
	for _, pass := range []Pass{PassPO, PassGRN, PassInvoice} {
		if len(passes[pass]) == 0 {
			continue
		}
		log.WithFields(logrus.Fields{"pass": pass.String(), "files": len(passes[pass])}).Info("ingestion pass started")
		if err := o.runPass(ctx, jobID, files, passes[pass], results, progress); err != nil {
			return summary, err
		}
	}

	if err := o.jobs.UpdateJobProgress(ctx, jobID, progress.count(), ap.JobMatching); err != nil {
		return summary, fmt.Errorf("mark job matching: %w", err)
	}

	seenPO := make(map[string]bool)
	for _, r := range results {
		if r.Success {
			summary.SuccessfulFiles++
		} else {
			summary.FailedFiles++
		}
		for _, n := range r.AffectedPONumbers {
			if !seenPO[n] {
				seenPO[n] = true
				summary.AffectedPONumbers = append(summary.AffectedPONumbers, n)
			}
		}
	}

	// Matching runs strictly after every pass and one invoice at a time.
	for _, r := range results {
		if r.InvoiceRowID == 0 {
			continue
		}
		inv, merr := o.matcher.RunMatchSafely(ctx, r.InvoiceRowID)
		if merr != nil {
			log.WithError(merr).WithField("row_id", r.InvoiceRowID).Warn("engine error during batch matching")
		}
		if inv != nil && inv.Status == ap.StatusMatched {
			summary.InvoicesMatched++
		} else {
			summary.InvoicesForReview++
		}
	}

	summary.Files = results
	summary.Message = fmt.Sprintf("Processed %d file(s): %d succeeded, %d failed. %d invoice(s) matched, %d need review.",
		len(files), summary.SuccessfulFiles, summary.FailedFiles, summary.InvoicesMatched, summary.InvoicesForReview)

	if err := o.jobs.FinishJob(ctx, jobID, ap.JobCompleted, summary, o.now().UTC()); err != nil {
		return summary, fmt.Errorf("finish job: %w", err)
	}
	log.WithFields(logrus.Fields{
		"successful": summary.SuccessfulFiles,
		"failed":     summary.FailedFiles,
		"matched":    summary.InvoicesMatched,
		"review":     summary.InvoicesForReview,
	}).Info("job completed")
	return summary, nil
}

// runPass ingests one bucket with a bounded pool and returns once every
// worker is done.
func (o *Orchestrator) runPass(ctx context.Context, jobID string, files []File, idx []int, results []ap.FileResult, p *progress) error {
	var g errgroup.Group
	g.SetLimit(o.opts.Workers)

	for _, i := range idx {
		i := i
		g.Go(func() error {
			results[i] = o.ingestOne(ctx, jobID, files[i])
			if n, flush := p.done(); flush {
				return o.jobs.UpdateJobProgress(ctx, jobID, n, ap.JobProcessing)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	if err := o.jobs.UpdateJobProgress(ctx, jobID, p.count(), ap.JobProcessing); err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	return nil
}

func (o *Orchestrator) ingestOne(ctx context.Context, jobID string, f File) (fr ap.FileResult) {
	fr.Filename = f.Name
	defer func() {
		if r := recover(); r != nil {
			fr.Success = false
			fr.Message = fmt.Sprintf("unexpected error: %v", r)
		}
	}()

	res, err := o.ingester.IngestDocument(ctx, jobID, f.Name, f.Content)
	if res != nil {
		fr.DocumentType = res.DocumentType
		fr.AffectedPONumbers = res.AffectedPONumbers
		fr.InvoiceRowID = res.InvoiceRowID
	}
	if err != nil {
		fr.Message = err.Error()
		o.log.WithError(err).WithFields(logrus.Fields{"job_id": jobID, "filename": f.Name}).Warn("file not ingested")
		return fr
	}
	fr.Success = true
	fr.Message = fmt.Sprintf("Stored %s.", fr.DocumentType)
	return fr
}

// progress counts completions across all passes.
type progress struct {
	mu    sync.Mutex
	n     int
	every int
}

func (p *progress) done() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.n++
	return p.n, p.n%p.every == 0
}

func (p *progress) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.n
}
