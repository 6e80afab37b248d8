package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"docxingest/internal/attachment"
	"docxingest/internal/csvexport"
	"docxingest/internal/domain"
	"docxingest/internal/fieldextract"
	"docxingest/internal/ledger"
	"docxingest/internal/logging"
	"docxingest/internal/metrics"
	"docxingest/internal/normalizer"
	"docxingest/internal/ocr"
	"docxingest/internal/port"
	"docxingest/internal/upload"
	"docxingest/internal/validator"
)

const (
	defaultConcurrency    = 4
	defaultPayloadTimeout = 10 * time.Minute
	defaultLookback       = 72 * time.Hour
)

// PipelineConfig holds settings for a batch run.
type PipelineConfig struct {
	Concurrency    int
	PayloadTimeout time.Duration
	Lookback       time.Duration
	ReportEnabled  bool
	PresignExpiry  int64
}

// PipelineDeps are the stages a PipelineService drives.
type PipelineDeps struct {
	Mailbox     port.Mailbox
	Attachments *attachment.Extractor
	Normalizer  *normalizer.Normalizer
	OCR         *ocr.Stage
	Fields      *fieldextract.Extractor
	Validator   *validator.Engine
	Uploader    *upload.Orchestrator
	Ledger      *ledger.Ledger
	Events      port.EventSink
	Notifier    port.Notifier
}

// PipelineService runs ingestion batches.
type PipelineService interface {
	// RunBatch processes every eligible message once. Per-payload failures are
	// reported in the summary; only fatal errors are returned, together with
	// the partial summary.
	RunBatch(ctx context.Context) (*domain.BatchSummary, error)
	Latest() (*domain.BatchSummary, error)
	Running() bool
}

type pipelineService struct {
	deps PipelineDeps
	cfg  PipelineConfig
	now  func() time.Time
	log  *slog.Logger

	running atomic.Bool
	mu      sync.RWMutex
	latest  *domain.BatchSummary
}

// NewPipelineService creates a new PipelineService implementation.
func NewPipelineService(deps PipelineDeps, cfg PipelineConfig) PipelineService {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.PayloadTimeout <= 0 {
		cfg.PayloadTimeout = defaultPayloadTimeout
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = defaultLookback
	}
	return &pipelineService{
		deps: deps,
		cfg:  cfg,
		now:  time.Now,
		log:  logging.For("pipeline"),
	}
}

func (s *pipelineService) Running() bool {
	return s.running.Load()
}

func (s *pipelineService) Latest() (*domain.BatchSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return nil, domain.ErrNoRunYet
	}
	return s.latest, nil
}

// batchRun is the mutable state of one RunBatch call.
type batchRun struct {
	id      uuid.UUID
	mu      sync.Mutex
	entries []outcomeEntry
	seq     int
}

type outcomeEntry struct {
	seq     int
	outcome domain.PayloadOutcome
}

func (b *batchRun) next() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	return b.seq
}

func (b *batchRun) add(seq int, o domain.PayloadOutcome) {
	b.mu.Lock()
	b.entries = append(b.entries, outcomeEntry{seq: seq, outcome: o})
	b.mu.Unlock()
}

func (b *batchRun) outcomes() []domain.PayloadOutcome {
	b.mu.Lock()
	defer b.mu.Unlock()
	sort.Slice(b.entries, func(i, j int) bool { return b.entries[i].seq < b.entries[j].seq })
	out := make([]domain.PayloadOutcome, len(b.entries))
	for i, e := range b.entries {
		out[i] = e.outcome
	}
	return out
}

func (s *pipelineService) RunBatch(ctx context.Context) (*domain.BatchSummary, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, domain.ErrRunInProgress
	}
	defer s.running.Store(false)

	started := s.now().UTC()
	run := &batchRun{id: uuid.New()}
	log := s.log.With("batch_id", run.id)

	msgs, err := s.deps.Mailbox.ListUnprocessedMessages(ctx, started.Add(-s.cfg.Lookback))
	if err != nil {
		metrics.RecordBatch("error", time.Since(started))
		if domain.Classify(err) == domain.ClassFatal {
			return nil, err
		}
		return nil, fmt.Errorf("pipeline.RunBatch: listing messages: %w", err)
	}
	log.Info("batch started", "messages", len(msgs), "concurrency", s.cfg.Concurrency)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)

	matched := 0
	canceled := false
	meta := make(map[string]*domain.MessageMetadata)

schedule:
	for _, msg := range msgs {
		if gctx.Err() != nil {
			canceled = ctx.Err() != nil
			break
		}
		if !s.deps.Attachments.MatchesSubject(msg.Subject) {
			log.Debug("subject filtered", "message_id", msg.ID, "subject", msg.Subject)
			continue
		}
		matched++

		m, err := s.deps.Attachments.Metadata(msg)
		if err != nil {
			log.Warn("message metadata unreadable", "message_id", msg.ID, "error", err)
		}
		meta[msg.ID] = m

		found := false
		for item, err := range s.deps.Attachments.Attachments(msg) {
			if gctx.Err() != nil {
				canceled = ctx.Err() != nil
				break schedule
			}
			seq := run.next()
			switch {
			case err != nil:
				s.messageFailed(ctx, run, seq, msg, err)
			case item.Skip != nil:
				s.partSkipped(ctx, run, seq, item.Skip)
			default:
				found = true
				payload := item.Payload
				g.Go(func() error {
					return s.processPayload(ctx, run, seq, payload, m)
				})
			}
		}
		if !found {
			log.Debug("message has no document attachments", "message_id", msg.ID)
		}
	}

	runErr := g.Wait()
	if ctx.Err() != nil {
		canceled = true
	}

	summary := s.summarize(run, started, matched, canceled)
	result := "completed"
	var fatal *domain.FatalError
	switch {
	case errors.As(runErr, &fatal):
		result = "fatal"
		log.Error("batch aborted", "error", runErr)
	case canceled:
		result = "canceled"
	}

	if s.cfg.ReportEnabled && len(summary.Outcomes) > 0 {
		summary.ReportURL = s.publishReport(ctx, summary)
	}
	if s.deps.Notifier != nil {
		if err := s.deps.Notifier.SendBatchSummary(context.WithoutCancel(ctx), summary); err != nil {
			log.Warn("batch summary notification failed", "error", err)
		}
	}
	if n, err := s.deps.Ledger.Count(context.WithoutCancel(ctx)); err == nil {
		metrics.SetLedgerEntries(n)
	}
	metrics.RecordBatch(result, time.Since(started))

	s.mu.Lock()
	s.latest = summary
	s.mu.Unlock()

	log.Info("batch finished",
		"result", result,
		"messages", summary.Messages,
		"committed", summary.Committed,
		"rejected", summary.Rejected,
		"failed", summary.Failed,
		"duplicates", summary.Duplicates,
		"skipped", summary.Skipped,
	)

	if fatal != nil {
		return summary, fatal
	}
	return summary, nil
}

func (s *pipelineService) summarize(run *batchRun, started time.Time, messages int, canceled bool) *domain.BatchSummary {
	summary := &domain.BatchSummary{
		BatchID:    run.id,
		StartedAt:  started,
		FinishedAt: s.now().UTC(),
		Messages:   messages,
		Canceled:   canceled,
		Outcomes:   run.outcomes(),
	}
	for _, o := range summary.Outcomes {
		switch {
		case o.Terminal == domain.EventSkippedDuplicate:
			summary.Duplicates++
		case o.Terminal == domain.EventSkipped:
			summary.Skipped++
		case o.Stage == domain.StageCommitted:
			summary.Committed++
		case o.Stage == domain.StageRejected:
			summary.Rejected++
		default:
			summary.Failed++
		}
	}
	return summary
}

// publishReport uploads the CSV and XLSX reports and returns the CSV link.
// Report failures never fail the batch.
func (s *pipelineService) publishReport(ctx context.Context, summary *domain.BatchSummary) string {
	ctx = context.WithoutCancel(ctx)
	log := s.log.With("batch_id", summary.BatchID)

	csvData, err := csvexport.RenderCSV(summary)
	if err != nil {
		log.Warn("rendering csv report failed", "error", err)
		return ""
	}
	url, err := s.deps.Uploader.PutBatchFile(ctx, summary.BatchID,
		csvexport.BuildFilename(summary.StartedAt, "csv"), "text/csv; charset=utf-8", csvData, s.cfg.PresignExpiry)
	if err != nil {
		log.Warn("uploading csv report failed", "error", err)
		return ""
	}

	xlsxData, err := csvexport.RenderXLSX(summary)
	if err != nil {
		log.Warn("rendering xlsx report failed", "error", err)
		return url
	}
	if _, err := s.deps.Uploader.PutBatchFile(ctx, summary.BatchID,
		csvexport.BuildFilename(summary.StartedAt, "xlsx"),
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", xlsxData, 0); err != nil {
		log.Warn("uploading xlsx report failed", "error", err)
	}
	return url
}

func (s *pipelineService) messageFailed(ctx context.Context, run *batchRun, seq int, msg domain.SourceMessage, err error) {
	s.emit(ctx, run.id, msg.ID, "", domain.StageExtracting, domain.EventFailed, err.Error())
	outcome := domain.StageFailed
	if domain.Classify(err) == domain.ClassStructural {
		outcome = domain.StageRejected
	}
	metrics.RecordPayload(string(outcome))
	run.add(seq, domain.PayloadOutcome{
		MessageID: msg.ID,
		Terminal:  domain.EventFailed,
		Stage:     outcome,
		Reason:    err.Error(),
	})
}

func (s *pipelineService) partSkipped(ctx context.Context, run *batchRun, seq int, part *domain.SkippedPart) {
	s.emit(ctx, run.id, part.MessageID, "", domain.StageDiscovered, domain.EventSkipped,
		fmt.Sprintf("%s (%s): %s", part.Filename, part.MediaType, part.Reason))
	metrics.RecordPayload("skipped")
	run.add(seq, domain.PayloadOutcome{
		MessageID: part.MessageID,
		Filename:  part.Filename,
		Terminal:  domain.EventSkipped,
		Stage:     domain.StageDiscovered,
		Reason:    part.Reason,
	})
}

func (s *pipelineService) emit(ctx context.Context, batch uuid.UUID, msgID, hash string, stage domain.Stage, status domain.EventStatus, detail string) {
	if s.deps.Events == nil {
		return
	}
	_ = s.deps.Events.Emit(ctx, domain.PipelineEvent{
		ID:          uuid.New(),
		Timestamp:   s.now().UTC(),
		BatchID:     batch,
		MessageID:   msgID,
		PayloadHash: hash,
		Stage:       stage,
		Status:      status,
		Detail:      detail,
	})
}
