package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"docxingest/internal/domain"
	"docxingest/internal/metrics"
)

var errAbandoned = errors.New("batch canceled before payload finished")

// payloadRun walks one payload through the stage machine and emits an event
// for every transition.
type payloadRun struct {
	s       *pipelineService
	run     *batchRun
	payload *domain.AttachmentPayload
	stage   domain.Stage
	entered time.Time
	log     *slog.Logger
}

func (p *payloadRun) emit(ctx context.Context, status domain.EventStatus, detail string) {
	p.s.emit(ctx, p.run.id, p.payload.MessageID, p.payload.ContentHash, p.stage, status, detail)
}

// advance moves to next. Illegal transitions are programming errors and are
// refused.
func (p *payloadRun) advance(ctx context.Context, next domain.Stage) error {
	if !p.stage.CanAdvanceTo(next) {
		return fmt.Errorf("pipeline: illegal transition %s -> %s", p.stage, next)
	}
	if !p.entered.IsZero() && !p.stage.IsTerminal() {
		metrics.CaptureStage(string(p.stage), time.Since(p.entered))
		p.emit(ctx, domain.EventSucceeded, "")
	}
	p.stage = next
	p.entered = time.Now()
	if !next.IsTerminal() {
		p.emit(ctx, domain.EventStarted, "")
	}
	return nil
}

func (p *payloadRun) outcome() domain.PayloadOutcome {
	return domain.PayloadOutcome{
		MessageID:   p.payload.MessageID,
		PayloadHash: p.payload.ContentHash,
		Filename:    p.payload.Filename,
		Stage:       p.stage,
	}
}

// processPayload runs one payload to a terminal state and records its
// outcome. Stage calls use a context detached from batch cancellation, so a
// stage in flight finishes; a canceled batch abandons the payload before the
// next stage starts. Only fatal errors are returned.
func (s *pipelineService) processPayload(
	batchCtx context.Context,
	run *batchRun,
	seq int,
	payload *domain.AttachmentPayload,
	meta *domain.MessageMetadata,
) error {
	metrics.IncrementActiveWorkers()
	defer metrics.DecrementActiveWorkers()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(batchCtx), s.cfg.PayloadTimeout)
	defer cancel()

	p := &payloadRun{
		s:       s,
		run:     run,
		payload: payload,
		stage:   domain.StageDiscovered,
		log: s.log.With(
			"batch_id", run.id,
			"message_id", payload.MessageID,
			"payload_hash", payload.ContentHash,
		),
	}
	p.emit(ctx, domain.EventStarted, payload.Filename)

	unlock := s.deps.Ledger.Lock(payload.ContentHash)
	defer unlock()

	done, err := s.checkLedger(ctx, p, seq)
	if done || err != nil {
		return err
	}

	out, err := s.runStages(batchCtx, ctx, p, meta)
	if err != nil {
		var fatal *domain.FatalError
		if errors.As(err, &fatal) {
			s.fail(ctx, p, seq, domain.StageFailed, err)
			return err
		}
		terminal := domain.StageFailed
		if domain.Classify(err) == domain.ClassStructural {
			terminal = domain.StageRejected
		}
		s.fail(ctx, p, seq, terminal, err)
		return nil
	}

	run.add(seq, out)
	metrics.RecordPayload(string(domain.StageCommitted))
	return nil
}

// checkLedger reports done when the payload was already committed.
func (s *pipelineService) checkLedger(ctx context.Context, p *payloadRun, seq int) (bool, error) {
	processed, err := s.deps.Ledger.IsProcessed(ctx, p.payload.ContentHash)
	if err != nil {
		s.fail(ctx, p, seq, domain.StageFailed, err)
		if domain.Classify(err) == domain.ClassFatal {
			return true, err
		}
		return true, nil
	}
	if !processed {
		return false, nil
	}

	p.emit(ctx, domain.EventSkippedDuplicate, "content hash already committed")
	o := p.outcome()
	o.Terminal = domain.EventSkippedDuplicate
	o.Reason = "duplicate content"
	if entry, err := s.deps.Ledger.Get(ctx, p.payload.ContentHash); err == nil {
		o.Location = entry.Location
	}
	p.run.add(seq, o)
	metrics.RecordPayload("duplicate")
	p.log.Info("payload skipped as duplicate")
	return true, nil
}

func (s *pipelineService) runStages(
	batchCtx, ctx context.Context,
	p *payloadRun,
	meta *domain.MessageMetadata,
) (domain.PayloadOutcome, error) {
	checkpoint := func(next domain.Stage) error {
		if batchCtx.Err() != nil {
			return &domain.TransientError{Op: "pipeline.processPayload", Err: errAbandoned}
		}
		return p.advance(ctx, next)
	}

	if err := checkpoint(domain.StageExtracting); err != nil {
		return domain.PayloadOutcome{}, err
	}
	pages, err := s.deps.Normalizer.Normalize(p.payload)
	if err != nil {
		return domain.PayloadOutcome{}, err
	}

	if err := checkpoint(domain.StageRecognizing); err != nil {
		return domain.PayloadOutcome{}, err
	}
	doc, err := s.deps.OCR.Recognize(ctx, pages)
	if err != nil {
		return domain.PayloadOutcome{}, err
	}
	if failed := failedPages(doc.Pages); failed > 0 && failed == len(doc.Pages) {
		return domain.PayloadOutcome{}, &domain.TransientError{
			Op:  "pipeline.recognize",
			Err: fmt.Errorf("all %d pages failed recognition: %s", failed, doc.Pages[0].Error),
		}
	}

	if err := checkpoint(domain.StageFieldExtracting); err != nil {
		return domain.PayloadOutcome{}, err
	}
	result, err := s.deps.Fields.Extract(ctx, p.payload.ContentHash, doc)
	if err != nil {
		return domain.PayloadOutcome{}, err
	}

	if err := checkpoint(domain.StageValidating); err != nil {
		return domain.PayloadOutcome{}, err
	}
	verdict := s.deps.Validator.Validate(ctx, result)
	if verdict.IsRejected() {
		return domain.PayloadOutcome{}, &domain.RejectedError{Reason: verdict.Reason}
	}

	if err := checkpoint(domain.StageUploading); err != nil {
		return domain.PayloadOutcome{}, err
	}
	location, err := s.deps.Uploader.Commit(ctx, p.run.id, result, verdict, p.payload, meta)
	if err != nil {
		return domain.PayloadOutcome{}, err
	}

	if err := p.advance(ctx, domain.StageCommitted); err != nil {
		return domain.PayloadOutcome{}, err
	}
	p.emit(ctx, domain.EventSucceeded, location)
	p.log.Info("payload committed", "location", location, "verdict", verdict.Outcome)

	o := p.outcome()
	o.Terminal = domain.EventSucceeded
	o.Verdict = verdict.Outcome
	o.Location = location
	o.Fields = &result.Fields
	if verdict.Outcome == domain.VerdictAcceptedWithWarnings && len(verdict.Issues) > 0 {
		o.Reason = verdict.Issues[0].Message
	}
	return o, nil
}

// fail moves the payload to terminal and emits its single failed event,
// whose detail names the stage that was running.
func (s *pipelineService) fail(ctx context.Context, p *payloadRun, seq int, terminal domain.Stage, err error) {
	failedAt := p.stage
	if p.stage.CanAdvanceTo(terminal) {
		p.stage = terminal
	}
	p.emit(ctx, domain.EventFailed, fmt.Sprintf("failed at %s: %s", failedAt, err))

	o := p.outcome()
	o.Terminal = domain.EventFailed
	o.Reason = err.Error()
	var rejected *domain.RejectedError
	if errors.As(err, &rejected) {
		o.Verdict = domain.VerdictRejected
		o.Reason = rejected.Reason
	}
	p.run.add(seq, o)
	metrics.RecordPayload(string(terminal))

	p.log.Warn("payload not committed",
		"stage", failedAt,
		"outcome", terminal,
		"class", domain.Classify(err),
		"error", err,
	)
}

func failedPages(pages []domain.PageText) int {
	n := 0
	for _, p := range pages {
		if p.Error != "" {
			n++
		}
	}
	return n
}
