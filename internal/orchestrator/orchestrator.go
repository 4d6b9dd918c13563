// Package orchestrator drives one submission through the whole pipeline:
// validate the media, reject duplicates, resolve the store's publish
// targets, then fan out to the platform publishers and aggregate their
// terminal results. One orchestration run handles exactly one submission;
// runs are independent and share no mutable state.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/storeberg/crosspost/internal/dedup"
	"github.com/storeberg/crosspost/internal/locator"
	"github.com/storeberg/crosspost/internal/media"
	"github.com/storeberg/crosspost/internal/metrics"
	"github.com/storeberg/crosspost/internal/publish"
	"github.com/storeberg/crosspost/internal/route"
	"github.com/storeberg/crosspost/internal/store"
)

// PlatformPublisher posts one prepared asset to one target and returns
// the platform post id.
type PlatformPublisher interface {
	Publish(ctx context.Context, sub publish.Submission, ref locator.Ref, target publish.Target) (string, error)
}

// AuditWriter persists the terminal record of a run. Failing to write the
// audit record never fails the run.
type AuditWriter interface {
	PutPublishRecord(ctx context.Context, rec *store.PublishRecord) error
}

// Orchestrator wires the pipeline stages together. All collaborators are
// injected; the orchestrator owns sequencing, fan-out, and aggregation,
// nothing else.
type Orchestrator struct {
	Validator  *media.Validator
	Converter  *media.Converter
	Locator    *locator.Locator
	Guard      *dedup.Guard
	Router     *route.Router
	Publishers map[publish.Platform]PlatformPublisher
	Audit      AuditWriter

	// MaxTargets caps the fan-out width of a single submission.
	MaxTargets int

	// RunTimeout bounds one whole orchestration run.
	RunTimeout time.Duration
}

// Media describes the inbound media for one run: where the bytes were
// spooled, the client-declared filename, and — for by-reference
// submissions — the HTTPS origin the bytes came from.
type Media struct {
	Path         string
	DeclaredName string
	SourceURL    string
}

// Outcome is the aggregate of one orchestration run.
type Outcome struct {
	SubmissionID string           `json:"submission_id"`
	Status       publish.Status   `json:"status"`
	Results      []publish.Result `json:"results"`
}

// Run processes one submission whose media has already been spooled
// locally. Per-target failures are isolated: one platform rejecting the
// post never aborts the sibling targets. Run only returns an error for
// failures that precede fan-out (validation, duplicate, routing); after
// fan-out the answer is always an Outcome.
func (o *Orchestrator) Run(ctx context.Context, sub publish.Submission, m Media) (*Outcome, error) {
	start := time.Now()
	runID := uuid.New().String()
	logger := log.With().Str("submissionId", runID).Str("storeId", sub.StoreID).Logger()

	if o.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.RunTimeout)
		defer cancel()
	}

	asset, err := o.Validator.Validate(m.Path, m.DeclaredName)
	if err != nil {
		metrics.New("Crosspost").Count("ValidationRejected").Property("storeId", sub.StoreID).Flush()
		return nil, err
	}
	asset.SourceURL = m.SourceURL
	logger.Info().Str("mime", asset.MIME).Int64("sizeBytes", asset.Size).
		Int("width", asset.Width).Int("height", asset.Height).Msg("Media validated")

	fp, err := dedup.Compute(sub, asset.Path)
	if err != nil {
		return nil, fmt.Errorf("fingerprint submission: %w", err)
	}
	outcome, err := o.Guard.CheckAndRegister(ctx, fp)
	if err != nil {
		return nil, err
	}
	if outcome == dedup.Duplicate {
		metrics.New("Crosspost").Count("DuplicateSkipped").Property("storeId", sub.StoreID).Flush()
		o.writeAudit(ctx, runID, sub, fp, &Outcome{
			SubmissionID: runID,
			Status:       publish.StatusSkipped,
		}, asset.Capture)
		return nil, fmt.Errorf("%w: seen within the last %s", publish.ErrDuplicate, o.Guard.Window())
	}

	targets, err := o.Router.Route(ctx, sub.StoreID)
	if err != nil {
		return nil, err
	}
	if o.MaxTargets > 0 && len(targets) > o.MaxTargets {
		logger.Warn().Int("configured", len(targets)).Int("cap", o.MaxTargets).
			Msg("Fan-out capped, dropping trailing targets")
		targets = targets[:o.MaxTargets]
	}

	results := make([]publish.Result, len(targets))
	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target publish.Target) {
			defer wg.Done()
			results[i] = o.publishOne(ctx, sub, asset, target)
		}(i, target)
	}
	wg.Wait()

	out := &Outcome{
		SubmissionID: runID,
		Status:       aggregate(results),
		Results:      results,
	}
	o.writeAudit(ctx, runID, sub, fp, out, asset.Capture)

	metrics.New("Crosspost").
		Count("SubmissionProcessed").
		Metric("RunDuration", float64(time.Since(start).Milliseconds()), "Milliseconds").
		Metric("TargetCount", float64(len(targets)), "Count").
		Property("storeId", sub.StoreID).
		Property("status", string(out.Status)).
		Flush()
	logger.Info().Str("status", string(out.Status)).Int("targets", len(targets)).
		Dur("duration", time.Since(start)).Msg("Orchestration run finished")
	return out, nil
}

// publishOne runs the per-target leg: convert for the platform, obtain a
// durable URL, publish. Any error terminates only this target.
func (o *Orchestrator) publishOne(ctx context.Context, sub publish.Submission, asset media.Asset, target publish.Target) publish.Result {
	result := publish.Result{Platform: target.Platform, AccountID: target.AccountID}

	converted, err := o.Converter.Convert(ctx, asset, target.Platform)
	if err != nil {
		log.Error().Err(err).Str("platform", string(target.Platform)).
			Str("accountId", target.AccountID).Msg("Media conversion failed")
		result.Status = publish.StatusFailed
		result.Error = err.Error()
		return result
	}
	if converted.Path != asset.Path {
		defer os.Remove(converted.Path)
	}

	ref, err := o.Locator.Locate(ctx, converted)
	if err != nil {
		log.Error().Err(err).Str("platform", string(target.Platform)).
			Str("accountId", target.AccountID).Msg("No durable media URL")
		result.Status = publish.StatusFailed
		result.Error = err.Error()
		return result
	}

	publisher, ok := o.Publishers[target.Platform]
	if !ok {
		result.Status = publish.StatusFailed
		result.Error = fmt.Sprintf("no publisher for platform %q", target.Platform)
		return result
	}

	postID, err := publisher.Publish(ctx, sub, ref, target)
	if err != nil {
		result.Status = publish.StatusFailed
		result.Error = err.Error()
		metrics.New("Crosspost").Count("PublishFailed").
			Property("platform", string(target.Platform)).Flush()
		return result
	}

	result.Status = publish.StatusSuccess
	result.PostID = postID
	metrics.New("Crosspost").Count("PublishSucceeded").
		Property("platform", string(target.Platform)).Flush()
	return result
}

// aggregate folds per-target results into the run status: success if at
// least one target succeeded, failed only if every target failed.
func aggregate(results []publish.Result) publish.Status {
	if len(results) == 0 {
		return publish.StatusFailed
	}
	for _, r := range results {
		if r.Status == publish.StatusSuccess {
			return publish.StatusSuccess
		}
	}
	return publish.StatusFailed
}

// writeAudit persists the run record. Audit failures are logged, never
// surfaced: losing an audit row must not turn a published post into a
// reported failure.
func (o *Orchestrator) writeAudit(ctx context.Context, runID string, sub publish.Submission, fp dedup.Fingerprint, out *Outcome, capture *media.Capture) {
	if o.Audit == nil {
		return
	}
	rec := &store.PublishRecord{
		SubmissionID: runID,
		StoreID:      sub.StoreID,
		Title:        sub.Title,
		ProductURL:   sub.ProductURL,
		Fingerprint:  string(fp),
		Status:       string(out.Status),
		Results:      out.Results,
		Capture:      capture,
		CreatedAt:    time.Now().Unix(),
	}
	// The audit write gets its own short deadline so a stalled table does
	// not eat the remainder of the run budget.
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := o.Audit.PutPublishRecord(auditCtx, rec); err != nil {
		log.Error().Err(err).Str("submissionId", runID).Msg("Audit record write failed")
	}
}

// Classify maps a pipeline error to a stable classification string for
// logs and the webhook response body.
func Classify(err error) string {
	switch {
	case errors.Is(err, publish.ErrValidation):
		return "validation"
	case errors.Is(err, publish.ErrDuplicate):
		return "duplicate"
	case errors.Is(err, publish.ErrConfiguration):
		return "configuration"
	case errors.Is(err, publish.ErrConversion):
		return "conversion"
	case errors.Is(err, publish.ErrLocator):
		return "locator"
	default:
		return "internal"
	}
}
