package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/valpere/digestran/internal/digest"
	"github.com/valpere/digestran/internal/ratelimit"
	"github.com/valpere/digestran/internal/translator"
)

const reasonRateLimitExhausted = "rate limit exhausted on fallback model"

// Attempt is one call to the translation backend.
type Attempt struct {
	Model   Model
	ModelID string
	Outcome translator.FailureKind
	Latency time.Duration
}

// Controller drives a single chunk to a terminal state. It escalates from
// the primary to the fallback model and spends a bounded retry budget on the
// last model, so a chunk is attempted at most 2+MaxRetries times, which is
// never more than four.
type Controller struct {
	svc     translator.TranslationService
	limiter *ratelimit.Limiter
	cfg     Config
	metrics *Metrics
	logger  *slog.Logger
}

// NewController builds a controller from cfg.
func NewController(svc translator.TranslationService, limiter *ratelimit.Limiter, cfg Config) *Controller {
	cfg = cfg.withDefaults()
	return &Controller{
		svc:     svc,
		limiter: limiter,
		cfg:     cfg,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}
}

// Run parses st.Content and translates it, leaving st Completed or Failed.
// A chunk without items completes as its bare title without any call.
func (c *Controller) Run(ctx context.Context, st *ChunkState) {
	start := time.Now()
	defer func() { st.Duration = time.Since(start) }()

	st.Status = Processing
	chunk := digest.ParseChunk(st.Index, st.Content)
	st.Title = chunk.Title
	if len(chunk.Items) == 0 {
		st.Status = Completed
		st.Result = chunk.Title
		return
	}
	batch, urls := digest.PrepareBatch(chunk.Items)
	st.URLMapping = urls

	for !st.Status.Terminal() {
		text, err := c.attempt(ctx, st, batch)
		if err == nil {
			st.Status = Completed
			st.Err = ""
			st.LastFailure = translator.FailureNone
			st.Result = digest.Render(st.Title, digest.Format(text, st.URLMapping))
			return
		}
		if ctx.Err() != nil {
			c.fail(st, fmt.Sprintf("cancelled: %v", ctx.Err()))
			return
		}
		c.handleFailure(ctx, st, err)
	}
}

func (c *Controller) attempt(ctx context.Context, st *ChunkState, batch string) (string, error) {
	if _, err := c.limiter.Acquire(ctx); err != nil {
		return "", err
	}

	modelID := c.cfg.Models.ID(st.Model)
	cfg := c.cfg.Service
	cfg.Model = modelID

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if c.cfg.Policy.CallTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, c.cfg.Policy.CallTimeout)
	}
	defer cancel()

	st.Attempts++
	start := time.Now()
	res, err := c.svc.Translate(callCtx, cfg, translator.TranslateRequest{
		Text:       batch,
		SourceLang: c.cfg.SourceLang,
		TargetLang: c.cfg.TargetLang,
	})
	latency := time.Since(start)

	var text string
	if err == nil {
		if res != nil {
			text = strings.TrimSpace(res.TranslatedText)
		}
		if text == "" {
			err = fmt.Errorf("%s: empty translation: %w", c.svc.Name(), translator.ErrMalformedResponse)
		}
	}

	kind := translator.Classify(err)
	st.Log = append(st.Log, Attempt{Model: st.Model, ModelID: modelID, Outcome: kind, Latency: latency})
	c.metrics.observeAttempt(modelID, kind.String(), latency)

	if err != nil {
		c.logger.Debug("translation attempt failed",
			"chunk", st.ID,
			"model", modelID,
			"attempt", st.Attempts,
			"kind", kind.String(),
			"error", err,
		)
	}
	return text, err
}

func (c *Controller) handleFailure(ctx context.Context, st *ChunkState, err error) {
	kind := translator.Classify(err)
	st.LastFailure = kind
	st.Err = err.Error()
	next, hasNext := st.Model.next()

	switch {
	case kind == translator.FailureRateLimited && hasNext:
		c.backoff(ctx, st)
		c.escalate(st, next)

	case kind == translator.FailureRateLimited:
		until := c.limiter.InitiateCooldown(c.cfg.Policy.Cooldown)
		c.metrics.cooldown()
		c.logger.Warn("rate limited on last model, global cooldown",
			"chunk", st.ID,
			"model", c.cfg.Models.ID(st.Model),
			"until", until.Format(time.RFC3339),
		)
		if st.RetryCount < c.cfg.Policy.MaxRetries {
			st.RetryCount++
			return
		}
		c.fail(st, reasonRateLimitExhausted)

	case hasNext && st.RetryCount == 0:
		c.escalate(st, next)

	case !hasNext && st.RetryCount < c.cfg.Policy.MaxRetries:
		st.RetryCount++

	default:
		c.fail(st, err.Error())
	}
}

// backoff pauses after a rate limit on a non-last model. By default only
// this worker waits; with EscalatePrimaryCooldown the pause becomes a
// global cooldown that also holds back every other worker.
func (c *Controller) backoff(ctx context.Context, st *ChunkState) {
	d := c.cfg.Policy.PrimaryBackoff
	c.metrics.primaryBackoff()

	if c.cfg.Policy.EscalatePrimaryCooldown {
		until := c.limiter.InitiateCooldown(d)
		c.metrics.cooldown()
		c.logger.Warn("rate limited on primary model, global cooldown",
			"chunk", st.ID,
			"until", until.Format(time.RFC3339),
		)
		return
	}

	c.logger.Info("rate limited on primary model, pausing worker",
		"chunk", st.ID,
		"pause", d.String(),
	)
	// A cancelled pause surfaces at the next Acquire.
	_ = ratelimit.Sleep(ctx, d)
}

func (c *Controller) escalate(st *ChunkState, next Model) {
	c.logger.Debug("switching model",
		"chunk", st.ID,
		"from", c.cfg.Models.ID(st.Model),
		"to", c.cfg.Models.ID(next),
	)
	st.Model = next
	st.RetryCount = 0
}

func (c *Controller) fail(st *ChunkState, reason string) {
	st.Status = Failed
	st.Err = reason
	c.logger.Warn("chunk failed",
		"chunk", st.ID,
		"attempts", st.Attempts,
		"reason", reason,
	)
}
