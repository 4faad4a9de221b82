// Package pipeline translates a digest document chunk by chunk.
//
// The document is split into chunks that are queued for a fixed pool of
// workers. Every call to the translation backend passes through one shared
// rate limiter, and each chunk is driven to a terminal state by a Controller
// that falls back from the primary to the fallback model. Completed chunks
// are reassembled in their original order; failed chunks are reported and
// omitted from the output.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/valpere/digestran/internal/digest"
	"github.com/valpere/digestran/internal/ratelimit"
	"github.com/valpere/digestran/internal/translator"
)

const (
	DefaultWorkers        = 10
	DefaultMaxRetries     = 2
	DefaultCooldown       = ratelimit.DefaultCooldown
	DefaultPrimaryBackoff = 60 * time.Second
	DefaultCallTimeout    = 30 * time.Second

	progressInterval = 5 * time.Second
)

// ErrNoChunksCompleted is returned by Run when the document had chunks and
// none of them could be translated.
var ErrNoChunksCompleted = errors.New("no chunks completed")

// Policy bounds the retry behaviour of a chunk.
type Policy struct {
	// MaxRetries is the number of fallback retries, at most DefaultMaxRetries.
	MaxRetries     int
	Cooldown       time.Duration
	PrimaryBackoff time.Duration
	CallTimeout    time.Duration
	// EscalatePrimaryCooldown turns the worker-local pause after a primary
	// rate limit into a global cooldown.
	EscalatePrimaryCooldown bool
}

func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:     DefaultMaxRetries,
		Cooldown:       DefaultCooldown,
		PrimaryBackoff: DefaultPrimaryBackoff,
		CallTimeout:    DefaultCallTimeout,
	}
}

type Config struct {
	Workers    int
	SourceLang string
	TargetLang string
	Models     Models
	Policy     Policy
	// Service is the base backend configuration; Model is set per attempt.
	Service translator.ServiceConfig

	Logger  *slog.Logger
	Metrics *Metrics
}

// withDefaults fills in the pool size, logger and metrics. Policy values
// are taken as given (start from DefaultPolicy); negative ones are clamped
// to zero and MaxRetries to DefaultMaxRetries, keeping a chunk at four
// attempts or fewer.
func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	c.Policy.MaxRetries = min(max(c.Policy.MaxRetries, 0), DefaultMaxRetries)
	c.Policy.Cooldown = max(c.Policy.Cooldown, 0)
	c.Policy.PrimaryBackoff = max(c.Policy.PrimaryBackoff, 0)
	c.Policy.CallTimeout = max(c.Policy.CallTimeout, 0)
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Metrics == nil {
		c.Metrics = NewMetrics()
	}
	return c
}

// Report describes a finished run.
type Report struct {
	RunID      string        `yaml:"run_id"`
	StartedAt  time.Time     `yaml:"started_at"`
	FinishedAt time.Time     `yaml:"finished_at"`
	Duration   time.Duration `yaml:"duration"`
	Workers    int           `yaml:"workers"`
	Models     Models        `yaml:"models"`
	Summary    Summary       `yaml:"summary"`

	Output string        `yaml:"-"`
	Chunks []*ChunkState `yaml:"-"`
}

// Partial reports whether some but not all chunks completed.
func (r *Report) Partial() bool {
	return r.Summary.Completed > 0 && r.Summary.Failed > 0
}

type Pipeline struct {
	svc     translator.TranslationService
	limiter *ratelimit.Limiter
	cfg     Config
}

func New(svc translator.TranslationService, limiter *ratelimit.Limiter, cfg Config) *Pipeline {
	if limiter == nil {
		limiter = ratelimit.New(ratelimit.DefaultInterval)
	}
	return &Pipeline{
		svc:     svc,
		limiter: limiter,
		cfg:     cfg.withDefaults(),
	}
}

// Metrics returns the collectors updated by Run.
func (p *Pipeline) Metrics() *Metrics {
	return p.cfg.Metrics
}

// Run translates doc and blocks until every chunk is terminal. The report is
// always returned; the error is ErrNoChunksCompleted when nothing could be
// translated. An empty document yields an empty report and no error.
// Cancelling ctx fails the chunks that have not finished yet.
func (p *Pipeline) Run(ctx context.Context, doc string) (*Report, error) {
	log := p.cfg.Logger
	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Models:    p.cfg.Models,
	}
	defer func() {
		report.FinishedAt = time.Now()
		report.Duration = report.FinishedAt.Sub(report.StartedAt)
	}()

	raw := digest.Split(doc)
	agg := NewAggregator(len(raw))
	if len(raw) == 0 {
		log.Warn("no chunks found in document", "run", report.RunID)
		report.Summary = agg.Summary()
		return report, nil
	}

	queue := make(chan *ChunkState, len(raw))
	for i, content := range raw {
		queue <- newChunkState(i, digest.ChunkID(i), content)
	}
	close(queue)
	p.cfg.Metrics.QueueDepth.Set(float64(len(raw)))

	workers := min(p.cfg.Workers, len(raw))
	report.Workers = workers
	log.Info("starting translation",
		"run", report.RunID,
		"chunks", len(raw),
		"workers", workers,
		"primary", p.cfg.Models.Primary,
		"fallback", p.cfg.Models.Fallback,
	)

	ctrl := NewController(p.svc, p.limiter, p.cfg)
	progress := &rate.Sometimes{First: 1, Interval: progressInterval}

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			p.work(ctx, w, queue, ctrl, agg, progress)
			return nil
		})
	}
	_ = g.Wait()

	report.Chunks = agg.Results()
	report.Summary = agg.Summary()
	report.Output = Assemble(report.Chunks)

	log.Info("translation finished",
		"run", report.RunID,
		"completed", report.Summary.Completed,
		"total", report.Summary.Total,
		"failed", report.Summary.Failed,
	)
	if len(report.Summary.FailedChunks) > 0 {
		log.Warn("failed chunks", "run", report.RunID, "ids", report.Summary.FailedChunks)
	}

	if report.Summary.Completed == 0 {
		return report, ErrNoChunksCompleted
	}
	return report, nil
}

func (p *Pipeline) work(ctx context.Context, id int, queue <-chan *ChunkState, ctrl *Controller, agg *Aggregator, progress *rate.Sometimes) {
	m := p.cfg.Metrics
	log := p.cfg.Logger.With("worker", id)

	for st := range queue {
		m.QueueDepth.Dec()
		m.ActiveWorkers.Inc()

		ctrl.Run(ctx, st)
		if err := agg.Record(st); err != nil {
			log.Error("recording chunk", "chunk", st.ID, "error", err)
		}
		m.chunkDone(st.Status)
		m.ActiveWorkers.Dec()

		log.Debug("chunk done",
			"chunk", st.ID,
			"status", st.Status.String(),
			"attempts", st.Attempts,
			"duration", st.Duration.String(),
		)
		progress.Do(func() {
			completed, failed := agg.Progress()
			p.cfg.Logger.Info("progress",
				"completed", completed,
				"failed", failed,
				"total", agg.total,
			)
		})
	}
}
