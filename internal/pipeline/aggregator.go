package pipeline

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/valpere/digestran/internal/digest"
	"github.com/valpere/digestran/internal/translator"
)

// ModelSummary aggregates the attempts sent to one model.
type ModelSummary struct {
	Attempts    int           `yaml:"attempts"`
	Successes   int           `yaml:"successes"`
	Failures    int           `yaml:"failures"`
	RateLimited int           `yaml:"rate_limited"`
	AvgLatency  time.Duration `yaml:"avg_latency"`

	totalLatency time.Duration
}

// Summary is the end-of-run accounting. It is produced even when no chunk
// completed.
type Summary struct {
	Total        int                     `yaml:"total"`
	Completed    int                     `yaml:"completed"`
	Failed       int                     `yaml:"failed"`
	SuccessRate  float64                 `yaml:"success_rate"`
	FailedChunks []string                `yaml:"failed_chunks,omitempty"`
	Attempts     int                     `yaml:"attempts"`
	Models       map[string]ModelSummary `yaml:"models,omitempty"`
}

// Aggregator collects terminal chunk states from all workers. Record is safe
// for concurrent use; Results and Summary are meant to be read once the
// workers have finished.
type Aggregator struct {
	mu        sync.Mutex
	total     int
	states    map[string]*ChunkState
	completed int
	failed    []string
	attempts  int
	models    map[string]*ModelSummary
}

func NewAggregator(total int) *Aggregator {
	return &Aggregator{
		total:  total,
		states: make(map[string]*ChunkState, total),
		models: make(map[string]*ModelSummary),
	}
}

// Record stores a terminal state. Recording a chunk twice or recording a
// non-terminal state is an error and leaves the counters untouched.
func (a *Aggregator) Record(st *ChunkState) error {
	if !st.Status.Terminal() {
		return fmt.Errorf("chunk %s: cannot record %s state", st.ID, st.Status)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, dup := a.states[st.ID]; dup {
		return fmt.Errorf("chunk %s: already recorded", st.ID)
	}
	a.states[st.ID] = st

	if st.Status == Completed {
		a.completed++
	} else {
		a.failed = append(a.failed, st.ID)
	}

	for _, at := range st.Log {
		ms := a.models[at.ModelID]
		if ms == nil {
			ms = &ModelSummary{}
			a.models[at.ModelID] = ms
		}
		ms.Attempts++
		ms.totalLatency += at.Latency
		switch at.Outcome {
		case translator.FailureNone:
			ms.Successes++
		case translator.FailureRateLimited:
			ms.RateLimited++
			ms.Failures++
		default:
			ms.Failures++
		}
		a.attempts++
	}
	return nil
}

// Progress returns the counters so far.
func (a *Aggregator) Progress() (completed, failed int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.completed, len(a.failed)
}

// Results returns the recorded states ordered by chunk position.
func (a *Aggregator) Results() []*ChunkState {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]*ChunkState, 0, len(a.states))
	for _, st := range a.states {
		out = append(out, st)
	}
	sortByPosition(out)
	return out
}

func (a *Aggregator) Summary() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Summary{
		Total:     a.total,
		Completed: a.completed,
		Failed:    len(a.failed),
		Attempts:  a.attempts,
	}
	if a.total > 0 {
		s.SuccessRate = float64(a.completed) / float64(a.total) * 100
	}
	if len(a.failed) > 0 {
		s.FailedChunks = append([]string(nil), a.failed...)
		sort.Slice(s.FailedChunks, func(i, j int) bool {
			return chunkPosition(s.FailedChunks[i], 0) < chunkPosition(s.FailedChunks[j], 0)
		})
	}
	if len(a.models) > 0 {
		s.Models = make(map[string]ModelSummary, len(a.models))
		for id, ms := range a.models {
			m := *ms
			if m.Attempts > 0 {
				m.AvgLatency = m.totalLatency / time.Duration(m.Attempts)
			}
			s.Models[id] = m
		}
	}
	return s
}

func chunkPosition(id string, fallback int) int {
	if i, err := digest.ChunkIndex(id); err == nil {
		return i
	}
	return fallback
}

func sortByPosition(states []*ChunkState) {
	sort.SliceStable(states, func(i, j int) bool {
		return chunkPosition(states[i].ID, states[i].Index) < chunkPosition(states[j].ID, states[j].Index)
	})
}
