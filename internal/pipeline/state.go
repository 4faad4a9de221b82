package pipeline

import (
	"time"

	"github.com/valpere/digestran/internal/translator"
)

// Status is the lifecycle of one chunk. Completed and Failed are terminal.
type Status int

const (
	Pending Status = iota
	Processing
	Completed
	Failed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Processing:
		return "processing"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further processing happens in s.
func (s Status) Terminal() bool {
	return s == Completed || s == Failed
}

// ChunkState is owned by exactly one worker until it is recorded.
type ChunkState struct {
	ID      string
	Index   int
	Content string
	Title   string
	// URLMapping maps item numbers to the URLs removed before translation.
	URLMapping map[string]string

	Status     Status
	Model      Model
	RetryCount int
	Attempts   int
	Log        []Attempt

	Result      string
	Err         string
	LastFailure translator.FailureKind
	Duration    time.Duration
}

func newChunkState(index int, id, content string) *ChunkState {
	return &ChunkState{
		ID:      id,
		Index:   index,
		Content: content,
		Status:  Pending,
		Model:   Primary,
	}
}
