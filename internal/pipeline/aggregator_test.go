package pipeline

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/digestran/internal/translator"
)

func terminal(index int, status Status, result string) *ChunkState {
	st := newChunkState(index, fmt.Sprintf("chunk_%03d", index), "")
	st.Status = status
	st.Result = result
	return st
}

func TestAggregator_ConcurrentRecord(t *testing.T) {
	const total = 50
	agg := NewAggregator(total)

	var wg sync.WaitGroup
	for i := 0; i < total; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			status := Completed
			if i%5 == 0 {
				status = Failed
			}
			st := terminal(i, status, fmt.Sprintf("T%d", i))
			st.Log = []Attempt{{ModelID: "m", Outcome: translator.FailureNone, Latency: time.Millisecond}}
			assert.NoError(t, agg.Record(st))
		}()
	}
	wg.Wait()

	s := agg.Summary()
	assert.Equal(t, total, s.Total)
	assert.Equal(t, 40, s.Completed)
	assert.Equal(t, 10, s.Failed)
	assert.InDelta(t, 80.0, s.SuccessRate, 0.001)
	require.Len(t, s.FailedChunks, 10)
	assert.Equal(t, "chunk_000", s.FailedChunks[0])
	assert.Equal(t, "chunk_045", s.FailedChunks[9])
	assert.Equal(t, total, s.Attempts)
	assert.Equal(t, time.Millisecond, s.Models["m"].AvgLatency)

	results := agg.Results()
	require.Len(t, results, total)
	for i, st := range results {
		assert.Equal(t, fmt.Sprintf("chunk_%03d", i), st.ID)
	}
}

func TestAggregator_RejectsDuplicatesAndPending(t *testing.T) {
	agg := NewAggregator(2)

	require.NoError(t, agg.Record(terminal(0, Completed, "A")))
	assert.Error(t, agg.Record(terminal(0, Failed, "")))
	assert.Error(t, agg.Record(terminal(1, Processing, "")))

	s := agg.Summary()
	assert.Equal(t, 1, s.Completed)
	assert.Equal(t, 0, s.Failed)

	completed, failed := agg.Progress()
	assert.Equal(t, 1, completed)
	assert.Equal(t, 0, failed)
}

func TestAggregator_EmptySummary(t *testing.T) {
	s := NewAggregator(0).Summary()
	assert.Zero(t, s.Total)
	assert.Zero(t, s.SuccessRate)
	assert.Nil(t, s.FailedChunks)
	assert.Nil(t, s.Models)
}

func TestAssemble_OrdersByChunkID(t *testing.T) {
	states := []*ChunkState{
		terminal(10, Completed, "Ten"),
		terminal(2, Completed, "Two\n"),
		terminal(1, Failed, ""),
		terminal(0, Completed, "Zero"),
		terminal(3, Completed, "   "),
	}

	assert.Equal(t, "Zero\n\nTwo\n\nTen", Assemble(states))
}

func TestAssemble_Empty(t *testing.T) {
	assert.Equal(t, "", Assemble(nil))
	assert.Equal(t, "", Assemble([]*ChunkState{terminal(0, Failed, "")}))
}
