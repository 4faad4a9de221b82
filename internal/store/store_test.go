package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func shanghai(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(DefaultTimezone)
	if err != nil {
		t.Fatalf("load timezone: %v", err)
	}
	return loc
}

func TestStore_New(t *testing.T) {
	s := newTestStore(t)
	if s == nil {
		t.Fatal("expected non-nil store")
	}
}

func TestStore_New_InvalidPath(t *testing.T) {
	_, err := New("/nonexistent/path/test.db")
	if err == nil {
		t.Error("expected error for invalid path")
	}
}

func TestNewDigest_DateInTimezone(t *testing.T) {
	// 20:00 UTC is already the next day in Shanghai.
	now := time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)

	d := NewDigest("out/2025-03-01.txt", "A | a\n1. x\n\nB | b\n1. y", "run-1", now, shanghai(t))
	if d.Date != "2025-03-02" {
		t.Errorf("expected Shanghai date 2025-03-02, got %q", d.Date)
	}
	if d.FileName != "2025-03-01.txt" {
		t.Errorf("unexpected file name %q", d.FileName)
	}
	if d.Sections != 2 {
		t.Errorf("expected 2 sections, got %d", d.Sections)
	}

	utc := NewDigest("x.txt", "c", "", now, nil)
	if utc.Date != "2025-03-01" {
		t.Errorf("expected UTC date, got %q", utc.Date)
	}
}

func TestStore_SaveDigest_Upsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	first := NewDigest("out/digest.txt", "Weibo | 微博\n1. Xin chào", "run-1", now, nil)
	id1, err := s.SaveDigest(ctx, first)
	if err != nil {
		t.Fatalf("SaveDigest failed: %v", err)
	}

	second := NewDigest("out/digest.txt", "Weibo | 微博\n1. Tạm biệt", "run-2", now.Add(time.Minute), nil)
	id2, err := s.SaveDigest(ctx, second)
	if err != nil {
		t.Fatalf("SaveDigest (replace) failed: %v", err)
	}
	if id1 != id2 {
		t.Errorf("expected same row for same file and date, got %q and %q", id1, id2)
	}

	got, found, err := s.GetDigest(ctx, "out/digest.txt", first.Date)
	if err != nil || !found {
		t.Fatalf("GetDigest: found=%v err=%v", found, err)
	}
	if got.Content != "Weibo | 微博\n1. Tạm biệt" {
		t.Errorf("expected replaced content, got %q", got.Content)
	}
	if got.RunID != "run-2" {
		t.Errorf("expected run-2, got %q", got.RunID)
	}

	all, err := s.ListDigests(ctx, DigestFilter{})
	if err != nil {
		t.Fatalf("ListDigests failed: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("expected 1 digest, got %d", len(all))
	}
}

func TestStore_SaveDigest_NormalizesContent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// "ệ" spelled with combining marks.
	d := NewDigest("a.txt", "  Vie\u0323\u0302t  \n", "", time.Now(), nil)
	if _, err := s.SaveDigest(ctx, d); err != nil {
		t.Fatalf("SaveDigest failed: %v", err)
	}

	got, _, err := s.GetDigest(ctx, "a.txt", d.Date)
	if err != nil {
		t.Fatalf("GetDigest failed: %v", err)
	}
	if got.Content != "Vi\u1ec7t" {
		t.Errorf("expected NFC content %q, got %q", "Vi\u1ec7t", got.Content)
	}
}

func TestStore_SaveDigest_Empty(t *testing.T) {
	s := newTestStore(t)

	_, err := s.SaveDigest(context.Background(), NewDigest("a.txt", " \n\n ", "", time.Now(), nil))
	if !errors.Is(err, ErrEmptyDigest) {
		t.Errorf("expected ErrEmptyDigest, got %v", err)
	}
}

func TestStore_GetDigest_Miss(t *testing.T) {
	s := newTestStore(t)

	d, found, err := s.GetDigest(context.Background(), "missing.txt", "2025-01-01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found || d != nil {
		t.Error("expected miss")
	}
}

func TestStore_ListDigests_Filters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, d := range []Digest{
		{FilePath: "a.txt", Date: "2025-01-01", Content: "A1"},
		{FilePath: "a.txt", Date: "2025-01-02", Content: "A2"},
		{FilePath: "b.txt", Date: "2025-01-02", Content: "B2"},
		{FilePath: "a.txt", Date: "2025-01-03", Content: "A3"},
	} {
		if _, err := s.SaveDigest(ctx, d); err != nil {
			t.Fatalf("SaveDigest failed: %v", err)
		}
	}

	tests := []struct {
		name   string
		filter DigestFilter
		want   []string
	}{
		{name: "all newest first", filter: DigestFilter{}, want: []string{"A3", "A2", "B2", "A1"}},
		{name: "by path", filter: DigestFilter{FilePath: "b.txt"}, want: []string{"B2"}},
		{name: "since", filter: DigestFilter{Since: "2025-01-02"}, want: []string{"A3", "A2", "B2"}},
		{name: "range", filter: DigestFilter{Since: "2025-01-02", Until: "2025-01-02"}, want: []string{"A2", "B2"}},
		{name: "limit", filter: DigestFilter{FilePath: "a.txt", Limit: 2}, want: []string{"A3", "A2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListDigests(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListDigests failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d digests, got %d", len(tt.want), len(got))
			}
			for i, d := range got {
				if d.Content != tt.want[i] {
					t.Errorf("position %d: expected %q, got %q", i, tt.want[i], d.Content)
				}
			}
		})
	}
}

func TestStore_DeleteDigest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.SaveDigest(ctx, Digest{FilePath: "a.txt", Date: "2025-01-01", Content: "A"})
	if err != nil {
		t.Fatalf("SaveDigest failed: %v", err)
	}
	if err := s.DeleteDigest(ctx, id); err != nil {
		t.Fatalf("DeleteDigest failed: %v", err)
	}
	if _, found, _ := s.GetDigest(ctx, "a.txt", "2025-01-01"); found {
		t.Error("expected digest to be deleted")
	}
}

func TestStore_PruneOlderThan(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	old := NewDigest("old.txt", "old", "", now.Add(-31*24*time.Hour), nil)
	fresh := NewDigest("fresh.txt", "fresh", "", now.Add(-time.Hour), nil)
	for _, d := range []Digest{old, fresh} {
		if _, err := s.SaveDigest(ctx, d); err != nil {
			t.Fatalf("SaveDigest failed: %v", err)
		}
	}

	oldRun := Run{ID: "old-run", InputPath: "in.txt", StartedAt: now.Add(-40 * 24 * time.Hour), FinishedAt: now.Add(-40 * 24 * time.Hour)}
	if err := s.SaveRun(ctx, oldRun, []ChunkOutcome{{ChunkID: "chunk_000", Status: "completed", Attempts: 1}}); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	n, err := s.PruneOlderThan(ctx, now.Add(-DefaultRetention))
	if err != nil {
		t.Fatalf("PruneOlderThan failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 pruned digest, got %d", n)
	}

	left, _ := s.ListDigests(ctx, DigestFilter{})
	if len(left) != 1 || left[0].FilePath != "fresh.txt" {
		t.Errorf("expected only fresh digest to remain, got %+v", left)
	}

	runs, _ := s.ListRuns(ctx, 0)
	if len(runs) != 0 {
		t.Errorf("expected old run to be pruned, got %d runs", len(runs))
	}
	outcomes, _ := s.ChunkOutcomes(ctx, "old-run")
	if len(outcomes) != 0 {
		t.Errorf("expected old outcomes to be pruned, got %d", len(outcomes))
	}
}

func TestStore_SaveRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	start := time.Now().Add(-time.Minute).Truncate(time.Millisecond)

	run := Run{
		ID:            "run-1",
		InputPath:     "in.txt",
		OutputPath:    "out.txt",
		PrimaryModel:  "gemini-2.5-flash",
		FallbackModel: "gemini-2.0-flash",
		Workers:       3,
		Total:         3,
		Completed:     2,
		Failed:        1,
		SuccessRate:   66.67,
		StartedAt:     start,
		FinishedAt:    start.Add(30 * time.Second),
	}
	chunks := []ChunkOutcome{
		{ChunkID: "chunk_001", Status: "failed", Attempts: 4, Model: "gemini-2.0-flash", Error: "rate limit exhausted on fallback model", Duration: 3 * time.Second},
		{ChunkID: "chunk_000", Status: "completed", Attempts: 1, Model: "gemini-2.5-flash", Duration: time.Second},
		{ChunkID: "chunk_002", Status: "completed", Attempts: 2, Model: "gemini-2.0-flash", Duration: 2 * time.Second},
	}
	if err := s.SaveRun(ctx, run, chunks); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	runs, err := s.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	got := runs[0]
	if got.Completed != 2 || got.Failed != 1 || got.Workers != 3 {
		t.Errorf("unexpected run counters: %+v", got)
	}
	if !got.StartedAt.Equal(start) {
		t.Errorf("expected start %v, got %v", start, got.StartedAt)
	}

	outcomes, err := s.ChunkOutcomes(ctx, "run-1")
	if err != nil {
		t.Fatalf("ChunkOutcomes failed: %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}
	if outcomes[0].ChunkID != "chunk_000" || outcomes[1].Attempts != 4 {
		t.Errorf("unexpected outcomes order: %+v", outcomes)
	}
	if outcomes[1].Duration != 3*time.Second {
		t.Errorf("expected 3s duration, got %v", outcomes[1].Duration)
	}

	if err := s.SaveRun(ctx, run, nil); err == nil {
		t.Error("expected error for duplicate run id")
	}
}

func TestStore_Stats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Digests != 0 || stats.Runs != 0 {
		t.Errorf("expected empty stats, got %+v", stats)
	}

	s.SaveDigest(ctx, Digest{FilePath: "a.txt", Date: "2025-01-01", Content: "A"})
	s.SaveDigest(ctx, Digest{FilePath: "a.txt", Date: "2025-01-05", Content: "B"})
	s.SaveRun(ctx, Run{ID: "r1", InputPath: "a", Total: 4, Completed: 3, Failed: 1, SuccessRate: 75, StartedAt: time.Now(), FinishedAt: time.Now()}, nil)
	s.SaveRun(ctx, Run{ID: "r2", InputPath: "a", Total: 2, Completed: 2, SuccessRate: 100, StartedAt: time.Now(), FinishedAt: time.Now()}, nil)

	stats, err = s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Digests != 2 {
		t.Errorf("expected 2 digests, got %d", stats.Digests)
	}
	if stats.OldestDate != "2025-01-01" || stats.NewestDate != "2025-01-05" {
		t.Errorf("unexpected date range %q..%q", stats.OldestDate, stats.NewestDate)
	}
	if stats.Runs != 2 || stats.ChunksTotal != 6 || stats.ChunksFailed != 1 {
		t.Errorf("unexpected run stats: %+v", stats)
	}
	if stats.AvgSuccessRate != 87.5 {
		t.Errorf("expected 87.5 average success rate, got %v", stats.AvgSuccessRate)
	}
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"  Hello  ", "Hello"},
		{"Vie\u0323\u0302t", "Vi\u1ec7t"},
		{"\t\nHello\t\n", "Hello"},
		{"", ""},
	}

	for _, tt := range tests {
		result := normalizeText(tt.input)
		if result != tt.expected {
			t.Errorf("normalizeText(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
