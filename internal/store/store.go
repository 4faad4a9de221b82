package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite"
)

const (
	// DefaultRetention is how long digests are kept.
	DefaultRetention = 30 * 24 * time.Hour
	// DefaultTimezone decides which calendar day a digest belongs to.
	DefaultTimezone = "Asia/Shanghai"

	dateLayout = "2006-01-02"
)

// ErrEmptyDigest is returned when there is nothing to persist.
var ErrEmptyDigest = errors.New("digest content is empty")

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer; sqlite serialises anyway and this avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS digests (
		id TEXT PRIMARY KEY,
		file_path TEXT NOT NULL,
		file_name TEXT NOT NULL,
		date TEXT NOT NULL,
		content TEXT NOT NULL,
		sections INTEGER NOT NULL DEFAULT 0,
		run_id TEXT,
		uploaded_at INTEGER NOT NULL,
		UNIQUE(file_path, date)
	);

	-- runs records one pipeline execution and its summary
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		input_path TEXT NOT NULL,
		output_path TEXT,
		primary_model TEXT,
		fallback_model TEXT,
		workers INTEGER,
		total INTEGER NOT NULL,
		completed INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		success_rate REAL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL
	);

	-- chunk_outcomes stores the terminal state of every chunk of a run
	CREATE TABLE IF NOT EXISTS chunk_outcomes (
		run_id TEXT NOT NULL,
		chunk_id TEXT NOT NULL,
		status TEXT NOT NULL,
		attempts INTEGER NOT NULL,
		model TEXT,
		error TEXT,
		duration_ms INTEGER,
		PRIMARY KEY (run_id, chunk_id),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_digests_date ON digests(date);
	CREATE INDEX IF NOT EXISTS idx_digests_uploaded ON digests(uploaded_at);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Digest is one assembled, translated document.
type Digest struct {
	ID         string
	FilePath   string
	FileName   string
	Date       string
	Content    string
	Sections   int
	RunID      string
	UploadedAt time.Time
}

// NewDigest prepares a digest for filePath uploaded at now. The date is the
// calendar day of now in loc (UTC when loc is nil).
func NewDigest(filePath, content, runID string, now time.Time, loc *time.Location) Digest {
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)
	return Digest{
		FilePath:   filePath,
		FileName:   filepath.Base(filePath),
		Date:       now.Format(dateLayout),
		Content:    content,
		Sections:   countSections(content),
		RunID:      runID,
		UploadedAt: now,
	}
}

// SaveDigest inserts d or replaces the digest stored for the same file path
// and date. It returns the id of the stored row.
func (s *Store) SaveDigest(ctx context.Context, d Digest) (string, error) {
	content := normalizeText(d.Content)
	if content == "" {
		return "", ErrEmptyDigest
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.FileName == "" {
		d.FileName = filepath.Base(d.FilePath)
	}
	if d.UploadedAt.IsZero() {
		d.UploadedAt = time.Now()
	}

	var id string
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO digests (id, file_path, file_name, date, content, sections, run_id, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_path, date) DO UPDATE SET
			file_name = excluded.file_name,
			content = excluded.content,
			sections = excluded.sections,
			run_id = excluded.run_id,
			uploaded_at = excluded.uploaded_at
		RETURNING id`,
		d.ID, d.FilePath, d.FileName, d.Date, content, d.Sections, d.RunID, d.UploadedAt.UnixMilli()).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("save digest: %w", err)
	}
	return id, nil
}

// GetDigest returns the digest stored for filePath on date.
func (s *Store) GetDigest(ctx context.Context, filePath, date string) (*Digest, bool, error) {
	rows, err := s.queryDigests(ctx, sq.Select(digestColumns...).From("digests").
		Where(sq.Eq{"file_path": filePath, "date": date}))
	if err != nil {
		return nil, false, err
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	return &rows[0], true, nil
}

// DigestFilter narrows ListDigests. Zero fields do not filter.
type DigestFilter struct {
	FilePath string
	Since    string // inclusive date, YYYY-MM-DD
	Until    string // inclusive date, YYYY-MM-DD
	Limit    uint64
}

// ListDigests returns digests newest first.
func (s *Store) ListDigests(ctx context.Context, f DigestFilter) ([]Digest, error) {
	q := sq.Select(digestColumns...).From("digests").OrderBy("date DESC", "file_path")
	if f.FilePath != "" {
		q = q.Where(sq.Eq{"file_path": f.FilePath})
	}
	if f.Since != "" {
		q = q.Where(sq.GtOrEq{"date": f.Since})
	}
	if f.Until != "" {
		q = q.Where(sq.LtOrEq{"date": f.Until})
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	return s.queryDigests(ctx, q)
}

var digestColumns = []string{"id", "file_path", "file_name", "date", "content", "sections", "COALESCE(run_id, '')", "uploaded_at"}

func (s *Store) queryDigests(ctx context.Context, q sq.SelectBuilder) ([]Digest, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Digest
	for rows.Next() {
		var (
			d        Digest
			uploaded int64
		)
		if err := rows.Scan(&d.ID, &d.FilePath, &d.FileName, &d.Date, &d.Content, &d.Sections, &d.RunID, &uploaded); err != nil {
			return nil, err
		}
		d.UploadedAt = time.UnixMilli(uploaded)
		results = append(results, d)
	}
	return results, rows.Err()
}

// DeleteDigest permanently removes a digest by ID.
func (s *Store) DeleteDigest(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM digests WHERE id = ?`, id)
	return err
}

// PruneOlderThan deletes digests uploaded before cutoff and runs started
// before it, returning the number of digests removed.
func (s *Store) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM digests WHERE uploaded_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune digests: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chunk_outcomes WHERE run_id IN (SELECT id FROM runs WHERE started_at < ?)`,
		cutoff.UnixMilli()); err != nil {
		return 0, fmt.Errorf("prune chunk outcomes: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, cutoff.UnixMilli()); err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}

	return n, tx.Commit()
}

// Run is the persisted summary of one pipeline execution.
type Run struct {
	ID            string
	InputPath     string
	OutputPath    string
	PrimaryModel  string
	FallbackModel string
	Workers       int
	Total         int
	Completed     int
	Failed        int
	SuccessRate   float64
	StartedAt     time.Time
	FinishedAt    time.Time
}

// ChunkOutcome is the terminal state of one chunk within a run.
type ChunkOutcome struct {
	ChunkID  string
	Status   string
	Attempts int
	Model    string
	Error    string
	Duration time.Duration
}

// SaveRun stores a run and its chunk outcomes atomically.
func (s *Store) SaveRun(ctx context.Context, r Run, chunks []ChunkOutcome) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, input_path, output_path, primary_model, fallback_model, workers, total, completed, failed, success_rate, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.InputPath, r.OutputPath, r.PrimaryModel, r.FallbackModel, r.Workers,
		r.Total, r.Completed, r.Failed, r.SuccessRate, r.StartedAt.UnixMilli(), r.FinishedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunk_outcomes (run_id, chunk_id, status, attempts, model, error, duration_ms) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, r.ID, c.ChunkID, c.Status, c.Attempts, c.Model, c.Error, c.Duration.Milliseconds()); err != nil {
			return fmt.Errorf("save chunk %s: %w", c.ChunkID, err)
		}
	}

	return tx.Commit()
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit uint64) ([]Run, error) {
	q := sq.Select("id", "input_path", "COALESCE(output_path, '')", "COALESCE(primary_model, '')", "COALESCE(fallback_model, '')",
		"COALESCE(workers, 0)", "total", "completed", "failed", "COALESCE(success_rate, 0)", "started_at", "finished_at").
		From("runs").OrderBy("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Run
	for rows.Next() {
		var (
			r                 Run
			started, finished int64
		)
		if err := rows.Scan(&r.ID, &r.InputPath, &r.OutputPath, &r.PrimaryModel, &r.FallbackModel, &r.Workers,
			&r.Total, &r.Completed, &r.Failed, &r.SuccessRate, &started, &finished); err != nil {
			return nil, err
		}
		r.StartedAt = time.UnixMilli(started)
		r.FinishedAt = time.UnixMilli(finished)
		results = append(results, r)
	}
	return results, rows.Err()
}

// ChunkOutcomes returns the outcomes recorded for runID in chunk order.
func (s *Store) ChunkOutcomes(ctx context.Context, runID string) ([]ChunkOutcome, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk_id, status, attempts, COALESCE(model, ''), COALESCE(error, ''), COALESCE(duration_ms, 0)
		FROM chunk_outcomes WHERE run_id = ? ORDER BY chunk_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ChunkOutcome
	for rows.Next() {
		var (
			c  ChunkOutcome
			ms int64
		)
		if err := rows.Scan(&c.ChunkID, &c.Status, &c.Attempts, &c.Model, &c.Error, &ms); err != nil {
			return nil, err
		}
		c.Duration = time.Duration(ms) * time.Millisecond
		results = append(results, c)
	}
	return results, rows.Err()
}

// HistoryStats summarises what the store holds.
type HistoryStats struct {
	Digests        int
	Runs           int
	ChunksTotal    int
	ChunksFailed   int
	AvgSuccessRate float64
	OldestDate     string
	NewestDate     string
}

func (s *Store) Stats(ctx context.Context) (*HistoryStats, error) {
	stats := &HistoryStats{}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(MIN(date), ''),
			COALESCE(MAX(date), '')
		FROM digests`).Scan(
		&stats.Digests,
		&stats.OldestDate,
		&stats.NewestDate,
	)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(total), 0),
			COALESCE(SUM(failed), 0),
			COALESCE(AVG(success_rate), 0)
		FROM runs`).Scan(
		&stats.Runs,
		&stats.ChunksTotal,
		&stats.ChunksFailed,
		&stats.AvgSuccessRate,
	)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// normalizeText trims whitespace and applies Unicode NFC normalization so
// the same digest fetched twice compares equal byte for byte.
func normalizeText(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}

// countSections counts the blank-line separated sections of an assembled
// document.
func countSections(content string) int {
	n := 0
	for _, section := range strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n\n") {
		if strings.TrimSpace(section) != "" {
			n++
		}
	}
	return n
}
