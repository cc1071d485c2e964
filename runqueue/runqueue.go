// Package runqueue is a sqlite-backed execution journal for batch node runs.
// Jobs are enqueued with a node type and an argument payload, claimed in
// FIFO order by a single drain loop, and marked done or failed. The queue
// serializes execution the same way the graph host does: one node at a time.
package runqueue

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// State is a job's lifecycle position.
type State string

const (
	StateQueued  State = "queued"
	StateRunning State = "running"
	StateDone    State = "done"
	StateFailed  State = "failed"
)

// ErrEmpty is returned by Claim when no queued job exists.
var ErrEmpty = errors.New("runqueue: no queued jobs")

// Job is one recorded node execution.
type Job struct {
	ID        string
	NodeType  string
	Params    map[string]any
	State     State
	Message   string
	CreatedAt time.Time
	ClaimedAt time.Time
	DoneAt    time.Time
}

// Queue wraps the backing database. Not safe for concurrent writers; the
// drain loop is the single consumer by construction.
type Queue struct {
	db *sql.DB
}

// Open creates or opens the queue database at path (":memory:" works for
// tests).
func Open(path string) (*Queue, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("runqueue: open %s: %w", path, err)
	}
	q := &Queue{db: db}
	if err := q.createTable(); err != nil {
		db.Close()
		return nil, err
	}
	return q, nil
}

// Close closes the backing database.
func (q *Queue) Close() error { return q.db.Close() }

func (q *Queue) createTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		node_type TEXT NOT NULL,
		params TEXT, -- JSON object
		state TEXT NOT NULL,
		message TEXT,
		created_at DATETIME NOT NULL,
		claimed_at DATETIME,
		done_at DATETIME,
		position INTEGER
	)`
	_, err := q.db.Exec(query)
	return err
}

// Enqueue records a new queued job and returns its id.
func (q *Queue) Enqueue(nodeType string, params map[string]any) (string, error) {
	payload, err := sonic.MarshalString(params)
	if err != nil {
		return "", fmt.Errorf("runqueue: encode params: %w", err)
	}
	id := uuid.New().String()
	_, err = q.db.Exec(`
	INSERT INTO jobs (id, node_type, params, state, message, created_at, position)
	VALUES (?, ?, ?, ?, '', ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM jobs))`,
		id, nodeType, payload, StateQueued, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("runqueue: enqueue: %w", err)
	}
	return id, nil
}

// Claim takes the oldest queued job, marks it running, and returns it.
func (q *Queue) Claim() (*Job, error) {
	row := q.db.QueryRow(`
	SELECT id, node_type, params, state, message, created_at
	FROM jobs WHERE state = ? ORDER BY position LIMIT 1`, StateQueued)

	var (
		job     Job
		payload string
	)
	err := row.Scan(&job.ID, &job.NodeType, &payload, &job.State, &job.Message, &job.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("runqueue: claim: %w", err)
	}
	if err := sonic.UnmarshalString(payload, &job.Params); err != nil {
		return nil, fmt.Errorf("runqueue: decode params for %s: %w", job.ID, err)
	}

	job.State = StateRunning
	job.ClaimedAt = time.Now().UTC()
	_, err = q.db.Exec(`UPDATE jobs SET state = ?, claimed_at = ? WHERE id = ?`,
		job.State, job.ClaimedAt, job.ID)
	if err != nil {
		return nil, fmt.Errorf("runqueue: mark running: %w", err)
	}
	return &job, nil
}

// Done marks a running job completed.
func (q *Queue) Done(id, message string) error {
	return q.finish(id, StateDone, message)
}

// Fail marks a running job failed with its error message.
func (q *Queue) Fail(id, message string) error {
	return q.finish(id, StateFailed, message)
}

func (q *Queue) finish(id string, state State, message string) error {
	res, err := q.db.Exec(`UPDATE jobs SET state = ?, message = ?, done_at = ? WHERE id = ?`,
		state, message, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("runqueue: finish %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("runqueue: no job %s", id)
	}
	return nil
}

// Get returns one job by id.
func (q *Queue) Get(id string) (*Job, error) {
	row := q.db.QueryRow(`
	SELECT id, node_type, params, state, message, created_at
	FROM jobs WHERE id = ?`, id)
	var (
		job     Job
		payload string
	)
	err := row.Scan(&job.ID, &job.NodeType, &payload, &job.State, &job.Message, &job.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("runqueue: no job %s", id)
	}
	if err != nil {
		return nil, err
	}
	if err := sonic.UnmarshalString(payload, &job.Params); err != nil {
		return nil, err
	}
	return &job, nil
}

// Pending returns the number of queued jobs.
func (q *Queue) Pending() (int, error) {
	var n int
	err := q.db.QueryRow(`SELECT COUNT(*) FROM jobs WHERE state = ?`, StateQueued).Scan(&n)
	return n, err
}
