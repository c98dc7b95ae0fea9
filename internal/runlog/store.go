// Package runlog keeps a local ledger of every pipeline cycle. The work
// item store holds only the latest state of each item; the ledger keeps
// the full history, including retries, for the status commands and the
// dashboard.
package runlog

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hearthlabs/shipbot/internal/domain"
	_ "modernc.org/sqlite"
)

// Cycle is one completed pipeline pass over a work item.
type Cycle struct {
	ID             int64
	ItemID         int64
	StartedAt      time.Time
	FinishedAt     time.Time
	Outcome        domain.Status
	Decision       domain.Decision
	DeployDecision domain.DeployDecision
	Branch         string
	CommitSHA      string
	MergeSHA       string
	ReleaseLabel   string
	ErrorKind      domain.ErrorKind
	ErrorMessage   string
	FilesCreated   int
	FilesModified  int
	TokensInput    int
	TokensOutput   int
	CostUSD        float64
}

// Duration returns how long the cycle ran.
func (c *Cycle) Duration() time.Duration {
	return c.FinishedAt.Sub(c.StartedAt)
}

// Store provides SQLite-backed cycle persistence
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}

	// Run migrations
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends one cycle to the ledger and fills in its row id.
func (s *Store) Record(c *Cycle) error {
	res, err := s.db.Exec(`
		INSERT INTO cycles (item_id, started_at, finished_at, outcome, decision, deploy_decision,
			branch, commit_sha, merge_sha, release_label, error_kind, error_message,
			files_created, files_modified, tokens_input, tokens_output, cost_usd)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ItemID,
		c.StartedAt,
		c.FinishedAt,
		string(c.Outcome),
		string(c.Decision),
		string(c.DeployDecision),
		c.Branch,
		c.CommitSHA,
		c.MergeSHA,
		c.ReleaseLabel,
		string(c.ErrorKind),
		c.ErrorMessage,
		c.FilesCreated,
		c.FilesModified,
		c.TokensInput,
		c.TokensOutput,
		c.CostUSD,
	)
	if err != nil {
		return err
	}
	c.ID, err = res.LastInsertId()
	return err
}

const cycleColumns = `id, item_id, started_at, finished_at, outcome, decision, deploy_decision,
	branch, commit_sha, merge_sha, release_label, error_kind, error_message,
	files_created, files_modified, tokens_input, tokens_output, cost_usd`

// Recent returns the most recent cycles, newest first.
func (s *Store) Recent(limit int) ([]*Cycle, error) {
	rows, err := s.db.Query(`SELECT `+cycleColumns+` FROM cycles
		ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanCycles(rows)
}

// ForItem returns every cycle recorded for one work item, oldest first.
// An item can have several when a review round trip or a retry happened.
func (s *Store) ForItem(itemID int64) ([]*Cycle, error) {
	rows, err := s.db.Query(`SELECT `+cycleColumns+` FROM cycles
		WHERE item_id = ? ORDER BY started_at, id`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanCycles(rows)
}

// Stats summarizes the whole ledger
type Stats struct {
	Total        int
	Completed    int
	Review       int
	Failed       int
	AutoMerged   int
	TokensInput  int64
	TokensOutput int64
	CostUSD      float64
}

// Stats returns ledger-wide counts and agent resource totals.
func (s *Store) Stats() (*Stats, error) {
	stats := &Stats{}

	rows, err := s.db.Query(`SELECT outcome, COUNT(*) FROM cycles GROUP BY outcome`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var outcome string
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, err
		}
		stats.Total += count
		switch domain.Status(outcome) {
		case domain.StatusCompleted:
			stats.Completed += count
		case domain.StatusReview:
			stats.Review += count
		case domain.StatusFailed:
			stats.Failed += count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = s.db.QueryRow(`SELECT COUNT(*) FROM cycles WHERE deploy_decision = ?`,
		string(domain.DeployAutoMerged)).Scan(&stats.AutoMerged)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRow(`SELECT COALESCE(SUM(tokens_input), 0), COALESCE(SUM(tokens_output), 0),
		COALESCE(SUM(cost_usd), 0) FROM cycles`).
		Scan(&stats.TokensInput, &stats.TokensOutput, &stats.CostUSD)
	if err != nil {
		return nil, err
	}

	return stats, nil
}

// Prune deletes cycles that finished before the cutoff and returns how
// many rows went away.
func (s *Store) Prune(before time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM cycles WHERE finished_at < ?`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanCycles(rows *sql.Rows) ([]*Cycle, error) {
	var cycles []*Cycle
	for rows.Next() {
		var c Cycle
		var outcome, decision, deploy, errKind string
		err := rows.Scan(&c.ID, &c.ItemID, &c.StartedAt, &c.FinishedAt, &outcome, &decision,
			&deploy, &c.Branch, &c.CommitSHA, &c.MergeSHA, &c.ReleaseLabel, &errKind,
			&c.ErrorMessage, &c.FilesCreated, &c.FilesModified, &c.TokensInput,
			&c.TokensOutput, &c.CostUSD)
		if err != nil {
			return nil, err
		}
		c.Outcome = domain.Status(outcome)
		c.Decision = domain.Decision(decision)
		c.DeployDecision = domain.DeployDecision(deploy)
		c.ErrorKind = domain.ErrorKind(errKind)
		cycles = append(cycles, &c)
	}
	return cycles, rows.Err()
}
