// Package checkpoint persists per-domain stage output in a local SQLite file so
// an interrupted run resumes from the last completed stage.
package checkpoint

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/helixir/training-evidence-curator/internal/domain"
)

// SchemaVersion identifies the shape of stored payloads. Checkpoints written
// under another version are discarded on load.
const SchemaVersion = 3

const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	domain     TEXT    NOT NULL,
	stage      TEXT    NOT NULL,
	version    INTEGER NOT NULL,
	payload    BLOB    NOT NULL,
	checksum   TEXT    NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (domain, stage)
)`

// Entry describes a stored checkpoint without its payload.
type Entry struct {
	Domain    string
	Stage     domain.Stage
	Version   int
	Size      int
	CreatedAt time.Time
}

// Store is a SQLite-backed checkpoint store. It is safe for concurrent use.
type Store struct {
	db     *sql.DB
	path   string
	logger zerolog.Logger
	now    func() time.Time
}

// Open opens or creates the checkpoint database at path.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("checkpoint path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating checkpoint directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening checkpoint database: %w", err)
	}
	// Domains write concurrently; a single connection serializes them.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating checkpoint table: %w", err)
	}

	return &Store{
		db:     db,
		path:   path,
		logger: logger.With().Str("component", "checkpoint").Logger(),
		now:    time.Now,
	}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save encodes v as JSON and stores it for (domainName, stage), replacing any
// previous checkpoint.
func (s *Store) Save(ctx context.Context, domainName string, stage domain.Stage, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding checkpoint %s/%s: %w", domainName, stage, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (domain, stage, version, payload, checksum, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (domain, stage) DO UPDATE SET
			version = excluded.version,
			payload = excluded.payload,
			checksum = excluded.checksum,
			created_at = excluded.created_at`,
		domainName, string(stage), SchemaVersion, payload, checksum(payload), s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("saving checkpoint %s/%s: %w", domainName, stage, err)
	}

	s.logger.Debug().Str("domain", domainName).Str("stage", string(stage)).Int("bytes", len(payload)).
		Msg("checkpoint saved")
	return nil
}

// Load decodes the checkpoint for (domainName, stage) into v.
//
// It returns domain.ErrNotFound when none exists. A checkpoint with another
// schema version, a bad checksum or an undecodable payload is deleted and
// reported as *domain.CheckpointCorruption.
func (s *Store) Load(ctx context.Context, domainName string, stage domain.Stage, v any) error {
	var (
		version int
		payload []byte
		stored  string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT version, payload, checksum FROM checkpoints WHERE domain = ? AND stage = ?`,
		domainName, string(stage)).Scan(&version, &payload, &stored)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("loading checkpoint %s/%s: %w", domainName, stage, err)
	}

	var reason string
	switch {
	case version != SchemaVersion:
		reason = fmt.Sprintf("schema version %d, want %d", version, SchemaVersion)
	case checksum(payload) != stored:
		reason = "checksum mismatch"
	default:
		if err := json.Unmarshal(payload, v); err != nil {
			reason = "undecodable payload: " + err.Error()
		}
	}
	if reason == "" {
		return nil
	}

	corrupt := &domain.CheckpointCorruption{Domain: domainName, Stage: stage, Reason: reason}
	s.logger.Warn().Str("domain", domainName).Str("stage", string(stage)).Str("reason", reason).
		Msg("discarding corrupt checkpoint")
	if err := s.delete(ctx, domainName, stage); err != nil {
		return errors.Join(corrupt, err)
	}
	return corrupt
}

// DeleteDomain removes every checkpoint of a domain and returns how many were
// removed.
func (s *Store) DeleteDomain(ctx context.Context, domainName string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE domain = ?`, domainName)
	if err != nil {
		return 0, fmt.Errorf("deleting checkpoints for %s: %w", domainName, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted checkpoints: %w", err)
	}
	return int(n), nil
}

// DeleteAll removes every checkpoint.
func (s *Store) DeleteAll(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints`)
	if err != nil {
		return 0, fmt.Errorf("deleting checkpoints: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted checkpoints: %w", err)
	}
	return int(n), nil
}

// List returns stored checkpoints ordered by domain and creation time. An
// empty domainName lists all domains.
func (s *Store) List(ctx context.Context, domainName string) ([]Entry, error) {
	query := `SELECT domain, stage, version, length(payload), created_at FROM checkpoints`
	var args []any
	if domainName != "" {
		query += ` WHERE domain = ?`
		args = append(args, domainName)
	}
	query += ` ORDER BY domain, created_at, stage`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing checkpoints: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			stage   string
			created int64
		)
		if err := rows.Scan(&e.Domain, &stage, &e.Version, &e.Size, &created); err != nil {
			return nil, fmt.Errorf("scanning checkpoint: %w", err)
		}
		e.Stage = domain.Stage(stage)
		e.CreatedAt = time.UnixMilli(created).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating checkpoints: %w", err)
	}
	return entries, nil
}

func (s *Store) delete(ctx context.Context, domainName string, stage domain.Stage) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM checkpoints WHERE domain = ? AND stage = ?`, domainName, string(stage)); err != nil {
		return fmt.Errorf("deleting checkpoint %s/%s: %w", domainName, stage, err)
	}
	return nil
}

func checksum(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
