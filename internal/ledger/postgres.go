package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// maxAppendRetries bounds the optimistic-append retry loop. A caller only
// ever sees ErrConcurrencyConflict after losing the sequence race this many
// times in a row.
const maxAppendRetries = 5

const uniqueViolationCode = "23505"

// PostgresStore persists one ledger chain to PostgreSQL. It implements Store.
//
// Appends are optimistic: read the chain tail, compute the new entry's hash,
// and insert at tail+1. The primary key on (ledger, seq) makes a lost race a
// unique violation, which is retried with the refreshed tail rather than
// surfaced to the caller.
type PostgresStore struct {
	pool    *pgxpool.Pool
	subject SubjectType
	logger  *zap.Logger
}

// NewPostgresStore creates a PostgresStore for the given subject type backed
// by the given connection pool.
func NewPostgresStore(pool *pgxpool.Pool, subject SubjectType, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, subject: subject, logger: logger}
}

// Append implements Store.
func (s *PostgresStore) Append(ctx context.Context, draft Draft) (*Entry, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	payloadJSON, err := json.Marshal(draft.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	for attempt := 0; attempt < maxAppendRetries; attempt++ {
		tailSeq, tailHash, err := s.tail(ctx)
		if err != nil {
			return nil, err
		}

		entry := &Entry{
			Sequence:    tailSeq + 1,
			SubjectType: s.subject,
			Timestamp:   appendTime(),
			ActorID:     draft.ActorID,
			ActorRole:   draft.ActorRole,
			Action:      draft.Action,
			Resource:    draft.Resource,
			Payload:     clonePayload(draft.Payload),
			PrevHash:    tailHash,
		}
		entry.Hash = ComputeHash(entry)

		_, err = s.pool.Exec(ctx,
			`INSERT INTO ledger_entries (ledger, seq, ts, actor_id, actor_role, action, resource, payload, prev_hash, hash)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			s.subject, entry.Sequence, entry.Timestamp, entry.ActorID,
			entry.ActorRole, entry.Action, entry.Resource, payloadJSON,
			entry.PrevHash, entry.Hash,
		)
		if err == nil {
			return entry, nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			s.logger.Debug("append lost sequence race, retrying",
				zap.Uint64("seq", entry.Sequence),
				zap.Int("attempt", attempt+1),
			)
			continue
		}
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil, ErrConcurrencyConflict
}

// tail returns the current highest sequence and its hash, or (0, GenesisHash)
// for an empty chain.
func (s *PostgresStore) tail(ctx context.Context) (uint64, string, error) {
	var seq uint64
	var hash string
	err := s.pool.QueryRow(ctx,
		"SELECT seq, hash FROM ledger_entries WHERE ledger = $1 ORDER BY seq DESC LIMIT 1",
		s.subject,
	).Scan(&seq, &hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, GenesisHash, nil
	}
	if err != nil {
		return 0, "", fmt.Errorf("read ledger tail: %w", err)
	}
	return seq, hash, nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, seq uint64) (*Entry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT seq, ts, actor_id, actor_role, action, resource, payload, prev_hash, hash
		 FROM ledger_entries WHERE ledger = $1 AND seq = $2`,
		s.subject, seq,
	)
	entry, err := s.scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ledger entry %d: %w", seq, err)
	}
	return entry, nil
}

// Range implements Store.
func (s *PostgresStore) Range(ctx context.Context, from, to uint64) ([]*Entry, error) {
	if from < 1 {
		from = 1
	}
	rows, err := s.pool.Query(ctx,
		`SELECT seq, ts, actor_id, actor_role, action, resource, payload, prev_hash, hash
		 FROM ledger_entries WHERE ledger = $1 AND seq BETWEEN $2 AND $3
		 ORDER BY seq ASC`,
		s.subject, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("query ledger range: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		entry, err := s.scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// Head implements Store.
func (s *PostgresStore) Head(ctx context.Context) (uint64, error) {
	var head uint64
	if err := s.pool.QueryRow(ctx,
		"SELECT COALESCE(MAX(seq), 0) FROM ledger_entries WHERE ledger = $1",
		s.subject,
	).Scan(&head); err != nil {
		return 0, fmt.Errorf("read ledger head: %w", err)
	}
	return head, nil
}

// Subject implements Store.
func (s *PostgresStore) Subject() SubjectType {
	return s.subject
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) scanEntry(row rowScanner) (*Entry, error) {
	entry := &Entry{SubjectType: s.subject}
	var payloadJSON []byte
	if err := row.Scan(
		&entry.Sequence, &entry.Timestamp, &entry.ActorID, &entry.ActorRole,
		&entry.Action, &entry.Resource, &payloadJSON, &entry.PrevHash, &entry.Hash,
	); err != nil {
		return nil, err
	}
	if len(payloadJSON) > 0 {
		if err := json.Unmarshal(payloadJSON, &entry.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	entry.Timestamp = entry.Timestamp.UTC()
	return entry, nil
}
