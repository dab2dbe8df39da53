package receiptchain

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// advisoryLockKey is a stable PostgreSQL advisory lock key used to serialise
// concurrent Append calls. The value is arbitrary but must be consistent
// across all receiptd instances sharing a database.
const advisoryLockKey = int64(2_024_061_117)

const linkColumns = `seq, receipt_id, short_code, version, submission_id,
	intent, body, created_at_ms, prev_hash, hash`

// PostgresStore persists the receipt ledger to PostgreSQL.
// It implements the Store interface.
type PostgresStore struct {
	pool   *pgxpool.Pool
	codes  *ShortCodeAllocator
	logger *zap.Logger
}

// NewPostgresStore creates a PostgresStore backed by the given connection pool.
// codes may be nil to use a default crypto/rand allocator.
func NewPostgresStore(pool *pgxpool.Pool, codes *ShortCodeAllocator, logger *zap.Logger) *PostgresStore {
	if codes == nil {
		codes = NewShortCodeAllocator()
	}
	return &PostgresStore{pool: pool, codes: codes, logger: logger}
}

// Append implements Store.
// It acquires a transaction-scoped advisory lock, reads the chain tail,
// allocates a short code, inserts the sealed link and commits. The receipt is
// returned only after COMMIT, so a crash can never erase a code already shown
// to a citizen.
func (s *PostgresStore) Append(ctx context.Context, d Draft) (*Link, error) {
	d, err := prepareDraft(d)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, &WriteError{Op: "begin tx", Err: err}
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return nil, &WriteError{Op: "acquire advisory lock", Err: err}
	}

	tail := Tail{Length: 0, Hash: GenesisHash}
	var headSeq int64
	var headHash string
	err = tx.QueryRow(ctx,
		"SELECT seq, hash FROM receipt_links ORDER BY seq DESC LIMIT 1",
	).Scan(&headSeq, &headHash)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return nil, &WriteError{Op: "read ledger tail", Err: err}
	default:
		tail = Tail{Length: headSeq + 1, Hash: headHash}
	}

	code, err := s.codes.Allocate(ctx, func(ctx context.Context, code string) (bool, error) {
		var taken bool
		err := tx.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM receipt_links WHERE short_code = $1)", code,
		).Scan(&taken)
		return taken, err
	})
	if err != nil {
		if errors.Is(err, ErrAllocationExhausted) {
			return nil, err
		}
		return nil, &WriteError{Op: "allocate short code", Err: err}
	}

	link, err := sealLink(tail, uuid.New(), code, d)
	if err != nil {
		return nil, fmt.Errorf("seal link: %w", err)
	}

	p := link.Payload
	if _, err := tx.Exec(ctx,
		`INSERT INTO receipt_links (`+linkColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		link.Sequence, p.ReceiptID, p.ShortCode, int16(p.Version), p.SubmissionID,
		p.Intent, p.Text, p.CreatedAtMs, link.PrevHash, link.Hash,
	); err != nil {
		return nil, &WriteError{Op: "insert link", Err: err}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, &WriteError{Op: "commit", Err: err}
	}

	s.logger.Debug("receipt link appended",
		zap.Int64("seq", link.Sequence),
		zap.String("receipt_id", p.ReceiptID.String()),
		zap.Int64("submission_id", p.SubmissionID),
	)
	return link, nil
}

// GetByID implements Store.
func (s *PostgresStore) GetByID(ctx context.Context, id uuid.UUID) (*Link, error) {
	return s.getOne(ctx, "receipt_id = $1", id)
}

// GetByShortCode implements Store.
func (s *PostgresStore) GetByShortCode(ctx context.Context, code string) (*Link, error) {
	canonical, err := NormalizeShortCode(code)
	if err != nil {
		return nil, err
	}
	return s.getOne(ctx, "short_code = $1", canonical)
}

// GetBySequence implements Store.
func (s *PostgresStore) GetBySequence(ctx context.Context, seq int64) (*Link, error) {
	return s.getOne(ctx, "seq = $1", seq)
}

func (s *PostgresStore) getOne(ctx context.Context, where string, arg any) (*Link, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+linkColumns+" FROM receipt_links WHERE "+where, arg)
	link, err := scanLink(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get receipt link: %w", err)
	}
	return link, nil
}

// Tail implements Store.
func (s *PostgresStore) Tail(ctx context.Context) (Tail, error) {
	var seq int64
	var hash string
	err := s.pool.QueryRow(ctx,
		"SELECT seq, hash FROM receipt_links ORDER BY seq DESC LIMIT 1",
	).Scan(&seq, &hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return Tail{Length: 0, Hash: GenesisHash}, nil
	}
	if err != nil {
		return Tail{}, fmt.Errorf("read ledger tail: %w", err)
	}
	return Tail{Length: seq + 1, Hash: hash}, nil
}

// Walk implements Store. It streams rows ordered by seq; O(n) in ledger length.
func (s *PostgresStore) Walk(ctx context.Context, from int64, fn func(*Link) error) error {
	rows, err := s.pool.Query(ctx,
		"SELECT "+linkColumns+" FROM receipt_links WHERE seq >= $1 ORDER BY seq ASC", from,
	)
	if err != nil {
		return fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return fmt.Errorf("scan ledger row: %w", err)
		}
		if err := fn(link); err != nil {
			return err
		}
	}
	return rows.Err()
}

func scanLink(row pgx.Row) (*Link, error) {
	var (
		l       Link
		version int16
	)
	if err := row.Scan(
		&l.Sequence, &l.Payload.ReceiptID, &l.Payload.ShortCode, &version,
		&l.Payload.SubmissionID, &l.Payload.Intent, &l.Payload.Text,
		&l.Payload.CreatedAtMs, &l.PrevHash, &l.Hash,
	); err != nil {
		return nil, err
	}
	l.Payload.Version = uint16(version)
	return &l, nil
}
