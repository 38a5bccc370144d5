package pulse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrUserNotFound indicates the user row does not exist.
var ErrUserNotFound = errors.New("user not found")

// UserRepository persists the per-user last claim timestamp.
type UserRepository interface {
	// LastClaim returns the user's last pulse claim time, or nil if the user
	// never claimed.
	LastClaim(ctx context.Context, userID int64) (*time.Time, error)

	// MarkClaimed sets last_pulse_claim to claimedAt only if the stored value
	// is null or at most cutoff. The conditional update is the concurrency
	// guard: it reports false when another claim already won the window.
	MarkClaimed(ctx context.Context, userID int64, claimedAt, cutoff time.Time) (bool, error)
}

// PostgresRepository stores claim state on the users table.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) LastClaim(ctx context.Context, userID int64) (*time.Time, error) {
	var last *time.Time
	err := r.db.QueryRow(ctx, `SELECT last_pulse_claim FROM users WHERE id = $1`, userID).Scan(&last)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", ErrUserNotFound, userID)
		}
		return nil, fmt.Errorf("read last claim: %w", err)
	}
	return last, nil
}

func (r *PostgresRepository) MarkClaimed(ctx context.Context, userID int64, claimedAt, cutoff time.Time) (bool, error) {
	const update = `
        UPDATE users
        SET last_pulse_claim = $2
        WHERE id = $1
          AND (last_pulse_claim IS NULL OR last_pulse_claim <= $3)`

	tag, err := r.db.Exec(ctx, update, userID, claimedAt.UTC(), cutoff.UTC())
	if err != nil {
		return false, fmt.Errorf("mark claimed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
