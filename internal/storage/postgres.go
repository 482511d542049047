package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/example/ride-lobby/internal/models"
)

const (
	// transaction retry budget for serialization failures / deadlocks
	txAttempts = 3
	txBackoff  = 25 * time.Millisecond
)

// PostgresStore persists rides in two tables, rides and ride_members, and
// relies on a SELECT ... FOR UPDATE row lock to linearize concurrent
// writers on the same ride.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromDB wraps an existing pool, used by cmd wiring after
// running migrations on the same handle.
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

func (p *PostgresStore) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *PostgresStore) Close() error { return p.db.Close() }

const rideColumns = `id, creator_id, creator_name, driver_id, driver_name,
	origin_name, origin_lat, origin_lon, dest_name, dest_lat, dest_lon,
	max_passengers, status, note, share_code, created_at, updated_at`

func scanRide(row interface{ Scan(...any) error }) (models.Ride, error) {
	var r models.Ride
	var driverID, driverName sql.NullString
	err := row.Scan(
		&r.ID, &r.CreatorID, &r.CreatorName, &driverID, &driverName,
		&r.Origin.Name, &r.Origin.Lat, &r.Origin.Lon,
		&r.Destination.Name, &r.Destination.Lat, &r.Destination.Lon,
		&r.MaxPassengers, &r.Status, &r.Note, &r.ShareCode, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return models.Ride{}, err
	}
	r.DriverID = driverID.String
	r.DriverName = driverName.String
	return r, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (p *PostgresStore) CreateRide(ctx context.Context, ride models.Ride, creator models.Membership) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO rides (id, creator_id, creator_name, driver_id, driver_name,
		                    origin_name, origin_lat, origin_lon, dest_name, dest_lat, dest_lon,
		                    max_passengers, status, note, share_code, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		ride.ID, ride.CreatorID, ride.CreatorName, nullable(ride.DriverID), nullable(ride.DriverName),
		ride.Origin.Name, ride.Origin.Lat, ride.Origin.Lon,
		ride.Destination.Name, ride.Destination.Lat, ride.Destination.Lon,
		ride.MaxPassengers, ride.Status, ride.Note, ride.ShareCode, ride.CreatedAt, ride.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "rides_share_code_key") {
			return ErrShareCodeTaken
		}
		return fmt.Errorf("insert ride: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO ride_members (ride_id, user_id, display_name, joined_at) VALUES ($1,$2,$3,$4)`,
		creator.RideID, creator.UserID, creator.DisplayName, creator.JoinedAt,
	)
	if err != nil {
		return fmt.Errorf("insert creator membership: %w", err)
	}
	return tx.Commit()
}

func (p *PostgresStore) Mutate(ctx context.Context, rideID string, fn MutateFn) (models.Snapshot, error) {
	var lastErr error
	for attempt := 0; attempt < txAttempts; attempt++ {
		snap, err := p.mutateOnce(ctx, rideID, fn)
		if err == nil || !isRetryable(err) {
			return snap, err
		}
		lastErr = err
		time.Sleep(txBackoff << attempt)
	}
	return models.Snapshot{}, fmt.Errorf("transaction retries exhausted: %w", lastErr)
}

func (p *PostgresStore) mutateOnce(ctx context.Context, rideID string, fn MutateFn) (models.Snapshot, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Row lock: every guard-then-mutate sequence on this ride serializes here.
	ride, err := scanRide(tx.QueryRowContext(ctx,
		`SELECT `+rideColumns+` FROM rides WHERE id = $1 FOR UPDATE`, rideID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Snapshot{}, ErrNotFound
		}
		return models.Snapshot{}, fmt.Errorf("lock ride: %w", err)
	}

	members, err := p.membersTx(ctx, tx, rideID)
	if err != nil {
		return models.Snapshot{}, err
	}

	snap := models.Snapshot{Ride: ride, Members: members}
	change, err := fn(&snap)
	if err != nil {
		return models.Snapshot{}, err
	}

	if change.UpdateRide {
		_, err = tx.ExecContext(ctx,
			`UPDATE rides SET driver_id = $1, driver_name = $2, status = $3, updated_at = $4 WHERE id = $5`,
			nullable(snap.Ride.DriverID), nullable(snap.Ride.DriverName), snap.Ride.Status, snap.Ride.UpdatedAt, rideID,
		)
		if err != nil {
			return models.Snapshot{}, fmt.Errorf("update ride: %w", err)
		}
	}
	if change.AddMember != nil {
		m := change.AddMember
		_, err = tx.ExecContext(ctx,
			`INSERT INTO ride_members (ride_id, user_id, display_name, joined_at) VALUES ($1,$2,$3,$4)`,
			m.RideID, m.UserID, m.DisplayName, m.JoinedAt,
		)
		if err != nil {
			return models.Snapshot{}, fmt.Errorf("insert membership: %w", err)
		}
		snap.Members = append(snap.Members, *m)
	}
	if change.RemoveMember != "" {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM ride_members WHERE ride_id = $1 AND user_id = $2`, rideID, change.RemoveMember)
		if err != nil {
			return models.Snapshot{}, fmt.Errorf("delete membership: %w", err)
		}
		kept := snap.Members[:0]
		for _, m := range snap.Members {
			if m.UserID != change.RemoveMember {
				kept = append(kept, m)
			}
		}
		snap.Members = kept
	}

	if err := tx.Commit(); err != nil {
		return models.Snapshot{}, fmt.Errorf("commit: %w", err)
	}
	return snap, nil
}

func (p *PostgresStore) GetRide(ctx context.Context, rideID string) (models.Snapshot, error) {
	return p.getBy(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1`, rideID)
}

func (p *PostgresStore) GetRideByShareCode(ctx context.Context, code string) (models.Snapshot, error) {
	return p.getBy(ctx, `SELECT `+rideColumns+` FROM rides WHERE share_code = $1`, code)
}

func (p *PostgresStore) getBy(ctx context.Context, query string, arg any) (models.Snapshot, error) {
	ride, err := scanRide(p.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Snapshot{}, ErrNotFound
		}
		return models.Snapshot{}, fmt.Errorf("select ride: %w", err)
	}
	members, err := p.members(ctx, ride.ID)
	if err != nil {
		return models.Snapshot{}, err
	}
	return models.Snapshot{Ride: ride, Members: members}, nil
}

func (p *PostgresStore) members(ctx context.Context, rideID string) ([]models.Membership, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT ride_id, user_id, display_name, joined_at FROM ride_members WHERE ride_id = $1 ORDER BY joined_at`, rideID)
	if err != nil {
		return nil, fmt.Errorf("select members: %w", err)
	}
	return collectMembers(rows)
}

func (p *PostgresStore) membersTx(ctx context.Context, tx *sql.Tx, rideID string) ([]models.Membership, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT ride_id, user_id, display_name, joined_at FROM ride_members WHERE ride_id = $1 ORDER BY joined_at`, rideID)
	if err != nil {
		return nil, fmt.Errorf("select members: %w", err)
	}
	return collectMembers(rows)
}

func collectMembers(rows *sql.Rows) ([]models.Membership, error) {
	defer rows.Close()
	out := make([]models.Membership, 0, 4)
	for rows.Next() {
		var m models.Membership
		if err := rows.Scan(&m.RideID, &m.UserID, &m.DisplayName, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return out, nil
}

func (p *PostgresStore) ListActive(ctx context.Context) ([]models.Ride, error) {
	return p.listRides(ctx,
		`SELECT `+rideColumns+` FROM rides WHERE status IN ('waiting','accepted') ORDER BY created_at DESC`)
}

func (p *PostgresStore) ListForUser(ctx context.Context, userID string) ([]models.Ride, error) {
	return p.listRides(ctx,
		`SELECT `+rideColumns+` FROM rides r
		  WHERE r.creator_id = $1 OR r.driver_id = $1
		     OR EXISTS (SELECT 1 FROM ride_members m WHERE m.ride_id = r.id AND m.user_id = $1)
		  ORDER BY r.created_at DESC`, userID)
}

func (p *PostgresStore) listRides(ctx context.Context, query string, args ...any) ([]models.Ride, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rides: %w", err)
	}
	defer rows.Close()
	out := make([]models.Ride, 0, 16)
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ride: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rides: %w", err)
	}
	return out, nil
}

func (p *PostgresStore) PurgeTerminal(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx,
		`DELETE FROM rides WHERE status IN ('completed','cancelled') AND updated_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("purge terminal rides: %w", err)
	}
	return res.RowsAffected()
}

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return constraint == "" || pqErr.Constraint == constraint
	}
	return false
}

// serialization_failure / deadlock_detected
func isRetryable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}
