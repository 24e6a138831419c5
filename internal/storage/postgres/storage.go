package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcoot/typeroom/internal/model"
	"github.com/mcoot/typeroom/internal/storage"
	"github.com/mcoot/typeroom/internal/storage/postgres/migrations"
)

// Postgres error codes
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

const roomColumns = `code, name, created_by, is_public, status, results_published, created_at, started_at, completed_at`

// Storage is a Postgres-backed implementation of the storage gateway
type Storage struct {
	pool *pgxpool.Pool
}

// New connects to Postgres, optionally applying migrations first
func New(ctx context.Context, cfg Config) (*Storage, error) {
	if cfg.Migrate {
		if err := migrations.Up(ctx, cfg.URL); err != nil {
			return nil, err
		}
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}

	return NewWithPool(pool), nil
}

// NewWithPool creates a Postgres storage over an existing pool (for testing)
func NewWithPool(pool *pgxpool.Pool) *Storage {
	return &Storage{pool: pool}
}

// Close closes the connection pool
func (s *Storage) Close() error {
	s.pool.Close()
	return nil
}

// Ensure Storage implements the interface
var _ storage.Gateway = (*Storage)(nil)

// mapError converts driver errors into model errors
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ErrRoomNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return model.ErrRoomExists
		case codeForeignKeyViolation:
			return model.ErrRoomNotFound
		}
	}
	return storage.Wrap(err)
}

func scanRoom(row pgx.Row) (*model.Room, error) {
	var room model.Room
	var code, createdBy, status string
	err := row.Scan(
		&code, &room.Name, &createdBy, &room.IsPublic, &status,
		&room.ResultsPublished, &room.CreatedAt, &room.StartedAt, &room.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	room.Code = model.RoomCode(code)
	room.CreatedBy = model.UserID(createdBy)
	room.Status = model.RoomStatus(status)
	return &room, nil
}

// Room operations

func (s *Storage) CreateRoom(ctx context.Context, room *model.Room) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO rooms (`+roomColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		string(room.Code), room.Name, string(room.CreatedBy), room.IsPublic, string(room.Status),
		room.ResultsPublished, room.CreatedAt, room.StartedAt, room.CompletedAt,
	)
	return mapError(err)
}

func (s *Storage) GetRoom(ctx context.Context, code model.RoomCode) (*model.Room, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE code = $1`, string(code))
	room, err := scanRoom(row)
	if err != nil {
		return nil, mapError(err)
	}
	return room, nil
}

func (s *Storage) RoomExists(ctx context.Context, code model.RoomCode) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM rooms WHERE code = $1)`, string(code)).Scan(&exists)
	if err != nil {
		return false, storage.Wrap(err)
	}
	return exists, nil
}

func (s *Storage) ListRooms(ctx context.Context, filter model.RoomFilter) ([]*model.Room, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+roomColumns+` FROM rooms
		 WHERE ($1::text = '' OR status = $1::text) AND (NOT $2::boolean OR is_public)
		 ORDER BY created_at DESC, code`,
		string(filter.Status), filter.PublicOnly,
	)
	if err != nil {
		return nil, storage.Wrap(err)
	}
	defer rows.Close()

	rooms := make([]*model.Room, 0)
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, storage.Wrap(err)
		}
		rooms = append(rooms, room)
	}
	return rooms, storage.Wrap(rows.Err())
}

func (s *Storage) SetRoomStatus(ctx context.Context, code model.RoomCode, status model.RoomStatus, at time.Time) error {
	prev, ok := status.Predecessor()
	if !ok {
		if _, err := s.GetRoom(ctx, code); err != nil {
			return err
		}
		return model.ErrInvalidTransition
	}

	// Compare-and-set on the previous status keeps the transition monotonic
	tag, err := s.pool.Exec(ctx,
		`UPDATE rooms SET
		     status = $2::text,
		     started_at = CASE WHEN $2::text = 'in_progress' THEN $4::timestamptz ELSE started_at END,
		     completed_at = CASE WHEN $2::text = 'completed' THEN $4::timestamptz ELSE completed_at END
		 WHERE code = $1 AND status = $3::text`,
		string(code), string(status), string(prev), at,
	)
	if err != nil {
		return storage.Wrap(err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	exists, err := s.RoomExists(ctx, code)
	if err != nil {
		return err
	}
	if !exists {
		return model.ErrRoomNotFound
	}
	return model.ErrInvalidTransition
}

func (s *Storage) SetResultsPublished(ctx context.Context, code model.RoomCode, published bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE rooms SET results_published = $2 WHERE code = $1`, string(code), published)
	if err != nil {
		return storage.Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrRoomNotFound
	}
	return nil
}

// Participant operations

func (s *Storage) UpsertParticipant(ctx context.Context, code model.RoomCode, p model.Participant) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO participants (room_code, user_id, name, email, is_host, joined_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (room_code, user_id) DO UPDATE SET
		     name = EXCLUDED.name,
		     email = EXCLUDED.email,
		     is_host = EXCLUDED.is_host`,
		string(code), string(p.UserID), p.Name, p.Email, p.IsHost, p.JoinedAt,
	)
	return mapError(err)
}

func (s *Storage) GetParticipants(ctx context.Context, code model.RoomCode) ([]model.Participant, error) {
	if err := s.requireRoom(ctx, code); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT user_id, name, email, is_host, joined_at FROM participants
		 WHERE room_code = $1 ORDER BY joined_at, user_id`,
		string(code),
	)
	if err != nil {
		return nil, storage.Wrap(err)
	}
	defer rows.Close()

	members := make([]model.Participant, 0)
	for rows.Next() {
		var p model.Participant
		var userID string
		if err := rows.Scan(&userID, &p.Name, &p.Email, &p.IsHost, &p.JoinedAt); err != nil {
			return nil, storage.Wrap(err)
		}
		p.UserID = model.UserID(userID)
		members = append(members, p)
	}
	return members, storage.Wrap(rows.Err())
}

// Result operations

// UpsertResult merges in a single statement: NULL parameters keep the stored
// column, and the score is recomputed from the merged wpm and accuracy.
func (s *Storage) UpsertResult(ctx context.Context, code model.RoomCode, userID model.UserID, u model.ResultUpdate, at time.Time) (*model.Result, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO results AS r (room_code, user_id, wpm, accuracy, errors, time_taken, level, progress, score, finished, updated_at)
		 VALUES ($1, $2,
		     COALESCE($3::double precision, 0),
		     COALESCE($4::double precision, 0),
		     COALESCE($5::integer, 0),
		     COALESCE($6::integer, 0),
		     COALESCE($7::text, ''),
		     COALESCE($8::double precision, 0),
		     COALESCE($3::double precision, 0) * COALESCE($4::double precision, 0) / 100,
		     COALESCE($9::boolean, FALSE),
		     $10)
		 ON CONFLICT (room_code, user_id) DO UPDATE SET
		     wpm = COALESCE($3::double precision, r.wpm),
		     accuracy = COALESCE($4::double precision, r.accuracy),
		     errors = COALESCE($5::integer, r.errors),
		     time_taken = COALESCE($6::integer, r.time_taken),
		     level = COALESCE($7::text, r.level),
		     progress = COALESCE($8::double precision, r.progress),
		     score = COALESCE($3::double precision, r.wpm) * COALESCE($4::double precision, r.accuracy) / 100,
		     finished = COALESCE($9::boolean, r.finished),
		     updated_at = $10
		 RETURNING wpm, accuracy, errors, time_taken, level, progress, score, finished, updated_at`,
		string(code), string(userID), u.WPM, u.Accuracy, u.Errors, u.TimeTaken, u.Level, u.Progress,
		u.Finished, at,
	)

	merged := model.Result{UserID: userID}
	err := row.Scan(&merged.Metrics.WPM, &merged.Metrics.Accuracy, &merged.Metrics.Errors, &merged.Metrics.TimeTaken,
		&merged.Metrics.Level, &merged.Metrics.Progress, &merged.Score, &merged.Finished, &merged.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &merged, nil
}

func (s *Storage) GetResults(ctx context.Context, code model.RoomCode) ([]model.Result, error) {
	if err := s.requireRoom(ctx, code); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT user_id, wpm, accuracy, errors, time_taken, level, progress, score, finished, updated_at
		 FROM results WHERE room_code = $1 ORDER BY user_id`,
		string(code),
	)
	if err != nil {
		return nil, storage.Wrap(err)
	}
	defer rows.Close()

	results := make([]model.Result, 0)
	for rows.Next() {
		var r model.Result
		var userID string
		err := rows.Scan(&userID, &r.Metrics.WPM, &r.Metrics.Accuracy, &r.Metrics.Errors, &r.Metrics.TimeTaken,
			&r.Metrics.Level, &r.Metrics.Progress, &r.Score, &r.Finished, &r.UpdatedAt)
		if err != nil {
			return nil, storage.Wrap(err)
		}
		r.UserID = model.UserID(userID)
		results = append(results, r)
	}
	return results, storage.Wrap(rows.Err())
}

func (s *Storage) requireRoom(ctx context.Context, code model.RoomCode) error {
	exists, err := s.RoomExists(ctx, code)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", model.ErrRoomNotFound, code)
	}
	return nil
}
