package participant

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const selectColumns = `primary_key, id, user_id, name, role, station, email, visited, visited_count`

type row struct {
	PrimaryKey   int64  `db:"primary_key"`
	ID           string `db:"id"`
	UserID       int64  `db:"user_id"`
	Name         string `db:"name"`
	Role         string `db:"role"`
	Station      string `db:"station"`
	Email        string `db:"email"`
	Visited      string `db:"visited"`
	VisitedCount int    `db:"visited_count"`
}

func (r row) participant() (Participant, error) {
	var visited []string
	if strings.TrimSpace(r.Visited) != "" {
		if err := json.Unmarshal([]byte(r.Visited), &visited); err != nil {
			return Participant{}, fmt.Errorf("decode visited of %s: %w", r.ID, err)
		}
	}
	return Participant{
		PrimaryKey:   r.PrimaryKey,
		ID:           r.ID,
		UserID:       r.UserID,
		Name:         r.Name,
		Role:         Role(r.Role),
		Station:      r.Station,
		Email:        r.Email,
		Visited:      cloneVisited(visited),
		VisitedCount: r.VisitedCount,
	}, nil
}

// SQLStore keeps participants in the participants table (postgres or sqlite).
type SQLStore struct {
	db *sqlx.DB
}

// NewSQLStore wraps an open, migrated database.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Create inserts p with a fresh uuid.
func (s *SQLStore) Create(ctx context.Context, p *Participant) error {
	if err := validate(p); err != nil {
		return err
	}
	visited, err := encodeVisited(p.Visited)
	if err != nil {
		return err
	}
	id := uuid.NewString()
	query := s.db.Rebind(`
		INSERT INTO participants (id, user_id, name, role, station, email, visited, visited_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING primary_key`)

	var pk int64
	err = s.db.QueryRowxContext(ctx, query,
		id, p.UserID, p.Name, string(p.Role), p.Station, p.Email, visited, len(p.Visited),
	).Scan(&pk)
	if err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}
	p.ID = id
	p.PrimaryKey = pk
	p.Visited = cloneVisited(p.Visited)
	p.VisitedCount = len(p.Visited)
	return nil
}

// FindByUserID returns the newest record for userID.
func (s *SQLStore) FindByUserID(ctx context.Context, userID int64) (Participant, error) {
	query := s.db.Rebind(`SELECT ` + selectColumns + ` FROM participants
		WHERE user_id = ? ORDER BY primary_key DESC LIMIT 1`)
	return s.getOne(ctx, query, userID)
}

// FindByPrimaryKey returns the record with the store-assigned key.
func (s *SQLStore) FindByPrimaryKey(ctx context.Context, key int64) (Participant, error) {
	query := s.db.Rebind(`SELECT ` + selectColumns + ` FROM participants WHERE primary_key = ?`)
	return s.getOne(ctx, query, key)
}

func (s *SQLStore) getOne(ctx context.Context, query string, arg any) (Participant, error) {
	var r row
	if err := s.db.GetContext(ctx, &r, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Participant{}, ErrNotFound
		}
		return Participant{}, fmt.Errorf("get participant: %w", err)
	}
	return r.participant()
}

// Update applies ch to the record id.
func (s *SQLStore) Update(ctx context.Context, id string, ch Changes) error {
	var (
		sets []string
		args []any
	)
	if ch.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *ch.Name)
	}
	if ch.Email != nil {
		sets = append(sets, "email = ?")
		args = append(args, *ch.Email)
	}
	if ch.Visited != nil {
		visited, err := encodeVisited(ch.Visited)
		if err != nil {
			return err
		}
		sets = append(sets, "visited = ?", "visited_count = ?")
		args = append(args, visited, len(ch.Visited))
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	query := s.db.Rebind(`UPDATE participants SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update participant: %w", err)
	}
	return expectRow(res)
}

// Delete removes the record id.
func (s *SQLStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM participants WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete participant: %w", err)
	}
	return expectRow(res)
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func encodeVisited(v []string) (string, error) {
	data, err := json.Marshal(cloneVisited(v))
	if err != nil {
		return "", fmt.Errorf("encode visited: %w", err)
	}
	return string(data), nil
}
