// Package participant holds registered mentors and learners and the stores
// that persist them.
package participant

import (
	"context"
	"errors"
	"slices"
)

// Role is fixed at registration.
type Role string

const (
	RoleMentor  Role = "mentor"
	RoleLearner Role = "learner"
)

func (r Role) Valid() bool { return r == RoleMentor || r == RoleLearner }

var (
	// ErrNotFound means the store answered and holds no matching record.
	ErrNotFound = errors.New("participant: not found")
	// ErrUnavailable means the store could not answer in time.
	ErrUnavailable = errors.New("participant: store unavailable")
)

// Participant is one registration record. A user may have several over time
// (after /cleardata); the newest one wins.
type Participant struct {
	PrimaryKey int64
	ID         string
	UserID     int64
	Name       string
	Role       Role
	// Station is set for mentors only.
	Station string
	// Email, Visited and VisitedCount are used by learners only.
	Email        string
	Visited      []string
	VisitedCount int
}

// IsLearner reports whether p registered as a learner.
func (p Participant) IsLearner() bool { return p.Role == RoleLearner }

// IsMentor reports whether p registered as a mentor.
func (p Participant) IsMentor() bool { return p.Role == RoleMentor }

// HasVisited reports whether station is already in the visited list.
func (p Participant) HasVisited(station string) bool {
	return slices.Contains(p.Visited, station)
}

// Changes lists the fields to update. Nil fields are left as they are.
// Setting Visited also rewrites VisitedCount to its length.
type Changes struct {
	Name    *string
	Email   *string
	Visited []string
}

// Store is the record store the bot talks to.
type Store interface {
	// Create stores p and fills in ID and PrimaryKey.
	Create(ctx context.Context, p *Participant) error
	// FindByUserID returns the newest record of the user.
	FindByUserID(ctx context.Context, userID int64) (Participant, error)
	FindByPrimaryKey(ctx context.Context, key int64) (Participant, error)
	Update(ctx context.Context, id string, ch Changes) error
	Delete(ctx context.Context, id string) error
}

func validate(p *Participant) error {
	if p == nil {
		return errors.New("participant: nil record")
	}
	if p.UserID == 0 {
		return errors.New("participant: user id required")
	}
	if !p.Role.Valid() {
		return errors.New("participant: invalid role " + string(p.Role))
	}
	if p.Role == RoleMentor && p.Station == "" {
		return errors.New("participant: mentor needs a station")
	}
	return nil
}

func cloneVisited(v []string) []string {
	if v == nil {
		return []string{}
	}
	return slices.Clone(v)
}
