package rbac

import (
	"context"
	"fmt"
)

// Level is a permission level on a single document.
type Level string

const (
	LevelView  Level = "view"
	LevelEdit  Level = "edit"
	LevelOwner Level = "owner"
)

func rank(level Level) int {
	switch level {
	case LevelOwner:
		return 3
	case LevelEdit:
		return 2
	case LevelView:
		return 1
	default:
		return 0
	}
}

// Can reports whether holding `have` satisfies a check for `need`.
func Can(have, need Level) bool {
	if rank(need) == 0 {
		return false
	}
	return rank(have) >= rank(need)
}

// ParseGrant validates a permission that may be stored on a grant.
// Owner is implicit and never granted.
func ParseGrant(value string) (Level, bool) {
	switch Level(value) {
	case LevelView, LevelEdit:
		return Level(value), true
	default:
		return "", false
	}
}

// Resource is the part of a document the evaluator needs.
type Resource struct {
	ID      string
	OwnerID string
}

// Grants looks up the level granted to a user on a document.
// found is false when no grant row exists.
type Grants interface {
	GrantLevel(ctx context.Context, docID, userID string) (level Level, found bool, err error)
}

// Evaluator decides document access from ownership and grant rows. It keeps
// no state between calls so every decision sees the current grants.
type Evaluator struct {
	grants Grants
}

func NewEvaluator(grants Grants) *Evaluator {
	return &Evaluator{grants: grants}
}

// Authorize returns the caller's effective level and whether it covers need.
func (e *Evaluator) Authorize(ctx context.Context, userID string, doc Resource, need Level) (Level, bool, error) {
	if doc.OwnerID == userID {
		return LevelOwner, true, nil
	}
	level, found, err := e.grants.GrantLevel(ctx, doc.ID, userID)
	if err != nil {
		return "", false, fmt.Errorf("lookup grant: %w", err)
	}
	if !found {
		return "", false, nil
	}
	return level, Can(level, need), nil
}
