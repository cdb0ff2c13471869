// Package domain holds the production unit lifecycle: statuses, workflow
// variants and the transition rule, plus the stored entity shapes.
package domain

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// Status is the workshop progress of a production unit.
type Status string

const (
	StatusToDo               Status = "TO_DO"
	StatusCuttingTodo        Status = "CUTTING_TODO"
	StatusCuttingInProgress  Status = "CUTTING_IN_PROGRESS"
	StatusSewingTodo         Status = "SEWING_TODO"
	StatusSewingInProgress   Status = "SEWING_IN_PROGRESS"
	StatusAssemblyTodo       Status = "ASSEMBLY_TODO"
	StatusAssemblyInProgress Status = "ASSEMBLY_IN_PROGRESS"
	StatusToShip             Status = "TO_SHIP"
	StatusShipped            Status = "SHIPPED"

	// StatusLegacy stands for free-text values imported from the old board.
	// It can be displayed but never transitioned from.
	StatusLegacy Status = "LEGACY"
)

// Statuses lists the workflow statuses in workshop order. StatusLegacy is not part of it.
var Statuses = []Status{
	StatusToDo,
	StatusCuttingTodo,
	StatusCuttingInProgress,
	StatusSewingTodo,
	StatusSewingInProgress,
	StatusAssemblyTodo,
	StatusAssemblyInProgress,
	StatusToShip,
	StatusShipped,
}

// ParseStatus maps a stored or submitted value onto the closed set.
// Anything unrecognised becomes StatusLegacy.
func ParseStatus(s string) Status {
	candidate := Status(strings.ToUpper(strings.TrimSpace(s)))
	if candidate.Valid() || candidate == StatusLegacy {
		return candidate
	}
	return StatusLegacy
}

// Valid reports whether s is one of the workflow statuses.
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition can leave s.
func (s Status) Terminal() bool {
	return s == StatusShipped
}

func (s Status) String() string {
	return string(s)
}

// Scan implements sql.Scanner.
func (s *Status) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*s = ParseStatus(v)
	case []byte:
		*s = ParseStatus(string(v))
	case nil:
		*s = StatusLegacy
	default:
		return fmt.Errorf("cannot scan %T into Status", src)
	}
	return nil
}

// Value implements driver.Valuer.
func (s Status) Value() (driver.Value, error) {
	if !s.Valid() && s != StatusLegacy {
		return nil, fmt.Errorf("invalid status %q", string(s))
	}
	return string(s), nil
}
