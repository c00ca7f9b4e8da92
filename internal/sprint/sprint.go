// Package sprint implements the sprint state machine and the item
// reconciliation that happens at sprint start, mid-sprint additions,
// completion, cancellation and deletion.
package sprint

import (
	"strings"
	"time"

	"github.com/antigravity-dev/tracker/internal/apperr"
)

// Status is the lifecycle state of a sprint.
type Status string

const (
	StatusPlanned   Status = "planned"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Patch field names understood by the persistence layer.
const (
	FieldName       = "name"
	FieldGoal       = "goal"
	FieldStartDate  = "start_date"
	FieldEndDate    = "end_date"
	FieldStatus     = "status"
	FieldCommitted  = "committed_story_points"
	FieldCompleted  = "completed_story_points"
	FieldScopeCreep = "scope_creep_story_points"
	FieldNumber     = "sprint_number"
)

// Sprint is a time-boxed iteration of a project.
type Sprint struct {
	ID           string    `json:"id"`
	Project      string    `json:"project"`
	Name         string    `json:"name"`
	Goal         string    `json:"goal"`
	SprintNumber int       `json:"sprint_number"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
	Status       Status    `json:"status"`

	CommittedStoryPoints int `json:"committed_story_points"`
	// CompletedStoryPoints is the snapshot taken at completion. Live values
	// are always derived from the sprint's items.
	CompletedStoryPoints  int `json:"completed_story_points"`
	ScopeCreepStoryPoints int `json:"scope_creep_story_points"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TotalCommitment is the original commitment plus accumulated scope creep.
func (s Sprint) TotalCommitment() int {
	return s.CommittedStoryPoints + s.ScopeCreepStoryPoints
}

// Terminal reports whether the sprint can no longer change state.
func (s Sprint) Terminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusCancelled
}

// Validate checks name, status and date ordering.
func (s Sprint) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return apperr.Validation("sprint name is required")
	}
	if strings.TrimSpace(s.Project) == "" {
		return apperr.Validation("sprint project is required")
	}
	if !ValidStatus(s.Status) {
		return apperr.Validation("unknown sprint status %q", s.Status)
	}
	if s.StartDate.IsZero() || s.EndDate.IsZero() {
		return apperr.Validation("sprint start and end dates are required")
	}
	if !s.EndDate.After(s.StartDate) {
		return apperr.Validation("sprint end date %s must be after start date %s",
			s.EndDate.Format(time.DateOnly), s.StartDate.Format(time.DateOnly))
	}
	if s.CommittedStoryPoints < 0 {
		return apperr.Validation("committed story points cannot be negative")
	}
	return nil
}

// ValidStatus reports whether st is a known sprint status.
func ValidStatus(st Status) bool {
	switch st {
	case StatusPlanned, StatusActive, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

var transitions = map[Status][]Status{
	StatusPlanned: {StatusActive, StatusCancelled},
	StatusActive:  {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextNumber returns the sprint number following the highest in sprints.
func NextNumber(sprints []Sprint) int {
	highest := 0
	for _, s := range sprints {
		if s.SprintNumber > highest {
			highest = s.SprintNumber
		}
	}
	return highest + 1
}
