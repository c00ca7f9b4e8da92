// Package backlog models product backlog items, their hierarchy and the
// ordering/selection rules used during sprint planning.
package backlog

import (
	"strings"
	"time"

	"github.com/antigravity-dev/tracker/internal/apperr"
)

// ItemType is the kind of a backlog item.
type ItemType string

const (
	TypeEpic      ItemType = "epic"
	TypeUserStory ItemType = "user_story"
	TypeTask      ItemType = "task"
	TypeBug       ItemType = "bug"
	TypeSpike     ItemType = "spike"
)

// Status is the workflow status of a backlog item.
type Status string

const (
	StatusNew        Status = "new"
	StatusApproved   Status = "approved"
	StatusCommitted  Status = "committed"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusRemoved    Status = "removed"
)

// Priority levels, 1 (low) to 4 (critical).
const (
	PriorityLow      = 1
	PriorityMedium   = 2
	PriorityHigh     = 3
	PriorityCritical = 4
)

// Patch field names understood by the persistence layer.
const (
	FieldTitle              = "title"
	FieldDescription        = "description"
	FieldAcceptanceCriteria = "acceptance_criteria"
	FieldType               = "item_type"
	FieldPriority           = "priority"
	FieldStoryPoints        = "story_points"
	FieldParentID           = "parent_id"
	FieldStatus             = "status"
	FieldSprintID           = "sprint_id"
	FieldBacklogOrder       = "backlog_order"
	FieldAssignedTo         = "assigned_to"
)

// StoryPointScale is the allowed set of non-zero story point estimates.
var StoryPointScale = []int{1, 2, 3, 5, 8, 13, 21}

// Item is a product backlog item (PBI).
type Item struct {
	ID                 string    `json:"id"`
	Project            string    `json:"project"`
	Title              string    `json:"title"`
	Description        string    `json:"description"`
	AcceptanceCriteria string    `json:"acceptance_criteria"`
	Type               ItemType  `json:"item_type"`
	Priority           int       `json:"priority"`
	StoryPoints        int       `json:"story_points"`
	ParentID           string    `json:"parent_id,omitempty"`
	Status             Status    `json:"status"`
	SprintID           string    `json:"sprint_id,omitempty"`
	BacklogOrder       int       `json:"backlog_order"`
	AssignedTo         string    `json:"assigned_to"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Update is a partial patch for one item: only the listed fields change.
type Update struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// IsStory reports whether the item carries meaningful story points.
func (it Item) IsStory() bool {
	return it.Type == TypeUserStory
}

// IsDone reports whether the item is finished.
func (it Item) IsDone() bool {
	return it.Status == StatusDone
}

// Points returns the story points that count toward velocity and scope.
// Only user stories contribute.
func (it Item) Points() int {
	if !it.IsStory() {
		return 0
	}
	return it.StoryPoints
}

// InBacklog reports whether the item is not attached to any sprint.
func (it Item) InBacklog() bool {
	return strings.TrimSpace(it.SprintID) == ""
}

// Validate checks the fields of a single item without looking at its parent.
func (it Item) Validate() error {
	if strings.TrimSpace(it.Title) == "" {
		return apperr.Validation("item title is required")
	}
	if !ValidType(it.Type) {
		return apperr.Validation("unknown item type %q", it.Type)
	}
	if !ValidStatus(it.Status) {
		return apperr.Validation("unknown item status %q", it.Status)
	}
	if it.Priority < PriorityLow || it.Priority > PriorityCritical {
		return apperr.Validation("priority %d out of range 1-4", it.Priority)
	}
	if !ValidStoryPoints(it.StoryPoints) {
		return apperr.Validation("story points %d not in scale %v", it.StoryPoints, StoryPointScale)
	}
	if it.Type == TypeEpic && strings.TrimSpace(it.ParentID) != "" {
		return apperr.Validation("an epic cannot have a parent")
	}
	return nil
}

// ValidType reports whether t is a known item type.
func ValidType(t ItemType) bool {
	switch t {
	case TypeEpic, TypeUserStory, TypeTask, TypeBug, TypeSpike:
		return true
	}
	return false
}

// ValidStatus reports whether s is a known item status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusNew, StatusApproved, StatusCommitted, StatusInProgress, StatusDone, StatusRemoved:
		return true
	}
	return false
}

// ValidStoryPoints accepts 0 (unestimated) or a value from StoryPointScale.
func ValidStoryPoints(points int) bool {
	if points == 0 {
		return true
	}
	for _, p := range StoryPointScale {
		if p == points {
			return true
		}
	}
	return false
}

// Normalize fills defaults for a newly created item.
func (it *Item) Normalize() {
	it.Title = strings.TrimSpace(it.Title)
	it.ParentID = strings.TrimSpace(it.ParentID)
	it.SprintID = strings.TrimSpace(it.SprintID)
	if it.Type == "" {
		it.Type = TypeUserStory
	}
	if it.Status == "" {
		it.Status = StatusNew
	}
	if it.Priority == 0 {
		it.Priority = PriorityMedium
	}
}

// Index returns the items keyed by id.
func Index(items []Item) map[string]Item {
	byID := make(map[string]Item, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}
	return byID
}

// TotalPoints sums the story points of user stories in items.
func TotalPoints(items []Item) int {
	total := 0
	for _, it := range items {
		total += it.Points()
	}
	return total
}

// DonePoints sums the story points of finished user stories in items.
func DonePoints(items []Item) int {
	total := 0
	for _, it := range items {
		if it.IsDone() {
			total += it.Points()
		}
	}
	return total
}
