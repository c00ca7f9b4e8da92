// Package burndown derives burndown series, velocity and completion rates
// from a sprint and the items attached to it.
package burndown

import (
	"math"
	"time"

	"github.com/antigravity-dev/tracker/internal/backlog"
	"github.com/antigravity-dev/tracker/internal/sprint"
)

const day = 24 * time.Hour

// Point is one sample of a burndown series.
type Point struct {
	Day    int     `json:"day"`
	Points float64 `json:"points"`
}

// Burndown is the chart data for one sprint.
type Burndown struct {
	SprintID              string  `json:"sprint_id"`
	TotalDays             int     `json:"total_days"`
	DaysElapsed           int     `json:"days_elapsed"`
	CommittedStoryPoints  int     `json:"committed_story_points"`
	ScopeCreepStoryPoints int     `json:"scope_creep_story_points"`
	CompletedStoryPoints  int     `json:"completed_story_points"`
	TotalCommitment       int     `json:"total_commitment"`
	RemainingPoints       int     `json:"remaining_points"`
	Ideal                 []Point `json:"ideal,omitempty"`
	Actual                []Point `json:"actual,omitempty"`
	// Empty marks a sprint with no commitment; there is nothing to chart.
	Empty bool `json:"empty"`
}

// Compute builds the burndown for sp as of today.
//
// The ideal line runs from the original commitment on day 0 to zero on the
// last day and ignores scope creep. The actual line joins the original
// commitment on day 0 to the current remaining total, so scope creep shows
// up as remaining work above the ideal.
func Compute(sp sprint.Sprint, items []backlog.Item, today time.Time) Burndown {
	b := Burndown{
		SprintID:              sp.ID,
		TotalDays:             TotalDays(sp.StartDate, sp.EndDate),
		CommittedStoryPoints:  sp.CommittedStoryPoints,
		ScopeCreepStoryPoints: sp.ScopeCreepStoryPoints,
		CompletedStoryPoints:  backlog.DonePoints(items),
		TotalCommitment:       sp.TotalCommitment(),
	}
	b.DaysElapsed = clamp(ceilDays(today.Sub(sp.StartDate)), 0, b.TotalDays)
	b.RemainingPoints = b.TotalCommitment - b.CompletedStoryPoints

	if b.TotalCommitment == 0 {
		b.Empty = true
		return b
	}

	committed := float64(sp.CommittedStoryPoints)
	b.Ideal = make([]Point, 0, b.TotalDays+1)
	for d := 0; d <= b.TotalDays; d++ {
		remaining := committed
		if b.TotalDays > 0 {
			remaining = committed * (1 - float64(d)/float64(b.TotalDays))
		}
		b.Ideal = append(b.Ideal, Point{Day: d, Points: remaining})
	}
	b.Actual = []Point{
		{Day: 0, Points: committed},
		{Day: b.DaysElapsed, Points: float64(b.RemainingPoints)},
	}
	return b
}

// TotalDays is the sprint length in whole days, rounded up.
func TotalDays(start, end time.Time) int {
	if !end.After(start) {
		return 0
	}
	return ceilDays(end.Sub(start))
}

// Velocity is the story points completed in a sprint. A nil item set means
// the live items are unavailable and the stored snapshot is used.
func Velocity(sp sprint.Sprint, items []backlog.Item) int {
	if items == nil {
		return sp.CompletedStoryPoints
	}
	return backlog.DonePoints(items)
}

// CompletionRate is completed points as a rounded percentage of the
// commitment. The stored commitment is used when set; otherwise the user
// story total of the live items. A zero denominator yields 0.
//
// The stored figure goes first because completion detaches unfinished
// items, so the live total of a closed sprint only counts what got done.
func CompletionRate(sp sprint.Sprint, items []backlog.Item) int {
	denominator := sp.CommittedStoryPoints
	if denominator == 0 && items != nil {
		denominator = backlog.TotalPoints(items)
	}
	if denominator == 0 {
		return 0
	}
	return int(math.Round(float64(Velocity(sp, items)) / float64(denominator) * 100))
}

func ceilDays(d time.Duration) int {
	return int(math.Ceil(float64(d) / float64(day)))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
