package burndown

import (
	"math"
	"sort"

	"github.com/antigravity-dev/tracker/internal/backlog"
	"github.com/antigravity-dev/tracker/internal/sprint"
)

// SprintStats are the per-sprint figures behind the velocity summary.
type SprintStats struct {
	SprintID             string `json:"sprint_id"`
	Name                 string `json:"name"`
	SprintNumber         int    `json:"sprint_number"`
	CommittedStoryPoints int    `json:"committed_story_points"`
	Velocity             int    `json:"velocity"`
	CompletionRate       int    `json:"completion_rate"`
}

// Summary aggregates completed sprints.
type Summary struct {
	Sprints               []SprintStats `json:"sprints"`
	AverageVelocity       int           `json:"average_velocity"`
	AverageCompletionRate int           `json:"average_completion_rate"`
}

// Summarize computes stats over the completed sprints in sprints. Items are
// looked up by sprint id; a sprint without an entry falls back to its
// stored snapshot.
func Summarize(sprints []sprint.Sprint, itemsBySprint map[string][]backlog.Item) Summary {
	var completed []sprint.Sprint
	for _, sp := range sprints {
		if sp.Status == sprint.StatusCompleted {
			completed = append(completed, sp)
		}
	}
	sort.Slice(completed, func(i, j int) bool {
		return completed[i].SprintNumber < completed[j].SprintNumber
	})

	s := Summary{Sprints: make([]SprintStats, 0, len(completed))}
	if len(completed) == 0 {
		return s
	}

	var velocitySum, rateSum float64
	for _, sp := range completed {
		items := itemsBySprint[sp.ID]
		stat := SprintStats{
			SprintID:             sp.ID,
			Name:                 sp.Name,
			SprintNumber:         sp.SprintNumber,
			CommittedStoryPoints: sp.CommittedStoryPoints,
			Velocity:             Velocity(sp, items),
			CompletionRate:       CompletionRate(sp, items),
		}
		velocitySum += float64(stat.Velocity)
		rateSum += float64(stat.CompletionRate)
		s.Sprints = append(s.Sprints, stat)
	}

	n := float64(len(completed))
	s.AverageVelocity = int(math.Round(velocitySum / n))
	s.AverageCompletionRate = int(math.Round(rateSum / n))
	return s
}
