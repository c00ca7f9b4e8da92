package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/antigravity-dev/tracker/internal/apperr"
	"github.com/antigravity-dev/tracker/internal/sprint"
)

const sprintColumns = `id, project, name, goal, sprint_number, start_date, end_date, status, committed_story_points, completed_story_points, scope_creep_story_points, created_at, updated_at`

const (
	insertSprintSQL = `INSERT INTO sprints (` + sprintColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`
	getSprintSQL    = `SELECT ` + sprintColumns + ` FROM sprints WHERE id = ?;`
	listSprintsSQL  = `SELECT ` + sprintColumns + ` FROM sprints WHERE project = ?`

	deleteSprintSQL      = `DELETE FROM sprints WHERE id = ?;`
	detachSprintItemsSQL = `UPDATE items SET sprint_id = NULL, updated_at = ? WHERE sprint_id = ?;`
	detachSprintRisksSQL = `UPDATE risks SET sprint_id = NULL, updated_at = ? WHERE sprint_id = ?;`
)

// CreateSprint inserts a sprint. A second active sprint in the same project
// is rejected with a conflict.
func (s *Store) CreateSprint(ctx context.Context, sp sprint.Sprint) (sprint.Sprint, error) {
	if err := sp.Validate(); err != nil {
		return sprint.Sprint{}, err
	}
	if sp.ID == "" {
		sp.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	sp.CreatedAt, sp.UpdatedAt = now, now
	sp.StartDate, sp.EndDate = sp.StartDate.UTC(), sp.EndDate.UTC()

	_, err := s.db.ExecContext(sanitizeContext(ctx), insertSprintSQL,
		sp.ID,
		sp.Project,
		sp.Name,
		sp.Goal,
		sp.SprintNumber,
		sp.StartDate,
		sp.EndDate,
		string(sp.Status),
		sp.CommittedStoryPoints,
		sp.CompletedStoryPoints,
		sp.ScopeCreepStoryPoints,
		sp.CreatedAt,
		sp.UpdatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return sprint.Sprint{}, apperr.Conflict("project %q already has an active sprint", sp.Project)
		}
		return sprint.Sprint{}, fmt.Errorf("store: create sprint: %w", err)
	}
	return sp, nil
}

// GetSprint returns a single sprint.
func (s *Store) GetSprint(ctx context.Context, id string) (sprint.Sprint, error) {
	id = strings.TrimSpace(id)
	sp, err := scanSprint(s.db.QueryRowContext(sanitizeContext(ctx), getSprintSQL, id))
	if err != nil {
		return sprint.Sprint{}, notFoundOr(err, "sprint", id)
	}
	return sp, nil
}

// ListSprints returns a project's sprints ordered by number, optionally
// restricted to the given statuses.
func (s *Store) ListSprints(ctx context.Context, project string, statuses ...sprint.Status) ([]sprint.Sprint, error) {
	args := []any{strings.TrimSpace(project)}
	query := listSprintsSQL
	if filters := normalizeSprintStatuses(statuses); len(filters) > 0 {
		query += fmt.Sprintf(" AND status IN (%s)", placeholders(len(filters)))
		for _, st := range filters {
			args = append(args, st)
		}
	}
	query += " ORDER BY sprint_number ASC, created_at ASC;"

	rows, err := s.db.QueryContext(sanitizeContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list sprints: %w", err)
	}
	defer rows.Close()

	sprints := []sprint.Sprint{}
	for rows.Next() {
		sp, err := scanSprint(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan sprint: %w", err)
		}
		sprints = append(sprints, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list sprints: %w", err)
	}
	return sprints, nil
}

// UpdateSprint applies a partial patch to a sprint.
func (s *Store) UpdateSprint(ctx context.Context, id string, fields map[string]any) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return apperr.Validation("sprint id is required")
	}
	if len(fields) == 0 {
		return nil
	}
	assignments, err := sprintAssignments(fields)
	if err != nil {
		return err
	}
	return execUpdate(ctx, s.db, "sprints", "sprint", id, assignments)
}

// DeleteSprint removes a sprint and clears any remaining references to it.
func (s *Store) DeleteSprint(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		ctx := sanitizeContext(ctx)
		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx, detachSprintItemsSQL, now, id); err != nil {
			return fmt.Errorf("store: detach items of sprint %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, detachSprintRisksSQL, now, id); err != nil {
			return fmt.Errorf("store: detach risks of sprint %s: %w", id, err)
		}
		res, err := tx.ExecContext(ctx, deleteSprintSQL, id)
		if err != nil {
			return fmt.Errorf("store: delete sprint: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.NotFound("sprint", id)
		}
		return nil
	})
}

func sprintAssignments(fields map[string]any) ([]updateField, error) {
	assignments := make([]updateField, 0, len(fields))
	for rawKey, rawValue := range fields {
		key := strings.TrimSpace(strings.ToLower(rawKey))
		switch key {
		case sprint.FieldName:
			name := strings.TrimSpace(coerceString(rawValue))
			if name == "" {
				return nil, apperr.Validation("sprint name is required")
			}
			assignments = append(assignments, updateField{column: key, value: name})
		case sprint.FieldGoal:
			assignments = append(assignments, updateField{column: key, value: coerceString(rawValue)})
		case sprint.FieldStatus:
			st := sprint.Status(strings.ToLower(coerceString(rawValue)))
			if !sprint.ValidStatus(st) {
				return nil, apperr.Validation("unknown sprint status %q", st)
			}
			assignments = append(assignments, updateField{column: key, value: string(st)})
		case sprint.FieldStartDate, sprint.FieldEndDate:
			t, err := coerceTime(rawValue)
			if err != nil {
				return nil, apperr.Validation("%s: %v", key, err)
			}
			assignments = append(assignments, updateField{column: key, value: t})
		case sprint.FieldCommitted, sprint.FieldCompleted, sprint.FieldScopeCreep, sprint.FieldNumber:
			n, err := coerceInt(rawValue)
			if err != nil {
				return nil, apperr.Validation("%s: %v", key, err)
			}
			if n < 0 {
				return nil, apperr.Validation("%s cannot be negative", key)
			}
			assignments = append(assignments, updateField{column: key, value: n})
		default:
			return nil, apperr.Validation("sprint field %q is not updatable", rawKey)
		}
	}
	sort.Slice(assignments, func(i, j int) bool {
		return assignments[i].column < assignments[j].column
	})
	return assignments, nil
}

func normalizeSprintStatuses(raw []sprint.Status) []string {
	seen := make(map[string]struct{}, len(raw))
	for _, st := range raw {
		normalized := strings.TrimSpace(strings.ToLower(string(st)))
		if normalized == "" {
			continue
		}
		seen[normalized] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for st := range seen {
		out = append(out, st)
	}
	sort.Strings(out)
	return out
}

func scanSprint(scanner rowScanner) (sprint.Sprint, error) {
	var (
		sp     sprint.Sprint
		status string
	)
	if err := scanner.Scan(
		&sp.ID,
		&sp.Project,
		&sp.Name,
		&sp.Goal,
		&sp.SprintNumber,
		&sp.StartDate,
		&sp.EndDate,
		&status,
		&sp.CommittedStoryPoints,
		&sp.CompletedStoryPoints,
		&sp.ScopeCreepStoryPoints,
		&sp.CreatedAt,
		&sp.UpdatedAt,
	); err != nil {
		return sprint.Sprint{}, err
	}
	sp.Status = sprint.Status(status)
	return sp, nil
}
