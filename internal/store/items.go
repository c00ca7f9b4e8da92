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
	"github.com/antigravity-dev/tracker/internal/backlog"
)

const itemColumns = `id, project, title, description, acceptance_criteria, item_type, priority, story_points, parent_id, status, sprint_id, backlog_order, assigned_to, created_at, updated_at`

const (
	insertItemSQL = `INSERT INTO items (` + itemColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`

	getItemSQL = `SELECT ` + itemColumns + ` FROM items WHERE id = ?;`

	listItemsSQL = `SELECT ` + itemColumns + `
		FROM items
		WHERE project = ?
		ORDER BY backlog_order ASC, created_at ASC, id ASC;`

	listSprintItemsSQL = `SELECT ` + itemColumns + `
		FROM items
		WHERE sprint_id = ?
		ORDER BY backlog_order ASC, id ASC;`

	nextBacklogOrderSQL = `SELECT COALESCE(MAX(backlog_order) + 1, 0) FROM items WHERE project = ?;`

	deleteItemSQL     = `DELETE FROM items WHERE id = ?;`
	orphanChildrenSQL = `UPDATE items SET parent_id = NULL, updated_at = ? WHERE parent_id = ?;`
)

var updatableItemColumns = map[string]struct{}{
	backlog.FieldTitle:              {},
	backlog.FieldDescription:        {},
	backlog.FieldAcceptanceCriteria: {},
	backlog.FieldType:               {},
	backlog.FieldPriority:           {},
	backlog.FieldStoryPoints:        {},
	backlog.FieldParentID:           {},
	backlog.FieldStatus:             {},
	backlog.FieldSprintID:           {},
	backlog.FieldBacklogOrder:       {},
	backlog.FieldAssignedTo:         {},
}

// CreateItem inserts a new item at the end of its project's backlog and
// returns it with id, order and timestamps filled in.
func (s *Store) CreateItem(ctx context.Context, it backlog.Item) (backlog.Item, error) {
	it.Normalize()
	it.Project = strings.TrimSpace(it.Project)
	if it.Project == "" {
		return backlog.Item{}, apperr.Validation("item project is required")
	}
	if err := it.Validate(); err != nil {
		return backlog.Item{}, err
	}
	if it.ID == "" {
		it.ID = uuid.NewString()
	}

	ctx = sanitizeContext(ctx)
	if err := s.db.QueryRowContext(ctx, nextBacklogOrderSQL, it.Project).Scan(&it.BacklogOrder); err != nil {
		return backlog.Item{}, fmt.Errorf("store: next backlog order: %w", err)
	}
	now := time.Now().UTC()
	it.CreatedAt, it.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx, insertItemSQL,
		it.ID,
		it.Project,
		it.Title,
		it.Description,
		it.AcceptanceCriteria,
		string(it.Type),
		it.Priority,
		it.StoryPoints,
		nullIfEmpty(it.ParentID),
		string(it.Status),
		nullIfEmpty(it.SprintID),
		it.BacklogOrder,
		it.AssignedTo,
		it.CreatedAt,
		it.UpdatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return backlog.Item{}, apperr.Conflict("item %q already exists", it.ID)
		}
		return backlog.Item{}, fmt.Errorf("store: create item: %w", err)
	}
	return it, nil
}

// GetItem returns a single item.
func (s *Store) GetItem(ctx context.Context, id string) (backlog.Item, error) {
	id = strings.TrimSpace(id)
	it, err := scanItem(s.db.QueryRowContext(sanitizeContext(ctx), getItemSQL, id))
	if err != nil {
		return backlog.Item{}, notFoundOr(err, "item", id)
	}
	return it, nil
}

// ListItems returns every item of a project in backlog order.
func (s *Store) ListItems(ctx context.Context, project string) ([]backlog.Item, error) {
	return s.queryItems(ctx, listItemsSQL, strings.TrimSpace(project))
}

// ListSprintItems returns the items attached to a sprint.
func (s *Store) ListSprintItems(ctx context.Context, sprintID string) ([]backlog.Item, error) {
	return s.queryItems(ctx, listSprintItemsSQL, strings.TrimSpace(sprintID))
}

func (s *Store) queryItems(ctx context.Context, query string, args ...any) ([]backlog.Item, error) {
	rows, err := s.db.QueryContext(sanitizeContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list items: %w", err)
	}
	defer rows.Close()

	items := []backlog.Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list items: %w", err)
	}
	return items, nil
}

// UpdateItem applies a partial patch: only the supplied fields change.
func (s *Store) UpdateItem(ctx context.Context, id string, fields map[string]any) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return apperr.Validation("item id is required")
	}
	if len(fields) == 0 {
		return nil
	}
	assignments, err := itemAssignments(fields)
	if err != nil {
		return err
	}
	return execUpdate(ctx, s.db, "items", "item", id, assignments)
}

// ApplyItemUpdates applies every patch in a single transaction. Either all
// of them are applied or none.
func (s *Store) ApplyItemUpdates(ctx context.Context, updates []backlog.Update) error {
	if len(updates) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, u := range updates {
			if len(u.Fields) == 0 {
				continue
			}
			assignments, err := itemAssignments(u.Fields)
			if err != nil {
				return fmt.Errorf("item %q: %w", u.ID, err)
			}
			if err := execUpdate(ctx, tx, "items", "item", strings.TrimSpace(u.ID), assignments); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteItem removes an item. Its children become roots.
func (s *Store) DeleteItem(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(sanitizeContext(ctx), deleteItemSQL, id)
		if err != nil {
			return fmt.Errorf("store: delete item: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.NotFound("item", id)
		}
		if _, err := tx.ExecContext(sanitizeContext(ctx), orphanChildrenSQL, time.Now().UTC(), id); err != nil {
			return fmt.Errorf("store: detach children of %s: %w", id, err)
		}
		return nil
	})
}

// itemAssignments validates and coerces a patch into SET clauses.
func itemAssignments(fields map[string]any) ([]updateField, error) {
	assignments := make([]updateField, 0, len(fields))
	for rawKey, rawValue := range fields {
		key := strings.TrimSpace(strings.ToLower(rawKey))
		if _, ok := updatableItemColumns[key]; !ok {
			return nil, apperr.Validation("item field %q is not updatable", rawKey)
		}

		switch key {
		case backlog.FieldTitle:
			title := strings.TrimSpace(coerceString(rawValue))
			if title == "" {
				return nil, apperr.Validation("item title is required")
			}
			assignments = append(assignments, updateField{column: key, value: title})
		case backlog.FieldDescription, backlog.FieldAcceptanceCriteria, backlog.FieldAssignedTo:
			assignments = append(assignments, updateField{column: key, value: coerceString(rawValue)})
		case backlog.FieldType:
			t := backlog.ItemType(strings.ToLower(coerceString(rawValue)))
			if !backlog.ValidType(t) {
				return nil, apperr.Validation("unknown item type %q", t)
			}
			assignments = append(assignments, updateField{column: key, value: string(t)})
		case backlog.FieldStatus:
			st := backlog.Status(strings.ToLower(coerceString(rawValue)))
			if !backlog.ValidStatus(st) {
				return nil, apperr.Validation("unknown item status %q", st)
			}
			assignments = append(assignments, updateField{column: key, value: string(st)})
		case backlog.FieldPriority:
			p, err := coerceInt(rawValue)
			if err != nil {
				return nil, apperr.Validation("priority: %v", err)
			}
			if p < backlog.PriorityLow || p > backlog.PriorityCritical {
				return nil, apperr.Validation("priority %d out of range 1-4", p)
			}
			assignments = append(assignments, updateField{column: key, value: p})
		case backlog.FieldStoryPoints:
			points, err := coerceInt(rawValue)
			if err != nil {
				return nil, apperr.Validation("story points: %v", err)
			}
			if !backlog.ValidStoryPoints(points) {
				return nil, apperr.Validation("story points %d not in scale %v", points, backlog.StoryPointScale)
			}
			assignments = append(assignments, updateField{column: key, value: points})
		case backlog.FieldBacklogOrder:
			order, err := coerceInt(rawValue)
			if err != nil {
				return nil, apperr.Validation("backlog order: %v", err)
			}
			assignments = append(assignments, updateField{column: key, value: order})
		case backlog.FieldParentID, backlog.FieldSprintID:
			assignments = append(assignments, updateField{column: key, value: nullIfEmpty(coerceString(rawValue))})
		}
	}

	sort.Slice(assignments, func(i, j int) bool {
		return assignments[i].column < assignments[j].column
	})
	return assignments, nil
}

func scanItem(scanner rowScanner) (backlog.Item, error) {
	var (
		it       backlog.Item
		itemType string
		status   string
		parentID sql.NullString
		sprintID sql.NullString
	)
	if err := scanner.Scan(
		&it.ID,
		&it.Project,
		&it.Title,
		&it.Description,
		&it.AcceptanceCriteria,
		&itemType,
		&it.Priority,
		&it.StoryPoints,
		&parentID,
		&status,
		&sprintID,
		&it.BacklogOrder,
		&it.AssignedTo,
		&it.CreatedAt,
		&it.UpdatedAt,
	); err != nil {
		return backlog.Item{}, err
	}
	it.Type = backlog.ItemType(itemType)
	it.Status = backlog.Status(status)
	it.ParentID = parentID.String
	it.SprintID = sprintID.String
	return it, nil
}
