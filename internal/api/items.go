package api

import (
	"net/http"
	"strings"

	"github.com/antigravity-dev/tracker/internal/apperr"
	"github.com/antigravity-dev/tracker/internal/backlog"
)

// GET /projects/{project}/backlog
//
// ?scope=backlog limits the forest to items not attached to a sprint.
func (s *Server) handleBacklog(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.ListItems(r.Context(), projectParam(r))
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	if r.URL.Query().Get("scope") == "backlog" {
		filtered := items[:0:0]
		for _, it := range items {
			if it.InBacklog() {
				filtered = append(filtered, it)
			}
		}
		items = filtered
	}

	forest := backlog.BuildForest(items)
	writeJSON(w, map[string]any{
		"nodes":        forest.Flatten(),
		"roots":        len(forest.Roots),
		"total_points": backlog.TotalPoints(items),
	})
}

// POST /projects/{project}/items
func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var it backlog.Item
	if err := decodeJSON(r, &it); err != nil {
		s.fail(w, r, err, nil)
		return
	}
	project := projectParam(r)
	it.ID = ""
	it.Project = project
	it.SprintID = ""
	if strings.TrimSpace(it.AssignedTo) == "" {
		it.AssignedTo = s.cfg.Get().Projects[project].DefaultAssignee
	}

	if strings.TrimSpace(it.ParentID) != "" {
		items, err := s.store.ListItems(r.Context(), project)
		if err != nil {
			s.fail(w, r, err, nil)
			return
		}
		it.Normalize()
		if err := backlog.ValidateParent(it, items); err != nil {
			s.fail(w, r, err, nil)
			return
		}
	}

	created, err := s.store.CreateItem(r.Context(), it)
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	s.logger.Info("item created", "project", project, "item_id", created.ID, "item_type", string(created.Type))
	writeJSONStatus(w, http.StatusCreated, created)
}

// GET /items/{id}
func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	it, err := s.store.GetItem(r.Context(), idParam(r))
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	writeJSON(w, it)
}

// PATCH /items/{id}
//
// A type change keeps the current parent when it still fits the new type
// and clears it otherwise. An explicit parent_id in the same patch must be
// valid for the new type. Children that no longer fit under the new type
// become roots in the same transaction.
func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	var patch map[string]any
	if err := decodeJSON(r, &patch); err != nil {
		s.fail(w, r, err, nil)
		return
	}
	if len(patch) == 0 {
		s.fail(w, r, apperr.Validation("no fields to update"), nil)
		return
	}
	if _, ok := patch[backlog.FieldSprintID]; ok {
		s.fail(w, r, apperr.Validation("sprint membership changes go through the sprint endpoints"), nil)
		return
	}

	ctx := r.Context()
	current, err := s.store.GetItem(ctx, idParam(r))
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}

	var detached []backlog.Update
	rawType, typeChange := patch[backlog.FieldType]
	rawParent, parentChange := patch[backlog.FieldParentID]
	if typeChange || parentChange {
		items, err := s.store.ListItems(ctx, current.Project)
		if err != nil {
			s.fail(w, r, err, nil)
			return
		}
		candidate := current
		if parentChange {
			parentID, ok := optionalString(rawParent)
			if !ok {
				s.fail(w, r, apperr.Validation("parent_id must be a string or null"), nil)
				return
			}
			candidate.ParentID = parentID
			patch[backlog.FieldParentID] = parentID
		}
		if typeChange {
			typ, ok := rawType.(string)
			if !ok {
				s.fail(w, r, apperr.Validation("item_type must be a string"), nil)
				return
			}
			newType := backlog.ItemType(strings.ToLower(strings.TrimSpace(typ)))
			if parentChange {
				if !backlog.ValidType(newType) {
					s.fail(w, r, apperr.Validation("unknown item type %q", typ), nil)
					return
				}
				candidate.Type = newType
			} else {
				changed, fields, err := backlog.ChangeType(candidate, newType, items)
				if err != nil {
					s.fail(w, r, err, nil)
					return
				}
				candidate = changed
				for k, v := range fields {
					patch[k] = v
				}
			}
			patch[backlog.FieldType] = string(newType)
		}
		if err := backlog.ValidateParent(candidate, items); err != nil {
			s.fail(w, r, err, nil)
			return
		}
		if typeChange {
			detached = backlog.DetachInvalidChildren(candidate, items)
		}
	}

	if len(detached) > 0 {
		updates := append([]backlog.Update{{ID: current.ID, Fields: patch}}, detached...)
		if err := s.store.ApplyItemUpdates(ctx, updates); err != nil {
			s.fail(w, r, err, nil)
			return
		}
		s.logger.Info("children detached after type change", "item_id", current.ID, "count", len(detached))
	} else if err := s.store.UpdateItem(ctx, current.ID, patch); err != nil {
		s.fail(w, r, err, nil)
		return
	}
	updated, err := s.store.GetItem(ctx, current.ID)
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	writeJSON(w, updated)
}

// DELETE /items/{id}
func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	id := idParam(r)
	if err := s.store.DeleteItem(r.Context(), id); err != nil {
		s.fail(w, r, err, nil)
		return
	}
	s.logger.Info("item deleted", "item_id", id)
	w.WriteHeader(http.StatusNoContent)
}

type reorderRequest struct {
	From int `json:"from"`
	To   int `json:"to"`
	// ItemIDs is the filtered view the move happened in, in display order.
	// Empty means the whole project backlog as GET backlog shows it.
	ItemIDs []string `json:"item_ids,omitempty"`
}

// POST /projects/{project}/backlog/reorder
func (s *Server) handleReorder(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err, nil)
		return
	}
	ctx := r.Context()
	items, err := s.store.ListItems(ctx, projectParam(r))
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}

	var before, after []backlog.Item
	if len(req.ItemIDs) == 0 {
		before = backlog.DisplayOrder(items)
		after, err = backlog.Reorder(before, req.From, req.To)
	} else {
		before, err = viewItems(items, req.ItemIDs)
		if err == nil {
			after, err = backlog.ReorderVisible(before, req.From, req.To)
		}
	}
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}

	updates := backlog.OrderChanges(before, after)
	resp := map[string]any{"items": after, "changed": len(updates)}
	if err := s.updater.ApplyItemUpdates(ctx, updates); err != nil {
		s.fail(w, r, err, resp)
		return
	}
	writeJSON(w, resp)
}

// viewItems resolves ids to items in the given order. Every id must belong
// to the project and appear once.
func viewItems(items []backlog.Item, ids []string) ([]backlog.Item, error) {
	byID := backlog.Index(items)
	seen := make(map[string]struct{}, len(ids))
	out := make([]backlog.Item, 0, len(ids))
	for _, id := range ids {
		it, ok := byID[id]
		if !ok {
			return nil, apperr.NotFound("item", id)
		}
		if _, dup := seen[id]; dup {
			return nil, apperr.Validation("item %q listed twice", id)
		}
		seen[id] = struct{}{}
		out = append(out, it)
	}
	return out, nil
}

type toggleRequest struct {
	ItemID   string   `json:"item_id"`
	Selected []string `json:"selected"`
}

// POST /projects/{project}/selection/toggle
//
// Selection lives client side; the request carries the current selection
// and the response the next one.
func (s *Server) handleToggleSelection(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err, nil)
		return
	}
	items, err := s.store.ListItems(r.Context(), projectParam(r))
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	if _, ok := backlog.Index(items)[req.ItemID]; !ok {
		s.fail(w, r, apperr.NotFound("item", req.ItemID), nil)
		return
	}

	next := backlog.ToggleSelection(req.ItemID, backlog.NewSelection(req.Selected...), items)
	writeJSON(w, map[string]any{
		"selected":     next.IDs(),
		"story_points": backlog.SelectedStoryPoints(next, items),
	})
}

func optionalString(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", true
	case string:
		return strings.TrimSpace(t), true
	default:
		return "", false
	}
}
