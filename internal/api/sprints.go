package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/antigravity-dev/tracker/internal/apperr"
	"github.com/antigravity-dev/tracker/internal/backlog"
	"github.com/antigravity-dev/tracker/internal/burndown"
	"github.com/antigravity-dev/tracker/internal/sprint"
)

// sprintRequest creates a sprint. Dates accept RFC 3339 or YYYY-MM-DD; a
// missing start date means now, a missing end date the configured default
// length. Status "planned" creates the sprint without starting it.
type sprintRequest struct {
	Name            string   `json:"name"`
	Goal            string   `json:"goal"`
	StartDate       string   `json:"start_date"`
	EndDate         string   `json:"end_date"`
	Status          string   `json:"status"`
	ItemIDs         []string `json:"item_ids"`
	CommittedPoints *int     `json:"committed_points,omitempty"`
}

type itemIDsRequest struct {
	ItemIDs         []string `json:"item_ids"`
	CommittedPoints *int     `json:"committed_points,omitempty"`
}

func parseDate(field, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, apperr.Validation("%s %q is not a date", field, value)
}

// GET /projects/{project}/sprints?status=active&status=planned
func (s *Server) handleListSprints(w http.ResponseWriter, r *http.Request) {
	var statuses []sprint.Status
	for _, st := range r.URL.Query()["status"] {
		statuses = append(statuses, sprint.Status(st))
	}
	sprints, err := s.store.ListSprints(r.Context(), projectParam(r), statuses...)
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	if sprints == nil {
		sprints = []sprint.Sprint{}
	}
	writeJSON(w, sprints)
}

// GET /projects/{project}/sprints/active
func (s *Server) handleActiveSprint(w http.ResponseWriter, r *http.Request) {
	sp, ok, err := s.sprints.ActiveSprint(r.Context(), projectParam(r))
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no active sprint")
		return
	}
	writeJSON(w, sp)
}

// POST /projects/{project}/sprints
func (s *Server) handleCreateSprint(w http.ResponseWriter, r *http.Request) {
	var req sprintRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err, nil)
		return
	}
	start, err := parseDate("start_date", req.StartDate)
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	end, err := parseDate("end_date", req.EndDate)
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	if start.IsZero() {
		start = s.now().UTC()
	}

	ctx := r.Context()
	project := projectParam(r)
	var sp sprint.Sprint
	switch sprint.Status(strings.ToLower(strings.TrimSpace(req.Status))) {
	case sprint.StatusPlanned:
		if len(req.ItemIDs) > 0 {
			s.fail(w, r, apperr.Validation("a planned sprint takes items when it is activated"), nil)
			return
		}
		sp, err = s.sprints.PlanSprint(ctx, sprint.PlanRequest{
			Project:   project,
			Name:      req.Name,
			Goal:      req.Goal,
			StartDate: start,
			EndDate:   end,
		})
	case "", sprint.StatusActive:
		sp, err = s.sprints.StartSprint(ctx, sprint.StartRequest{
			Project:         project,
			Name:            req.Name,
			Goal:            req.Goal,
			StartDate:       start,
			EndDate:         end,
			ItemIDs:         req.ItemIDs,
			CommittedPoints: req.CommittedPoints,
		})
	default:
		err = apperr.Validation("sprints are created planned or active, not %q", req.Status)
	}
	if err != nil {
		s.fail(w, r, err, sp)
		return
	}
	writeJSONStatus(w, http.StatusCreated, sp)
}

// GET /sprints/{id}
func (s *Server) handleGetSprint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sp, err := s.store.GetSprint(ctx, idParam(r))
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	items, err := s.store.ListSprintItems(ctx, sp.ID)
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	if items == nil {
		items = []backlog.Item{}
	}
	writeJSON(w, map[string]any{"sprint": sp, "items": items})
}

// POST /sprints/{id}/activate
func (s *Server) handleActivateSprint(w http.ResponseWriter, r *http.Request) {
	var req itemIDsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err, nil)
		return
	}
	sp, err := s.sprints.ActivateSprint(r.Context(), idParam(r), req.ItemIDs, req.CommittedPoints)
	if err != nil {
		s.fail(w, r, err, sp)
		return
	}
	writeJSON(w, sp)
}

// POST /sprints/{id}/items
func (s *Server) handleAddSprintItems(w http.ResponseWriter, r *http.Request) {
	var req itemIDsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err, nil)
		return
	}
	if len(req.ItemIDs) == 0 {
		s.fail(w, r, apperr.Validation("item_ids is required"), nil)
		return
	}
	sp, err := s.sprints.AddItemsToSprint(r.Context(), idParam(r), req.ItemIDs)
	if err != nil {
		s.fail(w, r, err, sp)
		return
	}
	writeJSON(w, sp)
}

// DELETE /sprints/{id}/items
func (s *Server) handleRemoveSprintItems(w http.ResponseWriter, r *http.Request) {
	var req itemIDsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err, nil)
		return
	}
	if err := s.sprints.RemoveItemsFromSprint(r.Context(), idParam(r), req.ItemIDs); err != nil {
		s.fail(w, r, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /sprints/{id}/complete
func (s *Server) handleCompleteSprint(w http.ResponseWriter, r *http.Request) {
	sp, err := s.sprints.CompleteSprint(r.Context(), idParam(r))
	if err != nil {
		s.fail(w, r, err, sp)
		return
	}
	writeJSON(w, sp)
}

// POST /sprints/{id}/cancel
func (s *Server) handleCancelSprint(w http.ResponseWriter, r *http.Request) {
	sp, err := s.sprints.CancelSprint(r.Context(), idParam(r))
	if err != nil {
		s.fail(w, r, err, sp)
		return
	}
	writeJSON(w, sp)
}

// DELETE /sprints/{id}
func (s *Server) handleDeleteSprint(w http.ResponseWriter, r *http.Request) {
	id := idParam(r)
	if err := s.sprints.DeleteSprint(r.Context(), id); err != nil {
		s.fail(w, r, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /sprints/{id}/burndown
func (s *Server) handleBurndown(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sp, err := s.store.GetSprint(ctx, idParam(r))
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	items, err := s.store.ListSprintItems(ctx, sp.ID)
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	writeJSON(w, burndown.Compute(sp, items, s.now()))
}

// GET /projects/{project}/velocity
func (s *Server) handleVelocity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	completed, err := s.store.ListSprints(ctx, projectParam(r), sprint.StatusCompleted)
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	itemsBySprint := make(map[string][]backlog.Item, len(completed))
	for _, sp := range completed {
		items, err := s.store.ListSprintItems(ctx, sp.ID)
		if err != nil {
			s.fail(w, r, err, nil)
			return
		}
		itemsBySprint[sp.ID] = items
	}
	writeJSON(w, burndown.Summarize(completed, itemsBySprint))
}
