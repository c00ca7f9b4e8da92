package api

import (
	"net/http"

	"github.com/antigravity-dev/tracker/internal/apperr"
	"github.com/antigravity-dev/tracker/internal/risk"
)

type riskView struct {
	risk.Risk
	Score    float64       `json:"score"`
	Severity risk.Severity `json:"severity"`
}

func viewRisk(rk risk.Risk) riskView {
	return riskView{Risk: rk, Score: rk.Score(), Severity: rk.Severity()}
}

// GET /projects/{project}/risks
//
// Risks come back ranked: highest score first, open before closed.
func (s *Server) handleListRisks(w http.ResponseWriter, r *http.Request) {
	risks, err := s.store.ListRisks(r.Context(), projectParam(r))
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	ranked := risk.Rank(risks)
	out := make([]riskView, 0, len(ranked))
	for _, rk := range ranked {
		out = append(out, viewRisk(rk))
	}
	writeJSON(w, out)
}

// POST /projects/{project}/risks
func (s *Server) handleCreateRisk(w http.ResponseWriter, r *http.Request) {
	var rk risk.Risk
	if err := decodeJSON(r, &rk); err != nil {
		s.fail(w, r, err, nil)
		return
	}
	rk.ID = ""
	rk.Project = projectParam(r)
	if rk.SprintID != "" {
		sp, err := s.store.GetSprint(r.Context(), rk.SprintID)
		if err != nil {
			s.fail(w, r, err, nil)
			return
		}
		if sp.Project != rk.Project {
			s.fail(w, r, apperr.Validation("sprint %q belongs to another project", rk.SprintID), nil)
			return
		}
	}

	created, err := s.store.CreateRisk(r.Context(), rk)
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	s.logger.Info("risk created", "project", created.Project, "risk_id", created.ID, "score", created.Score())
	writeJSONStatus(w, http.StatusCreated, viewRisk(created))
}

// GET /risks/{id}
func (s *Server) handleGetRisk(w http.ResponseWriter, r *http.Request) {
	rk, err := s.store.GetRisk(r.Context(), idParam(r))
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	writeJSON(w, viewRisk(rk))
}

// PATCH /risks/{id}
func (s *Server) handleUpdateRisk(w http.ResponseWriter, r *http.Request) {
	var patch map[string]any
	if err := decodeJSON(r, &patch); err != nil {
		s.fail(w, r, err, nil)
		return
	}
	if len(patch) == 0 {
		s.fail(w, r, apperr.Validation("no fields to update"), nil)
		return
	}
	id := idParam(r)
	if err := s.store.UpdateRisk(r.Context(), id, patch); err != nil {
		s.fail(w, r, err, nil)
		return
	}
	rk, err := s.store.GetRisk(r.Context(), id)
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	writeJSON(w, viewRisk(rk))
}

// DELETE /risks/{id}
func (s *Server) handleDeleteRisk(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteRisk(r.Context(), idParam(r)); err != nil {
		s.fail(w, r, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
