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
	"github.com/antigravity-dev/tracker/internal/risk"
)

const riskColumns = `id, project, sprint_id, title, description, category, probability, impact, response_strategy, response_plan, mitigation_plan, status, owner, created_at, updated_at`

const (
	insertRiskSQL = `INSERT INTO risks (` + riskColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`
	getRiskSQL    = `SELECT ` + riskColumns + ` FROM risks WHERE id = ?;`
	listRisksSQL  = `SELECT ` + riskColumns + ` FROM risks WHERE project = ? ORDER BY created_at ASC, id ASC;`
	deleteRiskSQL = `DELETE FROM risks WHERE id = ?;`
)

// CreateRisk inserts a risk. Legacy status names are mapped onto the
// canonical set before validation.
func (s *Store) CreateRisk(ctx context.Context, r risk.Risk) (risk.Risk, error) {
	r.Normalize()
	if err := r.Validate(); err != nil {
		return risk.Risk{}, err
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now

	_, err := s.db.ExecContext(sanitizeContext(ctx), insertRiskSQL,
		r.ID,
		r.Project,
		nullIfEmpty(r.SprintID),
		r.Title,
		r.Description,
		string(r.Category),
		r.Probability,
		string(r.Impact),
		string(r.ResponseStrategy),
		r.ResponsePlan,
		r.MitigationPlan,
		string(r.Status),
		r.Owner,
		r.CreatedAt,
		r.UpdatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return risk.Risk{}, apperr.Conflict("risk %q already exists", r.ID)
		}
		return risk.Risk{}, fmt.Errorf("store: create risk: %w", err)
	}
	return r, nil
}

// GetRisk returns a single risk.
func (s *Store) GetRisk(ctx context.Context, id string) (risk.Risk, error) {
	id = strings.TrimSpace(id)
	r, err := scanRisk(s.db.QueryRowContext(sanitizeContext(ctx), getRiskSQL, id))
	if err != nil {
		return risk.Risk{}, notFoundOr(err, "risk", id)
	}
	return r, nil
}

// ListRisks returns a project's risks in creation order.
func (s *Store) ListRisks(ctx context.Context, project string) ([]risk.Risk, error) {
	rows, err := s.db.QueryContext(sanitizeContext(ctx), listRisksSQL, strings.TrimSpace(project))
	if err != nil {
		return nil, fmt.Errorf("store: list risks: %w", err)
	}
	defer rows.Close()

	risks := []risk.Risk{}
	for rows.Next() {
		r, err := scanRisk(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan risk: %w", err)
		}
		risks = append(risks, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list risks: %w", err)
	}
	return risks, nil
}

// UpdateRisk applies a partial patch. Status changes are free-form within
// the canonical vocabulary.
func (s *Store) UpdateRisk(ctx context.Context, id string, fields map[string]any) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return apperr.Validation("risk id is required")
	}
	if len(fields) == 0 {
		return nil
	}
	assignments, err := riskAssignments(fields)
	if err != nil {
		return err
	}
	return execUpdate(ctx, s.db, "risks", "risk", id, assignments)
}

// DeleteRisk removes a risk.
func (s *Store) DeleteRisk(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	res, err := s.db.ExecContext(sanitizeContext(ctx), deleteRiskSQL, id)
	if err != nil {
		return fmt.Errorf("store: delete risk: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("risk", id)
	}
	return nil
}

func riskAssignments(fields map[string]any) ([]updateField, error) {
	assignments := make([]updateField, 0, len(fields))
	for rawKey, rawValue := range fields {
		key := strings.TrimSpace(strings.ToLower(rawKey))
		switch key {
		case risk.FieldTitle:
			title := strings.TrimSpace(coerceString(rawValue))
			if title == "" {
				return nil, apperr.Validation("risk title is required")
			}
			assignments = append(assignments, updateField{column: key, value: title})
		case risk.FieldDescription, risk.FieldResponsePlan, risk.FieldMitigationPlan, risk.FieldOwner:
			assignments = append(assignments, updateField{column: key, value: coerceString(rawValue)})
		case risk.FieldSprintID:
			assignments = append(assignments, updateField{column: key, value: nullIfEmpty(coerceString(rawValue))})
		case risk.FieldCategory:
			c := risk.Category(strings.ToLower(coerceString(rawValue)))
			if !risk.ValidCategory(c) {
				return nil, apperr.Validation("unknown risk category %q", c)
			}
			assignments = append(assignments, updateField{column: key, value: string(c)})
		case risk.FieldImpact:
			impact := risk.Impact(strings.ToLower(coerceString(rawValue)))
			if !risk.ValidImpact(impact) {
				return nil, apperr.Validation("unknown impact %q", impact)
			}
			assignments = append(assignments, updateField{column: key, value: string(impact)})
		case risk.FieldResponseStrategy:
			st := risk.Strategy(strings.ToLower(coerceString(rawValue)))
			if !risk.ValidStrategy(st) {
				return nil, apperr.Validation("unknown response strategy %q", st)
			}
			assignments = append(assignments, updateField{column: key, value: string(st)})
		case risk.FieldStatus:
			st := risk.NormalizeStatus(risk.Status(coerceString(rawValue)))
			if !risk.ValidStatus(st) {
				return nil, apperr.Validation("unknown risk status %q", st)
			}
			assignments = append(assignments, updateField{column: key, value: string(st)})
		case risk.FieldProbability:
			p, err := coerceInt(rawValue)
			if err != nil {
				return nil, apperr.Validation("probability: %v", err)
			}
			if p < 0 || p > 100 {
				return nil, apperr.Validation("probability %d out of range 0-100", p)
			}
			assignments = append(assignments, updateField{column: key, value: p})
		default:
			return nil, apperr.Validation("risk field %q is not updatable", rawKey)
		}
	}
	sort.Slice(assignments, func(i, j int) bool {
		return assignments[i].column < assignments[j].column
	})
	return assignments, nil
}

func scanRisk(scanner rowScanner) (risk.Risk, error) {
	var (
		r                                  risk.Risk
		sprintID                           sql.NullString
		category, impact, strategy, status string
	)
	if err := scanner.Scan(
		&r.ID,
		&r.Project,
		&sprintID,
		&r.Title,
		&r.Description,
		&category,
		&r.Probability,
		&impact,
		&strategy,
		&r.ResponsePlan,
		&r.MitigationPlan,
		&status,
		&r.Owner,
		&r.CreatedAt,
		&r.UpdatedAt,
	); err != nil {
		return risk.Risk{}, err
	}
	r.SprintID = sprintID.String
	r.Category = risk.Category(category)
	r.Impact = risk.Impact(impact)
	r.ResponseStrategy = risk.Strategy(strategy)
	// rows written before the vocabulary was unified may still carry
	// legacy names
	r.Status = risk.NormalizeStatus(risk.Status(status))
	return r, nil
}
