package sprint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/antigravity-dev/tracker/internal/apperr"
	"github.com/antigravity-dev/tracker/internal/backlog"
)

// Repository is the persistence collaborator the manager reads and writes
// sprints and items through.
type Repository interface {
	ListItems(ctx context.Context, project string) ([]backlog.Item, error)
	ListSprintItems(ctx context.Context, sprintID string) ([]backlog.Item, error)
	GetSprint(ctx context.Context, id string) (Sprint, error)
	ListSprints(ctx context.Context, project string, statuses ...Status) ([]Sprint, error)
	CreateSprint(ctx context.Context, s Sprint) (Sprint, error)
	UpdateSprint(ctx context.Context, id string, fields map[string]any) error
	DeleteSprint(ctx context.Context, id string) error
}

// ItemUpdater applies a batch of per-item patches. Implementations either
// apply the batch atomically or return *apperr.BatchError naming the items
// that failed while the rest stay applied.
type ItemUpdater interface {
	ApplyItemUpdates(ctx context.Context, updates []backlog.Update) error
}

// Manager runs sprint lifecycle transitions for all projects.
type Manager struct {
	repo          Repository
	updater       ItemUpdater
	logger        *slog.Logger
	defaultLength time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithDefaultLength sets the sprint length used when a request has no end date.
func WithDefaultLength(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.defaultLength = d
		}
	}
}

// NewManager creates a sprint manager. When updater is nil, repo must also
// implement ItemUpdater.
func NewManager(repo Repository, updater ItemUpdater, logger *slog.Logger, opts ...Option) (*Manager, error) {
	if repo == nil {
		return nil, fmt.Errorf("sprint: repository is required")
	}
	if updater == nil {
		u, ok := repo.(ItemUpdater)
		if !ok {
			return nil, fmt.Errorf("sprint: no item updater configured")
		}
		updater = u
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		repo:          repo,
		updater:       updater,
		logger:        logger,
		defaultLength: 14 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// StartRequest describes a sprint to start from a backlog selection.
type StartRequest struct {
	Project   string    `json:"project"`
	Name      string    `json:"name"`
	Goal      string    `json:"goal"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	ItemIDs   []string  `json:"item_ids"`
	// CommittedPoints overrides the commitment computed from the selection.
	CommittedPoints *int `json:"committed_points,omitempty"`
}

// ActiveSprint returns the project's active sprint. It always queries the
// repository; there is no cached "current sprint".
func (m *Manager) ActiveSprint(ctx context.Context, project string) (Sprint, bool, error) {
	active, err := m.repo.ListSprints(ctx, project, StatusActive)
	if err != nil {
		return Sprint{}, false, fmt.Errorf("sprint: list active sprints: %w", err)
	}
	if len(active) == 0 {
		return Sprint{}, false, nil
	}
	if len(active) > 1 {
		m.logger.Warn("multiple active sprints found", "project", project, "count", len(active))
	}
	return active[0], true, nil
}

// StartSprint creates an active sprint and moves the selected items into it
// with status new. If the item batch fails outright the sprint is removed
// again; a partially applied batch keeps it and reports the failed items.
func (m *Manager) StartSprint(ctx context.Context, req StartRequest) (Sprint, error) {
	draft := Sprint{
		Project:   strings.TrimSpace(req.Project),
		Name:      strings.TrimSpace(req.Name),
		Goal:      req.Goal,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Status:    StatusActive,
	}
	if draft.EndDate.IsZero() && !draft.StartDate.IsZero() {
		draft.EndDate = draft.StartDate.Add(m.defaultLength)
	}
	if req.CommittedPoints != nil {
		draft.CommittedStoryPoints = *req.CommittedPoints
	}
	if err := draft.Validate(); err != nil {
		return Sprint{}, err
	}

	if err := m.ensureNoActive(ctx, draft.Project, ""); err != nil {
		return Sprint{}, err
	}

	selected, err := m.lookupItems(ctx, draft.Project, req.ItemIDs)
	if err != nil {
		return Sprint{}, err
	}
	if req.CommittedPoints == nil {
		draft.CommittedStoryPoints = backlog.SelectedStoryPoints(backlog.NewSelection(req.ItemIDs...), selected)
	}

	existing, err := m.repo.ListSprints(ctx, draft.Project)
	if err != nil {
		return Sprint{}, fmt.Errorf("sprint: list sprints: %w", err)
	}
	draft.SprintNumber = NextNumber(existing)

	created, err := m.repo.CreateSprint(ctx, draft)
	if err != nil {
		return Sprint{}, fmt.Errorf("sprint: create: %w", err)
	}
	m.logger.Info("sprint started",
		"project", created.Project,
		"sprint_id", created.ID,
		"sprint_number", created.SprintNumber,
		"items", len(selected),
		"committed_points", created.CommittedStoryPoints)

	failed, err := m.apply(ctx, "start", created.ID, attachUpdates(created.ID, selected))
	if err != nil && failed == nil {
		// nothing was attached; drop the sprint so the start can be retried
		if derr := m.repo.DeleteSprint(ctx, created.ID); derr != nil {
			m.logger.Error("rollback of failed sprint start failed", "sprint_id", created.ID, "error", derr)
			return Sprint{}, errors.Join(err, fmt.Errorf("sprint: roll back start of %s: %w", created.ID, derr))
		}
		m.logger.Warn("sprint start rolled back", "sprint_id", created.ID)
		return Sprint{}, err
	}
	if err != nil {
		return created, err
	}
	return created, nil
}

// PlanRequest describes a sprint created ahead of time in planned state.
type PlanRequest struct {
	Project   string    `json:"project"`
	Name      string    `json:"name"`
	Goal      string    `json:"goal"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// PlanSprint creates a sprint in planned state without any items.
func (m *Manager) PlanSprint(ctx context.Context, req PlanRequest) (Sprint, error) {
	draft := Sprint{
		Project:   strings.TrimSpace(req.Project),
		Name:      strings.TrimSpace(req.Name),
		Goal:      req.Goal,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Status:    StatusPlanned,
	}
	if draft.EndDate.IsZero() && !draft.StartDate.IsZero() {
		draft.EndDate = draft.StartDate.Add(m.defaultLength)
	}
	if err := draft.Validate(); err != nil {
		return Sprint{}, err
	}
	existing, err := m.repo.ListSprints(ctx, draft.Project)
	if err != nil {
		return Sprint{}, fmt.Errorf("sprint: list sprints: %w", err)
	}
	draft.SprintNumber = NextNumber(existing)

	created, err := m.repo.CreateSprint(ctx, draft)
	if err != nil {
		return Sprint{}, fmt.Errorf("sprint: create: %w", err)
	}
	m.logger.Info("sprint planned", "project", created.Project, "sprint_id", created.ID, "sprint_number", created.SprintNumber)
	return created, nil
}

// ActivateSprint moves a planned sprint to active, committing itemIDs the
// same way StartSprint does.
func (m *Manager) ActivateSprint(ctx context.Context, sprintID string, itemIDs []string, committedPoints *int) (Sprint, error) {
	sp, err := m.repo.GetSprint(ctx, sprintID)
	if err != nil {
		return Sprint{}, err
	}
	if !CanTransition(sp.Status, StatusActive) {
		return Sprint{}, apperr.Conflict("sprint %q is %s and cannot be activated", sp.ID, sp.Status)
	}
	if err := m.ensureNoActive(ctx, sp.Project, sp.ID); err != nil {
		return Sprint{}, err
	}

	selected, err := m.lookupItems(ctx, sp.Project, itemIDs)
	if err != nil {
		return Sprint{}, err
	}
	committed := backlog.SelectedStoryPoints(backlog.NewSelection(itemIDs...), selected)
	if committedPoints != nil {
		committed = *committedPoints
	}
	prev := sp

	if err := m.repo.UpdateSprint(ctx, sp.ID, map[string]any{
		FieldStatus:    string(StatusActive),
		FieldCommitted: committed,
	}); err != nil {
		return Sprint{}, fmt.Errorf("sprint: activate %s: %w", sp.ID, err)
	}
	sp.Status = StatusActive
	sp.CommittedStoryPoints = committed
	m.logger.Info("sprint activated", "project", sp.Project, "sprint_id", sp.ID, "items", len(selected), "committed_points", committed)

	failed, err := m.apply(ctx, "activate", sp.ID, attachUpdates(sp.ID, selected))
	if err != nil && failed == nil {
		return Sprint{}, m.revert(ctx, "activate", prev, err)
	}
	if err != nil {
		return sp, err
	}
	return sp, nil
}

// AddItemsToSprint attaches items to an active sprint and records the user
// story points they bring as scope creep. Repeated additions accumulate.
func (m *Manager) AddItemsToSprint(ctx context.Context, sprintID string, itemIDs []string) (Sprint, error) {
	sp, err := m.repo.GetSprint(ctx, sprintID)
	if err != nil {
		return Sprint{}, err
	}
	if sp.Status != StatusActive {
		return Sprint{}, apperr.Conflict("sprint %q is %s; items can only be added to an active sprint", sp.ID, sp.Status)
	}

	items, err := m.lookupItems(ctx, sp.Project, itemIDs)
	if err != nil {
		return Sprint{}, err
	}
	added := make([]backlog.Item, 0, len(items))
	for _, it := range items {
		if it.SprintID == sp.ID {
			continue
		}
		added = append(added, it)
	}
	if len(added) == 0 {
		return sp, nil
	}

	failed, applyErr := m.apply(ctx, "add_items", sp.ID, attachUpdates(sp.ID, added))
	if applyErr != nil && failed == nil {
		return sp, applyErr
	}

	creep := 0
	for _, it := range added {
		if _, bad := failed[it.ID]; bad {
			continue
		}
		creep += it.Points()
	}
	if creep > 0 {
		sp.ScopeCreepStoryPoints += creep
		if err := m.repo.UpdateSprint(ctx, sp.ID, map[string]any{FieldScopeCreep: sp.ScopeCreepStoryPoints}); err != nil {
			return sp, fmt.Errorf("sprint: record scope creep for %s: %w", sp.ID, err)
		}
	}
	m.logger.Info("items added to sprint", "sprint_id", sp.ID, "items", len(added), "scope_creep_added", creep, "scope_creep_total", sp.ScopeCreepStoryPoints)
	return sp, applyErr
}

// RemoveItemsFromSprint returns items to the backlog. Scope creep is never
// decremented.
func (m *Manager) RemoveItemsFromSprint(ctx context.Context, sprintID string, itemIDs []string) error {
	sp, err := m.repo.GetSprint(ctx, sprintID)
	if err != nil {
		return err
	}
	if sp.Terminal() {
		return apperr.Conflict("sprint %q is %s; its items can no longer change", sp.ID, sp.Status)
	}
	items, err := m.repo.ListSprintItems(ctx, sp.ID)
	if err != nil {
		return fmt.Errorf("sprint: list items of %s: %w", sp.ID, err)
	}
	wanted := backlog.NewSelection(itemIDs...)
	var updates []backlog.Update
	for _, it := range items {
		if !wanted.Has(it.ID) {
			continue
		}
		updates = append(updates, detachUpdate(it.ID, backlog.StatusApproved))
	}
	_, err = m.apply(ctx, "remove_items", sp.ID, updates)
	return err
}

// CompleteSprint closes an active sprint. Every non-epic item that is not
// done returns to the backlog as approved; done items stay attached as the
// sprint's history and epics are never moved.
func (m *Manager) CompleteSprint(ctx context.Context, sprintID string) (Sprint, error) {
	sp, err := m.repo.GetSprint(ctx, sprintID)
	if err != nil {
		return Sprint{}, err
	}
	if sp.Status != StatusActive {
		return Sprint{}, apperr.Conflict("sprint %q is %s; only an active sprint can be completed", sp.ID, sp.Status)
	}
	return m.close(ctx, sp, StatusCompleted)
}

// CancelSprint abandons a planned or active sprint, returning unfinished
// items to the backlog like completion does.
func (m *Manager) CancelSprint(ctx context.Context, sprintID string) (Sprint, error) {
	sp, err := m.repo.GetSprint(ctx, sprintID)
	if err != nil {
		return Sprint{}, err
	}
	if !CanTransition(sp.Status, StatusCancelled) {
		return Sprint{}, apperr.Conflict("sprint %q is %s and cannot be cancelled", sp.ID, sp.Status)
	}
	return m.close(ctx, sp, StatusCancelled)
}

// close marks sp as to and reconciles its items. A batch that applies
// nothing puts the sprint back in its previous state so the close can be
// retried.
func (m *Manager) close(ctx context.Context, sp Sprint, to Status) (Sprint, error) {
	items, err := m.repo.ListSprintItems(ctx, sp.ID)
	if err != nil {
		return Sprint{}, fmt.Errorf("sprint: list items of %s: %w", sp.ID, err)
	}
	completed := backlog.DonePoints(items)
	prev := sp

	if err := m.repo.UpdateSprint(ctx, sp.ID, map[string]any{
		FieldStatus:    string(to),
		FieldCompleted: completed,
	}); err != nil {
		return Sprint{}, fmt.Errorf("sprint: mark %s %s: %w", sp.ID, to, err)
	}
	sp.Status = to
	sp.CompletedStoryPoints = completed

	updates := ReconcileUpdates(items)
	m.logger.Info("sprint closed",
		"sprint_id", sp.ID,
		"status", string(to),
		"completed_points", completed,
		"returned_to_backlog", len(updates))

	failed, err := m.apply(ctx, string(to), sp.ID, updates)
	if err != nil && failed == nil {
		return Sprint{}, m.revert(ctx, string(to), prev, err)
	}
	if err != nil {
		return sp, err
	}
	return sp, nil
}

// revert restores a sprint's status and point fields after a transition
// whose item batch failed as a whole. cause is returned, joined with the
// revert error if that fails too.
func (m *Manager) revert(ctx context.Context, op string, prev Sprint, cause error) error {
	err := m.repo.UpdateSprint(ctx, prev.ID, map[string]any{
		FieldStatus:    string(prev.Status),
		FieldCommitted: prev.CommittedStoryPoints,
		FieldCompleted: prev.CompletedStoryPoints,
	})
	if err != nil {
		m.logger.Error("sprint rollback failed", "op", op, "sprint_id", prev.ID, "error", err)
		return errors.Join(cause, fmt.Errorf("sprint: roll back %s of %s: %w", op, prev.ID, err))
	}
	m.logger.Warn("sprint transition rolled back", "op", op, "sprint_id", prev.ID, "status", string(prev.Status))
	return cause
}

// ReconcileUpdates returns the patches that send a closed sprint's
// unfinished, non-epic items back to the backlog as approved.
func ReconcileUpdates(items []backlog.Item) []backlog.Update {
	var updates []backlog.Update
	for _, it := range items {
		if it.Type == backlog.TypeEpic || it.IsDone() {
			continue
		}
		updates = append(updates, detachUpdate(it.ID, backlog.StatusApproved))
	}
	return updates
}

// DeleteSprint detaches every item from the sprint, leaving item status as
// is, and then deletes the sprint. Point accounting is not touched. If any
// item cannot be detached the sprint is kept.
func (m *Manager) DeleteSprint(ctx context.Context, sprintID string) error {
	sp, err := m.repo.GetSprint(ctx, sprintID)
	if err != nil {
		return err
	}
	items, err := m.repo.ListSprintItems(ctx, sp.ID)
	if err != nil {
		return fmt.Errorf("sprint: list items of %s: %w", sp.ID, err)
	}
	updates := make([]backlog.Update, 0, len(items))
	for _, it := range items {
		updates = append(updates, backlog.Update{
			ID:     it.ID,
			Fields: map[string]any{backlog.FieldSprintID: ""},
		})
	}
	if _, err := m.apply(ctx, "delete", sp.ID, updates); err != nil {
		return fmt.Errorf("sprint: delete %s aborted: %w", sp.ID, err)
	}
	if err := m.repo.DeleteSprint(ctx, sp.ID); err != nil {
		return fmt.Errorf("sprint: delete %s: %w", sp.ID, err)
	}
	m.logger.Info("sprint deleted", "project", sp.Project, "sprint_id", sp.ID, "detached_items", len(updates))
	return nil
}

// apply runs a batch and logs partial failures. The returned set holds the
// ids that failed inside a partially applied batch; it is nil when the whole
// batch failed or succeeded.
func (m *Manager) apply(ctx context.Context, op, sprintID string, updates []backlog.Update) (map[string]struct{}, error) {
	if len(updates) == 0 {
		return nil, nil
	}
	err := m.updater.ApplyItemUpdates(ctx, updates)
	if err == nil {
		return nil, nil
	}
	if be, ok := apperr.IsBatch(err); ok {
		m.logger.Warn("sprint batch partially applied; some items may be inconsistent, refresh advised",
			"op", op,
			"sprint_id", sprintID,
			"applied", be.Applied,
			"failed_ids", be.FailedIDs())
		failed := make(map[string]struct{}, len(be.Failures))
		for _, id := range be.FailedIDs() {
			failed[id] = struct{}{}
		}
		return failed, fmt.Errorf("sprint: %s %s: %w", op, sprintID, err)
	}
	m.logger.Error("sprint batch failed", "op", op, "sprint_id", sprintID, "items", len(updates), "error", err)
	return nil, fmt.Errorf("sprint: %s %s: %w", op, sprintID, err)
}

func (m *Manager) ensureNoActive(ctx context.Context, project, except string) error {
	active, ok, err := m.ActiveSprint(ctx, project)
	if err != nil {
		return err
	}
	if ok && active.ID != except {
		return apperr.Conflict("project %q already has active sprint %q (#%d)", project, active.Name, active.SprintNumber)
	}
	return nil
}

// lookupItems resolves ids against the project's items, in id order.
func (m *Manager) lookupItems(ctx context.Context, project string, ids []string) ([]backlog.Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	all, err := m.repo.ListItems(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("sprint: list items: %w", err)
	}
	byID := backlog.Index(all)

	sorted := backlog.NewSelection(ids...).IDs()
	out := make([]backlog.Item, 0, len(sorted))
	var missing []error
	for _, id := range sorted {
		it, ok := byID[id]
		if !ok {
			missing = append(missing, apperr.NotFound("item", id))
			continue
		}
		out = append(out, it)
	}
	if len(missing) > 0 {
		return nil, errors.Join(missing...)
	}
	return out, nil
}

func attachUpdates(sprintID string, items []backlog.Item) []backlog.Update {
	updates := make([]backlog.Update, 0, len(items))
	for _, it := range items {
		updates = append(updates, backlog.Update{
			ID: it.ID,
			Fields: map[string]any{
				backlog.FieldSprintID: sprintID,
				backlog.FieldStatus:   string(backlog.StatusNew),
			},
		})
	}
	sort.Slice(updates, func(i, j int) bool { return updates[i].ID < updates[j].ID })
	return updates
}

func detachUpdate(id string, status backlog.Status) backlog.Update {
	return backlog.Update{
		ID: id,
		Fields: map[string]any{
			backlog.FieldSprintID: "",
			backlog.FieldStatus:   string(status),
		},
	}
}
