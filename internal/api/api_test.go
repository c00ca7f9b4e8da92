package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/antigravity-dev/tracker/internal/apperr"
	"github.com/antigravity-dev/tracker/internal/backlog"
	"github.com/antigravity-dev/tracker/internal/config"
	"github.com/antigravity-dev/tracker/internal/sprint"
	"github.com/antigravity-dev/tracker/internal/store"
)

var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	srv     *Server
	store   *store.Store
	handler http.Handler
}

func setupTestServer(t *testing.T, updater sprint.ItemUpdater) *testEnv {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := &config.Config{
		Projects: map[string]config.Project{
			"acme":   {Enabled: true, Name: "Acme", DefaultAssignee: "alice"},
			"frozen": {Enabled: false, Name: "Frozen"},
		},
		Batch: config.Batch{Mode: config.BatchAtomic},
		API:   config.API{Bind: "127.0.0.1:0"},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	mgr, err := sprint.NewManager(st, updater, logger)
	if err != nil {
		t.Fatal(err)
	}
	srv := NewServer(config.NewRWMutexManager(cfg), st, mgr, updater, logger)
	srv.now = func() time.Time { return testNow }
	return &testEnv{srv: srv, store: st, handler: srv.Handler()}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, code int) {
	t.Helper()
	if w.Code != code {
		t.Fatalf("expected %d, got %d: %s", code, w.Code, w.Body.String())
	}
}

func (e *testEnv) createItem(t *testing.T, fields map[string]any) backlog.Item {
	t.Helper()
	w := e.do(t, http.MethodPost, "/projects/acme/items", fields)
	expectStatus(t, w, http.StatusCreated)
	return decode[backlog.Item](t, w)
}

func TestHandleStatus(t *testing.T) {
	env := setupTestServer(t, nil)
	w := env.do(t, http.MethodGet, "/status", nil)
	expectStatus(t, w, http.StatusOK)
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected application/json, got %s", ct)
	}
	resp := decode[map[string]any](t, w)
	if _, ok := resp["uptime_s"]; !ok {
		t.Fatal("missing uptime_s")
	}
	if resp["db_ok"] != true {
		t.Fatalf("expected db_ok, got %v", resp["db_ok"])
	}
	if resp["batch_mode"] != "atomic" {
		t.Fatalf("unexpected batch_mode %v", resp["batch_mode"])
	}
}

func TestHandleProjects(t *testing.T) {
	env := setupTestServer(t, nil)
	w := env.do(t, http.MethodGet, "/projects", nil)
	expectStatus(t, w, http.StatusOK)
	projects := decode[[]map[string]any](t, w)
	if len(projects) != 2 || projects[0]["key"] != "acme" || projects[1]["key"] != "frozen" {
		t.Fatalf("unexpected projects: %v", projects)
	}
}

func TestUnknownOrDisabledProjectIs404(t *testing.T) {
	env := setupTestServer(t, nil)
	for _, path := range []string{"/projects/nope/backlog", "/projects/frozen/backlog"} {
		w := env.do(t, http.MethodGet, path, nil)
		expectStatus(t, w, http.StatusNotFound)
	}
}

func TestErrorMapping(t *testing.T) {
	env := setupTestServer(t, nil)

	t.Run("missing item", func(t *testing.T) {
		expectStatus(t, env.do(t, http.MethodGet, "/items/missing", nil), http.StatusNotFound)
	})
	t.Run("invalid json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/projects/acme/items", bytes.NewBufferString("{"))
		w := httptest.NewRecorder()
		env.handler.ServeHTTP(w, req)
		expectStatus(t, w, http.StatusBadRequest)
	})
	t.Run("validation", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/projects/acme/items", map[string]any{"title": ""})
		expectStatus(t, w, http.StatusBadRequest)
	})
	t.Run("sprint id patch refused", func(t *testing.T) {
		it := env.createItem(t, map[string]any{"title": "story"})
		w := env.do(t, http.MethodPatch, "/items/"+it.ID, map[string]any{"sprint_id": "x"})
		expectStatus(t, w, http.StatusBadRequest)
	})
}

func TestCreateItemDefaultsAndParentRules(t *testing.T) {
	env := setupTestServer(t, nil)

	epic := env.createItem(t, map[string]any{"title": "Checkout", "item_type": "epic"})
	if epic.AssignedTo != "alice" {
		t.Fatalf("expected default assignee, got %q", epic.AssignedTo)
	}
	story := env.createItem(t, map[string]any{"title": "Pay by card", "parent_id": epic.ID, "story_points": 5})
	if story.Type != backlog.TypeUserStory || story.ParentID != epic.ID {
		t.Fatalf("unexpected story: %+v", story)
	}

	w := env.do(t, http.MethodPost, "/projects/acme/items", map[string]any{
		"title": "Wire gateway", "item_type": "task", "parent_id": epic.ID,
	})
	expectStatus(t, w, http.StatusBadRequest)

	w = env.do(t, http.MethodPost, "/projects/acme/items", map[string]any{
		"title": "Orphan", "parent_id": "does-not-exist",
	})
	expectStatus(t, w, http.StatusBadRequest)
}

func TestPatchTypeChangeRevalidatesParent(t *testing.T) {
	env := setupTestServer(t, nil)
	epic := env.createItem(t, map[string]any{"title": "Checkout", "item_type": "epic"})
	story := env.createItem(t, map[string]any{"title": "Pay", "parent_id": epic.ID})
	parentStory := env.createItem(t, map[string]any{"title": "Refunds"})
	task := env.createItem(t, map[string]any{"title": "Ledger", "item_type": "task", "parent_id": parentStory.ID})

	// a bug cannot sit under an epic, so the parent is dropped
	w := env.do(t, http.MethodPatch, "/items/"+story.ID, map[string]any{"item_type": "bug"})
	expectStatus(t, w, http.StatusOK)
	got := decode[backlog.Item](t, w)
	if got.Type != backlog.TypeBug || got.ParentID != "" {
		t.Fatalf("expected parentless bug, got %+v", got)
	}

	// task stays a task: same type, parent untouched
	w = env.do(t, http.MethodPatch, "/items/"+task.ID, map[string]any{"item_type": "task", "title": "Ledger v2"})
	expectStatus(t, w, http.StatusOK)
	got = decode[backlog.Item](t, w)
	if got.ParentID != parentStory.ID || got.Title != "Ledger v2" {
		t.Fatalf("unexpected task after patch: %+v", got)
	}

	// explicit parent that does not fit the new type is rejected
	w = env.do(t, http.MethodPatch, "/items/"+task.ID, map[string]any{"item_type": "spike", "parent_id": parentStory.ID})
	expectStatus(t, w, http.StatusBadRequest)

	// parent cycles are rejected
	w = env.do(t, http.MethodPatch, "/items/"+parentStory.ID, map[string]any{"parent_id": parentStory.ID})
	expectStatus(t, w, http.StatusBadRequest)

	// clearing the parent with null
	w = env.do(t, http.MethodPatch, "/items/"+task.ID, map[string]any{"parent_id": nil})
	expectStatus(t, w, http.StatusOK)
	if got := decode[backlog.Item](t, w); got.ParentID != "" {
		t.Fatalf("expected cleared parent, got %q", got.ParentID)
	}
}

func TestPatchTypeChangeDetachesChildren(t *testing.T) {
	env := setupTestServer(t, nil)
	epic := env.createItem(t, map[string]any{"title": "Checkout", "item_type": "epic"})
	story := env.createItem(t, map[string]any{"title": "Pay", "parent_id": epic.ID})
	task := env.createItem(t, map[string]any{"title": "Ledger", "item_type": "task", "parent_id": story.ID})

	w := env.do(t, http.MethodPatch, "/items/"+epic.ID, map[string]any{"item_type": "bug"})
	expectStatus(t, w, http.StatusOK)

	ctx := context.Background()
	got, err := env.store.GetItem(ctx, story.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ParentID != "" {
		t.Fatalf("story should be detached from the bug, parent=%q", got.ParentID)
	}
	got, _ = env.store.GetItem(ctx, task.ID)
	if got.ParentID != story.ID {
		t.Fatalf("grandchild should stay under the story, parent=%q", got.ParentID)
	}

	w = env.do(t, http.MethodPatch, "/items/"+story.ID, map[string]any{"item_type": "spike"})
	expectStatus(t, w, http.StatusOK)
	got, _ = env.store.GetItem(ctx, task.ID)
	if got.ParentID != "" {
		t.Fatalf("task should be detached from the spike, parent=%q", got.ParentID)
	}

	items, err := env.store.ListItems(ctx, "acme")
	if err != nil {
		t.Fatal(err)
	}
	for _, it := range items {
		if err := backlog.ValidateParent(it, items); err != nil {
			t.Fatalf("hierarchy left invalid: %v", err)
		}
	}
}

func TestBacklogForestAndDelete(t *testing.T) {
	env := setupTestServer(t, nil)
	epic := env.createItem(t, map[string]any{"title": "Checkout", "item_type": "epic"})
	env.createItem(t, map[string]any{"title": "Pay", "parent_id": epic.ID, "story_points": 3})
	env.createItem(t, map[string]any{"title": "Loose bug", "item_type": "bug"})

	w := env.do(t, http.MethodGet, "/projects/acme/backlog", nil)
	expectStatus(t, w, http.StatusOK)
	resp := decode[struct {
		Nodes       []backlog.Node `json:"nodes"`
		Roots       int            `json:"roots"`
		TotalPoints int            `json:"total_points"`
	}](t, w)
	if len(resp.Nodes) != 3 || resp.Roots != 2 || resp.TotalPoints != 3 {
		t.Fatalf("unexpected backlog: %+v", resp)
	}
	if resp.Nodes[0].Item.ID != epic.ID || resp.Nodes[1].Depth != 1 {
		t.Fatalf("unexpected display order: %+v", resp.Nodes)
	}

	expectStatus(t, env.do(t, http.MethodDelete, "/items/"+epic.ID, nil), http.StatusNoContent)
	expectStatus(t, env.do(t, http.MethodDelete, "/items/"+epic.ID, nil), http.StatusNotFound)

	w = env.do(t, http.MethodGet, "/projects/acme/backlog", nil)
	resp.Nodes = nil
	resp.Roots = 0
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Roots != 2 {
		t.Fatalf("children of a deleted item should become roots, got %d roots", resp.Roots)
	}
}

func TestReorderPersists(t *testing.T) {
	env := setupTestServer(t, nil)
	a := env.createItem(t, map[string]any{"title": "A"})
	b := env.createItem(t, map[string]any{"title": "B"})
	c := env.createItem(t, map[string]any{"title": "C"})

	w := env.do(t, http.MethodPost, "/projects/acme/backlog/reorder", map[string]any{"from": 0, "to": 2})
	expectStatus(t, w, http.StatusOK)

	items, err := env.store.ListItems(context.Background(), "acme")
	if err != nil {
		t.Fatal(err)
	}
	var order []string
	for _, it := range items {
		order = append(order, it.ID)
	}
	want := []string{b.ID, c.ID, a.ID}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}

	// moving within a filtered view keeps the slots of the visible items
	w = env.do(t, http.MethodPost, "/projects/acme/backlog/reorder", map[string]any{
		"from": 1, "to": 0, "item_ids": []string{b.ID, a.ID},
	})
	expectStatus(t, w, http.StatusOK)
	got, _ := env.store.GetItem(context.Background(), a.ID)
	if got.BacklogOrder != 0 {
		t.Fatalf("a should take b's slot 0, got %d", got.BacklogOrder)
	}
	got, _ = env.store.GetItem(context.Background(), c.ID)
	if got.BacklogOrder != 1 {
		t.Fatalf("hidden item c should keep slot 1, got %d", got.BacklogOrder)
	}

	w = env.do(t, http.MethodPost, "/projects/acme/backlog/reorder", map[string]any{"from": 0, "to": 9})
	expectStatus(t, w, http.StatusBadRequest)
}

func TestReorderUsesDisplayOrder(t *testing.T) {
	env := setupTestServer(t, nil)
	a := env.createItem(t, map[string]any{"title": "A"})
	b := env.createItem(t, map[string]any{"title": "B"})
	c := env.createItem(t, map[string]any{"title": "C"})
	expectStatus(t, env.do(t, http.MethodPatch, "/items/"+a.ID, map[string]any{"status": "done"}), http.StatusOK)

	displayed := func() []string {
		w := env.do(t, http.MethodGet, "/projects/acme/backlog", nil)
		expectStatus(t, w, http.StatusOK)
		resp := decode[struct {
			Nodes []backlog.Node `json:"nodes"`
		}](t, w)
		var out []string
		for _, n := range resp.Nodes {
			out = append(out, n.Item.ID)
		}
		return out
	}
	if got, want := displayed(), []string{b.ID, c.ID, a.ID}; !slices.Equal(got, want) {
		t.Fatalf("display = %v, want %v", got, want)
	}

	// drag B below C in the displayed list
	w := env.do(t, http.MethodPost, "/projects/acme/backlog/reorder", map[string]any{"from": 0, "to": 1})
	expectStatus(t, w, http.StatusOK)
	if got, want := displayed(), []string{c.ID, b.ID, a.ID}; !slices.Equal(got, want) {
		t.Fatalf("display after move = %v, want %v", got, want)
	}
}

type partialUpdater struct {
	failID string
}

func (p partialUpdater) ApplyItemUpdates(_ context.Context, updates []backlog.Update) error {
	var failures []apperr.ItemFailure
	for _, u := range updates {
		if u.ID == p.failID {
			failures = append(failures, apperr.ItemFailure{ItemID: u.ID, Reason: "database is locked"})
		}
	}
	return apperr.NewBatchError(len(updates)-len(failures), failures)
}

func TestPartialBatchIs207(t *testing.T) {
	env := setupTestServer(t, nil)
	a := env.createItem(t, map[string]any{"title": "A"})
	env.createItem(t, map[string]any{"title": "B"})
	env.srv.updater = partialUpdater{failID: a.ID}

	w := env.do(t, http.MethodPost, "/projects/acme/backlog/reorder", map[string]any{"from": 0, "to": 1})
	expectStatus(t, w, http.StatusMultiStatus)
	resp := decode[map[string]any](t, w)
	ids, ok := resp["failed_ids"].([]any)
	if !ok || len(ids) != 1 || ids[0] != a.ID {
		t.Fatalf("unexpected failed_ids: %v", resp["failed_ids"])
	}
	if resp["applied"].(float64) != 1 {
		t.Fatalf("unexpected applied: %v", resp["applied"])
	}
}

func TestToggleSelectionCascades(t *testing.T) {
	env := setupTestServer(t, nil)
	epic := env.createItem(t, map[string]any{"title": "Checkout", "item_type": "epic", "story_points": 8})
	s1 := env.createItem(t, map[string]any{"title": "Pay", "parent_id": epic.ID, "story_points": 3})
	env.createItem(t, map[string]any{"title": "Refund", "parent_id": epic.ID, "story_points": 5})
	env.createItem(t, map[string]any{"title": "Ledger", "item_type": "task", "parent_id": s1.ID, "story_points": 2})

	w := env.do(t, http.MethodPost, "/projects/acme/selection/toggle", map[string]any{"item_id": epic.ID})
	expectStatus(t, w, http.StatusOK)
	resp := decode[struct {
		Selected    []string `json:"selected"`
		StoryPoints int      `json:"story_points"`
	}](t, w)
	if len(resp.Selected) != 4 || resp.StoryPoints != 8 {
		t.Fatalf("expected whole subtree with 8 story points, got %+v", resp)
	}

	w = env.do(t, http.MethodPost, "/projects/acme/selection/toggle", map[string]any{"item_id": s1.ID, "selected": resp.Selected})
	expectStatus(t, w, http.StatusOK)
	resp.Selected = nil
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Selected) != 2 || resp.StoryPoints != 5 {
		t.Fatalf("deselecting a story drops its subtree, got %+v", resp)
	}

	w = env.do(t, http.MethodPost, "/projects/acme/selection/toggle", map[string]any{"item_id": "ghost"})
	expectStatus(t, w, http.StatusNotFound)
}

func TestSprintLifecycle(t *testing.T) {
	env := setupTestServer(t, nil)
	s1 := env.createItem(t, map[string]any{"title": "Pay", "story_points": 5})
	s2 := env.createItem(t, map[string]any{"title": "Refund", "story_points": 8})
	late := env.createItem(t, map[string]any{"title": "Receipts", "story_points": 3})

	w := env.do(t, http.MethodPost, "/projects/acme/sprints", map[string]any{
		"name":       "Sprint 1",
		"start_date": "2026-03-01",
		"end_date":   "2026-03-11",
		"item_ids":   []string{s1.ID, s2.ID},
	})
	expectStatus(t, w, http.StatusCreated)
	sp := decode[sprint.Sprint](t, w)
	if sp.Status != sprint.StatusActive || sp.CommittedStoryPoints != 13 || sp.SprintNumber != 1 {
		t.Fatalf("unexpected sprint: %+v", sp)
	}

	w = env.do(t, http.MethodPost, "/projects/acme/sprints", map[string]any{"name": "Sprint 2"})
	expectStatus(t, w, http.StatusConflict)

	w = env.do(t, http.MethodGet, "/projects/acme/sprints/active", nil)
	expectStatus(t, w, http.StatusOK)
	if got := decode[sprint.Sprint](t, w); got.ID != sp.ID {
		t.Fatalf("active sprint = %s, want %s", got.ID, sp.ID)
	}

	w = env.do(t, http.MethodPost, "/sprints/"+sp.ID+"/items", map[string]any{"item_ids": []string{late.ID}})
	expectStatus(t, w, http.StatusOK)
	if got := decode[sprint.Sprint](t, w); got.ScopeCreepStoryPoints != 3 {
		t.Fatalf("scope creep = %d, want 3", got.ScopeCreepStoryPoints)
	}

	w = env.do(t, http.MethodPatch, "/items/"+s1.ID, map[string]any{"status": "done"})
	expectStatus(t, w, http.StatusOK)

	w = env.do(t, http.MethodGet, "/sprints/"+sp.ID+"/burndown", nil)
	expectStatus(t, w, http.StatusOK)
	bd := decode[map[string]any](t, w)
	if bd["total_days"].(float64) != 10 || bd["remaining_points"].(float64) != 11 {
		t.Fatalf("unexpected burndown: %v", bd)
	}

	w = env.do(t, http.MethodPost, "/sprints/"+sp.ID+"/complete", nil)
	expectStatus(t, w, http.StatusOK)
	if got := decode[sprint.Sprint](t, w); got.Status != sprint.StatusCompleted || got.CompletedStoryPoints != 5 {
		t.Fatalf("unexpected completed sprint: %+v", got)
	}
	expectStatus(t, env.do(t, http.MethodPost, "/sprints/"+sp.ID+"/complete", nil), http.StatusConflict)

	back, err := env.store.GetItem(context.Background(), s2.ID)
	if err != nil {
		t.Fatal(err)
	}
	if back.SprintID != "" || back.Status != backlog.StatusApproved {
		t.Fatalf("unfinished item should return to backlog approved, got %+v", back)
	}

	w = env.do(t, http.MethodGet, "/projects/acme/velocity", nil)
	expectStatus(t, w, http.StatusOK)
	vel := decode[map[string]any](t, w)
	if vel["average_velocity"].(float64) != 5 || vel["average_completion_rate"].(float64) != 38 {
		t.Fatalf("unexpected velocity summary: %v", vel)
	}

	expectStatus(t, env.do(t, http.MethodDelete, "/sprints/"+sp.ID, nil), http.StatusNoContent)
	expectStatus(t, env.do(t, http.MethodGet, "/sprints/"+sp.ID, nil), http.StatusNotFound)
	done, err := env.store.GetItem(context.Background(), s1.ID)
	if err != nil {
		t.Fatal(err)
	}
	if done.SprintID != "" || done.Status != backlog.StatusDone {
		t.Fatalf("deleting a sprint detaches items without touching status, got %+v", done)
	}
}

func TestPlannedSprintActivation(t *testing.T) {
	env := setupTestServer(t, nil)
	story := env.createItem(t, map[string]any{"title": "Pay", "story_points": 8})

	w := env.do(t, http.MethodPost, "/projects/acme/sprints", map[string]any{"name": "Next", "status": "planned"})
	expectStatus(t, w, http.StatusCreated)
	planned := decode[sprint.Sprint](t, w)
	if planned.Status != sprint.StatusPlanned {
		t.Fatalf("expected planned sprint, got %s", planned.Status)
	}

	expectStatus(t, env.do(t, http.MethodPost, "/sprints/"+planned.ID+"/items", map[string]any{"item_ids": []string{story.ID}}), http.StatusConflict)

	w = env.do(t, http.MethodPost, "/sprints/"+planned.ID+"/activate", map[string]any{"item_ids": []string{story.ID}})
	expectStatus(t, w, http.StatusOK)
	if got := decode[sprint.Sprint](t, w); got.Status != sprint.StatusActive || got.CommittedStoryPoints != 8 {
		t.Fatalf("unexpected activated sprint: %+v", got)
	}

	w = env.do(t, http.MethodDelete, "/sprints/"+planned.ID+"/items", map[string]any{"item_ids": []string{story.ID}})
	expectStatus(t, w, http.StatusNoContent)
	it, _ := env.store.GetItem(context.Background(), story.ID)
	if it.SprintID != "" {
		t.Fatalf("item should be back in the backlog, sprint %q", it.SprintID)
	}

	w = env.do(t, http.MethodPost, "/sprints/"+planned.ID+"/cancel", nil)
	expectStatus(t, w, http.StatusOK)
	if got := decode[sprint.Sprint](t, w); got.Status != sprint.StatusCancelled {
		t.Fatalf("expected cancelled sprint, got %s", got.Status)
	}

	w = env.do(t, http.MethodGet, "/projects/acme/sprints?status=cancelled", nil)
	expectStatus(t, w, http.StatusOK)
	if list := decode[[]sprint.Sprint](t, w); len(list) != 1 {
		t.Fatalf("expected one cancelled sprint, got %d", len(list))
	}
}

func TestRisksRankedAndLegacyStatus(t *testing.T) {
	env := setupTestServer(t, nil)

	w := env.do(t, http.MethodPost, "/projects/acme/risks", map[string]any{
		"title": "Vendor delay", "probability": 75, "impact": "medium",
	})
	expectStatus(t, w, http.StatusCreated)
	vendor := decode[map[string]any](t, w)
	if vendor["score"].(float64) != 2.25 {
		t.Fatalf("unexpected score: %v", vendor["score"])
	}

	w = env.do(t, http.MethodPost, "/projects/acme/risks", map[string]any{
		"title": "Data loss", "probability": 50, "impact": "very_high",
	})
	expectStatus(t, w, http.StatusCreated)
	dataLoss := decode[map[string]any](t, w)

	w = env.do(t, http.MethodGet, "/projects/acme/risks", nil)
	expectStatus(t, w, http.StatusOK)
	list := decode[[]map[string]any](t, w)
	if len(list) != 2 || list[0]["id"] != dataLoss["id"] {
		t.Fatalf("expected highest score first, got %v", list)
	}
	if list[0]["severity"] != "critical" {
		t.Fatalf("unexpected severity %v", list[0]["severity"])
	}

	id := vendor["id"].(string)
	w = env.do(t, http.MethodPatch, "/risks/"+id, map[string]any{"status": "mitigated"})
	expectStatus(t, w, http.StatusOK)
	if got := decode[map[string]any](t, w); got["status"] != "monitored" {
		t.Fatalf("legacy status should normalise to monitored, got %v", got["status"])
	}

	w = env.do(t, http.MethodPatch, "/risks/"+id, map[string]any{"probability": 150})
	expectStatus(t, w, http.StatusBadRequest)

	expectStatus(t, env.do(t, http.MethodDelete, "/risks/"+id, nil), http.StatusNoContent)
	expectStatus(t, env.do(t, http.MethodGet, "/risks/"+id, nil), http.StatusNotFound)
}
