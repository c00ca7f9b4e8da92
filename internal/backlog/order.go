package backlog

import (
	"sort"

	"github.com/antigravity-dev/tracker/internal/apperr"
)

// Reorder moves the item at from to position to and renumbers BacklogOrder
// to 0..n-1 in the resulting sequence. Moving an item onto its own position
// returns the list unchanged.
func Reorder(items []Item, from, to int) ([]Item, error) {
	if err := checkMove(len(items), from, to); err != nil {
		return nil, err
	}
	out := cloneItems(items)
	if from == to {
		return out, nil
	}

	out = move(out, from, to)
	for i := range out {
		out[i].BacklogOrder = i
	}
	return out, nil
}

// ReorderVisible moves an item within a filtered view. The order slots
// already held by the visible items are redistributed in the new sequence,
// so items hidden by the filter keep their place relative to each other.
func ReorderVisible(visible []Item, from, to int) ([]Item, error) {
	if err := checkMove(len(visible), from, to); err != nil {
		return nil, err
	}
	out := cloneItems(visible)
	if from == to {
		return out, nil
	}

	slots := make([]int, len(out))
	for i := range out {
		slots[i] = out[i].BacklogOrder
	}
	sort.Ints(slots)

	out = move(out, from, to)
	for i := range out {
		out[i].BacklogOrder = slots[i]
	}
	return out, nil
}

// OrderChanges returns the backlog_order patches needed to go from before to
// after. Items whose order did not change are skipped.
func OrderChanges(before, after []Item) []Update {
	prev := make(map[string]int, len(before))
	for _, it := range before {
		prev[it.ID] = it.BacklogOrder
	}

	var updates []Update
	for _, it := range after {
		if old, ok := prev[it.ID]; ok && old == it.BacklogOrder {
			continue
		}
		updates = append(updates, Update{
			ID:     it.ID,
			Fields: map[string]any{FieldBacklogOrder: it.BacklogOrder},
		})
	}
	return updates
}

func checkMove(n, from, to int) error {
	if from < 0 || from >= n {
		return apperr.Validation("from index %d out of range [0,%d)", from, n)
	}
	if to < 0 || to >= n {
		return apperr.Validation("to index %d out of range [0,%d)", to, n)
	}
	return nil
}

func move(items []Item, from, to int) []Item {
	moved := items[from]
	items = append(items[:from], items[from+1:]...)
	items = append(items, Item{})
	copy(items[to+1:], items[to:])
	items[to] = moved
	return items
}

func cloneItems(items []Item) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	return out
}
