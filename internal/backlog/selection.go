package backlog

import "sort"

// Selection is a set of item ids picked for sprint planning.
type Selection map[string]struct{}

// NewSelection builds a selection from ids.
func NewSelection(ids ...string) Selection {
	s := make(Selection, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id is selected.
func (s Selection) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// IDs returns the selected ids sorted.
func (s Selection) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s Selection) clone() Selection {
	out := make(Selection, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// ToggleSelection flips id in current and cascades the change to every
// transitive descendant of id. Selecting adds the whole subtree; deselecting
// removes it. current is not modified.
func ToggleSelection(id string, current Selection, items []Item) Selection {
	next := current.clone()
	subtree := append([]string{id}, Descendants(id, items)...)

	if current.Has(id) {
		for _, sid := range subtree {
			delete(next, sid)
		}
		return next
	}
	for _, sid := range subtree {
		next[sid] = struct{}{}
	}
	return next
}

// SelectedStoryPoints sums the story points of selected user stories. Other
// item types never contribute.
func SelectedStoryPoints(selection Selection, items []Item) int {
	total := 0
	for _, it := range items {
		if selection.Has(it.ID) {
			total += it.Points()
		}
	}
	return total
}
