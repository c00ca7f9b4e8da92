package backlog

import (
	"sort"
	"strings"
)

// Forest is the backlog arranged as ordered trees. It is rebuilt per query
// from a flat item set; nodes hold copies, never live back-references.
type Forest struct {
	Roots            []Item
	ChildrenByParent map[string][]Item
}

// BuildForest partitions items into roots and children.
//
// Roots sort with done items last and ascending BacklogOrder within each
// bucket. Children sort by ascending BacklogOrder only. Ties break on ID.
// A dangling parent reference counts as no parent, and items stuck in a
// parent cycle are promoted to roots so they remain visible.
func BuildForest(items []Item) Forest {
	byID := Index(items)
	f := Forest{
		Roots:            make([]Item, 0, len(items)),
		ChildrenByParent: make(map[string][]Item),
	}

	for _, it := range items {
		if _, ok := ResolveParent(it, byID); !ok {
			f.Roots = append(f.Roots, it)
			continue
		}
		pid := strings.TrimSpace(it.ParentID)
		f.ChildrenByParent[pid] = append(f.ChildrenByParent[pid], it)
	}

	reached := f.reachable()
	if len(reached) < len(items) {
		for _, it := range items {
			if _, ok := reached[it.ID]; ok {
				continue
			}
			f.Roots = append(f.Roots, it)
			f.removeChild(it)
			reached[it.ID] = struct{}{}
			// descendants of a promoted item become reachable through it
			for id := range f.descendantIDs(it.ID) {
				reached[id] = struct{}{}
			}
		}
	}

	sortRoots(f.Roots)
	for pid := range f.ChildrenByParent {
		sortByOrder(f.ChildrenByParent[pid])
	}
	return f
}

// Children returns the ordered children of id.
func (f Forest) Children(id string) []Item {
	return f.ChildrenByParent[id]
}

// Node is an item with its depth in the flattened display order.
type Node struct {
	Item  Item `json:"item"`
	Depth int  `json:"depth"`
}

// Flatten returns the forest in depth-first display order.
func (f Forest) Flatten() []Node {
	out := make([]Node, 0, len(f.Roots))
	visited := make(map[string]struct{})
	var walk func(it Item, depth int)
	walk = func(it Item, depth int) {
		if _, seen := visited[it.ID]; seen {
			return
		}
		visited[it.ID] = struct{}{}
		out = append(out, Node{Item: it, Depth: depth})
		for _, child := range f.ChildrenByParent[it.ID] {
			walk(child, depth+1)
		}
	}
	for _, root := range f.Roots {
		walk(root, 0)
	}
	return out
}

func (f Forest) reachable() map[string]struct{} {
	reached := make(map[string]struct{})
	for _, root := range f.Roots {
		reached[root.ID] = struct{}{}
		for id := range f.descendantIDs(root.ID) {
			reached[id] = struct{}{}
		}
	}
	return reached
}

// descendantIDs collects the transitive children of id, guarded against
// revisits.
func (f Forest) descendantIDs(id string) map[string]struct{} {
	out := make(map[string]struct{})
	stack := []string{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, child := range f.ChildrenByParent[cur] {
			if child.ID == id {
				continue
			}
			if _, seen := out[child.ID]; seen {
				continue
			}
			out[child.ID] = struct{}{}
			stack = append(stack, child.ID)
		}
	}
	return out
}

func (f *Forest) removeChild(it Item) {
	pid := strings.TrimSpace(it.ParentID)
	siblings := f.ChildrenByParent[pid]
	for i := range siblings {
		if siblings[i].ID == it.ID {
			f.ChildrenByParent[pid] = append(siblings[:i:i], siblings[i+1:]...)
			break
		}
	}
	if len(f.ChildrenByParent[pid]) == 0 {
		delete(f.ChildrenByParent, pid)
	}
}

func sortRoots(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		iDone := items[i].IsDone()
		jDone := items[j].IsDone()
		if iDone != jDone {
			return !iDone
		}
		if items[i].BacklogOrder != items[j].BacklogOrder {
			return items[i].BacklogOrder < items[j].BacklogOrder
		}
		return items[i].ID < items[j].ID
	})
}

func sortByOrder(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].BacklogOrder != items[j].BacklogOrder {
			return items[i].BacklogOrder < items[j].BacklogOrder
		}
		return items[i].ID < items[j].ID
	})
}

// Descendants returns the transitive children of id within items, in no
// particular order. Revisited ids end the walk along that branch.
func Descendants(id string, items []Item) []string {
	children := make(map[string][]string)
	for _, it := range items {
		pid := strings.TrimSpace(it.ParentID)
		if pid == "" || pid == it.ID {
			continue
		}
		children[pid] = append(children[pid], it.ID)
	}

	visited := map[string]struct{}{id: {}}
	var out []string
	stack := []string{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, child := range children[cur] {
			if _, seen := visited[child]; seen {
				continue
			}
			visited[child] = struct{}{}
			out = append(out, child)
			stack = append(stack, child)
		}
	}
	sort.Strings(out)
	return out
}

// DisplayOrder returns items in the order Flatten shows them.
func DisplayOrder(items []Item) []Item {
	nodes := BuildForest(items).Flatten()
	out := make([]Item, len(nodes))
	for i, n := range nodes {
		out[i] = n.Item
	}
	return out
}
