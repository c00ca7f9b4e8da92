package backlog

import (
	"strings"

	"github.com/antigravity-dev/tracker/internal/apperr"
)

// ValidParent reports whether an item of childType may sit under an item of
// parentType. An empty parentType means "no parent", which every type allows.
func ValidParent(childType, parentType ItemType) bool {
	if parentType == "" {
		return ValidType(childType)
	}
	switch childType {
	case TypeUserStory:
		return parentType == TypeEpic
	case TypeTask:
		return parentType == TypeUserStory
	default:
		// epics, bugs and spikes are never nested
		return false
	}
}

// ResolveParent returns the parent of it within byID. A dangling or empty
// parent reference resolves to no parent.
func ResolveParent(it Item, byID map[string]Item) (Item, bool) {
	pid := strings.TrimSpace(it.ParentID)
	if pid == "" || pid == it.ID {
		return Item{}, false
	}
	parent, ok := byID[pid]
	return parent, ok
}

// ValidateParent checks that child's parent exists, that the type pairing is
// allowed and that linking would not create a cycle.
func ValidateParent(child Item, items []Item) error {
	pid := strings.TrimSpace(child.ParentID)
	if pid == "" {
		return nil
	}
	if pid == child.ID {
		return apperr.Validation("item %q cannot be its own parent", child.ID)
	}

	byID := Index(items)
	parent, ok := byID[pid]
	if !ok {
		return apperr.Validation("parent %q does not exist", pid)
	}
	if !ValidParent(child.Type, parent.Type) {
		return apperr.Validation("a %s cannot be placed under a %s", child.Type, parent.Type)
	}
	if child.ID != "" && isAncestor(child.ID, parent, byID) {
		return apperr.Validation("parent %q would create a cycle", pid)
	}
	return nil
}

// Ancestors returns the parent chain of it, nearest first. The walk stops at
// the first missing parent or at a revisited id.
func Ancestors(it Item, byID map[string]Item) []Item {
	var chain []Item
	visited := map[string]struct{}{it.ID: {}}
	cur := it
	for {
		parent, ok := ResolveParent(cur, byID)
		if !ok {
			return chain
		}
		if _, seen := visited[parent.ID]; seen {
			return chain
		}
		visited[parent.ID] = struct{}{}
		chain = append(chain, parent)
		cur = parent
	}
}

func isAncestor(id string, start Item, byID map[string]Item) bool {
	if start.ID == id {
		return true
	}
	for _, a := range Ancestors(start, byID) {
		if a.ID == id {
			return true
		}
	}
	return false
}

// ChangeType applies a type change to it and returns the patch fields to
// persist. The current parent is kept when it is still a valid parent for
// the new type and cleared otherwise.
func ChangeType(it Item, newType ItemType, items []Item) (Item, map[string]any, error) {
	if !ValidType(newType) {
		return it, nil, apperr.Validation("unknown item type %q", newType)
	}
	fields := map[string]any{}
	if it.Type == newType {
		return it, fields, nil
	}

	it.Type = newType
	fields[FieldType] = string(newType)

	if it.ParentID != "" {
		parent, ok := ResolveParent(it, Index(items))
		if !ok || !ValidParent(newType, parent.Type) {
			it.ParentID = ""
			fields[FieldParentID] = ""
		}
	}
	return it, fields, nil
}

// DetachInvalidChildren returns parent_id patches for the direct children of
// parent that may not sit under parent's current type. Use it after a type
// change so the hierarchy stays valid.
func DetachInvalidChildren(parent Item, items []Item) []Update {
	if parent.ID == "" {
		return nil
	}
	var updates []Update
	for _, it := range items {
		if it.ID == parent.ID || strings.TrimSpace(it.ParentID) != parent.ID {
			continue
		}
		if ValidParent(it.Type, parent.Type) {
			continue
		}
		updates = append(updates, Update{
			ID:     it.ID,
			Fields: map[string]any{FieldParentID: ""},
		})
	}
	return updates
}
