// Package relation reconciles the tags attached to an entity: it diffs the
// selection being edited against the last known server state and applies the
// minimal set of edge operations.
package relation

import "sort"

// Selection maps a tag id to the value stored on its edge. Tags without a value
// map to "".
type Selection map[int64]string

// Clone returns a copy of s.
func (s Selection) Clone() Selection {
	out := make(Selection, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Edge is one (tag, value) association of an entity.
type Edge struct {
	TagID int64  `json:"tag_id"`
	Value string `json:"value,omitempty"`
}

// ValueChange is a new value for an edge that already exists.
type ValueChange struct {
	TagID int64  `json:"tag_id"`
	From  string `json:"from"`
	To    string `json:"to"`
}

// Changes is the minimal set of edge operations turning one selection into
// another. Every list is ordered by tag id.
type Changes struct {
	Add    []Edge        `json:"add"`
	Remove []Edge        `json:"remove"`
	Update []ValueChange `json:"update"`
}

// Empty reports whether there is nothing to apply.
func (c Changes) Empty() bool {
	return len(c.Add) == 0 && len(c.Remove) == 0 && len(c.Update) == 0
}

// Len returns the number of edge operations.
func (c Changes) Len() int {
	return len(c.Add) + len(c.Remove) + len(c.Update)
}

// Diff compares selections by tag id. A tag present in both with a different
// value is a value change, never a remove and an add.
func Diff(initial, desired Selection) Changes {
	var ch Changes
	for tagID, value := range desired {
		old, ok := initial[tagID]
		switch {
		case !ok:
			ch.Add = append(ch.Add, Edge{TagID: tagID, Value: value})
		case old != value:
			ch.Update = append(ch.Update, ValueChange{TagID: tagID, From: old, To: value})
		}
	}
	for tagID, value := range initial {
		if _, ok := desired[tagID]; !ok {
			ch.Remove = append(ch.Remove, Edge{TagID: tagID, Value: value})
		}
	}

	sort.Slice(ch.Add, func(i, j int) bool { return ch.Add[i].TagID < ch.Add[j].TagID })
	sort.Slice(ch.Remove, func(i, j int) bool { return ch.Remove[i].TagID < ch.Remove[j].TagID })
	sort.Slice(ch.Update, func(i, j int) bool { return ch.Update[i].TagID < ch.Update[j].TagID })
	return ch
}

// Apply returns s with ch applied.
func (s Selection) Apply(ch Changes) Selection {
	out := s.Clone()
	for _, e := range ch.Add {
		out[e.TagID] = e.Value
	}
	for _, e := range ch.Remove {
		delete(out, e.TagID)
	}
	for _, u := range ch.Update {
		out[u.TagID] = u.To
	}
	return out
}
