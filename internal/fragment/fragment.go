// Package fragment holds the editable paragraphs of an open document. All
// operations return a new slice and leave their input untouched; an unknown
// id is a no-op rather than an error because ids never leave the session.
package fragment

// Fragment is one independently editable paragraph.
type Fragment struct {
	ID      int
	Value   string
	Pending bool
}

// Toggle flips the pending flag of the fragment with the given id.
func Toggle(fragments []Fragment, id int) []Fragment {
	return update(fragments, id, func(f *Fragment) { f.Pending = !f.Pending })
}

// SetPending sets the pending flag of the fragment with the given id.
func SetPending(fragments []Fragment, id int, pending bool) []Fragment {
	return update(fragments, id, func(f *Fragment) { f.Pending = pending })
}

// SetValue replaces the value of the fragment with the given id.
func SetValue(fragments []Fragment, id int, value string) []Fragment {
	return update(fragments, id, func(f *Fragment) { f.Value = value })
}

// InsertAfter adds an empty pending fragment right after afterID, or at the
// end when afterID is unknown. The new id is one past the largest of
// allIDs, which must cover every list sharing the id space.
func InsertAfter(fragments []Fragment, allIDs []int, afterID int) ([]Fragment, int) {
	id := maxID(allIDs) + 1
	created := Fragment{ID: id, Pending: true}
	result := make([]Fragment, 0, len(fragments)+1)
	inserted := false
	for _, f := range fragments {
		result = append(result, f)
		if !inserted && f.ID == afterID {
			result = append(result, created)
			inserted = true
		}
	}
	if !inserted {
		result = append(result, created)
	}
	return result, id
}

// Delete removes the fragment with the given id. Removing the last fragment
// yields an empty list.
func Delete(fragments []Fragment, id int) []Fragment {
	result := make([]Fragment, 0, len(fragments))
	for _, f := range fragments {
		if f.ID == id {
			continue
		}
		result = append(result, f)
	}
	return result
}

// Find returns the fragment with the given id.
func Find(fragments []Fragment, id int) (Fragment, bool) {
	for _, f := range fragments {
		if f.ID == id {
			return f, true
		}
	}
	return Fragment{}, false
}

// IDs collects the ids of every fragment in the given lists.
func IDs(lists ...[]Fragment) []int {
	var ids []int
	for _, list := range lists {
		for _, f := range list {
			ids = append(ids, f.ID)
		}
	}
	return ids
}

// AnyPending reports whether any fragment in the given lists is pending.
func AnyPending(lists ...[]Fragment) bool {
	for _, list := range lists {
		for _, f := range list {
			if f.Pending {
				return true
			}
		}
	}
	return false
}

// Values returns the fragment values in order.
func Values(fragments []Fragment) []string {
	values := make([]string, 0, len(fragments))
	for _, f := range fragments {
		values = append(values, f.Value)
	}
	return values
}

func update(fragments []Fragment, id int, mutate func(*Fragment)) []Fragment {
	result := append([]Fragment(nil), fragments...)
	for i := range result {
		if result[i].ID == id {
			mutate(&result[i])
			break
		}
	}
	return result
}

func maxID(ids []int) int {
	highest := 0
	for _, id := range ids {
		if id > highest {
			highest = id
		}
	}
	return highest
}
