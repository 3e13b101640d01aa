package audit

import "sort"

// Log is the ordered audit trail of a single document. Insertion order is
// kept as stored; callers that derive "last action" semantics must go
// through Sorted or Last, because entries written by different clients
// are only ordered by their own timestamps.
type Log []Entry

// Append returns a new log with e added at the end. The receiver is not
// modified, so snapshots sharing a backing array stay independent.
func (l Log) Append(e ...Entry) Log {
	out := make(Log, 0, len(l)+len(e))
	out = append(out, l...)
	return append(out, e...)
}

// Sorted returns a copy ordered by timestamp; entries with equal
// timestamps keep their relative insertion order.
func (l Log) Sorted() Log {
	out := make(Log, len(l))
	copy(out, l)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// Last returns the newest entry by timestamp.
func (l Log) Last() (Entry, bool) {
	if len(l) == 0 {
		return Entry{}, false
	}
	s := l.Sorted()
	return s[len(s)-1], true
}

// Contains reports whether an entry with the given id is present.
func (l Log) Contains(id string) bool {
	for _, e := range l {
		if e.ID == id {
			return true
		}
	}
	return false
}

// Merge unions two logs by entry id and returns them sorted by timestamp,
// ties broken by id. The result is the same regardless of argument order
// and merging a log with itself returns an equal log.
func (l Log) Merge(other Log) Log {
	seen := make(map[string]struct{}, len(l)+len(other))
	out := make(Log, 0, len(l)+len(other))
	for _, src := range []Log{l, other} {
		for _, e := range src {
			if _, ok := seen[e.ID]; ok {
				continue
			}
			seen[e.ID] = struct{}{}
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// HasActor reports whether name appears as the acting user of any entry.
func (l Log) HasActor(name string) bool {
	if name == "" {
		return false
	}
	for _, e := range l {
		if e.ActingUserName == name {
			return true
		}
	}
	return false
}

// ForwardedBy reports whether dept ever forwarded the document, including
// the initial handoff at creation.
func (l Log) ForwardedBy(dept string) bool {
	for _, e := range l {
		if e.Kind == KindForwarded && e.ActingDepartment == dept {
			return true
		}
	}
	return false
}

// Consistent checks the trail invariant: non-empty and the newest entry
// carries the document's current status.
func (l Log) Consistent(status string) bool {
	last, ok := l.Last()
	return ok && last.ResultingStatus == status
}
