// Package controlnumber allocates the human readable reference numbers
// assigned to documents at creation.
//
// Two layouts exist:
//
//	Standard: "{DEPT} {YY}{MM}{SSS}"   e.g. "IT 2501003"
//	Dispatch: "{DEPT}-{YY}-{MM}-{SSS}" e.g. "RICTMD-25-12-001"
//
// Everything before the series is the scope prefix. The series is the
// highest existing series under the same prefix plus one, so a new month
// starts again at 001.
package controlnumber

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Format selects the reference layout.
type Format int

const (
	Standard Format = iota
	Dispatch
)

func (f Format) String() string {
	if f == Dispatch {
		return "dispatch"
	}
	return "standard"
}

// Prefix returns the scope prefix for dept at time t. The department is
// used as stored, only surrounding whitespace is trimmed.
func Prefix(f Format, dept string, t time.Time) string {
	dept = strings.TrimSpace(dept)
	yy := t.Year() % 100
	mm := int(t.Month())
	if f == Dispatch {
		return fmt.Sprintf("%s-%02d-%02d-", dept, yy, mm)
	}
	return fmt.Sprintf("%s %02d%02d", dept, yy, mm)
}

// Compose joins a prefix and a series number, padding the series to three
// digits. Series above 999 are printed in full.
func Compose(prefix string, series int) string {
	return fmt.Sprintf("%s%03d", prefix, series)
}

// Series extracts the series of ref under prefix. ok is false when ref does
// not start with prefix or the remainder is not a plain base-10 number.
func Series(prefix, ref string) (int, bool) {
	if !strings.HasPrefix(ref, prefix) {
		return 0, false
	}
	rest := ref[len(prefix):]
	if rest == "" {
		return 0, false
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return n, true
}

// MaxSeries returns the highest series under prefix among refs, or 0 when
// none match.
func MaxSeries(prefix string, refs []string) int {
	max := 0
	for _, ref := range refs {
		if n, ok := Series(prefix, ref); ok && n > max {
			max = n
		}
	}
	return max
}

// Next computes the reference number that follows refs under prefix.
func Next(prefix string, refs []string) string {
	return Compose(prefix, MaxSeries(prefix, refs)+1)
}

// Collision is a reference number held by more than one document.
type Collision struct {
	ReferenceNumber string   `json:"referenceNumber"`
	DocumentIDs     []string `json:"documentIds"`
}

// FindCollisions scans docID -> reference pairs for duplicates. Results
// are ordered by reference number with document ids sorted.
func FindCollisions(refs map[string]string) []Collision {
	byRef := map[string][]string{}
	for id, ref := range refs {
		if ref == "" {
			continue
		}
		byRef[ref] = append(byRef[ref], id)
	}
	var out []Collision
	for ref, ids := range byRef {
		if len(ids) < 2 {
			continue
		}
		sort.Strings(ids)
		out = append(out, Collision{ReferenceNumber: ref, DocumentIDs: ids})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReferenceNumber < out[j].ReferenceNumber })
	return out
}
