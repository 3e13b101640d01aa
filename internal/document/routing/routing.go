// Package routing decides which documents a viewer sees and in which tab.
// Everything is derived from the document snapshot and its audit trail;
// nothing here is stored.
package routing

import (
	"sort"
	"strings"

	"github.com/doctrack/doctrack/internal/audit"
	"github.com/doctrack/doctrack/internal/document"
	"github.com/doctrack/doctrack/internal/models"
)

// DepartmentResolver returns the current department of a user id.
type DepartmentResolver interface {
	DepartmentOf(userID string) (string, bool)
}

// ResolverFunc adapts a function to DepartmentResolver.
type ResolverFunc func(userID string) (string, bool)

func (f ResolverFunc) DepartmentOf(userID string) (string, bool) { return f(userID) }

// View names a listing.
type View string

const (
	ViewAll      View = "all"
	ViewIncoming View = "incoming"
	ViewOutgoing View = "outgoing"
	ViewArchive  View = "archive"
)

// ParseView maps a query value to a View, defaulting to ViewAll.
func ParseView(s string) View {
	switch View(strings.ToLower(strings.TrimSpace(s))) {
	case ViewIncoming:
		return ViewIncoming
	case ViewOutgoing:
		return ViewOutgoing
	case ViewArchive:
		return ViewArchive
	}
	return ViewAll
}

func sameDept(a, b string) bool {
	return a != "" && strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// Visible reports whether viewer may see d. Admins see everything; anyone
// else needs to be the creator, the current custodian (by id or
// department) or named in the audit trail. Checkpoints are never visible.
func Visible(d *document.Document, viewer models.Principal) bool {
	if d == nil || d.IsCheckpoint() {
		return false
	}
	if viewer.IsAdmin() {
		return true
	}
	if viewer.ID != "" && (d.CreatedBy == viewer.ID || d.AssignedTo == viewer.ID) {
		return true
	}
	if sameDept(d.AssignedTo, viewer.Department) {
		return true
	}
	return d.Log.HasActor(viewer.DisplayName)
}

// VisibleOriginOnly is the archive-view rule: the creator's current
// department must be the viewer's department.
func VisibleOriginOnly(d *document.Document, viewer models.Principal, res DepartmentResolver) bool {
	if d == nil || d.IsCheckpoint() {
		return false
	}
	if viewer.IsAdmin() {
		return true
	}
	dept, ok := res.DepartmentOf(d.CreatedBy)
	return ok && sameDept(dept, viewer.Department)
}

// IsIncoming: custodian is the viewer's department and the document still
// needs action there.
func IsIncoming(d *document.Document, viewer models.Principal) bool {
	if d == nil || d.IsCheckpoint() {
		return false
	}
	if !sameDept(d.AssignedTo, viewer.Department) {
		return false
	}
	return d.Status != document.StatusCompleted && d.Status != document.StatusReturned
}

// IsOutgoing: the viewer's department created or forwarded the document
// and no longer holds it.
func IsOutgoing(d *document.Document, viewer models.Principal, res DepartmentResolver) bool {
	if d == nil || d.IsCheckpoint() {
		return false
	}
	if sameDept(d.AssignedTo, viewer.Department) {
		return false
	}
	if sameDept(d.OriginDepartment, viewer.Department) {
		return true
	}
	if res != nil {
		if dept, ok := res.DepartmentOf(d.CreatedBy); ok && sameDept(dept, viewer.Department) {
			return true
		}
	}
	for _, e := range d.Log {
		if sameDept(e.ActingDepartment, viewer.Department) && e.Kind == audit.KindForwarded {
			return true
		}
	}
	return false
}

// Filter returns the documents of view for viewer, sorted.
func Filter(docs []*document.Document, viewer models.Principal, view View, res DepartmentResolver) []*document.Document {
	out := make([]*document.Document, 0, len(docs))
	for _, d := range docs {
		var keep bool
		switch view {
		case ViewIncoming:
			keep = Visible(d, viewer) && IsIncoming(d, viewer)
		case ViewOutgoing:
			keep = Visible(d, viewer) && IsOutgoing(d, viewer, res)
		case ViewArchive:
			keep = VisibleOriginOnly(d, viewer, res)
		default:
			keep = Visible(d, viewer)
		}
		if keep {
			out = append(out, d)
		}
	}
	Sort(out)
	return out
}

// Sort orders by urgency (Urgent first) then newest first. Documents
// without a creation time sort last. The sort is stable.
func Sort(docs []*document.Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		a, b := docs[i], docs[j]
		if ra, rb := a.Urgency.Rank(), b.Urgency.Rank(); ra != rb {
			return ra > rb
		}
		za, zb := a.CreatedAt.IsZero(), b.CreatedAt.IsZero()
		if za != zb {
			return zb
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
}
