package document

import (
	"strings"
	"time"

	"github.com/doctrack/doctrack/internal/audit"
	"github.com/doctrack/doctrack/internal/models"
	"github.com/google/uuid"
)

// Machine applies lifecycle transitions to document snapshots. Every
// method returns a new snapshot and leaves its input untouched; on a
// failed guard it returns a *TransitionError and a nil snapshot.
type Machine struct {
	now   func() time.Time
	newID func() string
}

// NewMachine returns a Machine stamping entries with the wall clock and
// uuid identifiers.
func NewMachine() *Machine {
	return &Machine{now: time.Now, newID: uuid.NewString}
}

// NewMachineWith allows tests to pin the clock and id generator.
func NewMachineWith(now func() time.Time, newID func() string) *Machine {
	return &Machine{now: now, newID: newID}
}

// stamp returns a millisecond timestamp strictly after every entry already
// in d's log, so the newest entry is always unambiguous after a store
// round trip.
func (m *Machine) stamp(d *Document) time.Time {
	ts := m.now().UTC().Truncate(time.Millisecond)
	if last, ok := d.Log.Last(); ok && !ts.After(last.Timestamp) {
		ts = last.Timestamp.Add(time.Millisecond)
	}
	return ts
}

func (m *Machine) entry(d *Document, ts time.Time, k audit.Kind, target string, actor models.Principal, remarks string) audit.Entry {
	return audit.Entry{
		ID:               m.newID(),
		DocumentID:       d.ID,
		Timestamp:        ts,
		Kind:             k,
		Action:           audit.Label(k, target),
		ActingDepartment: actor.Department,
		ActingUserName:   actor.DisplayName,
		ResultingStatus:  string(d.Status),
		Remarks:          remarks,
	}
}

// next clones d, applies mutate and appends one entry of kind k.
func (m *Machine) next(d *Document, k audit.Kind, target string, actor models.Principal, remarks string, mutate func(*Document)) (*Document, []audit.Entry) {
	out := d.Clone()
	ts := m.stamp(d)
	mutate(out)
	out.UpdatedAt = ts
	e := m.entry(out, ts, k, target, actor, remarks)
	out.Log = out.Log.Append(e)
	return out, []audit.Entry{e}
}

// Create builds a new Incoming document assigned to the recipient. ref is
// the already allocated reference number. Two entries are produced: the
// creation (Outgoing) and the initial handoff (Incoming).
func (m *Machine) Create(in CreateInput, actor models.Principal, ref string) (*Document, []audit.Entry, error) {
	if r := CanCreate(in, actor); !r.Allowed {
		return nil, nil, reject("create", r)
	}
	classification := in.Classification
	if classification == "" {
		classification = ClassSimple
	}
	urgency := in.Urgency
	if urgency == "" {
		urgency = UrgencyRegular
	}
	recipient := strings.TrimSpace(in.Recipient)
	now := m.now().UTC().Truncate(time.Millisecond)
	d := &Document{
		ID:               m.newID(),
		ReferenceNumber:  ref,
		Title:            strings.TrimSpace(in.Title),
		Description:      in.Description,
		Remarks:          in.Remarks,
		Classification:   classification,
		Urgency:          urgency,
		Status:           StatusOutgoing,
		CreatedBy:        actor.ID,
		OriginDepartment: actor.Department,
		CreatedAt:        now,
	}
	created := m.entry(d, now, audit.KindCreated, "", actor, in.Remarks)

	d.Status = StatusIncoming
	d.AssignedTo = recipient
	d.UpdatedAt = now.Add(time.Millisecond)
	forwarded := m.entry(d, d.UpdatedAt, audit.KindForwarded, recipient, actor, in.Remarks)

	d.Log = audit.Log{created, forwarded}
	return d, d.Log.Append(), nil
}

// Receive acknowledges an Incoming document. A document that came back by
// return becomes Returned, anything else goes to Processing.
func (m *Machine) Receive(d *Document, actor models.Principal) (*Document, []audit.Entry, error) {
	if r := CanReceive(d); !r.Allowed {
		return nil, nil, reject("receive", r)
	}
	kind, status := audit.KindReceived, StatusProcessing
	if d.ArrivedByReturn() {
		kind, status = audit.KindReceivedReturned, StatusReturned
	}
	out, entries := m.next(d, kind, "", actor, "", func(n *Document) {
		n.Status = status
		n.ReturnPending = false
	})
	return out, entries, nil
}

// Forward hands a Processing document to another department.
func (m *Machine) Forward(d *Document, actor models.Principal, destination, remarks string) (*Document, []audit.Entry, error) {
	if r := CanForward(d, destination); !r.Allowed {
		return nil, nil, reject("forward", r)
	}
	destination = strings.TrimSpace(destination)
	out, entries := m.next(d, audit.KindForwarded, destination, actor, remarks, func(n *Document) {
		n.AssignedTo = destination
		n.Status = StatusIncoming
		n.ReturnPending = false
	})
	return out, entries, nil
}

// Return sends a Processing document back to the creator's current
// department with reason as the new document remarks. An empty originDept
// falls back to FallbackOrigin.
func (m *Machine) Return(d *Document, actor models.Principal, originDept, reason string) (*Document, []audit.Entry, error) {
	if r := CanReturn(d); !r.Allowed {
		return nil, nil, reject("return", r)
	}
	if strings.TrimSpace(originDept) == "" {
		originDept = FallbackOrigin
	}
	out, entries := m.next(d, audit.KindReturned, originDept, actor, reason, func(n *Document) {
		n.AssignedTo = originDept
		n.Status = StatusIncoming
		n.Remarks = reason
		n.ReturnPending = true
	})
	return out, entries, nil
}

// MarkDone completes a Processing document.
func (m *Machine) MarkDone(d *Document, actor models.Principal, remarks string) (*Document, []audit.Entry, error) {
	if r := CanMarkDone(d); !r.Allowed {
		return nil, nil, reject("complete", r)
	}
	out, entries := m.next(d, audit.KindCompleted, "", actor, remarks, func(n *Document) {
		n.Status = StatusCompleted
	})
	return out, entries, nil
}

// Archive moves a Completed document to the terminal Archived state.
// creatorDept is the creator's department as resolved now, not at creation.
func (m *Machine) Archive(d *Document, actor models.Principal, creatorDept string) (*Document, []audit.Entry, error) {
	if r := CanArchive(d, actor, creatorDept); !r.Allowed {
		return nil, nil, reject("archive", r)
	}
	out, entries := m.next(d, audit.KindArchived, "", actor, "", func(n *Document) {
		n.Status = StatusArchived
	})
	return out, entries, nil
}

// UpdateRemarks replaces the document remarks in any status.
func (m *Machine) UpdateRemarks(d *Document, actor models.Principal, remarks string) (*Document, []audit.Entry, error) {
	out, entries := m.next(d, audit.KindRemarksUpdated, "", actor, remarks, func(n *Document) {
		n.Remarks = remarks
	})
	return out, entries, nil
}
