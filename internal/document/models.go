package document

import (
	"time"

	"github.com/doctrack/doctrack/internal/audit"
)

// Status is the lifecycle state of a document.
type Status string

const (
	StatusIncoming   Status = "Incoming"
	StatusOutgoing   Status = "Outgoing"
	StatusProcessing Status = "Processing"
	StatusCompleted  Status = "Completed"
	StatusArchived   Status = "Archived"
	StatusReturned   Status = "Returned"
)

// Classification is advisory and editable.
type Classification string

const (
	ClassSimple          Classification = "Simple"
	ClassComplex         Classification = "Complex"
	ClassHighlyTechnical Classification = "HighlyTechnical"
)

func (c Classification) Valid() bool {
	return c == ClassSimple || c == ClassComplex || c == ClassHighlyTechnical
}

// Urgency only affects display ordering.
type Urgency string

const (
	UrgencyRegular  Urgency = "Regular"
	UrgencyPriority Urgency = "Priority"
	UrgencyUrgent   Urgency = "Urgent"
)

func (u Urgency) Valid() bool {
	return u == UrgencyRegular || u == UrgencyPriority || u == UrgencyUrgent
}

// Rank orders urgencies, higher is more urgent. Unknown values rank lowest.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyUrgent:
		return 2
	case UrgencyPriority:
		return 1
	}
	return 0
}

// CheckpointTitle marks a placeholder kept after a bulk purge so the
// reference series of its scope keeps counting. Never listed.
const CheckpointTitle = "__CHECKPOINT__"

// FallbackOrigin is the custodian used when a return cannot resolve the
// creator's current department.
const FallbackOrigin = "Origin"

// Document is one tracked transaction.
type Document struct {
	ID               string         `json:"id" bson:"_id"`
	ReferenceNumber  string         `json:"referenceNumber" bson:"referenceNumber"`
	Title            string         `json:"title" bson:"title"`
	Description      string         `json:"description" bson:"description"`
	Remarks          string         `json:"remarks" bson:"remarks"`
	Summary          string         `json:"summary,omitempty" bson:"summary,omitempty"`
	Classification   Classification `json:"classification" bson:"classification"`
	Urgency          Urgency        `json:"communicationUrgency" bson:"communicationUrgency"`
	Status           Status         `json:"status" bson:"status"`
	AssignedTo       string         `json:"assignedTo" bson:"assignedTo"`
	CreatedBy        string         `json:"createdBy" bson:"createdBy"`
	OriginDepartment string         `json:"originDepartment" bson:"originDepartment"`
	ReturnPending    bool           `json:"returnPending" bson:"returnPending"`
	CreatedAt        time.Time      `json:"createdAt" bson:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt" bson:"updatedAt"`
	Log              audit.Log      `json:"log" bson:"log"`
}

// IsCheckpoint reports whether d is a purge placeholder.
func (d *Document) IsCheckpoint() bool {
	return d != nil && d.Title == CheckpointTitle
}

// Clone returns a deep copy so transitions never alias the caller's log.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	c.Log = append(audit.Log(nil), d.Log...)
	return &c
}

// ArrivedByReturn reports whether the current Incoming state was caused by
// a return rather than a fresh forward.
func (d *Document) ArrivedByReturn() bool {
	if d.ReturnPending {
		return true
	}
	last, ok := d.Log.Last()
	return ok && d.Status == StatusIncoming && last.Kind == audit.KindReturned
}

// Consistent checks the audit invariant against the current status.
func (d *Document) Consistent() bool {
	return d.Log.Consistent(string(d.Status))
}
