package document

import (
	"fmt"
	"strings"

	"github.com/doctrack/doctrack/internal/models"
)

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Reason  string
}

var allowed = GuardResult{Allowed: true}

func denied(format string, args ...interface{}) GuardResult {
	return GuardResult{Allowed: false, Reason: fmt.Sprintf(format, args...)}
}

// CreateInput is the intent submitted by the creating actor.
type CreateInput struct {
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Remarks        string         `json:"remarks"`
	Recipient      string         `json:"recipient"`
	Classification Classification `json:"classification"`
	Urgency        Urgency        `json:"communicationUrgency"`
}

// CanCreate evaluates whether a document can be created.
// Rules:
// - title and description are required
// - a recipient department is required and must differ from the actor's
// - classification and urgency, when given, must be known values
func CanCreate(in CreateInput, actor models.Principal) GuardResult {
	if strings.TrimSpace(in.Title) == "" {
		return denied("title is required")
	}
	if strings.TrimSpace(in.Description) == "" {
		return denied("description is required")
	}
	if strings.TrimSpace(in.Recipient) == "" {
		return denied("recipient department is required")
	}
	if strings.EqualFold(strings.TrimSpace(in.Recipient), strings.TrimSpace(actor.Department)) {
		return denied("recipient %s is the origin department", in.Recipient)
	}
	if in.Classification != "" && !in.Classification.Valid() {
		return denied("unknown classification %q", in.Classification)
	}
	if in.Urgency != "" && !in.Urgency.Valid() {
		return denied("unknown urgency %q", in.Urgency)
	}
	return allowed
}

func requireStatus(d *Document, want Status) GuardResult {
	if d.Status != want {
		return denied("document %s is %s, want %s", d.ID, d.Status, want)
	}
	return allowed
}

// CanReceive: document must be Incoming.
func CanReceive(d *Document) GuardResult {
	return requireStatus(d, StatusIncoming)
}

// CanForward: document must be Processing and a destination chosen.
func CanForward(d *Document, destination string) GuardResult {
	if r := requireStatus(d, StatusProcessing); !r.Allowed {
		return r
	}
	if strings.TrimSpace(destination) == "" {
		return denied("destination department is required")
	}
	return allowed
}

// CanReturn: document must be Processing.
func CanReturn(d *Document) GuardResult {
	return requireStatus(d, StatusProcessing)
}

// CanMarkDone: document must be Processing.
func CanMarkDone(d *Document) GuardResult {
	return requireStatus(d, StatusProcessing)
}

// CanArchive evaluates archive permission.
// Rules:
// - document must be Completed
// - actor is admin, or belongs to the creator's current department
func CanArchive(d *Document, actor models.Principal, creatorDept string) GuardResult {
	if r := requireStatus(d, StatusCompleted); !r.Allowed {
		return r
	}
	if actor.IsAdmin() {
		return allowed
	}
	if creatorDept == "" || !strings.EqualFold(actor.Department, creatorDept) {
		return denied("only the originating department or an admin can archive %s", d.ID)
	}
	return allowed
}
