// Package audit holds the append-only transition history of a document.
package audit

import (
	"fmt"
	"time"
)

// Kind is the closed set of verbs an entry can record. The human readable
// Action label is derived from it and never parsed back.
type Kind string

const (
	KindCreated          Kind = "created"
	KindForwarded        Kind = "forwarded"
	KindReceived         Kind = "received"
	KindReceivedReturned Kind = "received_returned"
	KindReturned         Kind = "returned"
	KindRemarksUpdated   Kind = "remarks_updated"
	KindCompleted        Kind = "completed"
	KindArchived         Kind = "archived"
)

// Entry is one immutable historical fact about a document.
type Entry struct {
	ID               string    `json:"id" bson:"id"`
	DocumentID       string    `json:"documentId" bson:"documentId"`
	Timestamp        time.Time `json:"timestamp" bson:"timestamp"`
	Kind             Kind      `json:"kind" bson:"kind"`
	Action           string    `json:"action" bson:"action"`
	ActingDepartment string    `json:"actingDepartment" bson:"actingDepartment"`
	ActingUserName   string    `json:"actingUserName" bson:"actingUserName"`
	ResultingStatus  string    `json:"resultingStatus" bson:"resultingStatus"`
	Remarks          string    `json:"remarks,omitempty" bson:"remarks,omitempty"`
}

// Label renders the display action for a kind. target is the department
// named by Forwarded and Returned entries and ignored otherwise.
func Label(k Kind, target string) string {
	switch k {
	case KindCreated:
		return "Document Created"
	case KindForwarded:
		return fmt.Sprintf("Forwarded to %s", target)
	case KindReceived:
		return "Received Document"
	case KindReceivedReturned:
		return "Received (Returned)"
	case KindReturned:
		return fmt.Sprintf("Returned to %s", target)
	case KindRemarksUpdated:
		return "Remarks Updated"
	case KindCompleted:
		return "Process Completed"
	case KindArchived:
		return "Document Archived"
	}
	return string(k)
}

// Valid reports whether k belongs to the closed verb set.
func (k Kind) Valid() bool {
	switch k {
	case KindCreated, KindForwarded, KindReceived, KindReceivedReturned,
		KindReturned, KindRemarksUpdated, KindCompleted, KindArchived:
		return true
	}
	return false
}
