// Package feed carries document changes between the store and connected
// clients, and reconciles them into a local view.
package feed

import (
	"encoding/json"
	"fmt"

	"github.com/doctrack/doctrack/internal/audit"
	"github.com/doctrack/doctrack/internal/document"
)

type Table string

const (
	TableDocuments Table = "documents"
	TableLogs      Table = "document_logs"
)

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// Event is one change-feed message. Record holds a document.Document for
// the documents table and an audit.Entry for the logs table.
type Event struct {
	Table  Table           `json:"table"`
	Type   EventType       `json:"eventType"`
	Record json.RawMessage `json:"record"`
}

// DocumentEvent builds an event for a document snapshot.
func DocumentEvent(t EventType, d *document.Document) (Event, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return Event{}, fmt.Errorf("encode document: %w", err)
	}
	return Event{Table: TableDocuments, Type: t, Record: b}, nil
}

// EntryEvent builds an insert event for an audit entry.
func EntryEvent(e audit.Entry) (Event, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return Event{}, fmt.Errorf("encode entry: %w", err)
	}
	return Event{Table: TableLogs, Type: EventInsert, Record: b}, nil
}

func (e Event) Document() (*document.Document, error) {
	if e.Table != TableDocuments {
		return nil, fmt.Errorf("event table %s is not %s", e.Table, TableDocuments)
	}
	var d document.Document
	if err := json.Unmarshal(e.Record, &d); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return &d, nil
}

func (e Event) Entry() (audit.Entry, error) {
	if e.Table != TableLogs {
		return audit.Entry{}, fmt.Errorf("event table %s is not %s", e.Table, TableLogs)
	}
	var en audit.Entry
	if err := json.Unmarshal(e.Record, &en); err != nil {
		return audit.Entry{}, fmt.Errorf("decode entry: %w", err)
	}
	return en, nil
}
