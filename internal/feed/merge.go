package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/doctrack/doctrack/internal/audit"
	"github.com/doctrack/doctrack/internal/document"
	"github.com/doctrack/doctrack/pkg/metrics"
)

// newer reports whether a should win over b under last-write-wins. The
// order is (updatedAt, log length, status, remarks), then the encoded
// scalar fields, so it is total and merging is commutative.
func newer(a, b *document.Document) bool {
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	if len(a.Log) != len(b.Log) {
		return len(a.Log) > len(b.Log)
	}
	if a.Status != b.Status {
		return a.Status > b.Status
	}
	if a.Remarks != b.Remarks {
		return a.Remarks > b.Remarks
	}
	return bytes.Compare(scalars(a), scalars(b)) > 0
}

// scalars encodes d without its log. Snapshots that encode equally are
// interchangeable as merge winners.
func scalars(d *document.Document) []byte {
	c := *d
	c.Log = nil
	b, err := json.Marshal(&c)
	if err != nil {
		return nil
	}
	return b
}

// MergeDocument reconciles two snapshots of the same document. Scalar
// fields come from the newer snapshot and the audit trails are unioned by
// entry id. Merge is idempotent and commutative, so duplicate or
// reordered deliveries converge to the same result.
func MergeDocument(local, remote *document.Document) *document.Document {
	switch {
	case local == nil:
		return remote.Clone()
	case remote == nil:
		return local.Clone()
	}
	winner := local
	if newer(remote, local) {
		winner = remote
	}
	out := winner.Clone()
	out.Log = local.Log.Merge(remote.Log)
	return out
}

// View is a client's local copy of the documents it has seen. Local
// transitions are applied optimistically with Upsert; feed events are
// folded in with Apply.
type View struct {
	mu      sync.RWMutex
	docs    map[string]*document.Document
	pending map[string]audit.Log
	deleted map[string]struct{}
}

func NewView() *View {
	return &View{
		docs:    map[string]*document.Document{},
		pending: map[string]audit.Log{},
		deleted: map[string]struct{}{},
	}
}

// Upsert merges a snapshot into the view.
func (v *View) Upsert(d *document.Document) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.upsert(d)
}

func (v *View) upsert(d *document.Document) {
	if _, gone := v.deleted[d.ID]; gone {
		return
	}
	merged := MergeDocument(v.docs[d.ID], d)
	if p, ok := v.pending[d.ID]; ok {
		merged.Log = merged.Log.Merge(p)
		delete(v.pending, d.ID)
	}
	v.docs[d.ID] = merged
}

// Apply folds a change-feed event into the view. Replaying an event is a
// no-op; log entries that arrive before their document are held until it
// shows up; deletes are final.
func (v *View) Apply(ev Event) error {
	metrics.FeedEvents.WithLabelValues(string(ev.Table), string(ev.Type)).Inc()
	v.mu.Lock()
	defer v.mu.Unlock()
	switch ev.Table {
	case TableDocuments:
		d, err := ev.Document()
		if err != nil {
			return err
		}
		if ev.Type == EventDelete {
			delete(v.docs, d.ID)
			delete(v.pending, d.ID)
			v.deleted[d.ID] = struct{}{}
			return nil
		}
		v.upsert(d)
	case TableLogs:
		e, err := ev.Entry()
		if err != nil {
			return err
		}
		if _, gone := v.deleted[e.DocumentID]; gone {
			return nil
		}
		if d, ok := v.docs[e.DocumentID]; ok {
			if !d.Log.Contains(e.ID) {
				c := d.Clone()
				c.Log = c.Log.Merge(audit.Log{e})
				v.docs[e.DocumentID] = c
			}
			return nil
		}
		v.pending[e.DocumentID] = v.pending[e.DocumentID].Merge(audit.Log{e})
	default:
		return fmt.Errorf("unknown feed table %q", ev.Table)
	}
	return nil
}

// Get returns a copy of the document with id.
func (v *View) Get(id string) (*document.Document, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	d, ok := v.docs[id]
	return d.Clone(), ok
}

// List returns copies of every document in the view.
func (v *View) List() []*document.Document {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]*document.Document, 0, len(v.docs))
	for _, d := range v.docs {
		out = append(out, d.Clone())
	}
	return out
}

func (v *View) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.docs)
}
