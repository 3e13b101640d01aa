package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/doctrack/doctrack/internal/audit"
	"github.com/doctrack/doctrack/internal/document"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)

func entry(id, doc string, offset time.Duration, status document.Status) audit.Entry {
	return audit.Entry{ID: id, DocumentID: doc, Timestamp: t0.Add(offset), Kind: audit.KindReceived, ResultingStatus: string(status)}
}

func snapshot(status document.Status, updated time.Duration, log ...audit.Entry) *document.Document {
	return &document.Document{ID: "d1", ReferenceNumber: "A 2501001", Status: status, UpdatedAt: t0.Add(updated), Log: log}
}

func TestMergeDocumentProperties(t *testing.T) {
	e1 := entry("e1", "d1", 0, document.StatusOutgoing)
	e2 := entry("e2", "d1", time.Millisecond, document.StatusIncoming)
	e3 := entry("e3", "d1", time.Second, document.StatusProcessing)

	local := snapshot(document.StatusIncoming, time.Millisecond, e1, e2)
	remote := snapshot(document.StatusProcessing, time.Second, e1, e2, e3)

	ab := MergeDocument(local, remote)
	ba := MergeDocument(remote, local)
	require.Equal(t, ab, ba, "commutative")
	require.Equal(t, ab, MergeDocument(ab, remote), "idempotent")
	require.Equal(t, ab, MergeDocument(ab, ab))

	assert.Equal(t, document.StatusProcessing, ab.Status)
	assert.Len(t, ab.Log, 3)
	assert.True(t, ab.Consistent())
}

func TestMergeDocumentTieBreakIsOrderIndependent(t *testing.T) {
	a := snapshot(document.StatusCompleted, time.Second, entry("x", "d1", 0, document.StatusCompleted))
	b := snapshot(document.StatusArchived, time.Second, entry("y", "d1", 0, document.StatusArchived))
	assert.Equal(t, MergeDocument(a, b), MergeDocument(b, a))
}

func TestMergeDocumentConcurrentForwardsConverge(t *testing.T) {
	toB := snapshot(document.StatusIncoming, time.Second, entry("fb", "d1", time.Second, document.StatusIncoming))
	toB.AssignedTo = "B"
	toC := snapshot(document.StatusIncoming, time.Second, entry("fc", "d1", time.Second, document.StatusIncoming))
	toC.AssignedTo = "C"

	ab := MergeDocument(toB, toC)
	ba := MergeDocument(toC, toB)
	require.Equal(t, ab, ba)
	assert.Len(t, ab.Log, 2)

	tests := []struct {
		name  string
		order []*document.Document
	}{
		{"b then c", []*document.Document{toB, toC}},
		{"c then b", []*document.Document{toC, toB}},
	}
	var seen []string
	for _, tc := range tests {
		v := NewView()
		for _, d := range tc.order {
			require.NoError(t, v.Apply(mustDocEvent(t, EventUpdate, d)), tc.name)
		}
		got, ok := v.Get("d1")
		require.True(t, ok, tc.name)
		seen = append(seen, got.AssignedTo)
	}
	assert.Equal(t, seen[0], seen[1], "views diverged")
	assert.Equal(t, ab.AssignedTo, seen[0])
}

func TestMergeDocumentNil(t *testing.T) {
	d := snapshot(document.StatusIncoming, 0)
	assert.Equal(t, d, MergeDocument(nil, d))
	assert.Equal(t, d, MergeDocument(d, nil))
}

func mustDocEvent(t *testing.T, typ EventType, d *document.Document) Event {
	ev, err := DocumentEvent(typ, d)
	require.NoError(t, err)
	return ev
}

func mustEntryEvent(t *testing.T, e audit.Entry) Event {
	ev, err := EntryEvent(e)
	require.NoError(t, err)
	return ev
}

func TestViewDuplicateDeliveryDoesNotDuplicate(t *testing.T) {
	v := NewView()
	e1 := entry("e1", "d1", 0, document.StatusOutgoing)
	e2 := entry("e2", "d1", time.Millisecond, document.StatusIncoming)
	d := snapshot(document.StatusIncoming, time.Millisecond, e1, e2)

	docEv := mustDocEvent(t, EventInsert, d)
	logEv := mustEntryEvent(t, e2)
	for i := 0; i < 3; i++ {
		require.NoError(t, v.Apply(docEv))
		require.NoError(t, v.Apply(logEv))
	}
	require.Equal(t, 1, v.Len())
	got, ok := v.Get("d1")
	require.True(t, ok)
	assert.Len(t, got.Log, 2)
}

func TestViewOutOfOrderDelivery(t *testing.T) {
	v := NewView()
	e1 := entry("e1", "d1", 0, document.StatusOutgoing)
	e2 := entry("e2", "d1", time.Millisecond, document.StatusIncoming)
	e3 := entry("e3", "d1", time.Second, document.StatusProcessing)

	// the entry and the newer snapshot race ahead of the insert
	require.NoError(t, v.Apply(mustEntryEvent(t, e3)))
	require.NoError(t, v.Apply(mustDocEvent(t, EventUpdate, snapshot(document.StatusProcessing, time.Second, e1, e2, e3))))
	require.NoError(t, v.Apply(mustDocEvent(t, EventInsert, snapshot(document.StatusIncoming, time.Millisecond, e1, e2))))

	got, ok := v.Get("d1")
	require.True(t, ok)
	assert.Equal(t, document.StatusProcessing, got.Status)
	assert.Len(t, got.Log, 3)
	assert.True(t, got.Consistent())
}

func TestViewPendingEntriesAttachOnArrival(t *testing.T) {
	v := NewView()
	e1 := entry("e1", "d1", 0, document.StatusOutgoing)
	e2 := entry("e2", "d1", time.Millisecond, document.StatusIncoming)
	late := entry("e9", "d1", time.Minute, document.StatusIncoming)
	require.NoError(t, v.Apply(mustEntryEvent(t, late)))
	v.Upsert(snapshot(document.StatusIncoming, time.Millisecond, e1, e2))

	got, _ := v.Get("d1")
	assert.Len(t, got.Log, 3)
}

func TestViewDeleteIsFinal(t *testing.T) {
	v := NewView()
	d := snapshot(document.StatusIncoming, 0, entry("e1", "d1", 0, document.StatusIncoming))
	require.NoError(t, v.Apply(mustDocEvent(t, EventInsert, d)))
	require.NoError(t, v.Apply(mustDocEvent(t, EventDelete, d)))
	require.NoError(t, v.Apply(mustDocEvent(t, EventUpdate, d)))
	require.NoError(t, v.Apply(mustEntryEvent(t, entry("e2", "d1", time.Second, document.StatusProcessing))))
	assert.Equal(t, 0, v.Len())
}

func TestViewRejectsUnknownTable(t *testing.T) {
	err := NewView().Apply(Event{Table: "users", Type: EventInsert, Record: []byte(`{}`)})
	require.Error(t, err)
}

func TestHubBroadcastsToWebsocketClients(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	ev := mustEntryEvent(t, entry("e1", "d1", 0, document.StatusIncoming))
	require.NoError(t, hub.Publish(context.Background(), ev))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, TableLogs, got.Table)
	en, err := got.Entry()
	require.NoError(t, err)
	assert.Equal(t, "e1", en.ID)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestRedisRelayDeliversPublishedEvents(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	pub := NewRedisPublisher(client, "test:feed")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ready := make(chan struct{})
	got := make(chan Event, 1)
	go func() { _ = pub.Relay(ctx, ready, func(ev Event) { got <- ev }) }()
	<-ready

	d := snapshot(document.StatusIncoming, 0)
	require.NoError(t, pub.Publish(ctx, mustDocEvent(t, EventInsert, d)))

	select {
	case ev := <-got:
		doc, err := ev.Document()
		require.NoError(t, err)
		assert.Equal(t, "d1", doc.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not deliver event")
	}
}

func TestMultiJoinsErrors(t *testing.T) {
	require.NoError(t, Multi{Discard{}, nil}.Publish(context.Background(), Event{}))
}
