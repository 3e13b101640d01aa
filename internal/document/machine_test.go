package document

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/doctrack/doctrack/internal/audit"
	"github.com/doctrack/doctrack/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	u1    = models.Principal{ID: "u1", Role: models.RoleUser, Department: "A", DisplayName: "User One"}
	u2    = models.Principal{ID: "u2", Role: models.RoleUser, Department: "B", DisplayName: "User Two"}
	u3    = models.Principal{ID: "u3", Role: models.RoleUser, Department: "C", DisplayName: "User Three"}
	admin = models.Principal{ID: "root", Role: models.RoleAdmin, Department: "ADMIN", DisplayName: "Root"}
)

// testMachine returns a machine whose clock never advances, exercising the
// strictly-increasing entry timestamps.
func testMachine() *Machine {
	n := 0
	now := time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
	return NewMachineWith(
		func() time.Time { return now },
		func() string { n++; return fmt.Sprintf("id-%03d", n) },
	)
}

func create(t *testing.T, m *Machine) *Document {
	t.Helper()
	d, entries, err := m.Create(CreateInput{Title: "Budget request", Description: "FY25 budget", Recipient: "B"}, u1, "A 2501001")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	return d
}

func requireInvariant(t *testing.T, d *Document) {
	t.Helper()
	require.NotEmpty(t, d.Log)
	last, ok := d.Log.Last()
	require.True(t, ok)
	require.Equal(t, string(d.Status), last.ResultingStatus)
}

func TestCreateProducesTwoEntries(t *testing.T) {
	m := testMachine()
	d := create(t, m)

	assert.Equal(t, StatusIncoming, d.Status)
	assert.Equal(t, "B", d.AssignedTo)
	assert.Equal(t, "u1", d.CreatedBy)
	assert.Equal(t, "A 2501001", d.ReferenceNumber)
	assert.Equal(t, ClassSimple, d.Classification)
	assert.Equal(t, UrgencyRegular, d.Urgency)
	require.Len(t, d.Log, 2)

	assert.Equal(t, "Document Created", d.Log[0].Action)
	assert.Equal(t, string(StatusOutgoing), d.Log[0].ResultingStatus)
	assert.Equal(t, "A", d.Log[0].ActingDepartment)
	assert.Equal(t, "Forwarded to B", d.Log[1].Action)
	assert.Equal(t, string(StatusIncoming), d.Log[1].ResultingStatus)
	assert.True(t, d.Log[1].Timestamp.After(d.Log[0].Timestamp))
	requireInvariant(t, d)
}

func TestCreateGuards(t *testing.T) {
	m := testMachine()
	tests := []struct {
		name string
		in   CreateInput
	}{
		{"missing title", CreateInput{Description: "x", Recipient: "B"}},
		{"missing description", CreateInput{Title: "x", Recipient: "B"}},
		{"missing recipient", CreateInput{Title: "x", Description: "y"}},
		{"recipient is origin", CreateInput{Title: "x", Description: "y", Recipient: "a"}},
		{"bad classification", CreateInput{Title: "x", Description: "y", Recipient: "B", Classification: "Weird"}},
		{"bad urgency", CreateInput{Title: "x", Description: "y", Recipient: "B", Urgency: "Now"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, entries, err := m.Create(tt.in, u1, "A 2501001")
			require.ErrorIs(t, err, ErrInvalidTransition)
			assert.Nil(t, d)
			assert.Nil(t, entries)
		})
	}
}

func TestReceiveFreshGoesToProcessing(t *testing.T) {
	m := testMachine()
	d, entries, err := m.Receive(create(t, m), u2)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, StatusProcessing, d.Status)
	assert.Equal(t, "Received Document", entries[0].Action)
	requireInvariant(t, d)
}

func TestReceiveAfterReturnGoesToReturned(t *testing.T) {
	m := testMachine()
	d, _, err := m.Receive(create(t, m), u2)
	require.NoError(t, err)
	d, _, err = m.Return(d, u2, "A", "missing signature")
	require.NoError(t, err)
	assert.Equal(t, StatusIncoming, d.Status)
	assert.Equal(t, "A", d.AssignedTo)
	assert.Equal(t, "missing signature", d.Remarks)
	assert.True(t, d.ReturnPending)

	d, entries, err := m.Receive(d, u1)
	require.NoError(t, err)
	assert.Equal(t, StatusReturned, d.Status)
	assert.Equal(t, "Received (Returned)", entries[0].Action)
	assert.False(t, d.ReturnPending)
	requireInvariant(t, d)
}

func TestReceiveReturnedDerivedFromTypedKind(t *testing.T) {
	// snapshot persisted without the flag but whose newest entry is a return
	m := testMachine()
	d, _, _ := m.Receive(create(t, m), u2)
	d, _, _ = m.Return(d, u2, "A", "fix")
	d.ReturnPending = false

	out, _, err := m.Receive(d, u1)
	require.NoError(t, err)
	assert.Equal(t, StatusReturned, out.Status)
}

func TestReturnFallsBackToOrigin(t *testing.T) {
	m := testMachine()
	d, _, _ := m.Receive(create(t, m), u2)
	d, entries, err := m.Return(d, u2, "", "no creator")
	require.NoError(t, err)
	assert.Equal(t, FallbackOrigin, d.AssignedTo)
	assert.Equal(t, "Returned to Origin", entries[0].Action)
}

func TestProcessingOnlyTransitionsRejected(t *testing.T) {
	m := testMachine()
	incoming := create(t, m)
	before := incoming.Clone()

	_, _, err := m.Forward(incoming, u2, "C", "")
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, _, err = m.Return(incoming, u2, "A", "why")
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, _, err = m.MarkDone(incoming, u2, "")
	require.ErrorIs(t, err, ErrInvalidTransition)

	assert.Equal(t, before, incoming, "rejected transitions must not touch the snapshot")
}

func TestForwardRequiresDestination(t *testing.T) {
	m := testMachine()
	d, _, _ := m.Receive(create(t, m), u2)
	_, _, err := m.Forward(d, u2, "  ", "")
	var te *TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "forward", te.Action)
}

func TestArchiveRules(t *testing.T) {
	m := testMachine()
	d, _, _ := m.Receive(create(t, m), u2)

	_, _, err := m.Archive(d, admin, "A")
	require.ErrorIs(t, err, ErrInvalidTransition, "processing cannot be archived")

	d, _, err = m.MarkDone(d, u2, "done")
	require.NoError(t, err)

	_, _, err = m.Archive(d, u2, "A")
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, _, err = m.Archive(d, u2, "")
	require.ErrorIs(t, err, ErrInvalidTransition)

	out, entries, err := m.Archive(d, u1, "A")
	require.NoError(t, err)
	assert.Equal(t, StatusArchived, out.Status)
	assert.Equal(t, "Document Archived", entries[0].Action)

	out, _, err = m.Archive(d, admin, "A")
	require.NoError(t, err)
	requireInvariant(t, out)
}

func TestUpdateRemarksKeepsStatus(t *testing.T) {
	m := testMachine()
	d := create(t, m)
	out, entries, err := m.UpdateRemarks(d, u2, "please expedite")
	require.NoError(t, err)
	assert.Equal(t, d.Status, out.Status)
	assert.Equal(t, "please expedite", out.Remarks)
	assert.Equal(t, "Remarks Updated", entries[0].Action)
	assert.Equal(t, string(StatusIncoming), entries[0].ResultingStatus)
	assert.Len(t, d.Log, 2, "input snapshot untouched")
	requireInvariant(t, out)
}

func TestEndToEndScenario(t *testing.T) {
	m := testMachine()

	d := create(t, m)
	require.Equal(t, StatusIncoming, d.Status)
	require.Equal(t, "B", d.AssignedTo)
	require.Len(t, d.Log, 2)

	d, _, err := m.Receive(d, u2)
	require.NoError(t, err)
	require.Equal(t, StatusProcessing, d.Status)
	require.Len(t, d.Log, 3)
	require.Equal(t, "Received Document", d.Log[2].Action)

	d, _, err = m.Forward(d, u2, "C", "for review")
	require.NoError(t, err)
	require.Equal(t, StatusIncoming, d.Status)
	require.Equal(t, "C", d.AssignedTo)
	require.Len(t, d.Log, 4)

	d, _, err = m.Receive(d, u3)
	require.NoError(t, err)
	require.Equal(t, StatusProcessing, d.Status)

	d, _, err = m.MarkDone(d, u3, "")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, d.Status)
	require.Len(t, d.Log, 6)
	require.Equal(t, "Process Completed", d.Log[5].Action)

	_, _, err = m.Archive(d, u3, "A")
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.Equal(t, StatusCompleted, d.Status)
	require.Len(t, d.Log, 6)
	requireInvariant(t, d)

	// every entry is strictly newer than the previous one
	for i := 1; i < len(d.Log); i++ {
		require.True(t, d.Log[i].Timestamp.After(d.Log[i-1].Timestamp))
	}
	assert.Equal(t, audit.KindCompleted, d.Log[5].Kind)
}
