package ledger_test

import (
	"context"
	"testing"
	"time"

	"hardware_ledger/events"
	"hardware_ledger/ledger"
	"hardware_ledger/memstore"
	"hardware_ledger/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fixed local clock: 2025-03-14 10:30
var testNow = time.Date(2025, 3, 14, 10, 30, 0, 0, time.Local)

type recordingPublisher struct {
	got []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.got = append(p.got, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []events.Type {
	out := make([]events.Type, 0, len(p.got))
	for _, e := range p.got {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	store    *memstore.Store
	registry *ledger.Registry
	tracker  *ledger.Tracker
	pub      *recordingPublisher
}

func newFixture() *fixture {
	store := memstore.New()
	pub := &recordingPublisher{}
	log := zap.NewNop()
	reg := ledger.NewRegistry(store, pub, log)
	tr := ledger.NewTracker(store, reg, pub, log, ledger.WithClock(func() time.Time { return testNow }))
	return &fixture{store: store, registry: reg, tracker: tr, pub: pub}
}

func intp(n int) *int              { return &n }
func strp(s string) *string        { return &s }
func timep(t time.Time) *time.Time { return &t }

func (f *fixture) item(t *testing.T, code string, total int) *models.Item {
	t.Helper()
	it, err := f.registry.Create(context.Background(), ledger.ItemInput{Name: code, Code: strp(code), TotalCount: intp(total)})
	require.NoError(t, err)
	return it
}

func (f *fixture) available(t *testing.T, id string) int {
	t.Helper()
	it, err := f.registry.FindByID(context.Background(), id)
	require.NoError(t, err)
	return it.AvailableCount
}

func issueTo(itemID, student string, due time.Time) ledger.IssueInput {
	return ledger.IssueInput{HardwareID: itemID, StudentID: student, StudentName: "Student " + student, DueDate: &due}
}

func TestIssue_DecrementsAvailable(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	it := f.item(t, "RPI", 5)

	l, err := f.tracker.Issue(ctx, issueTo(it.ID, "S1", testNow.AddDate(0, 0, 1)))
	require.NoError(t, err)
	assert.Equal(t, models.LoanIssued, l.Status)
	assert.Equal(t, testNow, l.IssueDate)
	require.NotNil(t, l.Item)
	assert.Equal(t, 4, l.Item.AvailableCount)
	assert.Equal(t, 4, f.available(t, it.ID))
	assert.Equal(t, []events.Type{events.ItemCreated, events.LoanIssued}, f.pub.types())
}

func TestIssue_ByCodeIsCaseInsensitive(t *testing.T) {
	f := newFixture()
	it := f.item(t, "HDMI-CBL", 2)

	in := issueTo("", "S1", testNow)
	in.HardwareCode = "  hdmi-cbl "
	l, err := f.tracker.Issue(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, it.ID, l.ItemID)
}

func TestIssue_Validation(t *testing.T) {
	f := newFixture()
	it := f.item(t, "RPI", 5)
	due := testNow.AddDate(0, 0, 1)

	tests := []struct {
		name string
		in   ledger.IssueInput
	}{
		{"no item reference", ledger.IssueInput{StudentID: "S1", StudentName: "A", DueDate: &due}},
		{"both id and code", ledger.IssueInput{HardwareID: it.ID, HardwareCode: "RPI", StudentID: "S1", StudentName: "A", DueDate: &due}},
		{"missing student id", ledger.IssueInput{HardwareID: it.ID, StudentName: "A", DueDate: &due}},
		{"blank student name", ledger.IssueInput{HardwareID: it.ID, StudentID: "S1", StudentName: "  ", DueDate: &due}},
		{"missing due date", ledger.IssueInput{HardwareID: it.ID, StudentID: "S1", StudentName: "A"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.tracker.Issue(context.Background(), tt.in)
			assert.ErrorIs(t, err, ledger.ErrValidation)
		})
	}
	assert.Equal(t, 5, f.available(t, it.ID))
}

func TestIssue_UnknownItem(t *testing.T) {
	f := newFixture()
	_, err := f.tracker.Issue(context.Background(), issueTo(uuid.NewString(), "S1", testNow))
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	in := issueTo("", "S1", testNow)
	in.HardwareCode = "NOPE"
	_, err = f.tracker.Issue(context.Background(), in)
	assert.ErrorIs(t, err, ledger.ErrItemNotFound)
}

func TestIssue_NoStockCreatesNoLoan(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	it := f.item(t, "SCANNER", 1)

	_, err := f.tracker.Issue(ctx, issueTo(it.ID, "S1", testNow))
	require.NoError(t, err)
	assert.Equal(t, 0, f.available(t, it.ID))

	_, err = f.tracker.Issue(ctx, issueTo(it.ID, "S2", testNow))
	assert.ErrorIs(t, err, ledger.ErrCapacity)
	assert.ErrorIs(t, err, ledger.ErrNoAvailableUnits)

	all, err := f.tracker.ListHistory(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Equal(t, 0, f.available(t, it.ID))
}

func TestReturn_IncrementsAvailableOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	it := f.item(t, "RPI", 5)

	l, err := f.tracker.Issue(ctx, issueTo(it.ID, "S1", testNow.AddDate(0, 0, 1)))
	require.NoError(t, err)

	_, err = f.tracker.Return(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ledger.ErrLoanNotFound)

	back, err := f.tracker.Return(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanReturned, back.Status)
	require.NotNil(t, back.ReturnDate)
	assert.Equal(t, testNow, *back.ReturnDate)
	assert.Equal(t, 5, f.available(t, it.ID))

	_, err = f.tracker.Return(ctx, l.ID)
	assert.ErrorIs(t, err, ledger.ErrConflict)
	assert.ErrorIs(t, err, ledger.ErrAlreadyReturned)
	assert.Equal(t, 5, f.available(t, it.ID))
}

func TestIssueReturnRoundTrip(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	const n, k = 6, 4
	it := f.item(t, "ARD-UNO", n)

	ids := make([]string, 0, k)
	for i := 0; i < k; i++ {
		l, err := f.tracker.Issue(ctx, issueTo(it.ID, "S", testNow))
		require.NoError(t, err)
		ids = append(ids, l.ID)
	}
	assert.Equal(t, n-k, f.available(t, it.ID))

	for _, id := range ids {
		_, err := f.tracker.Return(ctx, id)
		require.NoError(t, err)
	}
	got, err := f.registry.FindByID(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, n, got.AvailableCount)
	assert.Equal(t, 0, got.IssuedCount)
}

func TestListDueToday(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	it := f.item(t, "USB-CABLE", 10)

	start, end := ledger.DayWindow(testNow)
	cases := map[string]time.Time{
		"start-of-day":   start,
		"late-today":     end.Add(-time.Second),
		"tomorrow":       end,
		"yesterday":      start.Add(-time.Second),
		"returned-today": start.Add(3 * time.Hour),
	}
	byName := map[string]string{}
	for name, due := range cases {
		l, err := f.tracker.Issue(ctx, issueTo(it.ID, name, due))
		require.NoError(t, err)
		byName[name] = l.ID
	}
	_, err := f.tracker.Return(ctx, byName["returned-today"])
	require.NoError(t, err)

	due, err := f.tracker.ListDueToday(ctx)
	require.NoError(t, err)
	got := map[string]bool{}
	for _, l := range due {
		got[l.StudentID] = true
		assert.NotNil(t, l.Item)
	}
	assert.Equal(t, map[string]bool{"start-of-day": true, "late-today": true}, got)

	overdue, err := f.tracker.ListOverdue(ctx)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, "yesterday", overdue[0].StudentID)
}

func TestListActiveAndHistoryOrder(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	it := f.item(t, "CARD-READER", 10)

	var ids []string
	for i := 0; i < 3; i++ {
		in := issueTo(it.ID, "S", testNow)
		in.IssueDate = timep(testNow.Add(time.Duration(i) * time.Hour))
		l, err := f.tracker.Issue(ctx, in)
		require.NoError(t, err)
		ids = append(ids, l.ID)
	}
	_, err := f.tracker.Return(ctx, ids[1])
	require.NoError(t, err)

	active, err := f.tracker.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, ids[2], active[0].ID)
	assert.Equal(t, ids[0], active[1].ID)

	history, err := f.tracker.ListHistory(ctx)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{history[0].ID, history[1].ID, history[2].ID})
}

func TestUpdateLoan(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	it := f.item(t, "RPI", 2)
	l, err := f.tracker.Issue(ctx, issueTo(it.ID, "S1", testNow))
	require.NoError(t, err)

	newDue := testNow.AddDate(0, 0, 7)
	got, err := f.tracker.Update(ctx, l.ID, ledger.LoanPatch{DueDate: &newDue, Remarks: strp("extended")})
	require.NoError(t, err)
	assert.Equal(t, newDue, got.DueDate)
	assert.Equal(t, "extended", got.Remarks)
	assert.Equal(t, models.LoanIssued, got.Status)
	assert.Equal(t, it.ID, got.ItemID)

	_, err = f.tracker.Update(ctx, uuid.NewString(), ledger.LoanPatch{Remarks: strp("x")})
	assert.ErrorIs(t, err, ledger.ErrLoanNotFound)

	_, err = f.tracker.Update(ctx, l.ID, ledger.LoanPatch{StudentName: strp(" ")})
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestDeleteLoan(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	it := f.item(t, "RPI", 3)

	open, err := f.tracker.Issue(ctx, issueTo(it.ID, "S1", testNow))
	require.NoError(t, err)
	closed, err := f.tracker.Issue(ctx, issueTo(it.ID, "S2", testNow))
	require.NoError(t, err)
	_, err = f.tracker.Return(ctx, closed.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, f.available(t, it.ID))

	// deleting a returned loan leaves counts alone
	require.NoError(t, f.tracker.Delete(ctx, closed.ID))
	assert.Equal(t, 2, f.available(t, it.ID))

	// deleting an issued loan gives the unit back
	require.NoError(t, f.tracker.Delete(ctx, open.ID))
	assert.Equal(t, 3, f.available(t, it.ID))

	assert.ErrorIs(t, f.tracker.Delete(ctx, open.ID), ledger.ErrLoanNotFound)
}

func TestRegisterAndIssue(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	due := testNow.AddDate(0, 0, 1)

	in := ledger.RegisterInput{
		IssueInput: ledger.IssueInput{HardwareCode: "breadboard", StudentID: "S1", StudentName: "Ann", DueDate: &due},
		Name:       "Breadboard",
		TotalCount: intp(4),
	}
	l, created, err := f.tracker.RegisterAndIssue(ctx, in)
	require.NoError(t, err)
	assert.True(t, created)
	require.NotNil(t, l.Item)
	assert.Equal(t, "BREADBOARD", *l.Item.Code)
	assert.Equal(t, 3, l.Item.AvailableCount)

	// second call finds the registered item
	l2, created, err := f.tracker.RegisterAndIssue(ctx, in)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, l.ItemID, l2.ItemID)
	assert.Equal(t, 2, f.available(t, l.ItemID))

	// unknown code without item details
	_, _, err = f.tracker.RegisterAndIssue(ctx, ledger.RegisterInput{
		IssueInput: ledger.IssueInput{HardwareCode: "NEW", StudentID: "S1", StudentName: "Ann", DueDate: &due},
	})
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestRegisterAndIssue_ZeroTotalRegistersNothing(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	due := testNow.AddDate(0, 0, 1)

	_, created, err := f.tracker.RegisterAndIssue(ctx, ledger.RegisterInput{
		IssueInput: ledger.IssueInput{HardwareCode: "empty-kit", StudentID: "S1", StudentName: "Ann", DueDate: &due},
		Name:       "Empty kit",
		TotalCount: intp(0),
	})
	assert.ErrorIs(t, err, ledger.ErrValidation)
	assert.False(t, created)

	_, err = f.registry.FindByCode(ctx, "EMPTY-KIT")
	assert.ErrorIs(t, err, ledger.ErrItemNotFound)

	items, err := f.registry.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Empty(t, f.pub.types())
}
