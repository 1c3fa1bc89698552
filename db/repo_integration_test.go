package db

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"hardware_ledger/ledger"
	"hardware_ledger/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testDSN string

func TestMain(m *testing.M) {
	flag.Parse()

	var terminate func()
	if !testing.Short() {
		testDSN, terminate = setupContainer(context.Background())
	}
	code := m.Run()
	if terminate != nil {
		terminate()
	}
	os.Exit(code)
}

func setupContainer(ctx context.Context) (string, func()) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("Recovered from panic in setupContainer: %v\n", r)
		}
	}()

	pg, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("ledger"),
		postgres.WithUsername("ledger"),
		postgres.WithPassword("ledger"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		fmt.Printf("WARNING: Failed to start postgres container: %v\n", err)
		return "", func() {}
	}
	dsn, err := pg.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		fmt.Printf("WARNING: Failed to get connection string: %v\n", err)
		_ = pg.Terminate(ctx)
		return "", func() {}
	}
	return dsn, func() {
		if err := pg.Terminate(ctx); err != nil {
			fmt.Printf("Failed to terminate container: %v\n", err)
		}
	}
}

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if testDSN == "" {
		t.Skip("postgres container not available")
	}
	conn, err := ConnectDB(testDSN)
	require.NoError(t, err)
	require.NoError(t, conn.Exec("TRUNCATE "+models.LoanTable+", "+models.ItemTable).Error)
	return NewRepo(conn)
}

func createItem(t *testing.T, r *Repo, code string, total int) *models.Item {
	t.Helper()
	c := code
	it := &models.Item{ID: uuid.NewString(), Name: code, Code: &c, TotalCount: total, AvailableCount: total}
	require.NoError(t, r.CreateItem(context.Background(), it))
	return it
}

func openLoan(itemID string, due time.Time) *models.Loan {
	return &models.Loan{
		ID: uuid.NewString(), ItemID: itemID, StudentID: "S1", StudentName: "Ann",
		IssueDate: time.Now(), DueDate: due, Status: models.LoanIssued,
	}
}

func TestRepo_IssueReturnLifecycle(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	it := createItem(t, r, "RPI", 2)

	l := openLoan(it.ID, time.Now().Add(24*time.Hour))
	require.NoError(t, r.OpenLoan(ctx, l))
	require.NotNil(t, l.Item)
	assert.Equal(t, 1, l.Item.AvailableCount)
	assert.Equal(t, 1, l.Item.IssuedCount)

	back, err := r.CloseLoan(ctx, l.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, models.LoanReturned, back.Status)
	require.NotNil(t, back.Item)
	assert.Equal(t, 2, back.Item.AvailableCount)

	_, err = r.CloseLoan(ctx, l.ID, time.Now())
	assert.ErrorIs(t, err, ledger.ErrAlreadyReturned)

	_, err = r.CloseLoan(ctx, "not-a-uuid", time.Now())
	assert.ErrorIs(t, err, ledger.ErrLoanNotFound)
}

func TestRepo_ConcurrentIssueLastUnit(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	it := createItem(t, r, "SCANNER", 1)

	const workers = 20
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = r.OpenLoan(ctx, openLoan(it.ID, time.Now().Add(time.Hour)))
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, ledger.ErrNoAvailableUnits)
	}
	assert.Equal(t, 1, ok)

	got, err := r.FindItemByID(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.AvailableCount)

	active, err := r.ListLoans(ctx, ledger.LoanFilter{Status: models.LoanIssued})
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestRepo_ItemConstraints(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	it := createItem(t, r, "HDMI-CBL", 3)

	c := "HDMI-CBL"
	err := r.CreateItem(ctx, &models.Item{ID: uuid.NewString(), Name: "dup", Code: &c})
	assert.ErrorIs(t, err, ledger.ErrDuplicateCode)

	require.NoError(t, r.CreateItem(ctx, &models.Item{ID: uuid.NewString(), Name: "no code 1"}))
	require.NoError(t, r.CreateItem(ctx, &models.Item{ID: uuid.NewString(), Name: "no code 2"}))

	l := openLoan(it.ID, time.Now())
	require.NoError(t, r.OpenLoan(ctx, l))
	assert.ErrorIs(t, r.DeleteItem(ctx, it.ID), ledger.ErrItemHasOpenLoans)

	_, err = r.DeleteLoan(ctx, l.ID)
	require.NoError(t, err)
	got, err := r.FindItemByID(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.AvailableCount)
	assert.Equal(t, 0, got.IssuedCount)

	require.NoError(t, r.DeleteItem(ctx, it.ID))
	_, err = r.FindItemByID(ctx, it.ID)
	assert.ErrorIs(t, err, ledger.ErrItemNotFound)
}

func TestRepo_DueWindowAndPatch(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	it := createItem(t, r, "USB-CABLE", 5)

	start, end := ledger.DayWindow(time.Now())
	today := openLoan(it.ID, start.Add(time.Hour))
	tomorrow := openLoan(it.ID, end.Add(time.Hour))
	require.NoError(t, r.OpenLoan(ctx, today))
	require.NoError(t, r.OpenLoan(ctx, tomorrow))

	due, err := r.ListLoans(ctx, ledger.LoanFilter{Status: models.LoanIssued, DueFrom: &start, DueBefore: &end})
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, today.ID, due[0].ID)
	assert.NotNil(t, due[0].Item)

	remarks := "late"
	patched, err := r.PatchLoan(ctx, tomorrow.ID, ledger.LoanPatch{Remarks: &remarks, DueDate: &start})
	require.NoError(t, err)
	assert.Equal(t, "late", patched.Remarks)
	assert.Equal(t, models.LoanIssued, patched.Status)

	due, err = r.ListLoans(ctx, ledger.LoanFilter{Status: models.LoanIssued, DueFrom: &start, DueBefore: &end})
	require.NoError(t, err)
	assert.Len(t, due, 2)

	_, err = r.PatchLoan(ctx, uuid.NewString(), ledger.LoanPatch{Remarks: &remarks})
	assert.ErrorIs(t, err, ledger.ErrLoanNotFound)
}

func TestRepo_Reconcile(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	it := createItem(t, r, "ARD-UNO", 8)
	require.NoError(t, r.OpenLoan(ctx, openLoan(it.ID, time.Now())))

	it.AvailableCount = 8
	it.IssuedCount = 0
	require.NoError(t, r.SaveItem(ctx, it))

	got, err := r.ReconcileItem(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.IssuedCount)
	assert.Equal(t, 7, got.AvailableCount)
}

func TestRepo_ListItemsNewestFirst(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	var ids []string
	for _, code := range []string{"ARD", "DMM", "OSC"} {
		ids = append(ids, createItem(t, r, code, 1).ID)
		time.Sleep(2 * time.Millisecond)
	}

	items, err := r.ListItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{items[0].ID, items[1].ID, items[2].ID})
}
