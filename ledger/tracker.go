package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"hardware_ledger/events"
	"hardware_ledger/metrics"
	"hardware_ledger/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// IssueInput identifies the item by exactly one of HardwareID or HardwareCode.
type IssueInput struct {
	HardwareID   string
	HardwareCode string
	StudentID    string
	StudentName  string
	Contact      string
	Department   string
	Semester     string
	Period       string
	Remarks      string
	IssueDate    *time.Time // defaults to now
	DueDate      *time.Time
}

// RegisterInput issues against HardwareCode, creating the item first when
// no item carries that code.
type RegisterInput struct {
	IssueInput
	Name        string
	TotalCount  *int
	ItemRemarks string
}

// Tracker issues and returns loans.
type Tracker struct {
	store    Store
	registry *Registry
	pub      events.Publisher
	logger   *zap.Logger
	now      func() time.Time
}

type TrackerOption func(*Tracker)

// WithClock replaces time.Now, used for the due-today window and timestamps.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

func NewTracker(store Store, registry *Registry, pub events.Publisher, logger *zap.Logger, opts ...TrackerOption) *Tracker {
	t := &Tracker{store: store, registry: registry, pub: pub, logger: logger, now: time.Now}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (in *IssueInput) normalize() error {
	in.HardwareID = strings.TrimSpace(in.HardwareID)
	in.HardwareCode = NormalizeCode(in.HardwareCode)
	in.StudentID = strings.TrimSpace(in.StudentID)
	in.StudentName = strings.TrimSpace(in.StudentName)

	hasID, hasCode := in.HardwareID != "", in.HardwareCode != ""
	if hasID == hasCode || in.StudentID == "" || in.StudentName == "" || in.DueDate == nil {
		return invalid("Missing required fields: hardwareId or hardwareCode, studentId, studentName, and dueDate.")
	}
	return nil
}

func (t *Tracker) resolve(ctx context.Context, in IssueInput) (*models.Item, error) {
	if in.HardwareID != "" {
		return t.registry.FindByID(ctx, in.HardwareID)
	}
	return t.registry.FindByCode(ctx, in.HardwareCode)
}

// Issue lends one unit of the referenced item.
func (t *Tracker) Issue(ctx context.Context, in IssueInput) (*models.Loan, error) {
	if err := in.normalize(); err != nil {
		metrics.LoanIssueRejections.WithLabelValues(metrics.ReasonValidation).Inc()
		return nil, err
	}
	it, err := t.resolve(ctx, in)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			metrics.LoanIssueRejections.WithLabelValues(metrics.ReasonNotFound).Inc()
		}
		return nil, err
	}
	return t.open(ctx, it, in)
}

func (t *Tracker) open(ctx context.Context, it *models.Item, in IssueInput) (*models.Loan, error) {
	issueDate := t.now()
	if in.IssueDate != nil {
		issueDate = *in.IssueDate
	}
	l := &models.Loan{
		ID:          uuid.NewString(),
		ItemID:      it.ID,
		StudentID:   in.StudentID,
		StudentName: in.StudentName,
		Contact:     strings.TrimSpace(in.Contact),
		Department:  strings.TrimSpace(in.Department),
		Semester:    strings.TrimSpace(in.Semester),
		Period:      strings.TrimSpace(in.Period),
		Remarks:     strings.TrimSpace(in.Remarks),
		IssueDate:   issueDate,
		DueDate:     *in.DueDate,
		Status:      models.LoanIssued,
	}
	if err := t.store.OpenLoan(ctx, l); err != nil {
		switch {
		case errors.Is(err, ErrCapacity):
			metrics.LoanIssueRejections.WithLabelValues(metrics.ReasonNoStock).Inc()
		case errors.Is(err, ErrNotFound):
			metrics.LoanIssueRejections.WithLabelValues(metrics.ReasonNotFound).Inc()
		}
		return nil, err
	}

	metrics.LoansIssued.Inc()
	t.logger.Info("hardware issued",
		zap.String("loan_id", l.ID),
		zap.String("item_id", l.ItemID),
		zap.String("student_id", l.StudentID),
	)
	publish(ctx, t.pub, t.logger, events.ForLoan(events.LoanIssued, l))
	return l, nil
}

// RegisterAndIssue issues by code and registers the item when the code is
// unknown. created reports whether a new item was made.
func (t *Tracker) RegisterAndIssue(ctx context.Context, in RegisterInput) (loan *models.Loan, created bool, err error) {
	in.HardwareID = ""
	if err := in.IssueInput.normalize(); err != nil {
		return nil, false, err
	}

	it, err := t.registry.FindByCode(ctx, in.HardwareCode)
	if errors.Is(err, ErrNotFound) {
		// 新登记的物品至少要有一件可借，否则不落库
		if in.TotalCount != nil && *in.TotalCount < 1 {
			return nil, false, invalid("totalCount must be at least 1 to register and issue.")
		}
		code := in.HardwareCode
		it, err = t.registry.Create(ctx, ItemInput{
			Name:       in.Name,
			Code:       &code,
			TotalCount: in.TotalCount,
			Remarks:    in.ItemRemarks,
		})
		created = err == nil
	}
	if err != nil {
		return nil, false, err
	}

	loan, err = t.open(ctx, it, in.IssueInput)
	return loan, created, err
}

// Return closes an issued loan and puts the unit back.
func (t *Tracker) Return(ctx context.Context, id string) (*models.Loan, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrLoanNotFound
	}
	l, err := t.store.CloseLoan(ctx, id, t.now())
	if err != nil {
		return nil, err
	}
	metrics.LoansReturned.Inc()
	t.logger.Info("hardware returned", zap.String("loan_id", l.ID), zap.String("item_id", l.ItemID))
	publish(ctx, t.pub, t.logger, events.ForLoan(events.LoanReturned, l))
	return l, nil
}

func (t *Tracker) ListActive(ctx context.Context) ([]models.Loan, error) {
	return t.store.ListLoans(ctx, LoanFilter{Status: models.LoanIssued})
}

func (t *Tracker) ListHistory(ctx context.Context) ([]models.Loan, error) {
	return t.store.ListLoans(ctx, LoanFilter{})
}

// ListDueToday returns issued loans whose due date falls on the current local day.
func (t *Tracker) ListDueToday(ctx context.Context) ([]models.Loan, error) {
	start, end := DayWindow(t.now())
	return t.store.ListLoans(ctx, LoanFilter{Status: models.LoanIssued, DueFrom: &start, DueBefore: &end})
}

// ListOverdue returns issued loans due before today.
func (t *Tracker) ListOverdue(ctx context.Context) ([]models.Loan, error) {
	start, _ := DayWindow(t.now())
	return t.store.ListLoans(ctx, LoanFilter{Status: models.LoanIssued, DueBefore: &start})
}

func (t *Tracker) Get(ctx context.Context, id string) (*models.Loan, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrLoanNotFound
	}
	return t.store.FindLoanByID(ctx, id)
}

// Update edits the descriptive fields of a loan. The item and status
// cannot be changed here.
func (t *Tracker) Update(ctx context.Context, id string, p LoanPatch) (*models.Loan, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrLoanNotFound
	}
	if p.StudentID != nil {
		s := strings.TrimSpace(*p.StudentID)
		if s == "" {
			return nil, invalid("studentId cannot be empty.")
		}
		p.StudentID = &s
	}
	if p.StudentName != nil {
		s := strings.TrimSpace(*p.StudentName)
		if s == "" {
			return nil, invalid("studentName cannot be empty.")
		}
		p.StudentName = &s
	}
	if p.IsEmpty() {
		return t.store.FindLoanByID(ctx, id)
	}
	l, err := t.store.PatchLoan(ctx, id, p)
	if err != nil {
		return nil, err
	}
	publish(ctx, t.pub, t.logger, events.ForLoan(events.LoanUpdated, l))
	return l, nil
}

// Delete removes a loan. An issued loan gives its unit back first.
func (t *Tracker) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrLoanNotFound
	}
	l, err := t.store.DeleteLoan(ctx, id)
	if err != nil {
		return err
	}
	t.logger.Info("issue deleted",
		zap.String("loan_id", l.ID),
		zap.String("item_id", l.ItemID),
		zap.String("status", string(l.Status)),
	)
	publish(ctx, t.pub, t.logger, events.ForLoan(events.LoanDeleted, l))
	return nil
}
