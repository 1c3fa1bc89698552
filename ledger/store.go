package ledger

import (
	"context"
	"time"

	"hardware_ledger/models"
)

// Store is the persistence boundary of the ledger. Implementations must make
// OpenLoan, CloseLoan and DeleteLoan atomic with the item counter changes
// they imply.
type Store interface {
	ListItems(ctx context.Context) ([]models.Item, error)
	FindItemByID(ctx context.Context, id string) (*models.Item, error)
	FindItemByCode(ctx context.Context, code string) (*models.Item, error)
	CreateItem(ctx context.Context, it *models.Item) error
	// SaveItem replaces name, code, counts and remarks of an existing item.
	SaveItem(ctx context.Context, it *models.Item) error
	// DeleteItem refuses with ErrItemHasOpenLoans while any loan is issued.
	DeleteItem(ctx context.Context, id string) error
	// ReconcileItem sets issuedCount to the number of open loans and
	// availableCount to totalCount minus that, floored at zero.
	ReconcileItem(ctx context.Context, id string) (*models.Item, error)

	// OpenLoan takes one unit of l.ItemID and inserts l, or neither.
	OpenLoan(ctx context.Context, l *models.Loan) error
	CloseLoan(ctx context.Context, id string, at time.Time) (*models.Loan, error)
	FindLoanByID(ctx context.Context, id string) (*models.Loan, error)
	ListLoans(ctx context.Context, f LoanFilter) ([]models.Loan, error)
	PatchLoan(ctx context.Context, id string, p LoanPatch) (*models.Loan, error)
	// DeleteLoan puts the unit back when the loan was still issued.
	DeleteLoan(ctx context.Context, id string) (*models.Loan, error)
}

// LoanFilter selects loans. Zero values mean "any". Results are ordered by
// issue date, newest first, with the item attached.
type LoanFilter struct {
	Status    models.LoanStatus
	DueFrom   *time.Time // inclusive
	DueBefore *time.Time // exclusive
}

// LoanPatch lists the editable loan fields. Nil means unchanged.
type LoanPatch struct {
	StudentID   *string
	StudentName *string
	Contact     *string
	Department  *string
	Semester    *string
	Period      *string
	Remarks     *string
	IssueDate   *time.Time
	DueDate     *time.Time
}

func (p LoanPatch) IsEmpty() bool {
	return p.StudentID == nil && p.StudentName == nil && p.Contact == nil &&
		p.Department == nil && p.Semester == nil && p.Period == nil &&
		p.Remarks == nil && p.IssueDate == nil && p.DueDate == nil
}

// Apply copies the set fields onto l.
func (p LoanPatch) Apply(l *models.Loan) {
	if p.StudentID != nil {
		l.StudentID = *p.StudentID
	}
	if p.StudentName != nil {
		l.StudentName = *p.StudentName
	}
	if p.Contact != nil {
		l.Contact = *p.Contact
	}
	if p.Department != nil {
		l.Department = *p.Department
	}
	if p.Semester != nil {
		l.Semester = *p.Semester
	}
	if p.Period != nil {
		l.Period = *p.Period
	}
	if p.Remarks != nil {
		l.Remarks = *p.Remarks
	}
	if p.IssueDate != nil {
		l.IssueDate = *p.IssueDate
	}
	if p.DueDate != nil {
		l.DueDate = *p.DueDate
	}
}

// Columns returns the column updates for a SQL store.
func (p LoanPatch) Columns() map[string]any {
	cols := map[string]any{}
	if p.StudentID != nil {
		cols["student_id"] = *p.StudentID
	}
	if p.StudentName != nil {
		cols["student_name"] = *p.StudentName
	}
	if p.Contact != nil {
		cols["contact"] = *p.Contact
	}
	if p.Department != nil {
		cols["department"] = *p.Department
	}
	if p.Semester != nil {
		cols["semester"] = *p.Semester
	}
	if p.Period != nil {
		cols["period"] = *p.Period
	}
	if p.Remarks != nil {
		cols["remarks"] = *p.Remarks
	}
	if p.IssueDate != nil {
		cols["issue_date"] = *p.IssueDate
	}
	if p.DueDate != nil {
		cols["due_date"] = *p.DueDate
	}
	return cols
}
