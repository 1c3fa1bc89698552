package events

import (
	"context"
	"strings"
	"time"

	"hardware_ledger/models"

	"go.uber.org/zap"
)

// Type names a ledger event.
type Type string

const (
	ItemCreated    Type = "hardware.created"
	ItemUpdated    Type = "hardware.updated"
	ItemDeleted    Type = "hardware.deleted"
	ItemReconciled Type = "hardware.reconciled"

	LoanIssued   Type = "loan.issued"
	LoanReturned Type = "loan.returned"
	LoanUpdated  Type = "loan.updated"
	LoanDeleted  Type = "loan.deleted"
)

// Event is the payload published after a successful ledger mutation.
type Event struct {
	Type           Type      `json:"type"`
	ItemID         string    `json:"itemId"`
	ItemCode       string    `json:"itemCode,omitempty"`
	LoanID         string    `json:"loanId,omitempty"`
	StudentID      string    `json:"studentId,omitempty"`
	AvailableCount int       `json:"availableCount"`
	OccurredAt     time.Time `json:"occurredAt"`
}

func (e Event) IsLoanEvent() bool { return strings.HasPrefix(string(e.Type), "loan.") }

// Publisher delivers ledger events. Callers log failures and carry on.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

func ForItem(t Type, it *models.Item) Event {
	e := Event{Type: t, ItemID: it.ID, AvailableCount: it.AvailableCount, OccurredAt: time.Now().UTC()}
	if it.Code != nil {
		e.ItemCode = *it.Code
	}
	return e
}

func ForLoan(t Type, l *models.Loan) Event {
	e := Event{Type: t, ItemID: l.ItemID, LoanID: l.ID, StudentID: l.StudentID, OccurredAt: time.Now().UTC()}
	if l.Item != nil {
		e.AvailableCount = l.Item.AvailableCount
		if l.Item.Code != nil {
			e.ItemCode = *l.Item.Code
		}
	}
	return e
}

// LogPublisher is used when no broker is configured.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, e Event) error {
	p.logger.Debug("ledger event",
		zap.String("type", string(e.Type)),
		zap.String("item_id", e.ItemID),
		zap.String("loan_id", e.LoanID),
		zap.Int("available", e.AvailableCount),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
