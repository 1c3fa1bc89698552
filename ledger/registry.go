package ledger

import (
	"context"
	"strings"

	"hardware_ledger/events"
	"hardware_ledger/metrics"
	"hardware_ledger/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ItemInput is a create or full-replace request for an item. Counts are
// pointers so an explicit zero can be told apart from an absent field.
type ItemInput struct {
	Name           string
	Code           *string
	TotalCount     *int
	IssuedCount    *int
	AvailableCount *int
	Remarks        string
}

// Registry manages inventory items.
type Registry struct {
	store  Store
	pub    events.Publisher
	logger *zap.Logger
}

func NewRegistry(store Store, pub events.Publisher, logger *zap.Logger) *Registry {
	return &Registry{store: store, pub: pub, logger: logger}
}

// NormalizeCode trims and upper-cases a hardware code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// fields validates in and fills name, code, counts and remarks of it.
func (in ItemInput) fields(it *models.Item) error {
	name := strings.TrimSpace(in.Name)
	if name == "" || in.TotalCount == nil {
		return invalid("Missing required fields: name and totalCount.")
	}
	total := *in.TotalCount
	if total < 0 {
		return invalid("totalCount cannot be negative.")
	}

	issued := 0
	if in.IssuedCount != nil {
		issued = *in.IssuedCount
	}
	if issued < 0 {
		return invalid("issuedCount cannot be negative.")
	}

	var available int
	if in.AvailableCount != nil {
		available = *in.AvailableCount
	} else {
		available = total - issued
	}
	if available < 0 {
		return invalid("availableCount cannot be negative.")
	}

	it.Name = name
	it.Code = nil
	if in.Code != nil {
		if c := NormalizeCode(*in.Code); c != "" {
			it.Code = &c
		}
	}
	it.TotalCount = total
	it.IssuedCount = issued
	it.AvailableCount = available
	it.Remarks = strings.TrimSpace(in.Remarks)
	return nil
}

func (r *Registry) List(ctx context.Context) ([]models.Item, error) {
	return r.store.ListItems(ctx)
}

func (r *Registry) FindByID(ctx context.Context, id string) (*models.Item, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrItemNotFound
	}
	return r.store.FindItemByID(ctx, id)
}

func (r *Registry) FindByCode(ctx context.Context, code string) (*models.Item, error) {
	c := NormalizeCode(code)
	if c == "" {
		return nil, ErrItemNotFound
	}
	return r.store.FindItemByCode(ctx, c)
}

func (r *Registry) Create(ctx context.Context, in ItemInput) (*models.Item, error) {
	it := &models.Item{ID: uuid.NewString()}
	if err := in.fields(it); err != nil {
		return nil, err
	}
	if err := r.store.CreateItem(ctx, it); err != nil {
		return nil, err
	}
	r.logger.Info("hardware created", zap.String("item_id", it.ID), zap.String("name", it.Name))
	publish(ctx, r.pub, r.logger, events.ForItem(events.ItemCreated, it))
	return it, nil
}

func (r *Registry) Update(ctx context.Context, id string, in ItemInput) (*models.Item, error) {
	it, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := in.fields(it); err != nil {
		return nil, err
	}
	if err := r.store.SaveItem(ctx, it); err != nil {
		return nil, err
	}
	publish(ctx, r.pub, r.logger, events.ForItem(events.ItemUpdated, it))
	return it, nil
}

func (r *Registry) Delete(ctx context.Context, id string) error {
	it, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := r.store.DeleteItem(ctx, id); err != nil {
		return err
	}
	r.logger.Info("hardware deleted", zap.String("item_id", id))
	publish(ctx, r.pub, r.logger, events.ForItem(events.ItemDeleted, it))
	return nil
}

// Reconcile recomputes the counters of an item from its open loans.
func (r *Registry) Reconcile(ctx context.Context, id string) (*models.Item, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrItemNotFound
	}
	it, err := r.store.ReconcileItem(ctx, id)
	if err != nil {
		return nil, err
	}
	r.logger.Info("hardware reconciled",
		zap.String("item_id", it.ID),
		zap.Int("issued", it.IssuedCount),
		zap.Int("available", it.AvailableCount),
	)
	publish(ctx, r.pub, r.logger, events.ForItem(events.ItemReconciled, it))
	return it, nil
}

func publish(ctx context.Context, pub events.Publisher, logger *zap.Logger, e events.Event) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, e); err != nil {
		metrics.EventPublishFailures.Inc()
		logger.Warn("publish ledger event failed",
			zap.String("type", string(e.Type)),
			zap.String("item_id", e.ItemID),
			zap.String("loan_id", e.LoanID),
			zap.Error(err),
		)
	}
}
