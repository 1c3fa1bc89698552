package db

import (
	"context"
	"errors"

	"hardware_ledger/ledger"
	"hardware_ledger/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repo is the postgres-backed ledger store.
type Repo struct{ DB *gorm.DB }

var _ ledger.Store = (*Repo)(nil)

func NewRepo(db *gorm.DB) *Repo { return &Repo{DB: db} }

// ids are uuid columns; anything else cannot match a row
func validID(id string) bool { return uuid.Validate(id) == nil }

// storeErr passes ledger errors through and wraps everything else.
func storeErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, ledger.ErrConflict),
		errors.Is(err, ledger.ErrCapacity),
		errors.Is(err, ledger.ErrValidation):
		return err
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ledger.ErrDuplicateCode
	default:
		return ledger.StorageError(op, err)
	}
}

// Items

func (r *Repo) ListItems(ctx context.Context) ([]models.Item, error) {
	items := []models.Item{}
	err := r.DB.WithContext(ctx).Order("created_at DESC, id DESC").Find(&items).Error
	return items, storeErr("list items", err)
}

func (r *Repo) FindItemByID(ctx context.Context, id string) (*models.Item, error) {
	if !validID(id) {
		return nil, ledger.ErrItemNotFound
	}
	var it models.Item
	if err := r.DB.WithContext(ctx).First(&it, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ledger.ErrItemNotFound
		}
		return nil, storeErr("find item", err)
	}
	return &it, nil
}

func (r *Repo) FindItemByCode(ctx context.Context, code string) (*models.Item, error) {
	var it models.Item
	if err := r.DB.WithContext(ctx).Where("code = ?", code).First(&it).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ledger.ErrItemNotFound
		}
		return nil, storeErr("find item by code", err)
	}
	return &it, nil
}

func (r *Repo) CreateItem(ctx context.Context, it *models.Item) error {
	return storeErr("create item", r.DB.WithContext(ctx).Create(it).Error)
}

func (r *Repo) SaveItem(ctx context.Context, it *models.Item) error {
	if !validID(it.ID) {
		return ledger.ErrItemNotFound
	}
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Item{}).
			Where("id = ?", it.ID).
			Select("name", "code", "total_count", "issued_count", "available_count", "remarks", "updated_at").
			Updates(it)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ledger.ErrItemNotFound
		}
		return tx.First(it, "id = ?", it.ID).Error
	})
	return storeErr("save item", err)
}

// 有未归还记录时拒绝删除；锁住物品行，避免与借出并发
func (r *Repo) DeleteItem(ctx context.Context, id string) error {
	if !validID(id) {
		return ledger.ErrItemNotFound
	}
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var it models.Item
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&it, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ledger.ErrItemNotFound
			}
			return err
		}
		var open int64
		if err := tx.Model(&models.Loan{}).
			Where("item_id = ? AND status = ?", id, models.LoanIssued).
			Count(&open).Error; err != nil {
			return err
		}
		if open > 0 {
			return ledger.ErrItemHasOpenLoans
		}
		return tx.Delete(&models.Item{}, "id = ?", id).Error
	})
	return storeErr("delete item", err)
}

func (r *Repo) ReconcileItem(ctx context.Context, id string) (*models.Item, error) {
	if !validID(id) {
		return nil, ledger.ErrItemNotFound
	}
	var it models.Item
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&it, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ledger.ErrItemNotFound
			}
			return err
		}
		var open int64
		if err := tx.Model(&models.Loan{}).
			Where("item_id = ? AND status = ?", id, models.LoanIssued).
			Count(&open).Error; err != nil {
			return err
		}
		if err := tx.Model(&it).Updates(map[string]any{
			"issued_count":    open,
			"available_count": max(it.TotalCount-int(open), 0),
		}).Error; err != nil {
			return err
		}
		return tx.First(&it, "id = ?", id).Error
	})
	if err != nil {
		return nil, storeErr("reconcile item", err)
	}
	return &it, nil
}
