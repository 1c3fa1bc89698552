package db

import (
	"context"
	"errors"
	"time"

	"hardware_ledger/ledger"
	"hardware_ledger/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Loans

func (r *Repo) loadLoan(tx *gorm.DB, id string) (*models.Loan, error) {
	var l models.Loan
	if err := tx.Preload("Item").First(&l, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ledger.ErrLoanNotFound
		}
		return nil, err
	}
	return &l, nil
}

// lockLoan 加行锁读取出借记录
func lockLoan(tx *gorm.DB, id string) (*models.Loan, error) {
	var l models.Loan
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&l, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ledger.ErrLoanNotFound
		}
		return nil, err
	}
	return &l, nil
}

// 归还/删除未归还记录时放回一件
func releaseUnit(tx *gorm.DB, itemID string) error {
	return tx.Model(&models.Item{}).
		Where("id = ?", itemID).
		Updates(map[string]any{
			"available_count": gorm.Expr("available_count + 1"),
			"issued_count":    gorm.Expr("GREATEST(issued_count - 1, 0)"),
		}).Error
}

// 借出：一个事务 = 条件扣减库存（available_count > 0）+ 新建 loan
func (r *Repo) OpenLoan(ctx context.Context, l *models.Loan) error {
	if !validID(l.ItemID) {
		return ledger.ErrItemNotFound
	}
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Item{}).
			Where("id = ? AND available_count > 0", l.ItemID).
			Updates(map[string]any{
				"available_count": gorm.Expr("available_count - 1"),
				"issued_count":    gorm.Expr("issued_count + 1"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var n int64
			if err := tx.Model(&models.Item{}).Where("id = ?", l.ItemID).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return ledger.ErrItemNotFound
			}
			return ledger.ErrNoAvailableUnits
		}

		if err := tx.Omit(clause.Associations).Create(l).Error; err != nil {
			return err
		}
		var it models.Item
		if err := tx.First(&it, "id = ?", l.ItemID).Error; err != nil {
			return err
		}
		l.Item = &it
		return nil
	})
	return storeErr("open loan", err)
}

// 归还：锁住 loan → 置为 returned → 放回库存
func (r *Repo) CloseLoan(ctx context.Context, id string, at time.Time) (*models.Loan, error) {
	if !validID(id) {
		return nil, ledger.ErrLoanNotFound
	}
	var out *models.Loan
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		l, err := lockLoan(tx, id)
		if err != nil {
			return err
		}
		if !l.IsOpen() {
			return ledger.ErrAlreadyReturned
		}
		if err := tx.Model(l).Updates(map[string]any{
			"status":      models.LoanReturned,
			"return_date": at,
		}).Error; err != nil {
			return err
		}
		if err := releaseUnit(tx, l.ItemID); err != nil {
			return err
		}
		out, err = r.loadLoan(tx, id)
		return err
	})
	if err != nil {
		return nil, storeErr("close loan", err)
	}
	return out, nil
}

func (r *Repo) FindLoanByID(ctx context.Context, id string) (*models.Loan, error) {
	if !validID(id) {
		return nil, ledger.ErrLoanNotFound
	}
	l, err := r.loadLoan(r.DB.WithContext(ctx), id)
	if err != nil {
		return nil, storeErr("find loan", err)
	}
	return l, nil
}

func (r *Repo) ListLoans(ctx context.Context, f ledger.LoanFilter) ([]models.Loan, error) {
	q := r.DB.WithContext(ctx).Model(&models.Loan{}).Preload("Item").Order("issue_date DESC")
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.DueFrom != nil {
		q = q.Where("due_date >= ?", *f.DueFrom)
	}
	if f.DueBefore != nil {
		q = q.Where("due_date < ?", *f.DueBefore)
	}
	ls := []models.Loan{}
	if err := q.Find(&ls).Error; err != nil {
		return nil, storeErr("list loans", err)
	}
	return ls, nil
}

func (r *Repo) PatchLoan(ctx context.Context, id string, p ledger.LoanPatch) (*models.Loan, error) {
	if !validID(id) {
		return nil, ledger.ErrLoanNotFound
	}
	var out *models.Loan
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Loan{}).Where("id = ?", id).Updates(p.Columns())
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ledger.ErrLoanNotFound
		}
		var err error
		out, err = r.loadLoan(tx, id)
		return err
	})
	if err != nil {
		return nil, storeErr("patch loan", err)
	}
	return out, nil
}

// 删除：未归还的先放回库存
func (r *Repo) DeleteLoan(ctx context.Context, id string) (*models.Loan, error) {
	if !validID(id) {
		return nil, ledger.ErrLoanNotFound
	}
	var out *models.Loan
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		l, err := lockLoan(tx, id)
		if err != nil {
			return err
		}
		if l.IsOpen() {
			if err := releaseUnit(tx, l.ItemID); err != nil {
				return err
			}
		}
		if out, err = r.loadLoan(tx, id); err != nil {
			return err
		}
		return tx.Delete(&models.Loan{}, "id = ?", id).Error
	})
	if err != nil {
		return nil, storeErr("delete loan", err)
	}
	return out, nil
}
