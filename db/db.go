package db

import (
	"fmt"

	"hardware_ledger/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func ConnectDB(dsn string) (*gorm.DB, error) {
	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		// 唯一索引冲突 -> gorm.ErrDuplicatedKey
		TranslateError: true,
		// 删除物品后历史记录保留（item 为空），不建外键
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := Migrate(conn); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return conn, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Item{}, &models.Loan{}); err != nil {
		return err
	}

	// 统计某物品未归还数量（删除检查、对账）
	if err := db.Exec(fmt.Sprintf(`
	  CREATE INDEX IF NOT EXISTS %s_open_by_item
	  ON %s (item_id)
	  WHERE status = 'issued';
	`, models.LoanTable, models.LoanTable)).Error; err != nil {
		return err
	}

	// 今日到期 / 逾期查询
	if err := db.Exec(fmt.Sprintf(`
	  CREATE INDEX IF NOT EXISTS %s_status_due
	  ON %s (status, due_date);
	`, models.LoanTable, models.LoanTable)).Error; err != nil {
		return err
	}

	return nil
}
