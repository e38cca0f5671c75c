package repository

import (
	"testing"

	"creditledger/internal/model"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB 内存 sqlite，行为与生产 MySQL 对齐的部分：
// 唯一索引、条件更新的 RowsAffected、唯一键冲突翻译
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 内存库每个连接是独立实例，收紧到单连接
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&model.Account{},
		&model.PaymentIntent{},
		&model.CreditTransaction{},
		&model.OutboxMessage{},
	))
	return db
}

func seedAccount(t *testing.T, db *gorm.DB, accountNo string, balance int64) *model.Account {
	t.Helper()
	account := &model.Account{
		AccountNo:   accountNo,
		FarcasterID: "fid-" + accountNo,
		Balance:     balance,
	}
	require.NoError(t, db.Create(account).Error)
	return account
}
