package service

import (
	"context"
	"testing"

	"creditledger/internal/config"
	"creditledger/internal/model"
	"creditledger/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&model.Account{},
		&model.PaymentIntent{},
		&model.CreditTransaction{},
		&model.OutboxMessage{},
	))
	return db
}

func newTestConfig() *config.Config {
	return &config.Config{
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{SettlementResult: "credit_settlement_result"},
		},
		Business: config.BusinessConfig{
			InitialCreditGrant:    3,
			StoreTimeoutSeconds:   3,
			SweepIntervalSeconds:  30,
			SweepSettleLagSeconds: 0,
			SweepBatchSize:        50,
			MaxRetryCount:         5,
		},
		Packages: []config.PackageConfig{
			{ID: "basic", Name: "Basic Package", Credits: 5, Price: 100, Currency: "usd", Description: "5 lookups"},
			{ID: "standard", Name: "Standard Package", Credits: 15, Price: 250, Currency: "usd", Description: "15 lookups"},
			{ID: "premium", Name: "Premium Package", Credits: 50, Price: 700, Currency: "usd", Description: "50 lookups"},
		},
	}
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

// seedPendingIntent 直接落一条 PENDING 支付单，模拟购买发起完成后的状态
func seedPendingIntent(t *testing.T, db *gorm.DB, intentRef, accountNo string, credits int64) *model.PaymentIntent {
	t.Helper()
	intent := &model.PaymentIntent{
		IntentRef: intentRef,
		AccountNo: accountNo,
		PackageID: "standard",
		Amount:    250,
		Currency:  "usd",
		Credits:   credits,
		Status:    model.IntentStatusPending,
	}
	require.NoError(t, repository.NewIntentRepository(db).Create(context.Background(), nil, intent))
	return intent
}

func accountBalance(t *testing.T, db *gorm.DB, accountNo string) int64 {
	t.Helper()
	account, err := repository.NewAccountRepository(db).GetByAccountNo(context.Background(), nil, accountNo)
	require.NoError(t, err)
	return account.Balance
}

func ledgerSum(t *testing.T, db *gorm.DB, accountNo string) int64 {
	t.Helper()
	sum, err := repository.NewTransactionRepository(db).SumByAccountNo(context.Background(), accountNo)
	require.NoError(t, err)
	return sum
}
