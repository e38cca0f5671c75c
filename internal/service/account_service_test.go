package service

import (
	"context"
	"testing"

	"creditledger/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateGrantsSignupCredits(t *testing.T) {
	db := newTestDB(t)
	svc := NewAccountService(db, newTestConfig())
	ctx := context.Background()

	account, err := svc.GetOrCreate(ctx, "fid-1", "0xabc")
	require.NoError(t, err)
	assert.Equal(t, int64(3), account.Balance)
	assert.Equal(t, "0xabc", account.WalletAddress)
	assert.NotEmpty(t, account.AccountNo)

	// 注册赠送必须有对应流水，恒等式从第一笔就成立
	var trans model.CreditTransaction
	require.NoError(t, db.Where("transaction_no = ?",
		model.SignupTransactionNo(account.AccountNo)).First(&trans).Error)
	assert.Equal(t, int64(3), trans.Amount)
	assert.Equal(t, model.TransactionTypeSignup, trans.Type)
}

func TestGetOrCreateExistingAccount(t *testing.T) {
	db := newTestDB(t)
	svc := NewAccountService(db, newTestConfig())
	ctx := context.Background()

	first, err := svc.GetOrCreate(ctx, "fid-1", "0xabc")
	require.NoError(t, err)

	// 第二次解析：返回同一账户，不重复赠送
	second, err := svc.GetOrCreate(ctx, "fid-1", "0xabc")
	require.NoError(t, err)
	assert.Equal(t, first.AccountNo, second.AccountNo)
	assert.Equal(t, int64(3), second.Balance)

	var count int64
	require.NoError(t, db.Model(&model.CreditTransaction{}).
		Where("account_no = ?", first.AccountNo).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestGetOrCreateUpdatesWallet(t *testing.T) {
	db := newTestDB(t)
	svc := NewAccountService(db, newTestConfig())
	ctx := context.Background()

	_, err := svc.GetOrCreate(ctx, "fid-1", "0xabc")
	require.NoError(t, err)

	account, err := svc.GetOrCreate(ctx, "fid-1", "0xdef")
	require.NoError(t, err)
	assert.Equal(t, "0xdef", account.WalletAddress)
}

func TestGetOrCreateZeroGrant(t *testing.T) {
	db := newTestDB(t)
	cfg := newTestConfig()
	cfg.Business.InitialCreditGrant = 0
	svc := NewAccountService(db, cfg)

	account, err := svc.GetOrCreate(context.Background(), "fid-1", "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), account.Balance)

	// 零赠送时不落注册流水
	var count int64
	require.NoError(t, db.Model(&model.CreditTransaction{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}
