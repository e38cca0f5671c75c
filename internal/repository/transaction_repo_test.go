package repository

import (
	"context"
	"testing"

	"creditledger/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestTransactionNoUnique(t *testing.T) {
	db := newTestDB(t)
	repo := NewTransactionRepository(db)
	ctx := context.Background()

	trans := &model.CreditTransaction{
		TransactionNo: model.GrantTransactionNo("pi_001"),
		AccountNo:     "ACC001",
		IntentRef:     "pi_001",
		Amount:        15,
		Type:          model.TransactionTypeRecharge,
		BalanceBefore: 3,
		BalanceAfter:  18,
	}
	require.NoError(t, repo.Create(ctx, nil, trans))

	// 同一支付单的到账流水只能写一条，这是防重复入账的最终闸门
	dup := &model.CreditTransaction{
		TransactionNo: model.GrantTransactionNo("pi_001"),
		AccountNo:     "ACC001",
		IntentRef:     "pi_001",
		Amount:        15,
		Type:          model.TransactionTypeRecharge,
	}
	err := repo.Create(ctx, nil, dup)
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestGetByTransactionNo(t *testing.T) {
	db := newTestDB(t)
	repo := NewTransactionRepository(db)
	ctx := context.Background()

	// 不存在时返回 (nil, nil)
	trans, err := repo.GetByTransactionNo(ctx, "GRANT-pi_404")
	require.NoError(t, err)
	assert.Nil(t, trans)

	require.NoError(t, repo.Create(ctx, nil, &model.CreditTransaction{
		TransactionNo: "TXN001",
		AccountNo:     "ACC001",
		Amount:        -1,
		Type:          model.TransactionTypeSpend,
	}))

	trans, err = repo.GetByTransactionNo(ctx, "TXN001")
	require.NoError(t, err)
	require.NotNil(t, trans)
	assert.Equal(t, int64(-1), trans.Amount)
}

func TestSumByAccountNo(t *testing.T) {
	db := newTestDB(t)
	repo := NewTransactionRepository(db)
	ctx := context.Background()

	rows := []*model.CreditTransaction{
		{TransactionNo: "SIGNUP-ACC001", AccountNo: "ACC001", Amount: 3, Type: model.TransactionTypeSignup},
		{TransactionNo: "GRANT-pi_001", AccountNo: "ACC001", Amount: 15, Type: model.TransactionTypeRecharge},
		{TransactionNo: "TXN001", AccountNo: "ACC001", Amount: -4, Type: model.TransactionTypeSpend},
		{TransactionNo: "TXN002", AccountNo: "ACC002", Amount: -1, Type: model.TransactionTypeSpend},
	}
	for _, r := range rows {
		require.NoError(t, repo.Create(ctx, nil, r))
	}

	sum, err := repo.SumByAccountNo(ctx, "ACC001")
	require.NoError(t, err)
	assert.Equal(t, int64(14), sum)

	sum, err = repo.SumByAccountNo(ctx, "ACC999")
	require.NoError(t, err)
	assert.Equal(t, int64(0), sum)
}
