package repository

import (
	"context"
	"testing"

	"creditledger/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateIfAbsent(t *testing.T) {
	db := newTestDB(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()

	created, err := repo.CreateIfAbsent(ctx, nil, &model.Account{
		AccountNo:   "ACC001",
		FarcasterID: "fid-1",
		Balance:     3,
	})
	require.NoError(t, err)
	assert.True(t, created)

	// 同一外部身份再插一次：不生效，也不报错
	created, err = repo.CreateIfAbsent(ctx, nil, &model.Account{
		AccountNo:   "ACC002",
		FarcasterID: "fid-1",
		Balance:     3,
	})
	require.NoError(t, err)
	assert.False(t, created)

	var count int64
	require.NoError(t, db.Model(&model.Account{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	account, err := repo.GetByFarcasterID(ctx, "fid-1")
	require.NoError(t, err)
	assert.Equal(t, "ACC001", account.AccountNo)
}

func TestGetByAccountNoNotFound(t *testing.T) {
	db := newTestDB(t)
	repo := NewAccountRepository(db)

	_, err := repo.GetByAccountNo(context.Background(), nil, "ACC404")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestDeduct(t *testing.T) {
	db := newTestDB(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()

	seedAccount(t, db, "ACC001", 10)

	err := repo.Deduct(ctx, nil, "ACC001", 4, 0)
	require.NoError(t, err)

	account, err := repo.GetByAccountNo(ctx, nil, "ACC001")
	require.NoError(t, err)
	assert.Equal(t, int64(6), account.Balance)
	assert.Equal(t, 1, account.Version)
}

func TestDeductInsufficientBalance(t *testing.T) {
	db := newTestDB(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()

	seedAccount(t, db, "ACC001", 3)

	// 扣减失败必须是全有或全无，余额保持不变
	err := repo.Deduct(ctx, nil, "ACC001", 5, 0)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	account, err := repo.GetByAccountNo(ctx, nil, "ACC001")
	require.NoError(t, err)
	assert.Equal(t, int64(3), account.Balance)
	assert.Equal(t, 0, account.Version)
}

func TestDeductStaleVersion(t *testing.T) {
	db := newTestDB(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()

	seedAccount(t, db, "ACC001", 10)

	// 版本号已被别的写入抬高
	require.NoError(t, repo.Increase(ctx, nil, "ACC001", 1))

	err := repo.Deduct(ctx, nil, "ACC001", 2, 0)
	assert.ErrorIs(t, err, ErrOptimisticLock)

	account, err := repo.GetByAccountNo(ctx, nil, "ACC001")
	require.NoError(t, err)
	assert.Equal(t, int64(11), account.Balance)
}

func TestDeductAccountMissing(t *testing.T) {
	db := newTestDB(t)
	repo := NewAccountRepository(db)

	err := repo.Deduct(context.Background(), nil, "ACC404", 1, 0)
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestIncrease(t *testing.T) {
	db := newTestDB(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()

	seedAccount(t, db, "ACC001", 0)

	require.NoError(t, repo.Increase(ctx, nil, "ACC001", 15))

	account, err := repo.GetByAccountNo(ctx, nil, "ACC001")
	require.NoError(t, err)
	assert.Equal(t, int64(15), account.Balance)

	assert.ErrorIs(t, repo.Increase(ctx, nil, "ACC404", 1), ErrAccountNotFound)
}

func TestUpdateWallet(t *testing.T) {
	db := newTestDB(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()

	seedAccount(t, db, "ACC001", 3)

	require.NoError(t, repo.UpdateWallet(ctx, "ACC001", "0xabc"))

	account, err := repo.GetByAccountNo(ctx, nil, "ACC001")
	require.NoError(t, err)
	assert.Equal(t, "0xabc", account.WalletAddress)

	assert.ErrorIs(t, repo.UpdateWallet(ctx, "ACC404", "0xdef"), ErrAccountNotFound)
}
