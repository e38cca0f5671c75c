package repository

import (
	"context"
	"errors"

	"creditledger/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrAccountNotFound     = errors.New("账户不存在")
	ErrInsufficientBalance = errors.New("积分余额不足")
	ErrOptimisticLock      = errors.New("乐观锁冲突，请重试")
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// CreateIfAbsent 按外部身份唯一键插入账户，已存在则不动
// 返回是否真正插入了新行，并发调用同一身份时只有一个返回 true
func (r *AccountRepository) CreateIfAbsent(ctx context.Context, tx *gorm.DB, account *model.Account) (bool, error) {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "farcaster_id"}},
			DoNothing: true,
		}).
		Create(account)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *AccountRepository) GetByFarcasterID(ctx context.Context, farcasterID string) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).Where("farcaster_id = ?", farcasterID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// GetByAccountNo 按账户号查询
// 事务内调用必须把 tx 传进来，否则读到的是事务外的快照
func (r *AccountRepository) GetByAccountNo(ctx context.Context, tx *gorm.DB, accountNo string) (*model.Account, error) {
	if tx == nil {
		tx = r.db
	}
	var account model.Account
	err := tx.WithContext(ctx).Where("account_no = ?", accountNo).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// UpdateWallet 更新钱包地址
func (r *AccountRepository) UpdateWallet(ctx context.Context, accountNo, walletAddress string) error {
	result := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("account_no = ?", accountNo).
		Update("wallet_address", walletAddress)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// Deduct 原子扣减积分
//
// 条件更新 balance >= amount 保证余额永远不会被扣成负数，
// version 条件保证"读余额-扣余额"之间没有其他写入插队；
// RowsAffected == 0 时回查一次，区分余额不足和版本冲突
func (r *AccountRepository) Deduct(ctx context.Context, tx *gorm.DB, accountNo string, amount int64, version int) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Account{}).
		Where("account_no = ? AND balance >= ? AND version = ?", accountNo, amount, version).
		Updates(map[string]interface{}{
			"balance": gorm.Expr("balance - ?", amount),
			"version": gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		account, err := r.GetByAccountNo(ctx, tx, accountNo)
		if err != nil {
			return err
		}
		if account.Balance < amount {
			return ErrInsufficientBalance
		}
		return ErrOptimisticLock
	}

	return nil
}

// Increase 原子增加积分
func (r *AccountRepository) Increase(ctx context.Context, tx *gorm.DB, accountNo string, amount int64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Account{}).
		Where("account_no = ?", accountNo).
		Updates(map[string]interface{}{
			"balance": gorm.Expr("balance + ?", amount),
			"version": gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}

	return nil
}
