package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"creditledger/internal/config"
	"creditledger/internal/model"
	"creditledger/internal/repository"
	"creditledger/pkg/idgen"

	"gorm.io/gorm"
)

// DefaultSpendCost 一次计费动作的默认积分消耗（一次查询 = 一积分）
const DefaultSpendCost = 1

// 乐观锁冲突时的重试次数
// 冲突说明同一账户有并发写入，重读版本号再试即可；
// 余额不足不会走到重试，第一次回查就直接返回
const maxSpendRetries = 3

var ErrSpendConflict = errors.New("账户操作冲突，请重试")

// SpendService 计费动作闸口
// 消费积分的同步检查-扣减路径：余额不够立刻拒绝且不产生任何变更，
// 够则原子扣减并落一条消费流水
type SpendService struct {
	db              *gorm.DB
	cfg             *config.Config
	accountRepo     *repository.AccountRepository
	transactionRepo *repository.TransactionRepository
}

func NewSpendService(db *gorm.DB, cfg *config.Config) *SpendService {
	return &SpendService{
		db:              db,
		cfg:             cfg,
		accountRepo:     repository.NewAccountRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
	}
}

// Spend 消费积分
//
// "检查-扣减"整体上必须对同一账户的并发操作表现为原子：
// 余额只剩 1 时两个并发的 Spend 只能成功一个。
// 原子性由 Deduct 的条件更新保证（balance >= cost AND version = ?），
// 这里的循环只负责在版本号被其他写入抬高时重读重试
func (s *SpendService) Spend(ctx context.Context, accountNo string, cost int64) (*model.Account, error) {
	if cost <= 0 {
		return nil, fmt.Errorf("消费积分数必须大于0")
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Business.StoreTimeout())
	defer cancel()

	for i := 0; i < maxSpendRetries; i++ {
		account, err := s.accountRepo.GetByAccountNo(ctx, nil, accountNo)
		if err != nil {
			return nil, err
		}

		if account.Balance < cost {
			return nil, repository.ErrInsufficientBalance
		}

		err = s.db.Transaction(func(tx *gorm.DB) error {
			if err := s.accountRepo.Deduct(ctx, tx, accountNo, cost, account.Version); err != nil {
				return err
			}

			trans := &model.CreditTransaction{
				TransactionNo: idgen.GenerateTransactionNo(),
				AccountNo:     accountNo,
				Amount:        -cost,
				Type:          model.TransactionTypeSpend,
				BalanceBefore: account.Balance,
				BalanceAfter:  account.Balance - cost,
				Remark:        "查询消费",
			}
			return s.transactionRepo.Create(ctx, tx, trans)
		})

		if errors.Is(err, repository.ErrOptimisticLock) {
			log.Printf("[Spend] 乐观锁冲突，重试: accountNo=%s, attempt=%d", accountNo, i+1)
			continue
		}
		if err != nil {
			return nil, err
		}

		return s.accountRepo.GetByAccountNo(ctx, nil, accountNo)
	}

	return nil, ErrSpendConflict
}
