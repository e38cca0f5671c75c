package service

import (
	"context"
	"errors"
	"fmt"

	"creditledger/internal/config"
	"creditledger/internal/model"
	"creditledger/internal/repository"
	"creditledger/pkg/idgen"

	"gorm.io/gorm"
)

type AccountService struct {
	db              *gorm.DB
	cfg             *config.Config
	accountRepo     *repository.AccountRepository
	transactionRepo *repository.TransactionRepository
}

func NewAccountService(db *gorm.DB, cfg *config.Config) *AccountService {
	return &AccountService{
		db:              db,
		cfg:             cfg,
		accountRepo:     repository.NewAccountRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
	}
}

// GetOrCreate 按外部身份解析账户，不存在则创建并发放注册赠送积分
//
// 并发对同一身份调用时，CreateIfAbsent 的唯一键冲突保证只会建一个账户，
// 没抢到插入的一方直接读赢家建好的账户返回；
// 赠送积分和注册流水在同一个事务里落库，保证对账恒等式从第一天就成立
func (s *AccountService) GetOrCreate(ctx context.Context, farcasterID, walletAddress string) (*model.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Business.StoreTimeout())
	defer cancel()

	account, err := s.accountRepo.GetByFarcasterID(ctx, farcasterID)
	if err == nil {
		// 钱包地址有变化时顺手更新
		if walletAddress != "" && walletAddress != account.WalletAddress {
			if err := s.accountRepo.UpdateWallet(ctx, account.AccountNo, walletAddress); err != nil {
				return nil, fmt.Errorf("更新钱包地址失败: %w", err)
			}
			account.WalletAddress = walletAddress
		}
		return account, nil
	}

	if !errors.Is(err, repository.ErrAccountNotFound) {
		return nil, fmt.Errorf("查询账户失败: %w", err)
	}

	grant := s.cfg.Business.InitialCreditGrant
	newAccount := &model.Account{
		AccountNo:     idgen.GenerateAccountNo(),
		FarcasterID:   farcasterID,
		WalletAddress: walletAddress,
		Balance:       grant,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		created, err := s.accountRepo.CreateIfAbsent(ctx, tx, newAccount)
		if err != nil {
			return fmt.Errorf("创建账户失败: %w", err)
		}
		if !created || grant <= 0 {
			// 并发请求先建好了账户，赠送流水由赢家负责
			return nil
		}

		trans := &model.CreditTransaction{
			TransactionNo: model.SignupTransactionNo(newAccount.AccountNo),
			AccountNo:     newAccount.AccountNo,
			Amount:        grant,
			Type:          model.TransactionTypeSignup,
			BalanceBefore: 0,
			BalanceAfter:  grant,
			Remark:        "注册赠送",
		}
		if err := s.transactionRepo.Create(ctx, tx, trans); err != nil {
			return fmt.Errorf("记录注册流水失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.accountRepo.GetByFarcasterID(ctx, farcasterID)
}

func (s *AccountService) GetByAccountNo(ctx context.Context, accountNo string) (*model.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Business.StoreTimeout())
	defer cancel()

	return s.accountRepo.GetByAccountNo(ctx, nil, accountNo)
}

func (s *AccountService) ListTransactions(ctx context.Context, accountNo string, page, pageSize int) ([]*model.CreditTransaction, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Business.StoreTimeout())
	defer cancel()

	return s.transactionRepo.ListByAccountNo(ctx, accountNo, page, pageSize)
}
