package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"creditledger/internal/config"
	"creditledger/internal/infrastructure/provider"
	"creditledger/internal/model"
	"creditledger/internal/repository"

	"gorm.io/gorm"
)

var ErrInvalidPackage = errors.New("未知的积分包")

// Charger 支付渠道侧的支付单创建能力
// 生产实现是 provider.Client，单测里用桩替换
type Charger interface {
	CreateCharge(ctx context.Context, req *provider.CreateChargeRequest) (*provider.ChargeResult, error)
}

// PurchaseService 购买发起
// 先在渠道侧创建支付单拿到引用，再落本地 PENDING 支付单，
// 之后用户去外部支付流程确认，结算结果由 webhook 异步回来
type PurchaseService struct {
	db          *gorm.DB
	cfg         *config.Config
	charger     Charger
	accountRepo *repository.AccountRepository
	intentRepo  *repository.IntentRepository
}

func NewPurchaseService(db *gorm.DB, cfg *config.Config, charger Charger) *PurchaseService {
	return &PurchaseService{
		db:          db,
		cfg:         cfg,
		charger:     charger,
		accountRepo: repository.NewAccountRepository(db),
		intentRepo:  repository.NewIntentRepository(db),
	}
}

type CreateIntentResult struct {
	IntentRef    string `json:"intent_ref"`
	ClientSecret string `json:"client_secret"`
	PackageID    string `json:"package_id"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	Credits      int64  `json:"credits"`
	Status       string `json:"status"`
}

// CreateIntent 发起一次积分包购买
//
// 本地支付单必须在用户跳转外部支付流程之前就存在，
// 否则结算通知先到会找不到支付单
func (s *PurchaseService) CreateIntent(ctx context.Context, accountNo, packageID string) (*CreateIntentResult, error) {
	pkg := s.cfg.FindPackage(packageID)
	if pkg == nil {
		return nil, ErrInvalidPackage
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Business.StoreTimeout())
	defer cancel()

	account, err := s.accountRepo.GetByAccountNo(ctx, nil, accountNo)
	if err != nil {
		return nil, err
	}

	charge, err := s.charger.CreateCharge(ctx, &provider.CreateChargeRequest{
		Amount:      pkg.Price,
		Currency:    pkg.Currency,
		Description: fmt.Sprintf("%s - %s", pkg.Name, pkg.Description),
		Metadata: map[string]string{
			"account_no": account.AccountNo,
			"package_id": pkg.ID,
			"credits":    strconv.FormatInt(pkg.Credits, 10),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("创建渠道支付单失败: %w", err)
	}

	intent := &model.PaymentIntent{
		IntentRef: charge.IntentRef,
		AccountNo: account.AccountNo,
		PackageID: pkg.ID,
		Amount:    pkg.Price,
		Currency:  pkg.Currency,
		Credits:   pkg.Credits,
		Status:    model.IntentStatusPending,
	}
	if err := s.intentRepo.Create(ctx, nil, intent); err != nil {
		return nil, fmt.Errorf("保存支付单失败: %w", err)
	}

	return &CreateIntentResult{
		IntentRef:    intent.IntentRef,
		ClientSecret: charge.ClientSecret,
		PackageID:    intent.PackageID,
		Amount:       intent.Amount,
		Currency:     intent.Currency,
		Credits:      intent.Credits,
		Status:       intent.Status,
	}, nil
}

func (s *PurchaseService) GetIntent(ctx context.Context, intentRef string) (*model.PaymentIntent, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Business.StoreTimeout())
	defer cancel()

	return s.intentRepo.GetByIntentRef(ctx, intentRef)
}

func (s *PurchaseService) ListIntents(ctx context.Context, accountNo string, page, pageSize int) ([]*model.PaymentIntent, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Business.StoreTimeout())
	defer cancel()

	return s.intentRepo.ListByAccountNo(ctx, accountNo, page, pageSize)
}
