package repository

import (
	"context"
	"errors"
	"time"

	"creditledger/internal/model"

	"gorm.io/gorm"
)

var (
	ErrIntentNotFound = errors.New("支付单不存在")
	// ErrAlreadyProcessed 支付单已处于目标终态，重复通知，信息性错误
	ErrAlreadyProcessed = errors.New("支付单已处理，请勿重复操作")
	// ErrConflictingState 支付单已处于相反的终态
	// 正常的渠道行为不会出现这种情况，属于上游契约违约
	ErrConflictingState = errors.New("支付单状态冲突")
)

type IntentRepository struct {
	db *gorm.DB
}

func NewIntentRepository(db *gorm.DB) *IntentRepository {
	return &IntentRepository{db: db}
}

func (r *IntentRepository) Create(ctx context.Context, tx *gorm.DB, intent *model.PaymentIntent) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(intent).Error
}

func (r *IntentRepository) GetByIntentRef(ctx context.Context, intentRef string) (*model.PaymentIntent, error) {
	var intent model.PaymentIntent
	err := r.db.WithContext(ctx).Where("intent_ref = ?", intentRef).First(&intent).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrIntentNotFound
		}
		return nil, err
	}
	return &intent, nil
}

// MarkCompleted 把支付单从 PENDING 置为 COMPLETED（test-and-set）
//
// 条件更新 WHERE status = PENDING 保证并发的重复通知里
// 只有一个能完成状态转移；没抢到的回查当前状态分类返回：
//   - 已是 COMPLETED -> ErrAlreadyProcessed（幂等命中，调用方当成功处理）
//   - 已是 FAILED    -> ErrConflictingState（绝不回退，也绝不补发积分）
// 两种情况都把当前支付单一并返回，便于调用方记日志
func (r *IntentRepository) MarkCompleted(ctx context.Context, tx *gorm.DB, intentRef string) (*model.PaymentIntent, error) {
	return r.transition(ctx, tx, intentRef, model.IntentStatusCompleted)
}

// MarkFailed 把支付单从 PENDING 置为 FAILED，语义与 MarkCompleted 对称
func (r *IntentRepository) MarkFailed(ctx context.Context, tx *gorm.DB, intentRef string) (*model.PaymentIntent, error) {
	return r.transition(ctx, tx, intentRef, model.IntentStatusFailed)
}

func (r *IntentRepository) transition(ctx context.Context, tx *gorm.DB, intentRef, toStatus string) (*model.PaymentIntent, error) {
	if !model.CanTransitionTo(model.IntentStatusPending, toStatus) {
		return nil, ErrConflictingState
	}

	if tx == nil {
		tx = r.db
	}

	updates := map[string]interface{}{
		"status": toStatus,
	}
	if toStatus == model.IntentStatusCompleted {
		now := time.Now()
		updates["completed_at"] = &now
	}

	result := tx.WithContext(ctx).
		Model(&model.PaymentIntent{}).
		Where("intent_ref = ? AND status = ?", intentRef, model.IntentStatusPending).
		Updates(updates)

	if result.Error != nil {
		return nil, result.Error
	}

	// 回查走同一个事务句柄，保证读到的是本事务视角的状态
	var intent model.PaymentIntent
	if err := tx.WithContext(ctx).Where("intent_ref = ?", intentRef).First(&intent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrIntentNotFound
		}
		return nil, err
	}

	if result.RowsAffected == 0 {
		if intent.Status == toStatus {
			return &intent, ErrAlreadyProcessed
		}
		return &intent, ErrConflictingState
	}

	return &intent, nil
}

// GetCompletedBefore 查询在指定时间之前完成的支付单（补偿任务用）
// 只看"冷却"了一段时间的支付单，避免跟正在入账的主链路抢同一批数据
func (r *IntentRepository) GetCompletedBefore(ctx context.Context, before time.Time, limit int) ([]*model.PaymentIntent, error) {
	var intents []*model.PaymentIntent
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", model.IntentStatusCompleted, before).
		Order("updated_at ASC").
		Limit(limit).
		Find(&intents).Error
	return intents, err
}

func (r *IntentRepository) ListByAccountNo(ctx context.Context, accountNo string, page, pageSize int) ([]*model.PaymentIntent, int64, error) {
	var intents []*model.PaymentIntent
	var total int64

	query := r.db.WithContext(ctx).Model(&model.PaymentIntent{}).Where("account_no = ?", accountNo)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&intents).Error

	return intents, total, err
}
