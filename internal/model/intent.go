package model

import (
	"time"
)

const (
	IntentStatusPending   = "PENDING"
	IntentStatusCompleted = "COMPLETED"
	IntentStatusFailed    = "FAILED"
)

// ValidStatusTransitions 支付单状态机
// PENDING 是唯一的非终态；COMPLETED / FAILED 都是终态，永不回退
var ValidStatusTransitions = map[string][]string{
	IntentStatusPending: {IntentStatusCompleted, IntentStatusFailed},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidStatusTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// PaymentIntent 支付单表
// 每次购买积分包都会先落一条 PENDING 记录，再跳转外部支付
// 支付渠道的异步结算通知按 intent_ref 关联回来，状态只允许转移一次
type PaymentIntent struct {
	ID          int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	IntentRef   string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"intent_ref"` // 支付渠道下发的支付单引用
	AccountNo   string     `gorm:"type:varchar(64);index;not null" json:"account_no"`
	PackageID   string     `gorm:"type:varchar(32);not null" json:"package_id"` // 积分包标识
	Amount      int64      `gorm:"not null" json:"amount"`                      // 支付金额（最小货币单位）
	Currency    string     `gorm:"type:varchar(8);not null" json:"currency"`
	Credits     int64      `gorm:"not null" json:"credits"` // 承诺到账的积分数
	Status      string     `gorm:"type:varchar(20);index;not null" json:"status"`
	CompletedAt *time.Time `json:"completed_at"`
	CreatedAt   time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PaymentIntent) TableName() string {
	return "payment_intent"
}
