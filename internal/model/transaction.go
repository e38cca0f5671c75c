package model

import (
	"fmt"
	"time"
)

// ============================================================================
// 积分流水类型常量
// ============================================================================

const (
	TransactionTypeSignup   = "SIGNUP"   // 注册赠送
	TransactionTypeRecharge = "RECHARGE" // 购买到账
	TransactionTypeSpend    = "SPEND"    // 消费扣减
)

// ============================================================================
// 积分流水实体
// ============================================================================

// CreditTransaction 积分流水表
// 记录账户的每一笔积分变动，是对账的核心依据
//
// 【重要】流水表设计原则：
// 1. 只追加，不修改，不删除 —— 保证审计可追溯
// 2. 流水号全局唯一 —— 到账流水用确定性流水号，天然防重复入账
// 3. 记录交易前后余额 —— 便于校验余额一致性
//
// 到账流水号由 intent_ref 推导（见 GrantTransactionNo），
// 主链路和补偿任务写的是同一个流水号，唯一索引保证同一笔支付
// 无论通知重复多少次、补偿扫到多少次，积分只会入账一次
type CreditTransaction struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo string    `gorm:"type:varchar(80);uniqueIndex;not null" json:"transaction_no"` // 流水号（全局唯一，幂等键）
	AccountNo     string    `gorm:"type:varchar(64);index;not null" json:"account_no"`
	IntentRef     string    `gorm:"type:varchar(64);index" json:"intent_ref"` // 关联支付单（消费流水为空）
	Amount        int64     `gorm:"not null" json:"amount"`                   // 积分变动（正数入账，负数扣减）
	Type          string    `gorm:"type:varchar(20);not null" json:"type"`
	BalanceBefore int64     `gorm:"not null" json:"balance_before"` // 交易前余额
	BalanceAfter  int64     `gorm:"not null" json:"balance_after"`  // 交易后余额
	Remark        string    `gorm:"type:varchar(256)" json:"remark"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (CreditTransaction) TableName() string {
	return "credit_transaction"
}

// GrantTransactionNo 到账流水号（确定性）
// 同一个支付单只可能产生一条到账流水
func GrantTransactionNo(intentRef string) string {
	return fmt.Sprintf("GRANT-%s", intentRef)
}

// SignupTransactionNo 注册赠送流水号（确定性）
func SignupTransactionNo(accountNo string) string {
	return fmt.Sprintf("SIGNUP-%s", accountNo)
}
