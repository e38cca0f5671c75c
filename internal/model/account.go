package model

import (
	"time"
)

// Account 用户积分账户表
// 每个外部身份（Farcaster ID）对应一个账户，记录可用积分余额
// 余额是整个系统唯一需要并发控制的共享状态
type Account struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountNo     string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"account_no"`     // 账户号（对外的不透明ID）
	FarcasterID   string    `gorm:"type:varchar(128);uniqueIndex;not null" json:"farcaster_id"`  // 外部身份标识，身份提供方下发
	WalletAddress string    `gorm:"type:varchar(128)" json:"wallet_address"`                     // 钱包地址（可选）
	Balance       int64     `gorm:"not null;default:0" json:"balance"`                           // 可用积分余额，任何时刻不允许为负
	Version       int       `gorm:"not null;default:0" json:"version"`                           // 乐观锁版本号
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string {
	return "account"
}
