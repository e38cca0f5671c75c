package job

import (
	"context"
	"log"
	"time"

	"creditledger/internal/config"
	"creditledger/internal/service"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// ReconcileSweepJob 对账补偿任务
//
// 周期性扫描"已完成但未入账"的支付单并补偿入账，
// 修复主链路在状态转移后、入账前崩溃留下的缺口。
// 补偿完全基于落库状态推导，不依赖任何内存协调，
// 与在线流量并发运行是安全的（幂等条件与主链路一致）
type ReconcileSweepJob struct {
	ledgerService *service.LedgerService
	stopCh        chan struct{}
	interval      time.Duration
}

func NewReconcileSweepJob(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *ReconcileSweepJob {
	interval := time.Duration(cfg.Business.SweepIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &ReconcileSweepJob{
		ledgerService: service.NewLedgerService(db, redisClient, cfg),
		stopCh:        make(chan struct{}),
		interval:      interval,
	}
}

func (j *ReconcileSweepJob) Start(ctx context.Context) {
	log.Println("[ReconcileSweepJob] 对账补偿任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[ReconcileSweepJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[ReconcileSweepJob] 任务停止")
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *ReconcileSweepJob) Stop() {
	close(j.stopCh)
}

func (j *ReconcileSweepJob) sweep(ctx context.Context) {
	repaired, err := j.ledgerService.RepairMissingGrants(ctx)
	if err != nil {
		log.Printf("[ReconcileSweepJob] 补偿扫描失败: %v", err)
		return
	}
	if repaired > 0 {
		log.Printf("[ReconcileSweepJob] 本次补偿入账 %d 笔", repaired)
	}
}
