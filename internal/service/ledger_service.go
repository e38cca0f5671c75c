package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"creditledger/internal/config"
	"creditledger/internal/infrastructure/lock"
	"creditledger/internal/model"
	"creditledger/internal/repository"
	"creditledger/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// LedgerService 积分账本引擎
//
// 职责：把支付渠道"至少一次"投递的结算通知，归约成"恰好一次"的积分入账。
//
// 【两道幂等闸门】
// 1. 支付单状态机 test-and-set：PENDING -> COMPLETED 只会成功一次，
//    重复通知命中 AlreadyProcessed 直接返回，不再碰余额
// 2. 到账流水的确定性流水号 GRANT-<intent_ref> + 唯一索引：
//    主链路和补偿任务写的是同一条流水，谁后写谁冲突，
//    这是防止任何路径重复入账的最终闸门
//
// 【顺序约束】先转移状态，再动余额，绝不能反过来。
// 状态转移成功后、入账前崩溃 -> 支付单 COMPLETED 但无到账流水，
// 由补偿任务（RepairMissingGrants）补齐；
// 如果反过来先入账再转移状态，崩溃后重试会命中 PENDING 重复入账
type LedgerService struct {
	db              *gorm.DB
	redisClient     *redis.Client
	cfg             *config.Config
	accountRepo     *repository.AccountRepository
	intentRepo      *repository.IntentRepository
	transactionRepo *repository.TransactionRepository
	outboxRepo      *repository.OutboxRepository
}

func NewLedgerService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *LedgerService {
	return &LedgerService{
		db:              db,
		redisClient:     redisClient,
		cfg:             cfg,
		accountRepo:     repository.NewAccountRepository(db),
		intentRepo:      repository.NewIntentRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		outboxRepo:      repository.NewOutboxRepository(db),
	}
}

// ReconcileSuccess 处理支付成功结算通知（幂等）
//
// 同一个 intent_ref 无论通知投递多少次，积分只入账一次
func (s *LedgerService) ReconcileSuccess(ctx context.Context, intentRef string) (*model.PaymentIntent, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Business.StoreTimeout())
	defer cancel()

	// 支付单不存在对本次调用是致命的：只记日志上报，绝不凭空给账户加积分
	if _, err := s.intentRepo.GetByIntentRef(ctx, intentRef); err != nil {
		if errors.Is(err, repository.ErrIntentNotFound) {
			log.Printf("[Reconcile] 收到未知支付单的成功通知: intentRef=%s", intentRef)
		}
		return nil, err
	}

	unlock := s.acquireSettleLock(ctx, intentRef)
	defer unlock()

	intent, err := s.intentRepo.MarkCompleted(ctx, nil, intentRef)
	if errors.Is(err, repository.ErrAlreadyProcessed) {
		// 重复通知：状态已是 COMPLETED，不再动余额，当成功返回
		log.Printf("[Reconcile] 重复的成功通知，幂等命中: intentRef=%s", intentRef)
		return intent, nil
	}
	if errors.Is(err, repository.ErrConflictingState) {
		// 已标记失败的支付单又收到成功通知：上游契约违约，重点告警，不补积分
		log.Printf("[Reconcile] 状态冲突！支付单已是 %s 又收到成功通知: intentRef=%s",
			intent.Status, intentRef)
		return intent, err
	}
	if err != nil {
		return nil, fmt.Errorf("更新支付单状态失败: %w", err)
	}

	// 全新的 PENDING -> COMPLETED 转移，入账恰好一次
	if err := s.applyGrant(ctx, intent); err != nil {
		return nil, err
	}

	log.Printf("[Reconcile] 结算成功: intentRef=%s, accountNo=%s, credits=%d",
		intentRef, intent.AccountNo, intent.Credits)
	return intent, nil
}

// ReconcileFailure 处理支付失败结算通知（幂等）
// 失败路径从构造上就不存在余额变更
func (s *LedgerService) ReconcileFailure(ctx context.Context, intentRef string) (*model.PaymentIntent, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Business.StoreTimeout())
	defer cancel()

	if _, err := s.intentRepo.GetByIntentRef(ctx, intentRef); err != nil {
		if errors.Is(err, repository.ErrIntentNotFound) {
			log.Printf("[Reconcile] 收到未知支付单的失败通知: intentRef=%s", intentRef)
		}
		return nil, err
	}

	unlock := s.acquireSettleLock(ctx, intentRef)
	defer unlock()

	intent, err := s.intentRepo.MarkFailed(ctx, nil, intentRef)
	if errors.Is(err, repository.ErrAlreadyProcessed) {
		log.Printf("[Reconcile] 重复的失败通知，幂等命中: intentRef=%s", intentRef)
		return intent, nil
	}
	if errors.Is(err, repository.ErrConflictingState) {
		// 已完成入账的支付单又收到失败通知：绝不回收已发积分
		log.Printf("[Reconcile] 状态冲突！支付单已是 %s 又收到失败通知: intentRef=%s",
			intent.Status, intentRef)
		return intent, err
	}
	if err != nil {
		return nil, fmt.Errorf("更新支付单状态失败: %w", err)
	}

	s.emitSettlementEvent(ctx, intent)

	log.Printf("[Reconcile] 支付单已标记失败: intentRef=%s, accountNo=%s", intentRef, intent.AccountNo)
	return intent, nil
}

// RepairMissingGrants 补偿扫描（对账恒等式的修复动作）
//
// 扫描已完成但缺少到账流水的支付单，重放入账。
// 这种支付单只会出现在"状态转移成功后、入账前"崩溃的场景。
// 补偿走的是与主链路完全相同的 applyGrant，幂等条件也完全相同，
// 与迟到的重复通知竞争时最多一方写入流水成功
func (s *LedgerService) RepairMissingGrants(ctx context.Context) (int, error) {
	lag := time.Duration(s.cfg.Business.SweepSettleLagSeconds) * time.Second
	before := time.Now().Add(-lag)

	intents, err := s.intentRepo.GetCompletedBefore(ctx, before, s.cfg.Business.SweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("查询已完成支付单失败: %w", err)
	}

	repaired := 0
	for _, intent := range intents {
		trans, err := s.transactionRepo.GetByTransactionNo(ctx, model.GrantTransactionNo(intent.IntentRef))
		if err != nil {
			log.Printf("[Sweep] 查询到账流水失败: intentRef=%s, err=%v", intent.IntentRef, err)
			continue
		}
		if trans != nil {
			// 已入账，对账恒等式对这笔支付单成立
			continue
		}

		log.Printf("[Sweep] 发现已完成但未入账的支付单: intentRef=%s, credits=%d",
			intent.IntentRef, intent.Credits)

		if err := s.applyGrant(ctx, intent); err != nil {
			log.Printf("[Sweep] 补偿入账失败: intentRef=%s, err=%v", intent.IntentRef, err)
			continue
		}
		repaired++
		log.Printf("[Sweep] 补偿入账成功: intentRef=%s, accountNo=%s", intent.IntentRef, intent.AccountNo)
	}

	return repaired, nil
}

// applyGrant 把承诺的积分入账（主链路与补偿任务共用）
//
// 一个数据库事务内完成：到账流水 + 余额增加 + outbox 事件。
// 流水号是由 intent_ref 推导的确定性值，唯一索引冲突说明
// 这笔支付已经入过账（补偿任务或并发通知先到），按幂等成功处理
func (s *LedgerService) applyGrant(ctx context.Context, intent *model.PaymentIntent) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		account, err := s.accountRepo.GetByAccountNo(ctx, tx, intent.AccountNo)
		if err != nil {
			return fmt.Errorf("查询账户失败: %w", err)
		}

		trans := &model.CreditTransaction{
			TransactionNo: model.GrantTransactionNo(intent.IntentRef),
			AccountNo:     intent.AccountNo,
			IntentRef:     intent.IntentRef,
			Amount:        intent.Credits,
			Type:          model.TransactionTypeRecharge,
			BalanceBefore: account.Balance,
			BalanceAfter:  account.Balance + intent.Credits,
			Remark:        fmt.Sprintf("购买-%s", intent.PackageID),
		}
		if err := s.transactionRepo.Create(ctx, tx, trans); err != nil {
			return err
		}

		if err := s.accountRepo.Increase(ctx, tx, intent.AccountNo, intent.Credits); err != nil {
			return fmt.Errorf("积分入账失败: %w", err)
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"intent_ref": intent.IntentRef,
			"account_no": intent.AccountNo,
			"package_id": intent.PackageID,
			"credits":    intent.Credits,
			"status":     model.IntentStatusCompleted,
			"settled_at": time.Now().Format(time.RFC3339),
		})
		outboxMsg := &model.OutboxMessage{
			MessageKey: intent.IntentRef,
			Topic:      s.cfg.Kafka.Topic.SettlementResult,
			Payload:    string(payload),
			Status:     model.OutboxStatusPending,
		}
		return s.outboxRepo.Create(ctx, tx, outboxMsg)
	})

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		log.Printf("[Reconcile] 到账流水已存在，跳过入账: intentRef=%s", intent.IntentRef)
		return nil
	}
	if err != nil {
		return fmt.Errorf("入账事务失败: %w", err)
	}
	return nil
}

// emitSettlementEvent 写失败结算事件到本地消息表
func (s *LedgerService) emitSettlementEvent(ctx context.Context, intent *model.PaymentIntent) {
	payload, _ := json.Marshal(map[string]interface{}{
		"intent_ref": intent.IntentRef,
		"account_no": intent.AccountNo,
		"package_id": intent.PackageID,
		"credits":    intent.Credits,
		"status":     intent.Status,
		"settled_at": time.Now().Format(time.RFC3339),
	})
	outboxMsg := &model.OutboxMessage{
		MessageKey: intent.IntentRef,
		Topic:      s.cfg.Kafka.Topic.SettlementResult,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	}
	if err := s.outboxRepo.Create(ctx, nil, outboxMsg); err != nil {
		log.Printf("[Reconcile] 写结算事件失败: intentRef=%s, err=%v", intent.IntentRef, err)
	}
}

// acquireSettleLock 按支付单维度加分布式锁，把重复通知串行化
//
// 锁是吞吐优化不是正确性来源：没抢到锁的一方稍后进来会命中
// AlreadyProcessed 或流水唯一键冲突。未配置 Redis（单测环境）
// 时退化为纯数据库幂等，语义不变
func (s *LedgerService) acquireSettleLock(ctx context.Context, intentRef string) func() {
	if s.redisClient == nil {
		return func() {}
	}

	settleLock := lock.NewSettleLock(s.redisClient, intentRef, fmt.Sprintf("%d", idgen.NextID()))
	if err := settleLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		// 拿不到锁不阻断结算，靠数据库幂等兜底
		log.Printf("[Reconcile] 获取结算锁失败，继续处理: intentRef=%s, err=%v", intentRef, err)
		return func() {}
	}
	return func() {
		if err := settleLock.Unlock(context.Background()); err != nil {
			log.Printf("[Reconcile] 释放结算锁失败: intentRef=%s, err=%v", intentRef, err)
		}
	}
}
