package handler

import (
	"context"
	"errors"
	"strconv"

	"creditledger/internal/config"
	"creditledger/internal/repository"
	"creditledger/internal/service"
	"creditledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	cfg             *config.Config
	accountService  *service.AccountService
	purchaseService *service.PurchaseService
	ledgerService   *service.LedgerService
	spendService    *service.SpendService
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, rdb *redis.Client, charger service.Charger, cfg *config.Config) *Handler {
	return &Handler{
		cfg:             cfg,
		accountService:  service.NewAccountService(db, cfg),
		purchaseService: service.NewPurchaseService(db, cfg, charger),
		ledgerService:   service.NewLedgerService(db, rdb, cfg),
		spendService:    service.NewSpendService(db, cfg),
	}
}

// respondError 统一的错误分类
// 业务错误映射成稳定的业务码，调用方按 code 决定用户提示
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrAccountNotFound):
		response.BusinessError(c, response.CodeAccountNotFound, err.Error())
	case errors.Is(err, repository.ErrIntentNotFound):
		response.BusinessError(c, response.CodeIntentNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidPackage):
		response.BusinessError(c, response.CodeInvalidPackage, err.Error())
	case errors.Is(err, repository.ErrInsufficientBalance):
		response.BusinessError(c, response.CodeInsufficientCredits, err.Error())
	case errors.Is(err, repository.ErrConflictingState):
		response.BusinessError(c, response.CodeConflictingState, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		// 瞬态错误：所有入口都是幂等的，调用方可整体重试
		response.BusinessError(c, response.CodeStoreTimeout, "存储操作超时，请重试")
	default:
		response.ServerError(c, err.Error())
	}
}

// ============================================================
// 账户相关接口
// ============================================================

// ResolveUserRequest 身份解析请求
// farcaster_id 由身份提供方下发，这里按给定值信任
type ResolveUserRequest struct {
	FarcasterID   string `json:"farcaster_id" binding:"required"`
	WalletAddress string `json:"wallet_address"`
}

// ResolveUser 按外部身份解析账户，首次出现时创建并赠送初始积分
// POST /api/v1/auth/user
func (h *Handler) ResolveUser(c *gin.Context) {
	var req ResolveUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	account, err := h.accountService.GetOrCreate(c.Request.Context(), req.FarcasterID, req.WalletAddress)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, account)
}

// GetBalance 查询账户余额
// GET /api/v1/account/balance?account_no=xxx
func (h *Handler) GetBalance(c *gin.Context) {
	accountNo := c.Query("account_no")
	if accountNo == "" {
		response.ParamError(c, "account_no 参数不能为空")
		return
	}

	account, err := h.accountService.GetByAccountNo(c.Request.Context(), accountNo)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{
		"account_no": account.AccountNo,
		"balance":    account.Balance,
	})
}

// ListTransactions 查询积分流水
// GET /api/v1/account/transactions?account_no=xxx&page=1&page_size=10
func (h *Handler) ListTransactions(c *gin.Context) {
	accountNo := c.Query("account_no")
	if accountNo == "" {
		response.ParamError(c, "account_no 参数不能为空")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	transactions, total, err := h.accountService.ListTransactions(c.Request.Context(), accountNo, page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      transactions,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// 购买相关接口
// ============================================================

// ListPackages 积分包目录
// GET /api/v1/packages
func (h *Handler) ListPackages(c *gin.Context) {
	response.Success(c, gin.H{
		"packages": h.cfg.Packages,
	})
}

// CreateIntentRequest 发起购买请求
type CreateIntentRequest struct {
	AccountNo string `json:"account_no" binding:"required"`
	PackageID string `json:"package_id" binding:"required"`
}

// CreateIntent 发起积分包购买
// POST /api/v1/payments/create-intent
func (h *Handler) CreateIntent(c *gin.Context) {
	var req CreateIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.purchaseService.CreateIntent(c.Request.Context(), req.AccountNo, req.PackageID)
	if err != nil {
		if errors.Is(err, service.ErrInvalidPackage) ||
			errors.Is(err, repository.ErrAccountNotFound) ||
			errors.Is(err, context.DeadlineExceeded) {
			respondError(c, err)
			return
		}
		response.BusinessError(c, response.CodePaymentProviderError, "创建支付单失败")
		return
	}

	response.Success(c, result)
}

// GetIntent 查询支付单详情
// GET /api/v1/payments/detail?intent_ref=xxx
func (h *Handler) GetIntent(c *gin.Context) {
	intentRef := c.Query("intent_ref")
	if intentRef == "" {
		response.ParamError(c, "intent_ref 参数不能为空")
		return
	}

	intent, err := h.purchaseService.GetIntent(c.Request.Context(), intentRef)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, intent)
}

// ListIntents 查询账户购买记录
// GET /api/v1/payments/list?account_no=xxx&page=1&page_size=10
func (h *Handler) ListIntents(c *gin.Context) {
	accountNo := c.Query("account_no")
	if accountNo == "" {
		response.ParamError(c, "account_no 参数不能为空")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	intents, total, err := h.purchaseService.ListIntents(c.Request.Context(), accountNo, page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      intents,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// 消费相关接口
// ============================================================

// SpendRequest 消费请求
type SpendRequest struct {
	AccountNo string `json:"account_no" binding:"required"`
	Cost      int64  `json:"cost"` // 不传默认消耗 1 积分
}

// Spend 消费积分（计费动作闸口）
// POST /api/v1/credits/spend
//
// 余额不足返回 CodeInsufficientCredits 且不产生任何变更，
// 调用方应引导用户进入购买流程
func (h *Handler) Spend(c *gin.Context) {
	var req SpendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	cost := req.Cost
	if cost == 0 {
		cost = service.DefaultSpendCost
	}

	account, err := h.spendService.Spend(c.Request.Context(), req.AccountNo, cost)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{
		"account_no": account.AccountNo,
		"balance":    account.Balance,
	})
}
