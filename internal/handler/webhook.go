package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"creditledger/internal/repository"
	"creditledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// 结算通知签名头，格式：t=<unix秒>,v1=<hex(HMAC-SHA256(secret, "t.body"))>
const signatureHeader = "Payment-Signature"

const (
	eventPaymentSucceeded = "payment_intent.succeeded"
	eventPaymentFailed    = "payment_intent.payment_failed"
)

var ErrSignatureInvalid = errors.New("签名校验失败")

// settlementEvent 渠道结算通知的信封
type settlementEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID string `json:"id"` // 渠道侧支付单引用
		} `json:"object"`
	} `json:"data"`
}

// VerifySignature 校验结算通知签名
//
// 签名覆盖"时间戳.原始请求体"，时间戳超出容忍窗口的通知
// 一律拒绝（防重放）；比较用常数时间实现
func VerifySignature(secret string, tolerance time.Duration, header string, body []byte, now time.Time) error {
	if header == "" {
		return ErrSignatureInvalid
	}

	var timestamp int64
	var signature string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return ErrSignatureInvalid
			}
			timestamp = ts
		case "v1":
			signature = kv[1]
		}
	}

	if timestamp == 0 || signature == "" {
		return ErrSignatureInvalid
	}

	age := now.Sub(time.Unix(timestamp, 0))
	if age > tolerance || age < -tolerance {
		return ErrSignatureInvalid
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrSignatureInvalid
	}
	return nil
}

// SettlementWebhook 接收支付渠道的结算通知
// POST /api/v1/webhooks/payment
//
// 渠道对通知只承诺至少一次投递，可能迟到、乱序、重复，
// 这里只做验签和分发，幂等归约全部在账本引擎里完成。
// 验签失败必须在产生任何状态变更之前短路，且不向外泄露细节
func (h *Handler) SettlementWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	tolerance := time.Duration(h.cfg.Provider.SignatureToleranceSeconds) * time.Second
	sigErr := VerifySignature(h.cfg.Provider.WebhookSecret, tolerance,
		c.GetHeader(signatureHeader), body, time.Now())
	if sigErr != nil {
		log.Printf("[Webhook] 签名校验失败: ip=%s", c.ClientIP())
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	var event settlementEvent
	if err := json.Unmarshal(body, &event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	intentRef := event.Data.Object.ID
	if intentRef == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	switch event.Type {
	case eventPaymentSucceeded:
		_, err = h.ledgerService.ReconcileSuccess(c.Request.Context(), intentRef)
	case eventPaymentFailed:
		_, err = h.ledgerService.ReconcileFailure(c.Request.Context(), intentRef)
	default:
		// 不关心的事件类型，确认收到即可
		log.Printf("[Webhook] 忽略事件类型: type=%s", event.Type)
		response.Success(c, gin.H{"received": true})
		return
	}

	if err != nil {
		switch {
		case errors.Is(err, repository.ErrIntentNotFound):
			// 对本次调用致命：记日志上报，不凭空变更任何账户
			response.BusinessError(c, response.CodeIntentNotFound, "支付单不存在")
		case errors.Is(err, repository.ErrConflictingState):
			// 上游契约违约，已在账本引擎里重点记录；返回 200 避免渠道无意义重试
			response.BusinessError(c, response.CodeConflictingState, "支付单状态冲突")
		default:
			// 瞬态错误：入口幂等，5xx 让渠道按自己的策略重试整个通知
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	response.Success(c, gin.H{"received": true})
}
