package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"creditledger/internal/config"
)

// Client 支付渠道客户端
// 同步创建渠道侧支付单，拿到渠道下发的支付单引用和前端确认令牌；
// 结算结果由渠道异步通知（见 handler 的 webhook 入口），这里不轮询
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

func NewClient(cfg *config.ProviderConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:   cfg.BaseURL,
		secretKey: cfg.SecretKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// CreateChargeRequest 创建渠道支付单请求
// metadata 里带上账户号、积分包、承诺积分数，便于渠道侧排查
type CreateChargeRequest struct {
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata"`
}

// ChargeResult 渠道侧支付单创建结果
type ChargeResult struct {
	IntentRef    string `json:"id"`            // 渠道下发的支付单引用
	ClientSecret string `json:"client_secret"` // 前端确认支付用的令牌
}

func (c *Client) CreateCharge(ctx context.Context, req *CreateChargeRequest) (*ChargeResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/payment_intents", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("构造请求失败: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("调用支付渠道失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("支付渠道返回异常: status=%d, body=%s", resp.StatusCode, string(respBody))
	}

	result := &ChargeResult{}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return nil, fmt.Errorf("解析渠道响应失败: %w", err)
	}
	if result.IntentRef == "" {
		return nil, fmt.Errorf("渠道响应缺少支付单引用")
	}

	return result, nil
}
