package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"creditledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doJSON(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) (int, map[string]interface{}) {
	t.Helper()
	var resp struct {
		Code int                    `json:"code"`
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Code, resp.Data
}

// 接口层冒烟：身份解析 -> 发起购买 -> 消费 -> 余额不足
func TestAPIFlow(t *testing.T) {
	db := newTestDB(t)
	router := SetupRouter(db, nil, stubCharger{}, newTestConfig())

	// 首次解析创建账户并赠送 3 积分
	w := doJSON(router, http.MethodPost, "/api/v1/auth/user",
		`{"farcaster_id":"fid-1","wallet_address":"0xabc"}`)
	require.Equal(t, http.StatusOK, w.Code)
	code, data := decodeData(t, w)
	require.Equal(t, response.CodeSuccess, code)
	accountNo := data["account_no"].(string)
	assert.Equal(t, float64(3), data["balance"])

	// 发起购买：返回渠道支付单引用，本地记录 PENDING
	w = doJSON(router, http.MethodPost, "/api/v1/payments/create-intent",
		`{"account_no":"`+accountNo+`","package_id":"standard"}`)
	require.Equal(t, http.StatusOK, w.Code)
	code, data = decodeData(t, w)
	require.Equal(t, response.CodeSuccess, code)
	assert.Equal(t, "pi_stub", data["intent_ref"])
	assert.Equal(t, "PENDING", data["status"])

	// 未知积分包
	w = doJSON(router, http.MethodPost, "/api/v1/payments/create-intent",
		`{"account_no":"`+accountNo+`","package_id":"nonexistent"}`)
	code, _ = decodeData(t, w)
	assert.Equal(t, response.CodeInvalidPackage, code)

	// 消费 3 次把余额打到 0
	for i := 0; i < 3; i++ {
		w = doJSON(router, http.MethodPost, "/api/v1/credits/spend",
			`{"account_no":"`+accountNo+`"}`)
		code, _ = decodeData(t, w)
		require.Equal(t, response.CodeSuccess, code)
	}

	// 第 4 次：余额不足，稳定业务码，余额不变
	w = doJSON(router, http.MethodPost, "/api/v1/credits/spend",
		`{"account_no":"`+accountNo+`"}`)
	code, _ = decodeData(t, w)
	assert.Equal(t, response.CodeInsufficientCredits, code)

	w = doJSON(router, http.MethodGet, "/api/v1/account/balance?account_no="+accountNo, "")
	code, data = decodeData(t, w)
	require.Equal(t, response.CodeSuccess, code)
	assert.Equal(t, float64(0), data["balance"])
}

func TestGetBalanceUnknownAccount(t *testing.T) {
	db := newTestDB(t)
	router := SetupRouter(db, nil, stubCharger{}, newTestConfig())

	w := doJSON(router, http.MethodGet, "/api/v1/account/balance?account_no=ACC404", "")
	assert.Equal(t, http.StatusOK, w.Code)
	code, _ := decodeData(t, w)
	assert.Equal(t, response.CodeAccountNotFound, code)
}
