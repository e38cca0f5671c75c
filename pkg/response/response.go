package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess      = 0
	CodeParamError   = 400
	CodeUnauthorized = 401
	CodeForbidden    = 403
	CodeNotFound     = 404
	CodeServerError  = 500
)

// 业务错误码
// 调用方按 code 决定用户提示，message 只用于排查
const (
	CodeAccountNotFound      = 1001
	CodeIntentNotFound       = 1002
	CodeInvalidPackage       = 1003
	CodeInsufficientCredits  = 1004
	CodeAlreadyProcessed     = 1005 // 信息性，不是失败
	CodeConflictingState     = 1006 // 渠道侧契约被违反，重点告警
	CodeStoreTimeout         = 1007 // 瞬态错误，整个调用可安全重试
	CodeSignatureInvalid     = 1008 // 安全相关，不向调用方泄露细节
	CodePaymentProviderError = 1009
)

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

func BusinessError(c *gin.Context, code int, message string) {
	Error(c, code, message)
}
