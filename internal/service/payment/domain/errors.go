// internal/service/payment/domain/errors.go
package domain

import "github.com/pkg/errors"

var (
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrDuplicatePayment    = errors.New("payment already exists for order")
	ErrInvalidPayment      = errors.New("invalid payment")
	ErrInvalidPaymentState = errors.New("invalid payment state transition")
)

// GatewayDeclineError 网关明确拒绝扣款。与网络类错误区分开：
// 拒绝是业务终态，重试没有意义。
type GatewayDeclineError struct {
	Code    string
	Message string
}

func (e *GatewayDeclineError) Error() string {
	return "payment declined: " + e.Code + ": " + e.Message
}
