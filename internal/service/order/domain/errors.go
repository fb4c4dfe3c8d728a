// internal/service/order/domain/errors.go
package domain

import "github.com/pkg/errors"

var (
	// ErrOrderNotFound 订单不存在。
	ErrOrderNotFound = errors.New("order not found")
	// ErrInvalidOrder 下单请求本身不合法。
	ErrInvalidOrder = errors.New("invalid order")
	// ErrInvalidTransition 当前状态不允许这个动作。
	ErrInvalidTransition = errors.New("invalid order state transition")
)
