// internal/service/payment/infrastructure/gateway.go
package infrastructure

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"atlas/internal/pkg/logger"
	"atlas/internal/service/payment/domain"
)

// SimulatedGateway 模拟支付网关：确定性成功并生成交易号。
// declineOver 大于 0 时，超过该金额的扣款会被拒绝，
// 用来在联调里演练 PaymentFailed 分支。
type SimulatedGateway struct {
	declineOver int64
}

func NewSimulatedGateway(declineOver int64) *SimulatedGateway {
	return &SimulatedGateway{declineOver: declineOver}
}

func (g *SimulatedGateway) Charge(ctx context.Context, payment *domain.Payment) (string, error) {
	if g.declineOver > 0 && payment.Amount > g.declineOver {
		return "", &domain.GatewayDeclineError{
			Code:    "AMOUNT_LIMIT_EXCEEDED",
			Message: fmt.Sprintf("amount %d exceeds gateway limit %d", payment.Amount, g.declineOver),
		}
	}
	transactionID := "TXN-" + uuid.New().String()
	logger.Ctx(ctx).Debug().Str("order_id", payment.OrderID).Str("transaction_id", transactionID).
		Int64("amount", payment.Amount).Str("currency", payment.Currency).Msg("simulated gateway charge accepted")
	return transactionID, nil
}
