// internal/service/order/domain/order_test.go
package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func testOrder(t *testing.T) *Order {
	t.Helper()
	o, err := NewOrder("user-1", []NewOrderItem{
		{ProductID: "p1", SKU: "SKU-1", Quantity: 2, UnitPrice: 1500},
		{ProductID: "p2", SKU: "SKU-2", Quantity: 1, UnitPrice: 500},
	}, ShippingAddress{RecipientName: "张三", City: "Shanghai", Country: "CN"}, "CNY")
	require.NoError(t, err)
	return o
}

func TestNewOrderComputesTotal(t *testing.T) {
	o := testOrder(t)
	require.Equal(t, int64(3500), o.TotalAmount)
	require.Equal(t, OrderStatusPending, o.Status)
	require.Equal(t, SagaStateCreated, o.SagaState)
	require.Len(t, o.Items, 2)
	require.True(t, strings.HasPrefix(o.OrderNumber, "ORD"))
}

func TestNewOrderValidation(t *testing.T) {
	_, err := NewOrder("", []NewOrderItem{{ProductID: "p1", Quantity: 1}}, ShippingAddress{}, "CNY")
	require.ErrorIs(t, err, ErrInvalidOrder)

	_, err = NewOrder("user-1", nil, ShippingAddress{}, "CNY")
	require.ErrorIs(t, err, ErrInvalidOrder)

	_, err = NewOrder("user-1", []NewOrderItem{{ProductID: "p1", Quantity: 0}}, ShippingAddress{}, "CNY")
	require.ErrorIs(t, err, ErrInvalidOrder)

	_, err = NewOrder("user-1", []NewOrderItem{{ProductID: "p1", Quantity: 1, UnitPrice: -1}}, ShippingAddress{}, "CNY")
	require.ErrorIs(t, err, ErrInvalidOrder)
}

func TestHappyPathTransitions(t *testing.T) {
	o := testOrder(t)

	require.NoError(t, o.MarkStockReserved())
	require.Equal(t, SagaStateReserved, o.SagaState)

	require.NoError(t, o.MarkPaid())
	require.Equal(t, OrderStatusConfirmed, o.Status)

	require.NoError(t, o.MarkFulfilling())
	require.Equal(t, OrderStatusProcessing, o.Status)

	require.NoError(t, o.Ship())
	require.NoError(t, o.Deliver())
	require.Equal(t, OrderStatusDelivered, o.Status)
	require.True(t, o.Terminal())
}

func TestTransitionsAreIdempotentOnReplay(t *testing.T) {
	o := testOrder(t)
	require.NoError(t, o.MarkStockReserved())
	require.NoError(t, o.MarkStockReserved())
	require.NoError(t, o.MarkPaid())
	require.NoError(t, o.MarkPaid())
	require.Equal(t, OrderStatusConfirmed, o.Status)
}

func TestOutOfOrderTransitionsRejected(t *testing.T) {
	o := testOrder(t)
	require.ErrorIs(t, o.MarkPaid(), ErrInvalidTransition)
	require.ErrorIs(t, o.MarkFulfilling(), ErrInvalidTransition)
	require.ErrorIs(t, o.Ship(), ErrInvalidTransition)
	require.ErrorIs(t, o.Deliver(), ErrInvalidTransition)
}

func TestCompensationFlow(t *testing.T) {
	o := testOrder(t)
	require.NoError(t, o.StartCompensation("insufficient stock"))
	require.Equal(t, SagaStateCompensating, o.SagaState)
	require.Equal(t, "insufficient stock", o.CancelReason)

	require.NoError(t, o.MarkCancelled())
	require.Equal(t, OrderStatusCancelled, o.Status)
	require.True(t, o.Terminal())

	// 重放安全
	require.NoError(t, o.StartCompensation("whatever"))
	require.NoError(t, o.MarkCancelled())
	require.Equal(t, "insufficient stock", o.CancelReason)
}

func TestCannotCancelAfterShipment(t *testing.T) {
	o := testOrder(t)
	require.NoError(t, o.MarkStockReserved())
	require.NoError(t, o.MarkPaid())
	require.NoError(t, o.MarkFulfilling())
	require.NoError(t, o.Ship())

	require.ErrorIs(t, o.StartCompensation("too late"), ErrInvalidTransition)
}
