// internal/service/inventory/application/event_handler_test.go
package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"atlas/internal/events"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeIdem struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newFakeIdem() *fakeIdem {
	return &fakeIdem{seen: make(map[string]bool)}
}

func (f *fakeIdem) Seen(ctx context.Context, eventID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen[eventID], nil
}

func (f *fakeIdem) Mark(ctx context.Context, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen[eventID] = true
	return nil
}

func (f *fakeIdem) has(eventID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen[eventID]
}

func (f *fakeIdem) forget(eventID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.seen, eventID)
}

type failingPublisher struct{}

func (failingPublisher) Publish(ctx context.Context, env *events.Envelope) error {
	return errors.New("broker unavailable")
}

func mustEnvelope(t *testing.T, et events.Type, orderID string, payload interface{}) *events.Envelope {
	t.Helper()
	env, err := events.NewEnvelope(et, "test", orderID, payload)
	require.NoError(t, err)
	return env
}

func orderCreatedEnvelope(t *testing.T, orderID string, items []events.LineItem) *events.Envelope {
	t.Helper()
	return mustEnvelope(t, events.TypeOrderCreated, orderID, events.OrderCreated{
		OrderID:     orderID,
		OrderNumber: "ORD-1",
		UserID:      "user-1",
		Items:       items,
	})
}

func TestHandlerReservesOnOrderCreated(t *testing.T) {
	repo := newFakeRepo()
	repo.seed("p1", "SKU-1", 10, 2)
	pub := &fakePublisher{}
	svc := newManager(repo, pub, 15*time.Minute)
	h := NewEventHandler(svc, newFakeIdem(), pub)

	env := orderCreatedEnvelope(t, "order-1", []events.LineItem{{ProductID: "p1", Quantity: 3}})
	require.NoError(t, h.Handle(context.Background(), env))

	inv, err := repo.InventoryByProductID(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, 3, inv.Reserved)
	require.Len(t, pub.byType(events.TypeInventoryReserved), 1)
}

func TestHandlerSkipsDuplicateEvent(t *testing.T) {
	repo := newFakeRepo()
	repo.seed("p1", "SKU-1", 10, 2)
	pub := &fakePublisher{}
	svc := newManager(repo, pub, 15*time.Minute)
	h := NewEventHandler(svc, newFakeIdem(), pub)

	env := orderCreatedEnvelope(t, "order-1", []events.LineItem{{ProductID: "p1", Quantity: 3}})
	require.NoError(t, h.Handle(context.Background(), env))
	require.NoError(t, h.Handle(context.Background(), env))

	inv, err := repo.InventoryByProductID(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, 3, inv.Reserved)
	require.Len(t, pub.byType(events.TypeInventoryReserved), 1)
}

func TestHandlerPublishesFailureOnInsufficientStock(t *testing.T) {
	repo := newFakeRepo()
	repo.seed("p1", "SKU-1", 2, 0)
	pub := &fakePublisher{}
	svc := newManager(repo, pub, 15*time.Minute)
	h := NewEventHandler(svc, newFakeIdem(), pub)

	env := orderCreatedEnvelope(t, "order-1", []events.LineItem{{ProductID: "p1", Quantity: 5}})
	// 业务性失败不触发重投递
	require.NoError(t, h.Handle(context.Background(), env))

	failures := pub.byType(events.TypeInventoryReservationFailed)
	require.Len(t, failures, 1)
	decoded, err := events.Decode(failures[0])
	require.NoError(t, err)
	p, ok := decoded.(events.InventoryReservationFailed)
	require.True(t, ok)
	require.Equal(t, "order-1", p.OrderID)
	require.Equal(t, "p1", p.ProductID)
	require.Equal(t, events.ReasonInsufficientStock, p.Reason)

	inv, err := repo.InventoryByProductID(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, 0, inv.Reserved)
}

func TestHandlerConfirmsOnPaymentCompleted(t *testing.T) {
	repo := newFakeRepo()
	repo.seed("p1", "SKU-1", 10, 2)
	pub := &fakePublisher{}
	svc := newManager(repo, pub, 15*time.Minute)
	h := NewEventHandler(svc, newFakeIdem(), pub)

	env := orderCreatedEnvelope(t, "order-1", []events.LineItem{{ProductID: "p1", Quantity: 4}})
	require.NoError(t, h.Handle(context.Background(), env))

	pay := mustEnvelope(t, events.TypePaymentCompleted, "order-1", events.PaymentCompleted{
		PaymentID: "pay-1", OrderID: "order-1", Timestamp: time.Now().UTC(),
	})
	require.NoError(t, h.Handle(context.Background(), pay))

	inv, err := repo.InventoryByProductID(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, 6, inv.Quantity)
	require.Equal(t, 0, inv.Reserved)
	require.Len(t, pub.byType(events.TypeInventoryConfirmed), 1)
}

func TestHandlerReleasesOnPaymentFailed(t *testing.T) {
	repo := newFakeRepo()
	repo.seed("p1", "SKU-1", 10, 2)
	pub := &fakePublisher{}
	svc := newManager(repo, pub, 15*time.Minute)
	h := NewEventHandler(svc, newFakeIdem(), pub)

	env := orderCreatedEnvelope(t, "order-1", []events.LineItem{{ProductID: "p1", Quantity: 4}})
	require.NoError(t, h.Handle(context.Background(), env))

	fail := mustEnvelope(t, events.TypePaymentFailed, "order-1", events.PaymentFailed{
		PaymentID: "pay-1", OrderID: "order-1", ErrorCode: "card_declined", Timestamp: time.Now().UTC(),
	})
	require.NoError(t, h.Handle(context.Background(), fail))

	inv, err := repo.InventoryByProductID(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, 10, inv.Quantity)
	require.Equal(t, 0, inv.Reserved)
	require.Len(t, pub.byType(events.TypeInventoryReleased), 1)
}

func TestHandlerAcksCancelWithoutReservation(t *testing.T) {
	repo := newFakeRepo()
	pub := &fakePublisher{}
	svc := newManager(repo, pub, 15*time.Minute)
	h := NewEventHandler(svc, newFakeIdem(), pub)

	env := mustEnvelope(t, events.TypeOrderCancelled, "order-1", events.OrderCancelled{
		OrderID: "order-1", CancelledAt: time.Now().UTC(), CancelReason: "user",
	})
	require.NoError(t, h.Handle(context.Background(), env))
}

func TestHandlerIgnoresForeignEventTypes(t *testing.T) {
	repo := newFakeRepo()
	pub := &fakePublisher{}
	svc := newManager(repo, pub, 15*time.Minute)
	h := NewEventHandler(svc, newFakeIdem(), pub)

	// 库存服务自己发出的事件也会出现在主题上，消费侧直接忽略
	env := mustEnvelope(t, events.TypeInventoryReserved, "order-1", events.InventoryReserved{
		OrderID: "order-1", ReservedAt: time.Now().UTC(),
	})
	require.NoError(t, h.Handle(context.Background(), env))
	require.Empty(t, pub.envs)
}

func TestHandlerLeavesNoMarkOnTransientFailure(t *testing.T) {
	repo := newFakeRepo()
	repo.seed("p1", "SKU-1", 2, 0)
	managerPub := &fakePublisher{}
	svc := newManager(repo, managerPub, 15*time.Minute)
	idem := newFakeIdem()
	// 失败事件发不出去是基础设施问题，消息必须能被重投递
	h := NewEventHandler(svc, idem, failingPublisher{})

	env := orderCreatedEnvelope(t, "order-1", []events.LineItem{{ProductID: "p1", Quantity: 5}})
	require.Error(t, h.Handle(context.Background(), env))
	require.False(t, idem.has(env.EventID))

	// 重投递后换一个能用的发布器就能成功
	h2 := NewEventHandler(svc, idem, managerPub)
	require.NoError(t, h2.Handle(context.Background(), env))
	require.Len(t, managerPub.byType(events.TypeInventoryReservationFailed), 1)
	require.True(t, idem.has(env.EventID))
}

func TestHandlerMarksOnlyAfterEffectApplied(t *testing.T) {
	repo := newFakeRepo()
	repo.seed("p1", "SKU-1", 10, 2)
	pub := &fakePublisher{}
	svc := newManager(repo, pub, 15*time.Minute)
	idem := newFakeIdem()
	h := NewEventHandler(svc, idem, pub)

	// 已处理完成的事件（标记存在）被当作重复跳过
	env := orderCreatedEnvelope(t, "order-1", []events.LineItem{{ProductID: "p1", Quantity: 3}})
	require.NoError(t, h.Handle(context.Background(), env))
	require.True(t, idem.has(env.EventID))

	// 崩溃窗口的等价场景：效果已落地但标记丢了。重投递必须
	// 被预留的重放保护吸收，而不是再占一份额度。
	idem.forget(env.EventID)
	require.NoError(t, h.Handle(context.Background(), env))

	inv, err := repo.InventoryByProductID(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, 3, inv.Reserved)
}

func TestHandlerLatePaymentAfterExpiryIsAcked(t *testing.T) {
	repo := newFakeRepo()
	repo.seed("p1", "SKU-1", 10, 0)
	pub := &fakePublisher{}
	svc := newManager(repo, pub, -time.Minute)
	h := NewEventHandler(svc, newFakeIdem(), pub)

	env := orderCreatedEnvelope(t, "order-1", []events.LineItem{{ProductID: "p1", Quantity: 3}})
	require.NoError(t, h.Handle(context.Background(), env))

	n, err := svc.ExpireOverdue(context.Background(), time.Now().UTC(), 100)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// 迟到的支付完成事件：确认被拒绝但消息 ack，份额早已归还
	pay := mustEnvelope(t, events.TypePaymentCompleted, "order-1", events.PaymentCompleted{
		PaymentID: "pay-1", OrderID: "order-1", Timestamp: time.Now().UTC(),
	})
	require.NoError(t, h.Handle(context.Background(), pay))

	inv, err := repo.InventoryByProductID(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, 10, inv.Quantity)
	require.Equal(t, 0, inv.Reserved)
	require.Empty(t, pub.byType(events.TypeInventoryConfirmed))
}
