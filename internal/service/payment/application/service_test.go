// internal/service/payment/application/service_test.go
package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"atlas/internal/events"
	"atlas/internal/service/payment/domain"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakePaymentRepo struct {
	mu      sync.Mutex
	byOrder map[string]*domain.Payment
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{byOrder: make(map[string]*domain.Payment)}
}

func (f *fakePaymentRepo) Create(ctx context.Context, payment *domain.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byOrder[payment.OrderID]; ok {
		return domain.ErrDuplicatePayment
	}
	cp := *payment
	f.byOrder[payment.OrderID] = &cp
	return nil
}

func (f *fakePaymentRepo) Save(ctx context.Context, payment *domain.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *payment
	f.byOrder[payment.OrderID] = &cp
	return nil
}

func (f *fakePaymentRepo) FindByOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byOrder[orderID]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

type fakePublisher struct {
	mu   sync.Mutex
	envs []*events.Envelope
}

func (p *fakePublisher) Publish(ctx context.Context, env *events.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.envs = append(p.envs, env)
	return nil
}

func (p *fakePublisher) byType(t events.Type) []*events.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*events.Envelope
	for _, e := range p.envs {
		if e.EventType == t {
			out = append(out, e)
		}
	}
	return out
}

type fakeGateway struct {
	mu          sync.Mutex
	calls       int
	declineOver int64
	transient   bool
}

func (g *fakeGateway) Charge(ctx context.Context, payment *domain.Payment) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.transient {
		return "", errors.New("gateway timeout")
	}
	if g.declineOver > 0 && payment.Amount > g.declineOver {
		return "", &domain.GatewayDeclineError{Code: "AMOUNT_LIMIT_EXCEEDED", Message: "over limit"}
	}
	return "TXN-test", nil
}

func (g *fakeGateway) chargeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

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

func newService(repo *fakePaymentRepo, gw *fakeGateway, pub *fakePublisher) *PaymentService {
	return NewPaymentService(repo, gw, pub, "CNY")
}

func TestRegisterPaymentIsIdempotent(t *testing.T) {
	repo := newFakePaymentRepo()
	svc := newService(repo, &fakeGateway{}, &fakePublisher{})
	ctx := context.Background()

	require.NoError(t, svc.RegisterPayment(ctx, "order-1", 5000, "CNY"))
	require.NoError(t, svc.RegisterPayment(ctx, "order-1", 5000, "CNY"))

	p, err := svc.GetPaymentByOrder(ctx, "order-1")
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusPending, p.Status)
	require.Equal(t, int64(5000), p.Amount)
}

func TestRegisterPaymentDefaultsCurrency(t *testing.T) {
	repo := newFakePaymentRepo()
	svc := newService(repo, &fakeGateway{}, &fakePublisher{})
	ctx := context.Background()

	require.NoError(t, svc.RegisterPayment(ctx, "order-1", 100, ""))
	p, err := svc.GetPaymentByOrder(ctx, "order-1")
	require.NoError(t, err)
	require.Equal(t, "CNY", p.Currency)
}

func TestChargePublishesPaymentCompleted(t *testing.T) {
	repo := newFakePaymentRepo()
	gw := &fakeGateway{}
	pub := &fakePublisher{}
	svc := newService(repo, gw, pub)
	ctx := context.Background()

	require.NoError(t, svc.RegisterPayment(ctx, "order-1", 5000, "CNY"))
	require.NoError(t, svc.Charge(ctx, "order-1"))

	p, err := svc.GetPaymentByOrder(ctx, "order-1")
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusCompleted, p.Status)
	require.NotEmpty(t, p.TransactionID)

	completed := pub.byType(events.TypePaymentCompleted)
	require.Len(t, completed, 1)
	decoded, err := events.Decode(completed[0])
	require.NoError(t, err)
	payload := decoded.(events.PaymentCompleted)
	require.Equal(t, "order-1", payload.OrderID)
	require.Equal(t, p.TransactionID, payload.TransactionID)
}

func TestChargeDeclinedPublishesPaymentFailed(t *testing.T) {
	repo := newFakePaymentRepo()
	gw := &fakeGateway{declineOver: 1000}
	pub := &fakePublisher{}
	svc := newService(repo, gw, pub)
	ctx := context.Background()

	require.NoError(t, svc.RegisterPayment(ctx, "order-1", 5000, "CNY"))
	require.NoError(t, svc.Charge(ctx, "order-1"))

	p, err := svc.GetPaymentByOrder(ctx, "order-1")
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusFailed, p.Status)
	require.Equal(t, "AMOUNT_LIMIT_EXCEEDED", p.ErrorCode)

	failed := pub.byType(events.TypePaymentFailed)
	require.Len(t, failed, 1)
	require.Empty(t, pub.byType(events.TypePaymentCompleted))
}

func TestChargeReplayDoesNotChargeTwice(t *testing.T) {
	repo := newFakePaymentRepo()
	gw := &fakeGateway{}
	pub := &fakePublisher{}
	svc := newService(repo, gw, pub)
	ctx := context.Background()

	require.NoError(t, svc.RegisterPayment(ctx, "order-1", 5000, "CNY"))
	require.NoError(t, svc.Charge(ctx, "order-1"))
	require.NoError(t, svc.Charge(ctx, "order-1"))

	require.Equal(t, 1, gw.chargeCount())
	// 重放会重发结果事件，下游靠 event_id 去重
	require.Len(t, pub.byType(events.TypePaymentCompleted), 2)
}

func TestChargeTransientGatewayErrorLeavesPaymentPending(t *testing.T) {
	repo := newFakePaymentRepo()
	gw := &fakeGateway{transient: true}
	pub := &fakePublisher{}
	svc := newService(repo, gw, pub)
	ctx := context.Background()

	require.NoError(t, svc.RegisterPayment(ctx, "order-1", 5000, "CNY"))
	require.Error(t, svc.Charge(ctx, "order-1"))

	p, err := svc.GetPaymentByOrder(ctx, "order-1")
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusPending, p.Status)
	require.Empty(t, pub.envs)
}

func TestChargeUnknownOrder(t *testing.T) {
	svc := newService(newFakePaymentRepo(), &fakeGateway{}, &fakePublisher{})
	err := svc.Charge(context.Background(), "nope")
	require.ErrorIs(t, err, domain.ErrPaymentNotFound)
}

func paymentEnvelope(t *testing.T, et events.Type, orderID string, payload interface{}) *events.Envelope {
	t.Helper()
	env, err := events.NewEnvelope(et, "test", orderID, payload)
	require.NoError(t, err)
	return env
}

func orderCreatedEnvelope(t *testing.T, orderID string, amount int64) *events.Envelope {
	t.Helper()
	return paymentEnvelope(t, events.TypeOrderCreated, orderID, events.OrderCreated{
		OrderID:     orderID,
		OrderNumber: "ORD20260830000001",
		UserID:      "user-1",
		Items:       []events.LineItem{{ProductID: "p1", SKU: "SKU-1", Quantity: 1}},
		TotalAmount: amount,
		Currency:    "CNY",
	})
}

func TestEventHandlerChargesAfterReservation(t *testing.T) {
	repo := newFakePaymentRepo()
	gw := &fakeGateway{}
	pub := &fakePublisher{}
	h := NewEventHandler(newService(repo, gw, pub), newFakeIdem())
	ctx := context.Background()

	require.NoError(t, h.Handle(ctx, orderCreatedEnvelope(t, "order-1", 5000)))
	require.NoError(t, h.Handle(ctx, paymentEnvelope(t, events.TypeInventoryReserved, "order-1",
		events.InventoryReserved{OrderID: "order-1", ReservedAt: time.Now().UTC()})))

	require.Equal(t, 1, gw.chargeCount())
	require.Len(t, pub.byType(events.TypePaymentCompleted), 1)
}

func TestEventHandlerReservedBeforeCreatedRetries(t *testing.T) {
	repo := newFakePaymentRepo()
	gw := &fakeGateway{}
	pub := &fakePublisher{}
	idem := newFakeIdem()
	h := NewEventHandler(newService(repo, gw, pub), idem)
	ctx := context.Background()

	reserved := paymentEnvelope(t, events.TypeInventoryReserved, "order-1",
		events.InventoryReserved{OrderID: "order-1", ReservedAt: time.Now().UTC()})
	err := h.Handle(ctx, reserved)
	require.ErrorIs(t, err, domain.ErrPaymentNotFound)

	// 失败不落标记，重投递在登记事件到达后能补上扣款
	require.False(t, idem.has(reserved.EventID))
	require.NoError(t, h.Handle(ctx, orderCreatedEnvelope(t, "order-1", 5000)))
	require.NoError(t, h.Handle(ctx, reserved))
	require.Equal(t, 1, gw.chargeCount())
}

func TestEventHandlerSkipsDuplicateEvent(t *testing.T) {
	repo := newFakePaymentRepo()
	gw := &fakeGateway{}
	pub := &fakePublisher{}
	h := NewEventHandler(newService(repo, gw, pub), newFakeIdem())
	ctx := context.Background()

	require.NoError(t, h.Handle(ctx, orderCreatedEnvelope(t, "order-1", 5000)))
	reserved := paymentEnvelope(t, events.TypeInventoryReserved, "order-1",
		events.InventoryReserved{OrderID: "order-1", ReservedAt: time.Now().UTC()})
	require.NoError(t, h.Handle(ctx, reserved))
	require.NoError(t, h.Handle(ctx, reserved))

	require.Equal(t, 1, gw.chargeCount())
	require.Len(t, pub.byType(events.TypePaymentCompleted), 1)
}

func TestEventHandlerIgnoresForeignEvents(t *testing.T) {
	repo := newFakePaymentRepo()
	gw := &fakeGateway{}
	h := NewEventHandler(newService(repo, gw, &fakePublisher{}), newFakeIdem())

	env := paymentEnvelope(t, events.TypeInventoryReleased, "order-1",
		events.InventoryReleased{OrderID: "order-1", Timestamp: time.Now().UTC()})
	require.NoError(t, h.Handle(context.Background(), env))
	require.Zero(t, gw.chargeCount())
}
