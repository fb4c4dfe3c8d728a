// internal/service/order/application/saga_handler_test.go
package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"atlas/internal/events"
	"atlas/internal/service/order/domain"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeOrderRepo struct {
	mu      sync.Mutex
	orders  map[string]*domain.Order
	findErr error // 消费一次后清空，模拟瞬时的存储故障
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[string]*domain.Order)}
}

func (f *fakeOrderRepo) Create(ctx context.Context, order *domain.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *order
	f.orders[order.ID] = &cp
	return nil
}

func (f *fakeOrderRepo) Save(ctx context.Context, order *domain.Order) error {
	return f.Create(ctx, order)
}

func (f *fakeOrderRepo) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		err := f.findErr
		f.findErr = nil
		return nil, err
	}
	o, ok := f.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrderRepo) FindByOrderNumber(ctx context.Context, number string) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.OrderNumber == number {
			cp := *o
			return &cp, nil
		}
	}
	return nil, domain.ErrOrderNotFound
}

func (f *fakeOrderRepo) FindByUser(ctx context.Context, userID string, limit, offset int) ([]domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Order
	for _, o := range f.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
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

func createTestOrder(t *testing.T, repo *fakeOrderRepo, pub *fakePublisher) *domain.Order {
	t.Helper()
	svc := NewOrderService(repo, pub)
	order, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{
		UserID: "user-1",
		Items: []CreateOrderItem{
			{ProductID: "p1", SKU: "SKU-1", Quantity: 2, UnitPrice: 1000},
		},
		Currency: "CNY",
	})
	require.NoError(t, err)
	return order
}

func sagaEnvelope(t *testing.T, et events.Type, orderID string, payload interface{}) *events.Envelope {
	t.Helper()
	env, err := events.NewEnvelope(et, "test", orderID, payload)
	require.NoError(t, err)
	return env
}

func TestSagaHappyPath(t *testing.T) {
	repo := newFakeOrderRepo()
	pub := &fakePublisher{}
	order := createTestOrder(t, repo, pub)
	h := NewSagaEventHandler(repo, newFakeIdem())
	ctx := context.Background()

	require.NoError(t, h.Handle(ctx, sagaEnvelope(t, events.TypeInventoryReserved, order.ID,
		events.InventoryReserved{OrderID: order.ID, ReservedAt: time.Now().UTC()})))
	cur, _ := repo.FindByID(ctx, order.ID)
	require.Equal(t, domain.SagaStateReserved, cur.SagaState)
	require.Equal(t, domain.OrderStatusPending, cur.Status)

	require.NoError(t, h.Handle(ctx, sagaEnvelope(t, events.TypePaymentCompleted, order.ID,
		events.PaymentCompleted{PaymentID: "pay-1", OrderID: order.ID, Timestamp: time.Now().UTC()})))
	cur, _ = repo.FindByID(ctx, order.ID)
	require.Equal(t, domain.OrderStatusConfirmed, cur.Status)

	require.NoError(t, h.Handle(ctx, sagaEnvelope(t, events.TypeInventoryConfirmed, order.ID,
		events.InventoryConfirmed{OrderID: order.ID, Timestamp: time.Now().UTC()})))
	cur, _ = repo.FindByID(ctx, order.ID)
	require.Equal(t, domain.OrderStatusProcessing, cur.Status)
	require.Equal(t, domain.SagaStateFulfilling, cur.SagaState)
}

func TestSagaReservationFailedCancelsOrder(t *testing.T) {
	repo := newFakeOrderRepo()
	pub := &fakePublisher{}
	order := createTestOrder(t, repo, pub)
	h := NewSagaEventHandler(repo, newFakeIdem())
	ctx := context.Background()

	require.NoError(t, h.Handle(ctx, sagaEnvelope(t, events.TypeInventoryReservationFailed, order.ID,
		events.InventoryReservationFailed{OrderID: order.ID, ProductID: "p1", Reason: events.ReasonInsufficientStock})))

	cur, _ := repo.FindByID(ctx, order.ID)
	require.Equal(t, domain.OrderStatusCancelled, cur.Status)
	require.Equal(t, domain.SagaStateCancelled, cur.SagaState)
	require.Contains(t, cur.CancelReason, events.ReasonInsufficientStock)
}

func TestSagaPaymentFailedThenReleaseCancels(t *testing.T) {
	repo := newFakeOrderRepo()
	pub := &fakePublisher{}
	order := createTestOrder(t, repo, pub)
	h := NewSagaEventHandler(repo, newFakeIdem())
	ctx := context.Background()

	require.NoError(t, h.Handle(ctx, sagaEnvelope(t, events.TypeInventoryReserved, order.ID,
		events.InventoryReserved{OrderID: order.ID, ReservedAt: time.Now().UTC()})))
	require.NoError(t, h.Handle(ctx, sagaEnvelope(t, events.TypePaymentFailed, order.ID,
		events.PaymentFailed{PaymentID: "pay-1", OrderID: order.ID, ErrorCode: "card_declined", Timestamp: time.Now().UTC()})))

	cur, _ := repo.FindByID(ctx, order.ID)
	require.Equal(t, domain.SagaStateCompensating, cur.SagaState)
	require.Equal(t, domain.OrderStatusPending, cur.Status)

	require.NoError(t, h.Handle(ctx, sagaEnvelope(t, events.TypeInventoryReleased, order.ID,
		events.InventoryReleased{OrderID: order.ID, Timestamp: time.Now().UTC()})))

	cur, _ = repo.FindByID(ctx, order.ID)
	require.Equal(t, domain.OrderStatusCancelled, cur.Status)
	require.Contains(t, cur.CancelReason, "card_declined")
}

func TestSagaExpiryReleaseCancelsPendingOrder(t *testing.T) {
	repo := newFakeOrderRepo()
	pub := &fakePublisher{}
	order := createTestOrder(t, repo, pub)
	h := NewSagaEventHandler(repo, newFakeIdem())
	ctx := context.Background()

	require.NoError(t, h.Handle(ctx, sagaEnvelope(t, events.TypeInventoryReserved, order.ID,
		events.InventoryReserved{OrderID: order.ID, ReservedAt: time.Now().UTC()})))
	// 支付一直没来，库存侧清扫过期后发布释放事件
	require.NoError(t, h.Handle(ctx, sagaEnvelope(t, events.TypeInventoryReleased, order.ID,
		events.InventoryReleased{OrderID: order.ID, Timestamp: time.Now().UTC()})))

	cur, _ := repo.FindByID(ctx, order.ID)
	require.Equal(t, domain.OrderStatusCancelled, cur.Status)
	require.Equal(t, "reservation expired", cur.CancelReason)
}

func TestSagaDuplicateEventSkipped(t *testing.T) {
	repo := newFakeOrderRepo()
	pub := &fakePublisher{}
	order := createTestOrder(t, repo, pub)
	h := NewSagaEventHandler(repo, newFakeIdem())
	ctx := context.Background()

	env := sagaEnvelope(t, events.TypeInventoryReserved, order.ID,
		events.InventoryReserved{OrderID: order.ID, ReservedAt: time.Now().UTC()})
	require.NoError(t, h.Handle(ctx, env))
	require.NoError(t, h.Handle(ctx, env))

	cur, _ := repo.FindByID(ctx, order.ID)
	require.Equal(t, domain.SagaStateReserved, cur.SagaState)
}

func TestSagaOutOfOrderEventIgnored(t *testing.T) {
	repo := newFakeOrderRepo()
	pub := &fakePublisher{}
	order := createTestOrder(t, repo, pub)
	h := NewSagaEventHandler(repo, newFakeIdem())
	ctx := context.Background()

	// 预留确认还没到，支付完成先到：跨主题乱序，ack 但不推进
	require.NoError(t, h.Handle(ctx, sagaEnvelope(t, events.TypePaymentCompleted, order.ID,
		events.PaymentCompleted{PaymentID: "pay-1", OrderID: order.ID, Timestamp: time.Now().UTC()})))

	cur, _ := repo.FindByID(ctx, order.ID)
	require.Equal(t, domain.SagaStateCreated, cur.SagaState)
	require.Equal(t, domain.OrderStatusPending, cur.Status)
}

func TestSagaUnknownOrderAcked(t *testing.T) {
	repo := newFakeOrderRepo()
	h := NewSagaEventHandler(repo, newFakeIdem())

	require.NoError(t, h.Handle(context.Background(), sagaEnvelope(t, events.TypeInventoryReserved, "ghost",
		events.InventoryReserved{OrderID: "ghost", ReservedAt: time.Now().UTC()})))
}

func TestSagaTransientFailureLeavesNoMark(t *testing.T) {
	repo := newFakeOrderRepo()
	pub := &fakePublisher{}
	order := createTestOrder(t, repo, pub)
	idem := newFakeIdem()
	h := NewSagaEventHandler(repo, idem)
	ctx := context.Background()

	env := sagaEnvelope(t, events.TypeInventoryReserved, order.ID,
		events.InventoryReserved{OrderID: order.ID, ReservedAt: time.Now().UTC()})

	// 存储瞬时故障：事件必须还能被重投递处理，去重标记不能先落
	repo.findErr = errors.New("storage unavailable")
	require.Error(t, h.Handle(ctx, env))
	require.False(t, idem.has(env.EventID))

	require.NoError(t, h.Handle(ctx, env))
	require.True(t, idem.has(env.EventID))
	cur, _ := repo.FindByID(ctx, order.ID)
	require.Equal(t, domain.SagaStateReserved, cur.SagaState)
}
