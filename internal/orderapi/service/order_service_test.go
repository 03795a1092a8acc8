package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/posify/internal/contract"
	"github.com/fjod/posify/internal/domain"
	"github.com/fjod/posify/internal/orderapi/cache"
	"github.com/fjod/posify/internal/orderapi/repository"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockRepository keeps orders in memory with the same uniqueness rule as
// the database.
type MockRepository struct {
	mu        sync.Mutex
	orders    map[string]*repository.Order
	next      int64
	creates   atomic.Int32
	CreateErr error
	delay     time.Duration
	// conflicts makes that many creates fail with an id collision
	conflicts int
	ids       []uuid.UUID
}

func NewMockRepository() *MockRepository {
	return &MockRepository{orders: make(map[string]*repository.Order)}
}

func (m *MockRepository) CreateOrder(ctx context.Context, o *repository.Order) (*repository.Order, bool, error) {
	m.creates.Add(1)
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
	if m.CreateErr != nil {
		return nil, false, m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ids = append(m.ids, o.ID)
	if m.conflicts > 0 {
		m.conflicts--
		return nil, false, repository.ErrOrderIDConflict
	}

	k := o.OrganizationID + "/" + o.IdempotencyKey
	if existing, ok := m.orders[k]; ok {
		return existing, false, nil
	}
	m.next++
	stored := *o
	stored.OrderNumber = m.next
	stored.CreatedAt = time.Now()
	m.orders[k] = &stored
	return &stored, true, nil
}

func (m *MockRepository) GetByIdempotencyKey(_ context.Context, org, key string) (*repository.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[org+"/"+key]; ok {
		return o, nil
	}
	return nil, repository.ErrOrderNotFound
}

func (m *MockRepository) GetUnprocessedEvents(context.Context, int) ([]*repository.OutboxEvent, error) {
	return nil, nil
}

func (m *MockRepository) MarkEventAsProcessed(context.Context, int64) error {
	return nil
}

func (m *MockRepository) Close() error {
	return nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func validRequest(key string) contract.CreateOrderRequest {
	return contract.CreateOrderRequest{
		OrganizationID: "org-1",
		Items: []contract.OrderItem{
			{ItemID: "burger", Name: "Burger", UnitPrice: dec("12.50"), Quantity: 2, DiscountPercent: dec("10")},
		},
		Subtotal:          dec("25.00"),
		ItemDiscountTotal: dec("2.50"),
		CartDiscount:      dec("2.25"),
		Tax:               []contract.TaxLine{{RuleID: "sales", Name: "Sales", Kind: "percentage", Rate: dec("8"), Amount: dec("1.62")}},
		Total:             dec("21.87"),
		Currency:          "USD",
		PaymentMethod:     "cash",
		OrderType:         "takeaway",
		Status:            "pending",
		IdempotencyKey:    key,
	}
}

func TestCreateOrder_Once(t *testing.T) {
	repo := NewMockRepository()
	svc := NewOrderService(repo, nil, nil)
	ctx := context.Background()

	first, err := svc.CreateOrder(ctx, validRequest("key-1"))
	require.NoError(t, err)
	assert.False(t, first.Duplicate)
	assert.Equal(t, int64(1), first.OrderNumber)

	second, err := svc.CreateOrder(ctx, validRequest("key-1"))
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.OrderID, second.OrderID)
	assert.Len(t, repo.orders, 1)
}

func TestCreateOrder_ConcurrentReplaysShareOneCall(t *testing.T) {
	repo := NewMockRepository()
	repo.delay = 50 * time.Millisecond
	svc := NewOrderService(repo, nil, nil)

	const n = 10
	var wg sync.WaitGroup
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := svc.CreateOrder(context.Background(), validRequest("key-1"))
			if assert.NoError(t, err) {
				ids[i] = resp.OrderID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Len(t, repo.orders, 1)
	assert.Less(t, repo.creates.Load(), int32(n))
}

func TestCreateOrder_ReplayFromCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	repo := NewMockRepository()
	svc := NewOrderService(repo, cache.NewRedisCache(client, time.Hour), nil)
	ctx := context.Background()

	first, err := svc.CreateOrder(ctx, validRequest("key-1"))
	require.NoError(t, err)

	second, err := svc.CreateOrder(ctx, validRequest("key-1"))
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.OrderID, second.OrderID)
	assert.Equal(t, int32(1), repo.creates.Load(), "replay served from cache")
}

func TestCreateOrder_CacheDownFallsBackToDatabase(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	svc := NewOrderService(NewMockRepository(), cache.NewRedisCache(client, time.Hour), nil)

	resp, err := svc.CreateOrder(context.Background(), validRequest("key-1"))
	require.NoError(t, err)
	assert.False(t, resp.Duplicate)
}

func TestCreateOrder_Validation(t *testing.T) {
	svc := NewOrderService(NewMockRepository(), nil, nil)
	req := validRequest("")

	_, err := svc.CreateOrder(context.Background(), req)
	assert.True(t, domain.IsValidation(err))
}

func TestCreateOrder_TotalsMismatch(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*contract.CreateOrderRequest)
		code   string
	}{
		{"subtotal", func(r *contract.CreateOrderRequest) { r.Subtotal = dec("30.00") }, "subtotal_mismatch"},
		{"total", func(r *contract.CreateOrderRequest) { r.Total = dec("25.00") }, "total_mismatch"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := NewMockRepository()
			svc := NewOrderService(repo, nil, nil)
			req := validRequest("key-1")
			tt.mutate(&req)

			_, err := svc.CreateOrder(context.Background(), req)
			var be *domain.BusinessError
			require.ErrorAs(t, err, &be)
			assert.Equal(t, tt.code, be.Code)
			assert.Empty(t, repo.orders)
		})
	}
}

func TestCreateOrder_RepositoryError(t *testing.T) {
	repo := NewMockRepository()
	repo.CreateErr = errors.New("connection refused")
	svc := NewOrderService(repo, nil, nil)

	_, err := svc.CreateOrder(context.Background(), validRequest("key-1"))
	assert.ErrorContains(t, err, "connection refused")
}

func TestCreateOrder_RetriesOnOrderIDConflict(t *testing.T) {
	repo := NewMockRepository()
	repo.conflicts = 2
	svc := NewOrderService(repo, nil, nil)

	resp, err := svc.CreateOrder(context.Background(), validRequest("key-1"))
	require.NoError(t, err)
	assert.False(t, resp.Duplicate)
	require.Len(t, repo.ids, 3)
	assert.NotEqual(t, repo.ids[0], repo.ids[1])
	assert.NotEqual(t, repo.ids[1], repo.ids[2])
	assert.Equal(t, repo.ids[2].String(), resp.OrderID)
}

func TestCreateOrder_OrderIDConflictGivesUp(t *testing.T) {
	repo := NewMockRepository()
	repo.conflicts = maxCreateAttempts
	svc := NewOrderService(repo, nil, nil)

	_, err := svc.CreateOrder(context.Background(), validRequest("key-1"))
	assert.ErrorIs(t, err, ErrOrderIDConflict)
	assert.Len(t, repo.orders, 0)
}

func TestCreateOrder_CancelledCallerDoesNotFailReplays(t *testing.T) {
	repo := NewMockRepository()
	repo.delay = 100 * time.Millisecond
	svc := NewOrderService(repo, nil, nil)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.CreateOrder(firstCtx, validRequest("key-1"))
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return repo.creates.Load() == 1 }, time.Second, time.Millisecond)

	secondErr := make(chan error, 1)
	var second *contract.CreateOrderResponse
	go func() {
		resp, err := svc.CreateOrder(context.Background(), validRequest("key-1"))
		second = resp
		secondErr <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancelFirst()

	assert.ErrorIs(t, <-firstErr, context.Canceled)
	require.NoError(t, <-secondErr)
	require.NotNil(t, second)
	assert.Len(t, repo.orders, 1)
}

func TestGetOrder(t *testing.T) {
	svc := NewOrderService(NewMockRepository(), nil, nil)
	ctx := context.Background()

	created, err := svc.CreateOrder(ctx, validRequest("key-1"))
	require.NoError(t, err)

	got, err := svc.GetOrder(ctx, "org-1", "key-1")
	require.NoError(t, err)
	assert.Equal(t, created.OrderID, got.OrderID)

	_, err = svc.GetOrder(ctx, "org-1", "missing")
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = svc.GetOrder(ctx, "", "key-1")
	assert.True(t, domain.IsValidation(err))
}
