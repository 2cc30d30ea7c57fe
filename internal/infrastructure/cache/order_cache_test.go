package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/memory"
)

const ttl = time.Minute

func seed(t *testing.T) (*memory.OrderRepository, *order.Order) {
	t.Helper()
	repo := memory.NewOrderRepository()
	o, err := order.New("o-1", order.Draft{
		OrderNumber:   "ORD-1",
		UserID:        "u-1",
		PaymentMethod: order.MethodCashOnDelivery,
		Items:         []order.Item{{ProductID: "p-1", Quantity: 2, UnitPrice: decimal.NewFromInt(50)}},
	}, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, repo.Insert(context.Background(), o))
	return repo, o
}

func TestFindByNumberMissPopulatesCache(t *testing.T) {
	db, mock := redismock.NewClientMock()
	inner, o := seed(t)
	repo := NewOrderRepository(inner, db, ttl, nil)

	payload, err := json.Marshal(o)
	require.NoError(t, err)
	mock.ExpectGet(Key("ORD-1")).RedisNil()
	mock.ExpectSet(Key("ORD-1"), string(payload), ttl).SetVal("OK")

	got, err := repo.FindByNumber(context.Background(), "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, "o-1", got.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByNumberHitSkipsRepository(t *testing.T) {
	db, mock := redismock.NewClientMock()
	_, o := seed(t)
	repo := NewOrderRepository(memory.NewOrderRepository(), db, ttl, nil)

	payload, err := json.Marshal(o)
	require.NoError(t, err)
	mock.ExpectGet(Key("ORD-1")).SetVal(string(payload))

	got, err := repo.FindByNumber(context.Background(), "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, "o-1", got.ID)
	assert.True(t, got.TotalAmount.Equal(decimal.NewFromInt(100)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByNumberFallsBackWhenRedisFails(t *testing.T) {
	db, mock := redismock.NewClientMock()
	inner, _ := seed(t)
	repo := NewOrderRepository(inner, db, ttl, nil)

	mock.ExpectGet(Key("ORD-1")).SetErr(errors.New("connection refused"))

	got, err := repo.FindByNumber(context.Background(), "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, "o-1", got.ID)
}

func TestWritesInvalidate(t *testing.T) {
	db, mock := redismock.NewClientMock()
	inner, o := seed(t)
	repo := NewOrderRepository(inner, db, ttl, nil)

	mock.ExpectDel(Key("ORD-1")).SetVal(1)
	o.Status = order.StatusConfirmed
	require.NoError(t, repo.Update(context.Background(), o))

	mock.ExpectDel(Key("ORD-1")).SetVal(1)
	require.NoError(t, repo.Delete(context.Background(), "o-1"))

	assert.NoError(t, mock.ExpectationsWereMet())
}
