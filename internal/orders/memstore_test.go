package orders

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"
)

type stockKey struct{ product, branch int64 }

// memStore is an in-memory Store. Transactions are serialized by a mutex and
// roll back by restoring a snapshot.
type memStore struct {
	mu sync.Mutex

	prices   map[int64]decimal.Decimal
	stock    map[stockKey]int
	orders   map[int64]Order
	lines    []OrderLine
	payments []Payment
	nextID   int64

	accessed bool
	failOn   string
	// afterLock runs once GetStockAndPrice has read a row, with the lock held.
	afterLock func()
}

func newMemStore() *memStore {
	return &memStore{
		prices: map[int64]decimal.Decimal{},
		stock:  map[stockKey]int{},
		orders: map[int64]Order{},
	}
}

var errInjected = errors.New("injected failure")

func (m *memStore) product(id int64, price string) *memStore {
	m.prices[id] = decimal.RequireFromString(price)
	return m
}

func (m *memStore) stocked(product, branch int64, qty int) *memStore {
	m.stock[stockKey{product, branch}] = qty
	return m
}

type snapshot struct {
	stock    map[stockKey]int
	orders   map[int64]Order
	lines    []OrderLine
	payments []Payment
	nextID   int64
}

func (m *memStore) snapshot() snapshot {
	s := snapshot{
		stock:    make(map[stockKey]int, len(m.stock)),
		orders:   make(map[int64]Order, len(m.orders)),
		lines:    append([]OrderLine(nil), m.lines...),
		payments: append([]Payment(nil), m.payments...),
		nextID:   m.nextID,
	}
	for k, v := range m.stock {
		s.stock[k] = v
	}
	for k, v := range m.orders {
		s.orders[k] = v
	}
	return s
}

func (m *memStore) restore(s snapshot) {
	m.stock, m.orders, m.lines, m.payments, m.nextID = s.stock, s.orders, s.lines, s.payments, s.nextID
}

func (m *memStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accessed = true
	snap := m.snapshot()
	if err := fn(ctx); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *memStore) fail(op string) error {
	if m.failOn == op {
		return errInjected
	}
	return nil
}

func (m *memStore) InsertOrder(_ context.Context, o Order) (int64, error) {
	if err := m.fail("InsertOrder"); err != nil {
		return 0, err
	}
	m.nextID++
	o.ID = m.nextID
	m.orders[o.ID] = o
	return o.ID, nil
}

func (m *memStore) GetStockAndPrice(_ context.Context, productID, branchID int64) (StockPrice, bool, error) {
	if err := m.fail("GetStockAndPrice"); err != nil {
		return StockPrice{}, false, err
	}
	qty, ok := m.stock[stockKey{productID, branchID}]
	if !ok {
		return StockPrice{}, false, nil
	}
	if m.afterLock != nil {
		m.afterLock()
	}
	return StockPrice{Quantity: qty, UnitPrice: m.prices[productID]}, true, nil
}

func (m *memStore) DecrementStock(_ context.Context, productID, branchID int64, qty int) (int64, error) {
	if err := m.fail("DecrementStock"); err != nil {
		return 0, err
	}
	k := stockKey{productID, branchID}
	cur, ok := m.stock[k]
	if !ok || cur < qty {
		return 0, nil
	}
	m.stock[k] = cur - qty
	return 1, nil
}

func (m *memStore) InsertOrderLine(_ context.Context, l OrderLine) error {
	if err := m.fail("InsertOrderLine"); err != nil {
		return err
	}
	m.lines = append(m.lines, l)
	return nil
}

func (m *memStore) UpdateOrderTotal(_ context.Context, orderID int64, total decimal.Decimal) error {
	if err := m.fail("UpdateOrderTotal"); err != nil {
		return err
	}
	o := m.orders[orderID]
	o.Total = total
	m.orders[orderID] = o
	return nil
}

func (m *memStore) InsertPayment(_ context.Context, p Payment) (int64, error) {
	if err := m.fail("InsertPayment"); err != nil {
		return 0, err
	}
	p.ID = int64(len(m.payments) + 1)
	m.payments = append(m.payments, p)
	return p.ID, nil
}

func (m *memStore) GetOrderForUpdate(_ context.Context, orderID int64) (Order, error) {
	o, ok := m.orders[orderID]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return o, nil
}

func (m *memStore) UpdateOrderStatus(_ context.Context, orderID int64, status Status) error {
	if err := m.fail("UpdateOrderStatus"); err != nil {
		return err
	}
	o, ok := m.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	o.Status = status
	m.orders[orderID] = o
	return nil
}

func (m *memStore) stockOf(product, branch int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stock[stockKey{product, branch}]
}

func (m *memStore) counts() (orders, lines, payments int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders), len(m.lines), len(m.payments)
}
