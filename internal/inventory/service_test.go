package inventory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	kafkax "github.com/ferremas/orders/internal/kafka"
	"github.com/ferremas/orders/internal/orders"
)

func TestMain(m *testing.M) { goleak.VerifyTestMain(m) }

type stockKey struct{ product, branch int64 }

type fakeStock struct {
	levels map[stockKey]int
	err    error
}

func (f *fakeStock) StockLevel(_ context.Context, p, b int64) (int, bool, error) {
	if f.err != nil {
		return 0, false, f.err
	}
	q, ok := f.levels[stockKey{p, b}]
	return q, ok, nil
}

type fakeDedup struct {
	claimed map[string]bool
	alerts  map[stockKey]bool
}

func newFakeDedup() *fakeDedup {
	return &fakeDedup{claimed: map[string]bool{}, alerts: map[stockKey]bool{}}
}

func (d *fakeDedup) Claim(_ context.Context, id string) (bool, error) {
	if d.claimed[id] {
		return false, nil
	}
	d.claimed[id] = true
	return true, nil
}

func (d *fakeDedup) Release(_ context.Context, id string) error {
	delete(d.claimed, id)
	return nil
}

func (d *fakeDedup) AlertOnce(_ context.Context, p, b int64) (bool, error) {
	k := stockKey{p, b}
	if d.alerts[k] {
		return false, nil
	}
	d.alerts[k] = true
	return true, nil
}

func (d *fakeDedup) ClearAlert(_ context.Context, p, b int64) error {
	delete(d.alerts, stockKey{p, b})
	return nil
}

type fakeAlerts struct{ sent []orders.StockLowPayload }

func (a *fakeAlerts) StockLow(_ context.Context, p orders.StockLowPayload) error {
	a.sent = append(a.sent, p)
	return nil
}

func orderCreated(t *testing.T, eventID string, branch int64, products ...int64) kafkago.Message {
	t.Helper()
	p := orders.OrderCreatedPayload{OrderID: 1, StockBranchID: branch}
	for _, id := range products {
		p.Lines = append(p.Lines, orders.LineQty{ProductID: id, Qty: 1, UnitPrice: "1.00"})
	}
	env, err := orders.NewEnvelope(orders.EventOrderCreated, "orders-api", "1", time.Now(), p)
	require.NoError(t, err)
	env.EventID = eventID
	b, err := kafkax.EncodeEnvelope(env)
	require.NoError(t, err)
	return kafkago.Message{Value: b}
}

func newService(stock *fakeStock) (*Service, *fakeDedup, *fakeAlerts) {
	d, a := newFakeDedup(), &fakeAlerts{}
	return &Service{
		Stock:     stock,
		Dedup:     d,
		Alerts:    a,
		Threshold: 5,
		Log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, d, a
}

func TestAlertsWhenAtOrBelowThreshold(t *testing.T) {
	stock := &fakeStock{levels: map[stockKey]int{{1, 2}: 5, {3, 2}: 6}}
	svc, _, alerts := newService(stock)

	require.NoError(t, svc.HandleOrderCreated(context.Background(), orderCreated(t, "e1", 2, 1, 3)))
	require.Equal(t, []orders.StockLowPayload{{ProductID: 1, BranchID: 2, Quantity: 5, Threshold: 5}}, alerts.sent)
}

func TestDuplicateEventIgnored(t *testing.T) {
	stock := &fakeStock{levels: map[stockKey]int{{1, 2}: 0}}
	svc, _, alerts := newService(stock)

	msg := orderCreated(t, "e1", 2, 1)
	require.NoError(t, svc.HandleOrderCreated(context.Background(), msg))
	require.NoError(t, svc.HandleOrderCreated(context.Background(), msg))
	require.Len(t, alerts.sent, 1)
}

func TestAlertRaisedOnceUntilRestocked(t *testing.T) {
	stock := &fakeStock{levels: map[stockKey]int{{1, 2}: 2}}
	svc, _, alerts := newService(stock)
	ctx := context.Background()

	require.NoError(t, svc.HandleOrderCreated(ctx, orderCreated(t, "e1", 2, 1)))
	require.NoError(t, svc.HandleOrderCreated(ctx, orderCreated(t, "e2", 2, 1)))
	require.Len(t, alerts.sent, 1)

	stock.levels[stockKey{1, 2}] = 50
	require.NoError(t, svc.HandleOrderCreated(ctx, orderCreated(t, "e3", 2, 1)))
	stock.levels[stockKey{1, 2}] = 1
	require.NoError(t, svc.HandleOrderCreated(ctx, orderCreated(t, "e4", 2, 1)))
	require.Len(t, alerts.sent, 2)
}

func TestFailureReleasesClaim(t *testing.T) {
	stock := &fakeStock{err: errors.New("db down")}
	svc, dedup, _ := newService(stock)

	require.Error(t, svc.HandleOrderCreated(context.Background(), orderCreated(t, "e1", 2, 1)))
	require.False(t, dedup.claimed["e1"])
}

func TestIgnoresOtherEventsAndGarbage(t *testing.T) {
	svc, dedup, alerts := newService(&fakeStock{})

	require.NoError(t, svc.HandleOrderCreated(context.Background(), kafkago.Message{Value: []byte("not json")}))

	env, err := orders.NewEnvelope(orders.EventOrderStatusChanged, "orders-api", "1", time.Now(), orders.OrderStatusChangedPayload{})
	require.NoError(t, err)
	b, err := kafkax.EncodeEnvelope(env)
	require.NoError(t, err)
	require.NoError(t, svc.HandleOrderCreated(context.Background(), kafkago.Message{Value: b}))

	require.Empty(t, dedup.claimed)
	require.Empty(t, alerts.sent)
}
