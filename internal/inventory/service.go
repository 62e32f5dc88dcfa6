// Package inventory watches committed orders and raises low-stock alerts for
// the branches they drew from.
package inventory

import (
	"context"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ferremas/orders/internal/kafka"
	"github.com/ferremas/orders/internal/orders"
)

type StockReader interface {
	StockLevel(ctx context.Context, productID, branchID int64) (qty int, found bool, err error)
}

type Deduper interface {
	Claim(ctx context.Context, id string) (bool, error)
	Release(ctx context.Context, id string) error
	AlertOnce(ctx context.Context, productID, branchID int64) (bool, error)
	ClearAlert(ctx context.Context, productID, branchID int64) error
}

type AlertPublisher interface {
	StockLow(ctx context.Context, p orders.StockLowPayload) error
}

type Service struct {
	Stock     StockReader
	Dedup     Deduper
	Alerts    AlertPublisher
	Threshold int
	Log       *slog.Logger
}

// HandleOrderCreated is installed as the order.created consumer handler.
// Each event is processed at most once per dedup window; a failed event
// releases its claim so the consumer's retry of the same message runs it again.
func (s *Service) HandleOrderCreated(ctx context.Context, m kafkago.Message) (err error) {
	env, err := kafkax.DecodeEnvelope(m.Value)
	if err != nil {
		s.Log.Warn("dropping undecodable message", "offset", m.Offset, "err", err)
		return nil
	}
	if env.EventType != orders.EventOrderCreated {
		return nil
	}

	first, err := s.Dedup.Claim(ctx, env.EventID)
	if err != nil {
		return err
	}
	if !first {
		s.Log.Debug("duplicate event", "event_id", env.EventID)
		return nil
	}
	defer func() {
		if err != nil {
			if rerr := s.Dedup.Release(context.WithoutCancel(ctx), env.EventID); rerr != nil {
				s.Log.Warn("release dedup claim", "event_id", env.EventID, "err", rerr)
			}
		}
	}()

	p, err := kafkax.UnwrapPayload[orders.OrderCreatedPayload](env.Payload)
	if err != nil {
		s.Log.Warn("dropping bad payload", "event_id", env.EventID, "err", err)
		return nil
	}

	seen := make(map[int64]struct{}, len(p.Lines))
	for _, l := range p.Lines {
		if _, ok := seen[l.ProductID]; ok {
			continue
		}
		seen[l.ProductID] = struct{}{}
		if err := s.check(ctx, l.ProductID, p.StockBranchID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) check(ctx context.Context, productID, branchID int64) error {
	qty, found, err := s.Stock.StockLevel(ctx, productID, branchID)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	if qty > s.Threshold {
		return s.Dedup.ClearAlert(ctx, productID, branchID)
	}

	fresh, err := s.Dedup.AlertOnce(ctx, productID, branchID)
	if err != nil || !fresh {
		return err
	}
	if err := s.Alerts.StockLow(ctx, orders.StockLowPayload{
		ProductID: productID,
		BranchID:  branchID,
		Quantity:  qty,
		Threshold: s.Threshold,
	}); err != nil {
		_ = s.Dedup.ClearAlert(context.WithoutCancel(ctx), productID, branchID)
		return err
	}
	s.Log.Info("stock low", "product_id", productID, "branch_id", branchID,
		"quantity", qty, "threshold", s.Threshold)
	return nil
}
