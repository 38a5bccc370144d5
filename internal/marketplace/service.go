package marketplace

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/packpulse/packpulse/internal/ledger"
	"github.com/packpulse/packpulse/internal/metrics"
	"github.com/packpulse/packpulse/internal/notification"
)

// Service wraps the pack store with cache invalidation, notifications and
// metrics. Settlement atomicity lives in the store; this layer never holds
// money state of its own.
type Service struct {
	store     Store
	processor *ledger.Processor
	notifier  notification.Notifier
	logger    *slog.Logger
}

// NewService constructs a marketplace service.
func NewService(store Store, processor *ledger.Processor, notifier notification.Notifier, logger *slog.Logger) *Service {
	return &Service{store: store, processor: processor, notifier: notifier, logger: logger}
}

// Get returns one pack.
func (s *Service) Get(ctx context.Context, packID int64) (Pack, error) {
	return s.store.Get(ctx, packID)
}

// Available returns buyable packs, newest listing first.
func (s *Service) Available(ctx context.Context, limit, offset int) ([]Pack, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.Available(ctx, limit, offset)
}

// ListPack puts a sealed pack on the marketplace.
func (s *Service) ListPack(ctx context.Context, packID, ownerID, price int64) error {
	if err := s.store.ListForSale(ctx, packID, ownerID, price); err != nil {
		s.logger.Warn("pack listing rejected", "pack_id", packID, "user_id", ownerID, "error", err)
		return err
	}
	s.logger.Info("pack listed", "pack_id", packID, "user_id", ownerID, "price", price)
	return nil
}

// UnlistPack removes a pack from the marketplace.
func (s *Service) UnlistPack(ctx context.Context, packID, ownerID int64) error {
	if err := s.store.Unlist(ctx, packID, ownerID); err != nil {
		s.logger.Warn("pack unlisting rejected", "pack_id", packID, "user_id", ownerID, "error", err)
		return err
	}
	s.logger.Info("pack unlisted", "pack_id", packID, "user_id", ownerID)
	return nil
}

// PurchasePack settles a sale. Business rejections (pack gone, insufficient
// credits) come back as Success=false with a nil error.
func (s *Service) PurchasePack(ctx context.Context, packID, buyerID int64) (PurchaseResult, error) {
	res, err := s.store.Purchase(ctx, packID, buyerID)
	if err != nil {
		s.logger.Error("pack purchase failed", "pack_id", packID, "buyer_id", buyerID, "error", err)
		metrics.PackPurchases.WithLabelValues(metrics.OutcomeError).Inc()
		return PurchaseResult{Success: false, Message: "Failed to process purchase"}, err
	}

	if !res.Success {
		s.logger.Warn("pack purchase rejected",
			"pack_id", packID, "buyer_id", buyerID, "reason", res.Message)
		metrics.PackPurchases.WithLabelValues(metrics.OutcomeRejected).Inc()
		return res, nil
	}

	// Settlement bypasses the processor, so dump both cached balances and
	// let the next read replay the ledger.
	s.processor.InvalidateBalances(ctx, res.BuyerID, res.SellerID)

	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:   notification.KindPackSold,
			UserID: res.SellerID,
			Body:   fmt.Sprintf("Your pack #%d sold for %d credits", res.PackID, res.Price),
		})
	}

	s.logger.Info("pack purchased",
		"pack_id", res.PackID, "buyer_id", res.BuyerID, "seller_id", res.SellerID, "price", res.Price)
	metrics.PackPurchases.WithLabelValues(metrics.OutcomeSuccess).Inc()
	return res, nil
}
