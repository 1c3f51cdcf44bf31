// Package store implements the points store: a catalog of items and an
// append-only ledger of purchases paid for with profile points.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmerrifield20/fellows/internal/apierr"
	"go.uber.org/zap"
)

// storeRepo is the storage interface consumed by Service.
type storeRepo interface {
	WithinTx(ctx context.Context, fn func(LedgerTx) error) error
	GetActiveItem(ctx context.Context, ref ItemRef) (*Item, error)
	ListActiveItems(ctx context.Context, accountID int64, nameFilter string) ([]*Item, error)
	GetActiveItemFor(ctx context.Context, accountID, itemID int64) (*Item, error)
	ListTransactions(ctx context.Context, accountID int64) ([]*Transaction, error)
	CreateItem(ctx context.Context, it *Item) error
	ListAllItems(ctx context.Context) ([]*Item, error)
}

// Service runs catalog reads and the buy flow.
type Service struct {
	repo   storeRepo
	logger *zap.Logger
}

// NewService creates a new Service.
func NewService(repo storeRepo, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// BuyItem debits the item's price from the account and records a BUY
// transaction, both or neither. Checks run in order: availability, balance,
// prior ownership.
func (s *Service) BuyItem(ctx context.Context, accountID int64, ref ItemRef) (*Purchase, error) {
	if err := apierr.FromValidation(ref.Validate()); err != nil {
		return nil, err
	}

	item, err := s.repo.GetActiveItem(ctx, ref)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apierr.ItemNotAvailable
		}
		return nil, fmt.Errorf("resolve item: %w", err)
	}

	var purchase *Purchase
	err = s.repo.WithinTx(ctx, func(tx LedgerTx) error {
		available, err := tx.LockBalance(ctx, accountID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return apierr.ProfileDoesNotExist
			}
			return err
		}
		if item.Points > available {
			return apierr.InsufficientPoints.WithDetails(map[string]any{
				"availablePoints": available,
				"requiredPoints":  item.Points,
			})
		}

		owned, err := tx.HasPurchased(ctx, accountID, item.ID)
		if err != nil {
			return err
		}
		if owned {
			return apierr.ItemAlreadyOwned
		}

		itemID := item.ID
		t := &Transaction{
			AccountID: accountID,
			ItemID:    &itemID,
			ItemName:  item.Name,
			Points:    item.Points,
			Type:      TransactionBuy,
		}
		if err := tx.InsertTransaction(ctx, t); err != nil {
			if errors.Is(err, ErrAlreadyOwned) {
				return apierr.ItemAlreadyOwned
			}
			return err
		}

		balance, err := tx.DebitPoints(ctx, accountID, item.Points)
		if err != nil {
			return err
		}
		purchase = &Purchase{Transaction: t, AvailablePoints: balance}
		return nil
	})
	if err != nil {
		var ae *apierr.Error
		if errors.As(err, &ae) {
			return nil, ae
		}
		return nil, fmt.Errorf("buy item: %w", err)
	}

	s.logger.Info("item bought",
		zap.Int64("account_id", accountID),
		zap.Int64("item_id", item.ID),
		zap.Int("points", item.Points),
		zap.Int("available_points", purchase.AvailablePoints),
	)
	return purchase, nil
}

// ListItems returns active items flagged with the caller's purchases.
func (s *Service) ListItems(ctx context.Context, accountID int64) ([]*Item, error) {
	items, err := s.repo.ListActiveItems(ctx, accountID, "")
	if err != nil {
		return nil, err
	}
	return nonNil(items), nil
}

// SearchItems returns active items whose name contains name.
func (s *Service) SearchItems(ctx context.Context, accountID int64, name string) ([]*Item, error) {
	if name == "" {
		return []*Item{}, nil
	}
	items, err := s.repo.ListActiveItems(ctx, accountID, name)
	if err != nil {
		return nil, err
	}
	return nonNil(items), nil
}

// GetItem returns one active item.
func (s *Service) GetItem(ctx context.Context, accountID, itemID int64) (*Item, error) {
	it, err := s.repo.GetActiveItemFor(ctx, accountID, itemID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apierr.ItemNotAvailable
		}
		return nil, err
	}
	return it, nil
}

// ListTransactions returns the caller's ledger, newest first.
func (s *Service) ListTransactions(ctx context.Context, accountID int64) ([]*Transaction, error) {
	txs, err := s.repo.ListTransactions(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if txs == nil {
		txs = []*Transaction{}
	}
	return txs, nil
}

// AddItem adds an active item to the catalog.
func (s *Service) AddItem(ctx context.Context, n NewItem) (*Item, error) {
	if err := apierr.FromValidation(n.Validate()); err != nil {
		return nil, err
	}
	it := &Item{
		Name:         n.Name,
		Description:  n.Description,
		PreviewImage: n.PreviewImage,
		Points:       n.Points,
		Active:       true,
	}
	if err := s.repo.CreateItem(ctx, it); err != nil {
		if errors.Is(err, ErrDuplicateName) {
			return nil, apierr.Field("name", "Store item with this name already exists.")
		}
		return nil, fmt.Errorf("create item: %w", err)
	}
	s.logger.Info("store item added", zap.Int64("item_id", it.ID), zap.String("name", it.Name))
	return it, nil
}

// ListAllItems returns the whole catalog including inactive items.
func (s *Service) ListAllItems(ctx context.Context) ([]*Item, error) {
	return s.repo.ListAllItems(ctx)
}

func nonNil(items []*Item) []*Item {
	if items == nil {
		return []*Item{}
	}
	return items
}
