package marketplace

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/packpulse/packpulse/internal/infra"
	"github.com/packpulse/packpulse/internal/ledger"
)

// errNotAvailable aborts the purchase transaction when the relocked pack
// fails its preconditions. It never leaves this file.
var errNotAvailable = errors.New("pack not available")

// PostgresStore persists packs in PostgreSQL and settles purchases through
// the ledger store inside a single transaction.
type PostgresStore struct {
	db     *pgxpool.Pool
	ledger *ledger.PostgresStore
}

// NewPostgresStore builds a pack store sharing the pool with the ledger store.
func NewPostgresStore(db *pgxpool.Pool, ledgerStore *ledger.PostgresStore) *PostgresStore {
	return &PostgresStore{db: db, ledger: ledgerStore}
}

const packColumns = `id, user_id, name, is_sealed, is_listed, price, listed_at, created_at`

func (s *PostgresStore) Get(ctx context.Context, packID int64) (Pack, error) {
	row := s.db.QueryRow(ctx, `SELECT `+packColumns+` FROM packs WHERE id = $1`, packID)
	return scanPack(row)
}

func (s *PostgresStore) Available(ctx context.Context, limit, offset int) ([]Pack, error) {
	const query = `
        SELECT ` + packColumns + `
        FROM packs
        WHERE is_listed AND is_sealed AND price IS NOT NULL
        ORDER BY listed_at DESC, id DESC
        LIMIT $1 OFFSET $2`

	rows, err := s.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query available packs: %w", err)
	}
	defer rows.Close()

	var packs []Pack
	for rows.Next() {
		p, err := scanPack(rows)
		if err != nil {
			return nil, err
		}
		packs = append(packs, p)
	}
	return packs, rows.Err()
}

func (s *PostgresStore) ListForSale(ctx context.Context, packID, ownerID, price int64) error {
	if price <= 0 {
		return ErrInvalidPrice
	}

	return infra.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		pack, err := getPackForUpdate(ctx, tx, packID)
		if err != nil {
			return err
		}
		if pack.OwnerID != ownerID {
			return ErrNotOwner
		}
		if !pack.IsSealed {
			return ErrNotSealed
		}
		if pack.IsListed {
			return ErrAlreadyListed
		}

		_, err = tx.Exec(ctx, `
            UPDATE packs SET is_listed = TRUE, listed_at = now(), price = $2
            WHERE id = $1`, packID, price)
		if err != nil {
			return fmt.Errorf("list pack: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) Unlist(ctx context.Context, packID, ownerID int64) error {
	return infra.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		pack, err := getPackForUpdate(ctx, tx, packID)
		if err != nil {
			return err
		}
		if pack.OwnerID != ownerID {
			return ErrNotOwner
		}
		if !pack.IsListed {
			return ErrNotListed
		}

		_, err = tx.Exec(ctx, `
            UPDATE packs SET is_listed = FALSE, listed_at = NULL, price = NULL
            WHERE id = $1`, packID)
		if err != nil {
			return fmt.Errorf("unlist pack: %w", err)
		}
		return nil
	})
}

// Purchase settles the sale in one transaction. Lock order is fixed: pack row
// first, then the buyer and seller user rows in ascending id order.
func (s *PostgresStore) Purchase(ctx context.Context, packID, buyerID int64) (PurchaseResult, error) {
	var res PurchaseResult

	err := infra.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		pack, err := getPackForUpdate(ctx, tx, packID)
		if err != nil {
			return err
		}
		if !pack.CanBePurchased() || pack.OwnerID == buyerID {
			return errNotAvailable
		}

		price := *pack.Price
		sellerID := pack.OwnerID

		if err := s.ledger.LockUsers(ctx, tx, buyerID, sellerID); err != nil {
			return err
		}

		_, err = s.ledger.AppendIn(ctx, tx, ledger.AppendInput{
			UserID:      buyerID,
			Amount:      price,
			Kind:        ledger.KindDebit,
			Description: fmt.Sprintf("Purchase pack #%d", packID),
			PackID:      &packID,
		})
		if err != nil {
			return err
		}

		_, err = s.ledger.AppendIn(ctx, tx, ledger.AppendInput{
			UserID:      sellerID,
			Amount:      price,
			Kind:        ledger.KindCredit,
			Description: fmt.Sprintf("Sold pack #%d", packID),
			PackID:      &packID,
		})
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
            UPDATE packs SET user_id = $2, is_listed = FALSE, listed_at = NULL, price = NULL
            WHERE id = $1`, packID, buyerID)
		if err != nil {
			return fmt.Errorf("transfer ownership: %w", err)
		}

		_, err = tx.Exec(ctx, `
            INSERT INTO sales_history (pack_id, seller_id, buyer_id, price, sold_at)
            VALUES ($1, $2, $3, $4, now())`, packID, sellerID, buyerID, price)
		if err != nil {
			return fmt.Errorf("record sale: %w", err)
		}

		_, err = tx.Exec(ctx, `
            INSERT INTO purchase_history (pack_id, buyer_id, price, purchased_at)
            VALUES ($1, $2, $3, now())`, packID, buyerID, price)
		if err != nil {
			return fmt.Errorf("record purchase: %w", err)
		}

		res = PurchaseResult{
			Success:  true,
			Message:  MsgPurchased,
			PackID:   packID,
			BuyerID:  buyerID,
			SellerID: sellerID,
			Price:    price,
		}
		return nil
	})

	switch {
	case err == nil:
		return res, nil
	case errors.Is(err, errNotAvailable):
		return PurchaseResult{Success: false, Message: MsgNotAvailable, PackID: packID, BuyerID: buyerID}, nil
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return PurchaseResult{Success: false, Message: MsgInsufficientCredits, PackID: packID, BuyerID: buyerID}, nil
	default:
		return PurchaseResult{}, err
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPack(row rowScanner) (Pack, error) {
	var p Pack
	err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &p.IsSealed, &p.IsListed, &p.Price, &p.ListedAt, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Pack{}, ErrPackNotFound
		}
		return Pack{}, fmt.Errorf("scan pack: %w", err)
	}
	return p, nil
}

func getPackForUpdate(ctx context.Context, tx pgx.Tx, packID int64) (Pack, error) {
	row := tx.QueryRow(ctx, `SELECT `+packColumns+` FROM packs WHERE id = $1 FOR UPDATE`, packID)
	return scanPack(row)
}
