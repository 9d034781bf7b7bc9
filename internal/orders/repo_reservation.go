package orders

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// LockProduct takes the row lock (FOR UPDATE) before the stock check so two
// checkouts of the same product cannot both pass it.
func (t *pgTx) LockProduct(ctx context.Context, productID int64) (*Product, error) {
	var p Product
	err := t.tx.QueryRow(ctx, `SELECT id, name, price, stock FROM products WHERE id=$1 FOR UPDATE`, productID).
		Scan(&p.ID, &p.Name, &p.Price, &p.Stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// DecrementStock is conditional on stock >= qty; the CHECK constraint on
// products.stock backs this up.
func (t *pgTx) DecrementStock(ctx context.Context, productID int64, qty int) error {
	ct, err := t.tx.Exec(ctx, `UPDATE products SET stock = stock - $2, updated_at = now()
	                           WHERE id=$1 AND stock >= $2`, productID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrStockConflict
	}
	return nil
}
