package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo is the Postgres Store.
type Repo struct{ DB *pgxpool.Pool }

var _ Store = (*Repo)(nil)

const orderColumns = `id, customer_id, total_amount, status, note, customer_name, customer_email,
	customer_phone, shipping_address, payment_method, created_at, shipped_at`

func (r *Repo) Begin(ctx context.Context) (Tx, error) {
	// read committed + FOR UPDATE row locks serialise concurrent checkouts per product
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, err
	}
	return &pgTx{tx: tx}, nil
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var status string
	err := row.Scan(&o.ID, &o.CustomerID, &o.Total, &status, &o.Note, &o.CustomerName, &o.CustomerEmail,
		&o.CustomerPhone, &o.ShippingAddress, &o.PaymentMethod, &o.CreatedAt, &o.ShippedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	o.Status = Status(status)
	return &o, nil
}

func (r *Repo) GetOrder(ctx context.Context, id int64) (*Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if err != nil {
		return nil, err
	}
	rows, err := r.DB.Query(ctx, `SELECT id, order_id, product_id, quantity, unit_price
	                              FROM order_items WHERE order_id=$1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.UnitPrice); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, it)
	}
	return o, rows.Err()
}

func (r *Repo) ListOrdersByCustomer(ctx context.Context, customerID int64) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders
	                              WHERE customer_id=$1 ORDER BY created_at DESC, id DESC`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (r *Repo) ListOrders(ctx context.Context, limit, offset int) ([]Order, int, error) {
	var total int
	if err := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM orders`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders
	                              ORDER BY created_at DESC, id DESC
	                              LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	var (
		out []Order
		ids []int64
	)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, 0, err
		}
		out = append(out, *o)
		ids = append(ids, o.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if len(ids) == 0 {
		return out, total, nil
	}

	itemRows, err := r.DB.Query(ctx, `SELECT id, order_id, product_id, quantity, unit_price
	                                  FROM order_items WHERE order_id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, 0, err
	}
	defer itemRows.Close()
	pos := make(map[int64]int, len(out))
	for i, o := range out {
		pos[o.ID] = i
	}
	for itemRows.Next() {
		var it OrderItem
		if err := itemRows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.UnitPrice); err != nil {
			return nil, 0, err
		}
		o := &out[pos[it.OrderID]]
		o.Items = append(o.Items, it)
	}
	return out, total, itemRows.Err()
}

func (r *Repo) GetOrderStatus(ctx context.Context, id int64) (Status, error) {
	var s string
	err := r.DB.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1`, id).Scan(&s)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return Status(s), nil
}

func scanUserNotifications(rows pgx.Rows) ([]UserNotification, error) {
	defer rows.Close()
	var out []UserNotification
	for rows.Next() {
		var n UserNotification
		if err := rows.Scan(&n.ID, &n.UserID, &n.OrderID, &n.Message, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *Repo) ListUserNotifications(ctx context.Context, userID int64, limit, offset int) ([]UserNotification, int, error) {
	var total int
	if err := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM user_notifications
	                              WHERE user_id IS NULL OR user_id=$1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.DB.Query(ctx, `SELECT id, user_id, order_id, message, is_read, created_at
	                              FROM user_notifications
	                              WHERE user_id IS NULL OR user_id=$1
	                              ORDER BY created_at DESC, id DESC
	                              LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	out, err := scanUserNotifications(rows)
	return out, total, err
}

func (r *Repo) GetUserNotification(ctx context.Context, id int64) (*UserNotification, error) {
	var n UserNotification
	err := r.DB.QueryRow(ctx, `SELECT id, user_id, order_id, message, is_read, created_at
	                           FROM user_notifications WHERE id=$1`, id).
		Scan(&n.ID, &n.UserID, &n.OrderID, &n.Message, &n.IsRead, &n.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *Repo) MarkUserNotificationRead(ctx context.Context, id int64) error {
	ct, err := r.DB.Exec(ctx, `UPDATE user_notifications SET is_read=true WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) MarkAllUserNotificationsRead(ctx context.Context, userID int64) (int64, error) {
	ct, err := r.DB.Exec(ctx, `UPDATE user_notifications SET is_read=true
	                           WHERE (user_id IS NULL OR user_id=$1) AND NOT is_read`, userID)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

func (r *Repo) ListAdminNotifications(ctx context.Context, unreadOnly bool) ([]AdminNotification, error) {
	rows, err := r.DB.Query(ctx, `SELECT id, order_id, message, is_read, created_at
	                              FROM admin_notifications
	                              WHERE NOT $1::bool OR NOT is_read
	                              ORDER BY created_at DESC, id DESC
	                              LIMIT 200`, unreadOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AdminNotification
	for rows.Next() {
		var n AdminNotification
		if err := rows.Scan(&n.ID, &n.OrderID, &n.Message, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *Repo) MarkAdminNotificationsRead(ctx context.Context, orderID int64) (int64, error) {
	ct, err := r.DB.Exec(ctx, `UPDATE admin_notifications SET is_read=true
	                           WHERE order_id=$1 AND NOT is_read`, orderID)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

type pgTx struct{ tx pgx.Tx }

func (t *pgTx) InsertOrder(ctx context.Context, o *Order) error {
	return t.tx.QueryRow(ctx, `
		INSERT INTO orders(customer_id, total_amount, status, note, customer_name, customer_email,
		                   customer_phone, shipping_address, payment_method, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING id`,
		o.CustomerID, o.Total, string(o.Status), o.Note, o.CustomerName, o.CustomerEmail,
		o.CustomerPhone, o.ShippingAddress, o.PaymentMethod, o.CreatedAt,
	).Scan(&o.ID)
}

func (t *pgTx) InsertOrderItems(ctx context.Context, orderID int64, items []OrderItem) error {
	b := &pgx.Batch{}
	for _, it := range items {
		b.Queue(`INSERT INTO order_items(order_id, product_id, quantity, unit_price)
		         VALUES ($1,$2,$3,$4) RETURNING id`,
			orderID, it.ProductID, it.Quantity, it.UnitPrice)
	}
	br := t.tx.SendBatch(ctx, b)
	for i := range items {
		if err := br.QueryRow().Scan(&items[i].ID); err != nil {
			_ = br.Close()
			return fmt.Errorf("insert item %d: %w", items[i].ProductID, err)
		}
		items[i].OrderID = orderID
	}
	return br.Close()
}

func (t *pgTx) InsertAdminNotification(ctx context.Context, n *AdminNotification) error {
	return t.tx.QueryRow(ctx, `
		INSERT INTO admin_notifications(order_id, message, is_read, created_at)
		VALUES ($1,$2,$3,$4) RETURNING id`,
		n.OrderID, n.Message, n.IsRead, n.CreatedAt,
	).Scan(&n.ID)
}

func (t *pgTx) LockOrder(ctx context.Context, id int64) (*Order, error) {
	return scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, id))
}

func (t *pgTx) UpdateOrderStatus(ctx context.Context, id int64, status Status, shippedAt *time.Time) error {
	ct, err := t.tx.Exec(ctx, `UPDATE orders SET status=$2, shipped_at=$3 WHERE id=$1`, id, string(status), shippedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) InsertUserNotification(ctx context.Context, n *UserNotification) error {
	return t.tx.QueryRow(ctx, `
		INSERT INTO user_notifications(user_id, order_id, message, is_read, created_at)
		VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		n.UserID, n.OrderID, n.Message, n.IsRead, n.CreatedAt,
	).Scan(&n.ID)
}

func (t *pgTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *pgTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}
