package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repo is the PostgreSQL implementation of Store and FulfillmentStore. Calls
// made with a context returned by WithTx run inside that transaction.
type Repo struct {
	DB          *pgxpool.Pool
	LockTimeout time.Duration
}

func (r *Repo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.DB, r.LockTimeout, fn)
}

func (r *Repo) InsertOrder(ctx context.Context, o Order) (int64, error) {
	var id int64
	err := r.queryRow(ctx, `
		INSERT INTO orders(customer_id, staff_id, origin_branch_id, fulfillment_branch_id,
		                   status, payment_method, total, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		o.CustomerID, o.StaffID, o.OriginBranchID, o.FulfillmentBranchID,
		string(o.Status), string(o.PaymentMethod), o.Total.String(), o.CreatedAt,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == codeForeignKeyViolation {
			switch pgErr.ConstraintName {
			case "orders_origin_branch_id_fkey", "orders_fulfillment_branch_id_fkey":
				return 0, &Error{Kind: KindMissingFulfillmentTarget, Msg: "branch does not exist", Err: err}
			}
		}
		return 0, fmt.Errorf("insert order: %w", err)
	}
	return id, nil
}

func (r *Repo) GetStockAndPrice(ctx context.Context, productID, branchID int64) (StockPrice, bool, error) {
	var (
		sp    StockPrice
		price string
	)
	err := r.queryRow(ctx, `
		SELECT bs.quantity, p.price::text
		FROM branch_stock bs
		JOIN products p ON p.id = bs.product_id
		WHERE bs.product_id = $1 AND bs.branch_id = $2
		FOR UPDATE OF bs`, productID, branchID).Scan(&sp.Quantity, &price)
	if errors.Is(err, pgx.ErrNoRows) {
		return StockPrice{}, false, nil
	}
	if err != nil {
		return StockPrice{}, false, fmt.Errorf("get stock and price: %w", err)
	}
	if sp.UnitPrice, err = decimal.NewFromString(price); err != nil {
		return StockPrice{}, false, fmt.Errorf("parse price %q: %w", price, err)
	}
	return sp, true, nil
}

func (r *Repo) DecrementStock(ctx context.Context, productID, branchID int64, qty int) (int64, error) {
	ct, err := r.exec(ctx, `
		UPDATE branch_stock SET quantity = quantity - $3, updated_at = NOW()
		WHERE product_id = $1 AND branch_id = $2 AND quantity >= $3`,
		productID, branchID, qty)
	if err != nil {
		return 0, fmt.Errorf("decrement stock: %w", err)
	}
	return ct.RowsAffected(), nil
}

func (r *Repo) InsertOrderLine(ctx context.Context, l OrderLine) error {
	_, err := r.exec(ctx, `
		INSERT INTO order_lines(order_id, product_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4)`,
		l.OrderID, l.ProductID, l.Quantity, l.UnitPrice.String())
	if err != nil {
		return fmt.Errorf("insert order line: %w", err)
	}
	return nil
}

func (r *Repo) UpdateOrderTotal(ctx context.Context, orderID int64, total decimal.Decimal) error {
	ct, err := r.exec(ctx, `UPDATE orders SET total = $2 WHERE id = $1`, orderID, total.String())
	if err != nil {
		return fmt.Errorf("update order total: %w", err)
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("update order total: order %d not found", orderID)
	}
	return nil
}

func (r *Repo) InsertPayment(ctx context.Context, p Payment) (int64, error) {
	var id int64
	err := r.queryRow(ctx, `
		INSERT INTO payments(order_id, customer_id, amount, method, status, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		p.OrderID, p.CustomerID, p.Amount.String(), string(p.Method), p.Status, p.Reference, p.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert payment: %w", err)
	}
	return id, nil
}

const orderColumns = `
	o.id, o.customer_id, o.staff_id, o.origin_branch_id, o.fulfillment_branch_id,
	o.status, o.payment_method, o.total::text, o.created_at`

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o            Order
		status, meth string
		total        string
	)
	if err := row.Scan(&o.ID, &o.CustomerID, &o.StaffID, &o.OriginBranchID, &o.FulfillmentBranchID,
		&status, &meth, &total, &o.CreatedAt); err != nil {
		return Order{}, err
	}
	o.Status = Status(status)
	o.PaymentMethod = PaymentMethod(meth)
	t, err := decimal.NewFromString(total)
	if err != nil {
		return Order{}, fmt.Errorf("parse total %q: %w", total, err)
	}
	o.Total = t
	return o, nil
}

func (r *Repo) GetOrderForUpdate(ctx context.Context, orderID int64) (Order, error) {
	o, err := scanOrder(r.queryRow(ctx, `SELECT`+orderColumns+` FROM orders o WHERE o.id = $1 FOR UPDATE`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("get order for update: %w", err)
	}
	return o, nil
}

func (r *Repo) UpdateOrderStatus(ctx context.Context, orderID int64, status Status) error {
	ct, err := r.exec(ctx, `UPDATE orders SET status = $2 WHERE id = $1`, orderID, string(status))
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *Repo) GetOrderStatus(ctx context.Context, orderID int64) (Status, error) {
	var s string
	err := r.queryRow(ctx, `SELECT status FROM orders WHERE id = $1`, orderID).Scan(&s)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrOrderNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get order status: %w", err)
	}
	return Status(s), nil
}

// GetOrder loads an order with its lines and payment.
func (r *Repo) GetOrder(ctx context.Context, orderID int64) (Order, error) {
	o, err := scanOrder(r.queryRow(ctx, `SELECT`+orderColumns+` FROM orders o WHERE o.id = $1`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("get order: %w", err)
	}

	list := []Order{o}
	if err := r.attachLines(ctx, list); err != nil {
		return Order{}, err
	}
	o = list[0]

	p, err := scanPayment(r.queryRow(ctx, `SELECT`+paymentColumns+` FROM payments WHERE order_id = $1`, orderID))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return Order{}, fmt.Errorf("get payment: %w", err)
	default:
		o.Payment = &p
	}
	return o, nil
}

// attachLines fills Lines of every order in list with one query.
func (r *Repo) attachLines(ctx context.Context, list []Order) error {
	if len(list) == 0 {
		return nil
	}
	ids := make([]int64, len(list))
	at := make(map[int64]int, len(list))
	for i, o := range list {
		ids[i] = o.ID
		at[o.ID] = i
	}

	rows, err := r.query(ctx, `
		SELECT order_id, product_id, quantity, unit_price::text
		FROM order_lines WHERE order_id = ANY($1) ORDER BY order_id, id`, ids)
	if err != nil {
		return fmt.Errorf("list order lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			l     OrderLine
			price string
		)
		if err := rows.Scan(&l.OrderID, &l.ProductID, &l.Quantity, &price); err != nil {
			return fmt.Errorf("scan order line: %w", err)
		}
		if l.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return fmt.Errorf("parse unit price %q: %w", price, err)
		}
		i := at[l.OrderID]
		list[i].Lines = append(list[i].Lines, l)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate order lines: %w", err)
	}
	return nil
}

// ListOrdersByBranch returns orders recorded at or picked up from the branch,
// newest first.
func (r *Repo) ListOrdersByBranch(ctx context.Context, branchID int64) ([]Order, error) {
	return r.listOrders(ctx, `
		SELECT`+orderColumns+` FROM orders o
		WHERE o.origin_branch_id = $1 OR o.fulfillment_branch_id = $1
		ORDER BY o.created_at DESC, o.id DESC`, branchID)
}

func (r *Repo) ListOrdersByStaff(ctx context.Context, staffID int64) ([]Order, error) {
	return r.listOrders(ctx, `
		SELECT`+orderColumns+` FROM orders o
		WHERE o.staff_id = $1
		ORDER BY o.created_at DESC, o.id DESC`, staffID)
}

// ListOrdersByCustomer returns a customer's orders with their payment
// method and status, newest first.
func (r *Repo) ListOrdersByCustomer(ctx context.Context, customerID int64) ([]Order, error) {
	return r.listOrders(ctx, `
		SELECT`+orderColumns+` FROM orders o
		WHERE o.customer_id = $1
		ORDER BY o.created_at DESC, o.id DESC`, customerID)
}

// PickupQueueStatuses are the states an order waits in at its fulfillment
// branch before it leaves the counter.
var PickupQueueStatuses = []Status{StatusPending, StatusPreparing, StatusReadyForPickup}

// ListPickupQueue returns the orders the branch still has to hand over,
// with their lines, newest first.
func (r *Repo) ListPickupQueue(ctx context.Context, branchID int64) ([]Order, error) {
	statuses := make([]string, len(PickupQueueStatuses))
	for i, s := range PickupQueueStatuses {
		statuses[i] = string(s)
	}
	list, err := r.listOrders(ctx, `
		SELECT`+orderColumns+` FROM orders o
		WHERE o.fulfillment_branch_id = $1 AND o.status = ANY($2)
		ORDER BY o.created_at DESC, o.id DESC`, branchID, statuses)
	if err != nil {
		return nil, err
	}
	if err := r.attachLines(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

func (r *Repo) listOrders(ctx context.Context, sql string, args ...any) ([]Order, error) {
	rows, err := r.query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	out := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

const paymentColumns = `
	id, order_id, customer_id, amount::text, method, status, reference, created_at`

func scanPayment(row pgx.Row) (Payment, error) {
	var (
		p              Payment
		amount, method string
	)
	if err := row.Scan(&p.ID, &p.OrderID, &p.CustomerID, &amount, &method, &p.Status,
		&p.Reference, &p.CreatedAt); err != nil {
		return Payment{}, err
	}
	p.Method = PaymentMethod(method)
	a, err := decimal.NewFromString(amount)
	if err != nil {
		return Payment{}, fmt.Errorf("parse payment amount %q: %w", amount, err)
	}
	p.Amount = a
	return p, nil
}

func (r *Repo) GetPayment(ctx context.Context, paymentID int64) (Payment, error) {
	p, err := scanPayment(r.queryRow(ctx, `SELECT`+paymentColumns+` FROM payments WHERE id = $1`, paymentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, ErrPaymentNotFound
	}
	if err != nil {
		return Payment{}, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

// PaymentFilter narrows ListPayments. Zero fields match everything.
type PaymentFilter struct {
	OrderID    int64
	CustomerID int64
	Status     string
}

// ListPayments returns the payments matching f, newest first.
func (r *Repo) ListPayments(ctx context.Context, f PaymentFilter) ([]Payment, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.OrderID != 0 {
		add("order_id = $%d", f.OrderID)
	}
	if f.CustomerID != 0 {
		add("customer_id = $%d", f.CustomerID)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	sql := `SELECT` + paymentColumns + ` FROM payments`
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY created_at DESC, id DESC"

	rows, err := r.query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	out := []Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SetBranchStock creates or overwrites the stock row for (product, branch).
// It is the only path that creates stock rows.
func (r *Repo) SetBranchStock(ctx context.Context, productID, branchID int64, qty int) error {
	if qty < 0 {
		return invalid(KindInvalidQuantity, "stock quantity must be zero or more")
	}
	_, err := r.exec(ctx, `
		INSERT INTO branch_stock(product_id, branch_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (product_id, branch_id) DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = NOW()`,
		productID, branchID, qty)
	if err != nil {
		if pgCode(err) == codeForeignKeyViolation {
			return invalid(KindInvalidRequest, "unknown product or branch")
		}
		return fmt.Errorf("set branch stock: %w", err)
	}
	return nil
}

func (r *Repo) StockByProduct(ctx context.Context, productID int64) ([]BranchStock, error) {
	rows, err := r.query(ctx, `
		SELECT product_id, branch_id, quantity FROM branch_stock
		WHERE product_id = $1 ORDER BY branch_id`, productID)
	if err != nil {
		return nil, fmt.Errorf("stock by product: %w", err)
	}
	defer rows.Close()

	out := []BranchStock{}
	for rows.Next() {
		var s BranchStock
		if err := rows.Scan(&s.ProductID, &s.BranchID, &s.Quantity); err != nil {
			return nil, fmt.Errorf("scan stock: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// StockLevel reads one stock row without locking it.
func (r *Repo) StockLevel(ctx context.Context, productID, branchID int64) (int, bool, error) {
	var qty int
	err := r.queryRow(ctx, `SELECT quantity FROM branch_stock WHERE product_id = $1 AND branch_id = $2`,
		productID, branchID).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("stock level: %w", err)
	}
	return qty, true, nil
}

func (r *Repo) Ping(ctx context.Context) error {
	return r.DB.Ping(ctx)
}

func (r *Repo) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.DB.Exec(ctx, sql, args...)
}

func (r *Repo) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.DB.QueryRow(ctx, sql, args...)
}

func (r *Repo) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.DB.Query(ctx, sql, args...)
}
