package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/rl1809/quick-commerce/internal/core/domain"
)

const pgUniqueViolation = "23505"

// PostgresAdapter is the pgx counterpart of MySQLAdapter over the same schema.
// Numeric columns are read as text and parsed into decimals.
type PostgresAdapter struct {
	pool *pgxpool.Pool
}

func NewPostgresAdapter(pool *pgxpool.Pool) *PostgresAdapter {
	return &PostgresAdapter{pool: pool}
}

func (p *PostgresAdapter) ListActiveStores(ctx context.Context) ([]domain.Store, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, name, is_active, lat, lng, created_at
		FROM stores WHERE is_active
		ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query stores: %w", err)
	}
	defer rows.Close()

	stores := []domain.Store{}
	for rows.Next() {
		var s domain.Store
		if err := rows.Scan(&s.ID, &s.Name, &s.IsActive, &s.Location.Lat, &s.Location.Lng, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan store: %w", err)
		}
		stores = append(stores, s)
	}
	return stores, rows.Err()
}

func (p *PostgresAdapter) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	var (
		prod            domain.Product
		price, discount string
	)
	err := p.pool.QueryRow(ctx, `
		SELECT id, name, price::text, is_active, discount_percent::text, updated_at
		FROM products WHERE id = $1`, productID,
	).Scan(&prod.ID, &prod.Name, &price, &prod.IsActive, &discount, &prod.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}
	if prod.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("parse price of %s: %w", productID, err)
	}
	if prod.DiscountPercent, err = decimal.NewFromString(discount); err != nil {
		return nil, fmt.Errorf("parse discount of %s: %w", productID, err)
	}
	return &prod, nil
}

func (p *PostgresAdapter) GetStorePrice(ctx context.Context, storeID, productID string) (*domain.StorePrice, error) {
	var price, discount *string
	err := p.pool.QueryRow(ctx, `
		SELECT price::text, discount_percent::text
		FROM store_prices WHERE store_id = $1 AND product_id = $2`, storeID, productID,
	).Scan(&price, &discount)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query store price: %w", err)
	}

	np, err := nullDecimal(price)
	if err != nil {
		return nil, fmt.Errorf("parse store price: %w", err)
	}
	nd, err := nullDecimal(discount)
	if err != nil {
		return nil, fmt.Errorf("parse store discount: %w", err)
	}
	return newStorePrice(storeID, productID, np, nd), nil
}

func (p *PostgresAdapter) CheckAvailability(ctx context.Context, storeID, productID string) (int, error) {
	var quantity int
	err := p.pool.QueryRow(ctx, `
		SELECT quantity FROM inventory WHERE store_id = $1 AND product_id = $2`,
		storeID, productID,
	).Scan(&quantity)

	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query inventory: %w", err)
	}
	return quantity, nil
}

func (p *PostgresAdapter) ReserveAndDecrement(ctx context.Context, storeID, productID string, quantity int) (bool, error) {
	if quantity <= 0 {
		return false, ErrInvalidQuantity
	}

	tag, err := p.pool.Exec(ctx, `
		UPDATE inventory
		SET quantity = quantity - $1, updated_at = now()
		WHERE store_id = $2 AND product_id = $3 AND quantity >= $1`,
		quantity, storeID, productID,
	)
	if err != nil {
		return false, fmt.Errorf("update inventory: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (p *PostgresAdapter) ReserveLines(ctx context.Context, storeID string, lines []domain.LineItem) (bool, error) {
	lines = domain.MergeLines(lines)
	for _, l := range lines {
		if l.Quantity <= 0 {
			return false, ErrInvalidQuantity
		}
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, l := range lines {
		tag, err := tx.Exec(ctx, `
			UPDATE inventory
			SET quantity = quantity - $1, updated_at = now()
			WHERE store_id = $2 AND product_id = $3 AND quantity >= $1`,
			l.Quantity, storeID, l.ProductID,
		)
		if err != nil {
			return false, fmt.Errorf("update inventory %s: %w", l.ProductID, err)
		}
		if tag.RowsAffected() == 0 {
			return false, nil
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit reservation: %w", err)
	}
	return true, nil
}

func (p *PostgresAdapter) Restock(ctx context.Context, storeID, productID string, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}

	_, err := p.pool.Exec(ctx, `
		INSERT INTO inventory (store_id, product_id, quantity, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (store_id, product_id)
		DO UPDATE SET quantity = inventory.quantity + EXCLUDED.quantity, updated_at = now()`,
		storeID, productID, quantity,
	)
	if err != nil {
		return fmt.Errorf("restock inventory: %w", err)
	}
	return nil
}

func (p *PostgresAdapter) ListInventory(ctx context.Context) ([]domain.InventoryRecord, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT store_id, product_id, quantity, updated_at
		FROM inventory ORDER BY store_id, product_id`)
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}
	defer rows.Close()

	records := []domain.InventoryRecord{}
	for rows.Next() {
		var r domain.InventoryRecord
		if err := rows.Scan(&r.StoreID, &r.ProductID, &r.Quantity, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan inventory: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (p *PostgresAdapter) CreateOrder(ctx context.Context, order domain.Order) error {
	address, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("encode address: %w", err)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, user_id, store_id, total_amount, status, shipping_address,
			lat, lng, payment_method, created_at, updated_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9, $10, $11)`,
		order.ID, order.UserID, order.StoreID, order.TotalAmount.String(), string(order.Status), address,
		order.Location.Lat, order.Location.Lng, order.PaymentMethod, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrOrderExists
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for i, line := range order.Lines {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_lines (order_id, line_no, product_id, quantity, price)
			VALUES ($1, $2, $3, $4, $5::numeric)`,
			order.ID, i, line.ProductID, line.Quantity, line.Price.String(),
		)
		if err != nil {
			return fmt.Errorf("insert order line: %w", err)
		}
	}

	return tx.Commit(ctx)
}

const pgOrderColumns = `id, user_id, store_id, total_amount::text, status, shipping_address,
	lat, lng, payment_method, created_at, updated_at`

func (p *PostgresAdapter) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+pgOrderColumns+` FROM orders WHERE id = $1`, orderID)

	order, err := scanPgOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}

	if order.Lines, err = p.orderLines(ctx, order.ID); err != nil {
		return nil, err
	}
	return order, nil
}

func (p *PostgresAdapter) ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+pgOrderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}

	orders := []domain.Order{}
	for rows.Next() {
		order, err := scanPgOrder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		if orders[i].Lines, err = p.orderLines(ctx, orders[i].ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (p *PostgresAdapter) orderLines(ctx context.Context, orderID string) ([]domain.OrderLine, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT product_id, quantity, price::text
		FROM order_lines WHERE order_id = $1
		ORDER BY line_no`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order lines: %w", err)
	}
	defer rows.Close()

	lines := []domain.OrderLine{}
	for rows.Next() {
		var (
			l     domain.OrderLine
			price string
		)
		if err := rows.Scan(&l.ProductID, &l.Quantity, &price); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		if l.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse line price: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (p *PostgresAdapter) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	cart := &domain.Cart{UserID: userID, Items: []domain.CartItem{}}

	var storeID *string
	err := p.pool.QueryRow(ctx, `SELECT store_id, updated_at FROM carts WHERE user_id = $1`, userID).
		Scan(&storeID, &cart.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return cart, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query cart: %w", err)
	}
	if storeID != nil {
		cart.StoreID = *storeID
	}

	rows, err := p.pool.Query(ctx, `
		SELECT product_id, quantity, price::text
		FROM cart_items WHERE user_id = $1
		ORDER BY position`, userID)
	if err != nil {
		return nil, fmt.Errorf("query cart items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			it    domain.CartItem
			price string
		)
		if err := rows.Scan(&it.ProductID, &it.Quantity, &price); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		if it.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse cart price: %w", err)
		}
		cart.Items = append(cart.Items, it)
	}
	return cart, rows.Err()
}

func (p *PostgresAdapter) SaveCart(ctx context.Context, cart domain.Cart) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var storeID *string
	if cart.StoreID != "" {
		storeID = &cart.StoreID
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO carts (user_id, store_id, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE SET store_id = EXCLUDED.store_id, updated_at = now()`,
		cart.UserID, storeID,
	)
	if err != nil {
		return fmt.Errorf("upsert cart: %w", err)
	}

	if _, err = tx.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, cart.UserID); err != nil {
		return fmt.Errorf("delete cart items: %w", err)
	}
	for i, it := range cart.Items {
		_, err = tx.Exec(ctx, `
			INSERT INTO cart_items (user_id, position, product_id, quantity, price)
			VALUES ($1, $2, $3, $4, $5::numeric)`,
			cart.UserID, i, it.ProductID, it.Quantity, it.Price.String(),
		)
		if err != nil {
			return fmt.Errorf("insert cart item: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (p *PostgresAdapter) ClearCart(ctx context.Context, userID string) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err = tx.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete cart items: %w", err)
	}
	if _, err = tx.Exec(ctx, `UPDATE carts SET store_id = NULL, updated_at = now() WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("detach cart store: %w", err)
	}

	return tx.Commit(ctx)
}

func (p *PostgresAdapter) SaveLastAddress(ctx context.Context, userID string, address domain.Address, location domain.Location) error {
	data, err := json.Marshal(address)
	if err != nil {
		return fmt.Errorf("encode address: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO user_profiles (user_id, address, lat, lng, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (user_id) DO UPDATE
		SET address = EXCLUDED.address, lat = EXCLUDED.lat, lng = EXCLUDED.lng, updated_at = now()`,
		userID, data, location.Lat, location.Lng,
	)
	if err != nil {
		return fmt.Errorf("save profile address: %w", err)
	}
	return nil
}

func scanPgOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o       domain.Order
		total   string
		status  string
		address []byte
		payment *string
	)
	err := row.Scan(&o.ID, &o.UserID, &o.StoreID, &total, &status, &address,
		&o.Location.Lat, &o.Location.Lng, &payment, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if o.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	o.Status = domain.OrderStatus(status)
	if payment != nil {
		o.PaymentMethod = *payment
	}
	if len(address) > 0 {
		if err := json.Unmarshal(address, &o.ShippingAddress); err != nil {
			return nil, fmt.Errorf("decode address: %w", err)
		}
	}
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return &o, nil
}

func nullDecimal(s *string) (decimal.NullDecimal, error) {
	if s == nil {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}, nil
}
