package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"

	"github.com/rl1809/quick-commerce/internal/core/domain"
)

const mysqlDuplicateEntry = 1062

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// --- catalog ---

func (m *MySQLAdapter) ListActiveStores(ctx context.Context) ([]domain.Store, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, name, is_active, lat, lng, created_at
		FROM stores WHERE is_active = TRUE
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

func (m *MySQLAdapter) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	var p domain.Product
	err := m.db.QueryRowContext(ctx, `
		SELECT id, name, price, is_active, discount_percent, updated_at
		FROM products WHERE id = ?`, productID,
	).Scan(&p.ID, &p.Name, &p.Price, &p.IsActive, &p.DiscountPercent, &p.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}
	return &p, nil
}

func (m *MySQLAdapter) GetStorePrice(ctx context.Context, storeID, productID string) (*domain.StorePrice, error) {
	var price, discount decimal.NullDecimal
	err := m.db.QueryRowContext(ctx, `
		SELECT price, discount_percent
		FROM store_prices WHERE store_id = ? AND product_id = ?`, storeID, productID,
	).Scan(&price, &discount)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query store price: %w", err)
	}
	return newStorePrice(storeID, productID, price, discount), nil
}

// --- ledger ---

func (m *MySQLAdapter) CheckAvailability(ctx context.Context, storeID, productID string) (int, error) {
	var quantity int
	err := m.db.QueryRowContext(ctx, `
		SELECT quantity FROM inventory WHERE store_id = ? AND product_id = ?`,
		storeID, productID,
	).Scan(&quantity)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query inventory: %w", err)
	}
	return quantity, nil
}

func (m *MySQLAdapter) ReserveAndDecrement(ctx context.Context, storeID, productID string, quantity int) (bool, error) {
	if quantity <= 0 {
		return false, ErrInvalidQuantity
	}

	result, err := m.db.ExecContext(ctx, `
		UPDATE inventory
		SET quantity = quantity - ?, updated_at = NOW()
		WHERE store_id = ? AND product_id = ? AND quantity >= ?`,
		quantity, storeID, productID, quantity,
	)
	if err != nil {
		return false, fmt.Errorf("update inventory: %w", err)
	}

	rows, _ := result.RowsAffected()
	return rows == 1, nil
}

func (m *MySQLAdapter) ReserveLines(ctx context.Context, storeID string, lines []domain.LineItem) (bool, error) {
	lines = domain.MergeLines(lines)
	for _, l := range lines {
		if l.Quantity <= 0 {
			return false, ErrInvalidQuantity
		}
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, l := range lines {
		result, err := tx.ExecContext(ctx, `
			UPDATE inventory
			SET quantity = quantity - ?, updated_at = NOW()
			WHERE store_id = ? AND product_id = ? AND quantity >= ?`,
			l.Quantity, storeID, l.ProductID, l.Quantity,
		)
		if err != nil {
			return false, fmt.Errorf("update inventory %s: %w", l.ProductID, err)
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return false, nil
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit reservation: %w", err)
	}
	return true, nil
}

func (m *MySQLAdapter) Restock(ctx context.Context, storeID, productID string, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}

	_, err := m.db.ExecContext(ctx, `
		INSERT INTO inventory (store_id, product_id, quantity, updated_at)
		VALUES (?, ?, ?, NOW())
		ON DUPLICATE KEY UPDATE quantity = quantity + VALUES(quantity), updated_at = NOW()`,
		storeID, productID, quantity,
	)
	if err != nil {
		return fmt.Errorf("restock inventory: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) ListInventory(ctx context.Context) ([]domain.InventoryRecord, error) {
	rows, err := m.db.QueryContext(ctx, `
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

// --- orders ---

func (m *MySQLAdapter) CreateOrder(ctx context.Context, order domain.Order) error {
	address, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("encode address: %w", err)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, store_id, total_amount, status, shipping_address,
			lat, lng, payment_method, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.UserID, order.StoreID, order.TotalAmount, string(order.Status), address,
		order.Location.Lat, order.Location.Lng, order.PaymentMethod, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
			return ErrOrderExists
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for i, line := range order.Lines {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_lines (order_id, line_no, product_id, quantity, price)
			VALUES (?, ?, ?, ?, ?)`,
			order.ID, i, line.ProductID, line.Quantity, line.Price,
		)
		if err != nil {
			return fmt.Errorf("insert order line: %w", err)
		}
	}

	return tx.Commit()
}

func (m *MySQLAdapter) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT id, user_id, store_id, total_amount, status, shipping_address,
			lat, lng, payment_method, created_at, updated_at
		FROM orders WHERE id = ?`, orderID)

	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}

	if order.Lines, err = m.orderLines(ctx, order.ID); err != nil {
		return nil, err
	}
	return order, nil
}

func (m *MySQLAdapter) ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, user_id, store_id, total_amount, status, shipping_address,
			lat, lng, payment_method, created_at, updated_at
		FROM orders WHERE user_id = ?
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}

	orders := []domain.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
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
		if orders[i].Lines, err = m.orderLines(ctx, orders[i].ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (m *MySQLAdapter) orderLines(ctx context.Context, orderID string) ([]domain.OrderLine, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT product_id, quantity, price
		FROM order_lines WHERE order_id = ?
		ORDER BY line_no`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order lines: %w", err)
	}
	defer rows.Close()

	lines := []domain.OrderLine{}
	for rows.Next() {
		var l domain.OrderLine
		if err := rows.Scan(&l.ProductID, &l.Quantity, &l.Price); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// --- carts and profiles ---

func (m *MySQLAdapter) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	cart := &domain.Cart{UserID: userID, Items: []domain.CartItem{}}

	var storeID sql.NullString
	err := m.db.QueryRowContext(ctx, `
		SELECT store_id, updated_at FROM carts WHERE user_id = ?`, userID,
	).Scan(&storeID, &cart.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return cart, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query cart: %w", err)
	}
	cart.StoreID = storeID.String

	rows, err := m.db.QueryContext(ctx, `
		SELECT product_id, quantity, price
		FROM cart_items WHERE user_id = ?
		ORDER BY position`, userID)
	if err != nil {
		return nil, fmt.Errorf("query cart items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it domain.CartItem
		if err := rows.Scan(&it.ProductID, &it.Quantity, &it.Price); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		cart.Items = append(cart.Items, it)
	}
	return cart, rows.Err()
}

func (m *MySQLAdapter) SaveCart(ctx context.Context, cart domain.Cart) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO carts (user_id, store_id, updated_at) VALUES (?, ?, NOW())
		ON DUPLICATE KEY UPDATE store_id = VALUES(store_id), updated_at = NOW()`,
		cart.UserID, nullString(cart.StoreID),
	)
	if err != nil {
		return fmt.Errorf("upsert cart: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = ?`, cart.UserID); err != nil {
		return fmt.Errorf("delete cart items: %w", err)
	}
	for i, it := range cart.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO cart_items (user_id, position, product_id, quantity, price)
			VALUES (?, ?, ?, ?, ?)`,
			cart.UserID, i, it.ProductID, it.Quantity, it.Price,
		)
		if err != nil {
			return fmt.Errorf("insert cart item: %w", err)
		}
	}

	return tx.Commit()
}

func (m *MySQLAdapter) ClearCart(ctx context.Context, userID string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete cart items: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `
		UPDATE carts SET store_id = NULL, updated_at = NOW() WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("detach cart store: %w", err)
	}

	return tx.Commit()
}

func (m *MySQLAdapter) SaveLastAddress(ctx context.Context, userID string, address domain.Address, location domain.Location) error {
	data, err := json.Marshal(address)
	if err != nil {
		return fmt.Errorf("encode address: %w", err)
	}

	_, err = m.db.ExecContext(ctx, `
		INSERT INTO user_profiles (user_id, address, lat, lng, updated_at)
		VALUES (?, ?, ?, ?, NOW())
		ON DUPLICATE KEY UPDATE address = VALUES(address), lat = VALUES(lat),
			lng = VALUES(lng), updated_at = NOW()`,
		userID, data, location.Lat, location.Lng,
	)
	if err != nil {
		return fmt.Errorf("save profile address: %w", err)
	}
	return nil
}

// --- shared helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		o       domain.Order
		status  string
		address []byte
		payment sql.NullString
	)
	err := row.Scan(&o.ID, &o.UserID, &o.StoreID, &o.TotalAmount, &status, &address,
		&o.Location.Lat, &o.Location.Lng, &payment, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.Status = domain.OrderStatus(status)
	o.PaymentMethod = payment.String
	if len(address) > 0 {
		if err := json.Unmarshal(address, &o.ShippingAddress); err != nil {
			return nil, fmt.Errorf("decode address: %w", err)
		}
	}
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return &o, nil
}

func newStorePrice(storeID, productID string, price, discount decimal.NullDecimal) *domain.StorePrice {
	sp := &domain.StorePrice{StoreID: storeID, ProductID: productID}
	if price.Valid {
		p := price.Decimal
		sp.Price = &p
	}
	if discount.Valid {
		d := discount.Decimal
		sp.DiscountPercent = &d
	}
	return sp
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
