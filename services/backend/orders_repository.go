package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrInsufficientStock é retornado quando a reserva excede o estoque disponível
var ErrInsufficientStock = errors.New("insufficient stock")

// OrderRepository define a interface para operações de banco de dados de pedidos
type OrderRepository interface {
	BeginTx(ctx context.Context) (Tx, error)

	// NextOrderNumber incrementa o contador de pedidos dentro da transação
	// e retorna o próximo número no formato ORD%08d
	NextOrderNumber(ctx context.Context, tx Tx) (string, error)

	InsertOrder(ctx context.Context, tx Tx, order *Order) error
	InsertOrderItem(ctx context.Context, tx Tx, item *OrderItem) error

	// ReserveStock incrementa quantity_reserved em um único UPDATE; falha
	// com ErrInsufficientStock quando a reserva excede o disponível
	ReserveStock(ctx context.Context, tx Tx, variantID, branchID string, quantity int) error

	// ReleaseStock devolve a reserva feita por ReserveStock
	ReleaseStock(ctx context.Context, tx Tx, variantID, branchID string, quantity int) error

	// ApplyLoyalty credita pontos e atualiza os agregados de gasto e o tier
	// do cliente em um único UPDATE
	ApplyLoyalty(ctx context.Context, tx Tx, customerID string, total float64) error

	GetOrderForUpdate(ctx context.Context, tx Tx, orderID string) (*Order, error)
	GetOrderItemsTx(ctx context.Context, tx Tx, orderID string) ([]OrderItem, error)
	UpdateOrderStatusTx(ctx context.Context, tx Tx, orderID, status string) error

	GetOrder(ctx context.Context, orderID string) (*Order, error)
	GetOrderItems(ctx context.Context, orderID string) ([]OrderItem, error)
	UpdateOrderStatus(ctx context.Context, orderID, fromStatus, toStatus string) (bool, error)
	GetInventory(ctx context.Context, variantID, branchID string) (*Inventory, error)
}

// Tx interface para transações
type Tx interface {
	Commit() error
	Rollback() error
}

// PostgresTx implementa a interface Tx
type PostgresTx struct {
	tx pgx.Tx
}

func (t *PostgresTx) Commit() error {
	return t.tx.Commit(context.Background())
}

func (t *PostgresTx) Rollback() error {
	return t.tx.Rollback(context.Background())
}

// PostgresOrderRepository implementa OrderRepository usando PostgreSQL
type PostgresOrderRepository struct {
	db *pgxpool.Pool
}

// NewOrderRepository cria uma nova instância de PostgresOrderRepository
func NewOrderRepository(db *pgxpool.Pool) OrderRepository {
	return &PostgresOrderRepository{
		db: db,
	}
}

// BeginTx inicia uma nova transação
func (r *PostgresOrderRepository) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &PostgresTx{tx: tx}, nil
}

// NextOrderNumber incrementa atomicamente o contador dedicado de pedidos.
// O upsert mantém o lock da linha até o commit, então dois pedidos
// concorrentes nunca observam o mesmo valor.
func (r *PostgresOrderRepository) NextOrderNumber(ctx context.Context, tx Tx) (string, error) {
	pgTx := tx.(*PostgresTx).tx

	var value int64
	err := pgTx.QueryRow(ctx, `
		INSERT INTO order_counters (id, value)
		VALUES ('orders', 1)
		ON CONFLICT (id) DO UPDATE SET value = order_counters.value + 1
		RETURNING value
	`).Scan(&value)
	if err != nil {
		return "", fmt.Errorf("failed to generate order number: %w", err)
	}

	return fmt.Sprintf("ORD%08d", value), nil
}

// InsertOrder insere a linha do pedido
func (r *PostgresOrderRepository) InsertOrder(ctx context.Context, tx Tx, order *Order) error {
	pgTx := tx.(*PostgresTx).tx

	_, err := pgTx.Exec(ctx, `
		INSERT INTO orders (id, order_number, branch_id, customer_id, status, total,
		                    payment_method, payment_reference, is_guest_order,
		                    estimated_ready_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, order.ID, order.OrderNumber, order.BranchID, order.CustomerID, order.Status, order.Total,
		order.PaymentMethod, order.PaymentReference, order.IsGuestOrder,
		order.EstimatedReadyAt, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

// InsertOrderItem insere uma linha de item do pedido
func (r *PostgresOrderRepository) InsertOrderItem(ctx context.Context, tx Tx, item *OrderItem) error {
	pgTx := tx.(*PostgresTx).tx

	_, err := pgTx.Exec(ctx, `
		INSERT INTO order_items (id, order_id, variant_id, quantity, unit_price, line_total,
		                         weight, expiry_date, batch_number)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, item.ID, item.OrderID, item.VariantID, item.Quantity, item.UnitPrice, item.LineTotal,
		item.Weight, item.ExpiryDate, item.BatchNumber)
	if err != nil {
		return fmt.Errorf("failed to insert order item: %w", err)
	}
	return nil
}

// ReserveStock incrementa a reserva em um único UPDATE; a condição no WHERE
// garante quantity_reserved <= quantity_on_hand e o lock de linha do banco
// evita lost updates entre pedidos concorrentes
func (r *PostgresOrderRepository) ReserveStock(ctx context.Context, tx Tx, variantID, branchID string, quantity int) error {
	pgTx := tx.(*PostgresTx).tx

	tag, err := pgTx.Exec(ctx, `
		UPDATE inventory
		SET quantity_reserved = quantity_reserved + $1,
		    updated_at = NOW()
		WHERE variant_id = $2 AND branch_id = $3
		  AND quantity_on_hand - quantity_reserved >= $1
	`, quantity, variantID, branchID)
	if err != nil {
		return fmt.Errorf("failed to reserve stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w for variant %s at branch %s", ErrInsufficientStock, variantID, branchID)
	}
	return nil
}

// ReleaseStock devolve unidades reservadas ao estoque disponível
func (r *PostgresOrderRepository) ReleaseStock(ctx context.Context, tx Tx, variantID, branchID string, quantity int) error {
	pgTx := tx.(*PostgresTx).tx

	_, err := pgTx.Exec(ctx, `
		UPDATE inventory
		SET quantity_reserved = GREATEST(quantity_reserved - $1, 0),
		    updated_at = NOW()
		WHERE variant_id = $2 AND branch_id = $3
	`, quantity, variantID, branchID)
	if err != nil {
		return fmt.Errorf("failed to release stock: %w", err)
	}
	return nil
}

// ApplyLoyalty credita pontos e recalcula o tier no mesmo UPDATE, evitando
// a janela de leitura desatualizada entre pedidos concorrentes do cliente
func (r *PostgresOrderRepository) ApplyLoyalty(ctx context.Context, tx Tx, customerID string, total float64) error {
	pgTx := tx.(*PostgresTx).tx

	_, err := pgTx.Exec(ctx, `
		UPDATE customers
		SET loyalty_points = loyalty_points + $1,
		    total_spent = total_spent + $2,
		    total_lifetime_spent = total_lifetime_spent + $2,
		    loyalty_tier = CASE
		        WHEN total_lifetime_spent + $2 >= 50000 THEN 'platinum'
		        WHEN total_lifetime_spent + $2 >= 25000 THEN 'gold'
		        WHEN total_lifetime_spent + $2 >= 10000 THEN 'silver'
		        ELSE 'bronze'
		    END
		WHERE id = $3
	`, LoyaltyPointsFor(total), total, customerID)
	if err != nil {
		return fmt.Errorf("failed to apply loyalty: %w", err)
	}
	return nil
}

const orderColumns = `id, order_number, branch_id, customer_id, status, total,
	payment_method, payment_reference, is_guest_order, estimated_ready_at, created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.OrderNumber, &o.BranchID, &o.CustomerID, &o.Status, &o.Total,
		&o.PaymentMethod, &o.PaymentReference, &o.IsGuestOrder, &o.EstimatedReadyAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// GetOrderForUpdate obtém o pedido com lock pessimista (FOR UPDATE)
func (r *PostgresOrderRepository) GetOrderForUpdate(ctx context.Context, tx Tx, orderID string) (*Order, error) {
	pgTx := tx.(*PostgresTx).tx

	order, err := scanOrder(pgTx.QueryRow(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE id = $1 FOR UPDATE", orderID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order with lock: %w", err)
	}
	return order, nil
}

// GetOrderItemsTx busca os itens do pedido dentro da transação
func (r *PostgresOrderRepository) GetOrderItemsTx(ctx context.Context, tx Tx, orderID string) ([]OrderItem, error) {
	pgTx := tx.(*PostgresTx).tx
	return queryOrderItems(ctx, pgTx, orderID)
}

// UpdateOrderStatusTx atualiza o status do pedido dentro da transação
func (r *PostgresOrderRepository) UpdateOrderStatusTx(ctx context.Context, tx Tx, orderID, status string) error {
	pgTx := tx.(*PostgresTx).tx

	_, err := pgTx.Exec(ctx, `
		UPDATE orders SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status != $1
	`, status, orderID)
	return err
}

// GetOrder busca um pedido pelo ID; retorna nil quando não existe
func (r *PostgresOrderRepository) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	order, err := scanOrder(r.db.QueryRow(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE id = $1", orderID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

// queryable cobre pool e transação para as consultas de itens
type queryable interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryOrderItems(ctx context.Context, q queryable, orderID string) ([]OrderItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, variant_id, quantity, unit_price, line_total, weight, expiry_date, batch_number
		FROM order_items
		WHERE order_id = $1
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list order items: %w", err)
	}
	defer rows.Close()

	items := []OrderItem{}
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.VariantID, &it.Quantity, &it.UnitPrice, &it.LineTotal,
			&it.Weight, &it.ExpiryDate, &it.BatchNumber); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// GetOrderItems busca os itens de um pedido
func (r *PostgresOrderRepository) GetOrderItems(ctx context.Context, orderID string) ([]OrderItem, error) {
	return queryOrderItems(ctx, r.db, orderID)
}

// UpdateOrderStatus atualiza o status de um pedido de forma condicional:
// só aplica se o status atual ainda for fromStatus, para que uma mudança
// concorrente (ex: cancelamento) nunca seja sobrescrita. Retorna false
// quando o pedido não está mais no status esperado.
func (r *PostgresOrderRepository) UpdateOrderStatus(ctx context.Context, orderID, fromStatus, toStatus string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE orders SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`, toStatus, orderID, fromStatus)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// GetInventory busca a linha de estoque de uma variante em uma filial
func (r *PostgresOrderRepository) GetInventory(ctx context.Context, variantID, branchID string) (*Inventory, error) {
	var inv Inventory
	err := r.db.QueryRow(ctx, `
		SELECT variant_id, branch_id, quantity_on_hand, quantity_reserved, updated_at
		FROM inventory
		WHERE variant_id = $1 AND branch_id = $2
	`, variantID, branchID).Scan(&inv.VariantID, &inv.BranchID, &inv.QuantityOnHand, &inv.QuantityReserved, &inv.UpdatedAt)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}
