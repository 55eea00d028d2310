package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	// ErrOrderNotFound indica que o pedido não existe
	ErrOrderNotFound = errors.New("order not found")

	// ErrInvalidTransition indica uma mudança de status não permitida
	ErrInvalidTransition = errors.New("invalid order status transition")

	// ErrEmptyOrder indica um pedido sem itens
	ErrEmptyOrder = errors.New("order must have at least one item")
)

// OrderUseCase orquestra a criação e o cancelamento de pedidos. Toda a
// escrita multi-tabela (pedido, itens, reserva de estoque, fidelidade)
// acontece dentro de uma única transação: qualquer falha desfaz tudo.
type OrderUseCase struct {
	repository OrderRepository
	notifier   Notifier
	created    metric.Int64Counter
	cancelled  metric.Int64Counter
}

// NewOrderUseCase cria uma nova instância de OrderUseCase
func NewOrderUseCase(repository OrderRepository, notifier Notifier) *OrderUseCase {
	meter := otel.Meter("backend-orders")
	created, _ := meter.Int64Counter("orders.created")
	cancelled, _ := meter.Int64Counter("orders.cancelled")

	return &OrderUseCase{
		repository: repository,
		notifier:   notifier,
		created:    created,
		cancelled:  cancelled,
	}
}

// CreateOrder cria um pedido completo em uma única transação: gera o número
// sequencial, insere o pedido e seus itens, reserva o estoque de cada item
// e credita a fidelidade quando o pedido não é de convidado
func (uc *OrderUseCase) CreateOrder(ctx context.Context, order *Order) (*Order, error) {
	if len(order.Items) == 0 {
		return nil, ErrEmptyOrder
	}

	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	order.OrderNumber, err = uc.repository.NextOrderNumber(ctx, tx)
	if err != nil {
		return nil, err
	}

	if err := uc.repository.InsertOrder(ctx, tx, order); err != nil {
		return nil, err
	}

	for i := range order.Items {
		item := &order.Items[i]

		if err := uc.repository.InsertOrderItem(ctx, tx, item); err != nil {
			return nil, err
		}
		if err := uc.repository.ReserveStock(ctx, tx, item.VariantID, order.BranchID, item.Quantity); err != nil {
			return nil, err
		}
	}

	if !order.IsGuestOrder && order.CustomerID != nil {
		if err := uc.repository.ApplyLoyalty(ctx, tx, *order.CustomerID, order.Total); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit order: %w", err)
	}

	uc.created.Add(ctx, 1)
	log.Printf("✅ Order created: %s (%s)", order.OrderNumber, order.ID)

	uc.notifier.OrderCreated(ctx, order)
	return order, nil
}

// CancelOrder cancela um pedido: devolve a reserva de estoque de cada item
// e marca o pedido como cancelado, em uma única transação.
// Política explícita: pontos de fidelidade já creditados não são estornados.
func (uc *OrderUseCase) CancelOrder(ctx context.Context, orderID string) (*Order, error) {
	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	order, err := uc.repository.GetOrderForUpdate(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	if err := order.Cancel(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTransition, err.Error())
	}

	items, err := uc.repository.GetOrderItemsTx(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}

	for _, item := range items {
		if err := uc.repository.ReleaseStock(ctx, tx, item.VariantID, order.BranchID, item.Quantity); err != nil {
			return nil, err
		}
	}

	if err := uc.repository.UpdateOrderStatusTx(ctx, tx, orderID, OrderStatusCancelled); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit cancellation: %w", err)
	}

	order.Items = items
	uc.cancelled.Add(ctx, 1)
	log.Printf("↩️ Order cancelled: %s (%s)", order.OrderNumber, order.ID)

	uc.notifier.OrderCancelled(ctx, order)
	return order, nil
}

// GetOrder busca um pedido com seus itens; retorna nil quando não existe
func (uc *OrderUseCase) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	order, err := uc.repository.GetOrder(ctx, orderID)
	if err != nil || order == nil {
		return order, err
	}

	order.Items, err = uc.repository.GetOrderItems(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return order, nil
}

// UpdateStatus avança o pedido na máquina de status
// (pending → confirmed → ready → completed)
func (uc *OrderUseCase) UpdateStatus(ctx context.Context, orderID, status string) (*Order, error) {
	order, err := uc.repository.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	if status == OrderStatusCancelled {
		// Cancelamento passa pelo fluxo transacional que devolve o estoque
		return nil, fmt.Errorf("%w: use the cancel endpoint to cancel an order", ErrInvalidTransition)
	}
	if !order.CanTransitionTo(status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, status)
	}

	updated, err := uc.repository.UpdateOrderStatus(ctx, orderID, order.Status, status)
	if err != nil {
		return nil, err
	}
	if !updated {
		// O pedido mudou de status entre a leitura e a escrita
		return nil, fmt.Errorf("%w: order %s is no longer %s", ErrInvalidTransition, orderID, order.Status)
	}

	order.Status = status
	return order, nil
}

// GetInventory expõe a posição de estoque de uma variante em uma filial
func (uc *OrderUseCase) GetInventory(ctx context.Context, variantID, branchID string) (*Inventory, error) {
	return uc.repository.GetInventory(ctx, variantID, branchID)
}
