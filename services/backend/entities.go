package main

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Branch representa uma loja física da rede
type Branch struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Address   string    `json:"address" db:"address"`
	Phone     string    `json:"phone" db:"phone"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Category agrupa produtos do catálogo
type Category struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	IsActive    bool      `json:"is_active" db:"is_active"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Product representa um produto do catálogo (ração, medicamento, insumo)
type Product struct {
	ID          string           `json:"id" db:"id"`
	CategoryID  string           `json:"category_id" db:"category_id"`
	Name        string           `json:"name" db:"name"`
	Description string           `json:"description" db:"description"`
	Brand       string           `json:"brand" db:"brand"`
	ImageURL    string           `json:"image_url" db:"image_url"`
	IsActive    bool             `json:"is_active" db:"is_active"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at" db:"updated_at"`
	Variants    []ProductVariant `json:"variants,omitempty"`
}

// ProductVariant é uma apresentação vendável de um produto (ex: saco de 25kg)
type ProductVariant struct {
	ID                string  `json:"id" db:"id"`
	ProductID         string  `json:"product_id" db:"product_id"`
	SKU               string  `json:"sku" db:"sku"`
	Name              string  `json:"name" db:"name"`
	Unit              string  `json:"unit" db:"unit"`
	Price             float64 `json:"price" db:"price"`
	IsActive          bool    `json:"is_active" db:"is_active"`
	QuantityAvailable int     `json:"quantity_available"`
}

// Promotion representa uma promoção ativa em uma filial (ou em todas, quando BranchID é nil)
type Promotion struct {
	ID              string    `json:"id" db:"id"`
	BranchID        *string   `json:"branch_id" db:"branch_id"`
	Title           string    `json:"title" db:"title"`
	Description     string    `json:"description" db:"description"`
	DiscountPercent float64   `json:"discount_percent" db:"discount_percent"`
	StartsAt        time.Time `json:"starts_at" db:"starts_at"`
	EndsAt          time.Time `json:"ends_at" db:"ends_at"`
	IsActive        bool      `json:"is_active" db:"is_active"`
}

// Inventory guarda o estoque de uma variante em uma filial
type Inventory struct {
	VariantID        string    `json:"variant_id" db:"variant_id"`
	BranchID         string    `json:"branch_id" db:"branch_id"`
	QuantityOnHand   int       `json:"quantity_on_hand" db:"quantity_on_hand"`
	QuantityReserved int       `json:"quantity_reserved" db:"quantity_reserved"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// QuantityAvailable é derivado: estoque físico menos reservas pendentes
func (i *Inventory) QuantityAvailable() int {
	return i.QuantityOnHand - i.QuantityReserved
}

// Customer representa um cliente cadastrado com seus agregados de fidelidade
type Customer struct {
	ID                 string    `json:"id" db:"id"`
	Name               string    `json:"name" db:"name"`
	Email              string    `json:"email" db:"email"`
	Phone              string    `json:"phone" db:"phone"`
	LoyaltyPoints      int       `json:"loyalty_points" db:"loyalty_points"`
	TotalSpent         float64   `json:"total_spent" db:"total_spent"`
	TotalLifetimeSpent float64   `json:"total_lifetime_spent" db:"total_lifetime_spent"`
	LoyaltyTier        string    `json:"loyalty_tier" db:"loyalty_tier"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
}

// OrderItem é uma linha de um pedido; pertence exclusivamente ao pedido que a criou
type OrderItem struct {
	ID          string     `json:"id" db:"id"`
	OrderID     string     `json:"order_id" db:"order_id"`
	VariantID   string     `json:"variant_id" db:"variant_id"`
	Quantity    int        `json:"quantity" db:"quantity"`
	UnitPrice   float64    `json:"unit_price" db:"unit_price"`
	LineTotal   float64    `json:"line_total" db:"line_total"`
	Weight      *float64   `json:"weight,omitempty" db:"weight"`
	ExpiryDate  *time.Time `json:"expiry_date,omitempty" db:"expiry_date"`
	BatchNumber *string    `json:"batch_number,omitempty" db:"batch_number"`
}

// Order representa um pedido no sistema
type Order struct {
	ID               string      `json:"id" db:"id"`
	OrderNumber      string      `json:"order_number" db:"order_number"`
	BranchID         string      `json:"branch_id" db:"branch_id"`
	CustomerID       *string     `json:"customer_id" db:"customer_id"`
	Status           string      `json:"status" db:"status"`
	Total            float64     `json:"total" db:"total"`
	PaymentMethod    string      `json:"payment_method" db:"payment_method"`
	PaymentReference string      `json:"payment_reference" db:"payment_reference"`
	IsGuestOrder     bool        `json:"is_guest_order" db:"is_guest_order"`
	EstimatedReadyAt time.Time   `json:"estimated_ready_at" db:"estimated_ready_at"`
	CreatedAt        time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at" db:"updated_at"`
	Items            []OrderItem `json:"items,omitempty"`
}

// OrderStatus representa os possíveis status de um pedido
const (
	OrderStatusPending   = "pending"
	OrderStatusConfirmed = "confirmed"
	OrderStatusReady     = "ready"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
)

// estimatedReadyDelay é o prazo fixo de preparo prometido ao cliente
const estimatedReadyDelay = 30 * time.Minute

// orderTransitions define as transições de status permitidas
var orderTransitions = map[string][]string{
	OrderStatusPending:   {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusReady, OrderStatusCancelled},
	OrderStatusReady:     {OrderStatusCompleted},
	OrderStatusCompleted: {},
	OrderStatusCancelled: {},
}

// NewOrder cria uma nova instância de Order com status pending e totais calculados
func NewOrder(branchID string, customerID *string, isGuest bool, paymentMethod, paymentReference string, items []OrderItem) *Order {
	now := time.Now()

	order := &Order{
		ID:               uuid.New().String(),
		BranchID:         branchID,
		CustomerID:       customerID,
		Status:           OrderStatusPending,
		PaymentMethod:    paymentMethod,
		PaymentReference: paymentReference,
		IsGuestOrder:     isGuest,
		EstimatedReadyAt: now.Add(estimatedReadyDelay),
		CreatedAt:        now,
		UpdatedAt:        now,
		Items:            items,
	}

	for i := range order.Items {
		order.Items[i].ID = uuid.New().String()
		order.Items[i].OrderID = order.ID
		order.Total += order.Items[i].LineTotal
	}

	return order
}

// CanTransitionTo verifica se o pedido pode mudar para o status informado
func (o *Order) CanTransitionTo(status string) bool {
	for _, next := range orderTransitions[o.Status] {
		if next == status {
			return true
		}
	}
	return false
}

// Cancel marca o pedido como cancelado
func (o *Order) Cancel() error {
	if !o.CanTransitionTo(OrderStatusCancelled) {
		return errors.New("only pending or confirmed orders can be cancelled")
	}

	o.Status = OrderStatusCancelled
	return nil
}

// LoyaltyTier representa as faixas de fidelidade por gasto acumulado
const (
	LoyaltyTierBronze   = "bronze"
	LoyaltyTierSilver   = "silver"
	LoyaltyTierGold     = "gold"
	LoyaltyTierPlatinum = "platinum"
)

// Faixas de gasto acumulado para cada tier
const (
	loyaltyThresholdSilver   = 10000
	loyaltyThresholdGold     = 25000
	loyaltyThresholdPlatinum = 50000
)

// LoyaltyTierFor calcula o tier a partir do gasto acumulado do cliente
func LoyaltyTierFor(lifetimeSpent float64) string {
	switch {
	case lifetimeSpent >= loyaltyThresholdPlatinum:
		return LoyaltyTierPlatinum
	case lifetimeSpent >= loyaltyThresholdGold:
		return LoyaltyTierGold
	case lifetimeSpent >= loyaltyThresholdSilver:
		return LoyaltyTierSilver
	default:
		return LoyaltyTierBronze
	}
}

// LoyaltyPointsFor calcula os pontos ganhos em um pedido: 1 ponto a cada 100 unidades gastas
func LoyaltyPointsFor(total float64) int {
	return int(total / 100)
}
