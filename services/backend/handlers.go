package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// APIResponse é o envelope padrão de todas as respostas JSON
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message"`
	Error   string      `json:"error,omitempty"`
}

// CreateBranchRequest representa a requisição para criar uma filial
type CreateBranchRequest struct {
	Name    string `json:"name" binding:"required"`
	Address string `json:"address" binding:"required"`
	Phone   string `json:"phone"`
}

// CreateCategoryRequest representa a requisição para criar uma categoria
type CreateCategoryRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// CreateVariantRequest representa uma variante dentro da criação de produto
type CreateVariantRequest struct {
	SKU   string  `json:"sku" binding:"required"`
	Name  string  `json:"name" binding:"required"`
	Unit  string  `json:"unit" binding:"required"`
	Price float64 `json:"price" binding:"required,gt=0"`
}

// CreateProductRequest representa a requisição para criar um produto
type CreateProductRequest struct {
	CategoryID  string                 `json:"category_id" binding:"required"`
	Name        string                 `json:"name" binding:"required"`
	Description string                 `json:"description"`
	Brand       string                 `json:"brand"`
	ImageURL    string                 `json:"image_url"`
	Variants    []CreateVariantRequest `json:"variants" binding:"required,min=1,dive"`
}

// CreatePromotionRequest representa a requisição para criar uma promoção
type CreatePromotionRequest struct {
	BranchID        *string   `json:"branch_id"`
	Title           string    `json:"title" binding:"required"`
	Description     string    `json:"description"`
	DiscountPercent float64   `json:"discount_percent" binding:"required,gt=0,lte=100"`
	StartsAt        time.Time `json:"starts_at" binding:"required"`
	EndsAt          time.Time `json:"ends_at" binding:"required"`
}

// OrderItemRequest representa uma linha de item na criação de pedido
type OrderItemRequest struct {
	VariantID   string     `json:"variant_id" binding:"required"`
	Quantity    int        `json:"quantity" binding:"required,gt=0"`
	UnitPrice   float64    `json:"unit_price" binding:"required,gt=0"`
	Weight      *float64   `json:"weight"`
	ExpiryDate  *time.Time `json:"expiry_date"`
	BatchNumber *string    `json:"batch_number"`
}

// CreateOrderRequest representa a requisição para criar um pedido
type CreateOrderRequest struct {
	BranchID         string             `json:"branch_id" binding:"required"`
	CustomerID       *string            `json:"customer_id"`
	IsGuestOrder     bool               `json:"is_guest_order"`
	PaymentMethod    string             `json:"payment_method" binding:"required"`
	PaymentReference string             `json:"payment_reference"`
	Items            []OrderItemRequest `json:"items" binding:"required,min=1,dive"`
}

// UpdateOrderStatusRequest representa a requisição de mudança de status
type UpdateOrderStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=confirmed ready completed"`
}

// CatalogUseCaseInterface define a interface do use case de catálogo
type CatalogUseCaseInterface interface {
	ListBranches(ctx context.Context) ([]Branch, error)
	GetBranch(ctx context.Context, id string) (*Branch, error)
	CreateBranch(ctx context.Context, branch *Branch) error
	UpdateBranch(ctx context.Context, id string, upd BranchUpdate) (bool, error)
	DeactivateBranch(ctx context.Context, id string) (bool, error)
	ListCategories(ctx context.Context) ([]Category, error)
	CreateCategory(ctx context.Context, category *Category) error
	ListProducts(ctx context.Context, branchID string, filters ProductFilters, page, limit int) ([]Product, error)
	GetProduct(ctx context.Context, id, branchID string) (*Product, error)
	CreateProduct(ctx context.Context, product *Product) error
	UpdateProduct(ctx context.Context, id string, upd ProductUpdate) (bool, error)
	DeactivateProduct(ctx context.Context, id string) (bool, error)
	ListActivePromotions(ctx context.Context, branchID string) ([]Promotion, error)
	CreatePromotion(ctx context.Context, promotion *Promotion) error
	UpdatePromotion(ctx context.Context, id string, upd PromotionUpdate) (bool, error)
	DeactivatePromotion(ctx context.Context, id string) (bool, error)
	GetCustomer(ctx context.Context, id string) (*Customer, error)
	Home(ctx context.Context, branchID string) (*PWAHome, error)
}

// OrderUseCaseInterface define a interface do use case de pedidos
type OrderUseCaseInterface interface {
	CreateOrder(ctx context.Context, order *Order) (*Order, error)
	CancelOrder(ctx context.Context, orderID string) (*Order, error)
	GetOrder(ctx context.Context, orderID string) (*Order, error)
	UpdateStatus(ctx context.Context, orderID, status string) (*Order, error)
	GetInventory(ctx context.Context, variantID, branchID string) (*Inventory, error)
}

// Handler contém os handlers HTTP
type Handler struct {
	catalog CatalogUseCaseInterface
	orders  OrderUseCaseInterface
	tracer  trace.Tracer
}

// NewHandler cria uma nova instância de Handler
func NewHandler(catalog CatalogUseCaseInterface, orders OrderUseCaseInterface, tracer trace.Tracer) *Handler {
	return &Handler{
		catalog: catalog,
		orders:  orders,
		tracer:  tracer,
	}
}

func respondOK(c *gin.Context, data interface{}, message string) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data, Message: message})
}

func respondNotFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, APIResponse{Success: false, Message: message, Error: "not found"})
}

func respondBadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, APIResponse{Success: false, Message: "invalid request", Error: err.Error()})
}

// respondError mapeia os erros conhecidos para status HTTP; violações de
// constraint do Postgres viram 4xx, o resto vira 500
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pgErr):
		switch pgErr.Code {
		case "23505": // unique_violation
			status, message = http.StatusConflict, "duplicate record"
		case "23503": // foreign_key_violation
			status, message = http.StatusBadRequest, "related record does not exist"
		case "23502": // not_null_violation
			status, message = http.StatusBadRequest, "missing required field"
		}
	case errors.Is(err, ErrNoFieldsToUpdate), errors.Is(err, ErrEmptyOrder):
		status, message = http.StatusBadRequest, "invalid request"
	case errors.Is(err, ErrInsufficientStock):
		status, message = http.StatusUnprocessableEntity, "insufficient stock"
	case errors.Is(err, ErrInvalidTransition):
		status, message = http.StatusConflict, "invalid status transition"
	case errors.Is(err, ErrOrderNotFound):
		status, message = http.StatusNotFound, "order not found"
	}

	c.JSON(status, APIResponse{Success: false, Message: message, Error: err.Error()})
}

// HealthCheck verifica a saúde do serviço
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "pwa-backend",
	})
}

// ListBranches lista as filiais ativas
func (h *Handler) ListBranches(c *gin.Context) {
	branches, err := h.catalog.ListBranches(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, branches, "branches listed")
}

// GetBranch busca uma filial
func (h *Handler) GetBranch(c *gin.Context) {
	branch, err := h.catalog.GetBranch(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if branch == nil {
		respondNotFound(c, "branch not found")
		return
	}
	respondOK(c, branch, "branch found")
}

// CreateBranch cria uma filial
func (h *Handler) CreateBranch(c *gin.Context) {
	var req CreateBranchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	branch := &Branch{Name: req.Name, Address: req.Address, Phone: req.Phone, IsActive: true}
	if err := h.catalog.CreateBranch(c.Request.Context(), branch); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, APIResponse{Success: true, Data: branch, Message: "branch created"})
}

// UpdateBranch atualiza uma filial
func (h *Handler) UpdateBranch(c *gin.Context) {
	var upd BranchUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		respondBadRequest(c, err)
		return
	}

	updated, err := h.catalog.UpdateBranch(c.Request.Context(), c.Param("id"), upd)
	if err != nil {
		respondError(c, err)
		return
	}
	if !updated {
		respondNotFound(c, "branch not found")
		return
	}
	respondOK(c, nil, "branch updated")
}

// DeleteBranch desativa uma filial (soft-delete)
func (h *Handler) DeleteBranch(c *gin.Context) {
	deactivated, err := h.catalog.DeactivateBranch(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !deactivated {
		respondNotFound(c, "branch not found")
		return
	}
	respondOK(c, nil, "branch deactivated")
}

// ListCategories lista as categorias
func (h *Handler) ListCategories(c *gin.Context) {
	categories, err := h.catalog.ListCategories(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, categories, "categories listed")
}

// CreateCategory cria uma categoria
func (h *Handler) CreateCategory(c *gin.Context) {
	var req CreateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	category := &Category{Name: req.Name, Description: req.Description, IsActive: true}
	if err := h.catalog.CreateCategory(c.Request.Context(), category); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, APIResponse{Success: true, Data: category, Message: "category created"})
}

// ListProducts lista produtos com filtros e paginação
func (h *Handler) ListProducts(c *gin.Context) {
	filters := ProductFilters{
		CategoryID: c.Query("category_id"),
		Search:     c.Query("search"),
	}
	page := intQuery(c, "page", 1)
	limit := intQuery(c, "limit", 20)
	if limit > 100 {
		limit = 100
	}

	products, err := h.catalog.ListProducts(c.Request.Context(), c.Query("branch_id"), filters, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, products, "products listed")
}

// GetProduct busca um produto com suas variantes
func (h *Handler) GetProduct(c *gin.Context) {
	product, err := h.catalog.GetProduct(c.Request.Context(), c.Param("id"), c.Query("branch_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if product == nil {
		respondNotFound(c, "product not found")
		return
	}
	respondOK(c, product, "product found")
}

// CreateProduct cria um produto com suas variantes
func (h *Handler) CreateProduct(c *gin.Context) {
	var req CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	product := &Product{
		CategoryID:  req.CategoryID,
		Name:        req.Name,
		Description: req.Description,
		Brand:       req.Brand,
		ImageURL:    req.ImageURL,
		IsActive:    true,
	}
	for _, v := range req.Variants {
		product.Variants = append(product.Variants, ProductVariant{
			SKU:      v.SKU,
			Name:     v.Name,
			Unit:     v.Unit,
			Price:    v.Price,
			IsActive: true,
		})
	}

	if err := h.catalog.CreateProduct(c.Request.Context(), product); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, APIResponse{Success: true, Data: product, Message: "product created"})
}

// UpdateProduct atualiza um produto
func (h *Handler) UpdateProduct(c *gin.Context) {
	var upd ProductUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		respondBadRequest(c, err)
		return
	}

	updated, err := h.catalog.UpdateProduct(c.Request.Context(), c.Param("id"), upd)
	if err != nil {
		respondError(c, err)
		return
	}
	if !updated {
		respondNotFound(c, "product not found")
		return
	}
	respondOK(c, nil, "product updated")
}

// DeleteProduct desativa um produto (soft-delete)
func (h *Handler) DeleteProduct(c *gin.Context) {
	deactivated, err := h.catalog.DeactivateProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !deactivated {
		respondNotFound(c, "product not found")
		return
	}
	respondOK(c, nil, "product deactivated")
}

// ListActivePromotions lista promoções vigentes
func (h *Handler) ListActivePromotions(c *gin.Context) {
	promotions, err := h.catalog.ListActivePromotions(c.Request.Context(), c.Query("branch_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, promotions, "promotions listed")
}

// CreatePromotion cria uma promoção
func (h *Handler) CreatePromotion(c *gin.Context) {
	var req CreatePromotionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	promotion := &Promotion{
		BranchID:        req.BranchID,
		Title:           req.Title,
		Description:     req.Description,
		DiscountPercent: req.DiscountPercent,
		StartsAt:        req.StartsAt,
		EndsAt:          req.EndsAt,
		IsActive:        true,
	}
	if err := h.catalog.CreatePromotion(c.Request.Context(), promotion); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, APIResponse{Success: true, Data: promotion, Message: "promotion created"})
}

// UpdatePromotion atualiza uma promoção
func (h *Handler) UpdatePromotion(c *gin.Context) {
	var upd PromotionUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		respondBadRequest(c, err)
		return
	}

	updated, err := h.catalog.UpdatePromotion(c.Request.Context(), c.Param("id"), upd)
	if err != nil {
		respondError(c, err)
		return
	}
	if !updated {
		respondNotFound(c, "promotion not found")
		return
	}
	respondOK(c, nil, "promotion updated")
}

// DeletePromotion desativa uma promoção (soft-delete)
func (h *Handler) DeletePromotion(c *gin.Context) {
	deactivated, err := h.catalog.DeactivatePromotion(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !deactivated {
		respondNotFound(c, "promotion not found")
		return
	}
	respondOK(c, nil, "promotion deactivated")
}

// GetCustomer busca um cliente com os agregados de fidelidade
func (h *Handler) GetCustomer(c *gin.Context) {
	customer, err := h.catalog.GetCustomer(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if customer == nil {
		respondNotFound(c, "customer not found")
		return
	}
	respondOK(c, customer, "customer found")
}

// CreateOrder cria um pedido completo em uma transação
func (h *Handler) CreateOrder(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "create_order")
	defer span.End()

	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		respondBadRequest(c, err)
		return
	}

	items := make([]OrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, OrderItem{
			VariantID:   it.VariantID,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			LineTotal:   it.UnitPrice * float64(it.Quantity),
			Weight:      it.Weight,
			ExpiryDate:  it.ExpiryDate,
			BatchNumber: it.BatchNumber,
		})
	}
	order := NewOrder(req.BranchID, req.CustomerID, req.IsGuestOrder, req.PaymentMethod, req.PaymentReference, items)

	span.SetAttributes(
		attribute.String("branch_id", req.BranchID),
		attribute.Bool("is_guest_order", req.IsGuestOrder),
		attribute.Int("item_count", len(req.Items)),
	)

	created, err := h.orders.CreateOrder(ctx, order)
	if err != nil {
		span.RecordError(err)
		respondError(c, err)
		return
	}

	span.SetAttributes(attribute.String("order_number", created.OrderNumber))

	c.JSON(http.StatusCreated, APIResponse{
		Success: true,
		Data:    gin.H{"order": created, "items": created.Items},
		Message: "order created",
	})
}

// GetOrder busca um pedido com seus itens
func (h *Handler) GetOrder(c *gin.Context) {
	order, err := h.orders.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if order == nil {
		respondNotFound(c, "order not found")
		return
	}
	respondOK(c, order, "order found")
}

// CancelOrder cancela um pedido e devolve as reservas de estoque
func (h *Handler) CancelOrder(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "cancel_order")
	defer span.End()

	span.SetAttributes(attribute.String("order_id", c.Param("id")))

	order, err := h.orders.CancelOrder(ctx, c.Param("id"))
	if err != nil {
		span.RecordError(err)
		respondError(c, err)
		return
	}
	respondOK(c, order, "order cancelled")
}

// UpdateOrderStatus avança o status de um pedido
func (h *Handler) UpdateOrderStatus(c *gin.Context) {
	var req UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	order, err := h.orders.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, order, "order status updated")
}

// GetInventory retorna a posição de estoque de uma variante em uma filial
func (h *Handler) GetInventory(c *gin.Context) {
	inventory, err := h.orders.GetInventory(c.Request.Context(), c.Param("variantId"), c.Query("branch_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if inventory == nil {
		respondNotFound(c, "inventory not found")
		return
	}
	respondOK(c, gin.H{
		"variant_id":         inventory.VariantID,
		"branch_id":          inventory.BranchID,
		"quantity_on_hand":   inventory.QuantityOnHand,
		"quantity_reserved":  inventory.QuantityReserved,
		"quantity_available": inventory.QuantityAvailable(),
	}, "inventory found")
}

// PWAHome retorna o payload agregado do shell do PWA
func (h *Handler) PWAHome(c *gin.Context) {
	home, err := h.catalog.Home(c.Request.Context(), c.Query("branch_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if home == nil {
		respondNotFound(c, "branch not found")
		return
	}
	respondOK(c, home, "home payload")
}

func intQuery(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil || v < 1 {
		return def
	}
	return v
}
