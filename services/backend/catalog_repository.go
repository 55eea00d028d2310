package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoFieldsToUpdate é retornado quando um update chega sem nenhum campo preenchido
var ErrNoFieldsToUpdate = errors.New("no fields to update")

// ProductFilters são os filtros de listagem de produtos; cada combinação
// distinta gera uma entrada de cache própria
type ProductFilters struct {
	CategoryID string `json:"category_id,omitempty"`
	Search     string `json:"search,omitempty"`
}

// BranchUpdate contém os campos atualizáveis de uma filial
type BranchUpdate struct {
	Name    *string `json:"name"`
	Address *string `json:"address"`
	Phone   *string `json:"phone"`
}

// ProductUpdate contém os campos atualizáveis de um produto
type ProductUpdate struct {
	CategoryID  *string `json:"category_id"`
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Brand       *string `json:"brand"`
	ImageURL    *string `json:"image_url"`
}

// PromotionUpdate contém os campos atualizáveis de uma promoção
type PromotionUpdate struct {
	Title           *string  `json:"title"`
	Description     *string  `json:"description"`
	DiscountPercent *float64 `json:"discount_percent"`
}

// CatalogRepository define a interface para operações de banco de dados do catálogo
type CatalogRepository interface {
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
}

// PostgresCatalogRepository implementa CatalogRepository usando PostgreSQL
type PostgresCatalogRepository struct {
	db *pgxpool.Pool
}

// NewCatalogRepository cria uma nova instância de PostgresCatalogRepository
func NewCatalogRepository(db *pgxpool.Pool) CatalogRepository {
	return &PostgresCatalogRepository{
		db: db,
	}
}

// ListBranches retorna todas as filiais ativas
func (r *PostgresCatalogRepository) ListBranches(ctx context.Context) ([]Branch, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, address, phone, is_active, created_at, updated_at
		FROM branches
		WHERE is_active = true
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}
	defer rows.Close()

	branches := []Branch{}
	for rows.Next() {
		var b Branch
		if err := rows.Scan(&b.ID, &b.Name, &b.Address, &b.Phone, &b.IsActive, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		branches = append(branches, b)
	}
	return branches, rows.Err()
}

// GetBranch busca uma filial pelo ID; retorna nil quando não existe
func (r *PostgresCatalogRepository) GetBranch(ctx context.Context, id string) (*Branch, error) {
	var b Branch
	err := r.db.QueryRow(ctx, `
		SELECT id, name, address, phone, is_active, created_at, updated_at
		FROM branches
		WHERE id = $1 AND is_active = true
	`, id).Scan(&b.ID, &b.Name, &b.Address, &b.Phone, &b.IsActive, &b.CreatedAt, &b.UpdatedAt)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateBranch insere uma nova filial
func (r *PostgresCatalogRepository) CreateBranch(ctx context.Context, branch *Branch) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO branches (id, name, address, phone, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, true, NOW(), NOW())
	`, branch.ID, branch.Name, branch.Address, branch.Phone)
	return err
}

// UpdateBranch atualiza os campos informados; retorna false quando a filial não existe
func (r *PostgresCatalogRepository) UpdateBranch(ctx context.Context, id string, upd BranchUpdate) (bool, error) {
	sets := []string{}
	args := []interface{}{}

	appendSet(&sets, &args, "name", upd.Name)
	appendSet(&sets, &args, "address", upd.Address)
	appendSet(&sets, &args, "phone", upd.Phone)
	if len(sets) == 0 {
		return false, ErrNoFieldsToUpdate
	}

	args = append(args, id)
	query := fmt.Sprintf(
		"UPDATE branches SET %s, updated_at = NOW() WHERE id = $%d AND is_active = true",
		strings.Join(sets, ", "), len(args),
	)

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// DeactivateBranch faz o soft-delete da filial
func (r *PostgresCatalogRepository) DeactivateBranch(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE branches SET is_active = false, updated_at = NOW()
		WHERE id = $1 AND is_active = true
	`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListCategories retorna todas as categorias ativas
func (r *PostgresCatalogRepository) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, description, is_active, created_at
		FROM categories
		WHERE is_active = true
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	categories := []Category{}
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.IsActive, &c.CreatedAt); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// CreateCategory insere uma nova categoria
func (r *PostgresCatalogRepository) CreateCategory(ctx context.Context, category *Category) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO categories (id, name, description, is_active, created_at)
		VALUES ($1, $2, $3, true, NOW())
	`, category.ID, category.Name, category.Description)
	return err
}

// ListProducts lista produtos ativos com filtros e paginação; a
// disponibilidade das variantes considera o estoque da filial informada
func (r *PostgresCatalogRepository) ListProducts(ctx context.Context, branchID string, filters ProductFilters, page, limit int) ([]Product, error) {
	query := `
		SELECT id, category_id, name, description, brand, image_url, is_active, created_at, updated_at
		FROM products
		WHERE is_active = true`
	args := []interface{}{}

	if filters.CategoryID != "" {
		args = append(args, filters.CategoryID)
		query += fmt.Sprintf(" AND category_id = $%d", len(args))
	}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		query += fmt.Sprintf(" AND (name ILIKE $%d OR brand ILIKE $%d)", len(args), len(args))
	}

	args = append(args, limit, (page-1)*limit)
	query += fmt.Sprintf(" ORDER BY name LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := []Product{}
	ids := []string{}
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.CategoryID, &p.Name, &p.Description, &p.Brand, &p.ImageURL, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return products, nil
	}

	variants, err := r.listVariants(ctx, ids, branchID)
	if err != nil {
		return nil, err
	}
	for i := range products {
		products[i].Variants = variants[products[i].ID]
	}
	return products, nil
}

// GetProduct busca um produto com suas variantes; retorna nil quando não existe
func (r *PostgresCatalogRepository) GetProduct(ctx context.Context, id, branchID string) (*Product, error) {
	var p Product
	err := r.db.QueryRow(ctx, `
		SELECT id, category_id, name, description, brand, image_url, is_active, created_at, updated_at
		FROM products
		WHERE id = $1 AND is_active = true
	`, id).Scan(&p.ID, &p.CategoryID, &p.Name, &p.Description, &p.Brand, &p.ImageURL, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	variants, err := r.listVariants(ctx, []string{p.ID}, branchID)
	if err != nil {
		return nil, err
	}
	p.Variants = variants[p.ID]
	return &p, nil
}

// listVariants carrega as variantes ativas dos produtos informados, com a
// quantidade disponível (estoque físico menos reservas) na filial; sem
// filial informada o join não casa e a disponibilidade reportada é zero
func (r *PostgresCatalogRepository) listVariants(ctx context.Context, productIDs []string, branchID string) (map[string][]ProductVariant, error) {
	rows, err := r.db.Query(ctx, `
		SELECT v.id, v.product_id, v.sku, v.name, v.unit, v.price, v.is_active,
		       COALESCE(i.quantity_on_hand - i.quantity_reserved, 0)
		FROM product_variants v
		LEFT JOIN inventory i ON i.variant_id = v.id AND i.branch_id = NULLIF($1, '')::uuid
		WHERE v.product_id = ANY($2) AND v.is_active = true
		ORDER BY v.price
	`, branchID, productIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list product variants: %w", err)
	}
	defer rows.Close()

	variants := map[string][]ProductVariant{}
	for rows.Next() {
		var v ProductVariant
		if err := rows.Scan(&v.ID, &v.ProductID, &v.SKU, &v.Name, &v.Unit, &v.Price, &v.IsActive, &v.QuantityAvailable); err != nil {
			return nil, err
		}
		variants[v.ProductID] = append(variants[v.ProductID], v)
	}
	return variants, rows.Err()
}

// CreateProduct insere um produto e suas variantes
func (r *PostgresCatalogRepository) CreateProduct(ctx context.Context, product *Product) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO products (id, category_id, name, description, brand, image_url, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, true, NOW(), NOW())
	`, product.ID, product.CategoryID, product.Name, product.Description, product.Brand, product.ImageURL)
	if err != nil {
		return err
	}

	for _, v := range product.Variants {
		_, err := r.db.Exec(ctx, `
			INSERT INTO product_variants (id, product_id, sku, name, unit, price, is_active)
			VALUES ($1, $2, $3, $4, $5, $6, true)
		`, v.ID, product.ID, v.SKU, v.Name, v.Unit, v.Price)
		if err != nil {
			return fmt.Errorf("failed to insert variant %s: %w", v.SKU, err)
		}
	}
	return nil
}

// UpdateProduct atualiza os campos informados; retorna false quando o produto não existe
func (r *PostgresCatalogRepository) UpdateProduct(ctx context.Context, id string, upd ProductUpdate) (bool, error) {
	sets := []string{}
	args := []interface{}{}

	appendSet(&sets, &args, "category_id", upd.CategoryID)
	appendSet(&sets, &args, "name", upd.Name)
	appendSet(&sets, &args, "description", upd.Description)
	appendSet(&sets, &args, "brand", upd.Brand)
	appendSet(&sets, &args, "image_url", upd.ImageURL)
	if len(sets) == 0 {
		return false, ErrNoFieldsToUpdate
	}

	args = append(args, id)
	query := fmt.Sprintf(
		"UPDATE products SET %s, updated_at = NOW() WHERE id = $%d AND is_active = true",
		strings.Join(sets, ", "), len(args),
	)

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// DeactivateProduct faz o soft-delete do produto
func (r *PostgresCatalogRepository) DeactivateProduct(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE products SET is_active = false, updated_at = NOW()
		WHERE id = $1 AND is_active = true
	`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListActivePromotions retorna as promoções vigentes; branchID vazio lista
// apenas as promoções válidas para toda a rede
func (r *PostgresCatalogRepository) ListActivePromotions(ctx context.Context, branchID string) ([]Promotion, error) {
	query := `
		SELECT id, branch_id, title, description, discount_percent, starts_at, ends_at, is_active
		FROM promotions
		WHERE is_active = true AND starts_at <= NOW() AND ends_at > NOW()`
	args := []interface{}{}

	if branchID != "" {
		args = append(args, branchID)
		query += " AND (branch_id IS NULL OR branch_id = $1)"
	} else {
		query += " AND branch_id IS NULL"
	}
	query += " ORDER BY ends_at"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list promotions: %w", err)
	}
	defer rows.Close()

	promotions := []Promotion{}
	for rows.Next() {
		var p Promotion
		if err := rows.Scan(&p.ID, &p.BranchID, &p.Title, &p.Description, &p.DiscountPercent, &p.StartsAt, &p.EndsAt, &p.IsActive); err != nil {
			return nil, err
		}
		promotions = append(promotions, p)
	}
	return promotions, rows.Err()
}

// CreatePromotion insere uma nova promoção
func (r *PostgresCatalogRepository) CreatePromotion(ctx context.Context, promotion *Promotion) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO promotions (id, branch_id, title, description, discount_percent, starts_at, ends_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, true)
	`, promotion.ID, promotion.BranchID, promotion.Title, promotion.Description,
		promotion.DiscountPercent, promotion.StartsAt, promotion.EndsAt)
	return err
}

// UpdatePromotion atualiza os campos informados; retorna false quando a promoção não existe
func (r *PostgresCatalogRepository) UpdatePromotion(ctx context.Context, id string, upd PromotionUpdate) (bool, error) {
	sets := []string{}
	args := []interface{}{}

	appendSet(&sets, &args, "title", upd.Title)
	appendSet(&sets, &args, "description", upd.Description)
	appendSet(&sets, &args, "discount_percent", upd.DiscountPercent)
	if len(sets) == 0 {
		return false, ErrNoFieldsToUpdate
	}

	args = append(args, id)
	query := fmt.Sprintf(
		"UPDATE promotions SET %s WHERE id = $%d AND is_active = true",
		strings.Join(sets, ", "), len(args),
	)

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// DeactivatePromotion faz o soft-delete da promoção
func (r *PostgresCatalogRepository) DeactivatePromotion(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE promotions SET is_active = false
		WHERE id = $1 AND is_active = true
	`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// GetCustomer busca um cliente pelo ID; retorna nil quando não existe
func (r *PostgresCatalogRepository) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	var c Customer
	err := r.db.QueryRow(ctx, `
		SELECT id, name, email, phone, loyalty_points, total_spent, total_lifetime_spent, loyalty_tier, created_at
		FROM customers
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.LoyaltyPoints, &c.TotalSpent, &c.TotalLifetimeSpent, &c.LoyaltyTier, &c.CreatedAt)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// appendSet adiciona uma cláusula SET quando o campo foi informado
func appendSet[T any](sets *[]string, args *[]interface{}, column string, value *T) {
	if value == nil {
		return
	}
	*args = append(*args, *value)
	*sets = append(*sets, fmt.Sprintf("%s = $%d", column, len(*args)))
}
