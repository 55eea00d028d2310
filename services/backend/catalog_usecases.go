package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TTLs fixos por tipo de entidade
const (
	listingCacheTTL    = 30 * time.Minute
	categoriesCacheTTL = time.Hour
)

// Chaves e padrões de invalidação do cache de catálogo
const (
	branchesAllKey   = "branches:all"
	categoriesAllKey = "categories:all"

	branchPattern    = "branch:*"
	branchesPattern  = "branches:*"
	productPattern   = "product:*"
	productsPattern  = "products:*"
	promotionPattern = "promotions:*"
)

func branchKey(id string) string {
	return "branch:" + id
}

func productKey(id, branchID string) string {
	return fmt.Sprintf("product:%s:%s", id, branchID)
}

// productsKey monta a chave de listagem a partir de todos os parâmetros que
// mudam o resultado; combinações diferentes de filtro são entradas diferentes
func productsKey(branchID string, filters ProductFilters, page, limit int) string {
	f, _ := json.Marshal(filters)
	return fmt.Sprintf("products:%s:%s:%d:%d", branchID, f, page, limit)
}

func promotionsKey(branchID string) string {
	if branchID == "" {
		branchID = "all"
	}
	return "promotions:active:" + branchID
}

// PWAHome é o payload agregado consumido pelo shell do PWA
type PWAHome struct {
	Branch     *Branch     `json:"branch"`
	Categories []Category  `json:"categories"`
	Promotions []Promotion `json:"promotions"`
}

// CatalogUseCase contém a lógica de catálogo com cache read-through:
// leituras consultam o cache antes do banco e o repovoam no miss; toda
// escrita invalida por padrão as chaves do tipo de entidade alterado
type CatalogUseCase struct {
	repository CatalogRepository
	cache      CacheStore
}

// NewCatalogUseCase cria uma nova instância de CatalogUseCase
func NewCatalogUseCase(repository CatalogRepository, cache CacheStore) *CatalogUseCase {
	return &CatalogUseCase{
		repository: repository,
		cache:      cache,
	}
}

// ListBranches lista as filiais ativas, com cache
func (uc *CatalogUseCase) ListBranches(ctx context.Context) ([]Branch, error) {
	var branches []Branch
	if uc.cache.Get(ctx, branchesAllKey, &branches) {
		return branches, nil
	}

	branches, err := uc.repository.ListBranches(ctx)
	if err != nil {
		return nil, err
	}

	uc.cache.Set(ctx, branchesAllKey, branches, listingCacheTTL)
	return branches, nil
}

// GetBranch busca uma filial, com cache; retorna nil quando não existe
func (uc *CatalogUseCase) GetBranch(ctx context.Context, id string) (*Branch, error) {
	// id vazio não é um UUID válido; trata como não encontrado sem consultar
	if id == "" {
		return nil, nil
	}

	var branch Branch
	if uc.cache.Get(ctx, branchKey(id), &branch) {
		return &branch, nil
	}

	found, err := uc.repository.GetBranch(ctx, id)
	if err != nil || found == nil {
		return found, err
	}

	uc.cache.Set(ctx, branchKey(id), found, listingCacheTTL)
	return found, nil
}

// CreateBranch cria uma filial e invalida o cache de filiais
func (uc *CatalogUseCase) CreateBranch(ctx context.Context, branch *Branch) error {
	if branch.ID == "" {
		branch.ID = uuid.New().String()
	}

	if err := uc.repository.CreateBranch(ctx, branch); err != nil {
		return fmt.Errorf("failed to create branch: %w", err)
	}

	uc.invalidateBranches(ctx)
	return nil
}

// UpdateBranch atualiza uma filial e invalida o cache de filiais
func (uc *CatalogUseCase) UpdateBranch(ctx context.Context, id string, upd BranchUpdate) (bool, error) {
	updated, err := uc.repository.UpdateBranch(ctx, id, upd)
	if err != nil || !updated {
		return updated, err
	}

	uc.invalidateBranches(ctx)
	return true, nil
}

// DeactivateBranch desativa uma filial e invalida o cache de filiais
func (uc *CatalogUseCase) DeactivateBranch(ctx context.Context, id string) (bool, error) {
	deactivated, err := uc.repository.DeactivateBranch(ctx, id)
	if err != nil || !deactivated {
		return deactivated, err
	}

	uc.invalidateBranches(ctx)
	return true, nil
}

// invalidação grossa: qualquer escrita em filial derruba todas as chaves do tipo
func (uc *CatalogUseCase) invalidateBranches(ctx context.Context) {
	uc.cache.DeleteByPattern(ctx, branchPattern)
	uc.cache.DeleteByPattern(ctx, branchesPattern)
}

// ListCategories lista as categorias ativas, com cache
func (uc *CatalogUseCase) ListCategories(ctx context.Context) ([]Category, error) {
	var categories []Category
	if uc.cache.Get(ctx, categoriesAllKey, &categories) {
		return categories, nil
	}

	categories, err := uc.repository.ListCategories(ctx)
	if err != nil {
		return nil, err
	}

	uc.cache.Set(ctx, categoriesAllKey, categories, categoriesCacheTTL)
	return categories, nil
}

// CreateCategory cria uma categoria e invalida a lista cacheada
func (uc *CatalogUseCase) CreateCategory(ctx context.Context, category *Category) error {
	if category.ID == "" {
		category.ID = uuid.New().String()
	}

	if err := uc.repository.CreateCategory(ctx, category); err != nil {
		return fmt.Errorf("failed to create category: %w", err)
	}

	uc.cache.Delete(ctx, categoriesAllKey)
	return nil
}

// ListProducts lista produtos com filtros e paginação, com cache por combinação
func (uc *CatalogUseCase) ListProducts(ctx context.Context, branchID string, filters ProductFilters, page, limit int) ([]Product, error) {
	key := productsKey(branchID, filters, page, limit)

	var products []Product
	if uc.cache.Get(ctx, key, &products) {
		return products, nil
	}

	products, err := uc.repository.ListProducts(ctx, branchID, filters, page, limit)
	if err != nil {
		return nil, err
	}

	uc.cache.Set(ctx, key, products, listingCacheTTL)
	return products, nil
}

// GetProduct busca um produto com suas variantes, com cache por filial
func (uc *CatalogUseCase) GetProduct(ctx context.Context, id, branchID string) (*Product, error) {
	var product Product
	if uc.cache.Get(ctx, productKey(id, branchID), &product) {
		return &product, nil
	}

	found, err := uc.repository.GetProduct(ctx, id, branchID)
	if err != nil || found == nil {
		return found, err
	}

	uc.cache.Set(ctx, productKey(id, branchID), found, listingCacheTTL)
	return found, nil
}

// CreateProduct cria um produto e invalida o cache de produtos
func (uc *CatalogUseCase) CreateProduct(ctx context.Context, product *Product) error {
	if product.ID == "" {
		product.ID = uuid.New().String()
	}
	for i := range product.Variants {
		if product.Variants[i].ID == "" {
			product.Variants[i].ID = uuid.New().String()
		}
		product.Variants[i].ProductID = product.ID
	}

	if err := uc.repository.CreateProduct(ctx, product); err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}

	uc.invalidateProducts(ctx)
	return nil
}

// UpdateProduct atualiza um produto e invalida o cache de produtos
func (uc *CatalogUseCase) UpdateProduct(ctx context.Context, id string, upd ProductUpdate) (bool, error) {
	updated, err := uc.repository.UpdateProduct(ctx, id, upd)
	if err != nil || !updated {
		return updated, err
	}

	uc.invalidateProducts(ctx)
	return true, nil
}

// DeactivateProduct desativa um produto e invalida o cache de produtos
func (uc *CatalogUseCase) DeactivateProduct(ctx context.Context, id string) (bool, error) {
	deactivated, err := uc.repository.DeactivateProduct(ctx, id)
	if err != nil || !deactivated {
		return deactivated, err
	}

	uc.invalidateProducts(ctx)
	return true, nil
}

func (uc *CatalogUseCase) invalidateProducts(ctx context.Context) {
	uc.cache.DeleteByPattern(ctx, productPattern)
	uc.cache.DeleteByPattern(ctx, productsPattern)
}

// ListActivePromotions lista promoções vigentes, com cache por filial
func (uc *CatalogUseCase) ListActivePromotions(ctx context.Context, branchID string) ([]Promotion, error) {
	var promotions []Promotion
	if uc.cache.Get(ctx, promotionsKey(branchID), &promotions) {
		return promotions, nil
	}

	promotions, err := uc.repository.ListActivePromotions(ctx, branchID)
	if err != nil {
		return nil, err
	}

	uc.cache.Set(ctx, promotionsKey(branchID), promotions, listingCacheTTL)
	return promotions, nil
}

// CreatePromotion cria uma promoção e invalida o cache de promoções
func (uc *CatalogUseCase) CreatePromotion(ctx context.Context, promotion *Promotion) error {
	if promotion.ID == "" {
		promotion.ID = uuid.New().String()
	}

	if err := uc.repository.CreatePromotion(ctx, promotion); err != nil {
		return fmt.Errorf("failed to create promotion: %w", err)
	}

	uc.cache.DeleteByPattern(ctx, promotionPattern)
	return nil
}

// UpdatePromotion atualiza uma promoção e invalida o cache de promoções
func (uc *CatalogUseCase) UpdatePromotion(ctx context.Context, id string, upd PromotionUpdate) (bool, error) {
	updated, err := uc.repository.UpdatePromotion(ctx, id, upd)
	if err != nil || !updated {
		return updated, err
	}

	uc.cache.DeleteByPattern(ctx, promotionPattern)
	return true, nil
}

// DeactivatePromotion desativa uma promoção e invalida o cache de promoções
func (uc *CatalogUseCase) DeactivatePromotion(ctx context.Context, id string) (bool, error) {
	deactivated, err := uc.repository.DeactivatePromotion(ctx, id)
	if err != nil || !deactivated {
		return deactivated, err
	}

	uc.cache.DeleteByPattern(ctx, promotionPattern)
	return true, nil
}

// GetCustomer busca um cliente com seus agregados de fidelidade.
// Clientes não são cacheados: os agregados mudam a cada pedido.
func (uc *CatalogUseCase) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	return uc.repository.GetCustomer(ctx, id)
}

// Home monta o payload agregado do PWA a partir das leituras cacheadas
func (uc *CatalogUseCase) Home(ctx context.Context, branchID string) (*PWAHome, error) {
	branch, err := uc.GetBranch(ctx, branchID)
	if err != nil {
		return nil, err
	}
	if branch == nil {
		return nil, nil
	}

	categories, err := uc.ListCategories(ctx)
	if err != nil {
		return nil, err
	}

	promotions, err := uc.ListActivePromotions(ctx, branchID)
	if err != nil {
		return nil, err
	}

	return &PWAHome{
		Branch:     branch,
		Categories: categories,
		Promotions: promotions,
	}, nil
}
