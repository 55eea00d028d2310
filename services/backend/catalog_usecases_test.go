package main

import (
	"context"
	"encoding/json"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// fakeCache é um CacheStore em memória para os testes de read-through;
// o glob de DeleteByPattern usa a mesma semântica do KEYS do Redis
type fakeCache struct {
	entries map[string][]byte
	hashes  map[string]map[string]string
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		entries: map[string][]byte{},
		hashes:  map[string]map[string]string{},
	}
}

func (f *fakeCache) Get(_ context.Context, key string, dest interface{}) bool {
	data, ok := f.entries[key]
	if !ok {
		return false
	}
	return json.Unmarshal(data, dest) == nil
}

func (f *fakeCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	f.entries[key] = data
}

func (f *fakeCache) Delete(_ context.Context, keys ...string) {
	for _, key := range keys {
		delete(f.entries, key)
	}
}

func (f *fakeCache) DeleteByPattern(_ context.Context, pattern string) {
	for key := range f.entries {
		if ok, _ := path.Match(pattern, key); ok {
			delete(f.entries, key)
		}
	}
}

func (f *fakeCache) Exists(_ context.Context, key string) bool {
	_, ok := f.entries[key]
	return ok
}

func (f *fakeCache) HSet(_ context.Context, key, field string, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if f.hashes[key] == nil {
		f.hashes[key] = map[string]string{}
	}
	f.hashes[key][field] = string(data)
}

func (f *fakeCache) HGet(_ context.Context, key, field string, dest interface{}) bool {
	data, ok := f.hashes[key][field]
	if !ok {
		return false
	}
	return json.Unmarshal([]byte(data), dest) == nil
}

func (f *fakeCache) HGetAll(_ context.Context, key string) map[string]string {
	fields := f.hashes[key]
	if fields == nil {
		return map[string]string{}
	}
	return fields
}

func (f *fakeCache) HDel(_ context.Context, key string, fields ...string) {
	for _, field := range fields {
		delete(f.hashes[key], field)
	}
}

// MockCatalogRepository simula o repositório de catálogo
type MockCatalogRepository struct {
	mock.Mock
}

func (m *MockCatalogRepository) ListBranches(ctx context.Context) ([]Branch, error) {
	args := m.Called(ctx)
	return args.Get(0).([]Branch), args.Error(1)
}

func (m *MockCatalogRepository) GetBranch(ctx context.Context, id string) (*Branch, error) {
	args := m.Called(ctx, id)
	branch, _ := args.Get(0).(*Branch)
	return branch, args.Error(1)
}

func (m *MockCatalogRepository) CreateBranch(ctx context.Context, branch *Branch) error {
	args := m.Called(ctx, branch)
	return args.Error(0)
}

func (m *MockCatalogRepository) UpdateBranch(ctx context.Context, id string, upd BranchUpdate) (bool, error) {
	args := m.Called(ctx, id, upd)
	return args.Bool(0), args.Error(1)
}

func (m *MockCatalogRepository) DeactivateBranch(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockCatalogRepository) ListCategories(ctx context.Context) ([]Category, error) {
	args := m.Called(ctx)
	return args.Get(0).([]Category), args.Error(1)
}

func (m *MockCatalogRepository) CreateCategory(ctx context.Context, category *Category) error {
	args := m.Called(ctx, category)
	return args.Error(0)
}

func (m *MockCatalogRepository) ListProducts(ctx context.Context, branchID string, filters ProductFilters, page, limit int) ([]Product, error) {
	args := m.Called(ctx, branchID, filters, page, limit)
	return args.Get(0).([]Product), args.Error(1)
}

func (m *MockCatalogRepository) GetProduct(ctx context.Context, id, branchID string) (*Product, error) {
	args := m.Called(ctx, id, branchID)
	product, _ := args.Get(0).(*Product)
	return product, args.Error(1)
}

func (m *MockCatalogRepository) CreateProduct(ctx context.Context, product *Product) error {
	args := m.Called(ctx, product)
	return args.Error(0)
}

func (m *MockCatalogRepository) UpdateProduct(ctx context.Context, id string, upd ProductUpdate) (bool, error) {
	args := m.Called(ctx, id, upd)
	return args.Bool(0), args.Error(1)
}

func (m *MockCatalogRepository) DeactivateProduct(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockCatalogRepository) ListActivePromotions(ctx context.Context, branchID string) ([]Promotion, error) {
	args := m.Called(ctx, branchID)
	return args.Get(0).([]Promotion), args.Error(1)
}

func (m *MockCatalogRepository) CreatePromotion(ctx context.Context, promotion *Promotion) error {
	args := m.Called(ctx, promotion)
	return args.Error(0)
}

func (m *MockCatalogRepository) UpdatePromotion(ctx context.Context, id string, upd PromotionUpdate) (bool, error) {
	args := m.Called(ctx, id, upd)
	return args.Bool(0), args.Error(1)
}

func (m *MockCatalogRepository) DeactivatePromotion(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockCatalogRepository) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	args := m.Called(ctx, id)
	customer, _ := args.Get(0).(*Customer)
	return customer, args.Error(1)
}

// Um miss seguido de leitura popula o cache; a segunda leitura idêntica
// não emite uma segunda consulta ao banco
func TestListBranchesReadThrough(t *testing.T) {
	// Arrange
	mockRepo := new(MockCatalogRepository)
	cache := newFakeCache()
	uc := NewCatalogUseCase(mockRepo, cache)
	ctx := context.Background()

	branches := []Branch{{ID: "b1", Name: "Central"}, {ID: "b2", Name: "Norte"}}
	mockRepo.On("ListBranches", ctx).Return(branches, nil)

	// Act
	first, err1 := uc.ListBranches(ctx)
	second, err2 := uc.ListBranches(ctx)

	// Assert
	assert.NoError(t, err1)
	assert.NoError(t, err2)
	assert.Equal(t, branches, first)
	assert.Equal(t, first, second)
	mockRepo.AssertNumberOfCalls(t, "ListBranches", 1)
}

func TestListProductsCacheKeyPerFilterCombination(t *testing.T) {
	mockRepo := new(MockCatalogRepository)
	cache := newFakeCache()
	uc := NewCatalogUseCase(mockRepo, cache)
	ctx := context.Background()

	feed := ProductFilters{CategoryID: "cat-feed"}
	meds := ProductFilters{CategoryID: "cat-meds"}
	mockRepo.On("ListProducts", ctx, "b1", feed, 1, 20).Return([]Product{{ID: "p1"}}, nil)
	mockRepo.On("ListProducts", ctx, "b1", meds, 1, 20).Return([]Product{{ID: "p2"}}, nil)

	// Filtros diferentes são entradas de cache diferentes
	_, _ = uc.ListProducts(ctx, "b1", feed, 1, 20)
	_, _ = uc.ListProducts(ctx, "b1", meds, 1, 20)
	_, _ = uc.ListProducts(ctx, "b1", feed, 1, 20)
	_, _ = uc.ListProducts(ctx, "b1", meds, 1, 20)

	mockRepo.AssertNumberOfCalls(t, "ListProducts", 2)
}

// Qualquer escrita derruba todas as chaves do tipo de entidade alterado
func TestBranchWriteInvalidatesAllBranchKeys(t *testing.T) {
	mockRepo := new(MockCatalogRepository)
	cache := newFakeCache()
	uc := NewCatalogUseCase(mockRepo, cache)
	ctx := context.Background()

	mockRepo.On("ListBranches", ctx).Return([]Branch{{ID: "b1"}}, nil)
	mockRepo.On("GetBranch", ctx, "b1").Return(&Branch{ID: "b1"}, nil)

	_, _ = uc.ListBranches(ctx)
	_, _ = uc.GetBranch(ctx, "b1")
	assert.True(t, cache.Exists(ctx, branchesAllKey))
	assert.True(t, cache.Exists(ctx, branchKey("b1")))

	name := "Nova Central"
	mockRepo.On("UpdateBranch", ctx, "b1", BranchUpdate{Name: &name}).Return(true, nil)
	updated, err := uc.UpdateBranch(ctx, "b1", BranchUpdate{Name: &name})

	assert.NoError(t, err)
	assert.True(t, updated)
	assert.False(t, cache.Exists(ctx, branchesAllKey))
	assert.False(t, cache.Exists(ctx, branchKey("b1")))

	// A próxima leitura volta ao banco
	_, _ = uc.ListBranches(ctx)
	mockRepo.AssertNumberOfCalls(t, "ListBranches", 2)
}

func TestProductWriteInvalidatesListingsAndSingles(t *testing.T) {
	mockRepo := new(MockCatalogRepository)
	cache := newFakeCache()
	uc := NewCatalogUseCase(mockRepo, cache)
	ctx := context.Background()

	mockRepo.On("ListProducts", ctx, "b1", ProductFilters{}, 1, 20).Return([]Product{{ID: "p1"}}, nil)
	mockRepo.On("GetProduct", ctx, "p1", "b1").Return(&Product{ID: "p1"}, nil)

	_, _ = uc.ListProducts(ctx, "b1", ProductFilters{}, 1, 20)
	_, _ = uc.GetProduct(ctx, "p1", "b1")
	assert.True(t, cache.Exists(ctx, productKey("p1", "b1")))

	mockRepo.On("DeactivateProduct", ctx, "p1").Return(true, nil)
	_, err := uc.DeactivateProduct(ctx, "p1")

	assert.NoError(t, err)
	assert.False(t, cache.Exists(ctx, productKey("p1", "b1")))
	assert.False(t, cache.Exists(ctx, productsKey("b1", ProductFilters{}, 1, 20)))
}

func TestCategoriesCachedSeparately(t *testing.T) {
	mockRepo := new(MockCatalogRepository)
	cache := newFakeCache()
	uc := NewCatalogUseCase(mockRepo, cache)
	ctx := context.Background()

	mockRepo.On("ListCategories", ctx).Return([]Category{{ID: "c1"}}, nil)
	mockRepo.On("CreateCategory", ctx, mock.Anything).Return(nil)

	_, _ = uc.ListCategories(ctx)
	assert.True(t, cache.Exists(ctx, categoriesAllKey))

	err := uc.CreateCategory(ctx, &Category{Name: "Sementes"})
	assert.NoError(t, err)
	assert.False(t, cache.Exists(ctx, categoriesAllKey))
}

func TestPromotionsCachedPerBranch(t *testing.T) {
	mockRepo := new(MockCatalogRepository)
	cache := newFakeCache()
	uc := NewCatalogUseCase(mockRepo, cache)
	ctx := context.Background()

	mockRepo.On("ListActivePromotions", ctx, "b1").Return([]Promotion{{ID: "promo1"}}, nil)
	mockRepo.On("ListActivePromotions", ctx, "").Return([]Promotion{}, nil)

	_, _ = uc.ListActivePromotions(ctx, "b1")
	_, _ = uc.ListActivePromotions(ctx, "")
	assert.True(t, cache.Exists(ctx, "promotions:active:b1"))
	assert.True(t, cache.Exists(ctx, "promotions:active:all"))

	mockRepo.On("CreatePromotion", ctx, mock.Anything).Return(nil)
	err := uc.CreatePromotion(ctx, &Promotion{Title: "Semana do Pet"})

	assert.NoError(t, err)
	assert.False(t, cache.Exists(ctx, "promotions:active:b1"))
	assert.False(t, cache.Exists(ctx, "promotions:active:all"))
}

// Não encontrado não popula o cache
func TestGetBranchNotFoundNotCached(t *testing.T) {
	mockRepo := new(MockCatalogRepository)
	cache := newFakeCache()
	uc := NewCatalogUseCase(mockRepo, cache)
	ctx := context.Background()

	mockRepo.On("GetBranch", ctx, "missing").Return(nil, nil)

	branch, err := uc.GetBranch(ctx, "missing")

	assert.NoError(t, err)
	assert.Nil(t, branch)
	assert.False(t, cache.Exists(ctx, branchKey("missing")))
}

// id vazio (ex: pwa/home sem branch_id) nunca vira consulta: as colunas de
// id são UUID e o banco rejeitaria o bind de string vazia
func TestGetBranchEmptyIDSkipsLookup(t *testing.T) {
	mockRepo := new(MockCatalogRepository)
	cache := newFakeCache()
	uc := NewCatalogUseCase(mockRepo, cache)
	ctx := context.Background()

	branch, err := uc.GetBranch(ctx, "")

	assert.NoError(t, err)
	assert.Nil(t, branch)
	mockRepo.AssertNotCalled(t, "GetBranch", mock.Anything, mock.Anything)
}

func TestPWAHomeWithoutBranchNotFound(t *testing.T) {
	mockRepo := new(MockCatalogRepository)
	cache := newFakeCache()
	uc := NewCatalogUseCase(mockRepo, cache)
	ctx := context.Background()

	home, err := uc.Home(ctx, "")

	assert.NoError(t, err)
	assert.Nil(t, home)
	mockRepo.AssertNotCalled(t, "GetBranch", mock.Anything, mock.Anything)
}

func TestPWAHomeAggregatesCachedReads(t *testing.T) {
	mockRepo := new(MockCatalogRepository)
	cache := newFakeCache()
	uc := NewCatalogUseCase(mockRepo, cache)
	ctx := context.Background()

	mockRepo.On("GetBranch", ctx, "b1").Return(&Branch{ID: "b1"}, nil)
	mockRepo.On("ListCategories", ctx).Return([]Category{{ID: "c1"}}, nil)
	mockRepo.On("ListActivePromotions", ctx, "b1").Return([]Promotion{{ID: "promo1"}}, nil)

	home, err := uc.Home(ctx, "b1")

	assert.NoError(t, err)
	assert.Equal(t, "b1", home.Branch.ID)
	assert.Len(t, home.Categories, 1)
	assert.Len(t, home.Promotions, 1)

	// Segunda montagem sai inteira do cache
	_, err = uc.Home(ctx, "b1")
	assert.NoError(t, err)
	mockRepo.AssertNumberOfCalls(t, "GetBranch", 1)
	mockRepo.AssertNumberOfCalls(t, "ListCategories", 1)
	mockRepo.AssertNumberOfCalls(t, "ListActivePromotions", 1)
}
