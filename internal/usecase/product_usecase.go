package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"shopsphere/internal/domain/model"
	repo "shopsphere/internal/repository"
)

type ProductUsecase struct {
	products  repo.ProductRepository
	tx        repo.TransactionManager
	auditRepo repo.AuditLogRepository
}

func NewProductUsecase(products repo.ProductRepository, tx repo.TransactionManager, auditRepo repo.AuditLogRepository) *ProductUsecase {
	return &ProductUsecase{products: products, tx: tx, auditRepo: auditRepo}
}

type ProductListOutput struct {
	Products []model.Product `json:"products"`
	Page     int             `json:"page"`
	Pages    int64           `json:"pages"`
	Total    int64           `json:"total"`
}

// 公開一覧。検索・絞り込み・並び替え・ページング
func (u *ProductUsecase) List(ctx context.Context, q repo.ProductListQuery) (ProductListOutput, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 || q.Limit > 100 {
		q.Limit = 12
	}
	switch q.Sort {
	case "", "newest", "price_asc", "price_desc", "rating":
	default:
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid sort")
	}
	if q.MinPrice != nil && *q.MinPrice < 0 {
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid price range")
	}
	if q.MinPrice != nil && q.MaxPrice != nil && *q.MaxPrice < *q.MinPrice {
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid price range")
	}

	items, total, err := u.products.ListPublic(ctx, q)
	if err != nil {
		return ProductListOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	pages := total / int64(q.Limit)
	if total%int64(q.Limit) != 0 {
		pages++
	}
	return ProductListOutput{Products: items, Page: q.Page, Pages: pages, Total: total}, nil
}

func (u *ProductUsecase) Get(ctx context.Context, id int64) (model.Product, error) {
	p, err := u.products.FindByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Product{}, NewHTTPError(http.StatusNotFound, "Product not found")
	}
	if err != nil {
		return model.Product{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if !p.IsActive {
		return model.Product{}, NewHTTPError(http.StatusNotFound, "Product not found")
	}
	return p, nil
}

type UpsertProductInput struct {
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	Price        float64 `json:"price"`
	Category     string  `json:"category"`
	Brand        string  `json:"brand"`
	Image        string  `json:"image"`
	CountInStock int64   `json:"countInStock"`
	IsActive     *bool   `json:"isActive"`
}

func (in UpsertProductInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return NewHTTPError(http.StatusBadRequest, "Product name is required")
	}
	if in.Price < 0 {
		return NewHTTPError(http.StatusBadRequest, "Price must not be negative")
	}
	if in.CountInStock < 0 {
		return NewHTTPError(http.StatusBadRequest, "Stock must not be negative")
	}
	return nil
}

func (u *ProductUsecase) Create(ctx context.Context, actorAdminUserID int64, in UpsertProductInput) (model.Product, error) {
	if err := in.validate(); err != nil {
		return model.Product{}, err
	}

	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	created, err := u.products.Create(ctx, model.Product{
		Name:         strings.TrimSpace(in.Name),
		Description:  in.Description,
		Price:        round2f(dec(in.Price)),
		Category:     in.Category,
		Brand:        in.Brand,
		Image:        in.Image,
		CountInStock: in.CountInStock,
		IsActive:     active,
	})
	if err != nil {
		return model.Product{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	u.audit(ctx, actorAdminUserID, created.ID, "", fmt.Sprintf(`{"name":%q,"price":%g}`, created.Name, created.Price))
	return created, nil
}

// 在庫はここでは触らない（SetStockで調整履歴と一緒に扱う）
func (u *ProductUsecase) Update(ctx context.Context, actorAdminUserID int64, productID int64, in UpsertProductInput) (model.Product, error) {
	if err := in.validate(); err != nil {
		return model.Product{}, err
	}

	existing, err := u.products.FindByID(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Product{}, NewHTTPError(http.StatusNotFound, "Product not found")
	}
	if err != nil {
		return model.Product{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	before := fmt.Sprintf(`{"name":%q,"price":%g}`, existing.Name, existing.Price)

	existing.Name = strings.TrimSpace(in.Name)
	existing.Description = in.Description
	existing.Price = round2f(dec(in.Price))
	existing.Category = in.Category
	existing.Brand = in.Brand
	existing.Image = in.Image
	if in.IsActive != nil {
		existing.IsActive = *in.IsActive
	}

	if err := u.products.Update(ctx, existing); err != nil {
		return model.Product{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	u.audit(ctx, actorAdminUserID, existing.ID, before, fmt.Sprintf(`{"name":%q,"price":%g}`, existing.Name, existing.Price))
	return existing, nil
}

func (u *ProductUsecase) Delete(ctx context.Context, actorAdminUserID int64, productID int64) error {
	err := u.products.SoftDelete(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return NewHTTPError(http.StatusNotFound, "Product not found")
	}
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	u.audit(ctx, actorAdminUserID, productID, "", `{"deleted":true}`)
	return nil
}

type SetStockInput struct {
	NewStock int64  `json:"newStock"`
	Reason   string `json:"reason"`
}

// SetStockは在庫の絶対値設定。差分を調整履歴に残す
func (u *ProductUsecase) SetStock(ctx context.Context, actorAdminUserID int64, productID int64, in SetStockInput) (model.Product, error) {
	if in.NewStock < 0 {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, "Stock must not be negative")
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		reason = "manual adjustment"
	}

	var updated model.Product
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		p, err := r.Products().FindByID(ctx, productID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "Product not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		if err := r.Inventory().SetStock(ctx, productID, in.NewStock); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if err := r.Inventory().CreateAdjustment(ctx, model.InventoryAdjustment{
			ProductID:   productID,
			AdminUserID: actorAdminUserID,
			Delta:       in.NewStock - p.CountInStock,
			Reason:      reason,
		}); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		_ = u.auditRepo.Create(ctx, model.AuditLog{
			ActorUserID:  actorAdminUserID,
			Action:       model.AuditActionUpdateStock,
			ResourceType: model.AuditResourceProduct,
			ResourceID:   productID,
			BeforeJSON:   fmt.Sprintf(`{"countInStock":%d}`, p.CountInStock),
			AfterJSON:    fmt.Sprintf(`{"countInStock":%d}`, in.NewStock),
		})

		p.CountInStock = in.NewStock
		updated = p
		return nil
	})
	if err != nil {
		return model.Product{}, err
	}
	return updated, nil
}

func (u *ProductUsecase) audit(ctx context.Context, actorID int64, productID int64, before, after string) {
	_ = u.auditRepo.Create(ctx, model.AuditLog{
		ActorUserID:  actorID,
		Action:       model.AuditActionUpsertProduct,
		ResourceType: model.AuditResourceProduct,
		ResourceID:   productID,
		BeforeJSON:   before,
		AfterJSON:    after,
	})
}
