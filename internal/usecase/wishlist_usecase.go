package usecase

import (
	"context"
	"errors"
	"net/http"

	"shopsphere/internal/domain/model"
	repo "shopsphere/internal/repository"
)

type WishlistUsecase struct {
	wishlist repo.WishlistRepository
	products repo.ProductRepository
}

func NewWishlistUsecase(wishlist repo.WishlistRepository, products repo.ProductRepository) *WishlistUsecase {
	return &WishlistUsecase{wishlist: wishlist, products: products}
}

type WishlistEntryOutput struct {
	ProductID int64          `json:"productId"`
	Product   *model.Product `json:"product,omitempty"`
	AddedAt   string         `json:"addedAt"`
}

// 商品が消えていても項目は返す（Productはnil）
func (u *WishlistUsecase) List(ctx context.Context, userID int64) ([]WishlistEntryOutput, error) {
	items, err := u.wishlist.ListByUserID(ctx, userID)
	if err != nil {
		return nil, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	out := make([]WishlistEntryOutput, 0, len(items))
	for _, it := range items {
		entry := WishlistEntryOutput{
			ProductID: it.ProductID,
			AddedAt:   it.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
		p, err := u.products.FindByID(ctx, it.ProductID)
		if err == nil && p.IsActive {
			entry.Product = &p
		}
		out = append(out, entry)
	}
	return out, nil
}

func (u *WishlistUsecase) Add(ctx context.Context, userID int64, productID int64) error {
	p, err := u.products.FindByID(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return NewHTTPError(http.StatusNotFound, "Product not found")
	}
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if !p.IsActive {
		return NewHTTPError(http.StatusNotFound, "Product not found")
	}

	//既に入っていても成功扱い（冪等）
	if _, err := u.wishlist.Add(ctx, userID, productID); err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return nil
}

func (u *WishlistUsecase) Remove(ctx context.Context, userID int64, productID int64) error {
	if err := u.wishlist.Remove(ctx, userID, productID); err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return nil
}

func (u *WishlistUsecase) Contains(ctx context.Context, userID int64, productID int64) (bool, error) {
	ok, err := u.wishlist.Contains(ctx, userID, productID)
	if err != nil {
		return false, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return ok, nil
}
