package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"shopsphere/internal/domain/model"
	repo "shopsphere/internal/repository"

	"github.com/shopspring/decimal"
)

type ReviewUsecase struct {
	tx    repo.TransactionManager
	users repo.UserRepository
}

func NewReviewUsecase(tx repo.TransactionManager, users repo.UserRepository) *ReviewUsecase {
	return &ReviewUsecase{tx: tx, users: users}
}

type CreateReviewInput struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// 作成と同時に商品側の集計（rating / numReviews）を更新する
func (u *ReviewUsecase) Create(ctx context.Context, userID int64, productID int64, in CreateReviewInput) (model.Review, error) {
	if in.Rating < 1 || in.Rating > 5 {
		return model.Review{}, NewHTTPError(http.StatusBadRequest, "Rating must be between 1 and 5")
	}
	comment := strings.TrimSpace(in.Comment)
	if len(comment) > 1000 {
		return model.Review{}, NewHTTPError(http.StatusBadRequest, "Comment must be 1000 characters or less")
	}

	user, err := u.users.FindByID(ctx, userID)
	if errors.Is(err, repo.ErrUserNotFound) {
		return model.Review{}, NewHTTPError(http.StatusNotFound, "User not found")
	}
	if err != nil {
		return model.Review{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	var created model.Review
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		p, err := r.Products().FindByID(ctx, productID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "Product not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if !p.IsActive {
			return NewHTTPError(http.StatusNotFound, "Product not found")
		}

		exists, err := r.Reviews().ExistsByProductAndUser(ctx, productID, userID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if exists {
			return NewHTTPError(http.StatusBadRequest, "Product already reviewed")
		}

		created, err = r.Reviews().Create(ctx, model.Review{
			ProductID: productID,
			UserID:    userID,
			UserName:  user.Name,
			Rating:    in.Rating,
			Comment:   comment,
		})
		if errors.Is(err, repo.ErrDuplicate) {
			return NewHTTPError(http.StatusBadRequest, "Product already reviewed")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		//集計の書き戻し。平均は既存集計から増分計算する
		newCount := p.NumReviews + 1
		sum := dec(p.Rating).Mul(decimal.NewFromInt(p.NumReviews)).Add(decimal.NewFromInt(int64(in.Rating)))
		newRating := round2f(sum.Div(decimal.NewFromInt(newCount)))
		if err := r.Products().UpdateRating(ctx, productID, newRating, newCount); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		return nil
	})
	if err != nil {
		return model.Review{}, err
	}
	return created, nil
}

func (u *ReviewUsecase) ListByProduct(ctx context.Context, productID int64) ([]model.Review, error) {
	var reviews []model.Review
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		if _, err := r.Products().FindByID(ctx, productID); errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "Product not found")
		} else if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		list, err := r.Reviews().ListByProductID(ctx, productID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		reviews = list
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reviews, nil
}
