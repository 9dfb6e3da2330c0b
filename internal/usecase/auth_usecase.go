package usecase

import (
	"context"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"
	"unicode"

	"shopsphere/internal/domain/model"
	repo "shopsphere/internal/repository"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 12

type AuthUsecase struct {
	users     repo.UserRepository
	jwtSecret string
	tokenTTL  time.Duration
}

func NewAuthUsecase(users repo.UserRepository, jwtSecret string, tokenTTL time.Duration) *AuthUsecase {
	if tokenTTL <= 0 {
		tokenTTL = 7 * 24 * time.Hour
	}
	return &AuthUsecase{users: users, jwtSecret: jwtSecret, tokenTTL: tokenTTL}
}

type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthOutput struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

func (u *AuthUsecase) Register(ctx context.Context, in RegisterInput) (AuthOutput, error) {
	name := strings.TrimSpace(in.Name)
	if len(name) < 2 || len(name) > 50 {
		return AuthOutput{}, NewHTTPError(http.StatusBadRequest, "Name must be between 2 and 50 characters")
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if !isValidEmailFormat(email) {
		return AuthOutput{}, NewHTTPError(http.StatusBadRequest, "Please provide a valid email address")
	}
	if err := validatePasswordStrength(in.Password); err != nil {
		return AuthOutput{}, err
	}

	//email重複チェック
	existing, err := u.users.FindByEmail(ctx, email)
	if err == nil && existing != nil {
		return AuthOutput{}, NewHTTPError(http.StatusConflict, "User with this email already exists")
	}
	if err != nil && !errors.Is(err, repo.ErrUserNotFound) {
		return AuthOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcryptCost)
	if err != nil {
		return AuthOutput{}, NewHTTPError(http.StatusInternalServerError, "failed to hash password")
	}

	now := time.Now()
	user := &model.User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hashed),
		Role:         model.RoleUser,
		IsActive:     true,
		LastLoginAt:  &now,
	}
	if err := u.users.Create(ctx, user); errors.Is(err, repo.ErrDuplicate) {
		return AuthOutput{}, NewHTTPError(http.StatusConflict, "User with this email already exists")
	} else if err != nil {
		return AuthOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	token, err := u.issueToken(*user, now)
	if err != nil {
		return AuthOutput{}, NewHTTPError(http.StatusInternalServerError, "failed to issue token")
	}
	return AuthOutput{Token: token, User: safeUser(*user)}, nil
}

func (u *AuthUsecase) Login(ctx context.Context, in LoginInput) (AuthOutput, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || in.Password == "" {
		return AuthOutput{}, NewHTTPError(http.StatusBadRequest, "Email and password are required")
	}

	user, err := u.users.FindByEmail(ctx, email)
	if errors.Is(err, repo.ErrUserNotFound) {
		//存在有無は漏らさない
		return AuthOutput{}, NewHTTPError(http.StatusUnauthorized, "Invalid email or password")
	}
	if err != nil {
		return AuthOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if !user.IsActive {
		return AuthOutput{}, NewHTTPError(http.StatusForbidden, "Account is deactivated")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)) != nil {
		return AuthOutput{}, NewHTTPError(http.StatusUnauthorized, "Invalid email or password")
	}

	//最終ログイン時刻更新。失敗してもログインは通す
	now := time.Now()
	user.LastLoginAt = &now
	_ = u.users.Update(ctx, user)

	token, err := u.issueToken(*user, now)
	if err != nil {
		return AuthOutput{}, NewHTTPError(http.StatusInternalServerError, "failed to issue token")
	}
	return AuthOutput{Token: token, User: safeUser(*user)}, nil
}

func (u *AuthUsecase) issueToken(user model.User, now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub":  int64String(user.ID),
		"role": string(user.Role),
		"jti":  uuid.NewString(),
		"iat":  now.Unix(),
		"exp":  now.Add(u.tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(u.jwtSecret))
}

func safeUser(user model.User) model.User {
	user.PasswordHash = ""
	return user
}

func isValidEmailFormat(email string) bool {
	if email == "" {
		return false
	}
	_, err := mail.ParseAddress(email)
	return err == nil
}

// 最低6文字、大文字・小文字・数字を各1つ以上
func validatePasswordStrength(password string) error {
	if len(password) < 6 {
		return NewHTTPError(http.StatusBadRequest, "Password must be at least 6 characters long")
	}
	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit {
		return NewHTTPError(http.StatusBadRequest, "Password must contain at least one uppercase letter, one lowercase letter, and one number")
	}
	return nil
}
