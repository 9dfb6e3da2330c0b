package main

import (
	"strconv"
	"time"

	"shopsphere/internal/config"
	"shopsphere/internal/domain/model"
	"shopsphere/internal/gateway"
	"shopsphere/internal/handler"
	"shopsphere/internal/infra/db"
	infraRepo "shopsphere/internal/infra/repository"
	"shopsphere/internal/notifier"
	"shopsphere/internal/server"
	"shopsphere/internal/usecase"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	//.envは無くてもいい（本番は環境変数で渡す）
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := zap.NewProduction()
	if cfg.GoEnv == "dev" {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	//DB接続
	gormDB, err := db.Connect()
	if err != nil {
		logger.Fatal("db connect failed", zap.Error(err))
	}
	if err := gormDB.AutoMigrate(
		&model.User{},
		&model.Product{},
		&model.Coupon{},
		&model.Order{},
		&model.OrderItem{},
		&model.Review{},
		&model.WishlistItem{},
		&model.InventoryAdjustment{},
		&model.AuditLog{},
	); err != nil {
		logger.Fatal("auto migrate failed", zap.Error(err))
	}

	//Repository（GORM実装）生成
	userRepo := infraRepo.NewUserRepository(gormDB)
	productRepo := infraRepo.NewProductGormRepository(gormDB)
	orderRepo := infraRepo.NewOrderGormRepository(gormDB)
	orderItemRepo := infraRepo.NewOrderItemGormRepository(gormDB)
	couponRepo := infraRepo.NewCouponGormRepository(gormDB)
	wishlistRepo := infraRepo.NewWishlistGormRepository(gormDB)
	auditRepo := infraRepo.NewAuditLogGormRepository(gormDB)
	txManager := infraRepo.NewTxManagerGorm(gormDB)

	//メール通知（非同期、失敗は握りつぶしてログ）
	mailer := notifier.NewSMTPMailer(notifier.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     strconv.Itoa(cfg.SMTPPort),
		From:     cfg.SMTPFrom,
		Password: cfg.SMTPPassword,
	})
	dispatcher := notifier.NewDispatcher(mailer, logger, cfg.OperatorEmail, 64)
	defer dispatcher.Close()

	//決済ゲートウェイ（DIで渡す。グローバルは作らない）
	gatewayClient := gateway.NewClient(
		cfg.RazorpayKeyID,
		cfg.RazorpayKeySecret,
		cfg.RazorpayWebhookSecret,
		logger,
	)

	//Usecase生成
	authUC := usecase.NewAuthUsecase(userRepo, cfg.JWTSecret, 7*24*time.Hour)
	productUC := usecase.NewProductUsecase(productRepo, txManager, auditRepo)
	reviewUC := usecase.NewReviewUsecase(txManager, userRepo)
	orderUC := usecase.NewOrderUsecase(txManager, userRepo, dispatcher)
	adminOrderUC := usecase.NewAdminOrderUsecase(txManager, userRepo, auditRepo, dispatcher)
	couponUC := usecase.NewCouponUsecase(couponRepo, auditRepo)
	paymentUC := usecase.NewPaymentUsecase(txManager, userRepo, gatewayClient, dispatcher, logger)
	wishlistUC := usecase.NewWishlistUsecase(wishlistRepo, productRepo)
	statsUC := usecase.NewAdminStatsUsecase(orderRepo, orderItemRepo, productRepo, userRepo)

	//Handler生成
	handlers := server.Handlers{
		Auth:       handler.NewAuthHandler(authUC),
		Product:    handler.NewProductHandler(productUC),
		Review:     handler.NewReviewHandler(reviewUC),
		Order:      handler.NewOrderHandler(orderUC),
		AdminOrder: handler.NewAdminOrderHandler(adminOrderUC),
		Coupon:     handler.NewCouponHandler(couponUC),
		Payment:    handler.NewPaymentHandler(paymentUC),
		Wishlist:   handler.NewWishlistHandler(wishlistUC),
		Admin:      handler.NewAdminHandler(statsUC, productUC),
	}

	e := server.New(cfg, logger, handlers, userRepo)

	addr := ":" + cfg.Port
	if cfg.Port[0] == ':' {
		addr = cfg.Port
	}
	if err := e.Start(addr); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
