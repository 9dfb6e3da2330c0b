package usecase

import (
	"context"
	"sync"
	"time"

	"shopsphere/internal/domain/model"
	"shopsphere/internal/gateway"
	"shopsphere/internal/notifier"
	repo "shopsphere/internal/repository"

	"github.com/stretchr/testify/mock"
)

// =====================
// TxManager / TxRepos mocks
// =====================

// txManagerMock は WithinTx の中で渡す repos を固定して unit テストを回す
type txManagerMock struct {
	mock.Mock
	Repos repo.TxRepos
}

func (m *txManagerMock) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	// 呼ばれた事実だけ記録（ctxの具体値は問わない）
	m.Called(ctx)
	return fn(m.Repos)
}

type txReposMock struct {
	orders     repo.OrderRepository
	orderItems repo.OrderItemRepository
	inventory  repo.InventoryRepository
	products   repo.ProductRepository
	coupons    repo.CouponRepository
	reviews    repo.ReviewRepository
}

func (r *txReposMock) Orders() repo.OrderRepository         { return r.orders }
func (r *txReposMock) OrderItems() repo.OrderItemRepository { return r.orderItems }
func (r *txReposMock) Inventory() repo.InventoryRepository  { return r.inventory }
func (r *txReposMock) Products() repo.ProductRepository     { return r.products }
func (r *txReposMock) Coupons() repo.CouponRepository       { return r.coupons }
func (r *txReposMock) Reviews() repo.ReviewRepository       { return r.reviews }

// =====================
// Repository mocks
// =====================

type orderRepoMock struct{ mock.Mock }

func (m *orderRepoMock) FindByID(ctx context.Context, orderID int64) (model.Order, error) {
	args := m.Called(ctx, orderID)
	o, _ := args.Get(0).(model.Order)
	return o, args.Error(1)
}

func (m *orderRepoMock) ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error) {
	args := m.Called(ctx, userID, page, limit)
	orders, _ := args.Get(0).([]model.Order)
	total, _ := args.Get(1).(int64)
	return orders, total, args.Error(2)
}

func (m *orderRepoMock) Create(ctx context.Context, order model.Order) (int64, error) {
	args := m.Called(ctx, order)
	id, _ := args.Get(0).(int64)
	return id, args.Error(1)
}

func (m *orderRepoMock) ApplyTransition(ctx context.Context, orderID int64, u repo.OrderTransitionUpdate) error {
	args := m.Called(ctx, orderID, u)
	return args.Error(0)
}

func (m *orderRepoMock) FindByPaymentID(ctx context.Context, paymentID string) (model.Order, error) {
	args := m.Called(ctx, paymentID)
	o, _ := args.Get(0).(model.Order)
	return o, args.Error(1)
}

func (m *orderRepoMock) ListAdmin(ctx context.Context, f repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	args := m.Called(ctx, f)
	orders, _ := args.Get(0).([]model.Order)
	total, _ := args.Get(1).(int64)
	return orders, total, args.Error(2)
}

func (m *orderRepoMock) ListSince(ctx context.Context, since time.Time) ([]model.Order, error) {
	args := m.Called(ctx, since)
	orders, _ := args.Get(0).([]model.Order)
	return orders, args.Error(1)
}

func (m *orderRepoMock) CountAll(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	n, _ := args.Get(0).(int64)
	return n, args.Error(1)
}

func (m *orderRepoMock) SumRevenue(ctx context.Context, since *time.Time) (float64, error) {
	args := m.Called(ctx, since)
	v, _ := args.Get(0).(float64)
	return v, args.Error(1)
}

type orderItemRepoMock struct{ mock.Mock }

func (m *orderItemRepoMock) CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error {
	args := m.Called(ctx, orderID, items)
	return args.Error(0)
}

func (m *orderItemRepoMock) ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	args := m.Called(ctx, orderID)
	items, _ := args.Get(0).([]model.OrderItem)
	return items, args.Error(1)
}

func (m *orderItemRepoMock) TopProducts(ctx context.Context, limit int) ([]repo.ProductSales, error) {
	args := m.Called(ctx, limit)
	sales, _ := args.Get(0).([]repo.ProductSales)
	return sales, args.Error(1)
}

type inventoryRepoMock struct{ mock.Mock }

func (m *inventoryRepoMock) SetStock(ctx context.Context, productID int64, newStock int64) error {
	args := m.Called(ctx, productID, newStock)
	return args.Error(0)
}

func (m *inventoryRepoMock) DecreaseStockIfEnough(ctx context.Context, productID int64, qty int64) (bool, error) {
	args := m.Called(ctx, productID, qty)
	return args.Bool(0), args.Error(1)
}

func (m *inventoryRepoMock) IncreaseStock(ctx context.Context, productID int64, qty int64) error {
	args := m.Called(ctx, productID, qty)
	return args.Error(0)
}

func (m *inventoryRepoMock) CreateAdjustment(ctx context.Context, adjustment model.InventoryAdjustment) error {
	args := m.Called(ctx, adjustment)
	return args.Error(0)
}

type productRepoMock struct{ mock.Mock }

func (m *productRepoMock) ListPublic(ctx context.Context, q repo.ProductListQuery) ([]model.Product, int64, error) {
	args := m.Called(ctx, q)
	products, _ := args.Get(0).([]model.Product)
	total, _ := args.Get(1).(int64)
	return products, total, args.Error(2)
}

func (m *productRepoMock) FindByID(ctx context.Context, id int64) (model.Product, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(model.Product)
	return p, args.Error(1)
}

func (m *productRepoMock) Create(ctx context.Context, p model.Product) (model.Product, error) {
	args := m.Called(ctx, p)
	created, _ := args.Get(0).(model.Product)
	return created, args.Error(1)
}

func (m *productRepoMock) Update(ctx context.Context, p model.Product) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *productRepoMock) SoftDelete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *productRepoMock) ListLowStock(ctx context.Context, threshold int64, limit int) ([]model.Product, error) {
	args := m.Called(ctx, threshold, limit)
	products, _ := args.Get(0).([]model.Product)
	return products, args.Error(1)
}

func (m *productRepoMock) UpdateRating(ctx context.Context, productID int64, rating float64, numReviews int64) error {
	args := m.Called(ctx, productID, rating, numReviews)
	return args.Error(0)
}

type couponRepoMock struct{ mock.Mock }

func (m *couponRepoMock) FindByCode(ctx context.Context, code string) (model.Coupon, error) {
	args := m.Called(ctx, code)
	c, _ := args.Get(0).(model.Coupon)
	return c, args.Error(1)
}

func (m *couponRepoMock) FindByID(ctx context.Context, couponID int64) (model.Coupon, error) {
	args := m.Called(ctx, couponID)
	c, _ := args.Get(0).(model.Coupon)
	return c, args.Error(1)
}

func (m *couponRepoMock) List(ctx context.Context) ([]model.Coupon, error) {
	args := m.Called(ctx)
	cs, _ := args.Get(0).([]model.Coupon)
	return cs, args.Error(1)
}

func (m *couponRepoMock) ListActive(ctx context.Context) ([]model.Coupon, error) {
	args := m.Called(ctx)
	cs, _ := args.Get(0).([]model.Coupon)
	return cs, args.Error(1)
}

func (m *couponRepoMock) Create(ctx context.Context, c model.Coupon) (model.Coupon, error) {
	args := m.Called(ctx, c)
	created, _ := args.Get(0).(model.Coupon)
	return created, args.Error(1)
}

func (m *couponRepoMock) Update(ctx context.Context, c model.Coupon) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *couponRepoMock) Delete(ctx context.Context, couponID int64) error {
	args := m.Called(ctx, couponID)
	return args.Error(0)
}

func (m *couponRepoMock) IncrementUsage(ctx context.Context, code string) (bool, error) {
	args := m.Called(ctx, code)
	return args.Bool(0), args.Error(1)
}

type reviewRepoMock struct{ mock.Mock }

func (m *reviewRepoMock) Create(ctx context.Context, review model.Review) (model.Review, error) {
	args := m.Called(ctx, review)
	created, _ := args.Get(0).(model.Review)
	return created, args.Error(1)
}

func (m *reviewRepoMock) ListByProductID(ctx context.Context, productID int64) ([]model.Review, error) {
	args := m.Called(ctx, productID)
	reviews, _ := args.Get(0).([]model.Review)
	return reviews, args.Error(1)
}

func (m *reviewRepoMock) ExistsByProductAndUser(ctx context.Context, productID int64, userID int64) (bool, error) {
	args := m.Called(ctx, productID, userID)
	return args.Bool(0), args.Error(1)
}

type userRepoMock struct{ mock.Mock }

func (m *userRepoMock) Create(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *userRepoMock) FindByID(ctx context.Context, userID int64) (*model.User, error) {
	args := m.Called(ctx, userID)
	u, _ := args.Get(0).(*model.User)
	return u, args.Error(1)
}

func (m *userRepoMock) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	args := m.Called(ctx, email)
	u, _ := args.Get(0).(*model.User)
	return u, args.Error(1)
}

func (m *userRepoMock) Update(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *userRepoMock) CountAll(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	n, _ := args.Get(0).(int64)
	return n, args.Error(1)
}

type auditRepoMock struct{ mock.Mock }

func (m *auditRepoMock) Create(ctx context.Context, log model.AuditLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

func (m *auditRepoMock) List(ctx context.Context, filter repo.AuditLogFilter) ([]model.AuditLog, error) {
	panic("not used in usecase tests")
}

// =====================
// Notifier recorder（ブロックしない・失敗しない）
// =====================

type notifierRecorder struct {
	mu     sync.Mutex
	events []notifier.Event
}

func (n *notifierRecorder) Notify(order model.Order, items []model.OrderItem, user model.User, event notifier.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *notifierRecorder) Events() []notifier.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notifier.Event, len(n.events))
	copy(out, n.events)
	return out
}

// =====================
// Payment gateway mock
// =====================

type gatewayMock struct{ mock.Mock }

func (m *gatewayMock) Configured() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *gatewayMock) KeyID() string {
	args := m.Called()
	return args.String(0)
}

func (m *gatewayMock) CreateOrder(ctx context.Context, amount int64, currency string, receipt string, notes map[string]string) (gateway.GatewayOrder, error) {
	args := m.Called(ctx, amount, currency, receipt, notes)
	o, _ := args.Get(0).(gateway.GatewayOrder)
	return o, args.Error(1)
}

func (m *gatewayMock) VerifyPaymentSignature(gatewayOrderID, gatewayPaymentID, signature string) bool {
	args := m.Called(gatewayOrderID, gatewayPaymentID, signature)
	return args.Bool(0)
}

func (m *gatewayMock) VerifyWebhookSignature(payload []byte, signature string) bool {
	args := m.Called(payload, signature)
	return args.Bool(0)
}
