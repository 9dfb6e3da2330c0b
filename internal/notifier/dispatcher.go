package notifier

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"shopsphere/internal/domain/model"

	"go.uber.org/zap"
)

// 注文ライフサイクルのイベント
type Event string

const (
	EventCreated   Event = "created"
	EventPaid      Event = "paid"
	EventShipped   Event = "shipped"
	EventDelivered Event = "delivered"
	EventCancelled Event = "cancelled"
)

// 1通分のジョブ。Orderのスナップショットを持つ
type job struct {
	Order model.Order
	Items []model.OrderItem
	User  model.User
	Event Event
}

// Dispatcherは遷移と非同期にメールを送る。
// 送信失敗はログに残すだけで、呼び出し元には一切影響しない
type Dispatcher struct {
	mailer Mailer
	logger *zap.Logger

	//createdのときだけBCCで入れる運用者アドレス（空なら無し）
	operatorEmail string

	jobs chan job
	wg   sync.WaitGroup

	closeOnce sync.Once

	//1通あたりの送信タイムアウト
	sendTimeout time.Duration
}

func NewDispatcher(mailer Mailer, logger *zap.Logger, operatorEmail string, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 64
	}
	d := &Dispatcher{
		mailer:        mailer,
		logger:        logger,
		operatorEmail: operatorEmail,
		jobs:          make(chan job, queueSize),
		sendTimeout:   15 * time.Second,
	}
	d.wg.Add(1)
	go d.worker()
	return d
}

// Notifyはブロックしない。キューが一杯なら捨ててログだけ残す
func (d *Dispatcher) Notify(order model.Order, items []model.OrderItem, user model.User, event Event) {
	j := job{Order: order, Items: items, User: user, Event: event}
	select {
	case d.jobs <- j:
	default:
		d.logger.Warn("notification queue full, dropping",
			zap.Int64("order_id", order.ID),
			zap.String("event", string(event)),
		)
	}
}

// Closeはキューを閉じて残りを送り切るまで待つ
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.jobs)
	})
	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.jobs {
		d.deliver(j)
	}
}

func (d *Dispatcher) deliver(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
	defer cancel()

	subject, body := renderEmail(j)

	bcc := ""
	if j.Event == EventCreated {
		bcc = d.operatorEmail
	}

	if err := d.mailer.Send(ctx, j.User.Email, bcc, subject, body); err != nil {
		//失敗しても遷移は巻き戻さない・リトライもしない
		d.logger.Error("notification send failed",
			zap.Int64("order_id", j.Order.ID),
			zap.String("event", string(j.Event)),
			zap.String("to", j.User.Email),
			zap.Error(err),
		)
		return
	}

	d.logger.Info("notification sent",
		zap.Int64("order_id", j.Order.ID),
		zap.String("event", string(j.Event)),
		zap.String("to", j.User.Email),
	)
}

// 注文番号の表示用（末尾8桁相当）
func orderRef(id int64) string {
	return fmt.Sprintf("#%08d", id)
}

func renderEmail(j job) (subject string, body string) {
	ref := orderRef(j.Order.ID)

	var b strings.Builder
	b.WriteString("<p>Hi " + j.User.Name + ",</p>")

	switch j.Event {
	case EventCreated:
		subject = "Order Confirmation - Order " + ref
		b.WriteString("<p>We've received your order and it's being processed.</p>")
		b.WriteString("<table>")
		for _, it := range j.Items {
			fmt.Fprintf(&b, "<tr><td>%s</td><td>x%d</td><td>%.2f</td></tr>",
				it.ProductNameSnapshot, it.Quantity, it.UnitPriceSnapshot)
		}
		b.WriteString("</table>")
		fmt.Fprintf(&b, "<p>Total: %.2f</p>", j.Order.TotalPrice)
	case EventPaid:
		subject = "Payment Confirmed - Order " + ref
		fmt.Fprintf(&b, "<p>Your payment of %.2f was received. We're preparing your order.</p>", j.Order.TotalPrice)
	case EventShipped:
		subject = "Your Order Has Shipped - Order " + ref
		b.WriteString("<p>Good news! Your order is on its way.</p>")
	case EventDelivered:
		subject = "Your Order Has Been Delivered - Order " + ref
		b.WriteString("<p>Your order has been delivered. We hope you enjoy it!</p>")
	case EventCancelled:
		subject = "Order Cancelled - Order " + ref
		b.WriteString("<p>Your order has been cancelled. If you paid online, the refund will follow shortly.</p>")
	default:
		subject = "Order Update - Order " + ref
		b.WriteString("<p>Your order was updated.</p>")
	}

	return subject, b.String()
}
