package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"shopsphere/internal/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// 送信を記録するフェイク。失敗やブロックも再現できる
type fakeMailer struct {
	mu    sync.Mutex
	sent  []sentMail
	err   error
	block chan struct{}
}

type sentMail struct {
	To      string
	BCC     string
	Subject string
	Body    string
}

func (m *fakeMailer) Send(ctx context.Context, to string, bcc string, subject string, body string) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{To: to, BCC: bcc, Subject: subject, Body: body})
	return nil
}

func (m *fakeMailer) Sent() []sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sentMail, len(m.sent))
	copy(out, m.sent)
	return out
}

func TestDispatcher_DeliversCreatedWithOperatorBCC(t *testing.T) {
	mailer := &fakeMailer{}
	d := NewDispatcher(mailer, zap.NewNop(), "ops@example.com", 8)

	order := model.Order{ID: 42, TotalPrice: 150}
	user := model.User{Name: "Taro", Email: "taro@example.com"}
	items := []model.OrderItem{{ProductNameSnapshot: "Keyboard", Quantity: 3, UnitPriceSnapshot: 40}}

	d.Notify(order, items, user, EventCreated)
	d.Close()

	sent := mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "taro@example.com", sent[0].To)
	assert.Equal(t, "ops@example.com", sent[0].BCC)
	assert.Contains(t, sent[0].Subject, "#00000042")
	assert.Contains(t, sent[0].Body, "Keyboard")
}

// created以外は運用者BCCを付けない
func TestDispatcher_NoBCCForOtherEvents(t *testing.T) {
	mailer := &fakeMailer{}
	d := NewDispatcher(mailer, zap.NewNop(), "ops@example.com", 8)

	d.Notify(model.Order{ID: 1}, nil, model.User{Email: "a@example.com"}, EventShipped)
	d.Close()

	sent := mailer.Sent()
	require.Len(t, sent, 1)
	assert.Empty(t, sent[0].BCC)
	assert.Contains(t, sent[0].Subject, "Shipped")
}

// キューが一杯でもNotifyはブロックしない
func TestDispatcher_NonBlockingWhenQueueFull(t *testing.T) {
	block := make(chan struct{})
	mailer := &fakeMailer{block: block}
	d := NewDispatcher(mailer, zap.NewNop(), "", 1)

	order := model.Order{ID: 1}
	user := model.User{Email: "a@example.com"}

	done := make(chan struct{})
	go func() {
		//workerが詰まっていても数回のNotifyが即時に返ること
		for i := 0; i < 10; i++ {
			d.Notify(order, nil, user, EventPaid)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Notify blocked")
	}

	close(block)
	d.Close()
}

// 送信失敗は吸収される（パニックもエラー伝播もしない）
func TestDispatcher_SendFailureAbsorbed(t *testing.T) {
	mailer := &fakeMailer{err: errors.New("smtp down")}
	d := NewDispatcher(mailer, zap.NewNop(), "", 8)

	d.Notify(model.Order{ID: 1}, nil, model.User{Email: "a@example.com"}, EventCancelled)
	d.Close()

	assert.Empty(t, mailer.Sent())
}

func TestDispatcher_CloseIsIdempotent(t *testing.T) {
	d := NewDispatcher(&fakeMailer{}, zap.NewNop(), "", 1)
	d.Close()
	d.Close()
}
