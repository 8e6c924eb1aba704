package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spok95/stockdesk/internal/domain/errs"
	"github.com/Spok95/stockdesk/internal/domain/users"
	"github.com/Spok95/stockdesk/internal/infra/metrics"
)

func ptr(v int64) *int64 { return &v }

type directory struct{ list []users.User }

func (d directory) GetByID(_ context.Context, id int64) (*users.User, error) {
	for _, u := range d.list {
		if u.ID == id {
			return &u, nil
		}
	}
	return nil, errs.NotFound("user %d", id)
}

func (d directory) ListByRoles(_ context.Context, roles ...users.Role) ([]users.User, error) {
	var out []users.User
	for _, u := range d.list {
		for _, r := range roles {
			if u.Role == r {
				out = append(out, u)
			}
		}
	}
	return out, nil
}

type captureSink struct {
	mu   sync.Mutex
	got  [][]users.User
	err  error
	done chan struct{}
}

func (s *captureSink) Deliver(_ context.Context, to []users.User, _ Notice) error {
	s.mu.Lock()
	s.got = append(s.got, to)
	s.mu.Unlock()
	s.done <- struct{}{}
	return s.err
}

var people = directory{list: []users.User{
	{ID: 1, Role: users.RoleSystemAdmin, TelegramID: ptr(100)},
	{ID: 2, Role: users.RoleInventoryManager, TelegramID: ptr(200)},
	{ID: 3, Role: users.RoleRegular},
}}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestDispatcherResolvesRecipients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink := &captureSink{done: make(chan struct{}, 1)}
	d := NewDispatcher(people, quiet(), metrics.Nop(), 4, sink)
	go func() { _ = d.Run(ctx) }()

	d.Publish(Notice{Kind: KindTransactionPending, Roles: users.ApproverRoles, UserIDs: []int64{2, 3}})
	select {
	case <-sink.done:
	case <-time.After(2 * time.Second):
		t.Fatal("notice not delivered")
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.got, 1)
	var ids []int64
	for _, u := range sink.got[0] {
		ids = append(ids, u.ID)
	}
	assert.ElementsMatch(t, []int64{1, 2, 3}, ids)
}

func TestRecipientsSkipUnknownUser(t *testing.T) {
	d := NewDispatcher(people, quiet(), metrics.Nop(), 4)

	to, err := d.recipients(context.Background(), Notice{Kind: KindTransactionPending, Roles: users.ApproverRoles, UserIDs: []int64{99, 3}})
	require.NoError(t, err)
	var ids []int64
	for _, u := range to {
		ids = append(ids, u.ID)
	}
	assert.ElementsMatch(t, []int64{1, 2, 3}, ids)
}

func TestDispatcherCountsFailures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := metrics.Nop()
	sink := &captureSink{done: make(chan struct{}, 1), err: errors.New("down")}
	d := NewDispatcher(people, quiet(), m, 4, sink)
	go func() { _ = d.Run(ctx) }()

	d.Publish(Notice{Kind: KindTransactionDecided, UserIDs: []int64{3}})
	<-sink.done
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.NotificationsFailed) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPublishDropsWhenQueueFull(t *testing.T) {
	m := metrics.Nop()
	d := NewDispatcher(people, quiet(), m, 1)

	d.Publish(Notice{RefID: 1})
	d.Publish(Notice{RefID: 2})
	d.Publish(Notice{RefID: 3})
	assert.Equal(t, float64(2), testutil.ToFloat64(m.NotificationsDropped))
}

type fakeBot struct {
	chats []int64
	fail  int64
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg := c.(tgbotapi.MessageConfig)
	b.chats = append(b.chats, msg.ChatID)
	if msg.ChatID == b.fail {
		return tgbotapi.Message{}, errors.New("blocked by user")
	}
	return tgbotapi.Message{}, nil
}

func TestTelegramSink(t *testing.T) {
	bot := &fakeBot{fail: 200}
	sink := NewTelegramSink(bot, 100)

	err := sink.Deliver(context.Background(), people.list, Notice{Title: "Pending", Body: "details"})
	require.ErrorContains(t, err, "chat 200")
	assert.Equal(t, []int64{100, 200}, bot.chats, "admin chat is not messaged twice")

	bot = &fakeBot{}
	require.NoError(t, NewTelegramSink(bot, 0).Deliver(context.Background(), people.list[2:], Notice{Title: "x"}))
	assert.Empty(t, bot.chats)
}
