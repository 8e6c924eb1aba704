// Package notify delivers fire-and-forget notices to users. Publishing never
// blocks the caller: notices are queued and a single worker resolves the
// recipients and hands them to every sink.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/Spok95/stockdesk/internal/domain/users"
	"github.com/Spok95/stockdesk/internal/infra/metrics"
)

type Kind string

const (
	KindTransactionPending Kind = "transaction_pending"
	KindTransactionDecided Kind = "transaction_decided"
	KindStocktakingDone    Kind = "stocktaking_completed"
)

// Notice is addressed to every user holding one of Roles plus the users in UserIDs.
type Notice struct {
	Kind    Kind
	Title   string
	Body    string
	Roles   []users.Role
	UserIDs []int64
	RefID   int64
}

// Sink delivers one notice to the resolved recipients.
type Sink interface {
	Deliver(ctx context.Context, to []users.User, n Notice) error
}

// Directory resolves recipients.
type Directory interface {
	GetByID(ctx context.Context, id int64) (*users.User, error)
	ListByRoles(ctx context.Context, roles ...users.Role) ([]users.User, error)
}

const deliverTimeout = 10 * time.Second

type Dispatcher struct {
	queue chan Notice
	dir   Directory
	sinks []Sink
	log   *slog.Logger
	m     *metrics.Metrics
}

func NewDispatcher(dir Directory, log *slog.Logger, m *metrics.Metrics, queueSize int, sinks ...Sink) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Dispatcher{
		queue: make(chan Notice, queueSize),
		dir:   dir,
		sinks: sinks,
		log:   log,
		m:     m,
	}
}

// Publish queues n. When the queue is full the notice is dropped.
func (d *Dispatcher) Publish(n Notice) {
	select {
	case d.queue <- n:
	default:
		d.m.NotificationsDropped.Inc()
		d.log.Warn("notification dropped, queue full", "kind", n.Kind, "ref_id", n.RefID)
	}
}

// Run delivers queued notices until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-d.queue:
			d.deliver(ctx, n)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, n Notice) {
	ctx, cancel := context.WithTimeout(ctx, deliverTimeout)
	defer cancel()

	to, err := d.recipients(ctx, n)
	if err != nil {
		d.m.NotificationsFailed.Inc()
		d.log.Error("resolve recipients", "kind", n.Kind, "ref_id", n.RefID, "err", err)
		return
	}
	for _, s := range d.sinks {
		if err := s.Deliver(ctx, to, n); err != nil {
			d.m.NotificationsFailed.Inc()
			d.log.Error("notification failed", "kind", n.Kind, "ref_id", n.RefID, "err", err)
		}
	}
}

// recipients resolves role members plus UserIDs. An id that cannot be resolved is skipped.
func (d *Dispatcher) recipients(ctx context.Context, n Notice) ([]users.User, error) {
	var out []users.User
	seen := map[int64]bool{}
	if len(n.Roles) > 0 {
		byRole, err := d.dir.ListByRoles(ctx, n.Roles...)
		if err != nil {
			return nil, err
		}
		for _, u := range byRole {
			seen[u.ID] = true
			out = append(out, u)
		}
	}
	for _, id := range n.UserIDs {
		if seen[id] {
			continue
		}
		u, err := d.dir.GetByID(ctx, id)
		if err != nil {
			d.log.Warn("skip recipient", "kind", n.Kind, "ref_id", n.RefID, "user_id", id, "err", err)
			continue
		}
		seen[id] = true
		out = append(out, *u)
	}
	return out, nil
}

// LogSink writes every notice to the structured log.
type LogSink struct {
	Log *slog.Logger
}

func (s LogSink) Deliver(_ context.Context, to []users.User, n Notice) error {
	ids := make([]int64, 0, len(to))
	for _, u := range to {
		ids = append(ids, u.ID)
	}
	s.Log.Info("notice", "kind", n.Kind, "title", n.Title, "ref_id", n.RefID, "recipients", ids)
	return nil
}
