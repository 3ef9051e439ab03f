package requests

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/midrand-elite/meg-services/internal/metrics"
	"github.com/midrand-elite/meg-services/internal/models"
)

// Snapshot is the full list visible to a subscriber at one point in time.
type Snapshot struct {
	Seq      uint64                  `json:"seq"`
	Requests []models.ServiceRequest `json:"requests"`
	Loading  bool                    `json:"loading"`
	Err      error                   `json:"-"`
}

// Lister runs the role-filtered query behind a subscription.
type Lister interface {
	List(ctx context.Context, actor *models.User) ([]models.ServiceRequest, error)
}

// Feed re-runs every open subscription's query when Notify is called.
type Feed struct {
	src Lister
	log *zap.Logger

	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

func NewFeed(src Lister, log *zap.Logger) *Feed {
	return &Feed{src: src, log: log, subs: make(map[*Subscription]struct{})}
}

// Subscription delivers ordered snapshots on C until Close is called or its
// context ends. C holds one snapshot; an unread one is replaced by the next.
type Subscription struct {
	C <-chan Snapshot

	ch     chan Snapshot
	kick   chan struct{}
	user   *models.User
	feed   *Feed
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	last   []models.ServiceRequest
	seq    uint64
	primed bool
}

// Subscribe opens a live query for user. The first snapshot is a loading
// marker with an empty list, followed by the first result set.
func (f *Feed) Subscribe(ctx context.Context, user *models.User) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan Snapshot, 1)
	s := &Subscription{
		C:      ch,
		ch:     ch,
		kick:   make(chan struct{}, 1),
		user:   user,
		feed:   f,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		last:   []models.ServiceRequest{},
	}

	f.mu.Lock()
	f.subs[s] = struct{}{}
	f.mu.Unlock()
	metrics.ActiveSubscriptions.Inc()

	go s.run()
	return s
}

// Notify asks every subscription to re-query.
func (f *Feed) Notify() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for s := range f.subs {
		select {
		case s.kick <- struct{}{}:
		default:
		}
	}
}

func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *Feed) remove(s *Subscription) {
	f.mu.Lock()
	if _, ok := f.subs[s]; ok {
		delete(f.subs, s)
		metrics.ActiveSubscriptions.Dec()
	}
	f.mu.Unlock()
}

// Close stops the subscription and waits for its goroutine. C is closed.
func (s *Subscription) Close() {
	s.cancel()
	<-s.done
}

func (s *Subscription) run() {
	defer func() {
		s.feed.remove(s)
		close(s.ch)
		close(s.done)
	}()

	s.seq++
	select {
	case s.ch <- Snapshot{Seq: s.seq, Requests: []models.ServiceRequest{}, Loading: true}:
	case <-s.ctx.Done():
		return
	}

	s.refresh()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.kick:
			s.refresh()
		}
	}
}

func (s *Subscription) refresh() {
	list, err := s.feed.src.List(s.ctx, s.user)
	if s.ctx.Err() != nil {
		return
	}

	s.seq++
	snap := Snapshot{Seq: s.seq}
	if err != nil {
		uid := ""
		if s.user != nil {
			uid = s.user.ID.String()
		}
		s.feed.log.Error("request feed query failed", zap.String("uid", uid), zap.Error(err))
		snap.Requests = s.last
		snap.Err = err
	} else {
		if list == nil {
			list = []models.ServiceRequest{}
		}
		s.last = list
		snap.Requests = list
	}
	s.deliver(snap)
}

// deliver replaces any unread snapshot with snap. The first result set waits
// for the loading marker to be read instead.
func (s *Subscription) deliver(snap Snapshot) {
	if !s.primed {
		s.primed = true
		select {
		case s.ch <- snap:
		case <-s.ctx.Done():
		}
		return
	}
	for {
		select {
		case s.ch <- snap:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}
