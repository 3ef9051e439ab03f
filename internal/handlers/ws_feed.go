package handlers

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/midrand-elite/meg-services/internal/models"
	"github.com/midrand-elite/meg-services/internal/requests"
)

// feedSwitch keeps one connection's request subscription in step with its
// signed-in user. Once Switch returns, no snapshot of the previous user is
// pushed again.
type feedSwitch struct {
	feed     *requests.Feed
	push     func(v interface{}) error
	announce func(u *models.User) // runs between closing the old feed and opening the new one
	log      *zap.Logger

	switchMu sync.Mutex

	mu   sync.Mutex
	sub  *requests.Subscription
	done chan struct{}
}

func (f *feedSwitch) Switch(ctx context.Context, u *models.User) {
	f.switchMu.Lock()
	defer f.switchMu.Unlock()

	f.stop()
	if f.announce != nil {
		f.announce(u)
	}
	if u == nil || ctx.Err() != nil {
		return
	}

	sub := f.feed.Subscribe(ctx, u)
	done := make(chan struct{})

	f.mu.Lock()
	f.sub, f.done = sub, done
	f.mu.Unlock()

	go func() {
		defer close(done)
		f.pump(sub, u)
	}()
}

// Stop closes the current subscription and waits for its pump.
func (f *feedSwitch) Stop() {
	f.switchMu.Lock()
	defer f.switchMu.Unlock()
	f.stop()
}

func (f *feedSwitch) stop() {
	f.mu.Lock()
	sub, done := f.sub, f.done
	f.sub, f.done = nil, nil
	f.mu.Unlock()

	if sub != nil {
		sub.Close()
		<-done
	}
}

func (f *feedSwitch) pump(sub *requests.Subscription, u *models.User) {
	for snap := range sub.C {
		msg := wsSnapshot{
			Type:     "snapshot",
			Seq:      snap.Seq,
			Loading:  snap.Loading,
			Requests: viewsOf(u, snap.Requests),
		}
		if snap.Err != nil {
			msg.Error = "Could not refresh requests"
		}
		if err := f.push(msg); err != nil {
			f.log.Error("marshal snapshot", zap.Error(err))
		}
	}
}
