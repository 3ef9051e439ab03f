package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/midrand-elite/meg-services/internal/auth"
	"github.com/midrand-elite/meg-services/internal/models"
)

// Navigator receives the route a client should show after the session changes.
type Navigator interface {
	Redirect(route string)
}

type NavigatorFunc func(route string)

func (f NavigatorFunc) Redirect(route string) { f(route) }

// Holder tracks the signed-in user of one live connection. It watches its
// token with the auth provider, publishes the combined user to subscribers on
// every change, and redirects to the user's home route.
type Holder struct {
	ctx context.Context
	mgr *Manager
	nav Navigator
	log *zap.Logger

	mu     sync.RWMutex
	token  string
	user   *models.User
	stop   func()
	subs   map[uint64]func(*models.User)
	nextID uint64
	closed bool
}

func NewHolder(ctx context.Context, mgr *Manager, nav Navigator, log *zap.Logger) *Holder {
	if nav == nil {
		nav = NavigatorFunc(func(string) {})
	}
	return &Holder{
		ctx:  ctx,
		mgr:  mgr,
		nav:  nav,
		log:  log,
		subs: make(map[uint64]func(*models.User)),
	}
}

func (h *Holder) Current() *models.User {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.user
}

func (h *Holder) IsAuthenticated() bool {
	return h.Current() != nil
}

func (h *Holder) Token() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.token
}

// Subscribe calls fn with the current user and on every later change.
func (h *Holder) Subscribe(fn func(*models.User)) func() {
	h.mu.Lock()
	h.nextID++
	key := h.nextID
	h.subs[key] = fn
	current := h.user
	h.mu.Unlock()

	fn(current)

	return func() {
		h.mu.Lock()
		delete(h.subs, key)
		h.mu.Unlock()
	}
}

// Attach switches the holder to token, dropping any previous watch. When the
// token cannot be checked because a store is down, Attach returns the error
// and the current session stays as it was.
func (h *Holder) Attach(token string) error {
	if _, err := h.mgr.Authenticate(h.ctx, token); err != nil && !auth.Terminal(err) {
		h.log.Warn("session attach failed", zap.Error(err))
		return err
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	prev := h.stop
	h.stop = nil
	h.token = token
	h.mu.Unlock()

	if prev != nil {
		prev()
	}

	stop := h.mgr.auth.Watch(h.ctx, token, func(id *auth.Identity) {
		h.onChange(token, id)
	})

	h.mu.Lock()
	if h.token == token && !h.closed {
		h.stop = stop
		stop = nil
	}
	h.mu.Unlock()

	if stop != nil {
		stop()
	}
	return nil
}

func (h *Holder) SignIn(ctx context.Context, email, password string) error {
	s, err := h.mgr.SignIn(ctx, email, password)
	if err != nil {
		return err
	}
	return h.Attach(s.Token)
}

func (h *Holder) SignUp(ctx context.Context, email, password, firstName string, role models.Role) error {
	s, err := h.mgr.SignUp(ctx, email, password, firstName, role)
	if err != nil {
		return err
	}
	return h.Attach(s.Token)
}

// SignOut revokes the current token. The watcher then publishes absence.
func (h *Holder) SignOut(ctx context.Context) error {
	token := h.Token()
	if token == "" {
		return nil
	}
	return h.mgr.SignOut(ctx, token)
}

// Close stops watching without signing out.
func (h *Holder) Close() {
	h.mu.Lock()
	h.closed = true
	stop := h.stop
	h.stop = nil
	h.subs = map[uint64]func(*models.User){}
	h.mu.Unlock()

	if stop != nil {
		stop()
	}
}

func (h *Holder) onChange(token string, id *auth.Identity) {
	var user *models.User
	if id != nil {
		u, err := h.mgr.Resolve(h.ctx, id)
		if err != nil {
			// The identity is still valid; keep whatever session is showing.
			h.log.Error("session resolve failed", zap.String("uid", id.ID.String()), zap.Error(err))
			return
		}
		user = u
	}

	h.mu.Lock()
	if h.token != token || h.closed {
		h.mu.Unlock()
		return
	}
	h.user = user
	if user == nil {
		h.token = ""
	}
	fns := make([]func(*models.User), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(user)
	}
	h.nav.Redirect(HomeRoute(user))
}
