package realtime

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	ChannelRequestsChanged = "meg:requests:changed"
	ChannelSignOut         = "meg:auth:signout"
)

type busMessage struct {
	Origin string `json:"origin"`
	ID     string `json:"id"`
}

// BusHandlers receive events published by other instances.
type BusHandlers struct {
	RequestsChanged func(id string)
	SignOut         func(jti string)
}

// Bus fans request changes and sign-outs out over Redis pub/sub. Messages
// published by this instance are skipped on receipt.
type Bus struct {
	rdb    *redis.Client
	origin string
	log    *zap.Logger
}

func NewBus(rdb *redis.Client, log *zap.Logger) *Bus {
	return &Bus{rdb: rdb, origin: uuid.NewString(), log: log}
}

func (b *Bus) publish(ctx context.Context, channel, id string) error {
	payload, err := json.Marshal(busMessage{Origin: b.origin, ID: id})
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, channel, payload).Err()
}

func (b *Bus) PublishRequestChanged(ctx context.Context, id uuid.UUID) error {
	return b.publish(ctx, ChannelRequestsChanged, id.String())
}

func (b *Bus) PublishSignOut(ctx context.Context, jti string) error {
	return b.publish(ctx, ChannelSignOut, jti)
}

// Listen dispatches messages to h until ctx ends.
func (b *Bus) Listen(ctx context.Context, h BusHandlers) error {
	sub := b.rdb.Subscribe(ctx, ChannelRequestsChanged, ChannelSignOut)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	b.log.Info("bus listening", zap.String("origin", b.origin))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.dispatch(msg.Channel, msg.Payload, h)
		}
	}
}

func (b *Bus) dispatch(channel, payload string, h BusHandlers) {
	var m busMessage
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		b.log.Warn("bad bus payload", zap.String("channel", channel), zap.Error(err))
		return
	}
	if m.Origin == b.origin {
		return
	}

	switch channel {
	case ChannelRequestsChanged:
		if h.RequestsChanged != nil {
			h.RequestsChanged(m.ID)
		}
	case ChannelSignOut:
		if h.SignOut != nil {
			h.SignOut(m.ID)
		}
	}
}
