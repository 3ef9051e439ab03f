package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/midrand-elite/meg-services/internal/auth"
	"github.com/midrand-elite/meg-services/internal/models"
	"github.com/midrand-elite/meg-services/internal/realtime"
	"github.com/midrand-elite/meg-services/internal/requests"
	"github.com/midrand-elite/meg-services/internal/session"
)

type RequestsWSHandler struct {
	Sessions *session.Manager
	Svc      *requests.Service
	Hub      *realtime.Hub
	Log      *zap.Logger
}

type wsSession struct {
	Type string       `json:"type"`
	User *models.User `json:"user"`
	Home string       `json:"home"`
}

type wsRedirect struct {
	Type  string `json:"type"`
	Route string `json:"route"`
}

type wsSnapshot struct {
	Type     string        `json:"type"`
	Seq      uint64        `json:"seq"`
	Loading  bool          `json:"loading"`
	Error    string        `json:"error,omitempty"`
	Requests []requestView `json:"requests"`
}

type wsError struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type wsInbound struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// Upgrade rejects plain HTTP on the websocket route.
func (h *RequestsWSHandler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Handle streams session changes, redirects and request snapshots for one
// connection. The session may be given as ?token= or sent later as
// {"type":"auth","token":...}.
func (h *RequestsWSHandler) Handle(c *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := realtime.NewClient()
	h.Hub.RegisterClient(client)
	defer h.Hub.UnregisterClient(client)

	go realtime.WritePump(c, client, h.Log)

	feeds := &feedSwitch{
		feed: h.Svc.Feed(),
		push: client.PushJSON,
		announce: func(u *models.User) {
			uid := uuid.Nil
			if u != nil {
				uid = u.ID
			}
			h.Hub.SetUser(client, uid)
			_ = client.PushJSON(wsSession{Type: "session", User: u, Home: session.HomeRoute(u)})
		},
		log: h.Log,
	}
	defer feeds.Stop()

	nav := session.NavigatorFunc(func(route string) {
		_ = client.PushJSON(wsRedirect{Type: "redirect", Route: route})
	})
	holder := session.NewHolder(ctx, h.Sessions, nav, h.Log)
	defer holder.Close()

	holder.Subscribe(func(u *models.User) {
		feeds.Switch(ctx, u)
	})

	attach := func(tok string) {
		if err := holder.Attach(tok); err != nil {
			_ = client.PushJSON(wsError{
				Type:    "error",
				Code:    string(auth.CodeOf(err)),
				Message: auth.MessageFor(err, "Could not check your session. Try again"),
			})
		}
	}

	if tok := c.Query("token"); tok != "" {
		attach(tok)
	}

	for {
		var in wsInbound
		if err := c.ReadJSON(&in); err != nil {
			h.Log.Debug("websocket closed", zap.String("client", client.ID), zap.Error(err))
			return
		}

		switch in.Type {
		case "auth":
			attach(in.Token)
		case "signout":
			if err := holder.SignOut(ctx); err != nil {
				h.Log.Warn("websocket sign out failed", zap.Error(err))
			}
		case "pong", "ping":
		}
	}
}
