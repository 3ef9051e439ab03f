package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/midrand-elite/meg-services/internal/middleware"
	"github.com/midrand-elite/meg-services/internal/models"
)

type Routes struct {
	Auth     *AuthHandler
	Google   *GoogleOAuthHandler // nil disables Google sign-in
	Catalog  *CatalogHandler
	Requests *RequestHandler
	Admin    *AdminHandler
	WS       *RequestsWSHandler // nil disables the live feed
}

// Mount registers the /api and /ws routes on app.
func (r *Routes) Mount(app *fiber.App) {
	api := app.Group("/api")

	// public
	api.Post("/auth/register", r.Auth.Register)
	api.Post("/auth/login", r.Auth.Login)
	api.Post("/auth/logout", r.Auth.Logout)
	if r.Google != nil {
		api.Get("/auth/google/start", r.Google.GoogleStart)
		api.Get("/auth/google/callback", r.Google.GoogleCallback)
	}
	api.Get("/catalog", r.Catalog.List)

	if r.WS != nil {
		app.Use("/ws", r.WS.Upgrade)
		app.Get("/ws/requests", websocket.New(r.WS.Handle))
	}

	protected := api.Group("/", middleware.RequireSession(r.Auth.Sessions))

	protected.Get("/me", r.Auth.Me)
	protected.Get("/requests", r.Requests.List)
	protected.Get("/requests/:id", r.Requests.Get)
	protected.Post("/requests",
		middleware.RequireRoles(models.RoleClient),
		r.Requests.Create,
	)
	protected.Post("/requests/:id/accept",
		middleware.RequireRoles(models.RoleWorker),
		r.Requests.Accept,
	)
	protected.Patch("/requests/:id/status",
		middleware.RequireRoles(models.RoleWorker, models.RoleAdmin),
		r.Requests.UpdateStatus,
	)
	protected.Post("/requests/:id/cancel",
		middleware.RequireRoles(models.RoleClient, models.RoleAdmin),
		r.Requests.Cancel,
	)

	protected.Get("/admin/stats",
		middleware.RequireRoles(models.RoleAdmin),
		r.Admin.Stats,
	)
}
