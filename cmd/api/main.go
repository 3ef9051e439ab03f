package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"github.com/midrand-elite/meg-services/internal/auth"
	"github.com/midrand-elite/meg-services/internal/config"
	"github.com/midrand-elite/meg-services/internal/db"
	"github.com/midrand-elite/meg-services/internal/handlers"
	"github.com/midrand-elite/meg-services/internal/logger"
	"github.com/midrand-elite/meg-services/internal/realtime"
	"github.com/midrand-elite/meg-services/internal/requests"
	"github.com/midrand-elite/meg-services/internal/session"
	"github.com/midrand-elite/meg-services/internal/storage"
)

// Multipart bodies carry up to this many photos plus the form fields.
const maxPhotosBody = 10

func newBucket(ctx context.Context, cfg config.Config, lg *zap.Logger) (storage.Bucket, error) {
	var b storage.Bucket
	switch cfg.StorageDriver {
	case "firebase":
		fb, err := storage.NewFirebaseBucket(ctx, cfg.FirebaseCredentials, cfg.FirebaseBucket)
		if err != nil {
			return nil, err
		}
		b = fb
	default:
		b = storage.NewLocalBucket(cfg.UploadDir, cfg.AppBaseURL)
	}
	lg.Info("photo storage ready", zap.String("driver", cfg.StorageDriver))
	return storage.NewBreakerBucket(b, lg), nil
}

func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	lg, err := logger.New(cfg.AppEnv)
	if err != nil {
		log.Fatal(err)
	}
	defer lg.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb, err := db.Connect(cfg.DBDSN, cfg.AppEnv == "dev", lg)
	if err != nil {
		lg.Fatal("database", zap.Error(err))
	}
	defer db.Close(gdb)

	if err := db.Migrate(gdb); err != nil {
		lg.Fatal("migrate", zap.Error(err))
	}

	rdb, err := realtime.NewRedis(&cfg, lg)
	if err != nil {
		lg.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	bus := realtime.NewBus(rdb, lg)

	hub := realtime.NewHub(lg)
	hubStop := make(chan struct{})
	go hub.Run(hubStop)
	defer close(hubStop)

	provider := auth.NewProvider(
		auth.NewGormIdentities(gdb),
		auth.NewRedisDenylist(rdb),
		cfg.JWTSecret,
		cfg.JWTExpiresMin,
		lg,
	)
	provider.SetBroadcaster(bus)

	sessions := session.NewManager(provider, session.NewGormProfiles(gdb), lg)

	bucket, err := newBucket(ctx, cfg, lg)
	if err != nil {
		lg.Fatal("storage", zap.Error(err))
	}

	svc := requests.NewService(requests.NewGormRepository(gdb), requests.Options{
		Bucket:            bucket,
		UploadConcurrency: cfg.UploadConcurrency,
		MaxPhotoBytes:     cfg.MaxPhotoBytes,
		Events:            hub,
		Publisher:         bus,
	}, lg)

	go func() {
		err := bus.Listen(ctx, realtime.BusHandlers{
			RequestsChanged: func(string) { svc.Feed().Notify() },
			SignOut:         provider.HandleSignOut,
		})
		if err != nil {
			lg.Error("bus stopped", zap.Error(err))
		}
	}()

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(lg),
		BodyLimit:    int(cfg.MaxPhotoBytes)*maxPhotosBody + 1<<20,
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		ExposeHeaders:    "Content-Length",
		AllowCredentials: true,
	}))

	app.Get("/health/live", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})
	app.Get("/health/ready", func(c *fiber.Ctx) error {
		sqlDB, err := gdb.DB()
		if err != nil || sqlDB.PingContext(c.UserContext()) != nil {
			return c.Status(fiber.StatusServiceUnavailable).SendString("Database not ready")
		}
		if err := rdb.Ping(c.UserContext()).Err(); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).SendString("Cache not ready")
		}
		return c.SendString("Ready")
	})

	app.Get("/metrics", func(c *fiber.Ctx) error {
		handler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
		handler(c.Context())
		return nil
	})

	if cfg.StorageDriver != "firebase" {
		app.Static("/uploads", cfg.UploadDir)
	}

	authH := &handlers.AuthHandler{
		Sessions:     sessions,
		Expires:      cfg.JWTExpiresMin,
		SecureCookie: cfg.AppEnv != "dev",
		Log:          lg,
	}
	routes := &handlers.Routes{
		Auth:     authH,
		Catalog:  &handlers.CatalogHandler{},
		Requests: &handlers.RequestHandler{Svc: svc, Log: lg},
		Admin:    &handlers.AdminHandler{Svc: svc},
		WS:       &handlers.RequestsWSHandler{Sessions: sessions, Svc: svc, Hub: hub, Log: lg},
	}
	if cfg.GoogleEnabled() {
		routes.Google = &handlers.GoogleOAuthHandler{
			Auth:            authH,
			GoogleClientID:  cfg.GoogleClientID,
			GoogleSecret:    cfg.GoogleSecret,
			GoogleRedirect:  cfg.GoogleRedirect,
			FrontendBaseURL: cfg.FrontendBaseURL,
		}
	}
	routes.Mount(app)

	go func() {
		<-ctx.Done()
		lg.Info("shutting down")
		_ = app.ShutdownWithTimeout(10 * time.Second)
	}()

	lg.Info("listening", zap.String("port", cfg.AppPort))
	if err := app.Listen(":" + cfg.AppPort); err != nil {
		lg.Error("server stopped", zap.Error(err))
	}
}
