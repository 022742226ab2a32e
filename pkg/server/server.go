package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/echo/v4/health"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/robinjoseph08/golib/echo/v4/middleware/recovery"
	"github.com/uptrace/bun"
	"github.com/watchlog/watchlog/pkg/auth"
	"github.com/watchlog/watchlog/pkg/binder"
	"github.com/watchlog/watchlog/pkg/config"
	"github.com/watchlog/watchlog/pkg/entries"
	"github.com/watchlog/watchlog/pkg/errcodes"
	"github.com/watchlog/watchlog/pkg/genres"
	"github.com/watchlog/watchlog/pkg/metrics"
	"github.com/watchlog/watchlog/pkg/storage"
	"github.com/watchlog/watchlog/pkg/testutils"
	"github.com/watchlog/watchlog/pkg/viewcache"
	"golang.org/x/time/rate"
)

const imagesPath = "/images"

func New(ctx context.Context, cfg *config.Config, db *bun.DB) (*http.Server, error) {
	e := echo.New()

	b, err := binder.New()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	e.Binder = b

	e.Use(logger.Middleware())
	e.Use(recovery.Middleware())
	e.Use(middleware.CORS())
	e.Use(metrics.Middleware())

	health.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	authService := auth.NewService(db, cfg.JWTSecret, cfg.SessionTTL)
	var credentialMiddleware []echo.MiddlewareFunc
	if cfg.AuthRateLimit > 0 {
		credentialMiddleware = append(credentialMiddleware, authRateLimiter(cfg.AuthRateLimit))
	}
	authMiddleware := auth.RegisterRoutes(e, authService, credentialMiddleware...)

	objects, err := newObjectStore(e, cfg)
	if err != nil {
		return nil, err
	}

	cache, closeCache, err := newViewCache(ctx, cfg)
	if err != nil {
		return nil, err
	}

	genresGroup := e.Group("/genres")
	genresGroup.Use(authMiddleware.Authenticate)
	genres.RegisterRoutesWithGroup(genresGroup, db)

	entryService := entries.NewService(db)
	submitter := entries.NewSubmitter(entryService, objects, entries.SubmitterOptions{
		ImageFailurePolicy: cfg.ImageUploadFailurePolicy,
		Atomic:             cfg.SubmissionAtomic,
	})
	entriesGroup := e.Group("/entries")
	entriesGroup.Use(authMiddleware.Authenticate)
	entries.RegisterRoutesWithGroup(entriesGroup, entries.RouteOptions{
		Service:       entryService,
		Submitter:     submitter,
		Cache:         cache,
		ImageMaxBytes: cfg.ImageMaxBytes,
	})

	if cfg.Environment == "test" {
		testutils.RegisterRoutes(e, db, authService)
	}

	echo.NotFoundHandler = notFoundHandler
	e.HTTPErrorHandler = errcodes.NewHandler().Handle

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort),
		Handler:           e,
		ReadHeaderTimeout: 3 * time.Second,
	}
	if closeCache != nil {
		srv.RegisterOnShutdown(closeCache)
	}

	return srv, nil
}

// authRateLimiter throttles credential endpoints per client IP. perSecond is
// the sustained rate; bursts of twice that are allowed.
func authRateLimiter(perSecond float64) echo.MiddlewareFunc {
	burst := int(perSecond * 2)
	if burst < 1 {
		burst = 1
	}
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(perSecond),
		Burst:     burst,
		ExpiresIn: 3 * time.Minute,
	})
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		ErrorHandler: func(_ echo.Context, _ error) error {
			return errcodes.Forbidden("This request")
		},
		DenyHandler: func(_ echo.Context, _ string, _ error) error {
			return errcodes.TooManyRequests()
		},
	})
}

func newObjectStore(e *echo.Echo, cfg *config.Config) (storage.ObjectStore, error) {
	if cfg.StorageBackend == "bucket" {
		store, err := storage.NewBucketStore(storage.BucketConfig{
			URL:    cfg.StorageBucketURL,
			Bucket: cfg.StorageBucketName,
			APIKey: cfg.StorageBucketKey,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	}

	publicURL := cfg.StoragePublicURL
	if publicURL == "" {
		publicURL = imagesPath
	}
	store, err := storage.NewFilesystemStore(cfg.StorageDir, publicURL)
	if err != nil {
		return nil, err
	}
	e.GET(imagesPath+"/*", echo.StaticDirectoryHandler(os.DirFS(store.Dir()), false), inertImages)
	return store, nil
}

// inertImages stops browsers from running anything served under /images,
// which shares an origin with the session cookie.
func inertImages(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		h := c.Response().Header()
		h.Set("Content-Security-Policy", "default-src 'none'; sandbox")
		h.Set(echo.HeaderXContentTypeOptions, "nosniff")
		return next(c)
	}
}

// newViewCache returns a Redis-backed cache when REDIS_URL is set and an
// in-process one otherwise. The returned func closes the Redis client.
func newViewCache(ctx context.Context, cfg *config.Config) (viewcache.Cache, func(), error) {
	if cfg.RedisURL == "" {
		return viewcache.NewMemoryCache(cfg.ViewCacheTTL), nil, nil
	}

	cache, err := viewcache.NewRedisCache(ctx, cfg.RedisURL, cfg.ViewCacheTTL)
	if err != nil {
		return nil, nil, err
	}
	return cache, func() { _ = cache.Close() }, nil
}

func notFoundHandler(c echo.Context) error {
	c.SetPath("/:path")
	return errcodes.NotFound("Page")
}
