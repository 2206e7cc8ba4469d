// Package api exposes the marketplace over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/raine/carhunt/internal/config"
	"github.com/raine/carhunt/internal/inventory"
	"github.com/raine/carhunt/internal/llm"
	"github.com/raine/carhunt/internal/storage"
	"github.com/raine/carhunt/internal/testdrive"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 10 * time.Second

// UserStore upserts users seen in auth tokens.
type UserStore interface {
	UpsertUser(ctx context.Context, user *storage.User) (*storage.User, error)
}

type Deps struct {
	Users      UserStore
	Extractor  llm.CarExtractor
	Inventory  *inventory.Service
	TestDrives *testdrive.Service
}

// Server is the HTTP API.
type Server struct {
	cfg        *config.Config
	users      UserStore
	extractor  llm.CarExtractor
	inventory  *inventory.Service
	testDrives *testdrive.Service
	router     *gin.Engine
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		cfg:        cfg,
		users:      deps.Users,
		extractor:  deps.Extractor,
		inventory:  deps.Inventory,
		testDrives: deps.TestDrives,
	}
	s.setupRouter()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) corsConfig() cors.Config {
	cc := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders: []string{"Content-Length", "X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}
	origins := s.cfg.CORSAllowedOrigins
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = origins
		cc.AllowCredentials = true
	}
	return cc
}

func (s *Server) setupRouter() {
	if s.cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.MaxMultipartMemory = s.cfg.MaxImageBytes + 1<<20
	r.Use(RequestID())
	r.Use(Logger())
	r.Use(Recovery())
	r.Use(cors.New(s.corsConfig()))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, successResponse(gin.H{"status": "ok"}))
	})

	v1 := r.Group("/api/v1")

	public := v1.Group("", s.Authenticate(false))
	{
		public.GET("/cars", s.searchCars)
		public.GET("/cars/filters", s.carFilters)
		public.GET("/cars/featured", s.featuredCars)
		public.GET("/cars/:id", s.getCar)
	}

	user := v1.Group("", s.Authenticate(true))
	{
		user.GET("/me", s.me)
		user.POST("/cars/:id/save", s.toggleSavedCar)
		user.GET("/saved-cars", s.savedCars)
		user.POST("/test-drives", s.bookTestDrive)
		user.GET("/reservations", s.reservations)
		user.POST("/test-drives/:id/cancel", s.cancelTestDrive)
	}

	admin := v1.Group("/admin", s.Authenticate(true), RequireAdmin())
	{
		admin.GET("/cars", s.adminListCars)
		admin.POST("/cars", s.addCar)
		admin.POST("/cars/extract", s.extractCarDetails)
		admin.PATCH("/cars/:id", s.updateCar)
		admin.DELETE("/cars/:id", s.deleteCar)
		admin.GET("/test-drives", s.adminTestDrives)
		admin.PATCH("/test-drives/:id", s.updateTestDrive)
		admin.GET("/trophies", s.trophies)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorResponse("not found"))
	})

	s.router = r
}

// Run serves HTTP until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	log.Info().Msg("shutting down http server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
