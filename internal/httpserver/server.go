package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/Carnacky79/energy-optimizer-v2/internal/accounts"
	"github.com/Carnacky79/energy-optimizer-v2/internal/analytics"
	"github.com/Carnacky79/energy-optimizer-v2/internal/blob"
	"github.com/Carnacky79/energy-optimizer-v2/internal/config"
	"github.com/Carnacky79/energy-optimizer-v2/internal/quota"
	"github.com/Carnacky79/energy-optimizer-v2/internal/reports"
	"github.com/Carnacky79/energy-optimizer-v2/internal/storage"
	"github.com/Carnacky79/energy-optimizer-v2/internal/storage/memory"
	"github.com/Carnacky79/energy-optimizer-v2/internal/storage/postgres"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server представляет HTTP сервер
type Server struct {
	config         *config.Config
	mux            *http.ServeMux
	storage        storage.Storage
	storageMode    string
	blobs          blob.Store
	blobMode       string
	events         *analytics.Emitter
	authMiddleware *accounts.Middleware
}

// New создаёт новый HTTP сервер
func New(cfg *config.Config) *Server {
	s := &Server{
		config: cfg,
		mux:    http.NewServeMux(),
	}

	// Инициализируем storage
	s.initStorage()
	s.initBlobStore()
	s.initEvents()

	// Регистрируем маршруты
	s.routes()
	return s
}

// initStorage инициализирует storage (Memory или Postgres)
func (s *Server) initStorage() {
	if s.config.DatabaseURL == "" {
		log.Println("INFO db: DATABASE_URL not set, using in-memory storage")
		s.storage = memory.New()
		s.storageMode = "memory"
		return
	}

	log.Println("INFO db: connecting to PostgreSQL...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pgStorage, err := postgres.New(ctx, s.config.DatabaseURL)
	if err != nil {
		log.Printf("WARN db: PostgreSQL connection failed: %v", err)
		log.Println("WARN db: fallback to in-memory storage")
		s.storage = memory.New()
		s.storageMode = "memory"
		return
	}
	log.Println("INFO db: PostgreSQL connected")
	s.storage = pgStorage
	s.storageMode = "postgres"
}

// initBlobStore поднимает хранилище гостевых слотов
func (s *Server) initBlobStore() {
	log.Printf("INFO blob: initializing guest store (BLOB_MODE=%s)", s.config.Blob.Mode)
	store, mode, err := blob.NewBlobStore(s.config.Blob, log.Default())
	if err != nil {
		log.Fatalf("FATAL blob: failed to initialize guest store: %v", err)
	}
	log.Printf("INFO blob: guest blob mode: %s", mode)
	s.blobs = store
	s.blobMode = mode
}

func (s *Server) initEvents() {
	sinks := []analytics.Sink{analytics.LogSink{Logger: log.Default()}}
	if s.storageMode == "postgres" {
		sinks = append(sinks, analytics.StorageSink{Store: s.storage})
	}
	s.events = analytics.NewEmitter(s.config.AnalyticsBuffer, log.Default(), sinks...)
}

// routes регистрирует маршруты
func (s *Server) routes() {
	// Health check (no auth required)
	s.mux.HandleFunc("/healthz", s.handleHealthz)

	// Reports API
	guests := reports.NewGuestStore(s.blobs, time.Duration(s.config.Guest.TTLHours)*time.Hour)
	checker := quota.NewPlanChecker(s.storage, s.config.Quota)
	reportsService, err := reports.NewService(s.storage, guests, checker, s.events, reports.Options{
		PublicBaseURL: s.config.PublicBaseURL,
		PageSizeMax:   s.config.ReportsPageSizeMax,
		SnowflakeNode: s.config.SnowflakeNode,
		GuestMax:      s.config.Guest.MaxReports,
	})
	if err != nil {
		log.Fatalf("FATAL reports: %v", err)
	}
	reports.NewHandlers(reportsService).Register(s.mux)

	// Auth API
	accountsService := accounts.NewService(s.config, s.storage, reportsService, s.events)
	accounts.NewHandlers(accountsService).Register(s.mux)
	s.authMiddleware = accounts.NewMiddleware(accountsService)
}

// Handler builds the middleware chain (outermost first):
// RequestID → RealIP → Logger → Recoverer → CORS → Rate Limit → Auth → Guest session → Router
func (s *Server) Handler() http.Handler {
	var handler http.Handler = s.mux
	handler = GuestSessionMiddleware(handler)
	handler = s.authMiddleware.OptionalAuth(handler)
	handler = RateLimitMiddleware(s.config, handler)
	handler = CORSMiddleware(s.config, handler)

	return chi.Chain(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		middleware.Timeout(30*time.Second),
	).Handler(handler)
}

// handleHealthz возвращает статус сервера
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"storage": s.storageMode,
		"blob":    s.blobMode,
	})
}

// Start запускает HTTP сервер и блокируется до отмены ctx
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("Сервер запущен на http://localhost%s\n", addr)
	log.Printf("Health check: http://localhost%s/healthz\n", addr)
	log.Printf("Reports API: http://localhost%s/v1/reports\n", addr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Println("INFO http: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close дренирует аналитику и закрывает хранилища
func (s *Server) Close() error {
	s.events.Close()

	if c, ok := s.blobs.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.Printf("WARN blob: close failed: %v", err)
		}
	}
	if s.storage != nil {
		return s.storage.Close()
	}
	return nil
}
