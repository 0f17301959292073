package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/staybook/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	Session           middleware.SessionReader
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 認証
	AuthService SessionService

	// リソース
	PlaceService   PlaceService
	BookingService BookingService
	ImageUploader  ImageUploader
	ImageMaxSize   int64

	// 運用
	Metrics http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → RequireSession → RateLimit(Write)
//
// 認証ルート（/auth/*）とヘルスチェックはセッション不要。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.Logger)
	placeHandler := NewPlaceHandler(deps.PlaceService, deps.Logger)
	bookingHandler := NewBookingHandler(deps.BookingService, deps.PlaceService, deps.Logger)
	imageHandler := NewImageHandler(deps.ImageUploader, deps.ImageMaxSize, deps.Logger)

	// --- セッション不要のルート ---

	r.Get("/health", Health)
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", authHandler.Login)
		r.Post("/signup", authHandler.Signup)
		r.Post("/logout", authHandler.Logout)
		r.Post("/resume", authHandler.Resume)
		r.Get("/me", authHandler.Me)
	})

	// --- セッションが必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewRequireSessionMiddleware(deps.Session))
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.WriteMiddleware())
		}

		r.Route("/api/places", func(r chi.Router) {
			r.Get("/", placeHandler.ListPlaces)
			r.Post("/", placeHandler.CreatePlace)
			r.Post("/refresh", placeHandler.RefreshPlaces)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", placeHandler.GetPlace)
				r.Put("/", placeHandler.UpdatePlace)
			})
		})

		r.Route("/api/bookings", func(r chi.Router) {
			r.Get("/", bookingHandler.ListBookings)
			r.Post("/", bookingHandler.CreateBooking)
			r.Post("/refresh", bookingHandler.RefreshBookings)
			r.Delete("/{id}", bookingHandler.CancelBooking)
		})

		r.Post("/api/images", imageHandler.UploadImage)
	})

	return r
}

// Health はプロセスの生存確認に応答する。
// GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
