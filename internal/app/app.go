// Package app はアプリケーションの初期化と起動を提供する。
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/hitoshi/staybook/internal/auth"
	"github.com/hitoshi/staybook/internal/bookings"
	"github.com/hitoshi/staybook/internal/config"
	"github.com/hitoshi/staybook/internal/database"
	"github.com/hitoshi/staybook/internal/handler"
	"github.com/hitoshi/staybook/internal/images"
	"github.com/hitoshi/staybook/internal/logger"
	"github.com/hitoshi/staybook/internal/metrics"
	"github.com/hitoshi/staybook/internal/middleware"
	"github.com/hitoshi/staybook/internal/places"
	"github.com/hitoshi/staybook/internal/remote"
	"github.com/hitoshi/staybook/internal/security"
	"github.com/hitoshi/staybook/internal/worker/refresh"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. LOG_LEVELを反映する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("session_store", cfg.SessionStore),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// 全依存関係をワイヤリングし、保存済みセッションの復元を試みてからHTTPサーバーを起動する。
// コンテキストがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	log := slog.Default()

	// 1. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 2. 認証情報の保存先
	store, closeStore, err := openKVStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer closeStore()

	// 3. 外部通信（リモートAPIへの呼び出しは1つのリミッターを共有する）
	limiter := rate.NewLimiter(rate.Limit(cfg.APIRateLimit), cfg.APIRateBurst)
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	urlGuard := security.NewURLGuard()
	sanitizer := security.NewTextSanitizer()

	// 4. セッション
	provider := auth.NewPasswordProvider(auth.PasswordProviderConfig{
		AuthURL:    cfg.AuthURL,
		APIKey:     cfg.APIKey,
		HTTPClient: httpClient,
		Limiter:    limiter,
		Metrics:    collector,
	}, log)
	manager := auth.NewManager(provider, store, log, collector)
	defer manager.Close()

	// 5. リソースキャッシュ
	client := remote.NewClient(httpClient, cfg.APIURL, limiter, log, collector)
	placeService := places.NewService(client, manager, urlGuard, sanitizer, log, collector)
	defer placeService.Close()
	bookingService := bookings.NewService(client, manager, sanitizer, log, collector)
	defer bookingService.Close()

	uploader := images.NewUploader(images.Config{
		Endpoint:    cfg.UploadURL,
		MaxSize:     cfg.ImageMaxSize,
		HTTPClient:  httpClient,
		FetchClient: urlGuard.NewSafeClient(cfg.HTTPTimeout),
		Limiter:     limiter,
		Metrics:     collector,
	}, manager, urlGuard, log)

	// 6. セッション監視と保存済みセッションの復元
	go watchAuthState(ctx, manager, log, collector, placeService, bookingService)

	restored, err := manager.AutoLogin(ctx)
	if err != nil {
		log.Warn("failed to restore session", slog.String("error", err.Error()))
	}
	if restored {
		if err := refreshNow(ctx, placeService, bookingService); err != nil {
			log.Warn("initial fetch failed", slog.String("error", err.Error()))
		}
	}

	// 7. バックグラウンド再取得
	scheduler := refresh.NewScheduler(manager, log,
		refresh.Target{Name: places.Collection, Fetch: func(ctx context.Context) error {
			_, err := placeService.FetchPlaces(ctx)
			return err
		}},
		refresh.Target{Name: bookings.Collection, Fetch: func(ctx context.Context) error {
			_, err := bookingService.FetchBookings(ctx)
			return err
		}},
	)
	go scheduler.Start(ctx, cfg.RefreshInterval)

	// 8. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(), log)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            log,
		Session:           manager,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		AuthService:       manager,
		PlaceService:      placeService,
		BookingService:    bookingService,
		ImageUploader:     uploader,
		ImageMaxSize:      cfg.ImageMaxSize,
		Metrics:           metrics.Handler(registry),
	})

	// 9. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	}

	log.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("API server stopped gracefully")
	return nil
}

// refreshNow は復元直後に両方のコレクションを1回取得する。
func refreshNow(ctx context.Context, placeService *places.Service, bookingService *bookings.Service) error {
	_, placeErr := placeService.FetchPlaces(ctx)
	_, bookingErr := bookingService.FetchBookings(ctx)
	return errors.Join(placeErr, bookingErr)
}

// runMigrate はセッション保存用テーブルのマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return errors.New("migrate requires DATABASE_URL")
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
