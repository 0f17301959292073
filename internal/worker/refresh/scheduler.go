// Package refresh はログイン中ユーザーの宿泊場所と予約を定期的に再取得する。
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Target は再取得対象のコレクション。
type Target struct {
	Name  string
	Fetch func(ctx context.Context) error
}

// SessionChecker は有効なセッションがあるかを返す。auth.Manager が満たす。
type SessionChecker interface {
	IsAuthenticated() bool
}

// Scheduler は一定間隔で各Targetを並行に再取得する。
// 未ログインの間は何もしない。通信失敗が続く間は指数バックオフで間引く。
type Scheduler struct {
	targets []Target
	session SessionChecker
	logger  *slog.Logger
	now     func() time.Time

	mu                sync.Mutex
	consecutiveErrors int
	resumeAt          time.Time
}

// NewScheduler はSchedulerを生成する。
func NewScheduler(session SessionChecker, logger *slog.Logger, targets ...Target) *Scheduler {
	return &Scheduler{
		targets: targets,
		session: session,
		logger:  logger,
		now:     time.Now,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("refresh scheduler started", slog.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("refresh scheduler stopped")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("refresh cycle failed", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce は全Targetを1回再取得する。
// 未ログイン中またはバックオフ期間中は何もせずnilを返す。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if !s.session.IsAuthenticated() {
		s.logger.Debug("refresh skipped: no active session")
		return nil
	}

	s.mu.Lock()
	if now := s.now(); now.Before(s.resumeAt) {
		s.mu.Unlock()
		s.logger.Debug("refresh skipped: backing off", slog.Time("resume_at", s.resumeAt))
		return nil
	}
	s.mu.Unlock()

	start := time.Now()
	errs := make([]error, len(s.targets))

	var wg sync.WaitGroup
	for i, target := range s.targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := target.Fetch(ctx); err != nil {
				errs[i] = fmt.Errorf("%s: %w", target.Name, err)
			}
		}()
	}
	wg.Wait()

	backoff := false
	for _, err := range errs {
		switch Classify(err) {
		case OutcomeBackoff:
			backoff = true
		case OutcomeRejected:
			s.logger.Warn("remote rejected session token", slog.String("error", err.Error()))
		}
	}

	s.mu.Lock()
	if backoff {
		delay := CalculateBackoff(s.consecutiveErrors)
		s.consecutiveErrors++
		s.resumeAt = s.now().Add(delay)
		s.logger.Warn("refresh backing off",
			slog.Int("consecutive_errors", s.consecutiveErrors),
			slog.Duration("delay", delay),
		)
	} else {
		s.consecutiveErrors = 0
		s.resumeAt = time.Time{}
	}
	s.mu.Unlock()

	s.logger.Info("refresh cycle completed",
		slog.Int("target_count", len(s.targets)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return errors.Join(errs...)
}
