package app

import (
	"context"
	"log/slog"

	"github.com/hitoshi/staybook/internal/metrics"
)

// AuthStateSource は認証状態のストリームを提供する。auth.Manager が満たす。
type AuthStateSource interface {
	Subscribe() (<-chan bool, func())
}

// Resetter はユーザー単位のキャッシュを破棄する。places.Service と bookings.Service が満たす。
type Resetter interface {
	Reset()
}

// watchAuthState は認証状態を監視し、Anonymousを観測するたびにキャッシュを破棄する。
// 直前に観測した状態がAuthenticatedだった場合はセッション終了としてログとメトリクスを記録する。
// コンテキストのキャンセルまたはストリームのクローズで終了する。
func watchAuthState(
	ctx context.Context,
	source AuthStateSource,
	logger *slog.Logger,
	mc metrics.MetricsCollector,
	caches ...Resetter,
) {
	states, cancel := source.Subscribe()
	defer cancel()

	authenticated := false
	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-states:
			if !ok {
				return
			}
			if !state {
				for _, c := range caches {
					c.Reset()
				}
				if authenticated {
					logger.Info("session ended, cached collections cleared")
					mc.RecordSessionEvent(metrics.SessionEventCachesReset)
				}
			}
			authenticated = state
		}
	}
}
