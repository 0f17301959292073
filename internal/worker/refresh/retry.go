package refresh

import (
	"errors"
	"net/http"
	"time"

	"github.com/hitoshi/staybook/internal/model"
)

// Outcome は1回の再取得結果の分類。
type Outcome int

const (
	// OutcomeOK は取得成功。
	OutcomeOK Outcome = iota
	// OutcomeSkipped はセッションが無効で取得しなかった。
	OutcomeSkipped
	// OutcomeRejected はリモートがトークンを拒否した（401/403）。
	OutcomeRejected
	// OutcomeBackoff は通信失敗や429/5xxでバックオフが必要。
	OutcomeBackoff
)

const (
	// initialBackoff は指数バックオフの初回遅延。
	initialBackoff = 30 * time.Second
	// maxBackoff は指数バックオフの最大遅延。
	maxBackoff = 10 * time.Minute
)

// Classify は再取得で返ったエラーを分類する。
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeOK
	}
	if errors.Is(err, model.ErrNotAuthenticated) {
		return OutcomeSkipped
	}

	var te *model.TransportError
	if errors.As(err, &te) {
		switch te.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return OutcomeRejected
		}
	}
	return OutcomeBackoff
}

// CalculateBackoff は連続失敗回数に基づいて指数バックオフ遅延を計算する。
// 初回30秒、2倍ずつ増加、最大10分。
func CalculateBackoff(consecutiveErrors int) time.Duration {
	delay := initialBackoff
	for i := 0; i < consecutiveErrors; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}
