// Package auth はパスワード認証とユーザーセッションのライフサイクルを管理する。
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/staybook/internal/metrics"
	"github.com/hitoshi/staybook/internal/model"
	"github.com/hitoshi/staybook/internal/observable"
	"github.com/hitoshi/staybook/internal/repository"
)

// AuthDataKey は永続化ストア上の認証情報のキー。
const AuthDataKey = "authData"

// storedAuthData は永続化される認証情報の形式。
type storedAuthData struct {
	UserID              string    `json:"userId"`
	Token               string    `json:"token"`
	TokenExpirationDate time.Time `json:"tokenExpirationDate"`
	Email               string    `json:"email"`
}

// stopper は期限タイマーの停止操作。*time.Timer が満たす。
type stopper interface {
	Stop() bool
}

// Manager は現在のユーザーセッションを保持する。
// 状態は Anonymous（identityなし）、Authenticated（有効期限内）、
// Expired（identityは残るがトークン期限切れ）のいずれか。
// 期限切れはアクセサ呼び出しのたびに判定し、期限タイマーの発火でログアウトする。
type Manager struct {
	provider CredentialProvider
	store    repository.KeyValueStore
	logger   *slog.Logger
	metrics  metrics.MetricsCollector

	// テスト用に差し替え可能な時計とタイマー
	now       func() time.Time
	afterFunc func(d time.Duration, f func()) stopper

	mu         sync.Mutex
	identity   *model.Identity
	timer      stopper
	generation uint64

	// 状態変更と同じ m.mu の区間で配信し、配信順を状態遷移の順に揃える
	authenticated *observable.Subject[bool]
}

// NewManager はManagerを生成する。初期状態はAnonymous。
func NewManager(
	provider CredentialProvider,
	store repository.KeyValueStore,
	logger *slog.Logger,
	mc metrics.MetricsCollector,
) *Manager {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Manager{
		provider: provider,
		store:    store,
		logger:   logger,
		metrics:  mc,
		now:      time.Now,
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
		authenticated: observable.NewSubject(false),
	}
}

// Login は既存ユーザーとしてログインする。
// 失敗時は分類済みエラーを返し、現在のセッションは変更しない。
func (m *Manager) Login(ctx context.Context, email, password string) error {
	creds, err := m.provider.SignIn(ctx, email, password)
	if err != nil {
		return m.rejected("login", err)
	}
	m.establish(ctx, creds, metrics.SessionEventLogin)
	return nil
}

// Signup は新規ユーザーを登録し、そのままログイン状態にする。
func (m *Manager) Signup(ctx context.Context, email, password string) error {
	creds, err := m.provider.SignUp(ctx, email, password)
	if err != nil {
		return m.rejected("signup", err)
	}
	m.establish(ctx, creds, metrics.SessionEventSignup)
	return nil
}

func (m *Manager) rejected(action string, err error) error {
	if errors.Is(err, model.ErrCredential) {
		m.metrics.RecordSessionEvent(metrics.SessionEventRejected)
	}
	m.logger.Warn("authentication failed",
		slog.String("action", action),
		slog.String("error", err.Error()),
	)
	return fmt.Errorf("failed to %s: %w", action, err)
}

// establish は認証結果からセッションを確立し、期限タイマーを設定して永続化する。
// 永続化の失敗はログに残すのみで、メモリ上のセッションは有効のまま。
func (m *Manager) establish(ctx context.Context, creds *Credentials, event string) {
	ident := model.Identity{
		UserID:      creds.UserID,
		Email:       creds.Email,
		Token:       creds.Token,
		TokenExpiry: m.now().Add(creds.ExpiresIn),
	}

	m.mu.Lock()
	m.install(ident, creds.ExpiresIn)
	m.authenticated.Publish(true)
	m.mu.Unlock()

	m.metrics.RecordSessionEvent(event)
	m.logger.Info("session established",
		slog.String("event", event),
		slog.String("user_id", ident.UserID),
		slog.Time("token_expiry", ident.TokenExpiry),
	)

	if err := m.persist(ctx, ident); err != nil {
		m.logger.Error("failed to persist auth data",
			slog.String("user_id", ident.UserID),
			slog.String("error", err.Error()),
		)
	}
}

// install はidentityを置き換え、既存タイマーを止めてから新しいタイマーを設定する。
// m.mu を保持した状態で呼び出すこと。
func (m *Manager) install(ident model.Identity, lifetime time.Duration) {
	m.identity = &ident
	m.generation++
	gen := m.generation

	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = m.afterFunc(lifetime, func() {
		m.expire(gen)
	})
}

func (m *Manager) persist(ctx context.Context, ident model.Identity) error {
	data, err := json.Marshal(storedAuthData{
		UserID:              ident.UserID,
		Token:               ident.Token,
		TokenExpirationDate: ident.TokenExpiry.UTC(),
		Email:               ident.Email,
	})
	if err != nil {
		return fmt.Errorf("failed to encode auth data: %w", err)
	}
	if err := m.store.Set(ctx, AuthDataKey, string(data)); err != nil {
		return fmt.Errorf("failed to store auth data: %w", err)
	}
	return nil
}

// expire は期限タイマーから呼ばれる。世代が一致しない古いタイマーは無視する。
func (m *Manager) expire(gen uint64) {
	m.mu.Lock()
	if gen != m.generation || m.identity == nil {
		m.mu.Unlock()
		return
	}
	userID := m.identity.UserID
	m.clear()
	m.authenticated.Publish(false)
	m.mu.Unlock()

	m.metrics.RecordSessionEvent(metrics.SessionEventExpired)
	m.logger.Info("session expired", slog.String("user_id", userID))

	if err := m.store.Remove(context.Background(), AuthDataKey); err != nil {
		m.logger.Error("failed to remove auth data",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}

// clear はタイマーを止めてidentityを破棄する。m.mu を保持した状態で呼び出すこと。
func (m *Manager) clear() {
	m.generation++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.identity = nil
}

// Logout はセッションを破棄して永続化された認証情報を削除する。
// 何度呼び出しても結果は同じ。メモリ上の状態は常にAnonymousになり、
// エラーは認証情報の削除に失敗した場合のみ返す。
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	had := m.identity != nil
	var userID string
	if had {
		userID = m.identity.UserID
	}
	m.clear()
	if had {
		m.authenticated.Publish(false)
	}
	m.mu.Unlock()

	if had {
		m.metrics.RecordSessionEvent(metrics.SessionEventLogout)
		m.logger.Info("session closed", slog.String("user_id", userID))
	}

	if err := m.store.Remove(ctx, AuthDataKey); err != nil {
		return fmt.Errorf("failed to remove auth data: %w", err)
	}
	return nil
}

// AutoLogin は永続化された認証情報からセッションを復元する。
// 認証情報が無い、壊れている、または有効期限が現在時刻より後でない場合は
// 状態を変更せず false を返す。
func (m *Manager) AutoLogin(ctx context.Context) (bool, error) {
	raw, found, err := m.store.Get(ctx, AuthDataKey)
	if err != nil {
		return false, fmt.Errorf("failed to read auth data: %w", err)
	}
	if !found {
		return false, nil
	}

	var stored storedAuthData
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		m.logger.Warn("ignoring unreadable auth data", slog.String("error", err.Error()))
		return false, nil
	}
	if stored.UserID == "" || stored.Token == "" {
		return false, nil
	}

	now := m.now()
	if !now.Before(stored.TokenExpirationDate) {
		return false, nil
	}

	ident := model.Identity{
		UserID:      stored.UserID,
		Email:       stored.Email,
		Token:       stored.Token,
		TokenExpiry: stored.TokenExpirationDate,
	}

	m.mu.Lock()
	m.install(ident, stored.TokenExpirationDate.Sub(now))
	m.authenticated.Publish(true)
	m.mu.Unlock()

	m.metrics.RecordSessionEvent(metrics.SessionEventRestored)
	m.logger.Info("session restored",
		slog.String("user_id", ident.UserID),
		slog.Time("token_expiry", ident.TokenExpiry),
	)
	return true, nil
}

// Resume はアプリ復帰時の確認を行う。
// 保存済みセッションを復元できなければログアウトする。
func (m *Manager) Resume(ctx context.Context) (bool, error) {
	restored, err := m.AutoLogin(ctx)
	if err != nil {
		return false, err
	}
	if restored {
		return true, nil
	}
	if err := m.Logout(ctx); err != nil {
		return false, err
	}
	return false, nil
}

// IsAuthenticated は有効なトークンを保持しているかを返す。
func (m *Manager) IsAuthenticated() bool {
	_, ok := m.Token()
	return ok
}

// UserID は有効なセッションのユーザーIDを返す。
func (m *Manager) UserID() (string, bool) {
	ident, ok := m.Identity()
	if !ok {
		return "", false
	}
	return ident.UserID, true
}

// Token は有効期限内のトークンを返す。期限切れの場合は ok=false。
func (m *Manager) Token() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.identity == nil {
		return "", false
	}
	return m.identity.TokenAt(m.now())
}

// Identity は有効期限内のセッション情報のコピーを返す。
func (m *Manager) Identity() (model.Identity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.identity == nil || !m.identity.ValidAt(m.now()) {
		return model.Identity{}, false
	}
	return *m.identity, true
}

// Subscribe は認証状態の変化を受け取るチャネルを返す。
// 購読直後に現在の状態が1回送られる。
func (m *Manager) Subscribe() (<-chan bool, func()) {
	return m.authenticated.Subscribe()
}

// Close はタイマーを停止し、すべての購読チャネルを閉じる。
func (m *Manager) Close() {
	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.generation++
	m.mu.Unlock()
	m.authenticated.Close()
}
