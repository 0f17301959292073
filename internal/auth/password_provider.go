package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/staybook/internal/metrics"
	"github.com/hitoshi/staybook/internal/model"
	"github.com/hitoshi/staybook/internal/security"
)

const (
	signInPath = "/verifyPassword"
	signUpPath = "/signupNewUser"

	// maxExpiresIn はトークン有効期間として受け付ける上限（秒）。
	maxExpiresIn = int64(365 * 24 * 60 * 60)
)

// Credentials はパスワード認証の成功結果を表す。
type Credentials struct {
	UserID       string
	Email        string
	Token        string
	RefreshToken string
	ExpiresIn    time.Duration
}

// CredentialProvider はメールアドレスとパスワードによる認証を行うインターフェース。
type CredentialProvider interface {
	// SignIn は既存ユーザーとしてログインする。
	SignIn(ctx context.Context, email, password string) (*Credentials, error)
	// SignUp は新規ユーザーを登録する。
	SignUp(ctx context.Context, email, password string) (*Credentials, error)
}

// PasswordProviderConfig はPasswordProviderの設定。
type PasswordProviderConfig struct {
	AuthURL    string
	APIKey     string
	HTTPClient *http.Client
	Limiter    *rate.Limiter
	Metrics    metrics.MetricsCollector
}

// PasswordProvider はホスティングバックエンドの認証エンドポイントを呼び出す。
type PasswordProvider struct {
	config PasswordProviderConfig
	logger *slog.Logger
}

// NewPasswordProvider はPasswordProviderを生成する。
func NewPasswordProvider(config PasswordProviderConfig, logger *slog.Logger) *PasswordProvider {
	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}
	if config.Metrics == nil {
		config.Metrics = metrics.Nop{}
	}
	return &PasswordProvider{config: config, logger: logger}
}

// credentialRequest は認証エンドポイントへのリクエストボディ。
type credentialRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

// credentialResponse は認証エンドポイントのレスポンス。
// expiresIn は秒数を表す文字列（例: "3600"）で返る。
type credentialResponse struct {
	LocalID      string      `json:"localId"`
	Email        string      `json:"email"`
	IDToken      string      `json:"idToken"`
	RefreshToken string      `json:"refreshToken"`
	ExpiresIn    json.Number `json:"expiresIn"`
}

type credentialErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// SignIn は既存ユーザーとしてログインする。
func (p *PasswordProvider) SignIn(ctx context.Context, email, password string) (*Credentials, error) {
	return p.exchange(ctx, "auth.signin", signInPath, email, password)
}

// SignUp は新規ユーザーを登録する。
func (p *PasswordProvider) SignUp(ctx context.Context, email, password string) (*Credentials, error) {
	return p.exchange(ctx, "auth.signup", signUpPath, email, password)
}

func (p *PasswordProvider) exchange(ctx context.Context, op, path, email, password string) (*Credentials, error) {
	if p.config.Limiter != nil {
		if err := p.config.Limiter.Wait(ctx); err != nil {
			return nil, &model.TransportError{Op: op, Err: err}
		}
	}

	body, err := json.Marshal(credentialRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode credential request: %w", err)
	}

	endpoint := p.config.AuthURL + path + "?" + url.Values{"key": {p.config.APIKey}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &model.TransportError{Op: op, Err: security.StripRequestURL(err)}
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.config.HTTPClient.Do(req)
	p.config.Metrics.RecordRemoteLatency(op, time.Since(start))
	if err != nil {
		err = security.StripRequestURL(err)
		p.config.Metrics.RecordRemoteRequest(op, 0)
		p.logger.Error("credential request failed",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		return nil, &model.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	p.config.Metrics.RecordRemoteRequest(op, resp.StatusCode)

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &model.TransportError{Op: op, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, p.classifyFailure(op, resp.StatusCode, respBody)
	}

	var cr credentialResponse
	if err := json.Unmarshal(respBody, &cr); err != nil {
		return nil, &model.TransportError{Op: op, Err: fmt.Errorf("failed to parse response: %w", err)}
	}
	if cr.LocalID == "" || cr.IDToken == "" {
		return nil, &model.TransportError{Op: op, Err: errors.New("response has no user id or token")}
	}

	seconds, err := cr.ExpiresIn.Int64()
	if err != nil || seconds <= 0 || seconds > maxExpiresIn {
		return nil, &model.TransportError{Op: op, Err: fmt.Errorf("invalid expiresIn %q", cr.ExpiresIn)}
	}

	if cr.Email == "" {
		cr.Email = email
	}

	return &Credentials{
		UserID:       cr.LocalID,
		Email:        cr.Email,
		Token:        cr.IDToken,
		RefreshToken: cr.RefreshToken,
		ExpiresIn:    time.Duration(seconds) * time.Second,
	}, nil
}

// classifyFailure はエラーレスポンスをCredentialErrorかTransportErrorに分類する。
// 4xxでエラーコードが読み取れた場合のみ認証情報の拒否とみなす。
func (p *PasswordProvider) classifyFailure(op string, status int, body []byte) error {
	var er credentialErrorResponse
	if status >= 400 && status < 500 && json.Unmarshal(body, &er) == nil && er.Error.Message != "" {
		p.logger.Info("credential rejected",
			slog.String("op", op),
			slog.String("code", er.Error.Message),
		)
		return &model.CredentialError{Code: er.Error.Message}
	}

	p.logger.Error("auth endpoint returned error status",
		slog.String("op", op),
		slog.Int("http_status", status),
	)
	return &model.TransportError{Op: op, StatusCode: status}
}

// compile-time interface check
var _ CredentialProvider = (*PasswordProvider)(nil)
