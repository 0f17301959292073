package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/staybook/internal/middleware"
	"github.com/hitoshi/staybook/internal/model"
)

// minPasswordLength はリモート認証APIが受け付けるパスワードの最小長。
const minPasswordLength = 6

// SessionService は認証ハンドラーが必要とするセッション操作。auth.Manager が満たす。
type SessionService interface {
	Login(ctx context.Context, email, password string) error
	Signup(ctx context.Context, email, password string) error
	Logout(ctx context.Context) error
	Resume(ctx context.Context) (bool, error)
	Identity() (model.Identity, bool)
}

// AuthHandler はログイン/サインアップ/ログアウトのHTTPハンドラー。
type AuthHandler struct {
	session SessionService
	logger  *slog.Logger
	now     func() time.Time
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(session SessionService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		session: session,
		logger:  logger,
		now:     time.Now,
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// meResponse は現在のセッション情報のAPIレスポンス。トークン自体は返さない。
type meResponse struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
	ExpiresIn int64     `json:"expires_in"`
}

type resumeResponse struct {
	Authenticated bool `json:"authenticated"`
}

// Login はメールアドレスとパスワードでログインする。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	h.authenticate(w, r, h.session.Login, http.StatusOK)
}

// Signup は新規ユーザーを登録してログインする。
// POST /auth/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	h.authenticate(w, r, h.session.Signup, http.StatusCreated)
}

func (h *AuthHandler) authenticate(
	w http.ResponseWriter,
	r *http.Request,
	action func(ctx context.Context, email, password string) error,
	successStatus int,
) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("メールアドレスが不正です"))
		return
	}
	if len(req.Password) < minPasswordLength {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("パスワードは6文字以上で入力してください"))
		return
	}

	if err := action(r.Context(), req.Email, req.Password); err != nil {
		handleServiceError(w, h.logger, err, nil)
		return
	}

	ident, ok := h.session.Identity()
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	writeJSON(w, successStatus, h.toMeResponse(ident))
}

// Logout はセッションを破棄する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Logout(r.Context()); err != nil {
		// メモリ上のセッションは既に破棄済みのため、永続化の失敗はログのみに記録する
		h.logger.Warn("failed to remove persisted session", slog.String("error", err.Error()))
	}
	w.WriteHeader(http.StatusNoContent)
}

// Resume は永続化されたセッションの復元を試み、できなければログアウトする。
// POST /auth/resume
func (h *AuthHandler) Resume(w http.ResponseWriter, r *http.Request) {
	restored, err := h.session.Resume(r.Context())
	if err != nil {
		handleServiceError(w, h.logger, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, resumeResponse{Authenticated: restored})
}

// Me は現在のセッション情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	ident, ok := h.session.Identity()
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	writeJSON(w, http.StatusOK, h.toMeResponse(ident))
}

func (h *AuthHandler) toMeResponse(ident model.Identity) meResponse {
	return meResponse{
		UserID:    ident.UserID,
		Email:     ident.Email,
		ExpiresAt: ident.TokenExpiry.UTC(),
		ExpiresIn: int64(ident.RemainingAt(h.now()).Seconds()),
	}
}
