// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, resource, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 操作単位のエラー種別。errors.Is で判定する。
var (
	// ErrCredential は認証情報がリモートで拒否されたことを示す。
	ErrCredential = errors.New("credential rejected")
	// ErrNotAuthenticated は有効なユーザーIDまたはトークンが無いことを示す。
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrTransport は通信またはリモート側の失敗を示す。
	ErrTransport = errors.New("transport failure")
	// ErrNotFound はキャッシュ上に指定IDのリソースが無いことを示す。
	ErrNotFound = errors.New("resource not found")
)

// リモート認証APIが返す既知のエラーコード。
const (
	CredentialCodeEmailExists     = "EMAIL_EXISTS"
	CredentialCodeEmailNotFound   = "EMAIL_NOT_FOUND"
	CredentialCodeInvalidPassword = "INVALID_PASSWORD"
)

// CredentialError はログイン/サインアップがリモートで拒否されたことを表す。
type CredentialError struct {
	Code string
}

// Error はerrorインターフェースを実装する。
func (e *CredentialError) Error() string {
	return fmt.Sprintf("credential rejected: %s", e.Code)
}

// Is は ErrCredential との比較を可能にする。
func (e *CredentialError) Is(target error) bool {
	return target == ErrCredential
}

// UserMessage はUIに表示するメッセージを返す。
func (e *CredentialError) UserMessage() string {
	switch e.Code {
	case CredentialCodeEmailExists:
		return "This email address already exists!"
	case CredentialCodeEmailNotFound, CredentialCodeInvalidPassword:
		return "User or password incorrect!"
	default:
		return "Could not sign you up, please try again."
	}
}

// TransportError はリモート呼び出しの失敗を表す。
// StatusCode はHTTPレスポンスを受け取れた場合のみ非0。
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

// Error はerrorインターフェースを実装する。
func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: remote returned status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap は原因エラーを返す。
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is は ErrTransport との比較を可能にする。
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeCredential      = "CREDENTIAL_REJECTED"
	ErrCodePlaceNotFound   = "PLACE_NOT_FOUND"
	ErrCodeBookingNotFound = "BOOKING_NOT_FOUND"
	ErrCodeValidation      = "VALIDATION_FAILED"
	ErrCodeInvalidURL      = "INVALID_URL"
	ErrCodeRemoteFailed    = "REMOTE_FAILED"
	ErrCodeImageTooLarge   = "IMAGE_TOO_LARGE"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewCredentialAPIError は認証情報拒否エラーを生成する。
func NewCredentialAPIError(credErr *CredentialError) *APIError {
	return &APIError{
		Code:     ErrCodeCredential,
		Message:  credErr.UserMessage(),
		Category: "auth",
		Action:   "メールアドレスとパスワードを確認してください。",
	}
}

// NewPlaceNotFoundError は宿泊場所未検出エラーを生成する。
func NewPlaceNotFoundError(placeID string) *APIError {
	return &APIError{
		Code:     ErrCodePlaceNotFound,
		Message:  fmt.Sprintf("指定された宿泊場所が見つかりません: %s", placeID),
		Category: "resource",
		Action:   "一覧を再読み込みしてください。",
	}
}

// NewBookingNotFoundError は予約未検出エラーを生成する。
func NewBookingNotFoundError(bookingID string) *APIError {
	return &APIError{
		Code:     ErrCodeBookingNotFound,
		Message:  fmt.Sprintf("指定された予約が見つかりません: %s", bookingID),
		Category: "resource",
		Action:   "一覧を再読み込みしてください。",
	}
}

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力内容が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "公開されている https:// または http:// のURLを指定してください。",
	}
}

// NewRemoteFailedError はリモートAPI呼び出し失敗エラーを生成する。
func NewRemoteFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeRemoteFailed,
		Message:  "サーバーとの通信に失敗しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewImageTooLargeError は画像サイズ超過エラーを生成する。
func NewImageTooLargeError(limit int64) *APIError {
	return &APIError{
		Code:     ErrCodeImageTooLarge,
		Message:  fmt.Sprintf("画像サイズが上限（%dバイト）を超えています。", limit),
		Category: "validation",
		Action:   "小さい画像を選択してください。",
	}
}
