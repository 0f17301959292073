// Package model はドメインモデルを定義する。
package model

import "time"

// Identity は認証済みユーザーのID、メールアドレス、ベアラートークンと有効期限を表す。
// セッションマネージャーだけが保持し、利用側には値のコピーを渡す。
type Identity struct {
	UserID      string
	Email       string
	Token       string
	TokenExpiry time.Time
}

// ValidAt は指定時刻においてトークンが有効かを返す。
// now < TokenExpiry の間だけ有効とみなす。
func (i Identity) ValidAt(now time.Time) bool {
	return i.Token != "" && now.Before(i.TokenExpiry)
}

// TokenAt は指定時刻におけるトークンを返す。期限切れの場合は ok=false。
func (i Identity) TokenAt(now time.Time) (string, bool) {
	if !i.ValidAt(now) {
		return "", false
	}
	return i.Token, true
}

// RemainingAt はトークンの残り有効期間を返す。期限切れの場合は0。
func (i Identity) RemainingAt(now time.Time) time.Duration {
	if !i.ValidAt(now) {
		return 0
	}
	return i.TokenExpiry.Sub(now)
}
