// Package repository はデータ永続化のインターフェースと実装を定義する。
package repository

import "context"

// KeyValueStore は文字列キーと文字列値を永続化するストアのインターフェース。
// セッションマネージャーが認証情報（authData）の保存先として使用する。
type KeyValueStore interface {
	// Get は指定キーの値を取得する。存在しない場合は found=false を返す。
	Get(ctx context.Context, key string) (value string, found bool, err error)

	// Set は指定キーに値を保存する。既存の値は上書きする。
	Set(ctx context.Context, key, value string) error

	// Remove は指定キーを削除する。存在しない場合もエラーにしない。
	Remove(ctx context.Context, key string) error
}
