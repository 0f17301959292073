// Package cache はリモートコレクションのユーザー単位のメモリ上ミラーを提供する。
// 宿泊場所と予約の両方がこの汎用キャッシュを使用する。
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/hitoshi/staybook/internal/metrics"
	"github.com/hitoshi/staybook/internal/model"
	"github.com/hitoshi/staybook/internal/observable"
	"github.com/hitoshi/staybook/internal/remote"
)

// Backend はコレクションのリモート操作。remote.Client が満たす。
type Backend interface {
	List(ctx context.Context, collection, token, userID string) ([]remote.Entry, error)
	Create(ctx context.Context, collection, token string, payload any) (string, error)
	Put(ctx context.Context, collection, id, token string, payload any) error
	Delete(ctx context.Context, collection, id, token string) error
}

// SessionReader は現在のセッションのユーザーIDとトークンを返す。auth.Manager が満たす。
type SessionReader interface {
	UserID() (string, bool)
	Token() (string, bool)
}

// Codec は要素とリモート表現の相互変換を行う。
type Codec[T any] interface {
	// ID は要素のIDを返す。
	ID(item T) string
	// WithID はIDを差し替えた要素を返す。
	WithID(item T, id string) T
	// Decode はリモートのキーと値から要素を復元する。
	Decode(id string, raw json.RawMessage) (T, error)
	// Encode はIDを含まないリモート送信用の値を返す。
	Encode(item T) (any, error)
}

// Cache はコレクションの現在のスナップショットを保持し、変更のたびに購読者へ配信する。
// 通信中はロックを保持しない。操作同士は直列化されず、後に確定した更新が残る。
// Reset をまたいで完了した通信の結果はスナップショットに反映しない。
type Cache[T any] struct {
	collection string
	backend    Backend
	session    SessionReader
	codec      Codec[T]
	logger     *slog.Logger
	metrics    metrics.MetricsCollector
	newID      func() string

	mu         sync.Mutex
	items      []T
	generation uint64 // Reset のたびに進む

	subject *observable.Subject[[]T]
}

// New はCacheを生成する。初期状態は空リスト。
func New[T any](
	collection string,
	backend Backend,
	session SessionReader,
	codec Codec[T],
	logger *slog.Logger,
	mc metrics.MetricsCollector,
) *Cache[T] {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Cache[T]{
		collection: collection,
		backend:    backend,
		session:    session,
		codec:      codec,
		logger:     logger.With(slog.String("collection", collection)),
		metrics:    mc,
		newID:      uuid.NewString,
		items:      []T{},
		subject:    observable.NewSubject([]T{}),
	}
}

// Collection はリモートのコレクション名を返す。
func (c *Cache[T]) Collection() string {
	return c.collection
}

// Items は現在のスナップショットのコピーを返す。
func (c *Cache[T]) Items() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.items)
}

// Subscribe はスナップショットの変化を受け取るチャネルを返す。
// 購読直後に現在のスナップショットが届く。受け取ったスライスは変更しないこと。
func (c *Cache[T]) Subscribe() (<-chan []T, func()) {
	return c.subject.Subscribe()
}

// Get は現在のスナップショットから指定IDの要素を返す。通信は行わない。
func (c *Cache[T]) Get(id string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexOf(id); i >= 0 {
		return c.items[i], true
	}
	var zero T
	return zero, false
}

// FetchAll はユーザーの要素をリモートから取得し、スナップショットをサーバーの返却順で置き換える。
func (c *Cache[T]) FetchAll(ctx context.Context) ([]T, error) {
	token, ok := c.session.Token()
	if !ok {
		return nil, model.ErrNotAuthenticated
	}
	userID, ok := c.session.UserID()
	if !ok {
		return nil, model.ErrNotAuthenticated
	}

	gen := c.currentGeneration()
	entries, err := c.backend.List(ctx, c.collection, token, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", c.collection, err)
	}

	items := make([]T, 0, len(entries))
	for _, e := range entries {
		item, err := c.codec.Decode(e.ID, e.Data)
		if err != nil {
			c.logger.Warn("skipping undecodable entry",
				slog.String("id", e.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		items = append(items, item)
	}

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		c.logger.Info("discarding fetch result after reset", slog.String("user_id", userID))
		return items, nil
	}
	c.items = items
	snapshot := c.publishLocked()
	c.mu.Unlock()

	c.logger.Debug("collection fetched",
		slog.String("user_id", userID),
		slog.Int("count", len(snapshot)),
	)
	return snapshot, nil
}

// Add は要素をリモートに作成し、サーバー採番のIDで末尾に追加する。
// build には現在のユーザーIDと仮IDが渡される。
func (c *Cache[T]) Add(ctx context.Context, build func(userID, placeholderID string) T) (T, error) {
	var zero T

	userID, ok := c.session.UserID()
	if !ok {
		return zero, model.ErrNotAuthenticated
	}
	token, ok := c.session.Token()
	if !ok {
		return zero, model.ErrNotAuthenticated
	}

	item := build(userID, c.newID())
	payload, err := c.codec.Encode(item)
	if err != nil {
		return zero, fmt.Errorf("failed to encode %s item: %w", c.collection, err)
	}

	gen := c.currentGeneration()
	id, err := c.backend.Create(ctx, c.collection, token, payload)
	if err != nil {
		return zero, fmt.Errorf("failed to create %s item: %w", c.collection, err)
	}
	item = c.codec.WithID(item, id)

	c.mu.Lock()
	if c.generation == gen {
		c.items = append(slices.Clone(c.items), item)
		c.publishLocked()
	}
	c.mu.Unlock()

	c.logger.Info("item created", slog.String("id", id), slog.String("user_id", userID))
	return item, nil
}

// Update は指定IDの要素を mutate で書き換え、丸ごとリモートに保存する。
// スナップショットが空の場合は先に FetchAll を行う。
// 指定IDが無い場合は通信せず ErrNotFound を返す。
func (c *Cache[T]) Update(ctx context.Context, id string, mutate func(T) T) (T, error) {
	var zero T

	token, ok := c.session.Token()
	if !ok {
		return zero, model.ErrNotAuthenticated
	}
	if err := c.hydrate(ctx); err != nil {
		return zero, err
	}

	current, ok := c.Get(id)
	if !ok {
		return zero, fmt.Errorf("%s %s: %w", c.collection, id, model.ErrNotFound)
	}

	updated := c.codec.WithID(mutate(current), id)
	payload, err := c.codec.Encode(updated)
	if err != nil {
		return zero, fmt.Errorf("failed to encode %s item: %w", c.collection, err)
	}

	gen := c.currentGeneration()
	if err := c.backend.Put(ctx, c.collection, id, token, payload); err != nil {
		return zero, fmt.Errorf("failed to update %s item: %w", c.collection, err)
	}

	// 確定時点のスナップショットに適用する
	c.mu.Lock()
	if i := c.indexOf(id); i >= 0 && c.generation == gen {
		next := slices.Clone(c.items)
		next[i] = updated
		c.items = next
		c.publishLocked()
	}
	c.mu.Unlock()

	c.logger.Info("item updated", slog.String("id", id))
	return updated, nil
}

// Delete は指定IDの要素をリモートから削除し、スナップショットから取り除く。
// スナップショットが空の場合は先に FetchAll を行う。
func (c *Cache[T]) Delete(ctx context.Context, id string) error {
	token, ok := c.session.Token()
	if !ok {
		return model.ErrNotAuthenticated
	}
	if err := c.hydrate(ctx); err != nil {
		return err
	}

	if _, ok := c.Get(id); !ok {
		return fmt.Errorf("%s %s: %w", c.collection, id, model.ErrNotFound)
	}

	gen := c.currentGeneration()
	if err := c.backend.Delete(ctx, c.collection, id, token); err != nil {
		return fmt.Errorf("failed to delete %s item: %w", c.collection, err)
	}

	c.mu.Lock()
	if c.generation == gen {
		c.items = slices.DeleteFunc(slices.Clone(c.items), func(item T) bool {
			return c.codec.ID(item) == id
		})
		c.publishLocked()
	}
	c.mu.Unlock()

	c.logger.Info("item deleted", slog.String("id", id))
	return nil
}

// Reset はスナップショットを空にする。ログアウト時に前ユーザーのデータを消すために使う。
func (c *Cache[T]) Reset() {
	c.mu.Lock()
	c.generation++
	c.items = []T{}
	c.publishLocked()
	c.mu.Unlock()
}

// Close は購読チャネルをすべて閉じる。
func (c *Cache[T]) Close() {
	c.subject.Close()
}

func (c *Cache[T]) currentGeneration() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

func (c *Cache[T]) hydrate(ctx context.Context) error {
	c.mu.Lock()
	empty := len(c.items) == 0
	c.mu.Unlock()

	if !empty {
		return nil
	}
	_, err := c.FetchAll(ctx)
	return err
}

// indexOf は c.mu を保持した状態で呼び出すこと。
func (c *Cache[T]) indexOf(id string) int {
	return slices.IndexFunc(c.items, func(item T) bool {
		return c.codec.ID(item) == id
	})
}

// publishLocked は現在のスナップショットを配信し、そのコピーを返す。
// c.mu を保持した状態で呼び出すこと。
func (c *Cache[T]) publishLocked() []T {
	snapshot := slices.Clone(c.items)
	c.subject.Publish(slices.Clone(snapshot))
	c.metrics.RecordCacheSize(c.collection, len(snapshot))
	return snapshot
}
