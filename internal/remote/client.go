// Package remote はホスティングバックエンドのJSONコレクションAPIのクライアントを提供する。
// コレクションは {baseURL}/{collection}.json 形式のRESTで操作し、認証トークンは
// クエリパラメータ auth で渡す。
package remote

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

// maxResponseSize はレスポンスボディの読み取り上限。
const maxResponseSize = 8 << 20

// Entry はコレクション一覧の1要素。IDはサーバーが採番したキー。
type Entry struct {
	ID   string
	Data json.RawMessage
}

// Client はコレクションAPIのクライアント。
// 全リクエストは共有のrate.Limiterで流量を制限される。
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	logger     *slog.Logger
	metrics    metrics.MetricsCollector
}

// NewClient はClientを生成する。limiterがnilの場合は流量制限を行わない。
func NewClient(
	httpClient *http.Client,
	baseURL string,
	limiter *rate.Limiter,
	logger *slog.Logger,
	mc metrics.MetricsCollector,
) *Client {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		limiter:    limiter,
		logger:     logger,
		metrics:    mc,
	}
}

// List はuserIdで絞り込んだコレクションの要素をサーバーの返却順で取得する。
// コレクションが空（null）の場合は空スライスを返す。
func (c *Client) List(ctx context.Context, collection, token, userID string) ([]Entry, error) {
	op := collection + ".list"

	equalTo, err := json.Marshal(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to encode user id: %w", err)
	}

	q := url.Values{}
	q.Set("auth", token)
	q.Set("orderBy", `"userId"`)
	q.Set("equalTo", string(equalTo))

	var entries []Entry
	err = c.do(ctx, op, http.MethodGet, c.collectionURL(collection, q), nil, func(body io.Reader) error {
		var decErr error
		entries, decErr = decodeEntries(body)
		return decErr
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Create はコレクションに要素を追加し、サーバーが採番したIDを返す。
func (c *Client) Create(ctx context.Context, collection, token string, payload any) (string, error) {
	op := collection + ".create"

	q := url.Values{}
	q.Set("auth", token)

	var created struct {
		Name string `json:"name"`
	}
	err := c.do(ctx, op, http.MethodPost, c.collectionURL(collection, q), payload, func(body io.Reader) error {
		return json.NewDecoder(body).Decode(&created)
	})
	if err != nil {
		return "", err
	}
	if created.Name == "" {
		return "", &model.TransportError{Op: op, Err: errors.New("response has no generated id")}
	}
	return created.Name, nil
}

// Put は指定IDの要素を丸ごと置き換える。
func (c *Client) Put(ctx context.Context, collection, id, token string, payload any) error {
	q := url.Values{}
	q.Set("auth", token)
	return c.do(ctx, collection+".update", http.MethodPut, c.itemURL(collection, id, q), payload, nil)
}

// Delete は指定IDの要素を削除する。
func (c *Client) Delete(ctx context.Context, collection, id, token string) error {
	q := url.Values{}
	q.Set("auth", token)
	return c.do(ctx, collection+".delete", http.MethodDelete, c.itemURL(collection, id, q), nil, nil)
}

func (c *Client) collectionURL(collection string, q url.Values) string {
	return c.baseURL + "/" + url.PathEscape(collection) + ".json?" + q.Encode()
}

func (c *Client) itemURL(collection, id string, q url.Values) string {
	return c.baseURL + "/" + url.PathEscape(collection) + "/" + url.PathEscape(id) + ".json?" + q.Encode()
}

// do はリクエストを1回だけ送信する。失敗はすべてTransportErrorとして返す。
// URLには認証トークンが含まれるためログには出力しない。
func (c *Client) do(ctx context.Context, op, method, rawURL string, payload any, decode func(io.Reader) error) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &model.TransportError{Op: op, Err: err}
		}
	}

	var reqBody io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode %s payload: %w", op, err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return &model.TransportError{Op: op, Err: security.StripRequestURL(err)}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.RecordRemoteLatency(op, time.Since(start))
	if err != nil {
		err = security.StripRequestURL(err)
		c.metrics.RecordRemoteRequest(op, 0)
		c.logger.Error("remote request failed",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		return &model.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	c.metrics.RecordRemoteRequest(op, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// 接続再利用のためボディを読み捨てる
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
		c.logger.Error("remote returned error status",
			slog.String("op", op),
			slog.Int("http_status", resp.StatusCode),
		)
		return &model.TransportError{Op: op, StatusCode: resp.StatusCode}
	}

	if decode == nil {
		return nil
	}
	if err := decode(io.LimitReader(resp.Body, maxResponseSize)); err != nil {
		c.logger.Error("failed to decode remote response",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		return &model.TransportError{Op: op, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}
