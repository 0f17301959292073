// Package images は宿泊場所の画像をアップロードエンドポイントへ送信する。
package images

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/staybook/internal/metrics"
	"github.com/hitoshi/staybook/internal/model"
	"github.com/hitoshi/staybook/internal/security"
)

// ErrUploadDisabled はアップロード先が設定されていないことを示す。
var ErrUploadDisabled = errors.New("image upload endpoint is not configured")

// TokenSource は現在のセッションのトークンを返す。auth.Manager が満たす。
type TokenSource interface {
	Token() (string, bool)
}

// Result はアップロード結果。
type Result struct {
	ImageURL  string `json:"imageUrl"`
	ImagePath string `json:"imagePath"`
}

// Config はUploaderの設定。
type Config struct {
	Endpoint    string
	MaxSize     int64
	HTTPClient  *http.Client // アップロード用
	FetchClient *http.Client // URL指定時の画像取得用。SSRF対策済みのクライアントを渡す
	Limiter     *rate.Limiter
	Metrics     metrics.MetricsCollector
}

// Uploader は画像をmultipart形式でアップロードする。
type Uploader struct {
	config Config
	tokens TokenSource
	guard  security.URLValidator
	logger *slog.Logger
}

// NewUploader はUploaderを生成する。
func NewUploader(config Config, tokens TokenSource, guard security.URLValidator, logger *slog.Logger) *Uploader {
	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}
	if config.Metrics == nil {
		config.Metrics = metrics.Nop{}
	}
	return &Uploader{
		config: config,
		tokens: tokens,
		guard:  guard,
		logger: logger,
	}
}

// UploadBase64 はbase64文字列、または data:image/...;base64, 形式のURIをアップロードする。
func (u *Uploader) UploadBase64(ctx context.Context, data string) (*Result, error) {
	data = strings.TrimSpace(data)
	if i := strings.Index(data, ","); strings.HasPrefix(data, "data:") && i >= 0 {
		if !strings.Contains(data[:i], ";base64") {
			return nil, model.NewValidationError("base64形式のdata URIのみ対応しています")
		}
		data = data[i+1:]
	}

	if int64(base64.StdEncoding.DecodedLen(len(data))) > u.config.MaxSize+2 {
		return nil, model.NewImageTooLargeError(u.config.MaxSize)
	}

	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, model.NewValidationError("画像データのbase64デコードに失敗しました")
	}
	return u.upload(ctx, "image", decoded)
}

// UploadFile はリーダーから読み取った画像をアップロードする。
func (u *Uploader) UploadFile(ctx context.Context, name string, r io.Reader) (*Result, error) {
	data, err := u.readLimited(r)
	if err != nil {
		return nil, err
	}
	return u.upload(ctx, name, data)
}

// UploadFromURL は公開URLから画像を取得してアップロードする。
func (u *Uploader) UploadFromURL(ctx context.Context, rawURL string) (*Result, error) {
	if u.config.FetchClient == nil || u.config.Endpoint == "" {
		return nil, ErrUploadDisabled
	}
	// 取得元への通信より前にセッションを確認する
	if _, ok := u.tokens.Token(); !ok {
		return nil, model.ErrNotAuthenticated
	}
	if err := u.guard.ValidateURL(rawURL); err != nil {
		return nil, model.NewInvalidURLError(err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, model.NewInvalidURLError(err.Error())
	}
	req.Header.Set("Accept", "image/*")

	resp, err := u.config.FetchClient.Do(req)
	if err != nil {
		u.logger.Warn("image download failed",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		return nil, &model.TransportError{Op: "image.download", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &model.TransportError{Op: "image.download", StatusCode: resp.StatusCode}
	}

	data, err := u.readLimited(resp.Body)
	if err != nil {
		return nil, err
	}
	return u.upload(ctx, path.Base(req.URL.Path), data)
}

func (u *Uploader) readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, u.config.MaxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if int64(len(data)) > u.config.MaxSize {
		return nil, model.NewImageTooLargeError(u.config.MaxSize)
	}
	return data, nil
}

// upload は画像をフィールド image としてmultipart送信する。
func (u *Uploader) upload(ctx context.Context, name string, data []byte) (*Result, error) {
	const op = "image.upload"

	if u.config.Endpoint == "" {
		return nil, ErrUploadDisabled
	}
	if len(data) == 0 {
		return nil, model.NewValidationError("画像データが空です")
	}
	if int64(len(data)) > u.config.MaxSize {
		return nil, model.NewImageTooLargeError(u.config.MaxSize)
	}

	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return nil, model.NewValidationError(fmt.Sprintf("画像ではありません: %s", contentType))
	}

	token, ok := u.tokens.Token()
	if !ok {
		return nil, model.ErrNotAuthenticated
	}

	if name == "" || name == "/" || name == "." {
		name = "image"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, name))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write multipart part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	if u.config.Limiter != nil {
		if err := u.config.Limiter.Wait(ctx); err != nil {
			return nil, &model.TransportError{Op: op, Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.config.Endpoint, &body)
	if err != nil {
		return nil, &model.TransportError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := u.config.HTTPClient.Do(req)
	u.config.Metrics.RecordRemoteLatency(op, time.Since(start))
	if err != nil {
		u.config.Metrics.RecordRemoteRequest(op, 0)
		u.logger.Error("image upload failed", slog.String("error", err.Error()))
		return nil, &model.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	u.config.Metrics.RecordRemoteRequest(op, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		u.logger.Error("upload endpoint returned error status", slog.Int("http_status", resp.StatusCode))
		return nil, &model.TransportError{Op: op, StatusCode: resp.StatusCode}
	}

	var result Result
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&result); err != nil {
		return nil, &model.TransportError{Op: op, Err: fmt.Errorf("failed to parse response: %w", err)}
	}
	if result.ImageURL == "" {
		return nil, &model.TransportError{Op: op, Err: errors.New("response has no imageUrl")}
	}

	u.logger.Info("image uploaded",
		slog.String("image_path", result.ImagePath),
		slog.Int("size", len(data)),
	)
	return &result, nil
}
