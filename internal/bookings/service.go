// Package bookings はログインユーザーの予約を管理する。
package bookings

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/staybook/internal/cache"
	"github.com/hitoshi/staybook/internal/metrics"
	"github.com/hitoshi/staybook/internal/model"
	"github.com/hitoshi/staybook/internal/security"
)

// Collection は予約のリモートコレクション名。
const Collection = "bookings"

// NewBooking は予約の登録内容。
// 宿泊場所のタイトルと画像は予約時点の値を複製して保持する。
type NewBooking struct {
	PlaceID     string
	PlaceTitle  string
	PlaceImage  string
	FirstName   string
	LastName    string
	GuestNumber int
	BookedFrom  time.Time
	BookedTo    time.Time
}

// Service は予約のキャッシュと入力検証を提供する。
type Service struct {
	cache     *cache.Cache[model.Booking]
	sanitizer *security.TextSanitizer
	logger    *slog.Logger
}

// NewService はServiceを生成する。
func NewService(
	backend cache.Backend,
	session cache.SessionReader,
	sanitizer *security.TextSanitizer,
	logger *slog.Logger,
	mc metrics.MetricsCollector,
) *Service {
	return &Service{
		cache:     cache.New[model.Booking](Collection, backend, session, bookingCodec{}, logger, mc),
		sanitizer: sanitizer,
		logger:    logger,
	}
}

// Bookings は現在の予約一覧を返す。
func (s *Service) Bookings() []model.Booking {
	return s.cache.Items()
}

// Subscribe は予約一覧の変化を受け取るチャネルを返す。
func (s *Service) Subscribe() (<-chan []model.Booking, func()) {
	return s.cache.Subscribe()
}

// FetchBookings はログインユーザーの予約をリモートから再取得する。
func (s *Service) FetchBookings(ctx context.Context) ([]model.Booking, error) {
	return s.cache.FetchAll(ctx)
}

// AddBooking は予約を検証して登録する。
func (s *Service) AddBooking(ctx context.Context, in NewBooking) (model.Booking, error) {
	in.FirstName = s.sanitizer.Sanitize(in.FirstName)
	in.LastName = s.sanitizer.Sanitize(in.LastName)
	in.PlaceTitle = s.sanitizer.Sanitize(in.PlaceTitle)

	if err := validate(in); err != nil {
		return model.Booking{}, err
	}

	return s.cache.Add(ctx, func(userID, placeholderID string) model.Booking {
		return model.Booking{
			ID:          placeholderID,
			PlaceID:     in.PlaceID,
			UserID:      userID,
			PlaceTitle:  in.PlaceTitle,
			PlaceImage:  in.PlaceImage,
			FirstName:   in.FirstName,
			LastName:    in.LastName,
			GuestNumber: in.GuestNumber,
			BookedFrom:  in.BookedFrom,
			BookedTo:    in.BookedTo,
		}
	})
}

// CancelBooking は予約を取り消す。
func (s *Service) CancelBooking(ctx context.Context, id string) error {
	return s.cache.Delete(ctx, id)
}

// Reset は一覧を空にする。
func (s *Service) Reset() {
	s.cache.Reset()
}

// Close は購読チャネルを閉じる。
func (s *Service) Close() {
	s.cache.Close()
}

func validate(in NewBooking) error {
	switch {
	case in.PlaceID == "":
		return model.NewValidationError("宿泊場所IDは必須です")
	case in.FirstName == "" || in.LastName == "":
		return model.NewValidationError("氏名は必須です")
	case in.GuestNumber < 1:
		return model.NewValidationError("宿泊人数は1人以上を指定してください")
	case in.BookedFrom.IsZero() || in.BookedTo.IsZero():
		return model.NewValidationError("宿泊期間は必須です")
	case !in.BookedFrom.Before(in.BookedTo):
		return model.NewValidationError("開始日は終了日より前である必要があります")
	}
	return nil
}
