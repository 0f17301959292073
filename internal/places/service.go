// Package places はユーザーが提供する宿泊場所（offered-places）を管理する。
package places

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/staybook/internal/cache"
	"github.com/hitoshi/staybook/internal/metrics"
	"github.com/hitoshi/staybook/internal/model"
	"github.com/hitoshi/staybook/internal/security"
)

// Collection は宿泊場所のリモートコレクション名。
const Collection = "offered-places"

// NewPlace は宿泊場所の登録内容。
type NewPlace struct {
	Title         string
	Description   string
	ImageURL      string
	Price         float64
	AvailableFrom time.Time
	AvailableTo   time.Time
	Location      *model.PlaceLocation
}

// Service は宿泊場所のキャッシュと入力検証を提供する。
type Service struct {
	cache     *cache.Cache[model.Place]
	urls      security.URLValidator
	sanitizer *security.TextSanitizer
	logger    *slog.Logger
}

// NewService はServiceを生成する。
func NewService(
	backend cache.Backend,
	session cache.SessionReader,
	urls security.URLValidator,
	sanitizer *security.TextSanitizer,
	logger *slog.Logger,
	mc metrics.MetricsCollector,
) *Service {
	return &Service{
		cache:     cache.New[model.Place](Collection, backend, session, placeCodec{}, logger, mc),
		urls:      urls,
		sanitizer: sanitizer,
		logger:    logger,
	}
}

// Places は現在の宿泊場所一覧を返す。
func (s *Service) Places() []model.Place {
	return s.cache.Items()
}

// Subscribe は宿泊場所一覧の変化を受け取るチャネルを返す。
func (s *Service) Subscribe() (<-chan []model.Place, func()) {
	return s.cache.Subscribe()
}

// GetPlace は現在の一覧から宿泊場所を返す。
func (s *Service) GetPlace(id string) (model.Place, bool) {
	return s.cache.Get(id)
}

// FetchPlaces はログインユーザーの宿泊場所をリモートから再取得する。
func (s *Service) FetchPlaces(ctx context.Context) ([]model.Place, error) {
	return s.cache.FetchAll(ctx)
}

// AddPlace は宿泊場所を検証して登録する。
func (s *Service) AddPlace(ctx context.Context, in NewPlace) (model.Place, error) {
	in.Title = s.sanitizer.Sanitize(in.Title)
	in.Description = s.sanitizer.Sanitize(in.Description)

	if err := s.validate(in); err != nil {
		return model.Place{}, err
	}

	return s.cache.Add(ctx, func(userID, placeholderID string) model.Place {
		return model.Place{
			ID:            placeholderID,
			UserID:        userID,
			Title:         in.Title,
			Description:   in.Description,
			ImageURL:      in.ImageURL,
			Price:         in.Price,
			AvailableFrom: in.AvailableFrom,
			AvailableTo:   in.AvailableTo,
			Location:      in.Location,
		}
	})
}

// UpdatePlace はタイトルと説明を書き換える。その他の項目は現在の値を保つ。
func (s *Service) UpdatePlace(ctx context.Context, id, title, description string) (model.Place, error) {
	title = s.sanitizer.Sanitize(title)
	description = s.sanitizer.Sanitize(description)
	if title == "" {
		return model.Place{}, model.NewValidationError("タイトルは必須です")
	}

	return s.cache.Update(ctx, id, func(p model.Place) model.Place {
		p.Title = title
		p.Description = description
		return p
	})
}

// Reset は一覧を空にする。
func (s *Service) Reset() {
	s.cache.Reset()
}

// Close は購読チャネルを閉じる。
func (s *Service) Close() {
	s.cache.Close()
}

func (s *Service) validate(in NewPlace) error {
	if in.Title == "" {
		return model.NewValidationError("タイトルは必須です")
	}
	if in.Price <= 0 {
		return model.NewValidationError("料金は0より大きい値を指定してください")
	}
	if in.AvailableFrom.IsZero() || in.AvailableTo.IsZero() {
		return model.NewValidationError("提供期間は必須です")
	}
	if !in.AvailableFrom.Before(in.AvailableTo) {
		return model.NewValidationError("提供開始日は終了日より前である必要があります")
	}
	if err := s.urls.ValidateURL(in.ImageURL); err != nil {
		return model.NewInvalidURLError(err.Error())
	}
	if loc := in.Location; loc != nil {
		if loc.Lat < -90 || loc.Lat > 90 || loc.Lng < -180 || loc.Lng > 180 {
			return model.NewValidationError(fmt.Sprintf("座標が範囲外です: %v,%v", loc.Lat, loc.Lng))
		}
	}
	return nil
}
