package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/staybook/internal/model"
	"github.com/hitoshi/staybook/internal/places"
)

// PlaceService は宿泊場所ハンドラーが必要とするサービスインターフェース。
type PlaceService interface {
	Places() []model.Place
	GetPlace(id string) (model.Place, bool)
	FetchPlaces(ctx context.Context) ([]model.Place, error)
	AddPlace(ctx context.Context, in places.NewPlace) (model.Place, error)
	UpdatePlace(ctx context.Context, id, title, description string) (model.Place, error)
}

// PlaceHandler は宿泊場所のHTTPハンドラー。
type PlaceHandler struct {
	service PlaceService
	logger  *slog.Logger
}

// NewPlaceHandler はPlaceHandlerを生成する。
func NewPlaceHandler(service PlaceService, logger *slog.Logger) *PlaceHandler {
	return &PlaceHandler{service: service, logger: logger}
}

type locationBody struct {
	Lat               float64 `json:"lat"`
	Lng               float64 `json:"lng"`
	Address           string  `json:"address"`
	StaticMapImageURL string  `json:"static_map_image_url"`
}

// createPlaceRequest は宿泊場所登録リクエストのボディ。
type createPlaceRequest struct {
	Title         string        `json:"title"`
	Description   string        `json:"description"`
	ImageURL      string        `json:"image_url"`
	Price         float64       `json:"price"`
	AvailableFrom time.Time     `json:"available_from"`
	AvailableTo   time.Time     `json:"available_to"`
	Location      *locationBody `json:"location,omitempty"`
}

// updatePlaceRequest は宿泊場所更新リクエストのボディ。タイトルと説明のみ変更できる。
type updatePlaceRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// placeResponse は宿泊場所のAPIレスポンス。
type placeResponse struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	Title         string        `json:"title"`
	Description   string        `json:"description"`
	ImageURL      string        `json:"image_url"`
	Price         float64       `json:"price"`
	AvailableFrom time.Time     `json:"available_from"`
	AvailableTo   time.Time     `json:"available_to"`
	Location      *locationBody `json:"location,omitempty"`
}

// ListPlaces はキャッシュ上の宿泊場所一覧を返す。
// GET /api/places
func (h *PlaceHandler) ListPlaces(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toPlaceResponses(h.service.Places()))
}

// RefreshPlaces はリモートから一覧を再取得して返す。
// POST /api/places/refresh
func (h *PlaceHandler) RefreshPlaces(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.FetchPlaces(r.Context())
	if err != nil {
		handleServiceError(w, h.logger, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, toPlaceResponses(list))
}

// GetPlace はキャッシュから宿泊場所を1件返す。
// GET /api/places/{id}
func (h *PlaceHandler) GetPlace(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	place, ok := h.service.GetPlace(id)
	if !ok {
		handleServiceError(w, h.logger, model.ErrNotFound, model.NewPlaceNotFoundError(id))
		return
	}
	writeJSON(w, http.StatusOK, toPlaceResponse(place))
}

// CreatePlace は宿泊場所を登録する。
// POST /api/places
func (h *PlaceHandler) CreatePlace(w http.ResponseWriter, r *http.Request) {
	var req createPlaceRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	in := places.NewPlace{
		Title:         req.Title,
		Description:   req.Description,
		ImageURL:      req.ImageURL,
		Price:         req.Price,
		AvailableFrom: req.AvailableFrom,
		AvailableTo:   req.AvailableTo,
	}
	if req.Location != nil {
		in.Location = &model.PlaceLocation{
			Lat:               req.Location.Lat,
			Lng:               req.Location.Lng,
			Address:           req.Location.Address,
			StaticMapImageURL: req.Location.StaticMapImageURL,
		}
	}

	place, err := h.service.AddPlace(r.Context(), in)
	if err != nil {
		handleServiceError(w, h.logger, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, toPlaceResponse(place))
}

// UpdatePlace は宿泊場所のタイトルと説明を更新する。
// PUT /api/places/{id}
func (h *PlaceHandler) UpdatePlace(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updatePlaceRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	place, err := h.service.UpdatePlace(r.Context(), id, req.Title, req.Description)
	if err != nil {
		handleServiceError(w, h.logger, err, model.NewPlaceNotFoundError(id))
		return
	}
	writeJSON(w, http.StatusOK, toPlaceResponse(place))
}

func toPlaceResponses(list []model.Place) []placeResponse {
	out := make([]placeResponse, len(list))
	for i, p := range list {
		out[i] = toPlaceResponse(p)
	}
	return out
}

func toPlaceResponse(p model.Place) placeResponse {
	resp := placeResponse{
		ID:            p.ID,
		UserID:        p.UserID,
		Title:         p.Title,
		Description:   p.Description,
		ImageURL:      p.ImageURL,
		Price:         p.Price,
		AvailableFrom: p.AvailableFrom,
		AvailableTo:   p.AvailableTo,
	}
	if p.Location != nil {
		resp.Location = &locationBody{
			Lat:               p.Location.Lat,
			Lng:               p.Location.Lng,
			Address:           p.Location.Address,
			StaticMapImageURL: p.Location.StaticMapImageURL,
		}
	}
	return resp
}
