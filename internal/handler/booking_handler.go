package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/staybook/internal/bookings"
	"github.com/hitoshi/staybook/internal/model"
)

// BookingService は予約ハンドラーが必要とするサービスインターフェース。
type BookingService interface {
	Bookings() []model.Booking
	FetchBookings(ctx context.Context) ([]model.Booking, error)
	AddBooking(ctx context.Context, in bookings.NewBooking) (model.Booking, error)
	CancelBooking(ctx context.Context, id string) error
}

// PlaceLookup は予約対象の宿泊場所をキャッシュから引く。
type PlaceLookup interface {
	GetPlace(id string) (model.Place, bool)
}

// BookingHandler は予約のHTTPハンドラー。
type BookingHandler struct {
	service BookingService
	places  PlaceLookup
	logger  *slog.Logger
}

// NewBookingHandler はBookingHandlerを生成する。
func NewBookingHandler(service BookingService, places PlaceLookup, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{service: service, places: places, logger: logger}
}

// createBookingRequest は予約リクエストのボディ。
// 宿泊場所がキャッシュにある場合、タイトルと画像はキャッシュの値で上書きする。
type createBookingRequest struct {
	PlaceID     string    `json:"place_id"`
	PlaceTitle  string    `json:"place_title"`
	PlaceImage  string    `json:"place_image"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	GuestNumber int       `json:"guest_number"`
	BookedFrom  time.Time `json:"booked_from"`
	BookedTo    time.Time `json:"booked_to"`
}

// bookingResponse は予約のAPIレスポンス。
type bookingResponse struct {
	ID          string    `json:"id"`
	PlaceID     string    `json:"place_id"`
	UserID      string    `json:"user_id"`
	PlaceTitle  string    `json:"place_title"`
	PlaceImage  string    `json:"place_image"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	GuestNumber int       `json:"guest_number"`
	BookedFrom  time.Time `json:"booked_from"`
	BookedTo    time.Time `json:"booked_to"`
}

// ListBookings はキャッシュ上の予約一覧を返す。
// GET /api/bookings
func (h *BookingHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toBookingResponses(h.service.Bookings()))
}

// RefreshBookings はリモートから自分の予約を再取得して返す。
// POST /api/bookings/refresh
func (h *BookingHandler) RefreshBookings(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.FetchBookings(r.Context())
	if err != nil {
		handleServiceError(w, h.logger, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponses(list))
}

// CreateBooking は予約を登録する。
// POST /api/bookings
func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	in := bookings.NewBooking{
		PlaceID:     req.PlaceID,
		PlaceTitle:  req.PlaceTitle,
		PlaceImage:  req.PlaceImage,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		GuestNumber: req.GuestNumber,
		BookedFrom:  req.BookedFrom,
		BookedTo:    req.BookedTo,
	}
	if place, ok := h.places.GetPlace(req.PlaceID); ok {
		in.PlaceTitle = place.Title
		in.PlaceImage = place.ImageURL
	}

	booking, err := h.service.AddBooking(r.Context(), in)
	if err != nil {
		handleServiceError(w, h.logger, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, toBookingResponse(booking))
}

// CancelBooking は予約を取り消す。
// DELETE /api/bookings/{id}
func (h *BookingHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.CancelBooking(r.Context(), id); err != nil {
		handleServiceError(w, h.logger, err, model.NewBookingNotFoundError(id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toBookingResponses(list []model.Booking) []bookingResponse {
	out := make([]bookingResponse, len(list))
	for i, b := range list {
		out[i] = toBookingResponse(b)
	}
	return out
}

func toBookingResponse(b model.Booking) bookingResponse {
	return bookingResponse{
		ID:          b.ID,
		PlaceID:     b.PlaceID,
		UserID:      b.UserID,
		PlaceTitle:  b.PlaceTitle,
		PlaceImage:  b.PlaceImage,
		FirstName:   b.FirstName,
		LastName:    b.LastName,
		GuestNumber: b.GuestNumber,
		BookedFrom:  b.BookedFrom,
		BookedTo:    b.BookedTo,
	}
}
