package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/staybook/internal/bookings"
	"github.com/hitoshi/staybook/internal/model"
)

func TestBookingHandler_ListBookings(t *testing.T) {
	svc := &mockBookingService{bookings: []model.Booking{
		{ID: "b1", PlaceID: "p1", UserID: "u1", FirstName: "Ada", LastName: "Lovelace", GuestNumber: 2, BookedFrom: day(3), BookedTo: day(5)},
	}}
	h := NewBookingHandler(svc, &mockPlaceService{}, discardLogger())

	w := httptest.NewRecorder()
	h.ListBookings(w, httptest.NewRequest(http.MethodGet, "/api/bookings", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp []bookingResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if len(resp) != 1 || resp[0].ID != "b1" || resp[0].GuestNumber != 2 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestBookingHandler_RefreshBookings_TransportFailure_Returns502(t *testing.T) {
	svc := &mockBookingService{
		fetchFn: func(ctx context.Context) ([]model.Booking, error) {
			return nil, &model.TransportError{Op: "bookings.list", StatusCode: 500}
		},
	}
	h := NewBookingHandler(svc, &mockPlaceService{}, discardLogger())

	w := httptest.NewRecorder()
	h.RefreshBookings(w, httptest.NewRequest(http.MethodPost, "/api/bookings/refresh", nil))

	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Code)
	}
}

func TestBookingHandler_CreateBooking_SnapshotsCachedPlace(t *testing.T) {
	var got bookings.NewBooking
	svc := &mockBookingService{
		addFn: func(ctx context.Context, in bookings.NewBooking) (model.Booking, error) {
			got = in
			return model.Booking{ID: "b1", PlaceID: in.PlaceID, PlaceTitle: in.PlaceTitle}, nil
		},
	}
	h := NewBookingHandler(svc, &mockPlaceService{places: samplePlaces()}, discardLogger())

	body := createBookingRequest{
		PlaceID: "p1", PlaceTitle: "client title", PlaceImage: "https://client.example.com/x.jpg",
		FirstName: "Ada", LastName: "Lovelace", GuestNumber: 2,
		BookedFrom: day(3), BookedTo: day(5),
	}
	w := httptest.NewRecorder()
	h.CreateBooking(w, httptest.NewRequest(http.MethodPost, "/api/bookings", jsonBody(t, body)))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}
	if got.PlaceTitle != "Manhattan Mansion" {
		t.Errorf("PlaceTitle = %q, want cached title", got.PlaceTitle)
	}
	if got.PlaceImage != "https://img.example.com/nyc.jpg" {
		t.Errorf("PlaceImage = %q, want cached image", got.PlaceImage)
	}
	if got.GuestNumber != 2 || got.FirstName != "Ada" {
		t.Errorf("NewBooking = %+v", got)
	}
}

func TestBookingHandler_CreateBooking_UnknownPlaceKeepsClientSnapshot(t *testing.T) {
	var got bookings.NewBooking
	svc := &mockBookingService{
		addFn: func(ctx context.Context, in bookings.NewBooking) (model.Booking, error) {
			got = in
			return model.Booking{ID: "b1"}, nil
		},
	}
	h := NewBookingHandler(svc, &mockPlaceService{}, discardLogger())

	body := createBookingRequest{
		PlaceID: "remote-only", PlaceTitle: "client title",
		FirstName: "Ada", LastName: "Lovelace", GuestNumber: 1,
		BookedFrom: day(3), BookedTo: day(5),
	}
	w := httptest.NewRecorder()
	h.CreateBooking(w, httptest.NewRequest(http.MethodPost, "/api/bookings", jsonBody(t, body)))

	if got.PlaceTitle != "client title" {
		t.Errorf("PlaceTitle = %q, want client title", got.PlaceTitle)
	}
}

func TestBookingHandler_CreateBooking_ValidationError_Returns400(t *testing.T) {
	svc := &mockBookingService{
		addFn: func(ctx context.Context, in bookings.NewBooking) (model.Booking, error) {
			return model.Booking{}, model.NewValidationError("人数は1以上で指定してください")
		},
	}
	h := NewBookingHandler(svc, &mockPlaceService{}, discardLogger())

	w := httptest.NewRecorder()
	h.CreateBooking(w, httptest.NewRequest(http.MethodPost, "/api/bookings", jsonBody(t, createBookingRequest{PlaceID: "p1"})))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestBookingHandler_CancelBooking(t *testing.T) {
	var gotID string
	svc := &mockBookingService{
		cancelFn: func(ctx context.Context, id string) error {
			gotID = id
			return nil
		},
	}
	h := NewBookingHandler(svc, &mockPlaceService{}, discardLogger())

	w := httptest.NewRecorder()
	h.CancelBooking(w, withChiURLParam(httptest.NewRequest(http.MethodDelete, "/api/bookings/b1", nil), "id", "b1"))

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if gotID != "b1" {
		t.Errorf("id = %q, want b1", gotID)
	}
}

func TestBookingHandler_CancelBooking_Unknown_Returns404(t *testing.T) {
	svc := &mockBookingService{
		cancelFn: func(ctx context.Context, id string) error {
			return fmt.Errorf("bookings %s: %w", id, model.ErrNotFound)
		},
	}
	h := NewBookingHandler(svc, &mockPlaceService{}, discardLogger())

	w := httptest.NewRecorder()
	h.CancelBooking(w, withChiURLParam(httptest.NewRequest(http.MethodDelete, "/api/bookings/zzz", nil), "id", "zzz"))

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if got := parseAPIErrorResponse(t, w)["code"]; got != model.ErrCodeBookingNotFound {
		t.Errorf("code = %q", got)
	}
}
