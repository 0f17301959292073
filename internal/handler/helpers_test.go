package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/staybook/internal/bookings"
	"github.com/hitoshi/staybook/internal/images"
	"github.com/hitoshi/staybook/internal/model"
	"github.com/hitoshi/staybook/internal/places"
)

// --- モック定義 ---

type mockSessionService struct {
	loginFn    func(ctx context.Context, email, password string) error
	signupFn   func(ctx context.Context, email, password string) error
	logoutFn   func(ctx context.Context) error
	resumeFn   func(ctx context.Context) (bool, error)
	identity   model.Identity
	authorized bool
}

func (m *mockSessionService) Login(ctx context.Context, email, password string) error {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return nil
}

func (m *mockSessionService) Signup(ctx context.Context, email, password string) error {
	if m.signupFn != nil {
		return m.signupFn(ctx, email, password)
	}
	return nil
}

func (m *mockSessionService) Logout(ctx context.Context) error {
	m.authorized = false
	if m.logoutFn != nil {
		return m.logoutFn(ctx)
	}
	return nil
}

func (m *mockSessionService) Resume(ctx context.Context) (bool, error) {
	if m.resumeFn != nil {
		return m.resumeFn(ctx)
	}
	return m.authorized, nil
}

func (m *mockSessionService) Identity() (model.Identity, bool) {
	return m.identity, m.authorized
}

func (m *mockSessionService) UserID() (string, bool) {
	return m.identity.UserID, m.authorized
}

type mockPlaceService struct {
	places   []model.Place
	fetchFn  func(ctx context.Context) ([]model.Place, error)
	addFn    func(ctx context.Context, in places.NewPlace) (model.Place, error)
	updateFn func(ctx context.Context, id, title, description string) (model.Place, error)
}

func (m *mockPlaceService) Places() []model.Place { return m.places }

func (m *mockPlaceService) GetPlace(id string) (model.Place, bool) {
	for _, p := range m.places {
		if p.ID == id {
			return p, true
		}
	}
	return model.Place{}, false
}

func (m *mockPlaceService) FetchPlaces(ctx context.Context) ([]model.Place, error) {
	if m.fetchFn != nil {
		return m.fetchFn(ctx)
	}
	return m.places, nil
}

func (m *mockPlaceService) AddPlace(ctx context.Context, in places.NewPlace) (model.Place, error) {
	if m.addFn != nil {
		return m.addFn(ctx, in)
	}
	return model.Place{}, nil
}

func (m *mockPlaceService) UpdatePlace(ctx context.Context, id, title, description string) (model.Place, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, title, description)
	}
	return model.Place{}, nil
}

type mockBookingService struct {
	bookings []model.Booking
	fetchFn  func(ctx context.Context) ([]model.Booking, error)
	addFn    func(ctx context.Context, in bookings.NewBooking) (model.Booking, error)
	cancelFn func(ctx context.Context, id string) error
}

func (m *mockBookingService) Bookings() []model.Booking { return m.bookings }

func (m *mockBookingService) FetchBookings(ctx context.Context) ([]model.Booking, error) {
	if m.fetchFn != nil {
		return m.fetchFn(ctx)
	}
	return m.bookings, nil
}

func (m *mockBookingService) AddBooking(ctx context.Context, in bookings.NewBooking) (model.Booking, error) {
	if m.addFn != nil {
		return m.addFn(ctx, in)
	}
	return model.Booking{}, nil
}

func (m *mockBookingService) CancelBooking(ctx context.Context, id string) error {
	if m.cancelFn != nil {
		return m.cancelFn(ctx, id)
	}
	return nil
}

type mockImageUploader struct {
	base64Fn func(ctx context.Context, data string) (*images.Result, error)
	fileFn   func(ctx context.Context, name string, r io.Reader) (*images.Result, error)
	urlFn    func(ctx context.Context, rawURL string) (*images.Result, error)
}

func (m *mockImageUploader) UploadBase64(ctx context.Context, data string) (*images.Result, error) {
	if m.base64Fn != nil {
		return m.base64Fn(ctx, data)
	}
	return &images.Result{}, nil
}

func (m *mockImageUploader) UploadFile(ctx context.Context, name string, r io.Reader) (*images.Result, error) {
	if m.fileFn != nil {
		return m.fileFn(ctx, name, r)
	}
	return &images.Result{}, nil
}

func (m *mockImageUploader) UploadFromURL(ctx context.Context, rawURL string) (*images.Result, error) {
	if m.urlFn != nil {
		return m.urlFn(ctx, rawURL)
	}
	return &images.Result{}, nil
}

// --- テストヘルパー ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}
	return bytes.NewReader(b)
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

func day(d int) time.Time {
	return time.Date(2026, time.November, d, 0, 0, 0, 0, time.UTC)
}
