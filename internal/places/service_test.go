package places

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/staybook/internal/metrics"
	"github.com/hitoshi/staybook/internal/model"
	"github.com/hitoshi/staybook/internal/remote"
	"github.com/hitoshi/staybook/internal/security"
)

type mockSession struct{ userID, token string }

func (s *mockSession) UserID() (string, bool) { return s.userID, s.userID != "" }
func (s *mockSession) Token() (string, bool)  { return s.token, s.token != "" }

// fakeBackend はメモリ上でコレクションを模倣する。
type fakeBackend struct {
	order   []string
	records map[string]json.RawMessage
	nextID  int
	puts    int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{records: map[string]json.RawMessage{}}
}

func (b *fakeBackend) List(ctx context.Context, collection, token, userID string) ([]remote.Entry, error) {
	var out []remote.Entry
	for _, id := range b.order {
		out = append(out, remote.Entry{ID: id, Data: b.records[id]})
	}
	return out, nil
}

func (b *fakeBackend) Create(ctx context.Context, collection, token string, payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	b.nextID++
	id := "-P" + string(rune('0'+b.nextID))
	b.order = append(b.order, id)
	b.records[id] = raw
	return id, nil
}

func (b *fakeBackend) Put(ctx context.Context, collection, id, token string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	b.puts++
	b.records[id] = raw
	return nil
}

func (b *fakeBackend) Delete(ctx context.Context, collection, id, token string) error {
	delete(b.records, id)
	return nil
}

var (
	from = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to   = time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)
)

func validPlace() NewPlace {
	return NewPlace{
		Title:         "Manhattan Mansion",
		Description:   "In the heart of New York City.",
		ImageURL:      "https://images.example.com/mansion.jpg",
		Price:         149.99,
		AvailableFrom: from,
		AvailableTo:   to,
		Location: &model.PlaceLocation{
			Lat:     40.78,
			Lng:     -73.96,
			Address: "2 E 91st St, New York",
		},
	}
}

func newTestService(backend *fakeBackend, session *mockSession) *Service {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	return NewService(backend, session, security.NewURLGuard(), security.NewTextSanitizer(), logger, metrics.Nop{})
}

func TestAddPlace_StoresAndAppends(t *testing.T) {
	backend := newFakeBackend()
	s := newTestService(backend, &mockSession{userID: "u1", token: "tok"})

	p, err := s.AddPlace(context.Background(), validPlace())
	if err != nil {
		t.Fatalf("AddPlace() error = %v", err)
	}
	if p.ID != "-P1" || p.UserID != "u1" {
		t.Errorf("place = %+v", p)
	}

	var stored map[string]any
	if err := json.Unmarshal(backend.records["-P1"], &stored); err != nil {
		t.Fatal(err)
	}
	if _, hasID := stored["id"]; hasID {
		t.Error("stored record must not contain id")
	}
	if stored["title"] != "Manhattan Mansion" || stored["userId"] != "u1" || stored["imageUrl"] != "https://images.example.com/mansion.jpg" {
		t.Errorf("stored = %v", stored)
	}
	if stored["availableFrom"] != "2026-01-01T00:00:00Z" {
		t.Errorf("availableFrom = %v", stored["availableFrom"])
	}
	loc, _ := stored["location"].(map[string]any)
	if loc["address"] != "2 E 91st St, New York" {
		t.Errorf("location = %v", stored["location"])
	}

	if got := s.Places(); len(got) != 1 || got[0].ID != "-P1" {
		t.Errorf("Places() = %+v", got)
	}
}

func TestAddPlace_SanitizesText(t *testing.T) {
	s := newTestService(newFakeBackend(), &mockSession{userID: "u1", token: "tok"})

	in := validPlace()
	in.Title = "<b>Amour</b> Toujours<script>x()</script>"
	in.Description = "  Romantic place in Paris. "

	p, err := s.AddPlace(context.Background(), in)
	if err != nil {
		t.Fatalf("AddPlace() error = %v", err)
	}
	if p.Title != "Amour Toujours" {
		t.Errorf("Title = %q", p.Title)
	}
	if p.Description != "Romantic place in Paris." {
		t.Errorf("Description = %q", p.Description)
	}
}

func TestAddPlace_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*NewPlace)
		code   string
	}{
		{"タイトルが空", func(p *NewPlace) { p.Title = "  " }, model.ErrCodeValidation},
		{"タイトルがタグのみ", func(p *NewPlace) { p.Title = "<br>" }, model.ErrCodeValidation},
		{"価格が0", func(p *NewPlace) { p.Price = 0 }, model.ErrCodeValidation},
		{"価格が負", func(p *NewPlace) { p.Price = -5 }, model.ErrCodeValidation},
		{"日付が無い", func(p *NewPlace) { p.AvailableFrom = time.Time{} }, model.ErrCodeValidation},
		{"日付が逆順", func(p *NewPlace) { p.AvailableFrom, p.AvailableTo = to, from }, model.ErrCodeValidation},
		{"開始日と終了日が同じ", func(p *NewPlace) { p.AvailableTo = p.AvailableFrom }, model.ErrCodeValidation},
		{"緯度が範囲外", func(p *NewPlace) { p.Location.Lat = 91 }, model.ErrCodeValidation},
		{"画像URLが無い", func(p *NewPlace) { p.ImageURL = "" }, model.ErrCodeInvalidURL},
		{"画像URLがプライベートIP", func(p *NewPlace) { p.ImageURL = "http://192.168.0.1/x.jpg" }, model.ErrCodeInvalidURL},
		{"画像URLがjavascriptスキーム", func(p *NewPlace) { p.ImageURL = "javascript:alert(1)" }, model.ErrCodeInvalidURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newFakeBackend()
			s := newTestService(backend, &mockSession{userID: "u1", token: "tok"})

			in := validPlace()
			tt.mutate(&in)
			_, err := s.AddPlace(context.Background(), in)

			var apiErr *model.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("error = %v, want *APIError", err)
			}
			if apiErr.Code != tt.code {
				t.Errorf("Code = %s, want %s", apiErr.Code, tt.code)
			}
			if len(backend.records) != 0 {
				t.Error("invalid place must not reach the backend")
			}
		})
	}
}

func TestAddPlace_WithoutSession(t *testing.T) {
	s := newTestService(newFakeBackend(), &mockSession{})

	_, err := s.AddPlace(context.Background(), validPlace())
	if !errors.Is(err, model.ErrNotAuthenticated) {
		t.Errorf("error = %v, want ErrNotAuthenticated", err)
	}
}

func TestUpdatePlace_ChangesTitleAndDescriptionOnly(t *testing.T) {
	backend := newFakeBackend()
	session := &mockSession{userID: "u1", token: "tok"}
	s := newTestService(backend, session)

	first, _ := s.AddPlace(context.Background(), validPlace())
	second := validPlace()
	second.Title = "The Foggy Palace"
	second.Price = 99.99
	if _, err := s.AddPlace(context.Background(), second); err != nil {
		t.Fatal(err)
	}

	updated, err := s.UpdatePlace(context.Background(), first.ID, "Carnegie Mansion", "Upper East Side")
	if err != nil {
		t.Fatalf("UpdatePlace() error = %v", err)
	}
	if updated.Title != "Carnegie Mansion" || updated.Description != "Upper East Side" {
		t.Errorf("updated = %+v", updated)
	}
	if updated.Price != 149.99 || updated.ImageURL != first.ImageURL || !updated.AvailableFrom.Equal(from) {
		t.Errorf("other fields changed: %+v", updated)
	}

	places := s.Places()
	if len(places) != 2 {
		t.Fatalf("len = %d, want 2", len(places))
	}
	if places[0].Title != "Carnegie Mansion" || places[1].Title != "The Foggy Palace" {
		t.Errorf("Places() = %+v", places)
	}
	if backend.puts != 1 {
		t.Errorf("puts = %d, want 1", backend.puts)
	}
}

func TestUpdatePlace_UnknownID(t *testing.T) {
	s := newTestService(newFakeBackend(), &mockSession{userID: "u1", token: "tok"})
	if _, err := s.AddPlace(context.Background(), validPlace()); err != nil {
		t.Fatal(err)
	}

	_, err := s.UpdatePlace(context.Background(), "nope", "t", "d")
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestUpdatePlace_EmptyTitle(t *testing.T) {
	s := newTestService(newFakeBackend(), &mockSession{userID: "u1", token: "tok"})

	_, err := s.UpdatePlace(context.Background(), "p1", "", "d")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeValidation {
		t.Errorf("error = %v, want validation error", err)
	}
}

func TestFetchPlaces_RoundTripsThroughBackend(t *testing.T) {
	backend := newFakeBackend()
	session := &mockSession{userID: "u1", token: "tok"}
	if _, err := newTestService(backend, session).AddPlace(context.Background(), validPlace()); err != nil {
		t.Fatal(err)
	}

	// 別インスタンスから取得
	s := newTestService(backend, session)
	got, err := s.FetchPlaces(context.Background())
	if err != nil {
		t.Fatalf("FetchPlaces() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	p := got[0]
	if p.ID != "-P1" || p.Title != "Manhattan Mansion" || !p.AvailableTo.Equal(to) {
		t.Errorf("place = %+v", p)
	}
	if p.Location == nil || p.Location.Lat != 40.78 {
		t.Errorf("location = %+v", p.Location)
	}

	if fetched, ok := s.GetPlace("-P1"); !ok || fetched.Title != p.Title {
		t.Errorf("GetPlace() = (%+v, %v)", fetched, ok)
	}
}
