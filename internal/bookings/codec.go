package bookings

import (
	"encoding/json"
	"time"

	"github.com/hitoshi/staybook/internal/model"
)

type bookingRecord struct {
	PlaceID     string    `json:"placeId"`
	UserID      string    `json:"userId"`
	PlaceTitle  string    `json:"placeTitle"`
	PlaceImage  string    `json:"placeImage"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	GuestNumber int       `json:"guestNumber"`
	BookedFrom  time.Time `json:"bookedFrom"`
	BookedTo    time.Time `json:"bookedTo"`
}

type bookingCodec struct{}

func (bookingCodec) ID(b model.Booking) string { return b.ID }

func (bookingCodec) WithID(b model.Booking, id string) model.Booking {
	b.ID = id
	return b
}

func (bookingCodec) Decode(id string, raw json.RawMessage) (model.Booking, error) {
	var r bookingRecord
	if err := json.Unmarshal(raw, &r); err != nil {
		return model.Booking{}, err
	}
	return model.Booking{
		ID:          id,
		PlaceID:     r.PlaceID,
		UserID:      r.UserID,
		PlaceTitle:  r.PlaceTitle,
		PlaceImage:  r.PlaceImage,
		FirstName:   r.FirstName,
		LastName:    r.LastName,
		GuestNumber: r.GuestNumber,
		BookedFrom:  r.BookedFrom,
		BookedTo:    r.BookedTo,
	}, nil
}

func (bookingCodec) Encode(b model.Booking) (any, error) {
	return bookingRecord{
		PlaceID:     b.PlaceID,
		UserID:      b.UserID,
		PlaceTitle:  b.PlaceTitle,
		PlaceImage:  b.PlaceImage,
		FirstName:   b.FirstName,
		LastName:    b.LastName,
		GuestNumber: b.GuestNumber,
		BookedFrom:  b.BookedFrom.UTC(),
		BookedTo:    b.BookedTo.UTC(),
	}, nil
}
