package model

import "time"

// Booking は宿泊場所に対する予約を表す。
type Booking struct {
	ID          string
	PlaceID     string
	UserID      string
	PlaceTitle  string
	PlaceImage  string
	FirstName   string
	LastName    string
	GuestNumber int
	BookedFrom  time.Time
	BookedTo    time.Time
}
