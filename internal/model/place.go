package model

import "time"

// Place はユーザーが提供する宿泊場所（オファー）を表す。
type Place struct {
	ID            string
	UserID        string
	Title         string
	Description   string
	ImageURL      string
	Price         float64
	AvailableFrom time.Time
	AvailableTo   time.Time
	Location      *PlaceLocation
}

// PlaceLocation は地図で選択された場所の座標と住所を表す。
type PlaceLocation struct {
	Lat               float64
	Lng               float64
	Address           string
	StaticMapImageURL string
}
