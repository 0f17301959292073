package places

import (
	"encoding/json"
	"time"

	"github.com/hitoshi/staybook/internal/model"
)

// placeRecord はコレクション上の宿泊場所の表現。IDはキーとして別に保持される。
type placeRecord struct {
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	ImageURL      string          `json:"imageUrl"`
	Price         float64         `json:"price"`
	AvailableFrom time.Time       `json:"availableFrom"`
	AvailableTo   time.Time       `json:"availableTo"`
	UserID        string          `json:"userId"`
	Location      *locationRecord `json:"location,omitempty"`
}

type locationRecord struct {
	Lat               float64 `json:"lat"`
	Lng               float64 `json:"lng"`
	Address           string  `json:"address"`
	StaticMapImageURL string  `json:"staticMapImageUrl"`
}

type placeCodec struct{}

func (placeCodec) ID(p model.Place) string { return p.ID }

func (placeCodec) WithID(p model.Place, id string) model.Place {
	p.ID = id
	return p
}

func (placeCodec) Decode(id string, raw json.RawMessage) (model.Place, error) {
	var r placeRecord
	if err := json.Unmarshal(raw, &r); err != nil {
		return model.Place{}, err
	}

	p := model.Place{
		ID:            id,
		UserID:        r.UserID,
		Title:         r.Title,
		Description:   r.Description,
		ImageURL:      r.ImageURL,
		Price:         r.Price,
		AvailableFrom: r.AvailableFrom,
		AvailableTo:   r.AvailableTo,
	}
	if r.Location != nil {
		p.Location = &model.PlaceLocation{
			Lat:               r.Location.Lat,
			Lng:               r.Location.Lng,
			Address:           r.Location.Address,
			StaticMapImageURL: r.Location.StaticMapImageURL,
		}
	}
	return p, nil
}

func (placeCodec) Encode(p model.Place) (any, error) {
	r := placeRecord{
		Title:         p.Title,
		Description:   p.Description,
		ImageURL:      p.ImageURL,
		Price:         p.Price,
		AvailableFrom: p.AvailableFrom.UTC(),
		AvailableTo:   p.AvailableTo.UTC(),
		UserID:        p.UserID,
	}
	if p.Location != nil {
		r.Location = &locationRecord{
			Lat:               p.Location.Lat,
			Lng:               p.Location.Lng,
			Address:           p.Location.Address,
			StaticMapImageURL: p.Location.StaticMapImageURL,
		}
	}
	return r, nil
}
