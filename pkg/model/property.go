package model

import "time"

type RoomDetail struct {
	RoomType       string  `json:"room_type" bson:"room_type"`
	TotalRooms     int     `json:"total_rooms" bson:"total_rooms"`
	AvailableRooms int     `json:"available_rooms" bson:"available_rooms"`
	PricePerNight  float64 `json:"price_per_night" bson:"price_per_night"`
	Capacity       int     `json:"capacity" bson:"capacity"`
}

type Property struct {
	ID            string       `json:"id,omitempty" bson:"_id,omitempty"`
	HostID        string       `json:"host_id" bson:"host_id"`
	Title         string       `json:"title" bson:"title"`
	City          string       `json:"city" bson:"city"`
	PricePerNight float64      `json:"price_per_night" bson:"price_per_night"`
	RoomDetails   []RoomDetail `json:"room_details" bson:"room_details"`
	IsApproved    bool         `json:"is_approved" bson:"is_approved"`
	CreatedAt     time.Time    `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at" bson:"updated_at"`
}

func (p *Property) HasRoomType(roomType string) bool {
	for _, room := range p.RoomDetails {
		if room.RoomType == roomType {
			return true
		}
	}
	return false
}

func (p *Property) Summary() *PropertySummary {
	return &PropertySummary{
		ID:    p.ID,
		Title: p.Title,
		City:  p.City,
	}
}

type PropertySummary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	City  string `json:"city"`
}

type PropertyWithRevenue struct {
	Property
	TotalRevenue float64 `json:"total_revenue"`
}

type PropertyApprovalRequest struct {
	IsApproved *bool `json:"is_approved" validate:"required"`
}
