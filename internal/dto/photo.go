package dto

import "time"

// PhotoResponse returns the signed URL for an uploaded photo, typically
// submitted back as resolution evidence.
type PhotoResponse struct {
	PhotoURL  string    `json:"photo_url"`
	ExpiresAt time.Time `json:"expires_at"`
}
