package models

// StreamInfo is a live-mode catalog entry.
type StreamInfo struct {
	ID           string      `gorm:"primaryKey" json:"id"`
	Title        string      `json:"title"`
	ViewerCount  int         `json:"viewer_count"`
	ThumbnailURL string      `json:"thumbnail_url"`
	StreamerName string      `json:"streamer_name"`
	Tag          IdentityTag `gorm:"index" json:"tag"`
}
