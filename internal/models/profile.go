package models

import "time"

// Profile holds display metadata for a user.
type Profile struct {
	UserID    string    `db:"user_id" json:"user_id"`
	Name      string    `db:"name" json:"name"`
	AvatarURL string    `db:"avatar_url" json:"avatar_url,omitempty"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
