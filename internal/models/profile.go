package models

// Profile is the public identity of a user.
type Profile struct {
	ID        int    `db:"id" json:"id"`
	Username  string `db:"username" json:"username"`
	AvatarURL string `db:"avatar_url" json:"avatar_url,omitempty"`
}
