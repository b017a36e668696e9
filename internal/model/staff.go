package model

import "time"

// Staff is an operator signed in through GitHub. GitHubID is the stable
// external key; ID is our own xid.
type Staff struct {
	ID        string    `json:"id"`
	GitHubID  int64     `json:"githubId"`
	Login     string    `json:"login"`
	Email     string    `json:"email"`
	AvatarURL string    `json:"avatarUrl"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
