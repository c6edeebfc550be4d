package models

import (
	"time"

	"github.com/google/uuid"
)

const DefaultProfilePic = "https://www.pngitem.com/pimgs/m/146-1468479_my-profile-icon-blank-profile-picture-circle-hd.png"

type User struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Password_Hash string    `json:"-"`
	ProfilePic    string    `json:"profilePic"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ProfileUpdate carries optional profile fields; empty strings keep the current value.
type ProfileUpdate struct {
	Name       string
	Email      string
	ProfilePic string
}
