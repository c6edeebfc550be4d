package types

import (
	"time"

	"whisper/internal/models"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

type SignupRequest struct {
	Name     string `json:"name" validate:"required,min=1,max=64"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type ProfileRequest struct {
	Name       string `json:"name" validate:"omitempty,min=1,max=64"`
	Email      string `json:"email" validate:"omitempty,email"`
	ProfilePic string `json:"profilePic" validate:"omitempty,url"`
}

// Content and attachment limits are checked by the dispatcher after trimming.
type SendMessageRequest struct {
	Content     string   `json:"content"`
	Attachments []string `json:"attachments"`
	IsAnonymous *bool    `json:"isAnonymous"`
	ClientRef   string   `json:"clientRef" validate:"max=128"`
}

func (r SendMessageRequest) Anonymous() bool {
	return r.IsAnonymous == nil || *r.IsAnonymous
}

type UserDTO struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	ProfilePic string    `json:"profilePic"`
	CreatedAt  time.Time `json:"createdAt"`
}

func NewUserDTO(u *models.User) UserDTO {
	return UserDTO{
		ID:         u.ID,
		Name:       u.Name,
		Email:      u.Email,
		ProfilePic: u.ProfilePic,
		CreatedAt:  u.CreatedAt,
	}
}

// UserSummary is the public view of another user.
type UserSummary struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	ProfilePic string    `json:"profilePic"`
	Online     bool      `json:"online"`
}

func NewUserSummary(u *models.User) UserSummary {
	return UserSummary{ID: u.ID, Name: u.Name, ProfilePic: u.ProfilePic}
}

// NewUserSummaries maps users and flags those present in online.
func NewUserSummaries(users []*models.User, online map[uuid.UUID]struct{}) []UserSummary {
	return lo.Map(users, func(u *models.User, _ int) UserSummary {
		s := NewUserSummary(u)
		_, s.Online = online[u.ID]
		return s
	})
}

type AuthResponse struct {
	Token string  `json:"token"`
	User  UserDTO `json:"user"`
}

type SendMessageResponse struct {
	ClientRef string          `json:"clientRef,omitempty"`
	Delivery  Delivery        `json:"delivery"`
	Message   *models.Message `json:"message"`
}

// Base64UploadRequest carries one file as raw base64 or a data URI.
type Base64UploadRequest struct {
	File string `json:"file" validate:"required"`
}

type UploadResponse struct {
	URLs []string `json:"urls"`
}

type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}
