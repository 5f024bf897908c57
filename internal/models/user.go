package models

import "time"

// User is an account in the User Directory. The password hash and reset
// token never leave the server.
type User struct {
	ID               string     `bson:"_id,omitempty" json:"id"`
	Name             string     `bson:"name" json:"name"`
	Email            string     `bson:"email" json:"email"`
	PasswordHash     string     `bson:"passwordHash" json:"-"`
	Avatar           string     `bson:"avatar,omitempty" json:"avatar,omitempty"`
	Bio              string     `bson:"bio,omitempty" json:"bio,omitempty"`
	ResetTokenHash   string     `bson:"resetTokenHash,omitempty" json:"-"`
	ResetTokenExpiry *time.Time `bson:"resetTokenExpiry,omitempty" json:"-"`
	CreatedAt        time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time  `bson:"updatedAt" json:"updatedAt"`
	LastActive       time.Time  `bson:"lastActive" json:"lastActive"`
}

// PublicUser is the projection returned to clients.
type PublicUser struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Avatar     string    `json:"avatar,omitempty"`
	Bio        string    `json:"bio,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	LastActive time.Time `json:"lastActive"`
}

func (u *User) Public() PublicUser {
	return PublicUser{
		ID:         u.ID,
		Name:       u.Name,
		Email:      u.Email,
		Avatar:     u.Avatar,
		Bio:        u.Bio,
		CreatedAt:  u.CreatedAt,
		LastActive: u.LastActive,
	}
}
