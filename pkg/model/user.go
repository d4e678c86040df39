package model

import "time"

type UserType string

const (
	UserTypeCustomer UserType = "customer"
	UserTypeHost     UserType = "host"
	UserTypeAdmin    UserType = "admin"
)

func (t UserType) IsValid() bool {
	switch t {
	case UserTypeCustomer, UserTypeHost, UserTypeAdmin:
		return true
	}
	return false
}

type User struct {
	ID        string    `json:"id,omitempty" bson:"_id,omitempty"`
	Name      string    `json:"name" bson:"name"`
	Email     string    `json:"email" bson:"email"`
	UserType  UserType  `json:"user_type" bson:"user_type"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

func (u *User) Summary() *UserSummary {
	return &UserSummary{
		ID:    u.ID,
		Name:  u.Name,
		Email: u.Email,
	}
}

type UserSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}
