package models

import "time"

// User is a merchant operator. Each user owns exactly one store and its wallet.
type User struct {
	ID          int        `json:"id" example:"1"`
	Email       string     `json:"email" example:"merchant@example.com"`
	FirstName   string     `json:"first_name" example:"Ada"`
	LastName    string     `json:"last_name" example:"Obi"`
	StoreID     string     `json:"store_id" example:"st_9f8e7d6c"`
	StoreName   string     `json:"store_name" example:"Ada's Fabrics"`
	PhoneNumber string     `json:"phone_number" example:"+2348012345678"`
	Role        string     `json:"role"`
	LastLogin   *time.Time `json:"last_login,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
