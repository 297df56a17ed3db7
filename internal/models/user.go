package models

import "time"

// User is the slice of the account record the ordering pipeline reads.
// Accounts are owned by the user service; this table is only looked up here.
type User struct {
	ID         string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name       string    `json:"name" gorm:"type:varchar(100)"`
	Email      string    `json:"email" gorm:"uniqueIndex;type:varchar(255)"`
	Street     string    `json:"street"`
	City       string    `json:"city"`
	PostalCode string    `json:"postalCode"`
	Country    string    `json:"country"`
	Phone      string    `json:"phone"`
	IsAdmin    bool      `json:"isAdmin"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// HasShippingAddress reports whether checkout can ship to this user.
func (u *User) HasShippingAddress() bool {
	return u.Street != ""
}
