package model

import "github.com/google/uuid"

// User is the slice of the users table the engine needs: identity for
// denormalized snapshots and the rating touched by cancel penalties.
type User struct {
	ID      uuid.UUID `json:"id" db:"id"`
	Name    string    `json:"name" db:"name"`
	Phone   string    `json:"phone" db:"phone"`
	Email   string    `json:"email" db:"email"`
	Company string    `json:"company" db:"company"`
	INN     string    `json:"inn" db:"inn"`
	Rating  float64   `json:"rating" db:"rating"`
}
