package models

import "time"

// Expense represents a financial expense record owned by a single user.
type Expense struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	Title      string    `json:"title"`
	Amount     Amount    `json:"amount"`
	Category   *string   `json:"category"`
	IncurredAt *Date     `json:"incurred_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// ExpenseInput carries the client-supplied fields of an expense. Nil fields
// are written as NULL.
type ExpenseInput struct {
	Title      *string `json:"title"`
	Amount     *Amount `json:"amount"`
	Category   *string `json:"category"`
	IncurredAt *Date   `json:"incurred_at"`
}

// User represents a user account.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Identity is the authenticated caller decoded from a bearer token.
type Identity struct {
	UserID   int64
	Username string
}

// CategoryTotal aggregates a user's spending for one category.
type CategoryTotal struct {
	Category string `json:"category"`
	Total    Amount `json:"total"`
	Count    int    `json:"count"`
}
