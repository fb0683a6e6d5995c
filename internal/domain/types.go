package domain

import "time"

// Meal is a logged meal entry.
type Meal struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"user_id"`
	Description    string    `json:"description"`
	Calories       float64   `json:"calories"`
	Protein        *float64  `json:"protein_g,omitempty"`
	Carbs          *float64  `json:"carbs_g,omitempty"`
	Fat            *float64  `json:"fat_g,omitempty"`
	Confidence     int       `json:"confidence"`
	HealthCategory string    `json:"health_category"`
	Notes          string    `json:"notes,omitempty"`
	Recovered      bool      `json:"recovered"`
	PhotoKey       *string   `json:"photo_key,omitempty"`
	Date           string    `json:"date"`
	CreatedAt      time.Time `json:"created_at"`
}

// PendingMeal is an analyzed meal awaiting the user's confirm-or-cancel
// decision before it enters the log.
type PendingMeal struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"user_id"`
	Description    string    `json:"description"`
	Calories       float64   `json:"calories"`
	Protein        *float64  `json:"protein_g,omitempty"`
	Carbs          *float64  `json:"carbs_g,omitempty"`
	Fat            *float64  `json:"fat_g,omitempty"`
	Confidence     int       `json:"confidence"`
	HealthCategory string    `json:"health_category"`
	Notes          string    `json:"notes,omitempty"`
	Recovered      bool      `json:"recovered"`
	PhotoKey       *string   `json:"photo_key,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// DailySummary aggregates one user's logged meals for one date.
type DailySummary struct {
	UserID        int64   `json:"user_id"`
	Date          string  `json:"date"`
	TotalCalories float64 `json:"total_calories"`
	MealCount     int     `json:"meal_count"`
}
