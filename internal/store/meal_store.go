package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/mealmetrics/mealmetrics/internal/domain"
)

type MealStore struct {
	db *sql.DB
}

func NewMealStore(db *sql.DB) *MealStore {
	return &MealStore{db: db}
}

const mealColumns = `id, user_id, description, calories, protein_g, carbs_g, fat_g,
	confidence, health_category, notes, recovered, photo_key, date, created_at`

func (s *MealStore) Log(ctx context.Context, meal *domain.Meal) (*domain.Meal, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO meals (user_id, description, calories, protein_g, carbs_g, fat_g,
			confidence, health_category, notes, recovered, photo_key, date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, meal.UserID, meal.Description, meal.Calories, meal.Protein, meal.Carbs, meal.Fat,
		meal.Confidence, meal.HealthCategory, meal.Notes, meal.Recovered, meal.PhotoKey, meal.Date)
	if err != nil {
		return nil, fmt.Errorf("failed to log meal: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

func (s *MealStore) GetByID(ctx context.Context, id int64) (*domain.Meal, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+mealColumns+` FROM meals WHERE id = ?
	`, id)

	meal, err := scanMeal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get meal: %w", err)
	}
	return meal, nil
}

func (s *MealStore) ListByDate(ctx context.Context, userID int64, date string) ([]*domain.Meal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+mealColumns+` FROM meals
		WHERE user_id = ? AND date = ? ORDER BY created_at ASC
	`, userID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to list meals: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("failed to close rows", "error", err)
		}
	}()

	var meals []*domain.Meal
	for rows.Next() {
		meal, err := scanMeal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan meal: %w", err)
		}
		meals = append(meals, meal)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating meals: %w", err)
	}
	return meals, nil
}

func (s *MealStore) DailySummary(ctx context.Context, userID int64, date string) (*domain.DailySummary, error) {
	summary := &domain.DailySummary{UserID: userID, Date: date}
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(calories), 0), COUNT(*) FROM meals
		WHERE user_id = ? AND date = ?
	`, userID, date).Scan(&summary.TotalCalories, &summary.MealCount)
	if err != nil {
		return nil, fmt.Errorf("failed to compute daily summary: %w", err)
	}
	return summary, nil
}

func (s *MealStore) CreatePending(ctx context.Context, pending *domain.PendingMeal) (*domain.PendingMeal, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_meals (user_id, description, calories, protein_g, carbs_g, fat_g,
			confidence, health_category, notes, recovered, photo_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, pending.UserID, pending.Description, pending.Calories, pending.Protein, pending.Carbs,
		pending.Fat, pending.Confidence, pending.HealthCategory, pending.Notes,
		pending.Recovered, pending.PhotoKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create pending meal: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}
	return s.GetPending(ctx, id)
}

func (s *MealStore) GetPending(ctx context.Context, id int64) (*domain.PendingMeal, error) {
	pending := &domain.PendingMeal{}
	var protein, carbs, fat sql.NullFloat64
	var photoKey sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, description, calories, protein_g, carbs_g, fat_g,
			confidence, health_category, notes, recovered, photo_key, created_at
		FROM pending_meals WHERE id = ?
	`, id).Scan(&pending.ID, &pending.UserID, &pending.Description, &pending.Calories,
		&protein, &carbs, &fat, &pending.Confidence, &pending.HealthCategory,
		&pending.Notes, &pending.Recovered, &photoKey, &pending.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending meal: %w", err)
	}

	pending.Protein = nullableFloat(protein)
	pending.Carbs = nullableFloat(carbs)
	pending.Fat = nullableFloat(fat)
	pending.PhotoKey = nullableString(photoKey)
	return pending, nil
}

func (s *MealStore) DeletePending(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM pending_meals WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete pending meal: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("pending meal not found")
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanMeal(row scanner) (*domain.Meal, error) {
	meal := &domain.Meal{}
	var protein, carbs, fat sql.NullFloat64
	var photoKey sql.NullString

	err := row.Scan(&meal.ID, &meal.UserID, &meal.Description, &meal.Calories,
		&protein, &carbs, &fat, &meal.Confidence, &meal.HealthCategory,
		&meal.Notes, &meal.Recovered, &photoKey, &meal.Date, &meal.CreatedAt)
	if err != nil {
		return nil, err
	}

	meal.Protein = nullableFloat(protein)
	meal.Carbs = nullableFloat(carbs)
	meal.Fat = nullableFloat(fat)
	meal.PhotoKey = nullableString(photoKey)
	return meal, nil
}

func nullableFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}

func nullableString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}
