package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mealmetrics/mealmetrics/internal/domain"
	"github.com/mealmetrics/mealmetrics/internal/imageprep"
	"github.com/mealmetrics/mealmetrics/internal/photostore"
	"github.com/mealmetrics/mealmetrics/internal/vision"
)

// ErrNotFound reports a confirm or cancel against a pending meal that does
// not exist (already decided, or never created).
var ErrNotFound = errors.New("pending meal not found")

// preparer is the subset of imageprep.Preparer the service requires.
type preparer interface {
	Prepare(data []byte) (*imageprep.Payload, error)
}

// modelGateway is the subset of vision.Gateway the service requires.
type modelGateway interface {
	Analyze(ctx context.Context, payload *imageprep.Payload, prompt string) (string, error)
}

// mealRepository is the subset of store.MealStore the service requires.
type mealRepository interface {
	Log(ctx context.Context, meal *domain.Meal) (*domain.Meal, error)
	ListByDate(ctx context.Context, userID int64, date string) ([]*domain.Meal, error)
	DailySummary(ctx context.Context, userID int64, date string) (*domain.DailySummary, error)
	CreatePending(ctx context.Context, pending *domain.PendingMeal) (*domain.PendingMeal, error)
	GetPending(ctx context.Context, id int64) (*domain.PendingMeal, error)
	DeletePending(ctx context.Context, id int64) error
}

// AnalysisService runs the prepare → gateway → recover pipeline and the meal
// log operations that consume its results. Each analysis is one sequential
// pipeline with no shared mutable state; concurrent calls need no
// coordination.
type AnalysisService struct {
	preparer      preparer
	gateway       modelGateway
	meals         mealRepository
	photos        photostore.PhotoStore
	maxImageBytes int64
	logger        *slog.Logger
}

func NewAnalysisService(
	prep preparer,
	gateway modelGateway,
	meals mealRepository,
	photos photostore.PhotoStore,
	maxImageBytes int64,
	logger *slog.Logger,
) *AnalysisService {
	return &AnalysisService{
		preparer:      prep,
		gateway:       gateway,
		meals:         meals,
		photos:        photos,
		maxImageBytes: maxImageBytes,
		logger:        logger,
	}
}

// AnalyzeMealImage is the single entry point for upstream callers. It
// rejects oversized input before any network call, prepares the image,
// queries the ranked models, and recovers the reply into a valid record.
// Errors are either *imageprep.ValidationError (bad input) or a gateway
// failure (*vision.FatalError / *vision.ExhaustedError).
func (s *AnalysisService) AnalyzeMealImage(ctx context.Context, imageData []byte) (*vision.AnalysisResult, error) {
	result, _, err := s.analyze(ctx, imageData)
	return result, err
}

// analyze also returns the prepared payload so callers that persist the
// photo don't prepare the image twice.
func (s *AnalysisService) analyze(ctx context.Context, imageData []byte) (*vision.AnalysisResult, *imageprep.Payload, error) {
	if s.maxImageBytes > 0 && int64(len(imageData)) > s.maxImageBytes {
		return nil, nil, &imageprep.ValidationError{
			Reason: fmt.Sprintf("image is %d bytes, limit is %d", len(imageData), s.maxImageBytes),
		}
	}

	payload, err := s.preparer.Prepare(imageData)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Debug("image prepared",
		"bytes", len(payload.Bytes), "width", payload.Width, "height", payload.Height)

	raw, err := s.gateway.Analyze(ctx, payload, vision.AnalysisPrompt)
	if err != nil {
		return nil, nil, err
	}

	result := vision.Recover(raw)
	s.logger.Info("meal analyzed",
		"description", result.Description,
		"calories", result.Calories,
		"confidence", result.Confidence,
		"recovered", result.Recovered)
	return result, payload, nil
}

// AnalyzeAndHold analyzes the image and parks the result as a pending meal
// for the user to confirm or cancel. The prepared photo is stored so the
// confirmed meal can reference it; photo storage failure degrades to a
// pending meal without a photo.
func (s *AnalysisService) AnalyzeAndHold(ctx context.Context, userID int64, imageData []byte) (*domain.PendingMeal, error) {
	result, payload, err := s.analyze(ctx, imageData)
	if err != nil {
		return nil, err
	}

	var photoKey *string
	key, err := s.photos.Save(ctx, fmt.Sprintf("user_%d", userID), payload.MimeType, bytes.NewReader(payload.Bytes))
	if err != nil {
		s.logger.Warn("failed to store meal photo", "user_id", userID, "error", err)
	} else {
		photoKey = &key
	}

	pending := &domain.PendingMeal{
		UserID:         userID,
		Description:    result.Description,
		Calories:       result.Calories,
		Protein:        result.Protein,
		Carbs:          result.Carbs,
		Fat:            result.Fat,
		Confidence:     result.Confidence,
		HealthCategory: result.HealthCategory,
		Notes:          result.Notes,
		Recovered:      result.Recovered,
		PhotoKey:       photoKey,
	}
	return s.meals.CreatePending(ctx, pending)
}

// ConfirmMeal moves a pending meal into the log under today's date.
func (s *AnalysisService) ConfirmMeal(ctx context.Context, pendingID int64) (*domain.Meal, error) {
	pending, err := s.meals.GetPending(ctx, pendingID)
	if err != nil {
		return nil, err
	}
	if pending == nil {
		return nil, ErrNotFound
	}

	meal, err := s.meals.Log(ctx, &domain.Meal{
		UserID:         pending.UserID,
		Description:    pending.Description,
		Calories:       pending.Calories,
		Protein:        pending.Protein,
		Carbs:          pending.Carbs,
		Fat:            pending.Fat,
		Confidence:     pending.Confidence,
		HealthCategory: pending.HealthCategory,
		Notes:          pending.Notes,
		Recovered:      pending.Recovered,
		PhotoKey:       pending.PhotoKey,
		Date:           time.Now().Format("2006-01-02"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to log meal: %w", err)
	}

	if err := s.meals.DeletePending(ctx, pendingID); err != nil {
		s.logger.Warn("failed to remove confirmed pending meal", "pending_id", pendingID, "error", err)
	}
	return meal, nil
}

// CancelMeal discards a pending meal and its stored photo.
func (s *AnalysisService) CancelMeal(ctx context.Context, pendingID int64) error {
	pending, err := s.meals.GetPending(ctx, pendingID)
	if err != nil {
		return err
	}
	if pending == nil {
		return ErrNotFound
	}

	if pending.PhotoKey != nil {
		if err := s.photos.Delete(ctx, *pending.PhotoKey); err != nil {
			s.logger.Warn("failed to delete cancelled meal photo", "key", *pending.PhotoKey, "error", err)
		}
	}
	return s.meals.DeletePending(ctx, pendingID)
}

func (s *AnalysisService) MealsForDate(ctx context.Context, userID int64, date string) ([]*domain.Meal, error) {
	return s.meals.ListByDate(ctx, userID, date)
}

func (s *AnalysisService) Summary(ctx context.Context, userID int64, date string) (*domain.DailySummary, error) {
	return s.meals.DailySummary(ctx, userID, date)
}
