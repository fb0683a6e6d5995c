package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/mealmetrics/mealmetrics/internal/imageprep"
	"github.com/mealmetrics/mealmetrics/internal/service"
	"github.com/mealmetrics/mealmetrics/internal/vision"
)

const maxUploadSize = 20 * 1024 * 1024 // request-level bound; the analysis size cap is stricter

// handleAnalyze runs a one-shot analysis without persisting anything.
// The image arrives either as the raw request body or as the "photo" field
// of a multipart form.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	imageData, err := readImage(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	result, err := s.service.AnalyzeMealImage(r.Context(), imageData)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleCreateMeal analyzes the image and parks the result as a pending meal
// awaiting confirmation.
func (s *Server) handleCreateMeal(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("user_id is required"))
		return
	}

	imageData, err := readImage(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	pending, err := s.service.AnalyzeAndHold(r.Context(), userID, imageData)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, pending)
}

func (s *Server) handleConfirmMeal(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid meal id"))
		return
	}

	meal, err := s.service.ConfirmMeal(r.Context(), id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, meal)
}

func (s *Server) handleCancelMeal(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid meal id"))
		return
	}

	if err := s.service.CancelMeal(r.Context(), id); err != nil {
		writeError(w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListMeals(w http.ResponseWriter, r *http.Request) {
	userID, date, err := userAndDate(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	meals, err := s.service.MealsForDate(r.Context(), userID, date)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, meals)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	userID, date, err := userAndDate(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	summary, err := s.service.Summary(r.Context(), userID, date)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleGetPhoto(w http.ResponseWriter, r *http.Request) {
	rc, mimeType, err := s.photoStore.Get(r.Context(), r.PathValue("key"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody("photo not found"))
		return
	}
	defer func() {
		if err := rc.Close(); err != nil {
			s.logger.Error("failed to close photo reader", "error", err)
		}
	}()

	w.Header().Set("Content-Type", mimeType)
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Error("failed to write photo response", "error", err)
	}
}

// readImage extracts the image bytes from either a multipart "photo" field
// or the raw request body.
func readImage(r *http.Request) ([]byte, error) {
	ct := r.Header.Get("Content-Type")
	if len(ct) >= 19 && ct[:19] == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			return nil, &imageprep.ValidationError{Reason: "invalid multipart form"}
		}
		file, _, err := r.FormFile("photo")
		if err != nil {
			return nil, &imageprep.ValidationError{Reason: "missing photo field"}
		}
		defer file.Close()
		return io.ReadAll(io.LimitReader(file, maxUploadSize))
	}
	return io.ReadAll(io.LimitReader(r.Body, maxUploadSize))
}

func userAndDate(r *http.Request) (int64, string, error) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("user_id is required")
	}
	date := r.URL.Query().Get("date")
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}
	return userID, date, nil
}

// writeError maps the pipeline error taxonomy onto HTTP statuses: bad input
// is the client's problem, gateway exhaustion and fatal configuration
// failures surface as service unavailability.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var validationErr *imageprep.ValidationError
	if errors.As(err, &validationErr) {
		writeJSON(w, http.StatusBadRequest, errorBody(validationErr.Error()))
		return
	}

	if errors.Is(err, service.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody(err.Error()))
		return
	}

	var fatalErr *vision.FatalError
	var exhaustedErr *vision.ExhaustedError
	if errors.As(err, &fatalErr) || errors.As(err, &exhaustedErr) {
		logger.Error("analysis unavailable", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, errorBody("meal analysis is temporarily unavailable"))
		return
	}

	logger.Error("request failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}
