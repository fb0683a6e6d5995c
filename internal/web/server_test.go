package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mealmetrics/mealmetrics/internal/db"
	"github.com/mealmetrics/mealmetrics/internal/domain"
	"github.com/mealmetrics/mealmetrics/internal/imageprep"
	"github.com/mealmetrics/mealmetrics/internal/photostore/local"
	"github.com/mealmetrics/mealmetrics/internal/service"
	"github.com/mealmetrics/mealmetrics/internal/store"
	"github.com/mealmetrics/mealmetrics/internal/vision"
)

// fakeGateway replaces the model backends; everything else in the stack is
// real.
type fakeGateway struct {
	raw string
	err error
}

func (f *fakeGateway) Analyze(ctx context.Context, payload *imageprep.Payload, prompt string) (string, error) {
	return f.raw, f.err
}

func newTestServer(t *testing.T, gw *fakeGateway) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	photos, err := local.NewLocalPhotoStore(t.TempDir())
	require.NoError(t, err)

	svc := service.NewAnalysisService(
		imageprep.NewPreparer(imageprep.DefaultOptions(), logger),
		gw,
		store.NewMealStore(database),
		photos,
		10*1024*1024,
		logger,
	)
	return NewServer(svc, photos, logger)
}

func testImage(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.NRGBA{R: 180, G: 140, B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func goodReply() string {
	return `{"description":"Grilled chicken with rice","total_calories":450,"confidence":85,"health_category":"healthy"}`
}

func TestAnalyzeEndpoint(t *testing.T) {
	server := newTestServer(t, &fakeGateway{raw: goodReply()})

	req := httptest.NewRequest(http.MethodPost, "/analyze", bytes.NewReader(testImage(t)))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	var result vision.AnalysisResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.Equal(t, "Grilled chicken with rice", result.Description)
	assert.Equal(t, 450.0, result.Calories)
	assert.False(t, result.Recovered)
}

func TestAnalyzeEndpointBadImage(t *testing.T) {
	server := newTestServer(t, &fakeGateway{raw: goodReply()})

	req := httptest.NewRequest(http.MethodPost, "/analyze", bytes.NewReader([]byte("not an image")))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeEndpointGatewayDown(t *testing.T) {
	server := newTestServer(t, &fakeGateway{
		err: &vision.ExhaustedError{Attempts: 6, LastErr: errors.New("503")},
	})

	req := httptest.NewRequest(http.MethodPost, "/analyze", bytes.NewReader(testImage(t)))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAnalyzeEndpointRecoversMalformedReply(t *testing.T) {
	server := newTestServer(t, &fakeGateway{raw: "no JSON in sight"})

	req := httptest.NewRequest(http.MethodPost, "/analyze", bytes.NewReader(testImage(t)))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var result vision.AnalysisResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.True(t, result.Recovered)
	assert.NotEmpty(t, result.Description)
}

func multipartImage(t *testing.T, img []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	fw, err := w.CreateFormFile("photo", "meal.png")
	require.NoError(t, err)
	_, err = fw.Write(img)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &body, w.FormDataContentType()
}

func createPending(t *testing.T, server *Server, userID int64) domain.PendingMeal {
	t.Helper()
	body, contentType := multipartImage(t, testImage(t))
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/meals?user_id=%d", userID), body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var pending domain.PendingMeal
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&pending))
	return pending
}

func TestCreateMealEndpoint(t *testing.T) {
	server := newTestServer(t, &fakeGateway{raw: goodReply()})

	pending := createPending(t, server, 42)

	assert.NotZero(t, pending.ID)
	assert.Equal(t, int64(42), pending.UserID)
	assert.Equal(t, "Grilled chicken with rice", pending.Description)
	require.NotNil(t, pending.PhotoKey)
}

func TestCreateMealRequiresUserID(t *testing.T) {
	server := newTestServer(t, &fakeGateway{raw: goodReply()})

	req := httptest.NewRequest(http.MethodPost, "/meals", bytes.NewReader(testImage(t)))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConfirmFlow(t *testing.T) {
	server := newTestServer(t, &fakeGateway{raw: goodReply()})
	pending := createPending(t, server, 42)

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/meals/%d/confirm", pending.ID), nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var meal domain.Meal
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&meal))
	assert.Equal(t, pending.Description, meal.Description)
	assert.Equal(t, time.Now().Format("2006-01-02"), meal.Date)

	// The confirmed meal shows up in the day's list and summary.
	listReq := httptest.NewRequest(http.MethodGet, "/meals?user_id=42", nil)
	listRec := httptest.NewRecorder()
	server.ServeHTTP(listRec, listReq)
	require.Equal(t, http.StatusOK, listRec.Code)
	var meals []domain.Meal
	require.NoError(t, json.NewDecoder(listRec.Body).Decode(&meals))
	assert.Len(t, meals, 1)

	sumReq := httptest.NewRequest(http.MethodGet, "/summary?user_id=42", nil)
	sumRec := httptest.NewRecorder()
	server.ServeHTTP(sumRec, sumReq)
	require.Equal(t, http.StatusOK, sumRec.Code)
	var summary domain.DailySummary
	require.NoError(t, json.NewDecoder(sumRec.Body).Decode(&summary))
	assert.Equal(t, 450.0, summary.TotalCalories)
	assert.Equal(t, 1, summary.MealCount)
}

func TestConfirmUnknownPending(t *testing.T) {
	server := newTestServer(t, &fakeGateway{raw: goodReply()})

	req := httptest.NewRequest(http.MethodPost, "/meals/999/confirm", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelFlow(t *testing.T) {
	server := newTestServer(t, &fakeGateway{raw: goodReply()})
	pending := createPending(t, server, 42)

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/meals/%d/cancel", pending.ID), nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Cancelled meals never reach the log.
	listReq := httptest.NewRequest(http.MethodGet, "/meals?user_id=42", nil)
	listRec := httptest.NewRecorder()
	server.ServeHTTP(listRec, listReq)
	var meals []domain.Meal
	require.NoError(t, json.NewDecoder(listRec.Body).Decode(&meals))
	assert.Empty(t, meals)
}

func TestCancelInvalidID(t *testing.T) {
	server := newTestServer(t, &fakeGateway{raw: goodReply()})

	req := httptest.NewRequest(http.MethodPost, "/meals/abc/cancel", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPhotoEndpoint(t *testing.T) {
	server := newTestServer(t, &fakeGateway{raw: goodReply()})
	pending := createPending(t, server, 42)
	require.NotNil(t, pending.PhotoKey)

	req := httptest.NewRequest(http.MethodGet, "/photos/"+*pending.PhotoKey, nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Body.Bytes())
}

func TestPhotoNotFound(t *testing.T) {
	server := newTestServer(t, &fakeGateway{raw: goodReply()})

	req := httptest.NewRequest(http.MethodGet, "/photos/nope.jpg", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListMealsRequiresUserID(t *testing.T) {
	server := newTestServer(t, &fakeGateway{raw: goodReply()})

	req := httptest.NewRequest(http.MethodGet, "/meals", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
