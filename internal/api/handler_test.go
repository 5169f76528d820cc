package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/eugenenazirov/photosheet/internal/export"
	"github.com/eugenenazirov/photosheet/internal/layout"
	"github.com/eugenenazirov/photosheet/internal/render"
	"github.com/eugenenazirov/photosheet/internal/storage"
)

const testDPI = 50

type controllableClock struct {
	mu  sync.RWMutex
	now time.Time
}

func newControllableClock(initial time.Time) *controllableClock {
	return &controllableClock{now: initial}
}

func (c *controllableClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

func (c *controllableClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestHandler(t *testing.T, clock *controllableClock, opts ...HandlerOption) *Handler {
	t.Helper()

	item := layout.DefaultItem()
	packing := layout.DefaultPackingConfig()
	planner := layout.New(item, packing)
	catalog := storage.NewMemoryCatalog()
	exporter := export.New(render.New(item, packing, testDPI), export.WithLogger(zaptest.NewLogger(t)))

	opts = append([]HandlerOption{WithClock(clock.Now)}, opts...)
	return NewHandler(planner, catalog, exporter, opts...)
}

func setupTestRouter(t *testing.T, opts ...HandlerOption) (http.Handler, *controllableClock) {
	t.Helper()

	clock := newControllableClock(time.Date(2024, 11, 1, 12, 0, 0, 0, time.UTC))
	handler := newTestHandler(t, clock, opts...)
	logger := zaptest.NewLogger(t)
	router := NewRouter(handler, logger, WithLogging(false), WithRateLimit(0, 0))

	return router, clock
}

func testPhotoPNG(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test photo: %v", err)
	}
	return buf.Bytes()
}

func newExportRequest(t *testing.T, fields map[string]string, photo []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field %s: %v", k, err)
		}
	}
	if photo != nil {
		fw, err := mw.CreateFormFile("photo", "photo.png")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write(photo); err != nil {
			t.Fatalf("write photo: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/export", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()

	var body errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return body
}

func TestRequestIDHelpers(t *testing.T) {
	ctx := contextWithRequestID(context.Background(), "abc")
	if got := requestIDFromContext(ctx); got != "abc" {
		t.Fatalf("expected abc, got %s", got)
	}
	if got := requestIDFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty request id, got %s", got)
	}
	resp := httptest.NewRecorder()
	writeInternalError(resp, assertError("boom"))
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 status, got %d", resp.Code)
	}
}

type assertError string

func (a assertError) Error() string { return string(a) }

func TestHealthEndpoint(t *testing.T) {
	router, clock := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body struct {
		Status    string    `json:"status"`
		Timestamp time.Time `json:"timestamp"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if body.Status != "ok" {
		t.Fatalf("expected status ok, got %s", body.Status)
	}
	if !body.Timestamp.Equal(clock.Now()) {
		t.Fatalf("expected timestamp %s, got %s", clock.Now(), body.Timestamp)
	}
}

func TestListPapersReturnsDefaultsWithCapacity(t *testing.T) {
	router, clock := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/papers", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body papersResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if len(body.Papers) != len(storage.DefaultPapers()) {
		t.Fatalf("expected %d papers, got %d", len(storage.DefaultPapers()), len(body.Papers))
	}
	if body.DefaultPaper != "letter" {
		t.Fatalf("expected default paper letter, got %s", body.DefaultPaper)
	}
	if !body.UpdatedAt.Equal(clock.Now()) {
		t.Fatalf("expected updatedAt %s, got %s", clock.Now(), body.UpdatedAt)
	}

	capacities := map[string]int{}
	for _, p := range body.Papers {
		capacities[p.ID] = p.Capacity.PerSheet
	}
	if capacities["letter"] != 56 {
		t.Fatalf("expected letter capacity 56, got %d", capacities["letter"])
	}
	if capacities["4x6"] != 12 {
		t.Fatalf("expected 4x6 capacity 12, got %d", capacities["4x6"])
	}
}

func TestPutPaperUpdatesCatalog(t *testing.T) {
	router, clock := setupTestRouter(t)
	clock.Advance(2 * time.Minute)

	payload := []byte(`{"name":"A4","widthCm":21.0,"heightCm":29.7}`)
	req := httptest.NewRequest(http.MethodPut, "/api/papers/A4", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body paperUpdateResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Paper.ID != "a4" {
		t.Fatalf("expected normalized id a4, got %s", body.Paper.ID)
	}
	if body.Paper.Capacity.PerSheet <= 0 {
		t.Fatalf("expected positive capacity for A4, got %d", body.Paper.Capacity.PerSheet)
	}
	if !body.UpdatedAt.Equal(clock.Now()) {
		t.Fatalf("expected updatedAt %s, got %s", clock.Now(), body.UpdatedAt)
	}

	listRec := httptest.NewRecorder()
	router.ServeHTTP(listRec, httptest.NewRequest(http.MethodGet, "/api/papers", nil))

	var list papersResponse
	if err := json.NewDecoder(listRec.Body).Decode(&list); err != nil {
		t.Fatalf("failed to decode list response: %v", err)
	}
	if len(list.Papers) != 3 {
		t.Fatalf("expected 3 papers after update, got %d", len(list.Papers))
	}
	if !list.UpdatedAt.Equal(clock.Now()) {
		t.Fatalf("expected list updatedAt %s, got %s", clock.Now(), list.UpdatedAt)
	}
}

func TestPutPaperValidatesInput(t *testing.T) {
	router, _ := setupTestRouter(t)

	tests := []struct {
		name    string
		payload string
	}{
		{name: "malformed json", payload: `{"widthIn":`},
		{name: "missing dimensions", payload: `{"name":"Empty"}`},
		{name: "negative width", payload: `{"widthIn":-4,"heightIn":6}`},
		{name: "oversized paper", payload: `{"widthIn":1e10,"heightIn":1e10}`},
		{name: "oversized paper in cm", payload: `{"widthCm":1000,"heightCm":20}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, "/api/papers/custom", strings.NewReader(tt.payload))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", rec.Code)
			}
		})
	}
}

func TestLayoutEndpointSuccess(t *testing.T) {
	router, _ := setupTestRouter(t)

	payload := []byte(`{"paperSize":"letter","photoCount":10}`)
	req := httptest.NewRequest(http.MethodPost, "/api/layout", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body layoutResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if body.TotalSheets != 1 {
		t.Fatalf("expected 1 sheet, got %d", body.TotalSheets)
	}
	if body.Capacity.PerSheet != 56 {
		t.Fatalf("expected capacity 56, got %d", body.Capacity.PerSheet)
	}
	sheet := body.Sheets[0]
	if sheet.Rows != 3 || sheet.Cols != 4 || sheet.PhotosInSheet != 10 {
		t.Fatalf("expected 3x4 grid with 10 photos, got %+v", sheet)
	}
	if body.Paper.ID != "letter" || body.PaperSize != "letter" {
		t.Fatalf("expected letter paper, got %s / %s", body.Paper.ID, body.PaperSize)
	}
}

func TestLayoutEndpointUsesDefaultPaper(t *testing.T) {
	router, _ := setupTestRouter(t, WithDefaultPaper("4x6"))

	req := httptest.NewRequest(http.MethodPost, "/api/layout", strings.NewReader(`{"photoCount":100}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body layoutResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Paper.ID != "4x6" {
		t.Fatalf("expected default paper 4x6, got %s", body.Paper.ID)
	}
	if body.TotalSheets != 9 {
		t.Fatalf("expected 9 sheets, got %d", body.TotalSheets)
	}
	last := body.Sheets[len(body.Sheets)-1]
	if last.PhotosInSheet != 4 || last.Rows != 2 || last.Cols != 2 {
		t.Fatalf("expected last sheet 2x2 with 4 photos, got %+v", last)
	}
}

func TestLayoutEndpointRejectsInvalidCounts(t *testing.T) {
	router, _ := setupTestRouter(t, WithMaxPhotos(50))

	tests := []struct {
		name    string
		payload string
	}{
		{name: "zero", payload: `{"paperSize":"letter","photoCount":0}`},
		{name: "negative", payload: `{"paperSize":"letter","photoCount":-3}`},
		{name: "above maximum", payload: `{"paperSize":"letter","photoCount":51}`},
		{name: "malformed", payload: `{"paperSize":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/layout", strings.NewReader(tt.payload))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", rec.Code)
			}
		})
	}
}

func TestLayoutEndpointUnknownPaper(t *testing.T) {
	router, _ := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/layout", strings.NewReader(`{"paperSize":"tabloid","photoCount":5}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestLayoutEndpointNoCapacity(t *testing.T) {
	router, _ := setupTestRouter(t)

	putReq := httptest.NewRequest(http.MethodPut, "/api/papers/stamp", strings.NewReader(`{"widthIn":1,"heightIn":1}`))
	putRec := httptest.NewRecorder()
	router.ServeHTTP(putRec, putReq)
	if putRec.Code != http.StatusOK {
		t.Fatalf("expected paper to be stored, got %d", putRec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/layout", strings.NewReader(`{"paperSize":"stamp","photoCount":1}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rec.Code)
	}
	body := decodeError(t, rec)
	if body.Suggestion == "" {
		t.Fatalf("expected a suggestion for a paper without capacity")
	}
}

func TestExportEndpointPDF(t *testing.T) {
	router, _ := setupTestRouter(t)

	req := newExportRequest(t, map[string]string{
		"paperSize":  "letter",
		"photoCount": "10",
	}, testPhotoPNG(t, 60, 80))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("expected application/pdf, got %s", ct)
	}
	if got := rec.Header().Get("X-Sheet-Count"); got != "1" {
		t.Fatalf("expected X-Sheet-Count 1, got %s", got)
	}
	disposition := rec.Header().Get("Content-Disposition")
	if !strings.Contains(disposition, "photo-sheets-10-22x28cm-2024-11-01.pdf") {
		t.Fatalf("unexpected Content-Disposition %q", disposition)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")) {
		t.Fatalf("expected a PDF document")
	}
}

func TestExportEndpointRasterSheet(t *testing.T) {
	router, _ := setupTestRouter(t)

	req := newExportRequest(t, map[string]string{
		"paperSize":  "4x6",
		"photoCount": "15",
		"format":     "png",
		"sheet":      "2",
	}, testPhotoPNG(t, 40, 40))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("X-Sheet-Count"); got != "2" {
		t.Fatalf("expected X-Sheet-Count 2, got %s", got)
	}
	disposition := rec.Header().Get("Content-Disposition")
	if !strings.Contains(disposition, "photo-sheets-15-10x15cm-2024-11-01-sheet2.png") {
		t.Fatalf("unexpected Content-Disposition %q", disposition)
	}

	img, err := png.Decode(rec.Body)
	if err != nil {
		t.Fatalf("failed to decode png sheet: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 200 || b.Dy() != 300 {
		t.Fatalf("expected 200x300 canvas, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestExportEndpointRejectsBadRequests(t *testing.T) {
	photo := testPhotoPNG(t, 20, 20)

	tests := []struct {
		name   string
		fields map[string]string
		photo  []byte
		want   int
	}{
		{name: "missing photo", fields: map[string]string{"photoCount": "4"}, want: http.StatusBadRequest},
		{name: "undecodable photo", fields: map[string]string{"photoCount": "4"}, photo: []byte("not an image"), want: http.StatusBadRequest},
		{name: "non numeric count", fields: map[string]string{"photoCount": "many"}, photo: photo, want: http.StatusBadRequest},
		{name: "zero count", fields: map[string]string{"photoCount": "0"}, photo: photo, want: http.StatusBadRequest},
		{name: "unknown format", fields: map[string]string{"photoCount": "4", "format": "tiff"}, photo: photo, want: http.StatusBadRequest},
		{name: "sheet out of range", fields: map[string]string{"photoCount": "4", "format": "png", "sheet": "3"}, photo: photo, want: http.StatusBadRequest},
		{name: "unknown paper", fields: map[string]string{"photoCount": "4", "paperSize": "a0"}, photo: photo, want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := setupTestRouter(t)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, newExportRequest(t, tt.fields, tt.photo))

			if rec.Code != tt.want {
				t.Fatalf("expected status %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestExportEndpointRejectsOversizedUpload(t *testing.T) {
	router, _ := setupTestRouter(t, WithMaxUploadBytes(1024))

	req := newExportRequest(t, map[string]string{
		"photoCount": "4",
		"padding":    strings.Repeat("x", 4096),
	}, testPhotoPNG(t, 20, 20))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status 413, got %d", rec.Code)
	}
}

func TestDurationMillisKeepsSubMillisecondPrecision(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want float64
	}{
		{d: 0, want: 0},
		{d: 250 * time.Microsecond, want: 0.25},
		{d: 1500 * time.Microsecond, want: 1.5},
		{d: 2 * time.Second, want: 2000},
	}

	for _, tt := range tests {
		if got := durationMillis(tt.d); got != tt.want {
			t.Fatalf("durationMillis(%s): expected %v, got %v", tt.d, tt.want, got)
		}
	}
}

func TestWritePlanErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "invalid input", err: layout.ErrInvalidInput, want: http.StatusBadRequest},
		{name: "no capacity", err: layout.ErrNoCapacity, want: http.StatusUnprocessableEntity},
		{name: "unexpected", err: assertError("boom"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writePlanError(rec, tt.err)
			if rec.Code != tt.want {
				t.Fatalf("expected status %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestWriteExportErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		want       int
		suggestion bool
	}{
		{name: "sheet out of range", err: export.ErrSheetOutOfRange, want: http.StatusBadRequest},
		{name: "unsupported format", err: export.ErrUnsupportedFormat, want: http.StatusBadRequest},
		{name: "rasterization", err: render.ErrRasterization, want: http.StatusInternalServerError, suggestion: true},
		{name: "canvas too large", err: render.ErrCanvasTooLarge, want: http.StatusUnprocessableEntity, suggestion: true},
		{name: "cancelled", err: context.Canceled, want: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeExportError(rec, tt.err)
			if rec.Code != tt.want {
				t.Fatalf("expected status %d, got %d", tt.want, rec.Code)
			}
			if body := decodeError(t, rec); tt.suggestion && body.Suggestion == "" {
				t.Fatalf("expected a retry suggestion")
			}
		})
	}
}

func TestCorsPreflight(t *testing.T) {
	router, _ := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/export", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Fatalf("expected Access-Control-Allow-Origin header to be set")
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Expose-Headers"), "X-Sheet-Count") {
		t.Fatalf("expected X-Sheet-Count to be exposed")
	}
}

func TestRequestIDPropagation(t *testing.T) {
	router, _ := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "test-request-id")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "test-request-id" {
		t.Fatalf("expected X-Request-ID header to be echoed, got %s", got)
	}
}

func TestRequestIDGenerated(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if got := rec.Header().Get("X-Request-ID"); len(got) != 36 {
		t.Fatalf("expected a generated uuid request id, got %q", got)
	}
}
