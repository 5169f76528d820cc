package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/eugenenazirov/photosheet/internal/export"
	"github.com/eugenenazirov/photosheet/internal/layout"
	"github.com/eugenenazirov/photosheet/internal/render"
	"github.com/eugenenazirov/photosheet/internal/storage"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

const (
	defaultMaxPhotos      = 1000
	defaultMaxUploadBytes = 20 << 20
	multipartMemory       = 8 << 20
)

// Handler wires the planner, paper catalog and exporter into HTTP handlers.
type Handler struct {
	planner  layout.Planner
	catalog  storage.Catalog
	exporter *export.Exporter

	maxPhotos      int
	maxUploadBytes int64
	defaultPaper   string

	clock func() time.Time

	mu               sync.RWMutex
	catalogUpdatedAt time.Time
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// WithMaxPhotos bounds the photo count accepted per request.
func WithMaxPhotos(n int) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.maxPhotos = n
		}
	}
}

// WithMaxUploadBytes bounds the size of uploaded photos.
func WithMaxUploadBytes(n int64) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

// WithDefaultPaper sets the paper used when a request does not name one.
func WithDefaultPaper(id string) HandlerOption {
	return func(h *Handler) {
		if strings.TrimSpace(id) != "" {
			h.defaultPaper = id
		}
	}
}

// NewHandler constructs a Handler with the provided dependencies.
func NewHandler(planner layout.Planner, catalog storage.Catalog, exporter *export.Exporter, opts ...HandlerOption) *Handler {
	h := &Handler{
		planner:        planner,
		catalog:        catalog,
		exporter:       exporter,
		maxPhotos:      defaultMaxPhotos,
		maxUploadBytes: defaultMaxUploadBytes,
		defaultPaper:   "letter",
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.catalogUpdatedAt = h.clock()
	return h
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = r
	resp := healthResponse{
		Status:    "ok",
		Timestamp: h.clock(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleListPapers(w http.ResponseWriter, r *http.Request) {
	_ = r
	papers, err := h.catalog.ListPapers()
	if err != nil {
		writeInternalError(w, err)
		return
	}

	resp := papersResponse{
		Papers:       make([]paperResponse, 0, len(papers)),
		DefaultPaper: h.defaultPaper,
		UpdatedAt:    h.currentCatalogUpdatedAt(),
	}
	for _, p := range papers {
		resp.Papers = append(resp.Papers, paperResponse{PaperProfile: p, Capacity: h.planner.Capacity(p)})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handlePutPaper(w http.ResponseWriter, r *http.Request) {
	var req paperRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to parse JSON payload")
		return
	}

	id := r.PathValue("id")
	paper := layout.PaperProfile{
		ID:       id,
		Name:     req.Name,
		WidthIn:  req.WidthIn,
		HeightIn: req.HeightIn,
		WidthCm:  req.WidthCm,
		HeightCm: req.HeightCm,
	}
	if paper.WidthIn <= 0 && req.WidthCm > 0 {
		paper.WidthIn = req.WidthCm / layout.CmPerInch
	}
	if paper.HeightIn <= 0 && req.HeightCm > 0 {
		paper.HeightIn = req.HeightCm / layout.CmPerInch
	}

	if err := h.catalog.SetPaper(paper); err != nil {
		switch {
		case errors.Is(err, storage.ErrInvalidPaper):
			writeError(w, http.StatusBadRequest, "Invalid paper size", err.Error())
		case errors.Is(err, storage.ErrCatalogFull):
			writeError(w, http.StatusConflict, "Paper catalog full", err.Error())
		default:
			writeInternalError(w, err)
		}
		return
	}

	h.markCatalogUpdated()

	stored, err := h.catalog.GetPaper(id)
	if err != nil {
		writeInternalError(w, err)
		return
	}

	resp := paperUpdateResponse{
		Paper:     paperResponse{PaperProfile: stored, Capacity: h.planner.Capacity(stored)},
		UpdatedAt: h.currentCatalogUpdatedAt(),
		Message:   "Paper size saved successfully",
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleLayout(w http.ResponseWriter, r *http.Request) {
	var req layoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to parse JSON payload")
		return
	}

	if msg := h.validatePhotoCount(req.PhotoCount); msg != "" {
		writeError(w, http.StatusBadRequest, "Invalid request", msg)
		return
	}

	paper, ok := h.lookupPaper(w, req.PaperSize)
	if !ok {
		return
	}

	start := time.Now()
	plan, err := h.planner.PlanLayout(paper, req.PhotoCount)
	elapsed := time.Since(start)
	if err != nil {
		writePlanError(w, err)
		return
	}

	resp := layoutResponse{
		LayoutPlan:        plan,
		Paper:             paper,
		TotalSheets:       plan.SheetCount(),
		CalculationTimeMs: durationMillis(elapsed),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Photo too large",
				fmt.Sprintf("uploads are limited to %d bytes", h.maxUploadBytes))
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid request", "expected a multipart form with a photo")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	photoCount, err := strconv.Atoi(strings.TrimSpace(r.FormValue("photoCount")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "photoCount must be an integer")
		return
	}
	if msg := h.validatePhotoCount(photoCount); msg != "" {
		writeError(w, http.StatusBadRequest, "Invalid request", msg)
		return
	}

	format := export.FormatPDF
	if raw := r.FormValue("format"); raw != "" {
		if format, err = export.ParseFormat(raw); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid format", err.Error())
			return
		}
	}

	sheetNumber := 1
	if raw := strings.TrimSpace(r.FormValue("sheet")); raw != "" {
		if sheetNumber, err = strconv.Atoi(raw); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request", "sheet must be an integer")
			return
		}
	}

	paper, ok := h.lookupPaper(w, r.FormValue("paperSize"))
	if !ok {
		return
	}

	plan, err := h.planner.PlanLayout(paper, photoCount)
	if err != nil {
		writePlanError(w, err)
		return
	}

	file, _, err := r.FormFile("photo")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "photo file is required")
		return
	}
	defer file.Close()

	photo, err := render.Decode(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid photo", err.Error())
		return
	}

	var out bytes.Buffer
	if err := h.exporter.Write(r.Context(), &out, paper, plan, photo, format, sheetNumber); err != nil {
		writeExportError(w, err)
		return
	}

	name := export.FileName(paper, plan, format, sheetNumberFor(format, sheetNumber), h.clock())
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(out.Len()))
	w.Header().Set("X-Sheet-Count", strconv.Itoa(plan.SheetCount()))
	w.WriteHeader(http.StatusOK)
	_, _ = out.WriteTo(w)
}

func (h *Handler) validatePhotoCount(n int) string {
	if n <= 0 {
		return "photoCount must be a positive integer"
	}
	if n > h.maxPhotos {
		return fmt.Sprintf("photoCount must not exceed %d", h.maxPhotos)
	}
	return ""
}

func (h *Handler) lookupPaper(w http.ResponseWriter, id string) (layout.PaperProfile, bool) {
	if strings.TrimSpace(id) == "" {
		id = h.defaultPaper
	}
	paper, err := h.catalog.GetPaper(id)
	if err != nil {
		if errors.Is(err, storage.ErrPaperNotFound) {
			writeError(w, http.StatusNotFound, "Unknown paper size", err.Error())
			return layout.PaperProfile{}, false
		}
		writeInternalError(w, err)
		return layout.PaperProfile{}, false
	}
	return paper, true
}

func (h *Handler) currentCatalogUpdatedAt() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.catalogUpdatedAt
}

func (h *Handler) markCatalogUpdated() {
	h.mu.Lock()
	h.catalogUpdatedAt = h.clock()
	h.mu.Unlock()
}

// durationMillis reports d in fractional milliseconds.
func durationMillis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func sheetNumberFor(format export.Format, sheet int) int {
	if format.Paginated() {
		return 0
	}
	return sheet
}

func writePlanError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, layout.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "Invalid request", err.Error())
	case errors.Is(err, layout.ErrNoCapacity):
		writeError(w, http.StatusUnprocessableEntity, "Photo does not fit", err.Error(),
			"Choose a larger paper size or reduce the margins")
	default:
		writeInternalError(w, err)
	}
}

func writeExportError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, export.ErrSheetOutOfRange), errors.Is(err, export.ErrUnsupportedFormat):
		writeError(w, http.StatusBadRequest, "Invalid request", err.Error())
	case errors.Is(err, render.ErrCanvasTooLarge):
		writeError(w, http.StatusUnprocessableEntity, "Sheet too large to render", err.Error(),
			"Choose a smaller paper size")
	case errors.Is(err, render.ErrRasterization):
		writeError(w, http.StatusInternalServerError, "Export failed", err.Error(),
			"The layout is unchanged; please retry the export")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "Export cancelled", err.Error())
	default:
		writeInternalError(w, err)
	}
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

type layoutRequest struct {
	PaperSize  string `json:"paperSize"`
	PhotoCount int    `json:"photoCount"`
}

type paperRequest struct {
	Name     string  `json:"name"`
	WidthIn  float64 `json:"widthIn"`
	HeightIn float64 `json:"heightIn"`
	WidthCm  float64 `json:"widthCm"`
	HeightCm float64 `json:"heightCm"`
}

type layoutResponse struct {
	layout.LayoutPlan
	Paper             layout.PaperProfile `json:"paper"`
	TotalSheets       int                 `json:"totalSheets"`
	CalculationTimeMs float64             `json:"calculationTimeMs"`
}

type paperResponse struct {
	layout.PaperProfile
	Capacity layout.Capacity `json:"capacity"`
}

type papersResponse struct {
	Papers       []paperResponse `json:"papers"`
	DefaultPaper string          `json:"defaultPaper"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

type paperUpdateResponse struct {
	Paper     paperResponse `json:"paper"`
	UpdatedAt time.Time     `json:"updatedAt"`
	Message   string        `json:"message,omitempty"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type errorResponse struct {
	Error      string `json:"error"`
	Details    string `json:"details,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, details string, suggestion ...string) {
	resp := errorResponse{
		Error:   message,
		Details: details,
	}
	if len(suggestion) > 0 {
		resp.Suggestion = suggestion[0]
	}
	writeJSON(w, status, resp)
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, "Internal error", err.Error())
}
