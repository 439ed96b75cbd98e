package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/photo-dedup/internal/constants"
	"github.com/kozaktomas/photo-dedup/internal/photo"
	"github.com/kozaktomas/photo-dedup/internal/pipeline"
	"github.com/kozaktomas/photo-dedup/internal/similarity"
	"github.com/kozaktomas/photo-dedup/internal/source"
)

// Analyzer is the run state machine served over HTTP. *pipeline.Pipeline implements it.
type Analyzer interface {
	Start(ctx context.Context, photos []*photo.Photo, opts pipeline.Options) error
	Cancel()
	Clear() error
	State() pipeline.RunState
	IsAnalyzing() bool
	SimilarityScore(a, b string) (similarity.Score, bool)
	GroupForPhoto(photoID string) (pipeline.Group, bool)
	AddListener() chan pipeline.Event
	RemoveListener(ch chan pipeline.Event)
}

// PhotoLoader resolves a PhotoPrism selection into photos. *source.Library implements it.
type PhotoLoader interface {
	Load(ctx context.Context, sel source.Selection) ([]photo.Photo, error)
}

// AnalysisHandler handles the similarity analysis endpoints.
type AnalysisHandler struct {
	analyzer Analyzer
	loader   PhotoLoader
	defaults pipeline.Options
}

// NewAnalysisHandler creates a new analysis handler. loader may be nil when
// PhotoPrism is not configured; requests must then carry their photos inline.
func NewAnalysisHandler(analyzer Analyzer, loader PhotoLoader, defaults pipeline.Options) *AnalysisHandler {
	return &AnalysisHandler{
		analyzer: analyzer,
		loader:   loader,
		defaults: defaults,
	}
}

// StartRequest starts an analysis of inline photos or a PhotoPrism selection.
type StartRequest struct {
	Photos              []photo.Photo `json:"photos,omitempty"`
	AlbumUID            string        `json:"album_uid,omitempty"`
	Query               string        `json:"query,omitempty"`
	SimilarityThreshold *float64      `json:"similarity_threshold,omitempty"`
	ConfidenceThreshold *float64      `json:"confidence_threshold,omitempty"`
	DisabledLayers      []string      `json:"disabled_layers,omitempty"`
}

// StartResponse is returned when a run is accepted.
type StartResponse struct {
	RunID      string          `json:"run_id"`
	Status     pipeline.Status `json:"status"`
	PhotoCount int             `json:"photo_count"`
}

// ScoreResponse is the recorded similarity of a photo pair.
type ScoreResponse struct {
	PhotoA string           `json:"photo_a"`
	PhotoB string           `json:"photo_b"`
	Score  similarity.Score `json:"score"`
}

// options applies request overrides to the handler defaults.
func (req *StartRequest) options(defaults pipeline.Options) (pipeline.Options, error) {
	opts := defaults
	if req.SimilarityThreshold != nil {
		if *req.SimilarityThreshold <= 0 || *req.SimilarityThreshold > 1 {
			return opts, errors.New("similarity_threshold must be in (0, 1]")
		}
		opts.SimilarityThreshold = *req.SimilarityThreshold
	}
	if req.ConfidenceThreshold != nil {
		if *req.ConfidenceThreshold <= 0 || *req.ConfidenceThreshold > 1 {
			return opts, errors.New("confidence_threshold must be in (0, 1]")
		}
		opts.ConfidenceThreshold = *req.ConfidenceThreshold
	}
	for _, layer := range req.DisabledLayers {
		switch pipeline.Layer(layer) {
		case pipeline.LayerContent:
			opts.EnableContent = false
		case pipeline.LayerPerceptual:
			opts.EnablePerceptual = false
		case pipeline.LayerVisual:
			opts.EnableVisual = false
		case pipeline.LayerMetadata:
			opts.EnableMetadata = false
		case pipeline.LayerSemantic:
			opts.EnableSemantic = false
		default:
			return opts, fmt.Errorf("unknown layer %q", layer)
		}
	}
	return opts, nil
}

// photos returns the inline photos or loads the selection.
func (h *AnalysisHandler) photos(ctx context.Context, req *StartRequest) ([]photo.Photo, int, error) {
	if len(req.Photos) > 0 {
		if _, err := source.ValidatePhotos(req.Photos); err != nil {
			return nil, http.StatusBadRequest, err
		}
		return req.Photos, 0, nil
	}
	if req.AlbumUID == "" && req.Query == "" {
		return nil, http.StatusBadRequest, errors.New("photos, album_uid or query is required")
	}
	if h.loader == nil {
		return nil, http.StatusServiceUnavailable, source.ErrNotConfigured
	}

	photos, err := h.loader.Load(ctx, source.Selection{AlbumUID: req.AlbumUID, Query: req.Query})
	if err != nil {
		return nil, http.StatusBadGateway, fmt.Errorf("failed to load photos: %w", err)
	}
	return photos, 0, nil
}

// Start begins an analysis run in the background.
func (h *AnalysisHandler) Start(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxRequestBodySize)

	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	opts, err := req.options(h.defaults)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if h.analyzer.IsAnalyzing() {
		respondError(w, http.StatusConflict, pipeline.ErrRunInProgress.Error())
		return
	}

	photos, status, err := h.photos(r.Context(), &req)
	if err != nil {
		log.Printf("Analysis request rejected: %s", sanitizeForLog(err.Error()))
		respondError(w, status, err.Error())
		return
	}

	// The run outlives the request.
	err = h.analyzer.Start(context.WithoutCancel(r.Context()), photo.Refs(photos), opts)
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		respondError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, pipeline.ErrNotEnoughPhotos), errors.Is(err, pipeline.ErrInvalidPhotos):
		respondError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	state := h.analyzer.State()
	respondJSON(w, http.StatusAccepted, StartResponse{
		RunID:      state.RunID,
		Status:     state.Status,
		PhotoCount: state.PhotoCount,
	})
}

// summarize drops the similarity matrix, which grows quadratically with the photo count.
func summarize(state pipeline.RunState) pipeline.RunState {
	state.SimilarityMatrix = nil
	return state
}

// Status returns the current run state. The similarity matrix is included with ?matrix=true.
func (h *AnalysisHandler) Status(w http.ResponseWriter, r *http.Request) {
	state := h.analyzer.State()
	if include, _ := strconv.ParseBool(r.URL.Query().Get("matrix")); !include {
		state = summarize(state)
	}
	respondJSON(w, http.StatusOK, state)
}

// Cancel requests cancellation of the running analysis.
func (h *AnalysisHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if !h.analyzer.IsAnalyzing() {
		respondError(w, http.StatusConflict, "no analysis in progress")
		return
	}
	h.analyzer.Cancel()
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

// Clear discards the results of the last run.
func (h *AnalysisHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.analyzer.Clear(); err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, summarize(h.analyzer.State()))
}

// Events streams run progress as server-sent events.
func (h *AnalysisHandler) Events(w http.ResponseWriter, r *http.Request) {
	streamSSEEvents(w, r, h.analyzer)
}

// Group returns the group containing a photo.
func (h *AnalysisHandler) Group(w http.ResponseWriter, r *http.Request) {
	photoID := chi.URLParam(r, "photoId")
	group, ok := h.analyzer.GroupForPhoto(photoID)
	if !ok {
		respondError(w, http.StatusNotFound, "photo is not in any group")
		return
	}
	respondJSON(w, http.StatusOK, group)
}

// Score returns the recorded similarity of two photos.
func (h *AnalysisHandler) Score(w http.ResponseWriter, r *http.Request) {
	a := chi.URLParam(r, "a")
	b := chi.URLParam(r, "b")
	score, ok := h.analyzer.SimilarityScore(a, b)
	if !ok {
		respondError(w, http.StatusNotFound, "no score recorded for this pair")
		return
	}
	respondJSON(w, http.StatusOK, ScoreResponse{PhotoA: a, PhotoB: b, Score: score})
}
