package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/star/debriswatch/internal/catalog"
	"github.com/star/debriswatch/internal/conjunction"
	"github.com/star/debriswatch/internal/httputil"
	"github.com/star/debriswatch/internal/monitor"
	"github.com/star/debriswatch/internal/propagation"
	"github.com/star/debriswatch/internal/tle"
	"github.com/star/debriswatch/internal/tracing"
	"github.com/star/debriswatch/internal/trajectory"
)

// Limits on ad-hoc estimate requests. The scan is quadratic in the object count.
const (
	maxEstimateBody    = 8 << 20
	maxEstimateObjects = 5000
	maxEstimatePairs   = 1000
	defaultMaxVelocity = 0.05
)

type handlers struct {
	cfg        Config
	store      *catalog.Store
	loader     *catalog.Loader
	monitor    *monitor.Monitor
	propagator *propagation.Propagator
	logger     *slog.Logger
	now        func() time.Time
}

func (h *handlers) catalogReady() error {
	if h.store.Get() == nil {
		return errors.New("no catalog loaded")
	}
	return nil
}

func (h *handlers) assessmentReady() error {
	_, err := h.monitor.Latest()
	return err
}

type catalogResponse struct {
	ID          uuid.UUID                 `json:"id"`
	Source      string                    `json:"source"`
	LoadedAt    time.Time                 `json:"loaded_at"`
	AgeSeconds  int                       `json:"age_seconds"`
	ObjectCount int                       `json:"object_count"`
	Objects     []conjunction.SpaceObject `json:"objects,omitempty"`
}

func newCatalogResponse(c *catalog.Catalog, withObjects bool) catalogResponse {
	resp := catalogResponse{
		ID:          c.ID,
		Source:      c.Source,
		LoadedAt:    c.LoadedAt,
		AgeSeconds:  int(time.Since(c.LoadedAt).Seconds()),
		ObjectCount: len(c.Objects),
	}
	if withObjects {
		resp.Objects = c.Objects
	}
	return resp
}

// GET /api/v1/catalog[?objects=false]
func (h *handlers) getCatalog(w http.ResponseWriter, r *http.Request) {
	c := h.store.Get()
	if c == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "no catalog loaded")
		return
	}
	withObjects := r.URL.Query().Get("objects") != "false"
	httputil.WriteJSON(w, http.StatusOK, newCatalogResponse(c, withObjects))
}

// POST /api/v1/catalog/refresh reloads the catalog and recomputes the assessment.
func (h *handlers) refreshCatalog(w http.ResponseWriter, r *http.Request) {
	c, err := h.loader.Load(r.Context())
	if err != nil {
		httputil.WriteError(w, http.StatusBadGateway, err.Error())
		return
	}
	a, err := h.monitor.Refresh(r.Context(), monitor.TriggerCatalog)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, fmt.Sprintf("assessment failed: %v", err))
		return
	}
	h.logger.Info("catalog refreshed on request",
		"catalog_id", c.ID.String(),
		"objects", len(c.Objects),
		"pairs", len(a.Pairs),
	)
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"catalog":    newCatalogResponse(c, false),
		"assessment": a.Summary(),
	})
}

// GET /api/v1/conjunctions[?limit=N]
func (h *handlers) getConjunctions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", -1, 0, maxEstimatePairs)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	a, err := h.monitor.Latest()
	if err != nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a.Limit(limit))
}

// GET /api/v1/conjunctions/history[?count=N]
func (h *handlers) getHistory(w http.ResponseWriter, r *http.Request) {
	count, err := queryInt(r, "count", 0, 1, 1000)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	history := h.monitor.History(count)
	summaries := make([]monitor.Summary, len(history))
	for i, a := range history {
		summaries[i] = a.Summary()
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"count":       len(summaries),
		"assessments": summaries,
	})
}

type objectResponse struct {
	Object       conjunction.SpaceObject `json:"object"`
	Risk         conjunction.Risk        `json:"risk"`
	Annotation   *conjunction.Annotation `json:"annotation,omitempty"`
	AssessmentID *uuid.UUID              `json:"assessment_id,omitempty"`
	HasElements  bool                    `json:"has_elements"`
}

// GET /api/v1/objects/{id}
func (h *handlers) getObject(w http.ResponseWriter, r *http.Request) {
	c := h.store.Get()
	if c == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "no catalog loaded")
		return
	}
	id := r.PathValue("id")
	obj, ok := c.Object(id)
	if !ok {
		httputil.WriteError(w, http.StatusNotFound, fmt.Sprintf("object %q not in catalog", id))
		return
	}

	resp := objectResponse{Object: obj}
	_, resp.HasElements = c.ElementsFor(id)
	if a, err := h.monitor.Latest(); err == nil && a.CatalogID == c.ID {
		aid := a.ID
		resp.AssessmentID = &aid
		if ann, ok := a.Annotations[id]; ok {
			resp.Annotation = &ann
			resp.Risk = ann.Risk
		}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// GET /api/v1/objects/{id}/trajectory?horizon=5400&step=60 (seconds)
func (h *handlers) getTrajectory(w http.ResponseWriter, r *http.Request) {
	horizon, err := queryInt(r, "horizon", int(trajectory.DefaultHorizon/time.Second), 1, int(trajectory.MaxHorizon/time.Second))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	step, err := queryInt(r, "step", int(trajectory.DefaultStep/time.Second), int(trajectory.MinStep/time.Second), 3600)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	c := h.store.Get()
	if c == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "no catalog loaded")
		return
	}
	id := r.PathValue("id")
	if _, ok := c.Object(id); !ok {
		httputil.WriteError(w, http.StatusNotFound, fmt.Sprintf("object %q not in catalog", id))
		return
	}
	entry, ok := c.ElementsFor(id)
	if !ok {
		httputil.WriteError(w, http.StatusUnprocessableEntity, fmt.Sprintf("object %q has no orbital elements", id))
		return
	}

	req := trajectory.Request{
		Entries: []tle.Entry{entry},
		Start:   h.now().UTC(),
		Horizon: time.Duration(horizon) * time.Second,
		Step:    time.Duration(step) * time.Second,
	}
	if h.propagator != nil {
		req.Models = func(noradID int) (*propagation.SGP4, bool) {
			return h.propagator.Lookup(c.Elements, noradID)
		}
	}

	tracks, err := trajectory.Sample(r.Context(), req)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	track := tracks[0]
	if track.Error != "" {
		httputil.WriteError(w, http.StatusUnprocessableEntity, track.Error)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"id":    id,
		"start": req.Start,
		"step":  step,
		"track": track,
	})
}

type estimateRequest struct {
	Objects  []conjunction.SpaceObject `json:"objects"`
	Seed     *uint64                   `json:"seed,omitempty"`
	MaxPairs int                       `json:"max_pairs,omitempty"`
}

type estimateResponse struct {
	ObjectCount int                               `json:"object_count"`
	Seed        uint64                            `json:"seed"`
	Pairs       []conjunction.Pair                `json:"pairs"`
	Annotations map[string]conjunction.Annotation `json:"annotations"`
}

// POST /api/v1/conjunctions/estimate runs the estimator once over a posted object list.
func (h *handlers) estimate(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.Start(r.Context(), "api.estimate")
	var spanErr error
	defer func() { tracing.End(span, spanErr) }()

	var req estimateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEstimateBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		spanErr = err
		httputil.WriteError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if len(req.Objects) > maxEstimateObjects {
		spanErr = fmt.Errorf("%d objects exceeds limit %d", len(req.Objects), maxEstimateObjects)
		httputil.WriteError(w, http.StatusRequestEntityTooLarge, spanErr.Error())
		return
	}
	if req.MaxPairs < 0 || req.MaxPairs > maxEstimatePairs {
		spanErr = fmt.Errorf("max_pairs must be 0-%d", maxEstimatePairs)
		httputil.WriteError(w, http.StatusBadRequest, spanErr.Error())
		return
	}
	if err := catalog.Validate(req.Objects); err != nil {
		spanErr = err
		httputil.WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	cfg := h.monitor.Estimator().Config()
	if req.MaxPairs > 0 {
		cfg.MaxPairs = req.MaxPairs
	}
	seed := rand.Uint64()
	if req.Seed != nil {
		seed = *req.Seed
	}
	vmax := h.cfg.MaxVelocity
	if vmax <= 0 {
		vmax = defaultMaxVelocity
	}

	span.SetAttributes(
		attribute.Int("estimate.objects", len(req.Objects)),
		attribute.Int64("estimate.seed", int64(seed)),
	)

	result := conjunction.New(cfg).Estimate(req.Objects, conjunction.NewRandomVelocity(vmax, seed))
	span.SetAttributes(attribute.Int("estimate.pairs", len(result.Pairs)))

	if ctx.Err() != nil {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, estimateResponse{
		ObjectCount: len(req.Objects),
		Seed:        seed,
		Pairs:       result.Pairs,
		Annotations: result.Annotations,
	})
}

// queryInt parses an optional integer query parameter within [lo, hi].
func queryInt(r *http.Request, name string, def, lo, hi int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s parameter, must be %d-%d", name, lo, hi)
	}
	return n, nil
}
