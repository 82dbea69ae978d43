package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"apartments-bot/db"
	"apartments-bot/filter"
	"apartments-bot/models"
	"apartments-bot/scheduler"

	"github.com/gorilla/mux"
)

// Store answers listing queries
type Store interface {
	Query(ctx context.Context, f filter.Filter, s filter.Sort) ([]models.Listing, error)
	Count(ctx context.Context) (int, error)
}

// pinger is implemented by stores backed by a connection pool
type pinger interface {
	Ping(ctx context.Context) error
}

// RunLog reports the last finished sync run
type RunLog interface {
	LastRun(ctx context.Context) (*db.SyncRun, error)
}

// Syncer runs a scrape-and-replace cycle
type Syncer interface {
	Sync(ctx context.Context, source string) (scheduler.Result, error)
	Last() *scheduler.Result
}

// Handler serves the health endpoint and a read-only view of the snapshot
type Handler struct {
	store  Store
	runs   RunLog // optional
	syncer Syncer
	logger *slog.Logger
}

func NewHandler(store Store, runs RunLog, syncer Syncer, logger *slog.Logger) *Handler {
	return &Handler{store: store, runs: runs, syncer: syncer, logger: logger}
}

// Router registers the handler's routes on a new router
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.HandleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/apartments", h.HandleApartments).Methods(http.MethodGet)
	r.HandleFunc("/api/sync", h.HandleSync).Methods(http.MethodPost)
	return r
}

type lastSync struct {
	Source     string     `json:"source"`
	Status     string     `json:"status"`
	Listings   int        `json:"listings"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

type healthResponse struct {
	Status     string    `json:"status"`
	Apartments int       `json:"apartments"`
	LastSync   *lastSync `json:"last_sync,omitempty"`
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if p, ok := h.store.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			h.logger.Error("health check failed", "err", err)
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
			return
		}
	}

	count, err := h.store.Count(ctx)
	if err != nil {
		h.logger.Error("health check failed", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
		return
	}

	resp := healthResponse{Status: "ok", Apartments: count, LastSync: h.lastSync(ctx)}
	if resp.LastSync != nil && resp.LastSync.Status == string(db.RunFailed) {
		resp.Status = "degraded"
	}
	writeJSON(w, http.StatusOK, resp)
}

// lastSync prefers the persisted run log, which survives restarts
func (h *Handler) lastSync(ctx context.Context) *lastSync {
	if h.runs != nil {
		run, err := h.runs.LastRun(ctx)
		if err != nil {
			h.logger.Warn("failed to read last sync run", "err", err)
		} else if run != nil {
			ls := &lastSync{
				Source:    run.Source,
				Status:    string(run.Status),
				Listings:  run.ListingsCount,
				Error:     run.LastError.String,
				StartedAt: run.StartedAt,
			}
			if run.FinishedAt.Valid {
				ls.FinishedAt = &run.FinishedAt.Time
			}
			return ls
		}
	}

	res := h.syncer.Last()
	if res == nil {
		return nil
	}
	finished := res.StartedAt.Add(res.Duration)
	ls := &lastSync{
		Source:     res.Source,
		Status:     string(res.Status),
		Listings:   len(res.Listings),
		StartedAt:  res.StartedAt,
		FinishedAt: &finished,
	}
	if res.Err != nil {
		ls.Error = res.Err.Error()
	}
	return ls
}

type apartment struct {
	ProjectName string    `json:"project_name"`
	ProjectLink string    `json:"project_link"`
	Price       float64   `json:"price"`
	SqMeters    float64   `json:"sq_meters"`
	RoomsCount  int       `json:"rooms_count"`
	Floor       int       `json:"floor"`
	Plan        string    `json:"plan"`
	ImageURL    string    `json:"image_url"`
	Link        string    `json:"link"`
	Status      string    `json:"status"`
	Tag         []string  `json:"tag"`
	CreatedAt   time.Time `json:"created_at"`
}

func toAPI(l models.Listing) apartment {
	tags := []string{}
	// Tag is stored as a JSON array
	_ = json.Unmarshal([]byte(l.Tag), &tags)
	return apartment{
		ProjectName: l.ProjectName,
		ProjectLink: l.ProjectLink,
		Price:       l.Price,
		SqMeters:    l.SqMeters,
		RoomsCount:  l.RoomsCount,
		Floor:       l.Floor,
		Plan:        l.Plan,
		ImageURL:    l.ImageURL,
		Link:        l.Link,
		Status:      l.Status,
		Tag:         tags,
		CreatedAt:   l.CreatedAt,
	}
}

// HandleApartments lists the snapshot. Query parameters: rooms, project,
// sort (price or sqMeters) and order (asc or desc).
func (h *Handler) HandleApartments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var f filter.Filter
	if v := q.Get("rooms"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "rooms must be a positive integer")
			return
		}
		f = filter.Rooms(n)
	}
	f.ProjectName = q.Get("project")

	s, err := filter.ParseSort(q.Get("sort"), q.Get("order"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	listings, err := h.store.Query(r.Context(), f, s)
	if err != nil {
		h.logger.Error("failed to query apartments", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to query apartments")
		return
	}

	out := make([]apartment, 0, len(listings))
	for _, l := range listings {
		out = append(out, toAPI(l))
	}
	writeJSON(w, http.StatusOK, out)
}

type syncResponse struct {
	Status   string `json:"status"`
	Listings int    `json:"listings"`
	Replaced bool   `json:"replaced"`
	Duration string `json:"duration"`
}

// HandleSync runs a sync and waits for its outcome
func (h *Handler) HandleSync(w http.ResponseWriter, r *http.Request) {
	res, err := h.syncer.Sync(r.Context(), scheduler.SourceAPI)
	if err != nil {
		if r.Context().Err() != nil {
			// Client went away; the run carries on
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, syncResponse{
		Status:   string(res.Status),
		Listings: len(res.Listings),
		Replaced: res.Replaced,
		Duration: res.Duration.Round(time.Millisecond).String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
