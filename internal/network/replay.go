package network

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/MRamiBalles/TankArenaBridge/internal/infra/cache"
	"github.com/MRamiBalles/TankArenaBridge/internal/infra/storage"
	"github.com/MRamiBalles/TankArenaBridge/internal/platform/logger"
)

const maxPageSize = 500

// ReplayHandler serves the episode ledger: past episodes, their event
// history and the standings rebuilt from them.
type ReplayHandler struct {
	episodes storage.EpisodeRepository
	events   storage.EventRepository
	cache    *cache.EpisodeCache
	logger   *logger.Logger
}

// NewReplayHandler creates the ledger API.
func NewReplayHandler(episodes storage.EpisodeRepository, events storage.EventRepository, c *cache.EpisodeCache, log *logger.Logger) *ReplayHandler {
	if log == nil {
		log = logger.Discard()
	}
	return &ReplayHandler{episodes: episodes, events: events, cache: c, logger: log}
}

// EpisodeList is the response of GET /api/episodes.
type EpisodeList struct {
	Total    int                     `json:"total"`
	Limit    int                     `json:"limit"`
	Offset   int                     `json:"offset"`
	Episodes []storage.EpisodeRecord `json:"episodes"`
}

// EpisodeEvents is the response of GET /api/episodes/{id}/events.
type EpisodeEvents struct {
	EpisodeID   string              `json:"episode_id"`
	TotalEvents int                 `json:"total_events"`
	GeneratedAt string              `json:"generated_at"`
	Events      []storage.GameEvent `json:"events"`
}

// HandleList returns episodes newest first.
// GET /api/episodes?limit=N&offset=M
func (rh *ReplayHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", 50)
	if !ok || limit < 1 || limit > maxPageSize {
		writeError(w, "Invalid limit", http.StatusBadRequest)
		return
	}
	offset, ok := queryInt(r, "offset", 0)
	if !ok || offset < 0 {
		writeError(w, "Invalid offset", http.StatusBadRequest)
		return
	}

	total, err := rh.episodes.Count(r.Context())
	if err != nil {
		rh.fail(w, "count episodes", err)
		return
	}
	list, err := rh.episodes.List(r.Context(), limit, offset)
	if err != nil {
		rh.fail(w, "list episodes", err)
		return
	}
	if list == nil {
		list = []storage.EpisodeRecord{}
	}
	writeJSON(w, EpisodeList{Total: total, Limit: limit, Offset: offset, Episodes: list})
}

// HandleEpisode returns one episode.
// GET /api/episodes/{id}
func (rh *ReplayHandler) HandleEpisode(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := rh.cache.Get(r.Context(), id)
	if err != nil {
		rh.fail(w, "load episode", err)
		return
	}
	if rec == nil {
		writeError(w, "Episode not found", http.StatusNotFound)
		return
	}
	writeJSON(w, rec)
}

// HandleEvents returns the event history of one episode.
// GET /api/episodes/{id}/events
func (rh *ReplayHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	list, err := rh.events.GetByEpisode(r.Context(), id)
	if err != nil {
		rh.fail(w, "load events", err)
		return
	}
	if len(list) == 0 {
		writeError(w, "Episode not found", http.StatusNotFound)
		return
	}
	writeJSON(w, EpisodeEvents{
		EpisodeID:   id,
		TotalEvents: len(list),
		GeneratedAt: time.Now().Format(time.RFC3339),
		Events:      list,
	})
}

// HandleStandings returns per-team results and ratings.
// GET /api/standings
func (rh *ReplayHandler) HandleStandings(w http.ResponseWriter, r *http.Request) {
	s, err := rh.cache.Standings(r.Context())
	if err != nil {
		rh.fail(w, "rebuild standings", err)
		return
	}
	writeJSON(w, s)
}

// RegisterRoutes sets up the ledger API routes.
func (rh *ReplayHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/episodes", rh.HandleList)
	mux.HandleFunc("GET /api/episodes/{id}", rh.HandleEpisode)
	mux.HandleFunc("GET /api/episodes/{id}/events", rh.HandleEvents)
	mux.HandleFunc("GET /api/standings", rh.HandleStandings)
}

func (rh *ReplayHandler) fail(w http.ResponseWriter, what string, err error) {
	rh.logger.Error("failed to "+what, "err", err)
	writeError(w, "Internal error", http.StatusInternalServerError)
}

func queryInt(r *http.Request, key string, def int) (int, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	return n, err == nil
}

// writeError sends an error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeJSON sends a success response.
func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(data)
}
