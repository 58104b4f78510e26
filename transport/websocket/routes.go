package websocket

import (
	"log/slog"
	"net/http"
	"time"

	"pairchat/observability"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
)

type RoutesConfig struct {
	WSPath  string
	Mode    string
	Metrics http.Handler
	Stats   func() observability.Snapshot
}

type health struct {
	Status    string `json:"status"`
	Mode      string `json:"mode"`
	Timestamp string `json:"timestamp"`
}

// isoMillis matches the ISO-8601 form browsers produce, e.g. 2024-05-01T10:00:00.000Z.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// NewRouter wires the websocket endpoint next to the health, metrics and
// stats endpoints.
func NewRouter(log *slog.Logger, ws *Server, conf RoutesConfig) *mux.Router {
	r := mux.NewRouter()
	r.Handle(conf.WSPath, ws).Methods(http.MethodGet)
	r.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(log, w, health{Status: "ok", Mode: conf.Mode, Timestamp: time.Now().UTC().Format(isoMillis)})
	}).Methods(http.MethodGet)
	if conf.Metrics != nil {
		r.Handle("/metrics", conf.Metrics).Methods(http.MethodGet)
	}
	if conf.Stats != nil {
		r.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(log, w, conf.Stats())
		}).Methods(http.MethodGet)
	}
	return r
}

func writeJSON(log *slog.Logger, w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("Unable to write response", "error", err)
	}
}
