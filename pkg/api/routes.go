package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"proxy-fleet/pkg/archive"
	"proxy-fleet/pkg/fleet"
	"proxy-fleet/pkg/model"
	"proxy-fleet/pkg/version"
)

// opTimeout bounds one triggered operation end to end, refresh included.
const opTimeout = 2 * time.Minute

// BusyResponse bundles the per-namespace busy maps and the global flag.
type BusyResponse struct {
	Nodes       map[string]bool `json:"nodes"`
	Groups      map[string]bool `json:"groups"`
	Providers   map[string]bool `json:"providers"`
	Updates     map[string]bool `json:"updates"`
	AllUpdating bool            `json:"allUpdating"`
}

// RegisterRoutes wires the fleet API on the provided mux. With requireJWT set,
// everything except the banner and health endpoints needs a valid session.
func RegisterRoutes(mux *http.ServeMux, mgr *fleet.Manager, ar archive.Store, hub *EventHub, requireJWT bool) {
	auth := func(r *http.Request) bool {
		if !requireJWT {
			return true
		}
		return authFuncJWT(r)
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("proxy-fleet"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/v1/version", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"version": version.Build})
	})

	mux.HandleFunc("/api/v1/snapshot", func(w http.ResponseWriter, r *http.Request) {
		if !auth(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, mgr.Current())
	})

	mux.HandleFunc("/api/v1/proxies", func(w http.ResponseWriter, r *http.Request) {
		if !auth(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, mgr.Current().Proxies)
	})

	mux.HandleFunc("/api/v1/providers", func(w http.ResponseWriter, r *http.Request) {
		if !auth(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, mgr.Current().Providers)
	})

	mux.HandleFunc("/api/v1/busy", func(w http.ResponseWriter, r *http.Request) {
		if !auth(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, busyOf(mgr))
	})

	mux.HandleFunc("/api/v1/latency", func(w http.ResponseWriter, r *http.Request) {
		if !auth(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		name := r.URL.Query().Get("name")
		if name == "" {
			http.Error(w, "name is required", http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"name":    name,
			"node":    mgr.ResolveTerminal(name),
			"group":   mgr.IsGroup(name),
			"latency": mgr.LatencyByName(name),
		})
	})

	mux.HandleFunc("/api/v1/archive", func(w http.ResponseWriter, r *http.Request) {
		if !auth(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if ar == nil {
			http.Error(w, "archive disabled", http.StatusNotFound)
			return
		}
		node := r.URL.Query().Get("node")
		if node == "" {
			http.Error(w, "node is required", http.StatusBadRequest)
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		entries, err := ar.Recent(node, limit)
		if err != nil {
			http.Error(w, "failed to read archive", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	})

	mux.HandleFunc("/api/v1/settings", func(w http.ResponseWriter, r *http.Request) {
		if !auth(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, mgr.Settings())
		case http.MethodPut:
			var s model.Settings
			if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
				http.Error(w, "invalid payload", http.StatusBadRequest)
				return
			}
			mgr.SetSettings(s)
			writeJSON(w, http.StatusOK, mgr.Settings())
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/v1/refresh", func(w http.ResponseWriter, r *http.Request) {
		if !auth(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := mgr.Refresh(r.Context()); err != nil {
			http.Error(w, "refresh failed", http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("/api/v1/test/node", trigger(auth, mgr, hub, func(req opRequest) opFunc {
		return func(ctx context.Context) error {
			return mgr.TestNodeLatency(ctx, req.Name, req.Provider)
		}
	}))

	mux.HandleFunc("/api/v1/test/group", trigger(auth, mgr, hub, func(req opRequest) opFunc {
		return func(ctx context.Context) error {
			return mgr.TestGroupLatency(ctx, req.Name)
		}
	}))

	mux.HandleFunc("/api/v1/providers/update", trigger(auth, mgr, hub, func(req opRequest) opFunc {
		if req.Name == "" {
			return mgr.UpdateAllProviders
		}
		return func(ctx context.Context) error {
			return mgr.UpdateProvider(ctx, req.Name)
		}
	}))

	mux.HandleFunc("/api/v1/providers/healthcheck", trigger(auth, mgr, hub, func(req opRequest) opFunc {
		return func(ctx context.Context) error {
			return mgr.HealthCheckProvider(ctx, req.Name)
		}
	}))

	mux.HandleFunc("/api/v1/select", func(w http.ResponseWriter, r *http.Request) {
		if !auth(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Group string `json:"group"`
			Name  string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Group == "" || req.Name == "" {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		if err := mgr.SelectNode(r.Context(), req.Group, req.Name); err != nil {
			http.Error(w, "select failed", http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if hub != nil {
		mux.HandleFunc("/api/v1/events", func(w http.ResponseWriter, r *http.Request) {
			if !auth(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			hub.HandleWS(w, r)
		})
	}
}

type opRequest struct {
	Name     string `json:"name"`
	Provider string `json:"provider,omitempty"`
}

type opFunc func(context.Context) error

// trigger starts a guarded operation in the background and answers with an
// operation id; outcome is observable through the busy map and snapshot.
func trigger(auth func(*http.Request) bool, mgr *fleet.Manager, hub *EventHub, bind func(opRequest) opFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !auth(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req opRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		opID := uuid.NewString()
		op := bind(req)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
			defer cancel()
			if err := op(ctx); err != nil {
				log.Printf("operation %s failed: %v", opID, err)
			}
			if hub != nil {
				hub.Broadcast(EventMessage{Type: "busy", Payload: busyOf(mgr)})
			}
		}()
		if hub != nil {
			hub.Broadcast(EventMessage{Type: "busy", Payload: busyOf(mgr)})
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"opId": opID})
	}
}

func busyOf(mgr *fleet.Manager) BusyResponse {
	return BusyResponse{
		Nodes:       mgr.NodeTesting(),
		Groups:      mgr.GroupTesting(),
		Providers:   mgr.ProviderChecking(),
		Updates:     mgr.ProviderUpdating(),
		AllUpdating: mgr.AllUpdating(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to write response: %v", err)
	}
}
