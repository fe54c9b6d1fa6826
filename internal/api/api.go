package api

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lyubomir-popov/maas/internal/datastore"
	"github.com/lyubomir-popov/maas/internal/domain"
	"github.com/lyubomir-popov/maas/internal/preseed"
	"github.com/lyubomir-popov/maas/internal/repository"
	"github.com/lyubomir-popov/maas/internal/rpc"
)

// API holds repository and engine dependencies for the HTTP surface.
type API struct {
	machineRepo repository.MachineRepository
	userRepo    repository.UserRepository
	engine      *preseed.Engine
	rack        rpc.RackClient
	power       *powerTracker
	log         *zap.Logger
}

// NewAPI creates a new API instance with repositories initialized from
// the datastore.
func NewAPI(ds *datastore.Datastore, engine *preseed.Engine, rack rpc.RackClient, log *zap.Logger) *API {
	return &API{
		machineRepo: repository.NewMachineRepository(ds),
		userRepo:    repository.NewUserRepository(ds),
		engine:      engine,
		rack:        rack,
		power:       newPowerTracker(),
		log:         log,
	}
}

// ErrorResponse is the JSON error body for API endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RegisterRoutes registers all endpoints to the given chi router.
func (a *API) RegisterRoutes(r chi.Router) {
	// Metadata endpoints: called by booting machines, which carry no
	// credentials yet, so these stay unauthenticated.
	preseeds := NewPreseeds(a.engine, a.machineRepo, a.log)
	r.Get("/metadata/enlist-preseed", preseeds.EnlistPreseedHandler)
	r.Get("/metadata/node/{systemID}/preseed", preseeds.NodePreseedHandler)
	r.Get("/metadata/node/{systemID}/curtin-user-data", preseeds.CurtinUserDataHandler)
	r.Post("/metadata/status/{systemID}", preseeds.StatusHandler)
	r.Post("/metadata/curtin/latest/", preseeds.SignalHandler)

	// Node endpoints: authenticated API surface.
	nodes := NewNodes(a.machineRepo, a.rack, a.power, a.engine.ComposePreseedURL, a.log)
	// Trailing slashes are normalized by StripSlashes in the server setup.
	r.Route("/api/2.0/machines/{systemID}", func(r chi.Router) {
		r.Use(a.requireUser)
		r.Get("/", nodes.GetHandler)
		r.Post("/", nodes.PostHandler)
	})
}

type contextKey string

const userKey contextKey = "user"

// requireUser resolves the bearer credential to a user and stores it on
// the request context. Missing or unknown credentials are a 401; the
// fixed 404 body is reserved for machine lookups.
func (a *API) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "Authorization required")
			return
		}
		user, err := a.userRepo.FindByAPIKey(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		ctx := context.WithValue(r.Context(), userKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}

func requestUser(r *http.Request) (domain.User, bool) {
	user, ok := r.Context().Value(userKey).(domain.User)
	return user, ok
}

// validSystemID matches well-formed machine identifiers. Anything else
// gets the same fixed 404 as an unknown id.
var validSystemID = regexp.MustCompile(`^[0-9a-zA-Z]+$`)

// writeNotFound writes the fixed 404 body. Malformed and unknown ids are
// deliberately indistinguishable to the caller.
func writeNotFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte("Not Found"))
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
