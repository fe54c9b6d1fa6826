package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/lyubomir-popov/maas/internal/domain"
	"github.com/lyubomir-popov/maas/internal/repository"
	"github.com/lyubomir-popov/maas/internal/rpc"
)

// NodesStore is the machine access the node handlers need.
type NodesStore interface {
	FindBySystemID(ctx context.Context, systemID string) (domain.Machine, error)
	Save(ctx context.Context, m domain.Machine) (domain.Machine, error)
}

// Nodes groups the per-machine API handlers.
type Nodes struct {
	store      NodesStore
	rack       rpc.RackClient
	power      *powerTracker
	preseedURL func(*domain.Machine) string
	log        *zap.Logger
}

func NewNodes(store NodesStore, rack rpc.RackClient, power *powerTracker, preseedURL func(*domain.Machine) string, log *zap.Logger) *Nodes {
	return &Nodes{store: store, rack: rack, power: power, preseedURL: preseedURL, log: log}
}

// MachineSummary is the JSON machine representation returned by node
// operations.
type MachineSummary struct {
	SystemID     string `json:"system_id"`
	Hostname     string `json:"hostname"`
	Architecture string `json:"architecture"`
	OSystem      string `json:"osystem"`
	DistroSeries string `json:"distro_series"`
	Status       string `json:"status"`
	Owner        string `json:"owner"`
	PowerType    string `json:"power_type"`
	Netboot      bool   `json:"netboot"`
	PreseedURL   string `json:"preseed_url"`
}

func (n *Nodes) summarize(m domain.Machine) MachineSummary {
	return MachineSummary{
		SystemID:     m.SystemID,
		Hostname:     m.Hostname,
		Architecture: m.Architecture,
		OSystem:      m.OSystem,
		DistroSeries: m.DistroSeries,
		Status:       string(m.Status),
		Owner:        m.Owner,
		PowerType:    m.PowerType,
		Netboot:      m.Netboot,
		PreseedURL:   n.preseedURL(&m),
	}
}

// GetHandler handles GET /api/2.0/machines/{systemID}/?op=...
//
// op=details returns the commissioning capture as BSON; op=power_parameters
// is admin-only. Without an op the machine summary is returned.
func (n *Nodes) GetHandler(w http.ResponseWriter, r *http.Request) {
	m, user, ok := n.resolve(w, r)
	if !ok {
		return
	}
	switch r.URL.Query().Get("op") {
	case "details":
		n.detailsHandler(w, m)
	case "power_parameters":
		if !user.IsAdmin {
			writeError(w, http.StatusForbidden, "You are not allowed to view power parameters")
			return
		}
		n.powerParametersHandler(w, m)
	case "":
		writeJSON(w, http.StatusOK, n.summarize(m))
	default:
		writeError(w, http.StatusBadRequest, "Unknown operation")
	}
}

// detailsHandler writes the raw commissioning captures as a BSON
// document with exactly the keys lshw and lldp, null when never
// captured.
func (n *Nodes) detailsHandler(w http.ResponseWriter, m domain.Machine) {
	doc := bson.D{
		{Key: "lshw", Value: binaryOrNil(m.LSHW)},
		{Key: "lldp", Value: binaryOrNil(m.LLDP)},
	}
	out, err := bson.Marshal(doc)
	if err != nil {
		n.log.Error("failed to encode details", zap.String("system_id", m.SystemID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to encode details")
		return
	}
	w.Header().Set("Content-Type", "application/bson")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

func binaryOrNil(data []byte) any {
	if data == nil {
		return nil
	}
	return primitive.Binary{Data: data}
}

// powerParametersHandler returns the machine's power driver parameters;
// an empty object when none are set.
func (n *Nodes) powerParametersHandler(w http.ResponseWriter, m domain.Machine) {
	params, err := parsePowerParams(m.PowerParams)
	if err != nil {
		n.log.Error("malformed power parameters", zap.String("system_id", m.SystemID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Malformed power parameters")
		return
	}
	writeJSON(w, http.StatusOK, params)
}

func parsePowerParams(raw string) (map[string]any, error) {
	params := map[string]any{}
	if raw == "" {
		return params, nil
	}
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return nil, err
	}
	return params, nil
}

// PostHandler handles POST /api/2.0/machines/{systemID}/ with an op form
// field: power_on, power_off, query_power_state or netboot_off.
func (n *Nodes) PostHandler(w http.ResponseWriter, r *http.Request) {
	m, user, ok := n.resolve(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "Malformed request body")
		return
	}
	if !user.IsAdmin && user.Username != m.Owner {
		writeError(w, http.StatusForbidden, "You are not allowed to control this machine")
		return
	}

	switch r.PostFormValue("op") {
	case "power_on":
		n.powerHandler(w, r, m, rpc.PowerActionOn, "")
	case "power_off":
		n.powerHandler(w, r, m, rpc.PowerActionOff, r.PostFormValue("stop_mode"))
	case "query_power_state":
		n.queryPowerHandler(w, r, m)
	case "netboot_off":
		n.netbootOffHandler(w, r, m)
	default:
		writeError(w, http.StatusBadRequest, "Unknown operation")
	}
}

func (n *Nodes) powerHandler(w http.ResponseWriter, r *http.Request, m domain.Machine, action, stopMode string) {
	if !n.power.Begin(m.SystemID) {
		writeError(w, http.StatusServiceUnavailable,
			fmt.Sprintf("Power action already in progress for %s", m.Hostname))
		return
	}
	defer n.power.End(m.SystemID)

	if _, err := n.requestPower(r.Context(), m, action, stopMode); err != nil {
		n.writePowerError(w, m, err)
		return
	}
	writeJSON(w, http.StatusOK, n.summarize(m))
}

func (n *Nodes) queryPowerHandler(w http.ResponseWriter, r *http.Request, m domain.Machine) {
	state, err := n.requestPower(r.Context(), m, rpc.PowerActionQuery, "")
	if err != nil {
		n.writePowerError(w, m, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": state})
}

func (n *Nodes) requestPower(ctx context.Context, m domain.Machine, action, stopMode string) (string, error) {
	params, err := parsePowerParams(m.PowerParams)
	if err != nil {
		return "", fmt.Errorf("malformed power parameters: %w", err)
	}
	return n.rack.Power(ctx, m.RackID, rpc.PowerRequest{
		Action:     action,
		SystemID:   m.SystemID,
		PowerType:  m.PowerType,
		Parameters: params,
		StopMode:   stopMode,
	})
}

func (n *Nodes) writePowerError(w http.ResponseWriter, m domain.Machine, err error) {
	n.log.Error("power action failed", zap.String("system_id", m.SystemID), zap.Error(err))

	var inProgress *rpc.PowerActionInProgressError
	var powerErr *rpc.PowerError
	switch {
	case errors.As(err, &inProgress):
		writeError(w, http.StatusServiceUnavailable, inProgress.Message)
	case errors.Is(err, rpc.ErrNoConnections):
		writeError(w, http.StatusServiceUnavailable, "No rack controller is available for this machine")
	case errors.As(err, &powerErr):
		writeError(w, http.StatusInternalServerError, powerErr.Message)
	default:
		writeError(w, http.StatusInternalServerError, "Power action failed")
	}
}

// netbootOffHandler clears the PXE flag; the installed OS boots from
// disk on the next cycle. Called by the install payload itself at the
// end of a deployment.
func (n *Nodes) netbootOffHandler(w http.ResponseWriter, r *http.Request, m domain.Machine) {
	m.Netboot = false
	updated, err := n.store.Save(r.Context(), m)
	if err != nil {
		n.log.Error("failed to clear netboot", zap.String("system_id", m.SystemID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to update machine")
		return
	}
	writeJSON(w, http.StatusOK, n.summarize(updated))
}

// resolve looks up the machine and requester; on failure the response is
// already written. Malformed and unknown ids share the fixed 404 body.
func (n *Nodes) resolve(w http.ResponseWriter, r *http.Request) (domain.Machine, domain.User, bool) {
	user, ok := requestUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authorization required")
		return domain.Machine{}, domain.User{}, false
	}
	systemID := chi.URLParam(r, "systemID")
	if !validSystemID.MatchString(systemID) {
		writeNotFound(w)
		return domain.Machine{}, domain.User{}, false
	}
	m, err := n.store.FindBySystemID(r.Context(), systemID)
	if errors.Is(err, repository.ErrNotFound) {
		writeNotFound(w)
		return domain.Machine{}, domain.User{}, false
	}
	if err != nil {
		n.log.Error("machine lookup failed", zap.String("system_id", systemID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to look up machine")
		return domain.Machine{}, domain.User{}, false
	}
	return m, user, true
}
