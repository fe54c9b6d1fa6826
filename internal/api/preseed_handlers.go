package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lyubomir-popov/maas/internal/domain"
	"github.com/lyubomir-popov/maas/internal/preseed"
	"github.com/lyubomir-popov/maas/internal/repository"
)

// PreseedComposer is the engine surface the preseed handlers need.
type PreseedComposer interface {
	GetPreseed(ctx context.Context, m *domain.Machine) (string, error)
	GetEnlistPreseed(ctx context.Context, rackURL string) (string, error)
	GetCurtinUserData(ctx context.Context, m *domain.Machine) (string, error)
}

// MachineFinder is the lookup surface the preseed handlers need.
type MachineFinder interface {
	FindBySystemID(ctx context.Context, systemID string) (domain.Machine, error)
}

// Preseeds groups the metadata endpoints booting machines call. These
// are deliberately unauthenticated: the caller is firmware fetching its
// install instructions.
type Preseeds struct {
	composer PreseedComposer
	machines MachineFinder
	log      *zap.Logger
}

func NewPreseeds(composer PreseedComposer, machines MachineFinder, log *zap.Logger) *Preseeds {
	return &Preseeds{composer: composer, machines: machines, log: log}
}

// EnlistPreseedHandler handles GET /metadata/enlist-preseed.
//
// The optional url parameter names the rack controller the machine
// booted from; callbacks in the rendered preseed then point at that
// rack instead of the region.
func (p *Preseeds) EnlistPreseedHandler(w http.ResponseWriter, r *http.Request) {
	rendered, err := p.composer.GetEnlistPreseed(r.Context(), r.URL.Query().Get("url"))
	if err != nil {
		p.writePreseedError(w, "", err)
		return
	}
	writePreseed(w, rendered)
}

// NodePreseedHandler handles GET /metadata/node/{systemID}/preseed.
func (p *Preseeds) NodePreseedHandler(w http.ResponseWriter, r *http.Request) {
	m, ok := p.lookupMachine(w, r)
	if !ok {
		return
	}
	rendered, err := p.composer.GetPreseed(r.Context(), &m)
	if err != nil {
		p.writePreseedError(w, m.SystemID, err)
		return
	}
	writePreseed(w, rendered)
}

// CurtinUserDataHandler handles GET /metadata/node/{systemID}/curtin-user-data.
func (p *Preseeds) CurtinUserDataHandler(w http.ResponseWriter, r *http.Request) {
	m, ok := p.lookupMachine(w, r)
	if !ok {
		return
	}
	rendered, err := p.composer.GetCurtinUserData(r.Context(), &m)
	if err != nil {
		p.writePreseedError(w, m.SystemID, err)
		return
	}
	writePreseed(w, rendered)
}

// StatusHandler receives curtin webhook event reports during install.
// Events are logged and acknowledged; the reporting contract only
// requires a 2xx.
func (p *Preseeds) StatusHandler(w http.ResponseWriter, r *http.Request) {
	systemID := chi.URLParam(r, "systemID")
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Unreadable body")
		return
	}
	p.log.Info("install status event",
		zap.String("system_id", systemID),
		zap.ByteString("event", body))
	w.WriteHeader(http.StatusNoContent)
}

// SignalHandler receives legacy curtin signal callbacks
// (POST /metadata/curtin/latest/?op=signal).
func (p *Preseeds) SignalHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("op") != "signal" {
		writeError(w, http.StatusBadRequest, "Unknown operation")
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "Malformed signal")
		return
	}
	p.log.Info("install signal",
		zap.String("status", r.PostFormValue("status")),
		zap.String("error", r.PostFormValue("error")))
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (p *Preseeds) lookupMachine(w http.ResponseWriter, r *http.Request) (domain.Machine, bool) {
	systemID := chi.URLParam(r, "systemID")
	if !validSystemID.MatchString(systemID) {
		writeNotFound(w)
		return domain.Machine{}, false
	}
	m, err := p.machines.FindBySystemID(r.Context(), systemID)
	if errors.Is(err, repository.ErrNotFound) {
		writeNotFound(w)
		return domain.Machine{}, false
	}
	if err != nil {
		p.log.Error("machine lookup failed", zap.String("system_id", systemID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to look up machine")
		return domain.Machine{}, false
	}
	return m, true
}

// writePreseedError maps engine failures to status codes. Template and
// image gaps are operator-fixable configuration problems; an unreachable
// rack is transient and the machine retries on its own cadence.
func (p *Preseeds) writePreseedError(w http.ResponseWriter, systemID string, err error) {
	p.log.Error("preseed composition failed",
		zap.String("system_id", systemID), zap.Error(err))

	var missing *preseed.MissingBootImageError
	switch {
	case preseed.IsTemplateNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &missing):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, preseed.ErrClusterUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "Failed to compose preseed")
	}
}

func writePreseed(w http.ResponseWriter, rendered string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(rendered))
}
