package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lyubomir-popov/maas/internal/domain"
	"github.com/lyubomir-popov/maas/internal/preseed"
	"github.com/lyubomir-popov/maas/internal/repository"
)

// fakeComposer returns canned preseed output or a canned error.
type fakeComposer struct {
	preseedOut string
	userData   string
	enlistOut  string
	err        error
	rackURL    string
}

func (c *fakeComposer) GetPreseed(_ context.Context, m *domain.Machine) (string, error) {
	return c.preseedOut, c.err
}

func (c *fakeComposer) GetEnlistPreseed(_ context.Context, rackURL string) (string, error) {
	c.rackURL = rackURL
	return c.enlistOut, c.err
}

func (c *fakeComposer) GetCurtinUserData(_ context.Context, m *domain.Machine) (string, error) {
	return c.userData, c.err
}

// fakeMachines is an in-memory machine lookup keyed by system id.
type fakeMachines struct {
	machines map[string]domain.Machine
	saved    []domain.Machine
}

func newFakeMachines(ms ...domain.Machine) *fakeMachines {
	f := &fakeMachines{machines: map[string]domain.Machine{}}
	for _, m := range ms {
		f.machines[m.SystemID] = m
	}
	return f
}

func (f *fakeMachines) FindBySystemID(_ context.Context, systemID string) (domain.Machine, error) {
	m, ok := f.machines[systemID]
	if !ok {
		return domain.Machine{}, fmt.Errorf("machine %s: %w", systemID, repository.ErrNotFound)
	}
	return m, nil
}

func (f *fakeMachines) Save(_ context.Context, m domain.Machine) (domain.Machine, error) {
	f.machines[m.SystemID] = m
	f.saved = append(f.saved, m)
	return m, nil
}

func apiMachine() domain.Machine {
	return domain.Machine{
		ID:           1,
		SystemID:     "node4abc",
		Hostname:     "mach",
		Architecture: "amd64/generic",
		OSystem:      "ubuntu",
		DistroSeries: "xenial",
		Status:       domain.StatusDeploying,
		RackID:       "rack-1",
		Owner:        "alice",
		PowerType:    "ipmi",
		Netboot:      true,
	}
}

func preseedRouter(composer PreseedComposer, machines MachineFinder) chi.Router {
	p := NewPreseeds(composer, machines, zap.NewNop())
	r := chi.NewRouter()
	r.Get("/metadata/enlist-preseed", p.EnlistPreseedHandler)
	r.Get("/metadata/node/{systemID}/preseed", p.NodePreseedHandler)
	r.Get("/metadata/node/{systemID}/curtin-user-data", p.CurtinUserDataHandler)
	r.Post("/metadata/status/{systemID}", p.StatusHandler)
	r.Post("/metadata/curtin/latest/", p.SignalHandler)
	return r
}

func TestEnlistPreseedHandler(t *testing.T) {
	composer := &fakeComposer{enlistOut: "#cloud-config\n"}
	r := preseedRouter(composer, newFakeMachines())

	req := httptest.NewRequest(http.MethodGet, "/metadata/enlist-preseed?url=http://rack:5248", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
	assert.Equal(t, "#cloud-config\n", rec.Body.String())
	assert.Equal(t, "http://rack:5248", composer.rackURL)
}

func TestNodePreseedHandler(t *testing.T) {
	composer := &fakeComposer{preseedOut: "#cloud-config\npreseed"}
	r := preseedRouter(composer, newFakeMachines(apiMachine()))

	req := httptest.NewRequest(http.MethodGet, "/metadata/node/node4abc/preseed", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "#cloud-config\npreseed", rec.Body.String())
}

func TestNodePreseedHandlerUnknownMachine(t *testing.T) {
	r := preseedRouter(&fakeComposer{}, newFakeMachines())

	req := httptest.NewRequest(http.MethodGet, "/metadata/node/node4abc/preseed", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not Found", rec.Body.String())
}

func TestNodePreseedHandlerMalformedID(t *testing.T) {
	machines := newFakeMachines(apiMachine())
	r := preseedRouter(&fakeComposer{preseedOut: "x"}, machines)

	// A malformed id gets the same fixed body as an unknown one.
	req := httptest.NewRequest(http.MethodGet, "/metadata/node/no_de!/preseed", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not Found", rec.Body.String())
}

func TestNodePreseedHandlerClusterUnavailable(t *testing.T) {
	composer := &fakeComposer{err: preseed.ErrClusterUnavailable}
	r := preseedRouter(composer, newFakeMachines(apiMachine()))

	req := httptest.NewRequest(http.MethodGet, "/metadata/node/node4abc/preseed", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNodePreseedHandlerMissingBootImage(t *testing.T) {
	composer := &fakeComposer{err: &preseed.MissingBootImageError{
		OSystem: "ubuntu", Arch: "amd64", Subarch: "generic",
		Series: "xenial", Purpose: "xinstall",
	}}
	r := preseedRouter(composer, newFakeMachines(apiMachine()))

	req := httptest.NewRequest(http.MethodGet, "/metadata/node/node4abc/preseed", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "No image could be found")
}

func TestNodePreseedHandlerTemplateNotFound(t *testing.T) {
	composer := &fakeComposer{err: &preseed.TemplateNotFoundError{Name: "curtin"}}
	r := preseedRouter(composer, newFakeMachines(apiMachine()))

	req := httptest.NewRequest(http.MethodGet, "/metadata/node/node4abc/preseed", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "curtin")
}

func TestCurtinUserDataHandler(t *testing.T) {
	composer := &fakeComposer{userData: "#cloud-config\napt: {}\n"}
	r := preseedRouter(composer, newFakeMachines(apiMachine()))

	req := httptest.NewRequest(http.MethodGet, "/metadata/node/node4abc/curtin-user-data", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "#cloud-config\napt: {}\n", rec.Body.String())
}

func TestStatusHandlerAcceptsEvents(t *testing.T) {
	r := preseedRouter(&fakeComposer{}, newFakeMachines())

	body := strings.NewReader(`{"name": "cmd-install", "event_type": "start"}`)
	req := httptest.NewRequest(http.MethodPost, "/metadata/status/node4abc", body)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestSignalHandler(t *testing.T) {
	r := preseedRouter(&fakeComposer{}, newFakeMachines())

	body := strings.NewReader("status=OK")
	req := httptest.NewRequest(http.MethodPost, "/metadata/curtin/latest/?op=signal", body)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestSignalHandlerUnknownOp(t *testing.T) {
	r := preseedRouter(&fakeComposer{}, newFakeMachines())

	req := httptest.NewRequest(http.MethodPost, "/metadata/curtin/latest/?op=bogus", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
