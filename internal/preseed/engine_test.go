package preseed

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lyubomir-popov/maas/internal/domain"
	"github.com/lyubomir-popov/maas/internal/repository"
	"github.com/lyubomir-popov/maas/internal/rpc"
)

// fakeStore is an in-memory preseed Store for engine tests.
type fakeStore struct {
	defaultArchives map[string]domain.PackageRepository
	additional      []domain.PackageRepository
	hasSwap         bool
	token           domain.NodeKey
	cfg             domain.ConfigSnapshot
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		defaultArchives: map[string]domain.PackageRepository{},
		token: domain.NodeKey{
			MachineID:   1,
			ConsumerKey: "consumer",
			TokenKey:    "token",
			TokenSecret: "secret",
		},
		cfg: domain.ConfigSnapshot{
			CommissioningOSystem: "ubuntu",
			CommissioningSeries:  "xenial",
		},
	}
}

func (s *fakeStore) DefaultArchive(_ context.Context, arch string) (domain.PackageRepository, error) {
	if repo, ok := s.defaultArchives[arch]; ok {
		return repo, nil
	}
	return domain.PackageRepository{}, fmt.Errorf("no default archive for %s: %w", arch, repository.ErrNotFound)
}

func (s *fakeStore) AdditionalRepositories(_ context.Context, arch string) ([]domain.PackageRepository, error) {
	var out []domain.PackageRepository
	for _, repo := range s.additional {
		if repo.ServesArch(arch) {
			out = append(out, repo)
		}
	}
	return out, nil
}

func (s *fakeStore) HasSwapFilesystem(context.Context, int64) (bool, error) {
	return s.hasSwap, nil
}

func (s *fakeStore) TokenForMachine(context.Context, int64) (domain.NodeKey, error) {
	return s.token, nil
}

func (s *fakeStore) ConfigSnapshot(context.Context) (domain.ConfigSnapshot, error) {
	return s.cfg, nil
}

// fakeRack answers boot-image and power requests without a transport.
type fakeRack struct {
	images    []domain.BootImage
	listErr   error
	powerResp string
	powerErr  error
	lastPower rpc.PowerRequest
}

func (r *fakeRack) ListBootImages(context.Context, string) ([]domain.BootImage, error) {
	return r.images, r.listErr
}

func (r *fakeRack) Power(_ context.Context, _ string, req rpc.PowerRequest) (string, error) {
	r.lastPower = req
	return r.powerResp, r.powerErr
}

func testMachine() *domain.Machine {
	return &domain.Machine{
		ID:            1,
		SystemID:      "node4abc",
		Hostname:      "mach",
		Architecture:  "amd64/generic",
		OSystem:       "ubuntu",
		DistroSeries:  "xenial",
		Status:        domain.StatusDeploying,
		RackID:        "rack-1",
		BootClusterIP: "192.168.5.2",
		Netboot:       true,
	}
}

func xinstallImage() domain.BootImage {
	return domain.BootImage{
		OSystem:         "ubuntu",
		Release:         "xenial",
		Architecture:    "amd64",
		SubArchitecture: "generic",
		Purpose:         domain.PurposeXinstall,
		Label:           "release",
		XinstallPath:    "root-tgz",
		XinstallType:    "tgz",
	}
}

func newTestEngine(store *fakeStore, rack *fakeRack, providers ...TemplateProvider) *Engine {
	if len(providers) == 0 {
		providers = []TemplateProvider{DirProvider{Dir: "../../templates"}}
	}
	return &Engine{
		Store:     store,
		Rack:      rack,
		Loader:    &Loader{Providers: providers},
		Kernel:    NewStaticKernelResolver(),
		Storage:   NopStorageComposer{},
		Network:   DHCPNetworkComposer{},
		Caps:      domain.CurtinCapabilities{WebhookEvents: true, CustomStorage: true},
		ServerURL: "http://10.0.0.1:5240",
		Log:       zap.NewNop(),
	}
}

func TestTypeForCoversEveryStatus(t *testing.T) {
	cases := map[domain.NodeStatus]Type{
		domain.StatusNew:           TypeEnlist,
		domain.StatusCommissioning: TypeCommissioning,
		domain.StatusDiskErasing:   TypeCommissioning,
		domain.StatusReady:         TypeCommissioning,
		domain.StatusFailed:        TypeCommissioning,
		domain.StatusBroken:        TypeCommissioning,
		domain.StatusAllocated:     TypeCurtin,
		domain.StatusDeploying:     TypeCurtin,
		domain.StatusDeployed:      TypeCurtin,
	}
	for status, want := range cases {
		got, err := TypeFor(&domain.Machine{Status: status})
		require.NoError(t, err, "status %s", status)
		assert.Equal(t, want, got, "status %s", status)
	}
}

func TestTypeForUnknownStatusIsProgrammingError(t *testing.T) {
	_, err := TypeFor(&domain.Machine{Status: "levitating"})
	require.Error(t, err)
	var unknown *UnknownStatusError
	assert.ErrorAs(t, err, &unknown)
	assert.Contains(t, err.Error(), "levitating")
}

func TestGetNetlocAndPath(t *testing.T) {
	cases := []struct {
		url    string
		netloc string
		path   string
	}{
		{"http://archive.ubuntu.com/ubuntu", "archive.ubuntu.com", "ubuntu"},
		{"http://archive.ubuntu.com/ubuntu/", "archive.ubuntu.com", "ubuntu/"},
		{"http://archive.ubuntu.com", "archive.ubuntu.com", ""},
		{"http://archive.ubuntu.com/", "archive.ubuntu.com", ""},
		{"http://example.com:8080/mirror/path", "example.com:8080", "mirror/path"},
	}
	for _, c := range cases {
		netloc, path := GetNetlocAndPath(c.url)
		assert.Equal(t, c.netloc, netloc, c.url)
		assert.Equal(t, c.path, path, c.url)
	}
}

func TestBaseURLForPrefersBootCluster(t *testing.T) {
	e := newTestEngine(newFakeStore(), &fakeRack{})

	m := testMachine()
	assert.Equal(t, "http://192.168.5.2:5240", e.BaseURLFor(m))

	m.BootClusterIP = ""
	assert.Equal(t, "http://10.0.0.1:5240", e.BaseURLFor(m))
	assert.Equal(t, "http://10.0.0.1:5240", e.BaseURLFor(nil))
}

func TestComposePreseedURL(t *testing.T) {
	e := newTestEngine(newFakeStore(), &fakeRack{})
	m := testMachine()
	assert.Equal(t,
		"http://192.168.5.2:5240/metadata/node/node4abc/preseed",
		e.ComposePreseedURL(m))
}

func TestComposeEnlistmentPreseedURL(t *testing.T) {
	e := newTestEngine(newFakeStore(), &fakeRack{})
	assert.Equal(t,
		"http://10.0.0.1:5240/metadata/enlist-preseed",
		e.ComposeEnlistmentPreseedURL(""))
	assert.Equal(t,
		"http://192.168.5.2:5240/metadata/enlist-preseed",
		e.ComposeEnlistmentPreseedURL("http://192.168.5.2:5240"))
}
