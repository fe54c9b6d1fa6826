// Package preseed composes the boot/install configuration served to
// machines during enlistment, commissioning and deployment. Everything
// here is per-request and stateless: contexts, fragment lists and
// rendered buffers are freshly built and never shared.
package preseed

import (
	"context"
	"net"
	"net/url"

	"go.uber.org/zap"

	"github.com/lyubomir-popov/maas/internal/domain"
	"github.com/lyubomir-popov/maas/internal/rpc"
)

// Type is the kind of preseed to compose for a machine.
type Type string

const (
	TypeEnlist        Type = "enlist"
	TypeCommissioning Type = "commissioning"
	TypeCurtin        Type = "curtin"
)

// TypeFor decides which preseed kind applies to the machine's lifecycle
// state. The mapping is total: an unrecognized status is a programming
// error surfaced as UnknownStatusError, never a user-facing condition.
func TypeFor(m *domain.Machine) (Type, error) {
	switch m.Status {
	case domain.StatusNew:
		// No identity yet: enlistment flow.
		return TypeEnlist, nil
	case domain.StatusCommissioning, domain.StatusDiskErasing,
		domain.StatusReady, domain.StatusFailed, domain.StatusBroken:
		// Ready machines get a commissioning preseed so they power off.
		return TypeCommissioning, nil
	case domain.StatusAllocated, domain.StatusDeploying, domain.StatusDeployed:
		return TypeCurtin, nil
	default:
		return "", &UnknownStatusError{Status: string(m.Status)}
	}
}

// Store is what the engine reads from the model layer. All lookups see
// the store's snapshot at request time; the engine persists nothing.
type Store interface {
	DefaultArchive(ctx context.Context, arch string) (domain.PackageRepository, error)
	AdditionalRepositories(ctx context.Context, arch string) ([]domain.PackageRepository, error)
	HasSwapFilesystem(ctx context.Context, machineID int64) (bool, error)
	TokenForMachine(ctx context.Context, machineID int64) (domain.NodeKey, error)
	ConfigSnapshot(ctx context.Context) (domain.ConfigSnapshot, error)
}

// KernelPackageResolver maps a machine and its hwe_kernel flavor to the
// kernel package to install.
type KernelPackageResolver interface {
	KernelPackage(ctx context.Context, m *domain.Machine) (string, error)
}

// StorageComposer produces the storage section of the install config.
// Only invoked when the target OS is the primary supported distribution.
type StorageComposer interface {
	Compose(ctx context.Context, m *domain.Machine) ([]string, error)
}

// NetworkComposer produces the network section of the install config,
// for every target OS.
type NetworkComposer interface {
	Compose(ctx context.Context, m *domain.Machine) ([]string, error)
}

// RackPort is the port rack controllers serve images on.
const RackPort = "5248"

// RegionPort is the port the region's HTTP surface listens on.
const RegionPort = "5240"

// Engine composes preseeds. It holds only immutable collaborators and is
// safe for concurrent use; per-request state never leaves the call.
type Engine struct {
	Store     Store
	Rack      rpc.RackClient
	Loader    *Loader
	Kernel    KernelPackageResolver
	Storage   StorageComposer
	Network   NetworkComposer
	Caps      domain.CurtinCapabilities
	Drivers   DriverDB
	ServerURL string // region base URL, e.g. "http://10.0.0.1:5240"
	Log       *zap.Logger
}

// BaseURLFor returns the URL machines should call back on: the boot rack
// controller when one is known, else the region itself.
func (e *Engine) BaseURLFor(m *domain.Machine) string {
	if m != nil && m.BootClusterIP != "" {
		return "http://" + net.JoinHostPort(m.BootClusterIP, RegionPort)
	}
	return e.ServerURL
}

// ComposePreseedURL returns the absolute URL serving the machine's
// preseed.
func (e *Engine) ComposePreseedURL(m *domain.Machine) string {
	return e.BaseURLFor(m) + "/metadata/node/" + m.SystemID + "/preseed"
}

// ComposeEnlistmentPreseedURL returns the absolute URL serving the
// enlistment preseed. rackURL overrides the region base when non-empty.
func (e *Engine) ComposeEnlistmentPreseedURL(rackURL string) string {
	base := e.ServerURL
	if rackURL != "" {
		base = rackURL
	}
	return base + "/metadata/enlist-preseed"
}

// GetNetlocAndPath splits a URL into its host[:port] and its path
// without the leading slash.
func GetNetlocAndPath(rawURL string) (string, string) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", ""
	}
	path := parsed.Path
	for len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}
	return parsed.Host, path
}
