package domain

import "strings"

// NodeStatus is a machine lifecycle status. Only the subset the region
// cares about when composing preseeds is modeled here.
type NodeStatus string

const (
	StatusNew           NodeStatus = "new"
	StatusCommissioning NodeStatus = "commissioning"
	StatusFailed        NodeStatus = "failed"
	StatusReady         NodeStatus = "ready"
	StatusAllocated     NodeStatus = "allocated"
	StatusDeploying     NodeStatus = "deploying"
	StatusDeployed      NodeStatus = "deployed"
	StatusDiskErasing   NodeStatus = "disk-erasing"
	StatusBroken        NodeStatus = "broken"
)

// Architecture classes. A default package repository serves either the
// main-arch pool or the ports-arch pool depending on which class its
// arches overlap.
var (
	MainArches  = []string{"amd64", "i386"}
	PortsArches = []string{"armhf", "arm64", "ppc64el", "s390x"}
)

// DefaultOSystem is the primary supported distribution. Template lookup
// emits backward-compatible (OS-omitted) names for it, and storage
// composition only runs for it.
const DefaultOSystem = "ubuntu"

// Machine is a physical machine enrolled with the region controller.
type Machine struct {
	ID            int64      // Unique identifier
	SystemID      string     // Opaque public identifier (URL-safe)
	Hostname      string     // Machine hostname
	Architecture  string     // "<arch>/<subarch>", always one slash
	OSystem       string     // Target operating system (e.g. "ubuntu")
	DistroSeries  string     // Target release (e.g. "xenial")
	Status        NodeStatus // Lifecycle status
	SwapSize      *int64     // Requested swap file size in bytes, nil for default
	HWEKernel     string     // Hardware-enablement kernel flavor, "" for default
	LicenseKey    string     // OS license key, "" when not required
	PowerType     string     // Power driver name (e.g. "ipmi")
	PowerParams   string     // Power driver parameters, JSON text
	Owner         string     // Owning username, "" when unallocated
	RackID        string     // UUID of the boot rack controller
	BootClusterIP string     // Rack controller IP the machine boots from
	Netboot       bool       // Whether the machine PXE-boots; cleared at install end
	LSHW          []byte     // Raw lshw output captured during commissioning
	LLDP          []byte     // Raw lldp output captured during commissioning
	Modaliases    []string   // Kernel modaliases captured during commissioning
}

// SplitArch splits the compound architecture into (arch, subarch).
func (m *Machine) SplitArch() (string, string) {
	arch, subarch, _ := strings.Cut(m.Architecture, "/")
	return arch, subarch
}

// BlockDevice is a physical disk attached to a machine.
type BlockDevice struct {
	ID        int64
	MachineID int64
	Name      string // Device name (e.g. "sda")
	SizeBytes int64
}

// Partition is a partition on a block device.
type Partition struct {
	ID            int64
	BlockDeviceID int64
	Number        int
	SizeBytes     int64
}

// Filesystem lives either directly on a block device or on a partition;
// exactly one of BlockDeviceID/PartitionID is set.
type Filesystem struct {
	ID            int64
	BlockDeviceID *int64
	PartitionID   *int64
	FSType        string // e.g. "ext4", "swap"
	MountPoint    string
}

// FSTypeSwap marks a swap filesystem; its presence on any device or
// partition suppresses the installer's swap-file heuristic.
const FSTypeSwap = "swap"

// PackageRepository is an apt archive or additional repository.
type PackageRepository struct {
	ID            int64
	Name          string   // Human name (e.g. "MAAS PPA")
	URL           string   // Archive URL
	Arches        []string // Architectures this repository serves
	Default       bool     // Main/ports mirror rather than an extra repo
	Key           string   // Signing key material, "" when unsigned
	Components    []string // e.g. ["main", "universe"]
	Distributions []string // Overrides the distro series in the deb line
}

// ServesArch reports whether the repository serves the given main
// architecture.
func (r *PackageRepository) ServesArch(arch string) bool {
	for _, a := range r.Arches {
		if a == arch {
			return true
		}
	}
	return false
}

// BootImage is one entry of a rack controller's image catalog. It is
// fetched per-request over RPC and never persisted by the region.
type BootImage struct {
	OSystem         string `json:"osystem"`
	Release         string `json:"release"`
	Architecture    string `json:"architecture"`
	SubArchitecture string `json:"subarchitecture"`
	Purpose         string `json:"purpose"`
	Label           string `json:"label"`
	XinstallPath    string `json:"xinstall_path"`
	XinstallType    string `json:"xinstall_type"`
}

// Boot image purposes.
const (
	PurposeCommissioning = "commissioning"
	PurposeInstall       = "install"
	PurposeXinstall      = "xinstall"
)

// NodeKey is the one-time credential minted per machine and embedded in
// the curtin completion-reporting block. Never reused across machines and
// never logged.
type NodeKey struct {
	MachineID   int64
	ConsumerKey string
	TokenKey    string
	TokenSecret string
}

// User is the minimal requester model the node API needs for its
// permission checks.
type User struct {
	ID       int64
	Username string
	APIKey   string
	IsAdmin  bool
}

// ConfigSnapshot is an immutable copy of the mutable operator settings,
// taken once per request so composition is deterministic.
type ConfigSnapshot struct {
	CommissioningOSystem    string // OS used for enlist/commissioning preseeds
	CommissioningSeries     string // Release used for enlist/commissioning preseeds
	CurtinVerbose           bool   // Emit verbosity=3 + showtrace fragment
	EnableThirdPartyDrivers bool
	EnableHTTPProxy         bool
	HTTPProxy               string // Proxy URL handed to booting machines
	RemoteSyslog            string // "host:port", "" to use the region host
}

// CurtinCapabilities is the result of probing the curtin version in the
// target image.
type CurtinCapabilities struct {
	WebhookEvents bool // Supports webhook-style event reporting
	CustomStorage bool // Supports custom storage configuration
}
