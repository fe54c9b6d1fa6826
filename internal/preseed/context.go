package preseed

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"gopkg.in/yaml.v3"

	"github.com/lyubomir-popov/maas/internal/domain"
	"github.com/lyubomir-popov/maas/internal/repository"
)

// Canonical archive URLs used when no default repository is configured
// for an architecture class.
const (
	DefaultMainArchiveURL  = "http://archive.ubuntu.com/ubuntu"
	DefaultPortsArchiveURL = "http://ports.ubuntu.com/ubuntu-ports"
)

// SyslogPort is the port appended when deriving the syslog target from
// the region host.
const SyslogPort = "514"

// GlobalContext assembles the machine-independent template context.
// baseURL is the server booting machines should call back on (the rack
// controller's URL when one is associated). The key set is exact and
// covered by a contract test.
func (e *Engine) GlobalContext(ctx context.Context, osystem, release, baseURL string) (Context, error) {
	cfg, err := e.Store.ConfigSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot config: %w", err)
	}
	if baseURL == "" {
		baseURL = e.ServerURL
	}

	mainArchive, err := e.defaultArchiveURL(ctx, domain.MainArches[0], DefaultMainArchiveURL)
	if err != nil {
		return nil, err
	}
	portsArchive, err := e.defaultArchiveURL(ctx, domain.PortsArches[0], DefaultPortsArchiveURL)
	if err != nil {
		return nil, err
	}
	mainHost, mainDir := GetNetlocAndPath(mainArchive)
	portsHost, portsDir := GetNetlocAndPath(portsArchive)

	serverHost := urlHost(baseURL)
	syslog := cfg.RemoteSyslog
	if syslog == "" {
		syslog = serverHost + ":" + SyslogPort
	}

	return Context{
		"osystem":                 osystem,
		"release":                 release,
		"metadata_enlist_url":     baseURL + "/metadata/enlist",
		"server_host":             serverHost,
		"server_url":              baseURL,
		"main_archive_hostname":   mainHost,
		"main_archive_directory":  mainDir,
		"ports_archive_hostname":  portsHost,
		"ports_archive_directory": portsDir,
		"enable_http_proxy":       cfg.EnableHTTPProxy,
		"http_proxy":              cfg.HTTPProxy,
		"syslog_host_port":        syslog,
	}, nil
}

// NodeContext assembles the per-machine template context. preseed_data
// is a serialized YAML payload ready for inline substitution; for the
// curtin path it includes the install source, which needs a boot-image
// catalog round-trip to the machine's rack controller, and the
// cluster-unavailable and missing-image conditions propagate untouched.
func (e *Engine) NodeContext(ctx context.Context, m *domain.Machine, ptype Type) (Context, error) {
	cfg, err := e.Store.ConfigSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot config: %w", err)
	}
	baseURL := e.BaseURLFor(m)

	driver, driverPackage := e.thirdPartyDriverFor(m)

	token, err := e.Store.TokenForMachine(ctx, m.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to mint machine credential: %w", err)
	}
	metadataURL := baseURL + "/metadata/"
	if ptype == TypeCurtin {
		metadataURL = baseURL + "/metadata/curtin"
	}
	preseedData := map[string]any{
		"datasource": map[string]any{
			"MAAS": map[string]any{
				"metadata_url": metadataURL,
				"consumer_key": token.ConsumerKey,
				"token_key":    token.TokenKey,
				"token_secret": token.TokenSecret,
			},
		},
	}
	if ptype == TypeCurtin {
		installerURL, err := e.CurtinInstallerURL(ctx, m)
		if err != nil {
			return nil, err
		}
		preseedData["sources"] = map[string]any{
			"01_install": installerURL,
		}
	}
	serialized, err := yaml.Marshal(preseedData)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize preseed data: %w", err)
	}

	return Context{
		"driver":               driver,
		"driver_package":       driverPackage,
		"node":                 nodeSummary(m),
		"node_disable_pxe_url": baseURL + "/api/2.0/machines/" + m.SystemID + "/",
		"node_disable_pxe_data": url.Values{
			"op": []string{"netboot_off"},
		}.Encode(),
		"preseed_data":        string(serialized),
		"third_party_drivers": cfg.EnableThirdPartyDrivers,
		"license_key":         m.LicenseKey,
	}, nil
}

// nodeSummary is the machine summary exposed to templates.
func nodeSummary(m *domain.Machine) map[string]any {
	arch, subarch := m.SplitArch()
	return map[string]any{
		"system_id":       m.SystemID,
		"hostname":        m.Hostname,
		"architecture":    arch,
		"subarchitecture": subarch,
		"osystem":         m.OSystem,
		"distro_series":   m.DistroSeries,
		"status":          string(m.Status),
	}
}

// thirdPartyDriverFor reports the third-party driver the machine needs,
// matching the modaliases captured during commissioning against the
// driver database. Machines not yet commissioned have no modaliases;
// absent a match both values are empty and templates skip the driver
// stanza.
func (e *Engine) thirdPartyDriverFor(m *domain.Machine) (module, pkg string) {
	return e.Drivers.Match(m.Modaliases)
}

// defaultArchiveURL resolves the default repository for arch, falling
// back to the canonical archive when none is configured.
func (e *Engine) defaultArchiveURL(ctx context.Context, arch, fallback string) (string, error) {
	repo, err := e.Store.DefaultArchive(ctx, arch)
	if errors.Is(err, repository.ErrNotFound) {
		return fallback, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve default archive for %s: %w", arch, err)
	}
	return repo.URL, nil
}

func urlHost(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}
