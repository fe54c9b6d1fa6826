package repository

import (
	"context"
	"fmt"

	"github.com/lyubomir-popov/maas/internal/datastore"
	"github.com/lyubomir-popov/maas/internal/domain"
)

// Config keys stored in the config table.
const (
	ConfigCommissioningOSystem    = "commissioning_osystem"
	ConfigCommissioningSeries     = "commissioning_distro_series"
	ConfigCurtinVerbose           = "curtin_verbose"
	ConfigEnableThirdPartyDrivers = "enable_third_party_drivers"
	ConfigEnableHTTPProxy         = "enable_http_proxy"
	ConfigHTTPProxy               = "http_proxy"
	ConfigRemoteSyslog            = "remote_syslog"
)

// ConfigRepository reads and writes mutable operator settings.
type ConfigRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	// Snapshot reads all settings at once so a request sees a single
	// consistent view.
	Snapshot(ctx context.Context) (domain.ConfigSnapshot, error)
}

type configRepositoryImpl struct {
	ds *datastore.Datastore
}

// NewConfigRepository creates a new config repository
func NewConfigRepository(ds *datastore.Datastore) ConfigRepository {
	return &configRepositoryImpl{ds: ds}
}

func (r *configRepositoryImpl) Get(ctx context.Context, key string) (string, error) {
	value, err := r.ds.GetConfig(key)
	if err != nil {
		return "", fmt.Errorf("failed to read config %s: %w", key, err)
	}
	return value, nil
}

func (r *configRepositoryImpl) Set(ctx context.Context, key, value string) error {
	if err := r.ds.SetConfig(key, value); err != nil {
		return fmt.Errorf("failed to write config %s: %w", key, err)
	}
	return nil
}

func (r *configRepositoryImpl) Snapshot(ctx context.Context) (domain.ConfigSnapshot, error) {
	snap := domain.ConfigSnapshot{
		CommissioningOSystem: domain.DefaultOSystem,
		CommissioningSeries:  "xenial",
	}
	read := func(key string) (string, error) {
		return r.Get(ctx, key)
	}
	if v, err := read(ConfigCommissioningOSystem); err != nil {
		return snap, err
	} else if v != "" {
		snap.CommissioningOSystem = v
	}
	if v, err := read(ConfigCommissioningSeries); err != nil {
		return snap, err
	} else if v != "" {
		snap.CommissioningSeries = v
	}
	if v, err := read(ConfigCurtinVerbose); err != nil {
		return snap, err
	} else {
		snap.CurtinVerbose = v == "true"
	}
	if v, err := read(ConfigEnableThirdPartyDrivers); err != nil {
		return snap, err
	} else {
		snap.EnableThirdPartyDrivers = v == "true"
	}
	if v, err := read(ConfigEnableHTTPProxy); err != nil {
		return snap, err
	} else {
		snap.EnableHTTPProxy = v == "true"
	}
	if v, err := read(ConfigHTTPProxy); err != nil {
		return snap, err
	} else {
		snap.HTTPProxy = v
	}
	if v, err := read(ConfigRemoteSyslog); err != nil {
		return snap, err
	} else {
		snap.RemoteSyslog = v
	}
	return snap, nil
}
