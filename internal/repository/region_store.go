package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lyubomir-popov/maas/internal/datastore"
	"github.com/lyubomir-popov/maas/internal/domain"
	"github.com/lyubomir-popov/maas/internal/rpc"
)

// RegionStore backs the region RPC surface: rack controllers push their
// image catalogs here and pull their configured boot sources and proxy
// settings.
type RegionStore struct {
	ds     *datastore.Datastore
	config ConfigRepository
}

// NewRegionStore creates a region store backed by the datastore.
func NewRegionStore(ds *datastore.Datastore) *RegionStore {
	return &RegionStore{ds: ds, config: NewConfigRepository(ds)}
}

// RecordBootImages replaces the catalog previously reported by the rack.
func (s *RegionStore) RecordBootImages(rackID string, images []domain.BootImage) error {
	if err := s.ds.ReplaceReportedBootImages(rackID, images); err != nil {
		return fmt.Errorf("failed to record boot images for rack %s: %w", rackID, err)
	}
	return nil
}

// BootSources returns the image sources the rack should sync from.
func (s *RegionStore) BootSources(rackID string) ([]rpc.BootSource, error) {
	rows, err := s.ds.ListBootSources(rackID)
	if err != nil {
		return nil, fmt.Errorf("failed to list boot sources for rack %s: %w", rackID, err)
	}
	sources := make([]rpc.BootSource, 0, len(rows))
	for _, row := range rows {
		var selections []rpc.BootSourceSelection
		if row.Selections != "" {
			if err := json.Unmarshal([]byte(row.Selections), &selections); err != nil {
				return nil, fmt.Errorf("boot source %s has malformed selections: %w", row.URL, err)
			}
		}
		sources = append(sources, rpc.BootSource{
			URL:        row.URL,
			Keyring:    row.Keyring,
			Selections: selections,
		})
	}
	return sources, nil
}

// Proxies returns the proxy URLs racks should hand to booting machines.
// Both are the operator's configured HTTP proxy; empty when proxying is
// disabled.
func (s *RegionStore) Proxies() (httpProxy, httpsProxy string, err error) {
	cfg, err := s.config.Snapshot(context.Background())
	if err != nil {
		return "", "", err
	}
	if !cfg.EnableHTTPProxy || cfg.HTTPProxy == "" {
		return "", "", nil
	}
	return cfg.HTTPProxy, cfg.HTTPProxy, nil
}
