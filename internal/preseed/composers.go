package preseed

import (
	"context"

	"github.com/lyubomir-popov/maas/internal/domain"
)

// NopStorageComposer emits no storage fragment, leaving layout to the
// installer's defaults. The full layout planner lives in a separate
// service; this stands in until a machine has a committed layout.
type NopStorageComposer struct{}

func (NopStorageComposer) Compose(context.Context, *domain.Machine) ([]string, error) {
	return nil, nil
}

// DHCPNetworkComposer emits a v1 network config that brings every
// interface up over DHCP. Machines with curated interface configs get a
// richer composer wired in instead.
type DHCPNetworkComposer struct{}

func (DHCPNetworkComposer) Compose(_ context.Context, m *domain.Machine) ([]string, error) {
	fragment := "network:\n" +
		"  version: 1\n" +
		"  config:\n" +
		"  - type: physical\n" +
		"    name: eth0\n" +
		"    subnets:\n" +
		"    - type: dhcp\n"
	return []string{fragment}, nil
}
