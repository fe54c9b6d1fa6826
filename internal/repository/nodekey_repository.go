package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/lyubomir-popov/maas/internal/datastore"
	"github.com/lyubomir-popov/maas/internal/domain"
)

// NodeKeyRepository mints and retrieves the per-machine one-time
// credentials embedded in install reporting config.
type NodeKeyRepository interface {
	// TokenForMachine returns the machine's credential, minting one on
	// first use. A credential is never shared between machines.
	TokenForMachine(ctx context.Context, machineID int64) (domain.NodeKey, error)
}

type nodeKeyRepositoryImpl struct {
	ds *datastore.Datastore
}

// NewNodeKeyRepository creates a new node key repository
func NewNodeKeyRepository(ds *datastore.Datastore) NodeKeyRepository {
	return &nodeKeyRepositoryImpl{ds: ds}
}

func (r *nodeKeyRepositoryImpl) TokenForMachine(ctx context.Context, machineID int64) (domain.NodeKey, error) {
	existing, err := r.ds.GetNodeKey(machineID)
	if err != nil {
		return domain.NodeKey{}, fmt.Errorf("failed to look up node key: %w", err)
	}
	if existing != nil {
		return *existing, nil
	}
	key := domain.NodeKey{
		MachineID:   machineID,
		ConsumerKey: mintKey(),
		TokenKey:    mintKey(),
		TokenSecret: mintKey(),
	}
	if err := r.ds.CreateNodeKey(key); err != nil {
		return domain.NodeKey{}, fmt.Errorf("failed to store node key: %w", err)
	}
	return key, nil
}

func mintKey() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
