package repository

import (
	"context"

	"github.com/kamal-hamza/cardforge/internal/core/domain"
	"github.com/kamal-hamza/cardforge/internal/core/ports"
)

// keyringID is the single record holding all stored keys
const keyringID = "default"

type KeyRepository struct {
	store ports.RecordStore
}

func NewKeyRepository(store ports.RecordStore) *KeyRepository {
	return &KeyRepository{store: store}
}

// Ensure it implements the interface
var _ ports.KeyRepository = (*KeyRepository)(nil)

// SaveKey appends a key or replaces the one with the same name
func (r *KeyRepository) SaveKey(ctx context.Context, name, key string) error {
	if err := domain.ValidateKey(name, key); err != nil {
		return err
	}
	var ring domain.Keyring
	return r.store.Update(ctx, ports.KindKeyring, keyringID, &ring, func(bool) error {
		ring.Put(name, key)
		return nil
	})
}

// GetKeys returns stored keys in insertion order
func (r *KeyRepository) GetKeys(ctx context.Context) ([]domain.APIKey, error) {
	var ring domain.Keyring
	if err := r.store.Load(ctx, ports.KindKeyring, keyringID, &ring); err != nil {
		if domain.IsNotFound(err) {
			return []domain.APIKey{}, nil
		}
		return nil, err
	}
	return ring.Keys, nil
}
