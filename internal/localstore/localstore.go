// Package localstore is the client-resident durable key-value store. Every
// collection snapshot and the pending-sync queue are cached here so the
// terminal stays fully usable without connectivity and across restarts.
package localstore

import "context"

// Cache keys. Each collection owns exactly one key; writers replace the
// whole value under a key, never patch it.
const (
	KeyProducts     = "products"
	KeySales        = "sales"
	KeyActiveShift  = "activeShift"
	KeyShiftHistory = "shiftHistory"
	KeyCart         = "cart"
	KeyInitialized  = "initialized"
	KeyPendingSyncs = "pendingSyncs"
)

type Store interface {
	// Get returns the stored value for key and whether it exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set replaces the value under key.
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
