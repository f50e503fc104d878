// Package interfaces defines cache contracts to avoid circular dependencies
package interfaces

// KVStore is the minimal persistent key-value contract the cache manager
// builds on. Implementations never surface storage errors to callers; a
// failed read is a miss and a failed write is a logged no-op, so the engine
// keeps working with a cold cache.
type KVStore interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte)
	Remove(key string)
	ListKeys(prefix string) []string
	Close() error
}
