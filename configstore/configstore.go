package configstore

// Interface is what datacenter/manager code depends on, satisfied by
// both the Pebble-backed Store and MemStore.
type Interface interface {
	PutState(dcID uint32, blob []byte) error
	GetState(dcID uint32) ([]byte, error)
	PutCursor(dcID uint32, blob []byte) error
	GetCursor(dcID uint32) ([]byte, error)
}

var (
	_ Interface = (*Store)(nil)
	_ Interface = (*MemStore)(nil)
)
