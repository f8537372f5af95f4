package configstore

// ConfigBackend is the capability set a Store delegates to. A backend may be
// an in-process map, a database or a network client; the Store never looks
// past these three methods.
type ConfigBackend interface {
	// Set stores value under key, overwriting any previous value.
	// A non-nil error is returned to the Store's caller unchanged.
	Set(key, value string) error

	// Get returns the value for key. ok is false when the key is absent,
	// which is not an error.
	Get(key string) (val string, ok bool, err error)

	// All returns every key/value pair the backend holds.
	All() (map[string]string, error)
}

// Deleter is implemented by backends that can remove keys. Remove on a Store
// whose backend lacks it returns ErrUnsupported.
type Deleter interface {
	// Delete removes key and reports whether it was present.
	Delete(key string) (bool, error)
}
