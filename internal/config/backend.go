package config

// Backend persists non-secret keys between runs. Typed parsing of the stored
// values belongs to the key table, not the backend.
type Backend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	// Delete drops a stored key so its default applies again.
	Delete(key string) error
}
