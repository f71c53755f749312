package secret

import (
	"os"
	"strings"
)

// SecretStore provides a pluggable interface for sensitive values such as
// remote database passwords.
type SecretStore interface {
	// Set stores a secret value under the given key.
	Set(key string, value []byte) error

	// Get retrieves the secret value for the given key.
	// Returns empty slice and nil error if key does not exist.
	Get(key string) ([]byte, error)

	// Delete removes the secret for the given key.
	Delete(key string) error
}

// RemoteKey names the secret holding the password for a remote store.
func RemoteKey(driver, host, user string) string {
	return "remote:" + driver + ":" + user + "@" + host
}

// EnvStore reads secrets from environment variables. A key becomes
// WHITEBOARD_<KEY> with every non alphanumeric rune replaced by '_'.
type EnvStore struct {
	lookup func(string) (string, bool)
}

func NewEnvStore() *EnvStore { return &EnvStore{lookup: os.LookupEnv} }

func EnvName(key string) string {
	return "WHITEBOARD_" + strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return '_'
	}, key)
}

func (e *EnvStore) Get(key string) ([]byte, error) {
	if v, ok := e.lookup(EnvName(key)); ok {
		return []byte(v), nil
	}
	return nil, nil
}

func (e *EnvStore) Set(key string, value []byte) error { return os.Setenv(EnvName(key), string(value)) }

func (e *EnvStore) Delete(key string) error { return os.Unsetenv(EnvName(key)) }

// Chain returns the first non-empty value from its stores. Writes go to the
// first store.
type Chain []SecretStore

func (c Chain) Get(key string) ([]byte, error) {
	for _, s := range c {
		v, err := s.Get(key)
		if err != nil {
			return nil, err
		}
		if len(v) > 0 {
			return v, nil
		}
	}
	return nil, nil
}

func (c Chain) Set(key string, value []byte) error {
	if len(c) == 0 {
		return nil
	}
	return c[0].Set(key, value)
}

func (c Chain) Delete(key string) error {
	for _, s := range c {
		if err := s.Delete(key); err != nil {
			return err
		}
	}
	return nil
}
