package secret

import (
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// DefaultKeychainService groups whiteboard entries in the keychain.
const DefaultKeychainService = "whiteboard-remote"

// KeychainStore keeps secrets in the macOS Keychain through the `security`
// CLI. On other platforms it holds nothing and refuses writes.
type KeychainStore struct {
	service string
	run     func(args ...string) ([]byte, error)
}

func NewKeychainStore(service string) *KeychainStore {
	if service == "" {
		service = DefaultKeychainService
	}
	return &KeychainStore{service: service, run: security}
}

func security(args ...string) ([]byte, error) {
	return exec.Command("security", args...).Output()
}

func (k *KeychainStore) available() bool { return runtime.GOOS == "darwin" }

// Set stores value under key, replacing any existing entry.
func (k *KeychainStore) Set(key string, value []byte) error {
	if !k.available() {
		return fmt.Errorf("keychain set %s: not supported on %s", key, runtime.GOOS)
	}
	if _, err := k.run("add-generic-password", "-a", key, "-s", k.service, "-w", string(value), "-U"); err != nil {
		return fmt.Errorf("keychain set %s: %w", key, err)
	}
	return nil
}

// Get returns the stored value. A missing entry (exit 44) is not an error.
func (k *KeychainStore) Get(key string) ([]byte, error) {
	if !k.available() {
		return nil, nil
	}
	out, err := k.run("find-generic-password", "-a", key, "-s", k.service, "-w")
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 44 {
			return nil, nil
		}
		return nil, fmt.Errorf("keychain get %s: %w", key, err)
	}
	return []byte(strings.TrimSpace(string(out))), nil
}

// Delete removes key. Deleting a missing entry succeeds.
func (k *KeychainStore) Delete(key string) error {
	if !k.available() {
		return nil
	}
	k.run("delete-generic-password", "-a", key, "-s", k.service)
	return nil
}
