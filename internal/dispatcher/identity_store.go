package dispatcher

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/jaakkos/masc/internal/storage"
)

// FileIdentityStore persists identity-resolution keys as small files under
// a directory, one file per key, atomically rewritten.
type FileIdentityStore struct {
	dir string
}

// NewFileIdentityStore creates a store rooted at dir, creating it if
// necessary.
func NewFileIdentityStore(dir string) (*FileIdentityStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileIdentityStore{dir: dir}, nil
}

func (s *FileIdentityStore) path(key string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(key)
	return filepath.Join(s.dir, safe+".identity")
}

// Load implements IdentityStore.
func (s *FileIdentityStore) Load(key string) (string, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// Save implements IdentityStore.
func (s *FileIdentityStore) Save(key, name string) error {
	return storage.AtomicWrite(s.path(key), []byte(name))
}
