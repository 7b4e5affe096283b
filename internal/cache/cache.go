// Package cache stores successful compile emissions on disk, keyed by a
// digest of buffer content and option fingerprint. It memoizes compiles
// only: session state is never persisted or restored from here.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// Digest identifies one (content, options) combination.
type Digest [32]byte

// Key derives a cache digest from buffer content hash and the effective
// option fingerprint.
func Key(contentHash [32]byte, fingerprint string) Digest {
	h := sha256.New()
	h.Write(contentHash[:])
	h.Write([]byte(fingerprint))
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// Current schema version - increment when Payload format changes
const schemaVersion uint16 = 1

// Payload is the cached artifact for one successful compile.
type Payload struct {
	Schema      uint16
	Fingerprint string
	Emission    string
}

// Disk хранит полезные артефакты по Digest на диске.
// Thread-safe for concurrent access.
type Disk struct {
	mu  sync.RWMutex
	dir string
}

// OpenDisk initializes and returns a disk cache at the standard location.
func OpenDisk(app string) (*Disk, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		base = filepath.Join(home, ".cache")
	}
	return OpenDiskAt(filepath.Join(base, app))
}

// OpenDiskAt initializes a disk cache rooted at dir.
func OpenDiskAt(dir string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Disk{dir: dir}, nil
}

func (c *Disk) pathFor(key Digest) string {
	hexKey := hex.EncodeToString(key[:])
	// Подкаталог "emit" — для удобства читаемости/очистки.
	return filepath.Join(c.dir, "emit", hexKey+".mp")
}

// Put serializes and writes a payload to the disk cache atomically.
func (c *Disk) Put(key Digest, payload *Payload) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	payload.Schema = schemaVersion
	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	// После успешного rename файла уже нет; ошибка тут не интересна.
	defer func() { _ = os.Remove(tmp) }()

	if err := msgpack.NewEncoder(f).Encode(payload); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	// Атомарная замена
	return os.Rename(tmp, p)
}

// Get reads and deserializes a payload from the disk cache. A stale schema
// counts as a miss.
func (c *Disk) Get(key Digest, out *Payload) (bool, error) {
	if c == nil {
		return false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer func() { _ = f.Close() }()

	if err := msgpack.NewDecoder(f).Decode(out); err != nil {
		return false, err
	}
	if out.Schema != schemaVersion {
		return false, nil
	}
	return true, nil
}
