package blob

import (
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// LocalCache stores photo files by the SHA-256 of their content, at
// baseDir/{hash[0:2]}/{hash[2:4]}/{hash}. Identical files are stored once.
type LocalCache struct {
	baseDir string
}

// NewLocalCache creates a cache rooted at baseDir.
func NewLocalCache(baseDir string) *LocalCache {
	return &LocalCache{baseDir: baseDir}
}

// Hash returns the hex SHA-256 of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (c *LocalCache) pathFor(hash string) string {
	return filepath.Join(c.baseDir, hash[0:2], hash[2:4], hash)
}

// Store writes data and returns the file path.
func (c *LocalCache) Store(data []byte) (string, error) {
	path := c.pathFor(Hash(data))
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", errors.Wrap(err, "creating cache directory")
	}

	// Write to a temp file first so a crash never leaves a partial file
	// under a valid hash.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", errors.Wrap(err, "writing cache file")
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", errors.Wrap(err, "finalizing cache file")
	}
	return path, nil
}

// Read returns the bytes at path.
func (c *LocalCache) Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return data, nil
}

// Exists reports whether path names a readable file.
func (c *LocalCache) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Verify reports whether the file at path still matches its content hash.
func (c *LocalCache) Verify(path string) (bool, error) {
	data, err := c.Read(path)
	if err != nil {
		return false, err
	}
	return filepath.Base(path) == Hash(data), nil
}

// Remove deletes the file at path. Missing files are not an error.
func (c *LocalCache) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "removing %s", path)
	}
	return nil
}

// Usage returns the number of cached files and their total size.
func (c *LocalCache) Usage() (files int, bytes int64, err error) {
	err = filepath.WalkDir(c.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files++
		bytes += info.Size()
		return nil
	})
	if err != nil {
		return 0, 0, errors.Wrap(err, "walking photo cache")
	}
	return files, bytes, nil
}
