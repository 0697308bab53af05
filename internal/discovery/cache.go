package discovery

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"time"

	"github.com/orchestrator/taskrunner/internal/store"
)

type cacheFile struct {
	RootDigest string    `json:"root_digest"`
	SavedAt    time.Time `json:"saved_at"`
	Specs      []Spec    `json:"specs"`
}

// Cache persists the last Scan result so short-lived consumers (e.g. a
// status CLI) don't pay a full directory walk on every invocation.
type Cache struct {
	Path   string
	MaxAge time.Duration
}

func rootDigest(root string) string {
	sum := sha256.Sum256([]byte(root))
	return hex.EncodeToString(sum[:])
}

// Load returns the cached specs if the cache file exists, matches root's
// digest, and is not older than MaxAge. ok=false means the caller must
// re-Scan.
func (c Cache) Load(root string) (specs []Spec, ok bool) {
	var cf cacheFile
	if err := store.ReadJSON(c.Path, &cf); err != nil {
		return nil, false
	}
	if cf.RootDigest != rootDigest(root) {
		return nil, false
	}
	if c.MaxAge > 0 && time.Since(cf.SavedAt) > c.MaxAge {
		return nil, false
	}
	return cf.Specs, true
}

// Save writes the scan result keyed to root's digest.
func (c Cache) Save(root string, specs []Spec) error {
	return store.WriteJSON(c.Path, cacheFile{
		RootDigest: rootDigest(root),
		SavedAt:    time.Now().UTC(),
		Specs:      specs,
	})
}

// Invalidate removes the cache file outright, forcing the next Load to
// miss regardless of age or digest.
func (c Cache) Invalidate() error {
	err := os.Remove(c.Path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
