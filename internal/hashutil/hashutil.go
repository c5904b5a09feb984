// Package hashutil implements the stable source hash and the
// artifact-directory fingerprint the rest of the pipeline keys off.
package hashutil

import (
	"crypto/sha1"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"github.com/roomcal/roomcal/internal/model"
)

// SourceHash returns the first 8 hex characters of SHA-1(url). It is
// stable across runs and processes, and collision-unlikely within a
// single institution's set of published calendar URLs.
func SourceHash(url string) string {
	sum := sha1.Sum([]byte(url))
	return hex.EncodeToString(sum[:])[:8]
}

// emptyArtifactBytes is the literal on-disk size of a valid, empty
// event sequence ("[]"); anything larger holds at least one event.
const emptyArtifactBytes = 2

// Fingerprint walks the artifact directory's per-calendar event files
// and returns the (max mtime, non-empty count) pair. It is a
// stat-only pass; file contents are never read.
func Fingerprint(dir string) (model.Fingerprint, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return model.Fingerprint{}, nil
		}
		return model.Fingerprint{}, err
	}

	var fp model.Fingerprint
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), "events_") || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return model.Fingerprint{}, err
		}
		if info.ModTime().After(fp.MaxModTime) {
			fp.MaxModTime = info.ModTime()
		}
		if info.Size() > emptyArtifactBytes {
			fp.NonEmptyCount++
		}
	}
	return fp, nil
}

// ArtifactPath returns the per-calendar artifact path for a source
// hash under the given artifact directory.
func ArtifactPath(dir, sourceHash string) string {
	return filepath.Join(dir, "events_"+sourceHash+".json")
}

// EventUID synthesizes a stable identifier for an event that didn't
// arrive with one of its own, so API clients have something to key
// off besides array index.
func EventUID(sourceHash string, startRFC3339, endRFC3339, rawTitle string) string {
	sum := sha1.Sum([]byte(sourceHash + "|" + startRFC3339 + "|" + endRFC3339 + "|" + rawTitle))
	return hex.EncodeToString(sum[:])[:12]
}
