package relay

import (
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/google/renameio/v2"
)

// emptyManifest is what a target without a stored manifest serves: the
// empty probe list, so a fresh agent settles on "run nothing".
var emptyManifest = []byte("[]")

// EmptyManifestMD5 is the checksum of the empty probe list.
var EmptyManifestMD5 = func() string {
	sum := md5.Sum(emptyManifest)
	return base64.StdEncoding.EncodeToString(sum[:])
}()

// ManifestStore mirrors per-target manifests under dataDir. Each target
// has a body file and a checksum file; both are replaced via atomic rename
// so an agent reading through the socket never sees a torn manifest. The
// body is written before the checksum: a crash between the two leaves a
// stale checksum, which the next poll repairs by rewriting.
type ManifestStore struct {
	dataDir string
}

func NewManifestStore(dataDir string) (*ManifestStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("manifest dir: %w", err)
	}
	return &ManifestStore{dataDir: dataDir}, nil
}

// MD5 returns the stored checksum for the target, or "" when the target
// has no manifest yet.
func (s *ManifestStore) MD5(tgt Target) (string, error) {
	raw, err := os.ReadFile(tgt.ChecksumPath(s.dataDir))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Read returns the manifest body and checksum, falling back to the empty
// list for targets that have never synced.
func (s *ManifestStore) Read(tgt Target) ([]byte, string, error) {
	body, err := os.ReadFile(tgt.ManifestPath(s.dataDir))
	if os.IsNotExist(err) {
		return emptyManifest, EmptyManifestMD5, nil
	}
	if err != nil {
		return nil, "", err
	}
	sum, err := s.MD5(tgt)
	if err != nil {
		return nil, "", err
	}
	return body, sum, nil
}

// Write replaces the target's manifest.
func (s *ManifestStore) Write(tgt Target, body []byte, sum string) error {
	if err := renameio.WriteFile(tgt.ManifestPath(s.dataDir), body, 0o644); err != nil {
		return fmt.Errorf("write manifest %s: %w", tgt, err)
	}
	if err := renameio.WriteFile(tgt.ChecksumPath(s.dataDir), []byte(sum), 0o644); err != nil {
		return fmt.Errorf("write checksum %s: %w", tgt, err)
	}
	return nil
}

// Remove deletes a target's mirror, for targets that no longer exist.
func (s *ManifestStore) Remove(tgt Target) error {
	if err := os.Remove(tgt.ManifestPath(s.dataDir)); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Remove(tgt.ChecksumPath(s.dataDir)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
