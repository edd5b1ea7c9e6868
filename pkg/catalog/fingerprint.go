package catalog

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// Fingerprint is the BLAKE3 digest of an archive's bytes.
type Fingerprint [32]byte

func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// FingerprintFile hashes the file at path and returns the digest and size.
func FingerprintFile(path string) (Fingerprint, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return Fingerprint{}, 0, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	h := blake3.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return Fingerprint{}, 0, fmt.Errorf("hash %s: %w", path, err)
	}

	var fp Fingerprint
	copy(fp[:], h.Sum(nil))
	return fp, n, nil
}
