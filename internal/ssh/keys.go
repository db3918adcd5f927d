package ssh

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	xssh "golang.org/x/crypto/ssh"
)

// ErrKeyMissing reports that no private key exists at the expected path.
var ErrKeyMissing = errors.New("ssh: private key not found")

// KeyInfo describes an inspected private key.
type KeyInfo struct {
	Path string
	// Encrypted is set when the key is passphrase-protected. Type and
	// Fingerprint are unavailable in that case.
	Encrypted   bool
	Type        string
	Fingerprint string
}

// DefaultKeyPath returns the conventional private key location.
func DefaultKeyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".ssh", "id_rsa")
	}
	return filepath.Join(home, ".ssh", "id_rsa")
}

// InspectKey reads and parses the private key at path. A missing file maps
// to ErrKeyMissing so callers can fail fast with guidance. A
// passphrase-protected key parses far enough to be reported as present.
func InspectKey(path string) (KeyInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return KeyInfo{}, fmt.Errorf("%w: %s", ErrKeyMissing, path)
		}
		return KeyInfo{}, fmt.Errorf("read private key: %w", err)
	}
	signer, err := xssh.ParsePrivateKey(data)
	if err != nil {
		var passErr *xssh.PassphraseMissingError
		if errors.As(err, &passErr) {
			return KeyInfo{Path: path, Encrypted: true}, nil
		}
		return KeyInfo{}, fmt.Errorf("parse private key: %w", err)
	}
	pub := signer.PublicKey()
	return KeyInfo{
		Path:        path,
		Type:        pub.Type(),
		Fingerprint: xssh.FingerprintSHA256(pub),
	}, nil
}
