// Package secret manages the local age identity and the encrypted dotfile
// sources sealed against it.
package secret

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"filippo.io/age"
	"filippo.io/age/armor"
)

const (
	// Suffix marks encrypted entry sources.
	Suffix = ".age"

	identityFile = "identity.txt"
	identityMode = os.FileMode(0o600)
)

var (
	// ErrNoIdentity is returned when the identity file does not exist.
	ErrNoIdentity = errors.New("no age identity")
	// ErrIdentityExists is returned when Init would overwrite an identity.
	ErrIdentityExists = errors.New("age identity already exists")
)

// Keeper seals and unseals files against one age identity file.
type Keeper struct {
	path string
}

type KeeperOpt func(k *Keeper)

// WithIdentityPath overrides the identity file location.
func WithIdentityPath(path string) KeeperOpt {
	return func(k *Keeper) {
		k.path = path
	}
}

func NewKeeper(opts ...KeeperOpt) *Keeper {
	k := &Keeper{}
	for _, opt := range opts {
		opt(k)
	}

	if k.path == "" {
		k.path = DefaultIdentityPath()
	}

	return k
}

// Path returns the identity file location.
func (k *Keeper) Path() string {
	return k.path
}

// Init generates a new x25519 identity, writes it to the keeper's path with
// owner-only permissions, and returns the recipient. An existing identity is
// never overwritten.
func (k *Keeper) Init() (string, error) {
	_, err := os.Stat(k.path)
	if err == nil {
		return "", fmt.Errorf("%w: %s", ErrIdentityExists, k.path)
	}

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return "", fmt.Errorf("generate identity: %w", err)
	}

	err = os.MkdirAll(filepath.Dir(k.path), 0o700)
	if err != nil {
		return "", fmt.Errorf("create identity directory: %w", err)
	}

	recipient := identity.Recipient().String()
	content := fmt.Sprintf("# created: %s\n# public key: %s\n%s\n",
		time.Now().UTC().Format(time.RFC3339), recipient, identity)

	err = os.WriteFile(k.path, []byte(content), identityMode)
	if err != nil {
		return "", fmt.Errorf("write identity: %w", err)
	}

	return recipient, nil
}

// Recipient returns the public key of the stored identity.
func (k *Keeper) Recipient() (string, error) {
	identity, err := k.identity()
	if err != nil {
		return "", err
	}

	return identity.Recipient().String(), nil
}

// HasIdentity reports whether the identity file exists.
func (k *Keeper) HasIdentity() bool {
	_, err := os.Stat(k.path)

	return err == nil
}

// Seal encrypts src against the stored identity's recipient and writes the
// armored ciphertext to src plus the .age suffix, returning that path. The
// plaintext source is left in place.
func (k *Keeper) Seal(src string) (string, error) {
	identity, err := k.identity()
	if err != nil {
		return "", err
	}

	plaintext, err := os.ReadFile(src)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", src, err)
	}

	var buf bytes.Buffer

	aw := armor.NewWriter(&buf)

	ew, err := age.Encrypt(aw, identity.Recipient())
	if err != nil {
		return "", fmt.Errorf("encrypt: %w", err)
	}

	_, err = ew.Write(plaintext)
	if err != nil {
		return "", fmt.Errorf("encrypt: %w", err)
	}

	err = ew.Close()
	if err != nil {
		return "", fmt.Errorf("encrypt: %w", err)
	}

	err = aw.Close()
	if err != nil {
		return "", fmt.Errorf("encrypt: %w", err)
	}

	out := src + Suffix

	err = os.WriteFile(out, buf.Bytes(), 0o600)
	if err != nil {
		return "", fmt.Errorf("write %s: %w", out, err)
	}

	return out, nil
}

// Unseal decrypts the file at path with the stored identity and returns the
// plaintext. Both armored and binary age files are accepted.
func (k *Keeper) Unseal(path string) ([]byte, error) {
	identity, err := k.identity()
	if err != nil {
		return nil, err
	}

	ciphertext, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var in io.Reader = bytes.NewReader(ciphertext)
	if bytes.HasPrefix(bytes.TrimSpace(ciphertext), []byte(armor.Header)) {
		in = armor.NewReader(in)
	}

	dr, err := age.Decrypt(in, identity)
	if err != nil {
		return nil, fmt.Errorf("decrypt %s: %w", path, err)
	}

	plaintext, err := io.ReadAll(dr)
	if err != nil {
		return nil, fmt.Errorf("decrypt %s: %w", path, err)
	}

	return plaintext, nil
}

func (k *Keeper) identity() (*age.X25519Identity, error) {
	b, err := os.ReadFile(k.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w at %s, run `dotup secret init`", ErrNoIdentity, k.path)
	}
	if err != nil {
		return nil, fmt.Errorf("read identity: %w", err)
	}

	identities, err := age.ParseIdentities(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("parse identity %s: %w", k.path, err)
	}

	for _, id := range identities {
		if x, ok := id.(*age.X25519Identity); ok {
			return x, nil
		}
	}

	return nil, fmt.Errorf("%w: %s holds no x25519 identity", ErrNoIdentity, k.path)
}

// DefaultIdentityPath returns the identity location under the user config
// directory, honoring $XDG_CONFIG_HOME.
func DefaultIdentityPath() string {
	if xdgConfig, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok && xdgConfig != "" {
		return filepath.Join(xdgConfig, "dotup", identityFile)
	}

	usrHome, err := os.UserHomeDir()
	if err == nil && usrHome != "" {
		return filepath.Join(usrHome, ".config", "dotup", identityFile)
	}

	tmpIdentity := filepath.Join(os.TempDir(), "dotup", identityFile)

	slog.Warn("could not determine user config directory, using temp path for identity",
		slog.String("path", tmpIdentity),
		slog.Any("error", fmt.Errorf("$XDG_CONFIG_HOME is unset, fall back to home directory: %w", err)),
	)

	return tmpIdentity
}

// IsSealed reports whether path names an encrypted source.
func IsSealed(path string) bool {
	return strings.HasSuffix(path, Suffix)
}
