// Package auth implements operator pairing for the bridge: a process-local
// start code derived from the machine identity, and a cache of the paired
// chat id. Whoever presents the code over the chat channel becomes the
// operator, provided their username matches the configured one.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
)

const (
	codeLength   = 12
	codeAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-_"

	machineIDFile = "machine_id"
	saltFile      = "start_salt"

	// SaltEnv overrides the generated salt, pinning the start code across
	// machines that share the env.
	SaltEnv = "STDHUMAN_START_CODE_SALT"
)

// Pairing derives and caches the start code material under a data directory.
type Pairing struct {
	dataDir string
}

// NewPairing creates the data directory and primes the machine id and salt
// files so the start code is stable from first boot on.
func NewPairing(dataDir string) (*Pairing, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	p := &Pairing{dataDir: dataDir}
	if _, err := p.machineID(); err != nil {
		return nil, err
	}
	if _, err := p.salt(); err != nil {
		return nil, err
	}
	return p, nil
}

// StartCode returns the pairing code the operator must send via
// "/start <code>".
func (p *Pairing) StartCode() (string, error) {
	machineID, err := p.machineID()
	if err != nil {
		return "", err
	}
	salt, err := p.salt()
	if err != nil {
		return "", err
	}
	return DeriveCode(machineID, salt), nil
}

// DeriveCode maps sha256(machineID ":" salt) onto the code alphabet.
// Deterministic: the same machine and salt always yield the same code.
func DeriveCode(machineID, salt string) string {
	digest := sha256.Sum256([]byte(machineID + ":" + salt))

	num := new(big.Int).SetBytes(digest[:])
	base := big.NewInt(int64(len(codeAlphabet)))
	rem := new(big.Int)

	chars := make([]byte, codeLength)
	for i := 0; i < codeLength; i++ {
		num.DivMod(num, base, rem)
		chars[i] = codeAlphabet[rem.Int64()]
	}
	return string(chars)
}

// machineID returns a stable identifier for this host, cached in the data
// dir so later fallback changes cannot rotate the start code.
func (p *Pairing) machineID() (string, error) {
	cachePath := filepath.Join(p.dataDir, machineIDFile)
	if cached := readTrimmed(cachePath); cached != "" {
		return cached, nil
	}

	id := detectMachineID()
	if err := os.WriteFile(cachePath, []byte(id), 0o600); err != nil {
		return "", fmt.Errorf("failed to cache machine id: %w", err)
	}
	return id, nil
}

func detectMachineID() string {
	for _, path := range []string{"/etc/machine-id", "/var/lib/dbus/machine-id"} {
		if id := readTrimmed(path); id != "" {
			return "machine-id:" + id
		}
	}
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		return "host:" + hostname
	}
	return "unknown"
}

// salt returns the start-code salt: env override, cached file, or a freshly
// generated random value persisted for next time.
func (p *Pairing) salt() (string, error) {
	saltPath := filepath.Join(p.dataDir, saltFile)

	if envSalt := os.Getenv(SaltEnv); envSalt != "" {
		if err := os.WriteFile(saltPath, []byte(envSalt), 0o600); err != nil {
			return "", fmt.Errorf("failed to cache salt: %w", err)
		}
		return envSalt, nil
	}

	if cached := readTrimmed(saltPath); cached != "" {
		return cached, nil
	}

	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	salt := hex.EncodeToString(raw)
	if err := os.WriteFile(saltPath, []byte(salt), 0o600); err != nil {
		return "", fmt.Errorf("failed to cache salt: %w", err)
	}
	return salt, nil
}

func readTrimmed(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
