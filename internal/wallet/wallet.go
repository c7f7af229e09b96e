// Package wallet holds signing keys and serializes each wallet's
// transactions through a Sequencer.
package wallet

import (
	"bufio"
	"crypto/ecdsa"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/gateway-fm/cyclebot/internal/config"
)

// Wallet is a signing key and its address.
type Wallet struct {
	PrivateKey *ecdsa.PrivateKey
	Address    common.Address
}

// New creates a wallet from a private key.
func New(privateKey *ecdsa.PrivateKey) *Wallet {
	return &Wallet{
		PrivateKey: privateKey,
		Address:    crypto.PubkeyToAddress(privateKey.PublicKey),
	}
}

// FromHex creates a wallet from a hex-encoded private key, with or without
// the 0x prefix.
func FromHex(hexKey string) (*Wallet, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, err
	}
	return New(privateKey), nil
}

// Masked returns the masked address.
func (w *Wallet) Masked() string {
	return Mask(w.Address.Hex())
}

// Mask shortens s to its first six and last four characters.
func Mask(s string) string {
	if len(s) <= 10 {
		return s
	}
	return s[:6] + "..." + s[len(s)-4:]
}

// readLines returns the trimmed non-empty lines of path, skipping # comments.
func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, sc.Err()
}

// LoadKeys reads one hex private key per line. Invalid lines are a
// ConfigurationError naming the line number, never the key.
func LoadKeys(path string) ([]*Wallet, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, config.NewConfigurationError("keys", "failed to read %s: %v", path, err)
	}

	wallets := make([]*Wallet, 0, len(lines))
	for i, line := range lines {
		w, err := FromHex(line)
		if err != nil {
			return nil, config.NewConfigurationError("keys", "invalid private key #%d in %s", i+1, path)
		}
		wallets = append(wallets, w)
	}
	if len(wallets) == 0 {
		return nil, config.NewConfigurationError("keys", "no private keys found in %s", path)
	}
	return wallets, nil
}

// LoadRecipients reads one address per line.
func LoadRecipients(path string) ([]common.Address, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, config.NewConfigurationError("recipients", "failed to read %s: %v", path, err)
	}

	out := make([]common.Address, 0, len(lines))
	for _, line := range lines {
		if !common.IsHexAddress(line) {
			return nil, config.NewConfigurationError("recipients", "invalid address %q in %s", line, path)
		}
		out = append(out, common.HexToAddress(line))
	}
	return out, nil
}
