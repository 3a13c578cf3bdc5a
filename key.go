package watermark

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// Key file format: comment lines start with '#'; the key itself is a single
// "key <hex>" line.
const keyFileHeader = "# watermarking key for audiowmark\n\nkey %s\n"

// GenerateKey returns a fresh random 128-bit key.
func GenerateKey() (Key, error) {
	var key Key
	if _, err := rand.Read(key[:]); err != nil {
		return Key{}, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

// WriteKeyFile generates a new key and writes it to path.
func WriteKeyFile(path string) error {
	key, err := GenerateKey()
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error writing to file %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := fmt.Fprintf(f, keyFileHeader, hex.EncodeToString(key[:])); err != nil {
		return fmt.Errorf("error writing to file %s: %w", path, err)
	}
	return nil
}

// LoadKeyFile reads a watermarking key from a key file.
func LoadKeyFile(path string) (Key, error) {
	f, err := os.Open(path)
	if err != nil {
		return Key{}, fmt.Errorf("error opening key file: %w", err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		value, ok := strings.CutPrefix(line, "key ")
		if !ok {
			return Key{}, fmt.Errorf("unexpected line in key file %s: %q", path, line)
		}

		raw, err := hex.DecodeString(strings.TrimSpace(value))
		if err != nil {
			return Key{}, fmt.Errorf("invalid key in file %s: %w", path, err)
		}
		if len(raw) != KeySize {
			return Key{}, fmt.Errorf("invalid key size in file %s: %d bytes, want %d",
				path, len(raw), KeySize)
		}

		var key Key
		copy(key[:], raw)
		return key, nil
	}
	if err := scanner.Err(); err != nil {
		return Key{}, fmt.Errorf("error reading key file %s: %w", path, err)
	}
	return Key{}, fmt.Errorf("no key found in file %s", path)
}
