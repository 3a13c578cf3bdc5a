package watermark

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKey_Random(t *testing.T) {
	a, err := GenerateKey()
	require.NoError(t, err)
	b, err := GenerateKey()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, Key{}, a)
}

func TestKeyFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.key")

	require.NoError(t, WriteKeyFile(path))

	// file format: comment header plus a single key line
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# watermarking key for audiowmark\n")
	assert.Contains(t, string(data), "\nkey ")

	key, err := LoadKeyFile(path)
	require.NoError(t, err)
	assert.NotEqual(t, Key{}, key)
}

func TestLoadKeyFile_KnownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "known.key")
	content := "# a comment\n\nkey 000102030405060708090a0b0c0d0e0f\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	key, err := LoadKeyFile(path)
	require.NoError(t, err)

	want := Key{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
	assert.Equal(t, want, key)
}

func TestLoadKeyFile_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
	}{
		{"empty", ""},
		{"comments_only", "# nothing here\n"},
		{"bad_hex", "key zz0102030405060708090a0b0c0d0e0f\n"},
		{"short_key", "key 0001\n"},
		{"garbage_line", "this is not a key file\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".key")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			_, err := LoadKeyFile(path)
			assert.Error(t, err)
		})
	}

	_, err := LoadKeyFile(filepath.Join(dir, "missing.key"))
	assert.Error(t, err)
}
