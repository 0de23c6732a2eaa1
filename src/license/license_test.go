package license

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLicenseFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "licenses.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("fails when the file is missing", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "licenses.txt"))
		require.Error(t, err)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("loads one key per line", func(t *testing.T) {
		store, err := Load(writeLicenseFile(t, "ABC123\nXYZ789"))
		require.NoError(t, err)
		assert.Equal(t, 2, store.Len())
		assert.True(t, store.Verify("ABC123"))
		assert.True(t, store.Verify("XYZ789"))
	})

	t.Run("trailing newline does not make the empty key valid", func(t *testing.T) {
		store, err := Load(writeLicenseFile(t, "ABC123\nXYZ789\n"))
		require.NoError(t, err)
		assert.Equal(t, 2, store.Len())
		assert.False(t, store.Verify(""))
	})

	t.Run("blank lines in the middle are skipped", func(t *testing.T) {
		store, err := Load(writeLicenseFile(t, "ABC123\n\n\nXYZ789\n"))
		require.NoError(t, err)
		assert.Equal(t, 2, store.Len())
	})

	t.Run("lines are not trimmed", func(t *testing.T) {
		store, err := Load(writeLicenseFile(t, "ABC123\r\n XYZ789\n"))
		require.NoError(t, err)
		assert.True(t, store.Verify("ABC123\r"))
		assert.False(t, store.Verify("ABC123"))
		assert.True(t, store.Verify(" XYZ789"))
		assert.False(t, store.Verify("XYZ789"))
	})

	t.Run("duplicate keys collapse", func(t *testing.T) {
		store, err := Load(writeLicenseFile(t, "ABC123\nABC123\n"))
		require.NoError(t, err)
		assert.Equal(t, 1, store.Len())
	})

	t.Run("empty file holds no keys", func(t *testing.T) {
		store, err := Load(writeLicenseFile(t, ""))
		require.NoError(t, err)
		assert.Equal(t, 0, store.Len())
		assert.False(t, store.Verify(""))
	})
}

func TestVerify(t *testing.T) {
	store := New("ABC123", "XYZ789")

	tests := []struct {
		candidate string
		expect    bool
	}{
		{"ABC123", true},
		{"XYZ789", true},
		{"", false},
		{"abc123", false},
		{"ABC12", false},
		{"ABC1234", false},
		{" ABC123", false},
		{"ABC123 ", false},
		{"ABC123\n", false},
		{"WRONG", false},
	}

	for _, test := range tests {
		assert.Equalf(t, test.expect, store.Verify(test.candidate), "Verify(%q)", test.candidate)
	}
}

func TestVerifyLoadOrderIrrelevant(t *testing.T) {
	a := New("ABC123", "XYZ789")
	b := New("XYZ789", "ABC123")

	for _, k := range []string{"ABC123", "XYZ789", "other"} {
		assert.Equal(t, a.Verify(k), b.Verify(k))
	}
}

func TestFingerprint(t *testing.T) {
	fp := Fingerprint("ABC123")
	assert.Len(t, fp, 64)
	assert.Equal(t, fp, Fingerprint("ABC123"))
	assert.NotEqual(t, fp, Fingerprint("XYZ789"))
	assert.NotContains(t, fp, "ABC123")
}
