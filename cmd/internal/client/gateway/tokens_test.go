package gateway

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileTokenStore(t *testing.T) {
	t.Parallel()

	s := FileTokenStore{Path: filepath.Join(t.TempDir(), "nested", "tokens.json")}

	_, ok, err := s.Load()
	require.NoError(t, err)
	assert.False(t, ok)

	want := Tokens{
		UserID: "u1", Email: "a@example.com", SessionID: "s1",
		AccessToken: "a", RefreshToken: "r",
		AccessExpiresAt: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.Save(want))

	fi, err := os.Stat(s.Path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())

	got, ok, err := s.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)
	assert.Equal(t, "u1", got.Principal().ID)

	require.NoError(t, s.Clear())
	require.NoError(t, s.Clear())
	_, ok, err = s.Load()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileTokenStore_Corrupt(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tokens.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, _, err := FileTokenStore{Path: path}.Load()
	assert.Error(t, err)

	_, err = New("http://127.0.0.1:1", WithTokenStore(FileTokenStore{Path: path}))
	assert.Error(t, err)
}
