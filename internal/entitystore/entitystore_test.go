package entitystore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMintIDIsStableAndUnique(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	id1, err := s.MintID("/sdcard/a.txt")
	require.NoError(t, err)

	id2, err := s.MintID("/sdcard/a.txt")
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	id3, err := s.MintID("/sdcard/b.txt")
	require.NoError(t, err)
	require.NotEqual(t, id1, id3)
}

func TestPathOfReverseLookup(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	id, err := s.MintID("/sdcard/a.txt")
	require.NoError(t, err)

	path, ok, err := s.PathOf(id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "/sdcard/a.txt", path)
}

func TestForgetRemovesMapping(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	_, err = s.MintID("/sdcard/a.txt")
	require.NoError(t, err)

	require.NoError(t, s.Forget("/sdcard/a.txt"))

	_, ok, err := s.Lookup("/sdcard/a.txt")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRenameMovesSubtree(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	dirID, err := s.MintID("/sdcard/dir")
	require.NoError(t, err)
	fileID, err := s.MintID("/sdcard/dir/f.txt")
	require.NoError(t, err)

	require.NoError(t, s.Rename("/sdcard/dir", "/sdcard/moved"))

	newDirID, ok, err := s.Lookup("/sdcard/moved")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, dirID, newDirID)

	newFileID, ok, err := s.Lookup("/sdcard/moved/f.txt")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, fileID, newFileID)

	_, ok, err = s.Lookup("/sdcard/dir/f.txt")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStatCacheRoundTrip(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	now := time.Unix(1700000000, 0)
	require.NoError(t, s.PutStat("/sdcard/a.txt", CachedStat{Size: 42}, now))

	st, ok, err := s.GetStat("/sdcard/a.txt")
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 42, st.Size)
	// The JSON round trip keeps the instant but not the *time.Location.
	require.True(t, now.Equal(st.At), "got %v, want %v", st.At, now)

	require.NoError(t, s.InvalidateStat("/sdcard/a.txt"))
	_, ok, err = s.GetStat("/sdcard/a.txt")
	require.NoError(t, err)
	require.False(t, ok)
}
