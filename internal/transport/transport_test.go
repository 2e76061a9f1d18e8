package transport

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mrizaln/adbfsm/internal/pagecache"
)

func TestShellQuoteEscapesSingleQuotes(t *testing.T) {
	require.Equal(t, `'it'\''s'`, shellQuote("it's"))
	require.Equal(t, "'/sdcard/plain'", shellQuote("/sdcard/plain"))
}

func TestClassifyShellErrorMapsKinds(t *testing.T) {
	cases := []struct {
		stderr string
		kind   pagecache.Kind
	}{
		{"rm: can't remove 'x': No such file or directory", pagecache.KindNoSuchFileOrDirectory},
		{"mkdir: 'x': Permission denied", pagecache.KindPermissionDenied},
		{"mkdir: 'x': File exists", pagecache.KindFileExists},
		{"x: Not a directory", pagecache.KindNotADirectory},
		{"rmdir: 'x': Directory not empty", pagecache.KindDirectoryNotEmpty},
		{"error: device offline", pagecache.KindDisconnected},
		{"some other failure", pagecache.KindIoError},
	}

	for _, tc := range cases {
		err := classifyShellError(errors.New("exit status 1"), tc.stderr)
		var pe *pagecache.Error
		require.ErrorAs(t, err, &pe)
		require.Equal(t, tc.kind, pe.Kind, tc.stderr)
	}
}

func TestDecodeB64TrimsTrailingNewline(t *testing.T) {
	out, err := decodeB64([]byte("aGVsbG8=\n"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(out))
}
