package control

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mrizaln/adbfsm/internal/rpcwire"
)

type fakeCache struct {
	pageSize   int
	maxPages   int
	invalidate int
	orphans    bool
}

func (f *fakeCache) PageSize() int     { return f.pageSize }
func (f *fakeCache) SetPageSize(p int) { f.pageSize = p }
func (f *fakeCache) MaxPages() int     { return f.maxPages }
func (f *fakeCache) SetMaxPages(m int) { f.maxPages = m }
func (f *fakeCache) Invalidate()       { f.invalidate++ }
func (f *fakeCache) HasOrphans() bool  { return f.orphans }

func TestDispatchGetSetPageSize(t *testing.T) {
	cache := &fakeCache{pageSize: 64 * 1024, maxPages: 4}
	flushed := 0
	s := NewServer(nil, cache, func(context.Context) error { flushed++; return nil })

	resp := s.dispatch(context.Background(), Request{Kind: OpGetPageSize})
	require.Equal(t, 64, resp.PageSizeKiB)

	resp = s.dispatch(context.Background(), Request{Kind: OpSetPageSize, PageSizeKiB: 128})
	require.Empty(t, resp.Err)
	require.Equal(t, 128, cache.pageSize/1024)
	require.Equal(t, 1, flushed)
}

func TestDispatchInvalidateAndStats(t *testing.T) {
	cache := &fakeCache{pageSize: 64 * 1024, maxPages: 4, orphans: true}
	s := NewServer(nil, cache, func(context.Context) error { return nil })

	resp := s.dispatch(context.Background(), Request{Kind: OpStats})
	require.True(t, resp.HasOrphans)

	s.dispatch(context.Background(), Request{Kind: OpInvalidateCache})
	require.Equal(t, 1, cache.invalidate)
}

func TestServeOverUnixSocketRoundTrip(t *testing.T) {
	dir := t.TempDir()
	lst, err := net.Listen("unix", dir+"/ctl.sock")
	require.NoError(t, err)

	cache := &fakeCache{pageSize: 64 * 1024, maxPages: 4}
	srv := NewServer(lst, cache, func(context.Context) error { return nil })
	go srv.Serve()
	defer srv.Quit()

	conn, err := net.Dial("unix", dir+"/ctl.sock")
	require.NoError(t, err)
	defer conn.Close()

	proto := rpcwire.New(conn, false)
	require.NoError(t, proto.Send(Request{Kind: OpGetPageSize}))

	var resp Response
	require.NoError(t, proto.Recv(&resp))
	require.Equal(t, 64, resp.PageSizeKiB)
}
