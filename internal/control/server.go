package control

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/mrizaln/adbfsm/internal/rpcwire"
)

const maxConnections = 10

// Cache is the subset of *pagecache.Cache the control socket drives.
// Declared as an interface here (instead of importing pagecache directly)
// so this package stays testable with a fake.
type Cache interface {
	PageSize() int
	SetPageSize(int)
	MaxPages() int
	SetMaxPages(int)
	Invalidate()
	HasOrphans() bool
}

// FlushAll is called before any destructive reconfiguration
// (SetPageSize/SetCacheSize), honoring the cache's "callers must flush
// first" contract (spec §4.9): it is the host integration layer's job to
// know which ids have open handles and flush every one of them.
type FlushAll func(ctx context.Context) error

// Server accepts connections on a unix-domain socket and answers control
// Requests against a Cache. Grounded on util/server's accept-loop-plus-
// rate-limited-goroutines shape, adapted from a generic net.Listener
// server into one fixed to this package's Request/Response protocol.
type Server struct {
	lst      net.Listener
	cache    Cache
	flushAll FlushAll
	quitCh   chan struct{}
}

func NewServer(lst net.Listener, cache Cache, flushAll FlushAll) *Server {
	return &Server{lst: lst, cache: cache, flushAll: flushAll, quitCh: make(chan struct{})}
}

func (s *Server) Close() error {
	return s.lst.Close()
}

func (s *Server) Quit() {
	close(s.quitCh)
}

// Serve accepts connections until Quit is called or SIGINT/SIGTERM arrives,
// handling up to maxConnections concurrently.
func (s *Server) Serve() error {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	rateCh := make(chan struct{}, maxConnections)
	for i := 0; i < cap(rateCh); i++ {
		rateCh <- struct{}{}
	}

	for {
		select {
		case sig := <-signalCh:
			log.WithField("signal", sig).Warn("control: received signal, shutting down")
			return nil
		case <-s.quitCh:
			return nil
		case <-rateCh:
			if err := s.accept(rateCh); err != nil {
				log.WithField("err", err).Error("control: accept failed")
			}
		}
	}
}

func (s *Server) accept(rateCh chan<- struct{}) error {
	conn, err := s.lst.Accept()
	if err != nil {
		rateCh <- struct{}{}
		if opErr, ok := err.(*net.OpError); ok && opErr.Timeout() {
			return nil
		}
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	go func() {
		defer cancel()
		defer func() { rateCh <- struct{}{} }()
		s.handle(ctx, conn)
	}()
	return nil
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	proto := rpcwire.New(conn, false)

	var req Request
	if err := proto.Recv(&req); err != nil {
		log.WithField("err", err).Debug("control: recv failed")
		return
	}

	resp := s.dispatch(ctx, req)
	if err := proto.Send(resp); err != nil {
		log.WithField("err", err).Debug("control: send failed")
	}
}

func (s *Server) dispatch(ctx context.Context, req Request) Response {
	switch req.Kind {
	case OpGetPageSize:
		return Response{PageSizeKiB: s.cache.PageSize() / 1024}

	case OpSetPageSize:
		if err := s.flushAll(ctx); err != nil {
			return Response{Err: errors.Wrap(err, "flush before page-size change").Error()}
		}
		s.cache.SetPageSize(req.PageSizeKiB * 1024)
		return Response{PageSizeKiB: req.PageSizeKiB}

	case OpGetCacheSize:
		return Response{CacheSizeMiB: pagesToMiB(s.cache.MaxPages(), s.cache.PageSize())}

	case OpSetCacheSize:
		if err := s.flushAll(ctx); err != nil {
			return Response{Err: errors.Wrap(err, "flush before cache-size change").Error()}
		}
		maxPages := (req.CacheSizeMiB * 1024 * 1024) / s.cache.PageSize()
		s.cache.SetMaxPages(maxPages)
		return Response{CacheSizeMiB: req.CacheSizeMiB}

	case OpInvalidateCache:
		s.cache.Invalidate()
		return Response{}

	case OpStats:
		return Response{HasOrphans: s.cache.HasOrphans()}

	default:
		return Response{Err: "control: unknown op " + string(req.Kind)}
	}
}

func pagesToMiB(pages, pageSize int) int {
	return (pages * pageSize) / (1024 * 1024)
}
