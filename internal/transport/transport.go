// Package transport implements the Transport capability the page cache
// calls through: offset-addressable reads and writes of bytes on an Android
// device reached via the Android Debug Bridge. It also exposes the wider
// set of path operations (stat, mkdir, rm, mv, ...) that the FUSE layer and
// entity store need, grounded on the shape of
// data/connection.hpp's Connection interface, realized here as a single
// "adb shell" pipeline per call rather than a persistent RPC session.
package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/mrizaln/adbfsm/internal/pagecache"
)

// Transport is the capability the cache's OnMiss/OnFlush callbacks are
// built on top of: read/write bytes at an offset in a device-side path.
type Transport struct {
	adbPath string
	serial  string
	timeout time.Duration
}

// Option configures a Transport at construction.
type Option func(*Transport)

func WithAdbPath(path string) Option {
	return func(t *Transport) { t.adbPath = path }
}

func WithTimeout(d time.Duration) Option {
	return func(t *Transport) { t.timeout = d }
}

// New builds a Transport bound to one device serial (as reported by
// `adb devices`; see internal/deviceconn).
func New(serial string, opts ...Option) *Transport {
	t := &Transport{adbPath: "adb", serial: serial, timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// exec runs `adb -s <serial> shell <cmd>`, feeding in stdin, and returns
// stdout. Mirrors the original connection layer's exec_async: capture
// output, check the exit code, surface the command's stderr on failure.
func (t *Transport) exec(ctx context.Context, stdin []byte, cmd string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	args := []string{"-s", t.serial, "shell", cmd}
	c := exec.CommandContext(ctx, t.adbPath, args...)
	if stdin != nil {
		c.Stdin = bytes.NewReader(stdin)
	}

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	log.WithFields(log.Fields{"serial": t.serial, "cmd": cmd}).Debug("transport: exec")

	err := c.Run()
	if ctx.Err() != nil {
		return nil, pagecache.Wrap(pagecache.KindDisconnected, ctx.Err())
	}
	if err != nil {
		return nil, classifyShellError(err, stderr.String())
	}
	return stdout.Bytes(), nil
}

// Read fills buf from path at offset, returning how many bytes were read (a
// short read at end-of-file is not an error).
func (t *Transport) Read(ctx context.Context, path string, buf []byte, offset int64) (int, error) {
	cmd := fmt.Sprintf(
		"dd if=%s bs=%d skip=%d count=%d iflag=skip_bytes,count_bytes 2>/dev/null | base64",
		shellQuote(path), len(buf), offset, len(buf),
	)
	out, err := t.exec(ctx, nil, cmd)
	if err != nil {
		return 0, err
	}

	decoded, err := decodeB64(out)
	if err != nil {
		return 0, pagecache.Wrap(pagecache.KindIoError, err)
	}
	n := copy(buf, decoded)
	return n, nil
}

// Write stores data at offset in path, creating the file if it does not
// exist. Returns the number of bytes written.
func (t *Transport) Write(ctx context.Context, path string, data []byte, offset int64) (int, error) {
	encoded := base64.StdEncoding.EncodeToString(data)
	cmd := fmt.Sprintf(
		"base64 -d | dd of=%s bs=%d seek=%d oflag=seek_bytes conv=notrunc 2>/dev/null",
		shellQuote(path), len(data), offset,
	)
	if _, err := t.exec(ctx, []byte(encoded), cmd); err != nil {
		return 0, err
	}
	return len(data), nil
}

// Stat returns a device-side file's size, mode bits and modification time.
type Stat struct {
	Size    int64
	Mode    uint32
	ModTime time.Time
	IsDir   bool
	IsLink  bool
}

// Stat runs `stat` in a machine-parseable format (toybox/busybox stat's -c
// is widely available on Android userdebug/rooted and vendor shells alike;
// it is the same tool the original connection layer shells out to).
func (t *Transport) Stat(ctx context.Context, path string) (Stat, error) {
	cmd := fmt.Sprintf("stat -c '%%s %%f %%Y' %s", shellQuote(path))
	out, err := t.exec(ctx, nil, cmd)
	if err != nil {
		return Stat{}, err
	}

	fields := strings.Fields(string(out))
	if len(fields) != 3 {
		return Stat{}, pagecache.Wrap(pagecache.KindIoError, fmt.Errorf("unparseable stat output %q", out))
	}

	size, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return Stat{}, pagecache.Wrap(pagecache.KindIoError, err)
	}
	mode, err := strconv.ParseUint(fields[1], 16, 32)
	if err != nil {
		return Stat{}, pagecache.Wrap(pagecache.KindIoError, err)
	}
	epoch, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return Stat{}, pagecache.Wrap(pagecache.KindIoError, err)
	}

	const sIfmt, sIfdir, sIflnk = 0170000, 0040000, 0120000
	return Stat{
		Size:    size,
		Mode:    uint32(mode),
		ModTime: time.Unix(epoch, 0),
		IsDir:   mode&sIfmt == sIfdir,
		IsLink:  mode&sIfmt == sIflnk,
	}, nil
}

// Touch creates path if it does not already exist, leaving it untouched
// otherwise. Grounded on the original connection layer's dedicated touch
// op, realized here with the same dd pipeline Write uses, fed no input.
func (t *Transport) Touch(ctx context.Context, path string) error {
	cmd := fmt.Sprintf("[ -e %s ] || dd of=%s bs=1 count=0 2>/dev/null", shellQuote(path), shellQuote(path))
	_, err := t.exec(ctx, nil, cmd)
	return err
}

func (t *Transport) Mkdir(ctx context.Context, path string) error {
	_, err := t.exec(ctx, nil, "mkdir "+shellQuote(path))
	return err
}

func (t *Transport) Remove(ctx context.Context, path string) error {
	_, err := t.exec(ctx, nil, "rm -f "+shellQuote(path))
	return err
}

func (t *Transport) Rmdir(ctx context.Context, path string) error {
	_, err := t.exec(ctx, nil, "rmdir "+shellQuote(path))
	return err
}

func (t *Transport) Rename(ctx context.Context, from, to string) error {
	_, err := t.exec(ctx, nil, "mv "+shellQuote(from)+" "+shellQuote(to))
	return err
}

func (t *Transport) Truncate(ctx context.Context, path string, size int64) error {
	_, err := t.exec(ctx, nil, fmt.Sprintf("dd if=/dev/null of=%s bs=1 seek=%d 2>/dev/null", shellQuote(path), size))
	return err
}

// ReadDir lists entry names of a device-side directory.
func (t *Transport) ReadDir(ctx context.Context, path string) ([]string, error) {
	out, err := t.exec(ctx, nil, "ls -1a "+shellQuote(path))
	if err != nil {
		return nil, err
	}

	var names []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" || line == "." || line == ".." {
			continue
		}
		names = append(names, line)
	}
	return names, nil
}

func decodeB64(data []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(data)
	return base64.StdEncoding.DecodeString(string(trimmed))
}

func shellQuote(path string) string {
	return "'" + strings.ReplaceAll(path, "'", `'\''`) + "'"
}

// classifyShellError maps adb/shell failures onto the cache's error
// taxonomy (§7 of the design: transport-transient vs transport-semantic).
func classifyShellError(err error, stderr string) error {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "no such file or directory"):
		return pagecache.Wrap(pagecache.KindNoSuchFileOrDirectory, err)
	case strings.Contains(lower, "permission denied"):
		return pagecache.Wrap(pagecache.KindPermissionDenied, err)
	case strings.Contains(lower, "file exists"):
		return pagecache.Wrap(pagecache.KindFileExists, err)
	case strings.Contains(lower, "not a directory"):
		return pagecache.Wrap(pagecache.KindNotADirectory, err)
	case strings.Contains(lower, "is a directory"):
		return pagecache.Wrap(pagecache.KindIsADirectory, err)
	case strings.Contains(lower, "directory not empty"):
		return pagecache.Wrap(pagecache.KindDirectoryNotEmpty, err)
	case strings.Contains(lower, "device offline"), strings.Contains(lower, "no devices/emulators found"):
		return pagecache.Wrap(pagecache.KindDisconnected, err)
	default:
		return pagecache.Wrap(pagecache.KindIoError, errors.Wrapf(err, "stderr: %s", stderr))
	}
}
