// Package rpcwire implements the length-prefixed, optionally
// snappy-compressed framing used by the control socket. The payload itself
// is JSON rather than a generated protobuf/capnproto message, since the
// operation set is tiny and fixed (see internal/control) and no code
// generation step is available; framing and compression are otherwise the
// same shape the rest of this codebase uses for its wire protocols.
package rpcwire

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/golang/snappy"
)

// MessageSizeLimit refuses frames bigger than this for security reasons: an
// attacker connected to the control socket should not be able to make the
// daemon allocate an unbounded buffer.
const MessageSizeLimit = 1 * 1024 * 1024

var (
	ErrMalformed = fmt.Errorf("rpcwire: malformed frame (short size header)")
	ErrNoReader  = fmt.Errorf("rpcwire: protocol created without a reader")
	ErrNoWriter  = fmt.Errorf("rpcwire: protocol created without a writer")
)

// ErrMessageTooBig is returned when the declared frame size exceeds
// MessageSizeLimit.
type ErrMessageTooBig struct {
	Size uint32
}

func (e ErrMessageTooBig) Error() string {
	return fmt.Sprintf("rpcwire: message too big (%d bytes, max %d)", e.Size, MessageSizeLimit)
}

// Protocol sends and receives length-prefixed JSON messages over a
// connection, optionally snappy-compressed.
type Protocol struct {
	r        io.Reader
	w        io.Writer
	compress bool
}

func New(rw io.ReadWriter, compress bool) *Protocol {
	return &Protocol{r: rw, w: rw, compress: compress}
}

func NewReader(r io.Reader, compress bool) *Protocol {
	return &Protocol{r: r, compress: compress}
}

func NewWriter(w io.Writer, compress bool) *Protocol {
	return &Protocol{w: w, compress: compress}
}

// Send marshals v to JSON and writes it as one length-prefixed frame.
func (p *Protocol) Send(v interface{}) error {
	if p.w == nil {
		return ErrNoWriter
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	if p.compress {
		data = snappy.Encode(nil, data)
	}

	sizeBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(sizeBuf, uint32(len(data)))
	if _, err := p.w.Write(sizeBuf); err != nil {
		return err
	}
	_, err = p.w.Write(data)
	return err
}

// Recv reads one length-prefixed frame and unmarshals it into v.
func (p *Protocol) Recv(v interface{}) error {
	if p.r == nil {
		return ErrNoReader
	}

	sizeBuf := make([]byte, 4)
	if _, err := io.ReadFull(p.r, sizeBuf); err != nil {
		if err == io.ErrUnexpectedEOF {
			return ErrMalformed
		}
		return err
	}

	size := binary.LittleEndian.Uint32(sizeBuf)
	if size > MessageSizeLimit {
		return ErrMessageTooBig{Size: size}
	}

	buf := bytes.NewBuffer(make([]byte, 0, size))
	if _, err := io.CopyN(buf, p.r, int64(size)); err != nil {
		return err
	}

	data := buf.Bytes()
	if p.compress {
		decoded, err := snappy.Decode(nil, data)
		if err != nil {
			return err
		}
		data = decoded
	}

	return json.Unmarshal(data, v)
}
