package protocol

import (
	"bytes"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/cairn-scm/cairn/src/smart"
)

// HandlerFactory builds a request handler bound to the connection's backing
// transport and settings. One handler serves one request.
type HandlerFactory func() *smart.Handler

// ServerProtocol decodes one request from a byte stream, runs it, and writes
// the response. Bytes past the end of the request are kept as unused data for
// the next request on the connection.
type ServerProtocol interface {
	// AcceptBytes feeds request bytes to the decoder.
	AcceptBytes(data []byte) error

	// NextReadSize hints how many bytes the decoder wants next; zero means
	// the request is complete and the response has been written.
	NextReadSize() int

	// UnusedData returns bytes received past the end of the request.
	UnusedData() []byte
}

// ServerFactory builds a protocol decoder around a handler factory and the
// connection's write function.
type ServerFactory func(newHandler HandlerFactory, write func([]byte) error, logger *logrus.Entry) ServerProtocol

const bulkTrailer = "done\n"

type v1State int

const (
	v1StateArgs v1State = iota
	v1StateBodyLen
	v1StateBodyBytes
	v1StateBodyTrailer
	v1StateFinished
)

// serverV1 decodes the legacy framing: an arg line, then for body-carrying
// verbs a length-prefixed bulk body. The v2 decoder reuses it with a
// different response encoding.
type serverV1 struct {
	newHandler HandlerFactory
	write      func([]byte) error
	logger     *logrus.Entry

	// encodeResponse varies between v1 and v2.
	encodeResponse func(resp *smart.Response) []byte

	handler *smart.Handler
	in      []byte
	state   v1State
	bodyLen int
	unused  []byte
}

// NewServerV1 builds a legacy-framing decoder.
func NewServerV1(newHandler HandlerFactory, write func([]byte) error, logger *logrus.Entry) ServerProtocol {
	p := &serverV1{
		newHandler: newHandler,
		write:      write,
		logger:     logger,
	}
	p.encodeResponse = encodeResponseV1
	return p
}

func encodeResponseV1(resp *smart.Response) []byte {
	out := encodeArgs(resp.Args)
	if resp.Body != nil {
		out = append(out, encodeBulk(resp.Body)...)
	}
	return out
}

func (p *serverV1) AcceptBytes(data []byte) error {
	p.in = append(p.in, data...)
	for p.state != v1StateFinished {
		if !p.step() {
			return nil
		}
	}
	if len(p.in) > 0 {
		p.unused = append(p.unused, p.in...)
		p.in = nil
	}
	return nil
}

// step consumes what it can of the buffered input; false means more bytes
// are needed.
func (p *serverV1) step() bool {
	switch p.state {
	case v1StateArgs:
		i := bytes.IndexByte(p.in, '\n')
		if i == -1 {
			return false
		}
		line := p.in[:i+1]
		p.in = p.in[i+1:]
		p.handler = p.newHandler()
		p.handler.ArgsReceived(decodeArgs(line))
		if p.handler.Finished() {
			p.respond()
			return true
		}
		p.state = v1StateBodyLen
		return true

	case v1StateBodyLen:
		i := bytes.IndexByte(p.in, '\n')
		if i == -1 {
			return false
		}
		n, err := strconv.Atoi(string(p.in[:i]))
		if err != nil || n < 0 {
			p.logger.WithField("line", string(p.in[:i])).Debug("Bad body length")
			p.fail("error", "invalid body length")
			return true
		}
		p.in = p.in[i+1:]
		p.bodyLen = n
		p.state = v1StateBodyBytes
		return true

	case v1StateBodyBytes:
		if p.bodyLen == 0 {
			p.state = v1StateBodyTrailer
			return true
		}
		if len(p.in) == 0 {
			return false
		}
		chunk := p.in
		if len(chunk) > p.bodyLen {
			chunk = chunk[:p.bodyLen]
		}
		p.handler.AcceptBody(chunk)
		p.in = p.in[len(chunk):]
		p.bodyLen -= len(chunk)
		return true

	case v1StateBodyTrailer:
		if len(p.in) < len(bulkTrailer) {
			return false
		}
		if string(p.in[:len(bulkTrailer)]) != bulkTrailer {
			p.fail("error", "invalid body trailer")
			return true
		}
		p.in = p.in[len(bulkTrailer):]
		p.handler.EndReceived()
		p.respond()
		return true
	}
	return false
}

func (p *serverV1) respond() {
	p.state = v1StateFinished
	if err := p.write(p.encodeResponse(p.handler.Response())); err != nil {
		p.logger.WithError(err).Debug("Writing response failed")
	}
}

// fail aborts the request mid-frame. The buffered input is dropped: after a
// framing error there is no way to tell where this request ends, so the
// leftover bytes must not be replayed as the next request.
func (p *serverV1) fail(args ...string) {
	p.state = v1StateFinished
	p.in = nil
	if err := p.write(p.encodeResponse(smart.FailedResponse(args...))); err != nil {
		p.logger.WithError(err).Debug("Writing response failed")
	}
}

func (p *serverV1) NextReadSize() int {
	switch p.state {
	case v1StateFinished:
		return 0
	case v1StateBodyBytes:
		return p.bodyLen + len(bulkTrailer)
	default:
		return 1
	}
}

func (p *serverV1) UnusedData() []byte {
	return p.unused
}
