package protocol

import (
	"github.com/sirupsen/logrus"

	"github.com/cairn-scm/cairn/src/smart"
)

type v3State int

const (
	v3StateHeadersLen v3State = iota
	v3StateHeaders
	v3StatePartKind
	v3StatePartLen
	v3StatePartPayload
	v3StateFinished
)

// serverV3 decodes the chunked framing: after the message marker (consumed
// by the version detector) comes a length-prefixed headers blob, then parts,
// each a kind byte and a length-prefixed payload. 's' carries the request
// args, 'b' carries body chunks, 'e' ends the message. Responses use the
// same framing, with the status leading the structure part.
type serverV3 struct {
	newHandler HandlerFactory
	write      func([]byte) error
	logger     *logrus.Entry

	handler  *smart.Handler
	in       []byte
	state    v3State
	partKind byte
	partLen  int
	unused   []byte
}

// NewServerV3 builds a chunked-framing decoder.
func NewServerV3(newHandler HandlerFactory, write func([]byte) error, logger *logrus.Entry) ServerProtocol {
	return &serverV3{
		newHandler: newHandler,
		write:      write,
		logger:     logger,
		handler:    nil,
	}
}

func (p *serverV3) AcceptBytes(data []byte) error {
	p.in = append(p.in, data...)
	for p.state != v3StateFinished {
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

func (p *serverV3) step() bool {
	switch p.state {
	case v3StateHeadersLen:
		if len(p.in) < 4 {
			return false
		}
		p.partLen = decodeU32(p.in[:4])
		p.in = p.in[4:]
		p.state = v3StateHeaders
		return true

	case v3StateHeaders:
		if len(p.in) < p.partLen {
			return false
		}
		// Header content is reserved; nothing defined yet.
		p.in = p.in[p.partLen:]
		p.handler = p.newHandler()
		p.state = v3StatePartKind
		return true

	case v3StatePartKind:
		if len(p.in) < 1 {
			return false
		}
		p.partKind = p.in[0]
		p.in = p.in[1:]
		if p.partKind == partEnd {
			p.handler.EndReceived()
			p.respond()
			return true
		}
		if p.partKind != partStructure && p.partKind != partBytes {
			p.logger.WithField("kind", string(p.partKind)).Debug("Bad message part")
			p.failEarly()
			return true
		}
		p.state = v3StatePartLen
		return true

	case v3StatePartLen:
		if len(p.in) < 4 {
			return false
		}
		p.partLen = decodeU32(p.in[:4])
		p.in = p.in[4:]
		p.state = v3StatePartPayload
		return true

	case v3StatePartPayload:
		if len(p.in) < p.partLen {
			return false
		}
		payload := p.in[:p.partLen]
		p.in = p.in[p.partLen:]
		switch p.partKind {
		case partStructure:
			p.handler.ArgsReceived(decodeArgs(payload))
		case partBytes:
			p.handler.AcceptBody(payload)
		}
		p.state = v3StatePartKind
		return true
	}
	return false
}

func (p *serverV3) respond() {
	p.state = v3StateFinished
	resp := p.handler.Response()
	if resp == nil {
		resp = smart.FailedResponse("error", "request ended without a response")
	}
	if err := p.write(encodeResponseV3(resp)); err != nil {
		p.logger.WithError(err).Debug("Writing response failed")
	}
}

func (p *serverV3) failEarly() {
	p.state = v3StateFinished
	if err := p.write(encodeResponseV3(smart.FailedResponse("error", "malformed message"))); err != nil {
		p.logger.WithError(err).Debug("Writing response failed")
	}
}

func encodeResponseV3(resp *smart.Response) []byte {
	status := "failed"
	if resp.Successful {
		status = "success"
	}
	structure := append([]string{status}, resp.Args...)

	out := []byte(MessageMarkerV3)
	out = append(out, encodeU32(0)...) // empty headers
	args := encodeArgs(structure)
	out = append(out, encodePart(partStructure, args[:len(args)-1])...)
	if resp.Body != nil {
		out = append(out, encodePart(partBytes, resp.Body)...)
	}
	return append(out, partEnd)
}

func (p *serverV3) NextReadSize() int {
	switch p.state {
	case v3StateFinished:
		return 0
	case v3StateHeadersLen, v3StatePartLen:
		return 4 - len(p.in)
	case v3StateHeaders, v3StatePartPayload:
		return p.partLen - len(p.in)
	default:
		return 1
	}
}

func (p *serverV3) UnusedData() []byte {
	return p.unused
}
