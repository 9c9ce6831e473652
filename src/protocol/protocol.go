// Package protocol implements the wire framings of the smart protocol. Three
// generations coexist: the legacy unmarked line framing (v1), the marked
// framing with an explicit status line (v2), and the chunked framing (v3).
// Servers sniff the first request line to pick a decoder; clients start with
// the newest framing and fall back when the server answers in an older one.
package protocol

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Version markers. Each request or response begins with one, except in the
// legacy framing which has none.
const (
	RequestMarkerV2  = "cairn request 2\n"
	ResponseMarkerV2 = "cairn response 2\n"
	MessageMarkerV3  = "cairn message 3\n"
)

// Protocol version numbers, used for client-side capability memory.
const (
	Version1 = 1
	Version2 = 2
	Version3 = 3
)

// argSep separates request and response args on the wire; it cannot occur in
// paths or revision ids.
const argSep = "\x01"

// v3 part kinds.
const (
	partStructure = 's'
	partBytes     = 'b'
	partEnd       = 'e'
)

func encodeArgs(args []string) []byte {
	return []byte(strings.Join(args, argSep) + "\n")
}

func decodeArgs(line []byte) []string {
	s := strings.TrimSuffix(string(line), "\n")
	return strings.Split(s, argSep)
}

// encodeBulk frames a v1/v2 body: decimal length line, the bytes, and a
// trailer line.
func encodeBulk(body []byte) []byte {
	out := []byte(fmt.Sprintf("%d\n", len(body)))
	out = append(out, body...)
	return append(out, []byte("done\n")...)
}

func encodeU32(n int) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(n))
	return buf[:]
}

func decodeU32(buf []byte) int {
	return int(binary.BigEndian.Uint32(buf))
}

// encodePart frames one v3 part: kind byte, length, payload.
func encodePart(kind byte, payload []byte) []byte {
	out := []byte{kind}
	out = append(out, encodeU32(len(payload))...)
	return append(out, payload...)
}

// Result is a decoded response as seen by a client.
type Result struct {
	Args       []string
	Body       []byte
	Successful bool
}

// Requester frames one client exchange; medium request objects satisfy it.
type Requester interface {
	Accept(data []byte) error
	FinishedWriting() error
	ReadBytes(n int) ([]byte, error)
	ReadLine() ([]byte, error)
	FinishedReading() error
}

// UnexpectedMarkerError reports a response that opened with a different
// framing than the request used. Clients take it as "server is older than
// this protocol version".
type UnexpectedMarkerError struct {
	Version int
	Line    []byte
}

func (e *UnexpectedMarkerError) Error() string {
	return fmt.Sprintf("protocol: response did not open with the v%d marker (got %q)", e.Version, e.Line)
}
