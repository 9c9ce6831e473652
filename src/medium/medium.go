// Package medium implements the byte-stream layer the smart protocol runs
// over: server mediums that accept connections and feed request bytes to a
// protocol decoder, and client mediums that frame one request/response
// exchange at a time over sockets, pipes, an SSH subprocess, or HTTP.
//
// A medium moves opaque bytes; framing and meaning belong to the protocol
// layer above. The one stateful service a medium provides is a single-slot
// push-back buffer, so a protocol decoder that over-reads can return the
// excess for the next request.
package medium

import (
	"io"
	"time"
)

// MaxReadSize caps how many bytes a single read requests from the underlying
// stream. Reading more per call than this wastes memory on copies without
// helping throughput.
const MaxReadSize = 64 * 1024

// buffered wraps a raw byte stream with the single-slot push-back buffer.
// It is embedded by every concrete medium.
type buffered struct {
	raw      io.Reader
	pushback []byte
}

// PushBack returns unconsumed bytes to the medium; the next read serves them
// first. Only one push-back may be outstanding: pushing onto a non-empty
// buffer is a programming error. Pushing nothing is a no-op.
func (b *buffered) PushBack(data []byte) {
	if len(data) == 0 {
		return
	}
	if len(b.pushback) > 0 {
		panic("medium: push-back buffer is already occupied")
	}
	b.pushback = data
}

// ReadBytes returns up to n bytes. The push-back buffer is served first and
// any remainder stays buffered for the next call; otherwise one read of at
// most MaxReadSize is issued against the raw stream. A short return is
// normal and not an error.
func (b *buffered) ReadBytes(n int) ([]byte, error) {
	if n <= 0 {
		panic("medium: read size must be positive")
	}
	if len(b.pushback) > 0 {
		take := n
		if take > len(b.pushback) {
			take = len(b.pushback)
		}
		out := b.pushback[:take]
		b.pushback = b.pushback[take:]
		if len(b.pushback) == 0 {
			b.pushback = nil
		}
		return out, nil
	}
	if n > MaxReadSize {
		n = MaxReadSize
	}
	buf := make([]byte, n)
	read, err := b.raw.Read(buf)
	if read > 0 {
		// Deliver the data now; a real error will show up again on the
		// next read.
		return buf[:read], nil
	}
	if err != nil {
		return nil, err
	}
	return nil, nil
}

// GetLine reads until a newline, inclusive. On error the bytes read so far
// are returned along with it, so a caller can distinguish a clean disconnect
// (empty line, io.EOF) from a truncated one.
func (b *buffered) GetLine() ([]byte, error) {
	var line []byte
	for {
		chunk, err := b.ReadBytes(1)
		line = append(line, chunk...)
		if err != nil {
			return line, err
		}
		if len(chunk) > 0 && chunk[len(chunk)-1] == '\n' {
			return line, nil
		}
	}
}

// deadlineReader is the subset of net.Conn and os.File needed to poll for
// readability.
type deadlineReader interface {
	SetReadDeadline(t time.Time) error
}

// pollSlice picks how long one poll iteration blocks: a tenth of the total
// timeout, clamped to at most a second so stop requests are noticed promptly
// and at least a millisecond so the loop cannot spin.
func pollSlice(timeout time.Duration) time.Duration {
	slice := timeout / 10
	if slice > time.Second {
		slice = time.Second
	}
	if slice < time.Millisecond {
		slice = time.Millisecond
	}
	return slice
}

// waitForBytes blocks until at least one byte is available, the timeout
// expires, stopped reports true, or the stream fails. It polls in short
// slices rather than blocking for the full timeout. The probe byte that
// detects readability is pushed back, so callers read a complete stream.
//
// Streams that cannot set read deadlines (plain readers in tests, some
// pipes) skip the wait and let the next read block instead.
func (b *buffered) waitForBytes(timeout time.Duration, stopped func() bool) error {
	if len(b.pushback) > 0 {
		return nil
	}
	dr, ok := b.raw.(deadlineReader)
	if !ok {
		return nil
	}

	slice := pollSlice(timeout)
	deadline := time.Now().Add(timeout)
	one := make([]byte, 1)

	for {
		if stopped != nil && stopped() {
			return ErrServerStopped
		}
		if !time.Now().Before(deadline) {
			return ErrWaitTimeout
		}
		if err := dr.SetReadDeadline(time.Now().Add(slice)); err != nil {
			// Deadlines unsupported on this handle; fall back to a
			// blocking read in the caller.
			return nil
		}
		n, err := b.raw.Read(one)
		if n > 0 {
			dr.SetReadDeadline(time.Time{})
			b.PushBack(append([]byte(nil), one[:n]...))
			return nil
		}
		if err != nil && isTimeout(err) {
			continue
		}
		dr.SetReadDeadline(time.Time{})
		if err != nil {
			return err
		}
	}
}

func isTimeout(err error) bool {
	type timeouter interface {
		Timeout() bool
	}
	te, ok := err.(timeouter)
	return ok && te.Timeout()
}
