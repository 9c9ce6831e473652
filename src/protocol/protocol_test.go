package protocol

import (
	"bytes"
	"io"
	"io/ioutil"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cairn-scm/cairn/src/common"
	"github.com/cairn-scm/cairn/src/smart"
	"github.com/cairn-scm/cairn/src/transport"
)

func newHandlerFactory(t *testing.T) HandlerFactory {
	dir, err := ioutil.TempDir("", "cairn_protocol")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	backing, err := transport.NewLocalTransport(dir, false)
	require.NoError(t, err)
	logger := common.NewTestEntry(t, "protocol")
	return func() *smart.Handler {
		return smart.NewHandler(backing, "/", false, logger)
	}
}

// loopRequest satisfies Requester by running the written request through
// version detection and a server decoder, in memory.
type loopRequest struct {
	t          *testing.T
	newHandler HandlerFactory
	out        bytes.Buffer
	resp       *bytes.Reader
}

func (r *loopRequest) Accept(data []byte) error {
	_, err := r.out.Write(data)
	return err
}

func (r *loopRequest) FinishedWriting() error {
	data := r.out.Bytes()
	i := bytes.IndexByte(data, '\n')
	require.NotEqual(r.t, -1, i)

	factory, unused, _ := DetectVersion(data[:i+1])
	var respBuf bytes.Buffer
	srv := factory(r.newHandler, func(b []byte) error {
		respBuf.Write(b)
		return nil
	}, common.NewTestEntry(r.t, "protocol"))

	// Feed byte by byte so incremental decoding is exercised too.
	feed := append(append([]byte{}, unused...), data[i+1:]...)
	for _, b := range feed {
		require.NoError(r.t, srv.AcceptBytes([]byte{b}))
	}
	require.Equal(r.t, 0, srv.NextReadSize())

	r.resp = bytes.NewReader(respBuf.Bytes())
	return nil
}

func (r *loopRequest) ReadBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	read, err := r.resp.Read(buf)
	return buf[:read], err
}

func (r *loopRequest) ReadLine() ([]byte, error) {
	var line []byte
	for {
		b, err := r.resp.ReadByte()
		if err != nil {
			return line, err
		}
		line = append(line, b)
		if b == '\n' {
			return line, nil
		}
	}
}

func (r *loopRequest) FinishedReading() error {
	return nil
}

func TestDetectVersion(t *testing.T) {
	cases := []struct {
		line    string
		version int
		unused  string
	}{
		{MessageMarkerV3, Version3, ""},
		{RequestMarkerV2, Version2, ""},
		{"hello\n", Version1, "hello\n"},
		{"cairn request 99\n", Version1, "cairn request 99\n"},
	}
	for _, c := range cases {
		_, unused, version := DetectVersion([]byte(c.line))
		assert.Equal(t, c.version, version, c.line)
		assert.Equal(t, c.unused, string(unused), c.line)
	}
}

func TestHelloAllVersions(t *testing.T) {
	factory := newHandlerFactory(t)

	res, err := CallV1(&loopRequest{t: t, newHandler: factory}, []string{"hello"}, nil, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"ok", "2"}, res.Args)

	res, err = CallV2(&loopRequest{t: t, newHandler: factory}, []string{"hello"}, nil, false)
	require.NoError(t, err)
	assert.True(t, res.Successful)
	assert.Equal(t, []string{"ok", "2"}, res.Args)

	res, err = CallV3(&loopRequest{t: t, newHandler: factory}, []string{"hello"}, nil)
	require.NoError(t, err)
	assert.True(t, res.Successful)
	assert.Equal(t, []string{"ok", "2"}, res.Args)
}

func TestFailureCarriesStatus(t *testing.T) {
	factory := newHandlerFactory(t)

	res, err := CallV2(&loopRequest{t: t, newHandler: factory}, []string{"frob"}, nil, false)
	require.NoError(t, err)
	assert.False(t, res.Successful)
	assert.Equal(t, []string{"UnknownMethod", "frob"}, res.Args)

	res, err = CallV3(&loopRequest{t: t, newHandler: factory}, []string{"frob"}, nil)
	require.NoError(t, err)
	assert.False(t, res.Successful)
	assert.Equal(t, []string{"UnknownMethod", "frob"}, res.Args)
}

func TestBodyRoundTripV1(t *testing.T) {
	factory := newHandlerFactory(t)

	res, err := CallV1(&loopRequest{t: t, newHandler: factory},
		[]string{"put", "/f"}, []byte("contents\nwith newline"), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, res.Args)

	res, err = CallV1(&loopRequest{t: t, newHandler: factory},
		[]string{"get", "/f"}, nil, true)
	require.NoError(t, err)
	assert.Equal(t, []byte("contents\nwith newline"), res.Body)
}

func TestBodyRoundTripV3(t *testing.T) {
	factory := newHandlerFactory(t)

	res, err := CallV3(&loopRequest{t: t, newHandler: factory},
		[]string{"put", "/f"}, []byte{0, 1, 2, 255})
	require.NoError(t, err)
	require.True(t, res.Successful)

	res, err = CallV3(&loopRequest{t: t, newHandler: factory}, []string{"get", "/f"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 2, 255}, res.Body)
}

func TestServerKeepsUnusedData(t *testing.T) {
	factory := newHandlerFactory(t)
	var respBuf bytes.Buffer
	srv := NewServerV1(factory, func(b []byte) error {
		respBuf.Write(b)
		return nil
	}, common.NewTestEntry(t, "protocol"))

	require.NoError(t, srv.AcceptBytes([]byte("hello\nnext request")))
	assert.Equal(t, 0, srv.NextReadSize())
	assert.Equal(t, []byte("next request"), srv.UnusedData())
	assert.Equal(t, "ok\x012\n", respBuf.String())
}

func TestFramingErrorDropsBufferedBytes(t *testing.T) {
	factory := newHandlerFactory(t)
	var respBuf bytes.Buffer
	srv := NewServerV1(factory, func(b []byte) error {
		respBuf.Write(b)
		return nil
	}, common.NewTestEntry(t, "protocol"))

	// A malformed body length aborts the request; whatever followed it must
	// not surface as the framing of the next request.
	require.NoError(t, srv.AcceptBytes([]byte("put\x01/f\nnot-a-number\nhello\n")))
	assert.Equal(t, 0, srv.NextReadSize())
	assert.Empty(t, srv.UnusedData())
	assert.Equal(t, "error\x01invalid body length\n", respBuf.String())

	// Same for a corrupt trailer.
	respBuf.Reset()
	srv = NewServerV1(factory, func(b []byte) error {
		respBuf.Write(b)
		return nil
	}, common.NewTestEntry(t, "protocol"))

	require.NoError(t, srv.AcceptBytes([]byte("put\x01/f\n2\nhiXXXXXhello\n")))
	assert.Equal(t, 0, srv.NextReadSize())
	assert.Empty(t, srv.UnusedData())
	assert.Equal(t, "error\x01invalid body trailer\n", respBuf.String())
}

// cannedRequest replays a fixed response regardless of the request.
type cannedRequest struct {
	resp *bytes.Reader
}

func (r *cannedRequest) Accept([]byte) error { return nil }

func (r *cannedRequest) FinishedWriting() error { return nil }

func (r *cannedRequest) FinishedReading() error { return nil }

func (r *cannedRequest) ReadBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	read, err := r.resp.Read(buf)
	return buf[:read], err
}
func (r *cannedRequest) ReadLine() ([]byte, error) {
	var line []byte
	for {
		b, err := r.resp.ReadByte()
		if err != nil {
			if err == io.EOF && len(line) > 0 {
				return line, nil
			}
			return line, err
		}
		line = append(line, b)
		if b == '\n' {
			return line, nil
		}
	}
}

func TestOldServerAnswerTriggersFallback(t *testing.T) {
	// A v1 server echoes an unmarked error tuple to a v2 request.
	req := &cannedRequest{resp: bytes.NewReader([]byte("err\x01unexpected\n"))}
	_, err := CallV2(req, []string{"hello"}, nil, false)
	require.Error(t, err)

	marker, ok := err.(*UnexpectedMarkerError)
	require.True(t, ok)
	assert.Equal(t, Version2, marker.Version)
}
