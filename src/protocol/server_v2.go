package protocol

import (
	"github.com/sirupsen/logrus"

	"github.com/cairn-scm/cairn/src/smart"
)

// NewServerV2 builds a v2 decoder. Requests look exactly like v1 once the
// request marker is stripped (the version detector consumes it); responses
// gain the response marker and an explicit status line, so clients no longer
// guess success from the shape of the args.
func NewServerV2(newHandler HandlerFactory, write func([]byte) error, logger *logrus.Entry) ServerProtocol {
	p := &serverV1{
		newHandler: newHandler,
		write:      write,
		logger:     logger,
	}
	p.encodeResponse = encodeResponseV2
	return p
}

func encodeResponseV2(resp *smart.Response) []byte {
	out := []byte(ResponseMarkerV2)
	if resp.Successful {
		out = append(out, []byte("success\n")...)
	} else {
		out = append(out, []byte("failed\n")...)
	}
	out = append(out, encodeArgs(resp.Args)...)
	if resp.Body != nil {
		out = append(out, encodeBulk(resp.Body)...)
	}
	return out
}
