package smart

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/cairn-scm/cairn/src/transport"
)

// Command handles one verb invocation. Do receives the request args; a nil
// response from Do means the verb is waiting for the request body, which is
// delivered through DoBody once complete.
type Command interface {
	InstallJail(j *Jail)
	TeardownJail()
	Do(args []string) (*Response, error)
	DoBody(body []byte) (*Response, error)
}

// Handler drives one request through its command: args, optional body, end.
// Protocol decoders feed it events; once Finished reports true the encoder
// ships Response back.
type Handler struct {
	backing        transport.Transport
	rootClientPath string
	refuseVFS      bool
	logger         *logrus.Entry

	jail     *Jail
	cmd      Command
	body     bytes.Buffer
	response *Response
}

// NewHandler builds a handler serving the backing transport. rootClientPath
// is the client-visible prefix corresponding to the backing root ("/" when
// serving a whole tree). With refuseVFS set, raw filesystem verbs are
// rejected without running.
func NewHandler(backing transport.Transport, rootClientPath string, refuseVFS bool, logger *logrus.Entry) *Handler {
	if rootClientPath == "" {
		rootClientPath = "/"
	}
	if !strings.HasPrefix(rootClientPath, "/") {
		rootClientPath = "/" + rootClientPath
	}
	if !strings.HasSuffix(rootClientPath, "/") {
		rootClientPath += "/"
	}
	return &Handler{
		backing:        backing,
		rootClientPath: rootClientPath,
		refuseVFS:      refuseVFS,
		jail:           NewJail(backing),
		logger:         logger,
	}
}

// Response returns the outcome, nil while the request is still in progress.
func (h *Handler) Response() *Response {
	return h.response
}

// Finished reports whether a response is ready.
func (h *Handler) Finished() bool {
	return h.response != nil
}

// ArgsReceived dispatches the decoded request line: verb followed by args.
func (h *Handler) ArgsReceived(args []string) {
	if len(args) == 0 {
		h.response = FailedResponse("error", "empty request")
		return
	}
	verb := args[0]
	reg, ok := lookupVerb(verb)
	if !ok {
		h.logger.WithField("verb", verb).Debug("Unknown verb")
		h.response = FailedResponse("UnknownMethod", verb)
		return
	}
	if h.refuseVFS && reg.Info == InfoVFS {
		h.logger.WithField("verb", verb).Debug("Refusing VFS verb")
		h.response = FailedResponse("VfsRequestNotAllowed")
		return
	}
	h.cmd = reg.New(h.backing, h.rootClientPath, h.logger)
	h.run(func() (*Response, error) {
		return h.cmd.Do(args[1:])
	})
}

// AcceptBody accumulates request body bytes.
func (h *Handler) AcceptBody(data []byte) {
	if h.response != nil || h.cmd == nil {
		return
	}
	h.body.Write(data)
}

// EndReceived completes the request; verbs that were waiting for a body run
// now.
func (h *Handler) EndReceived() {
	if h.response != nil {
		return
	}
	if h.cmd == nil {
		h.response = FailedResponse("error", "request ended before a verb was received")
		return
	}
	h.run(func() (*Response, error) {
		return h.cmd.DoBody(h.body.Bytes())
	})
}

// run executes one command step with the jail installed. The jail is torn
// down whether the step succeeds, fails or panics.
func (h *Handler) run(step func() (*Response, error)) {
	h.cmd.InstallJail(h.jail)
	defer h.cmd.TeardownJail()
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.WithField("panic", rec).Error("Request handler panicked")
			h.response = FailedResponse("error", fmt.Sprintf("internal error: %v", rec))
		}
	}()

	resp, err := step()
	if err != nil {
		h.response = TranslateError(h.logger, err)
		return
	}
	if resp != nil {
		h.response = resp
	}
}
