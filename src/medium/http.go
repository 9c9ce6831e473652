package medium

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

// SmartContentType is the media type of smart protocol payloads carried
// over HTTP.
const SmartContentType = "application/cairn-smart"

// HTTPClientMedium tunnels each request through one HTTP POST: the request
// bytes form the POST body and the response body carries the reply. Unlike
// stream mediums there is no shared connection state, so requests may
// overlap.
type HTTPClientMedium struct {
	baseClientMedium
	url    string
	client *http.Client
	id     string
}

// NewHTTPClientMedium targets the smart endpoint at url. A nil client uses
// http.DefaultClient.
func NewHTTPClientMedium(url string, client *http.Client, logger *logrus.Entry) *HTTPClientMedium {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPClientMedium{
		url:    url,
		client: client,
		id:     newMediumID("http"),
		baseClientMedium: baseClientMedium{
			logger: logger,
		},
	}
}

func (m *HTTPClientMedium) GetRequest() (ClientRequest, error) {
	countMediumCall(m.id)
	return &httpRequest{medium: m}, nil
}

// Disconnect is a no-op; each POST already stands alone.
func (m *HTTPClientMedium) Disconnect() error {
	dropMediumCount(m.id)
	return nil
}

// ID returns the medium's counter identity.
func (m *HTTPClientMedium) ID() string {
	return m.id
}

// httpRequest buffers the outgoing bytes and performs the POST when writing
// finishes.
type httpRequest struct {
	medium   *HTTPClientMedium
	state    requestState
	body     bytes.Buffer
	response buffered
}

func (r *httpRequest) Accept(data []byte) error {
	if r.state != stateWriting {
		return ErrWritingCompleted
	}
	_, err := r.body.Write(data)
	return err
}

func (r *httpRequest) FinishedWriting() error {
	if r.state != stateWriting {
		return ErrWritingCompleted
	}
	r.state = stateReading

	resp, err := r.medium.client.Post(r.medium.url, SmartContentType, bytes.NewReader(r.body.Bytes()))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return fmt.Errorf("medium: smart endpoint returned %s", resp.Status)
	}
	r.medium.logger.WithFields(logrus.Fields{
		"url":  r.medium.url,
		"sent": r.body.Len(),
	}).Debug("Posted smart request")
	r.response.raw = resp.Body
	return nil
}

func (r *httpRequest) readGuard() error {
	switch r.state {
	case stateWriting:
		return ErrWritingNotComplete
	case stateDone:
		return ErrReadingCompleted
	}
	return nil
}

func (r *httpRequest) ReadBytes(n int) ([]byte, error) {
	if err := r.readGuard(); err != nil {
		return nil, err
	}
	return r.response.ReadBytes(n)
}

func (r *httpRequest) ReadLine() ([]byte, error) {
	if err := r.readGuard(); err != nil {
		return nil, err
	}
	return r.response.GetLine()
}

func (r *httpRequest) FinishedReading() error {
	if err := r.readGuard(); err != nil {
		return err
	}
	r.state = stateDone
	if c, ok := r.response.raw.(interface{ Close() error }); ok {
		c.Close()
	}
	return nil
}
