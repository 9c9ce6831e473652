// Package smart implements the request side of the smart protocol: the verb
// registry, the per-request handler that dispatches decoded requests inside a
// path jail, and the verbs themselves. Protocol decoders hand a handler the
// request args, body and end-of-request events; the handler leaves behind a
// Response for the encoder to ship back.
package smart

// Response is the outcome of one smart request: a tuple of result args and
// an optional byte body. Failed responses reuse the same shape, with the
// first arg naming the error.
type Response struct {
	Args       []string
	Body       []byte
	Successful bool
}

// SuccessResponse builds a successful response.
func SuccessResponse(args ...string) *Response {
	return &Response{Args: args, Successful: true}
}

// SuccessResponseWithBody builds a successful response carrying a body.
func SuccessResponseWithBody(body []byte, args ...string) *Response {
	return &Response{Args: args, Body: body, Successful: true}
}

// FailedResponse builds an error response. The failure still travels as a
// normal protocol message; the connection stays usable.
func FailedResponse(args ...string) *Response {
	return &Response{Args: args, Successful: false}
}
