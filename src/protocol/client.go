package protocol

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// readExact collects exactly n response bytes, looping over short reads.
func readExact(req Requester, n int) ([]byte, error) {
	out := make([]byte, 0, n)
	for len(out) < n {
		chunk, err := req.ReadBytes(n - len(out))
		out = append(out, chunk...)
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

// readBulk reads a v1/v2 length-prefixed body.
func readBulk(req Requester) ([]byte, error) {
	line, err := req.ReadLine()
	if err != nil {
		return nil, err
	}
	n, err := strconv.Atoi(strings.TrimSuffix(string(line), "\n"))
	if err != nil || n < 0 {
		return nil, fmt.Errorf("protocol: invalid body length line %q", line)
	}
	body, err := readExact(req, n)
	if err != nil {
		return nil, err
	}
	trailer, err := readExact(req, len(bulkTrailer))
	if err != nil {
		return nil, err
	}
	if string(trailer) != bulkTrailer {
		return nil, fmt.Errorf("protocol: invalid body trailer %q", trailer)
	}
	return body, nil
}

// CallV1 performs one exchange in the legacy framing. The framing carries no
// status, so the result is always marked successful; callers recognize error
// tuples by their first arg. expectBody must match what the verb returns.
func CallV1(req Requester, args []string, body []byte, expectBody bool) (*Result, error) {
	if err := req.Accept(encodeArgs(args)); err != nil {
		return nil, err
	}
	if body != nil {
		if err := req.Accept(encodeBulk(body)); err != nil {
			return nil, err
		}
	}
	if err := req.FinishedWriting(); err != nil {
		return nil, err
	}

	line, err := req.ReadLine()
	if err != nil {
		return nil, err
	}
	res := &Result{Args: decodeArgs(line), Successful: true}
	if expectBody {
		if res.Body, err = readBulk(req); err != nil {
			return nil, err
		}
	}
	return res, req.FinishedReading()
}

// CallV2 performs one exchange in the marked framing. A response that does
// not open with the v2 marker yields an UnexpectedMarkerError, which callers
// use to fall back to v1.
func CallV2(req Requester, args []string, body []byte, expectBody bool) (*Result, error) {
	out := []byte(RequestMarkerV2)
	out = append(out, encodeArgs(args)...)
	if body != nil {
		out = append(out, encodeBulk(body)...)
	}
	if err := req.Accept(out); err != nil {
		return nil, err
	}
	if err := req.FinishedWriting(); err != nil {
		return nil, err
	}

	marker, err := req.ReadLine()
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(marker, []byte(ResponseMarkerV2)) {
		return nil, &UnexpectedMarkerError{Version: Version2, Line: marker}
	}

	status, err := req.ReadLine()
	if err != nil {
		return nil, err
	}
	res := &Result{}
	switch string(status) {
	case "success\n":
		res.Successful = true
	case "failed\n":
		res.Successful = false
	default:
		return nil, fmt.Errorf("protocol: invalid status line %q", status)
	}

	line, err := req.ReadLine()
	if err != nil {
		return nil, err
	}
	res.Args = decodeArgs(line)
	if expectBody && res.Successful {
		if res.Body, err = readBulk(req); err != nil {
			return nil, err
		}
	}
	return res, req.FinishedReading()
}

// CallV3 performs one exchange in the chunked framing. Bodies are
// self-delimiting, so there is no expectBody.
func CallV3(req Requester, args []string, body []byte) (*Result, error) {
	out := []byte(MessageMarkerV3)
	out = append(out, encodeU32(0)...) // empty headers
	argLine := encodeArgs(args)
	out = append(out, encodePart(partStructure, argLine[:len(argLine)-1])...)
	if body != nil {
		out = append(out, encodePart(partBytes, body)...)
	}
	out = append(out, partEnd)
	if err := req.Accept(out); err != nil {
		return nil, err
	}
	if err := req.FinishedWriting(); err != nil {
		return nil, err
	}

	marker, err := req.ReadLine()
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(marker, []byte(MessageMarkerV3)) {
		return nil, &UnexpectedMarkerError{Version: Version3, Line: marker}
	}

	hlenBuf, err := readExact(req, 4)
	if err != nil {
		return nil, err
	}
	if _, err = readExact(req, decodeU32(hlenBuf)); err != nil {
		return nil, err
	}

	res := &Result{}
	sawStructure := false
	for {
		kind, err := readExact(req, 1)
		if err != nil {
			return nil, err
		}
		if kind[0] == partEnd {
			break
		}
		lenBuf, err := readExact(req, 4)
		if err != nil {
			return nil, err
		}
		payload, err := readExact(req, decodeU32(lenBuf))
		if err != nil {
			return nil, err
		}
		switch kind[0] {
		case partStructure:
			structure := decodeArgs(payload)
			if len(structure) == 0 {
				return nil, fmt.Errorf("protocol: empty structure part")
			}
			res.Successful = structure[0] == "success"
			res.Args = structure[1:]
			sawStructure = true
		case partBytes:
			res.Body = append(res.Body, payload...)
		default:
			return nil, fmt.Errorf("protocol: invalid part kind %q", kind)
		}
	}
	if !sawStructure {
		return nil, fmt.Errorf("protocol: response carried no structure part")
	}
	return res, req.FinishedReading()
}
