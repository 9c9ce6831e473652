package protocol

import "bytes"

// DetectVersion picks a server decoder from the first line of a request.
// Newest markers are checked first; anything unrecognized is treated as a
// legacy request whose first line must be re-fed to the decoder. The
// returned unused bytes are exactly that re-feed.
func DetectVersion(line []byte) (factory ServerFactory, unused []byte, version int) {
	if bytes.Equal(line, []byte(MessageMarkerV3)) {
		return NewServerV3, nil, Version3
	}
	if bytes.Equal(line, []byte(RequestMarkerV2)) {
		return NewServerV2, nil, Version2
	}
	return NewServerV1, line, Version1
}
