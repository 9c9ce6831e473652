// Package client implements the caller side of the smart protocol: verb
// calls over any client medium, automatic fallback to older protocol
// versions, and typed wrappers for the repository operations.
package client

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/cairn-scm/cairn/src/graph"
	"github.com/cairn-scm/cairn/src/medium"
	"github.com/cairn-scm/cairn/src/protocol"
	"github.com/cairn-scm/cairn/src/smart"
)

// RemoteError is a failure response from the server, with the server's error
// tuple intact.
type RemoteError struct {
	Args []string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error: %s", strings.Join(e.Args, " "))
}

// Is reports whether the remote error has the given name.
func (e *RemoteError) Is(name string) bool {
	return len(e.Args) > 0 && e.Args[0] == name
}

// v1Failures lists the error tuples a legacy server can answer with. The v1
// framing has no status line, so failures are recognized by name.
var v1Failures = map[string]bool{
	"error":                true,
	"UnknownMethod":        true,
	"NoSuchFile":           true,
	"FileExists":           true,
	"ReadOnlyError":        true,
	"DirectoryNotEmpty":    true,
	"PathNotChild":         true,
	"JailBreak":            true,
	"BadSearch":            true,
	"norepository":         true,
	"VfsRequestNotAllowed": true,
}

// SmartClient calls verbs on a server reached through a client medium. It
// remembers which protocol versions the server lacks and the outcome of the
// hello probe, so repeated calls pay no probing cost.
type SmartClient struct {
	medium medium.ClientMedium
	logger *logrus.Entry

	mu           sync.Mutex
	calls        int
	vfsCalls     int
	helloDone    bool
	helloVersion string
	helloErr     error
}

// New wraps a medium in a client.
func New(m medium.ClientMedium, logger *logrus.Entry) *SmartClient {
	return &SmartClient{medium: m, logger: logger}
}

// Call performs a bodyless exchange that returns no body.
func (c *SmartClient) Call(args ...string) (*protocol.Result, error) {
	return c.call(args, nil, false)
}

// CallExpectingBody performs a bodyless exchange whose response carries a
// body.
func (c *SmartClient) CallExpectingBody(args ...string) (*protocol.Result, error) {
	return c.call(args, nil, true)
}

// CallWithBody sends a request body along with the args.
func (c *SmartClient) CallWithBody(body []byte, args ...string) (*protocol.Result, error) {
	return c.call(args, body, false)
}

// CallWithBodyExpectingBody sends a body and expects one back.
func (c *SmartClient) CallWithBodyExpectingBody(body []byte, args ...string) (*protocol.Result, error) {
	return c.call(args, body, true)
}

func (c *SmartClient) call(args []string, body []byte, expectBody bool) (*protocol.Result, error) {
	c.countCall(args[0])

	for version := protocol.Version3; version >= protocol.Version1; version-- {
		if c.medium.IsRemoteBefore(version) {
			continue
		}
		res, err := c.callVersion(version, args, body, expectBody)
		if _, older := err.(*protocol.UnexpectedMarkerError); older {
			c.logger.WithFields(logrus.Fields{
				"verb":    args[0],
				"version": version,
			}).Debug("Server answered in an older framing, falling back")
			c.medium.RememberRemoteBefore(version)
			c.medium.Disconnect()
			continue
		}
		if err != nil {
			return nil, err
		}
		if !res.Successful {
			return res, &RemoteError{Args: res.Args}
		}
		return res, nil
	}
	return nil, fmt.Errorf("client: no protocol version left to try for %q", args[0])
}

func (c *SmartClient) callVersion(version int, args []string, body []byte, expectBody bool) (*protocol.Result, error) {
	req, err := c.medium.GetRequest()
	if err != nil {
		return nil, err
	}
	switch version {
	case protocol.Version3:
		return protocol.CallV3(req, args, body)
	case protocol.Version2:
		return protocol.CallV2(req, args, body, expectBody)
	default:
		res, err := protocol.CallV1(req, args, body, expectBody)
		if err != nil {
			return nil, err
		}
		if len(res.Args) > 0 && v1Failures[res.Args[0]] {
			res.Successful = false
		}
		return res, nil
	}
}

func (c *SmartClient) countCall(verb string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if smart.IsVFSVerb(verb) {
		c.vfsCalls++
	}
}

// CallCounts returns how many verb calls this client has made, and how many
// of them were raw VFS calls. Useful for spotting code paths that fall back
// to filesystem access instead of the high-level verbs.
func (c *SmartClient) CallCounts() (calls, vfsCalls int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls, c.vfsCalls
}

// Hello probes the server and returns the highest protocol version it
// advertises. Both the answer and a failure are cached: an unreachable or
// non-smart server stays failed for the life of this client.
func (c *SmartClient) Hello() (string, error) {
	c.mu.Lock()
	if c.helloDone {
		defer c.mu.Unlock()
		return c.helloVersion, c.helloErr
	}
	c.mu.Unlock()

	res, err := c.Call("hello")

	c.mu.Lock()
	defer c.mu.Unlock()
	c.helloDone = true
	if err != nil {
		c.helloErr = err
		return "", err
	}
	if len(res.Args) != 2 || res.Args[0] != "ok" {
		c.helloErr = fmt.Errorf("client: unexpected hello response %v", res.Args)
		return "", c.helloErr
	}
	c.helloVersion = res.Args[1]
	return c.helloVersion, nil
}

// IsReadonly asks whether the served tree refuses writes.
func (c *SmartClient) IsReadonly() (bool, error) {
	res, err := c.Call("Transport.is_readonly")
	if err != nil {
		return false, err
	}
	return len(res.Args) == 1 && res.Args[0] == "yes", nil
}

// OpenRepository verifies a repository exists at the client path.
func (c *SmartClient) OpenRepository(path string) error {
	_, err := c.Call("Repository.open", path)
	return err
}

// HasRevision asks whether the repository at path holds the revision.
func (c *SmartClient) HasRevision(path, revisionID string) (bool, error) {
	res, err := c.Call("Repository.has_revision", path, revisionID)
	if err != nil {
		return false, err
	}
	return len(res.Args) == 1 && res.Args[0] == "yes", nil
}

// AllRevisionIDs fetches every revision id in the repository at path.
func (c *SmartClient) AllRevisionIDs(path string) ([]string, error) {
	res, err := c.CallExpectingBody("Repository.all_revision_ids", path)
	if err != nil {
		return nil, err
	}
	if len(res.Body) == 0 {
		return nil, nil
	}
	return strings.Split(string(res.Body), "\n"), nil
}

// GetParentMap performs one round trip of the parent-map negotiation: keys
// are what the caller wants parents for, recipe describes the search state
// so far. The returned missing list only fills in when includeMissing is
// set.
func (c *SmartClient) GetParentMap(path string, keys []string, recipe graph.SearchRecipe, includeMissing bool) (map[string][]string, []string, error) {
	args := []string{"Repository.get_parent_map", path}
	if includeMissing {
		args = append(args, smart.IncludeMissingFlag)
	}
	args = append(args, keys...)

	res, err := c.CallWithBodyExpectingBody(recipe.Encode(), args...)
	if err != nil {
		return nil, nil, err
	}
	decoded, err := graph.DecodeParentMapBody(res.Body)
	if err != nil {
		return nil, nil, err
	}

	parents := make(map[string][]string, len(decoded))
	var missing []string
	for k, v := range decoded {
		if strings.HasPrefix(k, graph.MissingPrefix) {
			missing = append(missing, strings.TrimPrefix(k, graph.MissingPrefix))
			continue
		}
		parents[k] = v
	}
	return parents, missing, nil
}

// VFS helpers, for callers that need raw file access where no high-level
// verb exists yet.

// GetFile fetches a file's bytes.
func (c *SmartClient) GetFile(path string) ([]byte, error) {
	res, err := c.CallExpectingBody("get", path)
	if err != nil {
		return nil, err
	}
	return res.Body, nil
}

// PutFile writes a file's bytes.
func (c *SmartClient) PutFile(path string, data []byte) error {
	_, err := c.CallWithBody(data, "put", path)
	return err
}
