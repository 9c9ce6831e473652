package medium

import (
	"fmt"
	"io"
	"os/exec"
	"strconv"

	"github.com/sirupsen/logrus"
)

// SSHParams identifies a remote server reached by running the serve command
// over ssh.
type SSHParams struct {
	Host string
	Port int
	User string

	// RemoteCommand overrides the command run on the remote side. Empty
	// means the stock inet server rooted at /.
	RemoteCommand []string
}

func (p SSHParams) command() []string {
	if len(p.RemoteCommand) > 0 {
		return p.RemoteCommand
	}
	return []string{"cairn", "serve", "--inet", "--directory=/"}
}

// SSHClientMedium tunnels the smart protocol through an external ssh
// subprocess: the subprocess's stdin/stdout become the request stream. The
// ssh binary handles authentication, so agents and host configs work
// unchanged.
type SSHClientMedium struct {
	streamClientMedium
	params SSHParams
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
}

// NewSSHClientMedium prepares an ssh-tunneled medium. The subprocess starts
// on the first request.
func NewSSHClientMedium(params SSHParams, logger *logrus.Entry) *SSHClientMedium {
	m := &SSHClientMedium{params: params}
	m.logger = logger
	m.id = newMediumID("ssh")
	return m
}

func (m *SSHClientMedium) GetRequest() (ClientRequest, error) {
	if m.current != nil {
		return nil, ErrTooManyConcurrentRequests
	}
	if err := m.ensureConnection(); err != nil {
		return nil, err
	}
	countMediumCall(m.id)
	req := &streamRequest{medium: &m.streamClientMedium}
	m.current = req
	return req, nil
}

func (m *SSHClientMedium) ensureConnection() error {
	if m.cmd != nil {
		return nil
	}

	args := []string{"-x"}
	if m.params.Port != 0 {
		args = append(args, "-p", strconv.Itoa(m.params.Port))
	}
	if m.params.User != "" {
		args = append(args, "-l", m.params.User)
	}
	args = append(args, m.params.Host, "--")
	args = append(args, m.params.command()...)

	cmd := exec.Command("ssh", args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("medium: starting ssh to %s: %w", m.params.Host, err)
	}

	m.logger.WithFields(logrus.Fields{
		"host": m.params.Host,
		"user": m.params.User,
	}).Debug("Started ssh subprocess")

	m.cmd = cmd
	m.stdin = stdin
	m.stdout = stdout
	m.raw = stdout
	m.writer = stdin
	return nil
}

// Disconnect closes the tunnel and reaps the subprocess.
func (m *SSHClientMedium) Disconnect() error {
	dropMediumCount(m.id)
	if m.cmd == nil {
		return nil
	}
	m.stdin.Close()
	m.stdout.Close()
	err := m.cmd.Wait()
	m.cmd = nil
	m.raw = nil
	m.writer = nil
	m.pushback = nil
	m.current = nil
	return err
}
