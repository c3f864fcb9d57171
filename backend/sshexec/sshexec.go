// Package sshexec executes statements on a remote host over SSH. Each
// statement runs in its own session on one long-lived client
// connection; output streams back as it arrives on the channel.
//
// Credentials come through backend configuration, never from the
// process environment:
//
//	addr     host:port of the SSH server (required)
//	user     login name (required)
//	password password auth (this or private_key required)
//	private_key  PEM-encoded key for public-key auth
//
// Host keys are not verified: the backend targets disposable sandbox
// hosts addressed by the embedding application.
package sshexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/ssh"

	"github.com/agentjido/jido-shell/backend"
	"github.com/agentjido/jido-shell/command"
	"github.com/agentjido/jido-shell/log"
	"github.com/agentjido/jido-shell/parser"
	"github.com/agentjido/jido-shell/pathutil"
	"github.com/agentjido/jido-shell/shellerr"
)

// BackendName is the registry key for this backend.
const BackendName = "ssh"

func init() {
	backend.Register(BackendName, func() backend.Backend { return &Backend{} })
}

// Backend holds one SSH client connection and at most one in-flight
// command session.
type Backend struct {
	mu         sync.Mutex
	client     *ssh.Client
	current    *ssh.Session // in-flight statement, nil when idle
	cwd        string
	logger     log.LibraryLogger
	terminated bool

	// dial is swappable for tests.
	dial func(network, addr string, config *ssh.ClientConfig) (*ssh.Client, error)
}

// clientConfig builds the ssh client configuration from backend
// settings.
func clientConfig(settings map[string]string) (*ssh.ClientConfig, string, error) {
	addr := settings["addr"]
	if addr == "" {
		return nil, "", errors.New("ssh backend: missing required setting \"addr\"")
	}
	user := settings["user"]
	if user == "" {
		return nil, "", errors.New("ssh backend: missing required setting \"user\"")
	}

	var auth []ssh.AuthMethod
	if pw := settings["password"]; pw != "" {
		auth = append(auth, ssh.Password(pw))
	}
	if pem := settings["private_key"]; pem != "" {
		signer, err := ssh.ParsePrivateKey([]byte(pem))
		if err != nil {
			return nil, "", fmt.Errorf("ssh backend: cannot parse private_key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if len(auth) == 0 {
		return nil, "", errors.New("ssh backend: need password or private_key")
	}

	return &ssh.ClientConfig{
		User:            user,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}, addr, nil
}

// Init dials the remote host.
func (b *Backend) Init(cfg backend.Config) error {
	config, addr, err := clientConfig(cfg.Settings)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.logger = cfg.Logger
	if b.logger == nil {
		b.logger = log.NoOpLogger{}
	}
	if b.dial == nil {
		b.dial = ssh.Dial
	}

	client, err := b.dial("tcp", addr, config)
	if err != nil {
		return fmt.Errorf("ssh backend: dial %s: %w", addr, err)
	}

	b.client = client
	b.cwd = "/"
	b.logger.Debug("ssh backend connected to %s as %s", addr, config.User)
	return nil
}

// emitWriter forwards writes to an Emit closure.
type emitWriter struct {
	emit command.Emit
}

func (w *emitWriter) Write(p []byte) (int, error) {
	w.emit(string(p))
	return len(p), nil
}

// Execute runs one statement remotely. The statement is reassembled
// into a line and prefixed with a cd into the tracked working
// directory so remote state matches the session's view.
func (b *Backend) Execute(ctx context.Context, st command.State, stmt parser.Statement, emit command.Emit) (backend.Result, error) {
	b.mu.Lock()
	if b.client == nil {
		b.mu.Unlock()
		return backend.Result{}, errors.New("ssh backend: not initialised")
	}

	session, err := b.client.NewSession()
	if err != nil {
		b.mu.Unlock()
		return backend.Result{}, shellerr.Wrap(shellerr.VFSIO, err)
	}
	b.current = session
	cwd := b.cwd
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.current = nil
		b.mu.Unlock()
		session.Close()
	}()

	out := &emitWriter{emit: emit}
	session.Stdout = out
	session.Stderr = out

	line := fmt.Sprintf("cd %s && %s", cwd, stmt.Line())

	done := make(chan error, 1)
	go func() { done <- session.Run(line) }()

	select {
	case <-ctx.Done():
		session.Close()
		<-done
		return backend.Result{}, ctx.Err()
	case err = <-done:
	}

	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return backend.Result{ExitCode: exitErr.ExitStatus()},
				shellerr.Newf(shellerr.CommandExitCode, "command exited with status %d", exitErr.ExitStatus()).
					WithContext("command", stmt.Command).
					WithContext("exit_code", fmt.Sprintf("%d", exitErr.ExitStatus()))
		}
		return backend.Result{}, shellerr.Wrap(shellerr.VFSIO, err)
	}
	return backend.Result{}, nil
}

// Cancel closes the in-flight session's channel, unblocking Execute.
func (b *Backend) Cancel() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current != nil {
		return b.current.Close()
	}
	return nil
}

// Cwd reports the tracked remote working directory.
func (b *Backend) Cwd() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cwd, nil
}

// Cd verifies the remote directory exists, then tracks it.
func (b *Backend) Cd(path string) error {
	b.mu.Lock()
	client := b.client
	cwd := b.cwd
	b.mu.Unlock()

	target := pathutil.Join(cwd, path)

	if client != nil {
		session, err := client.NewSession()
		if err != nil {
			return shellerr.Wrap(shellerr.VFSIO, err)
		}
		defer session.Close()

		var stderr bytes.Buffer
		session.Stderr = &stderr
		if err := session.Run(fmt.Sprintf("test -d %s", target)); err != nil {
			return shellerr.Newf(shellerr.VFSNotFound, "no such directory: %s", target).
				WithContext("path", target)
		}
	}

	b.mu.Lock()
	b.cwd = target
	b.mu.Unlock()
	return nil
}

// Terminate closes the client connection. Safe to call repeatedly.
func (b *Backend) Terminate() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.terminated {
		return nil
	}
	b.terminated = true

	if b.current != nil {
		b.current.Close()
		b.current = nil
	}
	if b.client != nil {
		err := b.client.Close()
		b.client = nil
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
	}
	return nil
}
