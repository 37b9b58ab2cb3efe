package server

import (
	"errors"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	lserr "linesrv/internal/errors"
	"linesrv/util"
)

// handshakeTimeout bounds the SSH handshake of a single connection.
const handshakeTimeout = 30 * time.Second

// sshListener implements [net.Listener] over SSH "session" channels.
// Each SSH connection contributes at most one shell; its channel is
// handed out by Accept like a TCP connection.  Clients are not
// authenticated.
type sshListener struct {
	tcp    net.Listener
	config *ssh.ServerConfig
	logger *util.Logger

	conns chan net.Conn
	done  chan struct{}
	once  sync.Once
	err   error
}

// ListenSSH binds addr and serves SSH with the given host key.
func ListenSSH(addr string, hostKey ssh.Signer, logger *util.Logger) (net.Listener, error) {
	tcp, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, lserr.WrapSSH("listen", addr, err)
	}
	return newSSHListener(tcp, hostKey, logger), nil
}

func newSSHListener(tcp net.Listener, hostKey ssh.Signer, logger *util.Logger) *sshListener {
	cfg := &ssh.ServerConfig{NoClientAuth: true}
	cfg.AddHostKey(hostKey)

	l := &sshListener{
		tcp:    tcp,
		config: cfg,
		logger: logger,
		conns:  make(chan net.Conn),
		done:   make(chan struct{}),
	}
	go l.acceptTCP()
	return l
}

// Accept waits for the next shell channel.
func (l *sshListener) Accept() (net.Conn, error) {
	select {
	case <-l.done:
		if l.err != nil {
			return nil, l.err
		}
		return nil, net.ErrClosed
	case c := <-l.conns:
		return c, nil
	}
}

// Close stops accepting.  Shells already handed out stay open.
func (l *sshListener) Close() error {
	return l.shutdown(nil)
}

// Addr returns the TCP address the front door is bound to.
func (l *sshListener) Addr() net.Addr { return l.tcp.Addr() }

func (l *sshListener) shutdown(err error) error {
	var cerr error
	l.once.Do(func() {
		l.err = err
		close(l.done)
		cerr = l.tcp.Close()
	})
	return cerr
}

func (l *sshListener) acceptTCP() {
	for {
		nc, err := l.tcp.Accept()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if lserr.IsClosed(err) {
				l.shutdown(nil) //nolint:errcheck
			} else {
				l.shutdown(lserr.WrapSSH("accept", l.tcp.Addr().String(), err)) //nolint:errcheck
			}
			return
		}
		go l.handshake(nc)
	}
}

func (l *sshListener) handshake(nc net.Conn) {
	addr := nc.RemoteAddr().String()
	nc.SetDeadline(time.Now().Add(handshakeTimeout)) //nolint:errcheck
	sconn, chans, reqs, err := ssh.NewServerConn(nc, l.config)
	if err != nil {
		l.logger.Verbose("%v", lserr.WrapSSH("handshake", addr, err))
		nc.Close()
		return
	}
	nc.SetDeadline(time.Time{}) //nolint:errcheck
	l.logger.Verbose("ssh connection from %s (%s)", addr, sconn.ClientVersion())
	go ssh.DiscardRequests(reqs)

	shell := false
	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			newCh.Reject(ssh.UnknownChannelType, "only session channels are supported") //nolint:errcheck
			continue
		}
		if shell {
			newCh.Reject(ssh.ResourceShortage, "one shell per connection") //nolint:errcheck
			continue
		}
		ch, chReqs, err := newCh.Accept()
		if err != nil {
			l.logger.Verbose("%v", lserr.WrapSSH("channel", addr, err))
			continue
		}
		shell = true
		go answerShellRequests(chReqs)

		c := &chanConn{Channel: ch, sconn: sconn}
		select {
		case l.conns <- c:
		case <-l.done:
			c.Close()
		}
	}
}

// answerShellRequests accepts the requests an interactive client sends
// before it starts reading.  Everything else is refused.
func answerShellRequests(reqs <-chan *ssh.Request) {
	for req := range reqs {
		switch req.Type {
		case "shell", "pty-req", "env", "window-change":
			req.Reply(true, nil) //nolint:errcheck
		default:
			req.Reply(false, nil) //nolint:errcheck
		}
	}
}

// chanConn wraps an [ssh.Channel] to satisfy [net.Conn].  Closing it
// ends the whole SSH connection.  Deadlines are not supported by SSH
// channels and are ignored.
type chanConn struct {
	ssh.Channel
	sconn *ssh.ServerConn
	once  sync.Once
}

func (c *chanConn) Close() error {
	var err error
	c.once.Do(func() {
		err = c.Channel.Close()
		c.sconn.Close()
	})
	return err
}

func (c *chanConn) LocalAddr() net.Addr                { return c.sconn.LocalAddr() }
func (c *chanConn) RemoteAddr() net.Addr               { return c.sconn.RemoteAddr() }
func (c *chanConn) SetDeadline(_ time.Time) error      { return nil }
func (c *chanConn) SetReadDeadline(_ time.Time) error  { return nil }
func (c *chanConn) SetWriteDeadline(_ time.Time) error { return nil }
