package ssh

import (
	"context"
	"encoding/hex"
	"errors"
	"net"
	"sync"
	"syscall"
	"time"

	gossh "golang.org/x/crypto/ssh"
	"golang.org/x/sync/semaphore"

	"github.com/bravo68web/gitsshd/internal/config"
	"github.com/bravo68web/gitsshd/internal/domain/service"
	apperrors "github.com/bravo68web/gitsshd/pkg/errors"
	"github.com/bravo68web/gitsshd/pkg/logger"
)

const (
	serverVersion    = "SSH-2.0-gitsshd"
	handshakeTimeout = 30 * time.Second
	authTimeout      = 10 * time.Second

	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// Server accepts SSH connections and serves git transport commands over session channels
type Server struct {
	config    *config.SSHConfig
	sshConfig *gossh.ServerConfig
	auth      service.PublicKeyAuthenticator
	gateway   *Gateway
	sem       *semaphore.Weighted
	conns     sync.WaitGroup
	log       *logger.Logger
}

// NewServer creates a new SSH server instance. The host key signer is shared by
// every connection.
func NewServer(
	cfg *config.SSHConfig,
	hostKey gossh.Signer,
	auth service.PublicKeyAuthenticator,
	gateway *Gateway,
	log *logger.Logger,
) *Server {
	if log == nil {
		log = logger.Get()
	}

	s := &Server{
		config:  cfg,
		auth:    auth,
		gateway: gateway,
		log:     log.WithFields(logger.Component("ssh-server")),
	}

	if cfg.MaxConnections > 0 {
		s.sem = semaphore.NewWeighted(int64(cfg.MaxConnections))
	}

	s.sshConfig = &gossh.ServerConfig{
		PublicKeyCallback: s.publicKeyCallback,
		ServerVersion:     serverVersion,
	}
	s.sshConfig.AddHostKey(hostKey)

	s.log.Info("SSH server created",
		logger.String("address", cfg.Address()),
		logger.Fingerprint(gossh.FingerprintSHA256(hostKey.PublicKey())),
		logger.Int("max_connections", cfg.MaxConnections),
		logger.Duration("command_timeout", cfg.CommandTimeout),
	)

	return s
}

// Start listens on the configured address and serves until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.config.Address())
	if err != nil {
		s.log.Error("Failed to listen", logger.String("address", s.config.Address()), logger.Error(err))
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled. Cancellation only stops
// accepting; connections already in progress run to completion.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Info("SSH server listening", logger.String("address", ln.Addr().String()))

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = ln.Close()
		case <-stop:
		}
	}()

	var backoff time.Duration
	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.log.Info("SSH server stopped accepting connections")
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}

			// retry until the listener is closed
			backoff = nextAcceptBackoff(backoff)
			s.log.Warn("Failed to accept connection, retrying",
				logger.Error(err),
				logger.Bool("transient", isTransientAcceptError(err)),
				logger.Duration("retry_in", backoff),
			)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
			}
			continue
		}
		backoff = 0

		if s.sem != nil && !s.sem.TryAcquire(1) {
			s.log.Warn("Connection limit reached, dropping connection",
				logger.RemoteAddr(nc.RemoteAddr()),
				logger.Int("max_connections", s.config.MaxConnections),
			)
			_ = nc.Close()
			continue
		}

		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			if s.sem != nil {
				defer s.sem.Release(1)
			}
			s.handleConn(nc)
		}()
	}
}

func nextAcceptBackoff(prev time.Duration) time.Duration {
	if prev == 0 {
		return minAcceptBackoff
	}
	return min(prev*2, maxAcceptBackoff)
}

func isTransientAcceptError(err error) bool {
	if errors.Is(err, syscall.EMFILE) || errors.Is(err, syscall.ENFILE) || errors.Is(err, syscall.ECONNABORTED) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Wait blocks until every accepted connection has finished or ctx is done
func (s *Server) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) publicKeyCallback(meta gossh.ConnMetadata, key gossh.PublicKey) (*gossh.Permissions, error) {
	ctx, cancel := context.WithTimeout(context.Background(), authTimeout)
	defer cancel()
	perms, err := s.auth.Authenticate(ctx, meta.User(), key)
	if err != nil {
		if !apperrors.IsAuthentication(err) {
			s.log.Error("Authenticator returned an unexpected error",
				logger.Username(meta.User()),
				logger.Error(err),
			)
		}
		return nil, apperrors.ErrAuthenticationFailed
	}
	return perms, nil
}

func (s *Server) handleConn(nc net.Conn) {
	log := s.log.WithFields(logger.RemoteAddr(nc.RemoteAddr()))

	_ = nc.SetDeadline(time.Now().Add(handshakeTimeout))
	conn, chans, reqs, err := gossh.NewServerConn(nc, s.sshConfig)
	if err != nil {
		log.Debug("SSH handshake failed", logger.Error(err))
		_ = nc.Close()
		return
	}
	_ = nc.SetDeadline(time.Time{})
	defer conn.Close()

	sess := Session{
		ID:         hex.EncodeToString(conn.SessionID()),
		RemoteAddr: conn.RemoteAddr(),
		Identity:   IdentityFromPermissions(conn.Permissions),
	}
	log = log.WithFields(logger.SessionID(sess.ID), logger.Username(sess.Identity.Username))
	log.Info("SSH connection established",
		logger.UserID(sess.Identity.UserID.String()),
		logger.KeyID(sess.Identity.KeyID),
		logger.String("client_version", string(conn.ClientVersion())),
	)

	// the client has proven possession of the key only now
	s.auth.MarkUsed(sess.Identity.KeyID)

	// connections outlive the listener context; this one ends with the connection
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go gossh.DiscardRequests(reqs)

	var channels sync.WaitGroup
	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			log.Debug("Rejecting channel", logger.ChannelType(newCh.ChannelType()))
			_ = newCh.Reject(gossh.UnknownChannelType, "unknown channel type")
			continue
		}

		ch, chReqs, err := newCh.Accept()
		if err != nil {
			log.Warn("Failed to accept channel", logger.Error(err))
			continue
		}

		channels.Add(1)
		go func() {
			defer channels.Done()
			s.handleChannel(ctx, log, sess, ch, chReqs)
		}()
	}

	cancel()
	channels.Wait()
	log.Info("SSH connection closed")
}

type execPayload struct {
	Command string
}

type exitStatusMsg struct {
	Status uint32
}

// handleChannel serves one session channel. The first exec request runs; other
// requests are refused while it does.
func (s *Server) handleChannel(ctx context.Context, log *logger.Logger, sess Session, ch gossh.Channel, reqs <-chan *gossh.Request) {
	var done chan struct{}

	for req := range reqs {
		if req.Type != "exec" || done != nil {
			log.Debug("Refusing channel request", logger.RequestType(req.Type))
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
			continue
		}

		var payload execPayload
		if err := gossh.Unmarshal(req.Payload, &payload); err != nil {
			perr := apperrors.ProtocolError("malformed exec payload", err)
			log.Warn("Refusing exec request",
				logger.Error(perr),
				logger.String("kind", string(apperrors.KindOf(perr))),
			)
			_ = req.Reply(false, nil)
			_ = ch.Close()
			continue
		}
		_ = req.Reply(true, nil)

		done = make(chan struct{})
		go func() {
			defer close(done)
			status := s.gateway.HandleExec(ctx, sess, payload.Command, ch, ch, ch.Stderr())
			s.exit(log, ch, status)
		}()
	}

	if done != nil {
		<-done
		return
	}
	_ = ch.Close()
}

// exit reports the exit status and closes the channel
func (s *Server) exit(log *logger.Logger, ch gossh.Channel, status uint32) {
	_ = ch.CloseWrite()
	if _, err := ch.SendRequest("exit-status", false, gossh.Marshal(&exitStatusMsg{Status: status})); err != nil {
		log.Debug("Failed to send exit status", logger.Error(err))
	}
	_ = ch.Close()
}
