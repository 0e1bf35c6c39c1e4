package ssh

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	gossh "golang.org/x/crypto/ssh"

	"github.com/bravo68web/gitsshd/internal/domain/service"
	apperrors "github.com/bravo68web/gitsshd/pkg/errors"
	"github.com/bravo68web/gitsshd/pkg/logger"
)

const tracerName = "github.com/bravo68web/gitsshd/internal/transport/ssh"

// ValidateCommand checks an exec payload against the git transport whitelist and
// returns the command and its raw repository argument. The payload must be exactly
// "<command> <path>"; anything else is rejected before a repository is looked up.
func ValidateCommand(payload string) (command, rawPath string, err error) {
	fields := strings.Fields(payload)
	if len(fields) == 0 {
		return "", "", apperrors.CommandRejected("empty command", apperrors.ErrCommandNotAllowed)
	}

	switch fields[0] {
	case service.GitUploadPack, service.GitReceivePack:
	default:
		return "", "", apperrors.CommandRejected(
			fmt.Sprintf("command %q is not allowed", fields[0]), apperrors.ErrCommandNotAllowed)
	}

	switch {
	case len(fields) < 2:
		return "", "", apperrors.CommandRejected("missing repository path", apperrors.ErrInvalidRepoPath)
	case len(fields) > 2:
		return "", "", apperrors.CommandRejected("unexpected extra arguments", apperrors.ErrCommandNotAllowed)
	}

	return fields[0], fields[1], nil
}

// ParseRepoPath turns a git SSH path argument such as '/owner/repo.git' into its
// owner and repository name
func ParseRepoPath(raw string) (owner, name string, err error) {
	p := raw
	if len(p) >= 2 && (p[0] == '\'' || p[0] == '"') && p[len(p)-1] == p[0] {
		p = p[1 : len(p)-1]
	}
	p = strings.TrimPrefix(p, "/")
	p = strings.TrimSuffix(p, ".git")

	parts := strings.Split(p, "/")
	if len(parts) != 2 {
		return "", "", apperrors.CommandRejected(fmt.Sprintf("invalid repository path %q", raw), apperrors.ErrInvalidRepoPath)
	}
	for _, part := range parts {
		if part == "" || part == "." || part == ".." || strings.ContainsAny(part, "'\"\\") {
			return "", "", apperrors.CommandRejected(fmt.Sprintf("invalid repository path %q", raw), apperrors.ErrInvalidRepoPath)
		}
	}

	return parts[0], parts[1], nil
}

// Identity is the authenticated principal of a connection
type Identity struct {
	UserID   uuid.UUID
	Username string
	KeyID    string
	IsAdmin  bool
}

// IdentityFromPermissions reads the identity the authenticator stored on the connection
func IdentityFromPermissions(perms *gossh.Permissions) Identity {
	if perms == nil {
		return Identity{}
	}
	ext := perms.Extensions
	id, _ := uuid.Parse(ext[service.ExtUserID])
	admin, _ := strconv.ParseBool(ext[service.ExtIsAdmin])
	return Identity{
		UserID:   id,
		Username: ext[service.ExtUsername],
		KeyID:    ext[service.ExtKeyID],
		IsAdmin:  admin,
	}
}

// Session describes the connection an exec request arrived on
type Session struct {
	ID         string
	RemoteAddr net.Addr
	Identity   Identity
}

// Gateway validates exec requests, resolves repositories and hands the channel
// streams to the git shell
type Gateway struct {
	repos   service.RepositoryService
	shell   service.GitShellService
	timeout time.Duration
	tracer  trace.Tracer
	log     *logger.Logger
}

// NewGateway creates a Gateway. A zero timeout leaves commands unbounded.
func NewGateway(repos service.RepositoryService, shell service.GitShellService, timeout time.Duration, log *logger.Logger) *Gateway {
	if log == nil {
		log = logger.Get()
	}
	return &Gateway{
		repos:   repos,
		shell:   shell,
		timeout: timeout,
		tracer:  otel.Tracer(tracerName),
		log:     log.WithFields(logger.Component("git-gateway")),
	}
}

// HandleExec runs one exec payload and returns the exit status to report to the client
func (g *Gateway) HandleExec(ctx context.Context, sess Session, payload string, stdin io.Reader, stdout, stderr io.Writer) uint32 {
	start := time.Now()

	ctx, span := g.tracer.Start(ctx, "ssh.exec", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()
	span.SetAttributes(
		attribute.String("ssh.session_id", sess.ID),
		attribute.String("ssh.user", sess.Identity.Username),
	)

	log := g.log.WithContext(ctx).WithFields(
		logger.SessionID(sess.ID),
		logger.RemoteAddr(sess.RemoteAddr),
		logger.Username(sess.Identity.Username),
	)
	log.Info("SSH exec started", logger.String("command", payload))

	err := g.safeExecute(ctx, log, span, sess.Identity, payload, stdin, stdout, stderr)

	var status uint32
	if err != nil {
		status = 1
		kind := string(apperrors.KindOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
		if apperrors.IsForbidden(err) || apperrors.IsCommandRejected(err) || apperrors.IsNotFound(err) {
			log.Info("SSH exec denied", logger.Error(err), logger.String("kind", kind))
		} else {
			log.Warn("SSH exec failed", logger.Error(err), logger.String("kind", kind))
		}
	}
	span.SetAttributes(attribute.Int("ssh.exit_status", int(status)))

	log.Info("SSH exec finished",
		logger.ExitStatus(status),
		logger.Duration("duration", time.Since(start)),
	)
	return status
}

// safeExecute turns a panic below the gateway into an internal error for this exec only
func (g *Gateway) safeExecute(ctx context.Context, log *logger.Logger, span trace.Span, id Identity, payload string, stdin io.Reader, stdout, stderr io.Writer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.InternalError(fmt.Sprintf("exec panicked: %v", r), nil)
		}
	}()
	return g.execute(ctx, log, span, id, payload, stdin, stdout, stderr)
}

func (g *Gateway) execute(ctx context.Context, log *logger.Logger, span trace.Span, id Identity, payload string, stdin io.Reader, stdout, stderr io.Writer) error {
	command, rawPath, err := ValidateCommand(payload)
	if err != nil {
		return err
	}

	owner, name, err := ParseRepoPath(rawPath)
	if err != nil {
		return err
	}

	fullName := owner + "/" + name
	span.SetAttributes(
		attribute.String("git.command", command),
		attribute.String("git.repository", fullName),
	)

	repo, err := g.repos.Get(ctx, owner, name)
	if err != nil {
		return apperrors.Wrap(err, "lookup "+fullName)
	}

	write := command == service.GitReceivePack
	if !repo.CanBeAccessedBy(id.UserID, id.IsAdmin, write) {
		return apperrors.Forbidden(fmt.Sprintf("%s may not access %s", id.Username, fullName), nil).
			WithDetails(map[string]interface{}{"write": write, "private": repo.IsPrivate})
	}

	repoPath, err := g.repos.GetRepositoryPath(ctx, repo.ID)
	if err != nil {
		return apperrors.Wrap(err, "resolve path of "+fullName)
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	log.Debug("Dispatching git command",
		logger.GitCommand(command),
		logger.Repository(fullName),
		logger.RepoPath(repoPath),
	)

	if err := g.shell.HandleGitCommand(ctx, command, repoPath, stdin, stdout, stderr); err != nil {
		return apperrors.Wrap(err, command+" "+fullName)
	}
	return nil
}
