package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	gogit "github.com/go-git/go-git/v5"

	"github.com/bravo68web/gitsshd/internal/domain/service"
	apperrors "github.com/bravo68web/gitsshd/pkg/errors"
	"github.com/bravo68web/gitsshd/pkg/logger"
)

const (
	// waitDelay bounds how long a finished git process waits for the client to close stdin.
	// A client that keeps stdin open after git exits gets its exit status this much later.
	waitDelay = 2 * time.Second

	stderrTailSize = 1024
)

// Runner executes git with args in dir. The default runner spawns the system git binary.
type Runner func(ctx context.Context, dir string, args []string, stdin io.Reader, stdout, stderr io.Writer) error

// Shell runs git transport commands against on-disk repositories
type Shell struct {
	run Runner
	log *logger.Logger
}

// NewShell creates a Shell backed by the system git binary
func NewShell(log *logger.Logger) *Shell {
	return NewShellWithRunner(ExecRunner, log)
}

// NewShellWithRunner creates a Shell that delegates process execution to run
func NewShellWithRunner(run Runner, log *logger.Logger) *Shell {
	if log == nil {
		log = logger.Get()
	}
	return &Shell{
		run: run,
		log: log.WithFields(logger.Component("git-shell")),
	}
}

// HandleGitCommand maps a transport command to its stateless-rpc git invocation and
// runs it inside repoPath with the given streams attached
func (s *Shell) HandleGitCommand(ctx context.Context, command, repoPath string, stdin io.Reader, stdout, stderr io.Writer) error {
	args, err := statelessArgs(command)
	if err != nil {
		return err
	}

	if err := s.checkRepository(repoPath); err != nil {
		return err
	}

	log := s.log.WithContext(ctx).WithFields(logger.GitCommand(command), logger.RepoPath(repoPath))
	log.Debug("Running git command", logger.Strings("args", args))

	tail := &tailBuffer{max: stderrTailSize}
	if stderr == nil {
		stderr = io.Discard
	}

	if err := s.run(ctx, repoPath, args, stdin, stdout, io.MultiWriter(stderr, tail)); err != nil {
		log.Warn("Git command failed", logger.Error(err), logger.String("stderr", tail.String()))
		return apperrors.ExecutionError(strings.TrimPrefix(command, "git-"), err)
	}

	if command == service.GitReceivePack {
		if err := s.run(ctx, repoPath, []string{"update-server-info"}, nil, io.Discard, io.Discard); err != nil {
			log.Warn("Failed to update server info after push", logger.Error(err))
		}
	}

	return nil
}

// checkRepository verifies that repoPath exists and holds a git repository
func (s *Shell) checkRepository(repoPath string) error {
	if repoPath == "" {
		return apperrors.StorageError("resolve repository", apperrors.ErrRepositoryPathMissing)
	}

	if _, err := os.Stat(repoPath); err != nil {
		if os.IsNotExist(err) {
			return apperrors.StorageError("stat repository",
				fmt.Errorf("%w: %s", apperrors.ErrRepositoryPathMissing, repoPath))
		}
		return apperrors.StorageError("stat repository", err)
	}

	if _, err := gogit.PlainOpen(repoPath); err != nil {
		return apperrors.StorageError("open repository", fmt.Errorf("%s: %w", repoPath, err))
	}

	return nil
}

func statelessArgs(command string) ([]string, error) {
	switch command {
	case service.GitUploadPack:
		return []string{"upload-pack", "--stateless-rpc", "."}, nil
	case service.GitReceivePack:
		return []string{"receive-pack", "--stateless-rpc", "."}, nil
	default:
		return nil, apperrors.CommandRejected(fmt.Sprintf("unsupported git command %q", command), apperrors.ErrCommandNotAllowed)
	}
}

// ExecRunner runs the system git binary
func ExecRunner(ctx context.Context, dir string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay

	err := cmd.Run()
	if errors.Is(err, exec.ErrWaitDelay) {
		// git exited cleanly but the client kept stdin open
		return nil
	}
	return err
}

// tailBuffer keeps the last max bytes written to it
type tailBuffer struct {
	max int
	buf bytes.Buffer
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if len(p) > t.max {
		p = p[len(p)-t.max:]
	}
	if over := t.buf.Len() + len(p) - t.max; over > 0 {
		t.buf.Next(over)
	}
	t.buf.Write(p)
	return n, nil
}

func (t *tailBuffer) String() string {
	return strings.TrimSpace(t.buf.String())
}

var _ service.GitShellService = (*Shell)(nil)
