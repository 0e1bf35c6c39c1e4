package ssh

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gossh "golang.org/x/crypto/ssh"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	appservice "github.com/bravo68web/gitsshd/internal/application/service"
	"github.com/bravo68web/gitsshd/internal/config"
	"github.com/bravo68web/gitsshd/internal/domain/models"
	"github.com/bravo68web/gitsshd/internal/infrastructure/database"
	"github.com/bravo68web/gitsshd/internal/infrastructure/git"
	infrarepo "github.com/bravo68web/gitsshd/internal/infrastructure/repository"
	"github.com/bravo68web/gitsshd/internal/infrastructure/storage"
	"github.com/bravo68web/gitsshd/pkg/logger"
)

type runCall struct {
	dir  string
	args []string
}

type recordingRunner struct {
	mu    sync.Mutex
	calls []runCall
}

func (r *recordingRunner) run(_ context.Context, dir string, args []string, _ io.Reader, _, _ io.Writer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, runCall{dir: dir, args: args})
	return nil
}

func (r *recordingRunner) recorded() []runCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]runCall(nil), r.calls...)
}

type testEnv struct {
	addr       string
	hostKey    gossh.Signer
	aliceKey   gossh.Signer
	aliceKeyID string
	db         *gorm.DB
	store      *storage.FilesystemStorage
	runner     *recordingRunner
	cancel     context.CancelFunc
	served     chan error
}

func newSigner(t *testing.T) gossh.Signer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := gossh.NewSignerFromKey(priv)
	require.NoError(t, err)
	return signer
}

func startTestServer(t *testing.T, cfg config.SSHConfig) *testEnv {
	t.Helper()
	return startTestServerOn(t, cfg, nil)
}

// startTestServerOn serves on a loopback listener, optionally wrapped by wrap
func startTestServerOn(t *testing.T, cfg config.SSHConfig, wrap func(net.Listener) net.Listener) *testEnv {
	t.Helper()
	ctx := context.Background()
	log := logger.NewNop()

	db, err := database.Open(sqlite.Open(filepath.Join(t.TempDir(), "gitsshd.db")), log)
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())
	t.Cleanup(func() { _ = db.Close() })

	store, err := storage.NewFilesystemStorage(filepath.Join(t.TempDir(), "repos"))
	require.NoError(t, err)

	users := infrarepo.NewUserRepository(db.DB())
	keys := infrarepo.NewSSHKeyRepository(db.DB())
	repos := infrarepo.NewRepoRepository(db.DB())

	env := &testEnv{
		hostKey:  newSigner(t),
		aliceKey: newSigner(t),
		db:       db.DB(),
		store:    store,
		runner:   &recordingRunner{},
	}

	alice := &models.User{Username: "alice"}
	require.NoError(t, users.Create(ctx, alice))
	key := &models.SSHKey{
		UserID:    alice.ID,
		Title:     "laptop",
		PublicKey: string(gossh.MarshalAuthorizedKey(env.aliceKey.PublicKey())),
		Active:    true,
	}
	require.NoError(t, keys.Create(ctx, key))
	env.aliceKeyID = key.ID.String()

	demo := &models.Repository{Name: "demo", OwnerID: alice.ID, GitPath: "alice/demo.git"}
	require.NoError(t, repos.Create(ctx, demo))
	_, err = gogit.PlainInit(store.GetRepoPath("alice", "demo"), true)
	require.NoError(t, err)

	gateway := NewGateway(
		appservice.NewRepoService(repos, store),
		git.NewShellWithRunner(env.runner.run, log),
		cfg.CommandTimeout,
		log,
	)
	server := NewServer(&cfg, env.hostKey, appservice.NewAuthService(users, keys, log), gateway, log)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	env.addr = ln.Addr().String()
	if wrap != nil {
		ln = wrap(ln)
	}

	serveCtx, cancel := context.WithCancel(context.Background())
	env.cancel = cancel
	env.served = make(chan error, 1)
	go func() { env.served <- server.Serve(serveCtx, ln) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-env.served:
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})

	return env
}

func (e *testEnv) dial(user string, signer gossh.Signer) (*gossh.Client, error) {
	return gossh.Dial("tcp", e.addr, &gossh.ClientConfig{
		User:            user,
		Auth:            []gossh.AuthMethod{gossh.PublicKeys(signer)},
		HostKeyCallback: gossh.FixedHostKey(e.hostKey.PublicKey()),
		Timeout:         5 * time.Second,
	})
}

func (e *testEnv) run(t *testing.T, client *gossh.Client, command string) error {
	t.Helper()
	session, err := client.NewSession()
	require.NoError(t, err)
	defer session.Close()
	return session.Run(command)
}

func exitStatus(t *testing.T, err error) int {
	t.Helper()
	if err == nil {
		return 0
	}
	var exitErr *gossh.ExitError
	require.True(t, errors.As(err, &exitErr), "unexpected error: %v", err)
	return exitErr.ExitStatus()
}

func TestUploadPackOnExistingRepository(t *testing.T) {
	env := startTestServer(t, config.SSHConfig{})

	client, err := env.dial("alice", env.aliceKey)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, env.run(t, client, "git-upload-pack '/alice/demo.git'"))

	calls := env.runner.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, env.store.GetRepoPath("alice", "demo"), calls[0].dir)
	assert.Equal(t, []string{"upload-pack", "--stateless-rpc", "."}, calls[0].args)

	require.Eventually(t, func() bool {
		var key models.SSHKey
		if err := env.db.First(&key, "id = ?", env.aliceKeyID).Error; err != nil {
			return false
		}
		return key.LastUsedAt != nil
	}, 5*time.Second, 20*time.Millisecond)
}

func TestReceivePackRefreshesServerInfo(t *testing.T) {
	env := startTestServer(t, config.SSHConfig{CommandTimeout: time.Minute})

	client, err := env.dial("alice", env.aliceKey)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, env.run(t, client, "git-receive-pack 'alice/demo'"))

	calls := env.runner.recorded()
	require.Len(t, calls, 2)
	assert.Equal(t, []string{"receive-pack", "--stateless-rpc", "."}, calls[0].args)
	assert.Equal(t, []string{"update-server-info"}, calls[1].args)
}

func TestMissingRepositoryExitsWithOne(t *testing.T) {
	env := startTestServer(t, config.SSHConfig{})

	client, err := env.dial("alice", env.aliceKey)
	require.NoError(t, err)
	defer client.Close()

	err = env.run(t, client, "git-upload-pack '/alice/missing.git'")
	assert.Equal(t, 1, exitStatus(t, err))
	assert.Empty(t, env.runner.recorded())
}

func TestDisallowedCommandExitsWithOne(t *testing.T) {
	env := startTestServer(t, config.SSHConfig{})

	client, err := env.dial("alice", env.aliceKey)
	require.NoError(t, err)
	defer client.Close()

	for _, cmd := range []string{"id", "git-upload-pack 'alice/demo' && id", "git-upload-archive 'alice/demo'"} {
		err := env.run(t, client, cmd)
		assert.Equal(t, 1, exitStatus(t, err), cmd)
	}
	assert.Empty(t, env.runner.recorded())
}

func TestUnknownKeyIsRejectedBeforeChannels(t *testing.T) {
	env := startTestServer(t, config.SSHConfig{})

	_, err := env.dial("alice", newSigner(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to authenticate")

	_, err = env.dial("mallory", env.aliceKey)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to authenticate")

	assert.Empty(t, env.runner.recorded())
}

func TestNonSessionChannelIsRejected(t *testing.T) {
	env := startTestServer(t, config.SSHConfig{})

	client, err := env.dial("alice", env.aliceKey)
	require.NoError(t, err)
	defer client.Close()

	_, _, err = client.OpenChannel("direct-tcpip", nil)
	var openErr *gossh.OpenChannelError
	require.True(t, errors.As(err, &openErr))
	assert.Equal(t, gossh.UnknownChannelType, openErr.Reason)
	assert.Equal(t, "unknown channel type", openErr.Message)

	assert.Empty(t, env.runner.recorded())
}

func TestShellRequestIsRefused(t *testing.T) {
	env := startTestServer(t, config.SSHConfig{})

	client, err := env.dial("alice", env.aliceKey)
	require.NoError(t, err)
	defer client.Close()

	session, err := client.NewSession()
	require.NoError(t, err)
	defer session.Close()

	ok, err := session.SendRequest("env", true, gossh.Marshal(struct{ Name, Value string }{"LANG", "C"}))
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Error(t, session.Shell())
}

func TestConnectionLimit(t *testing.T) {
	env := startTestServer(t, config.SSHConfig{MaxConnections: 1})

	first, err := env.dial("alice", env.aliceKey)
	require.NoError(t, err)

	_, err = env.dial("alice", env.aliceKey)
	require.Error(t, err)

	require.NoError(t, first.Close())

	require.Eventually(t, func() bool {
		c, err := env.dial("alice", env.aliceKey)
		if err != nil {
			return false
		}
		_ = c.Close()
		return true
	}, 5*time.Second, 50*time.Millisecond)
}

func TestCancelStopsAcceptingButKeepsConnections(t *testing.T) {
	env := startTestServer(t, config.SSHConfig{})

	client, err := env.dial("alice", env.aliceKey)
	require.NoError(t, err)
	defer client.Close()

	env.cancel()
	select {
	case err := <-env.served:
		require.NoError(t, err)
		env.served <- err
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	require.NoError(t, env.run(t, client, "git-upload-pack 'alice/demo'"))

	_, err = env.dial("alice", env.aliceKey)
	assert.Error(t, err)
}

// spoofedSigner advertises one public key but signs with another private key
type spoofedSigner struct {
	pub    gossh.PublicKey
	signer gossh.Signer
}

func (s spoofedSigner) PublicKey() gossh.PublicKey { return s.pub }

func (s spoofedSigner) Sign(rand io.Reader, data []byte) (*gossh.Signature, error) {
	return s.signer.Sign(rand, data)
}

func TestOfferedKeyWithoutValidSignatureIsNotMarkedUsed(t *testing.T) {
	env := startTestServer(t, config.SSHConfig{})

	_, err := env.dial("alice", spoofedSigner{pub: env.aliceKey.PublicKey(), signer: newSigner(t)})
	require.Error(t, err)

	// give a stray background update time to land
	time.Sleep(200 * time.Millisecond)

	var key models.SSHKey
	require.NoError(t, env.db.First(&key, "id = ?", env.aliceKeyID).Error)
	assert.Nil(t, key.LastUsedAt)
}

func TestSuccessfulLoginMarksKeyUsed(t *testing.T) {
	env := startTestServer(t, config.SSHConfig{})

	client, err := env.dial("alice", env.aliceKey)
	require.NoError(t, err)
	defer client.Close()

	require.Eventually(t, func() bool {
		var key models.SSHKey
		if err := env.db.First(&key, "id = ?", env.aliceKeyID).Error; err != nil {
			return false
		}
		return key.LastUsedAt != nil
	}, 5*time.Second, 20*time.Millisecond)
}

// failingListener fails the first n Accept calls with err
type failingListener struct {
	net.Listener
	mu  sync.Mutex
	n   int
	err error
}

func (l *failingListener) Accept() (net.Conn, error) {
	l.mu.Lock()
	if l.n > 0 {
		l.n--
		l.mu.Unlock()
		return nil, l.err
	}
	l.mu.Unlock()
	return l.Listener.Accept()
}

func TestServeSurvivesTransientAcceptErrors(t *testing.T) {
	for name, accErr := range map[string]error{
		"too many open files": &net.OpError{Op: "accept", Net: "tcp", Err: os.NewSyscallError("accept", syscall.EMFILE)},
		"connection aborted":  &net.OpError{Op: "accept", Net: "tcp", Err: syscall.ECONNABORTED},
		"unclassified":        errors.New("accept: something odd"),
	} {
		t.Run(name, func(t *testing.T) {
			env := startTestServerOn(t, config.SSHConfig{}, func(ln net.Listener) net.Listener {
				return &failingListener{Listener: ln, n: 3, err: accErr}
			})

			client, err := env.dial("alice", env.aliceKey)
			require.NoError(t, err)
			defer client.Close()

			require.NoError(t, env.run(t, client, "git-upload-pack 'alice/demo'"))

			select {
			case err := <-env.served:
				t.Fatalf("Serve returned early: %v", err)
			default:
			}
		})
	}
}

func TestAcceptBackoffIsCapped(t *testing.T) {
	d := nextAcceptBackoff(0)
	assert.Equal(t, minAcceptBackoff, d)
	for i := 0; i < 20; i++ {
		d = nextAcceptBackoff(d)
	}
	assert.Equal(t, maxAcceptBackoff, d)

	assert.True(t, isTransientAcceptError(&net.OpError{Op: "accept", Err: syscall.ENFILE}))
	assert.False(t, isTransientAcceptError(errors.New("boom")))
}

func TestMalformedExecPayloadClosesChannel(t *testing.T) {
	env := startTestServer(t, config.SSHConfig{})

	client, err := env.dial("alice", env.aliceKey)
	require.NoError(t, err)
	defer client.Close()

	ch, reqs, err := client.OpenChannel("session", nil)
	require.NoError(t, err)
	go gossh.DiscardRequests(reqs)

	// declares a 32 byte command but carries three bytes
	ok, err := ch.SendRequest("exec", true, []byte{0, 0, 0, 32, 'g', 'i', 't'})
	require.NoError(t, err)
	assert.False(t, ok)

	done := make(chan error, 1)
	go func() {
		_, err := io.ReadAll(ch)
		done <- err
	}()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("channel was not closed")
	}

	assert.Empty(t, env.runner.recorded())
}
