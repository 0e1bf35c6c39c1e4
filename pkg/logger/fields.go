package logger

import (
	"net"
	"time"

	"go.uber.org/zap"
)

// Field type alias for convenience
type Field = zap.Field

// String constructs a field with the given key and value
func String(key string, val string) Field {
	return zap.String(key, val)
}

// Strings constructs a field with the given key and slice of strings
func Strings(key string, val []string) Field {
	return zap.Strings(key, val)
}

// Int constructs a field with the given key and value
func Int(key string, val int) Field {
	return zap.Int(key, val)
}

// Int64 constructs a field with the given key and value
func Int64(key string, val int64) Field {
	return zap.Int64(key, val)
}

// Uint32 constructs a field with the given key and value
func Uint32(key string, val uint32) Field {
	return zap.Uint32(key, val)
}

// Bool constructs a field with the given key and value
func Bool(key string, val bool) Field {
	return zap.Bool(key, val)
}

// Duration constructs a field with the given key and value
func Duration(key string, val time.Duration) Field {
	return zap.Duration(key, val)
}

// Error constructs a field that lazily stores err.Error() under the key "error"
func Error(err error) Field {
	return zap.Error(err)
}

// Any takes a key and an arbitrary value and chooses the best way to represent them
func Any(key string, val interface{}) Field {
	return zap.Any(key, val)
}

// TraceID constructs a field for trace ID (OTEL)
func TraceID(id string) Field {
	return String("trace_id", id)
}

// SpanID constructs a field for span ID (OTEL)
func SpanID(id string) Field {
	return String("span_id", id)
}

// Component constructs a field for component name
func Component(name string) Field {
	return String("component", name)
}

// Operation constructs a field for operation name
func Operation(name string) Field {
	return String("operation", name)
}

// SSH session fields

// SessionID constructs a field for the SSH session identifier (hex encoded)
func SessionID(id string) Field {
	return String("session_id", id)
}

// RemoteAddr constructs a field for the peer address of a connection
func RemoteAddr(addr net.Addr) Field {
	if addr == nil {
		return String("remote_addr", "")
	}
	return String("remote_addr", addr.String())
}

// Username constructs a field for the SSH login name
func Username(name string) Field {
	return String("user", name)
}

// UserID constructs a field for user ID
func UserID(id string) Field {
	return String("user_id", id)
}

// KeyID constructs a field for the matched SSH key ID
func KeyID(id string) Field {
	return String("key_id", id)
}

// Fingerprint constructs a field for an SSH key fingerprint
func Fingerprint(fp string) Field {
	return String("fingerprint", fp)
}

// ChannelType constructs a field for an SSH channel type
func ChannelType(t string) Field {
	return String("channel_type", t)
}

// RequestType constructs a field for an SSH channel request type
func RequestType(t string) Field {
	return String("request_type", t)
}

// Git fields

// GitCommand constructs a field for the git transport command
func GitCommand(cmd string) Field {
	return String("git_cmd", cmd)
}

// Repository constructs a field for a repository full name (owner/repo)
func Repository(name string) Field {
	return String("repository", name)
}

// RepoPath constructs a field for a repository path, logical or physical
func RepoPath(path string) Field {
	return String("repo_path", path)
}

// ExitStatus constructs a field for the exit status sent to the client
func ExitStatus(code uint32) Field {
	return Uint32("exit_status", code)
}
