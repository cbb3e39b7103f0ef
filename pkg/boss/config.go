package boss

import "time"

const (
	// DefaultPort is the TCP port the listener binds when Config.Port is zero.
	DefaultPort = 11111
	// DefaultQueueSize is the bounded queue capacity used when Config.QueueSize is zero.
	DefaultQueueSize = 5000
	// DefaultPostQuitGrace is how long SHUTDOWN waits for a worker to close
	// after receiving "quit" before the proxy closes the socket itself.
	DefaultPostQuitGrace = time.Second
	// AcceptFallbackDeadline bounds how long a single Accept() call blocks
	// before looping, as a defensive fallback if closing the listener
	// doesn't unblock Accept() on some platform. It is not used to poll
	// for shutdown the way the source implementation's 30s timeout was;
	// Close() unblocks Accept() directly by closing the net.Listener.
	AcceptFallbackDeadline = 30 * time.Second

	minPort      = 1024
	maxPort      = 65535
	minQueueSize = 1
	maxQueueSize = 1_000_000_000
)

// Config configures a Pool. The zero value, after defaulting via New
// (withDefaults), reproduces the documented defaults: port 11111, queue capacity 5000.
type Config struct {
	// Port is the TCP port the listener binds. Default 11111.
	Port int

	// QueueSize is the bounded job queue capacity. add() blocks when full.
	// Default 5000.
	QueueSize int

	// PostQuitGrace is the grace period a proxy gives a worker to close
	// its socket after receiving "quit" before closing it unilaterally.
	// Default 1s.
	PostQuitGrace time.Duration

	// Logger receives lifecycle and error messages. Defaults to a
	// no-op logger if nil.
	Logger Logger

	// Hooks, if set, observes queue/proxy/listener transitions for
	// metrics, tracing and the event bus. Never influences control flow.
	// Defaults to a no-op implementation if nil.
	Hooks Hooks
}

// withDefaults returns a copy of c with zero fields replaced by documented
// defaults, after validating the fields that were explicitly set.
func (c Config) withDefaults() (Config, error) {
	out := c

	if out.Port == 0 {
		out.Port = DefaultPort
	} else if out.Port < minPort || out.Port > maxPort {
		return Config{}, &ErrConfig{Field: "port", Value: out.Port, Msg: "must be between 1024 and 65535"}
	}

	if out.QueueSize == 0 {
		out.QueueSize = DefaultQueueSize
	} else if out.QueueSize < minQueueSize || out.QueueSize > maxQueueSize {
		return Config{}, &ErrConfig{Field: "queue_size", Value: out.QueueSize, Msg: "must be between 1 and 1e9"}
	}

	if out.PostQuitGrace <= 0 {
		out.PostQuitGrace = DefaultPostQuitGrace
	}
	if out.Logger == nil {
		out.Logger = NopLogger{}
	}
	if out.Hooks == nil {
		out.Hooks = NopHooks{}
	}
	return out, nil
}
