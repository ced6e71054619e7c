package ice

import (
	"time"

	"github.com/pion/logging"
)

// Default timing and retry values, grounded on spec.md §4.5.1 ("Ta =
// 50ms default") and §9 open questions 1/2.
const (
	// DefaultTa is the pacing interval between check transmissions
	// (spec.md "Ta: ICE's pacing interval between check transmissions").
	DefaultTa = 50 * time.Millisecond

	// DefaultMaxBindingRequestRetries is RFC 5389 §7.2.1's default Rc.
	DefaultMaxBindingRequestRetries = 7

	// DefaultMaxSendRetries bounds the EPERM retry loop of spec.md §7
	// item 4 / §9 open question 2, where the reference is unbounded.
	DefaultMaxSendRetries = 3
)

// AgentConfig configures a new Agent (spec.md §6 "Configuration options").
type AgentConfig struct {
	// Role is required; NewAgent rejects UnknownRole.
	Role Role

	// IPFilter decides which local addresses are offered as host
	// candidates. Defaults to rejecting only loopback addresses.
	IPFilter IPFilter

	// STUNServers are parsed with ParseURLs before NewAgent is called;
	// entries that fail to parse are dropped with a warning, never
	// fatal (spec.md §7 item 6).
	STUNServers []URL

	// Net abstracts UDP socket creation; defaults to the OS via stdNet.
	Net Net

	// LoggerFactory derives per-subsystem loggers (spec.md §2.1);
	// defaults to logging.NewDefaultLoggerFactory().
	LoggerFactory logging.LoggerFactory

	// Ta is the pacing interval; defaults to DefaultTa.
	Ta time.Duration

	// MaxBindingRequestRetries bounds connectivity-check retransmission
	// (spec.md §4.4.4); defaults to DefaultMaxBindingRequestRetries.
	MaxBindingRequestRetries int

	// MaxSendRetries bounds the transport-send retry loop (spec.md §9
	// open question 2); defaults to DefaultMaxSendRetries.
	MaxSendRetries int

	// EventHandler receives the upward event surface of spec.md §6.
	EventHandler AgentEventHandler
}

func (c *AgentConfig) setDefaults() {
	if c.Ta <= 0 {
		c.Ta = DefaultTa
	}
	if c.MaxBindingRequestRetries <= 0 {
		c.MaxBindingRequestRetries = DefaultMaxBindingRequestRetries
	}
	if c.MaxSendRetries <= 0 {
		c.MaxSendRetries = DefaultMaxSendRetries
	}
	if c.LoggerFactory == nil {
		c.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
	if c.IPFilter == nil {
		c.IPFilter = defaultIPFilter
	}
	if c.Net == nil {
		c.Net = stdNet{}
	}
}
