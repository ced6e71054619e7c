package ice

import "github.com/pkg/errors"

// Sentinel errors returned by the public Agent API. Internal STUN
// processing failures (malformed datagram, bad fingerprint, failed
// integrity check) are never returned from here: per spec.md §7.1 they
// are dropped silently and logged at debug level instead.
var (
	// ErrAlreadyStarted is returned by Run when called more than once.
	ErrAlreadyStarted = errors.New("ice: agent already started")

	// ErrRemoteUfragEmpty is returned when SetRemoteCredentials is given
	// an empty ufrag.
	ErrRemoteUfragEmpty = errors.New("ice: remote ufrag is empty")

	// ErrRemotePwdEmpty is returned when SetRemoteCredentials is given an
	// empty password.
	ErrRemotePwdEmpty = errors.New("ice: remote password is empty")

	// ErrNoRole is returned by NewAgent when no Role was configured.
	ErrNoRole = errors.New("ice: role must be ControllingRole or ControlledRole")

	// ErrClosed is returned by calls made after Close.
	ErrClosed = errors.New("ice: agent is closed")

	// ErrInvalidCandidateType is returned by NewCandidate for an
	// unrecognised CandidateType.
	ErrInvalidCandidateType = errors.New("ice: invalid candidate type")

	// ErrMalformedCandidateString is returned by UnmarshalCandidate when
	// the wire string does not match the a=candidate: grammar.
	ErrMalformedCandidateString = errors.New("ice: malformed candidate string")

	// ErrSchemeType indicates a STUN/TURN URI scheme could not be parsed.
	ErrSchemeType = errors.New("ice: unknown URI scheme")

	// ErrSTUNQuery indicates a query string was supplied on a stun: URI.
	ErrSTUNQuery = errors.New("ice: queries not supported in stun address")

	// ErrHost indicates the server hostname could not be parsed.
	ErrHost = errors.New("ice: invalid hostname")

	// ErrPort indicates the server port could not be parsed.
	ErrPort = errors.New("ice: invalid port")
)
