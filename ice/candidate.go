package ice

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// CandidateType is the candidate kind (spec.md §3).
type CandidateType byte

const (
	// CandidateTypeHost is a local interface address.
	CandidateTypeHost CandidateType = iota + 1
	// CandidateTypeServerReflexive is a STUN-discovered public address.
	CandidateTypeServerReflexive
	// CandidateTypePeerReflexive is an address discovered from a peer's
	// STUN request or response.
	CandidateTypePeerReflexive
	// CandidateTypeRelay is a TURN-allocated address. Allocation itself
	// is out of scope (spec.md §1); the type exists so a relay
	// candidate handed in from outside can still be paired and checked.
	CandidateTypeRelay
)

func (t CandidateType) String() string {
	switch t {
	case CandidateTypeHost:
		return "host"
	case CandidateTypeServerReflexive:
		return "srflx"
	case CandidateTypePeerReflexive:
		return "prflx"
	case CandidateTypeRelay:
		return "relay"
	default:
		return "unknown"
	}
}

// preference is the RFC 8445 §5.1.2.2 recommended type preference.
func (t CandidateType) preference() uint32 {
	switch t {
	case CandidateTypeHost:
		return 126
	case CandidateTypePeerReflexive:
		return 110
	case CandidateTypeServerReflexive:
		return 100
	case CandidateTypeRelay:
		return 0
	default:
		return 0
	}
}

// NetworkType is the address family a Candidate was gathered on.
type NetworkType byte

const (
	// NetworkTypeUDP4 is an IPv4 UDP candidate.
	NetworkTypeUDP4 NetworkType = iota + 1
	// NetworkTypeUDP6 is an IPv6 UDP candidate.
	NetworkTypeUDP6
)

// Candidate is an immutable transport address offered for connectivity
// (spec.md §3, §4.1). Two Candidates compare equal iff their
// (address, port, base_address, base_port) tuples match; that key is
// also the pruning/dedup key used by Checklist.
type Candidate struct {
	typ CandidateType

	address string
	port    int

	baseAddress string
	basePort    int

	// foundation groups candidates that are "kind-equivalent": same
	// type, same base, same STUN/TURN server (spec.md §3).
	foundation string

	// priority is computed at construction per RFC 8445 §5.1.2, except
	// for peer-reflexive candidates discovered from a PRIORITY
	// attribute, where the caller supplies the value directly
	// (spec.md §9 open question 5).
	priority uint32

	// relatedAddress/relatedPort are the "raddr"/"rport" of the SDP
	// candidate line: the base for srflx/prflx, unset for host.
	relatedAddress string
	relatedPort    int

	// conn is the shared transport handle; host, srflx, and prflx
	// candidates that share a base also share this connection so NAT
	// bindings are reused (spec.md §4.1).
	conn Conn
}

// candidateKey is the address-tuple identity used for equality,
// deduplication, and checklist pruning (spec.md §3, §9 "prefer a
// derived key type").
type candidateKey struct {
	address     string
	port        int
	baseAddress string
	basePort    int
}

func (c Candidate) key() candidateKey {
	return candidateKey{
		address:     c.address,
		port:        c.port,
		baseAddress: c.baseAddress,
		basePort:    c.basePort,
	}
}

// Equal reports whether two candidates share the same address tuple.
func (c Candidate) Equal(other Candidate) bool {
	return c.key() == other.key()
}

// NewCandidate constructs a Candidate. Host candidates must be
// constructed with baseAddress/basePort equal to address/port; use
// NewHostCandidate for that common case. localPreference disambiguates
// multiple candidates of the same type on a multi-homed host
// (RFC 8445 §5.1.2.1); pass 65535 when there is only one.
func NewCandidate(typ CandidateType, address string, port int, baseAddress string, basePort int, localPreference uint32, conn Conn) (Candidate, error) {
	if typ == 0 || typ > CandidateTypeRelay {
		return Candidate{}, ErrInvalidCandidateType
	}

	c := Candidate{
		typ:            typ,
		address:        address,
		port:           port,
		baseAddress:    baseAddress,
		basePort:       basePort,
		relatedAddress: baseAddress,
		relatedPort:    basePort,
		conn:           conn,
	}
	c.foundation = computeFoundation(typ, baseAddress, conn)
	c.priority = computePriority(typ.preference(), localPreference)
	return c, nil
}

// NewHostCandidate builds a host candidate, where base equals address
// by definition (spec.md §4.1).
func NewHostCandidate(address string, port int, localPreference uint32, conn Conn) (Candidate, error) {
	return NewCandidate(CandidateTypeHost, address, port, address, port, localPreference, conn)
}

// NewPeerReflexiveCandidate builds a prflx candidate with an explicit
// priority taken from the discovering STUN message's PRIORITY
// attribute, per RFC 8445 §7.2.5.3.2 (spec.md §9 open question 5) —
// deliberately not recomputed from type preference.
func NewPeerReflexiveCandidate(address string, port int, baseAddress string, basePort int, priority uint32, conn Conn) Candidate {
	return Candidate{
		typ:            CandidateTypePeerReflexive,
		address:        address,
		port:           port,
		baseAddress:    baseAddress,
		basePort:       basePort,
		relatedAddress: baseAddress,
		relatedPort:    basePort,
		foundation:     computeFoundation(CandidateTypePeerReflexive, baseAddress, conn),
		priority:       priority,
		conn:           conn,
	}
}

// computePriority implements RFC 8445 §5.1.2.1:
//
//	priority = (2^24)*(type preference) + (2^8)*(local preference) + (2^0)*(256 - component ID)
//
// This agent has exactly one component (RTP/data, component id 1;
// spec.md §9 open question 6 notes multi-component is out of scope),
// so the component term is the constant 255.
func computePriority(typePref, localPref uint32) uint32 {
	const componentID = 1
	return (1<<24)*typePref + (1<<8)*localPref + (256 - componentID)
}

// computeFoundation groups candidates that are kind-equivalent: same
// type, same base address, same STUN/TURN server (spec.md §3). Unlike
// a cryptographic hash this deliberately stays human-readable since it
// also appears verbatim on the wire (§6.4).
func computeFoundation(typ CandidateType, baseAddress string, conn Conn) string {
	server := ""
	if conn != nil {
		server = conn.StunServer()
	}
	return fmt.Sprintf("%d:%s:%s", typ, baseAddress, server)
}

// Type returns the candidate's kind.
func (c Candidate) Type() CandidateType { return c.typ }

// Address returns the observed address.
func (c Candidate) Address() string { return c.address }

// Port returns the observed port.
func (c Candidate) Port() int { return c.port }

// BaseAddress returns the local address this candidate actually sends
// from.
func (c Candidate) BaseAddress() string { return c.baseAddress }

// BasePort returns the local port this candidate actually sends from.
func (c Candidate) BasePort() int { return c.basePort }

// Foundation returns the candidate's foundation string.
func (c Candidate) Foundation() string { return c.foundation }

// Priority returns the candidate's 32-bit priority.
func (c Candidate) Priority() uint32 { return c.priority }

// Conn returns the shared transport handle this candidate sends on.
func (c Candidate) Conn() Conn { return c.conn }

// NetworkType reports the address family of the candidate.
func (c Candidate) NetworkType() NetworkType {
	ip := net.ParseIP(c.address)
	if ip != nil && ip.To4() == nil {
		return NetworkTypeUDP6
	}
	return NetworkTypeUDP4
}

func (c Candidate) String() string {
	return fmt.Sprintf("%s %s:%d (base %s:%d) prio=%d found=%s",
		c.typ, c.address, c.port, c.baseAddress, c.basePort, c.priority, c.foundation)
}

// Marshal produces the SDP a=candidate: wire form (spec.md §6.4,
// RFC 8839):
//
//	foundation component-id transport priority address port typ {host|srflx|prflx|relay} [raddr address rport port]
func (c Candidate) Marshal() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s 1 udp %d %s %d typ %s", c.foundation, c.priority, c.address, c.port, c.typ)
	if c.typ != CandidateTypeHost {
		fmt.Fprintf(&b, " raddr %s rport %d", c.relatedAddress, c.relatedPort)
	}
	return b.String()
}

// UnmarshalCandidate parses the SDP a=candidate: wire form produced by
// Marshal. The returned Candidate has conn == nil; callers that need
// to send on it (e.g. after receiving it from the signalling channel
// and pairing it as a remote candidate) do not need a local Conn since
// remote candidates are never sent from, only sent to.
func UnmarshalCandidate(raw string) (Candidate, error) {
	fields := strings.Fields(raw)
	if len(fields) < 8 {
		return Candidate{}, ErrMalformedCandidateString
	}

	foundation := fields[0]
	// fields[1] is component-id, fields[2] is transport; both fixed at
	// "1" and "udp" for this agent (spec.md §1 scope).
	priority, err := strconv.ParseUint(fields[3], 10, 32)
	if err != nil {
		return Candidate{}, ErrMalformedCandidateString
	}
	address := fields[4]
	port, err := strconv.Atoi(fields[5])
	if err != nil {
		return Candidate{}, ErrMalformedCandidateString
	}
	if fields[6] != "typ" {
		return Candidate{}, ErrMalformedCandidateString
	}

	var typ CandidateType
	switch fields[7] {
	case "host":
		typ = CandidateTypeHost
	case "srflx":
		typ = CandidateTypeServerReflexive
	case "prflx":
		typ = CandidateTypePeerReflexive
	case "relay":
		typ = CandidateTypeRelay
	default:
		return Candidate{}, ErrMalformedCandidateString
	}

	c := Candidate{
		typ:         typ,
		address:     address,
		port:        port,
		baseAddress: address,
		basePort:    port,
		foundation:  foundation,
		priority:    uint32(priority),
	}

	if len(fields) >= 12 && fields[8] == "raddr" && fields[10] == "rport" {
		c.relatedAddress = fields[9]
		c.baseAddress = fields[9]
		if rport, err := strconv.Atoi(fields[11]); err == nil {
			c.relatedPort = rport
			c.basePort = rport
		}
	}

	return c, nil
}
