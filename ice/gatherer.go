package ice

import (
	"net"

	"github.com/pion/logging"
	"github.com/pion/randutil"
	"github.com/pkg/errors"
)

// IPFilter decides whether a local address should be offered as a host
// candidate (spec.md §6 "ip_filter"). The default accepts every
// non-loopback address.
type IPFilter func(ip net.IP) bool

func defaultIPFilter(ip net.IP) bool {
	return !ip.IsLoopback()
}

// gatherer enumerates host candidates from OS network interfaces and
// issues srflx gathering transactions against configured STUN servers
// (spec.md §4.5.1, §6.2). It is the Gatherer collaborator spec.md §1
// treats as external, given a concrete implementation here.
type gatherer struct {
	net    Net
	filter IPFilter
	log    logging.LeveledLogger
}

func newGatherer(n Net, filter IPFilter, log logging.LeveledLogger) *gatherer {
	if filter == nil {
		filter = defaultIPFilter
	}
	return &gatherer{net: n, filter: filter, log: log}
}

// hostCandidate pairs a freshly gathered Candidate with the Conn it
// was gathered on, since the Agent needs both to register the
// candidate and start reading datagrams from its socket.
type hostCandidate struct {
	candidate Candidate
	conn      Conn
}

// gatherHostCandidates implements the host half of spec.md §4.5.1
// "trigger host-candidate gathering", grounded on the teacher's
// getLocalInterfaces/gatherHostCandidates, generalised with the
// RFC 8445 §5.1.1.1 IPv6 exclusions the teacher already applied.
func (g *gatherer) gatherHostCandidates() ([]hostCandidate, error) {
	var out []hostCandidate

	ifaces, err := g.net.Interfaces()
	if err != nil {
		return nil, errors.Wrap(err, "ice: failed to enumerate interfaces")
	}

	localPref := uint32(65535)
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			ip := extractIP(addr)
			if ip == nil || !g.filter(ip) || !validHostAddress(ip) {
				continue
			}

			pc, err := g.net.ListenUDP("udp", &net.UDPAddr{IP: ip, Port: 0})
			if err != nil {
				g.log.Warnf("ice: failed to listen on %s: %v", ip, err)
				continue
			}

			conn := newUDPConn(pc, "")
			cand, err := NewHostCandidate(ip.String(), conn.LocalAddr().Port, localPref, conn)
			if err != nil {
				pc.Close() // nolint:errcheck
				continue
			}
			localPref--

			out = append(out, hostCandidate{candidate: cand, conn: conn})
		}
	}

	return out, nil
}

func extractIP(addr net.Addr) net.IP {
	switch v := addr.(type) {
	case *net.IPNet:
		return v.IP
	case *net.IPAddr:
		return v.IP
	default:
		return nil
	}
}

// validHostAddress applies the RFC 8445 §5.1.1.1 exclusions kept from
// the teacher's getLocalInterfaces: no loopback, and for IPv6 no
// IPv4-compatible, site-local, or link-local addresses.
func validHostAddress(ip net.IP) bool {
	if ip.IsLoopback() {
		return false
	}
	if ip4 := ip.To4(); ip4 != nil {
		return true
	}
	if len(ip) != net.IPv6len {
		return false
	}
	if isZeros(ip[0:12]) { // IPv4-compatible IPv6
		return false
	}
	if ip[0] == 0xfe && ip[1]&0xc0 == 0xc0 { // site-local unicast
		return false
	}
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return false
	}
	return true
}

func isZeros(p net.IP) bool {
	for _, b := range p {
		if b != 0 {
			return false
		}
	}
	return true
}

// gatherTransaction tracks one outstanding srflx STUN binding request
// against a single (stun_server, host_candidate) pair (spec.md §4.5.1
// "enqueue one gathering transaction per (stun_server, host_candidate) pair").
type gatherTransaction struct {
	state         gatherTransactionState
	server        URL
	hostCandidate hostCandidate
	transactionID [12]byte
}

type gatherTransactionState byte

const (
	gatherWaiting gatherTransactionState = iota
	gatherInProgress
	gatherDone
)

// newTieBreaker generates the agent's 64-bit tie-breaker using the
// corpus's preferred randutil helper (already required by
// rtpsender.go for SSRC generation) rather than the teacher's
// crypto/rand+binary.LittleEndian construction, resolving spec.md §9
// open question 3 ("must be 64-bit random per RFC 8445 §6.1.3.1").
// Two 32-bit draws are combined into the 64-bit value.
func newTieBreaker() uint64 {
	gen := randutil.NewMathRandomGenerator()
	hi := uint64(gen.Uint32())
	lo := uint64(gen.Uint32())
	return hi<<32 | lo
}
