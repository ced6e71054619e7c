package ice

import (
	"net"
)

// Conn is the Transport collaborator (spec.md §6): a handle to the
// socket a candidate actually sends from. Host, srflx, and prflx
// candidates sharing a base interface share one Conn so NAT bindings
// are reused, exactly as spec.md §4.1 requires.
//
// Production code satisfies this with a thin wrapper around
// github.com/pion/transport/v4/stdnet's net.PacketConn; tests satisfy
// it with the in-memory fakeConn double or with udpConn over real
// loopback sockets.
type Conn interface {
	// LocalAddr is the address this Conn is bound to.
	LocalAddr() *net.UDPAddr

	// WriteTo sends b to dst. Implementations are non-blocking; the
	// CheckEngine is responsible for the bounded retry policy of
	// spec.md §7 item 4, not the Conn itself.
	WriteTo(b []byte, dst *net.UDPAddr) (int, error)

	// ReadFrom blocks until a datagram arrives or the Conn is closed.
	ReadFrom(b []byte) (int, *net.UDPAddr, error)

	// Close releases the underlying socket.
	Close() error

	// StunServer identifies the STUN/TURN server this Conn's srflx
	// gathering transaction (if any) used, for foundation computation
	// (spec.md §3: "same kind, same base interface, same STUN
	// server"). Host connections return "".
	StunServer() string
}

// udpConn is the production Conn backed by a real (or virtual, via
// transport.Net) UDP PacketConn.
type udpConn struct {
	pc         net.PacketConn
	local      *net.UDPAddr
	stunServer string
}

func newUDPConn(pc net.PacketConn, stunServer string) *udpConn {
	local, _ := pc.LocalAddr().(*net.UDPAddr)
	return &udpConn{pc: pc, local: local, stunServer: stunServer}
}

func (c *udpConn) LocalAddr() *net.UDPAddr { return c.local }

func (c *udpConn) WriteTo(b []byte, dst *net.UDPAddr) (int, error) {
	return c.pc.WriteTo(b, dst)
}

func (c *udpConn) ReadFrom(b []byte) (int, *net.UDPAddr, error) {
	n, addr, err := c.pc.ReadFrom(b)
	if err != nil {
		return n, nil, err
	}
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		udpAddr, err = net.ResolveUDPAddr("udp", addr.String())
		if err != nil {
			return n, nil, err
		}
	}
	return n, udpAddr, nil
}

func (c *udpConn) Close() error { return c.pc.Close() }

func (c *udpConn) StunServer() string { return c.stunServer }

// Net abstracts UDP socket creation so production code can use the OS
// and tests can use a virtual network (spec.md §2.4, §6.3). It mirrors
// the subset of github.com/pion/transport/v4's Net interface this
// agent actually needs.
type Net interface {
	ListenUDP(network string, laddr *net.UDPAddr) (net.PacketConn, error)
	Interfaces() ([]net.Interface, error)
}
