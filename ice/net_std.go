package ice

import (
	"net"

	"github.com/pion/transport/v4/stdnet"
)

// stdNet is the production Net implementation, backed by
// github.com/pion/transport/v4/stdnet (spec.md §6.3).
type stdNet struct{}

func (stdNet) ListenUDP(network string, laddr *net.UDPAddr) (net.PacketConn, error) {
	n, err := stdnet.NewNet()
	if err != nil {
		return nil, err
	}
	return n.ListenUDP(network, laddr)
}

func (stdNet) Interfaces() ([]net.Interface, error) {
	n, err := stdnet.NewNet()
	if err != nil {
		return nil, err
	}
	ifaces, err := n.Interfaces()
	if err != nil {
		return nil, err
	}
	out := make([]net.Interface, 0, len(ifaces))
	for _, iface := range ifaces {
		out = append(out, iface.Interface)
	}
	return out, nil
}
