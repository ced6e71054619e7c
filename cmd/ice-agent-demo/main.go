// Command ice-agent-demo drives two ice.Agents to a selected pair over
// a throwaway websocket signalling channel, printing every upward event
// along the way. It exists to exercise the agent end-to-end against
// real sockets, the same purpose the teacher's examples/demo serves for
// a full PeerConnection, scaled down to just the ICE surface spec.md §1
// actually scopes this package to.
package main

import (
	"fmt"
	"os"
	"sync"

	"github.com/fatih/color"
	flag "github.com/spf13/pflag"

	"github.com/iceagent-go/ice/ice"
)

var (
	flagRole    string
	flagListen  string
	flagConnect string
	flagSTUN    []string
)

func init() {
	flag.StringVarP(&flagRole, "role", "r", "controlling", "Agent role: controlling or controlled")
	flag.StringVarP(&flagListen, "listen", "l", ":8080", "Address to listen on for the peer (controlling side)")
	flag.StringVarP(&flagConnect, "connect", "c", "ws://localhost:8080/ws", "Websocket URL of the peer (controlled side)")
	flag.StringSliceVarP(&flagSTUN, "stun", "s", nil, "STUN server URI (stun:host:port), may be repeated")
}

func main() {
	flag.Parse()

	var role ice.Role
	switch flagRole {
	case "controlling":
		role = ice.ControllingRole
	case "controlled":
		role = ice.ControlledRole
	default:
		fmt.Fprintf(os.Stderr, "unknown --role %q: must be controlling or controlled\n", flagRole)
		os.Exit(1)
	}

	stunServers := ice.ParseURLs(flagSTUN, func(uri string, err error) {
		warn("dropping invalid --stun %q: %v", uri, err)
	})

	link, err := connectSignalling(role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "signalling failed: %v\n", err)
		os.Exit(1)
	}
	defer link.Close() // nolint:errcheck

	done := make(chan struct{})
	var stopOnce sync.Once
	stop := func() { stopOnce.Do(func() { close(done) }) }

	a, err := ice.NewAgent(ice.AgentConfig{
		Role:        role,
		STUNServers: stunServers,
		EventHandler: ice.AgentEventHandler{
			OnLocalCredentials: func(c ice.LocalCredentials) {
				info("local credentials: ufrag=%s", c.Ufrag)
				link.send(signalMessage{Type: "credentials", Ufrag: c.Ufrag, Pwd: c.Pwd}) // nolint:errcheck
			},
			OnNewCandidate: func(e ice.NewCandidateEvent) {
				info("new local candidate: %s", e.Marshalled)
				link.send(signalMessage{Type: "candidate", Candidate: e.Marshalled}) // nolint:errcheck
			},
			OnGatheringComplete: func() {
				info("gathering complete")
				link.send(signalMessage{Type: "endOfCandidates"}) // nolint:errcheck
			},
			OnConnected: func() {
				success("connected")
			},
			OnSelectedPair: func(e ice.SelectedPairEvent) {
				success("selected pair: %s", e.Pair)
			},
			OnFailed: func() {
				fail("failed to establish connectivity")
				stop()
			},
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create agent: %v\n", err)
		os.Exit(1)
	}
	defer a.Close() // nolint:errcheck

	if err := a.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start agent: %v\n", err)
		os.Exit(1)
	}

	go receiveSignalling(link, a, stop)
	<-done
}

// connectSignalling plays the listening or dialing half of the
// signalling handshake depending on role: the controlling agent hosts,
// the controlled agent connects, mirroring which side of an offer/
// answer exchange each role conventionally plays.
func connectSignalling(role ice.Role) (*peerLink, error) {
	if role == ice.ControllingRole {
		info("waiting for peer on %s", flagListen)
		return listenForPeer(flagListen)
	}
	info("connecting to peer at %s", flagConnect)
	return dialPeer(flagConnect)
}

// receiveSignalling applies inbound signalling messages to the agent
// until the peer closes the connection or an unrecoverable read error
// occurs, at which point it also ends the demo.
func receiveSignalling(link *peerLink, a *ice.Agent, stop func()) {
	for {
		msg, err := link.recv()
		if err != nil {
			warn("signalling channel closed: %v", err)
			stop()
			return
		}
		switch msg.Type {
		case "credentials":
			if err := a.SetRemoteCredentials(msg.Ufrag, msg.Pwd); err != nil {
				warn("invalid remote credentials: %v", err)
			}
		case "candidate":
			c, err := ice.UnmarshalCandidate(msg.Candidate)
			if err != nil {
				warn("invalid remote candidate %q: %v", msg.Candidate, err)
				continue
			}
			a.AddRemoteCandidate(c)
		case "endOfCandidates":
			a.EndOfCandidates()
		default:
			warn("unexpected signalling message type %q", msg.Type)
		}
	}
}

func info(format string, args ...interface{}) {
	color.New(color.FgCyan).Printf(format+"\n", args...)
}

func success(format string, args ...interface{}) {
	color.New(color.FgGreen).Printf(format+"\n", args...)
}

func warn(format string, args ...interface{}) {
	color.New(color.FgYellow).Printf(format+"\n", args...)
}

func fail(format string, args ...interface{}) {
	color.New(color.FgRed).Printf(format+"\n", args...)
}
