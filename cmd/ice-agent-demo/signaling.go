package main

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
)

// signalMessage is the wire form exchanged over the websocket, carrying
// exactly what two agents must trade out-of-band before ICE can run:
// short-term credentials and candidates (spec.md §1 "credential and
// candidate exchange ... happen out-of-band"). There is no SDP offer/
// answer here, unlike the teacher's signalling channel, since this demo
// wires raw ice.Agent rather than a full PeerConnection.
type signalMessage struct {
	Type      string `json:"type"`
	Ufrag     string `json:"ufrag,omitempty"`
	Pwd       string `json:"pwd,omitempty"`
	Candidate string `json:"candidate,omitempty"`
}

// peerLink is the minimal duplex channel a demo agent needs: send a
// message, and receive one. Both the listener and dialer sides satisfy
// it with a *websocket.Conn underneath.
type peerLink struct {
	ws *websocket.Conn
}

func (p *peerLink) send(m signalMessage) error {
	return p.ws.WriteJSON(m)
}

func (p *peerLink) recv() (signalMessage, error) {
	var m signalMessage
	err := p.ws.ReadJSON(&m)
	return m, err
}

func (p *peerLink) Close() error {
	return p.ws.Close()
}

// listenForPeer runs a one-shot HTTP server on addr, accepts the first
// websocket connection on /ws, and returns it — the controlling side of
// the demo plays the signalling server, the same role the teacher's
// localWebSignaler plays for a browser peer.
func listenForPeer(addr string) (*peerLink, error) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	linkCh := make(chan *peerLink, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		select {
		case linkCh <- &peerLink{ws: ws}:
		default:
			ws.Close() // nolint:errcheck
		}
	})

	server := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case link := <-linkCh:
		go server.Shutdown(context.Background()) // nolint:errcheck
		return link, nil
	case err := <-errCh:
		return nil, err
	}
}

// dialPeer connects to a listenForPeer server as the controlled side.
func dialPeer(url string) (*peerLink, error) {
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return &peerLink{ws: ws}, nil
}
