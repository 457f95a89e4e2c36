// Package events serves peer lifecycle notifications over a Unix-domain
// socket: one JSONL line per join or departure, broadcast to every
// connected listener. Grounded on eventsocket/server.go's Server
// interface plus eventsocket/client.go's MustRun reader (spec.md §4.8's
// "pending"/"repair" notifier fds, implemented here as a socket feed
// rather than raw eventfds).
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"github.com/steve-o/openpgm-sub004/gsi"
)

// Kind distinguishes a peer joining from a peer being evicted.
type Kind int

const (
	// PeerJoined is sent the first time a source's TSI is observed.
	PeerJoined = Kind(iota)
	// PeerLeft is sent once a peer has been silent for longer than
	// peer_expiry and its Receive Window has been freed.
	PeerLeft
)

// PeerEvent is the JSONL payload delivered to every connected listener.
type PeerEvent struct {
	Event     Kind
	Timestamp time.Time
	TSI       string
}

// Notifier is implemented by the socket core's events feed. Build one
// with New or use NullNotifier when no listener socket is configured.
type Notifier interface {
	Listen() error
	Serve(context.Context) error
	PeerJoined(timestamp time.Time, tsi gsi.TSI)
	PeerLeft(timestamp time.Time, tsi gsi.TSI)
}

type notifier struct {
	eventC       chan *PeerEvent
	filename     string
	clients      map[net.Conn]struct{}
	unixListener net.Listener
	mutex        sync.Mutex
	servingWG    sync.WaitGroup
}

// New returns a Notifier that serves listeners connecting to filename.
// Listen must be called before Serve.
func New(filename string) Notifier {
	return &notifier{
		filename: filename,
		eventC:   make(chan *PeerEvent, 100),
		clients:  make(map[net.Conn]struct{}),
	}
}

func (n *notifier) addClient(c net.Conn) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.clients[c] = struct{}{}
}

func (n *notifier) removeClient(c net.Conn) {
	n.servingWG.Add(1)
	defer n.servingWG.Done()
	n.mutex.Lock()
	defer n.mutex.Unlock()
	if _, ok := n.clients[c]; !ok {
		return
	}
	delete(n.clients, c)
}

func (n *notifier) sendToAllListeners(data string) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	for c := range n.clients {
		if _, err := fmt.Fprintln(c, data); err != nil {
			go n.removeClient(c)
			go c.Close()
		}
	}
}

func (n *notifier) notifyClients(ctx context.Context) {
	n.servingWG.Add(1)
	defer n.servingWG.Done()
	for ctx.Err() == nil {
		event := <-n.eventC
		if event == nil {
			continue
		}
		b, err := json.Marshal(*event)
		if err != nil {
			log.Println("events: failed to marshal", event, err)
			continue
		}
		n.sendToAllListeners(string(b))
	}
}

// Listen creates the listening socket at filename, removing any stale
// socket file an unclean shutdown left behind.
func (n *notifier) Listen() error {
	n.servingWG.Add(1)
	os.Remove(n.filename)
	var err error
	n.unixListener, err = net.Listen("unix", n.filename)
	return err
}

// Serve accepts and registers clients until ctx is canceled. Run it in
// its own goroutine after Listen returns.
func (n *notifier) Serve(ctx context.Context) error {
	defer n.servingWG.Done()
	derived, cancel := context.WithCancel(ctx)
	defer cancel()

	go n.notifyClients(derived)

	n.servingWG.Add(1)
	go func() {
		<-derived.Done()
		n.unixListener.Close()
		close(n.eventC)
		n.servingWG.Done()
	}()

	var err error
	for derived.Err() == nil {
		var conn net.Conn
		conn, err = n.unixListener.Accept()
		if err != nil {
			continue
		}
		n.addClient(conn)
	}
	return err
}

func (n *notifier) PeerJoined(timestamp time.Time, tsi gsi.TSI) {
	n.eventC <- &PeerEvent{Event: PeerJoined, Timestamp: timestamp, TSI: tsi.String()}
}

func (n *notifier) PeerLeft(timestamp time.Time, tsi gsi.TSI) {
	n.eventC <- &PeerEvent{Event: PeerLeft, Timestamp: timestamp, TSI: tsi.String()}
}

type nullNotifier struct{}

func (nullNotifier) Listen() error                { return nil }
func (nullNotifier) Serve(context.Context) error  { return nil }
func (nullNotifier) PeerJoined(time.Time, gsi.TSI) {}
func (nullNotifier) PeerLeft(time.Time, gsi.TSI)   {}

// NullNotifier returns a Notifier whose methods are no-ops, for sockets
// that don't configure an events listener.
func NullNotifier() Notifier {
	return nullNotifier{}
}
