package events

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"net"
	"strings"
	"time"

	"github.com/m-lab/go/rtx"
)

var (
	// Filename is the Unix-domain socket path pgmevents and other event
	// listeners dial, kept here so client and server agree on one flag
	// name the way eventsocket.Filename does for the teacher.
	Filename = flag.String("pgm.eventsocket", "", "The filename of the unix-domain socket on which peer events are served.")
)

// Handler receives peer lifecycle notifications read off a listener
// socket by MustRun.
type Handler interface {
	Joined(ctx context.Context, timestamp time.Time, tsi string)
	Left(ctx context.Context, timestamp time.Time, tsi string)
}

// MustRun dials socket and dispatches every PeerEvent line to handler
// until ctx is canceled. Connection and decode errors are fatal, except
// for the close that ctx cancellation itself triggers.
func MustRun(ctx context.Context, socket string, handler Handler) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c, err := net.Dial("unix", socket)
	rtx.Must(err, "could not connect to %q", socket)
	go func() {
		<-ctx.Done()
		c.Close()
	}()

	s := bufio.NewScanner(c)
	for s.Scan() {
		var event PeerEvent
		rtx.Must(json.Unmarshal(s.Bytes(), &event), "could not unmarshal peer event")
		switch event.Event {
		case PeerJoined:
			handler.Joined(ctx, event.Timestamp, event.TSI)
		case PeerLeft:
			handler.Left(ctx, event.Timestamp, event.TSI)
		}
	}

	err = s.Err()
	if err != nil && strings.Contains(err.Error(), "use of closed network connection") {
		err = nil
	}
	rtx.Must(err, "scanning of %q died with a non-EOF error", socket)
}
