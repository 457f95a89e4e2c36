// Command pgmevents is a minimal reference client for the events
// notifier's peer-lifecycle socket. Adapted from
// cmd/example-eventsocket-client/main.go.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/rtx"

	"github.com/steve-o/openpgm-sub004/events"
)

var (
	mainCtx, mainCancel = context.WithCancel(context.Background())
)

// joinEvent is one peer-joined notification queued for processing.
type joinEvent struct {
	timestamp time.Time
	tsi       string
}

// handler implements events.Handler.
type handler struct {
	joins chan joinEvent
}

// Joined is called synchronously, blocking, for every peer-join event.
func (h *handler) Joined(ctx context.Context, timestamp time.Time, tsi string) {
	log.Println("peer joined", tsi, timestamp)
	h.joins <- joinEvent{timestamp: timestamp, tsi: tsi}
}

// Left is called synchronously, blocking, for every peer-departure event.
func (h *handler) Left(ctx context.Context, timestamp time.Time, tsi string) {
	log.Println("peer left", tsi, timestamp)
}

// processJoinEvents drains the queue Joined feeds until ctx is canceled.
func (h *handler) processJoinEvents(ctx context.Context) {
	for {
		select {
		case e := <-h.joins:
			log.Println("processing", e)
		case <-ctx.Done():
			log.Println("shutdown")
			return
		}
	}
}

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "could not get args from environment variables")
	defer mainCancel()

	if *events.Filename == "" {
		panic("-pgm.eventsocket path is required")
	}

	h := &handler{joins: make(chan joinEvent)}

	go h.processJoinEvents(mainCtx)
	go events.MustRun(mainCtx, *events.Filename, h)

	<-mainCtx.Done()
	fmt.Println("ok")
}
