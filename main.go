// Command openpgm-sub004 is a minimal PGM endpoint: it binds one socket
// and either publishes a heartbeat APDU (-send) or drains and logs
// whatever a publisher on the same group delivers (-recv, the default).
// Matches main.go's own flag-parsing/instrumentation/shutdown shape,
// running a loopback send/receive session instead of a netlink polling
// loop.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"

	_ "net/http/pprof" // Support profiling

	"github.com/steve-o/openpgm-sub004/engine"
	"github.com/steve-o/openpgm-sub004/events"
	"github.com/steve-o/openpgm-sub004/gsi"
	"github.com/steve-o/openpgm-sub004/pgmerr"
	"github.com/steve-o/openpgm-sub004/pgmtime"
	"github.com/steve-o/openpgm-sub004/socket"
)

func init() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

var (
	promPort = flag.String("prom", ":9090", "Prometheus metrics export address and port.")
	iface    = flag.String("iface", "127.0.0.1", "Local interface address to bind.")
	group    = flag.String("group", "127.0.0.1", "Multicast (or, for this demo, unicast loopback) group address.")
	port     = flag.Uint("port", 7500, "UDP port the group is reachable on.")
	send     = flag.Bool("send", false, "Act as a source, publishing a heartbeat APDU every interval.")
	interval = flag.Duration("interval", time.Second, "Heartbeat APDU interval when -send is set.")

	ctx, cancel = context.WithCancel(context.Background())
)

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "could not get args from environment variables")
	defer cancel()

	runtime.SetBlockProfileRate(1000000)
	runtime.SetMutexProfileFraction(1000)

	promSrv := prometheusx.MustStartPrometheus(*promPort)
	defer promSrv.Shutdown(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	eng := engine.Init(pgmtime.Monotonic)
	defer eng.Release()

	ownGSI, err := gsi.FromHost()
	rtx.Must(err, "could not derive a GSI from this host")
	tsi := gsi.TSI{GSI: ownGSI, SPort: uint16(*port)}

	cfg := socket.Config{
		MTU:      1500,
		SendOnly: *send,
		RecvOnly: !*send,
		Events:   events.NullNotifier(),
	}
	if *events.Filename != "" {
		notifier := events.New(*events.Filename)
		rtx.Must(notifier.Listen(), "could not listen on %q", *events.Filename)
		go notifier.Serve(ctx)
		cfg.Events = notifier
	}

	sock, err := socket.New(tsi, cfg, net.ParseIP(*iface), net.ParseIP(*group), uint16(*port), eng.Clock())
	rtx.Must(err, "could not bind socket")
	defer sock.Close()

	if *send {
		runSource(sock)
	} else {
		runReceiver(sock)
	}
}

// runSource publishes one heartbeat APDU per interval and keeps
// Dispatch running so SPMs go out on schedule.
func runSource(sock *socket.Socket) {
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	dispatch := time.NewTicker(50 * time.Millisecond)
	defer dispatch.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-dispatch.C:
			if _, err := sock.Dispatch(now); err != nil {
				log.Println("dispatch error:", err)
			}
		case <-ticker.C:
			status, err := sock.Send([]byte("heartbeat"))
			if err != nil {
				log.Println("send error:", err)
				continue
			}
			if status != pgmerr.Normal {
				log.Println("send status:", status)
			}
		}
	}
}

// runReceiver polls the bound fd, ingesting and delivering datagrams
// until canceled.
func runReceiver(sock *socket.Socket) {
	buf := make([]byte, 65536)
	dispatch := time.NewTicker(50 * time.Millisecond)
	defer dispatch.Stop()
	poll := time.NewTicker(10 * time.Millisecond)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-dispatch.C:
			if _, err := sock.Dispatch(now); err != nil {
				log.Println("dispatch error:", err)
			}
		case <-poll.C:
			for {
				status, err := sock.RecvOne(buf)
				if err != nil {
					log.Println("recv error:", err)
					break
				}
				if status == pgmerr.WouldBlock {
					break
				}
			}
			if status, msgs := sock.Recvmsgv(); status == pgmerr.Normal {
				for _, m := range msgs {
					log.Println("delivered", len(m), "bytes:", string(m))
				}
			} else if status == pgmerr.Reset {
				log.Println("unrecoverable loss detected for at least one peer")
			}
		}
	}
}
