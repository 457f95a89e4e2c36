package events

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"testing"
	"time"

	"github.com/steve-o/openpgm-sub004/gsi"
)

func TestNotifierDeliversJoinAndLeave(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dir := t.TempDir()
	sock := dir + "/pgmevents.sock"

	n := New(sock).(*notifier)
	if err := n.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	go n.Serve(ctx)

	c, err := net.Dial("unix", sock)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	for {
		n.mutex.Lock()
		registered := len(n.clients) > 0
		n.mutex.Unlock()
		if registered {
			break
		}
	}

	tsi := gsi.TSI{GSI: gsi.GSI{1, 2, 3, 4, 5, 6}, SPort: 1000}
	n.PeerJoined(time.Now(), tsi)

	r := bufio.NewScanner(c)
	if !r.Scan() {
		t.Fatal("expected a join line, got none")
	}
	var event PeerEvent
	if err := json.Unmarshal(r.Bytes(), &event); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if event.Event != PeerJoined || event.TSI != tsi.String() {
		t.Errorf("got %+v, want join event for %s", event, tsi.String())
	}

	n.PeerLeft(time.Now(), tsi)
	if !r.Scan() {
		t.Fatal("expected a leave line, got none")
	}
	if err := json.Unmarshal(r.Bytes(), &event); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if event.Event != PeerLeft || event.TSI != tsi.String() {
		t.Errorf("got %+v, want leave event for %s", event, tsi.String())
	}

	c.Close()
	n.eventC <- nil
	n.removeClient(nil)
	n.PeerLeft(time.Now(), tsi)

	for {
		n.mutex.Lock()
		empty := len(n.clients) == 0
		n.mutex.Unlock()
		if empty {
			break
		}
	}

	cancel()
	n.servingWG.Wait()
}

func TestNullNotifierIsHarmless(t *testing.T) {
	n := NullNotifier()
	if err := n.Listen(); err != nil {
		t.Errorf("Listen: %v", err)
	}
	if err := n.Serve(context.Background()); err != nil {
		t.Errorf("Serve: %v", err)
	}
	n.PeerJoined(time.Now(), gsi.TSI{})
	n.PeerLeft(time.Now(), gsi.TSI{})
}

func TestMain_removesStaleSocketFile(t *testing.T) {
	dir := t.TempDir()
	sock := dir + "/stale.sock"
	if f, err := os.Create(sock); err == nil {
		f.Close()
	}
	n := New(sock).(*notifier)
	if err := n.Listen(); err != nil {
		t.Fatalf("Listen should clear a stale socket file: %v", err)
	}
	n.unixListener.Close()
}
