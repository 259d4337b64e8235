package chainfeed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestDecodeHead(t *testing.T) {
	raw := json.RawMessage(`{"number":"0x12d687","hash":"0xdeadbeef"}`)
	head, err := DecodeHead(raw)
	if err != nil {
		t.Fatalf("DecodeHead: %v", err)
	}
	if head.Number != 0x12d687 {
		t.Fatalf("number: got %d want %d", head.Number, 0x12d687)
	}
	if head.Hash != "0xdeadbeef" {
		t.Fatalf("hash: got %q", head.Hash)
	}
	if head.ReceivedAtMs == 0 {
		t.Fatal("receive timestamp not set")
	}
}

func TestDecodeHead_BadNumber(t *testing.T) {
	if _, err := DecodeHead(json.RawMessage(`{"number":"xyz"}`)); err == nil {
		t.Fatal("invalid quantity accepted")
	}
	if _, err := DecodeHead(json.RawMessage(`{"number":""}`)); err == nil {
		t.Fatal("empty quantity accepted")
	}
}

func TestParseHexUint(t *testing.T) {
	cases := []struct {
		in   string
		want uint64
	}{
		{"0x0", 0},
		{"0xff", 255},
		{" 0x10 ", 16},
		{"ff", 255},
	}
	for _, tc := range cases {
		got, err := parseHexUint(tc.in)
		if err != nil {
			t.Fatalf("parseHexUint(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("parseHexUint(%q): got %d want %d", tc.in, got, tc.want)
		}
	}
}

// Sessions come and go for the life of the process on a flapping
// endpoint; every goroutine a session starts must exit when the session
// does, not when the process context is cancelled.
func TestRunSession_GoroutinesExitWithSession(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// Take the subscribe request, then drop the connection.
		_, _, _ = c.ReadMessage()
		_ = c.Close()
	}))
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	ctx := context.Background()
	before := runtime.NumGoroutine()

	for i := 0; i < 8; i++ {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
		if err != nil {
			t.Fatalf("dial %d: %v", i, err)
		}
		out := make(chan Head, 1)
		errs := make(chan error, 16)
		_ = runSession(ctx, conn, time.Hour, out, errs)
		_ = conn.Close()
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if runtime.NumGoroutine() <= before+2 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("goroutines leaked across sessions: before=%d after=%d", before, runtime.NumGoroutine())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNextBackoff_Caps(t *testing.T) {
	max := 8 * time.Second
	b := time.Second
	for i := 0; i < 10; i++ {
		b = nextBackoff(b, max)
		if b > max {
			t.Fatalf("backoff exceeded cap: %s", b)
		}
	}
	if b != max {
		t.Fatalf("backoff: got %s want %s", b, max)
	}
}
