package chainfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Head is a trimmed newHeads notification: just enough for a log tailer to
// know how far the chain has advanced.
type Head struct {
	Number       uint64
	Hash         string
	ReceivedAtMs int64
}

type Options struct {
	PingInterval time.Duration

	BackoffMin time.Duration
	BackoffMax time.Duration

	OutBuffer int
}

func (o Options) withDefaults() Options {
	if o.PingInterval <= 0 {
		o.PingInterval = 15 * time.Second
	}
	if o.BackoffMin <= 0 {
		o.BackoffMin = 500 * time.Millisecond
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 15 * time.Second
	}
	if o.OutBuffer <= 0 {
		o.OutBuffer = 64
	}
	return o
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcEnvelope struct {
	ID     *int            `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Params *struct {
		Subscription string          `json:"subscription"`
		Result       json.RawMessage `json:"result"`
	} `json:"params,omitempty"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type headPayload struct {
	Number string `json:"number"`
	Hash   string `json:"hash"`
}

// SubscribeHeads connects to a websocket JSON-RPC endpoint, issues
// eth_subscribe(newHeads) and emits decoded heads. It reconnects with
// jittered backoff until ctx is cancelled; both channels close on return.
func SubscribeHeads(ctx context.Context, url string, opts Options) (<-chan Head, <-chan error) {
	opts = opts.withDefaults()

	out := make(chan Head, opts.OutBuffer)
	errs := make(chan error, 16)

	go func() {
		defer close(out)
		defer close(errs)

		backoff := opts.BackoffMin
		for {
			if ctx.Err() != nil {
				return
			}

			conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
			if err != nil {
				emitErrNonBlocking(errs, fmt.Errorf("heads dial: %w", err))
				sleepWithJitter(ctx, backoff)
				backoff = nextBackoff(backoff, opts.BackoffMax)
				continue
			}

			backoff = opts.BackoffMin

			if err := runSession(ctx, conn, opts.PingInterval, out, errs); err != nil && ctx.Err() == nil {
				emitErrNonBlocking(errs, err)
			}

			_ = conn.Close()
			if ctx.Err() != nil {
				return
			}
			sleepWithJitter(ctx, backoff)
			backoff = nextBackoff(backoff, opts.BackoffMax)
		}
	}()

	return out, errs
}

func runSession(ctx context.Context, conn *websocket.Conn, pingInterval time.Duration, out chan<- Head, errs chan<- error) error {
	if conn == nil {
		return fmt.Errorf("heads session: nil conn")
	}

	req := rpcRequest{JSONRPC: "2.0", ID: 1, Method: "eth_subscribe", Params: []any{"newHeads"}}
	reqBytes, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("heads subscribe marshal: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, reqBytes); err != nil {
		return fmt.Errorf("heads subscribe write: %w", err)
	}

	stop := make(chan struct{})
	var stopped bool
	stopAll := func() {
		if !stopped {
			stopped = true
			close(stop)
		}
	}

	go func() {
		t := time.NewTicker(pingInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-t.C:
				_ = conn.SetWriteDeadline(time.Now().Add(3 * time.Second))
				if werr := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(3*time.Second)); werr != nil {
					emitErrNonBlocking(errs, fmt.Errorf("heads ping: %w", werr))
					_ = conn.Close()
					return
				}
			}
		}
	}()

	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		_ = conn.Close()
	}()

	defer stopAll()
	for {
		typ, msg, err := conn.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrCloseSent) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("heads read: %w", err)
		}
		if typ != websocket.TextMessage && typ != websocket.BinaryMessage {
			continue
		}
		if len(msg) == 0 {
			continue
		}

		var env rpcEnvelope
		if err := json.Unmarshal(msg, &env); err != nil {
			emitErrNonBlocking(errs, fmt.Errorf("heads decode: %w", err))
			continue
		}
		if env.Error != nil {
			return fmt.Errorf("heads rpc error %d: %s", env.Error.Code, env.Error.Message)
		}
		if env.Method != "eth_subscription" || env.Params == nil {
			continue
		}

		head, err := DecodeHead(env.Params.Result)
		if err != nil {
			emitErrNonBlocking(errs, err)
			continue
		}

		select {
		case out <- head:
		default:
		}
	}
}

// DecodeHead parses a newHeads notification payload.
func DecodeHead(raw json.RawMessage) (Head, error) {
	var p headPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Head{}, fmt.Errorf("heads payload decode: %w", err)
	}
	n, err := parseHexUint(p.Number)
	if err != nil {
		return Head{}, fmt.Errorf("heads payload number %q: %w", p.Number, err)
	}
	return Head{
		Number:       n,
		Hash:         p.Hash,
		ReceivedAtMs: time.Now().UnixMilli(),
	}, nil
}

func parseHexUint(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if s == "" {
		return 0, fmt.Errorf("empty quantity")
	}
	return strconv.ParseUint(s, 16, 64)
}

func emitErrNonBlocking(ch chan<- error, err error) {
	if err == nil {
		return
	}
	select {
	case ch <- err:
	default:
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}

func sleepWithJitter(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	j := int64(d) / 7
	if j > 0 {
		d = time.Duration(int64(d) + rand.Int63n(2*j+1) - j)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
