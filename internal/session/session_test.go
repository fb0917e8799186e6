package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Iron-Ham/poolminer/internal/config"
	"github.com/Iron-Ham/poolminer/internal/errors"
	"github.com/Iron-Ham/poolminer/internal/event"
	"github.com/Iron-Ham/poolminer/internal/logging"
	"github.com/Iron-Ham/poolminer/internal/miner"
	"github.com/Iron-Ham/poolminer/internal/shares"
	"github.com/Iron-Ham/poolminer/internal/storage"
	"github.com/Iron-Ham/poolminer/internal/testutil"
)

const waitTimeout = 5 * time.Second

type fakeLedger struct {
	mu     sync.Mutex
	shares []storage.Share
	err    error
}

func (l *fakeLedger) RecordShare(_ context.Context, sh storage.Share) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.shares = append(l.shares, sh)
	return l.err
}

func (l *fakeLedger) all() []storage.Share {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]storage.Share(nil), l.shares...)
}

type countingIndicator struct {
	signals atomic.Int32
	last    atomic.Int32
}

func (c *countingIndicator) Signal(n int) {
	c.signals.Add(1)
	c.last.Store(int32(n))
}

func (c *countingIndicator) Hold(bool) {}

// matchCandidate matches exactly one candidate string.
func matchCandidate(want string) miner.Evaluator {
	return miner.EvaluatorFunc(func(candidate, _ []byte) bool {
		return string(candidate) == want
	})
}

var never = miner.EvaluatorFunc(func([]byte, []byte) bool { return false })

func testConfig(endpoint string) Config {
	return Config{
		Endpoint:       endpoint,
		Identity:       "rig-7",
		DeviceTag:      "ESP",
		Difficulty:     1,
		DialTimeout:    time.Second,
		IOTimeout:      2 * time.Second,
		MaxRecordBytes: 512,
		BackoffInitial: time.Millisecond,
		BackoffMax:     5 * time.Millisecond,
	}
}

type harness struct {
	acct   *shares.Accountant
	ledger *fakeLedger
	ind    *countingIndicator
	events *testutil.EventRecorder
	cancel context.CancelFunc
	done   chan struct{}
}

func startSession(t *testing.T, cfg Config, eval miner.Evaluator, opts ...Option) *harness {
	t.Helper()
	bus := event.NewBus()
	h := &harness{
		acct:   shares.NewAccountant(),
		ledger: &fakeLedger{},
		ind:    &countingIndicator{},
		events: testutil.RecordEvents(bus),
		done:   make(chan struct{}),
	}
	searcher := miner.NewSearcher(eval, 64, uint64(cfg.Difficulty)*100)
	opts = append([]Option{WithBus(bus), WithIndicator(h.ind), WithLedger(h.ledger, 42)}, opts...)
	s := New(cfg, searcher, h.acct, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		s.Run(ctx)
		close(h.done)
	}()
	t.Cleanup(h.stop)
	return h
}

func (h *harness) stop() {
	h.cancel()
	<-h.done
}

func (h *harness) stopWithin(t *testing.T, d time.Duration) {
	t.Helper()
	h.cancel()
	select {
	case <-h.done:
	case <-time.After(d):
		t.Fatal("Run() did not return after cancellation")
	}
}

func TestSession_SubmitsShare(t *testing.T) {
	var second sync.WaitGroup
	second.Add(1)
	fp := testutil.NewFakePool(t, func(n int, c *testutil.PoolConn) {
		if n > 1 {
			c.Hold()
			return
		}
		c.Send("V1.0")
		if !c.Expect("JOB,") {
			return
		}
		c.Send("abc123,ffff\n")
		if !c.Expect("SHARE,") {
			return
		}
		c.Send("OK\n")
		if c.Expect("JOB,") {
			second.Done()
		}
		c.Hold()
	})

	h := startSession(t, testConfig(fp.Endpoint()), matchCandidate("abc12399"))
	h.events.WaitFor(t, event.TypeShareSubmitted, 1, waitTimeout)
	second.Wait()
	h.stopWithin(t, waitTimeout)

	lines := fp.Lines()
	want := []string{"JOB,rig-7,ESP", "SHARE,1,rig-7,abc123,99", "JOB,rig-7,ESP"}
	if fmt.Sprint(lines[:3]) != fmt.Sprint(want) {
		t.Errorf("pool received %q, want %q", lines, want)
	}

	if got := h.acct.Snapshot(); got != (shares.Snapshot{Accepted: 1}) {
		t.Errorf("Snapshot() = %+v, want one accepted", got)
	}

	recorded := h.ledger.all()
	if len(recorded) != 1 {
		t.Fatalf("ledger has %d shares, want 1", len(recorded))
	}
	if sh := recorded[0]; sh.Nonce != 99 || !sh.Accepted || sh.Seed != "abc123" || sh.Target != "ffff" || sh.BootID != 42 {
		t.Errorf("ledger share = %+v", sh)
	}

	connected := h.events.OfType(event.TypeSessionConnected)[0].(event.SessionConnectedEvent)
	if connected.Banner != "V1.0" || connected.Endpoint != fp.Endpoint() {
		t.Errorf("session.connected = %+v", connected)
	}
	job := h.events.OfType(event.TypeJobReceived)[0].(event.JobReceivedEvent)
	if job.Seed != "abc123" || job.Limit != 100 {
		t.Errorf("job.received = %+v", job)
	}
	share := h.events.OfType(event.TypeShareSubmitted)[0].(event.ShareSubmittedEvent)
	if share.Nonce != 99 || !share.Accepted || share.SessionID != connected.SessionID {
		t.Errorf("share.submitted = %+v", share)
	}

	if got := h.ind.last.Load(); got != ConnectSignal {
		t.Errorf("indicator signal = %d, want %d", got, ConnectSignal)
	}
}

func TestSession_RejectedShare(t *testing.T) {
	fp := testutil.NewFakePool(t, func(n int, c *testutil.PoolConn) {
		c.Send("V1.0")
		if !c.Expect("JOB,") {
			return
		}
		c.Send("abc123,ffff\n")
		if !c.Expect("SHARE,") {
			return
		}
		c.Send("FAIL,stale job\n")
		c.Hold()
	})

	h := startSession(t, testConfig(fp.Endpoint()), matchCandidate("abc1230"))
	ev := h.events.WaitFor(t, event.TypeShareSubmitted, 1, waitTimeout)[0].(event.ShareSubmittedEvent)
	h.stopWithin(t, waitTimeout)

	if ev.Accepted || ev.Reason != "stale job" || ev.Nonce != 0 {
		t.Errorf("share.submitted = %+v", ev)
	}
	if got := h.acct.Snapshot(); got != (shares.Snapshot{Rejected: 1}) {
		t.Errorf("Snapshot() = %+v, want one rejected", got)
	}
}

func TestSession_FailuresReconnectWithoutCounting(t *testing.T) {
	tests := []struct {
		name      string
		handler   func(c *testutil.PoolConn)
		wantPhase errors.Phase
		wantErr   error
	}{
		{
			name:      "closed before banner",
			handler:   func(c *testutil.PoolConn) { c.Send("V1") },
			wantPhase: errors.PhaseHandshake,
			wantErr:   errors.ErrRemoteClosed,
		},
		{
			name: "read error mid job",
			handler: func(c *testutil.PoolConn) {
				c.Send("V1.0")
				c.Expect("JOB,")
			},
			wantPhase: errors.PhaseJobReceive,
			wantErr:   errors.ErrRemoteClosed,
		},
		{
			name: "malformed record",
			handler: func(c *testutil.PoolConn) {
				c.Send("V1.0")
				c.Expect("JOB,")
				c.Send("just-a-seed\n")
				c.Hold()
			},
			wantPhase: errors.PhaseJobReceive,
			wantErr:   errors.ErrMalformedRecord,
		},
		{
			name: "oversized record",
			handler: func(c *testutil.PoolConn) {
				c.Send("V1.0")
				c.Expect("JOB,")
				c.Send(fmt.Sprintf("%0600d,ff\n", 1))
				c.Hold()
			},
			wantPhase: errors.PhaseJobReceive,
			wantErr:   errors.ErrRecordTooLong,
		},
		{
			name: "unexpected ack",
			handler: func(c *testutil.PoolConn) {
				c.Send("V1.0")
				c.Expect("JOB,")
				c.Send("abc123,ffff\n")
				c.Expect("SHARE,")
				c.Send("MAYBE\n")
				c.Hold()
			},
			wantPhase: errors.PhaseSubmit,
			wantErr:   errors.ErrUnexpectedAck,
		},
		{
			name: "closed before ack",
			handler: func(c *testutil.PoolConn) {
				c.Send("V1.0")
				c.Expect("JOB,")
				c.Send("abc123,ffff\n")
				c.Expect("SHARE,")
			},
			wantPhase: errors.PhaseSubmit,
			wantErr:   errors.ErrRemoteClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp := testutil.NewFakePool(t, func(n int, c *testutil.PoolConn) {
				if n > 1 {
					c.Hold()
					return
				}
				tt.handler(c)
			})

			h := startSession(t, testConfig(fp.Endpoint()), matchCandidate("abc12399"))
			dropped := h.events.WaitFor(t, event.TypeSessionDropped, 1, waitTimeout)[0].(event.SessionDroppedEvent)
			testutil.Eventually(t, waitTimeout, func() bool { return fp.Connections() >= 2 }, "session did not reconnect")
			h.stopWithin(t, waitTimeout)

			if dropped.Phase != string(tt.wantPhase) {
				t.Errorf("dropped phase = %q, want %q (err=%s)", dropped.Phase, tt.wantPhase, dropped.Err)
			}
			if got := h.acct.Snapshot(); got != (shares.Snapshot{}) {
				t.Errorf("Snapshot() = %+v, want no verdicts", got)
			}
			if got := len(h.ledger.all()); got != 0 {
				t.Errorf("ledger has %d shares, want 0", got)
			}
			if h.events.Count(event.TypeShareSubmitted) != 0 {
				t.Error("share.submitted published for a failed exchange")
			}
		})
	}
}

func TestSession_RunOnceErrors(t *testing.T) {
	fp := testutil.NewFakePool(t, func(n int, c *testutil.PoolConn) {
		c.Send("V1.0")
		c.Expect("JOB,")
		c.Send("abc123,ffff\n")
		c.Expect("SHARE,")
		c.Send("MAYBE\n")
	})

	cfg := testConfig(fp.Endpoint())
	s := New(cfg, miner.NewSearcher(matchCandidate("abc1235"), 64, 100), shares.NewAccountant())

	handshaken, err := s.runOnce(context.Background(), "test-session")
	if !handshaken {
		t.Error("handshaken = false after banner")
	}
	if !errors.Is(err, errors.ErrUnexpectedAck) {
		t.Errorf("runOnce() error = %v, want ErrUnexpectedAck", err)
	}
	var sessErr *errors.SessionError
	if !errors.As(err, &sessErr) || sessErr.SessionID != "test-session" || sessErr.Endpoint != cfg.Endpoint {
		t.Errorf("runOnce() error = %#v", err)
	}
	if !errors.IsRetryable(err) {
		t.Error("session errors must be retryable")
	}
	if got := errors.GetSeverity(err); got != errors.SeverityError {
		t.Errorf("GetSeverity() = %v, want %v for a protocol violation", got, errors.SeverityError)
	}
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSession_DropLogLevel(t *testing.T) {
	refused := func(context.Context, string) (net.Conn, error) {
		return nil, fmt.Errorf("connection refused")
	}
	badAck := testutil.NewFakePool(t, func(n int, c *testutil.PoolConn) {
		c.Send("V1.0")
		c.Expect("JOB,")
		c.Send("abc123,ffff\n")
		c.Expect("SHARE,")
		c.Send("MAYBE\n")
	})

	tests := []struct {
		name      string
		endpoint  string
		opts      []Option
		wantLevel string
	}{
		{"connection failure", "pool.invalid:3333", []Option{WithDialer(refused)}, "WARN"},
		{"protocol violation", badAck.Endpoint(), nil, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs lockedBuffer
			opts := append([]Option{WithLogger(logging.NewWriterLogger(&logs, "debug"))}, tt.opts...)
			h := startSession(t, testConfig(tt.endpoint), matchCandidate("abc1235"), opts...)
			h.events.WaitFor(t, event.TypeSessionDropped, 1, waitTimeout)
			h.stopWithin(t, waitTimeout)

			var levels []string
			for _, line := range strings.Split(strings.TrimSpace(logs.String()), "\n") {
				var rec struct {
					Level string `json:"level"`
					Msg   string `json:"msg"`
				}
				if json.Unmarshal([]byte(line), &rec) == nil && rec.Msg == "pool session ended" {
					levels = append(levels, rec.Level)
				}
			}
			if len(levels) == 0 {
				t.Fatalf("no session-ended log line:\n%s", logs.String())
			}
			if levels[0] != tt.wantLevel {
				t.Errorf("level = %q, want %q", levels[0], tt.wantLevel)
			}
		})
	}
}

func TestViolatesProtocol(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{fmt.Errorf("read: %w", errors.ErrMalformedRecord), true},
		{errors.ErrRecordTooLong, true},
		{errors.ErrUnexpectedAck, true},
		{errors.ErrSeedTooLong, true},
		{errors.ErrRemoteClosed, false},
		{fmt.Errorf("connection refused"), false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := violatesProtocol(tt.err); got != tt.want {
			t.Errorf("violatesProtocol(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestSession_ExhaustedRangeRequestsNextJob(t *testing.T) {
	var jobs atomic.Int32
	fp := testutil.NewFakePool(t, func(n int, c *testutil.PoolConn) {
		c.Send("V1.0")
		for c.Expect("JOB,") {
			jobs.Add(1)
			c.Send(fmt.Sprintf("seed%d,0000\n", jobs.Load()))
		}
	})

	h := startSession(t, testConfig(fp.Endpoint()), never)
	exhausted := h.events.WaitFor(t, event.TypeJobExhausted, 2, waitTimeout)
	h.stopWithin(t, waitTimeout)

	for _, e := range exhausted {
		if ev := e.(event.JobExhaustedEvent); ev.Evaluated != 100 {
			t.Errorf("job.exhausted = %+v, want 100 evaluations", ev)
		}
	}
	if fp.Connections() != 1 {
		t.Errorf("connections = %d, want 1 (exhaustion must not reconnect)", fp.Connections())
	}
	if h.events.Count(event.TypeShareSubmitted) != 0 || h.acct.Snapshot().Total() != 0 {
		t.Error("exhausted jobs must not submit")
	}
}

func TestSession_DialFailuresRetry(t *testing.T) {
	var dials atomic.Int32
	dialer := func(ctx context.Context, endpoint string) (net.Conn, error) {
		dials.Add(1)
		return nil, fmt.Errorf("connection refused")
	}

	h := startSession(t, testConfig("pool.invalid:3333"), never, WithDialer(dialer))
	dropped := h.events.WaitFor(t, event.TypeSessionDropped, 3, waitTimeout)
	h.stopWithin(t, waitTimeout)

	for _, e := range dropped {
		if ev := e.(event.SessionDroppedEvent); ev.Phase != string(errors.PhaseConnect) {
			t.Errorf("dropped phase = %q, want connect", ev.Phase)
		}
	}
	if h.ind.signals.Load() != 0 {
		t.Error("indicator signaled without a pool connection")
	}
	if dials.Load() < 3 {
		t.Errorf("dials = %d, want >= 3", dials.Load())
	}
}

func TestSession_CancelDuringSearch(t *testing.T) {
	started := make(chan struct{})
	fp := testutil.NewFakePool(t, func(n int, c *testutil.PoolConn) {
		c.Send("V1.0")
		c.Expect("JOB,")
		c.Send("abc123,ffff\n")
		close(started)
		c.Hold()
	})

	cfg := testConfig(fp.Endpoint())
	cfg.Difficulty = 100_000_000
	h := startSession(t, cfg, never)
	h.events.WaitFor(t, event.TypeJobReceived, 1, waitTimeout)
	<-started
	h.stopWithin(t, waitTimeout)

	if h.events.Count(event.TypeSessionDropped) != 0 {
		t.Error("cancellation must not be reported as a dropped session")
	}
}

func TestSession_LedgerFailureDoesNotStopMining(t *testing.T) {
	fp := testutil.NewFakePool(t, func(n int, c *testutil.PoolConn) {
		c.Send("V1.0")
		for i := 0; i < 2; i++ {
			if !c.Expect("JOB,") {
				return
			}
			c.Send("abc123,ffff\n")
			if !c.Expect("SHARE,") {
				return
			}
			c.Send("OK\n")
		}
		c.Hold()
	})

	bus := event.NewBus()
	events := testutil.RecordEvents(bus)
	acct := shares.NewAccountant()
	ledger := &fakeLedger{err: fmt.Errorf("disk full")}
	s := New(testConfig(fp.Endpoint()), miner.NewSearcher(matchCandidate("abc1237"), 64, 100), acct,
		WithBus(bus), WithLedger(ledger, 1))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	events.WaitFor(t, event.TypeShareSubmitted, 2, waitTimeout)
	cancel()
	<-done

	if got := acct.Snapshot().Accepted; got != 2 {
		t.Errorf("Accepted = %d, want 2", got)
	}
	if events.Count(event.TypeSessionDropped) != 0 {
		t.Error("ledger failure dropped the session")
	}
}

func TestNewBackOff(t *testing.T) {
	t.Run("zero initial means immediate", func(t *testing.T) {
		s := New(Config{BackoffInitial: 0, BackoffMax: time.Second}, nil, nil)
		b := s.newBackOff()
		for i := 0; i < 5; i++ {
			if d := b.NextBackOff(); d != 0 {
				t.Fatalf("NextBackOff() = %v, want 0", d)
			}
		}
	})

	t.Run("grows and caps", func(t *testing.T) {
		s := New(Config{BackoffInitial: 100 * time.Millisecond, BackoffMax: 400 * time.Millisecond}, nil, nil)
		b := s.newBackOff()

		first := b.NextBackOff()
		if first < 80*time.Millisecond || first > 120*time.Millisecond {
			t.Errorf("first NextBackOff() = %v, want 100ms ±20%%", first)
		}
		var last time.Duration
		for i := 0; i < 10; i++ {
			last = b.NextBackOff()
		}
		if last < 320*time.Millisecond || last > 480*time.Millisecond {
			t.Errorf("capped NextBackOff() = %v, want 400ms ±20%%", last)
		}

		b.Reset()
		if d := b.NextBackOff(); d > 120*time.Millisecond {
			t.Errorf("NextBackOff() after Reset = %v", d)
		}
	})
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Pool.Address = "pool.example.com"
	cfg.Pool.Port = 3333
	cfg.Pool.Identity = "rig-7"

	got := FromConfig(cfg)
	if got.Endpoint != "pool.example.com:3333" || got.Identity != "rig-7" || got.DeviceTag != "ESP" {
		t.Errorf("FromConfig() = %+v", got)
	}
	if got.Difficulty != 7501 || got.MaxRecordBytes != 512 {
		t.Errorf("FromConfig() = %+v", got)
	}
	if got.BackoffInitial != 500*time.Millisecond || got.BackoffMax != 30*time.Second {
		t.Errorf("backoff = %v..%v", got.BackoffInitial, got.BackoffMax)
	}
}
