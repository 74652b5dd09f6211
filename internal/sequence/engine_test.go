package sequence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/paka-eco/kiosk-controller/internal/audit"
	"github.com/paka-eco/kiosk-controller/internal/logging"
	"github.com/paka-eco/kiosk-controller/internal/protocol"
	"github.com/paka-eco/kiosk-controller/internal/qr"
	"github.com/paka-eco/kiosk-controller/internal/store"
)

// fakeLink is an in-memory stand-in for *protocol.Link: Send always
// succeeds, WaitForAck succeeds unless the type is listed in failAckFor,
// and Receive draws from a channel the test pushes frames into.
type fakeLink struct {
	mu         sync.Mutex
	nextID     int
	sent       []protocol.Frame
	acked      []protocol.Frame
	failAckFor map[protocol.MessageType]bool
	rx         chan protocol.Frame
}

func newFakeLink() *fakeLink {
	return &fakeLink{failAckFor: map[protocol.MessageType]bool{}, rx: make(chan protocol.Frame, 16)}
}

func (f *fakeLink) Send(typ protocol.MessageType, payload []byte) (protocol.Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fr := protocol.Frame{Type: typ, ID: f.nextID, Payload: payload}
	f.nextID++
	f.sent = append(f.sent, fr)
	return fr, nil
}

func (f *fakeLink) SendAck(orig protocol.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, orig)
	return nil
}

func (f *fakeLink) WaitForAck(ctx context.Context, typ protocol.MessageType, id int, timeout time.Duration) error {
	f.mu.Lock()
	fail := f.failAckFor[typ]
	f.mu.Unlock()
	if fail {
		return protocol.ErrAckTimeout
	}
	return nil
}

func (f *fakeLink) Receive(ctx context.Context) (protocol.Frame, error) {
	select {
	case fr := <-f.rx:
		return fr, nil
	case <-ctx.Done():
		return protocol.Frame{}, ctx.Err()
	}
}

func (f *fakeLink) push(fr protocol.Frame) {
	f.rx <- fr
}

func (f *fakeLink) lastSent() protocol.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return protocol.Frame{}
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeLink) sentTypes() []protocol.MessageType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.MessageType, len(f.sent))
	for i, fr := range f.sent {
		out[i] = fr.Type
	}
	return out
}

// fakeValidator always returns the configured decision, ignoring the raw
// scan.
type fakeValidator struct {
	decision qr.Decision
}

func (v *fakeValidator) Decide(ctx context.Context, raw string) qr.Decision {
	return v.decision
}

// fakeAuditRepo is an in-memory audit.Repository.
type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []*store.AuditLogEntry
}

func (r *fakeAuditRepo) Create(ctx context.Context, e *store.AuditLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

// fakeClock lets tests control Engine.now without sleeping.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// testQRChans maps each test engine to the write end of its scan channel,
// so tests can play the input reader's role.
var testQRChans sync.Map

func newTestEngine(t *testing.T, link Link, validator Validator) (*Engine, *fakeClock) {
	t.Helper()
	repo := &fakeAuditRepo{}
	auditLogger := audit.New(repo, logging.Default())
	clock := newFakeClock()
	qrChan := make(chan string)
	e := New(link, validator, auditLogger, logging.Default(), nil, qrChan)
	e.now = clock.now
	testQRChans.Store(e, qrChan)
	return e, clock
}

// qrChanForTest returns the write end of the engine's scan channel. A send
// on it only completes once the engine is blocked in its QR wait, since the
// channel is unbuffered.
func (e *Engine) qrChanForTest() chan<- string {
	v, ok := testQRChans.Load(e)
	if !ok {
		panic("engine not created by newTestEngine")
	}
	return v.(chan string)
}

func TestEngine_SEQ1_HappyPath(t *testing.T) {
	link := newFakeLink()
	e, clock := newTestEngine(t, link, &fakeValidator{})

	link.push(protocol.Frame{Type: protocol.TypeButtonPushed, ID: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := e.Tick(ctx); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	want := []protocol.MessageType{
		protocol.TypeDoorControl,
		protocol.TypeDoorControl,
		protocol.TypeLightManagement,
		protocol.TypeLightManagement,
	}
	got := link.sentTypes()
	if len(got) != len(want) {
		t.Fatalf("sent %d commands, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sent[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	snap := e.Snapshot()
	if !snap.Seq1LightsActive {
		t.Error("Seq1LightsActive = false, want true after SEQ1 completes")
	}

	clock.advance(61 * time.Second)
	link.mu.Lock()
	link.sent = nil
	link.mu.Unlock()

	ctx2, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel2()
	if err := e.Tick(ctx2); err != nil {
		t.Fatalf("second Tick() error = %v", err)
	}

	got2 := link.sentTypes()
	if len(got2) != 2 || got2[0] != protocol.TypeLightManagement || got2[1] != protocol.TypeLightManagement {
		t.Errorf("light-timeout sent = %+v, want two LIGHT_MANAGEMENT commands", got2)
	}
	if e.Snapshot().Seq1LightsActive {
		t.Error("Seq1LightsActive still true after the 60 s timeout")
	}
}

func TestEngine_SEQ4_TriggersAt180Seconds(t *testing.T) {
	link := newFakeLink()
	e, clock := newTestEngine(t, link, &fakeValidator{})

	e.state.Seq2Completed = true
	e.state.Seq2CompletedAt = clock.now()
	e.state.SensorPresent[SensorCover] = true
	e.state.SensorPresent[SensorContainer] = true

	clock.advance(179 * time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := e.Tick(ctx); err != nil {
		t.Fatalf("Tick() at t=179 error = %v", err)
	}
	if len(link.sentTypes()) != 0 {
		t.Fatalf("sent commands before 180s elapsed: %+v", link.sentTypes())
	}

	clock.advance(2 * time.Second) // t=181
	link.push(protocol.Frame{Type: protocol.TypeSensorStateChange, ID: 2, Payload: []byte{byte(SensorCover), 0}})
	link.push(protocol.Frame{Type: protocol.TypeSensorStateChange, ID: 3, Payload: []byte{byte(SensorContainer), 0}})

	ctx2, cancel2 := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel2()
	if err := e.Tick(ctx2); err != nil {
		t.Fatalf("Tick() at t=181 error = %v", err)
	}

	got := link.sentTypes()
	if len(got) < 3 {
		t.Fatalf("sent %d commands, want at least actuator x2 + lights-off: %+v", len(got), got)
	}
	if got[0] != protocol.TypeActuatorMovement || got[1] != protocol.TypeActuatorMovement {
		t.Errorf("first two commands = %v, want two ACTUATOR_MOVEMENT", got[:2])
	}

	snap := e.Snapshot()
	if snap.Seq2Completed || snap.Seq3Completed {
		t.Error("seq2/seq3 completion flags not cleared after SEQ4")
	}
	if snap.Seq4InProgress {
		t.Error("seq4_in_progress guard left set after SEQ4 returns")
	}
}

func TestEngine_Start_RestartsAndQueriesSensors(t *testing.T) {
	link := newFakeLink()
	e, _ := newTestEngine(t, link, &fakeValidator{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	got := link.sentTypes()
	want := []protocol.MessageType{protocol.TypeRestart, protocol.TypeGetSensorStatus}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("sent = %+v, want %+v", got, want)
	}
}

func TestEngine_ModeGateSuppressesButtonAndSensors(t *testing.T) {
	link := newFakeLink()
	e, _ := newTestEngine(t, link, &fakeValidator{})

	ctx := context.Background()
	e.SetSecureMode(ctx, true)

	link.push(protocol.Frame{Type: protocol.TypeButtonPushed, ID: 1})
	link.push(protocol.Frame{Type: protocol.TypeSensorStateChange, ID: 2, Payload: []byte{byte(SensorCover), 1}})

	tickCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := e.Tick(tickCtx); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	if got := link.sentTypes(); len(got) != 0 {
		t.Errorf("sent commands while gated: %+v", got)
	}
	if len(link.acked) != 2 {
		t.Errorf("acked %d frames, want 2 (ACKs still flow while gated)", len(link.acked))
	}
	snap := e.Snapshot()
	if !snap.SensorPresent[SensorCover] {
		t.Error("sensor tracking not updated while gated")
	}
	if snap.Seq2Completed {
		t.Error("SEQ2 ran despite the secure-mode gate")
	}

	// Dropping the gate lets the next presence edge start SEQ2.
	e.SetSecureMode(ctx, false)
	link.push(protocol.Frame{Type: protocol.TypeSensorStateChange, ID: 3, Payload: []byte{byte(SensorCover), 1}})
	tickCtx2, cancel2 := context.WithTimeout(ctx, 2*time.Second)
	defer cancel2()
	if err := e.Tick(tickCtx2); err != nil {
		t.Fatalf("second Tick() error = %v", err)
	}
	if !e.Snapshot().Seq2Completed {
		t.Error("SEQ2 did not run after the gate cleared")
	}
}
