package session_test

import (
	"context"
	"sync"

	"github.com/hubgrid/androidtv-bridge/internal/companion"
	"github.com/hubgrid/androidtv-bridge/internal/domain/session"
	"github.com/hubgrid/androidtv-bridge/internal/infra/discovery"
	"github.com/hubgrid/androidtv-bridge/internal/remote"
)

type keyEvent struct {
	keycode   string
	direction remote.KeyDirection
}

// fakeClient is a scriptable remote.Client. Scripted error slices are
// consumed one per call; an exhausted slice means success.
type fakeClient struct {
	mu sync.Mutex

	name string
	mac  string
	host string

	initErrs    []error
	initErr     error // persistent, used when initErrs is exhausted
	connectErrs []error

	initCalls    int
	connectCalls int

	// when set, Connect signals entry and blocks until released
	connectEntered chan struct{}
	connectRelease chan struct{}

	sendErr error

	keys     []keyEvent
	launches []string
	pins     []string

	on        bool
	onKnown   bool
	writeOpen bool

	onPower  func(bool)
	onApp    func(string)
	onVolume func(remote.VolumeInfo)
	onAvail  func(bool)
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		name:      "Living Room TV",
		mac:       "AA:BB:CC:DD:EE:FF",
		writeOpen: true,
	}
}

func (c *fakeClient) GenerateCertIfMissing() (bool, error) { return false, nil }

func (c *fakeClient) GetNameAndMAC(_ context.Context) (string, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initCalls++
	if len(c.initErrs) > 0 {
		err := c.initErrs[0]
		c.initErrs = c.initErrs[1:]
		return "", "", err
	}
	if c.initErr != nil {
		return "", "", c.initErr
	}
	return c.name, c.mac, nil
}

func (c *fakeClient) StartPairing(context.Context) error { return nil }

func (c *fakeClient) FinishPairing(_ context.Context, pin string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pins = append(c.pins, pin)
	return nil
}

func (c *fakeClient) Connect(context.Context) error {
	c.mu.Lock()
	c.connectCalls++
	var err error
	if len(c.connectErrs) > 0 {
		err = c.connectErrs[0]
		c.connectErrs = c.connectErrs[1:]
	}
	entered, release := c.connectEntered, c.connectRelease
	c.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
		<-release
	}
	return err
}

func (c *fakeClient) Disconnect() {}

func (c *fakeClient) KeepReconnecting(func()) {}

func (c *fakeClient) SendKey(keycode string, direction remote.KeyDirection) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.keys = append(c.keys, keyEvent{keycode, direction})
	return nil
}

func (c *fakeClient) LaunchApp(target string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.launches = append(c.launches, target)
	return nil
}

func (c *fakeClient) IsOn() (bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.on, c.onKnown
}

func (c *fakeClient) setOn(on, known bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.on = on
	c.onKnown = known
}

func (c *fakeClient) CurrentApp() string { return "" }

func (c *fakeClient) DeviceInfo() *remote.DeviceInfo {
	return &remote.DeviceInfo{Manufacturer: "TestCo", Model: "TV-1"}
}

func (c *fakeClient) Host() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.host
}

func (c *fakeClient) SetHost(address string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.host = address
}

func (c *fakeClient) WriteOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeOpen
}

func (c *fakeClient) setWriteOpen(open bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeOpen = open
}

func (c *fakeClient) sentKeys() []keyEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]keyEvent(nil), c.keys...)
}

func (c *fakeClient) connects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectCalls
}

func (c *fakeClient) OnPowerChanged(fn func(bool))           { c.onPower = fn }
func (c *fakeClient) OnCurrentApp(fn func(string))           { c.onApp = fn }
func (c *fakeClient) OnVolume(fn func(remote.VolumeInfo))    { c.onVolume = fn }
func (c *fakeClient) OnAvailability(fn func(available bool)) { c.onAvail = fn }

// fakeScanner serves a fixed candidate list.
type fakeScanner struct {
	mu         sync.Mutex
	candidates []discovery.Candidate
	scans      int
}

func (s *fakeScanner) Scan(context.Context) ([]discovery.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scans++
	return append([]discovery.Candidate(nil), s.candidates...), nil
}

func (s *fakeScanner) Resolve(context.Context, string) (string, error) { return "", nil }

func (s *fakeScanner) scanCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scans
}

// fakeCompanion records control calls.
type fakeCompanion struct {
	mu        sync.Mutex
	connected bool
	ups       []int
	downs     []int
	volumes   []int
	seeks     []float64
	handler   companion.StatusHandler
}

func (c *fakeCompanion) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
	return nil
}

func (c *fakeCompanion) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}

func (c *fakeCompanion) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeCompanion) Seek(int) error { return nil }

func (c *fakeCompanion) SeekTo(seconds float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seeks = append(c.seeks, seconds)
	return nil
}

func (c *fakeCompanion) SetVolume(percent int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.volumes = append(c.volumes, percent)
	return nil
}

func (c *fakeCompanion) SetMuted(bool) error { return nil }

func (c *fakeCompanion) VolumeUp(step int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ups = append(c.ups, step)
	return nil
}

func (c *fakeCompanion) VolumeDown(step int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.downs = append(c.downs, step)
	return nil
}

func (c *fakeCompanion) OnStatus(handler companion.StatusHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// eventRecorder collects session events across goroutines.
type eventRecorder struct {
	mu     sync.Mutex
	events []session.Event
}

func (r *eventRecorder) handle(event session.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) all() []session.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]session.Event(nil), r.events...)
}

func (r *eventRecorder) find(kind session.EventKind) (session.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Kind == kind {
			return e, true
		}
	}
	return session.Event{}, false
}
