// Package session owns the connection lifecycle of one Android TV: pairing,
// the connect/reconnect loop with exponential backoff and address-drift
// recovery, command dispatch, and the ingestion of raw device callbacks
// into fused, diffed attribute updates.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hubgrid/androidtv-bridge/internal/companion"
	"github.com/hubgrid/androidtv-bridge/internal/domain/fusion"
	"github.com/hubgrid/androidtv-bridge/internal/domain/profiles"
	"github.com/hubgrid/androidtv-bridge/internal/domain/publish"
	"github.com/hubgrid/androidtv-bridge/internal/infra/discovery"
	"github.com/hubgrid/androidtv-bridge/internal/remote"
)

const (
	// perAttemptTimeout bounds every single network attempt, independent of
	// the caller's overall budget. A device showing its pairing dialog can
	// otherwise hang a name/MAC query indefinitely.
	perAttemptTimeout = 10 * time.Second

	backoffFloor  = 500 * time.Millisecond
	backoffFactor = 1.5
	backoffCap    = 30 * time.Second
	// backoffMin is the lower bound after deducting the time already spent
	// in the failed attempt.
	backoffMin = 100 * time.Millisecond

	// rediscoverEvery makes every Nth consecutive failure run a discovery
	// scan instead of sleeping, to catch DHCP address drift.
	rediscoverEvery = 10
)

// ErrNotInitialized is returned when the identifier is read before a
// successful Init resolved it from the device MAC.
var ErrNotInitialized = errors.New("session not initialized")

// Config assembles the collaborators of one device session.
type Config struct {
	// ID may be empty for never-paired devices; Init resolves it.
	ID      string
	Name    string
	Address string

	Client  remote.Client
	Scanner discovery.Scanner
	// Profile is the matched command profile; nil means no profile is
	// configured, which makes every media-player command a server error.
	Profile *profiles.Profile
	// Companion is optional; nil disables companion features.
	Companion companion.Session
	Metadata  fusion.MetadataResolver

	UseCompanionVolume bool
	// VolumeStep is the percentage step for companion volume up/down.
	VolumeStep int

	Handler Handler
}

// Session drives one physical device.
type Session struct {
	mu    sync.Mutex
	state DeviceState

	id      string
	name    string
	address string

	client    remote.Client
	scanner   discovery.Scanner
	profile   *profiles.Profile
	companion companion.Session

	fusion    *fusion.Fusion
	publisher *publish.Publisher

	useCompanionVolume bool
	volumeStep         int

	connectionAttempts int
	reconnectDelay     time.Duration

	handler Handler
	queue   chan func()
	done    chan struct{}
	closed  sync.Once

	sleep func(context.Context, time.Duration)
}

// New creates a session and starts its event loop. Close releases it.
func New(cfg Config) *Session {
	fusionOpts := []fusion.Option{}
	if cfg.Metadata != nil {
		fusionOpts = append(fusionOpts, fusion.WithMetadata(cfg.Metadata))
	}
	if cfg.Companion != nil {
		fusionOpts = append(fusionOpts, fusion.WithCompanion())
	}

	volumeStep := cfg.VolumeStep
	if volumeStep <= 0 || volumeStep > 100 {
		volumeStep = 10
	}

	s := &Session{
		state:              StateIdle,
		id:                 cfg.ID,
		name:               cfg.Name,
		address:            cfg.Address,
		client:             cfg.Client,
		scanner:            cfg.Scanner,
		profile:            cfg.Profile,
		companion:          cfg.Companion,
		fusion:             fusion.New(fusionOpts...),
		publisher:          publish.New(),
		useCompanionVolume: cfg.UseCompanionVolume,
		volumeStep:         volumeStep,
		handler:            cfg.Handler,
		queue:              make(chan func(), eventQueueSize),
		done:               make(chan struct{}),
		reconnectDelay:     backoffFloor,
		sleep:              sleepContext,
	}

	s.client.OnPowerChanged(s.onPowerChanged)
	s.client.OnCurrentApp(s.onCurrentApp)
	s.client.OnVolume(s.onVolume)
	s.client.OnAvailability(s.onAvailability)
	if s.companion != nil {
		s.companion.OnStatus(s.onCompanionStatus)
	}

	go s.run()
	return s
}

// Close stops the event loop and tears down all connections.
func (s *Session) Close() {
	s.Disconnect()
	s.closed.Do(func() { close(s.done) })
}

// Identifier returns the stable device identifier. It errors until a
// successful Init has derived it from the hardware MAC.
func (s *Session) Identifier() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.id == "" {
		return "", ErrNotInitialized
	}
	return s.id, nil
}

// Name returns the device name, possibly empty before Init.
func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// Address returns the current connection target.
func (s *Session) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address
}

// State returns the current lifecycle state.
func (s *Session) State() DeviceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// DeviceInfo returns manufacturer/model as reported by the device, nil
// before the first connect.
func (s *Session) DeviceInfo() *remote.DeviceInfo {
	return s.client.DeviceInfo()
}

// SourceList returns the launchable source catalog of this session.
func (s *Session) SourceList() []string {
	return s.fusion.SourceList()
}

// SetExtraSources merges sideloaded apps into the source catalog and
// republishes the source list. Marshalled onto the event loop: fusion state
// is only ever touched there.
func (s *Session) SetExtraSources(sources []string) {
	s.enqueue(func() {
		s.fusion.SetExtraSources(sources)
		s.publish(fusion.Attributes{fusion.KeySourceList: s.fusion.SourceList()}, false)
	})
}

// Init resolves the device identity. It is idempotent while busy: a second
// call during an in-flight Init or Connect returns true immediately. The
// identifier is derived from the hardware MAC with colons stripped and is
// immutable afterwards; the device-reported name is adopted only when no
// name was configured. overallTimeout <= 0 means no budget.
func (s *Session) Init(ctx context.Context, overallTimeout time.Duration) bool {
	s.mu.Lock()
	if s.state.busy() {
		s.mu.Unlock()
		return true
	}
	s.setStateLocked(StateInitializing)
	s.mu.Unlock()

	if _, err := s.client.GenerateCertIfMissing(); err != nil {
		log.Error().Err(err).Str("device", s.logID()).Msg("Certificate generation failed")
		s.setState(StateError)
		return false
	}

	start := time.Now()
	for {
		attemptStart := time.Now()
		actx, cancel := context.WithTimeout(ctx, perAttemptTimeout)
		name, mac, err := s.client.GetNameAndMAC(actx)
		cancel()

		if err == nil {
			s.mu.Lock()
			if s.name == "" {
				s.name = name
			}
			if s.id == "" {
				s.id = strings.ReplaceAll(mac, ":", "")
			}
			s.resetBackoffLocked()
			s.setStateLocked(StateInitialized)
			s.mu.Unlock()
			log.Info().Str("device", s.logID()).Str("name", name).Msg("Device initialized")
			return true
		}

		switch remote.Kind(err) {
		case remote.KindAuth:
			s.setState(StateAuthError)
			return false
		case remote.KindTransient:
			if budgetExhausted(start, overallTimeout) || ctx.Err() != nil {
				s.setState(StateTimeout)
				return false
			}
			s.handleConnectionFailure(ctx, time.Since(attemptStart), err)
		default:
			log.Error().Err(err).Str("device", s.logID()).Msg("Unexpected error during init")
			s.setState(StateError)
			return false
		}
	}
}

// StartPairing begins the pairing handshake.
func (s *Session) StartPairing(ctx context.Context) Status {
	s.setState(StateStartPairing)

	actx, cancel := context.WithTimeout(ctx, perAttemptTimeout)
	defer cancel()
	err := s.client.StartPairing(actx)
	if err == nil {
		s.setState(StatePairingStarted)
		return StatusOK
	}

	log.Warn().Err(err).Str("device", s.logID()).Msg("Pairing start failed")
	switch remote.Kind(err) {
	case remote.KindAuth:
		s.setState(StateAuthError)
		return StatusUnauthorized
	case remote.KindTransient:
		s.setState(StatePairingError)
		return StatusServiceUnavailable
	default:
		s.setState(StatePairingError)
		return StatusServerError
	}
}

// FinishPairing completes pairing with the PIN shown on the TV.
func (s *Session) FinishPairing(ctx context.Context, pin string) Status {
	s.setState(StateFinishPairing)

	actx, cancel := context.WithTimeout(ctx, perAttemptTimeout)
	defer cancel()
	err := s.client.FinishPairing(actx, pin)
	if err == nil {
		s.setState(StateFinishedPairing)
		return StatusOK
	}

	log.Warn().Err(err).Str("device", s.logID()).Msg("Pairing completion failed")
	switch remote.Kind(err) {
	case remote.KindAuth:
		s.setState(StateAuthError)
		return StatusUnauthorized
	case remote.KindTransient:
		s.setState(StatePairingError)
		return StatusServiceUnavailable
	default:
		s.setState(StatePairingError)
		return StatusServerError
	}
}

// Connect establishes the remote session, retrying transient failures with
// backoff until success or the overall budget runs out. It is single-flight
// guarded: a concurrent call while Connecting or Initializing returns true
// without a second transport attempt. overallTimeout <= 0 means retry
// indefinitely.
func (s *Session) Connect(ctx context.Context, overallTimeout time.Duration) bool {
	s.mu.Lock()
	if s.state.busy() {
		s.mu.Unlock()
		return true
	}
	if s.state == StateConnected && s.client.WriteOpen() {
		s.mu.Unlock()
		// Re-affirm for subscribers that may have missed the first event.
		s.emit(Event{Kind: EventConnected})
		return true
	}
	s.setStateLocked(StateConnecting)
	s.mu.Unlock()

	s.emit(Event{Kind: EventConnecting})

	// Start from a clean transport.
	s.client.Disconnect()

	start := time.Now()
	for {
		attemptStart := time.Now()
		actx, cancel := context.WithTimeout(ctx, perAttemptTimeout)
		err := s.client.Connect(actx)
		cancel()

		if err == nil {
			s.onConnected()
			return true
		}

		switch remote.Kind(err) {
		case remote.KindAuth:
			log.Warn().Str("device", s.logID()).Msg("Authentication rejected, pairing required")
			s.setState(StateAuthError)
			s.emit(Event{Kind: EventAuthError})
			return false
		case remote.KindTransient:
			if budgetExhausted(start, overallTimeout) || ctx.Err() != nil {
				s.setState(StateTimeout)
				return false
			}
			s.handleConnectionFailure(ctx, time.Since(attemptStart), err)
		default:
			log.Error().Err(err).Str("device", s.logID()).Msg("Unexpected error during connect")
			s.setState(StateError)
			return false
		}
	}
}

func (s *Session) onConnected() {
	s.mu.Lock()
	s.resetBackoffLocked()
	s.setStateLocked(StateConnected)
	s.mu.Unlock()

	// The client supervises drops from here on; only auth failures
	// discovered during its internal retries come back to us.
	s.client.KeepReconnecting(func() {
		s.enqueue(func() {
			s.setState(StateAuthError)
			s.emit(Event{Kind: EventAuthError})
		})
	})

	log.Info().Str("device", s.logID()).Str("address", s.Address()).Msg("Device connected")
	s.emit(Event{Kind: EventConnected})

	// Publish the full source catalog once per connect.
	s.enqueue(func() {
		s.publish(fusion.Attributes{fusion.KeySourceList: s.fusion.SourceList()}, false)
	})

	if s.companion != nil {
		go s.connectCompanion()
	}
}

// connectCompanion is best effort: the companion endpoint is frequently
// unreachable while the TV is in standby.
func (s *Session) connectCompanion() {
	if err := s.companion.Connect(); err != nil {
		log.Info().Err(err).Str("device", s.logID()).Msg("Companion connection unavailable")
	}
}

// Disconnect resets backoff, tears down the transport and companion session
// and emits a disconnected event. Safe to call in any state.
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.resetBackoffLocked()
	s.setStateLocked(StateDisconnected)
	s.mu.Unlock()

	s.client.Disconnect()
	if s.companion != nil {
		s.companion.Close()
	}
	s.emit(Event{Kind: EventDisconnected})
}

// handleConnectionFailure advances the backoff state after a failed attempt.
// The sleep deducts the time already spent in the attempt so the wall-clock
// retry cadence stays roughly constant. Every rediscoverEvery'th consecutive
// failure runs a discovery scan instead of sleeping: a device that moved to
// a new DHCP lease is found by name and the session retargets it.
func (s *Session) handleConnectionFailure(ctx context.Context, elapsed time.Duration, err error) {
	s.mu.Lock()
	s.connectionAttempts++
	attempts := s.connectionAttempts
	next := time.Duration(float64(s.reconnectDelay) * backoffFactor)
	if next > backoffCap {
		next = backoffCap
	}
	s.reconnectDelay = next
	s.mu.Unlock()

	log.Debug().Err(err).Str("device", s.logID()).Int("attempts", attempts).
		Dur("delay", next).Msg("Connection attempt failed")

	if attempts%rediscoverEvery == 0 && s.scanner != nil {
		s.rediscover(ctx)
		return
	}

	delay := next - elapsed
	if delay < backoffMin {
		delay = backoffMin
	}
	s.sleep(ctx, delay)
}

// rediscover scans for the device by name and retargets the session when
// its address drifted. Failures are logged and swallowed: a broken scan
// must not kill the reconnect loop.
func (s *Session) rediscover(ctx context.Context) {
	s.mu.Lock()
	name := s.name
	current := s.address
	s.mu.Unlock()

	candidates, err := s.scanner.Scan(ctx)
	if err != nil {
		log.Warn().Err(err).Str("device", s.logID()).Msg("Rediscovery scan failed")
		return
	}
	for _, c := range candidates {
		if c.Name != name || c.Address == current {
			continue
		}
		log.Info().Str("device", s.logID()).Str("old", current).Str("new", c.Address).
			Msg("Device address changed")
		s.mu.Lock()
		s.address = c.Address
		s.mu.Unlock()
		s.client.SetHost(c.Address)
		s.emit(Event{Kind: EventAddressChanged, Address: c.Address})
		return
	}
}

func (s *Session) setState(state DeviceState) {
	s.mu.Lock()
	s.setStateLocked(state)
	s.mu.Unlock()
}

func (s *Session) setStateLocked(state DeviceState) {
	if s.state == state {
		return
	}
	log.Debug().Str("device", s.logIDLocked()).Stringer("from", s.state).Stringer("to", state).
		Msg("State transition")
	s.state = state
}

func (s *Session) resetBackoffLocked() {
	s.connectionAttempts = 0
	s.reconnectDelay = backoffFloor
}

func (s *Session) emit(event Event) {
	if s.handler == nil {
		return
	}
	s.mu.Lock()
	event.DeviceID = s.id
	s.mu.Unlock()
	s.handler(event)
}

// publish diffs an update and forwards it when non-empty. Must only run on
// the session event loop.
func (s *Session) publish(update fusion.Attributes, live bool) {
	diff := s.publisher.Apply(update, live)
	if len(diff) == 0 {
		return
	}
	s.emit(Event{Kind: EventUpdate, Attributes: diff})
}

// Raw device callbacks. They arrive on the client's goroutines and are
// marshalled onto the session loop before touching fusion state.

func (s *Session) onPowerChanged(isOn bool) {
	s.enqueue(func() {
		if isOn && s.companion != nil && !s.companion.Connected() {
			go s.connectCompanion()
		}
		s.publish(s.fusion.ApplyPower(context.Background(), isOn), true)
	})
}

func (s *Session) onCurrentApp(app string) {
	s.enqueue(func() {
		s.publish(s.fusion.ApplyCurrentApp(context.Background(), app), true)
	})
}

func (s *Session) onVolume(info remote.VolumeInfo) {
	s.enqueue(func() {
		s.publish(s.fusion.ApplyVolume(info.Level, info.Muted), true)
	})
}

// onAvailability mirrors the remote client's supervised reachability into
// the session lifecycle: a drop parks the session in Connecting and tells the
// hub the device is gone, recovery restores Connected before re-deriving the
// power state.
func (s *Session) onAvailability(available bool) {
	s.enqueue(func() {
		if !available {
			s.setState(StateConnecting)
			s.publish(fusion.Attributes{fusion.KeyState: fusion.StateUnavailable}, false)
			s.emit(Event{Kind: EventDisconnected})
			return
		}
		s.setState(StateConnected)
		s.emit(Event{Kind: EventConnected})
		on, known := s.client.IsOn()
		s.publish(s.fusion.ApplyPower(context.Background(), !known || on), true)
	})
}

func (s *Session) onCompanionStatus(status companion.Status) {
	s.enqueue(func() {
		s.publish(s.fusion.ApplyCompanionStatus(status), true)
	})
}

func (s *Session) logID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logIDLocked()
}

func (s *Session) logIDLocked() string {
	if s.id != "" {
		return s.id
	}
	return s.address
}

func budgetExhausted(start time.Time, budget time.Duration) bool {
	return budget > 0 && time.Since(start) >= budget
}

func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
