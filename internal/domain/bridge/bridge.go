// Package bridge coordinates the configured device sessions: it builds a
// session per stored device record, routes commands by device identifier,
// and feeds session events back into configuration (address drift, auth
// flags) before forwarding them to the hub transport.
package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hubgrid/androidtv-bridge/internal/companion"
	"github.com/hubgrid/androidtv-bridge/internal/domain/fusion"
	"github.com/hubgrid/androidtv-bridge/internal/domain/profiles"
	"github.com/hubgrid/androidtv-bridge/internal/domain/session"
	"github.com/hubgrid/androidtv-bridge/internal/domain/setup"
	"github.com/hubgrid/androidtv-bridge/internal/infra/adb"
	"github.com/hubgrid/androidtv-bridge/internal/infra/config"
	"github.com/hubgrid/androidtv-bridge/internal/infra/discovery"
	"github.com/hubgrid/androidtv-bridge/internal/infra/metadata"
	"github.com/hubgrid/androidtv-bridge/internal/remote"
	"github.com/hubgrid/androidtv-bridge/internal/remote/atvwire"
)

// clientName identifies the bridge to devices during pairing.
const clientName = "hubgrid-androidtv-bridge"

// adbFetchTimeout bounds the optional sideloaded-app listing at startup.
const adbFetchTimeout = 45 * time.Second

// Bridge is the root coordinator.
type Bridge struct {
	mu       sync.Mutex
	sessions map[string]*session.Session

	store    *config.Store
	scanner  discovery.Scanner
	registry *profiles.Registry
	metadata *metadata.Service
	setupMgr *setup.Manager

	handler session.Handler
}

// New creates the bridge and its configuration store under dataPath.
func New(dataPath string, scanner discovery.Scanner, registry *profiles.Registry, meta *metadata.Service) (*Bridge, error) {
	b := &Bridge{
		sessions: make(map[string]*session.Session),
		scanner:  scanner,
		registry: registry,
		metadata: meta,
	}

	store, err := config.NewStore(dataPath, b.onDeviceAdded, b.onDeviceRemoved)
	if err != nil {
		return nil, err
	}
	b.store = store
	b.setupMgr = setup.NewManager(scanner, store, func(host string) remote.Client {
		return atvwire.New(host, clientName, store.DefaultCertFile(), store.DefaultKeyFile())
	})
	return b, nil
}

// OnEvent sets the consumer for session events. Must be called before Start.
func (b *Bridge) OnEvent(handler session.Handler) {
	b.handler = handler
}

// Store exposes the configuration store to the transport layer.
func (b *Bridge) Store() *config.Store { return b.store }

// Setup exposes the onboarding flow manager.
func (b *Bridge) Setup() *setup.Manager { return b.setupMgr }

// Start builds a session for every configured device and starts connecting.
// Records persisted by older versions may lack manufacturer/model; those are
// backfilled from the device once its session connects.
func (b *Bridge) Start() {
	if b.store.MigrationRequired() {
		log.Info().Msg("Configuration migration pending, backfilling device info on connect")
	}
	for _, record := range b.store.All() {
		b.startSession(record)
	}
}

// Stop closes every session.
func (b *Bridge) Stop() {
	b.mu.Lock()
	sessions := make([]*session.Session, 0, len(b.sessions))
	for _, s := range b.sessions {
		sessions = append(sessions, s)
	}
	b.sessions = make(map[string]*session.Session)
	b.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

// Session returns the session for a device identifier.
func (b *Bridge) Session(deviceID string) (*session.Session, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[deviceID]
	return s, ok
}

// Devices returns the identifiers of all running sessions.
func (b *Bridge) Devices() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.sessions))
	for id := range b.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (b *Bridge) startSession(record config.DeviceRecord) {
	b.mu.Lock()
	if _, exists := b.sessions[record.ID]; exists {
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	client := atvwire.New(record.Address, clientName,
		b.store.CertFile(record.ID), b.store.KeyFile(record.ID))

	var comp companion.Session
	if record.UseCompanion {
		comp = companion.NewCastSession(record.Address)
	}

	var resolver fusion.MetadataResolver
	if record.UseExternalMetadata && b.metadata != nil {
		resolver = metadataResolver{svc: b.metadata}
	}

	profile := b.registry.Match(record.Manufacturer, record.Model, record.UseCompanion)

	sess := session.New(session.Config{
		ID:                 record.ID,
		Name:               record.Name,
		Address:            record.Address,
		Client:             client,
		Scanner:            b.scanner,
		Profile:            &profile,
		Companion:          comp,
		Metadata:           resolver,
		UseCompanionVolume: record.UseCompanionVolume,
		VolumeStep:         record.VolumeStep,
		Handler:            b.handleEvent,
	})

	b.mu.Lock()
	b.sessions[record.ID] = sess
	b.mu.Unlock()

	go func() {
		sess.Init(context.Background(), 0)
		sess.Connect(context.Background(), 0)
	}()

	if record.UseADBAppList {
		go b.loadSideloadedApps(sess, record)
	}

	log.Info().Str("device", record.ID).Str("name", record.Name).Msg("Device session started")
}

// loadSideloadedApps merges the device's enabled third-party packages into
// its source catalog. Best effort: ADB may be disabled or unauthorized.
func (b *Bridge) loadSideloadedApps(sess *session.Session, record config.DeviceRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), adbFetchTimeout)
	defer cancel()

	client := adb.NewClient(record.Address)
	if err := client.Connect(ctx); err != nil {
		log.Info().Err(err).Str("device", record.ID).Msg("ADB unavailable, skipping app list")
		return
	}
	defer client.Disconnect(ctx)

	if !client.IsAuthorized(ctx) {
		log.Warn().Str("device", record.ID).Msg("ADB connection not authorized on device")
		return
	}

	installed, err := client.InstalledApps(ctx)
	if err != nil {
		log.Warn().Err(err).Str("device", record.ID).Msg("ADB app listing failed")
		return
	}

	sources := make([]string, 0, len(installed))
	for _, app := range installed {
		sources = append(sources, app.PackageID)
	}
	sess.SetExtraSources(sources)
	log.Info().Str("device", record.ID).Int("apps", len(sources)).Msg("Merged sideloaded apps into source list")
}

// handleEvent updates persisted state from lifecycle events, then forwards.
func (b *Bridge) handleEvent(event session.Event) {
	switch event.Kind {
	case session.EventAddressChanged:
		if err := b.store.UpdateAddress(event.DeviceID, event.Address); err != nil {
			log.Warn().Err(err).Str("device", event.DeviceID).Msg("Failed to persist new address")
		}
	case session.EventAuthError:
		if err := b.store.SetAuthError(event.DeviceID, true); err != nil {
			log.Warn().Err(err).Str("device", event.DeviceID).Msg("Failed to persist auth flag")
		}
	case session.EventConnected:
		if err := b.store.SetAuthError(event.DeviceID, false); err != nil {
			log.Debug().Err(err).Str("device", event.DeviceID).Msg("Failed to clear auth flag")
		}
		b.backfillDeviceInfo(event.DeviceID)
	}
	if b.handler != nil {
		b.handler(event)
	}
}

// backfillDeviceInfo persists manufacturer/model for records that were
// written before the device ever reported them, so profile matching works
// after the next restart.
func (b *Bridge) backfillDeviceInfo(deviceID string) {
	record, ok := b.store.Get(deviceID)
	if !ok || record.Manufacturer != "" {
		return
	}
	sess, ok := b.Session(deviceID)
	if !ok {
		return
	}
	info := sess.DeviceInfo()
	if info == nil || info.Manufacturer == "" {
		return
	}
	record.Manufacturer = info.Manufacturer
	record.Model = info.Model
	if err := b.store.Update(record); err != nil {
		log.Warn().Err(err).Str("device", deviceID).Msg("Failed to persist device info")
		return
	}
	log.Info().Str("device", deviceID).Str("manufacturer", info.Manufacturer).
		Str("model", info.Model).Msg("Backfilled device info")
}

func (b *Bridge) onDeviceAdded(record *config.DeviceRecord) {
	if record == nil {
		return
	}
	b.startSession(*record)
}

func (b *Bridge) onDeviceRemoved(record *config.DeviceRecord) {
	if record == nil {
		// Whole configuration cleared.
		b.Stop()
		return
	}
	b.mu.Lock()
	sess, ok := b.sessions[record.ID]
	delete(b.sessions, record.ID)
	b.mu.Unlock()
	if ok {
		sess.Close()
	}
}

// metadataResolver adapts the metadata service to the fusion boundary.
type metadataResolver struct {
	svc *metadata.Service
}

func (r metadataResolver) Resolve(ctx context.Context, packageID string) (string, string) {
	meta := r.svc.GetAppMetadata(ctx, packageID)
	return meta.Name, meta.Icon
}
