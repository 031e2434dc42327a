// Package setup drives the device onboarding flow: discovery, device
// selection, pairing with the on-screen PIN, and persisting the resulting
// device record. Every flow holds its own context object, so concurrent
// setup attempts cannot corrupt each other.
package setup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hubgrid/androidtv-bridge/internal/domain/session"
	"github.com/hubgrid/androidtv-bridge/internal/infra/config"
	"github.com/hubgrid/androidtv-bridge/internal/infra/discovery"
	"github.com/hubgrid/androidtv-bridge/internal/remote"
)

// Step is the wizard position of one flow.
type Step int

const (
	StepSelectDevice Step = iota
	StepEnterPIN
	StepDone
)

// flowTTL expires abandoned flows.
const flowTTL = 10 * time.Minute

// initBudget bounds the identity resolution of a selected device.
const initBudget = 20 * time.Second

var (
	// ErrFlowNotFound is returned for unknown or expired flow identifiers.
	ErrFlowNotFound = errors.New("setup flow not found")
	// ErrWrongStep is returned when an operation does not match the flow's
	// current step.
	ErrWrongStep = errors.New("operation does not match setup step")
	// ErrDeviceNotFound is returned when a selection matches no candidate.
	ErrDeviceNotFound = errors.New("selected device not found")
)

// Options are the user-chosen capability flags for a new device.
type Options struct {
	Name                string
	UseExternalMetadata bool
	UseCompanion        bool
	UseCompanionVolume  bool
	UseADBAppList       bool
	VolumeStep          int
}

// Flow is one in-progress onboarding attempt.
type Flow struct {
	ID         string
	Step       Step
	Candidates []discovery.Candidate

	sess    *session.Session
	client  remote.Client
	address string
	options Options
	started time.Time
}

// ClientFactory builds a remote client for a host using the transient
// default certificate pair.
type ClientFactory func(host string) remote.Client

// Manager owns the active setup flows.
type Manager struct {
	mu    sync.Mutex
	flows map[string]*Flow

	scanner   discovery.Scanner
	store     *config.Store
	newClient ClientFactory
}

// NewManager creates a setup manager.
func NewManager(scanner discovery.Scanner, store *config.Store, factory ClientFactory) *Manager {
	return &Manager{
		flows:     make(map[string]*Flow),
		scanner:   scanner,
		store:     store,
		newClient: factory,
	}
}

// Begin scans the network and opens a new flow offering the candidates.
func (m *Manager) Begin(ctx context.Context) (*Flow, error) {
	candidates, err := m.scanner.Scan(ctx)
	if err != nil && len(candidates) == 0 {
		return nil, fmt.Errorf("device discovery failed: %w", err)
	}

	flow := &Flow{
		ID:         uuid.NewString(),
		Step:       StepSelectDevice,
		Candidates: candidates,
		started:    time.Now(),
	}

	m.mu.Lock()
	m.expireLocked()
	m.flows[flow.ID] = flow
	m.mu.Unlock()

	log.Info().Str("flow", flow.ID).Int("candidates", len(candidates)).Msg("Setup flow started")
	return flow, nil
}

// SelectDevice picks a candidate (by address or name) or a manually entered
// address, resolves its identity and starts pairing. On success the flow
// advances to PIN entry and the TV shows its code.
func (m *Manager) SelectDevice(ctx context.Context, flowID, selection string, opts Options) (*Flow, error) {
	flow, err := m.flow(flowID, StepSelectDevice)
	if err != nil {
		return nil, err
	}

	address := m.resolveSelection(flow, selection)
	if address == "" {
		return nil, ErrDeviceNotFound
	}

	client := m.newClient(address)
	sess := session.New(session.Config{
		Name:    opts.Name,
		Address: address,
		Client:  client,
		Scanner: m.scanner,
	})

	if ok := sess.Init(ctx, initBudget); !ok {
		sess.Close()
		return nil, fmt.Errorf("device at %s did not answer identity query", address)
	}

	if status := sess.StartPairing(ctx); status != session.StatusOK {
		sess.Close()
		return nil, fmt.Errorf("pairing start failed: %s", status)
	}

	m.mu.Lock()
	flow.sess = sess
	flow.client = client
	flow.address = address
	flow.options = opts
	flow.Step = StepEnterPIN
	m.mu.Unlock()

	return flow, nil
}

// EnterPIN completes pairing with the code shown on the TV, migrates the
// transient certificate pair to the device identifier and persists the
// device record. The returned record is already stored.
func (m *Manager) EnterPIN(ctx context.Context, flowID, pin string) (config.DeviceRecord, error) {
	flow, err := m.flow(flowID, StepEnterPIN)
	if err != nil {
		return config.DeviceRecord{}, err
	}

	if status := flow.sess.FinishPairing(ctx, pin); status != session.StatusOK {
		if status == session.StatusUnauthorized {
			return config.DeviceRecord{}, fmt.Errorf("PIN rejected by device")
		}
		return config.DeviceRecord{}, fmt.Errorf("pairing failed: %s", status)
	}

	id, err := flow.sess.Identifier()
	if err != nil {
		return config.DeviceRecord{}, err
	}

	if err := m.store.AssignDefaultCerts(id, false); err != nil {
		return config.DeviceRecord{}, fmt.Errorf("certificate migration: %w", err)
	}

	record := config.DeviceRecord{
		ID:                  id,
		Name:                flow.sess.Name(),
		Address:             flow.address,
		UseExternalMetadata: flow.options.UseExternalMetadata,
		UseCompanion:        flow.options.UseCompanion,
		UseCompanionVolume:  flow.options.UseCompanionVolume,
		UseADBAppList:       flow.options.UseADBAppList,
		VolumeStep:          flow.options.VolumeStep,
	}
	if info := flow.sess.DeviceInfo(); info != nil {
		record.Manufacturer = info.Manufacturer
		record.Model = info.Model
	}

	// The flow's session used the transient certificates; the bridge builds
	// the real session from the stored record.
	flow.sess.Close()

	if err := m.store.AddOrUpdate(record); err != nil {
		return config.DeviceRecord{}, fmt.Errorf("store device record: %w", err)
	}

	m.mu.Lock()
	flow.Step = StepDone
	delete(m.flows, flow.ID)
	m.mu.Unlock()

	log.Info().Str("device", record.ID).Str("name", record.Name).Msg("Device onboarded")
	return record, nil
}

// Cancel aborts a flow and releases its resources.
func (m *Manager) Cancel(flowID string) {
	m.mu.Lock()
	flow, ok := m.flows[flowID]
	delete(m.flows, flowID)
	m.mu.Unlock()

	if ok && flow.sess != nil {
		flow.sess.Close()
	}
}

func (m *Manager) flow(flowID string, step Step) (*Flow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	flow, ok := m.flows[flowID]
	if !ok {
		return nil, ErrFlowNotFound
	}
	if flow.Step != step {
		return nil, ErrWrongStep
	}
	return flow, nil
}

// resolveSelection matches a selection against the flow's candidates by
// address, name or label; anything unmatched that looks like an address is
// treated as a manual entry.
func (m *Manager) resolveSelection(flow *Flow, selection string) string {
	selection = strings.TrimSpace(selection)
	for _, c := range flow.Candidates {
		if c.Address == selection || c.Name == selection || c.Label == selection {
			return c.Address
		}
	}
	if strings.Count(selection, ".") == 3 {
		return selection
	}
	return ""
}

func (m *Manager) expireLocked() {
	for id, flow := range m.flows {
		if time.Since(flow.started) > flowTTL {
			if flow.sess != nil {
				flow.sess.Close()
			}
			delete(m.flows, id)
			log.Debug().Str("flow", id).Msg("Expired abandoned setup flow")
		}
	}
}
