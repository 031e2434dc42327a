// Package publish turns candidate attribute updates into minimal,
// change-only diffs against the last published attributes of a device.
package publish

import (
	"reflect"
	"time"

	"github.com/hubgrid/androidtv-bridge/internal/domain/fusion"
)

// Publisher tracks the last published attributes for one device and computes
// change-only diffs for new updates.
type Publisher struct {
	last fusion.Attributes
	now  func() time.Time
}

// New creates a Publisher with an empty attribute history.
func New() *Publisher {
	return &Publisher{
		last: fusion.Attributes{},
		now:  time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (p *Publisher) WithClock(now func() time.Time) *Publisher {
	p.now = now
	return p
}

// Last returns the last published value for a key.
func (p *Publisher) Last(key string) (any, bool) {
	v, ok := p.last[key]
	return v, ok
}

// Apply diffs a candidate update against the published history and records
// the result. Keys with unchanged values are dropped. live marks updates
// triggered by the device itself: if such an update carries no state key
// while the published state is UNAVAILABLE or UNKNOWN, a neutral ON state
// is forced, since a device that sends updates cannot be unavailable.
// Position updates are stamped with the wall-clock time they were taken.
// The returned diff is empty when nothing changed.
func (p *Publisher) Apply(update fusion.Attributes, live bool) fusion.Attributes {
	diff := fusion.Attributes{}
	for key, value := range update {
		prev, ok := p.last[key]
		if ok && equal(prev, value) {
			continue
		}
		diff[key] = value
	}

	if live && len(diff) > 0 {
		if _, hasState := diff[fusion.KeyState]; !hasState && p.stateDowngraded() {
			diff[fusion.KeyState] = fusion.StateOn
		}
	}

	if _, ok := diff[fusion.KeyPosition]; ok {
		diff[fusion.KeyPositionUpdatedAt] = p.now().UTC().Format(time.RFC3339)
	}

	for key, value := range diff {
		p.last[key] = value
	}
	return diff
}

// Reset forgets the published history, forcing the next update to emit
// every attribute. Used after reconnects so the hub gets a full snapshot.
func (p *Publisher) Reset() {
	p.last = fusion.Attributes{}
}

func (p *Publisher) stateDowngraded() bool {
	state, ok := p.last[fusion.KeyState]
	if !ok {
		return true
	}
	return state == fusion.StateUnavailable || state == fusion.StateUnknown
}

// equal compares attribute values. Slice values (source_list) make plain
// == unusable here.
func equal(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
