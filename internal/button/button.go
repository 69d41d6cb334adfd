// internal/button/button.go
package button

import "go.uber.org/zap"

// ResourceType is the OCF resource type advertised for the button.
const ResourceType = "oic.r.button"

// ID is the fixed resource instance id.
const ID = "button"

// Snapshot is the externally visible state of the button.
// Constructed fresh per read; never mutated after construction.
type Snapshot struct {
	ResourceType string `json:"rt"`
	ID           string `json:"id"`
	Value        bool   `json:"value"`
}

// Reader yields one raw (untoggled) reading of the physical input.
type Reader interface {
	Read() (bool, error)
}

// state is the process-wide button state. There is exactly one instance
// per resource and only the owning Sampler touches it.
type state struct {
	sensor  bool // toggled value visible to observers
	prevRaw bool // last raw reading, used for edge detection
}

// Sampler decides the current toggle state from raw input.
// A nil Reader selects simulation mode: every sample flips the value.
type Sampler struct {
	src Reader
	st  state
	log *zap.SugaredLogger
}

func NewSampler(src Reader, log *zap.SugaredLogger) *Sampler {
	return &Sampler{src: src, log: log}
}

// Sample produces the current snapshot and whether the value changed.
//
// Hardware mode is edge-triggered: only a 0->1 transition of the raw
// reading toggles the value. The release edge is consumed but produces
// no change, and a held press does not re-toggle.
//
// Simulation mode flips the value on every call. No edge detection;
// useful on machines without a physical sensor.
func (s *Sampler) Sample() (Snapshot, bool) {
	if s.src == nil {
		s.st.sensor = !s.st.sensor
		return s.snapshot(), true
	}

	raw, err := s.src.Read()
	if err != nil {
		// A failed read is treated as "no edge seen".
		s.log.Warnw("input read failed", "err", err)
		return s.snapshot(), false
	}

	if raw == s.st.prevRaw {
		return s.snapshot(), false
	}
	s.st.prevRaw = raw

	if !raw {
		// Release edge: consumed, no toggle.
		return s.snapshot(), false
	}

	s.st.sensor = !s.st.sensor
	return s.snapshot(), true
}

// Current returns the present state without taking a sample.
func (s *Sampler) Current() Snapshot {
	return s.snapshot()
}

func (s *Sampler) snapshot() Snapshot {
	return Snapshot{ResourceType: ResourceType, ID: ID, Value: s.st.sensor}
}
