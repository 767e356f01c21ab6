package nexus

import (
	"fmt"
	"math/rand/v2"

	"github.com/scigolib/nexus/internal/tree"
)

// FakeEvents configures synthetic event data. Times are in nanoseconds.
type FakeEvents struct {
	EventsPerPulse int
	Pulses         int
	FrequencyHz    float64
	TOFMin         float64
	TOFMax         float64
	Seed           int64
}

func (fe FakeEvents) validate() error {
	switch {
	case fe.EventsPerPulse <= 0 || fe.Pulses <= 0:
		return fmt.Errorf("fake events: events per pulse and pulses must be positive")
	case fe.FrequencyHz <= 0:
		return fmt.Errorf("fake events: frequency must be positive")
	case fe.TOFMax <= fe.TOFMin || fe.TOFMin < 0:
		return fmt.Errorf("fake events: need 0 <= tof min < tof max")
	}
	return nil
}

// AddFakeEventData adds an event_data group to every detector of the
// instrument, with event ids drawn from the detector's own pixel ids, and
// links it into the entry as event_data_<detector>. The same seed gives
// the same events.
func (b *Builder) AddFakeEventData(fe FakeEvents) (int, error) {
	if err := fe.validate(); err != nil {
		return 0, err
	}
	if b.instrument == "" {
		return 0, fmt.Errorf("fake events: no instrument")
	}
	inst, err := b.group(b.instrument)
	if err != nil {
		return 0, err
	}

	seed := uint64(fe.Seed) //nolint:gosec // any bit pattern is a valid seed
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	added := 0
	for _, n := range inst.Children() {
		det, ok := n.(*tree.Group)
		if !ok || det.Class() != ClassDetector {
			continue
		}
		numbers, ok := det.Child("detector_number")
		if !ok {
			b.logger.Warn("detector has no detector_number, no events generated", "detector", det.Name)
			continue
		}
		ds, ok := numbers.(*tree.Dataset)
		if !ok {
			continue
		}
		ids, err := ds.Ints()
		if err != nil {
			return added, err
		}
		if len(ids) == 0 {
			continue
		}
		if err := b.addEvents(det.Name, ids, fe, rng); err != nil {
			return added, err
		}
		added++
	}
	b.logger.Info("generated fake event data", "detectors", added,
		"pulses", fe.Pulses, "events_per_pulse", fe.EventsPerPulse)
	return added, nil
}

func (b *Builder) addEvents(detector string, ids []int64, fe FakeEvents, rng *rand.Rand) error {
	p, err := b.AddNXGroup(b.instrument+"/"+detector, "event_data", ClassEventData)
	if err != nil {
		return err
	}

	period := uint64(1e9 / fe.FrequencyHz)
	pulses := uint64(fe.Pulses)           //nolint:gosec // validated positive
	perPulse := uint64(fe.EventsPerPulse) //nolint:gosec // validated positive
	total := pulses * perPulse

	timeZero := make([]uint64, pulses)
	index := make([]uint64, pulses)
	for i := range pulses {
		timeZero[i] = i * period
		index[i] = i * perPulse
	}

	eventIDs := make([]uint32, total)
	offsets := make([]uint64, total)
	span := fe.TOFMax - fe.TOFMin
	for i := range total {
		eventIDs[i] = uint32(ids[rng.IntN(len(ids))]) //nolint:gosec // detector ids are small and positive
		offsets[i] = uint64(fe.TOFMin + rng.Float64()*span)
	}

	for _, d := range []*tree.Dataset{
		tree.New("event_time_zero", timeZero).SetAttr("units", "ns"),
		tree.New("event_index", index),
		tree.New("event_id", eventIDs),
		tree.New("event_time_offset", offsets).SetAttr("units", "ns"),
	} {
		if _, err := b.AddDataset(p, d); err != nil {
			return err
		}
	}
	return b.AddLink(b.entry, "event_data_"+detector, p)
}
