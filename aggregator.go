package mpegts

import "fmt"

// maxAggregatedPES caps a single PES's accumulated payload; a stream that
// breaches it is assumed corrupt and the queue is discarded.
const maxAggregatedPES = 16 << 20

// aggregator reassembles the partial PES fragments of one PID. It is a
// small state machine: when waitRAI is set it drops packets until the
// first random-access indicator, then accumulates fragments between
// unit-start packets.
type aggregator struct {
	waitRAI bool
	sawRAI  bool
	parts   []*partialPES
	size    int
}

func newAggregator(waitRAI bool) *aggregator {
	return &aggregator{waitRAI: waitRAI}
}

func (a *aggregator) reset() {
	a.parts = nil
	a.size = 0
}

// push feeds one packet. It may return a completed PES (when the packet's
// unit start finalises the previous one), an error, or both: a returned
// PES is valid even when the error concerns the newly started unit.
func (a *aggregator) push(pkt *Packet) (*PES, error) {
	if a.waitRAI && !a.sawRAI {
		if !pkt.RandomAccess {
			return nil, nil
		}
		a.sawRAI = true
	}

	if !pkt.PUSI {
		// A fragment with no unit in progress has nothing to attach to.
		if len(a.parts) == 0 {
			return nil, nil
		}
		a.parts = append(a.parts, continuationPES(pkt.Payload))
		a.size += len(pkt.Payload)
		if a.size > maxAggregatedPES {
			a.reset()
			return nil, fmt.Errorf("%w: accumulated PES exceeds %d bytes", ErrInvalidData, maxAggregatedPES)
		}
		return nil, nil
	}

	var done *PES
	if len(a.parts) > 0 {
		var err error
		done, err = a.finalize()
		if err != nil {
			a.reset()
			return nil, err
		}
	}

	part, err := parseLeaderPES(pkt.Payload, pkt.Discontinuity)
	if err != nil {
		a.reset()
		return done, err
	}
	a.parts = []*partialPES{part}
	a.size = len(part.data)
	return done, nil
}

// flush finalises whatever is queued, returning nil when the queue is
// empty.
func (a *aggregator) flush() (*PES, error) {
	if len(a.parts) == 0 {
		return nil, nil
	}
	pes, err := a.finalize()
	a.reset()
	return pes, err
}

// finalize concatenates the queued fragments into one PES. The leader
// supplies the metadata; continuation fragments are data-only and inherit
// it. The declared length truncates overlong payloads and rejects short
// ones; length zero means all accumulated bytes belong to the unit.
func (a *aggregator) finalize() (*PES, error) {
	leader := a.parts[0]

	data := make([]byte, 0, a.size)
	for _, part := range a.parts {
		data = append(data, part.data...)
	}

	switch {
	case leader.declaredLen == 0:
		// Unbounded: all bytes belong to the unit.
	case len(data) > leader.declaredLen:
		data = data[:leader.declaredLen]
	case len(data) < leader.declaredLen:
		return nil, fmt.Errorf("%w: have %d bytes, declared %d", ErrSizeMismatch, len(data), leader.declaredLen)
	}

	a.parts = nil
	a.size = 0
	return &PES{
		StreamID:      leader.streamID,
		PTS:           leader.pts,
		DTS:           leader.dts,
		Aligned:       leader.aligned,
		Discontinuity: leader.discontinuity,
		Data:          data,
	}, nil
}
