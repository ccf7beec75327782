package mpegts

import (
	"bytes"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/zsiec/mpegts/scte35"
)

// Container is the demuxer's output unit: one completed PES or one PSI
// section, stamped with a best-effort monotonic timestamp. Exactly one of
// PES and PSI is non-nil.
type Container struct {
	PID uint16
	T   *time.Duration
	PES *PES
	PSI *PSI
}

// Warning is delivered through the observer callback for every
// lenient-mode recovery.
type Warning struct {
	PID uint16
	Err error
}

// Demuxer turns arbitrarily chunked TS bytes into an ordered sequence of
// Containers. It synchronises onto 188-byte boundaries, routes packets by
// PID, reassembles PES payloads per PID, dispatches PSI tables, and lifts
// 33-bit timestamps onto a monotonic timeline. One Demuxer serves one
// stream and is driven by a single goroutine; independent streams get
// independent instances.
type Demuxer struct {
	strict   bool
	waitRAI  bool
	log      *slog.Logger
	observer func(Warning)

	pending     []byte
	pmtPIDs     map[uint16]uint16 // PMT PID → program number
	streams     map[uint16]ElementaryStream
	aggregators map[uint16]*aggregator
	ptsLanes    map[uint16]*rollover
	dtsLanes    map[uint16]*rollover
	lastDTS     *time.Duration
}

// NewDemuxer creates a Demuxer. The default mode is lenient: frame and
// unit errors are skipped and surfaced through the observer.
func NewDemuxer(opts ...func(*Demuxer)) *Demuxer {
	d := &Demuxer{
		log:         slog.Default(),
		pmtPIDs:     make(map[uint16]uint16),
		streams:     make(map[uint16]ElementaryStream),
		aggregators: make(map[uint16]*aggregator),
		ptsLanes:    make(map[uint16]*rollover),
		dtsLanes:    make(map[uint16]*rollover),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log = d.log.With("component", "demuxer")
	return d
}

// DemuxerOptStrict makes every error fatal instead of recovered.
func DemuxerOptStrict() func(*Demuxer) {
	return func(d *Demuxer) {
		d.strict = true
	}
}

// DemuxerOptWaitRAI holds back PES emission on each PID until a packet
// with the random-access indicator has been seen.
func DemuxerOptWaitRAI() func(*Demuxer) {
	return func(d *Demuxer) {
		d.waitRAI = true
	}
}

// DemuxerOptObserver registers a callback receiving every lenient-mode
// warning.
func DemuxerOptObserver(f func(Warning)) func(*Demuxer) {
	return func(d *Demuxer) {
		d.observer = f
	}
}

// DemuxerOptLogger sets the logger (default slog.Default()).
func DemuxerOptLogger(log *slog.Logger) func(*Demuxer) {
	return func(d *Demuxer) {
		if log != nil {
			d.log = log
		}
	}
}

func (d *Demuxer) warn(pid uint16, err error) {
	d.log.Warn("recovered", "pid", pid, "error", err)
	if d.observer != nil {
		d.observer(Warning{PID: pid, Err: err})
	}
}

// Push consumes one chunk of bytes and returns the Containers completed by
// it. A tail shorter than one packet is buffered for the next call. In
// strict mode the first error is returned; in lenient mode bad frames are
// skipped to the next sync byte and bad units are dropped with a warning.
func (d *Demuxer) Push(chunk []byte) ([]*Container, error) {
	d.pending = append(d.pending, chunk...)

	var out []*Container
	for {
		pkts, rest, err := ParsePackets(d.pending)
		for _, pkt := range pkts {
			cs, derr := d.dispatch(pkt)
			out = append(out, cs...)
			if derr != nil {
				if d.strict {
					d.pending = nil
					return out, derr
				}
				d.warn(pkt.PID, derr)
			}
		}
		if err == nil {
			d.pending = append(d.pending[:0], rest...)
			return out, nil
		}
		if d.strict {
			d.pending = nil
			return out, err
		}
		// Drop the bad frame and resync at the next sync byte.
		d.warn(0, err)
		next := bytes.IndexByte(rest[1:], syncByte)
		if next < 0 {
			d.pending = d.pending[:0]
			return out, nil
		}
		d.pending = append(d.pending[:0], rest[1+next:]...)
	}
}

// Flush drains every aggregator at end of stream, emitting any final PES
// with rollover correction applied.
func (d *Demuxer) Flush() ([]*Container, error) {
	pids := make([]int, 0, len(d.aggregators))
	for pid := range d.aggregators {
		pids = append(pids, int(pid))
	}
	sort.Ints(pids)

	var out []*Container
	for _, p := range pids {
		pid := uint16(p)
		pes, err := d.aggregators[pid].flush()
		if err != nil {
			if d.strict {
				return out, err
			}
			d.warn(pid, err)
			continue
		}
		if pes != nil {
			out = append(out, d.emitPES(pid, pes))
		}
	}
	return out, nil
}

// dispatch routes one packet. Null packets are dropped; PIDs with an
// aggregator take the PES path; PAT, registered PMT PIDs, and the PSI PID
// range take the table path; anything else is unknown.
func (d *Demuxer) dispatch(pkt *Packet) ([]*Container, error) {
	if pkt.Class == PIDClassNull {
		return nil, nil
	}

	if agg, ok := d.aggregators[pkt.PID]; ok {
		pes, err := agg.push(pkt)
		var out []*Container
		if pes != nil {
			out = append(out, d.emitPES(pkt.PID, pes))
		}
		return out, err
	}

	if _, isPMT := d.pmtPIDs[pkt.PID]; pkt.Class == PIDClassPAT || isPMT || pkt.Class == PIDClassPSI {
		return d.dispatchPSI(pkt)
	}

	return nil, fmt.Errorf("%w: no route for PID 0x%04X", ErrUnsupportedPacket, pkt.PID)
}

// emitPES corrects both timestamp lanes, stamps the container, and tracks
// the video timeline for PSI stamping.
func (d *Demuxer) emitPES(pid uint16, pes *PES) *Container {
	if pes.PTS != nil {
		t := d.lane(d.ptsLanes, pid).correct(*pes.PTS)
		pes.PTS = &t
	}
	if pes.DTS != nil {
		t := d.lane(d.dtsLanes, pid).correct(*pes.DTS)
		pes.DTS = &t
	}

	t := pes.DTS
	if t == nil {
		t = pes.PTS
	}
	if d.streams[pid].Category() == CategoryVideo && t != nil {
		d.lastDTS = t
	}
	return &Container{PID: pid, T: t, PES: pes}
}

func (d *Demuxer) lane(lanes map[uint16]*rollover, pid uint16) *rollover {
	l, ok := lanes[pid]
	if !ok {
		l = &rollover{}
		lanes[pid] = l
	}
	return l
}

func (d *Demuxer) dispatchPSI(pkt *Packet) ([]*Container, error) {
	psi, err := UnmarshalPSI(pkt.Payload, pkt.PUSI)
	if psi == nil {
		return nil, err
	}
	if err != nil {
		// Table decode failed but the section frame is sound: surface the
		// error and deliver the section with its raw body.
		if d.strict {
			return nil, err
		}
		d.warn(pkt.PID, err)
	}

	switch {
	case psi.PAT != nil:
		pmtPIDs := make(map[uint16]uint16, len(psi.PAT.Programs))
		for program, pid := range psi.PAT.Programs {
			pmtPIDs[pid] = program
		}
		d.pmtPIDs = pmtPIDs

	case psi.PMT != nil:
		for pid, es := range psi.PMT.Streams {
			d.streams[pid] = es
			switch es.Category() {
			case CategoryVideo, CategoryAudio, CategoryMetadata:
				if _, ok := d.aggregators[pid]; !ok {
					d.aggregators[pid] = newAggregator(d.waitRAI)
				}
			}
		}
	}

	return []*Container{{PID: pkt.PID, T: d.psiTimestamp(pkt.PID, psi), PSI: psi}}, nil
}

// psiTimestamp picks the best-effort timestamp for a PSI container: a
// splice_insert with a splice time yields pts_adjustment + splice_time run
// through the PID's PTS lane (so repeated cues survive a PES timeline
// wrap); everything else rides the most recent video DTS.
func (d *Demuxer) psiTimestamp(pid uint16, psi *PSI) *time.Duration {
	if psi.SCTE35 != nil {
		if insert, ok := psi.SCTE35.Command.(*scte35.SpliceInsert); ok && insert.SpliceTime != nil {
			t := d.lane(d.ptsLanes, pid).correct(psi.SCTE35.PTSAdjustment + *insert.SpliceTime)
			return &t
		}
	}
	return d.lastDTS
}
