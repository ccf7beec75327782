package mpegts

import (
	"fmt"
	"time"
)

const (
	defaultPMTPID   uint16 = 0x1000
	firstStreamPID  uint16 = 0x100
	programNumber   uint16 = 1
	muxTransportSID uint16 = 1

	// The first packet of a sample leaves room for a minimal adaptation
	// field with a PCR.
	firstPacketPayload = maxPayloadSize - 8
)

// Muxer builds a TS bitstream for a single program from declared
// elementary streams and media samples. The caller owns interleaving: PAT,
// PMT, PCR, and sample packets are emitted in exactly the order the
// methods are called.
type Muxer struct {
	pmtPID     uint16
	pat        *PAT
	pmt        *PMT
	patVersion uint8
	pmtVersion uint8

	continuity map[uint16]uint8
	streamIDs  map[uint16]uint8
}

// NewMuxer creates a Muxer with one program pointing at the PMT PID
// (default 0x1000) and no PCR carrier.
func NewMuxer(opts ...func(*Muxer)) *Muxer {
	m := &Muxer{
		pmtPID:     defaultPMTPID,
		continuity: make(map[uint16]uint8),
		streamIDs:  make(map[uint16]uint8),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.pat = &PAT{Programs: map[uint16]uint16{programNumber: m.pmtPID}}
	m.pmt = &PMT{PCRPID: pidNull, Streams: make(map[uint16]ElementaryStream)}
	return m
}

// MuxerOptPMTPID sets the PID carrying the PMT.
func MuxerOptPMTPID(pid uint16) func(*Muxer) {
	return func(m *Muxer) {
		m.pmtPID = pid
	}
}

// PAT returns the muxer's current program association table.
func (m *Muxer) PAT() *PAT { return m.pat }

// PMT returns the muxer's current program map table.
func (m *Muxer) PMT() *PMT { return m.pmt }

type streamConfig struct {
	pid         uint16
	explicitPID bool
	pcr         bool
	descriptors []Descriptor
}

// StreamOptPID places the stream on an explicit PID instead of the next
// free one.
func StreamOptPID(pid uint16) func(*streamConfig) {
	return func(c *streamConfig) {
		c.pid = pid
		c.explicitPID = true
	}
}

// StreamOptPCR marks the stream as the program's PCR carrier.
func StreamOptPCR() func(*streamConfig) {
	return func(c *streamConfig) {
		c.pcr = true
	}
}

// StreamOptDescriptor appends a program-info descriptor to the PMT.
func StreamOptDescriptor(tag uint8, data []byte) func(*streamConfig) {
	return func(c *streamConfig) {
		c.descriptors = append(c.descriptors, Descriptor{Tag: tag, Data: data})
	}
}

// streamIDFor derives the PES stream id for a category, indexed among the
// streams already declared in the same category.
func (m *Muxer) streamIDFor(category StreamCategory) uint8 {
	index := uint8(0)
	for pid := range m.pmt.Streams {
		if m.pmt.Streams[pid].Category() == category {
			index++
		}
	}
	switch category {
	case CategoryVideo:
		return 0xE0 + index
	case CategoryAudio:
		return 0xC0 + index
	case CategoryIPMP, CategoryMetadata:
		return 0xF0 + index
	default:
		return 0xBD // private_stream_1
	}
}

// AddElementaryStream declares a stream of the given PMT stream type and
// returns its PID. The PMT version is bumped.
func (m *Muxer) AddElementaryStream(streamTypeID uint8, opts ...func(*streamConfig)) (uint16, error) {
	if !knownStreamType(streamTypeID) {
		return 0, fmt.Errorf("%w: 0x%02X", ErrUnknownStreamType, streamTypeID)
	}

	cfg := streamConfig{pid: firstStreamPID + uint16(len(m.pmt.Streams))}
	for _, opt := range opts {
		opt(&cfg)
	}
	if _, dup := m.pmt.Streams[cfg.pid]; dup || cfg.pid == m.pmtPID || cfg.pid == pidPAT {
		return 0, fmt.Errorf("%w: 0x%04X", ErrDuplicatePID, cfg.pid)
	}

	m.streamIDs[cfg.pid] = m.streamIDFor(lookupStreamType(streamTypeID).Category)
	m.pmt.Streams[cfg.pid] = ElementaryStream{StreamTypeID: streamTypeID}
	if cfg.pcr {
		m.pmt.PCRPID = cfg.pid
	}
	m.pmt.ProgramInfo = append(m.pmt.ProgramInfo, cfg.descriptors...)
	m.pmtVersion = (m.pmtVersion + 1) & 0x1F
	return cfg.pid, nil
}

// nextContinuity returns the PID's current counter and advances it.
func (m *Muxer) nextContinuity(pid uint16) uint8 {
	cc := m.continuity[pid]
	m.continuity[pid] = (cc + 1) & 0x0F
	return cc
}

// muxPSIPacket marshals a PSI section into a single unit-start TS packet.
func (m *Muxer) muxPSIPacket(pid uint16, psi *PSI) ([]byte, error) {
	payload, err := psi.Marshal()
	if err != nil {
		return nil, err
	}
	if len(payload) > maxPayloadSize {
		return nil, fmt.Errorf("%w: PSI section of %d bytes does not fit one packet", ErrInvalidData, len(payload))
	}
	pkt := &Packet{
		PID:               pid,
		PUSI:              true,
		ContinuityCounter: m.nextContinuity(pid),
		Payload:           payload,
	}
	return pkt.Marshal()
}

func (m *Muxer) sectionHeader(tableID uint8, version uint8) SectionHeader {
	return SectionHeader{
		TableID:           tableID,
		SyntaxIndicator:   true,
		TransportStreamID: muxTransportSID,
		Version:           version,
		CurrentNext:       true,
	}
}

// MuxPAT emits the PAT as one TS packet.
func (m *Muxer) MuxPAT() ([]byte, error) {
	psi := &PSI{
		Header: m.sectionHeader(0x00, m.patVersion),
		Type:   TableTypePAT,
		PAT:    m.pat,
	}
	return m.muxPSIPacket(pidPAT, psi)
}

// MuxPMT emits the PMT as one TS packet.
func (m *Muxer) MuxPMT() ([]byte, error) {
	psi := &PSI{
		Header: m.sectionHeader(0x02, m.pmtVersion),
		Type:   TableTypePMT,
		PMT:    m.pmt,
	}
	return m.muxPSIPacket(m.pmtPID, psi)
}

// MuxPSI emits an arbitrary PSI section (an inline SCTE-35 cue, for
// instance) on the given PID.
func (m *Muxer) MuxPSI(pid uint16, psi *PSI) ([]byte, error) {
	return m.muxPSIPacket(pid, psi)
}

// MuxPCR emits a payloadless packet on the PCR PID carrying the clock
// reference.
func (m *Muxer) MuxPCR(pcr time.Duration) ([]byte, error) {
	if m.pmt.PCRPID == pidNull {
		return nil, ErrNoPCRPID
	}
	pkt := &Packet{
		PID:               m.pmt.PCRPID,
		ContinuityCounter: m.nextContinuity(m.pmt.PCRPID),
		PCR:               &pcr,
	}
	return pkt.Marshal()
}

type sampleConfig struct {
	dts     *time.Duration
	sync    bool
	sendPCR bool
}

// SampleOptDTS sets the decoding timestamp; without it DTS is omitted and
// decoders use the PTS.
func SampleOptDTS(dts time.Duration) func(*sampleConfig) {
	return func(c *sampleConfig) {
		c.dts = &dts
	}
}

// SampleOptSync marks the sample as a random-access point.
func SampleOptSync() func(*sampleConfig) {
	return func(c *sampleConfig) {
		c.sync = true
	}
}

// SampleOptPCR attaches a PCR equal to the sample's DTS (or PTS) to the
// first packet.
func SampleOptPCR() func(*sampleConfig) {
	return func(c *sampleConfig) {
		c.sendPCR = true
	}
}

// MuxSample wraps one media sample in a PES and chunks it into TS packets,
// returned as one concatenated byte stream. The first packet carries the
// unit start plus any requested RAI and PCR; continuation packets carry up
// to 184 payload bytes each.
func (m *Muxer) MuxSample(pid uint16, payload []byte, pts time.Duration, opts ...func(*sampleConfig)) ([]byte, error) {
	streamID, ok := m.streamIDs[pid]
	if !ok {
		return nil, fmt.Errorf("%w: 0x%04X", ErrUnknownPID, pid)
	}
	var cfg sampleConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.sendPCR && pid != m.pmt.PCRPID {
		return nil, fmt.Errorf("%w: PID 0x%04X is not the PCR carrier", ErrNoPCRPID, pid)
	}

	pes := &PES{
		StreamID: streamID,
		PTS:      &pts,
		DTS:      cfg.dts,
		Aligned:  true,
		Data:     payload,
	}
	raw := pes.Marshal()

	var out []byte
	first := true
	for len(raw) > 0 || first {
		limit := maxPayloadSize
		if first {
			limit = firstPacketPayload
		}
		if limit > len(raw) {
			limit = len(raw)
		}

		pkt := &Packet{
			PID:               pid,
			PUSI:              first,
			ContinuityCounter: m.nextContinuity(pid),
			Payload:           raw[:limit],
		}
		if first {
			pkt.RandomAccess = cfg.sync
			if cfg.sendPCR {
				pcr := pts
				if cfg.dts != nil {
					pcr = *cfg.dts
				}
				pkt.PCR = &pcr
			}
		}
		frame, err := pkt.Marshal()
		if err != nil {
			return nil, err
		}
		out = append(out, frame...)
		raw = raw[limit:]
		first = false
	}
	return out, nil
}
