package mpegts

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/zsiec/mpegts/scte35"
)

// buildSpliceInsertPSI wraps an immediate-less splice_insert at the given
// presentation time in a short-form PSI section.
func buildSpliceInsertPSI(t *testing.T, at time.Duration) *PSI {
	t.Helper()
	sis := scte35.New()
	sis.Command = &scte35.SpliceInsert{
		EventID:         42,
		OutOfNetwork:    true,
		SpliceTime:      &at,
		UniqueProgramID: 0x55E,
	}
	return &PSI{
		Header: SectionHeader{TableID: 0xFC},
		Type:   TableTypeSCTE35,
		SCTE35: sis,
	}
}

func TestMuxer_AddElementaryStream(t *testing.T) {
	t.Parallel()
	m := NewMuxer()

	vpid, err := m.AddElementaryStream(0x1B)
	if err != nil {
		t.Fatal(err)
	}
	if vpid != 0x100 {
		t.Errorf("first PID = 0x%04X, want 0x100", vpid)
	}
	apid, err := m.AddElementaryStream(0x0F)
	if err != nil {
		t.Fatal(err)
	}
	if apid != 0x101 {
		t.Errorf("second PID = 0x%04X, want 0x101", apid)
	}

	if _, err := m.AddElementaryStream(0x1B, StreamOptPID(vpid)); !errors.Is(err, ErrDuplicatePID) {
		t.Errorf("duplicate PID: got %v", err)
	}
	if _, err := m.AddElementaryStream(0xE3); !errors.Is(err, ErrUnknownStreamType) {
		t.Errorf("unknown stream type: got %v", err)
	}
}

func TestMuxer_StreamIDAssignment(t *testing.T) {
	t.Parallel()
	m := NewMuxer()
	v1, _ := m.AddElementaryStream(0x1B)
	v2, _ := m.AddElementaryStream(0x24)
	a1, _ := m.AddElementaryStream(0x0F)
	s1, _ := m.AddElementaryStream(0x06)
	md, _ := m.AddElementaryStream(0x15)

	want := map[uint16]uint8{
		v1: 0xE0, v2: 0xE1,
		a1: 0xC0,
		s1: 0xBD,
		md: 0xF0,
	}
	for pid, id := range want {
		if got := m.streamIDs[pid]; got != id {
			t.Errorf("PID 0x%04X stream id = 0x%02X, want 0x%02X", pid, got, id)
		}
	}
}

func TestMuxer_PATPacket(t *testing.T) {
	t.Parallel()
	m := NewMuxer(MuxerOptPMTPID(0x1200))
	frame, err := m.MuxPAT()
	if err != nil {
		t.Fatal(err)
	}
	if len(frame) != PacketSize {
		t.Fatalf("PAT frame is %d bytes", len(frame))
	}

	pkt, err := UnmarshalPacket(frame)
	if err != nil {
		t.Fatal(err)
	}
	if pkt.PID != 0 || !pkt.PUSI || pkt.RandomAccess {
		t.Errorf("packet header = %+v", pkt)
	}
	psi, err := UnmarshalPSI(pkt.Payload, pkt.PUSI)
	if err != nil {
		t.Fatal(err)
	}
	if err := verifyCRC32(pkt.Payload[1 : 1+3+int(psi.Header.SectionLength)]); err != nil {
		t.Errorf("PAT CRC: %v", err)
	}
	if psi.PAT == nil || psi.PAT.Programs[1] != 0x1200 {
		t.Errorf("PAT = %+v", psi.PAT)
	}
	if !psi.Header.SyntaxIndicator || psi.Header.TransportStreamID != 1 {
		t.Errorf("header = %+v", psi.Header)
	}

	// Continuity counters advance per packet on the PAT PID.
	second, err := m.MuxPAT()
	if err != nil {
		t.Fatal(err)
	}
	p2, _ := UnmarshalPacket(second)
	if p2.ContinuityCounter != pkt.ContinuityCounter+1 {
		t.Errorf("continuity did not advance: %d then %d", pkt.ContinuityCounter, p2.ContinuityCounter)
	}
}

func TestMuxer_PMTVersionBumps(t *testing.T) {
	t.Parallel()
	m := NewMuxer()
	if _, err := m.AddElementaryStream(0x1B); err != nil {
		t.Fatal(err)
	}
	frame, err := m.MuxPMT()
	if err != nil {
		t.Fatal(err)
	}
	pkt, _ := UnmarshalPacket(frame)
	psi, err := UnmarshalPSI(pkt.Payload, true)
	if err != nil {
		t.Fatal(err)
	}
	v1 := psi.Header.Version

	if _, err := m.AddElementaryStream(0x0F); err != nil {
		t.Fatal(err)
	}
	frame, err = m.MuxPMT()
	if err != nil {
		t.Fatal(err)
	}
	pkt, _ = UnmarshalPacket(frame)
	psi, err = UnmarshalPSI(pkt.Payload, true)
	if err != nil {
		t.Fatal(err)
	}
	if psi.Header.Version != v1+1 {
		t.Errorf("version went %d to %d", v1, psi.Header.Version)
	}
}

func TestMuxer_PCR(t *testing.T) {
	t.Parallel()
	m := NewMuxer()
	if _, err := m.MuxPCR(time.Second); !errors.Is(err, ErrNoPCRPID) {
		t.Errorf("no carrier: got %v", err)
	}

	pid, err := m.AddElementaryStream(0x1B, StreamOptPCR())
	if err != nil {
		t.Fatal(err)
	}
	frame, err := m.MuxPCR(time.Second)
	if err != nil {
		t.Fatal(err)
	}
	pkt, err := UnmarshalPacket(frame)
	if err != nil {
		t.Fatal(err)
	}
	if pkt.PID != pid {
		t.Errorf("PCR PID = 0x%04X, want 0x%04X", pkt.PID, pid)
	}
	if len(pkt.Payload) != 0 {
		t.Errorf("PCR packet carries %d payload bytes", len(pkt.Payload))
	}
	if pkt.PCR == nil || *pkt.PCR != time.Second {
		t.Errorf("PCR = %v", pkt.PCR)
	}
}

func TestMuxer_SampleChunking(t *testing.T) {
	t.Parallel()
	m := NewMuxer()
	pid, err := m.AddElementaryStream(0x1B, StreamOptPCR())
	if err != nil {
		t.Fatal(err)
	}

	data := bytes.Repeat([]byte{0x5A}, 1000)
	out, err := m.MuxSample(pid, data, 40*time.Millisecond,
		SampleOptDTS(20*time.Millisecond), SampleOptSync(), SampleOptPCR())
	if err != nil {
		t.Fatal(err)
	}
	if len(out)%PacketSize != 0 {
		t.Fatalf("output is %d bytes", len(out))
	}

	first, err := UnmarshalPacket(out[:PacketSize])
	if err != nil {
		t.Fatal(err)
	}
	if !first.PUSI || !first.RandomAccess {
		t.Errorf("first packet flags = %+v", first)
	}
	if first.PCR == nil || *first.PCR != 20*time.Millisecond {
		t.Errorf("PCR = %v, want the DTS", first.PCR)
	}
	if len(first.Payload) != firstPacketPayload {
		t.Errorf("first payload = %d bytes, want %d", len(first.Payload), firstPacketPayload)
	}

	cc := first.ContinuityCounter
	for off := PacketSize; off < len(out); off += PacketSize {
		pkt, err := UnmarshalPacket(out[off : off+PacketSize])
		if err != nil {
			t.Fatal(err)
		}
		if pkt.PUSI {
			t.Error("only the first packet starts the unit")
		}
		if pkt.ContinuityCounter != (cc+1)&0x0F {
			t.Errorf("continuity jumped from %d to %d", cc, pkt.ContinuityCounter)
		}
		cc = pkt.ContinuityCounter
	}

	if _, err := m.MuxSample(0x999, data, 0); !errors.Is(err, ErrUnknownPID) {
		t.Errorf("undeclared PID: got %v", err)
	}
}

func TestMuxer_PCRRequiresCarrier(t *testing.T) {
	t.Parallel()
	m := NewMuxer()
	pid, err := m.AddElementaryStream(0x1B) // not the PCR carrier
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.MuxSample(pid, []byte{0x01}, 0, SampleOptPCR()); !errors.Is(err, ErrNoPCRPID) {
		t.Errorf("got %v", err)
	}
}

func TestMuxer_SCTE35PassThrough(t *testing.T) {
	t.Parallel()
	m := NewMuxer()
	cue := buildSpliceInsertPSI(t, 90*time.Second)
	frame, err := m.MuxPSI(0x1F0, cue)
	if err != nil {
		t.Fatal(err)
	}
	pkt, err := UnmarshalPacket(frame)
	if err != nil {
		t.Fatal(err)
	}
	psi, err := UnmarshalPSI(pkt.Payload, true)
	if err != nil {
		t.Fatal(err)
	}
	if psi.SCTE35 == nil {
		t.Fatal("cue did not decode")
	}
	insert, ok := psi.SCTE35.Command.(*scte35.SpliceInsert)
	if !ok {
		t.Fatalf("command = %T", psi.SCTE35.Command)
	}
	if insert.EventID != 42 || insert.SpliceTime == nil || *insert.SpliceTime != 90*time.Second {
		t.Errorf("insert = %+v", insert)
	}
	if psi.SCTE35.Tier != scte35.TierAll {
		t.Errorf("tier = 0x%03X", psi.SCTE35.Tier)
	}
}

// TestMuxDemuxRoundTrip drives the whole egress→ingress loop: declared
// streams, PAT/PMT, PCR packets, and interleaved samples come back as the
// same PES sequence per PID.
func TestMuxDemuxRoundTrip(t *testing.T) {
	t.Parallel()
	m := NewMuxer()
	vpid, err := m.AddElementaryStream(0x1B, StreamOptPCR())
	if err != nil {
		t.Fatal(err)
	}
	apid, err := m.AddElementaryStream(0x0F)
	if err != nil {
		t.Fatal(err)
	}

	var stream []byte
	for _, mux := range []func() ([]byte, error){m.MuxPAT, m.MuxPMT} {
		b, err := mux()
		if err != nil {
			t.Fatal(err)
		}
		stream = append(stream, b...)
	}

	type sample struct {
		pid  uint16
		pts  time.Duration
		dts  *time.Duration
		data []byte
	}
	samples := []sample{
		{vpid, 40 * time.Millisecond, durPtr(20 * time.Millisecond), bytes.Repeat([]byte{0x11}, 300)},
		{apid, 23 * time.Millisecond, nil, []byte{0x21, 0x22}},
		{vpid, 80 * time.Millisecond, durPtr(60 * time.Millisecond), bytes.Repeat([]byte{0x12}, 190)},
		{apid, 46 * time.Millisecond, nil, []byte{0x23}},
		{vpid, 120 * time.Millisecond, durPtr(100 * time.Millisecond), []byte{0x13}},
	}
	for i, s := range samples {
		opts := []func(*sampleConfig){}
		if s.dts != nil {
			opts = append(opts, SampleOptDTS(*s.dts))
		}
		if s.pid == vpid {
			opts = append(opts, SampleOptSync(), SampleOptPCR())
		}
		b, err := m.MuxSample(s.pid, s.data, s.pts, opts...)
		if err != nil {
			t.Fatalf("sample %d: %v", i, err)
		}
		stream = append(stream, b...)
	}

	cs := demuxAll(t, NewDemuxer(), stream)

	got := make(map[uint16][]*PES)
	for _, c := range cs {
		if c.PES != nil {
			got[c.PID] = append(got[c.PID], c.PES)
		}
	}
	wantPerPID := map[uint16][]sample{}
	for _, s := range samples {
		wantPerPID[s.pid] = append(wantPerPID[s.pid], s)
	}

	for pid, want := range wantPerPID {
		if len(got[pid]) != len(want) {
			t.Fatalf("PID 0x%04X: got %d PES, want %d", pid, len(got[pid]), len(want))
		}
		for i, s := range want {
			pes := got[pid][i]
			if !bytes.Equal(pes.Data, s.data) {
				t.Errorf("PID 0x%04X sample %d: data mismatch", pid, i)
			}
			if pes.PTS == nil || *pes.PTS != s.pts {
				t.Errorf("PID 0x%04X sample %d: PTS = %v, want %v", pid, i, pes.PTS, s.pts)
			}
			if s.dts != nil && (pes.DTS == nil || *pes.DTS != *s.dts) {
				t.Errorf("PID 0x%04X sample %d: DTS mismatch", pid, i)
			}
		}
	}
}
