package mpegts

import (
	"fmt"
	"time"
)

// Packet is a parsed 188-byte transport stream packet. It is transient:
// created by the parser or the muxer and consumed immediately.
type Packet struct {
	PID               uint16
	Class             PIDClass
	PUSI              bool
	ContinuityCounter uint8
	Scrambling        Scrambling
	TransportError    bool

	// Adaptation field content. A nil PCR means no PCR was carried.
	Discontinuity bool
	RandomAccess  bool
	PCR           *time.Duration

	Payload []byte
}

// UnmarshalPacket parses exactly one 188-byte frame.
func UnmarshalPacket(buf []byte) (*Packet, error) {
	if len(buf) < PacketSize {
		return nil, fmt.Errorf("%w: frame is %d bytes, expected %d", ErrNotEnoughData, len(buf), PacketSize)
	}
	if len(buf) > PacketSize {
		return nil, fmt.Errorf("%w: frame is %d bytes, expected %d", ErrInvalidPacket, len(buf), PacketSize)
	}
	if buf[0] != syncByte {
		return nil, fmt.Errorf("%w: sync byte 0x%02X", ErrInvalidPacket, buf[0])
	}

	p := &Packet{}
	p.TransportError = buf[1]&0x80 != 0
	p.PUSI = buf[1]&0x40 != 0
	p.PID = uint16(buf[1]&0x1F)<<8 | uint16(buf[2])
	p.Class = classifyPID(p.PID)
	p.Scrambling = Scrambling(buf[3] >> 6)
	afc := buf[3] >> 4 & 0x03
	p.ContinuityCounter = buf[3] & 0x0F

	offset := 4

	switch afc {
	case 0x00:
		return nil, fmt.Errorf("%w: reserved adaptation_field_control", ErrUnsupportedPacket)
	case 0x02, 0x03:
		afLen := int(buf[4])
		if 5+afLen > PacketSize {
			return nil, fmt.Errorf("%w: adaptation field length %d overruns packet", ErrInvalidData, afLen)
		}
		if err := p.parseAdaptationField(buf[5 : 5+afLen]); err != nil {
			return nil, err
		}
		if afc == 0x02 {
			return p, nil
		}
		offset = 5 + afLen
	}

	p.Payload = make([]byte, PacketSize-offset)
	copy(p.Payload, buf[offset:])
	return p, nil
}

// parseAdaptationField decodes the flags byte and the PCR when present.
// A zero-length field is legal and yields no flags. Other optional fields
// (OPCR, splice countdown, private data, extension) are skipped.
func (p *Packet) parseAdaptationField(af []byte) error {
	if len(af) == 0 {
		return nil
	}
	flags := af[0]
	p.Discontinuity = flags&0x80 != 0
	p.RandomAccess = flags&0x40 != 0
	if flags&0x10 != 0 { // PCR_flag
		if len(af) < 7 {
			return fmt.Errorf("%w: adaptation field too short for PCR", ErrInvalidData)
		}
		base := int64(af[1])<<25 | int64(af[2])<<17 | int64(af[3])<<9 |
			int64(af[4])<<1 | int64(af[5])>>7
		ext := int64(af[5]&0x01)<<8 | int64(af[6])
		pcr := durationFromPCR(base, ext)
		p.PCR = &pcr
	}
	return nil
}

// ParsePackets consumes as many whole 188-byte frames from buf as fit and
// returns the parsed packets plus the unconsumed tail. A tail shorter than
// one packet is not an error: the caller reprepends it to the next chunk
// (the not-enough-data signal). On a frame-level decode error the packets
// parsed so far are returned together with the tail starting at the
// offending frame and the error.
func ParsePackets(buf []byte) ([]*Packet, []byte, error) {
	var pkts []*Packet
	for len(buf) >= PacketSize {
		p, err := UnmarshalPacket(buf[:PacketSize])
		if err != nil {
			return pkts, buf, err
		}
		pkts = append(pkts, p)
		buf = buf[PacketSize:]
	}
	return pkts, buf, nil
}

// adaptationFieldLen returns the value of the adaptation_field_length byte
// needed to frame the payload, or -1 when no adaptation field is required.
func (p *Packet) adaptationFieldLen() (int, error) {
	needFlags := p.Discontinuity || p.RandomAccess || p.PCR != nil
	if !needFlags && len(p.Payload) >= maxPayloadSize {
		return -1, nil
	}
	min := 0
	if needFlags {
		min = 1
		if p.PCR != nil {
			min = 7
		}
	}
	afLen := maxPayloadSize - len(p.Payload) - 1
	if afLen < min {
		return 0, fmt.Errorf("%w: payload of %d bytes leaves no room for adaptation field", ErrInvalidData, len(p.Payload))
	}
	return afLen, nil
}

// Marshal encodes the packet as one 188-byte frame. An adaptation field is
// emitted when the discontinuity or random-access flags are set, a PCR is
// carried, or the payload needs stuffing to fill the frame. Stuffing bytes
// are 0xFF.
func (p *Packet) Marshal() ([]byte, error) {
	if len(p.Payload) > maxPayloadSize {
		return nil, fmt.Errorf("%w: payload is %d bytes, at most %d fit", ErrInvalidData, len(p.Payload), maxPayloadSize)
	}
	afLen, err := p.adaptationFieldLen()
	if err != nil {
		return nil, err
	}

	buf := make([]byte, PacketSize)
	buf[0] = syncByte
	buf[1] = byte(p.PID >> 8 & 0x1F)
	if p.PUSI {
		buf[1] |= 0x40
	}
	buf[2] = byte(p.PID)

	afc := byte(0x01) // payload only
	if afLen >= 0 {
		if len(p.Payload) == 0 {
			afc = 0x02
		} else {
			afc = 0x03
		}
	}
	buf[3] = byte(p.Scrambling)<<6 | afc<<4 | p.ContinuityCounter&0x0F

	offset := 4
	if afLen >= 0 {
		buf[4] = byte(afLen)
		offset = 5
		if afLen > 0 {
			var flags byte
			if p.Discontinuity {
				flags |= 0x80
			}
			if p.RandomAccess {
				flags |= 0x40
			}
			if p.PCR != nil {
				flags |= 0x10
			}
			buf[offset] = flags
			pos := offset + 1
			if p.PCR != nil {
				base, ext := splitPCR(*p.PCR)
				base &= 1<<33 - 1
				buf[pos] = byte(base >> 25)
				buf[pos+1] = byte(base >> 17)
				buf[pos+2] = byte(base >> 9)
				buf[pos+3] = byte(base >> 1)
				buf[pos+4] = byte(base<<7) | 0x7E | byte(ext>>8&0x01)
				buf[pos+5] = byte(ext)
				pos += 6
			}
			for ; pos < offset+afLen; pos++ {
				buf[pos] = 0xFF
			}
			offset += afLen
		}
	}

	copy(buf[offset:], p.Payload)
	return buf, nil
}
