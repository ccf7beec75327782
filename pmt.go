package mpegts

import (
	"fmt"
	"sort"
)

// Descriptor is one program-info descriptor, carried verbatim.
type Descriptor struct {
	Tag  uint8
	Data []byte
}

// ElementaryStream describes one stream declared by a PMT.
type ElementaryStream struct {
	StreamTypeID uint8
}

// StreamType returns the tag for the stream's type id.
func (e ElementaryStream) StreamType() StreamType {
	return lookupStreamType(e.StreamTypeID).Type
}

// Category returns the coarse category driving aggregator creation and
// muxer stream-id assignment.
func (e ElementaryStream) Category() StreamCategory {
	return lookupStreamType(e.StreamTypeID).Category
}

// PMT is the program map table body. PCRPID 0x1FFF means no PCR carrier.
// ProgramInfo descriptors keep insertion order; ES-info descriptors are not
// modelled (skipped on decode, emitted empty on encode).
type PMT struct {
	PCRPID      uint16
	ProgramInfo []Descriptor
	Streams     map[uint16]ElementaryStream
}

// UnmarshalPMT decodes the PMT table body.
//
// Layout:
//
//	reserved            [3b]
//	PCR_PID             [13b]
//	reserved            [6b]
//	program_info_length [10b]
//	-- program_info descriptors: tag(8), length(8), data --
//	-- stream entries --
//	stream_type         [8b]
//	reserved            [3b]
//	elementary_PID      [13b]
//	reserved            [4b]
//	ES_info_length      [12b]
//	ES_info             [..]
func UnmarshalPMT(body []byte) (*PMT, error) {
	if len(body) < 4 {
		return nil, fmt.Errorf("%w: PMT body is %d bytes", ErrInvalidData, len(body))
	}
	pmt := &PMT{
		PCRPID:  uint16(body[0]&0x1F)<<8 | uint16(body[1]),
		Streams: make(map[uint16]ElementaryStream),
	}

	infoLength := int(body[2]&0x03)<<8 | int(body[3])
	offset := 4
	if offset+infoLength > len(body) {
		return nil, fmt.Errorf("%w: program_info_length %d overruns PMT body", ErrInvalidData, infoLength)
	}
	infoEnd := offset + infoLength
	for offset < infoEnd {
		if offset+2 > infoEnd {
			return nil, fmt.Errorf("%w: truncated program descriptor header", ErrInvalidData)
		}
		tag := body[offset]
		length := int(body[offset+1])
		if offset+2+length > infoEnd {
			return nil, fmt.Errorf("%w: descriptor 0x%02X length %d overruns program info", ErrInvalidData, tag, length)
		}
		pmt.ProgramInfo = append(pmt.ProgramInfo, Descriptor{
			Tag:  tag,
			Data: append([]byte(nil), body[offset+2:offset+2+length]...),
		})
		offset += 2 + length
	}

	for offset < len(body) {
		if offset+5 > len(body) {
			return nil, fmt.Errorf("%w: truncated PMT stream entry", ErrInvalidData)
		}
		streamTypeID := body[offset]
		pid := uint16(body[offset+1]&0x1F)<<8 | uint16(body[offset+2])
		esInfoLength := int(body[offset+3]&0x0F)<<8 | int(body[offset+4])
		if offset+5+esInfoLength > len(body) {
			return nil, fmt.Errorf("%w: ES_info_length %d overruns PMT body", ErrInvalidData, esInfoLength)
		}
		pmt.Streams[pid] = ElementaryStream{StreamTypeID: streamTypeID}
		offset += 5 + esInfoLength
	}
	return pmt, nil
}

// Marshal encodes the body with streams ordered by PID for deterministic
// bytes. Reserved bits are set to ones, except the two bits above the
// 10-bit program_info_length, which are zero. ES_info_length is always zero.
func (p *PMT) Marshal() []byte {
	infoLength := 0
	for _, d := range p.ProgramInfo {
		infoLength += 2 + len(d.Data)
	}

	buf := make([]byte, 0, 4+infoLength+5*len(p.Streams))
	buf = append(buf,
		0xE0|byte(p.PCRPID>>8&0x1F), byte(p.PCRPID),
		0xF0|byte(infoLength>>8&0x03), byte(infoLength))
	for _, d := range p.ProgramInfo {
		buf = append(buf, d.Tag, byte(len(d.Data)))
		buf = append(buf, d.Data...)
	}

	pids := make([]int, 0, len(p.Streams))
	for pid := range p.Streams {
		pids = append(pids, int(pid))
	}
	sort.Ints(pids)
	for _, pid := range pids {
		es := p.Streams[uint16(pid)]
		buf = append(buf,
			es.StreamTypeID,
			0xE0|byte(pid>>8&0x1F), byte(pid),
			0xF0, 0x00)
	}
	return buf
}
