package mpegts

import (
	"fmt"

	"github.com/zsiec/mpegts/scte35"
)

// TableType classifies a PSI section by its table_id per the ISO 13818-1 /
// SCTE allocation ranges.
type TableType int

const (
	TableTypeUnknown TableType = iota
	TableTypePAT
	TableTypeCAT
	TableTypePMT
	TableTypeTSDT
	TableTypeMetadata
	TableTypeReserved
	TableTypeDSMCC
	TableTypeDVB
	TableTypeCA
	TableTypeUserDefined
	TableTypeATSC
	TableTypeSCTE35
	TableTypeForbidden
)

func (t TableType) String() string {
	switch t {
	case TableTypePAT:
		return "pat"
	case TableTypeCAT:
		return "cat"
	case TableTypePMT:
		return "pmt"
	case TableTypeTSDT:
		return "tsdt"
	case TableTypeMetadata:
		return "metadata"
	case TableTypeReserved:
		return "reserved"
	case TableTypeDSMCC:
		return "dsmcc"
	case TableTypeDVB:
		return "dvb"
	case TableTypeCA:
		return "ca"
	case TableTypeUserDefined:
		return "user_defined"
	case TableTypeATSC:
		return "atsc"
	case TableTypeSCTE35:
		return "scte35"
	case TableTypeForbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

func tableTypeFor(tableID uint8) TableType {
	switch {
	case tableID == 0x00:
		return TableTypePAT
	case tableID == 0x01:
		return TableTypeCAT
	case tableID == 0x02:
		return TableTypePMT
	case tableID == 0x03:
		return TableTypeTSDT
	case tableID <= 0x07:
		return TableTypeMetadata
	case tableID <= 0x39:
		return TableTypeReserved
	case tableID <= 0x3F:
		return TableTypeDSMCC
	case tableID <= 0x7F:
		return TableTypeDVB
	case tableID <= 0x8F:
		return TableTypeCA
	case tableID <= 0xBF:
		return TableTypeUserDefined
	case tableID == 0xFC:
		return TableTypeSCTE35
	case tableID == 0xFF:
		return TableTypeForbidden
	default: // 0xC0..0xFB, 0xFD..0xFE
		return TableTypeATSC
	}
}

const maxSectionLength = 4093

// SectionHeader is the PSI section header. The long-form fields
// (TransportStreamID through LastSectionNumber) are only meaningful when
// SyntaxIndicator is set.
type SectionHeader struct {
	TableID           uint8
	SyntaxIndicator   bool
	SectionLength     uint16
	TransportStreamID uint16
	Version           uint8
	CurrentNext       bool
	SectionNumber     uint8
	LastSectionNumber uint8
}

// PSI is one program-specific-information section. The table is a closed
// variant: at most one of PAT, PMT, SCTE35 is set; Raw always holds the
// undecoded table body so that tables of other types (or tables whose
// decoder failed) pass through opaquely.
type PSI struct {
	Header SectionHeader
	Type   TableType
	PAT    *PAT
	PMT    *PMT
	SCTE35 *scte35.SpliceInfoSection
	Raw    []byte
	CRC    uint32
}

// UnmarshalPSI parses one PSI section from a TS packet payload. When pusi is
// set the one-byte pointer field is skipped first. The section CRC is read
// but not validated. A table-specific decoder failure is not fatal: the PSI
// is still returned with Raw set, alongside the error, and the caller
// decides whether to surface it.
func UnmarshalPSI(payload []byte, pusi bool) (*PSI, error) {
	if pusi {
		if len(payload) < 1 {
			return nil, fmt.Errorf("%w: empty payload before pointer field", ErrInvalidHeader)
		}
		skip := 1 + int(payload[0])
		if skip > len(payload) {
			return nil, fmt.Errorf("%w: pointer field %d overruns payload", ErrInvalidHeader, payload[0])
		}
		payload = payload[skip:]
	}

	if len(payload) < 3 {
		return nil, fmt.Errorf("%w: %d bytes is too short for a section header", ErrInvalidHeader, len(payload))
	}
	h := SectionHeader{
		TableID:         payload[0],
		SyntaxIndicator: payload[1]&0x80 != 0,
		SectionLength:   uint16(payload[1]&0x0F)<<8 | uint16(payload[2]),
	}
	if h.SectionLength > maxSectionLength {
		return nil, fmt.Errorf("%w: section_length %d exceeds %d", ErrInvalidHeader, h.SectionLength, maxSectionLength)
	}

	body := payload[3:]
	contentLength := int(h.SectionLength) - 4
	if h.SyntaxIndicator {
		if len(body) < 5 {
			return nil, fmt.Errorf("%w: long-form header is truncated", ErrInvalidHeader)
		}
		h.TransportStreamID = uint16(body[0])<<8 | uint16(body[1])
		h.Version = body[2] >> 1 & 0x1F
		h.CurrentNext = body[2]&0x01 != 0
		h.SectionNumber = body[3]
		h.LastSectionNumber = body[4]
		body = body[5:]
		contentLength -= 5
	}
	if contentLength < 0 {
		return nil, fmt.Errorf("%w: section_length %d shorter than its header", ErrInvalidHeader, h.SectionLength)
	}
	if len(body) < contentLength+4 {
		return nil, fmt.Errorf("%w: section body is %d bytes, need %d", ErrInvalidData, len(body), contentLength+4)
	}

	raw := append([]byte(nil), body[:contentLength]...)
	crcBytes := body[contentLength : contentLength+4]
	psi := &PSI{
		Header: h,
		Type:   tableTypeFor(h.TableID),
		Raw:    raw,
		CRC: uint32(crcBytes[0])<<24 | uint32(crcBytes[1])<<16 |
			uint32(crcBytes[2])<<8 | uint32(crcBytes[3]),
	}

	var err error
	switch psi.Type {
	case TableTypePAT:
		psi.PAT, err = UnmarshalPAT(raw)
	case TableTypePMT:
		psi.PMT, err = UnmarshalPMT(raw)
	case TableTypeSCTE35:
		psi.SCTE35, err = scte35.Unmarshal(raw)
	}
	if err != nil {
		psi.PAT, psi.PMT, psi.SCTE35 = nil, nil, nil
		return psi, fmt.Errorf("decoding %s table: %w", psi.Type, err)
	}
	return psi, nil
}

// tableBody marshals the section's table variant.
func (p *PSI) tableBody() ([]byte, error) {
	switch {
	case p.PAT != nil:
		return p.PAT.Marshal(), nil
	case p.PMT != nil:
		return p.PMT.Marshal(), nil
	case p.SCTE35 != nil:
		return p.SCTE35.Marshal()
	default:
		return p.Raw, nil
	}
}

// Marshal encodes the section: a single zero pointer byte, the header with
// reserved bits set, the long-form header when the syntax indicator is set,
// the table body, and a trailing CRC-32/MPEG-2 computed from table_id
// through the end of the table.
func (p *PSI) Marshal() ([]byte, error) {
	body, err := p.tableBody()
	if err != nil {
		return nil, err
	}

	sectionLength := len(body) + 4
	if p.Header.SyntaxIndicator {
		sectionLength += 5
	}
	if sectionLength > maxSectionLength {
		return nil, fmt.Errorf("%w: section_length %d exceeds %d", ErrInvalidHeader, sectionLength, maxSectionLength)
	}
	p.Header.SectionLength = uint16(sectionLength)

	buf := make([]byte, 0, 4+sectionLength)
	buf = append(buf, 0x00) // pointer field
	// Byte 1: syntax(1), private(0), reserved 0b11, then the four high
	// bits of section_length, mirroring the decoder.
	b1 := byte(0x30) | byte(sectionLength>>8&0x0F)
	if p.Header.SyntaxIndicator {
		b1 |= 0x80
	}
	buf = append(buf, p.Header.TableID, b1, byte(sectionLength))

	if p.Header.SyntaxIndicator {
		vb := byte(0xC0) | p.Header.Version<<1&0x3E
		if p.Header.CurrentNext {
			vb |= 0x01
		}
		buf = append(buf,
			byte(p.Header.TransportStreamID>>8), byte(p.Header.TransportStreamID),
			vb, p.Header.SectionNumber, p.Header.LastSectionNumber)
	}

	buf = append(buf, body...)
	crc := crc32MPEG2(buf[1:]) // pointer byte excluded
	p.CRC = crc
	buf = append(buf, byte(crc>>24), byte(crc>>16), byte(crc>>8), byte(crc))
	return buf, nil
}
