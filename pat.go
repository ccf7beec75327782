package mpegts

import (
	"fmt"
	"sort"
)

// PAT maps program numbers to the PIDs carrying their PMT. Program 0 is
// conventionally the network PID and is carried like any other entry.
type PAT struct {
	Programs map[uint16]uint16
}

// UnmarshalPAT decodes the PAT table body: a concatenation of 4-byte
// entries program_number(16), reserved(3), pid(13).
func UnmarshalPAT(body []byte) (*PAT, error) {
	if len(body)%4 != 0 {
		return nil, fmt.Errorf("%w: PAT body of %d bytes is not a multiple of 4", ErrInvalidData, len(body))
	}
	pat := &PAT{Programs: make(map[uint16]uint16, len(body)/4)}
	for i := 0; i < len(body); i += 4 {
		program := uint16(body[i])<<8 | uint16(body[i+1])
		pid := uint16(body[i+2]&0x1F)<<8 | uint16(body[i+3])
		pat.Programs[program] = pid
	}
	return pat, nil
}

// Marshal encodes the entries ordered by program number so output bytes are
// deterministic. Reserved bits are set to ones.
func (p *PAT) Marshal() []byte {
	programs := make([]int, 0, len(p.Programs))
	for program := range p.Programs {
		programs = append(programs, int(program))
	}
	sort.Ints(programs)

	buf := make([]byte, 0, 4*len(programs))
	for _, program := range programs {
		pid := p.Programs[uint16(program)]
		buf = append(buf,
			byte(program>>8), byte(program),
			0xE0|byte(pid>>8&0x1F), byte(pid))
	}
	return buf
}
