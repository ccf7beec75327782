package scte35

import (
	"fmt"
	"time"
)

// SpliceInsert signals a splice point. Only the program splice profile is
// supported (program_splice_flag set); component splices are rejected.
// A nil SpliceTime means the splice is immediate.
type SpliceInsert struct {
	EventID           uint32
	CancelIndicator   bool
	OutOfNetwork      bool
	EventIDCompliance bool
	SpliceTime        *time.Duration
	BreakDuration     *BreakDuration
	UniqueProgramID   uint16
	AvailNum          uint8
	AvailsExpected    uint8
}

func (c *SpliceInsert) Type() CommandType { return CommandSpliceInsert }

func (c *SpliceInsert) decode(data []byte) error {
	r := newSectionReader(data)

	c.EventID = uint32(r.uint(32))
	c.CancelIndicator = r.flag()
	r.reserved(7)

	if !c.CancelIndicator {
		c.OutOfNetwork = r.flag()
		programSpliceFlag := r.flag()
		durationFlag := r.flag()
		immediateFlag := r.flag()
		c.EventIDCompliance = r.flag()
		r.reserved(3)

		if !programSpliceFlag {
			return fmt.Errorf("%w: component splice_insert is not supported", ErrUnmarshal)
		}

		if !immediateFlag {
			if r.flag() { // time_specified_flag
				r.reserved(6)
				t := ticksToDuration(r.uint(33))
				c.SpliceTime = &t
			} else {
				r.reserved(7)
			}
		}

		if durationFlag {
			bd := &BreakDuration{AutoReturn: r.flag()}
			r.reserved(6)
			bd.Duration = ticksToDuration(r.uint(33))
			c.BreakDuration = bd
		}

		c.UniqueProgramID = uint16(r.uint(16))
		c.AvailNum = uint8(r.uint(8))
		c.AvailsExpected = uint8(r.uint(8))
	}

	if err := r.err(); err != nil {
		return fmt.Errorf("splice_insert: %w", err)
	}
	return nil
}

func (c *SpliceInsert) encode() ([]byte, error) {
	bits := 32 + 1 + 7
	if !c.CancelIndicator {
		bits += 5 + 3
		if c.SpliceTime != nil {
			bits += 1 + 6 + 33
		}
		if c.BreakDuration != nil {
			bits += 1 + 6 + 33
		}
		bits += 16 + 8 + 8
	}
	w := newSectionWriter(bits / 8)

	w.uint(32, uint64(c.EventID))
	w.flag(c.CancelIndicator)
	w.reserved(7)

	if !c.CancelIndicator {
		w.flag(c.OutOfNetwork)
		w.flag(true) // program_splice_flag
		w.flag(c.BreakDuration != nil)
		w.flag(c.SpliceTime == nil) // splice_immediate_flag
		w.flag(c.EventIDCompliance)
		w.reserved(3)

		if c.SpliceTime != nil {
			w.flag(true) // time_specified_flag
			w.reserved(6)
			w.uint(33, durationToTicks(*c.SpliceTime))
		}
		if c.BreakDuration != nil {
			w.flag(c.BreakDuration.AutoReturn)
			w.reserved(6)
			w.uint(33, durationToTicks(c.BreakDuration.Duration))
		}

		w.uint(16, uint64(c.UniqueProgramID))
		w.uint(8, uint64(c.AvailNum))
		w.uint(8, uint64(c.AvailsExpected))
	}

	return w.buf, nil
}
