// Package scte35 implements the splice_info_section body carried in PSI
// sections with table_id 0xFC, per ANSI/SCTE 35. The generic PSI layer owns
// the section header and CRC; this package codes everything from
// protocol_version through the descriptor loop. Only splice_null and
// splice_insert commands are decoded; the remaining known command types
// pass through opaquely with their type retained. Timestamps are stored in
// nanoseconds.
package scte35

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnmarshal reports a splice_info_section body that could not be
	// parsed.
	ErrUnmarshal = errors.New("scte35: unmarshal error")

	// ErrUnknownSpliceType reports a splice command type outside the known
	// set.
	ErrUnknownSpliceType = errors.New("scte35: unknown splice command type")
)

// CommandType identifies a splice command.
type CommandType uint8

const (
	CommandSpliceNull           CommandType = 0x00
	CommandSpliceSchedule       CommandType = 0x04
	CommandSpliceInsert         CommandType = 0x05
	CommandTimeSignal           CommandType = 0x06
	CommandBandwidthReservation CommandType = 0x07
	CommandPrivate              CommandType = 0xFF
)

// TierAll is the tier value addressing every authorization tier; New sets
// it as the default. Marshal writes Tier as given.
const TierAll = 0xFFF

// SpliceCommand is the closed variant of command payloads.
type SpliceCommand interface {
	Type() CommandType
	decode(data []byte) error
	encode() ([]byte, error)
}

// BreakDuration specifies the length of a commercial break.
type BreakDuration struct {
	AutoReturn bool
	Duration   time.Duration
}

// SpliceInfoSection is the splice_info_section body. EncryptedPacket being
// false means EncryptionAlgorithm, CWIndex and ECRC32 carry no meaning on
// the wire.
type SpliceInfoSection struct {
	ProtocolVersion     uint8
	EncryptedPacket     bool
	EncryptionAlgorithm uint8
	PTSAdjustment       time.Duration
	CWIndex             uint8
	Tier                uint16
	Command             SpliceCommand
	Descriptors         []byte
	ECRC32              uint32
}

// New returns a section with the encode defaults: tier addressing all
// tiers and a splice_null command.
func New() *SpliceInfoSection {
	return &SpliceInfoSection{Tier: TierAll, Command: &SpliceNull{}}
}

// ticksToDuration converts 90 kHz ticks to nanoseconds, rounding to
// nearest with ties away from zero.
func ticksToDuration(ticks uint64) time.Duration {
	v := int64(ticks) * 100_000
	q := v / 9
	if v%9*2 >= 9 {
		q++
	}
	return time.Duration(q)
}

// durationToTicks converts nanoseconds to 90 kHz ticks, masked to 33 bits.
func durationToTicks(d time.Duration) uint64 {
	sec := int64(d) / int64(time.Second)
	rem := int64(d) % int64(time.Second)
	t := rem * 90_000
	q := t / int64(time.Second)
	if t%int64(time.Second)*2 >= int64(time.Second) {
		q++
	}
	return uint64(sec*90_000+q) & (1<<33 - 1)
}

// Unmarshal decodes a splice_info_section body (everything after the PSI
// section header, without the trailing section CRC).
func Unmarshal(body []byte) (*SpliceInfoSection, error) {
	r := newSectionReader(body)
	sis := &SpliceInfoSection{}

	sis.ProtocolVersion = uint8(r.uint(8))
	sis.EncryptedPacket = r.flag()
	sis.EncryptionAlgorithm = uint8(r.uint(6))
	sis.PTSAdjustment = ticksToDuration(r.uint(33))
	sis.CWIndex = uint8(r.uint(8))
	sis.Tier = uint16(r.uint(12))

	commandLength := int(r.uint(12))
	commandType := CommandType(r.uint(8))
	if commandLength < 1 {
		return nil, fmt.Errorf("%w: splice_command_length %d", ErrUnmarshal, commandLength)
	}
	commandBody := r.bytes(commandLength - 1)
	if err := r.err(); err != nil {
		return nil, fmt.Errorf("splice command overruns section: %w", err)
	}

	cmd, err := decodeCommand(commandType, commandBody)
	if err != nil {
		return nil, err
	}
	sis.Command = cmd

	descriptorLoopLength := int(r.uint(16))
	sis.Descriptors = r.bytes(descriptorLoopLength)
	if sis.EncryptedPacket {
		sis.ECRC32 = uint32(r.uint(32))
	}
	if err := r.err(); err != nil {
		return nil, fmt.Errorf("descriptor loop overruns section: %w", err)
	}
	return sis, nil
}

func decodeCommand(typ CommandType, body []byte) (SpliceCommand, error) {
	var cmd SpliceCommand
	switch typ {
	case CommandSpliceNull:
		cmd = &SpliceNull{}
	case CommandSpliceInsert:
		cmd = &SpliceInsert{}
	case CommandSpliceSchedule, CommandTimeSignal, CommandBandwidthReservation, CommandPrivate:
		cmd = &RawCommand{CommandType: typ}
	default:
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownSpliceType, typ)
	}
	if err := cmd.decode(body); err != nil {
		return nil, err
	}
	return cmd, nil
}

// Marshal encodes the section body. Reserved fields are emitted as
// all-ones; the encrypted_packet bit is a projection of the boolean, and
// e_crc32 follows the descriptor loop only when it is set.
func (sis *SpliceInfoSection) Marshal() ([]byte, error) {
	cmd := sis.Command
	if cmd == nil {
		cmd = &SpliceNull{}
	}
	cmdBody, err := cmd.encode()
	if err != nil {
		return nil, err
	}

	size := 11 + len(cmdBody) + 2 + len(sis.Descriptors)
	if sis.EncryptedPacket {
		size += 4
	}
	w := newSectionWriter(size)

	w.uint(8, uint64(sis.ProtocolVersion))
	w.flag(sis.EncryptedPacket)
	w.uint(6, uint64(sis.EncryptionAlgorithm))
	w.uint(33, durationToTicks(sis.PTSAdjustment))
	w.uint(8, uint64(sis.CWIndex))
	w.uint(12, uint64(sis.Tier))
	w.uint(12, uint64(len(cmdBody)+1))
	w.uint(8, uint64(cmd.Type()))
	w.bytes(cmdBody)
	w.uint(16, uint64(len(sis.Descriptors)))
	w.bytes(sis.Descriptors)
	if sis.EncryptedPacket {
		w.uint(32, uint64(sis.ECRC32))
	}
	return w.buf, nil
}

// RawCommand carries a known but undecoded splice command verbatim.
type RawCommand struct {
	CommandType CommandType
	Data        []byte
}

func (c *RawCommand) Type() CommandType { return c.CommandType }

func (c *RawCommand) decode(data []byte) error {
	c.Data = append([]byte(nil), data...)
	return nil
}

func (c *RawCommand) encode() ([]byte, error) {
	return c.Data, nil
}
