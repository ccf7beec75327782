package mpegts

import "errors"

// Stable error kinds forming the observable failure surface. Call sites wrap
// these with fmt.Errorf("...: %w", ...) so callers can discriminate with
// errors.Is.
var (
	// ErrInvalidPacket reports a missing sync byte or a structural failure
	// inside a 188-byte frame.
	ErrInvalidPacket = errors.New("mpegts: invalid packet")

	// ErrInvalidData reports a length field inconsistent with the bytes
	// available inside an otherwise valid frame.
	ErrInvalidData = errors.New("mpegts: invalid data")

	// ErrNotEnoughData reports a tail shorter than one packet.
	ErrNotEnoughData = errors.New("mpegts: not enough data")

	// ErrUnsupportedPacket reports a reserved adaptation_field_control or a
	// scrambled PES.
	ErrUnsupportedPacket = errors.New("mpegts: unsupported packet")

	// ErrInvalidHeader reports a malformed PSI section header.
	ErrInvalidHeader = errors.New("mpegts: invalid PSI header")

	// ErrMultiStreamID reports a PES finalised from fragments with
	// conflicting stream ids. Continuation fragments never parse a header,
	// so the built-in assembly path cannot produce it; the kind stays part
	// of the stable error surface for callers that finalise fragments from
	// other producers.
	ErrMultiStreamID = errors.New("mpegts: conflicting PES stream ids")

	// ErrSizeMismatch reports an accumulated PES shorter than its declared
	// length.
	ErrSizeMismatch = errors.New("mpegts: PES shorter than declared length")

	// Muxer-side errors.
	ErrDuplicatePID      = errors.New("mpegts: PID already in use")
	ErrUnknownStreamType = errors.New("mpegts: unknown stream type")
	ErrUnknownPID        = errors.New("mpegts: PID not declared")
	ErrNoPCRPID          = errors.New("mpegts: no PCR carrier declared")
)
