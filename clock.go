package mpegts

import "time"

// Wire clocks. PTS/DTS and the PCR base tick at 90 kHz, the PCR extension at
// 27 MHz. The model keeps every timestamp as a time.Duration; the 90 kHz and
// 27 MHz units exist only at the wire boundary.
const (
	ticksPerSecond90k = 90_000
	ticksPerSecond27M = 27_000_000
	pcrExtPerBase     = 300
)

// rolloverPeriod is the span of the 33-bit 90 kHz counter, ~26.5 hours.
var rolloverPeriod = durationFromTicks90(1 << 33)

// divRound divides non-negative a by positive b, rounding to nearest with
// ties away from zero.
func divRound(a, b int64) int64 {
	q := a / b
	if (a%b)*2 >= b {
		q++
	}
	return q
}

// durationFromTicks90 converts a 90 kHz tick count to a duration.
// 1e9/90_000 reduces to 100_000/9, which keeps 33-bit inputs well inside
// int64 range before the division.
func durationFromTicks90(t int64) time.Duration {
	return time.Duration(divRound(t*100_000, 9))
}

// ticks90FromDuration converts a duration to 90 kHz ticks. Seconds and the
// sub-second remainder are converted separately so arbitrarily large
// durations never overflow.
func ticks90FromDuration(d time.Duration) int64 {
	sec := int64(d) / int64(time.Second)
	rem := int64(d) % int64(time.Second)
	return sec*ticksPerSecond90k + divRound(rem*ticksPerSecond90k, int64(time.Second))
}

// pcr27FromDuration converts a duration to 27 MHz PCR units.
func pcr27FromDuration(d time.Duration) int64 {
	sec := int64(d) / int64(time.Second)
	rem := int64(d) % int64(time.Second)
	return sec*ticksPerSecond27M + divRound(rem*27, 1000)
}

// durationFromPCR converts a PCR base (90 kHz) plus extension (27 MHz,
// 0..299) pair to a duration.
func durationFromPCR(base, ext int64) time.Duration {
	return durationFromTicks90(base) + time.Duration(divRound(ext*1000, 27))
}

// splitPCR converts a duration to the wire base/extension pair.
func splitPCR(d time.Duration) (base, ext int64) {
	pcr := pcr27FromDuration(d)
	return pcr / pcrExtPerBase, pcr % pcrExtPerBase
}
