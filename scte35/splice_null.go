package scte35

// SpliceNull is the heartbeat command; it carries no payload.
type SpliceNull struct{}

func (c *SpliceNull) Type() CommandType { return CommandSpliceNull }

func (c *SpliceNull) decode(data []byte) error { return nil }

func (c *SpliceNull) encode() ([]byte, error) { return nil, nil }
