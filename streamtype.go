package mpegts

// StreamType identifies the elementary stream format declared by a PMT
// stream_type id.
type StreamType int

const (
	StreamTypeUnknown StreamType = iota
	StreamTypeMPEG1Video
	StreamTypeMPEG2Video
	StreamTypeMPEG1Audio
	StreamTypeMPEG2Audio
	StreamTypePrivateSections
	StreamTypePrivateData
	StreamTypeMHEG
	StreamTypeDSMCC
	StreamTypeADTSAAC
	StreamTypeMPEG4Video
	StreamTypeLATMAAC
	StreamTypeMetadataPES
	StreamTypeIPMP
	StreamTypeH264
	StreamTypeHEVC
	StreamTypeVVC
	StreamTypeAC3
	StreamTypeSCTE35
	StreamTypeEAC3
)

// StreamCategory is the coarse grouping that drives demuxer aggregator
// creation and muxer PES stream-id assignment.
type StreamCategory int

const (
	CategoryOther StreamCategory = iota
	CategoryVideo
	CategoryAudio
	CategorySubtitles
	CategoryCues
	CategoryMetadata
	CategoryIPMP
	CategoryData
)

func (c StreamCategory) String() string {
	switch c {
	case CategoryVideo:
		return "video"
	case CategoryAudio:
		return "audio"
	case CategorySubtitles:
		return "subtitles"
	case CategoryCues:
		return "cues"
	case CategoryMetadata:
		return "metadata"
	case CategoryIPMP:
		return "ipmp"
	case CategoryData:
		return "data"
	default:
		return "other"
	}
}

type streamTypeInfo struct {
	Type     StreamType
	Category StreamCategory
}

// streamTypes is the authoritative stream_type mapping, broadcast-TS
// semantics (0x86 is the SCTE-35 cue stream, not DTS-HD). DVB subtitles
// ride stream_type 0x06 with descriptor 0x59; ES descriptors are not
// parsed, so 0x06 stays in the data category.
var streamTypes = map[uint8]streamTypeInfo{
	0x01: {StreamTypeMPEG1Video, CategoryVideo},
	0x02: {StreamTypeMPEG2Video, CategoryVideo},
	0x03: {StreamTypeMPEG1Audio, CategoryAudio},
	0x04: {StreamTypeMPEG2Audio, CategoryAudio},
	0x05: {StreamTypePrivateSections, CategoryData},
	0x06: {StreamTypePrivateData, CategoryData},
	0x07: {StreamTypeMHEG, CategoryData},
	0x08: {StreamTypeDSMCC, CategoryData},
	0x0A: {StreamTypeDSMCC, CategoryData},
	0x0B: {StreamTypeDSMCC, CategoryData},
	0x0C: {StreamTypeDSMCC, CategoryData},
	0x0D: {StreamTypeDSMCC, CategoryData},
	0x0F: {StreamTypeADTSAAC, CategoryAudio},
	0x10: {StreamTypeMPEG4Video, CategoryVideo},
	0x11: {StreamTypeLATMAAC, CategoryAudio},
	0x15: {StreamTypeMetadataPES, CategoryMetadata},
	0x1A: {StreamTypeIPMP, CategoryIPMP},
	0x1B: {StreamTypeH264, CategoryVideo},
	0x24: {StreamTypeHEVC, CategoryVideo},
	0x33: {StreamTypeVVC, CategoryVideo},
	0x7F: {StreamTypeIPMP, CategoryIPMP},
	0x81: {StreamTypeAC3, CategoryAudio},
	0x86: {StreamTypeSCTE35, CategoryCues},
	0x87: {StreamTypeEAC3, CategoryAudio},
}

// lookupStreamType returns the mapping for the id; unknown ids map to
// StreamTypeUnknown in CategoryOther.
func lookupStreamType(id uint8) streamTypeInfo {
	if info, ok := streamTypes[id]; ok {
		return info
	}
	return streamTypeInfo{StreamTypeUnknown, CategoryOther}
}

func knownStreamType(id uint8) bool {
	_, ok := streamTypes[id]
	return ok
}
