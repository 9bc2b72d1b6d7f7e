package midi

import "fmt"

// Audio interface class codes (USB Audio Class specification).
const (
	ClassAudio            = 0x01 // bInterfaceClass for all audio functions
	SubclassAudioControl  = 0x01 // Audio Control interface
	SubclassMIDIStreaming = 0x03 // MIDI Streaming interface
)

// Class-specific descriptor types (USB-MIDI 1.0 specification).
const (
	DescriptorTypeCSInterface = 0x24 // Class-specific interface descriptor
	DescriptorTypeCSEndpoint  = 0x25 // Class-specific endpoint descriptor
)

// Class-specific interface descriptor subtypes.
const (
	SubtypeMSHeader  = 0x01 // MS_HEADER
	SubtypeInJack    = 0x02 // MIDI_IN_JACK
	SubtypeOutJack   = 0x03 // MIDI_OUT_JACK
	SubtypeElement   = 0x04 // ELEMENT
	SubtypeMSGeneral = 0x01 // MS_GENERAL (class-specific endpoint)
)

// Jack types.
const (
	JackTypeEmbedded = 0x01 // Jack backed by a USB endpoint
	JackTypeExternal = 0x02 // Physical jack on the device
)

// SpecVersion identifies the USB MIDI class specification version an
// interface was enumerated under.
type SpecVersion uint8

// Supported spec versions.
const (
	SpecVersionUnknown SpecVersion = 0
	SpecVersion1       SpecVersion = 1 // USB-MIDI 1.0 (bcdMSC 0x0100)
	SpecVersion2       SpecVersion = 2 // USB-MIDI 2.0 (bcdMSC 0x0200)
)

// Binary-coded-decimal version values carried in the MS header descriptor.
const (
	bcdMSC10 = 0x0100
	bcdMSC20 = 0x0200
)

// String returns a human-readable spec version name.
func (v SpecVersion) String() string {
	switch v {
	case SpecVersion1:
		return "USB-MIDI 1.0"
	case SpecVersion2:
		return "USB-MIDI 2.0"
	default:
		return fmt.Sprintf("Unknown Version (%d)", v)
	}
}

// SpecVersionSupported reports whether the driver was built with support
// for the given spec version.
func SpecVersionSupported(v SpecVersion) bool {
	switch v {
	case SpecVersion1, SpecVersion2:
		return true
	default:
		return false
	}
}

// Direction identifies a transfer direction relative to the host.
type Direction uint8

// Transfer directions.
const (
	DirOut Direction = 0 // Host to device
	DirIn  Direction = 1 // Device to host
)

// String returns a human-readable direction name.
func (d Direction) String() string {
	if d == DirIn {
		return "IN"
	}
	return "OUT"
}

// DirectionOf returns the direction encoded in an endpoint address.
func DirectionOf(epAddr uint8) Direction {
	if epAddr&0x80 != 0 {
		return DirIn
	}
	return DirOut
}

// Maximum limits for fixed-size arrays.
const (
	// MaxInterfaces is the capacity of the interface registry.
	MaxInterfaces = 4

	// MaxEndpointsPerDirection is the endpoint list capacity per record
	// and direction.
	MaxEndpointsPerDirection = 4

	// MaxCables is the cable table capacity per record and direction.
	// The USB-MIDI packet format carries a 4-bit cable number, so no
	// endpoint can multiplex more than 16 cables.
	MaxCables = 16

	// MaxGroupTerminalBlocks is the Group Terminal Block capacity per
	// MIDI 2.0 record.
	MaxGroupTerminalBlocks = 8

	// MaxStreamBuffers is the stream buffer pool size: one buffer per
	// simultaneously opened endpoint across all interfaces.
	MaxStreamBuffers = MaxInterfaces * MaxEndpointsPerDirection * 2

	// StreamBufferSize is the ring buffer capacity of one stream buffer.
	StreamBufferSize = 256

	// StreamTransferSize is the staging area size for one USB transfer,
	// matching the full-speed bulk max packet size.
	StreamTransferSize = 64
)

// MSHeaderDescriptor is the class-specific MS interface header that
// immediately follows a MIDI Streaming interface descriptor.
type MSHeaderDescriptor struct {
	Length            uint8
	DescriptorType    uint8
	DescriptorSubtype uint8
	BCDMSC            uint16
	TotalLength       uint16
}

// MSHeaderDescriptorSize is the size of an MS header descriptor.
const MSHeaderDescriptorSize = 7

// ParseMSHeaderDescriptor parses an MS header descriptor from data.
func ParseMSHeaderDescriptor(data []byte, out *MSHeaderDescriptor) bool {
	if len(data) < MSHeaderDescriptorSize {
		return false
	}
	out.Length = data[0]
	out.DescriptorType = data[1]
	out.DescriptorSubtype = data[2]
	out.BCDMSC = uint16(data[3]) | uint16(data[4])<<8
	out.TotalLength = uint16(data[5]) | uint16(data[6])<<8
	return out.Length >= MSHeaderDescriptorSize &&
		out.DescriptorType == DescriptorTypeCSInterface &&
		out.DescriptorSubtype == SubtypeMSHeader
}

// MSEndpointDescriptor is the class-specific MS endpoint descriptor that
// follows each standard endpoint descriptor of a MIDI Streaming
// interface, enumerating the embedded jacks multiplexed onto it.
type MSEndpointDescriptor struct {
	Length            uint8
	DescriptorType    uint8
	DescriptorSubtype uint8
	NumEmbeddedJacks  uint8
	JackIDs           [MaxCables]uint8
}

// MSEndpointDescriptorBaseSize is the size of an MS endpoint descriptor
// with no jack IDs.
const MSEndpointDescriptorBaseSize = 4

// ParseMSEndpointDescriptor parses an MS endpoint descriptor from data.
// Jack IDs beyond MaxCables are dropped; a declared jack count that runs
// past the descriptor's own length fails the parse.
func ParseMSEndpointDescriptor(data []byte, out *MSEndpointDescriptor) bool {
	if len(data) < MSEndpointDescriptorBaseSize {
		return false
	}
	out.Length = data[0]
	out.DescriptorType = data[1]
	out.DescriptorSubtype = data[2]
	out.NumEmbeddedJacks = data[3]

	if out.DescriptorType != DescriptorTypeCSEndpoint ||
		out.DescriptorSubtype != SubtypeMSGeneral {
		return false
	}
	declared := MSEndpointDescriptorBaseSize + int(out.NumEmbeddedJacks)
	if int(out.Length) < declared || declared > len(data) {
		return false
	}
	n := int(out.NumEmbeddedJacks)
	if n > MaxCables {
		n = MaxCables
	}
	copy(out.JackIDs[:n], data[MSEndpointDescriptorBaseSize:MSEndpointDescriptorBaseSize+n])
	return true
}
