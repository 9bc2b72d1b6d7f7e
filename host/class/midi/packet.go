package midi

// USB-MIDI event packets.
//
// All MIDI traffic on a streaming endpoint is framed as fixed 32-bit
// event packets. Byte 0 carries the cable number in its high nibble and
// a code index number (CIN) in its low nibble; the remaining three bytes
// carry the MIDI message, zero-padded.

// EventSize is the wire size of one USB-MIDI event packet.
const EventSize = 4

// Event is a 32-bit USB-MIDI event packet.
type Event [EventSize]byte

// Code index numbers (USB-MIDI 1.0, table 4-1).
const (
	CINMisc             = 0x0 // Reserved for future extensions
	CINCableEvent       = 0x1 // Reserved for future expansion
	CINSystemCommon2    = 0x2 // Two-byte system common message
	CINSystemCommon3    = 0x3 // Three-byte system common message
	CINSysExStart       = 0x4 // SysEx starts or continues
	CINSysExEnd1        = 0x5 // SysEx ends with one byte
	CINSysExEnd2        = 0x6 // SysEx ends with two bytes
	CINSysExEnd3        = 0x7 // SysEx ends with three bytes
	CINNoteOff          = 0x8
	CINNoteOn           = 0x9
	CINPolyKeyPress     = 0xA
	CINControlChange    = 0xB
	CINProgramChange    = 0xC
	CINChannelPressure  = 0xD
	CINPitchBend        = 0xE
	CINSingleByte       = 0xF // Single byte (real-time or unparsed)
)

// MIDI channel voice status bytes.
const (
	StatusNoteOff         = 0x80
	StatusNoteOn          = 0x90
	StatusPolyKeyPressure = 0xA0
	StatusControlChange   = 0xB0
	StatusProgramChange   = 0xC0
	StatusChannelPressure = 0xD0
	StatusPitchBend       = 0xE0
	statusMask            = 0xF0
)

// cinPayloadLength maps a code index number to the number of valid MIDI
// bytes in the packet.
var cinPayloadLength = [16]uint8{
	0, 0, 2, 3, 3, 1, 2, 3, 3, 3, 3, 3, 2, 2, 3, 1,
}

// NewEvent builds an event packet from a cable number, code index
// number, and up to three MIDI bytes.
func NewEvent(cable, cin uint8, midi0, midi1, midi2 byte) Event {
	return Event{(cable&0x0F)<<4 | cin&0x0F, midi0, midi1, midi2}
}

// Cable returns the virtual cable number (0-15) the packet belongs to.
func (e Event) Cable() uint8 {
	return e[0] >> 4
}

// CodeIndex returns the packet's code index number.
func (e Event) CodeIndex() uint8 {
	return e[0] & 0x0F
}

// Payload returns the valid MIDI bytes of the packet.
func (e Event) Payload() []byte {
	return e[1 : 1+cinPayloadLength[e.CodeIndex()]]
}

// EventFromMessage frames a complete MIDI channel voice message as an
// event packet on the given cable. Returns false for messages that are
// not channel voice messages or whose length does not match their status.
func EventFromMessage(cable uint8, msg []byte) (Event, bool) {
	if len(msg) == 0 {
		return Event{}, false
	}

	var cin uint8
	switch msg[0] & statusMask {
	case StatusNoteOff:
		cin = CINNoteOff
	case StatusNoteOn:
		cin = CINNoteOn
	case StatusPolyKeyPressure:
		cin = CINPolyKeyPress
	case StatusControlChange:
		cin = CINControlChange
	case StatusProgramChange:
		cin = CINProgramChange
	case StatusChannelPressure:
		cin = CINChannelPressure
	case StatusPitchBend:
		cin = CINPitchBend
	default:
		return Event{}, false
	}

	if int(cinPayloadLength[cin]) != len(msg) {
		return Event{}, false
	}

	e := Event{(cable&0x0F)<<4 | cin}
	copy(e[1:], msg)
	return e, true
}
