package midi

import (
	"sync/atomic"
)

// vcable is one entry in the virtual cable table: an embedded jack ID
// paired with the endpoint that carries its traffic. The cable's nominal
// direction is the direction of its endpoint.
type vcable struct {
	jackID   uint8
	endpoint uint8
}

// v1State is the MIDI 1.0 variant of a record's I/O state: the virtual
// cable table per direction, and one stream buffer per opened endpoint.
type v1State struct {
	cableIn       [MaxCables]vcable
	cableInCount  uint8
	cableOut      [MaxCables]vcable
	cableOutCount uint8

	// Stream buffers indexed parallel to the record's endpoint lists.
	streamIn  [MaxEndpointsPerDirection]*StreamBuffer
	streamOut [MaxEndpointsPerDirection]*StreamBuffer
}

// GroupTerminalBlock associates a MIDI 2.0 block ID with the endpoint
// that carries it.
type GroupTerminalBlock struct {
	Endpoint  uint8
	BlockID   uint8
	BlockType uint8
}

// v2State is the MIDI 2.0 variant of a record's I/O state. The upstream
// descriptor walk for Group Terminal Blocks does not exist yet, so these
// slots are populated only by future enumeration work.
type v2State struct {
	blocks     [MaxGroupTerminalBlocks]GroupTerminalBlock
	blockCount uint8
}

// ioState is the version-specific I/O state of a record, a tagged
// variant selected by spec. Exactly one of v1/v2 is meaningful; every
// reader switches on the tag.
type ioState struct {
	spec SpecVersion
	v1   v1State
	v2   v2State
}

// ifaceRecord is the per-interface state of one enumerated MIDI
// Streaming interface. A zero dev marks a free slot.
type ifaceRecord struct {
	dev    uint8
	itfNum uint8

	device Transport

	// Lifecycle flags. Both are read by application polling and written
	// by the enumeration/completion paths, so each is a single
	// atomically-updated word.
	configured atomic.Bool
	mounted    atomic.Bool

	epIn       [MaxEndpointsPerDirection]uint8
	epInCount  uint8
	epOut      [MaxEndpointsPerDirection]uint8
	epOutCount uint8

	io ioState
}

// reset returns the record to the free state. Stream buffers must be
// released to the pool by the caller before reset.
func (r *ifaceRecord) reset() {
	r.dev = 0
	r.itfNum = 0
	r.device = nil
	r.configured.Store(false)
	r.mounted.Store(false)
	r.epIn = [MaxEndpointsPerDirection]uint8{}
	r.epInCount = 0
	r.epOut = [MaxEndpointsPerDirection]uint8{}
	r.epOutCount = 0
	r.io = ioState{}
}

// addEndpoint appends an endpoint address to the record's list for its
// direction. Returns false when the list is full; the endpoint is then
// dropped rather than failing the interface.
func (r *ifaceRecord) addEndpoint(epAddr uint8) bool {
	if DirectionOf(epAddr) == DirIn {
		if r.epInCount >= MaxEndpointsPerDirection {
			return false
		}
		r.epIn[r.epInCount] = epAddr
		r.epInCount++
		return true
	}
	if r.epOutCount >= MaxEndpointsPerDirection {
		return false
	}
	r.epOut[r.epOutCount] = epAddr
	r.epOutCount++
	return true
}

// hasEndpoint reports whether epAddr is in the record's endpoint list
// for the address's direction.
func (r *ifaceRecord) hasEndpoint(epAddr uint8) bool {
	eps, count := r.endpointList(DirectionOf(epAddr))
	for i := 0; i < count; i++ {
		if eps[i] == epAddr {
			return true
		}
	}
	return false
}

// endpointList returns the endpoint array and live count for a direction.
func (r *ifaceRecord) endpointList(dir Direction) (*[MaxEndpointsPerDirection]uint8, int) {
	if dir == DirIn {
		return &r.epIn, int(r.epInCount)
	}
	return &r.epOut, int(r.epOutCount)
}

// addCable appends a cable entry for the direction of its endpoint.
// Returns false when the cable table is full; the cable is then dropped.
func (r *ifaceRecord) addCable(jackID, epAddr uint8) bool {
	v1 := &r.io.v1
	if DirectionOf(epAddr) == DirIn {
		if v1.cableInCount >= MaxCables {
			return false
		}
		v1.cableIn[v1.cableInCount] = vcable{jackID: jackID, endpoint: epAddr}
		v1.cableInCount++
		return true
	}
	if v1.cableOutCount >= MaxCables {
		return false
	}
	v1.cableOut[v1.cableOutCount] = vcable{jackID: jackID, endpoint: epAddr}
	v1.cableOutCount++
	return true
}

// cableTable returns the cable array and live count for a direction.
func (r *ifaceRecord) cableTable(dir Direction) (*[MaxCables]vcable, int) {
	if dir == DirIn {
		return &r.io.v1.cableIn, int(r.io.v1.cableInCount)
	}
	return &r.io.v1.cableOut, int(r.io.v1.cableOutCount)
}

// stream returns the stream buffer bound to the index-th endpoint of a
// direction, or nil.
func (r *ifaceRecord) stream(dir Direction, index int) *StreamBuffer {
	v1 := &r.io.v1
	if dir == DirIn {
		if index < 0 || index >= int(r.epInCount) {
			return nil
		}
		return v1.streamIn[index]
	}
	if index < 0 || index >= int(r.epOutCount) {
		return nil
	}
	return v1.streamOut[index]
}

// streamByEndpoint returns the stream buffer bound to an endpoint
// address, or nil if the endpoint is not part of this record.
func (r *ifaceRecord) streamByEndpoint(epAddr uint8) *StreamBuffer {
	dir := DirectionOf(epAddr)
	eps, count := r.endpointList(dir)
	for i := 0; i < count; i++ {
		if eps[i] == epAddr {
			return r.stream(dir, i)
		}
	}
	return nil
}

// bindStream binds a stream buffer to the index-th endpoint of a
// direction.
func (r *ifaceRecord) bindStream(dir Direction, index int, sb *StreamBuffer) {
	if dir == DirIn {
		r.io.v1.streamIn[index] = sb
	} else {
		r.io.v1.streamOut[index] = sb
	}
}
