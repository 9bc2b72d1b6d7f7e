package midi

import (
	"context"

	"github.com/lightsource-nz/tinyusb/pkg"
)

// Application API.
//
// Every operation here takes the Handle delivered by the mount callback
// (or returned by [Driver.Lookup]) and fails fast on a stale or invalid
// handle. Query operations on an unmounted interface return zero values;
// I/O operations return [pkg.ErrNotMounted].

// Mounted reports whether the interface a handle refers to is mounted
// and available for I/O.
func (d *Driver) Mounted(h Handle) bool {
	r := d.record(h)
	return r != nil && r.mounted.Load()
}

// SpecVersion returns the MIDI spec version of the interface, or
// SpecVersionUnknown for an invalid handle.
func (d *Driver) SpecVersion(h Handle) SpecVersion {
	r := d.record(h)
	if r == nil {
		return SpecVersionUnknown
	}
	return r.io.spec
}

// DeviceAddress returns the address of the device the interface belongs
// to, or 0 for an invalid handle.
func (d *Driver) DeviceAddress(h Handle) uint8 {
	r := d.record(h)
	if r == nil {
		return 0
	}
	return r.dev
}

// InterfaceNumber returns the streaming interface number of the
// interface, or 0 for an invalid handle.
func (d *Driver) InterfaceNumber(h Handle) uint8 {
	r := d.record(h)
	if r == nil {
		return 0
	}
	return r.itfNum
}

// EndpointCount returns the number of opened endpoints in a direction.
func (d *Driver) EndpointCount(h Handle, dir Direction) int {
	r := d.record(h)
	if r == nil {
		return 0
	}
	_, count := r.endpointList(dir)
	return count
}

// EndpointReady reports whether the index-th endpoint of a direction is
// mounted and has no transfer in flight.
func (d *Driver) EndpointReady(h Handle, dir Direction, index int) bool {
	r := d.record(h)
	if r == nil || !r.mounted.Load() {
		return false
	}
	eps, count := r.endpointList(dir)
	if index < 0 || index >= count {
		return false
	}
	return !r.device.EndpointBusy(eps[index])
}

// CableCount returns the number of virtual cables in a direction. Only
// MIDI 1.0 interfaces carry a cable table; anything else reports 0.
func (d *Driver) CableCount(h Handle, dir Direction) int {
	r := d.record(h)
	if r == nil || r.io.spec != SpecVersion1 {
		return 0
	}
	_, count := r.cableTable(dir)
	return count
}

// CableJackID returns the embedded jack ID of the index-th cable in a
// direction.
func (d *Driver) CableJackID(h Handle, dir Direction, index int) (uint8, error) {
	c, err := d.cable(h, dir, index)
	if err != nil {
		return 0, err
	}
	return c.jackID, nil
}

// CableEndpoint returns the endpoint address carrying the index-th
// cable in a direction.
func (d *Driver) CableEndpoint(h Handle, dir Direction, index int) (uint8, error) {
	c, err := d.cable(h, dir, index)
	if err != nil {
		return 0, err
	}
	return c.endpoint, nil
}

// CableReady reports whether the index-th cable of a direction can
// accept a transfer: the interface is mounted and the cable's endpoint
// has none in flight.
func (d *Driver) CableReady(h Handle, dir Direction, index int) bool {
	r := d.record(h)
	if r == nil || !r.mounted.Load() || r.io.spec != SpecVersion1 {
		return false
	}
	cables, count := r.cableTable(dir)
	if index < 0 || index >= count {
		return false
	}
	return !r.device.EndpointBusy(cables[index].endpoint)
}

func (d *Driver) cable(h Handle, dir Direction, index int) (vcable, error) {
	r := d.record(h)
	if r == nil {
		return vcable{}, pkg.ErrInvalidHandle
	}
	if r.io.spec != SpecVersion1 {
		return vcable{}, pkg.ErrNotSupported
	}
	cables, count := r.cableTable(dir)
	if index < 0 || index >= count {
		return vcable{}, pkg.ErrInvalidEndpoint
	}
	return cables[index], nil
}

// ioStream resolves the stream buffer for I/O on the index-th endpoint
// of a direction, enforcing the mount requirement.
func (d *Driver) ioStream(h Handle, dir Direction, index int) (*StreamBuffer, error) {
	r := d.record(h)
	if r == nil {
		return nil, pkg.ErrInvalidHandle
	}
	if !r.mounted.Load() {
		return nil, pkg.ErrNotMounted
	}
	sb := r.stream(dir, index)
	if sb == nil {
		return nil, pkg.ErrInvalidEndpoint
	}
	return sb, nil
}

// StreamWrite queues bytes toward the index-th OUT endpoint, returning
// how many were accepted. Queued bytes are not transmitted until
// [Driver.StreamFlush] (or a chained completion) stages them.
func (d *Driver) StreamWrite(h Handle, index int, p []byte) (int, error) {
	sb, err := d.ioStream(h, DirOut, index)
	if err != nil {
		return 0, err
	}
	return sb.Write(p), nil
}

// StreamWriteAvailable returns how many bytes StreamWrite would accept
// on the index-th OUT endpoint, or 0 on any failure.
func (d *Driver) StreamWriteAvailable(h Handle, index int) int {
	sb, err := d.ioStream(h, DirOut, index)
	if err != nil {
		return 0
	}
	return sb.WriteAvailable()
}

// StreamFlush starts transmitting queued bytes on the index-th OUT
// endpoint. It returns once the transfer is submitted; completions
// chain further transfers until the queue drains.
func (d *Driver) StreamFlush(h Handle, index int) error {
	sb, err := d.ioStream(h, DirOut, index)
	if err != nil {
		return err
	}
	return sb.Flush()
}

// StreamFlushSync flushes the index-th OUT endpoint and waits for the
// queue and the in-flight transfer to drain, bounded by ctx.
func (d *Driver) StreamFlushSync(ctx context.Context, h Handle, index int) error {
	sb, err := d.ioStream(h, DirOut, index)
	if err != nil {
		return err
	}
	return sb.FlushSync(ctx)
}

// StreamRead pops received bytes from the index-th IN endpoint. A read
// that finds the queue empty arms a receive transfer and returns 0; the
// data arrives on a later call.
func (d *Driver) StreamRead(h Handle, index int, p []byte) (int, error) {
	sb, err := d.ioStream(h, DirIn, index)
	if err != nil {
		return 0, err
	}
	return sb.Read(p), nil
}

// StreamReadAvailable returns how many received bytes are queued on the
// index-th IN endpoint, or 0 on any failure.
func (d *Driver) StreamReadAvailable(h Handle, index int) int {
	sb, err := d.ioStream(h, DirIn, index)
	if err != nil {
		return 0
	}
	return sb.ReadAvailable()
}

// PacketWrite queues one event packet on the index-th OUT endpoint and
// starts transmission. Fails with [pkg.ErrBusy] when the queue cannot
// hold a whole packet; the caller retries after a completion drains it.
func (d *Driver) PacketWrite(h Handle, index int, ev Event) error {
	sb, err := d.ioStream(h, DirOut, index)
	if err != nil {
		return err
	}
	if sb.WriteAvailable() < EventSize {
		return pkg.ErrBusy
	}
	sb.Write(ev[:])
	return sb.Flush()
}

// PacketRead pops one event packet from the index-th IN endpoint.
// Returns false when no whole packet is queued; an empty queue also
// arms the next receive transfer. Invalid handles and unmounted
// interfaces report false.
func (d *Driver) PacketRead(h Handle, index int) (Event, bool) {
	var ev Event
	sb, err := d.ioStream(h, DirIn, index)
	if err != nil {
		return ev, false
	}
	if sb.ReadAvailable() < EventSize {
		// Arms the transfer when idle.
		sb.Read(nil)
		return ev, false
	}
	n := sb.Read(ev[:])
	return ev, n == EventSize
}

// MessageWrite encodes a plain MIDI message as an event packet on the
// given cable and queues it toward the cable's endpoint. cableIndex is
// interface-scoped; the packet carries the cable's number within its
// own endpoint.
func (d *Driver) MessageWrite(h Handle, cableIndex int, msg []byte) error {
	c, err := d.cable(h, DirOut, cableIndex)
	if err != nil {
		return err
	}
	r := d.record(h)

	// Wire cable numbers restart at 0 on every endpoint: the cable's
	// ordinal among the embedded jacks multiplexed onto its endpoint.
	// The cable table preserves per-endpoint jack order, so counting
	// earlier entries on the same endpoint recovers it.
	cables, _ := r.cableTable(DirOut)
	var wire uint8
	for i := 0; i < cableIndex; i++ {
		if cables[i].endpoint == c.endpoint {
			wire++
		}
	}

	ev, ok := EventFromMessage(wire, msg)
	if !ok {
		return pkg.ErrInvalidRequest
	}
	eps, count := r.endpointList(DirOut)
	for i := 0; i < count; i++ {
		if eps[i] == c.endpoint {
			return d.PacketWrite(h, i, ev)
		}
	}
	return pkg.ErrInvalidEndpoint
}
