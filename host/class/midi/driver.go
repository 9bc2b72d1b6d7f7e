package midi

import (
	"context"
	"sync"

	"github.com/lightsource-nz/tinyusb/host"
	"github.com/lightsource-nz/tinyusb/pkg"
)

// Transport is the surface the driver requires from the host transport
// layer. [*host.Device] implements it; tests substitute fakes.
type Transport interface {
	// Address returns the device address.
	Address() uint8

	// OpenEndpoint opens an endpoint described by a configuration
	// descriptor for use by this driver.
	OpenEndpoint(desc *host.EndpointDescriptor) error

	// EndpointBusy reports whether a transfer is in flight on the
	// endpoint.
	EndpointBusy(epAddr uint8) bool

	// SubmitTransfer submits an asynchronous transfer on an opened
	// endpoint, invoking cb on completion.
	SubmitTransfer(ctx context.Context, epAddr uint8, data []byte, cb func(epAddr uint8, status pkg.TransferStatus, n int)) error

	// DriverConfigComplete reports the next interface number not consumed
	// by the driver during configuration.
	DriverConfigComplete(nextItf uint8)
}

// Handle identifies an allocated interface record. Handles are 1-based;
// zero means "not found". A handle is stable until the record it refers
// to is released by device close.
type Handle uint8

// InvalidHandle is the zero handle returned by failed lookups.
const InvalidHandle Handle = 0

// Driver is the MIDI Streaming host class driver. It owns the interface
// registry and the stream buffer pool, and implements
// [host.ClassDriver]. Independent Driver instances are fully isolated;
// nothing is shared at package level.
type Driver struct {
	// mu guards registry slot allocation and release. Record payloads are
	// written only during enumeration (before the interface is visible to
	// applications) and are read lock-free afterwards; the lifecycle
	// flags are individually atomic.
	mu  sync.Mutex
	itf [MaxInterfaces]ifaceRecord

	pool streamPool

	// Lifecycle hooks, invoked synchronously from the config/close
	// transitions. Default to no-ops.
	onMount   func(Handle)
	onUnmount func(Handle)
}

// New creates a MIDI host class driver. Register it with a host via
// [host.Host.RegisterDriver] before starting the host.
func New() *Driver {
	return &Driver{}
}

// Name identifies the driver in log output.
func (d *Driver) Name() string {
	return "midih"
}

// SetMountHandler sets the callback invoked when a MIDI interface
// finishes mounting and becomes available for I/O.
func (d *Driver) SetMountHandler(cb func(Handle)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onMount = cb
}

// SetUnmountHandler sets the callback invoked when a mounted MIDI
// interface is removed, before its record is released.
func (d *Driver) SetUnmountHandler(cb func(Handle)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onUnmount = cb
}

// record returns the record a handle refers to, or nil for the zero
// handle, an out-of-range handle, or a freed slot.
func (d *Driver) record(h Handle) *ifaceRecord {
	if h == InvalidHandle || int(h) > MaxInterfaces {
		return nil
	}
	r := &d.itf[h-1]
	if r.dev == 0 {
		return nil
	}
	return r
}

// allocate claims the first free registry slot for the given identity.
// Fails if the spec version is unsupported or the registry is full; no
// record is mutated on failure.
func (d *Driver) allocate(t Transport, itfNum uint8, spec SpecVersion) (*ifaceRecord, Handle, error) {
	if !SpecVersionSupported(spec) {
		return nil, InvalidHandle, pkg.ErrUnsupportedVersion
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for i := range d.itf {
		r := &d.itf[i]
		if r.dev != 0 {
			continue
		}
		r.dev = t.Address()
		r.itfNum = itfNum
		r.device = t
		r.io.spec = spec
		return r, Handle(i + 1), nil
	}
	return nil, InvalidHandle, pkg.ErrRegistryFull
}

// Lookup returns the handle of the record for a (device, interface)
// pair, or InvalidHandle.
func (d *Driver) Lookup(devAddr, itfNum uint8) Handle {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i := range d.itf {
		if d.itf[i].dev == devAddr && d.itf[i].itfNum == itfNum {
			return Handle(i + 1)
		}
	}
	return InvalidHandle
}

// lookupByEndpoint returns the handle of the record whose endpoint list
// for the address's direction contains epAddr, or InvalidHandle.
func (d *Driver) lookupByEndpoint(devAddr, epAddr uint8) Handle {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i := range d.itf {
		r := &d.itf[i]
		if r.dev == devAddr && r.hasEndpoint(epAddr) {
			return Handle(i + 1)
		}
	}
	return InvalidHandle
}

// releaseRecord releases a record's stream buffers and returns its slot
// to the free pool.
func (d *Driver) releaseRecord(r *ifaceRecord) {
	switch r.io.spec {
	case SpecVersion1:
		for i := range r.io.v1.streamIn {
			d.pool.release(r.io.v1.streamIn[i])
		}
		for i := range r.io.v1.streamOut {
			d.pool.release(r.io.v1.streamOut[i])
		}
	case SpecVersion2:
		// No per-endpoint buffers until the 2.0 walk exists.
	}
	r.reset()
}

// Open implements [host.ClassDriver]. It offers the driver an interface
// descriptor block; the driver claims Audio Control/MIDI Streaming
// interfaces and enumerates their topology.
func (d *Driver) Open(dev *host.Device, desc *host.InterfaceDescriptor, data []byte) bool {
	return d.open(dev, desc, data)
}

// SetConfig implements [host.ClassDriver]. It marks the interface
// configured, reports the interface pair consumed, and fires the mount
// transition.
func (d *Driver) SetConfig(dev *host.Device, itfNum uint8) bool {
	return d.setConfig(dev, itfNum)
}

func (d *Driver) setConfig(t Transport, itfNum uint8) bool {
	h := d.Lookup(t.Address(), itfNum)
	if h == InvalidHandle {
		// The offered interface may be the Audio Control interface of an
		// audio function; the record is keyed by the MIDI Streaming
		// interface that follows it.
		h = d.Lookup(t.Address(), itfNum+1)
	}
	r := d.record(h)
	if r == nil {
		return false
	}

	r.configured.Store(true)

	// Configuration resumes after the streaming interface, covering the
	// Audio Control + MIDI Streaming pair when both are present.
	t.DriverConfigComplete(r.itfNum + 1)

	r.mounted.Store(true)

	d.mu.Lock()
	cb := d.onMount
	d.mu.Unlock()
	if cb != nil {
		cb(h)
	}

	pkg.LogInfo(pkg.ComponentMIDI, "interface mounted",
		"address", t.Address(),
		"interface", r.itfNum,
		"spec", r.io.spec)
	return true
}

// TransferComplete implements [host.ClassDriver]. It routes a finished
// transfer to the stream buffer bound to its endpoint.
func (d *Driver) TransferComplete(dev *host.Device, epAddr uint8, status pkg.TransferStatus, n int) bool {
	return d.transferComplete(dev.Address(), epAddr, status, n)
}

func (d *Driver) transferComplete(devAddr, epAddr uint8, status pkg.TransferStatus, n int) bool {
	r := d.record(d.lookupByEndpoint(devAddr, epAddr))
	if r == nil {
		return false
	}

	// Failures are not retried here; the transport layer owns retry
	// policy. The stream is still advanced so the endpoint can be
	// resubmitted.
	if sb := r.streamByEndpoint(epAddr); sb != nil {
		sb.transferComplete(status, n)
	}
	return true
}

// Close implements [host.ClassDriver]. For every record belonging to the
// device it fires the unmount callback (if the record mounted), then
// clears the record and returns its slot to the free pool. Closing an
// address with no records is a no-op. The host guarantees completion
// callbacks have drained before Close is invoked.
func (d *Driver) Close(addr uint8) {
	type pending struct {
		r *ifaceRecord
		h Handle
	}
	var toClose [MaxInterfaces]pending
	n := 0

	d.mu.Lock()
	cb := d.onUnmount
	for i := range d.itf {
		if d.itf[i].dev == addr {
			toClose[n] = pending{r: &d.itf[i], h: Handle(i + 1)}
			n++
		}
	}
	d.mu.Unlock()

	for i := 0; i < n; i++ {
		r := toClose[i].r

		// Unmount fires at most once, and only if mount previously fired.
		if r.mounted.Swap(false) && cb != nil {
			cb(toClose[i].h)
		}

		pkg.LogDebug(pkg.ComponentMIDI, "interface closed",
			"address", addr,
			"interface", r.itfNum)

		d.mu.Lock()
		d.releaseRecord(r)
		d.mu.Unlock()
	}
}

// Compile-time interface check
var _ host.ClassDriver = (*Driver)(nil)
