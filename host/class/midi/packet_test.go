package midi

import (
	"bytes"
	"testing"

	"github.com/lightsource-nz/tinyusb/host"
	"github.com/lightsource-nz/tinyusb/pkg"
)

func TestEvent_Fields(t *testing.T) {
	e := NewEvent(5, CINNoteOn, 0x93, 0x3C, 0x7F)

	if got := e.Cable(); got != 5 {
		t.Errorf("Cable() = %d, want 5", got)
	}
	if got := e.CodeIndex(); got != CINNoteOn {
		t.Errorf("CodeIndex() = %#x, want %#x", got, CINNoteOn)
	}
	want := []byte{0x93, 0x3C, 0x7F}
	if !bytes.Equal(e.Payload(), want) {
		t.Errorf("Payload() = % x, want % x", e.Payload(), want)
	}
}

func TestEvent_CableMasked(t *testing.T) {
	// Cable and CIN nibbles must not bleed into each other.
	e := NewEvent(0x1F, 0xF8, 0, 0, 0)
	if got := e.Cable(); got != 0x0F {
		t.Errorf("Cable() = %#x, want 0x0F", got)
	}
	if got := e.CodeIndex(); got != 0x08 {
		t.Errorf("CodeIndex() = %#x, want 0x08", got)
	}
}

func TestEventFromMessage(t *testing.T) {
	tests := []struct {
		name    string
		msg     []byte
		wantCIN uint8
		wantOK  bool
	}{
		{"note on", []byte{0x90, 0x3C, 0x7F}, CINNoteOn, true},
		{"note off", []byte{0x85, 0x3C, 0x00}, CINNoteOff, true},
		{"poly pressure", []byte{0xA0, 0x3C, 0x40}, CINPolyKeyPress, true},
		{"control change", []byte{0xB1, 0x07, 0x64}, CINControlChange, true},
		{"program change", []byte{0xC0, 0x05}, CINProgramChange, true},
		{"channel pressure", []byte{0xD2, 0x30}, CINChannelPressure, true},
		{"pitch bend", []byte{0xE0, 0x00, 0x40}, CINPitchBend, true},
		{"short note on", []byte{0x90, 0x3C}, 0, false},
		{"long program change", []byte{0xC0, 0x05, 0x00}, 0, false},
		{"system realtime", []byte{0xF8}, 0, false},
		{"empty", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, ok := EventFromMessage(3, tt.msg)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if got := e.CodeIndex(); got != tt.wantCIN {
				t.Errorf("CodeIndex() = %#x, want %#x", got, tt.wantCIN)
			}
			if got := e.Cable(); got != 3 {
				t.Errorf("Cable() = %d, want 3", got)
			}
			if !bytes.Equal(e.Payload(), tt.msg) {
				t.Errorf("Payload() = % x, want % x", e.Payload(), tt.msg)
			}
		})
	}
}

func TestDriver_PacketRoundTrip(t *testing.T) {
	d, f, h := mountedInterface(t)

	ev := NewEvent(0, CINNoteOn, 0x90, 0x3C, 0x7F)
	if err := d.PacketWrite(h, 0, ev); err != nil {
		t.Fatalf("PacketWrite failed: %v", err)
	}

	f.mu.Lock()
	if len(f.pending) != 1 {
		f.mu.Unlock()
		t.Fatal("PacketWrite did not submit a transfer")
	}
	if !bytes.Equal(f.pending[0].data, ev[:]) {
		t.Errorf("wire bytes = % x, want % x", f.pending[0].data, ev[:])
	}
	f.mu.Unlock()
	f.complete(pkg.TransferStatusSuccess, nil)

	// First read finds nothing and arms the receive transfer; the
	// device's response makes the packet available.
	if _, ok := d.PacketRead(h, 0); ok {
		t.Fatal("PacketRead returned a packet before any data arrived")
	}
	reply := NewEvent(0, CINNoteOff, 0x80, 0x3C, 0x00)
	if !f.complete(pkg.TransferStatusSuccess, reply[:]) {
		t.Fatal("empty PacketRead did not arm a receive transfer")
	}

	got, ok := d.PacketRead(h, 0)
	if !ok {
		t.Fatal("PacketRead found no packet after delivery")
	}
	if got != reply {
		t.Errorf("PacketRead = % x, want % x", got[:], reply[:])
	}
}

func TestDriver_PacketWriteBusyRetry(t *testing.T) {
	d, f, h := mountedInterface(t)

	// Fill the queue so no whole packet fits.
	full := make([]byte, StreamBufferSize)
	d.StreamWrite(h, 0, full)

	ev := NewEvent(0, CINNoteOn, 0x90, 0x3C, 0x7F)
	if err := d.PacketWrite(h, 0, ev); err != pkg.ErrBusy {
		t.Fatalf("PacketWrite on full queue error = %v, want ErrBusy", err)
	}

	// Draining one transfer frees room; the retry succeeds.
	if err := d.StreamFlush(h, 0); err != nil {
		t.Fatalf("StreamFlush failed: %v", err)
	}
	f.complete(pkg.TransferStatusSuccess, nil)

	if err := d.PacketWrite(h, 0, ev); err != nil {
		t.Fatalf("PacketWrite retry failed: %v", err)
	}
}

func TestDriver_MessageWrite(t *testing.T) {
	d, f, h := mountedInterface(t)

	if err := d.MessageWrite(h, 0, []byte{0x90, 0x3C, 0x7F}); err != nil {
		t.Fatalf("MessageWrite failed: %v", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) != 1 {
		t.Fatal("MessageWrite did not submit a transfer")
	}
	if f.pending[0].ep != 0x02 {
		t.Errorf("endpoint = %#x, want 0x02", f.pending[0].ep)
	}
	want := NewEvent(0, CINNoteOn, 0x90, 0x3C, 0x7F)
	if !bytes.Equal(f.pending[0].data, want[:]) {
		t.Errorf("wire bytes = % x, want % x", f.pending[0].data, want[:])
	}
}

// mountedMultiOutInterface mounts a streaming interface with two OUT
// endpoints: 0x02 carrying jacks 5 and 6, 0x03 carrying jack 7. The
// interface-scoped OUT cable indices are therefore 0 and 1 on endpoint
// 0x02 and 2 on endpoint 0x03.
func mountedMultiOutInterface(t *testing.T) (*Driver, *fakeTransport, Handle) {
	t.Helper()

	var data []byte
	data = append(data, interfaceDesc(1, 3, SubclassMIDIStreaming)...)
	data = append(data, msHeaderDesc(bcdMSC10)...)
	data = append(data, endpointDesc(0x81)...)
	data = append(data, msEndpointDesc(1)...)
	data = append(data, endpointDesc(0x02)...)
	data = append(data, msEndpointDesc(5, 6)...)
	data = append(data, endpointDesc(0x03)...)
	data = append(data, msEndpointDesc(7)...)

	d := New()
	f := newFakeTransport(1)
	var itf host.InterfaceDescriptor
	if !host.ParseInterfaceDescriptor(data, &itf) {
		t.Fatal("interface descriptor did not parse")
	}
	if !d.open(f, &itf, data) {
		t.Fatal("open failed")
	}
	if !d.setConfig(f, 1) {
		t.Fatal("setConfig failed")
	}
	return d, f, d.Lookup(1, 1)
}

func TestDriver_MessageWriteCableNumbering(t *testing.T) {
	d, f, h := mountedMultiOutInterface(t)

	// Wire cable numbers restart at 0 on each endpoint, independent of
	// the interface-scoped cable index.
	tests := []struct {
		cableIndex int
		wantEP     uint8
		wantCable  uint8
	}{
		{0, 0x02, 0},
		{1, 0x02, 1},
		{2, 0x03, 0},
	}

	msg := []byte{0x90, 0x3C, 0x64}
	for _, tt := range tests {
		if err := d.MessageWrite(h, tt.cableIndex, msg); err != nil {
			t.Fatalf("MessageWrite(%d) failed: %v", tt.cableIndex, err)
		}

		f.mu.Lock()
		if len(f.pending) != 1 {
			f.mu.Unlock()
			t.Fatalf("MessageWrite(%d) submitted %d transfers, want 1",
				tt.cableIndex, len(f.pending))
		}
		ep := f.pending[0].ep
		wire := make([]byte, len(f.pending[0].data))
		copy(wire, f.pending[0].data)
		f.mu.Unlock()

		if ep != tt.wantEP {
			t.Errorf("MessageWrite(%d) endpoint = %#x, want %#x", tt.cableIndex, ep, tt.wantEP)
		}
		want := NewEvent(tt.wantCable, CINNoteOn, 0x90, 0x3C, 0x64)
		if !bytes.Equal(wire, want[:]) {
			t.Errorf("MessageWrite(%d) wire bytes = % x, want % x", tt.cableIndex, wire, want[:])
		}

		f.complete(pkg.TransferStatusSuccess, nil)
	}
}

func TestDriver_MessageWriteInvalid(t *testing.T) {
	d, _, h := mountedInterface(t)

	if err := d.MessageWrite(h, 0, []byte{0xF8}); err != pkg.ErrInvalidRequest {
		t.Errorf("MessageWrite(realtime) error = %v, want ErrInvalidRequest", err)
	}
	if err := d.MessageWrite(h, 5, []byte{0x90, 0x3C, 0x7F}); err != pkg.ErrInvalidEndpoint {
		t.Errorf("MessageWrite(bad cable) error = %v, want ErrInvalidEndpoint", err)
	}
}
