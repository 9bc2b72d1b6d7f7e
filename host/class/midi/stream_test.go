package midi

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/lightsource-nz/tinyusb/pkg"
)

// mountedInterface opens and configures the standard test interface so
// stream I/O is permitted.
func mountedInterface(t *testing.T) (*Driver, *fakeTransport, Handle) {
	t.Helper()

	d := New()
	f := newFakeTransport(1)
	h := openV1Interface(t, d, f)
	if !d.setConfig(f, 0) {
		t.Fatal("setConfig failed")
	}
	return d, f, h
}

func TestStream_WriteFlush(t *testing.T) {
	d, f, h := mountedInterface(t)

	msg := []byte{0x09, 0x90, 0x3C, 0x7F}
	n, err := d.StreamWrite(h, 0, msg)
	if err != nil {
		t.Fatalf("StreamWrite failed: %v", err)
	}
	if n != len(msg) {
		t.Fatalf("StreamWrite queued %d bytes, want %d", n, len(msg))
	}

	// Nothing reaches the wire until flushed.
	if got := f.pendingCount(); got != 0 {
		t.Fatalf("pending transfers before flush = %d, want 0", got)
	}

	if err := d.StreamFlush(h, 0); err != nil {
		t.Fatalf("StreamFlush failed: %v", err)
	}
	f.mu.Lock()
	if len(f.pending) != 1 {
		f.mu.Unlock()
		t.Fatal("flush did not submit a transfer")
	}
	if f.pending[0].ep != 0x02 {
		t.Errorf("transfer endpoint = %#x, want 0x02", f.pending[0].ep)
	}
	if !bytes.Equal(f.pending[0].data, msg) {
		t.Errorf("transfer data = % x, want % x", f.pending[0].data, msg)
	}
	f.mu.Unlock()

	if !f.complete(pkg.TransferStatusSuccess, nil) {
		t.Fatal("complete found nothing pending")
	}
	if got := d.StreamWriteAvailable(h, 0); got != StreamBufferSize {
		t.Errorf("StreamWriteAvailable after drain = %d, want %d", got, StreamBufferSize)
	}
}

func TestStream_WriteTruncation(t *testing.T) {
	d, _, h := mountedInterface(t)

	big := make([]byte, StreamBufferSize+16)
	n, err := d.StreamWrite(h, 0, big)
	if err != nil {
		t.Fatalf("StreamWrite failed: %v", err)
	}
	if n != StreamBufferSize {
		t.Errorf("StreamWrite queued %d bytes, want %d", n, StreamBufferSize)
	}
	if got := d.StreamWriteAvailable(h, 0); got != 0 {
		t.Errorf("StreamWriteAvailable on full ring = %d, want 0", got)
	}
}

func TestStream_OutChaining(t *testing.T) {
	d, f, h := mountedInterface(t)

	data := make([]byte, StreamTransferSize+20)
	for i := range data {
		data[i] = byte(i)
	}
	if _, err := d.StreamWrite(h, 0, data); err != nil {
		t.Fatalf("StreamWrite failed: %v", err)
	}
	if err := d.StreamFlush(h, 0); err != nil {
		t.Fatalf("StreamFlush failed: %v", err)
	}

	var sent []byte
	f.mu.Lock()
	if len(f.pending) != 1 || len(f.pending[0].data) != StreamTransferSize {
		f.mu.Unlock()
		t.Fatal("first transfer did not stage a full buffer")
	}
	sent = append(sent, f.pending[0].data...)
	f.mu.Unlock()

	// Completion chains the remainder without another flush call.
	f.complete(pkg.TransferStatusSuccess, nil)
	f.mu.Lock()
	if len(f.pending) != 1 {
		f.mu.Unlock()
		t.Fatal("completion did not chain the next transfer")
	}
	if len(f.pending[0].data) != 20 {
		f.mu.Unlock()
		t.Fatalf("chained transfer length = %d, want 20", len(f.pending[0].data))
	}
	sent = append(sent, f.pending[0].data...)
	f.mu.Unlock()

	f.complete(pkg.TransferStatusSuccess, nil)
	if got := f.pendingCount(); got != 0 {
		t.Errorf("pending transfers after drain = %d, want 0", got)
	}
	if !bytes.Equal(sent, data) {
		t.Error("transmitted bytes do not match queued bytes in order")
	}
}

func TestStream_ReadArmsTransfer(t *testing.T) {
	d, f, h := mountedInterface(t)

	buf := make([]byte, 8)
	n, err := d.StreamRead(h, 0, buf)
	if err != nil {
		t.Fatalf("StreamRead failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("StreamRead on empty stream = %d bytes, want 0", n)
	}

	f.mu.Lock()
	if len(f.pending) != 1 {
		f.mu.Unlock()
		t.Fatal("empty read did not arm a receive transfer")
	}
	if f.pending[0].ep != 0x81 {
		t.Errorf("receive endpoint = %#x, want 0x81", f.pending[0].ep)
	}
	f.mu.Unlock()

	// A second read while the transfer is in flight must not arm another.
	d.StreamRead(h, 0, buf)
	if got := f.pendingCount(); got != 1 {
		t.Errorf("pending transfers after second read = %d, want 1", got)
	}

	recv := []byte{0x09, 0x90, 0x3C, 0x7F, 0x08, 0x80, 0x3C, 0x00}
	f.complete(pkg.TransferStatusSuccess, recv)

	if got := d.StreamReadAvailable(h, 0); got != len(recv) {
		t.Fatalf("StreamReadAvailable = %d, want %d", got, len(recv))
	}
	n, err = d.StreamRead(h, 0, buf)
	if err != nil {
		t.Fatalf("StreamRead failed: %v", err)
	}
	if n != len(recv) || !bytes.Equal(buf[:n], recv) {
		t.Errorf("StreamRead = % x, want % x", buf[:n], recv)
	}
}

func TestStream_ReceiveFailureDiscarded(t *testing.T) {
	d, f, h := mountedInterface(t)

	d.StreamRead(h, 0, nil)
	f.complete(pkg.TransferStatusStall, []byte{1, 2, 3, 4})

	if got := d.StreamReadAvailable(h, 0); got != 0 {
		t.Errorf("failed transfer delivered %d bytes", got)
	}

	// The endpoint is idle again, so the next read re-arms.
	d.StreamRead(h, 0, nil)
	if got := f.pendingCount(); got != 1 {
		t.Errorf("pending transfers after re-arm = %d, want 1", got)
	}
}

func TestStream_SubmitError(t *testing.T) {
	d, f, h := mountedInterface(t)

	d.StreamWrite(h, 0, []byte{1, 2, 3})
	f.submitErr = pkg.ErrNoDevice
	if err := d.StreamFlush(h, 0); err != pkg.ErrNoDevice {
		t.Fatalf("StreamFlush error = %v, want ErrNoDevice", err)
	}

	// The in-flight mark is cleared, so the stream recovers once the
	// transport does. The staged bytes were consumed by the failed
	// attempt; later writes still flow.
	f.submitErr = nil
	d.StreamWrite(h, 0, []byte{4, 5, 6})
	if err := d.StreamFlush(h, 0); err != nil {
		t.Fatalf("StreamFlush after recovery failed: %v", err)
	}
	if got := f.pendingCount(); got != 1 {
		t.Errorf("pending transfers = %d, want 1", got)
	}
}

func TestStream_FlushSync(t *testing.T) {
	d, f, h := mountedInterface(t)

	d.StreamWrite(h, 0, []byte{1, 2, 3, 4})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if f.complete(pkg.TransferStatusSuccess, nil) {
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.StreamFlushSync(ctx, h, 0); err != nil {
		t.Fatalf("StreamFlushSync failed: %v", err)
	}
	<-done

	if got := d.StreamWriteAvailable(h, 0); got != StreamBufferSize {
		t.Errorf("StreamWriteAvailable after sync flush = %d, want %d", got, StreamBufferSize)
	}
}

func TestStream_FlushSyncTimeout(t *testing.T) {
	d, _, h := mountedInterface(t)

	d.StreamWrite(h, 0, []byte{1, 2, 3, 4})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := d.StreamFlushSync(ctx, h, 0)
	if err != context.DeadlineExceeded {
		t.Errorf("StreamFlushSync error = %v, want DeadlineExceeded", err)
	}
}

func TestStream_InOverflowDropped(t *testing.T) {
	d, _, h := mountedInterface(t)

	sb, err := d.ioStream(h, DirIn, 0)
	if err != nil {
		t.Fatal(err)
	}

	// Deliver full transfers until the ring is at capacity, then one
	// more. The extra bytes are dropped, not wrapped over queued data.
	deliver := func() {
		for i := range sb.xfer {
			sb.xfer[i] = byte(i)
		}
		sb.mu.Lock()
		sb.inFlight = true
		sb.mu.Unlock()
		sb.transferComplete(pkg.TransferStatusSuccess, StreamTransferSize)
	}
	for i := 0; i < StreamBufferSize/StreamTransferSize; i++ {
		deliver()
	}
	if got := d.StreamReadAvailable(h, 0); got != StreamBufferSize {
		t.Fatalf("StreamReadAvailable = %d, want %d", got, StreamBufferSize)
	}

	deliver()
	if got := d.StreamReadAvailable(h, 0); got != StreamBufferSize {
		t.Errorf("StreamReadAvailable = %d, want %d (overflow must drop)", got, StreamBufferSize)
	}
}

func TestStream_PartialPacketDropped(t *testing.T) {
	d, f, h := mountedInterface(t)

	// Arm a receive transfer, then have the device answer with three
	// bytes: less than one event packet.
	if _, ok := d.PacketRead(h, 0); ok {
		t.Fatal("PacketRead returned a packet before any data arrived")
	}
	if !f.complete(pkg.TransferStatusSuccess, []byte{0x09, 0x90, 0x3C}) {
		t.Fatal("empty PacketRead did not arm a receive transfer")
	}

	// The fragment is dropped outright; nothing lingers in the ring.
	if got := d.StreamReadAvailable(h, 0); got != 0 {
		t.Fatalf("StreamReadAvailable after partial delivery = %d, want 0", got)
	}

	// The stream stays live: the next empty read arms a fresh transfer
	// and a whole packet flows through.
	if _, ok := d.PacketRead(h, 0); ok {
		t.Fatal("PacketRead returned a packet from a dropped fragment")
	}
	reply := NewEvent(0, CINNoteOn, 0x90, 0x3C, 0x7F)
	if !f.complete(pkg.TransferStatusSuccess, reply[:]) {
		t.Fatal("stream did not re-arm after dropping a partial packet")
	}
	got, ok := d.PacketRead(h, 0)
	if !ok {
		t.Fatal("PacketRead found no packet after recovery")
	}
	if got != reply {
		t.Errorf("PacketRead = % x, want % x", got[:], reply[:])
	}
}

func TestStream_PartialTrailerTruncated(t *testing.T) {
	d, f, h := mountedInterface(t)

	// Seven bytes: one whole packet plus a three-byte trailer. Only the
	// whole packet commits.
	d.PacketRead(h, 0)
	recv := []byte{0x09, 0x90, 0x3C, 0x7F, 0x08, 0x80, 0x3C}
	if !f.complete(pkg.TransferStatusSuccess, recv) {
		t.Fatal("empty PacketRead did not arm a receive transfer")
	}

	if got := d.StreamReadAvailable(h, 0); got != EventSize {
		t.Fatalf("StreamReadAvailable = %d, want %d", got, EventSize)
	}
	got, ok := d.PacketRead(h, 0)
	if !ok {
		t.Fatal("PacketRead found no packet")
	}
	want := NewEvent(0, CINNoteOn, 0x90, 0x3C, 0x7F)
	if got != want {
		t.Errorf("PacketRead = % x, want % x", got[:], want[:])
	}
}

func TestStreamPool_Exhaustion(t *testing.T) {
	var p streamPool
	f := newFakeTransport(1)

	var bufs []*StreamBuffer
	for i := 0; i < MaxStreamBuffers; i++ {
		sb := p.allocate(f, uint8(i), 1, nil)
		if sb == nil {
			t.Fatalf("allocation %d failed with free slots remaining", i)
		}
		bufs = append(bufs, sb)
	}
	if sb := p.allocate(f, 0xFF, 1, nil); sb != nil {
		t.Error("allocation succeeded on an exhausted pool")
	}

	p.release(bufs[0])
	sb := p.allocate(f, 0x42, 1, nil)
	if sb == nil {
		t.Fatal("allocation failed after release")
	}
	if sb.Endpoint() != 0x42 {
		t.Errorf("reused buffer endpoint = %#x, want 0x42", sb.Endpoint())
	}
	if sb.ReadAvailable() != 0 {
		t.Error("reused buffer not empty")
	}
}
