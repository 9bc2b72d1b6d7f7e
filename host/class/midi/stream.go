package midi

import (
	"context"
	"runtime"
	"sync"

	"github.com/lightsource-nz/tinyusb/pkg"
)

// StreamBuffer buffers USB-MIDI event packets between the application
// and one physical endpoint. Every opened endpoint owns exactly one
// stream buffer, drawn from the driver's fixed pool; the cables
// multiplexed onto the endpoint share it.
//
// For OUT endpoints the ring holds bytes queued by the application until
// a flush stages them into a transfer. For IN endpoints the ring holds
// bytes received from the device until the application reads them.
type StreamBuffer struct {
	transport Transport
	ep        uint8
	cables    uint8 // embedded cables multiplexed onto the endpoint

	// onComplete routes this buffer's transfer completions back through
	// the driver's completion handler.
	onComplete func(epAddr uint8, status pkg.TransferStatus, n int)

	mu    sync.Mutex
	buf   [StreamBufferSize]byte
	rd    int // ring read cursor
	count int // bytes in the ring

	// Transfer staging. staged/inFlight are only touched under mu; the
	// endpoint's own busy flag is the word polled across goroutines.
	xfer     [StreamTransferSize]byte
	staged   int
	inFlight bool

	inUse bool // pool slot occupancy
}

// Endpoint returns the endpoint address the buffer is bound to.
func (sb *StreamBuffer) Endpoint() uint8 {
	return sb.ep
}

// Cables returns the number of embedded cables multiplexed onto the
// buffer's endpoint.
func (sb *StreamBuffer) Cables() uint8 {
	return sb.cables
}

// Write queues up to len(p) bytes without blocking. Returns however many
// fit in the ring; the caller must inspect the count to detect
// truncation.
func (sb *StreamBuffer) Write(p []byte) int {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	n := len(p)
	if free := StreamBufferSize - sb.count; n > free {
		n = free
	}
	wr := (sb.rd + sb.count) % StreamBufferSize
	for i := 0; i < n; i++ {
		sb.buf[(wr+i)%StreamBufferSize] = p[i]
	}
	sb.count += n
	return n
}

// WriteAvailable returns the number of bytes the ring can accept.
func (sb *StreamBuffer) WriteAvailable() int {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return StreamBufferSize - sb.count
}

// Read returns up to len(p) buffered bytes without blocking. If the ring
// is empty and the endpoint is idle, a receive transfer is armed so data
// becomes available to a later call.
func (sb *StreamBuffer) Read(p []byte) int {
	sb.mu.Lock()

	if sb.count == 0 {
		arm := DirectionOf(sb.ep) == DirIn && !sb.inFlight
		if arm {
			sb.inFlight = true
			sb.staged = StreamTransferSize
		}
		sb.mu.Unlock()
		if arm {
			sb.submit(sb.xfer[:StreamTransferSize])
		}
		return 0
	}

	n := len(p)
	if n > sb.count {
		n = sb.count
	}
	for i := 0; i < n; i++ {
		p[i] = sb.buf[(sb.rd+i)%StreamBufferSize]
	}
	sb.rd = (sb.rd + n) % StreamBufferSize
	sb.count -= n
	sb.mu.Unlock()
	return n
}

// ReadAvailable returns the number of buffered bytes ready to read.
func (sb *StreamBuffer) ReadAvailable() int {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.count
}

// Flush stages queued bytes and submits an asynchronous transfer to the
// device. A flush while a transfer is in flight is a no-op; the
// completion path chains the next transfer until the ring drains.
func (sb *StreamBuffer) Flush() error {
	sb.mu.Lock()
	if sb.inFlight || sb.count == 0 {
		sb.mu.Unlock()
		return nil
	}

	n := sb.count
	if n > StreamTransferSize {
		n = StreamTransferSize
	}
	for i := 0; i < n; i++ {
		sb.xfer[i] = sb.buf[(sb.rd+i)%StreamBufferSize]
	}
	sb.rd = (sb.rd + n) % StreamBufferSize
	sb.count -= n
	sb.staged = n
	sb.inFlight = true
	sb.mu.Unlock()

	return sb.submit(sb.xfer[:n])
}

// FlushSync flushes and busy-polls until the endpoint reports ready
// again. The wait is hardware-timed, not scheduler-blocked; ctx bounds
// it.
func (sb *StreamBuffer) FlushSync(ctx context.Context) error {
	if err := sb.Flush(); err != nil {
		return err
	}
	for {
		sb.mu.Lock()
		pending := sb.inFlight
		sb.mu.Unlock()
		if !pending && !sb.transport.EndpointBusy(sb.ep) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			runtime.Gosched()
		}
	}
}

// submit hands the staged bytes to the transport. On submission failure
// the stage is abandoned and the in-flight mark cleared; queued ring
// data is unaffected.
func (sb *StreamBuffer) submit(data []byte) error {
	err := sb.transport.SubmitTransfer(context.Background(), sb.ep, data, sb.onComplete)
	if err != nil {
		sb.mu.Lock()
		sb.inFlight = false
		sb.staged = 0
		sb.mu.Unlock()
		pkg.LogWarn(pkg.ComponentMIDI, "stream transfer submit failed",
			"endpoint", sb.ep,
			"error", err)
	}
	return err
}

// transferComplete advances the buffer's cursors for a finished transfer
// on its endpoint. Invoked from the driver's completion handler.
func (sb *StreamBuffer) transferComplete(status pkg.TransferStatus, n int) {
	if DirectionOf(sb.ep) == DirIn {
		sb.completeIn(status, n)
	} else {
		sb.completeOut(status)
	}
}

// completeIn commits n received bytes into the ring. Bytes that do not
// fit are dropped; the device has no flow control at this layer.
func (sb *StreamBuffer) completeIn(status pkg.TransferStatus, n int) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	sb.inFlight = false
	sb.staged = 0

	if status != pkg.TransferStatusSuccess {
		pkg.LogDebug(pkg.ComponentMIDI, "receive transfer failed",
			"endpoint", sb.ep,
			"status", status)
		return
	}

	if n > StreamTransferSize {
		n = StreamTransferSize
	}

	// Received data commits in whole event packets only. A fragment left
	// in the ring satisfies no packet read, and a non-empty ring never
	// re-arms a receive transfer, so a partial commit would wedge the
	// stream.
	if rem := n % EventSize; rem != 0 {
		pkg.LogDebug(pkg.ComponentMIDI, "dropping partial packet",
			"endpoint", sb.ep,
			"dropped", rem)
		n -= rem
	}
	free := StreamBufferSize - sb.count
	free -= free % EventSize
	if n > free {
		pkg.LogDebug(pkg.ComponentMIDI, "receive overflow, dropping",
			"endpoint", sb.ep,
			"dropped", n-free)
		n = free
	}
	wr := (sb.rd + sb.count) % StreamBufferSize
	for i := 0; i < n; i++ {
		sb.buf[(wr+i)%StreamBufferSize] = sb.xfer[i]
	}
	sb.count += n
}

// completeOut releases the staged bytes and chains the next transfer if
// the ring still holds queued data, preserving write order.
func (sb *StreamBuffer) completeOut(status pkg.TransferStatus) {
	sb.mu.Lock()
	sb.inFlight = false
	sb.staged = 0

	if status != pkg.TransferStatusSuccess {
		sb.mu.Unlock()
		pkg.LogDebug(pkg.ComponentMIDI, "send transfer failed",
			"endpoint", sb.ep,
			"status", status)
		return
	}

	more := sb.count > 0
	sb.mu.Unlock()

	if more {
		sb.Flush()
	}
}

// streamPool is a fixed pool of stream buffers, one per simultaneously
// opened endpoint across all interfaces.
type streamPool struct {
	mu   sync.Mutex
	bufs [MaxStreamBuffers]StreamBuffer
}

// allocate claims a free buffer and binds it to an endpoint. Returns nil
// when the pool is exhausted.
func (p *streamPool) allocate(t Transport, epAddr uint8, cables uint8,
	onComplete func(uint8, pkg.TransferStatus, int)) *StreamBuffer {

	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.bufs {
		sb := &p.bufs[i]
		if sb.inUse {
			continue
		}
		sb.transport = t
		sb.ep = epAddr
		sb.cables = cables
		sb.onComplete = onComplete
		sb.rd = 0
		sb.count = 0
		sb.staged = 0
		sb.inFlight = false
		sb.inUse = true
		return sb
	}
	return nil
}

// release returns a buffer to the pool.
func (p *streamPool) release(sb *StreamBuffer) {
	if sb == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	sb.transport = nil
	sb.ep = 0
	sb.cables = 0
	sb.onComplete = nil
	sb.rd = 0
	sb.count = 0
	sb.staged = 0
	sb.inFlight = false
	sb.inUse = false
}
