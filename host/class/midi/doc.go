// Package midi implements the USB MIDI Streaming host class driver for
// the tinyusb host stack.
//
// The driver enumerates a device's MIDI Streaming interface descriptors,
// opens the bulk endpoints they declare, and multiplexes the virtual MIDI
// cables (embedded jacks) found in the class-specific endpoint descriptors
// onto those endpoints. Applications exchange 32-bit USB-MIDI event
// packets with the device through buffered stream operations or direct
// packet transfers.
//
// # Architecture
//
// The driver is organized around a fixed-capacity interface registry:
//
//   - Driver owns the registry and implements [host.ClassDriver]
//   - Each interface record tracks identity, lifecycle flags, endpoint
//     lists per direction, and version-specific I/O state
//   - MIDI 1.0 records carry a virtual cable table mapping jack IDs to
//     endpoints, plus one stream buffer per opened endpoint
//   - MIDI 2.0 records carry Group Terminal Block slots (the descriptor
//     walk for these is not yet implemented)
//
// Descriptor data is untrusted input: every walk is bounds-checked against
// the configuration block, and a malformed interface fails to open without
// leaving a partial record registered. Capacity overflow, by contrast,
// degrades softly: excess endpoints or cables are dropped and the rest of
// the interface remains usable.
//
// # Zero-Allocation Design
//
// All driver state lives in fixed-size arrays sized by compile-time
// constants:
//
//   - Interface records in a fixed registry, addressed by 1-based handles
//   - Cable tables and endpoint lists as bounded arrays per record
//   - Stream buffers drawn from a fixed pool, one per opened endpoint
//
// # Usage
//
//	drv := midi.New()
//	drv.SetMountHandler(func(h midi.Handle) {
//	    // interface is ready for I/O
//	})
//	hst := host.New(hal)
//	hst.RegisterDriver(drv)
//	hst.Start(ctx)
//
//	// After mount: enumerate cables and stream packets
//	n := drv.CableCount(h, midi.DirIn)
//	drv.StreamWrite(h, 0, packet[:])
//	drv.StreamFlush(h, 0)
package midi
