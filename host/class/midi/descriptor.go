package midi

import (
	"github.com/lightsource-nz/tinyusb/host"
	"github.com/lightsource-nz/tinyusb/pkg"
)

// open enumerates a MIDI function from its interface descriptor block.
// data begins at the offered interface descriptor and extends to the end
// of the configuration; every field read is bounds-checked against it.
//
// The offered interface is either the Audio Control interface of an
// audio function (with the MIDI Streaming interface following it) or a
// standalone MIDI Streaming interface. Returns false, with no record
// left registered, for anything malformed or unsupported.
func (d *Driver) open(t Transport, desc *host.InterfaceDescriptor, data []byte) bool {
	if desc.InterfaceClass != ClassAudio {
		return false
	}

	msDesc := *desc
	if desc.InterfaceSubClass == SubclassAudioControl {
		data = host.FindInterface(data, ClassAudio, SubclassMIDIStreaming)
		if data == nil || !host.ParseInterfaceDescriptor(data, &msDesc) {
			return false
		}
	}

	if msDesc.InterfaceClass != ClassAudio || msDesc.InterfaceSubClass != SubclassMIDIStreaming {
		return false
	}

	// The class-specific MS header immediately follows the interface
	// descriptor; its BCD version field selects the spec.
	var header MSHeaderDescriptor
	cs := host.NextDescriptor(data)
	if cs == nil || !ParseMSHeaderDescriptor(cs, &header) {
		return false
	}

	var spec SpecVersion
	switch header.BCDMSC {
	case bcdMSC10:
		spec = SpecVersion1
	case bcdMSC20:
		spec = SpecVersion2
	default:
		pkg.LogWarn(pkg.ComponentMIDI, "unknown MIDI spec version",
			"address", t.Address(),
			"bcdMSC", header.BCDMSC)
		return false
	}

	r, h, err := d.allocate(t, msDesc.InterfaceNumber, spec)
	if err != nil {
		pkg.LogWarn(pkg.ComponentMIDI, "interface allocation failed",
			"address", t.Address(),
			"interface", msDesc.InterfaceNumber,
			"error", err)
		return false
	}

	var ok bool
	switch spec {
	case SpecVersion1:
		ok = d.openV1(r, t, &msDesc, data)
	case SpecVersion2:
		// Group Terminal Block descriptor parsing does not exist yet;
		// the interface is accepted with its version recorded and no
		// topology.
		ok = true
	}

	if !ok {
		// No partial record survives a malformed interface.
		d.mu.Lock()
		d.releaseRecord(r)
		d.mu.Unlock()
		return false
	}

	pkg.LogDebug(pkg.ComponentMIDI, "interface opened",
		"address", t.Address(),
		"interface", msDesc.InterfaceNumber,
		"handle", h,
		"spec", spec)
	return true
}

// openV1 walks the endpoint descriptors of a MIDI 1.0 streaming
// interface: each standard bulk endpoint is opened with the transport
// and recorded, and the class-specific endpoint descriptor that follows
// it yields one virtual cable per embedded jack ID. Capacity overflow
// truncates silently; structural violations fail the walk.
func (d *Driver) openV1(r *ifaceRecord, t Transport, desc *host.InterfaceDescriptor, data []byte) bool {
	addr := t.Address()
	onComplete := func(epAddr uint8, status pkg.TransferStatus, n int) {
		d.transferComplete(addr, epAddr, status, n)
	}

	cur := host.FindDescriptor(host.NextDescriptor(data), host.DescriptorTypeEndpoint)
	for i := 0; i < int(desc.NumEndpoints); i++ {
		var ep host.EndpointDescriptor
		if cur == nil || !host.ParseEndpointDescriptor(cur, &ep) ||
			ep.DescriptorType != host.DescriptorTypeEndpoint {
			return false
		}

		if err := t.OpenEndpoint(&ep); err != nil {
			pkg.LogWarn(pkg.ComponentMIDI, "endpoint open failed",
				"address", addr,
				"endpoint", ep.EndpointAddress,
				"error", err)
			return false
		}

		// The class-specific MS endpoint descriptor follows immediately,
		// carrying the embedded jack IDs multiplexed onto the endpoint.
		cur = host.NextDescriptor(cur)
		var msEP MSEndpointDescriptor
		if cur == nil || !ParseMSEndpointDescriptor(cur, &msEP) {
			return false
		}

		if r.addEndpoint(ep.EndpointAddress) {
			jacks := int(msEP.NumEmbeddedJacks)
			if jacks > MaxCables {
				jacks = MaxCables
			}
			for j := 0; j < jacks; j++ {
				if !r.addCable(msEP.JackIDs[j], ep.EndpointAddress) {
					pkg.LogDebug(pkg.ComponentMIDI, "cable table full, dropping jack",
						"address", addr,
						"jack", msEP.JackIDs[j])
				}
			}

			dir := DirectionOf(ep.EndpointAddress)
			_, count := r.endpointList(dir)
			sb := d.pool.allocate(t, ep.EndpointAddress, msEP.NumEmbeddedJacks, onComplete)
			if sb != nil {
				r.bindStream(dir, count-1, sb)
			} else {
				pkg.LogWarn(pkg.ComponentMIDI, "stream buffer pool exhausted",
					"address", addr,
					"endpoint", ep.EndpointAddress)
			}
		} else {
			pkg.LogDebug(pkg.ComponentMIDI, "endpoint list full, dropping endpoint",
				"address", addr,
				"endpoint", ep.EndpointAddress)
		}

		cur = host.FindDescriptor(host.NextDescriptor(cur), host.DescriptorTypeEndpoint)
	}

	return true
}
