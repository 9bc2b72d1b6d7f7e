package host

import (
	"github.com/lightsource-nz/tinyusb/host/hal"
	"github.com/lightsource-nz/tinyusb/pkg"
)

// ClassDriver is implemented by USB class drivers that bind to interfaces
// of enumerated devices.
//
// After a device is configured, the host offers each interface descriptor
// to every registered driver in registration order. The offer includes the
// raw descriptor block from the interface descriptor to the end of the
// configuration, so drivers can walk their class-specific descriptors.
// A driver that accepts an interface returns true from Open; the host then
// invokes SetConfig, during which the driver must call
// [Device.DriverConfigComplete] to report how many interfaces it consumed.
type ClassDriver interface {
	// Name identifies the driver in log output.
	Name() string

	// Open offers an interface to the driver. desc is the parsed interface
	// descriptor; data is the raw descriptor block beginning at that
	// interface descriptor and extending to the end of the configuration.
	// Open returns true if the driver claimed the interface.
	Open(dev *Device, desc *InterfaceDescriptor, data []byte) bool

	// SetConfig finalizes the binding for an interface claimed by Open.
	// The driver must call dev.DriverConfigComplete before returning.
	SetConfig(dev *Device, itfNum uint8) bool

	// TransferComplete is invoked when a transfer submitted by the driver
	// finishes on one of its endpoints.
	TransferComplete(dev *Device, epAddr uint8, status pkg.TransferStatus, n int) bool

	// Close releases all state the driver holds for the device address.
	// The host guarantees no completion callback for the device is in
	// flight when Close is invoked.
	Close(addr uint8)
}

// RegisterDriver adds a class driver to the host. Drivers are offered
// interfaces in registration order. Must be called before Start.
func (h *Host) RegisterDriver(d ClassDriver) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.drivers = append(h.drivers, d)
}

// bindClassDrivers offers each interface of the configured device to the
// registered class drivers. A driver that consumes multiple interfaces
// (e.g. an Audio Control + MIDI Streaming pair) reports the number bound
// via DriverConfigComplete, and the walk resumes after them.
func (h *Host) bindClassDrivers(dev *Device) {
	data := dev.rawConfig
	if len(data) <= ConfigurationDescriptorSize {
		return
	}
	data = data[ConfigurationDescriptorSize:]

	for {
		data = FindDescriptor(data, DescriptorTypeInterface)
		if data == nil {
			return
		}

		var desc InterfaceDescriptor
		if !ParseInterfaceDescriptor(data, &desc) {
			return
		}

		// Alternate settings are offered only through their default.
		if desc.AlternateSetting != 0 {
			data = NextDescriptor(data)
			continue
		}

		driver := h.offerInterface(dev, &desc, data)
		if driver == nil {
			pkg.LogDebug(pkg.ComponentHost, "no driver for interface",
				"address", dev.address,
				"interface", desc.InterfaceNumber,
				"class", desc.InterfaceClass)
			data = NextDescriptor(data)
			continue
		}

		// SetConfig reports the next unbound interface number through
		// DriverConfigComplete.
		dev.configCompleteItf = desc.InterfaceNumber + 1
		if !driver.SetConfig(dev, desc.InterfaceNumber) {
			pkg.LogWarn(pkg.ComponentHost, "driver set config failed",
				"driver", driver.Name(),
				"address", dev.address,
				"interface", desc.InterfaceNumber)
		}

		// Skip all interfaces the driver consumed.
		next := dev.configCompleteItf
		for {
			data = NextDescriptor(data)
			if data == nil {
				return
			}
			data = FindDescriptor(data, DescriptorTypeInterface)
			if data == nil {
				return
			}
			if len(data) >= InterfaceDescriptorSize && data[2] >= next {
				break
			}
		}
	}
}

// offerInterface asks each registered driver to open the interface.
// Returns the driver that claimed it, or nil.
func (h *Host) offerInterface(dev *Device, desc *InterfaceDescriptor, data []byte) ClassDriver {
	h.mutex.RLock()
	drivers := h.drivers
	h.mutex.RUnlock()

	for _, d := range drivers {
		if d.Open(dev, desc, data) {
			pkg.LogInfo(pkg.ComponentHost, "driver bound interface",
				"driver", d.Name(),
				"address", dev.address,
				"interface", desc.InterfaceNumber)
			if err := h.hal.ClaimInterface(hal.DeviceAddress(dev.address), desc.InterfaceNumber); err != nil {
				pkg.LogWarn(pkg.ComponentHost, "interface claim failed",
					"address", dev.address,
					"interface", desc.InterfaceNumber,
					"error", err)
			}
			if int(desc.InterfaceNumber) < len(dev.boundDrivers) {
				dev.boundDrivers[desc.InterfaceNumber] = d
			}
			return d
		}
	}
	return nil
}

// closeClassDrivers notifies every driver bound to the device that the
// device is gone. Completion callbacks are drained before this is called.
func (h *Host) closeClassDrivers(dev *Device) {
	seen := [MaxInterfacesPerConfiguration]bool{}
	for i, d := range dev.boundDrivers {
		if d == nil {
			continue
		}
		// A driver bound to several interfaces is closed once per address.
		dup := false
		for j := 0; j < i; j++ {
			if dev.boundDrivers[j] == d && seen[j] {
				dup = true
				break
			}
		}
		seen[i] = true
		if !dup {
			d.Close(dev.address)
		}
		h.hal.ReleaseInterface(hal.DeviceAddress(dev.address), uint8(i))
		dev.boundDrivers[i] = nil
	}
}
