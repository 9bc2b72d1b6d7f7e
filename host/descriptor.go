package host

// Descriptor walking helpers.
//
// Configuration descriptors arrive from the device as a single block of
// concatenated descriptors, each prefixed with a length byte and a type
// byte. Class drivers walk this block to locate their interface and any
// class-specific descriptors that follow it. All helpers treat the data
// as untrusted: a descriptor whose declared length runs past the end of
// the block (or is shorter than the two-byte prefix) terminates the walk.

// DescriptorHeaderSize is the size of the common descriptor prefix
// (bLength, bDescriptorType).
const DescriptorHeaderSize = 2

// DescriptorLength returns the declared length of the descriptor at the
// start of data, or 0 if data is too short.
func DescriptorLength(data []byte) int {
	if len(data) < DescriptorHeaderSize {
		return 0
	}
	return int(data[0])
}

// DescriptorType returns the type of the descriptor at the start of data,
// or 0 if data is too short.
func DescriptorType(data []byte) uint8 {
	if len(data) < DescriptorHeaderSize {
		return 0
	}
	return data[1]
}

// NextDescriptor skips the descriptor at the start of data and returns
// the remainder of the block. Returns nil if data does not begin with a
// well-formed descriptor.
func NextDescriptor(data []byte) []byte {
	length := DescriptorLength(data)
	if length < DescriptorHeaderSize || length > len(data) {
		return nil
	}
	return data[length:]
}

// FindDescriptor returns the block starting at the first descriptor of
// the given type, or nil if none is found before the block ends or a
// malformed descriptor is encountered.
func FindDescriptor(data []byte, descType uint8) []byte {
	for len(data) >= DescriptorHeaderSize {
		if data[1] == descType {
			return data
		}
		data = NextDescriptor(data)
	}
	return nil
}

// FindInterface returns the block starting at the first interface
// descriptor matching the given class and subclass, or nil if none is
// found.
func FindInterface(data []byte, class, subclass uint8) []byte {
	for len(data) >= DescriptorHeaderSize {
		if data[1] == DescriptorTypeInterface && len(data) >= InterfaceDescriptorSize &&
			data[5] == class && data[6] == subclass {
			return data
		}
		data = NextDescriptor(data)
	}
	return nil
}
