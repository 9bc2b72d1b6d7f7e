package midi

import "testing"

func TestSpecVersion_String(t *testing.T) {
	tests := []struct {
		v    SpecVersion
		want string
	}{
		{SpecVersion1, "USB-MIDI 1.0"},
		{SpecVersion2, "USB-MIDI 2.0"},
		{SpecVersionUnknown, "Unknown Version (0)"},
	}
	for _, tt := range tests {
		if got := tt.v.String(); got != tt.want {
			t.Errorf("SpecVersion(%d).String() = %q, want %q", tt.v, got, tt.want)
		}
	}
}

func TestSpecVersionSupported(t *testing.T) {
	if !SpecVersionSupported(SpecVersion1) {
		t.Error("SpecVersion1 not supported")
	}
	if !SpecVersionSupported(SpecVersion2) {
		t.Error("SpecVersion2 not supported")
	}
	if SpecVersionSupported(SpecVersionUnknown) {
		t.Error("SpecVersionUnknown reported supported")
	}
}

func TestDirectionOf(t *testing.T) {
	if got := DirectionOf(0x81); got != DirIn {
		t.Errorf("DirectionOf(0x81) = %v, want DirIn", got)
	}
	if got := DirectionOf(0x02); got != DirOut {
		t.Errorf("DirectionOf(0x02) = %v, want DirOut", got)
	}
}

func TestParseMSHeaderDescriptor(t *testing.T) {
	data := []byte{7, DescriptorTypeCSInterface, SubtypeMSHeader, 0x00, 0x01, 0x41, 0x00}

	var out MSHeaderDescriptor
	if !ParseMSHeaderDescriptor(data, &out) {
		t.Fatal("parse failed")
	}
	if out.BCDMSC != 0x0100 {
		t.Errorf("BCDMSC = %#x, want 0x0100", out.BCDMSC)
	}
	if out.TotalLength != 0x41 {
		t.Errorf("TotalLength = %#x, want 0x41", out.TotalLength)
	}

	// Too short
	if ParseMSHeaderDescriptor(data[:6], &out) {
		t.Error("parse accepted truncated data")
	}

	// Wrong subtype
	bad := append([]byte(nil), data...)
	bad[2] = SubtypeInJack
	if ParseMSHeaderDescriptor(bad, &out) {
		t.Error("parse accepted wrong subtype")
	}
}

func TestParseMSEndpointDescriptor(t *testing.T) {
	data := []byte{6, DescriptorTypeCSEndpoint, SubtypeMSGeneral, 2, 5, 6}

	var out MSEndpointDescriptor
	if !ParseMSEndpointDescriptor(data, &out) {
		t.Fatal("parse failed")
	}
	if out.NumEmbeddedJacks != 2 {
		t.Errorf("NumEmbeddedJacks = %d, want 2", out.NumEmbeddedJacks)
	}
	if out.JackIDs[0] != 5 || out.JackIDs[1] != 6 {
		t.Errorf("JackIDs = %v, want [5 6 ...]", out.JackIDs[:2])
	}
}

func TestParseMSEndpointDescriptor_JackCountOverrun(t *testing.T) {
	// Declared jack count runs past the descriptor's own length.
	data := []byte{6, DescriptorTypeCSEndpoint, SubtypeMSGeneral, 9, 5, 6}

	var out MSEndpointDescriptor
	if ParseMSEndpointDescriptor(data, &out) {
		t.Error("parse accepted jack count exceeding descriptor length")
	}
}

func TestParseMSEndpointDescriptor_WrongType(t *testing.T) {
	data := []byte{6, DescriptorTypeCSInterface, SubtypeMSGeneral, 2, 5, 6}

	var out MSEndpointDescriptor
	if ParseMSEndpointDescriptor(data, &out) {
		t.Error("parse accepted class-specific interface type")
	}
}
