package host

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lightsource-nz/tinyusb/host/hal"
	"github.com/lightsource-nz/tinyusb/pkg"
)

// =============================================================================
// Mock HAL for Testing
// =============================================================================

// mockHAL implements hal.HostHAL for testing.
type mockHAL struct {
	initErr    error
	startErr   error
	stopErr    error
	closeErr   error
	numPorts   int
	portStatus hal.PortStatus
	portSpeed  hal.Speed

	// Connection simulation
	connectCh    chan int
	disconnectCh chan int

	// Transfer results
	controlResult int
	controlErr    error
	bulkResult    int
	bulkErr       error
	interruptErr  error
	isoErr        error

	// State tracking
	running bool
	mu      sync.Mutex
}

func newMockHAL() *mockHAL {
	return &mockHAL{
		numPorts:     4,
		portSpeed:    hal.SpeedFull,
		connectCh:    make(chan int, 16),
		disconnectCh: make(chan int, 16),
	}
}

func (m *mockHAL) Init(ctx context.Context) error {
	return m.initErr
}

func (m *mockHAL) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = true
	return m.startErr
}

func (m *mockHAL) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	return m.stopErr
}

func (m *mockHAL) Close() error {
	return m.closeErr
}

func (m *mockHAL) NumPorts() int {
	return m.numPorts
}

func (m *mockHAL) GetPortStatus(port int) (hal.PortStatus, error) {
	return m.portStatus, nil
}

func (m *mockHAL) PortSpeed(port int) hal.Speed {
	return m.portSpeed
}

func (m *mockHAL) ResetPort(port int) error {
	return nil
}

func (m *mockHAL) EnablePort(port int, enable bool) error {
	return nil
}

func (m *mockHAL) ControlTransfer(ctx context.Context, addr hal.DeviceAddress, setup *hal.SetupPacket, data []byte) (int, error) {
	return m.controlResult, m.controlErr
}

func (m *mockHAL) BulkTransfer(ctx context.Context, addr hal.DeviceAddress, endpoint uint8, data []byte) (int, error) {
	return m.bulkResult, m.bulkErr
}

func (m *mockHAL) InterruptTransfer(ctx context.Context, addr hal.DeviceAddress, endpoint uint8, data []byte) (int, error) {
	return 0, m.interruptErr
}

func (m *mockHAL) IsochronousTransfer(ctx context.Context, addr hal.DeviceAddress, endpoint uint8, data []byte) (int, error) {
	return 0, m.isoErr
}

func (m *mockHAL) SetDeviceAddress(ctx context.Context, newAddr hal.DeviceAddress) error {
	return nil
}

func (m *mockHAL) ClaimInterface(addr hal.DeviceAddress, iface uint8) error {
	return nil
}

func (m *mockHAL) ReleaseInterface(addr hal.DeviceAddress, iface uint8) error {
	return nil
}

func (m *mockHAL) WaitForConnection(ctx context.Context) (int, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case port := <-m.connectCh:
		return port, nil
	}
}

func (m *mockHAL) WaitForDisconnection(ctx context.Context) (int, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case port := <-m.disconnectCh:
		return port, nil
	}
}

// simulateConnect simulates a device connection.
func (m *mockHAL) simulateConnect(port int) {
	m.connectCh <- port
}

// simulateDisconnect simulates a device disconnection.
func (m *mockHAL) simulateDisconnect(port int) {
	m.disconnectCh <- port
}

// Ensure mockHAL implements hal.HostHAL
var _ hal.HostHAL = (*mockHAL)(nil)

// =============================================================================
// Host Tests
// =============================================================================

func TestNew(t *testing.T) {
	mock := newMockHAL()
	h := New(mock)

	if h == nil {
		t.Fatal("New returned nil")
	}
	if h.hal != mock {
		t.Error("HAL not set correctly")
	}
	if h.nextAddress != 1 {
		t.Errorf("nextAddress = %d, want 1", h.nextAddress)
	}
	if h.deviceConnected == nil {
		t.Error("deviceConnected channel is nil")
	}
	if h.deviceDisconnected == nil {
		t.Error("deviceDisconnected channel is nil")
	}
}

func TestHost_StartStop(t *testing.T) {
	mock := newMockHAL()
	h := New(mock)

	ctx := context.Background()

	// Test Start
	if err := h.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if !h.IsRunning() {
		t.Error("IsRunning() = false after Start")
	}

	// Test double Start
	if err := h.Start(ctx); err == nil {
		t.Error("second Start should return error")
	}

	// Test Stop
	if err := h.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if h.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}

	// Test double Stop (should be idempotent)
	if err := h.Stop(); err != nil {
		t.Fatalf("second Stop failed: %v", err)
	}
}

func TestHost_NumPorts(t *testing.T) {
	mock := newMockHAL()
	mock.numPorts = 8
	h := New(mock)

	if got := h.NumPorts(); got != 8 {
		t.Errorf("NumPorts() = %d, want 8", got)
	}
}

func TestHost_GetPortStatus(t *testing.T) {
	mock := newMockHAL()
	mock.portStatus = hal.PortStatus{
		Connected: true,
		Enabled:   true,
		PowerOn:   true,
		Speed:     hal.SpeedHigh,
	}
	h := New(mock)

	status, err := h.GetPortStatus(1)
	if err != nil {
		t.Fatalf("GetPortStatus failed: %v", err)
	}

	if !status.Connected {
		t.Error("Connected = false, want true")
	}
	if !status.Enabled {
		t.Error("Enabled = false, want true")
	}
	if status.Speed != hal.SpeedHigh {
		t.Errorf("Speed = %v, want SpeedHigh", status.Speed)
	}
}

func TestHost_Devices(t *testing.T) {
	mock := newMockHAL()
	h := New(mock)

	// Initially no devices
	devices := h.Devices()
	if len(devices) != 0 {
		t.Errorf("len(Devices()) = %d, want 0", len(devices))
	}

	// Add a mock device directly
	h.mutex.Lock()
	h.devices[0] = &Device{address: 1}
	h.deviceCount = 1
	h.mutex.Unlock()

	devices = h.Devices()
	if len(devices) != 1 {
		t.Errorf("len(Devices()) = %d, want 1", len(devices))
	}
}

func TestHost_GetDevice(t *testing.T) {
	mock := newMockHAL()
	h := New(mock)

	// Add a mock device
	dev := &Device{address: 1}
	h.mutex.Lock()
	h.devices[0] = dev
	h.deviceCount = 1
	h.mutex.Unlock()

	// Test valid address
	if got := h.GetDevice(1); got != dev {
		t.Errorf("GetDevice(1) returned wrong device")
	}

	// Test invalid addresses
	if got := h.GetDevice(0); got != nil {
		t.Error("GetDevice(0) should return nil")
	}
	if got := h.GetDevice(255); got != nil {
		t.Error("GetDevice(255) should return nil")
	}
}

func TestHost_AllocateAddress(t *testing.T) {
	mock := newMockHAL()
	h := New(mock)

	// First allocation
	addr1 := h.allocateAddress()
	if addr1 == 0 {
		t.Error("allocateAddress returned 0")
	}

	// Mark address as used
	h.mutex.Lock()
	h.devices[addr1-1] = &Device{address: addr1}
	h.mutex.Unlock()

	// Second allocation should return different address
	addr2 := h.allocateAddress()
	if addr2 == 0 {
		t.Error("second allocateAddress returned 0")
	}
	if addr2 == addr1 {
		t.Errorf("second allocation returned same address: %d", addr2)
	}
}

func TestHost_SetCallbacks(t *testing.T) {
	mock := newMockHAL()
	h := New(mock)

	h.SetOnDeviceConnect(func(d *Device) {
		// callback invoked
	})

	h.SetOnDeviceDisconnect(func(d *Device) {
		// callback invoked
	})

	// Verify callbacks are set
	h.mutex.RLock()
	if h.onDeviceConnect == nil {
		t.Error("onDeviceConnect not set")
	}
	if h.onDeviceDisconnect == nil {
		t.Error("onDeviceDisconnect not set")
	}
	h.mutex.RUnlock()
}

// =============================================================================
// Device Tests
// =============================================================================

func TestDevice_Getters(t *testing.T) {
	dev := &Device{
		address: 5,
		port:    2,
		speed:   hal.SpeedHigh,
		descriptor: DeviceDescriptor{
			VendorID:          0x1234,
			ProductID:         0x5678,
			DeviceClass:       0x02,
			DeviceSubClass:    0x00,
			DeviceProtocol:    0x00,
			ManufacturerIndex: 1,
			ProductIndex:      2,
			SerialNumberIndex: 3,
		},
	}
	dev.strings[1] = "Test Manufacturer"
	dev.strings[2] = "Test Product"
	dev.strings[3] = "12345"

	if got := dev.Address(); got != 5 {
		t.Errorf("Address() = %d, want 5", got)
	}
	if got := dev.Port(); got != 2 {
		t.Errorf("Port() = %d, want 2", got)
	}
	if got := dev.Speed(); got != hal.SpeedHigh {
		t.Errorf("Speed() = %v, want SpeedHigh", got)
	}
	if got := dev.VendorID(); got != 0x1234 {
		t.Errorf("VendorID() = 0x%04X, want 0x1234", got)
	}
	if got := dev.ProductID(); got != 0x5678 {
		t.Errorf("ProductID() = 0x%04X, want 0x5678", got)
	}
	if got := dev.DeviceClass(); got != 0x02 {
		t.Errorf("DeviceClass() = 0x%02X, want 0x02", got)
	}
	if got := dev.Manufacturer(); got != "Test Manufacturer" {
		t.Errorf("Manufacturer() = %q, want %q", got, "Test Manufacturer")
	}
	if got := dev.Product(); got != "Test Product" {
		t.Errorf("Product() = %q, want %q", got, "Test Product")
	}
	if got := dev.SerialNumber(); got != "12345" {
		t.Errorf("SerialNumber() = %q, want %q", got, "12345")
	}
}

func TestDevice_GetString(t *testing.T) {
	dev := &Device{}
	dev.strings[1] = "Test String"

	// Valid index
	if got := dev.GetString(1); got != "Test String" {
		t.Errorf("GetString(1) = %q, want %q", got, "Test String")
	}

	// Index 0 should return empty
	if got := dev.GetString(0); got != "" {
		t.Errorf("GetString(0) = %q, want empty", got)
	}

	// Out of range should return empty
	if got := dev.GetString(255); got != "" {
		t.Errorf("GetString(255) = %q, want empty", got)
	}
}

func TestDevice_GetInterface(t *testing.T) {
	dev := &Device{
		interfaces: []InterfaceDescriptor{
			{InterfaceNumber: 0, InterfaceClass: 0x03},
			{InterfaceNumber: 1, InterfaceClass: 0x08},
		},
	}

	// Valid interface
	iface := dev.GetInterface(0)
	if iface == nil {
		t.Fatal("GetInterface(0) returned nil")
	}
	if iface.InterfaceClass != 0x03 {
		t.Errorf("InterfaceClass = 0x%02X, want 0x03", iface.InterfaceClass)
	}

	// Invalid interface
	if got := dev.GetInterface(5); got != nil {
		t.Error("GetInterface(5) should return nil")
	}
}

func TestDevice_GetEndpoint(t *testing.T) {
	dev := &Device{
		endpoints: []EndpointDescriptor{
			{EndpointAddress: 0x81, Attributes: EndpointTypeBulk},
			{EndpointAddress: 0x02, Attributes: EndpointTypeBulk},
		},
	}

	// Valid endpoint
	ep := dev.GetEndpoint(0x81)
	if ep == nil {
		t.Fatal("GetEndpoint(0x81) returned nil")
	}
	if ep.EndpointAddress != 0x81 {
		t.Errorf("EndpointAddress = 0x%02X, want 0x81", ep.EndpointAddress)
	}

	// Invalid endpoint
	if got := dev.GetEndpoint(0x83); got != nil {
		t.Error("GetEndpoint(0x83) should return nil")
	}
}

func TestDevice_State(t *testing.T) {
	dev := &Device{state: DeviceStateConfigured}

	if got := dev.State(); got != DeviceStateConfigured {
		t.Errorf("State() = %v, want DeviceStateConfigured", got)
	}
}

func TestDevice_Close(t *testing.T) {
	dev := &Device{state: DeviceStateConfigured}

	if err := dev.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if dev.State() != DeviceStateDetached {
		t.Errorf("State() = %v after Close, want DeviceStateDetached", dev.State())
	}
}

func TestDevice_ParseDeviceDescriptor(t *testing.T) {
	dev := &Device{}

	data := []byte{
		18, 0x01, // Length, Type
		0x00, 0x02, // USB 2.0
		0x00, 0x00, 0x00, // Class, SubClass, Protocol
		64,         // MaxPacketSize0
		0x34, 0x12, // VendorID
		0x78, 0x56, // ProductID
		0x01, 0x00, // DeviceVersion
		1, 2, 3, // String indices
		1, // NumConfigurations
	}

	if !dev.parseDeviceDescriptor(data) {
		t.Fatal("parseDeviceDescriptor returned false")
	}

	if dev.descriptor.VendorID != 0x1234 {
		t.Errorf("VendorID = 0x%04X, want 0x1234", dev.descriptor.VendorID)
	}
	if dev.descriptor.ProductID != 0x5678 {
		t.Errorf("ProductID = 0x%04X, want 0x5678", dev.descriptor.ProductID)
	}
}

func TestDevice_ParseConfigurationTree(t *testing.T) {
	dev := &Device{}

	// Configuration descriptor with interface and endpoint
	data := []byte{
		// Configuration descriptor
		9, 0x02, // Length, Type
		25, 0x00, // TotalLength = 25
		1,    // NumInterfaces
		1,    // ConfigurationValue
		0,    // ConfigurationIndex
		0x80, // Attributes
		50,   // MaxPower

		// Interface descriptor
		9, 0x04, // Length, Type
		0,    // InterfaceNumber
		0,    // AlternateSetting
		1,    // NumEndpoints
		0x03, // InterfaceClass (HID)
		0x00, // InterfaceSubClass
		0x00, // InterfaceProtocol
		0,    // InterfaceIndex

		// Endpoint descriptor
		7, 0x05, // Length, Type
		0x81,       // EndpointAddress (IN)
		0x03,       // Attributes (Interrupt)
		0x08, 0x00, // MaxPacketSize
		10, // Interval
	}

	dev.parseConfigurationTree(data)

	if dev.config.NumInterfaces != 1 {
		t.Errorf("NumInterfaces = %d, want 1", dev.config.NumInterfaces)
	}
	if len(dev.interfaces) != 1 {
		t.Fatalf("len(interfaces) = %d, want 1", len(dev.interfaces))
	}
	if dev.interfaces[0].InterfaceClass != 0x03 {
		t.Errorf("InterfaceClass = 0x%02X, want 0x03", dev.interfaces[0].InterfaceClass)
	}
	if len(dev.endpoints) != 1 {
		t.Fatalf("len(endpoints) = %d, want 1", len(dev.endpoints))
	}
	if dev.endpoints[0].EndpointAddress != 0x81 {
		t.Errorf("EndpointAddress = 0x%02X, want 0x81", dev.endpoints[0].EndpointAddress)
	}
}

// =============================================================================
// Transfer Tests
// =============================================================================

func TestTransfer_IsComplete(t *testing.T) {
	tr := &Transfer{}

	if tr.IsComplete() {
		t.Error("new transfer should not be complete")
	}

	tr.completed = 1
	if !tr.IsComplete() {
		t.Error("transfer with completed=1 should be complete")
	}
}

func TestTransfer_Result(t *testing.T) {
	tr := &Transfer{
		result: 64,
		err:    nil,
	}

	n, err := tr.Result()
	if n != 64 {
		t.Errorf("Result() n = %d, want 64", n)
	}
	if err != nil {
		t.Errorf("Result() err = %v, want nil", err)
	}
}

func TestTransferManager_StartStop(t *testing.T) {
	mock := newMockHAL()
	h := New(mock)

	tm := NewTransferManager(h, 2)
	if tm == nil {
		t.Fatal("NewTransferManager returned nil")
	}

	ctx := context.Background()

	if err := tm.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if !tm.running {
		t.Error("running = false after Start")
	}

	if err := tm.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if tm.running {
		t.Error("running = true after Stop")
	}
}

func TestTransferManager_PendingCount(t *testing.T) {
	mock := newMockHAL()
	h := New(mock)
	tm := NewTransferManager(h, 1)

	if got := tm.PendingCount(); got != 0 {
		t.Errorf("PendingCount() = %d, want 0", got)
	}
}

// =============================================================================
// Endpoint Tests
// =============================================================================

func TestDevice_OpenEndpoint(t *testing.T) {
	mock := newMockHAL()
	h := New(mock)
	dev := &Device{host: h, address: 1}

	desc := &EndpointDescriptor{
		DescriptorType:  DescriptorTypeEndpoint,
		EndpointAddress: 0x81,
		Attributes:      0x02,
		MaxPacketSize:   64,
	}
	if err := dev.OpenEndpoint(desc); err != nil {
		t.Fatalf("OpenEndpoint failed: %v", err)
	}
	if !dev.EndpointOpened(0x81) {
		t.Error("EndpointOpened(0x81) = false after open")
	}
	if dev.EndpointOpened(0x01) {
		t.Error("EndpointOpened(0x01) = true for opposite direction")
	}
	if got := dev.EndpointMaxPacketSize(0x81); got != 64 {
		t.Errorf("EndpointMaxPacketSize = %d, want 64", got)
	}

	// Opening the same endpoint twice fails.
	if err := dev.OpenEndpoint(desc); err != pkg.ErrBusy {
		t.Errorf("second OpenEndpoint error = %v, want ErrBusy", err)
	}

	// The control endpoint is never opened by class drivers.
	ctrl := &EndpointDescriptor{EndpointAddress: 0x00}
	if err := dev.OpenEndpoint(ctrl); err != pkg.ErrInvalidEndpoint {
		t.Errorf("OpenEndpoint(0x00) error = %v, want ErrInvalidEndpoint", err)
	}
}

func TestDevice_SubmitTransfer(t *testing.T) {
	mock := newMockHAL()
	mock.bulkResult = 4
	h := New(mock)
	if err := h.transfers.Start(context.Background()); err != nil {
		t.Fatalf("transfer manager start failed: %v", err)
	}
	defer h.transfers.Stop()

	dev := &Device{host: h, address: 1}
	desc := &EndpointDescriptor{
		EndpointAddress: 0x02,
		Attributes:      0x02, // bulk
		MaxPacketSize:   64,
	}
	if err := dev.OpenEndpoint(desc); err != nil {
		t.Fatalf("OpenEndpoint failed: %v", err)
	}

	// Unopened endpoint is rejected.
	err := dev.SubmitTransfer(context.Background(), 0x81, nil, nil)
	if err != pkg.ErrInvalidEndpoint {
		t.Errorf("SubmitTransfer(unopened) error = %v, want ErrInvalidEndpoint", err)
	}

	// An endpoint with a transfer in flight rejects a second submission.
	dev.epState[endpointIndex(0x02)].busy.Store(true)
	err = dev.SubmitTransfer(context.Background(), 0x02, []byte{1}, nil)
	if err != pkg.ErrBusy {
		t.Errorf("SubmitTransfer(busy) error = %v, want ErrBusy", err)
	}
	dev.epState[endpointIndex(0x02)].busy.Store(false)

	done := make(chan struct{})
	var gotStatus pkg.TransferStatus
	var gotN int
	err = dev.SubmitTransfer(context.Background(), 0x02, []byte{1, 2, 3, 4},
		func(epAddr uint8, status pkg.TransferStatus, n int) {
			gotStatus = status
			gotN = n
			close(done)
		})
	if err != nil {
		t.Fatalf("SubmitTransfer failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("completion callback never fired")
	}
	if gotStatus != pkg.TransferStatusSuccess {
		t.Errorf("status = %v, want success", gotStatus)
	}
	if gotN != 4 {
		t.Errorf("n = %d, want 4", gotN)
	}
	if dev.EndpointBusy(0x02) {
		t.Error("EndpointBusy = true after completion")
	}
}

func TestDevice_SubmitTransfer_NotRunning(t *testing.T) {
	mock := newMockHAL()
	h := New(mock)

	dev := &Device{host: h, address: 1}
	desc := &EndpointDescriptor{EndpointAddress: 0x02, Attributes: 0x02}
	if err := dev.OpenEndpoint(desc); err != nil {
		t.Fatalf("OpenEndpoint failed: %v", err)
	}

	if err := dev.SubmitTransfer(context.Background(), 0x02, []byte{1}, nil); err == nil {
		t.Fatal("SubmitTransfer succeeded with the transfer manager stopped")
	}
	// The failed submission must release its claim on the endpoint.
	if dev.EndpointBusy(0x02) {
		t.Error("EndpointBusy = true after failed submission")
	}
}

func TestEndpointIndex(t *testing.T) {
	tests := []struct {
		addr uint8
		want int
	}{
		{0x00, 0},
		{0x01, 1},
		{0x0F, 15},
		{0x80, 16},
		{0x81, 17},
		{0x8F, 31},
	}
	for _, tt := range tests {
		if got := endpointIndex(tt.addr); got != tt.want {
			t.Errorf("endpointIndex(%#x) = %d, want %d", tt.addr, got, tt.want)
		}
	}
}

// =============================================================================
// Class Driver Binding Tests
// =============================================================================

// mockClassDriver claims interfaces matching its class.
type mockClassDriver struct {
	name    string
	class   uint8
	consume uint8 // additional interfaces claimed beyond the first

	offered    []uint8
	opened     []uint8
	configured []uint8
	closed     []uint8
}

func (m *mockClassDriver) Name() string { return m.name }

func (m *mockClassDriver) Open(dev *Device, desc *InterfaceDescriptor, data []byte) bool {
	m.offered = append(m.offered, desc.InterfaceNumber)
	if desc.InterfaceClass != m.class {
		return false
	}
	m.opened = append(m.opened, desc.InterfaceNumber)
	return true
}

func (m *mockClassDriver) SetConfig(dev *Device, itfNum uint8) bool {
	m.configured = append(m.configured, itfNum)
	dev.DriverConfigComplete(itfNum + 1 + m.consume)
	return true
}

func (m *mockClassDriver) TransferComplete(dev *Device, epAddr uint8, status pkg.TransferStatus, n int) bool {
	return true
}

func (m *mockClassDriver) Close(addr uint8) {
	m.closed = append(m.closed, addr)
}

func testInterfaceDesc(itf, alt, class uint8) []byte {
	return []byte{9, DescriptorTypeInterface, itf, alt, 0, class, 0, 0, 0}
}

func TestHost_BindClassDrivers(t *testing.T) {
	mock := newMockHAL()
	h := New(mock)

	hid := &mockClassDriver{name: "hid", class: 0x03}
	audio := &mockClassDriver{name: "audio", class: 0x01, consume: 1}
	h.RegisterDriver(hid)
	h.RegisterDriver(audio)

	// Interface 0: vendor specific, unclaimed. Interface 1: HID.
	// Interface 2: audio, whose driver consumes interface 3 as well.
	var raw []byte
	raw = append(raw, 9, DescriptorTypeConfiguration, 0, 0, 4, 1, 0, 0x80, 50)
	raw = append(raw, testInterfaceDesc(0, 0, 0xFF)...)
	raw = append(raw, testInterfaceDesc(1, 0, 0x03)...)
	raw = append(raw, testInterfaceDesc(2, 0, 0x01)...)
	raw = append(raw, testInterfaceDesc(3, 0, 0x01)...)

	dev := &Device{host: h, address: 1, rawConfig: raw}
	h.bindClassDrivers(dev)

	if len(hid.opened) != 1 || hid.opened[0] != 1 {
		t.Errorf("hid opened %v, want [1]", hid.opened)
	}
	if len(hid.configured) != 1 || hid.configured[0] != 1 {
		t.Errorf("hid configured %v, want [1]", hid.configured)
	}
	if len(audio.opened) != 1 || audio.opened[0] != 2 {
		t.Errorf("audio opened %v, want [2]", audio.opened)
	}

	// Interface 3 was consumed by the audio driver's config-complete
	// report, so it is never offered.
	for _, itf := range hid.offered {
		if itf == 3 {
			t.Error("interface 3 offered despite being consumed")
		}
	}
	for _, itf := range audio.offered {
		if itf == 3 {
			t.Error("interface 3 offered despite being consumed")
		}
	}

	if dev.boundDrivers[1] != ClassDriver(hid) {
		t.Error("boundDrivers[1] is not the hid driver")
	}
	if dev.boundDrivers[2] != ClassDriver(audio) {
		t.Error("boundDrivers[2] is not the audio driver")
	}
}

func TestHost_BindClassDrivers_SkipsAlternateSettings(t *testing.T) {
	mock := newMockHAL()
	h := New(mock)

	hid := &mockClassDriver{name: "hid", class: 0x03}
	h.RegisterDriver(hid)

	var raw []byte
	raw = append(raw, 9, DescriptorTypeConfiguration, 0, 0, 1, 1, 0, 0x80, 50)
	raw = append(raw, testInterfaceDesc(0, 0, 0x03)...)
	raw = append(raw, testInterfaceDesc(0, 1, 0x03)...)

	dev := &Device{host: h, address: 1, rawConfig: raw}
	h.bindClassDrivers(dev)

	if len(hid.opened) != 1 {
		t.Errorf("hid opened %v, want exactly one binding", hid.opened)
	}
}

func TestHost_CloseClassDrivers(t *testing.T) {
	mock := newMockHAL()
	h := New(mock)

	a := &mockClassDriver{name: "a", class: 0x03}
	b := &mockClassDriver{name: "b", class: 0x01}

	dev := &Device{host: h, address: 5}
	dev.boundDrivers[1] = a
	dev.boundDrivers[2] = b
	dev.boundDrivers[3] = b

	h.closeClassDrivers(dev)

	if len(a.closed) != 1 || a.closed[0] != 5 {
		t.Errorf("a closed %v, want [5]", a.closed)
	}
	// A driver bound to two interfaces is closed once.
	if len(b.closed) != 1 || b.closed[0] != 5 {
		t.Errorf("b closed %v, want [5]", b.closed)
	}
	for i, d := range dev.boundDrivers {
		if d != nil {
			t.Errorf("boundDrivers[%d] not cleared", i)
		}
	}
}

// =============================================================================
// WaitDevice Tests
// =============================================================================

func TestHost_WaitDevice_Timeout(t *testing.T) {
	mock := newMockHAL()
	h := New(mock)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	h.ctx, h.cancel = context.WithCancel(context.Background())
	defer h.cancel()

	_, err := h.WaitDevice(ctx)
	if err == nil {
		t.Error("WaitDevice should return error on timeout")
	}
}

// =============================================================================
// Benchmarks
// =============================================================================

func BenchmarkHost_GetDevice(b *testing.B) {
	mock := newMockHAL()
	h := New(mock)

	// Add some devices
	for i := 0; i < 10; i++ {
		h.devices[i] = &Device{address: uint8(i + 1)}
	}
	h.deviceCount = 10

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = h.GetDevice(uint8((i % 10) + 1))
	}
}

func BenchmarkHost_Devices(b *testing.B) {
	mock := newMockHAL()
	h := New(mock)

	// Add some devices
	for i := 0; i < 5; i++ {
		h.devices[i] = &Device{address: uint8(i + 1)}
	}
	h.deviceCount = 5

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = h.Devices()
	}
}

func BenchmarkDevice_GetInterface(b *testing.B) {
	dev := &Device{
		interfaces: make([]InterfaceDescriptor, 4),
	}
	for i := range dev.interfaces {
		dev.interfaces[i].InterfaceNumber = uint8(i)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = dev.GetInterface(uint8(i % 4))
	}
}

func BenchmarkDevice_GetEndpoint(b *testing.B) {
	dev := &Device{
		endpoints: []EndpointDescriptor{
			{EndpointAddress: 0x81},
			{EndpointAddress: 0x82},
			{EndpointAddress: 0x01},
			{EndpointAddress: 0x02},
		},
	}

	addrs := []uint8{0x81, 0x82, 0x01, 0x02}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = dev.GetEndpoint(addrs[i%4])
	}
}

func BenchmarkTransfer_IsComplete(b *testing.B) {
	tr := &Transfer{}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = tr.IsComplete()
	}
}
