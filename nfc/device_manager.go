package nfc

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// DeviceManager owns the connection to a single NFC device.
type DeviceManager struct {
	manager    Manager
	device     Device
	devicePath string
	logger     *logrus.Entry

	mu sync.RWMutex
}

// NewDeviceManager creates a DeviceManager. An empty devicePath selects the
// first device the manager lists at connect time.
func NewDeviceManager(manager Manager, devicePath string) *DeviceManager {
	return &DeviceManager{
		manager:    manager,
		devicePath: devicePath,
		logger:     logrus.WithField("component", "nfc.device"),
	}
}

// Device returns the current active device, or nil if not connected.
func (dm *DeviceManager) Device() Device {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.device
}

// HasDevice returns true if a device is currently connected.
func (dm *DeviceManager) HasDevice() bool {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.device != nil
}

// DevicePath returns the path of the device being managed.
func (dm *DeviceManager) DevicePath() string {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.devicePath
}

// TryConnect connects to the device. A connected device that still answers
// InitiatorInit is reused; otherwise it is closed and reopened.
func (dm *DeviceManager) TryConnect() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.device != nil {
		err := dm.device.InitiatorInit()
		if err == nil {
			return nil
		}
		dm.logger.WithError(err).Warn("connected device stopped responding, reopening")
		dm.device.Close()
		dm.device = nil
	}

	path := dm.devicePath
	if path == "" {
		devices, err := dm.manager.ListDevices()
		if err != nil {
			return fmt.Errorf("error listing NFC devices: %w", err)
		}
		if len(devices) == 0 {
			return fmt.Errorf("no NFC devices found by manager")
		}
		path = devices[0]
		dm.logger.WithField("device", path).Debug("no device path configured, using first available")
	}

	dev, err := dm.manager.OpenDevice(path)
	if err != nil {
		return fmt.Errorf("failed to open device %s: %w", path, err)
	}
	if err := dev.InitiatorInit(); err != nil {
		dev.Close()
		return fmt.Errorf("failed to initialize device %s: %w", path, err)
	}

	dm.device = dev
	dm.logger.WithFields(logrus.Fields{
		"device":     dev.String(),
		"connection": dev.Connection(),
	}).Info("connected to NFC device")
	return nil
}

// Close closes the current device connection.
func (dm *DeviceManager) Close() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.device == nil {
		return nil
	}
	err := dm.device.Close()
	dm.device = nil
	if err != nil {
		return fmt.Errorf("close device: %w", err)
	}
	return nil
}
