package device

import (
	"context"

	"codeberg.org/mutker/nvidiautil/internal/errors"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// nvmlLibrary abstracts NVML operations for testing
type nvmlLibrary interface {
	Initialize() error
	Shutdown() error
	GetDeviceCount() (int, error)
	GetDeviceName(index int) (string, error)

	// Readings. Power values are milliwatts, memory values bytes.
	GetTemperature(index int) (uint32, error)
	GetFanSpeed(index int) (uint32, error)
	GetPowerUsage(index int) (uint32, error)
	GetPowerLimit(index int) (uint32, error)
	GetMemoryInfo(index int) (nvml.Memory, error)
	GetUtilization(index int) (nvml.Utilization, error)
	GetGraphicsClock(index int) (uint32, error)
}

type nvmlWrapper struct {
	initialized bool
}

func (w *nvmlWrapper) Initialize() error {
	if w.initialized {
		return nil
	}

	ret := nvml.Init()
	if !IsNVMLSuccess(ret) {
		return errors.New().Wrap(ErrInitFailed, newNVMLError(ret))
	}

	w.initialized = true

	return nil
}

func (w *nvmlWrapper) Shutdown() error {
	if !w.initialized {
		return nil
	}

	ret := nvml.Shutdown()
	if !IsNVMLSuccess(ret) {
		return errors.New().Wrap(ErrShutdownFailed, newNVMLError(ret))
	}

	w.initialized = false

	return nil
}

func (w *nvmlWrapper) GetDeviceCount() (int, error) {
	errFactory := errors.New()
	if !w.initialized {
		return 0, errFactory.New(ErrNotInitialized)
	}

	count, ret := nvml.DeviceGetCount()
	if !IsNVMLSuccess(ret) {
		return 0, errFactory.Wrap(ErrDeviceCountFailed, newNVMLError(ret))
	}

	return count, nil
}

func (w *nvmlWrapper) handle(index int) (nvml.Device, error) {
	errFactory := errors.New()
	if !w.initialized {
		return nil, errFactory.New(ErrNotInitialized)
	}

	device, ret := nvml.DeviceGetHandleByIndex(index)
	if !IsNVMLSuccess(ret) {
		return nil, errFactory.Wrap(ErrDeviceNotFound, newNVMLError(ret)).WithData(index)
	}

	return device, nil
}

func (w *nvmlWrapper) GetDeviceName(index int) (string, error) {
	device, err := w.handle(index)
	if err != nil {
		return "", err
	}

	name, ret := device.GetName()
	if !IsNVMLSuccess(ret) {
		return "", errors.New().Wrap(ErrDeviceInfoFailed, newNVMLError(ret)).WithData(index)
	}

	return name, nil
}

func (w *nvmlWrapper) GetTemperature(index int) (uint32, error) {
	device, err := w.handle(index)
	if err != nil {
		return 0, err
	}

	temp, ret := device.GetTemperature(nvml.TEMPERATURE_GPU)
	if !IsNVMLSuccess(ret) {
		return 0, errors.New().Wrap(ErrReadingFailed, newNVMLError(ret)).WithData(index)
	}

	return temp, nil
}

// GetFanSpeed returns the speed of the first fan in percent.
func (w *nvmlWrapper) GetFanSpeed(index int) (uint32, error) {
	device, err := w.handle(index)
	if err != nil {
		return 0, err
	}

	speed, ret := device.GetFanSpeed_v2(0)
	if !IsNVMLSuccess(ret) {
		return 0, errors.New().Wrap(ErrReadingFailed, newNVMLError(ret)).WithData(index)
	}

	return speed, nil
}

func (w *nvmlWrapper) GetPowerUsage(index int) (uint32, error) {
	device, err := w.handle(index)
	if err != nil {
		return 0, err
	}

	usage, ret := device.GetPowerUsage()
	if !IsNVMLSuccess(ret) {
		return 0, errors.New().Wrap(ErrReadingFailed, newNVMLError(ret)).WithData(index)
	}

	return usage, nil
}

func (w *nvmlWrapper) GetPowerLimit(index int) (uint32, error) {
	device, err := w.handle(index)
	if err != nil {
		return 0, err
	}

	limit, ret := device.GetPowerManagementLimit()
	if !IsNVMLSuccess(ret) {
		return 0, errors.New().Wrap(ErrReadingFailed, newNVMLError(ret)).WithData(index)
	}

	return limit, nil
}

func (w *nvmlWrapper) GetMemoryInfo(index int) (nvml.Memory, error) {
	device, err := w.handle(index)
	if err != nil {
		return nvml.Memory{}, err
	}

	memory, ret := device.GetMemoryInfo()
	if !IsNVMLSuccess(ret) {
		return nvml.Memory{}, errors.New().Wrap(ErrReadingFailed, newNVMLError(ret)).WithData(index)
	}

	return memory, nil
}

func (w *nvmlWrapper) GetUtilization(index int) (nvml.Utilization, error) {
	device, err := w.handle(index)
	if err != nil {
		return nvml.Utilization{}, err
	}

	rates, ret := device.GetUtilizationRates()
	if !IsNVMLSuccess(ret) {
		return nvml.Utilization{}, errors.New().Wrap(ErrReadingFailed, newNVMLError(ret)).WithData(index)
	}

	return rates, nil
}

func (w *nvmlWrapper) GetGraphicsClock(index int) (uint32, error) {
	device, err := w.handle(index)
	if err != nil {
		return 0, err
	}

	clock, ret := device.GetClockInfo(nvml.CLOCK_GRAPHICS)
	if !IsNVMLSuccess(ret) {
		return 0, errors.New().Wrap(ErrReadingFailed, newNVMLError(ret)).WithData(index)
	}

	return clock, nil
}

// NVMLEnumerator lists GPUs through the NVIDIA management library.
type NVMLEnumerator struct {
	lib nvmlLibrary
}

func NewNVMLEnumerator() *NVMLEnumerator {
	return &NVMLEnumerator{lib: &nvmlWrapper{}}
}

func (e *NVMLEnumerator) Enumerate(_ context.Context) (devices []Device, err error) {
	errFactory := errors.New()

	if err := e.lib.Initialize(); err != nil {
		return nil, errFactory.Wrap(ErrEnumerationFailed, err)
	}
	defer func() {
		if shutdownErr := e.lib.Shutdown(); shutdownErr != nil && err == nil {
			err = errFactory.Wrap(ErrEnumerationFailed, shutdownErr)
			devices = nil
		}
	}()

	count, err := e.lib.GetDeviceCount()
	if err != nil {
		return nil, errFactory.Wrap(ErrEnumerationFailed, err)
	}
	if count == 0 {
		return nil, errFactory.New(ErrNoDevices)
	}

	devices = make([]Device, 0, count)
	for i := 0; i < count; i++ {
		name, err := e.lib.GetDeviceName(i)
		if err != nil {
			return nil, errFactory.Wrap(ErrEnumerationFailed, err)
		}
		devices = append(devices, Device{Index: i, Name: name})
	}

	return devices, nil
}
