package audio

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"
)

const framesPerBuffer = 1024

var (
	paMu   sync.Mutex
	paRefs int
)

// acquirePortAudio initializes the PortAudio runtime on first use. Each
// acquire must be paired with a releasePortAudio.
func acquirePortAudio() error {
	paMu.Lock()
	defer paMu.Unlock()

	if paRefs == 0 {
		if err := portaudio.Initialize(); err != nil {
			return fmt.Errorf("failed to initialize portaudio: %w", err)
		}
	}
	paRefs++
	return nil
}

func releasePortAudio() {
	paMu.Lock()
	defer paMu.Unlock()

	paRefs--
	if paRefs == 0 {
		portaudio.Terminate()
	}
}

// DeviceInfo describes a capture-capable device for display
type DeviceInfo struct {
	Index      int
	Name       string
	SampleRate int
	Channels   int
}

// ListDevices enumerates devices with at least one input channel. Loopback
// or monitor devices expose the system output as an input here.
func ListDevices() ([]DeviceInfo, error) {
	if err := acquirePortAudio(); err != nil {
		return nil, err
	}
	defer releasePortAudio()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate audio devices: %w", err)
	}

	var infos []DeviceInfo
	for i, dev := range devices {
		if dev.MaxInputChannels < 1 {
			continue
		}
		infos = append(infos, DeviceInfo{
			Index:      i,
			Name:       dev.Name,
			SampleRate: int(dev.DefaultSampleRate),
			Channels:   dev.MaxInputChannels,
		})
	}
	return infos, nil
}

// DeviceSource captures from a PortAudio input device. The microphone and
// the system loopback/monitor device are both opened through this type.
type DeviceSource struct {
	name    string
	match   string // device name substring, empty selects the default input
	format  Format
	stream  *portaudio.Stream
	started bool
}

// NewDeviceSource creates a source that will capture from the first device
// whose name contains match, or the default input device when match is
// empty. name labels the source in logs and status events.
func NewDeviceSource(name, match string) *DeviceSource {
	return &DeviceSource{
		name:  name,
		match: match,
	}
}

// Name returns the source label
func (d *DeviceSource) Name() string { return d.name }

// Format returns the native capture format. Valid after Start.
func (d *DeviceSource) Format() Format { return d.format }

// Start opens the device and begins delivering samples to onSamples from
// the PortAudio callback. Returns ErrSourceUnavailable when no device
// matches or the device cannot be opened.
func (d *DeviceSource) Start(onSamples func([]float32)) error {
	if d.started {
		return fmt.Errorf("source %s already started", d.name)
	}

	if err := acquirePortAudio(); err != nil {
		return err
	}

	dev, err := d.findDevice()
	if err != nil {
		releasePortAudio()
		return err
	}

	channels := dev.MaxInputChannels
	if channels > 2 {
		channels = 2
	}
	d.format = Format{
		SampleRate: int(dev.DefaultSampleRate),
		Channels:   channels,
	}

	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = channels
	params.SampleRate = dev.DefaultSampleRate
	params.FramesPerBuffer = framesPerBuffer

	stream, err := portaudio.OpenStream(params, func(in []float32) {
		onSamples(in)
	})
	if err != nil {
		releasePortAudio()
		return fmt.Errorf("%w: failed to open %s: %v", ErrSourceUnavailable, dev.Name, err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		releasePortAudio()
		return fmt.Errorf("%w: failed to start %s: %v", ErrSourceUnavailable, dev.Name, err)
	}

	d.stream = stream
	d.started = true
	return nil
}

// Stop halts capture and releases the device
func (d *DeviceSource) Stop() error {
	if !d.started {
		return nil
	}
	d.started = false

	err := d.stream.Stop()
	d.stream.Close()
	d.stream = nil
	releasePortAudio()

	if err != nil {
		return fmt.Errorf("failed to stop %s: %w", d.name, err)
	}
	return nil
}

// findDevice resolves the configured match against the device list
func (d *DeviceSource) findDevice() (*portaudio.DeviceInfo, error) {
	if d.match == "" {
		dev, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("%w: no default input device: %v", ErrSourceUnavailable, err)
		}
		return dev, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate audio devices: %w", err)
	}

	for _, dev := range devices {
		if dev.MaxInputChannels < 1 {
			continue
		}
		if strings.Contains(strings.ToLower(dev.Name), strings.ToLower(d.match)) {
			return dev, nil
		}
	}

	return nil, fmt.Errorf("%w: no input device matching %q", ErrSourceUnavailable, d.match)
}
