package audio

import "github.com/gordonklaus/portaudio"

// Device describes one available input or output device.
type Device struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func listDevices(match func(*portaudio.DeviceInfo) bool) ([]Device, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	out := make([]Device, 0, len(infos))
	for i, d := range infos {
		if match(d) {
			out = append(out, Device{ID: i, Name: d.Name})
		}
	}
	return out, nil
}

// ListInputDevices returns every device with at least one input channel.
func ListInputDevices() ([]Device, error) {
	return listDevices(func(d *portaudio.DeviceInfo) bool { return d.MaxInputChannels > 0 })
}

// ListOutputDevices returns every device with at least one output channel.
func ListOutputDevices() ([]Device, error) {
	return listDevices(func(d *portaudio.DeviceInfo) bool { return d.MaxOutputChannels > 0 })
}

func resolveDevice(devices []*portaudio.DeviceInfo, id int, fallback func() (*portaudio.DeviceInfo, error)) (*portaudio.DeviceInfo, error) {
	if id < 0 || id >= len(devices) {
		return fallback()
	}
	return devices[id], nil
}
