package link

import (
	"fmt"
	"io"

	"go.bug.st/serial"

	"github.com/itohio/simsensor/pkg/config"
)

// DefaultBaudRate is used when the configuration leaves it unset. USB CDC ports ignore it.
const DefaultBaudRate = 115200

// PortInfo describes an available serial port.
type PortInfo struct {
	Name        string
	Description string
	Busy        bool // the port exists but could not be opened
}

// Ports returns a list of available serial ports.
func Ports() ([]PortInfo, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]PortInfo, 0, len(ports))
	for _, name := range ports {
		info := PortInfo{Name: name, Description: name}
		// Probe the port; keep it listed even if it cannot be opened.
		port, err := serial.Open(name, &serial.Mode{BaudRate: DefaultBaudRate})
		if err != nil {
			info.Busy = true
		} else {
			port.Close()
		}
		result = append(result, info)
	}

	return result, nil
}

// Open opens the serial port described by cfg. Pending input and output are discarded so a
// new session starts clean.
func Open(cfg config.SerialConfig) (serial.Port, error) {
	baudRate := cfg.BaudRate
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}

	port, err := serial.Open(cfg.Port, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Port, err)
	}

	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to reset input buffer on %s: %w", cfg.Port, err)
	}
	if err := port.ResetOutputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to reset output buffer on %s: %w", cfg.Port, err)
	}

	return port, nil
}

// SerialOpener returns an Opener for the serial port described by cfg.
func SerialOpener(cfg config.SerialConfig) Opener {
	return func() (io.ReadWriteCloser, error) {
		return Open(cfg)
	}
}
