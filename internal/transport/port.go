package transport

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// ErrPortClosed is returned by operations on a closed link
var ErrPortClosed = errors.New("transport: port closed")

// Port is a bidirectional byte link to one instrument.
// Read may return (0, nil) when its timeout elapses without data.
// Write returns once the bytes have been handed to the device.
type Port interface {
	io.Reader
	io.Writer
	io.Closer
}

// SerialConfig describes how to open a serial link
type SerialConfig struct {
	Name        string
	BaudRate    int
	ReadTimeout time.Duration
}

// PortInfo describes a serial port found on the host
type PortInfo struct {
	Name         string `json:"name"`
	IsUSB        bool   `json:"is_usb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Product      string `json:"product,omitempty"`
}

type serialPort struct {
	port serial.Port
}

// OpenSerial opens a serial port at the configured baud rate, 8N1, no flow control
func OpenSerial(cfg SerialConfig) (Port, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	p, err := serial.Open(cfg.Name, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Name, err)
	}

	if cfg.ReadTimeout > 0 {
		if err := p.SetReadTimeout(cfg.ReadTimeout); err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to set read timeout on %s: %w", cfg.Name, err)
		}
	}

	return &serialPort{port: p}, nil
}

func (s *serialPort) Read(buf []byte) (int, error) {
	return s.port.Read(buf)
}

// Write sends buf and waits until the driver has transmitted it
func (s *serialPort) Write(buf []byte) (int, error) {
	n, err := s.port.Write(buf)
	if err != nil {
		return n, err
	}
	if n != len(buf) {
		return n, io.ErrShortWrite
	}
	if err := s.port.Drain(); err != nil {
		return n, fmt.Errorf("failed to drain output: %w", err)
	}
	return n, nil
}

func (s *serialPort) Close() error {
	return s.port.Close()
}

// ListPorts returns the serial ports present on the host, sorted by name
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		// Fall back to plain names where USB enumeration is unsupported
		names, nameErr := serial.GetPortsList()
		if nameErr != nil {
			return nil, fmt.Errorf("failed to list serial ports: %w", err)
		}
		ports := make([]PortInfo, 0, len(names))
		for _, name := range names {
			ports = append(ports, PortInfo{Name: name})
		}
		sortPorts(ports)
		return ports, nil
	}

	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}
	sortPorts(ports)
	return ports, nil
}

func sortPorts(ports []PortInfo) {
	sort.Slice(ports, func(i, j int) bool { return ports[i].Name < ports[j].Name })
}
