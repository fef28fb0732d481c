// Package transport provides the byte links to the instrument: a serial port
// opened with go.bug.st/serial and a simulated instrument for running without hardware.
package transport
