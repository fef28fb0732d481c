// Package framing recovers fixed-size frames from an unbounded, arbitrarily chunked
// byte stream. It holds the bounded pending-byte buffer, the start-marker scanner
// with its resynchronization policies, and the bounded history of accepted frames.
package framing
