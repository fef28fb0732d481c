// Package protocol implements the instrument's fixed 64-byte frame format.
// It covers marker validation, decoding of the ten pressure/volume sample records
// carried by each frame, frame encoding for simulation, and the ASCII command set.
package protocol
