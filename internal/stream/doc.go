// Package stream runs acquisition sessions. A Session owns one instrument link
// and turns its byte stream into decoded frame events: a read loop copies chunks
// into a bounded queue, a single decode loop feeds them through the framing
// engine, and a Dispatcher hands the resulting events to a consumer on its own
// goroutine. The Manager keeps the sessions keyed by port name.
package stream
