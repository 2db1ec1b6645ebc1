// Package radar turns the radar deck's serial byte stream into position
// measurements.
//
// Decoder is the synchronous pipeline (assemble, validate, emit) and owns the
// last-pose cache. Service drives a Decoder from a serial port in the
// background and keeps a snapshot for the status API.
package radar
