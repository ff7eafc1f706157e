// Package transport defines the byte-level transports the harness measures.
//
// Two shapes exist:
// - StreamTransport: dials/listens reliable ordered byte streams (TCP, QUIC, mem, winpipe)
// - PacketConn: unreliable datagrams carrying one wire fragment each (UDP)
//
// Transports carry raw bytes. Framing lives in pkg/wire so the measured
// bytes are exactly what the emitter wrote.
package transport
