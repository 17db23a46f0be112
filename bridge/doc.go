// Package bridge forwards newline delimited JSON frames from a serial device to a
// WebSocket server and drains the messages the server sends back.
//
// A Forwarder owns one SerialPort and one Link. Each loop iteration takes at most one
// buffered serial line, waits briefly for one inbound message, then idles. A closed
// link is reconnected with a fixed backoff, indefinitely.
package bridge
