// Package transport defines the windowing transport: message-oriented
// sessions able to carry one frame-channel handle alongside a payload.
//
// Implementations:
//   - mem: in-process channel pairs; handles move by value
//   - unixsock: SOCK_SEQPACKET sockets passing descriptors as SCM_RIGHTS (linux)
package transport
