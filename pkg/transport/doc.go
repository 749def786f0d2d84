// Package transport defines the canonical transport interfaces for the mesh
// node and a session manager that enforces a single canonical session per
// peer. Concrete links (mem, tcp, quic) live in subpackages.
//
// Key concepts:
//   - Transport: dials/listens for Sessions of a specific Kind
//   - Session: a bidirectional connection to a peer exposing one framed stream
//   - Stream: a Send/Recv channel of length-prefixed frames
//   - Manager: deduplicates concurrent inbound/outbound links and selects a
//     canonical session per peer based on kind rank and link quality
//
// The mesh core above this package never chooses a medium; it only ever
// addresses "some connection to peer X".
package transport
