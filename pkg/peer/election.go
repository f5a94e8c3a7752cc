// Package peer is the client-side counterpart of the venue signaling server:
// for every co-occupant it opens exactly one peer media session and drives
// the negotiation over the server's signal relay.
package peer

// Initiator reports whether the local side sends the first offer to remote.
// The side with the lexicographically smaller connection id initiates; the
// other side waits for the offer. Both sides compute this independently from
// the same two ids, so exactly one initiator exists per pair without any
// extra round-trip. This comparison is part of the wire contract and must
// not change while older clients are live.
func Initiator(localID, remoteID string) bool {
	return localID < remoteID
}
