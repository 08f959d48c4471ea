// Package shoutcast speaks the listener side of the ICY/Shoutcast protocol.
//
// Writer interleaves StreamTitle metadata blocks into an outgoing audio stream
// at a fixed interval, Reader strips them again. SetHeaders fills in the icy-*
// response headers that describe the station, and WriteM3U/WritePLS produce the
// playlist files media players use to discover the stream.
package shoutcast
