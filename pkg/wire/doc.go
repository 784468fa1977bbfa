/*
Package wire implements the worker protocol's framing discipline: a
one-byte message kind followed by a 4-byte big-endian length and that
many bytes of body. It is shared by pkg/server (the accepting side) and
pkg/client (the connecting side) so both speak byte-identical framing
without either importing the other.

MaxFrameBytes caps a frame at 100MiB: any length prefix above that
aborts the connection rather than attempting to buffer an unbounded
read.
*/
package wire
