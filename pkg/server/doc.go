/*
Package server implements the worker side of the wire protocol: a TCP
accept loop with a 1-second accept deadline so it stays cancellable, one
goroutine per connection, and dispatch on the first byte of a connection
('J' submit, 'K' kill, 'L' list).

The server never touches a container handle directly. It reaches the
running-jobs table only through the narrow Executor interface's List and
Kill methods, the same discipline pkg/sandbox.Executor's doc comment
describes from the other side.
*/
package server
