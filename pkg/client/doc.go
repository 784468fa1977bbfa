/*
Package client is the submission side of the wire protocol: open a TCP
connection to a peer, send a job, and stream its
output and result back to the caller. Every exported call returns a
typed result or a boolean status; none of them leak a raw transport
error to a caller that isn't expecting one. A connection refused, a
deadline exceeded, or an early EOF all converge on a synthesized
job.JobResult carrying exit_code -1 and a descriptive error, exactly
like a job that actually ran and failed.
*/
package client
