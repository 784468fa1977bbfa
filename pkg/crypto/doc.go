/*
Package crypto authenticates every message that crosses the wire using
a single shared group secret, rather than per-node certificates: the
mesh's trust model is "possession of the secret", not a CA.

Two message shapes are signed:

  - Heartbeats: HMAC-SHA256 over the heartbeat body re-encoded as JSON
    with its keys sorted lexicographically (CanonicalJSON), so sender
    and receiver always hash byte-identical input regardless of map
    iteration order.
  - Job/kill/list auth tokens: HMAC-SHA256 over the ASCII string
    "{id}:{timestamp}", where id is a job_id or the literal "list".

Every comparison uses hmac.Equal, which runs in constant time with
respect to the secret, preventing a timing side-channel from leaking
it one byte at a time.
*/
package crypto
