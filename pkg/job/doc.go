/*
Package job defines Job and JobResult, the two records that cross the
wire: a signed, immutable execution request and its eventual outcome.

Job is constructed once via New and never mutated afterward; its id is
an 8-hex-char string derived from a uuid.New() truncation. Serialize
wraps a Job in the auth envelope and signs it with the group secret;
Deserialize reverses that and returns ErrAuthFailed if the HMAC doesn't
match or the timestamp falls outside the ±300s clock-skew tolerance;
wrong secret and stale timestamp are both treated as the same
caller-visible failure.

DefaultImage is a client-side convenience (not enforced by the
executor): a caller that doesn't know what image to ask for gets a CUDA
runtime image when requesting a GPU and a plain Python image otherwise.
*/
package job
