/*
Package selector picks the best executor peer for a job from a live
peer snapshot and the caller's constraints.

A specific peer name always wins when given. Otherwise candidates are
filtered to idle peers that satisfy any GPU requirement, then scored by
free RAM weighted by spare CPU headroom, with a GPU bonus; the argmax
wins. Selection is a pure function over its inputs, holding no state
and talking to no network, so it is trivially testable and reusable by
both the submission client and any future auto-scheduling caller.
*/
package selector
