/*
Package history implements the durable job log: one JSON record per
line in job_history.jsonl, appended on job start and patched in place
(by full-file rewrite) when the job completes.

AppendStart is a pure append: cheap, and safe to call from either side
of the wire the instant a job begins. PatchCompletion rewrites the whole
file, replacing the open entry matching (job_id, role) with its
completed form and truncating to the newest MaxHistoryEntries records;
an O(N) rewrite is fine at a four-digit entry cap. Both operations
serialize through the same mutex, so a reader never observes a torn
line; Query tolerates malformed lines anyway by skipping them.
*/
package history
