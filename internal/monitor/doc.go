// Package monitor polls MediaConvert for jobs whose webhook signals may be
// lost.
//
// Every processing asset with a job id has one Watch. A Scheduler owns a
// single timer per asset; each tick queries GetJob, turns the answer into the
// same normalized event the webhook produces and hands it to the reconciler,
// then re-arms itself at the cadence the job status calls for. NotFound and
// budget exhaustion fall back to the storage probe. The Monitor listens for
// committed transitions and disarms as soon as an asset turns terminal,
// whichever source caused it.
package monitor
