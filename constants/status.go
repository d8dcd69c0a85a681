package constants

// JobStatus is the canonical status for rows in extract_job.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusRunning  JobStatus = "RUNNING"   // in progress
	JobStatusTextOK   JobStatus = "TEXT_OK"   // text recognition completed
	JobStatusFieldsOK JobStatus = "FIELDS_OK" // structured fields completed
	JobStatusFailed   JobStatus = "FAILED"    // terminal failure
)

// JobKind distinguishes the two extraction operations recorded in the ledger.
type JobKind string

const (
	JobKindText   JobKind = "TEXT"
	JobKindFields JobKind = "FIELDS"
)
