package types

// UpsertFailure records one rejected record in a batch upsert.
type UpsertFailure struct {
	InvoiceID string `json:"invoice_id"`
	Reason    string `json:"reason"`
}

// UpsertReport enumerates per-record outcomes of a batch upsert so a
// caller can retry only the failures. Record failures are reported here,
// never raised as batch errors.
type UpsertReport struct {
	Succeeded []string        `json:"succeeded"`
	Failed    []UpsertFailure `json:"failed"`
}

func (r *UpsertReport) AddSuccess(id string) {
	r.Succeeded = append(r.Succeeded, id)
}

func (r *UpsertReport) AddFailure(id, reason string) {
	r.Failed = append(r.Failed, UpsertFailure{InvoiceID: id, Reason: reason})
}

// Ok reports whether every record in the batch was accepted.
func (r *UpsertReport) Ok() bool {
	return len(r.Failed) == 0
}

// SkippedDocument records one source file the ingest run could not turn
// into a canonical invoice.
type SkippedDocument struct {
	SourceFile string `json:"source_file"`
	Reason     string `json:"reason"`
}

// IngestReport summarizes one ingest run. A failed document never fails
// the run; it lands in Skipped and the rest of the batch proceeds.
type IngestReport struct {
	Processed int               `json:"processed"`
	Indexed   int               `json:"indexed"`
	Skipped   []SkippedDocument `json:"skipped,omitempty"`
	Artifact  string            `json:"artifact,omitempty"`
	Upsert    *UpsertReport     `json:"upsert,omitempty"`
}
