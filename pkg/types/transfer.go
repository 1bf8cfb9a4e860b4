// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// TransferTask is one unit of work for the transfer engine.
type TransferTask struct {
	// RemoteURL is the absolute URL of the file.
	RemoteURL string `json:"remote_url" yaml:"remote_url"`

	// LocalPath is where the file is written (appended to on resume).
	LocalPath string `json:"local_path" yaml:"local_path"`

	// DisplayName is the identity key shown in progress output.
	DisplayName string `json:"display_name" yaml:"display_name"`

	// Index is the 1-based position of the task in its batch.
	Index int `json:"index" yaml:"index"`

	// Total is the batch size.
	Total int `json:"total" yaml:"total"`
}

// OutcomeKind tags a TransferOutcome.
type OutcomeKind string

const (
	OutcomeCompleted      OutcomeKind = "completed"
	OutcomeAlreadyPresent OutcomeKind = "already_present"
	OutcomeFailed         OutcomeKind = "failed"
)

// String returns the string representation of OutcomeKind.
func (k OutcomeKind) String() string {
	return string(k)
}

// TransferOutcome is the result of transferring one task. It is produced
// once and never mutated.
type TransferOutcome struct {
	Task TransferTask `json:"task" yaml:"task"`

	Kind OutcomeKind `json:"kind" yaml:"kind"`

	// Reason explains a failed outcome.
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`

	// Bytes is the number of bytes written by this run.
	Bytes int64 `json:"bytes" yaml:"bytes"`

	// Attempts is how many attempts were made.
	Attempts int `json:"attempts" yaml:"attempts"`

	// Err is the KindTransferFailed error behind a failed outcome.
	Err error `json:"-" yaml:"-"`
}

// Completed returns a completed outcome.
func Completed(task TransferTask, n int64) TransferOutcome {
	return TransferOutcome{Task: task, Kind: OutcomeCompleted, Bytes: n}
}

// AlreadyPresent returns an outcome for a file that needed no transfer.
func AlreadyPresent(task TransferTask) TransferOutcome {
	return TransferOutcome{Task: task, Kind: OutcomeAlreadyPresent}
}

// Failed returns a failed outcome carrying reason.
func Failed(task TransferTask, reason string) TransferOutcome {
	return TransferOutcome{Task: task, Kind: OutcomeFailed, Reason: reason}
}

// OK reports whether the file is present locally after the transfer.
func (o TransferOutcome) OK() bool {
	return o.Kind == OutcomeCompleted || o.Kind == OutcomeAlreadyPresent
}
