package engine

import (
	"encoding/json"
	"fmt"
)

// RunStatus represents the overall status of an apply run.
type RunStatus string

const (
	// RunStatusRunning indicates the run is currently executing.
	RunStatusRunning RunStatus = "running"

	// RunStatusSucceeded indicates every operation succeeded.
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusFailed indicates no operation succeeded.
	RunStatusFailed RunStatus = "failed"

	// RunStatusCancelled indicates the context was cancelled mid-run.
	RunStatusCancelled RunStatus = "cancelled"

	// RunStatusPartial indicates some operations succeeded and some failed
	// or were skipped.
	RunStatusPartial RunStatus = "partial"
)

// IsTerminal returns true if the run status represents a final state.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed ||
		s == RunStatusCancelled || s == RunStatusPartial
}

// Validate checks if the run status is valid.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusRunning, RunStatusSucceeded, RunStatusFailed,
		RunStatusCancelled, RunStatusPartial:
		return nil
	default:
		return fmt.Errorf("invalid run status: %s", s)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s RunStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *RunStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = RunStatus(str)
	return s.Validate()
}

// OperationType represents the type of operation to perform on a resource.
type OperationType string

const (
	OperationCreate OperationType = "create"
	OperationUpdate OperationType = "update"
	OperationDelete OperationType = "delete"

	// OperationNoop indicates the resource already matches the configuration.
	OperationNoop OperationType = "noop"
)

// IsDestructive returns true if the operation removes a resource.
func (o OperationType) IsDestructive() bool {
	return o == OperationDelete
}

// IsMutating returns true if the operation changes remote state.
func (o OperationType) IsMutating() bool {
	return o == OperationCreate || o == OperationUpdate || o == OperationDelete
}

// Symbol returns the one-character marker used in rendered diffs.
func (o OperationType) Symbol() string {
	switch o {
	case OperationCreate:
		return "+"
	case OperationUpdate:
		return "~"
	case OperationDelete:
		return "-"
	default:
		return " "
	}
}

// Validate checks if the operation type is valid.
func (o OperationType) Validate() error {
	switch o {
	case OperationCreate, OperationUpdate, OperationDelete, OperationNoop:
		return nil
	default:
		return fmt.Errorf("invalid operation type: %s", o)
	}
}

// ResourceType names the kind of guild object an operation targets.
type ResourceType string

const (
	ResourceRole       ResourceType = "role"
	ResourceCategory   ResourceType = "category"
	ResourceChannel    ResourceType = "channel"
	ResourcePermission ResourceType = "permission"
)

// Validate checks if the resource type is valid.
func (r ResourceType) Validate() error {
	switch r {
	case ResourceRole, ResourceCategory, ResourceChannel, ResourcePermission:
		return nil
	default:
		return fmt.Errorf("invalid resource type: %s", r)
	}
}

// Ownership records whether a remote object carries the management marker.
type Ownership string

const (
	// OwnershipOwned objects were created or adopted by this tool.
	OwnershipOwned Ownership = "owned"

	// OwnershipUnmanaged objects exist in the guild without the marker.
	OwnershipUnmanaged Ownership = "unmanaged"
)
