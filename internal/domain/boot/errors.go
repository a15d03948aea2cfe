package boot

import (
	"errors"
	"fmt"
)

// Category classifies a pipeline failure. Each category maps to a stable,
// distinct CLI exit code so operators and supervisors can react per class.
type Category string

const (
	// CategoryResolution covers failures to determine the active root slot.
	CategoryResolution Category = "resolution"
	// CategoryHardwareProbe covers failures to resolve the device identity.
	CategoryHardwareProbe Category = "hardware-probe"
	// CategoryNetwork covers transient transfer failures. Retryable.
	CategoryNetwork Category = "network"
	// CategoryValidation covers checksum mismatches on fetched images.
	CategoryValidation Category = "validation"
	// CategorySlotConflict covers attempts to deploy into the active slot.
	CategorySlotConflict Category = "slot-conflict"
	// CategoryMount covers scratch mount failures during deployment.
	CategoryMount Category = "mount"
	// CategoryReceive covers failed snapshot receives into the inactive slot.
	CategoryReceive Category = "receive"
	// CategorySigning covers signing failures and unsigned-artifact refusals.
	CategorySigning Category = "signing"
	// CategoryLoader covers loader entry and default-pointer write failures.
	CategoryLoader Category = "loader"
	// CategoryLease covers failures to acquire the exclusive deployment lease.
	CategoryLease Category = "lease"
)

// exitCodes maps failure categories to CLI exit codes. Zero is success and
// one is reserved for uncategorized errors.
var exitCodes = map[Category]int{
	CategoryResolution:    2,
	CategoryHardwareProbe: 3,
	CategoryNetwork:       4,
	CategoryValidation:    5,
	CategorySlotConflict:  6,
	CategoryMount:         7,
	CategoryReceive:       8,
	CategorySigning:       9,
	CategoryLoader:        10,
	CategoryLease:         11,
}

// Error is a categorized pipeline failure. Stage names the operation that
// failed so every report points at the failing step.
type Error struct {
	// Stage is the pipeline stage that failed (fetch, deploy, publish, ...).
	Stage string
	// Category is the failure class.
	Category Category
	// Err is the underlying cause.
	Err error
}

// E wraps err as a categorized failure of the given stage.
func E(stage string, category Category, err error) error {
	return &Error{Stage: stage, Category: category, Err: err}
}

// Ef wraps a formatted message as a categorized failure of the given stage.
func Ef(stage string, category Category, format string, args ...any) error {
	return &Error{Stage: stage, Category: category, Err: fmt.Errorf(format, args...)}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Category, e.Err)
}

// Unwrap exposes the underlying cause to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// CategoryOf returns the category of err, or the empty category for
// uncategorized errors.
func CategoryOf(err error) Category {
	var pipelineErr *Error
	if errors.As(err, &pipelineErr) {
		return pipelineErr.Category
	}

	return ""
}

// ExitCodeOf maps err to the CLI exit code of its category.
// Uncategorized errors map to 1.
func ExitCodeOf(err error) int {
	if err == nil {
		return 0
	}

	if code, ok := exitCodes[CategoryOf(err)]; ok {
		return code
	}

	return 1
}
