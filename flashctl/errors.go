package flashctl

import "errors"

var (
	// ErrNoMemory is returned when RAM for a relocated routine or a holding
	// buffer cannot be reserved. Nothing destructive has happened when it is
	// returned.
	ErrNoMemory = errors.New("flashctl: not enough RAM")

	// ErrBusyTimeout is returned when the controller stays busy for longer
	// than the poll limit. The controller has been relocked, but the device
	// should be considered faulty.
	ErrBusyTimeout = errors.New("flashctl: controller stayed busy")

	// ErrUnlockInvariant is raised when the controller does not read back as
	// locked after an operation. It is never returned; the driver panics.
	ErrUnlockInvariant = errors.New("flashctl: controller left unlocked")

	// ErrAccessViolation is returned when the controller flagged ACCVIFG
	// during an operation.
	ErrAccessViolation = errors.New("flashctl: flash access violation")

	// ErrOutOfRange is returned for addresses outside the flash array or not
	// aligned to the unit an operation works on.
	ErrOutOfRange = errors.New("flashctl: address out of range")
)
