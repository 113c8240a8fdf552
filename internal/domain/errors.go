package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the vault core. Single-item operations surface these
// to the caller; batch operations catch them at the item boundary.
var (
	// ErrPhotoNotFound: the id has no metadata record or content blob.
	// Recoverable; surfaced to the caller.
	ErrPhotoNotFound = fmt.Errorf("photo not found")

	// ErrDecryptionFailed: authentication tag mismatch, corruption, wrong
	// key, or a malformed buffer. Fatal for that blob; never retried.
	ErrDecryptionFailed = fmt.Errorf("decryption failed")

	// ErrEncryptionFailed: key-provider or cipher failure.
	ErrEncryptionFailed = fmt.Errorf("encryption failed")

	// ErrExportFailed: unsupported or failed re-encoding.
	ErrExportFailed = fmt.Errorf("export failed")

	// ErrFileSystem: I/O failure. Directory-creation failure on first use
	// is fatal to the whole store.
	ErrFileSystem = fmt.Errorf("file system error")

	// ErrConfigLoad: configuration could not be read or validated.
	ErrConfigLoad = fmt.Errorf("failed to load configuration")

	// ErrInvalidInput: a caller-supplied argument is out of range or empty
	// where a value is required.
	ErrInvalidInput = fmt.Errorf("invalid input")
)

// VaultError wraps a sentinel error with operation context.
type VaultError struct {
	Op     string // operation name (e.g., "Repository.LoadPhoto")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *VaultError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *VaultError) Unwrap() error { return e.Err }

// NewVaultError creates a new VaultError.
func NewVaultError(op string, err error, detail string) *VaultError {
	return &VaultError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use:
// return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsNotFound reports whether err is, or wraps, ErrPhotoNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPhotoNotFound)
}
