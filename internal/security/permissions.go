package security

import (
	"fmt"
	"os"
)

const (
	// PermConfigFile is for configuration files containing secrets (rw-r-----).
	PermConfigFile os.FileMode = 0640

	// PermLogFile is for log files that may contain deployment information (rw-r-----).
	PermLogFile os.FileMode = 0640

	// PermDBFile is for the deploy history database (rw-r-----).
	PermDBFile os.FileMode = 0640

	// PermDirectory is for state and log directories (rwxr-x---).
	PermDirectory os.FileMode = 0750
)

// OpenAppendFile opens path for appending, creating it with perm.
// Permissions are forced so a permissive umask cannot widen them.
func OpenAppendFile(path string, perm os.FileMode) (*os.File, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, perm)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	if err := os.Chmod(path, perm); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to set file permissions: %w", err)
	}

	return file, nil
}

// IsWorldReadable checks if a file is readable by others.
func IsWorldReadable(perm os.FileMode) bool {
	return perm&0004 != 0
}

// IsWorldWritable checks if a file is writable by others.
func IsWorldWritable(perm os.FileMode) bool {
	return perm&0002 != 0
}

// ValidateSecurePermissions validates that a file holding secrets is
// neither world-readable nor world-writable.
func ValidateSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	perm := info.Mode().Perm()

	if IsWorldReadable(perm) {
		return fmt.Errorf("file %s is world-readable (%04o), which is insecure for sensitive data", path, perm)
	}

	if IsWorldWritable(perm) {
		return fmt.Errorf("file %s is world-writable (%04o), which is a serious security risk", path, perm)
	}

	return nil
}
