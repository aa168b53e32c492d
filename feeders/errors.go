package feeders

import "errors"

var (
	// ErrParse marks malformed file content.
	ErrParse = errors.New("malformed document")

	// ErrUnsupportedFormat is returned by ForFile for unknown extensions.
	ErrUnsupportedFormat = errors.New("unsupported config file format")

	// ErrEnvInvalidStructure indicates that the target is not a pointer to a struct.
	ErrEnvInvalidStructure = errors.New("env: invalid structure")

	// ErrEnvEmptyPrefixAndSuffix indicates that both prefix and suffix are empty.
	ErrEnvEmptyPrefixAndSuffix = errors.New("env: prefix or suffix cannot be empty")

	// ErrEnvFieldNotSettable indicates an unexported or otherwise unsettable field.
	ErrEnvFieldNotSettable = errors.New("env: field cannot be set")
)
