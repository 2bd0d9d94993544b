package cli

import "errors"

var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigFileRead     = errors.New("cannot read config file")
	ErrConfigInvalid      = errors.New("invalid config file")
	ErrRootEmpty          = errors.New("root cannot be empty")
	ErrUnknownCommand     = errors.New("unknown command")
	ErrMissingArgs        = errors.New("missing arguments")
	ErrTooManyArgs        = errors.New("too many arguments")
	ErrInvalidColumnSpec  = errors.New("invalid column spec (want name:TYPE)")
	ErrKeyConflict        = errors.New("--key and --start are mutually exclusive")
	ErrInvalidRecordJSON  = errors.New("record must be a JSON object")
	ErrAlreadyInitialized = errors.New("storage already initialized")
)
