package exitcodes

// Exit codes for logsweep
// These codes form the operational contract with CI and pre-commit hooks
const (
	Success       = 0 // Every file processed without failure
	Failure       = 1 // At least one file failed, or the run was interrupted
	InvalidConfig = 2 // Configuration file or flags invalid
	RuntimeError  = 4 // Unexpected error before or around processing
)
