package exitcodes

// Exit codes for bkp-cleaner
// These codes form the operational contract with cron jobs and operators
const (
	Success         = 0 // Successful execution, dry-run, nothing to do or declined confirmation
	Usage           = 1 // Bad or missing flags
	InvalidPath     = 2 // --path does not exist or is not a directory
	SafetyViolation = 3 // Safety guard blocked the path
	RuntimeError    = 4 // Scan failure or unexpected deletion failure
	InvalidConfig   = 5 // Configuration file invalid, or log/history/metrics setup failed
)
