package cmn

// Exit codes (spec §6): 0 is normal; the rest are distinct, stable
// identifiers for startup failure classes.
const (
	ExitOK = 0

	ExitBadConfig  = 10 // missing or invalid configuration
	ExitBindFailed = 11 // failed to bind the listening socket
	ExitBadCrypto  = 12 // crypto misconfiguration (e.g. malformed pre-shared key)
	ExitFSError    = 13 // unrecoverable filesystem error
)
