package cli

import "github.com/dtroode/gophkeeper-vault/internal/model"

// Process exit codes.
const (
	ExitOK             = 0
	ExitFailure        = 1
	ExitInvalidInput   = 2
	ExitAuthentication = 3
	ExitIO             = 4
	ExitSerialization  = 5
	ExitNotFound       = 6
	ExitHashFailure    = 7
)

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	switch model.KindOf(err) {
	case "":
		return ExitOK
	case model.KindInvalidSalt, model.KindInvalidKeyLength:
		return ExitInvalidInput
	case model.KindAuthenticationFailure:
		return ExitAuthentication
	case model.KindIO:
		return ExitIO
	case model.KindSerialization:
		return ExitSerialization
	case model.KindNotFound:
		return ExitNotFound
	case model.KindHashFailure:
		return ExitHashFailure
	default:
		return ExitFailure
	}
}
