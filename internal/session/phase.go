package session

// Phase is the state of the session subsystem.
// Anonymous and Authenticated are stable, the other two are transient.
type Phase string

const (
	PhaseAnonymous      Phase = "ANONYMOUS"
	PhaseAuthenticating Phase = "AUTHENTICATING"
	PhaseAuthenticated  Phase = "AUTHENTICATED"
	PhaseLoggingOut     Phase = "LOGGING_OUT"
)
