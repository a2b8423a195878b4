package core

// Logger is any service that can log messages.
// args may contain errors, maps of extra data or an Actor (the person responsible for the action).
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// Actor identifies the staff member behind a logged action.
type Actor struct {
	ID        string
	Name      string
	Partition string
}
