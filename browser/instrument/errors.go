package instrument

// ActionError carries a rewritten failure message while keeping the original
// error reachable through errors.Is and errors.As.
type ActionError struct {
	Action  string
	Message string
	Err     error
}

func (e *ActionError) Error() string { return e.Message }

func (e *ActionError) Unwrap() error { return e.Err }
