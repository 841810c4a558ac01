package domain

// AccountResult is returned by createAccount, authenticate and getCurrentUser.
// On success Err is nil; on failure User and Session are nil.
type AccountResult struct {
	User    *Account `json:"user"`
	Session *Session `json:"session,omitempty"`
	Err     *Error   `json:"-"`
}

// OK reports whether the operation succeeded.
func (r AccountResult) OK() bool {
	return r.Err == nil
}

// ActionResult is returned by operations that produce no payload.
type ActionResult struct {
	Success bool   `json:"success"`
	Err     *Error `json:"-"`
}

// AccountFailure builds a failed AccountResult from err.
func AccountFailure(err error) AccountResult {
	return AccountResult{Err: AsError(err)}
}

// ActionFailure builds a failed ActionResult from err.
func ActionFailure(err error) ActionResult {
	return ActionResult{Err: AsError(err)}
}

// ActionSucceeded is the successful ActionResult.
func ActionSucceeded() ActionResult {
	return ActionResult{Success: true}
}
