package errors

// ErrorCode identifies a failure mode. Packages declare their own codes in
// errors.go and Register a message for each.
type ErrorCode string

// Coder is implemented by any error that carries an ErrorCode.
type Coder interface {
	Code() ErrorCode
}

// Error is a coded error. Data attached with WithData is included in the
// message and can be recovered with GetData, so callers can inspect what
// was rejected without parsing strings.
type Error interface {
	error
	Coder
	// WithMessage returns a copy that reports msg instead of the
	// registered message.
	WithMessage(msg string) Error
	// WithData returns a copy carrying data.
	WithData(data any) Error
	GetData() any
	Unwrap() error
}

// Factory builds coded errors. Obtain one with New.
type Factory interface {
	New(code ErrorCode) Error
	// Wrap records err as the cause of a new coded error.
	Wrap(code ErrorCode, err error) Error
	WithMessage(code ErrorCode, msg string) Error
	WithData(code ErrorCode, data any) Error
}
