package bbdc

import "errors"

var (
	// ErrLoginFailed is returned when the site rejects the credentials.
	ErrLoginFailed = errors.New("login failed")
	// ErrCourseTypeNotFound is returned when the account has no active course of the requested type.
	ErrCourseTypeNotFound = errors.New("course type not found")
	// ErrUnexpectedResponse wraps non-200 statuses and undecodable bodies.
	ErrUnexpectedResponse = errors.New("unexpected response")
)
