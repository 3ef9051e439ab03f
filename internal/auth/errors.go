package auth

import (
	"errors"
	"fmt"
)

// Code is a stable, client-facing auth failure code.
type Code string

const (
	CodeInvalidEmail   Code = "auth/invalid-email"
	CodeUserNotFound   Code = "auth/user-not-found"
	CodeWrongPassword  Code = "auth/wrong-password"
	CodeEmailInUse     Code = "auth/email-already-in-use"
	CodeWeakPassword   Code = "auth/weak-password"
	CodeNetworkFailed  Code = "auth/network-request-failed"
	CodeUserDisabled   Code = "auth/user-disabled"
	CodeInvalidToken   Code = "auth/invalid-token"
	CodeSessionRevoked Code = "auth/session-revoked"
)

var messages = map[Code]string{
	CodeInvalidEmail:   "Invalid email address",
	CodeUserNotFound:   "No user found with this email",
	CodeWrongPassword:  "Incorrect password",
	CodeEmailInUse:     "This email is already registered",
	CodeWeakPassword:   "Password is too weak",
	CodeNetworkFailed:  "Network error. Check your internet connection",
	CodeUserDisabled:   "This account has been disabled",
	CodeInvalidToken:   "Your session is invalid. Please sign in again",
	CodeSessionRevoked: "You have been signed out",
}

type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(code Code, err error) *Error {
	return &Error{Code: code, Err: err}
}

// Message returns the user-facing text for code, or "" if the code is unknown.
func Message(code Code) string {
	return messages[code]
}

// CodeOf extracts the auth code carried by err, or "".
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// MessageFor maps err to a user-facing message, falling back to fallback for
// errors that carry no known code.
func MessageFor(err error, fallback string) string {
	if msg := Message(CodeOf(err)); msg != "" {
		return msg
	}
	return fallback
}

// Terminal reports whether err means the token can never resolve to a
// session. Anything else, store outages included, may succeed on retry.
func Terminal(err error) bool {
	switch CodeOf(err) {
	case CodeInvalidToken, CodeSessionRevoked, CodeUserNotFound, CodeUserDisabled:
		return true
	}
	return false
}
