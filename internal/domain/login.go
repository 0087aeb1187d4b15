package domain

import "fmt"

// LoginErrorCode is the machine-readable reason carried to the frontend error route
type LoginErrorCode string

const (
	ErrCodeProviderDenied        LoginErrorCode = "ProviderDenied"
	ErrCodeSecurityCheckFailed   LoginErrorCode = "SecurityCheckFailed"
	ErrCodeProfileUnavailable    LoginErrorCode = "ProfileUnavailable"
	ErrCodeEmailRequired         LoginErrorCode = "EmailRequired"
	ErrCodeAccountError          LoginErrorCode = "AccountError"
	ErrCodeServiceUnavailable    LoginErrorCode = "ServiceUnavailable"
	ErrCodeInvalidOrExpiredToken LoginErrorCode = "InvalidOrExpiredToken"
)

var defaultLoginMessages = map[LoginErrorCode]string{
	ErrCodeProviderDenied:        "LinkedIn sign-in was cancelled or refused.",
	ErrCodeSecurityCheckFailed:   "Your sign-in session expired or could not be verified. Please start again.",
	ErrCodeProfileUnavailable:    "We could not load your LinkedIn profile. Please try again shortly.",
	ErrCodeEmailRequired:         "Your LinkedIn account must have an email address to sign in.",
	ErrCodeAccountError:          "We could not set up your account. Please contact support.",
	ErrCodeServiceUnavailable:    "The service is temporarily unavailable. Please try again later.",
	ErrCodeInvalidOrExpiredToken: "Your session has expired. Please sign in again.",
}

// DefaultMessage is the human-readable text shown when no specific reason is known
func (c LoginErrorCode) DefaultMessage() string {
	if msg, ok := defaultLoginMessages[c]; ok {
		return msg
	}
	return "Sign-in failed."
}

// LoginError terminates a login attempt
type LoginError struct {
	Code    LoginErrorCode
	Message string
	Err     error
}

// NewLoginError builds a LoginError, using the default message when message is empty
func NewLoginError(code LoginErrorCode, message string, err error) *LoginError {
	if message == "" {
		message = code.DefaultMessage()
	}
	return &LoginError{Code: code, Message: message, Err: err}
}

func (e *LoginError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("login %s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("login %s: %s", e.Code, e.Message)
}

func (e *LoginError) Unwrap() error {
	return e.Err
}
