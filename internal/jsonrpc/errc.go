// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package jsonrpc

// Code is a numeric RPC error code. The values are part of the wire
// protocol and must never be renumbered.
type Code int

const (
	Success Code = 0

	// invocation errors
	ConnectionError         Code = 1
	Unavailable             Code = 2
	Unauthorized            Code = 3
	InvalidClientId         Code = 4
	ParseError              Code = 5
	InvalidRequest          Code = 6
	MethodNotFound          Code = 7
	ParamMissing            Code = 8
	ParamTypeMismatch       Code = 9
	ParamInvalid            Code = 10
	MethodUnexpected        Code = 11
	InvalidClientVersion    Code = 12
	ServerOffline           Code = 13
	InvalidSession          Code = 14
	MaxSessionsReached      Code = 15
	MaxUsersReached         Code = 16
	LaunchParametersMissing Code = 17
	LimitSessionsReached    Code = 18
	ExpiredSession          Code = 19
	InvalidSecret           Code = 20

	// execution errors
	ExecutionError Code = 100

	// transmission errors
	TransmissionError Code = 200
)

// Category is the category name of every error carrying a Code.
const Category = "jsonrpc"

const unknownErrorMessage = "unknown error type"

// Codes returns every defined code in ascending order.
func Codes() []Code {
	return []Code{
		Success,
		ConnectionError,
		Unavailable,
		Unauthorized,
		InvalidClientId,
		ParseError,
		InvalidRequest,
		MethodNotFound,
		ParamMissing,
		ParamTypeMismatch,
		ParamInvalid,
		MethodUnexpected,
		InvalidClientVersion,
		ServerOffline,
		InvalidSession,
		MaxSessionsReached,
		MaxUsersReached,
		LaunchParametersMissing,
		LimitSessionsReached,
		ExpiredSession,
		InvalidSecret,
		ExecutionError,
		TransmissionError,
	}
}

// Message returns the human readable message for c.
// Codes outside of the enumeration yield "unknown error type".
func (c Code) Message() string {
	switch c {
	case Success:
		return "Method succeeded"
	case ConnectionError:
		return "Unable to connect to service"
	case Unavailable:
		return "Service currently unavailable"
	case Unauthorized:
		return "Client unauthorized"
	case InvalidClientId:
		return "Invalid client id"
	case ParseError:
		return "Invalid json or unexpected error occurred while parsing"
	case InvalidRequest:
		return "Invalid json-rpc request"
	case MethodNotFound:
		return "Method not found"
	case ParamMissing:
		return "Parameter missing"
	case ParamTypeMismatch:
		return "Parameter type mismatch"
	case ParamInvalid:
		return "Parameter value invalid"
	case MethodUnexpected:
		return "Unexpected call to method"
	case InvalidClientVersion:
		return "Invalid client version"
	case ServerOffline:
		return "Server is offline"
	case InvalidSession:
		return "Invalid session"
	case MaxSessionsReached:
		return "The maximum amount of concurrent sessions for this license has been reached"
	case MaxUsersReached:
		return "The maximum amount of concurrent users for this license has been reached"
	case LaunchParametersMissing:
		return "Launch parameters for launcher session missing and should be resent"
	case LimitSessionsReached:
		return "The maximum amount of concurrent session allowed for the user profile has been reached"
	case ExpiredSession:
		return "The requested session has expired"
	case InvalidSecret:
		return "Invalid secret"
	case ExecutionError:
		return "Error occurred while executing method"
	case TransmissionError:
		return "Error occurred during transmission"
	}
	return unknownErrorMessage
}

func (c Code) String() string {
	return c.Message()
}

func (c Code) IsInvocationError() bool {
	return c > Success && c < ExecutionError
}

func (c Code) IsExecutionError() bool {
	return c >= ExecutionError && c < TransmissionError
}

func (c Code) IsTransmissionError() bool {
	return c >= TransmissionError
}

// Err returns a new *Error for c.
func (c Code) Err() *Error {
	return &Error{Code: c, Location: callerLocation(2)}
}
