// SPDX-FileCopyrightText: Copyright (C) 2026  Feedbactory Authors
// SPDX-License-Identifier: AGPL-3.0-only

package wire

// SessionRequestType is the leading tag byte of every request body.
type SessionRequestType byte

const (
	NoSession        SessionRequestType = 0
	InitiateSession  SessionRequestType = 1
	RegularSession   SessionRequestType = 2
	EncryptedSession SessionRequestType = 3
	ResumeSession    SessionRequestType = 4
	EndSession       SessionRequestType = 127
)

func (t SessionRequestType) String() string {
	switch t {
	case NoSession:
		return "no-session"
	case InitiateSession:
		return "initiate-session"
	case RegularSession:
		return "regular-session"
	case EncryptedSession:
		return "encrypted-session"
	case ResumeSession:
		return "resume-session"
	case EndSession:
		return "end-session"
	default:
		return "unknown"
	}
}

// AuthenticationStatus is the result of authenticating a session or a set
// of credentials.
type AuthenticationStatus byte

const (
	AuthSuccess                    AuthenticationStatus = 0
	AuthSuccessAccountNotActivated AuthenticationStatus = 1
	AuthFailed                     AuthenticationStatus = 2
	AuthFailedTooManyAttempts      AuthenticationStatus = 3
	AuthFailedCapacityReached      AuthenticationStatus = 4
)

// ParseAuthenticationStatus validates b as an AuthenticationStatus.
func ParseAuthenticationStatus(b byte) (AuthenticationStatus, error) {
	if b > byte(AuthFailedCapacityReached) {
		return 0, &InvalidValueError{Field: "authentication status", Value: b}
	}
	return AuthenticationStatus(b), nil
}

func (s AuthenticationStatus) String() string {
	switch s {
	case AuthSuccess:
		return "success"
	case AuthSuccessAccountNotActivated:
		return "success-account-not-activated"
	case AuthFailed:
		return "failed-authentication"
	case AuthFailedTooManyAttempts:
		return "failed-too-many-attempts"
	case AuthFailedCapacityReached:
		return "failed-capacity-reached"
	default:
		return "unknown"
	}
}

// SessionInitiationType selects the kind of session initiation request.
type SessionInitiationType byte

const (
	InitiateSignUp          SessionInitiationType = 0
	InitiateActivateAccount SessionInitiationType = 1
	InitiateEmailSignIn     SessionInitiationType = 2
	InitiateResetPassword   SessionInitiationType = 3
)

// BasicOperationStatus is the outcome of a simple account operation.
type BasicOperationStatus byte

const (
	OperationOK     BasicOperationStatus = 0
	OperationFailed BasicOperationStatus = 1
)

// ParseBasicOperationStatus validates b as a BasicOperationStatus.
func ParseBasicOperationStatus(b byte) (BasicOperationStatus, error) {
	if b > byte(OperationFailed) {
		return 0, &InvalidValueError{Field: "operation status", Value: b}
	}
	return BasicOperationStatus(b), nil
}

func (s BasicOperationStatus) String() string {
	if s == OperationOK {
		return "ok"
	}
	return "failed"
}

// RequestGateway routes a request body to a server side handler.
type RequestGateway byte

const (
	AccountGateway  RequestGateway = 0
	FeedbackGateway RequestGateway = 1
)

// AccountOperation selects an operation of the account gateway.
type AccountOperation byte

const (
	ResendActivationCode  AccountOperation = 0
	SendPasswordResetCode AccountOperation = 1
	UpdateEmail           AccountOperation = 2
	ResendNewEmailCode    AccountOperation = 3
	ConfirmNewEmail       AccountOperation = 4
	UpdatePasswordHash    AccountOperation = 5
	UpdateSendEmailAlerts AccountOperation = 6
)

// Gender is carried in account details.
type Gender byte

const (
	Male   Gender = 0
	Female Gender = 1
)

// ParseGender validates b as a Gender.
func ParseGender(b byte) (Gender, error) {
	if b > byte(Female) {
		return 0, &InvalidValueError{Field: "gender", Value: b}
	}
	return Gender(b), nil
}

func (g Gender) String() string {
	if g == Male {
		return "male"
	}
	return "female"
}

// MessageType classifies a server message.
type MessageType byte

const (
	NoMessage          MessageType = 0
	InformationMessage MessageType = 1
	WarningMessage     MessageType = 2
	ErrorMessage       MessageType = 3
)

// ParseMessageType validates b as a MessageType.
func ParseMessageType(b byte) (MessageType, error) {
	if b > byte(ErrorMessage) {
		return 0, &InvalidValueError{Field: "message type", Value: b}
	}
	return MessageType(b), nil
}

func (t MessageType) String() string {
	switch t {
	case NoMessage:
		return "none"
	case InformationMessage:
		return "information"
	case WarningMessage:
		return "warning"
	case ErrorMessage:
		return "error"
	default:
		return "unknown"
	}
}

// IPAddressStanding is the server's view of the client's address.
type IPAddressStanding byte

const (
	StandingOK                 IPAddressStanding = 0
	StandingTemporarilyBlocked IPAddressStanding = 1
	StandingBlacklisted        IPAddressStanding = 2
)

// ParseIPAddressStanding validates b as an IPAddressStanding.
func ParseIPAddressStanding(b byte) (IPAddressStanding, error) {
	if b > byte(StandingBlacklisted) {
		return 0, &InvalidValueError{Field: "ip address standing", Value: b}
	}
	return IPAddressStanding(b), nil
}

func (s IPAddressStanding) String() string {
	switch s {
	case StandingOK:
		return "ok"
	case StandingTemporarilyBlocked:
		return "temporarily-blocked"
	case StandingBlacklisted:
		return "blacklisted"
	default:
		return "unknown"
	}
}

// ServerStatus is the application server availability.
type ServerStatus byte

const (
	ServerAvailable    ServerStatus = 0
	ServerBusy         ServerStatus = 1
	ServerNotAvailable ServerStatus = 2
)

// ParseServerStatus validates b as a ServerStatus.
func ParseServerStatus(b byte) (ServerStatus, error) {
	if b > byte(ServerNotAvailable) {
		return 0, &InvalidValueError{Field: "server status", Value: b}
	}
	return ServerStatus(b), nil
}

func (s ServerStatus) String() string {
	switch s {
	case ServerAvailable:
		return "available"
	case ServerBusy:
		return "busy"
	default:
		return "not-available"
	}
}

// Compatibility is the server's verdict on the client version.
type Compatibility byte

const (
	UpToDate        Compatibility = 0
	UpdateAvailable Compatibility = 1
	UpdateRequired  Compatibility = 2
)

// ParseCompatibility validates b as a Compatibility.
func ParseCompatibility(b byte) (Compatibility, error) {
	if b > byte(UpdateRequired) {
		return 0, &InvalidValueError{Field: "client compatibility", Value: b}
	}
	return Compatibility(b), nil
}

func (c Compatibility) String() string {
	switch c {
	case UpToDate:
		return "up-to-date"
	case UpdateAvailable:
		return "update-available"
	default:
		return "update-required"
	}
}
