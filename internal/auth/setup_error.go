package auth

import "errors"

var (
	ErrOrgCreation  = errors.New("organization creation failed")
	ErrUserCreation = errors.New("user creation failed")
)

// SetupError is the closed set of codes the provisioning callback appends to
// /login?error=. The login page renders them through Message, so both sides
// read from this one type.
type SetupError string

const (
	SetupFailed        SetupError = "setup_failed"
	OrgCreationFailed  SetupError = "org_creation_failed"
	UserCreationFailed SetupError = "user_creation_failed"
)

func (e SetupError) Message() string {
	switch e {
	case SetupFailed:
		return "Account setup failed. Please try again or contact support."
	case OrgCreationFailed:
		return "Failed to create organization. Please try again."
	case UserCreationFailed:
		return "Failed to create user record. Please try again."
	default:
		return "An error occurred during login."
	}
}

// ClassifySetupError maps a provisioning failure onto its code. Anything not
// explicitly recognised is SetupFailed.
func ClassifySetupError(err error) SetupError {
	switch {
	case errors.Is(err, ErrOrgCreation):
		return OrgCreationFailed
	case errors.Is(err, ErrUserCreation):
		return UserCreationFailed
	default:
		return SetupFailed
	}
}
