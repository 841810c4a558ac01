package domain

import "time"

// ProfileRoleSelfService is the role every profile created through sign-up gets.
const ProfileRoleSelfService = 2

// Credentials are forwarded to the identity provider and never stored here.
type Credentials struct {
	Email    string
	Password string
}

// AccountMetadata is attached to the account at sign-up.
type AccountMetadata struct {
	DisplayName string
}

// Account is the identity provider's record of a user.
type Account struct {
	ID             string         `json:"id"`
	Email          string         `json:"email"`
	DisplayName    string         `json:"display_name,omitempty"`
	EmailConfirmed bool           `json:"email_confirmed"`
	CreatedAt      time.Time      `json:"created_at"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Profile is the application-side record mirroring an account.
// ID is always the provider-issued account ID.
type Profile struct {
	ID        string    `json:"id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	Role      int       `json:"role"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSignUpProfile builds the profile written after a successful sign-up.
func NewSignUpProfile(accountID, fullName, email string, now time.Time) Profile {
	return Profile{
		ID:        accountID,
		FullName:  fullName,
		Email:     email,
		Role:      ProfileRoleSelfService,
		UpdatedAt: now.UTC(),
	}
}

// PendingProfile is a profile write that failed and awaits reconciliation.
type PendingProfile struct {
	Profile       Profile
	Attempts      int
	NextAttemptAt time.Time
	LastError     string
	CreatedAt     time.Time
}

// ID returns the account ID the pending write belongs to.
func (p *PendingProfile) ID() string {
	return p.Profile.ID
}
