package auth

import "github.com/tendant/account-provisioner/pkg/auth/authtest"

type testStack struct {
	store     *authtest.Store
	passwords *PasswordService
	sessions  *SessionService
	resets    *ResetService
	mailer    *authtest.Mailer
}

func newTestStack() *testStack {
	m := authtest.NewStore()
	passwords := NewPasswordService(m, m.Credentials(), NewPasswordPolicy(6), false)
	sessions := NewSessionService(SessionConfig{JWTSecret: []byte("test-secret"), Issuer: "test"}, m.Sessions(), m)
	mailer := &authtest.Mailer{}
	resets := NewResetService(ResetConfig{}, m.ResetTokens(), passwords, sessions, mailer)
	return &testStack{
		store:     m,
		passwords: passwords,
		sessions:  sessions,
		resets:    resets,
		mailer:    mailer,
	}
}
