package service

import (
	"strings"

	"github.com/vibast-solutions/ms-go-accounts/app/entity"
)

// userMutation lists the fields a write changes. Nil fields are left alone;
// in particular the password is hashed only when Password is set.
type userMutation struct {
	FullName *string
	Email    *string
	Password *string
}

func (s *userAuthService) applyMutation(user *entity.User, m userMutation) error {
	if m.FullName != nil {
		user.FullName = *m.FullName
	}
	if m.Email != nil {
		user.Email = *m.Email
	}
	if m.Password != nil {
		hash, err := s.hasher.Hash(*m.Password)
		if err != nil {
			return err
		}
		user.PasswordHash = hash
	}
	return nil
}

func normalizeFullName(name string) string {
	return strings.TrimSpace(name)
}
