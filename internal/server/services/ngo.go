package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrijs2005/greenmission/internal/common"
	"github.com/dmitrijs2005/greenmission/internal/server/models"
)

const (
	minNGONameLength  = 2
	minPasswordLength = 8
	// bcrypt ignores input past 72 bytes.
	maxPasswordBytes = 72
)

var emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)

var (
	dummyHashOnce sync.Once
	dummyHash     []byte
)

// RegisterNGO creates an NGO account with a password login and signs it in.
func (s *ProfileService) RegisterNGO(ctx context.Context, name, email, password string) (*LoginResult, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))

	if n := utf8.RuneCountInString(name); n < minNGONameLength || n > maxNameLength {
		return nil, fmt.Errorf("%w: name must be %d-%d characters", common.ErrorValidation, minNGONameLength, maxNameLength)
	}
	if !emailPattern.MatchString(email) {
		return nil, fmt.Errorf("%w: email is invalid", common.ErrorValidation)
	}
	if len(password) < minPasswordLength || len(password) > maxPasswordBytes {
		return nil, fmt.Errorf("%w: password must be %d-%d characters", common.ErrorValidation, minPasswordLength, maxPasswordBytes)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		s.log.Error(ctx, "hash password", "error", err)
		return nil, common.ErrorInternal
	}

	u := &models.User{UID: "ngo:" + uuid.NewString(), Name: name, Email: email, Role: models.RoleNGO}
	user, err := s.repomanager.Users(s.db).CreateNGO(ctx, u, string(hash))
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, fmt.Errorf("%w: email is already registered", common.ErrorAlreadyExists)
		}
		s.log.Error(ctx, "create ngo", "error", err)
		return nil, common.ErrorInternal
	}
	s.log.Info(ctx, "ngo registered", "user_id", user.ID)
	return s.issue(ctx, user)
}

// LoginNGO checks an NGO's email and password and issues a bearer
// credential. An unknown email and a wrong password are indistinguishable.
func (s *ProfileService) LoginNGO(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", common.ErrorValidation)
	}

	user, hash, err := s.repomanager.Users(s.db).GetNGOByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash(), []byte(password))
			return nil, common.ErrorUnauthorized
		}
		s.log.Error(ctx, "load ngo credentials", "error", err)
		return nil, common.ErrorInternal
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, common.ErrorUnauthorized
	}
	return s.issue(ctx, user)
}

func (s *ProfileService) dummyHash() []byte {
	dummyHashOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("greenmission-dummy"), s.bcryptCost)
	})
	return dummyHash
}
