// Package services contains server-side business logic. ProfileService
// trades identity tokens for bearer credentials and serves the signed-in
// user's profile.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrijs2005/greenmission/internal/common"
	"github.com/dmitrijs2005/greenmission/internal/dbx"
	"github.com/dmitrijs2005/greenmission/internal/logging"
	"github.com/dmitrijs2005/greenmission/internal/server/auth"
	"github.com/dmitrijs2005/greenmission/internal/server/config"
	"github.com/dmitrijs2005/greenmission/internal/server/events"
	"github.com/dmitrijs2005/greenmission/internal/server/models"
	"github.com/dmitrijs2005/greenmission/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/greenmission/internal/server/repositories/revocations"
	"github.com/dmitrijs2005/greenmission/internal/server/storage"
)

const maxNameLength = 100

// walletPattern accepts any 0x-prefixed hex string up to 32 bytes. Clients
// checksum well-formed addresses but may send other hex strings unchanged.
var walletPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{1,64}$`)

type Presigner interface {
	PresignPut(ctx context.Context, key, contentType string) (string, error)
	PresignGet(ctx context.Context, key string) (string, error)
}

// LoginResult is an issued credential and the profile it belongs to.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *models.User
}

type AvatarUpload struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

type ProfileService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	verifier    auth.TokenVerifier
	revocations revocations.Repository
	events      events.Publisher
	presigner   Presigner
	log         logging.Logger

	jwtSecret                   []byte
	accessTokenValidityDuration time.Duration
	bcryptCost                  int
	now                         func() time.Time
}

func NewProfileService(db *sql.DB, m repomanager.RepositoryManager, verifier auth.TokenVerifier,
	rev revocations.Repository, pub events.Publisher, presigner Presigner, cfg *config.Config, log logging.Logger) *ProfileService {
	return &ProfileService{
		db:                          db,
		repomanager:                 m,
		verifier:                    verifier,
		revocations:                 rev,
		events:                      pub,
		presigner:                   presigner,
		log:                         log.With("module", "profile"),
		jwtSecret:                   []byte(cfg.SecretKey),
		accessTokenValidityDuration: cfg.AccessTokenValidityDuration,
		bcryptCost:                  bcrypt.DefaultCost,
		now:                         time.Now,
	}
}

// Login verifies idToken, creates the profile on first sign-in and issues a
// bearer credential. New users are contributors.
func (s *ProfileService) Login(ctx context.Context, idToken string) (*LoginResult, error) {
	if strings.TrimSpace(idToken) == "" {
		return nil, fmt.Errorf("%w: id_token is required", common.ErrorValidation)
	}
	id, err := s.verifier.Verify(ctx, idToken)
	if err != nil {
		s.log.Info(ctx, "identity token rejected", "error", err)
		return nil, common.ErrorUnauthorized
	}

	u := &models.User{UID: id.Subject, Name: id.Name, Email: id.Email, Role: models.RoleContributor}
	if id.Picture != "" {
		u.PhotoURL = &id.Picture
	}
	user, err := s.repomanager.Users(s.db).Upsert(ctx, u)
	if err != nil {
		s.log.Error(ctx, "upsert user", "uid", id.Subject, "error", err)
		return nil, common.ErrorInternal
	}
	return s.issue(ctx, user)
}

func (s *ProfileService) issue(ctx context.Context, user *models.User) (*LoginResult, error) {
	token, claims, err := auth.GenerateToken(user.ID, string(user.Role), s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, common.ErrorInternal
	}
	return &LoginResult{Token: token, ExpiresAt: claims.ExpiresAt.Time, User: s.present(ctx, user)}, nil
}

// Authenticate checks a bearer credential and that it was not logged out.
func (s *ProfileService) Authenticate(ctx context.Context, token string) (*auth.Claims, error) {
	claims, err := auth.ParseToken(token, s.jwtSecret)
	if err != nil {
		return nil, err
	}
	revoked, err := s.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		s.log.Error(ctx, "revocation lookup", "error", err)
		return nil, common.ErrorInternal
	}
	if revoked {
		return nil, common.ErrTokenRevoked
	}
	return claims, nil
}

// Me returns the profile of userID. A credential whose user is gone is
// treated as unauthorized.
func (s *ProfileService) Me(ctx context.Context, userID int64) (*models.User, error) {
	u, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		return nil, s.userError(ctx, userID, err)
	}
	return s.present(ctx, u), nil
}

// Patch applies upd and announces wallet changes.
func (s *ProfileService) Patch(ctx context.Context, userID int64, upd models.ProfileUpdate) (*models.User, error) {
	if err := validateUpdate(userID, &upd); err != nil {
		return nil, err
	}

	var before, after *models.User
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)
		var err error
		if before, err = repo.GetByID(ctx, userID); err != nil {
			return err
		}
		if upd.Empty() {
			after = before
			return nil
		}
		after, err = repo.UpdateProfile(ctx, userID, upd)
		return err
	})
	if err != nil {
		return nil, s.userError(ctx, userID, err)
	}

	if upd.SetWallet && !strings.EqualFold(before.Wallet(), after.Wallet()) {
		ev := events.WalletChanged{
			UserID:    after.ID,
			UID:       after.UID,
			Previous:  before.WalletAddress,
			Current:   after.WalletAddress,
			ChangedAt: after.UpdatedAt,
		}
		if err := s.events.PublishWalletChanged(ctx, ev); err != nil {
			s.log.Warn(ctx, "wallet change not published", "user_id", userID, "error", err)
		}
	}
	return s.present(ctx, after), nil
}

// Logout revokes the credential for the rest of its lifetime.
func (s *ProfileService) Logout(ctx context.Context, claims *auth.Claims) error {
	if err := s.revocations.Revoke(ctx, claims.ID, claims.ExpiresIn(s.now())); err != nil {
		s.log.Error(ctx, "revoke credential", "error", err)
		return common.ErrorInternal
	}
	return nil
}

// AvatarUpload returns a presigned PUT URL for a new photo of userID. The
// client saves the returned key with Patch once the upload succeeded.
func (s *ProfileService) AvatarUpload(ctx context.Context, userID int64, contentType string) (*AvatarUpload, error) {
	if !storage.ImageContentType(contentType) {
		return nil, fmt.Errorf("%w: unsupported content type %q", common.ErrorValidation, contentType)
	}
	key := storage.AvatarKey(userID, contentType, s.now())
	url, err := s.presigner.PresignPut(ctx, key, contentType)
	if err != nil {
		s.log.Error(ctx, "presign avatar upload", "error", err)
		return nil, common.ErrorInternal
	}
	return &AvatarUpload{Key: key, URL: url}, nil
}

// present swaps a stored object key for a presigned download URL.
func (s *ProfileService) present(ctx context.Context, u *models.User) *models.User {
	if u.PhotoURL == nil || isURL(*u.PhotoURL) {
		return u
	}
	url, err := s.presigner.PresignGet(ctx, *u.PhotoURL)
	if err != nil {
		s.log.Warn(ctx, "presign avatar download", "error", err)
		return u
	}
	out := *u
	out.PhotoURL = &url
	return &out
}

func (s *ProfileService) userError(ctx context.Context, userID int64, err error) error {
	if errors.Is(err, common.ErrorNotFound) {
		return common.ErrorUnauthorized
	}
	s.log.Error(ctx, "load user", "user_id", userID, "error", err)
	return common.ErrorInternal
}

func validateUpdate(userID int64, upd *models.ProfileUpdate) error {
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" || utf8.RuneCountInString(name) > maxNameLength {
			return fmt.Errorf("%w: name must be 1-%d characters", common.ErrorValidation, maxNameLength)
		}
		upd.Name = &name
	}
	if upd.PhotoURL != nil {
		p := *upd.PhotoURL
		if !isURL(p) && !strings.HasPrefix(p, fmt.Sprintf("avatars/%d/", userID)) {
			return fmt.Errorf("%w: photo_url must be an uploaded avatar key or an http(s) URL", common.ErrorValidation)
		}
	}
	if upd.SetWallet && upd.WalletAddress != nil {
		w := strings.TrimSpace(*upd.WalletAddress)
		if !walletPattern.MatchString(w) {
			return fmt.Errorf("%w: wallet_address must be a 0x-prefixed hex string", common.ErrorValidation)
		}
		upd.WalletAddress = &w
	}
	return nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}
