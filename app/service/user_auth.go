package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-accounts/app/apperr"
	"github.com/vibast-solutions/ms-go-accounts/app/dto"
	"github.com/vibast-solutions/ms-go-accounts/app/entity"
	"github.com/vibast-solutions/ms-go-accounts/app/media"
	"github.com/vibast-solutions/ms-go-accounts/app/repository"
	"github.com/vibast-solutions/ms-go-accounts/app/types"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	AvatarFolder     = "avatars"
	CoverImageFolder = "covers"

	mediaCleanupTimeout = 10 * time.Second
)

type userRepository interface {
	Create(ctx context.Context, user *entity.User) error
	FindByID(ctx context.Context, id uint64) (*entity.User, error)
	FindByEmail(ctx context.Context, email string) (*entity.User, error)
	FindByUsernameOrEmail(ctx context.Context, username, email string) (*entity.User, error)
	Update(ctx context.Context, user *entity.User) error
	UpdatePassword(ctx context.Context, userID uint64, passwordHash string) error
	SetRefreshToken(ctx context.Context, userID uint64, token sql.NullString) error
	RotateRefreshToken(ctx context.Context, userID uint64, current, next string) (bool, error)
}

type UserAuthService interface {
	Register(ctx context.Context, req *types.RegisterRequest) (*types.UserResponse, error)
	Login(ctx context.Context, req *types.LoginRequest) (*dto.LoginResult, error)
	RefreshToken(ctx context.Context, req *types.RefreshTokenRequest) (*dto.TokenPair, error)
	Logout(ctx context.Context, userID uint64) error
	Authenticate(ctx context.Context, accessToken string) (*types.UserResponse, error)
	CurrentUser(ctx context.Context, userID uint64) (*types.UserResponse, error)
	ChangePassword(ctx context.Context, userID uint64, req *types.ChangePasswordRequest) error
	UpdateAccount(ctx context.Context, userID uint64, req *types.UpdateAccountRequest) (*types.UserResponse, error)
	ValidateAccessToken(tokenString string) (*AccessClaims, error)
}

// EventRecorder observes the outcome of each auth operation.
type EventRecorder interface {
	RecordAuthEvent(event, outcome string)
}

// AsyncRunner runs media cleanup. The default runs it inline before the
// failed call returns; pass Tasks.Go to move it off the request path.
type AsyncRunner func(task func())

type UserAuthServiceOption func(*userAuthService)

type userAuthService struct {
	userRepo    userRepository
	store       media.Store
	hasher      PasswordHasher
	tokens      *TokenIssuer
	recorder    EventRecorder
	asyncRunner AsyncRunner
	now         func() time.Time
}

func NewUserAuthService(
	userRepo userRepository,
	store media.Store,
	hasher PasswordHasher,
	tokens *TokenIssuer,
	opts ...UserAuthServiceOption,
) UserAuthService {
	svc := &userAuthService{
		userRepo: userRepo,
		store:    store,
		hasher:   hasher,
		tokens:   tokens,
		recorder: nopRecorder{},
		asyncRunner: func(task func()) {
			task()
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func WithAsyncRunner(runner AsyncRunner) UserAuthServiceOption {
	return func(s *userAuthService) {
		if runner != nil {
			s.asyncRunner = runner
		}
	}
}

func WithEventRecorder(recorder EventRecorder) UserAuthServiceOption {
	return func(s *userAuthService) {
		if recorder != nil {
			s.recorder = recorder
		}
	}
}

func WithClock(now func() time.Time) UserAuthServiceOption {
	return func(s *userAuthService) {
		if now != nil {
			s.now = now
		}
	}
}

type nopRecorder struct{}

func (nopRecorder) RecordAuthEvent(string, string) {}

func (s *userAuthService) record(event string, err error) {
	outcome := "success"
	if err != nil {
		outcome = apperr.KindOf(err).String()
	}
	s.recorder.RecordAuthEvent(event, outcome)
}

func (s *userAuthService) Register(ctx context.Context, req *types.RegisterRequest) (_ *types.UserResponse, err error) {
	defer func() { s.record("register", err) }()

	if err = req.Validate(); err != nil {
		return nil, err
	}

	username := NormalizeUsername(req.Username)
	email := NormalizeEmail(req.Email)

	existing, err := s.userRepo.FindByUsernameOrEmail(ctx, username, email)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if existing != nil {
		return nil, ErrUserExists
	}

	if len(req.Avatars) == 0 {
		return nil, ErrAvatarRequired
	}
	if len(req.Avatars) > 1 || len(req.CoverImages) > 1 {
		return nil, ErrTooManyFiles
	}

	uploads := req.Avatars
	if len(req.CoverImages) == 1 {
		uploads = append(uploads[:1:1], req.CoverImages[0])
	}
	for _, file := range uploads {
		if _, err = media.Inspect(file); err != nil {
			if errors.Is(err, media.ErrUnsupportedImage) {
				return nil, apperr.Wrap(ErrNotAnImage, err)
			}
			return nil, apperr.Internal(err)
		}
	}

	avatar, cover, err := s.uploadProfileImages(ctx, req.Avatars[0], req.CoverImages)
	if err != nil {
		return nil, err
	}

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		s.discardMedia(ctx, avatar, cover)
		return nil, apperr.Internal(err)
	}

	now := s.now()
	user := &entity.User{
		Username:       username,
		Email:          email,
		FullName:       normalizeFullName(req.FullName),
		Avatar:         avatar.URL,
		AvatarPublicID: avatar.PublicID,
		PasswordHash:   passwordHash,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if cover != nil {
		user.CoverImage = cover.URL
		user.CoverImagePublicID = cover.PublicID
	}

	if err = s.userRepo.Create(ctx, user); err != nil {
		s.discardMedia(ctx, avatar, cover)
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrUserExists
		}
		return nil, apperr.Internal(err)
	}

	created, err := s.userRepo.FindByID(ctx, user.ID)
	if err != nil || created == nil {
		s.discardMedia(ctx, avatar, cover)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		return nil, ErrRegistrationReadBack
	}

	logrus.WithFields(logrus.Fields{
		"user_id":  created.ID,
		"username": created.Username,
	}).Info("User registered")

	return types.NewUserResponse(created), nil
}

// uploadProfileImages stores the avatar and the optional cover concurrently.
// If either upload fails, whatever was stored is removed again.
func (s *userAuthService) uploadProfileImages(ctx context.Context, avatarFile media.File, coverFiles []media.File) (*media.Asset, *media.Asset, error) {
	var avatar, cover *media.Asset

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		asset, err := s.store.Upload(gctx, avatarFile, AvatarFolder)
		if err != nil {
			return err
		}
		avatar = asset
		return nil
	})
	if len(coverFiles) == 1 {
		g.Go(func() error {
			asset, err := s.store.Upload(gctx, coverFiles[0], CoverImageFolder)
			if err != nil {
				return err
			}
			cover = asset
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.discardMedia(ctx, avatar, cover)
		if errors.Is(err, media.ErrUnsupportedImage) {
			return nil, nil, apperr.Wrap(ErrNotAnImage, err)
		}
		return nil, nil, apperr.Internal(err)
	}
	if avatar == nil {
		s.discardMedia(ctx, nil, cover)
		return nil, nil, apperr.Internal(errors.New("avatar upload returned no asset"))
	}

	return avatar, cover, nil
}

// discardMedia deletes stored assets on a context detached from the request,
// so a cancelled request still cleans up. Failures are only logged.
func (s *userAuthService) discardMedia(ctx context.Context, assets ...*media.Asset) {
	var publicIDs []string
	for _, asset := range assets {
		if asset != nil && asset.PublicID != "" {
			publicIDs = append(publicIDs, asset.PublicID)
		}
	}
	if len(publicIDs) == 0 {
		return
	}

	detached := context.WithoutCancel(ctx)
	s.asyncRunner(func() {
		cleanupCtx, cancel := context.WithTimeout(detached, mediaCleanupTimeout)
		defer cancel()

		for _, publicID := range publicIDs {
			if err := s.store.Delete(cleanupCtx, publicID); err != nil {
				logrus.WithError(err).WithField("public_id", publicID).Error("Failed to delete orphaned media")
			}
		}
	})
}

func (s *userAuthService) Login(ctx context.Context, req *types.LoginRequest) (_ *dto.LoginResult, err error) {
	defer func() { s.record("login", err) }()

	if err = req.Validate(); err != nil {
		return nil, err
	}

	user, err := s.userRepo.FindByUsernameOrEmail(ctx, NormalizeUsername(req.Username), NormalizeEmail(req.Email))
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	ok, err := s.hasher.Verify(req.Password, user.PasswordHash)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	pair, err := s.issueTokens(user)
	if err != nil {
		return nil, err
	}

	refresh := sql.NullString{String: pair.RefreshToken, Valid: true}
	if err = s.userRepo.SetRefreshToken(ctx, user.ID, refresh); err != nil {
		return nil, apperr.Internal(err)
	}
	user.RefreshToken = refresh

	return &dto.LoginResult{User: user, Tokens: *pair}, nil
}

func (s *userAuthService) RefreshToken(ctx context.Context, req *types.RefreshTokenRequest) (_ *dto.TokenPair, err error) {
	defer func() { s.record("refresh", err) }()

	if err = req.Validate(); err != nil {
		return nil, err
	}

	claims, err := s.tokens.VerifyRefresh(req.RefreshToken)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.FindByID(ctx, claims.UserID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if user == nil {
		return nil, ErrInvalidToken
	}
	if !user.HasRefreshToken(req.RefreshToken) {
		return nil, ErrStaleRefreshToken
	}

	pair, err := s.issueTokens(user)
	if err != nil {
		return nil, err
	}

	swapped, err := s.userRepo.RotateRefreshToken(ctx, user.ID, req.RefreshToken, pair.RefreshToken)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if !swapped {
		// Another refresh consumed the token between the read and the swap.
		return nil, ErrStaleRefreshToken
	}

	return pair, nil
}

func (s *userAuthService) Logout(ctx context.Context, userID uint64) (err error) {
	defer func() { s.record("logout", err) }()

	if err = s.userRepo.SetRefreshToken(ctx, userID, sql.NullString{}); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// Authenticate resolves an access token to the sanitized user it was issued for.
func (s *userAuthService) Authenticate(ctx context.Context, accessToken string) (*types.UserResponse, error) {
	if accessToken == "" {
		return nil, ErrUnauthorized
	}

	claims, err := s.tokens.VerifyAccess(accessToken)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.FindByID(ctx, claims.UserID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if user == nil {
		return nil, ErrInvalidToken
	}

	return types.NewUserResponse(user), nil
}

func (s *userAuthService) CurrentUser(ctx context.Context, userID uint64) (*types.UserResponse, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return types.NewUserResponse(user), nil
}

func (s *userAuthService) ChangePassword(ctx context.Context, userID uint64, req *types.ChangePasswordRequest) (err error) {
	defer func() { s.record("change_password", err) }()

	if err = req.Validate(); err != nil {
		return err
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return apperr.Internal(err)
	}
	if user == nil {
		return ErrUserNotFound
	}

	ok, err := s.hasher.Verify(req.OldPassword, user.PasswordHash)
	if err != nil {
		return apperr.Internal(err)
	}
	if !ok {
		return ErrPasswordMismatch
	}

	if err = s.applyMutation(user, userMutation{Password: &req.NewPassword}); err != nil {
		return apperr.Internal(err)
	}

	// A new password ends every session; both happen in a single write.
	if err = s.userRepo.UpdatePassword(ctx, user.ID, user.PasswordHash); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

func (s *userAuthService) UpdateAccount(ctx context.Context, userID uint64, req *types.UpdateAccountRequest) (_ *types.UserResponse, err error) {
	defer func() { s.record("update_account", err) }()

	if err = req.Validate(); err != nil {
		return nil, err
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	var mutation userMutation
	if fullName := normalizeFullName(req.FullName); fullName != "" {
		mutation.FullName = &fullName
	}
	if email := NormalizeEmail(req.Email); email != "" && email != user.Email {
		owner, err := s.userRepo.FindByEmail(ctx, email)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		if owner != nil && owner.ID != user.ID {
			return nil, ErrEmailTaken
		}
		mutation.Email = &email
	}

	if err = s.applyMutation(user, mutation); err != nil {
		return nil, apperr.Internal(err)
	}
	if err = s.userRepo.Update(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, apperr.Internal(err)
	}

	return types.NewUserResponse(user), nil
}

func (s *userAuthService) ValidateAccessToken(tokenString string) (*AccessClaims, error) {
	return s.tokens.VerifyAccess(tokenString)
}

func (s *userAuthService) issueTokens(user *entity.User) (*dto.TokenPair, error) {
	accessToken, err := s.tokens.IssueAccess(user)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	refreshToken, err := s.tokens.IssueRefresh(user.ID)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	return &dto.TokenPair{
		AccessToken:     accessToken,
		RefreshToken:    refreshToken,
		AccessTokenTTL:  s.tokens.AccessTokenTTL(),
		RefreshTokenTTL: s.tokens.RefreshTokenTTL(),
	}, nil
}
