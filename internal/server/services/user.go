package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/diarykeeper/internal/common"
	"github.com/dmitrijs2005/diarykeeper/internal/cryptox"
	"github.com/dmitrijs2005/diarykeeper/internal/dbx"
	"github.com/dmitrijs2005/diarykeeper/internal/logging"
	"github.com/dmitrijs2005/diarykeeper/internal/server/auth"
	"github.com/dmitrijs2005/diarykeeper/internal/server/config"
	"github.com/dmitrijs2005/diarykeeper/internal/server/models"
	"github.com/dmitrijs2005/diarykeeper/internal/server/repositories/repomanager"
)

const (
	MaxUserNameLength = 64
	passwordSaltSize  = 16
)

// UserService handles account registration and login. The login password
// is independent of the diary password.
type UserService struct {
	db                          dbx.DB
	repomanager                 repomanager.RepositoryManager
	jwtSecret                   []byte
	accessTokenValidityDuration time.Duration
	log                         logging.Logger
}

// NewUserService constructs a UserService using repositories and server config.
func NewUserService(db dbx.DB, m repomanager.RepositoryManager, cfg *config.Config, log logging.Logger) *UserService {
	if log == nil {
		log = logging.Nop()
	}
	return &UserService{
		db:                          db,
		repomanager:                 m,
		jwtSecret:                   []byte(cfg.SecretKey),
		accessTokenValidityDuration: cfg.AccessTokenValidityDuration,
		log:                         log.With("module", "users"),
	}
}

func validateLoginPassword(password string) error {
	if utf8.RuneCountInString(password) < common.MinLoginPasswordLength {
		return invalid("password must be at least %d characters", common.MinLoginPasswordLength)
	}
	return nil
}

func hashLoginPassword(password string) (hash, salt []byte) {
	salt = common.GenerateRandByteArray(passwordSaltSize)
	return cryptox.HashSecret([]byte(password), salt), salt
}

// Register creates an account. Usernames are trimmed and must be unique.
func (s *UserService) Register(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || utf8.RuneCountInString(username) > MaxUserNameLength {
		return nil, invalid("username must be 1 to %d characters", MaxUserNameLength)
	}
	if err := validateLoginPassword(password); err != nil {
		return nil, err
	}

	hash, salt := hashLoginPassword(password)
	u, err := s.repomanager.Users(s.db).Create(ctx, &models.User{
		UserName:     username,
		PasswordHash: hash,
		PasswordSalt: salt,
	})
	if err != nil {
		if errors.Is(err, common.ErrUserExists) {
			return nil, err
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	s.log.Info(ctx, "user registered", "user_id", u.ID)
	return u, nil
}

// Login checks the password and returns a signed access token. Unknown
// users and wrong passwords are indistinguishable to the caller.
func (s *UserService) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.repomanager.Users(s.db).GetUserByLogin(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			// burn the same hashing time as a real check
			cryptox.VerifySecret([]byte(password), common.GenerateRandByteArray(passwordSaltSize), nil)
			return "", common.ErrorUnauthorized
		}
		return "", common.ErrorInternal
	}
	if !cryptox.VerifySecret([]byte(password), user.PasswordSalt, user.PasswordHash) {
		s.log.Warn(ctx, "login rejected", "user_id", user.ID)
		return "", common.ErrorUnauthorized
	}

	token, err := auth.GenerateToken(user.ID, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return "", common.ErrorInternal
	}
	return token, nil
}

// ChangePassword replaces the login password after checking the current
// one. The diary password and issued tokens are not affected.
func (s *UserService) ChangePassword(ctx context.Context, userID, current, next string) error {
	repo := s.repomanager.Users(s.db)
	user, err := repo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !cryptox.VerifySecret([]byte(current), user.PasswordSalt, user.PasswordHash) {
		s.log.Warn(ctx, "login password change rejected", "user_id", userID)
		return common.ErrWrongPassword
	}
	if err := validateLoginPassword(next); err != nil {
		return err
	}

	hash, salt := hashLoginPassword(next)
	if err := repo.UpdatePassword(ctx, userID, hash, salt); err != nil {
		return fmt.Errorf("error updating password: %w", err)
	}

	s.log.Info(ctx, "login password changed", "user_id", userID)
	return nil
}
