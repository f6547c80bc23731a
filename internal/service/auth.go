package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"ecoaction/internal/apperror"
	"ecoaction/internal/cache"
	"ecoaction/internal/config"
	"ecoaction/internal/mail"
	"ecoaction/internal/model"
	"ecoaction/internal/queue"
	"ecoaction/internal/repository"
)

const (
	otpDigits = 6

	// SessionCookieName carries the session token for browser clients.
	SessionCookieName = "session_token"

	otpMailSubject = "Your EcoAction login code"
)

var errInvalidOTP = apperror.Unauthorized("invalid or expired OTP")

// AuthService issues e-mail one-time passcodes and stateless session tokens.
type AuthService struct {
	users     repository.UserRepository
	mailer    mail.Mailer
	throttle  cache.RequestThrottle // nil disables OTP request limits
	publisher queue.Publisher
	logger    *slog.Logger

	jwtSecret  []byte
	sessionTTL time.Duration
	otpTTL     time.Duration
	otpCost    int
	now        func() time.Time
}

// AuthOption customises an AuthService.
type AuthOption func(*AuthService)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) AuthOption {
	return func(s *AuthService) { s.now = now }
}

// WithPublisher announces new accounts so the leaderboard cache ranks them.
func WithPublisher(p queue.Publisher) AuthOption {
	return func(s *AuthService) { s.publisher = p }
}

// WithOTPCost sets the bcrypt cost used to hash passcodes.
func WithOTPCost(cost int) AuthOption {
	return func(s *AuthService) { s.otpCost = cost }
}

func NewAuthService(
	users repository.UserRepository,
	mailer mail.Mailer,
	throttle cache.RequestThrottle,
	cfg *config.Config,
	logger *slog.Logger,
	opts ...AuthOption,
) *AuthService {
	s := &AuthService{
		users:      users,
		mailer:     mailer,
		throttle:   throttle,
		logger:     logger.With(slog.String("component", "auth_service")),
		jwtSecret:  []byte(cfg.JWTSecret),
		sessionTTL: time.Duration(cfg.SessionMaxAge) * time.Second,
		otpTTL:     cfg.OTPTTL,
		otpCost:    bcrypt.DefaultCost,
		now:        time.Now,
	}
	if s.otpTTL <= 0 {
		s.otpTTL = 10 * time.Minute
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SessionTTL is how long an issued session token stays valid.
func (s *AuthService) SessionTTL() time.Duration {
	return s.sessionTTL
}

// RequestOTP generates a passcode for email, creating the user on first
// contact, and mails it out.
func (s *AuthService) RequestOTP(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return err
	}

	if s.throttle != nil {
		allowed, err := s.throttle.Allow(ctx, "otp:"+email)
		if err != nil {
			// Fail open when Redis is unreachable.
			s.logger.Warn("otp throttle unavailable", slog.Any("error", err))
		} else if !allowed {
			return apperror.RateLimited("too many OTP requests, try again later")
		}
	}

	code, err := generateOTP()
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.otpCost)
	if err != nil {
		return fmt.Errorf("failed to hash otp: %w", err)
	}
	expiresAt := s.now().UTC().Add(s.otpTTL)

	user, err := s.users.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		user, err = s.createUser(ctx, email, string(hash), expiresAt)
		if err != nil {
			return err
		}
	case err != nil:
		return err
	default:
		if err := s.users.SetOTP(ctx, user.ID, string(hash), expiresAt); err != nil {
			return err
		}
	}

	body := fmt.Sprintf("Your EcoAction login code is %s. It expires in %d minutes.", code, int(s.otpTTL.Minutes()))
	if err := s.mailer.Send(ctx, email, otpMailSubject, body); err != nil {
		s.logger.Error("otp delivery failed", slog.Int64("user_id", user.ID), slog.Any("error", err))
		return apperror.Delivery("failed to send OTP email", err)
	}

	s.logger.Info("otp issued", slog.Int64("user_id", user.ID))
	return nil
}

// createUser inserts a user with a fresh unique username. A concurrent
// request for the same address wins the insert; we then overwrite its OTP.
func (s *AuthService) createUser(ctx context.Context, email, otpHash string, expiresAt time.Time) (*model.User, error) {
	base := UsernameFromEmail(email)

	for suffix := 0; ; suffix++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		candidate := usernameCandidate(base, suffix)
		taken, err := s.users.ExistsByUsername(ctx, candidate, 0)
		if err != nil {
			return nil, err
		}
		if taken {
			continue
		}

		user := &model.User{
			Email:        email,
			Username:     candidate,
			Icon:         model.DefaultIcon,
			OTPHash:      &otpHash,
			OTPExpiresAt: &expiresAt,
			CreatedAt:    s.now().UTC(),
		}
		err = s.users.Create(ctx, user)
		switch {
		case err == nil:
			s.logger.Info("user created", slog.Int64("user_id", user.ID), slog.String("username", user.Username))
			queue.PublishAfterCommit(ctx, s.publisher, s.logger, queue.NewPointsChangedEvent(user.ID))
			return user, nil
		case errors.Is(err, model.ErrUsernameExists):
			continue
		case errors.Is(err, model.ErrEmailExists):
			existing, err := s.users.GetByEmail(ctx, email)
			if err != nil {
				return nil, err
			}
			if err := s.users.SetOTP(ctx, existing.ID, otpHash, expiresAt); err != nil {
				return nil, err
			}
			return existing, nil
		default:
			return nil, err
		}
	}
}

// VerifyOTP checks the code, consumes it and signs a session token.
// Every failure looks the same to the caller.
func (s *AuthService) VerifyOTP(ctx context.Context, email, code string) (*model.VerifyOTPResponse, error) {
	email = normalizeEmail(email)
	code = strings.TrimSpace(code)

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, errInvalidOTP
		}
		return nil, err
	}

	if user.OTPHash == nil || user.OTPExpiresAt == nil {
		return nil, errInvalidOTP
	}
	if !s.now().Before(*user.OTPExpiresAt) {
		return nil, errInvalidOTP
	}
	if bcrypt.CompareHashAndPassword([]byte(*user.OTPHash), []byte(code)) != nil {
		return nil, errInvalidOTP
	}

	consumed, err := s.users.ConsumeOTP(ctx, user.ID, *user.OTPHash)
	if err != nil {
		return nil, err
	}
	if !consumed {
		return nil, errInvalidOTP
	}

	token, err := s.IssueToken(user.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user signed in", slog.Int64("user_id", user.ID))
	return &model.VerifyOTPResponse{
		Message:   "login successful",
		Token:     token,
		ExpiresIn: int(s.sessionTTL.Seconds()),
		Email:     user.Email,
		User:      user.Profile(),
	}, nil
}

// IssueToken signs an HS256 session token for userID.
func (s *AuthService) IssueToken(userID int64) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"iat":     now.Unix(),
		"exp":     now.Add(s.sessionTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a session token and returns the user it names.
func (s *AuthService) ParseToken(tokenString string) (int64, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, apperror.Unauthorized("session has expired")
		}
		return 0, apperror.Unauthorized("invalid session token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return 0, apperror.Unauthorized("invalid session token")
	}
	userIDFloat, ok := claims["user_id"].(float64)
	if !ok || userIDFloat <= 0 {
		return 0, apperror.Unauthorized("invalid session token")
	}
	return int64(userIDFloat), nil
}

func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("failed to generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", otpDigits, n.Int64()), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UsernameFromEmail derives the base username for a new account: the
// lowercase letters and digits of the local part, padded with a "user"
// prefix when too short and cut to the maximum length.
func UsernameFromEmail(email string) string {
	local := email
	if at := strings.LastIndex(email, "@"); at >= 0 {
		local = email[:at]
	}

	var b strings.Builder
	for _, r := range strings.ToLower(local) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	base := b.String()
	if len(base) < model.UsernameMinLength {
		base = "user" + base
	}
	if len(base) > model.UsernameMaxLength {
		base = base[:model.UsernameMaxLength]
	}
	return base
}

// usernameCandidate appends suffix (when non-zero) while keeping the
// result within the maximum username length.
func usernameCandidate(base string, suffix int) string {
	if suffix == 0 {
		return base
	}
	tail := strconv.Itoa(suffix)
	if len(base)+len(tail) > model.UsernameMaxLength {
		base = base[:model.UsernameMaxLength-len(tail)]
	}
	return base + tail
}
