package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"referral-hunt/internal/domain"
	"referral-hunt/internal/messaging"
	"referral-hunt/internal/otp"
	"referral-hunt/internal/referral"
	"referral-hunt/internal/repository"
)

var (
	// ErrPhoneRequired is returned when the phone number is blank.
	ErrPhoneRequired = errors.New("phone number is required")
	// ErrInvalidOTP covers wrong, expired and never issued passcodes alike.
	ErrInvalidOTP = errors.New("invalid otp")
	// ErrInvalidReferralCode is returned when no user owns the supplied referral code.
	ErrInvalidReferralCode = errors.New("incorrect referral code")
	// ErrUserNotRegistered is returned by Login for a verified phone number without an account.
	ErrUserNotRegistered = errors.New("user not registered")
	// ErrUserAlreadyExists is returned by Signup when the phone number already has an account.
	ErrUserAlreadyExists = errors.New("user already exists")
)

// insertAttempts bounds retries when a freshly generated referral code loses
// an insert race to a concurrent signup.
const insertAttempts = 3

// SignupInput carries the fields of a signup request.
type SignupInput struct {
	PhoneNumber string
	OTP         string
	ReferredBy  *string
	Name        string
}

// AuthService issues and verifies passcodes and registers users.
type AuthService interface {
	// SendOTP issues a passcode for phone and reports whether an account exists.
	SendOTP(ctx context.Context, phone string) (bool, error)
	Login(ctx context.Context, phone, code string) (*domain.User, error)
	Signup(ctx context.Context, in SignupInput) (*domain.User, error)
}

type AuthConfig struct {
	OTPTTL          time.Duration
	OTPDigits       int
	MessageTemplate string
	Logger          logrus.FieldLogger
}

type authService struct {
	users      repository.UserRepository
	codes      otp.Cache
	dispatcher messaging.Dispatcher
	referrals  *referral.Generator
	cfg        AuthConfig
}

func NewAuthService(users repository.UserRepository, codes otp.Cache, dispatcher messaging.Dispatcher, referrals *referral.Generator, cfg AuthConfig) AuthService {
	if cfg.OTPTTL <= 0 {
		cfg.OTPTTL = otp.DefaultTTL
	}
	if cfg.OTPDigits <= 0 {
		cfg.OTPDigits = otp.DefaultDigits
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if referrals == nil {
		referrals = referral.NewGenerator(0, 0, 0)
	}
	return &authService{
		users:      users,
		codes:      codes,
		dispatcher: dispatcher,
		referrals:  referrals,
		cfg:        cfg,
	}
}

func (s *authService) SendOTP(ctx context.Context, phone string) (bool, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return false, ErrPhoneRequired
	}

	code, err := otp.GenerateCode(s.cfg.OTPDigits)
	if err != nil {
		return false, fmt.Errorf("generate otp: %w", err)
	}
	if err := s.codes.Set(phone, code, s.cfg.OTPTTL); err != nil {
		return false, fmt.Errorf("store otp: %w", err)
	}

	// delivery is independent of the account lookup below
	if err := s.dispatcher.Enqueue(messaging.OTPMessage(s.cfg.MessageTemplate, phone, code)); err != nil {
		s.cfg.Logger.WithError(err).WithField("phone", phone).Warn("enqueue otp message")
	}

	if _, err := s.users.GetByPhone(ctx, phone); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("lookup user: %w", err)
	}
	return true, nil
}

func (s *authService) Login(ctx context.Context, phone, code string) (*domain.User, error) {
	phone = strings.TrimSpace(phone)
	code = strings.TrimSpace(code)

	if !s.codes.Verify(phone, code) {
		return nil, ErrInvalidOTP
	}

	user, err := s.users.GetByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// the passcode stays live so the client can continue with signup
			return nil, ErrUserNotRegistered
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if !s.codes.Consume(phone, code) {
		return nil, ErrInvalidOTP
	}
	return user, nil
}

func (s *authService) Signup(ctx context.Context, in SignupInput) (*domain.User, error) {
	phone := strings.TrimSpace(in.PhoneNumber)
	code := strings.TrimSpace(in.OTP)
	referredBy := normalizeReferral(in.ReferredBy)

	if referredBy != nil {
		if _, err := s.users.GetByReferralCode(ctx, *referredBy); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrInvalidReferralCode
			}
			return nil, fmt.Errorf("lookup referrer: %w", err)
		}
	}

	if !s.codes.Verify(phone, code) {
		return nil, ErrInvalidOTP
	}

	if _, err := s.users.GetByPhone(ctx, phone); err == nil {
		return nil, ErrUserAlreadyExists
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if !s.codes.Consume(phone, code) {
		return nil, ErrInvalidOTP
	}

	for attempt := 1; ; attempt++ {
		referralCode, err := s.referrals.Generate(ctx, s.users.ReferralCodeExists)
		if err != nil {
			s.restoreOTP(phone, code)
			return nil, fmt.Errorf("generate referral code: %w", err)
		}

		user := &domain.User{
			Name:         strings.TrimSpace(in.Name),
			PhoneNumber:  phone,
			ReferralCode: referralCode,
			ReferredBy:   referredBy,
		}
		_, err = s.users.Create(ctx, user)
		switch {
		case err == nil:
			s.cfg.Logger.WithFields(logrus.Fields{
				"user_id":  user.ID,
				"referred": user.WasReferred(),
			}).Info("user signed up")
			return user, nil
		case errors.Is(err, repository.ErrDuplicatePhone):
			return nil, ErrUserAlreadyExists
		case errors.Is(err, repository.ErrDuplicateReferralCode) && attempt < insertAttempts:
			s.cfg.Logger.WithField("attempt", attempt).Warn("referral code taken concurrently, regenerating")
			continue
		default:
			s.restoreOTP(phone, code)
			return nil, fmt.Errorf("create user: %w", err)
		}
	}
}

// restoreOTP reissues a consumed passcode after signup failed on the server
// side, so the user can retry without requesting a new code.
func (s *authService) restoreOTP(phone, code string) {
	if err := s.codes.Set(phone, code, s.cfg.OTPTTL); err != nil {
		s.cfg.Logger.WithError(err).WithField("phone", phone).Warn("restore otp after failed signup")
	}
}

func normalizeReferral(code *string) *string {
	if code == nil {
		return nil
	}
	v := strings.TrimSpace(*code)
	if v == "" {
		return nil
	}
	return &v
}
