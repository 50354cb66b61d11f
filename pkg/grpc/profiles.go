package grpc

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/example/lensshop/pkg/models"
	"github.com/example/lensshop/pkg/repository"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const phoneCodeLength = 4

// SaveCallerUserProfile stores the caller's profile. phoneVerified is only
// kept when the caller has actually verified that phone number.
func (s *BackendServer) SaveCallerUserProfile(ctx context.Context, req *models.UserProfile) (*Empty, error) {
	id, err := callerIdentity(ctx)
	if err != nil {
		return nil, err
	}

	phone := strings.TrimSpace(req.Phone)
	verified := false
	if req.PhoneVerified {
		if verified, err = s.phoneVerified(ctx, id.Principal, phone); err != nil {
			return nil, internalError(s.logger, "failed to save profile", err)
		}
	}

	rec := models.ProfileRecord{
		Principal:     id.Principal,
		Name:          strings.TrimSpace(req.Name),
		Email:         strings.TrimSpace(req.Email),
		Phone:         phone,
		PhoneVerified: verified,
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "principal"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "email", "phone", "phone_verified", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return nil, internalError(s.logger, "failed to save profile", err)
	}

	// Invalidate cache
	if err := s.redis.InvalidateProfile(ctx, id.Principal); err != nil {
		s.logger.Warn("Failed to invalidate profile cache", zap.Error(err))
	}
	return &Empty{}, nil
}

func (s *BackendServer) GetCallerUserProfile(ctx context.Context, _ *Empty) (*ProfileResponse, error) {
	id, err := callerIdentity(ctx)
	if err != nil {
		return nil, err
	}
	p, err := s.loadProfile(ctx, id.Principal)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &ProfileResponse{}, nil
	}
	if err != nil {
		return nil, internalError(s.logger, "failed to get profile", err)
	}
	return &ProfileResponse{Profile: &p}, nil
}

// RequestPhoneVerification issues a code for the phone in the caller's
// profile and hands it to the code sender.
func (s *BackendServer) RequestPhoneVerification(ctx context.Context, req *PhoneRequest) (*Empty, error) {
	id, err := callerIdentity(ctx)
	if err != nil {
		return nil, err
	}
	phone := strings.TrimSpace(req.Phone)

	p, err := s.loadProfile(ctx, id.Principal)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, status.Error(codes.FailedPrecondition, "Profile not found")
	}
	if err != nil {
		return nil, internalError(s.logger, "failed to request verification", err)
	}
	if p.Phone != phone {
		return nil, status.Error(codes.FailedPrecondition, "You can only verify the phone number in your profile")
	}

	code, err := newPhoneCode(phoneCodeLength)
	if err != nil {
		return nil, internalError(s.logger, "failed to generate code", err)
	}
	if err := s.redis.StorePhoneCode(ctx, id.Principal, phone, code, s.codeTTL); err != nil {
		return nil, internalError(s.logger, "failed to store code", err)
	}
	if err := s.sender.SendCode(ctx, phone, code); err != nil {
		return nil, status.Error(codes.Unavailable, "failed to send verification code")
	}
	return &Empty{}, nil
}

// VerifyPhoneVerificationCode answers false for a wrong or expired code.
// A correct code is consumed and marks the phone verified for the caller.
func (s *BackendServer) VerifyPhoneVerificationCode(ctx context.Context, req *VerifyCodeRequest) (*BoolResponse, error) {
	id, err := callerIdentity(ctx)
	if err != nil {
		return nil, err
	}
	phone := strings.TrimSpace(req.Phone)

	stored, err := s.redis.PhoneCode(ctx, id.Principal, phone)
	if errors.Is(err, repository.ErrNotFound) {
		return &BoolResponse{Value: false}, nil
	}
	if err != nil {
		return nil, internalError(s.logger, "failed to read code", err)
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(req.Code)) != 1 {
		return &BoolResponse{Value: false}, nil
	}

	if err := s.redis.DeletePhoneCode(ctx, id.Principal, phone); err != nil {
		s.logger.Warn("Failed to delete used code", zap.Error(err))
	}
	rec := models.VerifiedPhone{Principal: id.Principal, Phone: phone, VerifiedAt: time.Now()}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec).Error; err != nil {
		return nil, internalError(s.logger, "failed to record verification", err)
	}
	return &BoolResponse{Value: true}, nil
}

func (s *BackendServer) IsPhoneVerified(ctx context.Context, req *PhoneRequest) (*BoolResponse, error) {
	id, err := callerIdentity(ctx)
	if err != nil {
		return nil, err
	}
	ok, err := s.phoneVerified(ctx, id.Principal, strings.TrimSpace(req.Phone))
	if err != nil {
		return nil, internalError(s.logger, "failed to check phone", err)
	}
	return &BoolResponse{Value: ok}, nil
}

func (s *BackendServer) phoneVerified(ctx context.Context, principal, phone string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.VerifiedPhone{}).
		Where("principal = ? AND phone = ?", principal, phone).
		Count(&count).Error
	return count > 0, err
}

// loadProfile reads through the Redis profile cache.
func (s *BackendServer) loadProfile(ctx context.Context, principal string) (models.UserProfile, error) {
	// Try cache first
	if cached, err := s.redis.GetProfileCache(ctx, principal); err == nil {
		return models.UserProfile{
			Name:          cached.Name,
			Email:         cached.Email,
			Phone:         cached.Phone,
			PhoneVerified: cached.PhoneVerified,
		}, nil
	}

	var rec models.ProfileRecord
	if err := s.db.WithContext(ctx).Where("principal = ?", principal).First(&rec).Error; err != nil {
		return models.UserProfile{}, err
	}

	// Update cache
	err := s.redis.CacheProfile(ctx, &repository.ProfileCache{
		Principal:     rec.Principal,
		Name:          rec.Name,
		Email:         rec.Email,
		Phone:         rec.Phone,
		PhoneVerified: rec.PhoneVerified,
	})
	if err != nil {
		s.logger.Warn("Failed to cache profile", zap.Error(err))
	}
	return rec.Profile(), nil
}

func newPhoneCode(length int) (string, error) {
	max := big.NewInt(1)
	for i := 0; i < length; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", length, n.Int64()), nil
}
