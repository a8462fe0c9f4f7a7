package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"image/png"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"authcore/internal/audit"
	"authcore/internal/crypto"
	"authcore/internal/mfa/models"
	"authcore/internal/platform/tracer"
	dErrors "authcore/pkg/domain-errors"
	"authcore/pkg/requestcontext"
	"authcore/pkg/validation"
)

// Enable enrolls userID in two-factor authentication. TOTP enrollments
// return the shared secret, its otpauth URI and a QR code; sms and email
// enrollments send a test code to contact. Every enrollment returns a fresh
// set of backup codes, shown once.
func (s *Service) Enable(ctx context.Context, userID string, method models.Method, contact string) (result *models.EnrollResult, err error) {
	req := &models.EnableRequest{
		UserID:  strings.TrimSpace(userID),
		Method:  models.Method(strings.ToLower(strings.TrimSpace(string(method)))),
		Contact: strings.TrimSpace(contact),
	}
	if err := validation.Validate(req); err != nil {
		return nil, err
	}
	if err := validateContact(req.Method, req.Contact); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, tracer.SpanTwoFactorEnable,
		tracer.String(tracer.AttrUserHash, tracer.HashSubject(req.UserID)),
		tracer.String(tracer.AttrMethod, string(req.Method)),
	)
	defer func() { span.End(err) }()

	now := requestcontext.Now(ctx)
	err = s.withUser(req.UserID, func() error {
		st, err := s.loadStatus(ctx, req.UserID)
		if err != nil {
			return err
		}
		if st.Enabled {
			return dErrors.New(dErrors.CodeAlreadyEnabled, "two-factor authentication is already enabled")
		}
		result, err = s.enroll(ctx, req, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncrementEnrollment(string(req.Method))
	}
	audit.Log(ctx, s.logger, s.auditPublisher, audit.EventTwoFactorEnabled,
		"user_id", req.UserID,
		"method", string(req.Method),
		"decision", audit.DecisionAllowed,
	)
	return result, nil
}

// enroll writes secret, backup codes and status. Caller holds the user lock.
// Anything written before a failure is removed again.
func (s *Service) enroll(ctx context.Context, req *models.EnableRequest, now time.Time) (_ *models.EnrollResult, err error) {
	result := &models.EnrollResult{Method: req.Method}

	material := req.Contact
	if req.Method == models.MethodTOTP {
		key, err := totp.Generate(totp.GenerateOpts{
			Issuer:      s.config.Issuer,
			AccountName: accountName(req),
			Period:      totpPeriod,
			Digits:      otp.DigitsSix,
			Algorithm:   otp.AlgorithmSHA1,
		})
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate totp secret")
		}
		qr, err := qrDataURI(key, s.config.QRCodeSize)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to render qr code")
		}
		material = key.Secret()
		result.Secret = key.Secret()
		result.ProvisioningURI = key.URL()
		result.QRCode = qr
	}

	payload, err := s.encrypt(material)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			s.rollbackEnroll(ctx, req.UserID)
		}
	}()
	if err := s.store.SaveSecret(ctx, req.UserID, &models.Secret{Method: req.Method, Payload: payload}); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist two-factor secret")
	}

	codes, set, err := s.newBackupCodes(now)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveBackupCodes(ctx, req.UserID, set); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist backup codes")
	}
	result.BackupCodes = codes

	if req.Method.UsesChallenge() {
		if err := s.issueChallenge(ctx, req.UserID, req.Method, req.Contact, now); err != nil {
			return nil, err
		}
	}

	st := &models.Status{
		Enabled:              true,
		Method:               req.Method,
		BackupCodesRemaining: len(codes),
		EnabledAt:            timePtr(now),
	}
	if err := s.saveStatus(ctx, req.UserID, st); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) rollbackEnroll(ctx context.Context, userID string) {
	if err := s.store.DeleteAll(ctx, userID); err != nil {
		s.logger.ErrorContext(ctx, "failed to roll back two-factor enrollment", "error", err)
	}
}

// newBackupCodes returns plaintext codes and the salted hash set to store.
func (s *Service) newBackupCodes(now time.Time) ([]string, *models.BackupCodeSet, error) {
	salt, err := crypto.GenerateSecureRandom(16)
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate backup code salt")
	}
	seen := make(map[string]struct{}, s.config.BackupCodeCount)
	codes := make([]string, 0, s.config.BackupCodeCount)
	set := &models.BackupCodeSet{Salt: salt, GeneratedAt: now}
	for len(codes) < s.config.BackupCodeCount {
		code, err := crypto.GenerateBackupCode()
		if err != nil {
			return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate backup code")
		}
		normalized := crypto.NormalizeBackupCode(code)
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		codes = append(codes, code)
		set.Hashes = append(set.Hashes, crypto.CreateHash(normalized, salt))
	}
	return codes, set, nil
}

func validateContact(method models.Method, contact string) error {
	if !method.UsesChallenge() {
		return nil
	}
	if contact == "" {
		return dErrors.New(dErrors.CodeMissingContact, "contact is required for "+string(method))
	}
	tag := "email"
	if method == models.MethodSMS {
		tag = "e164"
	}
	return validation.Var("contact", contact, tag)
}

func accountName(req *models.EnableRequest) string {
	if req.Contact != "" {
		return req.Contact
	}
	return req.UserID
}

func qrDataURI(key *otp.Key, size int) (string, error) {
	img, err := key.Image(size, size)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
