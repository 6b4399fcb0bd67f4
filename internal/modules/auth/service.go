package auth

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/skourtis/boomtown/internal/domain"
	"github.com/skourtis/boomtown/internal/mailer"
)

const (
	magicLinkTTL  = 15 * time.Minute
	invitationTTL = 72 * time.Hour
	totpIssuer    = "Boomtown"
)

// AuditRecorder receives security-relevant events. Implemented by the audit
// module; a nil-safe no-op keeps tests simple.
type AuditRecorder interface {
	Record(actorUserID, action, subject, details string)
}

// Service implements the authentication flows: password, magic link, TOTP,
// invitations, sessions.
type Service struct {
	repo          *Repository
	tokens        *TokenManager
	mail          mailer.Sender
	audit         AuditRecorder
	magicLinkBase string
	log           zerolog.Logger
}

// NewService creates a new auth service. magicLinkBase is the URL prefix the
// emailed token is appended to.
func NewService(repo *Repository, tokens *TokenManager, mail mailer.Sender,
	audit AuditRecorder, magicLinkBase string, log zerolog.Logger) *Service {
	return &Service{
		repo:          repo,
		tokens:        tokens,
		mail:          mail,
		audit:         audit,
		magicLinkBase: magicLinkBase,
		log:           log.With().Str("service", "auth").Logger(),
	}
}

// LoginResult is the outcome of a credential check. When RequiresTwoFactor
// is set the caller must follow up with the 6-digit code.
type LoginResult struct {
	RequiresTwoFactor bool   `json:"requires_two_factor,omitempty"`
	UserID            string `json:"user_id,omitempty"`
	Email             string `json:"email,omitempty"`
	Token             string `json:"token,omitempty"`
	ExpiresAt         int64  `json:"expires_at,omitempty"`
}

// Login checks email + password. Users with TOTP enabled get a two-factor
// challenge instead of a token.
func (s *Service) Login(email, password, device, ip, userAgent string) (*LoginResult, error) {
	u, err := s.repo.GetUserByEmail(email)
	if err != nil {
		return nil, err
	}
	if u == nil || !u.Active() || u.PasswordHash == "" {
		s.recordAudit("", "login_failed", email, "unknown or inactive user")
		return nil, domain.E(domain.KindUnauthenticated, "invalid email or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		s.recordAudit(u.ID, "login_failed", email, "bad password")
		return nil, domain.E(domain.KindUnauthenticated, "invalid email or password")
	}

	if u.TOTPEnabled {
		return &LoginResult{RequiresTwoFactor: true, UserID: u.ID, Email: u.Email}, nil
	}
	return s.issueSession(u, device, ip, userAgent)
}

// LoginTOTP completes a two-factor login with a TOTP or recovery code.
func (s *Service) LoginTOTP(userID, code, device, ip, userAgent string) (*LoginResult, error) {
	u, err := s.repo.GetUserByID(userID)
	if err != nil {
		return nil, err
	}
	if u == nil || !u.Active() || !u.TOTPEnabled {
		return nil, domain.E(domain.KindUnauthenticated, "two-factor login not available")
	}
	if !s.checkSecondFactor(u, code) {
		s.recordAudit(u.ID, "login_failed", u.Email, "bad second factor")
		return nil, domain.E(domain.KindUnauthenticated, "invalid code")
	}
	return s.issueSession(u, device, ip, userAgent)
}

// RequestMagicLink emails a one-time token and a 6-digit code. The response
// is uniform whether or not the email exists.
func (s *Service) RequestMagicLink(email string) error {
	u, err := s.repo.GetUserByEmail(email)
	if err != nil {
		return err
	}
	if u == nil || !u.Active() {
		// Do not leak which emails exist
		return nil
	}

	token, err := randomToken()
	if err != nil {
		return err
	}
	code, err := randomDigits(6)
	if err != nil {
		return err
	}
	expires := time.Now().Add(magicLinkTTL).Unix()
	if err := s.repo.SetMagicLink(u.ID, token, code, expires); err != nil {
		return err
	}

	// Email failure is logged, not surfaced; the client sees a generic result
	if err := s.mail.Send("magic_link", u.Email, map[string]string{
		"Username": u.Username,
		"Link":     s.magicLinkBase + token,
		"Code":     code,
	}); err != nil {
		s.log.Error().Err(err).Str("user_id", u.ID).Msg("Magic link mail failed")
	}
	return nil
}

// LoginMagicToken completes login with the emailed link token.
func (s *Service) LoginMagicToken(token, device, ip, userAgent string) (*LoginResult, error) {
	u, err := s.repo.GetUserByMagicToken(token)
	if err != nil {
		return nil, err
	}
	return s.consumeMagic(u, device, ip, userAgent)
}

// LoginMagicCode completes login with the emailed 6-digit code.
func (s *Service) LoginMagicCode(email, code, device, ip, userAgent string) (*LoginResult, error) {
	u, err := s.repo.GetUserByEmail(email)
	if err != nil {
		return nil, err
	}
	if u == nil || u.MagicCode == "" || u.MagicCode != code {
		return nil, domain.E(domain.KindUnauthenticated, "invalid or expired code")
	}
	return s.consumeMagic(u, device, ip, userAgent)
}

func (s *Service) consumeMagic(u *User, device, ip, userAgent string) (*LoginResult, error) {
	if u == nil || !u.Active() {
		return nil, domain.E(domain.KindUnauthenticated, "invalid or expired link")
	}
	if u.MagicExpires == 0 || time.Now().Unix() > u.MagicExpires {
		return nil, domain.E(domain.KindUnauthenticated, "invalid or expired link")
	}
	if err := s.repo.ClearMagicLink(u.ID); err != nil {
		return nil, err
	}
	return s.issueSession(u, device, ip, userAgent)
}

// TOTPSetup starts TOTP enrollment: a shared secret plus recovery codes.
// Nothing is enforced until VerifyTOTPSetup confirms a correct code.
type TOTPSetup struct {
	Secret        string   `json:"secret"`
	OTPAuthURL    string   `json:"otpauth_url"`
	RecoveryCodes []string `json:"recovery_codes"`
}

// SetupTOTP generates a pending TOTP secret for a user.
func (s *Service) SetupTOTP(userID string) (*TOTPSetup, error) {
	u, err := s.repo.GetUserByID(userID)
	if err != nil {
		return nil, err
	}
	if u == nil || !u.Active() {
		return nil, domain.E(domain.KindNotFound, "user not found")
	}
	if u.TOTPEnabled {
		return nil, domain.E(domain.KindPreconditionFailed, "two-factor is already enabled")
	}

	key, err := totp.Generate(totp.GenerateOpts{Issuer: totpIssuer, AccountName: u.Email})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP secret: %w", err)
	}

	codes := make([]string, 8)
	for i := range codes {
		c, err := randomHex(5)
		if err != nil {
			return nil, err
		}
		codes[i] = c
	}
	raw, err := json.Marshal(codes)
	if err != nil {
		return nil, fmt.Errorf("failed to encode recovery codes: %w", err)
	}
	if err := s.repo.SetTOTP(userID, key.Secret(), string(raw), false); err != nil {
		return nil, err
	}

	return &TOTPSetup{Secret: key.Secret(), OTPAuthURL: key.URL(), RecoveryCodes: codes}, nil
}

// VerifyTOTPSetup enables TOTP once the user proves they can generate a code.
func (s *Service) VerifyTOTPSetup(userID, code string) error {
	u, err := s.repo.GetUserByID(userID)
	if err != nil {
		return err
	}
	if u == nil || u.TOTPSecret == "" {
		return domain.E(domain.KindPreconditionFailed, "no pending two-factor setup")
	}
	if !totp.Validate(code, u.TOTPSecret) {
		return domain.E(domain.KindInvalidRequest, "incorrect code")
	}
	if err := s.repo.SetTOTP(userID, u.TOTPSecret, u.RecoveryCodes, true); err != nil {
		return err
	}
	s.recordAudit(userID, "totp_enabled", u.Email, "")
	return nil
}

// DisableTOTP clears the secret and recovery codes.
func (s *Service) DisableTOTP(userID string) error {
	u, err := s.repo.GetUserByID(userID)
	if err != nil {
		return err
	}
	if u == nil {
		return domain.E(domain.KindNotFound, "user not found")
	}
	if err := s.repo.SetTOTP(userID, "", "", false); err != nil {
		return err
	}
	s.recordAudit(userID, "totp_disabled", u.Email, "")
	return nil
}

// checkSecondFactor accepts a current TOTP code or burns a recovery code.
func (s *Service) checkSecondFactor(u *User, code string) bool {
	if totp.Validate(code, u.TOTPSecret) {
		return true
	}
	if u.RecoveryCodes == "" {
		return false
	}
	var codes []string
	if err := json.Unmarshal([]byte(u.RecoveryCodes), &codes); err != nil {
		return false
	}
	for i, c := range codes {
		if c == code {
			remaining := append(codes[:i], codes[i+1:]...)
			raw, err := json.Marshal(remaining)
			if err != nil {
				return false
			}
			if err := s.repo.SetTOTP(u.ID, u.TOTPSecret, string(raw), true); err != nil {
				return false
			}
			return true
		}
	}
	return false
}

// Invite creates a provisional user with a 72-hour invitation token.
func (s *Service) Invite(actorUserID, email, username string, role Role, tenantID string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	username = strings.TrimSpace(username)
	if email == "" || username == "" {
		return nil, domain.E(domain.KindInvalidRequest, "email and username are required")
	}
	if existing, err := s.repo.GetUserByEmail(email); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, domain.E(domain.KindConflict, "email already registered")
	}

	token, err := randomToken()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	u := &User{
		ID:                uuid.New().String(),
		Email:             email,
		Username:          username,
		Role:              role,
		TenantID:          tenantID,
		InvitationToken:   token,
		InvitationExpires: now.Add(invitationTTL).Unix(),
		CreatedAt:         now.Unix(),
		UpdatedAt:         now.Unix(),
	}
	if err := s.repo.CreateUser(u); err != nil {
		return nil, err
	}

	actor, _ := s.repo.GetUserByID(actorUserID)
	inviterEmail := ""
	tenantName := ""
	if actor != nil {
		inviterEmail = actor.Email
	}
	if t, err := s.repo.GetTenant(tenantID); err == nil && t != nil {
		tenantName = t.Name
	}
	if err := s.mail.Send("invitation", email, map[string]string{
		"InviterEmail": inviterEmail,
		"TenantName":   tenantName,
		"Link":         s.magicLinkBase + token,
	}); err != nil {
		s.log.Error().Err(err).Str("email", email).Msg("Invitation mail failed")
	}

	s.recordAudit(actorUserID, "user_invited", email, string(role))
	return u, nil
}

// AcceptInvitation activates an invited user and issues a session
// immediately, mirroring the magic-link flow.
func (s *Service) AcceptInvitation(token, password, device, ip, userAgent string) (*LoginResult, error) {
	u, err := s.repo.GetUserByInvitationToken(token)
	if err != nil {
		return nil, err
	}
	if u == nil || u.InvitationExpires == 0 || time.Now().Unix() > u.InvitationExpires {
		return nil, domain.E(domain.KindUnauthenticated, "invalid or expired invitation")
	}

	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		if err := s.repo.SetPassword(u.ID, string(hash)); err != nil {
			return nil, err
		}
	}
	if err := s.repo.ActivateInvited(u.ID); err != nil {
		return nil, err
	}
	return s.issueSession(u, device, ip, userAgent)
}

// Register creates a self-service player account.
func (s *Service) Register(email, username, password string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	username = strings.TrimSpace(username)
	if email == "" || username == "" || len(password) < 8 {
		return nil, domain.E(domain.KindInvalidRequest,
			"email, username and a password of at least 8 characters are required")
	}
	if existing, err := s.repo.GetUserByEmail(email); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, domain.E(domain.KindConflict, "email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	now := time.Now().Unix()
	u := &User{
		ID:           uuid.New().String(),
		Email:        email,
		Username:     username,
		PasswordHash: string(hash),
		Role:         RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.CreateUser(u); err != nil {
		return nil, err
	}
	return u, nil
}

// Logout revokes a session.
func (s *Service) Logout(sessionID string) error {
	return s.repo.DeleteSession(sessionID)
}

// Authenticate verifies a bearer token against its session and user.
func (s *Service) Authenticate(tokenString string) (*User, *Claims, error) {
	claims, err := s.tokens.Parse(tokenString)
	if err != nil {
		return nil, nil, err
	}
	sess, err := s.repo.GetSession(claims.SessionID)
	if err != nil {
		return nil, nil, err
	}
	if sess == nil || time.Now().Unix() > sess.ExpiresAt {
		return nil, nil, domain.E(domain.KindUnauthenticated, "session expired")
	}
	u, err := s.repo.GetUserByID(claims.UserID)
	if err != nil {
		return nil, nil, err
	}
	if u == nil || !u.Active() {
		return nil, nil, domain.E(domain.KindUnauthenticated, "user no longer active")
	}
	return u, claims, nil
}

func (s *Service) issueSession(u *User, device, ip, userAgent string) (*LoginResult, error) {
	isMobile := detectMobile(userAgent)
	now := time.Now()
	sess := &Session{
		ID:        uuid.New().String(),
		UserID:    u.ID,
		ExpiresAt: now.Add(s.tokens.TTL(isMobile)).Unix(),
		Device:    device,
		IP:        ip,
		IsMobile:  isMobile,
		CreatedAt: now.Unix(),
	}
	if err := s.repo.CreateSession(sess); err != nil {
		return nil, err
	}

	token, expires, err := s.tokens.Issue(u.ID, "", string(u.Role), sess.ID, isMobile, now)
	if err != nil {
		return nil, err
	}
	s.recordAudit(u.ID, "login", u.Email, "")
	return &LoginResult{UserID: u.ID, Email: u.Email, Token: token, ExpiresAt: expires}, nil
}

func (s *Service) recordAudit(actorUserID, action, subject, details string) {
	if s.audit != nil {
		s.audit.Record(actorUserID, action, subject, details)
	}
}

func detectMobile(userAgent string) bool {
	ua := strings.ToLower(userAgent)
	for _, marker := range []string{"mobile", "android", "iphone", "ipad", "okhttp"} {
		if strings.Contains(ua, marker) {
			return true
		}
	}
	return false
}

func randomToken() (string, error) {
	return randomHex(32)
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func randomDigits(n int) (string, error) {
	var b strings.Builder
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("failed to read random digit: %w", err)
		}
		fmt.Fprintf(&b, "%d", d.Int64())
	}
	return b.String(), nil
}
