package session

import (
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

// ScopeProfileProvision is the only scope a provisioning token carries.
const ScopeProfileProvision = "profile:provision"

// provisionAssertion is bound into provisioning tokens as the PASETO implicit
// assertion, so neither token kind verifies as the other.
var provisionAssertion = []byte("hearth.provision.v1")

// AccessClaims identify the user and session behind a request.
type AccessClaims struct {
	UserID    string
	SessionID string
	ExpiresAt time.Time
	IssuedAt  time.Time
	Issuer    string
}

// ProvisioningClaims identify a freshly created account during profile setup.
type ProvisioningClaims struct {
	UserID    string
	Scope     string
	ExpiresAt time.Time
}

// AccessTokenManager issues and verifies both token kinds.
type AccessTokenManager interface {
	Issue(userID, sessionID string, now time.Time) (token string, exp time.Time, err error)
	Verify(token string, now time.Time) (AccessClaims, error)
	IssueProvisioning(userID string, now time.Time) (token string, exp time.Time, err error)
	VerifyProvisioning(token string, now time.Time) (ProvisioningClaims, error)
	PublicKeyHex() string
}

type pasetoV4PublicManager struct {
	issuer          string
	audience        string
	ttl             time.Duration
	provisioningTTL time.Duration
	clockSkew       time.Duration

	secret paseto.V4AsymmetricSecretKey
	public paseto.V4AsymmetricPublicKey
}

// NewPasetoV4PublicManager builds the Ed25519 token manager from cfg.
func NewPasetoV4PublicManager(cfg Config) (AccessTokenManager, error) {
	secret, err := paseto.NewV4AsymmetricSecretKeyFromHex(cfg.PasetoV4SecretKeyHex)
	if err != nil {
		return nil, ErrConfig
	}
	return &pasetoV4PublicManager{
		issuer:          cfg.Issuer,
		audience:        cfg.Audience,
		ttl:             cfg.AccessTokenTTL,
		provisioningTTL: cfg.ProvisioningTTL,
		clockSkew:       cfg.ClockSkew,
		secret:          secret,
		public:          secret.Public(),
	}, nil
}

func (m *pasetoV4PublicManager) PublicKeyHex() string {
	return m.public.ExportHex()
}

func (m *pasetoV4PublicManager) Issue(userID, sessionID string, now time.Time) (string, time.Time, error) {
	if userID == "" || sessionID == "" {
		return "", time.Time{}, ErrInvalidToken
	}
	exp := now.Add(m.ttl)
	tok := m.base(now, exp)
	_ = tok.Set("uid", userID)
	_ = tok.Set("sid", sessionID)
	return tok.V4Sign(m.secret, nil), exp, nil
}

func (m *pasetoV4PublicManager) IssueProvisioning(userID string, now time.Time) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, ErrInvalidToken
	}
	exp := now.Add(m.provisioningTTL)
	tok := m.base(now, exp)
	_ = tok.Set("uid", userID)
	_ = tok.Set("scp", ScopeProfileProvision)
	return tok.V4Sign(m.secret, provisionAssertion), exp, nil
}

func (m *pasetoV4PublicManager) Verify(token string, now time.Time) (AccessClaims, error) {
	parsed, err := m.parser(now).ParseV4Public(m.public, token, nil)
	if err != nil {
		return AccessClaims{}, ErrInvalidToken
	}

	uid, err := parsed.GetString("uid")
	if err != nil || uid == "" {
		return AccessClaims{}, ErrInvalidToken
	}
	sid, err := parsed.GetString("sid")
	if err != nil || sid == "" {
		return AccessClaims{}, ErrInvalidToken
	}
	if _, err := parsed.GetString("scp"); err == nil {
		return AccessClaims{}, ErrInvalidToken
	}

	iss, _ := parsed.GetIssuer()
	exp, _ := parsed.GetExpiration()
	iat, _ := parsed.GetIssuedAt()
	return AccessClaims{UserID: uid, SessionID: sid, ExpiresAt: exp, IssuedAt: iat, Issuer: iss}, nil
}

func (m *pasetoV4PublicManager) VerifyProvisioning(token string, now time.Time) (ProvisioningClaims, error) {
	parsed, err := m.parser(now).ParseV4Public(m.public, token, provisionAssertion)
	if err != nil {
		return ProvisioningClaims{}, ErrInvalidToken
	}

	uid, err := parsed.GetString("uid")
	if err != nil || uid == "" {
		return ProvisioningClaims{}, ErrInvalidToken
	}
	scp, err := parsed.GetString("scp")
	if err != nil || scp != ScopeProfileProvision {
		return ProvisioningClaims{}, ErrInvalidToken
	}

	exp, _ := parsed.GetExpiration()
	return ProvisioningClaims{UserID: uid, Scope: scp, ExpiresAt: exp}, nil
}

func (m *pasetoV4PublicManager) base(now, exp time.Time) paseto.Token {
	tok := paseto.NewToken()
	tok.SetIssuer(m.issuer)
	tok.SetAudience(m.audience)
	tok.SetIssuedAt(now)
	tok.SetNotBefore(now)
	tok.SetExpiration(exp)
	return tok
}

// parser is rebuilt per call; rules accumulate on a shared Parser.
// Validating slightly ahead of now tolerates a peer whose clock runs fast.
func (m *pasetoV4PublicManager) parser(now time.Time) *paseto.Parser {
	p := paseto.NewParser()
	p.AddRule(paseto.IssuedBy(m.issuer))
	p.AddRule(paseto.ForAudience(m.audience))
	p.AddRule(paseto.NotExpired())
	p.AddRule(paseto.ValidAt(now.Add(m.clockSkew)))
	return &p
}
