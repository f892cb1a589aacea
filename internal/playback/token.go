package playback

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenScope marks a token as a playback capability and nothing else
const TokenScope = "vms-playback"

var (
	// ErrTokenInvalid: signature, claim set or scope is wrong
	ErrTokenInvalid = errors.New("playback token invalid")
	// ErrTokenExpired: the token was valid once but its TTL has elapsed
	ErrTokenExpired = errors.New("playback token expired")
)

// filenamePattern accepts timestamp-derived clip filenames only.
// Anything with path separators or foreign characters is rejected so a
// filename can never smuggle path traversal into a provider URL.
var filenamePattern = regexp.MustCompile(`^[0-9TZ\-:]+\.mp4$`)

// ValidFilename reports whether a clip filename is safe to embed in a
// token and in a provider download URL
func ValidFilename(name string) bool {
	return filenamePattern.MatchString(name)
}

// Claims is the capability a playback token grants: one clip of one
// monitor, on one server, for one camera of one tenant.
type Claims struct {
	CameraID  string `json:"camera_id"`
	CompanyID string `json:"company_id"`
	ServerID  string `json:"server_id"`
	MonitorID string `json:"monitor_id"`
	Filename  string `json:"filename"`
}

// TokenService issues and verifies signed playback capability tokens.
// Tokens are stateless; the TTL is fixed at construction and never
// caller-supplied.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// TokenServiceConfig holds the configuration for TokenService
type TokenServiceConfig struct {
	Secret     string
	TTLSeconds int
}

// NewTokenService creates a new TokenService
func NewTokenService(config TokenServiceConfig) (*TokenService, error) {
	if config.Secret == "" {
		return nil, fmt.Errorf("token secret is required")
	}

	ttl := config.TTLSeconds
	if ttl <= 0 {
		ttl = 300 // 5 minutes default
	}

	return &TokenService{
		secret: []byte(config.Secret),
		ttl:    time.Duration(ttl) * time.Second,
		now:    time.Now,
	}, nil
}

// Issue signs a playback capability for the given claims
func (s *TokenService) Issue(claims Claims) (string, error) {
	if !ValidFilename(claims.Filename) {
		return "", fmt.Errorf("invalid clip filename %q", claims.Filename)
	}

	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"scope":      TokenScope,
		"camera_id":  claims.CameraID,
		"company_id": claims.CompanyID,
		"server_id":  claims.ServerID,
		"monitor_id": claims.MonitorID,
		"filename":   claims.Filename,
		"iat":        now.Unix(),
		"exp":        now.Add(s.ttl).Unix(),
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign playback token: %w", err)
	}

	return signed, nil
}

// Verify checks a playback token and returns its claims.
// Fails with ErrTokenExpired when the TTL has elapsed and ErrTokenInvalid
// for every other defect; verification failures are never swallowed
// because they gate access.
func (s *TokenService) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	if scope, _ := mapClaims["scope"].(string); scope != TokenScope {
		return nil, fmt.Errorf("%w: wrong scope", ErrTokenInvalid)
	}

	claims := &Claims{
		CameraID:  stringClaim(mapClaims, "camera_id"),
		CompanyID: stringClaim(mapClaims, "company_id"),
		ServerID:  stringClaim(mapClaims, "server_id"),
		MonitorID: stringClaim(mapClaims, "monitor_id"),
		Filename:  stringClaim(mapClaims, "filename"),
	}

	if claims.CameraID == "" || claims.CompanyID == "" || claims.ServerID == "" ||
		claims.MonitorID == "" || claims.Filename == "" {
		return nil, fmt.Errorf("%w: incomplete claim set", ErrTokenInvalid)
	}

	return claims, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	v, _ := claims[key].(string)
	return v
}
