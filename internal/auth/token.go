package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrTokenMalformed covers anything that is not a valid, correctly signed token.
	ErrTokenMalformed = errors.New("token is malformed")
	// ErrTokenExpired is returned for a well-formed token past its expiry.
	ErrTokenExpired = errors.New("token has expired")
)

// Purpose tags what a token may be used for.
type Purpose uint8

const (
	PurposeAccess Purpose = iota + 1
	PurposeConfirmation
)

func (p Purpose) String() string {
	switch p {
	case PurposeAccess:
		return "access"
	case PurposeConfirmation:
		return "confirmation"
	default:
		return fmt.Sprintf("purpose(%d)", uint8(p))
	}
}

// MarshalText encodes the purpose as its claim value.
func (p Purpose) MarshalText() ([]byte, error) {
	switch p {
	case PurposeAccess, PurposeConfirmation:
		return []byte(p.String()), nil
	default:
		return nil, fmt.Errorf("unknown token purpose %d", uint8(p))
	}
}

// UnmarshalText rejects anything but the known purposes.
func (p *Purpose) UnmarshalText(text []byte) error {
	switch string(text) {
	case "access":
		*p = PurposeAccess
	case "confirmation":
		*p = PurposeConfirmation
	default:
		return fmt.Errorf("unknown token purpose %q", text)
	}
	return nil
}

// Claims defines the JWT claims structure.
type Claims struct {
	Purpose Purpose `json:"type"`
	jwt.RegisteredClaims
}

// Payload is what a decoded token carries.
type Payload struct {
	Subject   string
	ExpiresAt time.Time
	Purpose   Purpose
}

// Codec issues and decodes signed, expiring, typed tokens. It is safe for
// concurrent use.
type Codec struct {
	key    []byte
	method jwt.SigningMethod
	now    func() time.Time
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithClock replaces the clock used for issuing and validating tokens.
func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) {
		c.now = now
	}
}

// NewCodec creates a codec signing with the given HMAC algorithm.
func NewCodec(secret, algorithm string, opts ...CodecOption) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("signing secret must not be empty")
	}
	method, ok := jwt.GetSigningMethod(algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported signing algorithm %q", algorithm)
	}

	c := &Codec{key: []byte(secret), method: method, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue signs a token for subject that expires ttl from now.
func (c *Codec) Issue(subject string, purpose Purpose, ttl time.Duration) (string, error) {
	now := c.now()
	claims := &Claims{
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(c.method, claims)
	signed, err := token.SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Decode verifies the signature and expiry of tokenStr and returns its payload.
// A token expires once the current time is past its exp second.
func (c *Codec) Decode(tokenStr string) (Payload, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return c.key, nil
	},
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(time.Second),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Payload{}, ErrTokenExpired
		}
		return Payload{}, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	if !token.Valid {
		return Payload{}, ErrTokenMalformed
	}
	if claims.Subject == "" || claims.Purpose == 0 {
		return Payload{}, fmt.Errorf("%w: missing subject or type", ErrTokenMalformed)
	}

	return Payload{
		Subject:   claims.Subject,
		ExpiresAt: claims.ExpiresAt.Time,
		Purpose:   claims.Purpose,
	}, nil
}
