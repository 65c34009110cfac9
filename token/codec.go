package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the pluggable signer.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

// DecodeErrorKind classifies decode failures.
type DecodeErrorKind int

const (
	// DecodeMalformed covers structurally broken tokens: wrong segment
	// count, bad base64, unknown algorithm, unparseable claims.
	DecodeMalformed DecodeErrorKind = iota
	// DecodeBadSignature covers well-formed tokens whose signature does not
	// verify against the configured key.
	DecodeBadSignature
)

// DecodeError is returned by [Codec.Decode].
type DecodeError struct {
	Kind  DecodeErrorKind
	cause error
}

func (e *DecodeError) Error() string {
	switch e.Kind {
	case DecodeBadSignature:
		return "token signature invalid"
	default:
		return "token malformed"
	}
}

func (e *DecodeError) Unwrap() error {
	return e.cause
}

// Claims is the immutable claim set carried by every token. Authorities and
// Custom travel opaquely; nothing in this subsystem interprets them.
type Claims struct {
	Authorities []string       `json:"aut,omitempty"`
	Custom      map[string]any `json:"cst,omitempty"`
	jwt.RegisteredClaims
}

// NewClaims mints a claim set. jti must be unique per token; it is the
// revocation and renewal key.
func NewClaims(
	subject string,
	authorities []string,
	custom map[string]any,
	issuedAt, expiresAt time.Time,
	jti string,
) *Claims {
	return &Claims{
		Authorities: authorities,
		Custom:      custom,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
}

// Config defines codec keys and identity.
type Config struct {
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
}

// Codec builds and parses signed tokens. It is stateless and safe for
// concurrent use.
type Codec struct {
	config Config
}

func NewCodec(cfg Config) (*Codec, error) {
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) > 0 {
			if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires public key")
		}
		if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return &Codec{config: cfg}, nil
}

// Encode signs the claim set. Deterministic given the signer and claims.
func (c *Codec) Encode(claims *Claims) (string, error) {
	if claims == nil {
		return "", errors.New("nil claims")
	}
	if c.config.Issuer != "" {
		claims.Issuer = c.config.Issuer
	}

	tok := jwt.NewWithClaims(c.getMethod(), claims)

	signKey, err := c.getSignKey()
	if err != nil {
		return "", err
	}

	return tok.SignedString(signKey)
}

// Decode verifies signature and shape and returns the embedded claims.
// Timestamps are NOT validated here: the lifecycle coordinator applies its
// own clock-skew rules and must be able to read expired tokens.
func (c *Codec) Decode(tokenStr string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{c.getMethod().Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	tok, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != c.getMethod().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return c.getVerifyKey()
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, &DecodeError{Kind: DecodeBadSignature, cause: err}
		}
		return nil, &DecodeError{Kind: DecodeMalformed, cause: err}
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, &DecodeError{Kind: DecodeMalformed, cause: jwt.ErrTokenInvalidClaims}
	}
	if c.config.Issuer != "" && claims.Issuer != c.config.Issuer {
		return nil, &DecodeError{Kind: DecodeMalformed, cause: errors.New("unexpected issuer")}
	}

	return claims, nil
}

func (c *Codec) getMethod() jwt.SigningMethod {
	switch c.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (c *Codec) getSignKey() (interface{}, error) {
	switch c.config.SigningMethod {
	case MethodHS256:
		return c.config.PrivateKey, nil
	default:
		return parseEdPrivateKey(c.config.PrivateKey)
	}
}

func (c *Codec) getVerifyKey() (interface{}, error) {
	switch c.config.SigningMethod {
	case MethodHS256:
		return c.config.PrivateKey, nil
	default:
		return parseEdPublicKey(c.config.PublicKey)
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
