package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/thetakeaway/takeaway/src/oops"
	"golang.org/x/crypto/argon2"
)

/*
Admin endpoints are guarded by a bearer token. The server only stores an
argon2id hash of it (config Admin.TokenHash), produced by
`takeaway admin hashtoken`.

The stored form is "argon2id$t=1,m=40960,p=1,l=64$<salt>$<hash>", with salt
and hash base64-encoded.
*/

type HashAlgorithm string

const (
	Argon2id HashAlgorithm = "argon2id"
)

const saltLength = 16
const keyLength = 64

// Minimum length accepted by HashToken. Admin tokens are meant to be
// generated, not typed.
const MinTokenLength = 24

var ErrTokenTooShort = fmt.Errorf("admin tokens must be at least %d characters", MinTokenLength)

type HashedToken struct {
	Algorithm  HashAlgorithm
	AlgoConfig string // the argon2 parameters

	// Base64-encoded.
	Salt string
	Hash string
}

func ParseHashedToken(s string) (HashedToken, error) {
	pieces := strings.SplitN(strings.TrimSpace(s), "$", 4)
	if len(pieces) < 4 {
		return HashedToken{}, oops.New(nil, "unrecognized token hash format")
	}

	return HashedToken{
		Algorithm:  HashAlgorithm(pieces[0]),
		AlgoConfig: pieces[1],
		Salt:       pieces[2],
		Hash:       pieces[3],
	}, nil
}

func (h HashedToken) String() string {
	return fmt.Sprintf("%s$%s$%s$%s", h.Algorithm, h.AlgoConfig, h.Salt, h.Hash)
}

type Argon2idConfig struct {
	Time      uint32
	Memory    uint32
	Threads   uint8
	KeyLength uint32
}

func ParseArgon2idConfig(cfg string) (Argon2idConfig, error) {
	values := map[string]uint64{}
	for _, part := range strings.Split(cfg, ",") {
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			return Argon2idConfig{}, oops.New(nil, "malformed Argon2id config %q", cfg)
		}
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return Argon2idConfig{}, oops.New(err, "failed to parse %s in Argon2id config", name)
		}
		values[name] = n
	}

	for _, name := range []string{"t", "m", "p", "l"} {
		if _, ok := values[name]; !ok {
			return Argon2idConfig{}, oops.New(nil, "Argon2id config is missing %s", name)
		}
	}
	if values["p"] > 255 {
		return Argon2idConfig{}, oops.New(nil, "Argon2id thread count %d is out of range", values["p"])
	}

	return Argon2idConfig{
		Time:      uint32(values["t"]),
		Memory:    uint32(values["m"]),
		Threads:   uint8(values["p"]),
		KeyLength: uint32(values["l"]),
	}, nil
}

func (c Argon2idConfig) String() string {
	return fmt.Sprintf("t=%v,m=%v,p=%v,l=%v", c.Time, c.Memory, c.Threads, c.KeyLength)
}

func CheckToken(token string, hashed HashedToken) (bool, error) {
	switch hashed.Algorithm {
	case Argon2id:
		cfg, err := ParseArgon2idConfig(hashed.AlgoConfig)
		if err != nil {
			return false, err
		}

		salt, err := base64.StdEncoding.DecodeString(hashed.Salt)
		if err != nil {
			return false, oops.New(err, "failed to decode salt")
		}
		want, err := base64.StdEncoding.DecodeString(hashed.Hash)
		if err != nil {
			return false, oops.New(err, "failed to decode hash")
		}

		got := argon2.IDKey([]byte(token), salt, cfg.Time, cfg.Memory, cfg.Threads, cfg.KeyLength)
		return subtle.ConstantTimeCompare(got, want) == 1, nil
	default:
		return false, oops.New(nil, "unrecognized token hash algorithm: %s", hashed.Algorithm)
	}
}

func HashToken(token string) (HashedToken, error) {
	if len(token) < MinTokenLength {
		return HashedToken{}, ErrTokenTooShort
	}

	salt := make([]byte, saltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return HashedToken{}, oops.New(err, "failed to generate salt")
	}

	cfg := Argon2idConfig{
		Time:      1,
		Memory:    40 * 1024, // KiB
		Threads:   1,
		KeyLength: keyLength,
	}

	key := argon2.IDKey([]byte(token), salt, cfg.Time, cfg.Memory, cfg.Threads, cfg.KeyLength)

	return HashedToken{
		Algorithm:  Argon2id,
		AlgoConfig: cfg.String(),
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Hash:       base64.StdEncoding.EncodeToString(key),
	}, nil
}

// A random token suitable for HashToken, URL-safe.
func GenerateToken() string {
	b := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

var ErrNoBearerToken = errors.New("no bearer token in Authorization header")

// Extracts the token from an "Authorization: Bearer <token>" header value.
func BearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrNoBearerToken
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrNoBearerToken
	}
	return token, nil
}
