package auth

import (
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"math/big"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/scrypt"
)

const (
	MethodPBKDF2SHA256 = "pbkdf2:sha256"
	MethodScrypt       = "scrypt"
	MethodBcrypt       = "bcrypt"

	DefaultSaltLength       = 8
	DefaultPBKDF2Iterations = 260000

	saltChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	scryptN, scryptR, scryptP, scryptKeyLen = 32768, 8, 1, 64
)

type HasherConfig struct {
	Method     string `yaml:"method"`
	SaltLength int    `yaml:"salt_length"`
	Iterations int    `yaml:"iterations"`
	BcryptCost int    `yaml:"bcrypt_cost"`
}

// Hasher produces and checks salted one-way password hashes. The pbkdf2 and
// scrypt encodings follow werkzeug's "method$salt$hex" layout so existing
// hashes keep verifying.
type Hasher struct {
	cfg HasherConfig
}

func NewHasher(cfg HasherConfig) (*Hasher, error) {
	if cfg.Method == "" {
		cfg.Method = MethodPBKDF2SHA256
	}
	if cfg.SaltLength == 0 {
		cfg.SaltLength = DefaultSaltLength
	}
	if cfg.Iterations == 0 {
		cfg.Iterations = DefaultPBKDF2Iterations
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	switch cfg.Method {
	case MethodPBKDF2SHA256, MethodScrypt, MethodBcrypt:
	default:
		return nil, fmt.Errorf("unsupported password method %q", cfg.Method)
	}
	if cfg.SaltLength < 1 {
		return nil, errors.New("salt length must be positive")
	}
	if cfg.Iterations < 1 {
		return nil, fmt.Errorf("pbkdf2 iterations must be positive, got %d", cfg.Iterations)
	}
	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range", cfg.BcryptCost)
	}
	return &Hasher{cfg: cfg}, nil
}

func (h *Hasher) Method() string {
	return h.cfg.Method
}

func (h *Hasher) Hash(password string) (string, error) {
	if h.cfg.Method == MethodBcrypt {
		b, err := bcrypt.GenerateFromPassword([]byte(password), h.cfg.BcryptCost)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	salt, err := genSalt(h.cfg.SaltLength)
	if err != nil {
		return "", err
	}
	var method string
	var sum []byte
	switch h.cfg.Method {
	case MethodScrypt:
		method = fmt.Sprintf("scrypt:%d:%d:%d", scryptN, scryptR, scryptP)
		sum, err = scrypt.Key([]byte(password), []byte(salt), scryptN, scryptR, scryptP, scryptKeyLen)
		if err != nil {
			return "", err
		}
	default:
		method = fmt.Sprintf("%s:%d", MethodPBKDF2SHA256, h.cfg.Iterations)
		sum = pbkdf2.Key([]byte(password), []byte(salt), h.cfg.Iterations, sha256.Size, sha256.New)
	}
	return method + "$" + salt + "$" + hex.EncodeToString(sum), nil
}

// Verify reports whether password matches encoded. The method is read from
// the stored hash, not from the hasher's configuration.
func (h *Hasher) Verify(encoded, password string) bool {
	if strings.HasPrefix(encoded, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password)) == nil
	}

	method, salt, want, ok := splitEncoded(encoded)
	if !ok {
		return false
	}
	got, err := derive(method, salt, password, len(want))
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(got, want) == 1
}

func splitEncoded(encoded string) (method, salt string, sum []byte, ok bool) {
	parts := strings.SplitN(encoded, "$", 3)
	if len(parts) != 3 {
		return "", "", nil, false
	}
	sum, err := hex.DecodeString(parts[2])
	if err != nil || len(sum) == 0 {
		return "", "", nil, false
	}
	return parts[0], parts[1], sum, true
}

func derive(method, salt, password string, keyLen int) ([]byte, error) {
	parts := strings.Split(method, ":")
	switch parts[0] {
	case "pbkdf2":
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("malformed method %q", method)
		}
		fn, err := hashFunc(parts[1])
		if err != nil {
			return nil, err
		}
		iterations := DefaultPBKDF2Iterations
		if len(parts) == 3 {
			if iterations, err = strconv.Atoi(parts[2]); err != nil || iterations < 1 {
				return nil, fmt.Errorf("malformed iterations in %q", method)
			}
		}
		return pbkdf2.Key([]byte(password), []byte(salt), iterations, keyLen, fn), nil
	case "scrypt":
		n, r, p := scryptN, scryptR, scryptP
		if len(parts) == 4 {
			var errs [3]error
			n, errs[0] = strconv.Atoi(parts[1])
			r, errs[1] = strconv.Atoi(parts[2])
			p, errs[2] = strconv.Atoi(parts[3])
			if err := errors.Join(errs[:]...); err != nil {
				return nil, err
			}
		} else if len(parts) != 1 {
			return nil, fmt.Errorf("malformed method %q", method)
		}
		return scrypt.Key([]byte(password), []byte(salt), n, r, p, keyLen)
	default:
		return nil, fmt.Errorf("unsupported method %q", method)
	}
}

func hashFunc(name string) (func() hash.Hash, error) {
	switch name {
	case "sha256":
		return sha256.New, nil
	case "sha512":
		return sha512.New, nil
	case "sha1":
		return sha1.New, nil
	default:
		return nil, fmt.Errorf("unsupported hash %q", name)
	}
}

func genSalt(n int) (string, error) {
	max := big.NewInt(int64(len(saltChars)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = saltChars[idx.Int64()]
	}
	return string(b), nil
}
