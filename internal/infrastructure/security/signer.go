// Package security implements request signing, signature verification,
// replay protection and log masking for payment provider traffic.
package security

import (
	"crypto"
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/subtle"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Algorithm selects the digest used for shared-secret signatures.
type Algorithm string

const (
	AlgorithmMD5        Algorithm = "MD5"
	AlgorithmSHA256     Algorithm = "SHA256"
	AlgorithmHMACSHA256 Algorithm = "HMAC_SHA256"
	AlgorithmRSASHA256  Algorithm = "RSA_SHA256"
)

// SignField is the parameter that carries the signature and never takes part
// in the canonical string.
const SignField = "sign"

var (
	ErrUnsupportedAlgorithm = errors.New("security: unsupported signing algorithm")
	ErrMissingSignature     = errors.New("security: missing sign parameter")
	ErrInvalidPrivateKey    = errors.New("security: invalid RSA private key")
	ErrInvalidPublicKey     = errors.New("security: invalid RSA public key")
	ErrUnsignableValue      = errors.New("security: value cannot be signed")
)

// ParseAlgorithm converts a configured name into an Algorithm. Unknown or
// empty values fall back to MD5, the historical default.
func ParseAlgorithm(name string) Algorithm {
	switch strings.ToUpper(strings.ReplaceAll(name, "-", "_")) {
	case "SHA256", "SHA_256":
		return AlgorithmSHA256
	case "HMAC_SHA256", "HMACSHA256":
		return AlgorithmHMACSHA256
	case "RSA_SHA256", "RSA2":
		return AlgorithmRSASHA256
	default:
		return AlgorithmMD5
	}
}

// CanonicalString renders params as "k1=v1&k2=v2" over sorted keys, skipping
// the sign field and empty values. Scalars are stringified with cast so
// callers can pass numbers, decimals and bools directly. Maps, slices and
// structs are rendered as compact JSON with sorted object keys, so nested
// payloads such as statement records are covered by the signature. Values
// that cannot be rendered fail with ErrUnsignableValue.
func CanonicalString(params map[string]any) (string, error) {
	keys := make([]string, 0, len(params))
	values := make(map[string]string, len(params))
	for k, v := range params {
		if k == SignField {
			continue
		}
		s, err := stringify(v)
		if err != nil {
			return "", fmt.Errorf("%w: field %q: %v", ErrUnsignableValue, k, err)
		}
		if s == "" {
			continue
		}
		keys = append(keys, k)
		values[k] = s
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(values[k])
	}
	return sb.String(), nil
}

func stringify(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case []byte:
		return string(t), nil
	case json.Number:
		return t.String(), nil
	case fmt.Stringer:
		return t.String(), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return "", nil
		}
		return stringify(rv.Elem().Interface())
	case reflect.Map, reflect.Slice, reflect.Array:
		if rv.Len() == 0 {
			return "", nil
		}
		return nestedJSON(v)
	case reflect.Struct:
		return nestedJSON(v)
	case reflect.Chan, reflect.Func, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
		return "", fmt.Errorf("unsupported kind %s", rv.Kind())
	}
	return cast.ToStringE(v)
}

// nestedJSON renders v as compact JSON. encoding/json sorts map keys, which
// makes the output independent of map iteration order.
func nestedJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// StringParams converts a string map for use with Sign/Verify.
func StringParams(in map[string]string) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Sign computes the shared-secret signature of params:
// digest(canonical + "&key=" + secret) in upper-case hex.
// For HMAC_SHA256 the secret is the HMAC key instead of a suffix.
func Sign(params map[string]any, secret string, alg Algorithm) (string, error) {
	canonical, err := CanonicalString(params)
	if err != nil {
		return "", err
	}
	switch alg {
	case AlgorithmMD5, "":
		sum := md5.Sum([]byte(withKey(canonical, secret)))
		return strings.ToUpper(hex.EncodeToString(sum[:])), nil
	case AlgorithmSHA256:
		sum := sha256.Sum256([]byte(withKey(canonical, secret)))
		return strings.ToUpper(hex.EncodeToString(sum[:])), nil
	case AlgorithmHMACSHA256:
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write([]byte(canonical))
		return strings.ToUpper(hex.EncodeToString(mac.Sum(nil))), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, alg)
	}
}

func withKey(canonical, secret string) string {
	if canonical == "" {
		return "key=" + secret
	}
	return canonical + "&key=" + secret
}

// Verify recomputes the signature of params (excluding the sign field) and
// compares it case-insensitively with the sign field. Params holding values
// that cannot be signed never verify.
func Verify(params map[string]any, secret string, alg Algorithm) bool {
	provided, err := stringify(params[SignField])
	if err != nil || provided == "" {
		return false
	}
	expected, err := Sign(params, secret, alg)
	if err != nil {
		return false
	}
	return constantTimeEqualFold(provided, expected)
}

func constantTimeEqualFold(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(strings.ToUpper(a)), []byte(strings.ToUpper(b))) == 1
}

// SignRSA signs the canonical string of params with RSA-SHA256 (PKCS#1 v1.5)
// and returns the base64 signature.
func SignRSA(params map[string]any, key *rsa.PrivateKey) (string, error) {
	canonical, err := CanonicalString(params)
	if err != nil {
		return "", err
	}
	return SignRSAMessage(canonical, key)
}

// SignRSAMessage signs an arbitrary message with RSA-SHA256.
func SignRSAMessage(message string, key *rsa.PrivateKey) (string, error) {
	if key == nil {
		return "", ErrInvalidPrivateKey
	}
	hash := sha256.Sum256([]byte(message))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, hash[:])
	if err != nil {
		return "", fmt.Errorf("security: rsa sign: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// VerifyRSA verifies a base64 RSA-SHA256 signature over the canonical string
// of params. Any "sign_type" parameter is excluded as well as the sign field.
func VerifyRSA(params map[string]any, signature string, key *rsa.PublicKey) bool {
	filtered := make(map[string]any, len(params))
	for k, v := range params {
		if k == "sign_type" {
			continue
		}
		filtered[k] = v
	}
	canonical, err := CanonicalString(filtered)
	if err != nil {
		return false
	}
	return VerifyRSAMessage(canonical, signature, key)
}

// VerifyRSAMessage verifies a base64 RSA-SHA256 signature over message.
func VerifyRSAMessage(message, signature string, key *rsa.PublicKey) bool {
	if key == nil || signature == "" {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	hash := sha256.Sum256([]byte(message))
	return rsa.VerifyPKCS1v15(key, crypto.SHA256, hash[:], sig) == nil
}

// ParseRSAPrivateKey parses a PEM encoded PKCS#8 or PKCS#1 private key.
func ParseRSAPrivateKey(pemStr string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, ErrInvalidPrivateKey
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, ErrInvalidPrivateKey
		}
		return rsaKey, nil
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	return key, nil
}

// ParseRSAPublicKey parses a PEM encoded PKIX public key, PKCS#1 public key
// or X.509 certificate.
func ParseRSAPublicKey(pemStr string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, ErrInvalidPublicKey
	}
	switch block.Type {
	case "CERTIFICATE":
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
		}
		if pub, ok := cert.PublicKey.(*rsa.PublicKey); ok {
			return pub, nil
		}
		return nil, ErrInvalidPublicKey
	case "RSA PUBLIC KEY":
		pub, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
		}
		return pub, nil
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, ErrInvalidPublicKey
	}
	return pub, nil
}

// Signer binds a secret and algorithm so callers do not pass them around.
type Signer struct {
	secret    string
	algorithm Algorithm
}

// NewSigner creates a Signer.
func NewSigner(secret string, alg Algorithm) *Signer {
	return &Signer{secret: secret, algorithm: alg}
}

// Algorithm returns the configured algorithm.
func (s *Signer) Algorithm() Algorithm {
	return s.algorithm
}

func (s *Signer) Sign(params map[string]any) (string, error) {
	return Sign(params, s.secret, s.algorithm)
}

func (s *Signer) Verify(params map[string]any) bool {
	return Verify(params, s.secret, s.algorithm)
}

// Digest returns the hex HMAC-SHA256 of data keyed by the signer secret.
func (s *Signer) Digest(data string) string {
	mac := hmac.New(sha256.New, []byte(s.secret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// PaymentHash returns base64(SHA-256(paymentNo|unixMillis|secret)), used as an
// opaque tamper-evident reference handed to clients.
func (s *Signer) PaymentHash(paymentNo string, at time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%s", paymentNo, at.UnixMilli(), s.secret)))
	return base64.StdEncoding.EncodeToString(sum[:])
}
