// Package trust builds the TLS configuration used by a domain's client
// from a declarative trust specification.
//
// Three modes exist:
//
//   - certificate pinning: only the supplied certificates are accepted as
//     trust anchors;
//   - public-key pinning: the regular chain verification runs and the
//     chain must additionally contain a key matching one of the pins;
//   - disabled: every certificate and host name is accepted.
//
// Disabled mode removes every transport-security guarantee. It exists for
// local development against self-signed servers and must never be used
// against production endpoints.
package trust

import (
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/adamwoolhether/nativefetch/fetch/domain"
)

var (
	// ErrConfig marks a malformed or contradictory trust configuration.
	// It is always reported before any client is built.
	ErrConfig = errors.New("invalid trust configuration")
	// ErrPinMismatch is returned from the handshake when no certificate in
	// the verified chain matches a configured public-key pin.
	ErrPinMismatch = errors.New("public key pin mismatch")
)

// Error wraps a sentinel error with additional detail.
type Error struct {
	Detail string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func configErr(format string, args ...any) error {
	return &Error{Err: ErrConfig, Detail: fmt.Sprintf(format, args...)}
}

// Spec is the trust configuration of a request. It must not be modified
// once a client has been built from it.
type Spec struct {
	Certificates     []string
	PublicKeyPinning bool
}

// Mode identifies how a connection's peer is trusted.
type Mode int

const (
	ModeCertificatePinning Mode = iota + 1
	ModePublicKeyPinning
	ModeDisabled
)

func (m Mode) String() string {
	switch m {
	case ModeCertificatePinning:
		return "cert-pinning"
	case ModePublicKeyPinning:
		return "pk-pinning"
	case ModeDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// ModeOf validates the combination of spec and disable and returns the
// resulting mode.
func ModeOf(spec *Spec, disable bool) (Mode, error) {
	switch {
	case disable && spec != nil:
		return 0, configErr("pinning cannot be combined with disableAllSecurity")
	case disable:
		return ModeDisabled, nil
	case spec == nil:
		return 0, configErr("neither pinning nor disableAllSecurity configured")
	case len(spec.Certificates) == 0:
		return 0, configErr("pinning requested with an empty certificate list")
	case spec.PublicKeyPinning:
		return ModePublicKeyPinning, nil
	default:
		return ModeCertificatePinning, nil
	}
}

// Fingerprint derives a stable identity for the trust configuration from
// its mode and certificate set. Certificate order does not matter.
func Fingerprint(spec *Spec, disable bool) (string, error) {
	mode, err := ModeOf(spec, disable)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	h.Write([]byte(mode.String()))
	if spec != nil {
		certs := slices.Clone(spec.Certificates)
		slices.Sort(certs)
		for _, c := range certs {
			h.Write([]byte{0})
			h.Write([]byte(c))
		}
	}

	return mode.String() + ":" + hex.EncodeToString(h.Sum(nil))[:16], nil
}

// Config carries the collaborators Configure needs.
type Config struct {
	// Loader resolves certificate identifiers for certificate pinning.
	Loader Loader
	// Roots is the base trust store used in public-key pinning mode.
	// nil means the system roots.
	Roots *x509.CertPool
}

// Configure builds the TLS configuration for domainKey.
func Configure(domainKey string, spec *Spec, disable bool, cfg Config) (*tls.Config, error) {
	mode, err := ModeOf(spec, disable)
	if err != nil {
		return nil, err
	}

	switch mode {
	case ModeDisabled:
		return &tls.Config{InsecureSkipVerify: true}, nil // nolint: gosec
	case ModePublicKeyPinning:
		pins, err := parsePins(spec.Certificates)
		if err != nil {
			return nil, err
		}

		return &tls.Config{
			MinVersion:       tls.VersionTLS12,
			RootCAs:          cfg.Roots,
			VerifyConnection: pinVerifier(domainKey, pins),
		}, nil
	default:
		if cfg.Loader == nil {
			return nil, configErr("no certificate loader configured")
		}

		pool := x509.NewCertPool()
		for _, id := range spec.Certificates {
			data, err := cfg.Loader.Load(id)
			if err != nil {
				return nil, &Error{Err: ErrConfig, Detail: fmt.Sprintf("loading certificate %q: %v", id, err)}
			}

			certs, err := ParseCertificates(data)
			if err != nil {
				return nil, &Error{Err: ErrConfig, Detail: fmt.Sprintf("certificate %q: %v", id, err)}
			}

			for _, c := range certs {
				pool.AddCert(c)
			}
		}

		return &tls.Config{
			MinVersion: tls.VersionTLS12,
			RootCAs:    pool,
		}, nil
	}
}

// ParseCertificates decodes PEM or DER certificate material.
func ParseCertificates(data []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate

	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}

		c, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parsing pem certificate: %w", err)
		}
		certs = append(certs, c)
	}

	if len(certs) > 0 {
		return certs, nil
	}

	certs, err := x509.ParseCertificates(data)
	if err != nil {
		return nil, fmt.Errorf("parsing der certificate: %w", err)
	}
	if len(certs) == 0 {
		return nil, errors.New("no certificate found")
	}

	return certs, nil
}

// PinFor returns the "sha256/<base64>" pin of cert's public key.
func PinFor(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.RawSubjectPublicKeyInfo)
	return "sha256/" + base64.StdEncoding.EncodeToString(sum[:])
}

func parsePins(raw []string) (map[[sha256.Size]byte]struct{}, error) {
	pins := make(map[[sha256.Size]byte]struct{}, len(raw))

	for _, p := range raw {
		encoded := strings.TrimPrefix(strings.TrimSpace(p), "sha256/")

		b, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil || len(b) != sha256.Size {
			return nil, configErr("malformed public key pin %q", p)
		}

		pins[[sha256.Size]byte(b)] = struct{}{}
	}

	return pins, nil
}

// pinVerifier runs after the standard chain verification. Connections to
// other hosts, reached for instance through a redirect, are not pinned.
func pinVerifier(domainKey string, pins map[[sha256.Size]byte]struct{}) func(tls.ConnectionState) error {
	return func(cs tls.ConnectionState) error {
		if cs.ServerName != "" && domain.Key(cs.ServerName) != domainKey {
			return nil
		}

		for _, c := range slices.Concat(cs.VerifiedChains...) {
			if _, ok := pins[sha256.Sum256(c.RawSubjectPublicKeyInfo)]; ok {
				return nil
			}
		}

		return &Error{Err: ErrPinMismatch, Detail: "no pinned key presented by " + domainKey}
	}
}
