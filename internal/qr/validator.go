package qr

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base32"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/paka-eco/kiosk-controller/internal/audit"
	"github.com/paka-eco/kiosk-controller/internal/logging"
	"github.com/paka-eco/kiosk-controller/internal/store"
)

// ErrFraud is returned by Validate when the scanned string does not parse
// into the canonical QR URL form, or parses but its hash does not match
// the code it carries. Both cases are fraud attempts per the glossary.
var ErrFraud = errors.New("qr: fraud attempt")

const (
	codeLen = 6
	hashLen = 6
)

// canonicalPattern matches the URL form starting at the "https" located by
// Validate: https://paka.eco/QR/<CODE>/<HASH>, case-insensitive. CODE uses
// the Base32 alphabet excluding I, L, O, U; HASH is plain base36.
var canonicalPattern = regexp.MustCompile(
	`(?i)^https://paka\.eco/QR/([A-HJ-NP-Za-hj-np-z2-9]{6})/([A-Za-z0-9]{6})$`,
)

// Validated is the outcome of a successful structural+cryptographic check:
// the container identifier encoded in the QR, plus the canonical URL form
// the store keys containers by (the raw scan minus any leading noise the
// scanner prepended).
type Validated struct {
	Code string
	URL  string
}

// Validate strips whitespace, locates the canonical QR URL, and verifies
// its HMAC-SHA256/Base32 hash against privateKey. It never touches the
// network or the store — see Validator.Decide for the full decision policy.
func Validate(raw string, privateKey string) (Validated, error) {
	trimmed := strings.TrimSpace(raw)

	idx := strings.Index(strings.ToLower(trimmed), "https")
	if idx == -1 {
		return Validated{}, fmt.Errorf("%w: no https scheme found in %q", ErrFraud, trimmed)
	}
	candidate := trimmed[idx:]

	m := canonicalPattern.FindStringSubmatch(candidate)
	if m == nil {
		return Validated{}, fmt.Errorf("%w: %q does not match the canonical QR URL form", ErrFraud, candidate)
	}

	code := strings.ToUpper(m[1])
	hash := strings.ToUpper(m[2])
	expected := expectedHash(code, privateKey)

	if !hmac.Equal([]byte(expected), []byte(hash)) {
		return Validated{}, fmt.Errorf("%w: hash %s does not match code %s", ErrFraud, hash, code)
	}
	return Validated{Code: code, URL: candidate}, nil
}

// expectedHash computes upper(base32(HMAC-SHA256(privateKey, code)))[:6].
func expectedHash(code, privateKey string) string {
	mac := hmac.New(sha256.New, []byte(privateKey))
	mac.Write([]byte(code))
	digest := mac.Sum(nil)
	encoded := base32.StdEncoding.EncodeToString(digest)
	return strings.ToUpper(encoded[:hashLen])
}

// BackendValidateResult is the container-validate outcome as the backend
// client reports it. Success distinguishes "the backend explicitly
// rejected this" (Success=false, no offline fallback) from a transport
// failure (a non-nil error from Backend.ValidateContainer, which does
// fall back).
type BackendValidateResult struct {
	Success      bool
	IsReturnable bool
	UpdatedAt    time.Time
}

// Backend is the subset of the backend client the decision policy needs.
type Backend interface {
	ValidateContainer(ctx context.Context, containerID string) (BackendValidateResult, error)
}

// ContainerStore is the subset of the store the decision policy needs.
type ContainerStore interface {
	GetByQR(ctx context.Context, qrCode string) (*store.Container, error)
	Update(ctx context.Context, id string, u store.ContainerUpdate) error
}

// Outcome is the terminal result of a decision.
type Outcome int

const (
	// OutcomeRejected means the scan structurally validated but the
	// container is not returnable, unknown, expired, or the backend
	// explicitly rejected it.
	OutcomeRejected Outcome = iota
	// OutcomeAccepted means the container may be returned.
	OutcomeAccepted
	// OutcomeFraud means the scan failed cryptographic validation.
	OutcomeFraud
)

// Decision is the result SEQ3 acts on: which light color to show and
// whether the path was Accepted, Rejected, or Fraud.
type Decision struct {
	Outcome     Outcome
	ContainerID string
	Offline     bool
}

// Validator implements the return decision policy: online validation against
// the backend when reachable, offline fallback against the local store
// otherwise, with every outcome audited.
type Validator struct {
	privateKey string
	store      ContainerStore
	backend    Backend
	audit      *audit.Logger
	log        *logging.Logger
	now        func() time.Time
}

// New returns a Validator. backend may be nil to force the offline path
// unconditionally (e.g. in a deployment with no configured base URL).
func New(privateKey string, containerStore ContainerStore, backend Backend, auditLogger *audit.Logger, log *logging.Logger) *Validator {
	return &Validator{
		privateKey: privateKey,
		store:      containerStore,
		backend:    backend,
		audit:      auditLogger,
		log:        log,
		now:        time.Now,
	}
}

// Decide runs the full decision policy against a raw scanned string
// and returns the outcome SEQ3 should act on. It never returns an error:
// every failure path resolves to a Decision plus an audited explanation.
func (v *Validator) Decide(ctx context.Context, raw string) Decision {
	validated, err := Validate(raw, v.privateKey)
	if err != nil {
		v.audit.SecurityEvent(ctx, "QR validation fraud attempt", map[string]any{
			"validation_result": "fraud_attempt",
			"raw":               raw,
			"error":             err.Error(),
		})
		return Decision{Outcome: OutcomeFraud}
	}

	container, err := v.store.GetByQR(ctx, validated.URL)
	if err != nil {
		v.audit.ContainerNotFound(ctx, validated.Code, v.backend == nil)
		return Decision{Outcome: OutcomeRejected}
	}

	if v.backend != nil {
		result, err := v.backend.ValidateContainer(ctx, container.ID)
		if err == nil {
			return v.decideOnline(ctx, container, result)
		}
		v.log.Warn("backend validate unreachable, falling back to offline policy", "error", err, "container_id", container.ID)
	}

	return v.decideOffline(ctx, container)
}

func (v *Validator) decideOnline(ctx context.Context, container *store.Container, result BackendValidateResult) Decision {
	if !result.Success {
		v.audit.ContainerRejected(ctx, container.ID, "backend explicitly rejected the container")
		return Decision{Outcome: OutcomeRejected, ContainerID: container.ID}
	}

	isReturnable := result.IsReturnable
	updatedAt := result.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = v.now().UTC()
	}
	update := store.ContainerUpdate{IsReturnable: &isReturnable}
	if err := v.store.Update(ctx, container.ID, update); err != nil {
		v.log.Error("updating container from backend validate response failed", "error", err, "container_id", container.ID)
	}

	if !isReturnable {
		v.audit.ContainerNotReturnable(ctx, container.ID, false)
		return Decision{Outcome: OutcomeRejected, ContainerID: container.ID}
	}

	v.audit.ContainerValidated(ctx, container.ID, false)
	return Decision{Outcome: OutcomeAccepted, ContainerID: container.ID}
}

// decideOffline accepts iff the container exists (it does, by construction
// here), is returnable, and its due date is null or in the future.
func (v *Validator) decideOffline(ctx context.Context, container *store.Container) Decision {
	if !container.IsReturnable {
		v.audit.ContainerNotReturnable(ctx, container.ID, true)
		return Decision{Outcome: OutcomeRejected, ContainerID: container.ID, Offline: true}
	}
	if container.DueDate != nil && !container.DueDate.After(v.now().UTC()) {
		v.audit.ContainerExpired(ctx, container.ID)
		return Decision{Outcome: OutcomeRejected, ContainerID: container.ID, Offline: true}
	}

	v.audit.ContainerValidated(ctx, container.ID, true)
	return Decision{Outcome: OutcomeAccepted, ContainerID: container.ID, Offline: true}
}

// CodeLen is the length of the container code embedded in a valid QR URL.
const CodeLen = codeLen
