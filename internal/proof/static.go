// Package proof provides settlement-proof verifiers. The production
// verifier checks a notarized payment transcript; the static verifiers are
// for development and tests. All verifiers are pure and deterministic.
package proof

import (
	"context"
	"errors"

	"github.com/alanyoungcy/escrowdesk/internal/domain"
)

// Static is a verifier with a fixed verdict.
type Static struct {
	reject bool
}

// AcceptAll returns a verifier that accepts every proof.
func AcceptAll() *Static {
	return &Static{}
}

// RejectAll returns a verifier that rejects every proof.
func RejectAll() *Static {
	return &Static{reject: true}
}

func (s *Static) Verify(ctx context.Context, proof []byte, terms domain.OrderTerms, fillUnits int64) error {
	if s.reject {
		return errors.New("proof: rejected by policy")
	}
	return nil
}

// Compile-time interface check.
var _ domain.ProofVerifier = (*Static)(nil)
