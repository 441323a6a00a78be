package domain

import "context"

// ProofVerifier decides whether a settlement proof authorizes a fill. It
// must be a pure, deterministic predicate: given the same proof, terms and
// amount it always returns the same verdict, with no side effects.
//
// A nil error means the proof is accepted. Any error — a rejection or a
// verifier fault — is surfaced to callers as ErrInvalidProof.
type ProofVerifier interface {
	Verify(ctx context.Context, proof []byte, terms OrderTerms, fillUnits int64) error
}
