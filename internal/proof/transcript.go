package proof

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"

	"github.com/alanyoungcy/escrowdesk/internal/domain"
)

// Domain-separation prefixes for the two digests in a transcript proof.
const (
	claimPrefix  = "escrowdesk/settlement-claim/v1"
	attestPrefix = "escrowdesk/session-attest/v1"
)

// PaymentClaim is the prover's statement about the off-chain fiat payment.
type PaymentClaim struct {
	AmountMinor int64  `json:"amount_minor"` // fiat minor units actually paid
	Currency    string `json:"currency"`
	Method      string `json:"method"`
}

// Transcript is the wire format of a settlement proof: a payment claim
// bound to a notarized TLS-transcript session.
//
// The notary attests that SessionPub was the key bound to the transcript
// identified by TranscriptHash; the prover then signs the payment claim
// with that session key. Both signatures are 65-byte recoverable secp256k1
// signatures, hex encoded.
type Transcript struct {
	Version        int          `json:"version"`
	Payment        PaymentClaim `json:"payment"`
	TranscriptHash string       `json:"transcript_hash"` // 32 bytes, hex
	SessionPub     string       `json:"session_pub"`     // uncompressed pubkey, hex
	SessionSig     string       `json:"session_sig"`
	Attestation    string       `json:"attestation"`
}

// TranscriptVerifier accepts a proof iff the transcript was attested by the
// trusted notary, the payment claim is signed by the attested session key,
// and the claimed payment matches the order's terms and the requested fill.
type TranscriptVerifier struct {
	notary common.Address
}

// NewTranscriptVerifier creates a verifier trusting the given notary.
func NewTranscriptVerifier(notary common.Address) *TranscriptVerifier {
	return &TranscriptVerifier{notary: notary}
}

func (v *TranscriptVerifier) Verify(ctx context.Context, raw []byte, terms domain.OrderTerms, fillUnits int64) error {
	var p Transcript
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("proof: decode transcript: %w", err)
	}
	if p.Version != 1 {
		return fmt.Errorf("proof: unsupported version %d", p.Version)
	}

	transcriptHash := common.FromHex(p.TranscriptHash)
	if len(transcriptHash) != 32 {
		return fmt.Errorf("proof: transcript hash must be 32 bytes, got %d", len(transcriptHash))
	}
	sessionPub := common.FromHex(p.SessionPub)
	sessionSig := common.FromHex(p.SessionSig)
	attestation := common.FromHex(p.Attestation)

	// 1. The notary vouches that the session key was bound to this
	// transcript.
	attested, err := ethcrypto.SigToPub(AttestationDigest(transcriptHash, sessionPub), attestation)
	if err != nil {
		return fmt.Errorf("proof: recover attestation: %w", err)
	}
	if ethcrypto.PubkeyToAddress(*attested) != v.notary {
		return fmt.Errorf("proof: attestation not signed by trusted notary")
	}

	// 2. The payment claim is signed by that same session key.
	sessionKey, err := ethcrypto.UnmarshalPubkey(sessionPub)
	if err != nil {
		return fmt.Errorf("proof: decode session key: %w", err)
	}
	claimant, err := ethcrypto.SigToPub(ClaimDigest(p.Payment, transcriptHash, fillUnits), sessionSig)
	if err != nil {
		return fmt.Errorf("proof: recover claim signature: %w", err)
	}
	if ethcrypto.PubkeyToAddress(*claimant) != ethcrypto.PubkeyToAddress(*sessionKey) {
		return fmt.Errorf("proof: claim not signed by session key")
	}

	// 3. The claimed payment matches the order's economic terms and the
	// requested fill.
	if !strings.EqualFold(p.Payment.Currency, terms.FiatCurrency) {
		return fmt.Errorf("proof: currency %q does not match terms %q", p.Payment.Currency, terms.FiatCurrency)
	}
	if !strings.EqualFold(p.Payment.Method, terms.PaymentMethod) {
		return fmt.Errorf("proof: method %q does not match terms %q", p.Payment.Method, terms.PaymentMethod)
	}
	due := terms.FiatDue(fillUnits)
	if big.NewInt(p.Payment.AmountMinor).Cmp(due) != 0 {
		return fmt.Errorf("proof: paid %d but %s due for fill", p.Payment.AmountMinor, due)
	}

	return nil
}

// ClaimDigest is the keccak256 digest the session key signs: the payment
// claim bound to the transcript and the exact fill quantity.
func ClaimDigest(claim PaymentClaim, transcriptHash []byte, fillUnits int64) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(claimPrefix))
	h.Write(transcriptHash)
	writeInt64(h, claim.AmountMinor)
	h.Write([]byte(claim.Currency))
	h.Write([]byte{0})
	h.Write([]byte(claim.Method))
	h.Write([]byte{0})
	writeInt64(h, fillUnits)
	return h.Sum(nil)
}

// AttestationDigest is the keccak256 digest the notary signs: the session
// public key bound to the transcript.
func AttestationDigest(transcriptHash, sessionPub []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(attestPrefix))
	h.Write(transcriptHash)
	h.Write(sessionPub)
	return h.Sum(nil)
}

func writeInt64(h interface{ Write([]byte) (int, error) }, v int64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	h.Write(buf[:])
}

// Compile-time interface check.
var _ domain.ProofVerifier = (*TranscriptVerifier)(nil)
