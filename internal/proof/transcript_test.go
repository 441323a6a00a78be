package proof

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/escrowdesk/internal/domain"
)

var testTerms = domain.OrderTerms{
	PriceTicks:    45_000_00,
	FiatCurrency:  "USD",
	PaymentMethod: "wise",
}

// signTranscript builds a well-formed transcript proof: the notary attests
// the session key, the session key signs the payment claim.
func signTranscript(t *testing.T, notaryKey, sessionKey *ecdsa.PrivateKey, claim PaymentClaim, fillUnits int64) []byte {
	t.Helper()

	transcriptHash := sha256.Sum256([]byte("tls transcript bytes"))
	sessionPub := ethcrypto.FromECDSAPub(&sessionKey.PublicKey)

	attestation, err := ethcrypto.Sign(AttestationDigest(transcriptHash[:], sessionPub), notaryKey)
	if err != nil {
		t.Fatalf("sign attestation: %v", err)
	}
	sessionSig, err := ethcrypto.Sign(ClaimDigest(claim, transcriptHash[:], fillUnits), sessionKey)
	if err != nil {
		t.Fatalf("sign claim: %v", err)
	}

	raw, err := json.Marshal(Transcript{
		Version:        1,
		Payment:        claim,
		TranscriptHash: common.Bytes2Hex(transcriptHash[:]),
		SessionPub:     common.Bytes2Hex(sessionPub),
		SessionSig:     common.Bytes2Hex(sessionSig),
		Attestation:    common.Bytes2Hex(attestation),
	})
	if err != nil {
		t.Fatalf("marshal transcript: %v", err)
	}
	return raw
}

func newKeys(t *testing.T) (notary, session *ecdsa.PrivateKey) {
	t.Helper()
	notary, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate notary key: %v", err)
	}
	session, err = ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate session key: %v", err)
	}
	return notary, session
}

func TestTranscriptVerifyAccepts(t *testing.T) {
	notaryKey, sessionKey := newKeys(t)
	v := NewTranscriptVerifier(ethcrypto.PubkeyToAddress(notaryKey.PublicKey))

	// Filling 500000 units (half a whole unit) at 45000.00 owes 2250000
	// minor units.
	const fillUnits = 500_000
	claim := PaymentClaim{AmountMinor: 22_500_00, Currency: "USD", Method: "wise"}
	raw := signTranscript(t, notaryKey, sessionKey, claim, fillUnits)

	if err := v.Verify(context.Background(), raw, testTerms, fillUnits); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestTranscriptVerifyCaseInsensitiveTerms(t *testing.T) {
	notaryKey, sessionKey := newKeys(t)
	v := NewTranscriptVerifier(ethcrypto.PubkeyToAddress(notaryKey.PublicKey))

	const fillUnits = 1_000_000
	claim := PaymentClaim{AmountMinor: 45_000_00, Currency: "usd", Method: "Wise"}
	raw := signTranscript(t, notaryKey, sessionKey, claim, fillUnits)

	if err := v.Verify(context.Background(), raw, testTerms, fillUnits); err != nil {
		t.Fatalf("verify with differently-cased terms: %v", err)
	}
}

func TestTranscriptVerifyRejectsWrongNotary(t *testing.T) {
	notaryKey, sessionKey := newKeys(t)
	impostorKey, _ := newKeys(t)

	// Verifier trusts a different notary than the one that attested.
	v := NewTranscriptVerifier(ethcrypto.PubkeyToAddress(impostorKey.PublicKey))

	const fillUnits = 500_000
	claim := PaymentClaim{AmountMinor: 22_500_00, Currency: "USD", Method: "wise"}
	raw := signTranscript(t, notaryKey, sessionKey, claim, fillUnits)

	if err := v.Verify(context.Background(), raw, testTerms, fillUnits); err == nil {
		t.Fatal("verify accepted an attestation from an untrusted notary")
	}
}

func TestTranscriptVerifyRejectsWrongSessionKey(t *testing.T) {
	notaryKey, sessionKey := newKeys(t)
	_, strangerKey := newKeys(t)
	v := NewTranscriptVerifier(ethcrypto.PubkeyToAddress(notaryKey.PublicKey))

	const fillUnits = 500_000
	claim := PaymentClaim{AmountMinor: 22_500_00, Currency: "USD", Method: "wise"}

	// Attest sessionKey but sign the claim with a different key.
	transcriptHash := sha256.Sum256([]byte("tls transcript bytes"))
	sessionPub := ethcrypto.FromECDSAPub(&sessionKey.PublicKey)
	attestation, err := ethcrypto.Sign(AttestationDigest(transcriptHash[:], sessionPub), notaryKey)
	if err != nil {
		t.Fatalf("sign attestation: %v", err)
	}
	sessionSig, err := ethcrypto.Sign(ClaimDigest(claim, transcriptHash[:], fillUnits), strangerKey)
	if err != nil {
		t.Fatalf("sign claim: %v", err)
	}
	raw, err := json.Marshal(Transcript{
		Version:        1,
		Payment:        claim,
		TranscriptHash: common.Bytes2Hex(transcriptHash[:]),
		SessionPub:     common.Bytes2Hex(sessionPub),
		SessionSig:     common.Bytes2Hex(sessionSig),
		Attestation:    common.Bytes2Hex(attestation),
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	if err := v.Verify(context.Background(), raw, testTerms, fillUnits); err == nil {
		t.Fatal("verify accepted a claim signed by the wrong session key")
	}
}

func TestTranscriptVerifyRejectsTamperedPayment(t *testing.T) {
	notaryKey, sessionKey := newKeys(t)
	v := NewTranscriptVerifier(ethcrypto.PubkeyToAddress(notaryKey.PublicKey))

	const fillUnits = 500_000

	cases := []struct {
		name  string
		claim PaymentClaim
	}{
		{"underpaid", PaymentClaim{AmountMinor: 22_499_99, Currency: "USD", Method: "wise"}},
		{"overpaid", PaymentClaim{AmountMinor: 22_500_01, Currency: "USD", Method: "wise"}},
		{"wrong currency", PaymentClaim{AmountMinor: 22_500_00, Currency: "EUR", Method: "wise"}},
		{"wrong method", PaymentClaim{AmountMinor: 22_500_00, Currency: "USD", Method: "revolut"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := signTranscript(t, notaryKey, sessionKey, tc.claim, fillUnits)
			if err := v.Verify(context.Background(), raw, testTerms, fillUnits); err == nil {
				t.Fatal("verify accepted a mismatched payment claim")
			}
		})
	}
}

func TestTranscriptVerifyBindsFillQuantity(t *testing.T) {
	notaryKey, sessionKey := newKeys(t)
	v := NewTranscriptVerifier(ethcrypto.PubkeyToAddress(notaryKey.PublicKey))

	// Signed for one fill quantity, presented for another. The claim digest
	// covers the quantity, so the signature no longer recovers to the
	// session key.
	claim := PaymentClaim{AmountMinor: 22_500_00, Currency: "USD", Method: "wise"}
	raw := signTranscript(t, notaryKey, sessionKey, claim, 500_000)

	if err := v.Verify(context.Background(), raw, testTerms, 400_000); err == nil {
		t.Fatal("verify accepted a proof for a different fill quantity")
	}
}

func TestTranscriptVerifyRejectsMalformed(t *testing.T) {
	notaryKey, _ := newKeys(t)
	v := NewTranscriptVerifier(ethcrypto.PubkeyToAddress(notaryKey.PublicKey))

	cases := []struct {
		name string
		raw  []byte
	}{
		{"not json", []byte("not a transcript")},
		{"wrong version", mustJSON(t, Transcript{Version: 2})},
		{"short hash", mustJSON(t, Transcript{Version: 1, TranscriptHash: "abcd"})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := v.Verify(context.Background(), tc.raw, testTerms, 1); err == nil {
				t.Fatal("verify accepted a malformed proof")
			}
		})
	}
}

func TestStaticVerifiers(t *testing.T) {
	if err := AcceptAll().Verify(context.Background(), []byte("anything"), testTerms, 1); err != nil {
		t.Fatalf("AcceptAll rejected: %v", err)
	}
	if err := RejectAll().Verify(context.Background(), []byte("anything"), testTerms, 1); err == nil {
		t.Fatal("RejectAll accepted")
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}
