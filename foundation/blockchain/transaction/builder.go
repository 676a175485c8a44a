package transaction

import (
	"crypto/ecdsa"
	"encoding/json"
	"time"

	"github.com/meridianlabs/ledgerd/foundation/blockchain/signature"
)

// Sign signs tx's canonical body with privateKey and returns a copy with
// Sig populated. The signing address is derived from privateKey, not
// taken from tx.Sender, so callers should set Sender to match the key
// before calling Sign.
func Sign(tx Transaction, privateKey *ecdsa.PrivateKey) (Transaction, error) {
	body, err := Canonicalize(tx)
	if err != nil {
		return Transaction{}, err
	}

	v, r, s, err := signature.Sign(json.RawMessage(body), privateKey)
	if err != nil {
		return Transaction{}, err
	}

	tx.Sig = Signature{V: v, R: r, S: s}
	return tx, nil
}

// NewStandard builds and fingerprints a Standard transaction.
func NewStandard(sender, recipient string, amount, fee uint64) (Transaction, error) {
	return New(VariantStandard, sender, recipient, amount, fee)
}

// NewMultiSig builds a pooled-sender transaction awaiting
// requiredSignatures collected signatures before it becomes eligible for
// inclusion.
func NewMultiSig(signers []string, recipient string, amount, fee uint64, requiredSignatures int) (Transaction, error) {
	tx, err := New(VariantMultiSig, poolAddress(signers), recipient, amount, fee)
	if err != nil {
		return Transaction{}, err
	}
	tx.Signers = signers
	tx.RequiredSignatures = requiredSignatures

	return Refingerprint(tx)
}

// CollectSignature appends signerAddr to a MultiSig transaction's
// append-only CollectedSignatures list. It is a no-op (returns tx
// unchanged) if signerAddr already collected or is not among Signers.
// Because CollectedSignatures is excluded from the canonical encoding,
// this never changes tx.ID.
func CollectSignature(tx Transaction, signerAddr string) Transaction {
	if tx.Variant != VariantMultiSig {
		return tx
	}

	found := false
	for _, s := range tx.Signers {
		if s == signerAddr {
			found = true
			break
		}
	}
	if !found {
		return tx
	}

	for _, s := range tx.CollectedSignatures {
		if s == signerAddr {
			return tx
		}
	}

	tx.CollectedSignatures = append(append([]string{}, tx.CollectedSignatures...), signerAddr)
	return tx
}

// NewTimeLocked builds a transaction that is only eligible for inclusion
// once now >= unlockTime (Unix nanoseconds).
func NewTimeLocked(sender, recipient string, amount, fee uint64, unlockTime int64) (Transaction, error) {
	tx, err := New(VariantTimeLocked, sender, recipient, amount, fee)
	if err != nil {
		return Transaction{}, err
	}
	tx.UnlockTime = unixNanoToTime(unlockTime)

	return Refingerprint(tx)
}

// NewDataStorage builds a transaction that pays fee to store data
// on-chain with no transfer side effect.
func NewDataStorage(sender string, data []byte, fee uint64) (Transaction, error) {
	tx, err := New(VariantDataStorage, sender, "", 0, fee)
	if err != nil {
		return Transaction{}, err
	}
	tx.Data = data

	return Refingerprint(tx)
}

// NewSmartContract builds a transaction that invokes the sandboxed
// evaluator against codeRef when included.
func NewSmartContract(sender, codeRef string, args json.RawMessage, amount, fee uint64) (Transaction, error) {
	tx, err := New(VariantSmartContract, sender, "contract:"+codeRef, amount, fee)
	if err != nil {
		return Transaction{}, err
	}
	tx.CodeRef = codeRef
	tx.InvocationArgs = args

	return Refingerprint(tx)
}

func poolAddress(signers []string) string {
	if len(signers) == 0 {
		return ""
	}
	// The pooled sender is deterministic and derived only from the
	// signer set so the same multisig group always hashes to the same
	// pseudo-account regardless of submission order.
	sorted := append([]string{}, signers...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	body, _ := json.Marshal(sorted)
	return "multisig:" + signature.Hash(json.RawMessage(body))
}

func unixNanoToTime(nsec int64) time.Time {
	return time.Unix(0, nsec).UTC()
}
