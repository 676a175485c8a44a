// Package transaction implements the tagged-variant transaction model: its
// canonical serialization, fingerprinting, structural validation, and
// per-variant inclusion eligibility. Every other component (ledger,
// consensus, peer) works exclusively in terms of the Transaction type
// defined here.
package transaction

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/meridianlabs/ledgerd/foundation/blockchain/signature"
)

// MaxMetadataBytes is the size budget shared by the Data and Metadata
// blobs across every variant.
const MaxMetadataBytes = 1024

// Variant tags a Transaction with which of the five shapes it is.
type Variant string

// Set of known transaction variants.
const (
	VariantStandard      Variant = "standard"
	VariantMultiSig      Variant = "multisig"
	VariantTimeLocked    Variant = "timelocked"
	VariantDataStorage   Variant = "data_storage"
	VariantSmartContract Variant = "smart_contract"
)

// Signature carries the [V|R|S] parts produced by signature.Sign.
type Signature struct {
	V *big.Int `json:"v"`
	R *big.Int `json:"r"`
	S *big.Int `json:"s"`
}

// IsZero reports whether no signature has been attached.
func (s Signature) IsZero() bool {
	return s.V == nil || s.R == nil || s.S == nil
}

// Transaction is the tagged record shared by every variant. Only the
// fields relevant to Variant are populated; unused fields are left at
// their zero value.
type Transaction struct {
	ID        string    `json:"id"`
	Variant   Variant   `json:"variant"`
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient"`
	Amount    uint64    `json:"amount"`
	Fee       uint64    `json:"fee"`
	Timestamp time.Time `json:"timestamp"`
	Metadata  []byte    `json:"metadata,omitempty"`
	Sig       Signature `json:"signature"`

	// MultiSig fields.
	Signers             []string `json:"signers,omitempty"`
	RequiredSignatures  int      `json:"required_signatures,omitempty"`
	CollectedSignatures []string `json:"collected_signatures,omitempty"`

	// TimeLocked fields.
	UnlockTime time.Time `json:"unlock_time,omitempty"`

	// DataStorage fields.
	Data []byte `json:"data,omitempty"`

	// SmartContract fields.
	CodeRef         string          `json:"code_ref,omitempty"`
	InvocationArgs  json.RawMessage `json:"invocation_args,omitempty"`
}

// Effect is an explicit balance delta an evaluated SmartContract may
// produce. Positive Delta credits Address; negative debits it.
type Effect struct {
	Address string
	Delta   int64
}

// canonical is the deterministic, signature-excluding view of a
// Transaction used for fingerprinting and signing; the wire carries the
// full Transaction JSON instead. Field order is fixed by the struct declaration and
// encoding/json preserves it for a struct (unlike a map).
type canonical struct {
	Variant             Variant  `json:"variant"`
	Sender              string   `json:"sender"`
	Recipient           string   `json:"recipient"`
	Amount              uint64   `json:"amount"`
	Fee                 uint64   `json:"fee"`
	Timestamp           int64    `json:"timestamp"`
	Metadata            []byte   `json:"metadata,omitempty"`
	Signers             []string `json:"signers,omitempty"`
	RequiredSignatures  int      `json:"required_signatures,omitempty"`
	UnlockTime          int64    `json:"unlock_time,omitempty"`
	Data                []byte   `json:"data,omitempty"`
	CodeRef             string   `json:"code_ref,omitempty"`
	InvocationArgs      json.RawMessage `json:"invocation_args,omitempty"`
}

// Canonicalize returns the deterministic encoding of tx used for
// fingerprinting and signing. It excludes the signature and
// the append-only CollectedSignatures field, per the fingerprint
// invariant: id is a pure function of content, and collected signatures
// mutate after admission.
func Canonicalize(tx Transaction) ([]byte, error) {
	c := canonical{
		Variant:            tx.Variant,
		Sender:             tx.Sender,
		Recipient:          tx.Recipient,
		Amount:             tx.Amount,
		Fee:                tx.Fee,
		Timestamp:          tx.Timestamp.UTC().UnixNano(),
		Metadata:           tx.Metadata,
		Signers:            tx.Signers,
		RequiredSignatures: tx.RequiredSignatures,
		UnlockTime:         tx.UnlockTime.UTC().UnixNano(),
		Data:               tx.Data,
		CodeRef:            tx.CodeRef,
		InvocationArgs:     tx.InvocationArgs,
	}

	return json.Marshal(c)
}

// Fingerprint returns the content-addressed id for tx: the hash of its
// canonical serialization.
func Fingerprint(tx Transaction) (string, error) {
	data, err := Canonicalize(tx)
	if err != nil {
		return "", err
	}

	return signature.Hash(json.RawMessage(data)), nil
}

// New builds a Transaction of the given variant, populating Timestamp and
// ID (fingerprint) from the supplied fields. Callers set variant-specific
// fields on the returned value before signing, except where New already
// requires them as constructor arguments.
func New(variant Variant, sender, recipient string, amount, fee uint64) (Transaction, error) {
	tx := Transaction{
		Variant:   variant,
		Sender:    sender,
		Recipient: recipient,
		Amount:    amount,
		Fee:       fee,
		Timestamp: time.Now().UTC(),
	}

	id, err := Fingerprint(tx)
	if err != nil {
		return Transaction{}, err
	}
	tx.ID = id

	return tx, nil
}

// Refingerprint recomputes and overwrites tx.ID. Callers use this after
// mutating any canonicalized field (for example, appending a MultiSig
// collected signature does NOT require this, since collected signatures
// are excluded from the canonical form).
func Refingerprint(tx Transaction) (Transaction, error) {
	id, err := Fingerprint(tx)
	if err != nil {
		return Transaction{}, err
	}
	tx.ID = id
	return tx, nil
}

// VerifyStructure checks field ranges, metadata size, variant-specific
// required fields, and that Fingerprint(tx) equals tx.ID.
func VerifyStructure(tx Transaction) error {
	if tx.Amount > 0 && int64(tx.Amount) < 0 {
		return errors.New("amount overflow")
	}

	if len(tx.Metadata) > MaxMetadataBytes {
		return fmt.Errorf("metadata exceeds %d bytes", MaxMetadataBytes)
	}
	if len(tx.Data) > MaxMetadataBytes {
		return fmt.Errorf("data exceeds %d bytes", MaxMetadataBytes)
	}

	wantID, err := Fingerprint(tx)
	if err != nil {
		return err
	}
	if wantID != tx.ID {
		return errors.New("fingerprint mismatch")
	}

	switch tx.Variant {
	case VariantStandard:
		// no extra fields required.

	case VariantMultiSig:
		if len(tx.Signers) == 0 {
			return errors.New("multisig transaction requires signers")
		}
		if tx.RequiredSignatures <= 0 || tx.RequiredSignatures > len(tx.Signers) {
			return errors.New("multisig transaction has an invalid required_signatures value")
		}

	case VariantTimeLocked:
		if tx.UnlockTime.IsZero() {
			return errors.New("timelocked transaction requires unlock_time")
		}

	case VariantDataStorage:
		if len(tx.Data) == 0 {
			return errors.New("data_storage transaction requires data")
		}

	case VariantSmartContract:
		if tx.CodeRef == "" {
			return errors.New("smart_contract transaction requires code_ref")
		}

	default:
		return fmt.Errorf("unknown transaction variant %q", tx.Variant)
	}

	if err := verifySignatureHook(tx); err != nil {
		return err
	}

	return nil
}

// verifySignatureHook is the designated, explicit extension point spec'd
// for signature verification. A minimal implementation MAY leave this a
// no-op, but it must remain visible and documented as such rather than
// silently skipped; SignatureVerificationEnabled makes the choice
// observable as a package-level switch, on by default. No configuration
// option sets it.
var SignatureVerificationEnabled = true

func verifySignatureHook(tx Transaction) error {
	if !SignatureVerificationEnabled {
		return nil
	}
	if tx.Sender == SystemSender {
		return nil
	}
	if tx.Sig.IsZero() {
		return errors.New("missing signature")
	}
	return VerifySignature(tx)
}

// SystemSender identifies protocol-originated transactions, which carry no
// signature. Block rewards are not transactions: they are credited through
// the block header's Reward field.
const SystemSender = "system"

// VerifySignature recovers the signing address from tx.Sig and confirms
// it matches tx.Sender. It is the concrete implementation behind the
// verify_signature hook; it is wired to the ECDSA stamp scheme in
// package signature (go-ethereum's secp256k1 primitives), not a
// production-grade signing service.
func VerifySignature(tx Transaction) error {
	body, err := Canonicalize(tx)
	if err != nil {
		return err
	}

	if err := signature.VerifySignature(json.RawMessage(body), tx.Sig.V, tx.Sig.R, tx.Sig.S); err != nil {
		return err
	}

	from, err := signature.FromAddress(json.RawMessage(body), tx.Sig.V, tx.Sig.R, tx.Sig.S)
	if err != nil {
		return err
	}

	if !bytes.EqualFold([]byte(from), []byte(tx.Sender)) {
		return fmt.Errorf("signature does not match sender, got %s, exp %s", from, tx.Sender)
	}

	return nil
}

// IsEligibleForInclusion reports whether tx may be drawn into a block
// being assembled at time now: MultiSig must be fully signed, TimeLocked
// must have reached its unlock time, SmartContract's code must resolve.
func IsEligibleForInclusion(tx Transaction, now time.Time, resolveCode func(ref string) bool) bool {
	switch tx.Variant {
	case VariantMultiSig:
		return len(tx.CollectedSignatures) >= tx.RequiredSignatures

	case VariantTimeLocked:
		return !now.Before(tx.UnlockTime)

	case VariantSmartContract:
		if resolveCode == nil {
			return true
		}
		return resolveCode(tx.CodeRef)

	default:
		return true
	}
}

// Hash implements merkle.Hashable[Transaction] so a slice of Transaction
// can be organized into a Merkle tree for a block's transaction root.
func (tx Transaction) Hash() ([]byte, error) {
	return []byte(tx.ID), nil
}

// Equals implements merkle.Hashable[Transaction].
func (tx Transaction) Equals(other Transaction) bool {
	return tx.ID == other.ID
}
