package crypto

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/allocatorhq/compactd/internal/domain"
)

// eip712DomainTypeHash is keccak256 of the EIP-712 domain type string.
var eip712DomainTypeHash = PackedTypeString(
	"EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)",
)

const (
	domainName    = "The Compact"
	domainVersion = "1"

	singleTypeStringBase = "Compact(address arbiter,address sponsor,uint256 nonce,uint256 expires,uint256 id,uint256 amount)"
	batchTypeStringBase  = "BatchCompact(address arbiter,address sponsor,uint256 nonce,uint256 expires,Lock[] commitments)Lock(bytes12 lockTag,address token,uint256 amount)"
	lockTypeString       = "Lock(bytes12 lockTag,address token,uint256 amount)"
)

// HashBuilder assembles the three compact-shape claim hashes from
// validated domain entities and composes the final EIP-712 digest that the
// Signer signs.
type HashBuilder struct {
	verifyingContract string
}

// NewHashBuilder returns a HashBuilder bound to the protocol's fixed
// verifying contract address.
func NewHashBuilder(verifyingContract string) *HashBuilder {
	return &HashBuilder{verifyingContract: verifyingContract}
}

// DomainSeparator returns keccak256(abiEncode(EIP712_DOMAIN_TYPEHASH,
// keccak256(name), keccak256(version), chainId, verifyingContract)) for the
// given notarization chain.
func (b *HashBuilder) DomainSeparator(chainID *big.Int) ([]byte, error) {
	typeHashWord, err := WordBytes32(eip712DomainTypeHash)
	if err != nil {
		return nil, err
	}
	nameHashWord, err := WordBytes32(Keccak256([]byte(domainName)))
	if err != nil {
		return nil, err
	}
	versionHashWord, err := WordBytes32(Keccak256([]byte(domainVersion)))
	if err != nil {
		return nil, err
	}
	chainWord, err := WordUint256(chainID)
	if err != nil {
		return nil, err
	}
	contractWord, err := WordAddress(b.verifyingContract)
	if err != nil {
		return nil, err
	}
	return HashWords(typeHashWord, nameHashWord, versionHashWord, chainWord, contractWord), nil
}

// Digest composes the universal EIP-191/EIP-712 signing digest:
// keccak256(0x1901 || domainSeparator || claimHash).
func (b *HashBuilder) Digest(chainID *big.Int, claimHash []byte) ([]byte, error) {
	domainSep, err := b.DomainSeparator(chainID)
	if err != nil {
		return nil, err
	}
	if len(claimHash) != 32 {
		return nil, &EncodingError{Kind: ErrWidth, Detail: "claim hash must be 32 bytes"}
	}
	prefix := []byte{0x19, 0x01}
	return Keccak256(prefix, domainSep, claimHash), nil
}

// lockWords encodes a single Lock(bytes12,address,uint256) tuple's member
// words, concatenated (not hashed) for use inside a dynamic array hash.
func lockWords(c domain.Commitment) ([]byte, error) {
	tagBytes, err := decodeFixed(c.LockTag, 12)
	if err != nil {
		return nil, err
	}
	tagWord, err := WordBytes12(tagBytes)
	if err != nil {
		return nil, err
	}
	tokenWord, err := WordAddress(c.Token)
	if err != nil {
		return nil, err
	}
	amountWord, err := WordUint256(c.Amount.Int())
	if err != nil {
		return nil, err
	}
	return EncodeWords(tagWord, tokenWord, amountWord), nil
}

// decodeFixed hex-decodes a 0x-prefixed string and requires it be exactly n
// bytes.
func decodeFixed(s string, n int) ([]byte, error) {
	b := common.FromHex(s)
	if len(b) != n {
		return nil, &EncodingError{Kind: ErrWidth, Detail: fmt.Sprintf("expected %d bytes, got %d (%q)", n, len(b), s)}
	}
	return b, nil
}

// commitmentsHash canonicalizes commitments by ascending lockId, rejects
// duplicate locks, and returns keccak256 of the concatenated per-lock
// struct hashes — the "Lock[] commitments" dynamic-array encoding.
func commitmentsHash(commitments []domain.Commitment) ([]byte, error) {
	if len(commitments) == 0 {
		return nil, &domain.ValidationError{Field: "commitments", Reason: "at least one commitment is required"}
	}
	type keyed struct {
		lockID *domain.BigInt
		c      domain.Commitment
	}
	ks := make([]keyed, 0, len(commitments))
	seen := make(map[string]struct{}, len(commitments))
	for _, c := range commitments {
		id, err := c.LockID()
		if err != nil {
			return nil, err
		}
		key := id.String()
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("crypto: duplicate lock id %s in batch", id.Hex())
		}
		seen[key] = struct{}{}
		ks = append(ks, keyed{lockID: id, c: c})
	}
	sort.Slice(ks, func(i, j int) bool { return ks[i].lockID.Cmp(ks[j].lockID) < 0 })

	lockHash := PackedTypeString(lockTypeString)
	lockHashWord, err := WordBytes32(lockHash)
	if err != nil {
		return nil, err
	}

	structHashes := make([]byte, 0, 32*len(ks))
	for _, k := range ks {
		members, err := lockWords(k.c)
		if err != nil {
			return nil, err
		}
		h := Keccak256(EncodeWords(lockHashWord), members)
		structHashes = append(structHashes, h...)
	}
	return Keccak256(structHashes), nil
}

// ClaimHashSingle computes the claim hash for a VariantSingle compact: one
// element, one commitment.
func (b *HashBuilder) ClaimHashSingle(c domain.Compact, el domain.Element, commitment domain.Commitment) ([]byte, error) {
	lockID, err := commitment.LockID()
	if err != nil {
		return nil, err
	}

	typeString := singleTypeStringBase
	var witnessWord word
	hasWitness := c.WitnessTypeString != nil
	if hasWitness {
		typeString = "Compact(address arbiter,address sponsor,uint256 nonce,uint256 expires,uint256 id,uint256 amount,Mandate mandate)Mandate(" + *c.WitnessTypeString + ")"
		witnessWord, err = WordBytes32(common.FromHex(derefOr(c.WitnessHash, "")))
		if err != nil {
			return nil, err
		}
	}
	typeHashWord, err := WordBytes32(PackedTypeString(typeString))
	if err != nil {
		return nil, err
	}
	arbiterWord, err := WordAddress(el.Arbiter)
	if err != nil {
		return nil, err
	}
	sponsorWord, err := WordAddress(c.Sponsor)
	if err != nil {
		return nil, err
	}
	nonceWord, err := WordUint256(c.Nonce.Int())
	if err != nil {
		return nil, err
	}
	expiresWord, err := WordUint256(big.NewInt(c.Expires.Unix()))
	if err != nil {
		return nil, err
	}
	idWord, err := WordUint256(lockID.Int())
	if err != nil {
		return nil, err
	}
	amountWord, err := WordUint256(commitment.Amount.Int())
	if err != nil {
		return nil, err
	}

	words := []word{typeHashWord, arbiterWord, sponsorWord, nonceWord, expiresWord, idWord, amountWord}
	if hasWitness {
		words = append(words, witnessWord)
	}
	return HashWords(words...), nil
}

// ClaimHashBatch computes the claim hash for a VariantBatch compact: one
// element, one or more commitments, canonicalized by ascending lockId.
func (b *HashBuilder) ClaimHashBatch(c domain.Compact, el domain.Element, commitments []domain.Commitment) ([]byte, error) {
	commHash, err := commitmentsHash(commitments)
	if err != nil {
		return nil, err
	}

	typeString := batchTypeStringBase
	var witnessWord word
	hasWitness := c.WitnessTypeString != nil
	if hasWitness {
		typeString = "BatchCompact(address arbiter,address sponsor,uint256 nonce,uint256 expires,Lock[] commitments,Mandate mandate)" +
			lockTypeString + "Mandate(" + *c.WitnessTypeString + ")"
		witnessWord, err = WordBytes32(common.FromHex(derefOr(c.WitnessHash, "")))
		if err != nil {
			return nil, err
		}
	}
	typeHashWord, err := WordBytes32(PackedTypeString(typeString))
	if err != nil {
		return nil, err
	}
	arbiterWord, err := WordAddress(el.Arbiter)
	if err != nil {
		return nil, err
	}
	sponsorWord, err := WordAddress(c.Sponsor)
	if err != nil {
		return nil, err
	}
	nonceWord, err := WordUint256(c.Nonce.Int())
	if err != nil {
		return nil, err
	}
	expiresWord, err := WordUint256(big.NewInt(c.Expires.Unix()))
	if err != nil {
		return nil, err
	}
	commitmentsWord, err := WordBytes32(commHash)
	if err != nil {
		return nil, err
	}

	words := []word{typeHashWord, arbiterWord, sponsorWord, nonceWord, expiresWord, commitmentsWord}
	if hasWitness {
		words = append(words, witnessWord)
	}
	return HashWords(words...), nil
}

// ClaimHashMultichain computes the claim hash for a VariantMultichain
// compact: one root with sponsor/nonce/expires and one or more elements,
// each carrying its own chainId, commitments, and witness hash. Element
// order is preserved as given — it is semantically significant.
func (b *HashBuilder) ClaimHashMultichain(c domain.Compact, elements []domain.Element) ([]byte, error) {
	if len(elements) == 0 {
		return nil, &domain.ValidationError{Field: "elements", Reason: "at least one element is required"}
	}
	if c.WitnessTypeString == nil {
		return nil, &domain.ValidationError{Field: "witnessTypeString", Reason: "required for multichain compacts"}
	}
	witnessTypeString := *c.WitnessTypeString

	elementTypeString := "Element(address arbiter,uint256 chainId,Lock[] commitments,Mandate mandate)" +
		lockTypeString + "Mandate(" + witnessTypeString + ")"
	elementTypeHashWord, err := WordBytes32(PackedTypeString(elementTypeString))
	if err != nil {
		return nil, err
	}

	elementHashes := make([]byte, 0, 32*len(elements))
	for _, el := range elements {
		if el.MandateHash == nil {
			return nil, &domain.ValidationError{Field: "elements[].mandateHash", Reason: "required for multichain elements"}
		}
		commHash, err := commitmentsHash(el.Commitments)
		if err != nil {
			return nil, err
		}
		arbiterWord, err := WordAddress(el.Arbiter)
		if err != nil {
			return nil, err
		}
		chainWord, err := WordUint256(el.ChainID.Int())
		if err != nil {
			return nil, err
		}
		commitmentsWord, err := WordBytes32(commHash)
		if err != nil {
			return nil, err
		}
		witnessWord, err := WordBytes32(common.FromHex(*el.MandateHash))
		if err != nil {
			return nil, err
		}
		h := HashWords(elementTypeHashWord, arbiterWord, chainWord, commitmentsWord, witnessWord)
		elementHashes = append(elementHashes, h...)
	}
	elementsHash := Keccak256(elementHashes)

	rootTypeString := "MultichainCompact(address sponsor,uint256 nonce,uint256 expires,Element[] elements)" +
		elementTypeString
	rootTypeHashWord, err := WordBytes32(PackedTypeString(rootTypeString))
	if err != nil {
		return nil, err
	}
	sponsorWord, err := WordAddress(c.Sponsor)
	if err != nil {
		return nil, err
	}
	nonceWord, err := WordUint256(c.Nonce.Int())
	if err != nil {
		return nil, err
	}
	expiresWord, err := WordUint256(big.NewInt(c.Expires.Unix()))
	if err != nil {
		return nil, err
	}
	elementsHashWord, err := WordBytes32(elementsHash)
	if err != nil {
		return nil, err
	}

	return HashWords(rootTypeHashWord, sponsorWord, nonceWord, expiresWord, elementsHashWord), nil
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
