package offers

import (
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/danmuck/onionoffers/internal/protocol"
	"github.com/danmuck/onionoffers/internal/protocol/schema"
	"github.com/danmuck/onionoffers/internal/protocol/tlv"
)

var (
	leafTag   = []byte("LnLeaf")
	nonceTag  = []byte("LnNonce")
	branchTag = []byte("LnBranch")
)

func signatureTag(messageName string) []byte {
	return []byte("lightning" + messageName + "signature")
}

func isSignatureType(typ uint64) bool {
	return typ >= schema.TypeSignature && typ <= 1000
}

func taggedHash(tag []byte, parts ...[]byte) [32]byte {
	th := sha256.Sum256(tag)
	h := sha256.New()
	h.Write(th[:])
	h.Write(th[:])
	for _, p := range parts {
		h.Write(p)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// merkleRoot hashes every non-signature record into the tree used for
// message signatures.
func merkleRoot(records []tlv.Record) [32]byte {
	var first []byte
	leaves := make([][32]byte, 0, 2*len(records))
	for _, rec := range records {
		if isSignatureType(rec.Type) {
			continue
		}
		encoded := tlv.EncodeRecord(rec)
		if first == nil {
			first = encoded
		}
		leaves = append(leaves, taggedHash(leafTag, encoded))
		leaves = append(leaves, taggedHash(append(append([]byte{}, nonceTag...), first...), tlv.AppendBigSize(nil, rec.Type)))
	}
	if len(leaves) == 0 {
		return taggedHash(leafTag)
	}
	n := len(leaves)
	for level := 0; ; level++ {
		step := 2 << level
		offset := step / 2
		if offset >= n {
			break
		}
		for i, j := 0, offset; j < n; i, j = i+step, j+step {
			leaves[i] = branchHash(leaves[i], leaves[j])
		}
	}
	return leaves[0]
}

func branchHash(a, b [32]byte) [32]byte {
	for i := range a {
		if a[i] == b[i] {
			continue
		}
		if a[i] > b[i] {
			a, b = b, a
		}
		break
	}
	return taggedHash(branchTag, a[:], b[:])
}

func signatureDigest(messageName string, records []tlv.Record) [32]byte {
	root := merkleRoot(records)
	return taggedHash(signatureTag(messageName), root[:])
}

func sign(messageName string, records []tlv.Record, key *btcec.PrivateKey) ([]byte, error) {
	digest := signatureDigest(messageName, records)
	sig, err := schnorr.Sign(key, digest[:])
	if err != nil {
		return nil, fmt.Errorf("offers: sign %s: %w", messageName, err)
	}
	return sig.Serialize(), nil
}

// verify checks the signature record against pubkey. Unparseable keys or
// signatures are decode failures; a mismatch is a signature failure.
func verify(messageName string, records []tlv.Record, pubkey, signature []byte) *ParseError {
	pub, err := btcec.ParsePubKey(pubkey)
	if err != nil {
		return decodeError(fmt.Errorf("%s pubkey: %v: %w", messageName, err, protocol.ErrInvalidEncoding))
	}
	sig, err := schnorr.ParseSignature(signature)
	if err != nil {
		return decodeError(fmt.Errorf("%s signature: %v: %w", messageName, err, protocol.ErrInvalidEncoding))
	}
	digest := signatureDigest(messageName, records)
	if !sig.Verify(digest[:], pub) {
		return signatureError(fmt.Errorf("%s: %w", messageName, ErrSignatureMismatch))
	}
	return nil
}
