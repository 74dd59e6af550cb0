package contenthash

import (
	"encoding/hex"
	"fmt"

	"github.com/mr-tron/base58/base58"
	"github.com/multiformats/go-multihash"
)

const sha256DigestLength = 32

// sha2-256 code (0x12) followed by the digest size (0x20)
var sha256Prefix = []byte{byte(multihash.SHA2_256), sha256DigestLength}

// GetBytes32FromIpfsHash turns a base58 Qm... hash into the 0x prefixed
// 32 byte digest stored on chain, dropping the 0x1220 multihash prefix.
func GetBytes32FromIpfsHash(ipfsHash string) (string, error) {
	raw, err := base58.Decode(ipfsHash)
	if err != nil {
		return "", &DecodeError{Input: ipfsHash, Err: err}
	}
	mh, err := multihash.Decode(raw)
	if err != nil {
		return "", &DecodeError{Input: ipfsHash, Err: err}
	}
	if mh.Code != multihash.SHA2_256 || mh.Length != sha256DigestLength {
		return "", &UnsupportedMultihashError{Input: ipfsHash, Code: mh.Code, Length: mh.Length}
	}
	return "0x" + hex.EncodeToString(mh.Digest), nil
}

// GetIpfsHashFromBytes32 restores the base58 hash from an on-chain bytes32
// digest by prepending the sha2-256 multihash prefix.
func GetIpfsHashFromBytes32(bytes32Hex string) (string, error) {
	digest, err := hex.DecodeString(trimHexPrefix(bytes32Hex))
	if err != nil {
		return "", &DecodeError{Input: bytes32Hex, Err: err}
	}
	if len(digest) != sha256DigestLength {
		return "", &DecodeError{Input: bytes32Hex, Err: fmt.Errorf("want %d bytes, got %d", sha256DigestLength, len(digest))}
	}
	return base58.Encode(append(append([]byte{}, sha256Prefix...), digest...)), nil
}
