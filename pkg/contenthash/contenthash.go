// Package contenthash decodes EIP-1577 content-hash values into CIDs.
//
// A content-hash is the hex encoding of a protocol code varint followed by
// the binary CID, e.g. 0xe301017012... for an ipfs-ns dag-pb CIDv1.
package contenthash

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multicodec"
	"github.com/multiformats/go-varint"
)

var (
	errEmpty   = errors.New("empty content hash")
	errNoCid   = errors.New("content hash carries no CID")
	errUnknown = errors.New("unsupported content hash protocol")
)

// Decoded is a content-hash split into its protocol and CID.
type Decoded struct {
	Protocol multicodec.Code
	Cid      cid.Cid
}

// String renders the CID the way it is addressed on gateways: ipns names in
// base36, everything else in the CID's default encoding.
func (d Decoded) String() (string, error) {
	if d.Protocol == multicodec.Ipns && d.Cid.Version() == 1 {
		return d.Cid.StringOfBase(multibase.Base36)
	}
	return d.Cid.String(), nil
}

func supported(code multicodec.Code) bool {
	switch code {
	case multicodec.Ipfs, multicodec.Ipns, multicodec.Swarm:
		return true
	}
	return false
}

func trimHexPrefix(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s[2:]
	}
	return s
}

// Normalize lowercases contentHash and gives it a 0x prefix. It does not
// validate the input.
func Normalize(contentHash string) string {
	return "0x" + strings.ToLower(trimHexPrefix(contentHash))
}

// Decode parses a content-hash. The 0x prefix is optional.
func Decode(contentHash string) (Decoded, error) {
	raw := trimHexPrefix(contentHash)
	if raw == "" {
		return Decoded{}, &DecodeError{Input: contentHash, Err: errEmpty}
	}
	buf, err := hex.DecodeString(raw)
	if err != nil {
		return Decoded{}, &DecodeError{Input: contentHash, Err: err}
	}

	code, n, err := varint.FromUvarint(buf)
	if err != nil {
		return Decoded{}, &DecodeError{Input: contentHash, Err: fmt.Errorf("protocol code: %w", err)}
	}
	protocol := multicodec.Code(code)
	if !supported(protocol) {
		return Decoded{}, &DecodeError{Input: contentHash, Err: fmt.Errorf("%w 0x%x", errUnknown, code)}
	}
	if len(buf) == n {
		return Decoded{}, &DecodeError{Input: contentHash, Err: errNoCid}
	}

	c, err := cid.Cast(buf[n:])
	if err != nil {
		return Decoded{}, &DecodeError{Input: contentHash, Err: err}
	}
	return Decoded{Protocol: protocol, Cid: c}, nil
}

// ToCid decodes a content-hash to its canonical CID string.
func ToCid(contentHash string) (string, error) {
	d, err := Decode(contentHash)
	if err != nil {
		return "", err
	}
	s, err := d.String()
	if err != nil {
		return "", &DecodeError{Input: contentHash, Err: err}
	}
	return s, nil
}

// FromCid encodes c as a 0x prefixed content-hash for protocol. The CID
// version is kept as is so that ToCid(FromCid(c)) == c.String().
func FromCid(c cid.Cid, protocol multicodec.Code) (string, error) {
	if !supported(protocol) {
		return "", fmt.Errorf("%w 0x%x", errUnknown, uint64(protocol))
	}
	if !c.Defined() {
		return "", errNoCid
	}
	buf := append(varint.ToUvarint(uint64(protocol)), c.Bytes()...)
	return "0x" + hex.EncodeToString(buf), nil
}

// FromCidString parses s in any multibase and encodes it for protocol.
func FromCidString(s string, protocol multicodec.Code) (string, error) {
	c, err := cid.Decode(s)
	if err != nil {
		return "", fmt.Errorf("parse cid %q: %w", s, err)
	}
	return FromCid(c, protocol)
}
