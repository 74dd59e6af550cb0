package contenthash

import (
	"errors"
	"strings"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/mr-tron/base58/base58"
	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multicodec"
	"github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	ensExampleV0   = "QmRAQB6YaCyidP37UdDnjFY5vQuiBrcqdyoW1CuDgwxkD4"
	ensExampleHash = "0xe3010170122029f2d17be6139079dc48696d1f582a8530eb9805b561eda517e22a892c7e3f1f"
	ensExampleHex  = "0x29f2d17be6139079dc48696d1f582a8530eb9805b561eda517e22a892c7e3f1f"
)

func sum(t *testing.T, data string, code uint64) multihash.Multihash {
	t.Helper()
	mh, err := multihash.Sum([]byte(data), code, -1)
	require.NoError(t, err)
	return mh
}

func TestToCidKnownVector(t *testing.T) {
	v1 := cid.NewCidV1(cid.DagProtobuf, cid.MustParse(ensExampleV0).Hash())

	got, err := ToCid(ensExampleHash)
	require.NoError(t, err)
	assert.Equal(t, v1.String(), got)

	encoded, err := FromCid(v1, multicodec.Ipfs)
	require.NoError(t, err)
	assert.Equal(t, ensExampleHash, encoded)

	d, err := Decode(ensExampleHash)
	require.NoError(t, err)
	assert.Equal(t, multicodec.Ipfs, d.Protocol)
}

func TestProtocolCodes(t *testing.T) {
	assert.Equal(t, multicodec.Code(0xe3), multicodec.Ipfs)
	assert.Equal(t, multicodec.Code(0xe4), multicodec.Swarm)
	assert.Equal(t, multicodec.Code(0xe5), multicodec.Ipns)
}

func TestToCidWithoutPrefix(t *testing.T) {
	withPrefix, err := ToCid(ensExampleHash)
	require.NoError(t, err)
	withoutPrefix, err := ToCid(ensExampleHash[2:])
	require.NoError(t, err)
	assert.Equal(t, withPrefix, withoutPrefix)
}

func TestRoundTrip(t *testing.T) {
	cases := []struct {
		name     string
		cid      cid.Cid
		protocol multicodec.Code
	}{
		{"v0", cid.NewCidV0(sum(t, "v0", multihash.SHA2_256)), multicodec.Ipfs},
		{"v1 dag-pb", cid.NewCidV1(cid.DagProtobuf, sum(t, "pb", multihash.SHA2_256)), multicodec.Ipfs},
		{"v1 raw", cid.NewCidV1(cid.Raw, sum(t, "raw", multihash.SHA2_256)), multicodec.Ipfs},
		{"v1 dag-cbor sha512", cid.NewCidV1(cid.DagCBOR, sum(t, "cbor", multihash.SHA2_512)), multicodec.Ipfs},
		{"swarm", cid.NewCidV1(0xfa, sum(t, "swarm", multihash.SHA2_256)), multicodec.Swarm},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			encoded, err := FromCid(c.cid, c.protocol)
			require.NoError(t, err)

			got, err := ToCid(encoded)
			require.NoError(t, err)
			assert.Equal(t, c.cid.String(), got)

			d, err := Decode(encoded)
			require.NoError(t, err)
			assert.Equal(t, c.protocol, d.Protocol)
			assert.True(t, d.Cid.Equals(c.cid))
		})
	}
}

func TestRoundTripIpnsBase36(t *testing.T) {
	key := cid.NewCidV1(cid.Libp2pKey, sum(t, "peer", multihash.SHA2_256))
	name, err := key.StringOfBase(multibase.Base36)
	require.NoError(t, err)

	encoded, err := FromCidString(name, multicodec.Ipns)
	require.NoError(t, err)

	got, err := ToCid(encoded)
	require.NoError(t, err)
	assert.Equal(t, name, got)
}

func TestToCidMalformed(t *testing.T) {
	inputs := []string{
		"0xnotavalidhash",
		"",
		"0x",
		"0xe3",
		"0xe301",
		"0xe30101701220deadbeef",
		"0x0101701220" + ensExampleHex[2:],
	}
	for _, in := range inputs {
		_, err := ToCid(in)
		require.Error(t, err, in)

		var decodeErr *DecodeError
		require.True(t, errors.As(err, &decodeErr), in)
		assert.Equal(t, in, decodeErr.Input)
		assert.Contains(t, err.Error(), in)
	}
}

func TestFromCidRejectsUnknownProtocol(t *testing.T) {
	_, err := FromCid(cid.MustParse(ensExampleV0), multicodec.Code(0x01bc))
	assert.Error(t, err)

	_, err = FromCid(cid.Undef, multicodec.Ipfs)
	assert.Error(t, err)

	_, err = FromCidString("not-a-cid", multicodec.Ipfs)
	assert.Error(t, err)
}

func TestBytes32(t *testing.T) {
	b32, err := GetBytes32FromIpfsHash(ensExampleV0)
	require.NoError(t, err)
	assert.Equal(t, ensExampleHex, b32)

	back, err := GetIpfsHashFromBytes32(b32)
	require.NoError(t, err)
	assert.Equal(t, ensExampleV0, back)

	back, err = GetIpfsHashFromBytes32(ensExampleHex[2:])
	require.NoError(t, err)
	assert.Equal(t, ensExampleV0, back)
}

func TestBytes32RejectsOtherMultihash(t *testing.T) {
	mh := sum(t, "wide", multihash.SHA2_512)
	_, err := GetBytes32FromIpfsHash(base58.Encode(mh))

	var unsupported *UnsupportedMultihashError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, uint64(multihash.SHA2_512), unsupported.Code)
	assert.Equal(t, 64, unsupported.Length)
}

func TestBytes32Malformed(t *testing.T) {
	var decodeErr *DecodeError

	_, err := GetBytes32FromIpfsHash("0OIl")
	assert.True(t, errors.As(err, &decodeErr))

	_, err = GetIpfsHashFromBytes32("0x1234")
	assert.True(t, errors.As(err, &decodeErr))

	_, err = GetIpfsHashFromBytes32("0xzz")
	assert.True(t, errors.As(err, &decodeErr))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "0xe301abcd", Normalize("0XE301ABCD"))
	assert.Equal(t, "0xe301abcd", Normalize(" e301abcd "))
	assert.Equal(t, ensExampleHash, Normalize(strings.ToUpper(ensExampleHash[2:])))
}
