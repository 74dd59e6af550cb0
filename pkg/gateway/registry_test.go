package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildURL(t *testing.T) {
	cases := []struct {
		name Name
		want string
	}{
		{Storacha, "https://bafy123.ipfs.w3s.link"},
		{IPFS, "https://ipfs.io/ipfs/bafy123"},
		{Pinata, "https://gateway.pinata.cloud/ipfs/bafy123"},
		{Cloudflare, "https://cloudflare-ipfs.com/ipfs/bafy123"},
		{NFTStorage, "https://nftstorage.link/ipfs/bafy123"},
		{Dweb, "https://dweb.link/ipfs/bafy123"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, BuildURL("bafy123", c.name), c.name)
	}
}

func TestGetIpfsGatewayURL(t *testing.T) {
	assert.Equal(t, "https://gateway.pinata.cloud/ipfs/bafy123", GetIpfsGatewayURL("bafy123", Pinata))
	assert.Equal(t, "https://bafy123.ipfs.w3s.link", GetIpfsGatewayURL("bafy123"))

	assert.NotPanics(t, func() {
		assert.Equal(t, "https://bafy123.ipfs.w3s.link", GetIpfsGatewayURL("bafy123", Name("nope")))
	})
}

func TestPrimaryOrderIsPrefixOfExtended(t *testing.T) {
	primary := PrimaryOrder()
	extended := ExtendedOrder()
	require.Less(t, len(primary), len(extended))
	for i := range primary {
		assert.Equal(t, primary[i], extended[i])
	}
}

func TestOrdersAreCopies(t *testing.T) {
	order := PrimaryOrder()
	order[0] = Dweb
	assert.Equal(t, Storacha, PrimaryOrder()[0])
}

func TestBuildURLLists(t *testing.T) {
	primary := BuildPrimaryURLs("bafy123")
	extended := BuildExtendedURLs("bafy123")
	assert.Len(t, primary, 3)
	assert.Len(t, extended, 6)
	assert.Equal(t, primary, extended[:3])
	assert.Equal(t, "https://dweb.link/ipfs/bafy123", extended[5])
}

func TestParseName(t *testing.T) {
	n, ok := ParseName(" Pinata ")
	assert.True(t, ok)
	assert.Equal(t, Pinata, n)

	n, ok = ParseName("unknown")
	assert.False(t, ok)
	assert.Equal(t, DefaultGateway, n)
}
