package gateway

import "strings"

// Name identifies one of the known public IPFS HTTP gateways.
type Name string

const (
	Storacha   Name = "storacha"
	IPFS       Name = "ipfs"
	Pinata     Name = "pinata"
	Cloudflare Name = "cloudflare"
	NFTStorage Name = "nftstorage"
	Dweb       Name = "dweb"

	// DefaultGateway is used for unknown names and when no name is given.
	DefaultGateway = Storacha
)

var (
	primaryOrder = [...]Name{Storacha, IPFS, Pinata}

	extendedOrder = [...]Name{Storacha, IPFS, Pinata, Cloudflare, NFTStorage, Dweb}

	pathGateways = map[Name]string{
		IPFS:       "https://ipfs.io/ipfs/",
		Pinata:     "https://gateway.pinata.cloud/ipfs/",
		Cloudflare: "https://cloudflare-ipfs.com/ipfs/",
		NFTStorage: "https://nftstorage.link/ipfs/",
		Dweb:       "https://dweb.link/ipfs/",
	}
)

// BuildURL returns the URL serving cid on the named gateway. Names outside
// the registry resolve to the storacha subdomain gateway.
func BuildURL(cid string, name Name) string {
	if prefix, ok := pathGateways[name]; ok {
		return prefix + cid
	}
	return "https://" + cid + ".ipfs.w3s.link"
}

// PrimaryOrder is the gateway order used for content fetch and decode.
func PrimaryOrder() []Name {
	return append([]Name(nil), primaryOrder[:]...)
}

// ExtendedOrder adds the image display fallbacks after the primary gateways.
func ExtendedOrder() []Name {
	return append([]Name(nil), extendedOrder[:]...)
}

func BuildPrimaryURLs(cid string) []string {
	return buildURLs(cid, primaryOrder[:])
}

func BuildExtendedURLs(cid string) []string {
	return buildURLs(cid, extendedOrder[:])
}

func buildURLs(cid string, order []Name) []string {
	urls := make([]string, 0, len(order))
	for _, name := range order {
		urls = append(urls, BuildURL(cid, name))
	}
	return urls
}

// GetIpfsGatewayURL builds a single URL; the gateway defaults to storacha.
func GetIpfsGatewayURL(cid string, name ...Name) string {
	if len(name) == 0 {
		return BuildURL(cid, DefaultGateway)
	}
	return BuildURL(cid, name[0])
}

// ParseName maps a user supplied gateway name onto the registry.
func ParseName(s string) (Name, bool) {
	n := Name(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range extendedOrder {
		if n == known {
			return n, true
		}
	}
	return DefaultGateway, false
}
