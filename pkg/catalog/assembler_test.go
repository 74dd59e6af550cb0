package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IceFireDB/IceFireDB-Resolver/pkg/gateway"
)

type fakeSource struct {
	mu      sync.Mutex
	content map[string]any
	delay   time.Duration

	running, peak int
}

func (f *fakeSource) FetchContent(ctx context.Context, hash string) (any, error) {
	f.mu.Lock()
	f.running++
	if f.running > f.peak {
		f.peak = f.running
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.running--
		f.mu.Unlock()
	}()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	v, ok := f.content[hash]
	if !ok {
		return nil, &gateway.AggregateGatewayError{Cid: hash, Last: errors.New("HTTP 404")}
	}
	return v, nil
}

func testCid(t *testing.T, data string) string {
	t.Helper()
	mh, err := multihash.Sum([]byte(data), multihash.SHA2_256, -1)
	require.NoError(t, err)
	return cid.NewCidV1(cid.Raw, mh).String()
}

func TestProductAssembly(t *testing.T) {
	img1, img2 := testCid(t, "img1"), testCid(t, "img2")
	src := &fakeSource{content: map[string]any{
		"0xdesc":  map[string]any{"description": "A fine chair"},
		"0xmedia": map[string]any{"images": []any{"ipfs://" + img1, img2 + "/front.png"}, "cover": img1},
	}}
	a := NewAssembler(src, 2)

	p, err := a.Product(context.Background(), ProductRecord{ID: "p1", DescriptionHash: "0xdesc", MediaHash: "0xmedia"})
	require.NoError(t, err)
	assert.Equal(t, "A fine chair", p.Description)
	assert.Nil(t, p.Errors)
	require.NotNil(t, p.Media)
	require.Len(t, p.Media.Images, 2)
	assert.Equal(t, gateway.BuildExtendedURLs(img1), p.Media.Images[0])
	assert.Equal(t, gateway.BuildExtendedURLs(img2)[1]+"/front.png", p.Media.Images[1][1])
	assert.Equal(t, gateway.BuildExtendedURLs(img1), p.Media.Cover)
	assert.Nil(t, p.Media.Video)
}

func TestProductDegradesPerField(t *testing.T) {
	img := testCid(t, "img")
	src := &fakeSource{content: map[string]any{
		"0xmedia": img,
		"0xodd":   []any{1.0, 2.0},
	}}
	a := NewAssembler(src, 0)

	p, err := a.Product(context.Background(), ProductRecord{ID: "p1", DescriptionHash: "0xmissing", MediaHash: "0xmedia"})
	require.NoError(t, err)
	assert.Empty(t, p.Description)
	assert.Equal(t, FieldErrors{"description": ErrLoadDescription}, p.Errors)
	require.NotNil(t, p.Media)
	assert.Equal(t, [][]string{gateway.BuildExtendedURLs(img)}, p.Media.Images)

	p, err = a.Product(context.Background(), ProductRecord{ID: "p2", DescriptionHash: "0xodd", MediaHash: "0xodd"})
	require.NoError(t, err)
	assert.Equal(t, FieldErrors{"description": ErrLoadDescription, "media": ErrLoadMedia}, p.Errors)
	assert.Nil(t, p.Media)
}

func TestStoreAssembly(t *testing.T) {
	src := &fakeSource{content: map[string]any{"0xdesc": map[string]any{"text": "Since 1999"}}}
	s, err := NewAssembler(src, 1).Store(context.Background(), StoreRecord{ID: "s1", Name: "Shop", DescriptionHash: "0xdesc"})
	require.NoError(t, err)
	assert.Equal(t, "Since 1999", s.Description)
	assert.Equal(t, "Shop", s.Name)
	assert.Nil(t, s.Media)
}

func TestProductsBoundedFanOut(t *testing.T) {
	src := &fakeSource{content: map[string]any{"0xdesc": "plain"}, delay: 20 * time.Millisecond}
	recs := make([]ProductRecord, 10)
	for i := range recs {
		recs[i] = ProductRecord{ID: string(rune('a' + i)), DescriptionHash: "0xdesc"}
	}

	out, err := NewAssembler(src, 3).Products(context.Background(), recs)
	require.NoError(t, err)
	require.Len(t, out, len(recs))
	for i, p := range out {
		assert.Equal(t, recs[i].ID, p.ID)
		assert.Equal(t, "plain", p.Description)
	}
	assert.LessOrEqual(t, src.peak, 3)
}

func TestProductsCancelled(t *testing.T) {
	src := &fakeSource{content: map[string]any{"0xdesc": "plain"}, delay: time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewAssembler(src, 2).Products(ctx, []ProductRecord{{ID: "a", DescriptionHash: "0xdesc"}, {ID: "b", DescriptionHash: "0xdesc"}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExpandRef(t *testing.T) {
	c := testCid(t, "ref")
	ext := gateway.BuildExtendedURLs(c)

	assert.Equal(t, ext, ExpandRef(c))
	assert.Equal(t, ext, ExpandRef("ipfs://"+c))
	assert.Equal(t, ext, ExpandRef("/ipfs/"+c))
	assert.Equal(t, ext[0]+"/a/b.png", ExpandRef("ipfs://" + c + "/a/b.png")[0])
	assert.Equal(t, []string{"https://example.com/x.png"}, ExpandRef("https://example.com/x.png"))
	assert.Nil(t, ExpandRef(""))
	assert.Nil(t, ExpandRef("ipfs://not-a-cid"))
}

func TestRecordsFromAttestation(t *testing.T) {
	p, err := ProductRecordFromAttestation("p1", map[string]any{
		"storeId":     "s1",
		"name":        "Chair",
		"price":       "1000000000000000000",
		"stock":       "12",
		"description": []byte{0xe3, 0x01},
		"mediaHash":   " 0xabcd ",
		"createdAt":   uint64(1700000000),
	})
	require.NoError(t, err)
	assert.Equal(t, ProductRecord{
		ID:              "p1",
		StoreID:         "s1",
		Name:            "Chair",
		Price:           "1000000000000000000",
		Stock:           12,
		DescriptionHash: "0xe301",
		MediaHash:       "0xabcd",
		CreatedAt:       1700000000,
	}, p)

	_, err = ProductRecordFromAttestation("p2", map[string]any{"stock": "many"})
	assert.Error(t, err)

	s, err := StoreRecordFromAttestation("s1", map[string]any{"attester": "0xowner", "name": "Shop", "createdAt": 5})
	require.NoError(t, err)
	assert.Equal(t, StoreRecord{ID: "s1", Owner: "0xowner", Name: "Shop", CreatedAt: 5}, s)
}
