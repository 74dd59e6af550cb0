package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/ipfs/go-cid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/IceFireDB/IceFireDB-Resolver/pkg/gateway"
	"github.com/IceFireDB/IceFireDB-Resolver/pkg/resolver"
)

const (
	DefaultFanOutLimit = 8

	ErrLoadDescription = "failed to load description"
	ErrLoadMedia       = "failed to load media"
)

var (
	errDescriptionFormat = errors.New("unexpected description format")
	errManifestFormat    = errors.New("unexpected media manifest format")
)

// Manifest is the media manifest as stored in content-addressed storage.
type Manifest struct {
	Images []string `json:"images"`
	Cover  string   `json:"cover"`
	Video  string   `json:"video"`
}

// Media holds every reference of a manifest expanded to gateway URL lists,
// best gateway first.
type Media struct {
	Images [][]string `json:"images"`
	Cover  []string   `json:"cover,omitempty"`
	Video  []string   `json:"video,omitempty"`
}

// FieldErrors maps a field name to a generic load error. Resolution details
// are logged, not exposed.
type FieldErrors map[string]string

type Store struct {
	StoreRecord
	Description string      `json:"descriptionText"`
	Media       *Media      `json:"mediaUrls,omitempty"`
	Errors      FieldErrors `json:"errors,omitempty"`
}

type Product struct {
	ProductRecord
	Description string      `json:"descriptionText"`
	Media       *Media      `json:"mediaUrls,omitempty"`
	Errors      FieldErrors `json:"errors,omitempty"`
}

// Assembler builds catalog views. A failed field never fails the whole view.
type Assembler struct {
	src         resolver.ContentSource
	fanOutLimit int
}

func NewAssembler(src resolver.ContentSource, fanOutLimit int) *Assembler {
	if fanOutLimit <= 0 {
		fanOutLimit = DefaultFanOutLimit
	}
	return &Assembler{src: src, fanOutLimit: fanOutLimit}
}

func (a *Assembler) Store(ctx context.Context, rec StoreRecord) (*Store, error) {
	s := &Store{StoreRecord: rec}
	var err error
	s.Description, s.Media, s.Errors, err = a.content(ctx, rec.ID, rec.DescriptionHash, rec.MediaHash)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (a *Assembler) Product(ctx context.Context, rec ProductRecord) (*Product, error) {
	p := &Product{ProductRecord: rec}
	var err error
	p.Description, p.Media, p.Errors, err = a.content(ctx, rec.ID, rec.DescriptionHash, rec.MediaHash)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Products assembles recs concurrently, at most fanOutLimit at a time, and
// keeps their order. It only fails when ctx is done.
func (a *Assembler) Products(ctx context.Context, recs []ProductRecord) ([]*Product, error) {
	out := make([]*Product, len(recs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.fanOutLimit)
	for i := range recs {
		g.Go(func() error {
			p, err := a.Product(ctx, recs[i])
			if err != nil {
				return err
			}
			out[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Assembler) content(ctx context.Context, id, descriptionHash, mediaHash string) (string, *Media, FieldErrors, error) {
	var (
		description string
		media       *Media
		errs        = FieldErrors{}
	)

	if descriptionHash != "" {
		v, err := a.src.FetchContent(ctx, descriptionHash)
		if err == nil {
			description, err = descriptionText(v)
		}
		if err != nil {
			if ctx.Err() != nil {
				return "", nil, nil, ctx.Err()
			}
			logFieldError(id, "description", descriptionHash, err)
			errs["description"] = ErrLoadDescription
		}
	}

	if mediaHash != "" {
		v, err := a.src.FetchContent(ctx, mediaHash)
		var m Manifest
		if err == nil {
			m, err = manifest(v)
		}
		if err != nil {
			if ctx.Err() != nil {
				return "", nil, nil, ctx.Err()
			}
			logFieldError(id, "media", mediaHash, err)
			errs["media"] = ErrLoadMedia
		} else {
			media = m.Expand()
		}
	}

	if len(errs) == 0 {
		errs = nil
	}
	return description, media, errs, nil
}

func logFieldError(id, field, hash string, err error) {
	logrus.WithFields(logrus.Fields{
		"id":          id,
		"field":       field,
		"contentHash": hash,
		"error":       err.Error(),
	}).Warn("catalog field unavailable")
}

// descriptionText accepts a plain string or an object carrying the text under
// "description" or "text".
func descriptionText(v any) (string, error) {
	switch d := v.(type) {
	case string:
		return d, nil
	case map[string]any:
		for _, k := range []string{"description", "text"} {
			if s, ok := d[k].(string); ok {
				return s, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %T", errDescriptionFormat, v)
}

// manifest accepts a manifest object or a bare reference to a single image.
func manifest(v any) (Manifest, error) {
	switch m := v.(type) {
	case string:
		ref := strings.TrimSpace(m)
		if ref == "" {
			return Manifest{}, errManifestFormat
		}
		return Manifest{Images: []string{ref}, Cover: ref}, nil
	case map[string]any:
		var out Manifest
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &out,
			TagName:          "json",
			WeaklyTypedInput: true,
		})
		if err != nil {
			return Manifest{}, err
		}
		if err := dec.Decode(m); err != nil {
			return Manifest{}, fmt.Errorf("%w: %v", errManifestFormat, err)
		}
		return out, nil
	}
	return Manifest{}, fmt.Errorf("%w: %T", errManifestFormat, v)
}

// Expand turns every reference of m into its gateway URL list.
func (m Manifest) Expand() *Media {
	media := &Media{Images: make([][]string, 0, len(m.Images))}
	for _, ref := range m.Images {
		if urls := ExpandRef(ref); len(urls) > 0 {
			media.Images = append(media.Images, urls)
		}
	}
	media.Cover = ExpandRef(m.Cover)
	media.Video = ExpandRef(m.Video)
	return media
}

// ExpandRef resolves an ipfs://, /ipfs/ or bare CID reference, with an
// optional path, to the extended gateway URL list. http(s) URLs are returned
// as they are; anything else yields nil.
func ExpandRef(ref string) []string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return []string{ref}
	}
	ref = strings.TrimPrefix(ref, "ipfs://")
	ref = strings.TrimPrefix(ref, "/ipfs/")

	root, path, _ := strings.Cut(ref, "/")
	if _, err := cid.Decode(root); err != nil {
		return nil
	}
	urls := gateway.BuildExtendedURLs(root)
	if path != "" {
		for i := range urls {
			urls[i] += "/" + path
		}
	}
	return urls
}
