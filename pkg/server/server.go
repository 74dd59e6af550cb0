// Package server exposes resolution, gateway URL building and uploads over
// HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multicodec"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"github.com/IceFireDB/IceFireDB-Resolver/pkg/catalog"
	"github.com/IceFireDB/IceFireDB-Resolver/pkg/contenthash"
	"github.com/IceFireDB/IceFireDB-Resolver/pkg/gateway"
	"github.com/IceFireDB/IceFireDB-Resolver/pkg/resolver"
	"github.com/IceFireDB/IceFireDB-Resolver/pkg/storage"
)

const (
	DefaultMaxUploadSize int64 = 32 * 1024 * 1024

	shutdownTimeout = 5 * time.Second
)

// Resolver is implemented by *resolver.Resolver and *cache.Resolver.
type Resolver interface {
	Resolve(ctx context.Context, contentHash string) (*resolver.Resolution, error)
}

// Uploader is implemented by *storage.Client.
type Uploader interface {
	UploadBytes(ctx context.Context, data []byte) (*storage.Uploaded, error)
}

type Option func(*Server)

func WithUploader(u Uploader) Option {
	return func(s *Server) {
		s.uploader = u
	}
}

func WithAssembler(a *catalog.Assembler) Option {
	return func(s *Server) {
		s.assembler = a
	}
}

// WithMetrics serves h on path.
func WithMetrics(path string, h http.Handler) Option {
	return func(s *Server) {
		s.metricsPath = path
		s.metrics = h
	}
}

func WithMaxUploadSize(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUploadSize = n
		}
	}
}

type Server struct {
	resolver      Resolver
	uploader      Uploader
	assembler     *catalog.Assembler
	metrics       http.Handler
	metricsPath   string
	maxUploadSize int64

	mux *http.ServeMux
}

func New(r Resolver, opts ...Option) *Server {
	s := &Server{
		resolver:      r,
		maxUploadSize: DefaultMaxUploadSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mux = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("GET /api/v1/contenthash/{hash}", s.handleResolve)
	mux.HandleFunc("GET /api/v1/contenthash/{hash}/cid", s.handleContentHashCid)

	mux.HandleFunc("GET /api/v1/cid/{cid}/gateways", s.handleGateways)
	mux.HandleFunc("GET /api/v1/cid/{cid}/url", s.handleGatewayURL)
	mux.HandleFunc("GET /api/v1/cid/{cid}/contenthash", s.handleCidContentHash)

	mux.HandleFunc("GET /api/v1/bytes32/{hash}", s.handleBytes32)
	mux.HandleFunc("GET /api/v1/ipfs-hash/{bytes32}", s.handleIpfsHash)

	mux.HandleFunc("POST /api/v1/upload", s.handleUpload)

	mux.HandleFunc("POST /api/v1/catalog/products", s.handleProducts)
	mux.HandleFunc("POST /api/v1/catalog/stores", s.handleStore)

	if s.metrics != nil {
		mux.Handle("GET "+s.metricsPath, s.metrics)
	}
	return mux
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string, readTimeout, writeTimeout time.Duration) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.WithField("address", addr).Info("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	res, err := s.resolver.Resolve(r.Context(), r.PathValue("hash"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleContentHashCid(w http.ResponseWriter, r *http.Request) {
	c, err := contenthash.ToCid(r.PathValue("hash"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"cid": c})
}

func (s *Server) handleGateways(w http.ResponseWriter, r *http.Request) {
	c, ok := pathCid(w, r)
	if !ok {
		return
	}
	extended := false
	if v := r.URL.Query().Get("extended"); v != "" {
		b, err := cast.ToBoolE(v)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "extended must be a boolean")
			return
		}
		extended = b
	}

	urls := gateway.BuildPrimaryURLs(c)
	if extended {
		urls = gateway.BuildExtendedURLs(c)
	}
	writeJSON(w, http.StatusOK, map[string][]string{"urls": urls})
}

func (s *Server) handleGatewayURL(w http.ResponseWriter, r *http.Request) {
	c, ok := pathCid(w, r)
	if !ok {
		return
	}
	var names []gateway.Name
	if v := r.URL.Query().Get("gateway"); v != "" {
		names = append(names, gateway.Name(v))
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": gateway.GetIpfsGatewayURL(c, names...)})
}

func (s *Server) handleCidContentHash(w http.ResponseWriter, r *http.Request) {
	hash, err := contenthash.FromCidString(r.PathValue("cid"), multicodec.Ipfs)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"contentHash": hash})
}

func (s *Server) handleBytes32(w http.ResponseWriter, r *http.Request) {
	b, err := contenthash.GetBytes32FromIpfsHash(r.PathValue("hash"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"bytes32": b})
}

func (s *Server) handleIpfsHash(w http.ResponseWriter, r *http.Request) {
	h, err := contenthash.GetIpfsHashFromBytes32(r.PathValue("bytes32"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ipfsHash": h})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.uploader == nil {
		writeMessage(w, http.StatusNotImplemented, "storage is not configured")
		return
	}
	defer r.Body.Close()
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxUploadSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeMessage(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(data) == 0 {
		writeMessage(w, http.StatusBadRequest, "empty upload")
		return
	}

	up, err := s.uploader.UploadBytes(r.Context(), data)
	if err != nil {
		logrus.WithField("error", err.Error()).Error("upload failed")
		writeMessage(w, http.StatusBadGateway, "upload failed")
		return
	}
	writeJSON(w, http.StatusCreated, up)
}

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	if s.assembler == nil {
		writeMessage(w, http.StatusNotImplemented, "catalog is not configured")
		return
	}
	var recs []catalog.ProductRecord
	if !decodeBody(w, r, &recs) {
		return
	}
	products, err := s.assembler.Products(r.Context(), recs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (s *Server) handleStore(w http.ResponseWriter, r *http.Request) {
	if s.assembler == nil {
		writeMessage(w, http.StatusNotImplemented, "catalog is not configured")
		return
	}
	var rec catalog.StoreRecord
	if !decodeBody(w, r, &rec) {
		return
	}
	store, err := s.assembler.Store(r.Context(), rec)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, store)
}

func pathCid(w http.ResponseWriter, r *http.Request) (string, bool) {
	c := r.PathValue("cid")
	if _, err := cid.Decode(c); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid cid: "+err.Error())
		return "", false
	}
	return c, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func statusOf(err error) int {
	var (
		decodeErr *contenthash.DecodeError
		aggErr    *gateway.AggregateGatewayError
	)
	switch {
	case errors.As(err, &aggErr):
		if aggErr.Interrupted && errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case errors.As(err, &decodeErr):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		logrus.WithField("error", err.Error()).Warn("request failed")
	}
	if status == http.StatusInternalServerError {
		writeMessage(w, status, "failed to load")
		return
	}
	writeMessage(w, status, err.Error())
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithField("error", err.Error()).Debug("write response failed")
	}
}
