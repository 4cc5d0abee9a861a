// Package metadata looks up public information about YouTube videos through
// the oEmbed endpoint.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/clipwave/clipwave/internal/config"
	"github.com/clipwave/clipwave/internal/logging"
	"github.com/clipwave/clipwave/internal/metrics"
	"github.com/clipwave/clipwave/pkg/models"
)

var (
	ErrURLRequired  = errors.New("URL do vídeo é obrigatória")
	ErrInvalidURL   = errors.New("URL inválida do YouTube")
	ErrLookupFailed = errors.New("Não foi possível obter informações do vídeo")
)

// DownloadMessage accompanies every successful lookup
const DownloadMessage = "Use uma extensão de navegador ou serviço externo para download"

const watchURL = "https://www.youtube.com/watch?v="

var videoIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:youtube\.com/watch\?v=|youtu\.be/)([^&\n?#]+)`),
	regexp.MustCompile(`youtube\.com/embed/([^&\n?#]+)`),
	regexp.MustCompile(`youtube\.com/v/([^&\n?#]+)`),
}

// ExtractVideoID returns the video id of a watch, short, embed or /v/ URL,
// or "" when rawURL has none of those shapes
func ExtractVideoID(rawURL string) string {
	for _, p := range videoIDPatterns {
		if m := p.FindStringSubmatch(rawURL); len(m) > 1 && m[1] != "" {
			return m[1]
		}
	}
	return ""
}

// Cache stores lookups by video id. A miss returns nil, nil.
type Cache interface {
	GetVideoInfo(ctx context.Context, videoID string) (*models.VideoInfo, error)
	SetVideoInfo(ctx context.Context, info *models.VideoInfo, ttl time.Duration) error
}

type oembedResponse struct {
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// Service resolves lookup requests
type Service struct {
	client *http.Client
	cfg    config.MetadataConfig
	cache  Cache
	logger *logging.Logger
}

// NewService creates a lookup service. cache may be nil.
func NewService(cfg config.MetadataConfig, cache Cache, logger *logging.Logger) *Service {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Service{
		client: &http.Client{Timeout: timeout},
		cfg:    cfg,
		cache:  cache,
		logger: logger.WithComponent("metadata"),
	}
}

// Lookup validates the request URL and fetches the video's title, author and
// thumbnail. Quality and format are accepted but not used.
func (s *Service) Lookup(ctx context.Context, req models.VideoLookupRequest) (*models.VideoLookupResponse, error) {
	if strings.TrimSpace(req.URL) == "" {
		metrics.MetadataLookupsTotal.WithLabelValues("invalid").Inc()
		return nil, ErrURLRequired
	}
	videoID := ExtractVideoID(req.URL)
	if videoID == "" {
		metrics.MetadataLookupsTotal.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidURL
	}

	info := s.cached(ctx, videoID)
	if info == nil {
		var err error
		info, err = s.fetch(ctx, videoID)
		if err != nil {
			metrics.MetadataLookupsTotal.WithLabelValues("failed").Inc()
			s.logger.WithField("video_id", videoID).WithError(err).Warn("oembed lookup failed")
			return nil, ErrLookupFailed
		}
		s.store(ctx, info)
	}

	metrics.MetadataLookupsTotal.WithLabelValues("success").Inc()
	return &models.VideoLookupResponse{
		Success:     true,
		VideoInfo:   *info,
		DownloadURL: watchURL + videoID,
		Message:     DownloadMessage,
	}, nil
}

func (s *Service) cached(ctx context.Context, videoID string) *models.VideoInfo {
	if s.cache == nil {
		return nil
	}
	info, err := s.cache.GetVideoInfo(ctx, videoID)
	if err != nil {
		s.logger.WithError(err).Warn("metadata cache read failed")
		return nil
	}
	metrics.RecordCacheAccess("metadata", info != nil)
	return info
}

func (s *Service) store(ctx context.Context, info *models.VideoInfo) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetVideoInfo(ctx, info, s.cfg.CacheTTL); err != nil {
		s.logger.WithError(err).Warn("metadata cache write failed")
	}
}

func (s *Service) fetch(ctx context.Context, videoID string) (*models.VideoInfo, error) {
	q := url.Values{}
	q.Set("url", watchURL+videoID)
	q.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.OEmbedEndpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oembed returned %d", resp.StatusCode)
	}

	var out oembedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode oembed response: %w", err)
	}

	return &models.VideoInfo{
		Title:     out.Title,
		Author:    out.AuthorName,
		Thumbnail: out.ThumbnailURL,
		VideoID:   videoID,
	}, nil
}
