package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/disintegration/imaging"

	"artist-sync/internal/config"
	"artist-sync/internal/models"
	"artist-sync/internal/pipeline"
)

type artworkUploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// ArtworkHandler mirrors provider-hosted artist images into our own storage
// as resized thumbnails, so artist pages never hotlink provider CDNs.
type ArtworkHandler struct {
	cfg        config.Config
	httpClient *http.Client
	local      artworkUploader
	s3         artworkUploader
}

type artworkPayload struct {
	SourceURL string `json:"source_url"`
	OutputKey string `json:"output_key"`
	Width     int    `json:"width"`
}

// NewArtworkHandler constructs the handler. It always has a local fallback;
// S3 is used when a bucket is configured.
func NewArtworkHandler(ctx context.Context, cfg config.Config) (*ArtworkHandler, error) {
	timeout := cfg.ArtworkDownloadTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	baseDir := cfg.ArtworkOutputDir
	if baseDir == "" {
		baseDir = "./artwork"
	}

	var s3Upload artworkUploader
	if cfg.ArtworkS3Bucket != "" {
		client, err := newS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s3Upload = &s3Uploader{client: client, bucket: cfg.ArtworkS3Bucket}
	}

	return &ArtworkHandler{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		local:      &localUploader{baseDir: baseDir},
		s3:         s3Upload,
	}, nil
}

func newS3Client(ctx context.Context, cfg config.Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.ArtworkS3Region),
	}
	if cfg.ArtworkS3Endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
			if service == s3.ServiceID {
				return aws.Endpoint{
					URL:               cfg.ArtworkS3Endpoint,
					HostnameImmutable: cfg.ArtworkS3PathStyle,
					SigningRegion:     cfg.ArtworkS3Region,
					Source:            aws.EndpointSourceCustom,
				}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		})
		opts = append(opts, awsconfig.WithEndpointResolverWithOptions(resolver))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.ArtworkS3PathStyle
	}), nil
}

// Handle downloads, resizes, and uploads one image.
func (h *ArtworkHandler) Handle(ctx context.Context, job models.Job) error {
	payload, err := h.decodePayload(job)
	if err != nil {
		return err
	}

	data, contentType, err := h.download(ctx, payload.SourceURL)
	if err != nil {
		return err
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: decode image: %v", pipeline.ErrValidation, err)
	}

	// Height 0 preserves aspect ratio.
	img = imaging.Resize(img, payload.Width, 0, imaging.Lanczos)

	outputFormat := chooseFormat(payload.OutputKey, format, contentType)
	buf := &bytes.Buffer{}
	if err := imaging.Encode(buf, img, outputFormat, imaging.JPEGQuality(85)); err != nil {
		return fmt.Errorf("encode image: %w", err)
	}

	outputKey := sanitizeKey(payload.OutputKey)
	uploader := h.local
	if h.s3 != nil {
		uploader = h.s3
	}
	if _, err := uploader.Upload(ctx, outputKey, buf.Bytes(), mimeForFormat(outputFormat, contentType)); err != nil {
		return fmt.Errorf("upload artwork: %w", err)
	}
	return nil
}

func (h *ArtworkHandler) decodePayload(job models.Job) (artworkPayload, error) {
	payload := artworkPayload{Width: h.cfg.ArtworkThumbWidth}
	raw, err := json.Marshal(job.Payload)
	if err != nil {
		return payload, fmt.Errorf("%w: marshal payload: %v", pipeline.ErrValidation, err)
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return payload, fmt.Errorf("%w: decode payload: %v", pipeline.ErrValidation, err)
	}
	if payload.SourceURL == "" {
		return payload, fmt.Errorf("%w: source_url is required", pipeline.ErrValidation)
	}
	if payload.OutputKey == "" {
		return payload, fmt.Errorf("%w: output_key is required", pipeline.ErrValidation)
	}
	if payload.Width <= 0 {
		payload.Width = 640
	}
	return payload, nil
}

func (h *ArtworkHandler) download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: build request: %v", pipeline.ErrValidation, err)
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download artwork: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return nil, "", fmt.Errorf("%w: artwork at %s", pipeline.ErrProviderNotFound, url)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, "", fmt.Errorf("%w: download artwork: status %d", pipeline.ErrProviderTransient, resp.StatusCode)
	}

	limit := h.cfg.ArtworkMaxBytes
	if limit == 0 {
		limit = 25 * 1024 * 1024
	}
	limited := io.LimitReader(resp.Body, limit+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, "", fmt.Errorf("read artwork: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, "", fmt.Errorf("%w: artwork too large (>%d bytes)", pipeline.ErrValidation, limit)
	}

	return body, resp.Header.Get("Content-Type"), nil
}

func chooseFormat(outputKey, decodeFormat, contentType string) imaging.Format {
	switch strings.ToLower(filepath.Ext(outputKey)) {
	case ".png":
		return imaging.PNG
	case ".jpg", ".jpeg":
		return imaging.JPEG
	}
	switch strings.ToLower(decodeFormat) {
	case "png":
		return imaging.PNG
	case "gif":
		return imaging.GIF
	}
	if strings.Contains(strings.ToLower(contentType), "png") {
		return imaging.PNG
	}
	return imaging.JPEG
}

func mimeForFormat(format imaging.Format, fallback string) string {
	switch format {
	case imaging.PNG:
		return "image/png"
	case imaging.GIF:
		return "image/gif"
	default:
		if strings.Contains(strings.ToLower(fallback), "png") {
			return "image/png"
		}
		return "image/jpeg"
	}
}

func sanitizeKey(key string) string {
	key = filepath.Clean(key)
	key = strings.TrimPrefix(key, string(filepath.Separator))
	key = strings.TrimPrefix(key, "./")
	return key
}

type localUploader struct {
	baseDir string
}

func (l *localUploader) Upload(_ context.Context, key string, body []byte, _ string) (string, error) {
	path := filepath.Join(l.baseDir, key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create dirs: %w", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return path, nil
}

type s3Uploader struct {
	client *s3.Client
	bucket string
}

func (s *s3Uploader) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}
