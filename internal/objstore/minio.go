// Package objstore stores screenshot and archived-HTML evidence in MinIO.
package objstore

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/config"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/logger"
)

// Store uploads evidence objects. A disabled store is a valid no-op value;
// every method returns immediately with a zero result.
type Store struct {
	client *miniogo.Client
	cfg    config.MinIOConfig
	logger logger.Logger
}

// New creates a store and ensures the evidence bucket exists. A disabled
// config yields a no-op store and no network traffic.
func New(ctx context.Context, cfg config.MinIOConfig, log logger.Logger) (*Store, error) {
	s := &Store{cfg: cfg, logger: log}
	if !cfg.Enabled {
		log.Info("object store disabled")
		return s, nil
	}

	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	s.client = client

	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}

	log.Info("object store initialized",
		logger.String("endpoint", cfg.Endpoint),
		logger.String("bucket", cfg.Bucket))

	return s, nil
}

// Enabled reports whether uploads actually go anywhere.
func (s *Store) Enabled() bool {
	return s.cfg.Enabled && s.client != nil
}

// ensureBucket creates the bucket if missing. A concurrent creator winning
// the race is not an error.
func (s *Store) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}

	if err := s.client.MakeBucket(ctx, s.cfg.Bucket, miniogo.MakeBucketOptions{}); err != nil {
		exists, checkErr := s.client.BucketExists(ctx, s.cfg.Bucket)
		if checkErr == nil && exists {
			return nil
		}
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

// PutScreenshot uploads a PNG screenshot and returns the object URL.
// Key format: screenshots/{task_id}/{urlhash8}_{timestamp}.png
func (s *Store) PutScreenshot(ctx context.Context, taskID, pageURL string, png []byte) (string, error) {
	if !s.Enabled() {
		return "", nil
	}
	if len(png) == 0 {
		return "", errors.New("empty screenshot")
	}

	key := fmt.Sprintf("screenshots/%s/%s_%d.png",
		taskID, hashURL(pageURL), time.Now().Unix())

	_, err := s.client.PutObject(ctx, s.cfg.Bucket, key,
		bytes.NewReader(png), int64(len(png)),
		miniogo.PutObjectOptions{
			ContentType: "image/png",
			UserMetadata: map[string]string{
				"task-id":     taskID,
				"url":         pageURL,
				"captured-at": time.Now().UTC().Format(time.RFC3339),
				"size":        strconv.Itoa(len(png)),
			},
		})
	if err != nil {
		return "", fmt.Errorf("upload screenshot: %w", err)
	}

	s.logger.Debug("uploaded screenshot",
		logger.String("object_key", key),
		logger.Int("size", len(png)))

	return s.objectURL(key), nil
}

// PutArchivedHTML gzips and uploads page HTML for later review.
// Key format: html/{task_id}/{urlhash8}.html.gz
func (s *Store) PutArchivedHTML(ctx context.Context, taskID, pageURL, html string) (string, error) {
	if !s.Enabled() {
		return "", nil
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write([]byte(html)); err != nil {
		return "", fmt.Errorf("compress html: %w", err)
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("compress html: %w", err)
	}

	key := fmt.Sprintf("html/%s/%s.html.gz", taskID, hashURL(pageURL))

	_, err := s.client.PutObject(ctx, s.cfg.Bucket, key,
		bytes.NewReader(buf.Bytes()), int64(buf.Len()),
		miniogo.PutObjectOptions{
			ContentType:     "text/html; charset=utf-8",
			ContentEncoding: "gzip",
			UserMetadata: map[string]string{
				"task-id":     taskID,
				"url":         pageURL,
				"archived-at": time.Now().UTC().Format(time.RFC3339),
			},
		})
	if err != nil {
		return "", fmt.Errorf("upload html: %w", err)
	}

	s.logger.Debug("archived html",
		logger.String("object_key", key),
		logger.Int("compressed_size", buf.Len()))

	return s.objectURL(key), nil
}

// HealthCheck verifies bucket reachability. A disabled store is healthy.
func (s *Store) HealthCheck(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}

	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("minio health check: %w", err)
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", s.cfg.Bucket)
	}
	return nil
}

func (s *Store) objectURL(key string) string {
	scheme := "http"
	if s.cfg.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, s.cfg.Endpoint, s.cfg.Bucket, key)
}

// hashURL returns the first 8 hex characters of the URL's SHA-256.
func hashURL(url string) string {
	h := sha256.Sum256([]byte(url))
	return hex.EncodeToString(h[:])[:8]
}
