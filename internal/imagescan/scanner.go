// Package imagescan fetches a bounded set of page images and recovers
// payment evidence from them: QR codes are decoded in-process, and an
// optional OCR sidecar turns image text back into matcher input. The scan
// runs only for pages that already produced a payments-category candidate.
package imagescan

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"io"
	"net/http"
	"time"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"

	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/domain"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/logger"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/rules"
)

// qrConfidence is the base confidence carried by a decoded UPI QR candidate.
const qrConfidence = 0.95

// Matcher re-feeds recovered text through the rule matcher.
type Matcher interface {
	Match(text string) []domain.MatchCandidate
}

// Config bounds image fetching.
type Config struct {
	MaxImages     int
	MaxImageBytes int64
	FetchTimeout  time.Duration
}

// Scanner downloads page images and extracts QR/OCR candidates.
type Scanner struct {
	cfg     Config
	http    *http.Client
	matcher Matcher
	ocr     *OCRClient // nil when no sidecar is configured
	logger  logger.Logger
}

// NewScanner creates a scanner. ocr may be nil; OCR is then skipped.
func NewScanner(cfg Config, matcher Matcher, ocr *OCRClient, log logger.Logger) *Scanner {
	if cfg.MaxImages <= 0 {
		cfg.MaxImages = 8
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = 2 << 20
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	return &Scanner{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.FetchTimeout},
		matcher: matcher,
		ocr:     ocr,
		logger:  log,
	}
}

// Scan fetches up to MaxImages of imageURLs and returns the candidates
// recovered from them. Every per-image failure (fetch, oversize, corrupt,
// undecodable) is logged at debug and skipped.
func (s *Scanner) Scan(ctx context.Context, imageURLs []string) []domain.MatchCandidate {
	if len(imageURLs) > s.cfg.MaxImages {
		imageURLs = imageURLs[:s.cfg.MaxImages]
	}

	var out []domain.MatchCandidate
	for _, imgURL := range imageURLs {
		cands, err := s.scanOne(ctx, imgURL)
		if err != nil {
			s.logger.Debug("image scan skipped",
				logger.String("image_url", imgURL),
				logger.Error(err))
			continue
		}
		out = append(out, cands...)
	}
	return out
}

func (s *Scanner) scanOne(ctx context.Context, imgURL string) ([]domain.MatchCandidate, error) {
	raw, err := s.fetch(ctx, imgURL)
	if err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	if cands := s.decodeQR(img); len(cands) > 0 {
		return cands, nil
	}

	if s.ocr == nil {
		return nil, nil
	}
	text, err := s.ocr.Recognize(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("ocr: %w", err)
	}
	return rewriteSource(s.matcher.Match(text), domain.SourceOCR), nil
}

func (s *Scanner) fetch(ctx context.Context, imgURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imgURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, s.cfg.MaxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if int64(len(raw)) > s.cfg.MaxImageBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", s.cfg.MaxImageBytes)
	}
	return raw, nil
}

// decodeQR attempts a QR decode. A payload holding a UPI handle becomes a
// payments candidate directly; any other payload is re-fed through the rule
// matcher as QR-sourced text.
func (s *Scanner) decodeQR(img image.Image) []domain.MatchCandidate {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil
	}
	result, err := qrcode.NewQRCodeReader().Decode(bmp, nil)
	if err != nil {
		return nil
	}
	payload := result.GetText()
	if payload == "" {
		return nil
	}

	if handle := rules.NormalizeUPI(payload); handle != "" {
		return []domain.MatchCandidate{{
			Term:     "upi-qr",
			Category: domain.CategoryPayments,
			Snippet:  "QR->UPI:" + handle,
			Source:   domain.SourceQR,
			Score:    qrConfidence,
		}}
	}

	return rewriteSource(s.matcher.Match(payload), domain.SourceQR)
}

func rewriteSource(cands []domain.MatchCandidate, src domain.Source) []domain.MatchCandidate {
	for i := range cands {
		cands[i].Source = src
	}
	return cands
}
