package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"github.com/nyc-landmarks/vectordb/internal/httpclient"
	"github.com/nyc-landmarks/vectordb/internal/logging"
	"github.com/nyc-landmarks/vectordb/internal/ratecontrol"
	"github.com/nyc-landmarks/vectordb/internal/retry"
)

var pdfMagic = []byte("%PDF")

// PDFConfig tunes designation report downloads.
type PDFConfig struct {
	Timeout   time.Duration
	MaxBytes  int64
	Retry     retry.Policy
	UserAgent string
}

// PDFFetcher downloads a designation report and extracts its plain text.
type PDFFetcher struct {
	cfg     PDFConfig
	http    *http.Client
	limiter *ratecontrol.Limiter
	logger  *zap.Logger
}

// NewPDFFetcher builds a PDF fetcher. limiter may be nil to disable
// pacing (tests).
func NewPDFFetcher(cfg PDFConfig, limiter *ratecontrol.Limiter, logger *zap.Logger) *PDFFetcher {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 50 << 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if limiter == nil {
		limiter = ratecontrol.New(ratecontrol.Config{}, nil)
	}
	return &PDFFetcher{
		cfg: cfg,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: httpclient.NewCorrelationRoundTripper(nil, cfg.UserAgent),
		},
		limiter: limiter,
		logger:  logging.Module(logger, "fetch.pdf"),
	}
}

// FetchText downloads the report at reportURL and returns its text,
// pages joined with blank lines. Returns ErrNoText when no page yields
// any text.
func (f *PDFFetcher) FetchText(ctx context.Context, reportURL string) (string, error) {
	u, err := url.Parse(reportURL)
	if err != nil {
		return "", fmt.Errorf("parse report url: %w", err)
	}

	var data []byte
	err = retry.Do(ctx, f.logger, "pdf_fetch", f.cfg.Retry, func(ctx context.Context) error {
		if err := f.limiter.Wait(ctx, u.Hostname()); err != nil {
			return retry.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reportURL, nil)
		if err != nil {
			return retry.Permanent(err)
		}

		resp, err := f.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return retry.WrapStatus(resp.StatusCode, string(msg))
		}

		body, err := io.ReadAll(http.MaxBytesReader(nil, resp.Body, f.cfg.MaxBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return retry.Permanent(fmt.Errorf("report exceeds %d bytes", f.cfg.MaxBytes))
			}
			return err
		}
		if !bytes.HasPrefix(body, pdfMagic) {
			return retry.Permanent(fmt.Errorf("response is not a PDF (%d bytes)", len(body)))
		}
		data = body
		return nil
	})
	if err != nil {
		return "", err
	}

	return f.extract(reportURL, data)
}

func (f *PDFFetcher) extract(reportURL string, data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("parse pdf: %w", err)
	}

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		text, err := extractPage(reader, i)
		if err != nil {
			f.logger.Warn("skipping unreadable pdf page",
				zap.String("url", reportURL),
				zap.Int("page", i),
				zap.Error(err),
			)
			continue
		}
		if text = normalizeWhitespace(text); text != "" {
			pages = append(pages, text)
		}
	}
	if len(pages) == 0 {
		return "", fmt.Errorf("%s: %w", reportURL, ErrNoText)
	}
	return strings.Join(pages, "\n\n"), nil
}

// extractPage isolates the library call; malformed pages can panic deep
// inside the content stream interpreter.
func extractPage(reader *pdf.Reader, num int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("page %d: %v", num, rec)
		}
	}()

	page := reader.Page(num)
	if page.V.IsNull() {
		return "", fmt.Errorf("page %d: missing object", num)
	}
	return page.GetPlainText(nil)
}

// normalizeWhitespace collapses runs of spaces inside lines and drops
// blank lines.
func normalizeWhitespace(s string) string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
