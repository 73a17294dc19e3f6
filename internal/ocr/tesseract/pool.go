//go:build cgo

package tesseract

import (
	"context"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"github.com/racephotos/bibfinder/internal/errors"
	"github.com/racephotos/bibfinder/internal/logger"
)

// Pool hands out Tesseract clients to one caller at a time.
type Pool struct {
	clients   chan *gosseract.Client
	size      int
	done      chan struct{} // closed by Close
	closeOnce sync.Once
}

// NewPool creates cfg.Size configured engines.
func NewPool(cfg Config) (*Pool, error) {
	size := max(1, cfg.Size)
	lang := cfg.Language
	if lang == "" {
		lang = "eng"
	}

	p := &Pool{clients: make(chan *gosseract.Client, size), size: size, done: make(chan struct{})}
	for i := range size {
		client, err := newClient(lang, cfg.TessdataPrefix)
		if err != nil {
			p.drain(i)
			return nil, errors.New(err).
				Component("ocr.tesseract").
				Category(errors.CategoryConfiguration).
				Context("engine", i).
				Build()
		}
		p.clients <- client
	}

	GetLogger().Info("tesseract pool ready",
		logger.Int("size", size),
		logger.String("language", lang),
		logger.String("version", gosseract.Version()))
	return p, nil
}

func newClient(lang, tessdataPrefix string) (*gosseract.Client, error) {
	client := gosseract.NewClient()
	if tessdataPrefix != "" {
		if err := client.SetTessdataPrefix(tessdataPrefix); err != nil {
			_ = client.Close()
			return nil, err
		}
	}
	if err := client.SetLanguage(lang); err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := client.SetWhitelist(DigitWhitelist); err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// Size returns the number of engines in the pool.
func (p *Pool) Size() int { return p.size }

// Recognize runs one engine over image and returns the recognized text and
// the mean word confidence on Tesseract's 0..100 scale.
func (p *Pool) Recognize(ctx context.Context, image []byte) (string, float64, error) {
	if p.isClosed() {
		return "", 0, ErrPoolClosed
	}

	var client *gosseract.Client
	select {
	case client = <-p.clients:
	case <-p.done:
		return "", 0, ErrPoolClosed
	case <-ctx.Done():
		return "", 0, ctx.Err()
	}
	defer func() { p.clients <- client }()
	if p.isClosed() {
		return "", 0, ErrPoolClosed
	}

	if err := client.SetImageFromBytes(image); err != nil {
		return "", 0, errors.New(err).
			Component("ocr.tesseract").
			Category(errors.CategoryImageProcessing).
			Build()
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return "", 0, errors.New(err).
			Component("ocr.tesseract").
			Category(errors.CategoryService).
			Context("operation", "recognize").
			Build()
	}

	words := make([]string, 0, len(boxes))
	var total float64
	for _, b := range boxes {
		w := strings.TrimSpace(b.Word)
		if w == "" {
			continue
		}
		words = append(words, w)
		total += b.Confidence
	}
	if len(words) == 0 {
		return "", 0, nil
	}
	return strings.Join(words, " "), total / float64(len(words)), nil
}

// Close waits for in-flight recognitions and releases every engine.
func (p *Pool) Close() error {
	var errs []error
	p.closeOnce.Do(func() {
		close(p.done)
		for range p.size {
			client := <-p.clients
			if err := client.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

// drain closes the first n engines already placed in the pool.
func (p *Pool) drain(n int) {
	for range n {
		_ = (<-p.clients).Close()
	}
}

func (p *Pool) isClosed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}
