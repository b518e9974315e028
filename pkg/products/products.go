// Package products validates the product records that fill a brochure.
package products

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/menta2k/brochure-composer/pkg/loader"
)

// MaxProducts is the largest batch accepted for one brochure.
const MaxProducts = 5

var (
	// ErrTooMany is returned for batches larger than MaxProducts.
	ErrTooMany = errors.New("too many products")
	// ErrInvalidImage is returned for image references that are not http(s) URLs.
	ErrInvalidImage = errors.New("invalid product image url")
)

// Product is one spreadsheet row.
type Product struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image"`
}

// Normalize checks p and rewrites its image to a directly fetchable URL.
func (p Product) Normalize() (Product, error) {
	p.ID = strings.TrimSpace(p.ID)
	p.Name = strings.TrimSpace(p.Name)
	ref := strings.TrimSpace(p.Image)

	u, err := url.Parse(ref)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return p, fmt.Errorf("%w: product %q: %q", ErrInvalidImage, p.ID, ref)
	}
	p.Image = loader.NormalizeDriveURL(ref)
	return p, nil
}

// Validate normalizes a batch. Every product is checked and all problems are
// reported together.
func Validate(in []Product) ([]Product, error) {
	if len(in) > MaxProducts {
		return nil, fmt.Errorf("%w: got %d, maximum is %d", ErrTooMany, len(in), MaxProducts)
	}
	out := make([]Product, 0, len(in))
	var errs []error
	for _, p := range in {
		n, err := p.Normalize()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, n)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// Decode reads a JSON array of products and validates it.
func Decode(r io.Reader) ([]Product, error) {
	var in []Product
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return nil, fmt.Errorf("failed to decode products: %w", err)
	}
	return Validate(in)
}

// Names returns the product names in order, skipping blanks. They are the
// strings offered for floating text.
func Names(ps []Product) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		if p.Name != "" {
			out = append(out, p.Name)
		}
	}
	return out
}

// Images returns the distinct image references in order.
func Images(ps []Product) []string {
	seen := make(map[string]bool, len(ps))
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		if p.Image == "" || seen[p.Image] {
			continue
		}
		seen[p.Image] = true
		out = append(out, p.Image)
	}
	return out
}
