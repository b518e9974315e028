package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/menta2k/brochure-composer/pkg/loader"
)

const proxyUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// proxyImage fetches ?url= server side and relays the bytes, so the browser
// sees a same-origin image.
func (s *Server) proxyImage(c *gin.Context) {
	ref := c.Query("url")
	if ref == "" {
		fail(c, http.StatusBadRequest, "missing url parameter", nil)
		return
	}
	if !loader.IsRemote(ref) {
		fail(c, http.StatusBadRequest, "only http and https urls can be proxied", nil)
		return
	}
	target := loader.NormalizeDriveURL(ref)

	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, target, nil)
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid url", err)
		return
	}
	ua := s.cfg.Loader.UserAgent
	if ua == "" {
		ua = proxyUserAgent
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "image/*")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("proxy fetch failed", zap.String("url", target), zap.Error(err))
		fail(c, http.StatusBadGateway, "failed to fetch image", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.logger.Warn("proxy upstream error", zap.String("url", target), zap.Int("status", resp.StatusCode))
		fail(c, resp.StatusCode, "failed to fetch image", nil)
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}
	var body io.Reader = resp.Body
	size := resp.ContentLength
	if max := s.cfg.Loader.MaxBytes; max > 0 {
		if size > max {
			fail(c, http.StatusRequestEntityTooLarge, "image too large", nil)
			return
		}
		body = io.LimitReader(resp.Body, max)
	}

	extra := map[string]string{
		"Cache-Control":               "public, max-age=3600",
		"Access-Control-Allow-Origin": "*",
	}
	c.DataFromReader(http.StatusOK, size, contentType, body, extra)
}
