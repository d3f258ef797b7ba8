package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	// APIKeyHeader carries a function key.
	APIKeyHeader = "X-Functions-Key"
	// APIKeyQueryParam carries a function key when headers cannot be set.
	APIKeyQueryParam = "code"
)

// apiKey is a configured key. Only its hash is kept in memory.
type apiKey struct {
	id   string
	hash [sha256.Size]byte
}

func newAPIKey(raw string) apiKey {
	h := sha256.Sum256([]byte(raw))
	return apiKey{id: hex.EncodeToString(h[:4]), hash: h}
}

// APIKeyMiddleware accepts requests presenting one of keys in the
// X-Functions-Key header or the code query parameter. Blank keys are
// ignored.
func APIKeyMiddleware(keys []string) echo.MiddlewareFunc {
	var known []apiKey
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			known = append(known, newAPIKey(k))
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if AuthSkipper(c) {
				return next(c)
			}

			raw := extractAPIKey(c)
			if raw == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing api key")
			}

			key, ok := matchAPIKey(known, raw)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid api key")
			}

			setPrincipal(c, "key:"+key.id)
			return next(c)
		}
	}
}

// extractAPIKey returns the key from the header, then the query string.
func extractAPIKey(c echo.Context) string {
	if k := c.Request().Header.Get(APIKeyHeader); k != "" {
		return k
	}
	return c.QueryParam(APIKeyQueryParam)
}

// matchAPIKey compares the hash of raw against every known key without
// stopping at the first match, so timing does not reveal which key matched.
func matchAPIKey(known []apiKey, raw string) (apiKey, bool) {
	sum := sha256.Sum256([]byte(raw))
	var found apiKey
	matched := 0
	for _, k := range known {
		eq := subtle.ConstantTimeCompare(sum[:], k.hash[:])
		if eq == 1 {
			found = k
		}
		matched |= eq
	}
	return found, matched == 1
}
