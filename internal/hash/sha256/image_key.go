// Package sha256 derives the content keys the image downloader caches files
// under.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/JakeFAU/loc-crawler/internal/crawler"
)

// ImageKey returns the hex SHA-256 digest of the stripped item id, a slash
// and the page number. The downloader names the cached image after it.
func ImageKey(item string, page int) string {
	sum := sha256.Sum256([]byte(crawler.StripID(item) + "/" + strconv.Itoa(page)))
	return hex.EncodeToString(sum[:])
}
