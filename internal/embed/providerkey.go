package embed

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// authHeaderNames lists header keys (case-insensitive) excluded from the
// provider key so that rotating a secret doesn't fragment the embedding
// cache across otherwise-identical deployments.
var authHeaderNames = map[string]bool{
	"authorization": true,
	"x-api-key":     true,
	"api-key":       true,
	"x-goog-api-key": true,
}

// ProviderKey hashes the non-secret shape of a provider deployment —
// provider id, base URL, model, and any non-auth headers — so that
// embedding_cache rows are segregated across different deployments of the
// "same" provider id.
func ProviderKey(id, baseURL, model string, headers map[string]string) string {
	var pairs []string
	for k, v := range headers {
		if authHeaderNames[strings.ToLower(k)] {
			continue
		}
		pairs = append(pairs, strings.ToLower(k)+"="+v)
	}
	sort.Strings(pairs)

	h := sha256.New()
	h.Write([]byte(id))
	h.Write([]byte{0})
	h.Write([]byte(baseURL))
	h.Write([]byte{0})
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(pairs, "&")))
	return hex.EncodeToString(h.Sum(nil))
}
