package ipfs

import (
	"fmt"
	"net/url"
	"strings"
)

// GatewayURL builds https://<host>/ipfs/<cid>
func GatewayURL(host, cid string) string {
	host = strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(host, "https://"), "http://"), "/")
	return fmt.Sprintf("https://%s/ipfs/%s", host, cid)
}

// CIDFromURL extracts the CID from a gateway URL, an ipfs:// URI or a bare CID
func CIDFromURL(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if strings.HasPrefix(s, "ipfs://") {
		cid := strings.TrimPrefix(strings.TrimPrefix(s, "ipfs://"), "ipfs/")
		cid = strings.SplitN(cid, "/", 2)[0]
		return cid, cid != ""
	}
	if !strings.Contains(s, "://") {
		if strings.Contains(s, "/") {
			return "", false
		}
		return s, true
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", false
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i < len(parts)-1; i++ {
		if parts[i] == "ipfs" && parts[i+1] != "" {
			return parts[i+1], true
		}
	}
	return "", false
}
