package rules

import (
	"net/url"
	"strings"
)

// NormalizeUPI extracts a lowercased UPI handle from a QR/OCR payload.
// It understands upi: / upi:// payment URIs (the handle is the pa query
// parameter) and falls back to the generic handle pattern. Returns "" when
// no handle can be found.
func NormalizeUPI(data string) string {
	if strings.HasPrefix(data, "upi:") {
		raw := data
		if !strings.HasPrefix(data, "upi://") {
			raw = "upi://" + strings.SplitN(data, ":", 2)[1]
		}
		if u, err := url.Parse(raw); err == nil {
			if pa := u.Query().Get("pa"); pa != "" {
				return strings.ToLower(pa)
			}
		}
	}

	if m := upiGenericRe.FindString(data); m != "" {
		return strings.ToLower(m)
	}
	return ""
}
