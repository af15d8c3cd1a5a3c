package mediasource

import "strings"

// ClassifyError turns a raw download failure into a message that tells a human
// whether retrying later is likely to help.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "403") || strings.Contains(msg, "Forbidden"):
		return "YouTube blocked the request (HTTP 403). This is usually temporary rate limiting; try again later or pick another candidate."
	case strings.Contains(msg, "unable to download video data"):
		return "Video unavailable or region-locked: " + msg
	case strings.Contains(msg, "HTTP Error"):
		return "Network error: " + msg
	default:
		return msg
	}
}
