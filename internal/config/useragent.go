package config

import (
	"fmt"
	"runtime"
	"strings"
)

// Version is stamped by the main package at startup.
var Version = "dev"

const userAgentProduct = "go-appforge"

// UserAgent builds the User-Agent sent to the model provider and to GitHub:
// go-appforge/<version> (<os_type>; <arch>)
func UserAgent() string {
	ua := fmt.Sprintf("%s/%s (%s; %s)", userAgentProduct, Version, osType(), arch())
	if isValidHeaderValue(ua) {
		return ua
	}
	if sanitized := sanitizePrintableASCII(ua); isValidHeaderValue(sanitized) {
		return sanitized
	}
	return userAgentProduct
}

func osType() string {
	switch runtime.GOOS {
	case "darwin":
		return "Mac OS"
	case "linux":
		return "Linux"
	case "windows":
		return "Windows"
	case "freebsd":
		return "FreeBSD"
	default:
		return runtime.GOOS
	}
}

func arch() string {
	switch runtime.GOARCH {
	case "amd64":
		return "x86_64"
	default:
		return runtime.GOARCH
	}
}

func sanitizePrintableASCII(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= ' ' && r <= '~' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func isValidHeaderValue(s string) bool {
	if strings.TrimSpace(s) == "" {
		return false
	}
	for _, r := range s {
		if r < ' ' || r == 0x7f {
			return false
		}
	}
	return true
}
