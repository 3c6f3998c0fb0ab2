package ratelimit

import "strings"

// LoginKey builds a limiter key for admin login attempts from a client
// address. Empty addresses yield no key, which disables the limit.
func LoginKey(clientIP string) string {
	clientIP = strings.TrimSpace(clientIP)
	if clientIP == "" {
		return ""
	}
	return "login:" + clientIP
}

// LookupKey builds a limiter key for front token lookups.
func LookupKey(clientIP string) string {
	clientIP = strings.TrimSpace(clientIP)
	if clientIP == "" {
		return ""
	}
	return "lookup:" + clientIP
}
