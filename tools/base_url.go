package tools

import "strings"

func FullURL(baseURL, path string) string {
	if baseURL == "" {
		return ""
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if path == "" {
		return baseURL
	}
	if path[0] == '?' {
		return baseURL + "/" + path
	}
	return baseURL + "/" + strings.TrimLeft(path, "/")
}
