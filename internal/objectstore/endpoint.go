package objectstore

import "strings"

// inferRegionFromEndpoint guesses an S3-compatible region from the endpoint
// host, covering the providers the teacher's bucket wiring is known to hit:
// Cloudflare R2 (always "auto") and Aliyun OSS (the "oss-*" label embedded in
// the hostname). Returns "" when no heuristic matches.
func inferRegionFromEndpoint(endpoint string) string {
	host := extractEndpointHost(endpoint)

	if strings.Contains(host, "r2.cloudflarestorage.com") {
		return "auto"
	}

	for _, label := range strings.Split(host, ".") {
		if strings.HasPrefix(label, "oss-") {
			return label
		}
	}

	return ""
}

// shouldForcePathStyle reports whether the endpoint looks like a local or
// self-hosted MinIO-style deployment, where path-style addressing avoids
// bucket-subdomain DNS/TLS issues. Cloud providers (AWS S3, R2, OSS) keep
// virtual-hosted style.
func shouldForcePathStyle(endpoint string) bool {
	host := strings.ToLower(extractEndpointHost(endpoint))

	return host == "localhost" ||
		host == "127.0.0.1" ||
		host == "::1" ||
		strings.HasSuffix(host, ".nip.io") ||
		strings.HasSuffix(host, ".local") ||
		strings.Contains(host, "minio")
}

// extractEndpointHost strips scheme, path, and port from an endpoint URL,
// returning just the host (or literal IPv6 address without brackets).
func extractEndpointHost(endpoint string) string {
	authority := stripEndpointScheme(endpoint)
	if idx := strings.Index(authority, "/"); idx >= 0 {
		authority = authority[:idx]
	}

	if strings.HasPrefix(authority, "[") {
		rest := strings.TrimPrefix(authority, "[")
		if idx := strings.Index(rest, "]"); idx >= 0 {
			return rest[:idx]
		}
		return rest
	}

	if idx := strings.Index(authority, ":"); idx >= 0 {
		return authority[:idx]
	}
	return authority
}

// stripEndpointScheme removes a leading "scheme://" from endpoint and
// trims surrounding whitespace, returning the bare "host[:port]/path"
// authority minio.New expects. Endpoints without a scheme pass through
// unchanged.
func stripEndpointScheme(endpoint string) string {
	authority := strings.TrimSpace(endpoint)
	if idx := strings.Index(authority, "://"); idx >= 0 {
		authority = authority[idx+3:]
	}
	return authority
}

// endpointIsSecure reports whether endpoint's scheme calls for TLS.
// sync_config always stores s3_endpoint with an explicit scheme (see
// cmd/projex's --endpoint help and the mobile HTTPS check); a missing
// scheme defaults to secure, matching the teacher's S3Uploader default.
func endpointIsSecure(endpoint string) bool {
	return !strings.HasPrefix(strings.TrimSpace(endpoint), "http://")
}

// hostPort strips the scheme and any path from endpoint, leaving the bare
// "host[:port]" authority minio.New requires.
func hostPort(endpoint string) string {
	authority := stripEndpointScheme(endpoint)
	if idx := strings.Index(authority, "/"); idx >= 0 {
		authority = authority[:idx]
	}
	return authority
}
