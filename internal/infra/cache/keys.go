package cache

import "strings"

// Key joins parts with ':' to build a namespaced cache key.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// KeyShareLink is the cache key for a share link resolved by its public token.
func KeyShareLink(uniqueShareID string) string {
	return Key("shares", "token", uniqueShareID)
}

// KeyEbayAuthOutcome is the cache key for the result of one OAuth authorization attempt.
func KeyEbayAuthOutcome(stateDigest string) string {
	return Key("ebay", "auth", stateDigest)
}
