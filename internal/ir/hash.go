package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for fingerprints. The version suffix allows the
// algorithm to change without colliding with old hashes.
const (
	DomainModel      = "codefirst/model/v1"
	DomainContextKey = "codefirst/context/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Hash fingerprints v under domain. v is anything encoding/json accepts.
func Hash(domain string, v any) (string, error) {
	val, err := FromGo(v)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", domain, err)
	}
	canonical, err := MarshalCanonical(val)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", domain, err)
	}
	return hashWithDomain(domain, canonical), nil
}

// ModelHash fingerprints a database mapping (or any model snapshot).
func ModelHash(model any) (string, error) {
	return Hash(DomainModel, model)
}

// ContextKey derives a stable key for a context type name and its
// connection, used to index persisted models and history rows.
func ContextKey(contextType, providerName, database string) string {
	canonical, _ := MarshalCanonical(Object{
		"context":  String(contextType),
		"provider": String(providerName),
		"database": String(database),
	})
	return hashWithDomain(DomainContextKey, canonical)[:16]
}

// MustModelHash is like ModelHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustModelHash(model any) string {
	h, err := ModelHash(model)
	if err != nil {
		panic(err)
	}
	return h
}
