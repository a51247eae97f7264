package config

import (
	"fmt"
	"os"
	"strings"
)

const envSecretRefPrefix = "env://"

// ResolveSecretRef resolves a secret reference using process environment lookup.
// Supported reference forms are "env://VARIABLE_NAME" and "VARIABLE_NAME".
func ResolveSecretRef(ref string) (string, error) {
	return ResolveSecretRefWithLookup(ref, os.LookupEnv)
}

// ResolveSecretRefWithLookup resolves a secret reference using the supplied lookup function.
func ResolveSecretRefWithLookup(ref string, lookup func(string) (string, bool)) (string, error) {
	name, err := parseSecretRefName(ref)
	if err != nil {
		return "", err
	}
	if lookup == nil {
		return "", fmt.Errorf("secret lookup function is required")
	}
	value, ok := lookup(name)
	if !ok || strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("secret_ref %q resolved empty value", name)
	}
	return value, nil
}

// ResolveEnvValue resolves a config value using literal and secret-ref env variables.
// `fallback` is applied before secret-ref resolution when the literal env var is empty.
func ResolveEnvValue(literalEnvVar string, secretRefEnvVar string, fallback string) string {
	literal := strings.TrimSpace(os.Getenv(literalEnvVar))
	if literal == "" {
		literal = fallback
	}
	secretRef := strings.TrimSpace(os.Getenv(secretRefEnvVar))
	if secretRef == "" {
		return literal
	}
	value, err := ResolveSecretRef(secretRef)
	if err != nil {
		return literal
	}
	return value
}

// RedactSecret returns a deterministic redacted marker for non-empty secret material.
func RedactSecret(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	return "***redacted***"
}

func parseSecretRefName(ref string) (string, error) {
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" {
		return "", fmt.Errorf("secret_ref is required")
	}
	name := strings.TrimPrefix(trimmed, envSecretRefPrefix)
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("secret_ref %q has no variable name", ref)
	}
	return name, nil
}
