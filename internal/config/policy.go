// Package config loads the admission policy file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/serroba/gatekeeper/internal/ratelimit"
	"gopkg.in/yaml.v3"
)

// LoadPolicyFile reads a YAML policy file and overlays it on base. Keys absent
// from the file keep their base value. The result is validated.
//
//	maxPerRecipient: 5
//	maxGlobal: 50
//	window: 1s
func LoadPolicyFile(path string, base ratelimit.Policy) (ratelimit.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ratelimit.Policy{}, fmt.Errorf("failed to read policy file %q: %w", path, err)
	}

	policy, err := ParsePolicy(data, base)
	if err != nil {
		return ratelimit.Policy{}, fmt.Errorf("policy file %q: %w", path, err)
	}

	return policy, nil
}

// ParsePolicy overlays the YAML document in data on base.
func ParsePolicy(data []byte, base ratelimit.Policy) (ratelimit.Policy, error) {
	policy := base

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&policy); err != nil && !errors.Is(err, io.EOF) {
		return ratelimit.Policy{}, fmt.Errorf("failed to parse policy: %w", err)
	}

	if err := policy.Validate(); err != nil {
		return ratelimit.Policy{}, err
	}

	return policy, nil
}
