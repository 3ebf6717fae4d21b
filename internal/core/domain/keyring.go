package domain

import (
	"fmt"
	"strings"
)

// APIKey is a named provider credential
type APIKey struct {
	Name string `json:"name"`
	Key  string `json:"key"`
}

// Keyring is the persisted list of named keys, in insertion order
type Keyring struct {
	Keys []APIKey `json:"keys"`
}

// Put appends a key or replaces the key with the same name
func (k *Keyring) Put(name, key string) {
	for i := range k.Keys {
		if k.Keys[i].Name == name {
			k.Keys[i].Key = key
			return
		}
	}
	k.Keys = append(k.Keys, APIKey{Name: name, Key: key})
}

// Lookup returns the key with the given name
func (k *Keyring) Lookup(name string) (APIKey, bool) {
	for _, entry := range k.Keys {
		if entry.Name == name {
			return entry, true
		}
	}
	return APIKey{}, false
}

// ValidateKey checks a named key before it is stored
func ValidateKey(name, key string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: key name cannot be empty", ErrValidation)
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: key value cannot be empty", ErrValidation)
	}
	return nil
}

// Masked returns the key with everything but the last four characters hidden
func (a APIKey) Masked() string {
	if len(a.Key) <= 4 {
		return strings.Repeat("*", len(a.Key))
	}
	return strings.Repeat("*", len(a.Key)-4) + a.Key[len(a.Key)-4:]
}
