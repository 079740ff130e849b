// SPDX-License-Identifier: Apache-2.0

package sharedkey

import (
	"encoding/base64"
	"fmt"

	"github.com/BurntSushi/toml"
)

// Keytab maps principal names (users and services alike) to their shared
// secrets. A principal must appear in the keytabs of both parties for an
// exchange between them to succeed.
type Keytab map[string][]byte

// Key returns the secret for a principal.
func (kt Keytab) Key(name string) ([]byte, bool) {
	k, ok := kt[name]
	return k, ok
}

// keytabFile is the on-disk TOML representation:
//
//	default-principal = "alice"
//
//	[keys]
//	alice = "vQplXM0Uly..."            # base64
//	"host/files.example.com" = "..."
type keytabFile struct {
	DefaultPrincipal string            `toml:"default-principal"`
	Keys             map[string]string `toml:"keys"`
}

// LoadKeytab reads a TOML keytab file. It returns the keytab and the
// default principal named by the file, if any.
func LoadKeytab(path string) (Keytab, string, error) {
	var f keytabFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, "", fmt.Errorf("keytab %s: %w", path, err)
	}

	kt := make(Keytab, len(f.Keys))
	for name, text := range f.Keys {
		key, err := base64.StdEncoding.DecodeString(text)
		if err != nil {
			return nil, "", fmt.Errorf("keytab %s: principal %q: %w", path, name, err)
		}
		if len(key) == 0 {
			return nil, "", fmt.Errorf("keytab %s: principal %q has an empty key", path, name)
		}
		kt[name] = key
	}

	if f.DefaultPrincipal != "" {
		if _, ok := kt[f.DefaultPrincipal]; !ok {
			return nil, "", fmt.Errorf("keytab %s: default principal %q has no key", path, f.DefaultPrincipal)
		}
	}

	return kt, f.DefaultPrincipal, nil
}
