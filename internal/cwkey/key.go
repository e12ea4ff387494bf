// Package cwkey decodes cw-storage-plus storage keys.
//
// A Map entry is stored under len(namespace) as a big-endian uint16, then the
// namespace, then the entry key. An Item is stored under its bare namespace.
package cwkey

import (
	"encoding/binary"
	"unicode"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Key is a decoded storage key.
type Key struct {
	Namespace string
	Suffix    []byte
	IsMap     bool
}

// Decode splits a raw key into namespace and map suffix. Keys that do not carry a
// valid length-prefixed printable namespace are treated as Items.
func Decode(raw []byte) Key {
	if len(raw) >= 2 {
		n := int(binary.BigEndian.Uint16(raw[:2]))
		if n > 0 && 2+n <= len(raw) && isPrintable(raw[2:2+n]) {
			return Key{
				Namespace: string(raw[2 : 2+n]),
				Suffix:    raw[2+n:],
				IsMap:     true,
			}
		}
	}
	return Key{Namespace: Render(raw)}
}

// Display renders the key as "namespace" or "namespace[suffix]".
func (k Key) Display() string {
	if !k.IsMap {
		return k.Namespace
	}
	return k.Namespace + "[" + Render(k.Suffix) + "]"
}

// Render returns b as text when it is printable UTF-8 and as 0x-hex otherwise.
func Render(b []byte) string {
	if len(b) > 0 && isPrintable(b) {
		return string(b)
	}
	return hexutil.Encode(b)
}

func isPrintable(b []byte) bool {
	if !utf8.Valid(b) {
		return false
	}
	for _, r := range string(b) {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}
