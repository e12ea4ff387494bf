package cwkey

import (
	"bytes"
	"sort"

	"cwstate/internal/model"
)

// Item is a single-value storage entry.
type Item struct {
	Name  string
	Raw   []byte
	Value []byte
}

// MapEntry is one entry of a storage map.
type MapEntry struct {
	Key   []byte
	Value []byte
}

// Map is a storage map with its entries ordered by key.
type Map struct {
	Name    string
	Entries []MapEntry
}

// Grouped is a snapshot arranged the way contracts declare their storage.
type Grouped struct {
	Items []Item
	Maps  []Map
}

// Group arranges a snapshot into items and maps, both sorted by name.
func Group(s model.Snapshot) Grouped {
	var out Grouped
	maps := make(map[string]*Map)

	for raw, value := range s.Entries {
		key := Decode([]byte(raw))
		if !key.IsMap {
			out.Items = append(out.Items, Item{Name: key.Namespace, Raw: []byte(raw), Value: value})
			continue
		}
		m, ok := maps[key.Namespace]
		if !ok {
			m = &Map{Name: key.Namespace}
			maps[key.Namespace] = m
		}
		m.Entries = append(m.Entries, MapEntry{Key: key.Suffix, Value: value})
	}

	sort.Slice(out.Items, func(i, j int) bool {
		if out.Items[i].Name != out.Items[j].Name {
			return out.Items[i].Name < out.Items[j].Name
		}
		return bytes.Compare(out.Items[i].Raw, out.Items[j].Raw) < 0
	})

	out.Maps = make([]Map, 0, len(maps))
	for _, m := range maps {
		sort.Slice(m.Entries, func(i, j int) bool {
			return bytes.Compare(m.Entries[i].Key, m.Entries[j].Key) < 0
		})
		out.Maps = append(out.Maps, *m)
	}
	sort.Slice(out.Maps, func(i, j int) bool { return out.Maps[i].Name < out.Maps[j].Name })

	return out
}
