// Reef is a Conan package repository service.
// Copyright (C) 2025 Matthew Burns
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package conan serves the read side of the Conan v1 HTTP API over the
// object store.
package conan

import (
	"fmt"
	"strings"

	"gopkg.in/ini.v1"
)

// Info is the parsed content of a conaninfo.txt: the key=value pairs of
// every section, plus the recipe hash, which Conan stores as a bare key
// in its own section.
type Info struct {
	Sections   map[string]map[string]string
	RecipeHash string
}

const recipeHashSection = "recipe_hash"

// ParseInfo parses conaninfo.txt bytes. The grammar is permissive:
// [section] headers, key=value lines, bare keys, comments and blank
// lines. Bare keys carry no value and are left out of the section maps;
// the first bare key of the recipe_hash section is the recipe hash.
func ParseInfo(data []byte) (*Info, error) {
	f, err := ini.LoadSources(ini.LoadOptions{
		AllowBooleanKeys:   true,
		KeyValueDelimiters: "=",
	}, data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse conaninfo: %w", err)
	}

	valued := valuedKeys(data)

	info := &Info{Sections: make(map[string]map[string]string)}
	for _, sec := range f.Sections() {
		name := sec.Name()
		if name == ini.DefaultSection {
			continue
		}
		if name == recipeHashSection {
			if keys := sec.KeyStrings(); len(keys) > 0 {
				info.RecipeHash = keys[0]
			}
			continue
		}

		m := make(map[string]string)
		for _, k := range sec.Keys() {
			if !valued[name+"\x00"+k.Name()] {
				continue
			}
			m[k.Name()] = k.Value()
		}
		info.Sections[name] = m
	}
	return info, nil
}

// valuedKeys records which keys were written with an explicit "=", since
// the parsed form cannot tell a bare key from a true boolean value.
func valuedKeys(data []byte) map[string]bool {
	valued := make(map[string]bool)
	section := ""
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.TrimSpace(line[1 : len(line)-1])
			continue
		}
		if eq := strings.Index(line, "="); eq >= 0 {
			key := strings.TrimSpace(line[:eq])
			if key != "" {
				valued[section+"\x00"+key] = true
			}
		}
	}
	return valued
}
