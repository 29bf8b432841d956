package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// definedKeys reports whether a (possibly nested) key was present in the
// decoded file. toml.MetaData satisfies it directly.
type definedKeys interface {
	IsDefined(key ...string) bool
}

func decodeTOML(path string, out *fileConfig) (definedKeys, error) {
	meta, err := toml.DecodeFile(path, out)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("unknown keys %s", strings.Join(keys, ", "))
	}
	return &meta, nil
}

// yamlKeys walks the generic decode of a YAML document.
type yamlKeys map[string]any

func (m yamlKeys) IsDefined(key ...string) bool {
	cur := map[string]any(m)
	for i, k := range key {
		v, ok := cur[k]
		if !ok {
			return false
		}
		if i == len(key)-1 {
			return true
		}
		switch next := v.(type) {
		case map[string]any:
			cur = next
		case yamlKeys:
			cur = next
		default:
			return false
		}
	}
	return false
}

func decodeYAML(path string, out *fileConfig) (definedKeys, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return yamlKeys(raw), nil
}
