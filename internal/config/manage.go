package config

import (
	"fmt"
	"sort"
)

// Setting sources reported by Settings.
const (
	SourceDefault = "default"
	SourceEnv     = "env"
)

// Setting is one program setting as shown by `configkv env`.
type Setting struct {
	Key    string
	EnvVar string
	Value  string
	Source string // SourceDefault or SourceEnv
}

// Settings lists the non-secret settings of cfg sorted by key. A setting
// whose value differs from the built-in default is reported as coming from
// the environment, the only override layer Load applies.
func Settings(cfg Config) []Setting {
	def := defaults()
	out := make([]Setting, 0, len(specs))
	for _, s := range specs {
		if s.secret {
			continue
		}
		v := fmt.Sprint(s.extract(cfg))
		src := SourceDefault
		if v != fmt.Sprint(s.extract(def)) {
			src = SourceEnv
		}
		out = append(out, Setting{Key: s.key, EnvVar: s.env, Value: v, Source: src})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
