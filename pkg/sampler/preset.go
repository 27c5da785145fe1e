package sampler

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// presetDoc is the YAML shape a host-provided preset file takes — a named
// list of stages followed by one finalizer, mirroring Config but with
// string-tagged stage/finalizer kinds so it can round-trip through YAML
// without custom UnmarshalYAML methods per StageConfig variant.
type presetDoc struct {
	Stages    []presetStage    `yaml:"stages"`
	Finalizer presetFinalizer  `yaml:"finalizer"`
}

type presetStage struct {
	Kind    string  `yaml:"kind"`
	Temp    float32 `yaml:"temp"`
	N       int     `yaml:"n"`
	P       float32 `yaml:"p"`
	MinKeep int     `yaml:"min_keep"`
	Prob    float32 `yaml:"probability"`
	Thresh  float32 `yaml:"threshold"`
	Seed    uint64  `yaml:"seed"`
	LastN   int     `yaml:"last_n"`
	Repeat  float32 `yaml:"repeat"`
	Freq    float32 `yaml:"freq"`
	Present float32 `yaml:"present"`
	Mult    float32 `yaml:"multiplier"`
	Base    float32 `yaml:"base"`
	Allowed int     `yaml:"allowed_len"`
	GBNF    string  `yaml:"gbnf"`
	Root    string  `yaml:"root"`
}

type presetFinalizer struct {
	Kind string  `yaml:"kind"`
	Tau  float32 `yaml:"tau"`
	Eta  float32 `yaml:"eta"`
	M    int     `yaml:"m"`
	Seed uint64  `yaml:"seed"`
}

// ParsePreset decodes a YAML sampler preset (the format a host ships under
// e.g. presets/creative.yaml) into a Config. Unknown stage/finalizer kinds
// are rejected rather than silently ignored.
func ParsePreset(data []byte) (Config, error) {
	var doc presetDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Config{}, fmt.Errorf("sampler: parsing preset: %w", err)
	}

	cfg := Config{}
	for _, s := range doc.Stages {
		stage, err := decodePresetStage(s)
		if err != nil {
			return Config{}, err
		}
		cfg.Stages = append(cfg.Stages, stage)
	}

	finalizer, err := decodePresetFinalizer(doc.Finalizer)
	if err != nil {
		return Config{}, err
	}
	cfg.Finalizer = finalizer

	return cfg, nil
}

func decodePresetStage(s presetStage) (StageConfig, error) {
	switch s.Kind {
	case "temperature":
		return Temperature{Temp: s.Temp}, nil
	case "top_k":
		return TopK{N: s.N}, nil
	case "top_p":
		return TopP{P: s.P, MinKeep: s.MinKeep}, nil
	case "min_p":
		return MinP{P: s.P, MinKeep: s.MinKeep}, nil
	case "typical_p":
		return TypicalP{P: s.P, MinKeep: s.MinKeep}, nil
	case "xtc":
		return XTC{Probability: s.Prob, Threshold: s.Thresh, MinKeep: s.MinKeep, Seed: s.Seed}, nil
	case "penalties":
		return Penalties{LastN: s.LastN, Repeat: s.Repeat, Freq: s.Freq, Present: s.Present}, nil
	case "dry":
		return DRY{Multiplier: s.Mult, Base: s.Base, AllowedLen: s.Allowed, LastN: s.LastN}, nil
	case "grammar":
		return Grammar{GBNF: s.GBNF, Root: s.Root}, nil
	default:
		return nil, fmt.Errorf("sampler: unknown preset stage kind %q", s.Kind)
	}
}

func decodePresetFinalizer(f presetFinalizer) (FinalizerConfig, error) {
	switch f.Kind {
	case "greedy":
		return Greedy{}, nil
	case "dist":
		return Dist{Seed: f.Seed}, nil
	case "mirostat_v1":
		return MirostatV1{Tau: f.Tau, Eta: f.Eta, M: f.M, Seed: f.Seed}, nil
	case "mirostat_v2":
		return MirostatV2{Tau: f.Tau, Eta: f.Eta, Seed: f.Seed}, nil
	default:
		return nil, fmt.Errorf("sampler: unknown preset finalizer kind %q", f.Kind)
	}
}
