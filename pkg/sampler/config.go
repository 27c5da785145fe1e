package sampler

// StageConfig is one closed-set logit-space transform (spec §3). The set is
// enumerated and sealed via the unexported isStage method, matching spec §9
// ("The set of stages is closed and enumerated, making a tagged union the
// natural representation").
type StageConfig interface {
	isStage()
}

type Temperature struct{ Temp float32 }
type TopK struct{ N int }
type TopP struct {
	P       float32
	MinKeep int
}
type MinP struct {
	P       float32
	MinKeep int
}
type TypicalP struct {
	P       float32
	MinKeep int
}
type XTC struct {
	Probability float32
	Threshold   float32
	MinKeep     int
	Seed        uint64
}
type Penalties struct {
	LastN   int
	Repeat  float32
	Freq    float32
	Present float32
}
type DRY struct {
	Multiplier float32
	Base       float32
	AllowedLen int
	LastN      int
}
type Grammar struct {
	GBNF string
	Root string
}

func (Temperature) isStage() {}
func (TopK) isStage()        {}
func (TopP) isStage()        {}
func (MinP) isStage()        {}
func (TypicalP) isStage()    {}
func (XTC) isStage()         {}
func (Penalties) isStage()   {}
func (DRY) isStage()         {}
func (Grammar) isStage()     {}

// FinalizerConfig is the terminal stage that selects one token from the
// distribution the preceding stages produced. Exactly one must terminate a
// SamplerConfig's stage list.
type FinalizerConfig interface {
	isFinalizer()
}

type Greedy struct{}
type Dist struct{ Seed uint64 }
type MirostatV1 struct {
	Tau, Eta float32
	M        int
	Seed     uint64
}
type MirostatV2 struct {
	Tau, Eta float32
	Seed     uint64
}

func (Greedy) isFinalizer()     {}
func (Dist) isFinalizer()       {}
func (MirostatV1) isFinalizer() {}
func (MirostatV2) isFinalizer() {}

// Config is an ordered list of stages followed by exactly one finalizer.
// Order is semantically significant (spec §4.1): penalties before
// temperature behaves differently from temperature before penalties.
type Config struct {
	Stages    []StageConfig
	Finalizer FinalizerConfig
}

// Clone returns a deep-enough copy for per-turn sampler config ownership
// (spec §3, "Sampler configuration is cloned at the start of each turn").
// StageConfig/FinalizerConfig values are immutable value types, so copying
// the slice header is sufficient.
func (c Config) Clone() Config {
	stages := make([]StageConfig, len(c.Stages))
	copy(stages, c.Stages)
	return Config{Stages: stages, Finalizer: c.Finalizer}
}

// Default returns a commonly used configuration: repetition penalties, then
// top-k/top-p/temperature, finalized by distribution sampling. Mirrors the
// shape (not the exact thresholds) of the teacher's DefaultAgentConfig /
// the reference kernel's llama.cpp-style defaults.
func Default(seed uint64) Config {
	return Config{
		Stages: []StageConfig{
			Penalties{LastN: 64, Repeat: 1.1},
			TopK{N: 40},
			TopP{P: 0.95, MinKeep: 1},
			Temperature{Temp: 0.8},
		},
		Finalizer: Dist{Seed: seed},
	}
}
