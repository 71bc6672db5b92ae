package config

// Config carries the fixed database shape and the tunables of the
// surrounding tooling. The variable and site counts are the classic RepCRec
// configuration; replication placement is derived from them, so they are
// read from here everywhere rather than repeated as literals.
type Config struct {
	DB     DBConfig
	Runner RunnerConfig
	REPL   REPLConfig
	Audit  AuditConfig
}

type DBConfig struct {
	VariableCount int // distinct variables x1..xN
	SiteCount     int // sites 1..M
}

type RunnerConfig struct {
	Workers int // directory-mode concurrency
}

type REPLConfig struct {
	Prompt       string
	HistoryLimit int
}

type AuditConfig struct {
	Path string // sqlite file; empty disables auditing
}

func DefaultConfig() *Config {
	return &Config{
		DB: DBConfig{
			VariableCount: 20,
			SiteCount:     10,
		},
		Runner: RunnerConfig{
			Workers: 4,
		},
		REPL: REPLConfig{
			Prompt:       "> ",
			HistoryLimit: 100,
		},
		Audit: AuditConfig{
			Path: "",
		},
	}
}

// InitialValue returns the seed value of variable i (1-based).
func (c DBConfig) InitialValue(i int) int {
	return 10 * i
}

// Replicated reports whether variable i is stored on every site.
func (c DBConfig) Replicated(i int) bool {
	return i%2 == 0
}

// OwnerSite returns the single site holding a non-replicated variable i.
func (c DBConfig) OwnerSite(i int) int {
	return 1 + i%c.SiteCount
}

// SiteHolds reports whether site holds variable i.
func (c DBConfig) SiteHolds(site, i int) bool {
	return c.Replicated(i) || c.OwnerSite(i) == site
}
