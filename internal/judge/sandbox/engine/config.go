package engine

import "time"

// Config controls sandbox engine behavior.
type Config struct {
	// Host is the docker daemon address; empty uses the environment.
	Host string
	// ResultDir is where the in-image limiter writes result, stdout and stderr.
	ResultDir string
	// WaitMultiplier bounds the container wait at this many times the time limit.
	WaitMultiplier int
	MinWait        time.Duration
	// StdoutStderrMaxBytes truncates captured output.
	StdoutStderrMaxBytes int64
	PidsLimit            int64
	// MemoryHeadroomKB is added to the limiter's memory limit for the container ceiling; 0 disables the ceiling.
	MemoryHeadroomKB int64
	CleanupTimeout   time.Duration
}

const (
	defaultResultDir            = "/result"
	defaultWaitMultiplier       = 5
	defaultMinWait              = 2 * time.Second
	defaultStdoutStderrMaxBytes = 64 * 1024 * 1024
	defaultPidsLimit            = 64
	defaultCleanupTimeout       = 30 * time.Second
)

func (c Config) withDefaults() Config {
	if c.ResultDir == "" {
		c.ResultDir = defaultResultDir
	}
	if c.WaitMultiplier <= 0 {
		c.WaitMultiplier = defaultWaitMultiplier
	}
	if c.MinWait <= 0 {
		c.MinWait = defaultMinWait
	}
	if c.StdoutStderrMaxBytes <= 0 {
		c.StdoutStderrMaxBytes = defaultStdoutStderrMaxBytes
	}
	if c.PidsLimit <= 0 {
		c.PidsLimit = defaultPidsLimit
	}
	if c.CleanupTimeout <= 0 {
		c.CleanupTimeout = defaultCleanupTimeout
	}
	return c
}

// WaitTimeout is how long the engine waits for a container bound by timeLimit.
func (c Config) WaitTimeout(timeLimit time.Duration) time.Duration {
	c = c.withDefaults()
	wait := time.Duration(c.WaitMultiplier) * timeLimit
	if wait < c.MinWait {
		return c.MinWait
	}
	return wait
}
