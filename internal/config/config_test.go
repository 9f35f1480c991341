package config

import "testing"

func TestConfig_ApplyDefaults(t *testing.T) {
	c := Config{}
	c.applyDefaults()

	if c.DaemonName != "default" {
		t.Errorf("DaemonName = %q, want %q", c.DaemonName, "default")
	}
	if c.MaxMessageSize != 1<<20 {
		t.Errorf("MaxMessageSize = %d, want %d", c.MaxMessageSize, 1<<20)
	}
	if c.MaxSeqGap != 1000 {
		t.Errorf("MaxSeqGap = %d, want 1000", c.MaxSeqGap)
	}
	if c.MaxChunksPerChannel != 1000 {
		t.Errorf("MaxChunksPerChannel = %d, want 1000", c.MaxChunksPerChannel)
	}
}

func TestConfig_ApplyDefaultsPreservesExplicitValues(t *testing.T) {
	c := Config{MaxSeqGap: 42, DaemonName: "custom"}
	c.applyDefaults()

	if c.MaxSeqGap != 42 {
		t.Errorf("MaxSeqGap = %d, want 42 (explicit value preserved)", c.MaxSeqGap)
	}
	if c.DaemonName != "custom" {
		t.Errorf("DaemonName = %q, want %q", c.DaemonName, "custom")
	}
}
