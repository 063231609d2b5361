package imap

import (
	"strings"
	"testing"
)

func TestConfigWithDefaults(t *testing.T) {
	c := Config{Hostname: "imap.example.com"}.WithDefaults()
	if c.Port != defaultPort || c.ConnectTimeoutSec != defaultConnectTimeoutSec ||
		c.CommandTimeoutSec != defaultCommandTimeoutSec || c.MaxLiteralOctets != defaultMaxLiteralOctets {
		t.Fatalf("unexpected defaults: %+v", c)
	}
}

func TestConfigWithDefaultsPreservesExplicitValues(t *testing.T) {
	c := Config{Port: 143, ConnectTimeoutSec: 5}.WithDefaults()
	if c.Port != 143 || c.ConnectTimeoutSec != 5 {
		t.Fatalf("WithDefaults overwrote an explicit value: %+v", c)
	}
}

func TestConfigRedactedBlanksSecrets(t *testing.T) {
	c := Config{Username: "alice", Password: "hunter2", AccessToken: "tok123"}
	r := c.Redacted()
	if r.Password == "hunter2" || r.AccessToken == "tok123" {
		t.Fatalf("Redacted did not blank secrets: %+v", r)
	}
	if r.Username != "alice" {
		t.Fatalf("Redacted should not touch non-secret fields: %+v", r)
	}
}

func TestConfigLiteralOverflowPolicyReachesScanner(t *testing.T) {
	cfg := Config{LiteralOverflowPolicy: StreamSkipOverflow}.WithDefaults()
	s := NewScanner()
	s.MaxLiteral = cfg.MaxLiteralOctets
	s.Overflow = cfg.LiteralOverflowPolicy
	if s.Overflow != StreamSkipOverflow {
		t.Fatalf("Config.LiteralOverflowPolicy did not reach the Scanner: %v", s.Overflow)
	}
}

func TestConfigStringNeverLeaksSecrets(t *testing.T) {
	c := Config{Username: "alice", Password: "hunter2", AccessToken: "tok123"}
	s := c.String()
	if strings.Contains(s, "hunter2") || strings.Contains(s, "tok123") {
		t.Fatalf("Config.String leaked a secret: %s", s)
	}
}
