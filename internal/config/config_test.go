package config

import "testing"

func TestGetHost(t *testing.T) {
	cfg := ServerConfig{Host: "localhost"}
	if got := cfg.GetHost(); got != "localhost" {
		t.Errorf("host = %q, want localhost", got)
	}

	t.Setenv("SERVER_HOST", "0.0.0.0")
	if got := cfg.GetHost(); got != "0.0.0.0" {
		t.Errorf("host = %q, want the SERVER_HOST override", got)
	}
}
