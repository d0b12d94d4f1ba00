package main

import (
	"testing"

	"mobistock/backend/internal/config"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	for _, cfg := range []config.Config{
		{AuthSecret: "short", ManagerPIN: "739154"},
		{AuthSecret: "0123456789abcdef0123456789abcdef", ManagerPIN: "12345"},
		{AuthSecret: "0123456789abcdef0123456789abcdef", ManagerPIN: "123456"},
		{AuthSecret: "0123456789abcdef0123456789abcdef", ManagerPIN: "777777"},
		{AuthSecret: "0123456789abcdef0123456789abcdef", ManagerPIN: "987654"},
	} {
		if err := validateSecurityConfig(cfg); err == nil {
			t.Fatalf("expected weak config to be rejected: %+v", cfg)
		}
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", ManagerPIN: "739154"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestValidatePINStrength(t *testing.T) {
	for _, pin := range []string{"112233", "121212", "135791", "864209"} {
		switch pin {
		case "112233", "121212":
			if err := validatePINStrength(pin); err == nil {
				t.Fatalf("expected %s to be rejected", pin)
			}
		default:
			if err := validatePINStrength(pin); err != nil {
				t.Fatalf("expected %s to pass, got %v", pin, err)
			}
		}
	}
}
