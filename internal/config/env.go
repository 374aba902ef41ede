package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// env reads typed settings from the process environment and the config file. The first
// failure is kept and every later read returns its fallback, so a loader can read all of
// its keys and check err once.
type env struct {
	err error
}

func (e *env) fail(key string, format string, args ...any) {
	if e.err == nil {
		e.err = fmt.Errorf("invalid %s: "+format, append([]any{key}, args...)...)
	}
}

func (e *env) raw(key string) string {
	if e.err != nil {
		return ""
	}
	return strings.TrimSpace(valueForKey(key))
}

func (e *env) str(key, fallback string) string {
	if v := e.raw(key); v != "" {
		return v
	}
	return fallback
}

func (e *env) duration(key string, fallback time.Duration) time.Duration {
	raw := e.raw(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	switch {
	case err != nil:
		e.fail(key, "%w", err)
	case d <= 0:
		e.fail(key, "must be > 0")
	}
	return d
}

// positive reads an int that must be > 0.
func (e *env) positive(key string, fallback int) int {
	raw := e.raw(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	switch {
	case err != nil:
		e.fail(key, "%w", err)
	case v <= 0:
		e.fail(key, "must be > 0")
	}
	return v
}

func (e *env) unsigned(key string, fallback uint64, bits int) uint64 {
	raw := e.raw(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseUint(raw, 10, bits)
	if err != nil {
		e.fail(key, "%w", err)
	}
	return v
}

// optionalUint is nil when key is unset.
func (e *env) optionalUint(key string) *uint {
	if e.raw(key) == "" {
		return nil
	}
	v := uint(e.unsigned(key, 0, 64))
	return &v
}

func (e *env) bool(key string, fallback bool) bool {
	raw := e.raw(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		e.fail(key, "%w", err)
	}
	return v
}

func (e *env) pubkey(key string, required bool) solana.PublicKey {
	raw := e.raw(key)
	if raw == "" {
		if required && e.err == nil {
			e.err = fmt.Errorf("%s is required", key)
		}
		return solana.PublicKey{}
	}
	pk, err := solana.PublicKeyFromBase58(raw)
	if err != nil {
		e.fail(key, "%w", err)
	}
	return pk
}

func (e *env) commitment(key string, fallback rpc.CommitmentType) rpc.CommitmentType {
	raw := strings.ToLower(e.raw(key))
	if raw == "" {
		return fallback
	}
	switch c := rpc.CommitmentType(raw); c {
	case rpc.CommitmentProcessed, rpc.CommitmentConfirmed, rpc.CommitmentFinalized:
		return c
	default:
		e.fail(key, "%q (expected processed|confirmed|finalized)", raw)
		return fallback
	}
}

// list splits a comma-separated value, dropping blanks.
func (e *env) list(key string) []string {
	var out []string
	for _, part := range strings.Split(e.raw(key), ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (e *env) log(prefix, service string) LogConfig {
	return LogConfig{
		Level:    e.str(prefix+"_LOG_LEVEL", e.str("LOG_LEVEL", "info")),
		Format:   e.str(prefix+"_LOG_FORMAT", e.str("LOG_FORMAT", "text")),
		Output:   e.str(prefix+"_LOG_OUTPUT", e.str("LOG_OUTPUT", "console")),
		FilePath: e.str(prefix+"_LOG_FILE", e.str("LOG_FILE", filepath.Join(".docker", service, service+".log"))),
	}
}

// keypairPath resolves the fee payer keypair: an explicit path wins, then a deployer
// wallet under .local/secret, then the solana CLI default.
func (e *env) keypairPath(keys ...string) string {
	for _, key := range keys {
		if v := e.raw(key); v != "" {
			return e.expandHome(key, v)
		}
	}
	for _, candidate := range []string{"../.local/secret/deployer-wallet.json", ".local/secret/deployer-wallet.json"} {
		abs, err := filepath.Abs(candidate)
		if err != nil {
			continue
		}
		if info, err := os.Stat(abs); err == nil && !info.IsDir() {
			return abs
		}
	}
	return e.expandHome(keys[0], "~/.config/solana/id.json")
}

func (e *env) expandHome(key, path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		e.fail(key, "expand home: %w", err)
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(path, "~"), "/"))
}
