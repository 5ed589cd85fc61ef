package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/kalshiarb/internal/domain"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.LogLevel = "loud"
	cfg.Engine.MaxChainLength = 1
	cfg.Engine.Strategies = []string{"subset", "momentum"}
	cfg.Fees.GeneralRate = "seven"
	cfg.Store.Driver = "mongo"

	err := cfg.Validate()
	if !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("err = %v, want ErrInvalidConfig", err)
	}
	for _, want := range []string{
		`unknown mode "trade"`,
		`unknown log_level "loud"`,
		"max_chain_length must be >= 2",
		`unknown strategy "momentum"`,
		`general_rate "seven" is not a decimal`,
		`unknown driver "mongo"`,
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q:\n%s", want, err)
		}
	}
}

func TestValidateStreamNeedsCredentials(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "stream"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "api_key_id is required") {
		t.Fatalf("expected api_key_id error, got %v", err)
	}

	cfg.Kalshi.APIKeyID = "key-id"
	cfg.Kalshi.EncryptedKeyPath = "/keys/kalshi.enc"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "key_password is required") {
		t.Fatalf("expected key_password error, got %v", err)
	}

	cfg.Kalshi.KeyPassword = "secret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateArchiveMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "archive"
	cfg.Store.Driver = "none"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "archive mode needs a store driver") || !strings.Contains(err.Error(), "bucket is required") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
mode = "server"
log_level = "debug"

[kalshi]
series = ["KXFED"]
request_interval = "250ms"

[engine]
min_profit = "1.25"
check_depth = true
strategies = ["subset", "chain"]
dedup_window = "2m"

[fees]
general_rate = "0.05"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)
	t.Setenv("KALSHIARB_REDIS_ADDR", "redis:6379")
	t.Setenv("KALSHIARB_ENGINE_MAX_SIZE", "40")
	t.Setenv("KALSHIARB_SERVER_CORS_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Mode != "server" || cfg.LogLevel != "debug" {
		t.Errorf("mode/log_level = %q/%q", cfg.Mode, cfg.LogLevel)
	}
	if cfg.Kalshi.RequestInterval.Duration != 250*time.Millisecond {
		t.Errorf("request_interval = %v", cfg.Kalshi.RequestInterval.Duration)
	}
	if len(cfg.Kalshi.Series) != 1 || cfg.Kalshi.Series[0] != "KXFED" {
		t.Errorf("series = %v", cfg.Kalshi.Series)
	}
	if cfg.Engine.DedupWindow.Duration != 2*time.Minute {
		t.Errorf("dedup_window = %v", cfg.Engine.DedupWindow.Duration)
	}
	if cfg.Engine.MaxSize != 40 {
		t.Errorf("max_size = %d, want 40 from env", cfg.Engine.MaxSize)
	}
	if cfg.Redis.Addr != "redis:6379" {
		t.Errorf("redis addr = %q", cfg.Redis.Addr)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example" {
		t.Errorf("cors origins = %v", cfg.Server.CORSOrigins)
	}
	// Untouched sections keep their defaults.
	if cfg.Fees.ReducedRate != "0.035" {
		t.Errorf("reduced_rate = %q", cfg.Fees.ReducedRate)
	}

	params := cfg.EvaluatorParams()
	if !params.MinProfit.Equal(decimal.RequireFromString("1.25")) || !params.CheckDepth || params.MaxSize != 40 {
		t.Errorf("evaluator params = %+v", params)
	}
	sched := cfg.FeeSchedule()
	if !sched.Rate("KXFED-25DEC-T4.25").Equal(decimal.RequireFromString("0.05")) {
		t.Errorf("general rate = %s", sched.Rate("KXFED-25DEC-T4.25"))
	}
	if !sched.Rate("INX-25DEC31-B5000").Equal(decimal.RequireFromString("0.035")) {
		t.Errorf("reduced rate = %s", sched.Rate("INX-25DEC31-B5000"))
	}
}

func TestExampleConfigMatchesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config.example.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if want := Defaults(); !reflect.DeepEqual(*cfg, want) {
		t.Errorf("config.example.toml drifted from Defaults():\n got  %+v\n want %+v", *cfg, want)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Kalshi.KeyPassword = "hunter2"
	cfg.Redis.Password = "pw"
	cfg.Server.APIKey = "api"
	cfg.Notify.TelegramToken = "tok"

	out := RedactedConfig(&cfg)
	for name, got := range map[string]string{
		"key_password":   out.Kalshi.KeyPassword,
		"redis password": out.Redis.Password,
		"server api key": out.Server.APIKey,
		"telegram token": out.Notify.TelegramToken,
	} {
		if got != "***" {
			t.Errorf("%s = %q, want redacted", name, got)
		}
	}
	if out.S3.SecretKey != "" {
		t.Errorf("empty secret should stay empty, got %q", out.S3.SecretKey)
	}
	if cfg.Kalshi.KeyPassword != "hunter2" {
		t.Error("original config was modified")
	}

	out.Engine.Strategies[0] = "changed"
	if cfg.Engine.Strategies[0] == "changed" {
		t.Error("redacted copy shares slices with the original")
	}
}
