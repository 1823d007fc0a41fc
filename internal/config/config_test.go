package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MythologIQ/QoreLogic-sub000/internal/config"
)

func TestNewDefaultsPassValidation(t *testing.T) {
	assert.NoError(t, config.New().Validate())
}

func TestValidateRejectsTooSmallQueueCapacity(t *testing.T) {
	cfg := config.New()
	cfg.Mode.QueueCapacity = 2
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsSoftAboveHard(t *testing.T) {
	cfg := config.New()
	cfg.Mode.QueueSoft = cfg.Mode.QueueHard
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsHardAboveCapacity(t *testing.T) {
	cfg := config.New()
	cfg.Mode.QueueHard = cfg.Mode.QueueCapacity + 1
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownPassphraseSource(t *testing.T) {
	cfg := config.New()
	cfg.Identity.PassphraseSource = "carrier_pigeon"
	assert.Error(t, cfg.Validate())
}

func TestResolvePassphraseFromEnv(t *testing.T) {
	cfg := config.New()
	cfg.Identity.PassphraseSource = "env"
	t.Setenv("GOVERNANCE_AGENT_PASSPHRASE", "correct horse battery staple")

	p, err := cfg.ResolvePassphrase()
	require.NoError(t, err)
	assert.Equal(t, "correct horse battery staple", p)
}

func TestResolvePassphraseFromEnvMissingErrors(t *testing.T) {
	cfg := config.New()
	cfg.Identity.PassphraseSource = "env"
	t.Setenv("GOVERNANCE_AGENT_PASSPHRASE", "")

	_, err := cfg.ResolvePassphrase()
	assert.Error(t, err)
}

func TestResolvePassphraseFromFile(t *testing.T) {
	cfg := config.New()
	cfg.Identity.PassphraseSource = "file"
	path := filepath.Join(t.TempDir(), "passphrase")
	require.NoError(t, os.WriteFile(path, []byte("correct horse battery staple\n"), 0600))
	cfg.Identity.PassphraseFile = path

	p, err := cfg.ResolvePassphrase()
	require.NoError(t, err)
	assert.Equal(t, "correct horse battery staple", p)
}

func TestResolvePassphrasePromptRequiresCallerHandling(t *testing.T) {
	cfg := config.New()
	cfg.Identity.PassphraseSource = "prompt"
	_, err := cfg.ResolvePassphrase()
	assert.Error(t, err)
}
