package config

import (
	"path/filepath"
	"testing"
	"time"
)

const testContract = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

func TestConfigFileRoundTrip(t *testing.T) {
	root := t.TempDir()
	written := DefaultConfig()
	written.ContractAddress = testContract
	written.SupportedChainIDs = []uint64{1, 11155111}
	written.PollInterval = 45 * time.Second
	written.WaitReceipts = false
	if err := WriteConfigFile(root, written); err != nil {
		t.Fatalf("Write: %v", err)
	}
	loaded, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.ContractAddress != testContract || loaded.PollInterval != 45*time.Second || loaded.WaitReceipts {
		t.Errorf("Corrupted config %+v", loaded)
	}
	if len(loaded.SupportedChainIDs) != 2 || loaded.SupportedChainIDs[1] != 11155111 {
		t.Errorf("Corrupted chain ids %v", loaded.SupportedChainIDs)
	}
	if loaded.KeyPath() != filepath.Join(root, "config", "signing_key.pem") {
		t.Errorf("Key path not rooted: %s", loaded.KeyPath())
	}
}

func TestEnvOverride(t *testing.T) {
	root := t.TempDir()
	written := DefaultConfig()
	written.ContractAddress = testContract
	_ = WriteConfigFile(root, written)
	t.Setenv("BALLOT_CACHE_SIZE", "64")
	t.Setenv("BALLOT_HASH_POLICY", "reject")
	loaded, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.CacheSize != 64 || loaded.HashPolicy != "reject" {
		t.Errorf("Environment ignored: %d %s", loaded.CacheSize, loaded.HashPolicy)
	}
}

func TestValidateBasic(t *testing.T) {
	config := DefaultConfig()
	if config.ValidateBasic() == nil {
		t.Errorf("Missing contract accepted")
	}
	config.ContractAddress = testContract
	if err := config.ValidateBasic(); err != nil {
		t.Errorf("Default config rejected: %v", err)
	}
	broken := []func(*Config){
		func(c *Config) { c.DBBackend = "badger" },
		func(c *Config) { c.AdminWriteAttempts = 0 },
		func(c *Config) { c.HashPolicy = "invent" },
		func(c *Config) { c.SupportedChainIDs = nil },
		func(c *Config) { c.PollInterval = 0 },
	}
	for i, breakConfig := range broken {
		config := DefaultConfig()
		config.ContractAddress = testContract
		breakConfig(config)
		if config.ValidateBasic() == nil {
			t.Errorf("Broken config %d accepted", i)
		}
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Errorf("Missing config file accepted")
	}
}
