package config

import (
	"ballot-node/modules"
	"bytes"
	"errors"
	"fmt"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"
)

const (
	EnvPrefix      = "BALLOT"
	configDir      = "config"
	configFileName = "config.toml"

	BackendGoLevelDB = "goleveldb"
	BackendMemDB     = "memdb"
)

type Config struct {
	RootDir string `mapstructure:"home"`

	// Ledger endpoint
	RPCURL            string        `mapstructure:"rpc_url"`
	RPCTimeout        time.Duration `mapstructure:"rpc_timeout"`
	ContractAddress   string        `mapstructure:"contract_address"`
	SupportedChainIDs []uint64      `mapstructure:"supported_chain_ids"`
	KeyFile           string        `mapstructure:"key_file"`

	// Identifier store
	DBBackend string `mapstructure:"db_backend"`
	DBDir     string `mapstructure:"db_dir"`

	LogLevel              string        `mapstructure:"log_level"`
	PollInterval          time.Duration `mapstructure:"poll_interval"`
	WalletRefreshInterval time.Duration `mapstructure:"wallet_refresh_interval"`
	AdminWriteAttempts    int           `mapstructure:"admin_write_attempts"`
	ReadAttempts          uint64        `mapstructure:"read_attempts"`
	WaitReceipts          bool          `mapstructure:"wait_receipts"`
	CacheSize             int           `mapstructure:"cache_size"`
	HashPolicy            string        `mapstructure:"hash_policy"`
	MetricsAddr           string        `mapstructure:"metrics_addr"`
}

func DefaultConfig() *Config {
	return &Config{
		RPCURL:                "ws://127.0.0.1:8546",
		RPCTimeout:            15 * time.Second,
		SupportedChainIDs:     []uint64{31337},
		KeyFile:               filepath.Join(configDir, "signing_key.pem"),
		DBBackend:             BackendGoLevelDB,
		DBDir:                 "data",
		LogLevel:              "*:info",
		PollInterval:          modules.DefaultPollInterval,
		WalletRefreshInterval: 10 * time.Second,
		AdminWriteAttempts:    2,
		ReadAttempts:          3,
		WaitReceipts:          true,
		CacheSize:             512,
		HashPolicy:            string(modules.HashSynthesize),
		MetricsAddr:           "127.0.0.1:26660",
	}
}

func (config *Config) SetRoot(root string) *Config {
	config.RootDir = root
	return config
}

func (config *Config) rootify(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(config.RootDir, path)
}

func (config *Config) KeyPath() string { return config.rootify(config.KeyFile) }
func (config *Config) DBPath() string  { return config.rootify(config.DBDir) }

func ConfigFile(root string) string {
	return filepath.Join(root, configDir, configFileName)
}

func (config *Config) ChainIDs() []*big.Int {
	ids := make([]*big.Int, 0, len(config.SupportedChainIDs))
	for _, id := range config.SupportedChainIDs {
		ids = append(ids, new(big.Int).SetUint64(id))
	}
	return ids
}

func (config *Config) Contract() common.Address {
	return common.HexToAddress(config.ContractAddress)
}

func (config *Config) ValidateBasic() error {
	if config.RPCURL == "" {
		return errors.New("rpc_url is empty")
	}
	if config.RPCTimeout <= 0 {
		return errors.New("rpc_timeout must be positive")
	}
	if !common.IsHexAddress(config.ContractAddress) {
		return fmt.Errorf("contract_address %q is not an address", config.ContractAddress)
	}
	if len(config.SupportedChainIDs) == 0 {
		return errors.New("supported_chain_ids is empty")
	}
	if config.DBBackend != BackendGoLevelDB && config.DBBackend != BackendMemDB {
		return fmt.Errorf("unsupported db_backend %q", config.DBBackend)
	}
	if config.PollInterval <= 0 || config.WalletRefreshInterval <= 0 {
		return errors.New("poll_interval and wallet_refresh_interval must be positive")
	}
	if config.AdminWriteAttempts < 1 {
		return errors.New("admin_write_attempts must be at least 1")
	}
	if config.ReadAttempts < 1 {
		return errors.New("read_attempts must be at least 1")
	}
	if config.CacheSize < 1 {
		return errors.New("cache_size must be at least 1")
	}
	if _, err := modules.ParseHashPolicy(config.HashPolicy); err != nil {
		return err
	}
	return nil
}

// Load reads <root>/config/config.toml. BALLOT_<KEY> environment variables
// override the file.
func Load(root string) (*Config, error) {
	config := DefaultConfig()
	v := viper.New()
	v.SetConfigFile(ConfigFile(root))
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	config.SetRoot(root)
	if err := config.ValidateBasic(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

var configTemplate = template.Must(template.New("config").Parse(`# ballot-node configuration

##### ledger endpoint #####

# JSON-RPC endpoint. Vote events need a websocket or ipc endpoint.
rpc_url = "{{ .RPCURL }}"
rpc_timeout = "{{ .RPCTimeout }}"

# Election contract
contract_address = "{{ .ContractAddress }}"

# Writes are refused unless the endpoint serves one of these chains.
# The first one is used to sign transactions.
supported_chain_ids = [{{ range $i, $id := .SupportedChainIDs }}{{ if $i }}, {{ end }}{{ $id }}{{ end }}]

# secp256k1 key, PEM or hex, relative to the home directory
key_file = "{{ .KeyFile }}"

# Submit waits for the transaction receipt when true
wait_receipts = {{ .WaitReceipts }}

# "synthesize" keeps a write whose hash the endpoint omitted, "reject" fails it
hash_policy = "{{ .HashPolicy }}"

admin_write_attempts = {{ .AdminWriteAttempts }}
read_attempts = {{ .ReadAttempts }}

##### identifier store #####

# goleveldb | memdb
db_backend = "{{ .DBBackend }}"
db_dir = "{{ .DBDir }}"

##### read cache #####

cache_size = {{ .CacheSize }}
poll_interval = "{{ .PollInterval }}"
wallet_refresh_interval = "{{ .WalletRefreshInterval }}"

##### observability #####

log_level = "{{ .LogLevel }}"

# Prometheus endpoint, empty to disable
metrics_addr = "{{ .MetricsAddr }}"
`))

func WriteConfigFile(root string, config *Config) error {
	var buffer bytes.Buffer
	if err := configTemplate.Execute(&buffer, config); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(root, configDir), 0700); err != nil {
		return err
	}
	return os.WriteFile(ConfigFile(root), buffer.Bytes(), 0644)
}
