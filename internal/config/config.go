package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"
	"time"
	"unicode"

	"github.com/ArkLabsHQ/intentd/internal/core/coordinator"
	"github.com/ArkLabsHQ/intentd/internal/core/domain"
	"github.com/ArkLabsHQ/intentd/internal/core/ports"
	envunlocker "github.com/ArkLabsHQ/intentd/internal/infrastructure/unlocker/env"
	fileunlocker "github.com/ArkLabsHQ/intentd/internal/infrastructure/unlocker/file"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Datadir   string
	Port      uint32
	TLSCert   string
	TLSKey    string
	LogLevel  uint32
	DbType    string
	Transport string
	P2PAddr   string
	NatsURL   string

	SafetyMargin       time.Duration
	ReclaimDeadline    time.Duration
	RetryInterval      time.Duration
	MaxRetryInterval   time.Duration
	GatewayTimeout     time.Duration
	MessageTTL         time.Duration
	SweepInterval      time.Duration
	PruneInterval      time.Duration
	HeightPollInterval time.Duration
	AckTimeout         time.Duration

	RateLimit        float64
	RateBurst        int
	RequireWhitelist bool

	StellarPassphrase string
	EsploraURL        string
	EsploraChain      string

	UnlockerType     string
	UnlockerFilePath string
	UnlockerMnemonic string

	File

	unlocker ports.Unlocker
}

var (
	Datadir            = "DATADIR"
	Port               = "PORT"
	TLSCert            = "TLS_CERT"
	TLSKey             = "TLS_KEY"
	LogLevel           = "LOG_LEVEL"
	DbType             = "DB_TYPE"
	Transport          = "TRANSPORT"
	P2PAddr            = "P2P_ADDR"
	NatsURL            = "NATS_URL"
	ConfigFile         = "CONFIG_FILE"
	SafetyMargin       = "SAFETY_MARGIN"
	ReclaimDeadline    = "RECLAIM_DEADLINE"
	RetryInterval      = "RETRY_INTERVAL"
	MaxRetryInterval   = "MAX_RETRY_INTERVAL"
	GatewayTimeout     = "GATEWAY_TIMEOUT"
	MessageTTL         = "MESSAGE_TTL"
	SweepInterval      = "SWEEP_INTERVAL"
	PruneInterval      = "PRUNE_INTERVAL"
	HeightPollInterval = "HEIGHT_POLL_INTERVAL"
	AckTimeout         = "ACK_TIMEOUT"
	RateLimit          = "RATE_LIMIT"
	RateBurst          = "RATE_BURST"
	RequireWhitelist   = "REQUIRE_WHITELIST"
	StellarPassphrase  = "STELLAR_PASSPHRASE"
	EsploraURL         = "ESPLORA_URL"
	EsploraChain       = "ESPLORA_CHAIN"

	// Unlocker configuration
	UnlockerType     = "UNLOCKER_TYPE"
	UnlockerFilePath = "UNLOCKER_FILE_PATH"
	UnlockerMnemonic = "UNLOCKER_MNEMONIC"

	defaultDatadir            = appDatadir("intentd", false)
	defaultPort               = 7070
	defaultLogLevel           = 4
	defaultDbType             = "badger"
	defaultTransport          = "websocket"
	defaultP2PAddr            = ":7071"
	defaultConfigFile         = "intentd.yaml"
	defaultSweepInterval      = 30 * time.Second
	defaultPruneInterval      = 5 * time.Minute
	defaultHeightPollInterval = 30 * time.Second
	defaultAckTimeout         = time.Minute
	defaultRateLimit          = 10.0
	defaultRateBurst          = 20
	defaultEsploraChain       = "bitcoin"

	supportedDbTypes    = []string{"badger", "sqlite"}
	supportedTransports = []string{"websocket", "nats"}
)

func LoadConfig() (*Config, error) {
	// A missing .env is not an error.
	// nolint:all
	godotenv.Load()

	viper.SetEnvPrefix("INTENTD")
	viper.AutomaticEnv()

	viper.SetDefault(Datadir, defaultDatadir)
	viper.SetDefault(Port, defaultPort)
	viper.SetDefault(LogLevel, defaultLogLevel)
	viper.SetDefault(DbType, defaultDbType)
	viper.SetDefault(Transport, defaultTransport)
	viper.SetDefault(P2PAddr, defaultP2PAddr)
	viper.SetDefault(ConfigFile, defaultConfigFile)
	viper.SetDefault(SweepInterval, defaultSweepInterval)
	viper.SetDefault(PruneInterval, defaultPruneInterval)
	viper.SetDefault(HeightPollInterval, defaultHeightPollInterval)
	viper.SetDefault(AckTimeout, defaultAckTimeout)
	viper.SetDefault(RateLimit, defaultRateLimit)
	viper.SetDefault(RateBurst, defaultRateBurst)
	viper.SetDefault(EsploraChain, defaultEsploraChain)

	if err := initDatadir(); err != nil {
		return nil, fmt.Errorf("error while creating datadir: %s", err)
	}

	config := &Config{
		Datadir:            cleanAndExpandPath(viper.GetString(Datadir)),
		Port:               viper.GetUint32(Port),
		TLSCert:            cleanAndExpandPath(viper.GetString(TLSCert)),
		TLSKey:             cleanAndExpandPath(viper.GetString(TLSKey)),
		LogLevel:           viper.GetUint32(LogLevel),
		DbType:             viper.GetString(DbType),
		Transport:          viper.GetString(Transport),
		P2PAddr:            viper.GetString(P2PAddr),
		NatsURL:            viper.GetString(NatsURL),
		SafetyMargin:       viper.GetDuration(SafetyMargin),
		ReclaimDeadline:    viper.GetDuration(ReclaimDeadline),
		RetryInterval:      viper.GetDuration(RetryInterval),
		MaxRetryInterval:   viper.GetDuration(MaxRetryInterval),
		GatewayTimeout:     viper.GetDuration(GatewayTimeout),
		MessageTTL:         viper.GetDuration(MessageTTL),
		SweepInterval:      viper.GetDuration(SweepInterval),
		PruneInterval:      viper.GetDuration(PruneInterval),
		HeightPollInterval: viper.GetDuration(HeightPollInterval),
		AckTimeout:         viper.GetDuration(AckTimeout),
		RateLimit:          viper.GetFloat64(RateLimit),
		RateBurst:          viper.GetInt(RateBurst),
		RequireWhitelist:   viper.GetBool(RequireWhitelist),
		StellarPassphrase:  viper.GetString(StellarPassphrase),
		EsploraURL:         viper.GetString(EsploraURL),
		EsploraChain:       viper.GetString(EsploraChain),
		UnlockerType:       viper.GetString(UnlockerType),
		UnlockerFilePath:   cleanAndExpandPath(viper.GetString(UnlockerFilePath)),
		UnlockerMnemonic:   viper.GetString(UnlockerMnemonic),
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	file, err := loadFile(config.configFilePath())
	if err != nil {
		return nil, err
	}
	config.File = *file

	if err := config.initUnlockerService(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) validate() error {
	if c.SafetyMargin <= 0 {
		return fmt.Errorf("missing %s, the node can't lock funds without it", SafetyMargin)
	}
	if c.SafetyMargin < time.Second {
		return fmt.Errorf("%s must be at least 1s, got %s", SafetyMargin, c.SafetyMargin)
	}
	if !contains(supportedDbTypes, c.DbType) {
		return fmt.Errorf("unsupported db type %s, must be one of %s", c.DbType, supportedDbTypes)
	}
	if !contains(supportedTransports, c.Transport) {
		return fmt.Errorf(
			"unsupported transport %s, must be one of %s", c.Transport, supportedTransports,
		)
	}
	if c.Transport == "nats" && c.NatsURL == "" {
		return fmt.Errorf("missing %s for nats transport", NatsURL)
	}
	return nil
}

func (c *Config) configFilePath() string {
	path := cleanAndExpandPath(viper.GetString(ConfigFile))
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.Datadir, path)
}

func (c *Config) UnlockerService() ports.Unlocker {
	return c.unlocker
}

// CoordinatorConfig returns the swap coordinator settings.
func (c *Config) CoordinatorConfig() coordinator.Config {
	return coordinator.Config{
		SafetyMargin:     c.SafetyMargin,
		ReclaimDeadline:  c.ReclaimDeadline,
		RetryInterval:    c.RetryInterval,
		MaxRetryInterval: c.MaxRetryInterval,
		GatewayTimeout:   c.GatewayTimeout,
		MessageTTL:       c.MessageTTL,
		Policy:           c.File.Policy.toPolicy(),
		Accounts:         c.File.Accounts,
	}
}

func (c *Config) Whitelist() []domain.WhitelistPolicy {
	policies := make([]domain.WhitelistPolicy, 0, len(c.File.Whitelist))
	for _, p := range c.File.Whitelist {
		policies = append(policies, domain.WhitelistPolicy(p))
	}
	return policies
}

func (c *Config) initUnlockerService() error {
	if len(c.UnlockerType) <= 0 {
		return nil
	}

	var svc ports.Unlocker
	var err error
	switch c.UnlockerType {
	case "file":
		svc, err = fileunlocker.NewService(c.UnlockerFilePath)
	case "env":
		svc, err = envunlocker.NewService(c.UnlockerMnemonic)
	default:
		err = fmt.Errorf("unknown unlocker type")
	}
	if err != nil {
		return err
	}
	c.unlocker = svc
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func initDatadir() error {
	datadir := cleanAndExpandPath(viper.GetString(Datadir))
	return makeDirectoryIfNotExists(datadir)
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}

// appDataDir returns an operating system specific directory to be used for
// storing application data for an application.
func appDatadir(appName string, roaming bool) string {
	if appName == "" || appName == "." {
		return "."
	}

	appName = strings.TrimPrefix(appName, ".")
	appNameUpper := string(unicode.ToUpper(rune(appName[0]))) + appName[1:]
	appNameLower := string(unicode.ToLower(rune(appName[0]))) + appName[1:]

	var homeDir string
	usr, err := user.Current()
	if err == nil {
		homeDir = usr.HomeDir
	}
	if err != nil || homeDir == "" {
		homeDir = os.Getenv("HOME")
	}

	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("LOCALAPPDATA")
		if roaming || appData == "" {
			appData = os.Getenv("APPDATA")
		}
		if appData != "" {
			return filepath.Join(appData, appNameUpper)
		}

	case "darwin":
		if homeDir != "" {
			return filepath.Join(homeDir, "Library",
				"Application Support", appNameUpper)
		}

	default:
		if homeDir != "" {
			return filepath.Join(homeDir, "."+appNameLower)
		}
	}

	return "."
}

func cleanAndExpandPath(path string) string {
	if path == "" {
		return path
	}

	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		var homeDir string
		u, err := user.Current()
		if err == nil {
			homeDir = u.HomeDir
		} else {
			homeDir = os.Getenv("HOME")
		}

		path = strings.Replace(path, "~", homeDir, 1)
	}

	return filepath.Clean(os.ExpandEnv(path))
}
