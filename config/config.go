package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the service configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Messaging     MessagingConfig
	ServiceBus    ServiceBusConfig
	NATS          NATSConfig
	Elasticsearch ElasticsearchConfig
	NewRelic      NewRelicConfig
	Auth          AuthConfig
	Protocol      ProtocolConfig
	Firmware      FirmwareConfig
	Worker        WorkerConfig
}

// ServerConfig holds the HTTP server configuration
type ServerConfig struct {
	Port         int
	Mode         string // debug, release, test
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// OTARequestsPerMinute bounds OTA calls per device
	OTARequestsPerMinute int
}

// DatabaseConfig holds the database configuration
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	LogLevel        string
}

// RedisConfig holds the Redis configuration
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	// DeviceTTL bounds how long a device record is served from cache
	DeviceTTL time.Duration
}

// MessagingConfig selects the domain event backend
type MessagingConfig struct {
	Driver string // servicebus, nats, log
	Source string
}

// ServiceBusConfig holds the Azure Service Bus configuration
type ServiceBusConfig struct {
	ConnectionString string
	QueueName        string
}

// NATSConfig holds the NATS configuration
type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

// ElasticsearchConfig holds the telemetry search projection configuration
type ElasticsearchConfig struct {
	Enabled   bool
	Addresses []string
	Username  string
	Password  string
	Index     string
}

// NewRelicConfig holds the New Relic configuration
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// AuthConfig holds operator token settings
type AuthConfig struct {
	JWTSecret string
	Issuer    string
	TokenTTL  time.Duration
}

// WorkerConfig holds background job settings
type WorkerConfig struct {
	OfflineSweepInterval time.Duration
	OfflineAfter         time.Duration
	StaleJobInterval     time.Duration
	StaleJobAfter        time.Duration
}

// InitConfig initializes the configuration using Viper
func InitConfig(cfgFile string) error {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/fleet-service")
		viper.SetConfigName("config")
	}

	// FLEET_SERVER_PORT overrides server.port
	viper.SetEnvPrefix("FLEET")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("No config file found, using defaults and environment variables")
		} else {
			return fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}

	return nil
}

// setDefaults sets default values for configuration
func setDefaults() {
	viper.SetDefault("server.port", 8092)
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("server.readtimeout", "15s")
	viper.SetDefault("server.writetimeout", "15s")
	viper.SetDefault("server.otarequestsperminute", 60)

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "fleet")
	viper.SetDefault("database.password", "fleet")
	viper.SetDefault("database.dbname", "fleet_service_db")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.maxidleconns", 50)
	viper.SetDefault("database.maxopenconns", 200)
	viper.SetDefault("database.connmaxlifetime", "30m")
	viper.SetDefault("database.loglevel", "warn")

	viper.SetDefault("redis.enabled", true)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.devicettl", "5m")

	viper.SetDefault("messaging.driver", "servicebus")
	viper.SetDefault("messaging.source", "fleet-service")

	// No default connection string; an empty one selects the logging publisher
	viper.SetDefault("servicebus.queuename", "fleet-events")

	viper.SetDefault("nats.url", "nats://localhost:4222")
	viper.SetDefault("nats.subjectprefix", "fleet")

	viper.SetDefault("elasticsearch.enabled", false)
	viper.SetDefault("elasticsearch.addresses", []string{"http://localhost:9200"})
	viper.SetDefault("elasticsearch.index", "fleet-telemetry")

	viper.SetDefault("newrelic.appname", "Fleet Service Local")
	viper.SetDefault("newrelic.enabled", false)

	viper.SetDefault("auth.issuer", "fleet-service")
	viper.SetDefault("auth.tokenttl", "12h")

	viper.SetDefault("protocol.maxpiggybackcommands", 5)
	viper.SetDefault("protocol.defaultcommandexpiry", "300s")
	viper.SetDefault("protocol.mincommandexpiry", "60s")
	viper.SetDefault("protocol.maxcommandexpiry", "24h")
	viper.SetDefault("protocol.lowbatterythreshold", 20)
	viper.SetDefault("protocol.defaultotaminbattery", 30)
	viper.SetDefault("protocol.releasechannel", "stable")
	viper.SetDefault("protocol.defaultfirmwareversion", "1.0.0")
	viper.SetDefault("protocol.manufacturer", "Invepin")
	viper.SetDefault("protocol.fallbackapikey", "")

	viper.SetDefault("firmware.keysdir", "./keys")
	viper.SetDefault("firmware.keyid", "firmware-signing")

	viper.SetDefault("worker.offlinesweepinterval", "1m")
	viper.SetDefault("worker.offlineafter", "15m")
	viper.SetDefault("worker.stalejobinterval", "10m")
	viper.SetDefault("worker.stalejobafter", "2h")
}

// Load loads the configuration
func Load() (*Config, error) {
	serverConfig := ServerConfig{
		Port:         viper.GetInt("server.port"),
		Mode:         viper.GetString("server.mode"),
		ReadTimeout:  viper.GetDuration("server.readtimeout"),
		WriteTimeout: viper.GetDuration("server.writetimeout"),

		OTARequestsPerMinute: viper.GetInt("server.otarequestsperminute"),
	}

	dbConfig := DatabaseConfig{
		Host:            viper.GetString("database.host"),
		Port:            viper.GetInt("database.port"),
		User:            viper.GetString("database.user"),
		Password:        viper.GetString("database.password"),
		DBName:          viper.GetString("database.dbname"),
		SSLMode:         viper.GetString("database.sslmode"),
		MaxIdleConns:    viper.GetInt("database.maxidleconns"),
		MaxOpenConns:    viper.GetInt("database.maxopenconns"),
		ConnMaxLifetime: viper.GetDuration("database.connmaxlifetime"),
		LogLevel:        viper.GetString("database.loglevel"),
	}

	redisConfig := RedisConfig{
		Enabled:   viper.GetBool("redis.enabled"),
		Host:      viper.GetString("redis.host"),
		Port:      viper.GetInt("redis.port"),
		Password:  viper.GetString("redis.password"),
		DB:        viper.GetInt("redis.db"),
		DeviceTTL: viper.GetDuration("redis.devicettl"),
	}

	messagingConfig := MessagingConfig{
		Driver: viper.GetString("messaging.driver"),
		Source: viper.GetString("messaging.source"),
	}

	serviceBusConfig := ServiceBusConfig{
		ConnectionString: viper.GetString("servicebus.connectionstring"),
		QueueName:        viper.GetString("servicebus.queuename"),
	}

	natsConfig := NATSConfig{
		URL:           viper.GetString("nats.url"),
		SubjectPrefix: viper.GetString("nats.subjectprefix"),
	}

	esConfig := ElasticsearchConfig{
		Enabled:   viper.GetBool("elasticsearch.enabled"),
		Addresses: viper.GetStringSlice("elasticsearch.addresses"),
		Username:  viper.GetString("elasticsearch.username"),
		Password:  viper.GetString("elasticsearch.password"),
		Index:     viper.GetString("elasticsearch.index"),
	}

	newRelicConfig := NewRelicConfig{
		AppName:    viper.GetString("newrelic.appname"),
		LicenseKey: viper.GetString("newrelic.licensekey"),
		Enabled:    viper.GetBool("newrelic.enabled"),
	}

	authConfig := AuthConfig{
		JWTSecret: viper.GetString("auth.jwtsecret"),
		Issuer:    viper.GetString("auth.issuer"),
		TokenTTL:  viper.GetDuration("auth.tokenttl"),
	}

	protocolConfig := ProtocolConfig{
		MaxPiggybackCommands:   viper.GetInt("protocol.maxpiggybackcommands"),
		DefaultCommandExpiry:   viper.GetDuration("protocol.defaultcommandexpiry"),
		MinCommandExpiry:       viper.GetDuration("protocol.mincommandexpiry"),
		MaxCommandExpiry:       viper.GetDuration("protocol.maxcommandexpiry"),
		LowBatteryThreshold:    viper.GetInt("protocol.lowbatterythreshold"),
		DefaultOTAMinBattery:   viper.GetInt("protocol.defaultotaminbattery"),
		ReleaseChannel:         viper.GetString("protocol.releasechannel"),
		DefaultFirmwareVersion: viper.GetString("protocol.defaultfirmwareversion"),
		Manufacturer:           viper.GetString("protocol.manufacturer"),
		FallbackAPIKey:         viper.GetString("protocol.fallbackapikey"),
	}

	firmwareConfig := FirmwareConfig{
		KeysDir: viper.GetString("firmware.keysdir"),
		KeyID:   viper.GetString("firmware.keyid"),
	}

	workerConfig := WorkerConfig{
		OfflineSweepInterval: viper.GetDuration("worker.offlinesweepinterval"),
		OfflineAfter:         viper.GetDuration("worker.offlineafter"),
		StaleJobInterval:     viper.GetDuration("worker.stalejobinterval"),
		StaleJobAfter:        viper.GetDuration("worker.stalejobafter"),
	}

	if err := protocolConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid protocol configuration: %w", err)
	}

	return &Config{
		Server:        serverConfig,
		Database:      dbConfig,
		Redis:         redisConfig,
		Messaging:     messagingConfig,
		ServiceBus:    serviceBusConfig,
		NATS:          natsConfig,
		Elasticsearch: esConfig,
		NewRelic:      newRelicConfig,
		Auth:          authConfig,
		Protocol:      protocolConfig,
		Firmware:      firmwareConfig,
		Worker:        workerConfig,
	}, nil
}
