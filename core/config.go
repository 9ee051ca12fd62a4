package core

import (
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	DatabaseConfig struct {
		Engine        string // postgres | sqlite
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		Path          string // sqlite only; ":memory:" for an ephemeral database
	}

	ServerConfig struct {
		Host                      string
		Address                   string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		DisableReqLogs            bool
	}

	StorageConfig struct {
		DocumentsDir        string
		MaxUploadSize       int64
		AllowedContentTypes []string
	}

	PipelineConfig struct {
		File string // optional YAML override of the embedded pipeline
	}

	Config struct {
		Debug                     bool
		TestMode                  bool
		Env                       string
		Build                     string
		AppName                   string
		WorkDir                   string
		SecretKey                 string
		DefaultFromEmail          mail.Address
		FrontendBaseURL           string
		RollbarToken              string
		SendgridAPIKey            string
		PasswordResetTimeoutDelta time.Duration
		Timezone                  *time.Location

		Server   ServerConfig
		Database DatabaseConfig
		Storage  StorageConfig
		Pipeline PipelineConfig
	}
)

func (dbc DatabaseConfig) Address() string {
	if dbc.Port == "" {
		return dbc.Host
	}
	return dbc.Host + ":" + dbc.Port
}

// NewConfig loads the configuration from defaults, an optional dotenv file and the environment.
func NewConfig() *Config {
	conf := viper.New()

	// defaults
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("debug", true)
	conf.SetDefault("testMode", false)
	conf.SetDefault("build", "develop")
	conf.SetDefault("appName", "Leads Aladdin")
	conf.SetDefault("secretKey", "x7t$k2+9q!m@4hv#r8zc(l)w6e_jn3sa-f5b0udpgo1y&i")
	conf.SetDefault("defaultFromEmail", "noreply@localhost")
	conf.SetDefault("frontendBaseURL", "http://localhost:3000")
	conf.SetDefault("rollbarToken", "")
	conf.SetDefault("sendgridApiKey", "")
	conf.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)
	conf.SetDefault("timezone", "Asia/Jakarta")

	conf.SetDefault("server.host", "localhost")
	conf.SetDefault("server.address", ":8000")
	conf.SetDefault("server.debugHost", ":4000")
	conf.SetDefault("server.shutdownTimeout", 5*time.Second)
	conf.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	conf.SetDefault("server.jwtRefreshExpirationDelta", 4*time.Hour)
	conf.SetDefault("server.disableReqLogs", false)

	conf.SetDefault("database.engine", "postgres")
	conf.SetDefault("database.host", "localhost")
	conf.SetDefault("database.port", "5432")
	conf.SetDefault("database.name", "leads_aladdin")
	conf.SetDefault("database.user", "leads")
	conf.SetDefault("database.password", "leads")
	conf.SetDefault("database.adminUser", "postgres")
	conf.SetDefault("database.adminPassword", "postgres")
	conf.SetDefault("database.disableTLS", true)
	conf.SetDefault("database.path", "leads.db")

	conf.SetDefault("storage.documentsDir", "var/documents")
	conf.SetDefault("storage.maxUploadSize", int64(10<<20))
	conf.SetDefault("storage.allowedContentTypes", []string{
		"image/jpeg", "image/png", "image/webp", "application/pdf",
	})

	conf.SetDefault("pipeline.file", "")

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		conf.SetDefault("testMode", true)
	}
	conf.SetEnvPrefix(env)
	conf.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	workDir := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	conf.AutomaticEnv()

	tz, err := time.LoadLocation(conf.GetString("timezone"))
	if err != nil {
		tz = time.UTC
	}

	return &Config{
		Debug:                     conf.GetBool("debug"),
		TestMode:                  conf.GetBool("testMode"),
		Env:                       env,
		Build:                     conf.GetString("build"),
		AppName:                   conf.GetString("appName"),
		WorkDir:                   workDir,
		SecretKey:                 conf.GetString("secretKey"),
		DefaultFromEmail:          mail.Address{Name: conf.GetString("appName"), Address: conf.GetString("defaultFromEmail")},
		FrontendBaseURL:           strings.TrimSuffix(conf.GetString("frontendBaseURL"), "/"),
		RollbarToken:              conf.GetString("rollbarToken"),
		SendgridAPIKey:            conf.GetString("sendgridApiKey"),
		PasswordResetTimeoutDelta: conf.GetDuration("passwordResetTimeoutDelta"),
		Timezone:                  tz,
		Server: ServerConfig{
			Host:                      conf.GetString("server.host"),
			Address:                   conf.GetString("server.address"),
			DebugHost:                 conf.GetString("server.debugHost"),
			ShutdownTimeout:           conf.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        conf.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: conf.GetDuration("server.jwtRefreshExpirationDelta"),
			DisableReqLogs:            conf.GetBool("server.disableReqLogs"),
		},
		Database: DatabaseConfig{
			Engine:        conf.GetString("database.engine"),
			Host:          conf.GetString("database.host"),
			Port:          conf.GetString("database.port"),
			Name:          conf.GetString("database.name"),
			User:          conf.GetString("database.user"),
			Password:      conf.GetString("database.password"),
			AdminUser:     conf.GetString("database.adminUser"),
			AdminPassword: conf.GetString("database.adminPassword"),
			DisableTLS:    conf.GetBool("database.disableTLS"),
			Path:          conf.GetString("database.path"),
		},
		Storage: StorageConfig{
			DocumentsDir:        conf.GetString("storage.documentsDir"),
			MaxUploadSize:       conf.GetInt64("storage.maxUploadSize"),
			AllowedContentTypes: conf.GetStringSlice("storage.allowedContentTypes"),
		},
		Pipeline: PipelineConfig{
			File: conf.GetString("pipeline.file"),
		},
	}
}

// NewTestConfig returns a deterministic configuration backed by an in-memory SQLite database.
func NewTestConfig() *Config {
	return &Config{
		Debug:                     false,
		TestMode:                  true,
		Env:                       "TEST",
		Build:                     "test",
		AppName:                   "Leads Aladdin",
		SecretKey:                 "secret",
		DefaultFromEmail:          mail.Address{Name: "Leads Aladdin", Address: "noreply@localhost"},
		FrontendBaseURL:           "http://localhost:3000",
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		Timezone:                  time.UTC,
		Server: ServerConfig{
			Host:                      "localhost",
			ShutdownTimeout:           time.Second,
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
			DisableReqLogs:            true,
		},
		Database: DatabaseConfig{
			Engine: "sqlite",
			Path:   ":memory:",
		},
		Storage: StorageConfig{
			MaxUploadSize:       1 << 20,
			AllowedContentTypes: []string{"image/jpeg", "image/png", "application/pdf", "text/plain"},
		},
	}
}
