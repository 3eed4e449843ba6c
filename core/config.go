package core

import (
	"fmt"
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host            string
		DebugHost       string
		ReadTimeout     time.Duration
		WriteTimeout    time.Duration
		ShutdownTimeout time.Duration
		DisableReqLogs  bool

		// session tokens are issued by the identity provider and signed with JWTSecret
		JWTSecret   string
		JWTIssuer   string
		JWTAudience string
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		MaxOpenConns  int
		MaxIdleConns  int
	}

	IdentityConfig struct {
		BaseURL           string
		SecretKey         string
		Timeout           time.Duration
		Retries           int
		InviteRedirectURL string
		ReconcileSchedule string
		ReconcileBatch    int
	}

	StorageConfig struct {
		Driver        string // local | s3 | b2
		Bucket        string
		Region        string
		Endpoint      string
		AccessKey     string
		SecretKey     string
		B2AccountID   string
		B2AppKey      string
		LocalDir      string
		PublicBaseURL string
		MaxUploadSize int64
	}

	Config struct {
		Env              string
		Build            string
		Debug            bool
		TestMode         bool
		AppName          string
		SecretKey        string
		FrontendBaseURL  string
		RollbarToken     string
		SendgridApiKey   string
		defaultFromEmail string

		Server   ServerConfig
		Database DatabaseConfig
		Identity IdentityConfig
		Storage  StorageConfig
	}
)

// NewConfig loads the configuration of the current ENV (DEV (local; default), TEST, QA, PROD).
// Values come from env vars prefixed with the ENV name (e.g. DEV_DATABASE_HOST),
// optionally loaded from config/.env.<env>.
func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	setDefaults(v, env)
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Env:              env,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		AppName:          v.GetString("appName"),
		SecretKey:        v.GetString("secretKey"),
		FrontendBaseURL:  strings.TrimRight(v.GetString("frontendBaseURL"), "/"),
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		defaultFromEmail: v.GetString("defaultFromEmail"),
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			DebugHost:       v.GetString("server.debugHost"),
			ReadTimeout:     v.GetDuration("server.readTimeout"),
			WriteTimeout:    v.GetDuration("server.writeTimeout"),
			ShutdownTimeout: v.GetDuration("server.shutdownTimeout"),
			DisableReqLogs:  v.GetBool("server.disableReqLogs"),
			JWTSecret:       v.GetString("server.jwtSecret"),
			JWTIssuer:       v.GetString("server.jwtIssuer"),
			JWTAudience:     v.GetString("server.jwtAudience"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
			MaxOpenConns:  v.GetInt("database.maxOpenConns"),
			MaxIdleConns:  v.GetInt("database.maxIdleConns"),
		},
		Identity: IdentityConfig{
			BaseURL:           strings.TrimRight(v.GetString("identity.baseURL"), "/"),
			SecretKey:         v.GetString("identity.secretKey"),
			Timeout:           v.GetDuration("identity.timeout"),
			Retries:           v.GetInt("identity.retries"),
			InviteRedirectURL: v.GetString("identity.inviteRedirectURL"),
			ReconcileSchedule: v.GetString("identity.reconcileSchedule"),
			ReconcileBatch:    v.GetInt("identity.reconcileBatch"),
		},
		Storage: StorageConfig{
			Driver:        v.GetString("storage.driver"),
			Bucket:        v.GetString("storage.bucket"),
			Region:        v.GetString("storage.region"),
			Endpoint:      v.GetString("storage.endpoint"),
			AccessKey:     v.GetString("storage.accessKey"),
			SecretKey:     v.GetString("storage.secretKey"),
			B2AccountID:   v.GetString("storage.b2AccountID"),
			B2AppKey:      v.GetString("storage.b2AppKey"),
			LocalDir:      v.GetString("storage.localDir"),
			PublicBaseURL: strings.TrimRight(v.GetString("storage.publicBaseURL"), "/"),
			MaxUploadSize: v.GetInt64("storage.maxUploadSize"),
		},
	}
}

func setDefaults(v *viper.Viper, env string) {
	v.SetDefault("build", "develop")
	v.SetDefault("debug", env == "DEV")
	v.SetDefault("testMode", env == "TEST")
	v.SetDefault("appName", "Somesha")
	v.SetDefault("secretKey", "k3#v9-s!m8es)ha%2p&x0+q@t4zr(ld_c7w^yu1n$fb5e=gj")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "Somesha <noreply@localhost>")

	v.SetDefault("server.host", "0.0.0.0:8000")
	v.SetDefault("server.debugHost", "0.0.0.0:4000")
	v.SetDefault("server.readTimeout", 5*time.Second)
	v.SetDefault("server.writeTimeout", 10*time.Second)
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtSecret", "dev-session-secret")
	v.SetDefault("server.jwtIssuer", "")
	v.SetDefault("server.jwtAudience", "")

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "somesha")
	v.SetDefault("database.user", "somesha")
	v.SetDefault("database.password", "somesha")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.disableTLS", env == "DEV" || env == "TEST")
	v.SetDefault("database.maxOpenConns", 25)
	v.SetDefault("database.maxIdleConns", 25)

	v.SetDefault("identity.baseURL", "https://api.clerk.com/v1")
	v.SetDefault("identity.timeout", 10*time.Second)
	v.SetDefault("identity.retries", 2)
	v.SetDefault("identity.inviteRedirectURL", "http://localhost:3000/sign-up")
	v.SetDefault("identity.reconcileSchedule", "@every 15m")
	v.SetDefault("identity.reconcileBatch", 100)

	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.localDir", "uploads")
	v.SetDefault("storage.publicBaseURL", "http://localhost:8000/uploads")
	v.SetDefault("storage.maxUploadSize", 10<<20)
}

// DefaultFromEmail parses the configured sender address.
func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.defaultFromEmail)
	if err != nil {
		return mail.Address{Address: c.defaultFromEmail}
	}
	return *addr
}

// Address returns the host:port of the database server.
func (db DatabaseConfig) Address() string {
	if db.Port == "" {
		return db.Host
	}
	return net.JoinHostPort(db.Host, db.Port)
}

func (c *Config) String() string {
	return fmt.Sprintf("%s (env=%s, debug=%t, storage=%s)", c.AppName, c.Env, c.Debug, c.Storage.Driver)
}
