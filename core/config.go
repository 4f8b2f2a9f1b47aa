package core

import (
	"fmt"
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
	Config struct {
		Debug    bool
		TestMode bool
		Env      string // DEV (default), TEST, QA, PROD
		Build    string
		WorkDir  string

		AppName           string
		SecretKey         string
		FrontendBaseURL   string
		DefaultFromName   string
		DefaultFromAddr   string
		SendgridApiKey    string
		RollbarToken      string
		MidtransServerKey string

		PasswordResetTimeoutDelta time.Duration

		Server   ServerConfig
		Database DatabaseConfig
		Plan     PlanConfig
	}

	ServerConfig struct {
		Host                      string
		DebugHost                 string
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		ShutdownTimeout           time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Name          string
		Host          string
		Port          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	// PlanConfig holds the admin-tunable BNPL policy. The down-payment ratio
	// in effect is snapshotted into each application at submission time so a
	// later change never rewrites pending applications.
	PlanConfig struct {
		DownPaymentRatio     float64
		InstallmentCount     int
		MaxInstallments      int
		MinDocuments         int
		MaxApplicationAmount int64
		UploadDir            string
		UploadTimeout        time.Duration
		GatewayTimeout       time.Duration
	}
)

func (c DatabaseConfig) Address() string {
	return c.Host + ":" + c.Port
}

func (c *Config) DefaultFromEmail() mail.Address {
	return mail.Address{Name: c.DefaultFromName, Address: c.DefaultFromAddr}
}

func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	// defaults
	v.SetDefault("debug", true)
	v.SetDefault("build", "dev")
	v.SetDefault("appName", "SkoolPay")
	v.SetDefault("secretKey", "f8a$k2u(3!mh^0&yq#skoolpay%dev+only=key)7pz")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromName", "SkoolPay")
	v.SetDefault("defaultFromAddr", "noreply@localhost")
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)

	v.SetDefault("serverHost", "0.0.0.0:8000")
	v.SetDefault("serverDebugHost", "0.0.0.0:4000")
	v.SetDefault("jwtExpirationDelta", 4*time.Hour)
	v.SetDefault("jwtRefreshExpirationDelta", 7*24*time.Hour)
	v.SetDefault("shutdownTimeout", 5*time.Second)

	v.SetDefault("databaseEngine", "postgres")
	v.SetDefault("databaseName", "skoolpay")
	v.SetDefault("databaseHost", "localhost")
	v.SetDefault("databasePort", "5432")
	v.SetDefault("databaseUser", "skoolpay")
	v.SetDefault("databasePassword", "")
	v.SetDefault("databaseAdminUser", "")
	v.SetDefault("databaseAdminPassword", "")
	v.SetDefault("databaseDisableTLS", true)

	// BNPL policy: 25% down, 6 monthly installments, at least 4 of the 6
	// checklist documents attached at submission.
	v.SetDefault("planDownPaymentRatio", 0.25)
	v.SetDefault("planInstallmentCount", 6)
	v.SetDefault("planMaxInstallments", 12)
	v.SetDefault("planMinDocuments", 4)
	v.SetDefault("planMaxApplicationAmount", int64(1000000))
	v.SetDefault("planUploadDir", "uploads")
	v.SetDefault("planUploadTimeout", 30*time.Second)
	v.SetDefault("planGatewayTimeout", 30*time.Second)

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	wd := getwd()
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := &Config{
		Debug:    v.GetBool("debug") && env != "PROD",
		TestMode: env == "TEST",
		Env:      env,
		Build:    v.GetString("build"),
		WorkDir:  wd,

		AppName:           v.GetString("appName"),
		SecretKey:         v.GetString("secretKey"),
		FrontendBaseURL:   v.GetString("frontendBaseURL"),
		DefaultFromName:   v.GetString("defaultFromName"),
		DefaultFromAddr:   v.GetString("defaultFromAddr"),
		SendgridApiKey:    v.GetString("sendgridApiKey"),
		RollbarToken:      v.GetString("rollbarToken"),
		MidtransServerKey: v.GetString("midtransServerKey"),

		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),

		Server: ServerConfig{
			Host:                      v.GetString("serverHost"),
			DebugHost:                 v.GetString("serverDebugHost"),
			JWTExpirationDelta:        v.GetDuration("jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("jwtRefreshExpirationDelta"),
			ShutdownTimeout:           v.GetDuration("shutdownTimeout"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("databaseEngine"),
			Name:          v.GetString("databaseName"),
			Host:          v.GetString("databaseHost"),
			Port:          v.GetString("databasePort"),
			User:          v.GetString("databaseUser"),
			Password:      v.GetString("databasePassword"),
			AdminUser:     v.GetString("databaseAdminUser"),
			AdminPassword: v.GetString("databaseAdminPassword"),
			DisableTLS:    v.GetBool("databaseDisableTLS"),
		},
		Plan: PlanConfig{
			DownPaymentRatio:     v.GetFloat64("planDownPaymentRatio"),
			InstallmentCount:     v.GetInt("planInstallmentCount"),
			MaxInstallments:      v.GetInt("planMaxInstallments"),
			MinDocuments:         v.GetInt("planMinDocuments"),
			MaxApplicationAmount: v.GetInt64("planMaxApplicationAmount"),
			UploadDir:            v.GetString("planUploadDir"),
			UploadTimeout:        v.GetDuration("planUploadTimeout"),
			GatewayTimeout:       v.GetDuration("planGatewayTimeout"),
		},
	}

	if conf.Plan.InstallmentCount < 1 || conf.Plan.InstallmentCount > conf.Plan.MaxInstallments {
		log.Fatalf("config: installment count %d out of range [1, %d]", conf.Plan.InstallmentCount, conf.Plan.MaxInstallments)
	}
	if conf.Plan.DownPaymentRatio <= 0 || conf.Plan.DownPaymentRatio >= 1 {
		log.Fatalf("config: down payment ratio %v out of range (0, 1)", conf.Plan.DownPaymentRatio)
	}
	return conf
}

func getwd() string {
	wd, err := os.Getwd()
	if err != nil {
		log.Fatal(fmt.Errorf("config.os.Getwd: %v", err))
	}
	return wd
}
