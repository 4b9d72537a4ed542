package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/authgate/internal/flagx"
	"github.com/dmitrijs2005/authgate/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// It uses timex.Duration for interval fields, which allows parsing both
// string values such as "15m" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON configuration
// files. After unmarshalling, its fields are copied into the runtime Config
// struct which uses time.Duration.
type JsonConfig struct {
	EndpointAddrHTTP           string         `json:"endpoint_addr_http"`
	DatabaseDSN                string         `json:"database_dsn"`
	RedisAddr                  string         `json:"redis_addr"`
	RedisPassword              string         `json:"redis_password"`
	RedisDB                    int            `json:"redis_db"`
	SecretKey                  string         `json:"secret_key"`
	AccessTokenValidity        timex.Duration `json:"access_token_validity"`
	ResetTokenValidity         timex.Duration `json:"reset_token_validity"`
	SignupConfirmationValidity timex.Duration `json:"signup_confirmation_validity"`
	LoginFailWindow            timex.Duration `json:"login_fail_window"`
	LoginFailMaxAttempts       int64          `json:"login_fail_max_attempts"`
	SMTPHost                   string         `json:"smtp_host"`
	SMTPPort                   int            `json:"smtp_port"`
	SMTPUsername               string         `json:"smtp_username"`
	SMTPPassword               string         `json:"smtp_password"`
	EmailFrom                  string         `json:"email_from"`
	ResetURLBase               string         `json:"reset_url_base"`
	AllowedOrigins             []string       `json:"allowed_origins"`
	MailQueueSize              int            `json:"mail_queue_size"`
	MailWorkers                int            `json:"mail_workers"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file path comes from the -c or -config command-line flags; if neither
// is set, no JSON file is loaded. If the file cannot be read or contains
// invalid JSON, the function panics.
//
// The caller is expected to merge these values with defaults, command-line
// flags and the environment as part of the full configuration process. Only
// fields actually present in the file override config; a partial file leaves
// the remaining fields untouched.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	if c.EndpointAddrHTTP != "" {
		config.EndpointAddrHTTP = c.EndpointAddrHTTP
	}
	if c.DatabaseDSN != "" {
		config.DatabaseDSN = c.DatabaseDSN
	}
	if c.RedisAddr != "" {
		config.RedisAddr = c.RedisAddr
	}
	if c.RedisPassword != "" {
		config.RedisPassword = c.RedisPassword
	}
	if c.RedisDB != 0 {
		config.RedisDB = c.RedisDB
	}
	if c.SecretKey != "" {
		config.SecretKey = c.SecretKey
	}
	if c.AccessTokenValidity.Duration != 0 {
		config.AccessTokenValidity = time.Duration(c.AccessTokenValidity.Duration)
	}
	if c.ResetTokenValidity.Duration != 0 {
		config.ResetTokenValidity = time.Duration(c.ResetTokenValidity.Duration)
	}
	if c.SignupConfirmationValidity.Duration != 0 {
		config.SignupConfirmationValidity = time.Duration(c.SignupConfirmationValidity.Duration)
	}
	if c.LoginFailWindow.Duration != 0 {
		config.LoginFailWindow = time.Duration(c.LoginFailWindow.Duration)
	}
	if c.LoginFailMaxAttempts != 0 {
		config.LoginFailMaxAttempts = c.LoginFailMaxAttempts
	}
	if c.SMTPHost != "" {
		config.SMTPHost = c.SMTPHost
	}
	if c.SMTPPort != 0 {
		config.SMTPPort = c.SMTPPort
	}
	if c.SMTPUsername != "" {
		config.SMTPUsername = c.SMTPUsername
	}
	if c.SMTPPassword != "" {
		config.SMTPPassword = c.SMTPPassword
	}
	if c.EmailFrom != "" {
		config.EmailFrom = c.EmailFrom
	}
	if c.ResetURLBase != "" {
		config.ResetURLBase = c.ResetURLBase
	}
	if len(c.AllowedOrigins) > 0 {
		config.AllowedOrigins = c.AllowedOrigins
	}
	if c.MailQueueSize != 0 {
		config.MailQueueSize = c.MailQueueSize
	}
	if c.MailWorkers != 0 {
		config.MailWorkers = c.MailWorkers
	}
}
