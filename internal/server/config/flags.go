package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/authgate/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-r string   Redis address (host:port)
//	-s string   JWT HMAC secret key
//	-t int      access token validity, minutes
//	-p int      reset token validity, minutes
//	-w int      login failure window, seconds
//	-m int      login failures before a block
//
// Mail, CORS and queue settings have no flag form; set them via the JSON
// file or the environment.
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes using
//     flagx.FilterArgs, avoiding collisions with other components.
//   - Duration flags are accepted as integers and converted to time.Duration.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-r", "-s", "-t", "-p", "-w", "-m"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "redis address")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	accessTokenValidity := fs.Int("t", int(config.AccessTokenValidity.Minutes()), "access_token_validity (in minutes)")
	resetTokenValidity := fs.Int("p", int(config.ResetTokenValidity.Minutes()), "reset_token_validity (in minutes)")
	loginFailWindow := fs.Int("w", int(config.LoginFailWindow.Seconds()), "login_fail_window (in seconds)")

	fs.Int64Var(&config.LoginFailMaxAttempts, "m", config.LoginFailMaxAttempts, "login failures before a block")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidity = time.Duration(*accessTokenValidity) * time.Minute
	config.ResetTokenValidity = time.Duration(*resetTokenValidity) * time.Minute
	config.LoginFailWindow = time.Duration(*loginFailWindow) * time.Second
}
