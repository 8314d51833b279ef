package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/diarykeeper/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   gRPC bind address (e.g., ":50051")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-t int      access token validity, minutes
//	-i int      PBKDF2 iterations for new diaries
//	-l int      diary inactivity timeout, minutes
//	-w int      lock sweep interval, minutes
//	-k string   envelope store: memory, badger or postgres
//	-f string   badger directory
//	-m string   media store: store or s3
//	-z int      max media size, MiB
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//
// os.Args is first narrowed with flagx.FilterArgs so the -c/-config flag
// handled by parseJson does not trip this flag set.
func parseFlags(config *Config) error {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-d", "-s", "-t", "-i", "-l", "-w", "-k", "-f", "-m", "-z", "-u", "-p", "-b", "-g", "-e",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	accessTokenValidity := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access token validity (in minutes)")
	fs.IntVar(&config.KDFIterations, "i", config.KDFIterations, "PBKDF2 iterations for new diaries")
	sessionTimeout := fs.Int("l", int(config.SessionTimeout.Minutes()), "diary inactivity timeout (in minutes)")
	sweepInterval := fs.Int("w", int(config.SweepInterval.Minutes()), "lock sweep interval (in minutes)")

	fs.StringVar(&config.StoreBackend, "k", config.StoreBackend, "envelope store: memory|badger|postgres")
	fs.StringVar(&config.BadgerPath, "f", config.BadgerPath, "badger directory")
	fs.StringVar(&config.MediaBackend, "m", config.MediaBackend, "media store: store|s3")
	maxMedia := fs.Int64("z", config.MaxMediaSize>>20, "max media size (in MiB)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 root bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 root region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	config.AccessTokenValidityDuration = time.Duration(*accessTokenValidity) * time.Minute
	config.SessionTimeout = time.Duration(*sessionTimeout) * time.Minute
	config.SweepInterval = time.Duration(*sweepInterval) * time.Minute
	config.MaxMediaSize = *maxMedia << 20
	return nil
}
