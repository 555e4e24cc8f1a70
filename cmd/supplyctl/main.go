package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"supplynet/cmd/internal/passphrase"
	"supplynet/config"
	"supplynet/crypto"
	"supplynet/gateway/middleware"
)

const (
	keygenCommand  = "keygen"
	addressCommand = "address"
	tokenCommand   = "token"

	defaultKeystore = "registry.keystore"
	defaultConfig   = "./supplynet.toml"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		usage(out)
		return errors.New("missing command")
	}
	switch args[0] {
	case keygenCommand:
		return runKeygen(args[1:], out)
	case addressCommand:
		return runAddress(args[1:], out)
	case tokenCommand:
		return runToken(args[1:], out, time.Now())
	default:
		usage(out)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func usage(out io.Writer) {
	fmt.Fprintln(out, "Usage: supplyctl <command> [flags]")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  keygen    generate a keystore and print its account")
	fmt.Fprintln(out, "  address   print the account held by a keystore")
	fmt.Fprintln(out, "  token     mint a bearer token for an account")
}

func runKeygen(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(keygenCommand, flag.ContinueOnError)
	keystorePath := fs.String("keystore", defaultKeystore, "Output path for the keystore file")
	passEnv := fs.String("pass-env", passphrase.DefaultEnv, "Environment variable containing the keystore passphrase")
	light := fs.Bool("light", false, "Use light scrypt parameters (development only)")
	force := fs.Bool("force", false, "Overwrite an existing keystore file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := os.Stat(*keystorePath); err == nil && !*force {
		return fmt.Errorf("keystore %s already exists; pass -force to overwrite", *keystorePath)
	}
	pass, err := passphrase.NewConfirmingSource(*passEnv).Get()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	strength := crypto.StandardStrength
	if *light {
		strength = crypto.LightStrength
	}
	if err := crypto.SaveToKeystoreWithStrength(*keystorePath, key, pass, strength); err != nil {
		return err
	}
	fmt.Fprintf(out, "Keystore written to %s\n", *keystorePath)
	fmt.Fprintf(out, "Account: %s\n", key.PubKey().Address().String())
	return nil
}

func runAddress(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(addressCommand, flag.ContinueOnError)
	keystorePath := fs.String("keystore", defaultKeystore, "Path to the keystore file")
	passEnv := fs.String("pass-env", passphrase.DefaultEnv, "Environment variable containing the keystore passphrase")
	if err := fs.Parse(args); err != nil {
		return err
	}
	pass, err := passphrase.NewSource(*passEnv).Get()
	if err != nil {
		return err
	}
	key, err := crypto.LoadFromKeystore(*keystorePath, pass)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, key.PubKey().Address().String())
	return nil
}

func runToken(args []string, out io.Writer, now time.Time) error {
	fs := flag.NewFlagSet(tokenCommand, flag.ContinueOnError)
	configPath := fs.String("config", defaultConfig, "Path to the supplynetd config (issuer, audience and secret)")
	account := fs.String("account", "", "Bech32 account placed in the token subject")
	scopes := fs.String("scopes", "", "Comma separated scopes, e.g. registry:admin")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	subject, err := crypto.ParseAccount(*account)
	if err != nil {
		return fmt.Errorf("account: %w", err)
	}
	cfg := config.Default()
	if _, err := toml.DecodeFile(*configPath, cfg); err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	secret, err := cfg.Auth.JWTSecret()
	if err != nil {
		return err
	}
	var scopeList []string
	for _, scope := range strings.Split(*scopes, ",") {
		if trimmed := strings.TrimSpace(scope); trimmed != "" {
			scopeList = append(scopeList, trimmed)
		}
	}
	token, err := middleware.MintToken(secret, middleware.TokenRequest{
		Account:  subject,
		Scopes:   scopeList,
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
		TTL:      *ttl,
	}, now)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}
