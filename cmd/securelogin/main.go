package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	apiclient "github.com/RiddheshFirake/Lenden-SecureLoginSystem/pkg/api/client"
	"golang.org/x/term"
)

type cliConfig struct {
	APIBaseURL  string    `json:"api_base_url"`
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}

const (
	defaultAPIBase = "http://localhost:4000"
	requestTimeout = 15 * time.Second
)

var buildVersion = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "register":
		err = commandRegister(args)
	case "login":
		err = commandLogin(args)
	case "logout":
		err = commandLogout()
	case "profile":
		err = commandProfile(args)
	case "verify-password":
		err = commandVerifyPassword(args)
	case "version", "--version", "-v":
		printVersion()
		return
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func commandRegister(args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	firstName := fs.String("first-name", "", "First name")
	lastName := fs.String("last-name", "", "Last name")
	phone := fs.String("phone", "", "Phone number (optional)")
	sensitiveID := fs.String("id", "", "Government identifier (prompted when omitted)")
	apiBase := fs.String("api", "", "API base URL (default http://localhost:4000)")
	fs.Parse(args)

	if strings.TrimSpace(*email) == "" {
		return errors.New("--email is required")
	}
	secret, err := promptSecret("Password: ", *password)
	if err != nil {
		return err
	}
	if strings.TrimSpace(*password) == "" {
		confirm, err := promptSecret("Confirm password: ", "")
		if err != nil {
			return err
		}
		if confirm != secret {
			return errors.New("passwords do not match")
		}
	}
	id, err := promptSecret("Identifier: ", *sensitiveID)
	if err != nil {
		return err
	}

	cfg, client, err := clientFromConfig(*apiBase)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	resp, err := client.Register(ctx, apiclient.RegisterInput{
		Email:       *email,
		Password:    secret,
		FirstName:   *firstName,
		LastName:    *lastName,
		Phone:       *phone,
		SensitiveID: id,
	})
	if err != nil {
		return err
	}
	if strings.TrimSpace(*apiBase) != "" {
		if err := saveConfig(cfg); err != nil {
			return err
		}
	}
	fmt.Printf("registered user %s\n", resp.UserID)
	return nil
}

func commandLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	apiBase := fs.String("api", "", "API base URL (default http://localhost:4000)")
	fs.Parse(args)

	if strings.TrimSpace(*email) == "" {
		return errors.New("--email is required")
	}
	secret, err := promptSecret("Password: ", *password)
	if err != nil {
		return err
	}

	cfg, client, err := clientFromConfig(*apiBase)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	resp, err := client.Login(ctx, *email, secret)
	if err != nil {
		return err
	}
	cfg.AccessToken = resp.Token
	cfg.ExpiresAt = resp.ExpiresAt
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Printf("logged in as %s (session expires %s)\n", resp.User.Email, resp.ExpiresAt.Local().Format(time.RFC1123))
	return nil
}

func commandLogout() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.AccessToken = ""
	cfg.ExpiresAt = time.Time{}
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Println("logged out")
	return nil
}

func commandProfile(args []string) error {
	if len(args) == 0 {
		return errors.New("profile subcommand required (get|update)")
	}
	switch args[0] {
	case "get":
		return profileGet(args[1:])
	case "update":
		return profileUpdate(args[1:])
	default:
		return fmt.Errorf("unknown profile subcommand: %s", args[0])
	}
}

func profileGet(args []string) error {
	fs := flag.NewFlagSet("profile get", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "Print raw JSON")
	fs.Parse(args)

	cfg, client, err := authedClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	p, err := client.GetProfile(ctx, cfg.AccessToken)
	if err != nil {
		return err
	}
	return printProfile(p, *asJSON)
}

func profileUpdate(args []string) error {
	fs := flag.NewFlagSet("profile update", flag.ExitOnError)
	firstName := fs.String("first-name", "", "New first name")
	lastName := fs.String("last-name", "", "New last name")
	phone := fs.String("phone", "", "New phone number")
	sensitiveID := fs.String("id", "", "New government identifier")
	fs.Parse(args)

	var update apiclient.ProfileUpdate
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "first-name":
			update.FirstName = firstName
		case "last-name":
			update.LastName = lastName
		case "phone":
			update.Phone = phone
		case "id":
			update.SensitiveID = sensitiveID
		}
	})
	if update.FirstName == nil && update.LastName == nil && update.Phone == nil && update.SensitiveID == nil {
		return errors.New("nothing to update: pass at least one of --first-name, --last-name, --phone, --id")
	}

	cfg, client, err := authedClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	p, err := client.UpdateProfile(ctx, cfg.AccessToken, update)
	if err != nil {
		return err
	}
	return printProfile(p, false)
}

func commandVerifyPassword(args []string) error {
	fs := flag.NewFlagSet("verify-password", flag.ExitOnError)
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	fs.Parse(args)

	secret, err := promptSecret("Password: ", *password)
	if err != nil {
		return err
	}
	cfg, client, err := authedClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	ok, err := client.VerifyPassword(ctx, cfg.AccessToken, secret)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("password verification failed")
	}
	fmt.Println("password verified")
	return nil
}

func printProfile(p apiclient.Profile, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	}
	fmt.Printf("ID:         %s\n", p.ID)
	fmt.Printf("Email:      %s\n", p.Email)
	fmt.Printf("Name:       %s %s\n", p.FirstName, p.LastName)
	if p.Phone != "" {
		fmt.Printf("Phone:      %s\n", p.Phone)
	}
	fmt.Printf("Identifier: %s\n", p.SensitiveID)
	fmt.Printf("Updated:    %s\n", p.UpdatedAt.Local().Format(time.RFC1123))
	return nil
}

// promptSecret returns value when set, otherwise reads a line from the
// terminal without echo.
func promptSecret(label, value string) (string, error) {
	if strings.TrimSpace(value) != "" {
		return value, nil
	}
	fmt.Print(label)
	bytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Print("\n")
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return string(bytes), nil
}

func clientFromConfig(apiBase string) (cliConfig, *apiclient.Client, error) {
	cfg, _ := loadConfig()
	if strings.TrimSpace(apiBase) != "" {
		cfg.APIBaseURL = apiBase
	} else if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBase
	}
	client, err := apiclient.New(cfg.APIBaseURL)
	if err != nil {
		return cliConfig{}, nil, err
	}
	return cfg, client, nil
}

func authedClient() (cliConfig, *apiclient.Client, error) {
	cfg, client, err := clientFromConfig("")
	if err != nil {
		return cliConfig{}, nil, err
	}
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return cliConfig{}, nil, errors.New("not logged in, run `securelogin login` first")
	}
	if !cfg.ExpiresAt.IsZero() && time.Now().After(cfg.ExpiresAt) {
		return cliConfig{}, nil, errors.New("session expired, run `securelogin login` again")
	}
	return cfg, client, nil
}

func loadConfig() (cliConfig, error) {
	path, err := configPath()
	if err != nil {
		return cliConfig{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cliConfig{APIBaseURL: defaultAPIBase}, nil
		}
		return cliConfig{}, err
	}
	var cfg cliConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cliConfig{}, err
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBase
	}
	return cfg, nil
}

func saveConfig(cfg cliConfig) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func configPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "securelogin", "config.json"), nil
}

func printUsage() {
	fmt.Printf("securelogin CLI %s\n\n", buildVersion)
	fmt.Print(`Usage:
	securelogin register --email user@example.com --first-name Ada --last-name Lovelace [--phone N] [--id N] [--password secret] [--api URL]
	securelogin login --email user@example.com [--password secret] [--api http://localhost:4000]
	securelogin logout
	securelogin profile get [--json]
	securelogin profile update [--first-name X] [--last-name Y] [--phone N] [--id N]
	securelogin verify-password [--password secret]
	securelogin version
`)
}

func printVersion() {
	fmt.Println(strings.TrimSpace(buildVersion))
}
