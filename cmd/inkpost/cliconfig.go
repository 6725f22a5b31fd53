package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/alphabot-ai/inkpost/internal/client"
)

const defaultServerURL = "http://localhost:8080"

// CLIConfig holds the CLI client configuration persisted to disk.
type CLIConfig struct {
	BaseURL  string `json:"base_url"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	IsAdmin  bool   `json:"is_admin,omitempty"`
	Token    string `json:"token,omitempty"`
	TokenExp string `json:"token_expires,omitempty"`
}

var errNotLoggedIn = errors.New("not logged in - run 'inkpost login' or 'inkpost register'")

func inkpostDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".inkpost")
}

func cliConfigPath() string {
	return filepath.Join(inkpostDir(), "config.json")
}

func loadCLIConfig() (CLIConfig, error) {
	data, err := os.ReadFile(cliConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			return CLIConfig{BaseURL: defaultServerURL}, nil
		}
		return CLIConfig{}, err
	}
	var cfg CLIConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return CLIConfig{}, fmt.Errorf("parse %s: %w", cliConfigPath(), err)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultServerURL
	}
	return cfg, nil
}

func saveCLIConfig(cfg CLIConfig) error {
	path := cliConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, _ := json.MarshalIndent(cfg, "", "  ")
	return os.WriteFile(path, data, 0600)
}

// rememberSession stores the client's token and identity.
func (cfg *CLIConfig) rememberSession(c *client.Client, ident *client.Identity) {
	cfg.BaseURL = c.BaseURL
	cfg.Token = c.Token
	cfg.TokenExp = c.TokenExp.Format(time.RFC3339)
	if ident != nil {
		cfg.Name, cfg.Email, cfg.IsAdmin = ident.Name, ident.Email, ident.IsAdmin
	}
}

func (cfg *CLIConfig) forgetSession() {
	cfg.Token, cfg.TokenExp, cfg.IsAdmin = "", "", false
}

func (cfg CLIConfig) tokenExpiry() (time.Time, bool) {
	if cfg.Token == "" {
		return time.Time{}, false
	}
	exp, err := time.Parse(time.RFC3339, cfg.TokenExp)
	if err != nil {
		return time.Time{}, false
	}
	return exp, time.Now().Before(exp)
}

// newClient builds a client for cfg, carrying the stored token when it is
// still valid.
func newClient(cfg CLIConfig, baseURL string) *client.Client {
	if baseURL == "" {
		baseURL = cfg.BaseURL
	}
	c := client.New(baseURL)
	if exp, ok := cfg.tokenExpiry(); ok && strings.TrimRight(baseURL, "/") == strings.TrimRight(cfg.BaseURL, "/") {
		c.Token, c.TokenExp = cfg.Token, exp
	}
	return c
}

func loadAuthenticatedClient() (*client.Client, CLIConfig, error) {
	cfg, err := loadCLIConfig()
	if err != nil {
		return nil, CLIConfig{}, err
	}
	if cfg.Token == "" {
		return nil, cfg, errNotLoggedIn
	}
	if _, ok := cfg.tokenExpiry(); !ok {
		return nil, cfg, errors.New("session expired - run 'inkpost login'")
	}
	return newClient(cfg, ""), cfg, nil
}

// promptPassword reads a password without echo from a terminal, or a single
// line when stdin is piped.
func promptPassword(in *os.File, out io.Writer) (string, error) {
	fmt.Fprint(out, "Password: ")
	if term.IsTerminal(int(in.Fd())) {
		pw, err := term.ReadPassword(int(in.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", err
		}
		return string(pw), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	fmt.Fprintln(out)
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
