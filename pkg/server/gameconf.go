package server

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// GameConf holds game-level configuration parameters.
type GameConf struct {
	// --- Identity ---
	MudName string `yaml:"mud_name"`
	Port    int    `yaml:"port"`

	// --- Key rooms ---
	StartRoom   int `yaml:"start_room"`   // where finished characters enter the world
	DefaultHome int `yaml:"default_home"` // fallback home for new characters

	// --- Characters ---
	MaxCharacters int `yaml:"max_characters"` // slot quota for unprivileged accounts

	// --- Idle/timeout ---
	IdleTimeout int `yaml:"idle_timeout"` // seconds, 0 = never

	// --- Text files ---
	TextDir string `yaml:"text_dir"` // connection screens, motd, quit text

	// --- Persistence ---
	DBFile  string `yaml:"db_file"`  // bolt database path
	AuditDB string `yaml:"audit_db"` // sqlite audit log path, empty = log lines only

	// --- TLS (game port) ---
	TLS     bool   `yaml:"tls"`
	TLSPort int    `yaml:"tls_port"`
	TLSCert string `yaml:"tls_cert"`
	TLSKey  string `yaml:"tls_key"`

	// --- Web ---
	WebEnabled bool   `yaml:"web_enabled"` // HTTPS/WSS server
	WebPort    int    `yaml:"web_port"`
	WebHost    string `yaml:"web_host"`   // bind address, empty = all interfaces
	WebDomain  string `yaml:"web_domain"` // Let's Encrypt domain, empty = plain HTTP
	CertDir    string `yaml:"cert_dir"`   // autocert cache directory
	JWTSecret  string `yaml:"jwt_secret"` // auto-generated if empty
	JWTExpiry  int    `yaml:"jwt_expiry"` // seconds
}

// DefaultGameConf returns a GameConf with sane defaults.
func DefaultGameConf() *GameConf {
	return &GameConf{
		MudName:       "Traumwelt",
		Port:          4000,
		StartRoom:     1,
		DefaultHome:   1,
		MaxCharacters: 3,
		IdleTimeout:   3600,
		TextDir:       "text",
		DBFile:        "traumwelt.db",
		WebPort:       8443,
		CertDir:       "certs",
		JWTExpiry:     86400,
	}
}

// LoadGameConf loads a YAML config file over the defaults.
func LoadGameConf(path string) (*GameConf, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	gc := DefaultGameConf()
	if err := yaml.Unmarshal(data, gc); err != nil {
		return nil, fmt.Errorf("parsing YAML %s: %w", path, err)
	}
	return gc, nil
}

// ApplyEnv overrides config fields from TW_* environment variables, so a
// container deployment can adjust a baked-in config file.
func (gc *GameConf) ApplyEnv() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	envBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			v = strings.ToLower(v)
			*dst = v == "1" || v == "true" || v == "yes" || v == "on"
		}
	}

	envStr("TW_MUD_NAME", &gc.MudName)
	envInt("TW_PORT", &gc.Port)
	envInt("TW_START_ROOM", &gc.StartRoom)
	envInt("TW_MAX_CHARACTERS", &gc.MaxCharacters)
	envStr("TW_TEXT_DIR", &gc.TextDir)
	envStr("TW_DB_FILE", &gc.DBFile)
	envStr("TW_AUDIT_DB", &gc.AuditDB)
	envBool("TW_WEB_ENABLED", &gc.WebEnabled)
	envInt("TW_WEB_PORT", &gc.WebPort)
	envStr("TW_WEB_DOMAIN", &gc.WebDomain)
	envStr("TW_JWT_SECRET", &gc.JWTSecret)
}
