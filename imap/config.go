package imap

import "fmt"

// TLSMode selects how (or whether) the connection protects itself with TLS.
type TLSMode int

const (
	TLSRequire TLSMode = iota // implicit TLS from the first byte (the traditional "imaps" port 993)
	TLSStartTLS
	TLSDisabled
)

// AuthMethod selects the credential exchange used after connecting.
type AuthMethod int

const (
	AuthLogin AuthMethod = iota
	AuthPlain
	AuthXOAuth2
	AuthExternal
)

// LogLevel controls how much the Connection Actor writes to its Logger.
type LogLevel int

const (
	LogOff LogLevel = iota
	LogError
	LogWarn
	LogInfo
	LogDebug
	LogTrace // adds a log line for every read and write, rendered by lalog.ByteArrayLogString (not byte-exact)
)

// Config describes one IMAP server connection: where to dial, how to secure
// and authenticate it, and the operating limits the Connection Actor
// enforces. JSON struct tags follow this repository's configuration-file
// idiom so Config can be loaded straight out of a JSON document.
type Config struct {
	Hostname string `json:"Hostname"`
	Port     uint16 `json:"Port"`

	TLSMode            TLSMode `json:"TLSMode"`
	InsecureSkipVerify bool    `json:"InsecureSkipVerify"`

	AuthMethod  AuthMethod `json:"AuthMethod"`
	Username    string     `json:"Username"`
	Password    string     `json:"Password"`
	AccessToken string     `json:"AccessToken"` // bearer token for XOAUTH2

	ConnectTimeoutSec     int                   `json:"ConnectTimeoutSec"`
	CommandTimeoutSec     int                   `json:"CommandTimeoutSec"`
	MaxLiteralOctets      int64                 `json:"MaxLiteralOctets"`
	LiteralOverflowPolicy LiteralOverflowPolicy `json:"LiteralOverflowPolicy"`

	LogLevel LogLevel `json:"LogLevel"`
}

const (
	defaultPort              = 993
	defaultConnectTimeoutSec = 30
	defaultCommandTimeoutSec = 60
	defaultMaxLiteralOctets  = 25 * 1024 * 1024
)

// WithDefaults returns a copy of c with zero-valued fields replaced by the
// documented defaults.
func (c Config) WithDefaults() Config {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.ConnectTimeoutSec == 0 {
		c.ConnectTimeoutSec = defaultConnectTimeoutSec
	}
	if c.CommandTimeoutSec == 0 {
		c.CommandTimeoutSec = defaultCommandTimeoutSec
	}
	if c.MaxLiteralOctets == 0 {
		c.MaxLiteralOctets = defaultMaxLiteralOctets
	}
	return c
}

// Redacted returns a copy of c with secrets blanked out, safe to log.
func (c Config) Redacted() Config {
	if c.Password != "" {
		c.Password = "(redacted)"
	}
	if c.AccessToken != "" {
		c.AccessToken = "(redacted)"
	}
	return c
}

func (c Config) String() string {
	r := c.Redacted()
	return fmt.Sprintf("imap.Config{Hostname:%q Port:%d TLSMode:%d AuthMethod:%d Username:%q}",
		r.Hostname, r.Port, r.TLSMode, r.AuthMethod, r.Username)
}
