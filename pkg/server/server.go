package server

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/traumwelt-mud/traumwelt/pkg/gamedb"
)

// Version is the server version string.
const Version = "0.3.0"

// Config holds server configuration.
type Config struct {
	Port        int
	IdleTimeout time.Duration
	MaxRetries  int
	TLS         bool
	TLSPort     int
	TLSCert     string
	TLSKey      string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Port:        4000,
		IdleTimeout: 3600 * time.Second,
		MaxRetries:  3,
	}
}

// Server is the main TCP game server.
type Server struct {
	Config      Config
	Game        *Game
	listener    net.Listener
	tlsListener net.Listener
	webServer   *WebServer
}

// NewServer creates a new server instance over an existing game.
func NewServer(game *Game, cfg Config) *Server {
	return &Server{
		Config: cfg,
		Game:   game,
	}
}

// Start begins listening for connections. Blocks until all listeners stop.
func (s *Server) Start() error {
	log.Printf("Database: %d objects, %d accounts",
		len(s.Game.DB.Objects), len(s.Game.DB.Accounts))

	var wg sync.WaitGroup
	errCh := make(chan error, 3)

	wg.Add(1)
	go func() {
		defer wg.Done()
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.Config.Port))
		if err != nil {
			errCh <- fmt.Errorf("listener: %w", err)
			return
		}
		s.listener = ln
		log.Printf("Listening on port %d", s.Config.Port)
		s.acceptLoop(ln)
	}()

	if s.Config.TLS {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cert, err := tls.LoadX509KeyPair(s.Config.TLSCert, s.Config.TLSKey)
			if err != nil {
				errCh <- fmt.Errorf("TLS cert load: %w", err)
				return
			}
			tlsCfg := &tls.Config{Certificates: []tls.Certificate{cert}}
			ln, err := tls.Listen("tcp", fmt.Sprintf(":%d", s.Config.TLSPort), tlsCfg)
			if err != nil {
				errCh <- fmt.Errorf("TLS listener: %w", err)
				return
			}
			s.tlsListener = ln
			log.Printf("Listening (TLS) on port %d", s.Config.TLSPort)
			s.acceptLoop(ln)
		}()
	}

	if s.Game.Conf != nil && s.Game.Conf.WebEnabled {
		cfg := WebConfig{
			Port:      s.Game.Conf.WebPort,
			Host:      s.Game.Conf.WebHost,
			Domain:    s.Game.Conf.WebDomain,
			CertDir:   s.Game.Conf.CertDir,
			JWTSecret: s.Game.Conf.JWTSecret,
			JWTExpiry: s.Game.Conf.JWTExpiry,
		}
		s.webServer = NewWebServer(s.Game, cfg)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.webServer.Start(cfg); err != nil {
				errCh <- fmt.Errorf("web server: %w", err)
			}
		}()
	}

	select {
	case err := <-errCh:
		return err
	default:
	}

	wg.Wait()
	return nil
}

// acceptLoop accepts connections on the given listener until it is closed.
func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("Accept error: %v", err)
			continue
		}
		go s.handleConnection(conn)
	}
}

// Stop closes all active listeners.
func (s *Server) Stop() {
	if s.listener != nil {
		s.listener.Close()
	}
	if s.tlsListener != nil {
		s.tlsListener.Close()
	}
	if s.webServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.webServer.Stop(ctx)
	}
}

// handleConnection manages a single client connection lifecycle.
func (s *Server) handleConnection(conn net.Conn) {
	id := s.Game.Conns.NextID()
	d := NewDescriptor(id, conn)
	if s.Config.MaxRetries > 0 {
		d.Retries = s.Config.MaxRetries
	}
	s.Game.Conns.Add(d)
	if s.Game.Metrics != nil {
		s.Game.Metrics.Connection("tcp")
	}

	log.Printf("[%d] New connection from %s", d.ID, d.Addr)

	defer func() {
		s.Game.DisconnectSession(d)
		s.Game.Conns.Remove(d)
		d.Close()
		log.Printf("[%d] Connection closed from %s", d.ID, d.Addr)
	}()

	if s.Game.Texts != nil {
		d.SendNoNewline(s.Game.Texts.ConnectScreen())
	}

	scanner := bufio.NewScanner(d.Conn)
	scanner.Buffer(make([]byte, 8192), 8192)

	for scanner.Scan() {
		if d.IsClosed() {
			return
		}

		line := scanner.Text()
		d.BytesRecv += len(line) + 1
		line = stripTelnet(line)
		line = strings.TrimRight(line, "\r\n")
		d.LastCmd = time.Now()

		if d.State == ConnLogin {
			s.handleLoginCommand(d, line)
		} else {
			d.CmdCount++
			if pf := d.PromptFunc; pf != nil {
				if pf(line) {
					d.PromptFunc = nil
				}
			} else {
				DispatchCommand(s.Game, d, line)
			}
		}

		if d.IsClosed() {
			return
		}
	}
}

// handleLoginCommand processes pre-login commands.
func (s *Server) handleLoginCommand(d *Descriptor, input string) {
	input = strings.TrimSpace(input)
	if input == "" {
		return
	}

	upper := strings.ToUpper(input)
	if upper == "QUIT" {
		if s.Game.Texts != nil {
			if txt := s.Game.Texts.QuitText(); txt != "" {
				d.SendNoNewline(txt)
			} else {
				d.Send("Goodbye!")
			}
		} else {
			d.Send("Goodbye!")
		}
		d.Close()
		return
	}
	if upper == "WHO" {
		cmdWho(s.Game, d, "")
		return
	}

	command, user, password := parseConnect(input)

	switch {
	case strings.HasPrefix(command, "co"):
		s.handleConnect(d, user, password)
	case strings.HasPrefix(command, "cr"):
		s.handleCreate(d, user, password)
	default:
		d.Send(fmt.Sprintf("Welcome to %s. Commands: connect, create, WHO, QUIT", s.Game.Conf.MudName))
	}
}

// handleConnect authenticates and logs in an account.
func (s *Server) handleConnect(d *Descriptor, user, password string) {
	if user == "" {
		d.Send("Usage: connect <name> <password>")
		return
	}

	acct := s.Game.DB.LookupAccount(user)
	if acct == nil || !CheckPassword(acct, password) {
		d.Send("Either that account does not exist, or has a different password.")
		d.Retries--
		if d.Retries <= 0 {
			d.Send("Too many failed attempts. Disconnecting.")
			d.Close()
		}
		return
	}

	s.Game.Conns.Login(d, acct.ID)
	log.Printf("[%d] Account %s(%d) connected from %s", d.ID, acct.Name, acct.ID, d.Addr)

	d.Send(fmt.Sprintf("Welcome back, %s!", acct.Name))
	if s.Game.Texts != nil {
		if txt := s.Game.Texts.MOTD(); txt != "" {
			d.SendNoNewline(txt)
		}
	}
	showRoster(s.Game, d)
}

// handleCreate registers a new account and logs it in. Characters come
// later via charcreate; an account starts with no slots.
func (s *Server) handleCreate(d *Descriptor, user, password string) {
	if user == "" || password == "" {
		d.Send("Usage: create <name> <password>")
		return
	}
	if len(user) < 2 || len(user) > 30 {
		d.Send("Account names must be 2 to 30 characters.")
		return
	}
	for _, ch := range user {
		if ch == '"' || ch == ';' || ch == ' ' {
			d.Send("That name contains illegal characters.")
			return
		}
	}
	if s.Game.DB.LookupAccount(user) != nil {
		d.Send("That name is already taken.")
		return
	}

	hash, err := HashPassword(password)
	if err != nil {
		d.Send("Account creation failed. Try again.")
		log.Printf("[%d] password hash: %v", d.ID, err)
		return
	}

	acct := &gamedb.Account{
		Name:         user,
		PasswordHash: hash,
		Level:        gamedb.LevelPlayer,
		LastPuppet:   gamedb.Nothing,
		CreatedAt:    time.Now(),
	}
	s.Game.DB.AddAccount(acct)
	s.Game.PersistAccount(acct)

	log.Printf("[%d] New account %s(%d) created from %s", d.ID, user, acct.ID, d.Addr)

	s.Game.Conns.Login(d, acct.ID)
	d.Send(fmt.Sprintf("Welcome to %s, %s! Use charcreate to make your first character.",
		s.Game.Conf.MudName, acct.Name))
	showRoster(s.Game, d)
}

// parseConnect splits a pre-login line into command, account name, and
// password. Quoted names may contain spaces.
func parseConnect(msg string) (command, user, password string) {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return "", "", ""
	}

	parts := strings.SplitN(msg, " ", 2)
	command = strings.ToLower(parts[0])
	if len(parts) < 2 {
		return command, "", ""
	}

	rest := strings.TrimSpace(parts[1])
	if rest == "" {
		return command, "", ""
	}

	if rest[0] == '"' {
		end := strings.Index(rest[1:], "\"")
		if end >= 0 {
			user = rest[1 : end+1]
			password = strings.TrimSpace(rest[end+2:])
			return
		}
	}

	parts = strings.SplitN(rest, " ", 2)
	user = parts[0]
	if len(parts) > 1 {
		password = strings.TrimSpace(parts[1])
	}
	return
}

// stripTelnet removes telnet IAC command sequences from input.
func stripTelnet(s string) string {
	var buf strings.Builder
	i := 0
	for i < len(s) {
		if s[i] == 0xFF && i+2 < len(s) {
			i += 3
			continue
		}
		if s[i] == 0xFF && i+1 < len(s) {
			i += 2
			continue
		}
		if s[i] < 32 && s[i] != '\t' && s[i] != '\n' && s[i] != '\r' {
			i++
			continue
		}
		buf.WriteByte(s[i])
		i++
	}
	return buf.String()
}
