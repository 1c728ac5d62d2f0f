package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/traumwelt-mud/traumwelt/pkg/boltstore"
	"github.com/traumwelt-mud/traumwelt/pkg/gamedb"
	"github.com/traumwelt-mud/traumwelt/pkg/seclog"
	"github.com/traumwelt-mud/traumwelt/pkg/server"
)

// envDefault returns the environment variable value if set, otherwise the fallback.
func envDefault(envVar, fallback string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return fallback
}

func main() {
	confFile := flag.String("conf", envDefault("TW_CONF", ""), "Path to game config file (env: TW_CONF)")
	boltPath := flag.String("bolt", envDefault("TW_DB_FILE", ""), "Path to bbolt persistent database (env: TW_DB_FILE)")
	port := flag.Int("port", 0, "TCP port to listen on, overrides config (env: TW_PORT)")
	textDir := flag.String("textdir", envDefault("TW_TEXT_DIR", ""), "Path to text files directory (env: TW_TEXT_DIR)")
	auditPath := flag.String("auditdb", envDefault("TW_AUDIT_DB", ""), "Path to SQLite audit log (env: TW_AUDIT_DB)")
	flag.Parse()

	log.Printf("Traumwelt %s starting", server.Version)

	if *port == 0 {
		if envPort := os.Getenv("TW_PORT"); envPort != "" {
			if p, err := strconv.Atoi(envPort); err == nil {
				*port = p
			}
		}
	}

	var gc *server.GameConf
	if *confFile != "" {
		var err error
		gc, err = server.LoadGameConf(*confFile)
		if err != nil {
			log.Fatalf("Error loading game config: %v", err)
		}
		log.Printf("Loaded game config from %s", *confFile)
	} else {
		gc = server.DefaultGameConf()
	}
	gc.ApplyEnv()

	// Command-line flags override config file values.
	if *port != 0 {
		gc.Port = *port
	}
	if *textDir != "" {
		gc.TextDir = *textDir
	}
	if *boltPath != "" {
		gc.DBFile = *boltPath
	}
	if *auditPath != "" {
		gc.AuditDB = *auditPath
	}

	store, err := boltstore.Open(gc.DBFile)
	if err != nil {
		log.Fatalf("Error opening database %s: %v", gc.DBFile, err)
	}
	defer store.Close()

	if store.HasData() {
		if err := store.LoadAll(); err != nil {
			log.Fatalf("Error loading database: %v", err)
		}
	} else {
		log.Printf("Empty database, seeding world")
		seedWorld(store, gc)
	}

	game := server.NewGame(store.DB(), gc)
	game.Store = store
	game.Metrics = server.NewMetrics(game, time.Now())

	game.Texts = server.NewTextFiles(gc.TextDir)
	if err := game.Texts.Watch(); err != nil {
		log.Printf("WARNING: text file watch: %v", err)
	}
	defer game.Texts.Close()

	if gc.AuditDB != "" {
		audit, err := seclog.Open(gc.AuditDB)
		if err != nil {
			log.Fatalf("Error opening audit log %s: %v", gc.AuditDB, err)
		}
		defer audit.Close()
		game.Audit = audit
	}

	cfg := server.Config{
		Port:        gc.Port,
		IdleTimeout: time.Duration(gc.IdleTimeout) * time.Second,
		MaxRetries:  3,
		TLS:         gc.TLS,
		TLSPort:     gc.TLSPort,
		TLSCert:     gc.TLSCert,
		TLSKey:      gc.TLSKey,
	}
	srv := server.NewServer(game, cfg)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Printf("Shutting down")
		srv.Stop()
	}()

	log.Printf("Starting %s on port %d...", gc.MudName, gc.Port)
	if err := srv.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// seedWorld creates the minimal starting geography for a fresh database:
// the start room that finished characters enter.
func seedWorld(store *boltstore.Store, gc *server.GameConf) {
	room := &gamedb.Object{
		Ref:      gamedb.ObjRef(gc.StartRoom),
		Name:     "The Dreaming Square",
		Type:     gamedb.TypeRoom,
		Location: gamedb.Nothing,
		Home:     gamedb.Nothing,
		Contents: gamedb.Nothing,
		Next:     gamedb.Nothing,
	}
	store.DB().AddObject(room)
	if err := store.PutObject(room); err != nil {
		log.Printf("WARNING: seed world: %v", err)
	}
}
