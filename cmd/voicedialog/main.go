// Command voicedialog dials the speech-dialog service, runs one realtime
// voice session against it, and exits when the session ends or the user
// interrupts it.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/room4-2/voicedialog/audio"
	"github.com/room4-2/voicedialog/config"
	"github.com/room4-2/voicedialog/dialog"
	"github.com/room4-2/voicedialog/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := audio.Initialize(); err != nil {
		log.Fatalf("failed to initialize audio: %v", err)
	}
	defer func() {
		if err := audio.Terminate(); err != nil {
			log.Printf("⚠️ audio termination error: %v", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sessionID := uuid.New().String()

	conn, logID, err := dial(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}

	tr := transport.New(conn)
	registry := dialog.NewRegistry(cfg.RedisURL, cfg.RedisPassword, sessionID, cfg.RegistryTTL)
	defer registry.Close()

	dialogCfg := dialog.DefaultConfig()
	dialogCfg.PCMDumpPath = cfg.PCMDumpPath

	ctrl := dialog.NewController(tr, dialogCfg, registry, time.Now().UnixNano())
	ctrl.SetSessionID(sessionID)
	ctrl.SetLogID(logID)

	log.Printf("✅ [%s] connected, starting session", sessionID[:8])

	if err := ctrl.Run(ctx); err != nil {
		log.Printf("❌ [%s] session ended with error: %v", sessionID[:8], err)
		os.Exit(1)
	}

	log.Printf("✅ [%s] session ended cleanly", sessionID[:8])
}

// dial opens the WebSocket connection carrying the X-Api-* credential
// headers the service expects, and returns the X-Tt-Logid response header
// for later shutdown-time logging. A fresh connect id is generated per dial
// attempt and sent as X-Api-Connect-Id, distinct from the session id and
// from the connect id the server later echoes back in ConnectionStarted.
func dial(ctx context.Context, cfg *config.Config) (*websocket.Conn, string, error) {
	dialer := websocket.Dialer{HandshakeTimeout: cfg.DialTimeout}

	header := make(http.Header)
	header.Set("X-Api-App-Id", cfg.AppID)
	header.Set("X-Api-App-Key", cfg.AppKey)
	header.Set("X-Api-Access-Key", cfg.AccessKey)
	header.Set("X-Api-Connect-Id", uuid.New().String())
	if cfg.ResourceID != "" {
		header.Set("X-Api-Resource-Id", cfg.ResourceID)
	}

	conn, resp, err := dialer.DialContext(ctx, cfg.Endpoint, header)
	if err != nil {
		return nil, "", err
	}

	logID := ""
	if resp != nil {
		logID = resp.Header.Get("X-Tt-Logid")
	}
	return conn, logID, nil
}
