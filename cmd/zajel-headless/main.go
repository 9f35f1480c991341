// zajel-headless runs the headless end-to-end-encrypted peer-to-peer
// messaging daemon: a single process owning one cryptographic identity,
// its signaling connection to a coordinator, and the local IPC socket
// clients use to drive it.
//
// Usage:
//
//	zajel-headless [options]
//
// Options:
//
//	-name                IPC socket name (default: "default")
//	-runtime-dir         Directory the IPC socket is created under
//	-peer-store          Path to the trusted-peer table file
//	-media-dir           Directory outbound send_file paths are confined to
//	-receive-dir         Directory inbound files are saved under
//	-coordinator         Coordinator WebSocket URL
//	-auto-accept-groups  Auto-accept group invitations without approval
//	-ice-servers         Comma-separated STUN/TURN server URLs
//
// Example:
//
//	zajel-headless -coordinator wss://coordinator.example/ws -media-dir ~/zajel/media -receive-dir ~/zajel/received -peer-store ~/.zajel/peers.json
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/zajel/headless/internal/config"
	"github.com/zajel/headless/pkg/supervisor"
)

func main() {
	coreCfg, err := config.ParseFlags()
	if err != nil {
		log.Fatalf("zajel-headless: %v", err)
	}

	sup, err := supervisor.New(supervisor.Config{
		Core: coreCfg,
		OnStateChanged: func(state supervisor.State) {
			log.Printf("state changed: %s", state)
		},
	})
	if err != nil {
		log.Fatalf("zajel-headless: create supervisor: %v", err)
	}

	if err := run(sup); err != nil {
		log.Fatalf("zajel-headless: %v", err)
	}
}

// run starts sup and blocks until SIGINT/SIGTERM, then stops it.
func run(sup *supervisor.Supervisor) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sup.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	printStartupInfo(sup)

	<-ctx.Done()

	log.Println("shutting down...")
	if err := sup.Stop(); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	return nil
}

func printStartupInfo(sup *supervisor.Supervisor) {
	fmt.Fprintln(os.Stderr, "========================================")
	fmt.Fprintln(os.Stderr, "          zajel headless daemon")
	fmt.Fprintln(os.Stderr, "========================================")
	fmt.Fprintf(os.Stderr, "Peer ID:       %s\n", sup.MyPeerID())
	fmt.Fprintf(os.Stderr, "Pairing code:  %s\n", sup.PairingCode())
	fmt.Fprintln(os.Stderr, "========================================")
}
