// Command devolve-worker is a reference worker: it connects to a boss,
// performs the name/pid handshake, and for every job it is sent, runs an
// arbitrary shell command with the job payload on stdin and the command's
// stdout as the result.
package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/devolvehq/devolve/pkg/wire"
)

func main() {
	var (
		bossAddr string
		name     string
		command  string
	)
	flag.StringVar(&bossAddr, "boss", "127.0.0.1:11111", "boss address to connect to")
	flag.StringVar(&name, "name", "", "worker name advertised to the boss (defaults to hostname-pid)")
	flag.StringVar(&command, "command", "", "shell command run once per job; the job payload is piped to its stdin")
	flag.Parse()

	if command == "" {
		log.Fatal("devolve-worker: -command is required")
	}
	if name == "" {
		host, _ := os.Hostname()
		name = fmt.Sprintf("%s-%d", host, os.Getpid())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		cancel()
	}()

	if err := run(ctx, bossAddr, name, command); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("devolve-worker: %v", err)
	}
}

func run(ctx context.Context, bossAddr, name, command string) error {
	conn, err := net.Dial("tcp", bossAddr)
	if err != nil {
		return fmt.Errorf("dialing boss: %w", err)
	}
	defer conn.Close()

	if _, err := fmt.Fprintf(conn, "%s\n%d\n", name, os.Getpid()); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}

	r := bufio.NewReader(conn)
	log.Printf("devolve-worker %q connected to %s", name, bossAddr)

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		payload, err := wire.Recv(conn, r)
		if err != nil {
			if errors.Is(err, wire.ErrQuit) {
				log.Printf("devolve-worker %q received quit", name)
				return nil
			}
			return fmt.Errorf("recv: %w", err)
		}

		result := runCommand(command, payload)

		if err := wire.Send(conn, r, result); err != nil {
			return fmt.Errorf("send: %w", err)
		}
	}
}

func runCommand(command string, payload []byte) []byte {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Stdin = bytes.NewReader(payload)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		log.Printf("devolve-worker: command failed: %v", err)
		return nil
	}
	return stdout.Bytes()
}
