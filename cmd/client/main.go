package main

import (
	"bufio"
	"chat-relay/domain"
	"chat-relay/protocol"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const sendFileUsage = "/sendfile <user|group> <target> <path>"

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

// run connects to the relay, prints every line it sends and forwards stdin.
// /sendfile is handled locally: the file is framed as a voice note.
func run() (int, error) {
	config, err := LoadConfig()
	if err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", config.ServerAddress)
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to server at %s: %w", config.ServerAddress, err)
	}
	defer func() { _ = conn.Close() }()
	context.AfterFunc(ctx, func() { _ = conn.Close() })

	received := make(chan error, 1)
	go func() { received <- receive(conn, os.Stdout, config.Colours) }()
	go forward(log, os.Stdin, conn)

	err = <-received
	if ctx.Err() != nil {
		return exitOK, nil
	}
	if err != nil {
		return exitRuntime, fmt.Errorf("connection error: %w", err)
	}
	return exitOK, nil
}

// receive prints server lines until the connection closes.
func receive(r io.Reader, w io.Writer, colours bool) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if _, err := fmt.Fprintln(w, render(scanner.Text(), colours)); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func render(line string, colours bool) string {
	if !colours {
		return line
	}
	switch {
	case strings.HasPrefix(line, "ERROR"), strings.HasPrefix(line, "Usage:"), strings.HasPrefix(line, "Unknown command"):
		return color.New(color.FgRed).Render(line)
	case strings.HasPrefix(line, "[SYSTEM]"):
		return color.New(color.FgYellow).Render(line)
	case strings.HasPrefix(line, "[VOICE NOTE]"):
		return color.New(color.FgCyan).Render(line)
	default:
		return line
	}
}

// forward copies stdin lines to the relay. A failing /sendfile is reported
// locally and nothing is sent.
func forward(log *slog.Logger, r io.Reader, conn io.Writer) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if isSendFile(line) {
			if err := sendFile(conn, line); err != nil {
				fmt.Fprintln(os.Stderr, render("ERROR: "+err.Error(), true))
			}
			continue
		}
		if _, err := fmt.Fprintf(conn, "%s\n", line); err != nil {
			log.Debug("Write failed", "error", err)
			return
		}
	}
}

func isSendFile(line string) bool {
	fields := strings.Fields(line)
	return len(fields) > 0 && strings.EqualFold(fields[0], "/sendfile")
}

func sendFile(conn io.Writer, line string) error {
	fields := strings.Fields(line)
	if len(fields) != 4 {
		return fmt.Errorf("usage: %s", sendFileUsage)
	}
	kind, target, path := strings.ToLower(fields[1]), fields[2], fields[3]
	if kind != string(domain.TargetUser) && kind != string(domain.TargetGroup) {
		return fmt.Errorf("usage: %s", sendFileUsage)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return protocol.WriteVoiceNote(conn, kind, target, filepath.Base(path), data)
}
