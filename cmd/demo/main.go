// Command demo wires a peer.Client and a peer.Server together over stdio
// for manual smoke-testing. Run with no flags to spawn a server
// subprocess and drive it through an initialize/hover/shutdown sequence;
// run with -server to act as the server half (what the parent process
// execs into its own binary).
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/lspwire/lspwire/peer"
	"github.com/lspwire/lspwire/protocol"
)

func main() {
	serverMode := flag.Bool("server", false, "run as the server half (normally exec'd by the client half)")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	if *serverMode {
		runServer(logger)
		return
	}
	runClient(logger)
}

func runServer(logger *zap.Logger) {
	srv := peer.NewServer(
		peer.WithLogger(logger.Named("server")),
		peer.WithOnExit(func(exitCode int) { os.Exit(exitCode) }),
	)
	srv.SetServerInfo(&protocol.ServerInfo{Name: "lspwire-demo", Version: "0.1.0"})
	srv.SetCapabilities(func(*peer.Server) protocol.ServerCapabilities {
		return protocol.ServerCapabilities{
			HoverProvider: &protocol.HoverOptions{},
		}
	})

	if err := srv.Handle(protocol.MethodTextDocumentHover, func(ctx context.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
		return &protocol.Hover{
			Contents: protocol.MarkupContent{
				Kind:  protocol.Markdown,
				Value: fmt.Sprintf("hovering at line %d, character %d", params.Position.Line, params.Position.Character),
			},
		}, nil
	}); err != nil {
		log.Fatalf("demo: register hover handler: %v", err)
	}

	ctx := context.Background()
	if err := srv.Run(ctx); err != nil {
		logger.Warn("server loop exited", zap.Error(err))
	}
}

func runClient(logger *zap.Logger) {
	self, err := os.Executable()
	if err != nil {
		log.Fatalf("demo: resolve own executable: %v", err)
	}

	cmd := exec.Command(self, "-server")
	stdin, err := cmd.StdinPipe()
	if err != nil {
		log.Fatalf("demo: stdin pipe: %v", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		log.Fatalf("demo: stdout pipe: %v", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		log.Fatalf("demo: start server subprocess: %v", err)
	}

	cli := peer.NewClient(
		peer.WithStream(rwPair{Reader: stdout, Writer: stdin}),
		peer.WithLogger(logger.Named("client")),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := cli.Run(ctx); err != nil {
			logger.Warn("client loop exited", zap.Error(err))
		}
	}()

	initCtx, initCancel := context.WithTimeout(ctx, 5*time.Second)
	defer initCancel()
	result, err := cli.Initialize(initCtx, &protocol.InitializeParams{
		ClientInfo: &protocol.ClientInfo{Name: "lspwire-demo-client", Version: "0.1.0"},
	})
	if err != nil {
		log.Fatalf("demo: initialize: %v", err)
	}
	logger.Info("initialized", zap.String("server", result.ServerInfo.Name))

	var hover protocol.Hover
	hoverCtx, hoverCancel := context.WithTimeout(ctx, 5*time.Second)
	defer hoverCancel()
	err = cli.Call(hoverCtx, protocol.MethodTextDocumentHover, &protocol.HoverParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: "file:///demo.txt"},
			Position:     protocol.Position{Line: 0, Character: 0},
		},
	}, &hover)
	if err != nil {
		log.Fatalf("demo: hover call: %v", err)
	}
	logger.Info("hover result", zap.Any("contents", hover.Contents))

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 5*time.Second)
	defer shutdownCancel()
	if err := cli.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
	_ = cmd.Wait()
}

// rwPair adapts a subprocess's stdout/stdin pipes to the io.ReadWriter
// peer.WithStream expects.
type rwPair struct {
	io.Reader
	io.Writer
}
