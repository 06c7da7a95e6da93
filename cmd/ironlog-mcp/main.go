package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	ironmcp "github.com/claude/ironlog/internal/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// ironlog-mcp serves the MCP tools over stdio, reading data from a remote
// IronLog server's REST API. The server identifies the caller by tailnet
// identity, so the user is whoever runs this binary.
func main() {
	serverURL := flag.String("server", "", "IronLog server URL (e.g. http://ironlog.tail1234.ts.net)")
	flag.Parse()

	// stdout carries the MCP protocol; logs go to stderr.
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *serverURL == "" {
		fmt.Fprintf(os.Stderr, "Usage: ironlog-mcp -server <URL>\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	s := ironmcp.New(ironmcp.NewHTTPClient(*serverURL), Version, log)
	log.Info("serving MCP over stdio", "server", *serverURL, "version", Version)
	if err := server.ServeStdio(s); err != nil {
		log.Error("stdio server stopped", "error", err)
		os.Exit(1)
	}
}
