package main

import (
	"github.com/spf13/cobra"

	"httpd/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "httpd",
	Short: "httpd - a small HTTP/1.1 server",
	Long: `httpd serves a fixed set of routes over HTTP/1.1 with persistent
connections: a root probe, /echo/<text>, /user-agent and /files/<name>
for reading and writing files under a configured directory.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("httpd version {{.Version}}\n")
}
