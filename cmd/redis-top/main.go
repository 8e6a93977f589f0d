package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
)

func main() {
	fs := flag.NewFlagSet("redis-top", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "redis-top — read-only dashboard for redis-server\n\nUsage:\n  redis-top [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}
	addr := fs.String("addr", "127.0.0.1:6379", "server address to dial")
	_ = fs.Parse(os.Args[1:])

	p := tea.NewProgram(newModel(*addr))
	if _, err := p.Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
