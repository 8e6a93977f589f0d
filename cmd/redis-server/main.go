package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/mickamy/redis-lite/conn"
	"github.com/mickamy/redis-lite/redisserver"
	"github.com/mickamy/redis-lite/replication"
)

func main() {
	fs := flag.NewFlagSet("redis-server", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "redis-server — single-node in-memory key-value server\n\nUsage:\n  redis-server [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}

	port := fs.Int("port", 6379, "listen port")
	replicaof := fs.String("replicaof", "", `upstream primary as "<host> <port>" (enables replica mode)`)
	dir := fs.String("dir", "", "directory to look for a snapshot file in")
	dbfilename := fs.String("dbfilename", "", "snapshot file name")

	_ = fs.Parse(os.Args[1:])

	if err := run(*port, *replicaof, *dir, *dbfilename); err != nil {
		log.Fatal(err)
	}
}

func run(port int, replicaof, dir, dbfilename string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	masterAddress := ""
	if replicaof != "" {
		addr, err := parseReplicaof(replicaof)
		if err != nil {
			return fmt.Errorf("redis-server: %w", err)
		}
		masterAddress = addr
	}

	conn.OurPort = strconv.Itoa(port)

	address := fmt.Sprintf("127.0.0.1:%d", port)
	replid := replication.NewReplID()
	s := redisserver.New(address, masterAddress, dir, dbfilename, replid, conn.Serve)

	if masterAddress != "" {
		log.Printf("replica of %s, listening on %s", masterAddress, address)
	} else {
		log.Printf("listening on %s", address)
	}

	if err := s.Start(ctx); err != nil {
		return fmt.Errorf("redis-server: %w", err)
	}
	return nil
}

// parseReplicaof splits "<host> <port>" into a dialable "host:port" address.
func parseReplicaof(replicaof string) (string, error) {
	fields := strings.Fields(replicaof)
	if len(fields) != 2 {
		return "", fmt.Errorf("invalid --replicaof %q, want \"<host> <port>\"", replicaof)
	}
	return fields[0] + ":" + fields[1], nil
}
