// Command agent is a headless SYNCOUT collaborator: it joins a session,
// mirrors the buffer to a local bbolt checkpoint, and reconnects with
// backoff when the server goes away. Useful for keeping a live local copy
// of a session and for smoke-testing a deployment.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"
	"github.com/grandcat/zeroconf"
	flag "github.com/spf13/pflag"
	"github.com/tidwall/gjson"

	"github.com/bannushaxddd/SYNCOUT/server/wire"
)

// mdnsService matches the service type the server registers.
const mdnsService = "_syncout._tcp"

func main() {
	var (
		server  = flag.String("server", "", "server host:port (empty: discover via mDNS)")
		session = flag.String("session", "", "session code to join (required)")
		name    = flag.String("name", "agent", "participant name")
		dbPath  = flag.String("db", "syncout-agent.db", "path to the checkpoint database")
		say     = flag.String("say", "", "chat line to send after joining")
	)
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if *session == "" {
		slog.Error("missing -session")
		os.Exit(1)
	}

	if err := run(*server, *session, *name, *dbPath, *say); err != nil {
		slog.Error("agent exited", "error", err)
		os.Exit(1)
	}
}

func run(server, session, name, dbPath, say string) error {
	ctx := context.Background()

	if server == "" {
		var err error
		server, err = discover(ctx)
		if err != nil {
			return fmt.Errorf("discover server: %w", err)
		}
		slog.Info("discovered server", "addr", server)
	}

	replica, err := OpenReplica(dbPath, session)
	if err != nil {
		return fmt.Errorf("open replica: %w", err)
	}
	defer replica.Close()
	if code, rev := replica.State(); rev > 0 {
		slog.Info("loaded checkpoint", "revision", rev, "bytes", len(code))
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0 // keep reconnecting forever
	return backoff.Retry(func() error {
		err := mirror(ctx, server, session, name, say, replica, bo)
		if err != nil {
			slog.Warn("connection lost, retrying", "error", err)
		}
		return err
	}, bo)
}

// discover browses mDNS for a server and returns the first host:port found.
func discover(ctx context.Context) (string, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return "", err
	}
	entries := make(chan *zeroconf.ServiceEntry)
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := resolver.Browse(ctx, mdnsService, "local.", entries); err != nil {
		return "", err
	}
	for entry := range entries {
		if len(entry.AddrIPv4) > 0 {
			return fmt.Sprintf("%s:%d", entry.AddrIPv4[0], entry.Port), nil
		}
	}
	return "", errors.New("no server found")
}

// mirror joins the session and applies traffic to the replica until the
// connection fails. A revision gap also fails the connection; the retry
// loop then resyncs from the next init snapshot.
func mirror(ctx context.Context, server, session, name, say string, replica *Replica, bo *backoff.ExponentialBackOff) error {
	u := url.URL{Scheme: "ws", Host: server, Path: "/ws/" + session}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.WriteJSON(wire.Join{Type: wire.TypeJoin, Name: name}); err != nil {
		return err
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		switch gjson.GetBytes(raw, "type").String() {
		case wire.TypeInit:
			var m wire.Init
			if err := json.Unmarshal(raw, &m); err != nil {
				return err
			}
			if err := replica.Reset(m.Code, m.Revision); err != nil {
				return err
			}
			slog.Info("joined session", "session", session, "user", m.UserID, "revision", m.Revision)
			bo.Reset()
			if say != "" {
				if err := conn.WriteJSON(wire.Chat{Type: wire.TypeChat, Message: say}); err != nil {
					return err
				}
			}
		case wire.TypeOperation:
			var m wire.OperationOut
			if err := json.Unmarshal(raw, &m); err != nil {
				return err
			}
			if err := replica.ApplyOperation(m); err != nil {
				return fmt.Errorf("apply revision %d: %w", m.Revision, err)
			}
		case wire.TypeChat:
			slog.Info("chat", "from", gjson.GetBytes(raw, "user_name").String(),
				"message", gjson.GetBytes(raw, "message").String())
		case wire.TypeUserJoined, wire.TypeUserLeft:
			slog.Debug("presence", "frame", string(raw))
		case wire.TypeError:
			return fmt.Errorf("server error: %s", gjson.GetBytes(raw, "reason").String())
		}
	}
}
