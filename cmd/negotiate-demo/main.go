// SPDX-License-Identifier: Apache-2.0

// negotiate-demo runs one side of a shared-key authentication exchange
// over a length-prefixed TCP framing and exchanges a pair of protected
// messages, which makes it handy for eyeballing the token flow:
//
//	negotiate-demo -config server.toml
//	negotiate-demo -config client.toml
package main

import (
	"flag"
	"fmt"
	"net"
	"os"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"

	negotiate "github.com/golang-auth/go-negotiate"
	"github.com/golang-auth/go-negotiate/sharedkey"
)

type config struct {
	Role       string `toml:"role"`    // "client" or "server"
	Listen     string `toml:"listen"`  // server: address to listen on
	Connect    string `toml:"connect"` // client: address to dial
	Keytab     string `toml:"keytab"`  // path to the shared-key keytab
	Principal  string `toml:"principal"`
	Target     string `toml:"target"`     // client: service name to authenticate to
	Protection string `toml:"protection"` // "none", "sign" or "seal"
	Debug      bool   `toml:"debug"`
}

func loadConfig(path string) (*config, error) {
	var cfg config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func protectionLevel(name string) (negotiate.ProtectionLevel, error) {
	switch name {
	case "", "none":
		return negotiate.ProtectionLevelNone, nil
	case "sign":
		return negotiate.ProtectionLevelSign, nil
	case "seal":
		return negotiate.ProtectionLevelEncryptAndSign, nil
	}
	return 0, fmt.Errorf("unknown protection level %q", name)
}

func main() {
	configPath := flag.String("config", "", "path to TOML configuration")
	flag.Parse()

	if *configPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.WithError(err).Fatal("cannot load configuration")
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	keytab, defaultPrincipal, err := sharedkey.LoadKeytab(cfg.Keytab)
	if err != nil {
		log.WithError(err).Fatal("cannot load keytab")
	}
	engine := sharedkey.New(keytab, sharedkey.WithDefaultPrincipal(defaultPrincipal))

	level, err := protectionLevel(cfg.Protection)
	if err != nil {
		log.WithError(err).Fatal("bad configuration")
	}

	switch cfg.Role {
	case "client":
		err = runClient(cfg, engine, level)
	case "server":
		err = runServer(cfg, engine, level)
	default:
		err = fmt.Errorf("role must be client or server, not %q", cfg.Role)
	}
	if err != nil {
		log.WithError(err).Fatal("demo failed")
	}
}

func sessionOptions(cfg *config, engine negotiate.Engine, level negotiate.ProtectionLevel) []negotiate.Option {
	opts := []negotiate.Option{
		negotiate.WithEngine(engine),
		negotiate.WithRequiredProtectionLevel(level),
	}
	if cfg.Principal != "" {
		opts = append(opts, negotiate.WithCredential(negotiate.Credential{Username: cfg.Principal}))
	}
	return opts
}

func runClient(cfg *config, engine negotiate.Engine, level negotiate.ProtectionLevel) error {
	auth, err := negotiate.NewClientAuthenticator(sharedkey.EngineName, cfg.Target,
		sessionOptions(cfg, engine, level)...)
	if err != nil {
		return err
	}
	defer auth.Close() //nolint:errcheck

	conn, err := net.Dial("tcp", cfg.Connect)
	if err != nil {
		return err
	}
	defer conn.Close() //nolint:errcheck

	logger := log.WithFields(log.Fields{"role": "client", "peer": cfg.Connect})
	logger.Info("connected")

	if err := exchange(conn, auth, nil, logger); err != nil {
		return err
	}
	logger.WithFields(log.Fields{
		"peer_name": auth.PeerName(),
		"level":     auth.NegotiatedLevel().String(),
	}).Info("authenticated")

	if auth.NegotiatedLevel() == negotiate.ProtectionLevelNone {
		return nil
	}

	protected, code := auth.Wrap([]byte("hello from " + cfg.Principal))
	if code.IsError() {
		return code.Err()
	}
	if err := writeFrame(conn, protected); err != nil {
		return err
	}

	reply, err := readFrame(conn)
	if err != nil {
		return err
	}
	plain, code := auth.Unwrap(reply)
	if code.IsError() {
		return code.Err()
	}
	logger.WithField("message", string(plain)).Info("protected reply received")
	return nil
}

func runServer(cfg *config, engine negotiate.Engine, level negotiate.ProtectionLevel) error {
	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return err
	}
	defer ln.Close() //nolint:errcheck
	log.WithField("listen", cfg.Listen).Info("waiting for a client")

	conn, err := ln.Accept()
	if err != nil {
		return err
	}
	defer conn.Close() //nolint:errcheck

	auth, err := negotiate.NewServerAuthenticator(sharedkey.EngineName,
		sessionOptions(cfg, engine, level)...)
	if err != nil {
		return err
	}
	defer auth.Close() //nolint:errcheck

	logger := log.WithFields(log.Fields{"role": "server", "peer": conn.RemoteAddr()})

	first, err := readFrame(conn)
	if err != nil {
		return err
	}
	if err := exchange(conn, auth, first, logger); err != nil {
		return err
	}
	logger.WithFields(log.Fields{
		"peer_name": auth.PeerName(),
		"level":     auth.NegotiatedLevel().String(),
	}).Info("client authenticated")

	if auth.NegotiatedLevel() == negotiate.ProtectionLevelNone {
		return nil
	}

	protected, err := readFrame(conn)
	if err != nil {
		return err
	}
	plain, code := auth.Unwrap(protected)
	if code.IsError() {
		return code.Err()
	}
	logger.WithField("message", string(plain)).Info("protected message received")

	reply, code := auth.Wrap([]byte("hello " + auth.PeerName()))
	if code.IsError() {
		return code.Err()
	}
	return writeFrame(conn, reply)
}

// exchange drives the session over the framed connection until it
// terminates. incoming carries the token that arrived before the first
// local step (the client's opener, on the server side).
func exchange(conn net.Conn, auth *negotiate.Authenticator, incoming []byte, logger *log.Entry) error {
	for {
		token, code := auth.Step(incoming)
		logger.WithFields(log.Fields{
			"status":    code.String(),
			"token_len": len(token),
		}).Debug("exchange step")

		if code.IsError() {
			return fmt.Errorf("authentication failed: %w", code.Err())
		}
		if len(token) > 0 {
			if err := writeFrame(conn, token); err != nil {
				return err
			}
		}
		if code == negotiate.StatusCompleted {
			return nil
		}

		var err error
		if incoming, err = readFrame(conn); err != nil {
			return err
		}
	}
}
