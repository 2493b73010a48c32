package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mtprotogo/tgnet/configstore"
	"github.com/mtprotogo/tgnet/datacenter"
	"github.com/mtprotogo/tgnet/handshake"
	"github.com/mtprotogo/tgnet/manager"
	"github.com/mtprotogo/tgnet/mtcrypto"
	"github.com/mtprotogo/tgnet/transport"
)

var rootCmd = &cobra.Command{
	Use:   "tgnet-demo",
	Short: "Drives a single MTProto datacenter handshake to completion",
	RunE:  run,
}

var (
	flagDBPath string
	flagDCID   uint32
	flagDCIP   string
	flagDCPort int
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagDBPath, "store", "", "path to a Pebble config directory (empty uses an in-memory store)")
	flags.Uint32Var(&flagDCID, "dc", 2, "datacenter id to connect to")
	flags.StringVar(&flagDCIP, "dc-ip", "149.154.167.50", "datacenter ip to dial")
	flags.IntVar(&flagDCPort, "dc-port", 443, "datacenter port to dial")
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("execute root command")
	}
}

type logDelegate struct{}

func (logDelegate) OnUpdateConfig(serialized []byte) {
	log.Info().Int("bytes", len(serialized)).Msg("on_update_config")
}
func (logDelegate) OnConnectionStateChanged(dcID uint32, state manager.ConnectionState) {
	log.Info().Uint32("dc", dcID).Int("state", int(state)).Msg("on_connection_state_changed")
}
func (logDelegate) OnSessionCreated(dcID uint32) {
	log.Info().Uint32("dc", dcID).Msg("on_session_created")
}
func (logDelegate) OnLogout() { log.Info().Msg("on_logout") }
func (logDelegate) OnUnparsedUpdate(body []byte) {
	log.Warn().Int("bytes", len(body)).Msg("on_unparsed_update")
}
func (logDelegate) OnInternalPushReceived() { log.Info().Msg("on_internal_push_received") }
func (logDelegate) OnHandshakeComplete(dcID uint32, kind handshake.Kind, timeDiff int32) {
	log.Info().Uint32("dc", dcID).Int("kind", int(kind)).Int32("time_difference", timeDiff).Msg("on_handshake_complete")
}

type wallClock struct{ start time.Time }

func (c wallClock) NowMillisMonotonic() int64  { return time.Since(c.start).Milliseconds() }
func (c wallClock) NowSecondsWallclock() int32 { return int32(time.Now().Unix()) }
func (c wallClock) Schedule(delay time.Duration, cb func()) {
	time.AfterFunc(delay, cb)
}

func run(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var store configstore.Interface
	if flagDBPath != "" {
		s, err := configstore.Open(flagDBPath)
		if err != nil {
			return err
		}
		defer s.Close()
		store = s
	} else {
		store = configstore.NewMemStore()
	}

	mgr := manager.New(logDelegate{}, store, wallClock{start: time.Now()}, log.Logger)
	defer mgr.Stop()

	dc := datacenter.New(flagDCID, false)
	dc.AddAddress(datacenter.TcpAddress{IP: flagDCIP, Port: uint16(flagDCPort)})

	keyRing, err := mtcrypto.ProductionKeyRing()
	if err != nil {
		return err
	}

	h, err := dc.BeginHandshake(handshake.KindPerm, keyRing)
	if err != nil {
		return err
	}

	ip, port, secret, err := dc.NextAddressOrPort(0)
	if err != nil {
		return err
	}
	log.Info().Str("ip", ip).Int("port", port).Bool("has_secret", len(secret) > 0).Msg("dialing datacenter")

	sock, err := transport.TCPSocketHost{}.Dial(ctx, ip, port, false)
	if err != nil {
		return err
	}
	defer sock.Close()

	// The handshake exchange runs over plain (unobfuscated) framing: no
	// server secret is configured for the DC above, so there is no
	// transport.Mode to negotiate until after a key exists.
	first, err := h.Start()
	if err != nil {
		return err
	}
	if _, err := sock.Write(first); err != nil {
		return err
	}

	buf := make([]byte, 65536)
	for {
		n, err := sock.Read(buf)
		if err != nil {
			return err
		}
		out, result, err := h.HandleIncoming(buf[:n])
		if err != nil {
			return err
		}
		if out != nil {
			if _, err := sock.Write(out); err != nil {
				return err
			}
		}
		if result != nil {
			dc.InstallResult(handshake.KindPerm, result, false)
			dc.FinishHandshake(handshake.KindPerm)
			log.Info().Uint64("auth_key_id", result.AuthKeyID).Msg("handshake complete")
			return nil
		}
	}
}
