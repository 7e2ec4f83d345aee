package main

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/roomcast/internal/client"
	"github.com/dkeye/roomcast/internal/client/media"
	"github.com/dkeye/roomcast/internal/config"
	"github.com/dkeye/roomcast/internal/domain"
	"github.com/dkeye/roomcast/internal/protocol"
)

var (
	email    string
	password string
	stream   string
)

// connectCmd keeps a session open, logs what arrives and sends what is typed.
var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect to the server and exchange frames",
	Long: `Connect to the server, reconnecting forever, and log every inbound frame.
Each stdin line of the form HEADER {json} is sent as one frame. The client
exits on QUIT or at the end of input.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		tlsCfg, err := clientTLS(cfg.Client)
		if err != nil {
			return err
		}
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		return runClient(ctx, cfg, client.TLSDialer(cfg.Client.ServerAddr, tlsCfg, cfg.MaxFrameSize), os.Stdin)
	},
}

func init() {
	rootCmd.AddCommand(connectCmd)
	connectCmd.Flags().StringVar(&email, "email", "", "Log in with this email after connecting")
	connectCmd.Flags().StringVar(&password, "password", "", "Password for --email")
	connectCmd.Flags().StringVar(&stream, "stream", "", "Join this call (R<room> or P<friend>) with synthetic audio and video")
}

func clientTLS(c config.ClientConfig) (*tls.Config, error) {
	cfg := &tls.Config{ServerName: c.ServerName, InsecureSkipVerify: c.Insecure, MinVersion: tls.VersionTLS12}
	if c.CAFile != "" {
		pem, err := os.ReadFile(c.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates in %s", c.CAFile)
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}

// logged lists the server frames printed as they arrive.
var logged = []string{
	protocol.Login, protocol.Register, protocol.Logout, protocol.FetchUser,
	protocol.FetchRooms, protocol.FetchMembers, protocol.RecentChats, protocol.FetchFriends,
	protocol.AddFriend, protocol.RemoveFriend, protocol.JoinRoom, protocol.LeaveRoom,
	protocol.MemberJoin, protocol.MemberLeave, protocol.Message, protocol.DownloadFile,
	protocol.StreamJoined,
}

func runClient(ctx context.Context, cfg *config.Config, dial client.Dialer, in io.Reader) error {
	bus := client.NewBus()
	sup := client.NewSupervisor(dial, bus, cfg.Client.ReconnectInterval)
	state := client.NewState(sup)
	state.Attach(bus)
	defer state.Detach()

	for _, h := range logged {
		bus.Subscribe(h, func(f protocol.Frame) {
			log.Info().Str("header", f.Header).RawJSON("body", nonEmpty(f.Body)).Msg("recv")
		})
	}
	bus.Subscribe(protocol.Error, func(f protocol.Frame) {
		var m protocol.MessageBody
		_ = f.Decode(&m)
		log.Warn().Str("message", m.Message).Msg("server error")
	})
	bus.Subscribe(protocol.Info, func(f protocol.Frame) {
		var m protocol.MessageBody
		_ = f.Decode(&m)
		log.Info().Str("message", m.Message).Msg("server info")
	})
	if email != "" {
		bus.Subscribe(protocol.Reconnect, func(protocol.Frame) {
			if _, ok := state.User(); ok {
				return
			}
			if err := state.Login(email, password); err != nil {
				log.Warn().Err(err).Msg("login")
			}
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sup.Run(gctx) })
	g.Go(func() error { return readCommands(gctx, in, sup) })
	if stream != "" {
		if _, _, err := domain.StreamCode(stream).Parse(); err != nil {
			return fmt.Errorf("--stream %q: %w", stream, err)
		}
		startCall(gctx, g, cfg.Client, bus, sup, domain.StreamCode(stream))
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func nonEmpty(raw []byte) []byte {
	if len(raw) == 0 {
		return []byte("null")
	}
	return raw
}

// readCommands sends "HEADER {json}" lines until EOF. QUIT ends the session.
func readCommands(ctx context.Context, in io.Reader, out client.Sender) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 64<<10), protocol.DefaultMaxFrameSize)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok = <-lines:
		}
		if !ok {
			select {
			case err := <-scanErr:
				if err != nil {
					return err
				}
			default:
			}
			return io.EOF
		}
		header, body, err := parseLine(line)
		if err != nil {
			log.Warn().Err(err).Msg("ignored input")
			continue
		}
		if header == "" {
			continue
		}
		if err := out.Send(header, body); err != nil {
			log.Warn().Err(err).Str("header", header).Msg("not sent")
		}
		if header == protocol.Quit {
			return io.EOF
		}
	}
}

func parseLine(line string) (string, json.RawMessage, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", nil, nil
	}
	header, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	if rest == "" {
		rest = "{}"
	}
	if !json.Valid([]byte(rest)) {
		return "", nil, fmt.Errorf("body of %s is not JSON", header)
	}
	return strings.ToUpper(header), json.RawMessage(rest), nil
}

// startCall joins the call after every successful login and runs synthetic
// devices while in it.
func startCall(ctx context.Context, g *errgroup.Group, cfg config.ClientConfig, bus *client.Bus, out client.Sender, code domain.StreamCode) {
	bridge := media.NewAudioBridge(cfg.AudioFrameBytes)
	pump := media.NewVideoPump(&testPattern{}, logRenderer{}, out, cfg.VideoInterval)

	bus.Subscribe(protocol.Login, func(f protocol.Frame) {
		var reply struct {
			Error bool `json:"error"`
		}
		if f.Decode(&reply) == nil && !reply.Error {
			_ = out.Send(protocol.JoinStream, map[string]any{"code": code})
		}
	})
	var once sync.Once
	bus.Subscribe(protocol.StreamJoined, func(protocol.Frame) {
		bridge.Start()
		pump.Start()
		once.Do(func() {
			g.Go(func() error { return bridge.TransmitLoop(ctx, out) })
		})
	})
	bus.Subscribe(protocol.VideoStream, func(f protocol.Frame) {
		if err := pump.OnVideoFrame(f.Body); err != nil {
			log.Debug().Err(err).Msg("video frame")
		}
	})
	bus.Subscribe(protocol.AudioStream, func(f protocol.Frame) {
		if err := bridge.OnAudioFrame(f.Body); err != nil {
			log.Debug().Err(err).Msg("audio frame")
		}
	})

	g.Go(func() error { return pump.Run(ctx) })
	g.Go(func() error { return simulateAudioDevice(ctx, bridge) })
}
