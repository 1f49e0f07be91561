// Command voice-bridge links a Minecraft server's proximity voice plugin to
// a voice lobby session on the player's machine.
package main

import (
	"context"
	goerrs "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sessamekesh/proximity-voice-bridge/internal"
	"github.com/sessamekesh/proximity-voice-bridge/internal/config"
	"github.com/sessamekesh/proximity-voice-bridge/internal/logging"
	"github.com/sessamekesh/proximity-voice-bridge/pkg/bridge"
	gameserver "github.com/sessamekesh/proximity-voice-bridge/pkg/message/game_server"
	"github.com/sessamekesh/proximity-voice-bridge/pkg/transport"
	"github.com/sessamekesh/proximity-voice-bridge/pkg/voice"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type options struct {
	configPath  string
	address     string
	port        uint16
	logFile     string
	development bool
	readTimeout time.Duration
	userId      int64
	username    string
}

func main() {
	if err := newRootCmd(os.Stdin, os.Stdout).ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(stdin io.Reader, stdout io.Writer) *cobra.Command {
	opts := options{}

	rootCmd := &cobra.Command{
		Use:   "voice-bridge",
		Short: "Proximity voice bridge between a Minecraft server and a voice lobby",
		Long: `voice-bridge connects to the proximity voice plugin of a Minecraft server and
keeps the local volume of every lobby member in line with how far away their
player is in game.

Set DISCORD_APPLICATION_ID in the environment or a .env file before running.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				fmt.Fprintf(stdout, "Invalid configuration: %s\n", err)
				return err
			}
			return run(cmd.Context(), cfg, stdin, stdout)
		},
	}

	rootCmd.Flags().StringVar(&opts.configPath, "config", "", "YAML config file")
	rootCmd.Flags().StringVar(&opts.address, "address", "", "game server address, host or ws:// URL (prompted when empty)")
	rootCmd.Flags().Uint16Var(&opts.port, "port", 0, "game server port (prompted when zero)")
	rootCmd.Flags().StringVar(&opts.logFile, "log-file", "", "also write logs to this rotated file")
	rootCmd.Flags().BoolVar(&opts.development, "dev", false, "development logging")
	rootCmd.Flags().DurationVar(&opts.readTimeout, "read-timeout", 0, "game server read timeout, 0 blocks")
	rootCmd.Flags().Int64Var(&opts.userId, "user-id", 0, "local voice user id (random when zero)")
	rootCmd.Flags().StringVar(&opts.username, "username", "", "local voice username")

	return rootCmd
}

// loadConfig layers flags that were set explicitly over the file and
// environment config.
func loadConfig(cmd *cobra.Command, opts options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("address") {
		cfg.Address = opts.address
	}
	if flags.Changed("port") {
		cfg.Port = opts.port
	}
	if flags.Changed("log-file") {
		cfg.LogFile = opts.logFile
	}
	if flags.Changed("dev") {
		cfg.Development = opts.development
	}
	if flags.Changed("read-timeout") {
		cfg.ReadTimeout = opts.readTimeout
	}
	if flags.Changed("user-id") {
		cfg.User.Id = opts.userId
	}
	if flags.Changed("username") {
		cfg.User.Username = opts.username
	}

	if cfg.User.Id == 0 {
		cfg.User.Id = int64(uuid.New().ID())
	}

	return cfg, cfg.Validate()
}

func run(ctx context.Context, cfg *config.Config, stdin io.Reader, stdout io.Writer) error {
	logger, err := logging.NewLogger(logging.Params{
		Development: cfg.Development,
		LogFile:     cfg.LogFile,
	})
	if err != nil {
		return err
	}
	defer logger.Sync()

	shutdownCtx, shutdownRelease := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer shutdownRelease()

	//
	// Voice session side
	b := bridge.CreateBridge(bridge.BridgeConfig{})
	session := voice.CreateLocalSession(voice.LocalSessionParams{
		ApplicationId: cfg.ApplicationId,
		User: voice.User{
			Id:            cfg.User.Id,
			Username:      cfg.User.Username,
			Discriminator: cfg.User.Discriminator,
		},
		Logger: logger,
	})

	connected := make(chan voice.User, 1)
	driver, err := voice.CreateVoiceSessionDriver(voice.VoiceSessionDriverParams{
		Session:      session,
		Handler:      b.CreateVoiceSessionHandler("LocalSession"),
		MemberStore:  internal.CreateMemberStore(),
		TickInterval: cfg.TickInterval,
		OnConnected: func(user voice.User) {
			connected <- user
		},
		Logger: logger,
		Stdout: stdout,
	})
	if err != nil {
		logger.Error("Failed to create voice session driver", zap.Error(err))
		return err
	}

	driverCtx, stopDriver := context.WithCancel(shutdownCtx)
	driverDone := make(chan struct{})
	go func() {
		defer close(driverDone)
		if driverErr := driver.Start(driverCtx); driverErr != nil {
			logger.Error("Voice session driver stopped", zap.Error(driverErr))
		}
	}()
	defer func() {
		stopDriver()
		<-driverDone
	}()

	var user voice.User
	select {
	case <-shutdownCtx.Done():
		return nil
	case user = <-connected:
	}
	logger.Info("Voice session ready", zap.Int64("userId", user.Id), zap.String("username", user.Username))

	//
	// Game server side
	prompts := newPrompter(stdin, stdout)
	address, port := cfg.Address, cfg.Port
	if address == "" {
		if address, err = prompts.Address(); err != nil {
			return err
		}
	}
	if port == 0 {
		if port, err = prompts.Port(); err != nil {
			return err
		}
	}

	conn, err := transport.Dial(shutdownCtx, transport.DialParams{Address: address, Port: port})
	if err != nil {
		fmt.Fprintf(stdout, "Failed to connect: %s\n", err)
		return err
	}
	logger.Info("Connected to game server", zap.String("remoteAddr", conn.RemoteAddr()))

	link, err := transport.CreateServerLink(transport.ServerLinkParams{
		Conn:    conn,
		Handler: b.CreateServerLinkHandler("GameServer"),
		UserInfo: gameserver.DiscordUserInfo{
			Id:            user.Id,
			Username:      user.Username,
			Discriminator: user.Discriminator,
		},
		ReadTimeout: cfg.ReadTimeout,
		Console:     prompts.in,
		Stdout:      stdout,
		Logger:      logger,
	})
	if err != nil {
		conn.Shutdown()
		return err
	}

	if err := link.Start(shutdownCtx); err != nil && !goerrs.Is(err, context.Canceled) {
		logger.Error("Game server link failed", zap.Error(err))
		return err
	}
	return nil
}
