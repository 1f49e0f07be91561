package transport

import (
	"bufio"
	"bytes"
	"context"
	goerrs "errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sessamekesh/proximity-voice-bridge/pkg/bridge"
	"github.com/sessamekesh/proximity-voice-bridge/pkg/errors"
	gameserver "github.com/sessamekesh/proximity-voice-bridge/pkg/message/game_server"
	"go.uber.org/zap"
)

type ServerLinkParams struct {
	Conn    LineConn
	Handler *bridge.ServerLinkHandler

	// Sent back to the game server whenever it announces its config.
	UserInfo gameserver.DiscordUserInfo

	// Zero blocks on reads until the server sends something.
	ReadTimeout time.Duration

	Console io.Reader
	Stdout  io.Writer
	Logger  *zap.Logger
}

type serverLink struct {
	params ServerLinkParams

	conn       LineConn
	handler    *bridge.ServerLinkHandler
	serializer gameserver.GameServerMessageSerializer

	log     *zap.Logger
	console io.Reader
	stdout  io.Writer

	endRequests    chan struct{}
	consoleWatcher sync.Once
}

type readResult struct {
	line []byte
	err  error
}

func CreateServerLink(params ServerLinkParams) (*serverLink, error) {
	if params.Conn == nil {
		return nil, goerrs.New("server link needs a connection")
	}
	if params.Handler == nil {
		return nil, goerrs.New("server link needs a bridge handler")
	}

	logger := params.Logger
	if logger == nil {
		logger = zap.Must(zap.NewDevelopment())
	}
	console := params.Console
	if console == nil {
		console = os.Stdin
	}
	stdout := params.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	return &serverLink{
		params:     params,
		conn:       params.Conn,
		handler:    params.Handler,
		serializer: gameserver.GameServerMessageSerializer{},
		log: logger.With(
			zap.String("handler", "ServerLink"),
			zap.String("linkId", uuid.NewString()),
			zap.String("remoteAddr", params.Conn.RemoteAddr())),
		console:     console,
		stdout:      stdout,
		endRequests: make(chan struct{}, 1),
	}, nil
}

// isConnectionClosed reports errors that mean the game server went away.
// Those end the session cleanly rather than as a failure.
func isConnectionClosed(err error) bool {
	return goerrs.Is(err, io.EOF) ||
		goerrs.Is(err, io.ErrUnexpectedEOF) ||
		goerrs.Is(err, net.ErrClosed) ||
		goerrs.Is(err, syscall.ECONNRESET)
}

// Start pumps messages between the game server and the bridge. It returns
// nil when the session ends normally: an end message from either side, the
// server closing the connection, or ctx being cancelled.
func (l *serverLink) Start(ctx context.Context) error {
	readerCtx, cancelReader := context.WithCancel(ctx)
	defer cancelReader()

	reads := make(chan readResult, 16)
	go l.readLoop(readerCtx, reads)

	l.log.Info("Starting game server link")
	defer l.log.Info("Stopping game server link")

	for {
		select {
		case <-ctx.Done():
			l.log.Info("Shutdown requested, ending game server session")
			return l.end()
		case <-l.endRequests:
			l.log.Info("Session end requested from the console")
			return l.end()
		case read := <-reads:
			if read.err != nil {
				if isTimeout(read.err) {
					l.log.Debug("Would block, no line from game server yet")
					continue
				}
				if isConnectionClosed(read.err) {
					l.log.Info("Game server closed the connection")
					l.conn.Shutdown()
					return nil
				}
				l.log.Error("Failed to read from game server", zap.Error(read.err))
				l.conn.Shutdown()
				return read.err
			}

			done, err := l.handleLine(ctx, read.line)
			if done {
				return err
			}
		case msg := <-l.handler.OutgoingMessageChannel:
			l.writeMessages(append([]*gameserver.GameServerMessage{msg}, l.handler.Drain()...))
		}
	}
}

func (l *serverLink) readLoop(ctx context.Context, reads chan<- readResult) {
	for {
		if l.params.ReadTimeout > 0 {
			l.conn.SetReadDeadline(time.Now().Add(l.params.ReadTimeout))
		}

		line, err := l.conn.ReadLine()
		select {
		case <-ctx.Done():
			return
		case reads <- readResult{line: line, err: err}:
		}

		if err != nil && !isTimeout(err) {
			return
		}
	}
}

func (l *serverLink) handleLine(ctx context.Context, line []byte) (bool, error) {
	if len(bytes.TrimSpace(line)) == 0 {
		return false, nil
	}

	msg, err := l.serializer.Parse(line)
	if err != nil {
		l.log.Warn("Dropping malformed line from game server", zap.Error(err))
		return false, nil
	}
	if msg == nil {
		l.log.Debug("Ignoring game server message with unknown state", zap.ByteString("line", bytes.TrimSpace(line)))
		return false, nil
	}

	switch msg.MessageType {
	case gameserver.GameServerMessageType_ServerConfig:
		user := l.params.UserInfo
		l.writeMessages([]*gameserver.GameServerMessage{
			gameserver.NewDiscordUserInfo(user.Id, user.Username, user.Discriminator),
		})
		return l.forward(ctx, msg)
	case gameserver.GameServerMessageType_CreateLobbyRequest,
		gameserver.GameServerMessageType_ConnectLobby,
		gameserver.GameServerMessageType_PlayersPosition:
		return l.forward(ctx, msg)
	case gameserver.GameServerMessageType_LinkCode:
		fmt.Fprintf(l.stdout, "Command to link your Minecraft : /discordlinkmc link %d\n", msg.LinkCode.Code)
		l.consoleWatcher.Do(l.watchConsole)
		return false, nil
	case gameserver.GameServerMessageType_End:
		l.log.Info("Game server ended the session")
		return true, l.end()
	}

	l.log.Warn("Dropping game server message", zap.Error(&errors.UnexpectedMessage{
		State:   msg.MessageType.String(),
		Context: "ServerLink::handleLine",
	}))
	return false, nil
}

func (l *serverLink) forward(ctx context.Context, msg *gameserver.GameServerMessage) (bool, error) {
	if err := l.handler.Push(ctx, msg); err != nil {
		return true, l.end()
	}
	return false, nil
}

// watchConsole ends the session on the first console input.
func (l *serverLink) watchConsole() {
	fmt.Fprintln(l.stdout, "Press enter to end the program...")

	go func() {
		reader := bufio.NewReader(l.console)
		_, _ = reader.ReadString('\n')

		select {
		case l.endRequests <- struct{}{}:
		default:
		}
	}()
}

func (l *serverLink) writeMessages(msgs []*gameserver.GameServerMessage) {
	for _, msg := range msgs {
		line, err := l.serializer.SerializeMessage(msg)
		if err != nil {
			l.log.Warn("Failed to serialize message for game server", zap.Stringer("messageType", msg.MessageType), zap.Error(err))
			continue
		}
		if err := l.conn.WriteLine(line); err != nil {
			l.log.Warn("Failed to write to game server", zap.Error(err))
			return
		}
	}

	if err := l.conn.Flush(); err != nil {
		l.log.Warn("Failed to flush game server connection", zap.Error(err))
	}
}

// end tells the game server we are leaving and closes the connection.
func (l *serverLink) end() error {
	l.writeMessages([]*gameserver.GameServerMessage{gameserver.NewEnd()})

	if err := l.conn.Shutdown(); err != nil && !isConnectionClosed(err) {
		l.log.Debug("Error while shutting down game server connection", zap.Error(err))
	}
	return nil
}
