package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

// errUsage is returned for an unparseable input line
var errUsage = errors.New("usage")

func newConnectCmd() *cobra.Command {
	var (
		userID  string
		start   bool
		until   string
		timeout time.Duration
		noInput bool
	)

	cmd := &cobra.Command{
		Use:   "connect <code>",
		Short: "Join a room's live connection",
		Long: `Open the room websocket and print every message the server sends.

Lines read from stdin are sent to the room:
  start                                  start the race (host only)
  progress <percent> [wpm]               report typing progress
  done <wpm> <accuracy> <seconds> [errors] [level]
                                         submit the final result
  quit                                   disconnect

The user ID defaults to the subject of the identity token. Press Ctrl+C to
disconnect.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				if cfg.Token == "" {
					return errors.New("an identity token is required, see 'typeroom token'")
				}
				sub, err := tokenSubject(cfg.Token)
				if err != nil {
					return fmt.Errorf("cannot read user from token: %w", err)
				}
				userID = sub
			}

			var input io.Reader = os.Stdin
			if noInput {
				input = nil
			}
			return connectRoom(strings.ToUpper(args[0]), userID, connectOptions{
				start:   start,
				until:   until,
				timeout: timeout,
				input:   input,
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User ID (default: token subject)")
	cmd.Flags().BoolVar(&start, "start", false, "Send start_game once connected")
	cmd.Flags().StringVar(&until, "until", "", "Disconnect after receiving this message type")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Disconnect after this long (0 = never)")
	cmd.Flags().BoolVar(&noInput, "no-input", false, "Do not read commands from stdin")

	return cmd
}

type connectOptions struct {
	start   bool
	until   string
	timeout time.Duration
	input   io.Reader
}

func connectRoom(code, userID string, opts connectOptions) error {
	out := NewOutput(cfg.Output)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if opts.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	ws, err := client.DialRoom(ctx, code, userID)
	if err != nil {
		return err
	}
	defer func() { _ = ws.Close() }()

	if cfg.Verbose {
		fmt.Fprintf(os.Stderr, "Connected to room %s as %s\n", code, userID)
	}

	// Only this goroutine writes after the reader starts
	outbound := make(chan map[string]any, 16)
	if opts.start {
		outbound <- map[string]any{"type": "start_game"}
	}
	if opts.input != nil {
		go readCommands(opts.input, outbound, out)
	}

	received := make(chan error, 1)
	go func() {
		received <- readEvents(ws, opts.until, out)
	}()

	for {
		select {
		case frame := <-outbound:
			if frame == nil {
				closeConn(ws)
				return <-received
			}
			if err := ws.WriteJSON(frame); err != nil {
				return fmt.Errorf("send failed: %w", err)
			}
		case err := <-received:
			if err == nil {
				closeConn(ws)
			}
			return err
		case <-ctx.Done():
			closeConn(ws)
			<-received
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("timed out after %s", opts.timeout)
			}
			return nil
		}
	}
}

// readEvents prints inbound messages until the connection closes or a
// message of type until arrives
func readEvents(ws *websocket.Conn, until string, out *Output) error {
	for {
		var e Event
		if err := ws.ReadJSON(&e); err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				switch closeErr.Code {
				case websocket.CloseNormalClosure, websocket.CloseGoingAway:
					return nil
				}
				return fmt.Errorf("closed by server: %s (%d)", closeErr.Text, closeErr.Code)
			}
			return fmt.Errorf("connection lost: %w", err)
		}

		out.PrintEvent(e)
		if until != "" && e.Type == until {
			return nil
		}
	}
}

// readCommands turns stdin lines into frames. A quit sends nil.
func readCommands(r io.Reader, outbound chan<- map[string]any, out *Output) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" {
			outbound <- nil
			return
		}

		frame, err := parseCommand(line)
		if err != nil {
			out.PrintError(err)
			continue
		}
		outbound <- frame
	}
}

// parseCommand converts one input line into an outbound frame
func parseCommand(line string) (map[string]any, error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "start":
		return map[string]any{"type": "start_game"}, nil

	case "progress":
		if len(fields) < 2 || len(fields) > 3 {
			return nil, fmt.Errorf("%w: progress <percent> [wpm]", errUsage)
		}
		nums, err := parseFloats(fields[1:])
		if err != nil {
			return nil, err
		}
		data := map[string]any{"progress": nums[0]}
		if len(nums) > 1 {
			data["wpm"] = nums[1]
		}
		return map[string]any{"type": "typing_progress", "data": data}, nil

	case "done":
		if len(fields) < 4 || len(fields) > 6 {
			return nil, fmt.Errorf("%w: done <wpm> <accuracy> <seconds> [errors] [level]", errUsage)
		}
		nums, err := parseFloats(fields[1:4])
		if err != nil {
			return nil, err
		}
		data := map[string]any{
			"wpm":        nums[0],
			"accuracy":   nums[1],
			"time_taken": int(nums[2]),
			"progress":   100,
		}
		if len(fields) > 4 {
			errCount, err := strconv.Atoi(fields[4])
			if err != nil {
				return nil, fmt.Errorf("%w: errors must be a whole number", errUsage)
			}
			data["errors"] = errCount
		}
		if len(fields) > 5 {
			data["level"] = fields[5]
		}
		return map[string]any{"type": "game_completed", "data": data}, nil
	}
	return nil, fmt.Errorf("%w: unknown command %q", errUsage, fields[0])
}

func parseFloats(fields []string) ([]float64, error) {
	nums := make([]float64, len(fields))
	for i, f := range fields {
		n, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", errUsage, f)
		}
		nums[i] = n
	}
	return nums, nil
}

// closeConn sends a normal close frame and gives the server a second to answer
func closeConn(ws *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = ws.SetReadDeadline(time.Now().Add(time.Second))
}
