package cli

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

func newRoomCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "room",
		Short: "Room management commands",
	}

	cmd.AddCommand(newRoomCreateCmd())
	cmd.AddCommand(newRoomGetCmd())
	cmd.AddCommand(newRoomJoinCmd())
	cmd.AddCommand(newRoomActiveCmd())
	cmd.AddCommand(newRoomResultsCmd())
	cmd.AddCommand(newRoomPublishCmd())

	return cmd
}

// roomPath builds /api/v1/rooms/<code><suffix>
func roomPath(code, suffix string) string {
	return "/api/v1/rooms/" + url.PathEscape(strings.ToUpper(strings.TrimSpace(code))) + suffix
}

func newRoomCreateCmd() *cobra.Command {
	var name string
	var private bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new room and become its host",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]any{}
			if name != "" {
				req["name"] = name
			}
			if private {
				req["is_public"] = false
			}

			var result RoomDetails

			if err := client.Post("/api/v1/rooms", req, &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Room name (default: server default)")
	cmd.Flags().BoolVar(&private, "private", false, "Hide the room from the active room list")

	return cmd
}

func newRoomGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <code>",
		Short: "Get room details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result RoomDetails

			if err := client.Get(roomPath(args[0], ""), &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}
}

func newRoomJoinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "join <code>",
		Short: "Join a room as a participant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result RoomDetails

			if err := client.Post(roomPath(args[0], "/join"), nil, &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}
}

func newRoomActiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "active",
		Short: "List public rooms waiting for players",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result ActiveRooms

			if err := client.Get("/api/v1/rooms/active", &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}
}

func newRoomResultsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "results <code>",
		Short: "Show a room's results",
		Long: `Show a room's results. Until the host publishes them, only the host
sees individual results.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result RoomResults

			if err := client.Get(roomPath(args[0], "/results"), &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}
}

func newRoomPublishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish <code>",
		Short: "Publish a room's results (host only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code := args[0]

			if err := client.Post(roomPath(code, "/results/publish"), nil, nil); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.PrintMessage(fmt.Sprintf("Published results for room %s", strings.ToUpper(code)))
			return nil
		},
	}
}
