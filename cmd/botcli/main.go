// Package main provides a command-line chat client for the jukebot server.
package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/jukebot/internal/api/connect"
	"github.com/osa030/jukebot/internal/app/command"
	"github.com/osa030/jukebot/internal/domain/track"
)

var (
	app     = kingpin.New("jukebot-botcli", "jukebot command client")
	server  = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token   = app.Flag("token", "Bot token (or set BOT_TOKEN env)").Envar("BOT_TOKEN").String()
	user    = app.Flag("user", "Display name sent with commands").Default(defaultUser()).String()
	timeout = app.Flag("timeout", "Request timeout").Default("15s").Duration()

	// play command
	playCmd   = app.Command(command.Play, "Play a track on Spotify, or queue it if something is playing")
	playQuery = playCmd.Arg("query", "Song name, Spotify track URL or URI").Required().Strings()

	queueCmd  = app.Command(command.Queue, "View the current queue")
	skipCmd   = app.Command(command.Skip, "Skip the currently playing track")
	stopCmd   = app.Command(command.Stop, "Stop the music and clear the queue")
	pauseCmd  = app.Command(command.Pause, "Pause the currently playing track")
	resumeCmd = app.Command(command.Resume, "Resume the paused track")
	helpCmd   = app.Command("commands", "List the commands the bot understands")

	// chat command
	chatCmd = app.Command("chat", "Read chat lines such as \"!play africa\" from stdin")

	// subscribe command
	subscribeCmd = app.Command("subscribe", "Subscribe to playback notifications")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	cmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Create client
	client := apiconnect.NewCommandServiceClient(http.DefaultClient, *server, *token)

	ctx := context.Background()

	// Execute command
	switch cmd {
	case playCmd.FullCommand():
		dispatch(ctx, client, command.Play, strings.Join(*playQuery, " "))
	case queueCmd.FullCommand():
		dispatch(ctx, client, command.Queue, "")
	case skipCmd.FullCommand():
		dispatch(ctx, client, command.Skip, "")
	case stopCmd.FullCommand():
		dispatch(ctx, client, command.Stop, "")
	case pauseCmd.FullCommand():
		dispatch(ctx, client, command.Pause, "")
	case resumeCmd.FullCommand():
		dispatch(ctx, client, command.Resume, "")
	case helpCmd.FullCommand():
		dispatch(ctx, client, command.Help, "")
	case chatCmd.FullCommand():
		chat(ctx, client)
	case subscribeCmd.FullCommand():
		subscribe(ctx, client)
	}
}

func defaultUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "cli"
}

func dispatch(ctx context.Context, client *apiconnect.CommandServiceClient, name, args string) {
	resp, err := send(ctx, client, name, args)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	printReply(resp)
	if resp.Kind == string(command.KindError) {
		os.Exit(1)
	}
}

func send(ctx context.Context, client *apiconnect.CommandServiceClient, name, args string) (*apiconnect.DispatchResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	return client.Dispatch(ctx, &apiconnect.DispatchRequest{
		Command: name,
		Args:    args,
		User:    *user,
	})
}

// chat reads one command per line until EOF.
func chat(ctx context.Context, client *apiconnect.CommandServiceClient) {
	fmt.Println("Type commands such as \"!play africa\" or \"!queue\". Ctrl+D to exit.")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		req := command.Parse(scanner.Text(), *user)
		if req.Command == "" {
			continue
		}

		resp, err := send(ctx, client, req.Command, req.Args)
		if err != nil {
			if connect.CodeOf(err) == connect.CodeUnauthenticated {
				fmt.Println("Error: bot token rejected (use --token or BOT_TOKEN env)")
				os.Exit(1)
			}
			fmt.Printf("Error: %v\n", err)
			continue
		}
		printReply(resp)
	}
}

func printReply(resp *apiconnect.DispatchResponse) {
	switch command.Kind(resp.Kind) {
	case command.KindOK:
		fmt.Println(resp.Message)
	case command.KindInfo:
		fmt.Printf("ℹ️  %s\n", resp.Message)
	default:
		fmt.Printf("✖ [%s] %s\n", resp.Code, resp.Message)
	}
}

func subscribe(ctx context.Context, client *apiconnect.CommandServiceClient) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := client.SubscribeEvents(ctx)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer stream.Close()

	fmt.Println("Subscribed to notifications. Press Ctrl+C to exit.")

	// Handle shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nUnsubscribing...")
		cancel()
	}()

	// Receive notifications
	for stream.Receive() {
		printNotification(stream.Msg())
	}

	if err := stream.Err(); err != nil && ctx.Err() == nil {
		fmt.Printf("Stream error: %v\n", err)
		os.Exit(1)
	}
}

func printNotification(n *apiconnect.Notification) {
	fmt.Printf("[%d] %s %-14s state=%s queue=%d",
		n.SequenceNo, n.Time.Local().Format(time.TimeOnly), n.Type, n.State, n.QueueSize)

	if n.Track != nil {
		t := track.Track{Name: n.Track.Name, Artists: n.Track.Artists}
		fmt.Printf(" track=%q [%s]", t.Title(), track.FormatDuration(time.Duration(n.Track.DurationMs)*time.Millisecond))
	}
	fmt.Println()
}
