// Package main provides the tubebox command line client.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/joho/godotenv"
	"github.com/samber/lo"

	apiconnect "github.com/osa030/tubebox/internal/api/connect"
)

var (
	app    = kingpin.New("tubectl", "tubebox command line client")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "Control token (or set TUBEBOX_CONTROL_TOKEN env)").Envar("TUBEBOX_CONTROL_TOKEN").String()

	statusCmd = app.Command("status", "Show playback state").Default()

	playCmd     = app.Command("play", "Play a track by ID")
	playTrackID = playCmd.Arg("track-id", "Catalog track ID").Required().String()

	playlistCmd = app.Command("playlist", "Play a playlist by ID")
	playlistID  = playlistCmd.Arg("playlist-id", "Catalog playlist ID").Required().String()

	searchCmd   = app.Command("search", "Search the catalog")
	searchQuery = searchCmd.Arg("query", "Search query").Required().Strings()

	pickCmd   = app.Command("pick", "Play an entry of the last search")
	pickIndex = pickCmd.Arg("index", "Result number as listed by search").Required().Int()

	playlistsCmd = app.Command("playlists", "List your playlists")

	enqueueCmd = app.Command("enqueue", "Append tracks to the queue")
	enqueueIDs = enqueueCmd.Arg("track-ids", "Catalog track IDs").Required().Strings()

	toggleCmd = app.Command("toggle", "Toggle play/pause")
	pauseCmd  = app.Command("pause", "Pause playback")
	nextCmd   = app.Command("next", "Skip to the next track")
	prevCmd   = app.Command("prev", "Restart the current track")

	seekCmd     = app.Command("seek", "Seek to a percentage of the current track")
	seekPercent = seekCmd.Arg("percent", "Position 0-100").Required().Float64()

	volumeCmd   = app.Command("volume", "Set the volume, or adjust it with up/down")
	volumeValue = volumeCmd.Arg("value", "0-100, up or down").Required().String()

	shuffleCmd = app.Command("shuffle", "Toggle shuffle")

	repeatCmd  = app.Command("repeat", "Cycle the repeat mode, or set it")
	repeatMode = repeatCmd.Arg("mode", "none, all or one").Enum("none", "all", "one")

	recentCmd  = app.Command("recent", "List recently played tracks")
	historyCmd = app.Command("history", "List recent search queries")

	watchCmd = app.Command("watch", "Stream playback notifications")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))
	client := apiconnect.NewDefaultClient(*server, *token)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, client, command); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, client *apiconnect.Client, command string) error {
	switch command {
	case statusCmd.FullCommand():
		return status(ctx, client)
	case playCmd.FullCommand():
		return client.PlayTrack(ctx, apiconnect.Track{ID: *playTrackID})
	case playlistCmd.FullCommand():
		return client.PlayPlaylist(ctx, *playlistID)
	case searchCmd.FullCommand():
		return search(ctx, client, strings.Join(*searchQuery, " "))
	case pickCmd.FullCommand():
		return client.PlaySearchResult(ctx, *pickIndex-1)
	case playlistsCmd.FullCommand():
		return listPlaylists(ctx, client)
	case enqueueCmd.FullCommand():
		tracks := lo.Map(*enqueueIDs, func(id string, _ int) apiconnect.Track {
			return apiconnect.Track{ID: id}
		})
		return client.Enqueue(ctx, tracks)
	case toggleCmd.FullCommand():
		return client.TogglePlay(ctx)
	case pauseCmd.FullCommand():
		return client.Pause(ctx)
	case nextCmd.FullCommand():
		return client.Next(ctx)
	case prevCmd.FullCommand():
		return client.Previous(ctx)
	case seekCmd.FullCommand():
		return client.Seek(ctx, *seekPercent)
	case volumeCmd.FullCommand():
		return volume(ctx, client, *volumeValue)
	case shuffleCmd.FullCommand():
		on, err := client.ToggleShuffle(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Shuffle: %s\n", onOff(on))
	case repeatCmd.FullCommand():
		mode, err := client.CycleRepeat(ctx, *repeatMode)
		if err != nil {
			return err
		}
		fmt.Printf("Repeat: %s\n", mode)
	case recentCmd.FullCommand():
		return recent(ctx, client)
	case historyCmd.FullCommand():
		queries, err := client.SearchHistory(ctx)
		if err != nil {
			return err
		}
		for i, q := range queries {
			fmt.Printf("%2d. %s\n", i+1, q)
		}
	case watchCmd.FullCommand():
		return watch(ctx, client)
	}
	return nil
}

func status(ctx context.Context, client *apiconnect.Client) error {
	res, err := client.GetState(ctx)
	if err != nil {
		return err
	}
	s := res.State

	fmt.Printf("\n=== %s ===\n", strings.ToUpper(res.Catalog))
	if s.CurrentTrack != nil {
		fmt.Printf("%s %s\n", statusColor(s.Status)(statusIcon(s.Status)), trackLabel(*s.CurrentTrack))
		fmt.Printf("  %s / %s (%.0f%%)\n",
			formatSeconds(s.PositionSeconds), formatSeconds(s.DurationSeconds), s.ProgressPercent)
	} else {
		fmt.Println("Nothing playing")
	}
	fmt.Printf("Volume: %d  Shuffle: %s  Repeat: %s\n", s.Volume, onOff(s.Shuffle), s.RepeatMode)
	if res.Context.Kind != "none" {
		loading := ""
		if res.Context.Loading {
			loading = " (loading)"
		}
		fmt.Printf("Context: %s %s, %d loaded%s\n", res.Context.Kind, res.Context.ID, res.Context.LoadedCount, loading)
		if res.Context.Error != "" {
			fmt.Println(text.FgHiRed.Sprintf("  %s", res.Context.Error))
		}
	}

	if len(s.Queue) == 0 {
		fmt.Println("\nQueue is empty")
		return nil
	}
	t := newTable()
	t.SetTitle("Up next")
	t.AppendHeader(table.Row{"#", "Title", "Artist", "Length"})
	for i, tr := range s.Queue {
		t.AppendRow(table.Row{i + 1, tr.Title, tr.Artist, formatSeconds(tr.DurationSeconds)})
	}
	t.Render()
	return nil
}

func search(ctx context.Context, client *apiconnect.Client, query string) error {
	results, err := client.Search(ctx, query)
	if err != nil {
		return err
	}
	t := newTable()
	t.AppendHeader(table.Row{"#", "Kind", "Title", "By", "ID"})
	for i, r := range results {
		switch {
		case r.Track != nil:
			t.AppendRow(table.Row{i + 1, r.Kind, r.Track.Title, r.Track.Artist, r.Track.ID})
		case r.Playlist != nil:
			t.AppendRow(table.Row{i + 1, text.FgCyan.Sprint(r.Kind), r.Playlist.Title, r.Playlist.ChannelTitle, r.Playlist.ID})
		}
	}
	t.Render()
	fmt.Printf("\nPlay with: tubectl pick <#>\n")
	return nil
}

func listPlaylists(ctx context.Context, client *apiconnect.Client) error {
	playlists, err := client.ListPlaylists(ctx)
	if err != nil {
		return err
	}
	t := newTable()
	t.AppendHeader(table.Row{"Title", "Items", "ID"})
	for _, p := range playlists {
		t.AppendRow(table.Row{p.Title, p.ItemCount, p.ID})
	}
	t.Render()
	return nil
}

func volume(ctx context.Context, client *apiconnect.Client, value string) error {
	var (
		v   int
		err error
	)
	switch value {
	case "up", "+":
		v, err = client.AdjustVolume(ctx, 5)
	case "down", "-":
		v, err = client.AdjustVolume(ctx, -5)
	default:
		var n int
		if _, scanErr := fmt.Sscanf(value, "%d", &n); scanErr != nil {
			return fmt.Errorf("invalid volume %q", value)
		}
		v, err = client.SetVolume(ctx, n)
	}
	if err != nil {
		return err
	}
	fmt.Printf("Volume: %d\n", v)
	return nil
}

func recent(ctx context.Context, client *apiconnect.Client) error {
	entries, err := client.RecentlyPlayed(ctx)
	if err != nil {
		return err
	}
	t := newTable()
	t.AppendHeader(table.Row{"Title", "Artist", "Played", "ID"})
	for _, e := range entries {
		t.AppendRow(table.Row{e.Track.Title, e.Track.Artist, e.PlayedAt.Local().Format(time.DateTime), e.Track.ID})
	}
	t.Render()
	return nil
}

func watch(ctx context.Context, client *apiconnect.Client) error {
	stream, err := client.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer stream.Close()

	fmt.Println("Subscribed to notifications. Press Ctrl+C to exit.")

	for stream.Receive() {
		n := stream.Msg()
		if n.Type == "progress" {
			continue
		}
		label := "-"
		if n.State.CurrentTrack != nil {
			label = trackLabel(*n.State.CurrentTrack)
		}
		fmt.Printf("[%d] %-15s %s %s\n", n.SequenceNo, n.Type, statusColor(n.State.Status)(n.State.Status), label)
	}
	if err := stream.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	return t
}

func trackLabel(t apiconnect.Track) string {
	title := lo.Ternary(t.Title != "", t.Title, t.ID)
	if t.Artist == "" {
		return title
	}
	return title + " - " + t.Artist
}

func formatSeconds(s float64) string {
	d := time.Duration(s) * time.Second
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

func onOff(b bool) string {
	return lo.Ternary(b, "on", "off")
}

func statusIcon(status string) string {
	switch status {
	case "playing":
		return "▶"
	case "paused":
		return "⏸"
	case "loading":
		return "…"
	default:
		return "■"
	}
}

func statusColor(status string) func(a ...interface{}) string {
	switch status {
	case "playing":
		return text.FgGreen.Sprint
	case "paused", "loading":
		return text.FgYellow.Sprint
	default:
		return text.FgHiBlack.Sprint
	}
}
