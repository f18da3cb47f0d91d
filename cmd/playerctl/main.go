// Package main provides the player control CLI.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	"github.com/osa030/playdeck/internal/app/notification"
	"github.com/osa030/playdeck/internal/domain/track"
	"github.com/osa030/playdeck/internal/infra/catalog"
)

var (
	app        = kingpin.New("playdeck-playerctl", "playdeck player control client")
	server     = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token      = app.Flag("token", "Control token").Envar("PLAYDECK_SERVER_TOKEN").String()
	catalogURL = app.Flag("catalog", "Catalog API base URL").Envar("PLAYDECK_CATALOG_URL").Default("http://localhost:8000").String()

	statusCmd = app.Command("status", "Show the player state").Default()

	playCmd     = app.Command("play", "Play a catalog track")
	playTrackID = playCmd.Arg("track-id", "Catalog track ID").Required().String()

	pauseCmd  = app.Command("pause", "Pause playback")
	resumeCmd = app.Command("resume", "Resume playback")
	toggleCmd = app.Command("toggle", "Toggle play/pause")
	nextCmd   = app.Command("next", "Play the next track")
	prevCmd   = app.Command("prev", "Play the previous track")

	seekCmd     = app.Command("seek", "Seek to a position")
	seekSeconds = seekCmd.Arg("seconds", "Position in seconds").Required().Float64()

	volumeCmd   = app.Command("volume", "Set the volume")
	volumeLevel = volumeCmd.Arg("level", "Volume between 0 and 1").Required().Float64()

	queueCmd        = app.Command("queue", "Play a catalog playlist as the queue")
	queuePlaylistID = queueCmd.Arg("playlist-id", "Catalog playlist ID").Required().String()
	queueStart      = queueCmd.Flag("start", "Index of the first track").Default("0").Int()
	queueShuffle    = queueCmd.Flag("shuffle", "Shuffle the playlist").Bool()

	clearQueueCmd = app.Command("clear-queue", "Clear the active queue")
	historyCmd    = app.Command("history", "Show the session history")
	recentCmd     = app.Command("recent", "Show recently played tracks")

	keyCmd  = app.Command("key", "Press a media key")
	keyName = keyCmd.Arg("command", "play, pause, playpause, stop, next, previous").Required().String()

	subscribeCmd = app.Command("subscribe", "Subscribe to player events")

	songsCmd  = app.Command("songs", "List catalog songs")
	songsPage = songsCmd.Flag("page", "Page number").Default("1").Int()

	searchCmd   = app.Command("search", "Search the catalog")
	searchQuery = searchCmd.Arg("query", "Search query").Required().String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))
	ctx := context.Background()

	switch command {
	case statusCmd.FullCommand():
		printState(call(ctx, http.MethodGet, "/api/v1/player", nil))
	case playCmd.FullCommand():
		printState(call(ctx, http.MethodPost, "/api/v1/player/play", map[string]any{"track_id": *playTrackID}))
	case pauseCmd.FullCommand():
		printState(call(ctx, http.MethodPost, "/api/v1/player/pause", nil))
	case resumeCmd.FullCommand():
		printState(call(ctx, http.MethodPost, "/api/v1/player/resume", nil))
	case toggleCmd.FullCommand():
		printState(call(ctx, http.MethodPost, "/api/v1/player/toggle", nil))
	case nextCmd.FullCommand():
		printState(call(ctx, http.MethodPost, "/api/v1/player/next", nil))
	case prevCmd.FullCommand():
		printState(call(ctx, http.MethodPost, "/api/v1/player/previous", nil))
	case seekCmd.FullCommand():
		printState(call(ctx, http.MethodPost, "/api/v1/player/seek", map[string]any{"seconds": *seekSeconds}))
	case volumeCmd.FullCommand():
		printState(call(ctx, http.MethodPost, "/api/v1/player/volume", map[string]any{"level": *volumeLevel}))
	case queueCmd.FullCommand():
		printState(call(ctx, http.MethodPost, "/api/v1/player/queue", map[string]any{
			"playlist_id": *queuePlaylistID,
			"start":       *queueStart,
			"shuffle":     *queueShuffle,
		}))
	case clearQueueCmd.FullCommand():
		printState(call(ctx, http.MethodDelete, "/api/v1/player/queue", nil))
	case historyCmd.FullCommand():
		var resp struct {
			Tracks []track.Track `json:"tracks"`
			Index  int           `json:"index"`
		}
		mustDecode(call(ctx, http.MethodGet, "/api/v1/player/history", nil), &resp)
		for i, t := range resp.Tracks {
			marker := "  "
			if i == resp.Index {
				marker = "> "
			}
			fmt.Printf("%s%d. %s\n", marker, i+1, formatTrack(t))
		}
	case recentCmd.FullCommand():
		var resp struct {
			Tracks []track.Track `json:"tracks"`
		}
		mustDecode(call(ctx, http.MethodGet, "/api/v1/player/recent", nil), &resp)
		for i, t := range resp.Tracks {
			fmt.Printf("%d. %s\n", i+1, formatTrack(t))
		}
	case keyCmd.FullCommand():
		printState(call(ctx, http.MethodPost, "/api/v1/media/keys/"+*keyName, nil))
	case subscribeCmd.FullCommand():
		subscribe(ctx)
	case songsCmd.FullCommand():
		listSongs(ctx, *songsPage)
	case searchCmd.FullCommand():
		search(ctx, *searchQuery)
	}
}

func call(ctx context.Context, method, path string, body any) []byte {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			fail(err)
		}
		reader = bytes.NewReader(data)
	}

	resp, err := do(ctx, method, path, reader)
	if err != nil {
		fail(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		fail(err)
	}

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(data, &apiErr)
		if apiErr.Message != "" {
			fmt.Printf("Rejected [%d]: %s\n", resp.StatusCode, apiErr.Message)
		} else {
			fmt.Printf("Error [%d]: %s\n", resp.StatusCode, apiErr.Error)
		}
		os.Exit(1)
	}
	return data
}

func do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(*server, "/")+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if *token != "" {
		req.Header.Set("X-Playdeck-Token", *token)
	}
	return http.DefaultClient.Do(req)
}

func mustDecode(data []byte, v any) {
	if err := json.Unmarshal(data, v); err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Printf("Error: %v\n", err)
	os.Exit(1)
}

func printState(data []byte) {
	var ps notification.PlayerState
	mustDecode(data, &ps)
	printPlayer(&ps)
}

func printPlayer(ps *notification.PlayerState) {
	if ps.CurrentTrack == nil {
		fmt.Println("Nothing playing")
		fmt.Printf("  Volume: %.0f%%\n", ps.Volume*100)
		return
	}

	fmt.Printf("%s %s\n", formatState(ps.State), formatTrack(*ps.CurrentTrack))
	fmt.Printf("  Album: %s\n", ps.CurrentTrack.DisplayAlbum())
	if ps.Duration != nil {
		fmt.Printf("  Position: %s / %s\n", formatSeconds(ps.CurrentTime), formatSeconds(*ps.Duration))
	} else {
		fmt.Printf("  Position: %s / --:--\n", formatSeconds(ps.CurrentTime))
	}
	fmt.Printf("  Volume: %.0f%%\n", ps.Volume*100)
	fmt.Printf("  History: %d/%d", ps.HistoryIndex+1, ps.HistoryLen)
	if ps.QueueLen > 0 {
		fmt.Printf("  Queue: %d tracks", ps.QueueLen)
		if ps.PlaylistID != "" {
			fmt.Printf(" (playlist %s)", ps.PlaylistID)
		}
	}
	fmt.Println()
	fmt.Printf("  Previous: %v  Next: %v\n", ps.HasPrevious, ps.HasNext)
}

func formatState(state string) string {
	switch state {
	case "playing":
		return "▶️ "
	case "paused":
		return "⏸ "
	default:
		return "⏹ "
	}
}

func formatTrack(t track.Track) string {
	if t.Artist == "" {
		return t.Title
	}
	return fmt.Sprintf("%s - %s", t.Artist, t.Title)
}

func formatSeconds(s float64) string {
	d := time.Duration(s * float64(time.Second)).Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

func subscribe(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	resp, err := do(ctx, http.MethodGet, "/api/v1/player/events", nil)
	if err != nil {
		fail(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fmt.Printf("Error [%d]\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Subscribed to player events. Press Ctrl+C to exit.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nUnsubscribing...")
		cancel()
	}()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}
		var n notification.Notification
		if err := json.Unmarshal([]byte(data), &n); err != nil {
			fmt.Printf("Invalid event: %v\n", err)
			continue
		}
		printNotification(&n)
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		fmt.Printf("Stream error: %v\n", err)
	}
}

func printNotification(n *notification.Notification) {
	fmt.Printf("\n[Sequence: %d] ", n.SequenceNo)
	fmt.Printf("=== %s ===\n", strings.ToUpper(strings.ReplaceAll(string(n.Type), "_", " ")))

	if n.Message != "" {
		fmt.Printf("  %s\n", n.Message)
	}
	if n.Player == nil {
		return
	}
	if n.Type == notification.TypeProgress {
		fmt.Printf("  Position: %s\n", formatSeconds(n.Player.CurrentTime))
		return
	}
	printPlayer(n.Player)
}

func newCatalog() *catalog.Client {
	c, err := catalog.New(catalog.Config{BaseURL: *catalogURL, MaxRetries: 3})
	if err != nil {
		fail(err)
	}
	return c
}

func listSongs(ctx context.Context, page int) {
	p, err := newCatalog().ListSongs(ctx, page, 20)
	if err != nil {
		fail(err)
	}

	fmt.Printf("Songs (page %d, %d total):\n", p.Page, p.Total)
	for _, t := range p.Songs {
		playable := ""
		if !t.IsPlayable() {
			playable = " (no audio)"
		}
		fmt.Printf("  %-36s %s%s\n", t.ID, formatTrack(t), playable)
	}
}

func search(ctx context.Context, query string) {
	res, err := newCatalog().Search(ctx, query, 10)
	if err != nil {
		fail(err)
	}

	fmt.Printf("Songs (%d):\n", len(res.Songs))
	for _, t := range res.Songs {
		fmt.Printf("  %-36s %s\n", t.ID, formatTrack(t))
	}
	fmt.Printf("Playlists (%d):\n", len(res.Playlists))
	for _, pl := range res.Playlists {
		fmt.Printf("  %-36s %s\n", pl.ID, pl.Name)
	}
}
