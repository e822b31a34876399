package connect

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

// Client is a typed PlayerService client.
type Client struct {
	getState         *connect.Client[Empty, GetStateResponse]
	playTrack        *connect.Client[PlayTrackRequest, Empty]
	playPlaylist     *connect.Client[PlayPlaylistRequest, Empty]
	search           *connect.Client[SearchRequest, SearchResponse]
	playSearchResult *connect.Client[PlaySearchResultRequest, Empty]
	listPlaylists    *connect.Client[Empty, ListPlaylistsResponse]
	enqueue          *connect.Client[TracksRequest, Empty]
	setQueue         *connect.Client[TracksRequest, Empty]
	togglePlay       *connect.Client[Empty, Empty]
	pause            *connect.Client[Empty, Empty]
	next             *connect.Client[Empty, Empty]
	previous         *connect.Client[Empty, Empty]
	seek             *connect.Client[SeekRequest, Empty]
	setVolume        *connect.Client[SetVolumeRequest, SetVolumeResponse]
	toggleShuffle    *connect.Client[Empty, ToggleShuffleResponse]
	cycleRepeat      *connect.Client[CycleRepeatRequest, CycleRepeatResponse]
	recentlyPlayed   *connect.Client[Empty, RecentlyPlayedResponse]
	searchHistory    *connect.Client[Empty, SearchHistoryResponse]
	subscribe        *connect.Client[Empty, Notification]
}

// NewClient creates a client for the server at baseURL. token is sent on
// every call and may be empty for read-only use.
func NewClient(httpClient connect.HTTPClient, baseURL, token string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{
		WithJSONCodec(),
		connect.WithInterceptors(NewTokenHeaderInterceptor(token)),
	}, opts...)

	return &Client{
		getState:         connect.NewClient[Empty, GetStateResponse](httpClient, baseURL+ProcedureGetState, opts...),
		playTrack:        connect.NewClient[PlayTrackRequest, Empty](httpClient, baseURL+ProcedurePlayTrack, opts...),
		playPlaylist:     connect.NewClient[PlayPlaylistRequest, Empty](httpClient, baseURL+ProcedurePlayPlaylist, opts...),
		search:           connect.NewClient[SearchRequest, SearchResponse](httpClient, baseURL+ProcedureSearch, opts...),
		playSearchResult: connect.NewClient[PlaySearchResultRequest, Empty](httpClient, baseURL+ProcedurePlaySearchResult, opts...),
		listPlaylists:    connect.NewClient[Empty, ListPlaylistsResponse](httpClient, baseURL+ProcedureListPlaylists, opts...),
		enqueue:          connect.NewClient[TracksRequest, Empty](httpClient, baseURL+ProcedureEnqueue, opts...),
		setQueue:         connect.NewClient[TracksRequest, Empty](httpClient, baseURL+ProcedureSetQueue, opts...),
		togglePlay:       connect.NewClient[Empty, Empty](httpClient, baseURL+ProcedureTogglePlay, opts...),
		pause:            connect.NewClient[Empty, Empty](httpClient, baseURL+ProcedurePause, opts...),
		next:             connect.NewClient[Empty, Empty](httpClient, baseURL+ProcedureNext, opts...),
		previous:         connect.NewClient[Empty, Empty](httpClient, baseURL+ProcedurePrevious, opts...),
		seek:             connect.NewClient[SeekRequest, Empty](httpClient, baseURL+ProcedureSeek, opts...),
		setVolume:        connect.NewClient[SetVolumeRequest, SetVolumeResponse](httpClient, baseURL+ProcedureSetVolume, opts...),
		toggleShuffle:    connect.NewClient[Empty, ToggleShuffleResponse](httpClient, baseURL+ProcedureToggleShuffle, opts...),
		cycleRepeat:      connect.NewClient[CycleRepeatRequest, CycleRepeatResponse](httpClient, baseURL+ProcedureCycleRepeat, opts...),
		recentlyPlayed:   connect.NewClient[Empty, RecentlyPlayedResponse](httpClient, baseURL+ProcedureRecentlyPlayed, opts...),
		searchHistory:    connect.NewClient[Empty, SearchHistoryResponse](httpClient, baseURL+ProcedureSearchHistory, opts...),
		subscribe:        connect.NewClient[Empty, Notification](httpClient, baseURL+ProcedureSubscribe, opts...),
	}
}

// NewDefaultClient creates a client using http.DefaultClient.
func NewDefaultClient(baseURL, token string) *Client {
	return NewClient(http.DefaultClient, baseURL, token)
}

func (c *Client) GetState(ctx context.Context) (*GetStateResponse, error) {
	return unary(ctx, c.getState, &Empty{})
}

func (c *Client) PlayTrack(ctx context.Context, t Track) error {
	_, err := unary(ctx, c.playTrack, &PlayTrackRequest{Track: t})
	return err
}

func (c *Client) PlayPlaylist(ctx context.Context, playlistID string) error {
	_, err := unary(ctx, c.playPlaylist, &PlayPlaylistRequest{PlaylistID: playlistID})
	return err
}

func (c *Client) Search(ctx context.Context, query string) ([]SearchResult, error) {
	res, err := unary(ctx, c.search, &SearchRequest{Query: query})
	if err != nil {
		return nil, err
	}
	return res.Results, nil
}

func (c *Client) PlaySearchResult(ctx context.Context, index int) error {
	_, err := unary(ctx, c.playSearchResult, &PlaySearchResultRequest{Index: index})
	return err
}

func (c *Client) ListPlaylists(ctx context.Context) ([]Playlist, error) {
	res, err := unary(ctx, c.listPlaylists, &Empty{})
	if err != nil {
		return nil, err
	}
	return res.Playlists, nil
}

func (c *Client) Enqueue(ctx context.Context, tracks []Track) error {
	_, err := unary(ctx, c.enqueue, &TracksRequest{Tracks: tracks})
	return err
}

func (c *Client) SetQueue(ctx context.Context, tracks []Track) error {
	_, err := unary(ctx, c.setQueue, &TracksRequest{Tracks: tracks})
	return err
}

func (c *Client) TogglePlay(ctx context.Context) error {
	_, err := unary(ctx, c.togglePlay, &Empty{})
	return err
}

func (c *Client) Pause(ctx context.Context) error {
	_, err := unary(ctx, c.pause, &Empty{})
	return err
}

func (c *Client) Next(ctx context.Context) error {
	_, err := unary(ctx, c.next, &Empty{})
	return err
}

func (c *Client) Previous(ctx context.Context) error {
	_, err := unary(ctx, c.previous, &Empty{})
	return err
}

func (c *Client) Seek(ctx context.Context, percent float64) error {
	_, err := unary(ctx, c.seek, &SeekRequest{Percent: percent})
	return err
}

// SetVolume sets an absolute volume and returns the applied value.
func (c *Client) SetVolume(ctx context.Context, volume int) (int, error) {
	res, err := unary(ctx, c.setVolume, &SetVolumeRequest{Volume: &volume})
	if err != nil {
		return 0, err
	}
	return res.Volume, nil
}

// AdjustVolume changes the volume by delta and returns the applied value.
func (c *Client) AdjustVolume(ctx context.Context, delta int) (int, error) {
	res, err := unary(ctx, c.setVolume, &SetVolumeRequest{Delta: delta})
	if err != nil {
		return 0, err
	}
	return res.Volume, nil
}

func (c *Client) ToggleShuffle(ctx context.Context) (bool, error) {
	res, err := unary(ctx, c.toggleShuffle, &Empty{})
	if err != nil {
		return false, err
	}
	return res.Shuffle, nil
}

// CycleRepeat advances the repeat mode, or sets mode when it is not empty.
func (c *Client) CycleRepeat(ctx context.Context, mode string) (string, error) {
	res, err := unary(ctx, c.cycleRepeat, &CycleRepeatRequest{Mode: mode})
	if err != nil {
		return "", err
	}
	return res.RepeatMode, nil
}

func (c *Client) RecentlyPlayed(ctx context.Context) ([]RecentEntry, error) {
	res, err := unary(ctx, c.recentlyPlayed, &Empty{})
	if err != nil {
		return nil, err
	}
	return res.Entries, nil
}

func (c *Client) SearchHistory(ctx context.Context) ([]string, error) {
	res, err := unary(ctx, c.searchHistory, &Empty{})
	if err != nil {
		return nil, err
	}
	return res.Queries, nil
}

// Subscribe opens the notification stream. The caller must close it.
func (c *Client) Subscribe(ctx context.Context) (*connect.ServerStreamForClient[Notification], error) {
	return c.subscribe.CallServerStream(ctx, connect.NewRequest(&Empty{}))
}

func unary[Req, Res any](ctx context.Context, client *connect.Client[Req, Res], msg *Req) (*Res, error) {
	res, err := client.CallUnary(ctx, connect.NewRequest(msg))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}
