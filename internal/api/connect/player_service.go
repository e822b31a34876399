package connect

import (
	"context"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tubebox/internal/app/notification"
	"github.com/osa030/tubebox/internal/app/playback"
	"github.com/osa030/tubebox/internal/app/session"
	"github.com/osa030/tubebox/internal/infra/youtube"
)

// PlayerService implements the PlayerService RPC.
type PlayerService struct {
	session *session.Manager
}

// NewPlayerService creates a new PlayerService.
func NewPlayerService(session *session.Manager) *PlayerService {
	return &PlayerService{session: session}
}

// NewPlayerServiceHandler builds an HTTP handler for the service. It returns
// the path on which to mount the handler and the handler itself.
func NewPlayerServiceHandler(svc *PlayerService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{WithJSONCodec()}, opts...)

	mux := http.NewServeMux()
	mux.Handle(ProcedureGetState, connect.NewUnaryHandler(ProcedureGetState, svc.GetState, opts...))
	mux.Handle(ProcedurePlayTrack, connect.NewUnaryHandler(ProcedurePlayTrack, svc.PlayTrack, opts...))
	mux.Handle(ProcedurePlayPlaylist, connect.NewUnaryHandler(ProcedurePlayPlaylist, svc.PlayPlaylist, opts...))
	mux.Handle(ProcedureSearch, connect.NewUnaryHandler(ProcedureSearch, svc.Search, opts...))
	mux.Handle(ProcedurePlaySearchResult, connect.NewUnaryHandler(ProcedurePlaySearchResult, svc.PlaySearchResult, opts...))
	mux.Handle(ProcedureListPlaylists, connect.NewUnaryHandler(ProcedureListPlaylists, svc.ListPlaylists, opts...))
	mux.Handle(ProcedureEnqueue, connect.NewUnaryHandler(ProcedureEnqueue, svc.Enqueue, opts...))
	mux.Handle(ProcedureSetQueue, connect.NewUnaryHandler(ProcedureSetQueue, svc.SetQueue, opts...))
	mux.Handle(ProcedureTogglePlay, connect.NewUnaryHandler(ProcedureTogglePlay, svc.TogglePlay, opts...))
	mux.Handle(ProcedurePause, connect.NewUnaryHandler(ProcedurePause, svc.Pause, opts...))
	mux.Handle(ProcedureNext, connect.NewUnaryHandler(ProcedureNext, svc.Next, opts...))
	mux.Handle(ProcedurePrevious, connect.NewUnaryHandler(ProcedurePrevious, svc.Previous, opts...))
	mux.Handle(ProcedureSeek, connect.NewUnaryHandler(ProcedureSeek, svc.Seek, opts...))
	mux.Handle(ProcedureSetVolume, connect.NewUnaryHandler(ProcedureSetVolume, svc.SetVolume, opts...))
	mux.Handle(ProcedureToggleShuffle, connect.NewUnaryHandler(ProcedureToggleShuffle, svc.ToggleShuffle, opts...))
	mux.Handle(ProcedureCycleRepeat, connect.NewUnaryHandler(ProcedureCycleRepeat, svc.CycleRepeat, opts...))
	mux.Handle(ProcedureRecentlyPlayed, connect.NewUnaryHandler(ProcedureRecentlyPlayed, svc.RecentlyPlayed, opts...))
	mux.Handle(ProcedureSearchHistory, connect.NewUnaryHandler(ProcedureSearchHistory, svc.SearchHistory, opts...))
	mux.Handle(ProcedureSubscribe, connect.NewServerStreamHandler(ProcedureSubscribe, svc.Subscribe, opts...))

	return "/" + PlayerServiceName + "/", mux
}

// GetState returns the playback state and browsing context.
func (s *PlayerService) GetState(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[GetStateResponse], error) {
	status := s.session.GetStatus()
	return connect.NewResponse(&GetStateResponse{
		State:   toPlaybackState(status.Playback),
		Context: toBrowsingContext(status.Context),
		Catalog: s.session.CatalogName(),
	}), nil
}

// PlayTrack plays a single track.
func (s *PlayerService) PlayTrack(
	ctx context.Context,
	req *connect.Request[PlayTrackRequest],
) (*connect.Response[Empty], error) {
	if err := s.session.PlayTrack(ctx, fromTrack(req.Msg.Track)); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}

// PlayPlaylist plays a catalog playlist from its first item.
func (s *PlayerService) PlayPlaylist(
	ctx context.Context,
	req *connect.Request[PlayPlaylistRequest],
) (*connect.Response[Empty], error) {
	if req.Msg.PlaylistID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("playlist_id is required"))
	}
	if err := s.session.PlayPlaylist(ctx, req.Msg.PlaylistID); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}

// Search searches the catalog.
func (s *PlayerService) Search(
	ctx context.Context,
	req *connect.Request[SearchRequest],
) (*connect.Response[SearchResponse], error) {
	if req.Msg.Query == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("query is required"))
	}
	results, err := s.session.Search(ctx, req.Msg.Query)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&SearchResponse{Results: toSearchResults(results)}), nil
}

// PlaySearchResult plays an entry of the last search.
func (s *PlayerService) PlaySearchResult(
	ctx context.Context,
	req *connect.Request[PlaySearchResultRequest],
) (*connect.Response[Empty], error) {
	if err := s.session.PlaySearchResult(ctx, req.Msg.Index); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}

// ListPlaylists lists the user's playlists.
func (s *PlayerService) ListPlaylists(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[ListPlaylistsResponse], error) {
	playlists, err := s.session.ListPlaylists(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}
	out := make([]Playlist, len(playlists))
	for i, p := range playlists {
		out[i] = toPlaylist(p)
	}
	return connect.NewResponse(&ListPlaylistsResponse{Playlists: out}), nil
}

// Enqueue appends tracks to the queue.
func (s *PlayerService) Enqueue(
	ctx context.Context,
	req *connect.Request[TracksRequest],
) (*connect.Response[Empty], error) {
	s.session.Enqueue(ctx, fromTracks(req.Msg.Tracks))
	return connect.NewResponse(&Empty{}), nil
}

// SetQueue replaces the queue.
func (s *PlayerService) SetQueue(
	ctx context.Context,
	req *connect.Request[TracksRequest],
) (*connect.Response[Empty], error) {
	s.session.Playback().SetQueue(fromTracks(req.Msg.Tracks))
	return connect.NewResponse(&Empty{}), nil
}

// TogglePlay toggles play/pause.
func (s *PlayerService) TogglePlay(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[Empty], error) {
	if err := s.session.Playback().TogglePlay(ctx); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}

// Pause pauses playback.
func (s *PlayerService) Pause(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[Empty], error) {
	if err := s.session.Playback().Pause(ctx); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}

// Next skips to the next queued track.
func (s *PlayerService) Next(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[Empty], error) {
	if err := s.session.Playback().Next(ctx); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}

// Previous restarts the current track.
func (s *PlayerService) Previous(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[Empty], error) {
	if err := s.session.Playback().Previous(ctx); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}

// Seek moves to a percentage of the current track.
func (s *PlayerService) Seek(
	ctx context.Context,
	req *connect.Request[SeekRequest],
) (*connect.Response[Empty], error) {
	if err := s.session.Playback().Seek(ctx, req.Msg.Percent); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}

// SetVolume sets or adjusts the volume.
func (s *PlayerService) SetVolume(
	ctx context.Context,
	req *connect.Request[SetVolumeRequest],
) (*connect.Response[SetVolumeResponse], error) {
	pb := s.session.Playback()
	var err error
	if req.Msg.Volume != nil {
		err = pb.ChangeVolume(ctx, *req.Msg.Volume)
	} else {
		err = pb.AdjustVolume(ctx, req.Msg.Delta)
	}
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&SetVolumeResponse{Volume: pb.Snapshot().Volume}), nil
}

// ToggleShuffle toggles shuffle.
func (s *PlayerService) ToggleShuffle(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[ToggleShuffleResponse], error) {
	on, err := s.session.ToggleShuffle(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&ToggleShuffleResponse{Shuffle: on}), nil
}

// CycleRepeat cycles the repeat mode, or sets it when a mode is given.
func (s *PlayerService) CycleRepeat(
	ctx context.Context,
	req *connect.Request[CycleRepeatRequest],
) (*connect.Response[CycleRepeatResponse], error) {
	pb := s.session.Playback()
	if req.Msg.Mode == "" {
		return connect.NewResponse(&CycleRepeatResponse{RepeatMode: pb.CycleRepeat().String()}), nil
	}
	mode, ok := playback.ParseRepeatMode(req.Msg.Mode)
	if !ok {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.Newf("unknown repeat mode %q", req.Msg.Mode))
	}
	pb.SetRepeatMode(mode)
	return connect.NewResponse(&CycleRepeatResponse{RepeatMode: mode.String()}), nil
}

// RecentlyPlayed lists recently played tracks.
func (s *PlayerService) RecentlyPlayed(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[RecentlyPlayedResponse], error) {
	entries, err := s.session.RecentlyPlayed(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&RecentlyPlayedResponse{Entries: toRecentEntries(entries)}), nil
}

// SearchHistory lists past search queries.
func (s *PlayerService) SearchHistory(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[SearchHistoryResponse], error) {
	queries, err := s.session.SearchHistory(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&SearchHistoryResponse{Queries: queries}), nil
}

// Subscribe streams the current state followed by playback notifications.
func (s *PlayerService) Subscribe(
	ctx context.Context,
	req *connect.Request[Empty],
	stream *connect.ServerStream[Notification],
) error {
	notifManager := s.session.GetNotificationManager()

	initial := &Notification{
		SequenceNo: notifManager.NextSequenceNo(),
		Type:       "initial_state",
		State:      toPlaybackState(s.session.GetStatus().Playback),
		Time:       time.Now(),
	}
	if err := stream.Send(initial); err != nil {
		return err
	}

	adapter := &notificationStreamAdapter{stream: stream}
	subscriptionID := notifManager.Subscribe(adapter)
	defer notifManager.Unsubscribe(subscriptionID)

	// Wait for context cancellation or session end
	select {
	case <-ctx.Done():
	case <-s.session.Done():
	}
	return nil
}

// notificationStreamAdapter adapts connect.ServerStream to notification.Stream.
type notificationStreamAdapter struct {
	stream *connect.ServerStream[Notification]
}

func (a *notificationStreamAdapter) Send(n *notification.Notification) error {
	return a.stream.Send(toNotification(n))
}

// toConnectError maps domain errors onto connect codes.
func toConnectError(err error) error {
	code := connect.CodeInternal
	switch {
	case errors.Is(err, playback.ErrInvalidTrack),
		errors.Is(err, session.ErrResultIndex):
		code = connect.CodeInvalidArgument
	case errors.Is(err, playback.ErrNoTrack),
		errors.Is(err, playback.ErrQueueEmpty),
		errors.Is(err, playback.ErrUnknownDuration),
		errors.Is(err, session.ErrNoSearchResults):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, session.ErrEmptyPlaylist),
		errors.Is(err, youtube.ErrNotFound):
		code = connect.CodeNotFound
	case errors.Is(err, youtube.ErrAuthRequired):
		code = connect.CodeUnauthenticated
	case errors.Is(err, context.DeadlineExceeded):
		code = connect.CodeDeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = connect.CodeCanceled
	}
	if code == connect.CodeInternal {
		zlog.Error().Err(err).Msg("rpc: internal error")
	}
	return connect.NewError(code, err)
}
