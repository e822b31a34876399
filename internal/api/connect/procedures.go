package connect

// PlayerServiceName is the fully-qualified name of the player service.
const PlayerServiceName = "tubebox.v1.PlayerService"

// Procedure paths of PlayerService.
const (
	ProcedureGetState         = "/" + PlayerServiceName + "/GetState"
	ProcedurePlayTrack        = "/" + PlayerServiceName + "/PlayTrack"
	ProcedurePlayPlaylist     = "/" + PlayerServiceName + "/PlayPlaylist"
	ProcedureSearch           = "/" + PlayerServiceName + "/Search"
	ProcedurePlaySearchResult = "/" + PlayerServiceName + "/PlaySearchResult"
	ProcedureListPlaylists    = "/" + PlayerServiceName + "/ListPlaylists"
	ProcedureEnqueue          = "/" + PlayerServiceName + "/Enqueue"
	ProcedureSetQueue         = "/" + PlayerServiceName + "/SetQueue"
	ProcedureTogglePlay       = "/" + PlayerServiceName + "/TogglePlay"
	ProcedurePause            = "/" + PlayerServiceName + "/Pause"
	ProcedureNext             = "/" + PlayerServiceName + "/Next"
	ProcedurePrevious         = "/" + PlayerServiceName + "/Previous"
	ProcedureSeek             = "/" + PlayerServiceName + "/Seek"
	ProcedureSetVolume        = "/" + PlayerServiceName + "/SetVolume"
	ProcedureToggleShuffle    = "/" + PlayerServiceName + "/ToggleShuffle"
	ProcedureCycleRepeat      = "/" + PlayerServiceName + "/CycleRepeat"
	ProcedureRecentlyPlayed   = "/" + PlayerServiceName + "/RecentlyPlayed"
	ProcedureSearchHistory    = "/" + PlayerServiceName + "/SearchHistory"
	ProcedureSubscribe        = "/" + PlayerServiceName + "/Subscribe"
)

// readOnlyProcedures do not require the control token.
var readOnlyProcedures = map[string]bool{
	ProcedureGetState:       true,
	ProcedureSearch:         true,
	ProcedureListPlaylists:  true,
	ProcedureRecentlyPlayed: true,
	ProcedureSearchHistory:  true,
}
