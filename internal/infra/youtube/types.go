package youtube

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Resource kinds used as search result discriminators.
const (
	KindVideo    = "youtube#video"
	KindPlaylist = "youtube#playlist"
)

// APIError represents an error response from the YouTube Data API.
type APIError struct {
	StatusCode int
	Message    string
	Reason     string
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("youtube API error %d (%s): %s", e.StatusCode, e.Reason, e.Message)
	}
	return fmt.Sprintf("youtube API error %d: %s", e.StatusCode, e.Message)
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

type thumbnail struct {
	URL string `json:"url"`
}

type thumbnails struct {
	Default  *thumbnail `json:"default"`
	Medium   *thumbnail `json:"medium"`
	High     *thumbnail `json:"high"`
	Standard *thumbnail `json:"standard"`
	Maxres   *thumbnail `json:"maxres"`
}

// best returns the largest available thumbnail URL.
func (t thumbnails) best() string {
	for _, th := range []*thumbnail{t.Maxres, t.Standard, t.High, t.Medium, t.Default} {
		if th != nil && th.URL != "" {
			return th.URL
		}
	}
	return ""
}

type playlistItemsResponse struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		Snippet struct {
			Title                  string     `json:"title"`
			ChannelTitle           string     `json:"channelTitle"`
			VideoOwnerChannelTitle string     `json:"videoOwnerChannelTitle"`
			Thumbnails             thumbnails `json:"thumbnails"`
			ResourceID             struct {
				VideoID string `json:"videoId"`
			} `json:"resourceId"`
		} `json:"snippet"`
		ContentDetails struct {
			VideoID  string `json:"videoId"`
			Duration string `json:"duration"`
		} `json:"contentDetails"`
	} `json:"items"`
}

// resourceID is the id of a search hit. The API returns an object
// ({"kind": ..., "videoId": ...}) for search and a bare string for video
// lookups; both decode here.
type resourceID struct {
	Kind       string `json:"kind"`
	VideoID    string `json:"videoId"`
	PlaylistID string `json:"playlistId"`
}

func (r *resourceID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*r = resourceID{Kind: KindVideo, VideoID: s}
		return nil
	}
	type plain resourceID
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = resourceID(p)
	return nil
}

type searchResponse struct {
	Items []struct {
		Kind    string     `json:"kind"`
		ID      resourceID `json:"id"`
		VideoID string     `json:"videoId"`
		Snippet struct {
			Title        string     `json:"title"`
			Description  string     `json:"description"`
			ChannelTitle string     `json:"channelTitle"`
			Thumbnails   thumbnails `json:"thumbnails"`
		} `json:"snippet"`
	} `json:"items"`
}

type videosResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title        string     `json:"title"`
			ChannelTitle string     `json:"channelTitle"`
			Thumbnails   thumbnails `json:"thumbnails"`
		} `json:"snippet"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
	} `json:"items"`
}

type playlistsResponse struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title        string     `json:"title"`
			Description  string     `json:"description"`
			ChannelTitle string     `json:"channelTitle"`
			Thumbnails   thumbnails `json:"thumbnails"`
		} `json:"snippet"`
		ContentDetails struct {
			ItemCount int `json:"itemCount"`
		} `json:"contentDetails"`
	} `json:"items"`
}

// isUnavailable reports placeholder entries left in playlists for removed videos.
func isUnavailable(title string) bool {
	switch strings.TrimSpace(title) {
	case "Deleted video", "Private video":
		return true
	default:
		return false
	}
}
