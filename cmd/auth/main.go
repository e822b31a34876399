// Package main provides the catalog authentication tool.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/osa030/tubebox/internal/infra/youtube"
)

var (
	app  = kingpin.New("tubebox-auth", "Obtain a catalog refresh token for tubebox")
	port = app.Flag("port", "Callback server port").Default("8888").Int()

	youtubeCmd          = app.Command("youtube", "Authorize YouTube account access")
	youtubeClientID     = youtubeCmd.Flag("client-id", "Google OAuth client ID").Envar("YOUTUBE_CLIENT_ID").Required().String()
	youtubeClientSecret = youtubeCmd.Flag("client-secret", "Google OAuth client secret").Envar("YOUTUBE_CLIENT_SECRET").Required().String()

	spotifyCmd          = app.Command("spotify", "Authorize Spotify account access")
	spotifyClientID     = spotifyCmd.Flag("client-id", "Spotify client ID").Envar("SPOTIFY_CLIENT_ID").Required().String()
	spotifyClientSecret = spotifyCmd.Flag("client-secret", "Spotify client secret").Envar("SPOTIFY_CLIENT_SECRET").Required().String()
)

// exchanger turns the callback request into a token.
type exchanger interface {
	AuthURL(state string) string
	Token(r *http.Request, state string) (*oauth2.Token, error)
}

type youtubeExchanger struct {
	conf *oauth2.Config
}

func (y youtubeExchanger) AuthURL(state string) string {
	return y.conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (y youtubeExchanger) Token(r *http.Request, state string) (*oauth2.Token, error) {
	if st := r.FormValue("state"); st != state {
		return nil, fmt.Errorf("state mismatch: %s != %s", st, state)
	}
	if e := r.FormValue("error"); e != "" {
		return nil, fmt.Errorf("authorization denied: %s", e)
	}
	return y.conf.Exchange(r.Context(), r.FormValue("code"))
}

type spotifyExchanger struct {
	auth *spotifyauth.Authenticator
}

func (s spotifyExchanger) AuthURL(state string) string {
	return s.auth.AuthURL(state)
}

func (s spotifyExchanger) Token(r *http.Request, state string) (*oauth2.Token, error) {
	return s.auth.Token(r.Context(), state, r)
}

func main() {
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))
	redirectURI := fmt.Sprintf("http://127.0.0.1:%d/callback", *port)

	var (
		ex     exchanger
		envVar string
	)
	switch command {
	case youtubeCmd.FullCommand():
		ex = youtubeExchanger{conf: &oauth2.Config{
			ClientID:     *youtubeClientID,
			ClientSecret: *youtubeClientSecret,
			Endpoint:     endpoints.Google,
			RedirectURL:  redirectURI,
			Scopes:       []string{youtube.ScopeReadOnly},
		}}
		envVar = "YOUTUBE_REFRESH_TOKEN"
	case spotifyCmd.FullCommand():
		ex = spotifyExchanger{auth: spotifyauth.New(
			spotifyauth.WithRedirectURL(redirectURI),
			spotifyauth.WithClientID(*spotifyClientID),
			spotifyauth.WithClientSecret(*spotifyClientSecret),
			spotifyauth.WithScopes(
				spotifyauth.ScopePlaylistReadPrivate,
				spotifyauth.ScopePlaylistReadCollaborative,
			),
		)}
		envVar = "SPOTIFY_REFRESH_TOKEN"
	}

	state := uuid.NewString()
	tokenCh := make(chan *oauth2.Token, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		token, err := ex.Token(r, state)
		if err != nil {
			http.Error(w, "Failed to get token", http.StatusForbidden)
			log.Printf("Failed to get token: %v", err)
			return
		}
		fmt.Fprint(w, completePage)
		select {
		case tokenCh <- token:
		default:
		}
	})

	server := &http.Server{Addr: fmt.Sprintf(":%d", *port), Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	fmt.Println("Please visit the following URL to authorize tubebox:")
	fmt.Println("")
	fmt.Println(ex.AuthURL(state))
	fmt.Println("")
	fmt.Println("Waiting for authorization...")

	token := <-tokenCh

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Failed to shutdown server: %v", err)
	}

	if token.RefreshToken == "" {
		log.Fatal("No refresh token returned; revoke the app's access and try again")
	}

	fmt.Println("")
	fmt.Println("=== Authorization Successful ===")
	fmt.Println("")
	fmt.Println("Add this to catalog.settings in your config.yaml:")
	fmt.Println("")
	fmt.Printf("  refresh_token: \"%s\"\n", token.RefreshToken)
	fmt.Println("")
	fmt.Println("Or set as environment variable:")
	fmt.Printf("export %s=\"%s\"\n", envVar, token.RefreshToken)
}

const completePage = `<!DOCTYPE html>
<html>
<head>
    <title>tubebox - Authorization Complete</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            display: flex;
            justify-content: center;
            align-items: center;
            height: 100vh;
            margin: 0;
            background: #181818;
            color: white;
        }
        .container { text-align: center; padding: 40px; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Authorization Complete</h1>
        <p>You can close this window and return to the terminal.</p>
    </div>
</body>
</html>
`
