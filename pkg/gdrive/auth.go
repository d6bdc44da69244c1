package gdrive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/xhad/vecdocs/internal/models"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/singleflight"
	"google.golang.org/api/drive/v3"
)

var DefaultScopes = []string{
	drive.DriveScope,
	drive.DriveAppdataScope,
	drive.DriveFileScope,
}

var errInvalidToken = errors.New("saved token is incomplete")

// InteractiveFunc obtains a token from the user when no usable token file
// exists.
type InteractiveFunc func(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error)

type AuthConfig struct {
	CredentialsPath string
	TokenPath       string
	Scopes          []string
	// RedirectAddr is where the loopback flow listens for the OAuth redirect.
	RedirectAddr string
	Interactive  InteractiveFunc
	OnAuthURL    func(url string)
}

// Authorizer hands out Drive HTTP clients built from the saved refresh token.
type Authorizer struct {
	config AuthConfig
	flight singleflight.Group
}

func NewAuthorizer(config AuthConfig) *Authorizer {
	if config.CredentialsPath == "" {
		config.CredentialsPath = "credentials.json"
	}
	if config.TokenPath == "" {
		config.TokenPath = "token.json"
	}
	if len(config.Scopes) == 0 {
		config.Scopes = DefaultScopes
	}
	if config.RedirectAddr == "" {
		config.RedirectAddr = "127.0.0.1:0"
	}
	if config.OnAuthURL == nil {
		config.OnAuthURL = func(url string) {
			fmt.Fprintf(os.Stderr, "Authorize this app by visiting this url:\n%s\n", url)
		}
	}

	a := &Authorizer{config: config}
	if a.config.Interactive == nil {
		a.config.Interactive = a.loopbackFlow
	}
	return a
}

// Client returns an HTTP client authorized against Google APIs.
func (a *Authorizer) Client(ctx context.Context) (*http.Client, error) {
	cred, err := a.Authorize(ctx)
	if err != nil {
		return nil, err
	}

	config := &oauth2.Config{
		ClientID:     cred.ClientID,
		ClientSecret: cred.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       a.config.Scopes,
	}
	return config.Client(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken}), nil
}

// Authorize returns the saved credential, running the interactive flow when
// the token file is missing or unusable. Concurrent callers share one flow.
func (a *Authorizer) Authorize(ctx context.Context) (*models.OAuthCredential, error) {
	if cred, err := a.loadSavedCredentials(); err == nil {
		return cred, nil
	}

	v, err, _ := a.flight.Do("authorize", func() (interface{}, error) {
		// another flight may have written the token while we waited
		if cred, err := a.loadSavedCredentials(); err == nil {
			return cred, nil
		}
		return a.authenticate(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.OAuthCredential), nil
}

func (a *Authorizer) loadSavedCredentials() (*models.OAuthCredential, error) {
	data, err := os.ReadFile(a.config.TokenPath)
	if err != nil {
		return nil, err
	}

	var cred models.OAuthCredential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, err
	}
	if cred.ClientID == "" || cred.RefreshToken == "" {
		return nil, errInvalidToken
	}
	return &cred, nil
}

func (a *Authorizer) authenticate(ctx context.Context) (*models.OAuthCredential, error) {
	slog.Info("No usable saved token, starting interactive authorization", "tokenPath", a.config.TokenPath)

	data, err := os.ReadFile(a.config.CredentialsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	config, err := google.ConfigFromJSON(data, a.config.Scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}

	token, err := a.config.Interactive(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("interactive authorization failed: %w", err)
	}
	if token.RefreshToken == "" {
		return nil, fmt.Errorf("authorization returned no refresh token")
	}

	cred := &models.OAuthCredential{
		Type:         "authorized_user",
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		RefreshToken: token.RefreshToken,
	}
	if err := a.saveCredentials(cred); err != nil {
		return nil, err
	}
	return cred, nil
}

func (a *Authorizer) saveCredentials(cred *models.OAuthCredential) error {
	payload, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := writeFileAtomic(a.config.TokenPath, payload, 0o600); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// loopbackFlow runs the installed-app flow: the consent page redirects to a
// short lived local server that receives the authorization code.
func (a *Authorizer) loopbackFlow(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error) {
	ln, err := net.Listen("tcp", a.config.RedirectAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for oauth redirect: %w", err)
	}

	config.RedirectURL = "http://" + ln.Addr().String()
	state := uuid.NewString()
	codes := make(chan string, 1)
	errs := make(chan error, 1)

	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "invalid state", http.StatusBadRequest)
			return
		}
		if reason := q.Get("error"); reason != "" {
			http.Error(w, "authorization denied", http.StatusForbidden)
			select {
			case errs <- fmt.Errorf("authorization denied: %s", reason):
			default:
			}
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}
		fmt.Fprintln(w, "Authentication successful! You can close this window.")
		select {
		case codes <- code:
		default:
		}
	})}
	go srv.Serve(ln)
	defer srv.Close()

	a.config.OnAuthURL(config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce))

	select {
	case code := <-codes:
		return config.Exchange(ctx, code)
	case err := <-errs:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Chmod(perm); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
