package gdrive

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"

	"github.com/menta2k/helmet-inspector/pkg/storage"
)

// expiryDelta matches the early-expiry window of oauth2.Token.Valid
const expiryDelta = 10 * time.Second

// TokenState is the condition of a stored OAuth token
type TokenState int

const (
	NoToken TokenState = iota
	Valid
	ExpiredRefreshable
	ExpiredUnrefreshable
)

func (s TokenState) String() string {
	switch s {
	case NoToken:
		return "no-token"
	case Valid:
		return "valid"
	case ExpiredRefreshable:
		return "expired-refreshable"
	case ExpiredUnrefreshable:
		return "expired-unrefreshable"
	}
	return fmt.Sprintf("TokenState(%d)", int(s))
}

// InspectToken classifies tok at time now
func InspectToken(tok *oauth2.Token, now time.Time) TokenState {
	if tok == nil || (tok.AccessToken == "" && tok.RefreshToken == "") {
		return NoToken
	}
	if tok.AccessToken != "" && (tok.Expiry.IsZero() || now.Add(expiryDelta).Before(tok.Expiry)) {
		return Valid
	}
	if tok.RefreshToken != "" {
		return ExpiredRefreshable
	}
	return ExpiredUnrefreshable
}

// ConsentFunc shows authURL to the user and returns the authorization code
// they paste back.
type ConsentFunc func(ctx context.Context, authURL string) (string, error)

// StdinConsent prompts on out and reads the code from one line of in
func StdinConsent(in io.Reader, out io.Writer) ConsentFunc {
	return func(ctx context.Context, authURL string) (string, error) {
		fmt.Fprintf(out, "Open the following link in your browser, then paste the authorization code:\n%s\n> ", authURL)
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", fmt.Errorf("failed to read authorization code: %w", err)
		}
		code := strings.TrimSpace(line)
		if code == "" {
			return "", errors.New("empty authorization code")
		}
		return code, nil
	}
}

// Authenticator obtains Drive credentials from a token file, refreshing or
// running the consent flow when needed.
type Authenticator struct {
	config    *oauth2.Config
	tokenFile string
	consent   ConsentFunc
	logger    *zap.SugaredLogger
	now       func() time.Time
}

// NewAuthenticator reads the OAuth client secret from credentialsFile. A nil
// consent disables the interactive flow.
func NewAuthenticator(credentialsFile, tokenFile string, consent ConsentFunc, logger *zap.SugaredLogger) (*Authenticator, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to read client secret file: %w", storage.ErrAuth, err)
	}
	config, err := google.ConfigFromJSON(b, drive.DriveScope)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to parse client secret file: %w", storage.ErrAuth, err)
	}
	return NewAuthenticatorWithConfig(config, tokenFile, consent, logger), nil
}

// NewAuthenticatorWithConfig uses an existing OAuth config
func NewAuthenticatorWithConfig(config *oauth2.Config, tokenFile string, consent ConsentFunc, logger *zap.SugaredLogger) *Authenticator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Authenticator{
		config:    config,
		tokenFile: tokenFile,
		consent:   consent,
		logger:    logger,
		now:       time.Now,
	}
}

// Token returns a usable token, persisting any token it had to obtain
func (a *Authenticator) Token(ctx context.Context) (*oauth2.Token, error) {
	tok, err := LoadToken(a.tokenFile)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		a.logger.Warnw("ignoring unreadable token file", "file", a.tokenFile, "error", err)
		tok = nil
	}

	state := InspectToken(tok, a.now())
	a.logger.Debugw("stored token", "state", state)

	switch state {
	case Valid:
		return tok, nil
	case ExpiredRefreshable:
		fresh, err := a.config.TokenSource(ctx, tok).Token()
		if err == nil {
			a.save(fresh)
			return fresh, nil
		}
		a.logger.Warnw("token refresh failed", "error", err)
	}

	return a.consentFlow(ctx)
}

func (a *Authenticator) consentFlow(ctx context.Context) (*oauth2.Token, error) {
	if a.consent == nil {
		return nil, fmt.Errorf("%w: no valid token and interactive consent is disabled", storage.ErrAuth)
	}

	authURL := a.config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	code, err := a.consent(ctx, authURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrAuth, err)
	}
	tok, err := a.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to exchange authorization code: %w", storage.ErrAuth, err)
	}
	a.save(tok)
	return tok, nil
}

func (a *Authenticator) save(tok *oauth2.Token) {
	if a.tokenFile == "" {
		return
	}
	if err := SaveToken(a.tokenFile, tok); err != nil {
		a.logger.Warnw("failed to persist token", "file", a.tokenFile, "error", err)
		return
	}
	a.logger.Debugw("saved token", "file", a.tokenFile)
}

// HTTPClient returns an authorized client. Tokens refreshed while it is in
// use are written back to the token file.
func (a *Authenticator) HTTPClient(ctx context.Context) (*http.Client, error) {
	tok, err := a.Token(ctx)
	if err != nil {
		return nil, err
	}
	src := &persistingSource{
		base: oauth2.ReuseTokenSource(tok, a.config.TokenSource(ctx, tok)),
		last: tok.AccessToken,
		save: a.save,
	}
	return oauth2.NewClient(ctx, src), nil
}

type persistingSource struct {
	mu   sync.Mutex
	base oauth2.TokenSource
	last string
	save func(*oauth2.Token)
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		s.save(tok)
	}
	return tok, nil
}

// LoadToken reads a JSON encoded token from path
func LoadToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	return tok, nil
}

// SaveToken writes tok to path readable by the owner only
func SaveToken(path string, tok *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to cache oauth token: %w", err)
	}
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
