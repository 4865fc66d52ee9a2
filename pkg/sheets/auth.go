package sheets

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Scope grants read/write access to spreadsheets.
const Scope = "https://www.googleapis.com/auth/spreadsheets"

// NewServiceAccountClient returns an http.Client authorized with a service
// account key. credentials is either the JSON key itself or a path to it.
func NewServiceAccountClient(ctx context.Context, credentials string) (*http.Client, error) {
	key, err := loadKey(credentials)
	if err != nil {
		return nil, err
	}
	creds, err := google.CredentialsFromJSON(ctx, key, Scope)
	if err != nil {
		return nil, eris.Wrap(err, "sheets: parse service account")
	}
	return oauth2.NewClient(ctx, creds.TokenSource), nil
}

func loadKey(credentials string) ([]byte, error) {
	credentials = strings.TrimSpace(credentials)
	if credentials == "" {
		return nil, eris.New("sheets: service account credentials are empty")
	}
	if strings.HasPrefix(credentials, "{") {
		return []byte(credentials), nil
	}
	data, err := os.ReadFile(credentials)
	if err != nil {
		return nil, eris.Wrapf(err, "sheets: read service account file %s", credentials)
	}
	return data, nil
}
