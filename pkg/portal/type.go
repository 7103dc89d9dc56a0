package portal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/NotCoffee418/gazpar_bridge/pkg/normalizer"
	"github.com/NotCoffee418/gazpar_bridge/pkg/types"
)

const (
	DefaultBaseURL = "https://monespace.grdf.fr"
	DefaultAuthURL = "https://login.monespace.grdf.fr/sofit-account-api/api/v1/auth"

	whoamiPath       = "/api/e-connexion/users/whoami"
	meterPointsPath  = "/api/e-conso/pce"
	informativesPath = "/api/e-conso/pce/consommation/informatives"
	publishedPath    = "/api/e-conso/pce/consommation/publiees"
	thresholdsPath   = "/api/e-conso/pce/%s/seuils"

	portalDateLayout = "2006-01-02"
)

var (
	ErrNotConnected = errors.New("portal session is not connected")
	ErrMalformed    = errors.New("malformed portal response")
)

// Session is a logged-in conversation with the distributor portal.
// Records that fail to decode are logged and left out of the results.
type Session interface {
	Login(ctx context.Context, username, password string) (bool, error)
	Whoami(ctx context.Context) (*types.Account, error)
	MeterPoints(ctx context.Context) ([]types.MeterPoint, error)
	Measures(ctx context.Context, pceID string, kind types.MeasureKind, start, end time.Time) ([]normalizer.RawMeasure, error)
	Thresholds(ctx context.Context, pceID string) ([]normalizer.RawThreshold, error)
}

type Credentials struct {
	Username string
	Password string
}

type authResponse struct {
	State string `json:"state"`
	Error string `json:"error"`
}

type measuresResponse map[string]struct {
	Releves []json.RawMessage `json:"releves"`
}

type thresholdsResponse struct {
	Seuils []json.RawMessage `json:"seuils"`
}
