package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/NotCoffee418/gazpar_bridge/pkg/normalizer"
	"github.com/NotCoffee418/gazpar_bridge/pkg/types"
	log "github.com/sirupsen/logrus"
)

const userAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"

// HTTPSession talks to the portal JSON API, keeping the login cookies.
type HTTPSession struct {
	client    *http.Client
	baseURL   string
	authURL   string
	connected bool
}

type Option func(*HTTPSession)

func WithBaseURL(u string) Option {
	return func(s *HTTPSession) { s.baseURL = strings.TrimRight(u, "/") }
}

func WithAuthURL(u string) Option {
	return func(s *HTTPSession) { s.authURL = u }
}

func WithTimeout(d time.Duration) Option {
	return func(s *HTTPSession) { s.client.Timeout = d }
}

func NewHTTPSession(opts ...Option) (*HTTPSession, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	s := &HTTPSession{
		client:  &http.Client{Jar: jar, Timeout: 60 * time.Second},
		baseURL: DefaultBaseURL,
		authURL: DefaultAuthURL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Login posts the credentials. A rejected login is not an error, it
// returns false so the caller may retry.
func (s *HTTPSession) Login(ctx context.Context, username, password string) (bool, error) {
	s.connected = false
	form := url.Values{
		"email":    {username},
		"password": {password},
		"capp":     {"meg"},
		"goto":     {s.baseURL + "/"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("domain", "grdf.fr")

	body, err := s.do(req)
	if err != nil {
		return false, fmt.Errorf("login: %w", err)
	}
	var auth authResponse
	if err := json.Unmarshal(body, &auth); err != nil {
		return false, fmt.Errorf("%w: login: %v", ErrMalformed, err)
	}
	if auth.State != "SUCCESS" {
		log.WithFields(log.Fields{"state": auth.State, "error": auth.Error}).Warn("Login refused by portal")
		return false, nil
	}

	s.connected = true
	return true, nil
}

func (s *HTTPSession) Whoami(ctx context.Context) (*types.Account, error) {
	body, err := s.get(ctx, whoamiPath, nil)
	if err != nil {
		return nil, err
	}
	if hasErrorCode(body) {
		s.connected = false
		return nil, fmt.Errorf("%w: whoami answered %s", ErrNotConnected, truncateBody(body))
	}
	var account types.Account
	if err := json.Unmarshal(body, &account); err != nil {
		return nil, fmt.Errorf("%w: whoami: %v", ErrMalformed, err)
	}
	if account.ID <= 0 {
		s.connected = false
		return nil, fmt.Errorf("%w: whoami returned no account id", ErrNotConnected)
	}
	account.Raw = json.RawMessage(body)
	return &account, nil
}

func (s *HTTPSession) MeterPoints(ctx context.Context) ([]types.MeterPoint, error) {
	body, err := s.get(ctx, meterPointsPath, nil)
	if err != nil {
		return nil, err
	}
	if hasErrorCode(body) {
		s.connected = false
		return nil, fmt.Errorf("%w: pce list answered %s", ErrNotConnected, truncateBody(body))
	}
	var records []json.RawMessage
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("%w: pce list: %v", ErrMalformed, err)
	}

	points := make([]types.MeterPoint, 0, len(records))
	for _, record := range records {
		raw, err := normalizer.DecodeMeterPoint(record)
		if err != nil {
			log.WithError(err).Warn("Skipping pce record")
			continue
		}
		p, err := normalizer.MeterPoint(raw)
		if err != nil {
			log.WithError(err).Warn("Skipping pce record")
			continue
		}
		points = append(points, p)
	}
	return points, nil
}

func (s *HTTPSession) Measures(ctx context.Context, pceID string, kind types.MeasureKind, start, end time.Time) ([]normalizer.RawMeasure, error) {
	var path string
	switch kind {
	case types.Informative:
		path = informativesPath
	case types.Published:
		path = publishedPath
	default:
		return nil, fmt.Errorf("unknown measure kind %q", kind)
	}

	query := url.Values{
		"dateDebut": {start.Format(portalDateLayout)},
		"dateFin":   {end.Format(portalDateLayout)},
		"pceList[]": {pceID},
	}
	body, err := s.get(ctx, path, query)
	if err != nil {
		return nil, err
	}
	var resp measuresResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %s measures: %v", ErrMalformed, kind, err)
	}
	entry, ok := resp[pceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s measures do not mention pce %s", ErrMalformed, kind, pceID)
	}

	measures := make([]normalizer.RawMeasure, 0, len(entry.Releves))
	for _, record := range entry.Releves {
		raw, err := normalizer.DecodeMeasure(record)
		if err != nil {
			log.WithError(err).WithFields(log.Fields{"pce": pceID, "kind": kind}).Warn("Skipping measure record")
			continue
		}
		measures = append(measures, raw)
	}
	return measures, nil
}

func (s *HTTPSession) Thresholds(ctx context.Context, pceID string) ([]normalizer.RawThreshold, error) {
	body, err := s.get(ctx, fmt.Sprintf(thresholdsPath, url.PathEscape(pceID)), url.Values{"frequence": {"Mensuel"}})
	if err != nil {
		return nil, err
	}
	var resp thresholdsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: thresholds: %v", ErrMalformed, err)
	}

	thresholds := make([]normalizer.RawThreshold, 0, len(resp.Seuils))
	for _, record := range resp.Seuils {
		raw, err := normalizer.DecodeThreshold(record)
		if err != nil {
			log.WithError(err).WithField("pce", pceID).Warn("Skipping threshold record")
			continue
		}
		thresholds = append(thresholds, raw)
	}
	return thresholds, nil
}

func (s *HTTPSession) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if !s.connected {
		return nil, ErrNotConnected
	}
	u := s.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	return s.do(req)
}

func (s *HTTPSession) do(req *http.Request) ([]byte, error) {
	req.Header.Set("User-Agent", userAgent)
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		s.connected = false
		return nil, fmt.Errorf("%w: %s %s returned %d", ErrNotConnected, req.Method, req.URL.Path, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s %s returned %d: %s", req.Method, req.URL.Path, resp.StatusCode, truncateBody(body))
	}
	return body, nil
}

// hasErrorCode detects the {"code": ...} object the portal answers with
// when the session is not valid.
func hasErrorCode(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return false
	}
	_, ok := fields["code"]
	return ok
}

func truncateBody(body []byte) string {
	const limit = 200
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}

var _ Session = (*HTTPSession)(nil)

// IsNotConnected reports whether err means the session must log in again.
func IsNotConnected(err error) bool {
	return errors.Is(err, ErrNotConnected)
}
