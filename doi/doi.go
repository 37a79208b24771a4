// Package doi mints DOIs for items and registers them with a registration
// agency. Changes are queued as DOI row statuses by the Provider and sent
// to the agency by the Organiser.
package doi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sethgrid/pester"

	"github.com/lehigh-university-libraries/dspacekit/config"
	"github.com/lehigh-university-libraries/dspacekit/content"
)

// Scheme prefixes DOIs in their canonical form, doi:10.1234/abc.
const Scheme = "doi:"

// Error codes carried by Error.
const (
	CodeNotSet = iota
	Unrecognized
	ForeignDOI
	BadAnswer
	RegisterFirst
	ConversionError
	Mismatch
	AlreadyExists
	DoesNotExist
	IsDeleted
	AuthenticationError
	InternalError
	BadRequest
)

var codeNames = map[int]string{
	CodeNotSet:          "CODE_NOT_SET",
	Unrecognized:        "UNRECOGNIZED",
	ForeignDOI:          "FOREIGN_DOI",
	BadAnswer:           "BAD_ANSWER",
	RegisterFirst:       "REGISTER_FIRST",
	ConversionError:     "CONVERSION_ERROR",
	Mismatch:            "MISMATCH",
	AlreadyExists:       "DOI_ALREADY_EXISTS",
	DoesNotExist:        "DOI_DOES_NOT_EXIST",
	IsDeleted:           "DOI_IS_DELETED",
	AuthenticationError: "AUTHENTICATION_ERROR",
	InternalError:       "INTERNAL_ERROR",
	BadRequest:          "BAD_REQUEST",
}

// CodeToString names an error code.
func CodeToString(code int) string {
	if s, ok := codeNames[code]; ok {
		return s
	}
	return "UNKNOWN"
}

// Error is a failure reported by the provider or a connector.
type Error struct {
	Code int
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", CodeToString(e.Code), e.Msg, e.Err)
	}
	return CodeToString(e.Code) + ": " + e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code int, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// CodeOf returns the code of err, or CodeNotSet when err is not an *Error.
func CodeOf(err error) int {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeNotSet
}

var resolverPrefixes = []string{
	"http://dx.doi.org/",
	"https://dx.doi.org/",
	"http://doi.org/",
	"https://doi.org/",
}

// FormatIdentifier accepts a DOI as doi:10.x/y, 10.x/y or a resolver URL
// and returns it as doi:10.x/y.
func FormatIdentifier(identifier string) (string, error) {
	id := strings.TrimSpace(identifier)
	if id == "" {
		return "", newError(Unrecognized, "identifier is empty")
	}
	if strings.HasPrefix(strings.ToLower(id), Scheme) {
		id = id[len(Scheme):]
	} else {
		for _, p := range resolverPrefixes {
			if strings.HasPrefix(strings.ToLower(id), p) {
				id = id[len(p):]
				break
			}
		}
	}
	if !strings.HasPrefix(id, "10.") || !strings.Contains(id, "/") {
		return "", newError(Unrecognized, "%q does not look like a DOI", identifier)
	}
	return Scheme + id, nil
}

// Bare strips the scheme from a formatted DOI.
func Bare(doi string) string {
	if strings.HasPrefix(strings.ToLower(doi), Scheme) {
		return doi[len(Scheme):]
	}
	return doi
}

// Connector talks to a registration agency. DOIs are passed formatted.
type Connector interface {
	IsReserved(ctx context.Context, doi string) (bool, error)
	IsRegistered(ctx context.Context, doi string) (bool, error)
	Reserve(ctx context.Context, item *content.Item, doi string) error
	Register(ctx context.Context, item *content.Item, doi string) error
	Update(ctx context.Context, item *content.Item, doi string) error
	Delete(ctx context.Context, doi string) error
}

// Doer sends HTTP requests; *http.Client and *pester.Client satisfy it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewHTTPClient returns the retrying client used for agency requests.
func NewHTTPClient(maxRetries int, timeout time.Duration) *pester.Client {
	c := pester.New()
	c.Concurrency = 1
	c.MaxRetries = maxRetries
	c.Backoff = pester.ExponentialBackoff
	c.Timeout = timeout
	return c
}

// NewConnector returns the connector for the configured agency.
func NewConnector(cfg config.DOIConfig, d Doer) (Connector, error) {
	switch strings.ToLower(cfg.Agency) {
	case "", "crossref":
		return NewCrossrefConnector(cfg, d), nil
	case "datacite":
		return NewDataCiteConnector(cfg, d), nil
	default:
		return nil, fmt.Errorf("unknown DOI agency %q", cfg.Agency)
	}
}

// statusError maps the HTTP statuses every agency uses the same way.
func statusError(status int, doi, body string) error {
	switch status {
	case http.StatusUnauthorized:
		return newError(AuthenticationError, "cannot authenticate at the DOI registry agency; check username and password")
	case http.StatusForbidden:
		return newError(BadRequest, "DOI %s does not belong to this account: %s", doi, body)
	case http.StatusInternalServerError:
		return newError(InternalError, "the registry agency had an internal error managing %s: %s", doi, body)
	}
	return nil
}
