package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dropDatabas3/morphcore/internal/adapter"
	"github.com/dropDatabas3/morphcore/internal/connector"
	merrors "github.com/dropDatabas3/morphcore/internal/errors"
	"github.com/dropDatabas3/morphcore/internal/observability/logger"
)

// statePayload viaja cifrado en el parámetro state de OAuth; liga el callback
// a la conexión correcta sin sesión server-side.
type statePayload struct {
	ConnectorID string `json:"connectorId"`
	OwnerID     string `json:"ownerId"`
	Timestamp   int64  `json:"timestamp"`
	RedirectURL string `json:"redirectUrl"`
}

// AuthorizeParams son los argumentos de Authorize.
type AuthorizeParams struct {
	ConnectorID string
	OwnerID     string
	Settings    map[string]string
	Scopes      []string
	// RedirectURL es adonde la UI vuelve al terminar el callback.
	RedirectURL string

	// SkipRequiredSettings valida en modo laxo: llena defaults sin exigir los
	// settings requeridos. Para reautorizaciones donde la UI no reenvía
	// settings que el provider igual no pide en la URL de autorización.
	SkipRequiredSettings bool
}

// Authorize valida settings, persiste {scopes, settings} cifrados, mueve la
// conexión a awaiting_authorization y arma la URL de autorización del provider.
func (c *Client) Authorize(ctx context.Context, p AuthorizeParams) (string, error) {
	cn, err := c.registry.Get(p.ConnectorID)
	if err != nil {
		return "", merrors.ErrConnectionRetrieveFailed.WithCause(err)
	}
	if cn.Auth.Type != connector.AuthTypeOAuth2 {
		return "", merrors.ErrAuthTypeNotSupported.WithDetail(string(cn.Auth.Type))
	}
	ids := adapter.ConnectionIDs{ConnectorID: p.ConnectorID, OwnerID: p.OwnerID}
	conn, err := c.Retrieve(ctx, ids)
	if err != nil {
		return "", err
	}

	settings, err := cn.ValidateSettings(p.Settings, !p.SkipRequiredSettings)
	if err != nil {
		return "", err
	}
	scopes := cn.Scopes(p.Scopes)

	stored, err := c.loadStored(conn)
	if err != nil {
		return "", merrors.ErrConnectionRetrieveFailed.WithCause(err)
	}
	stored.Scopes = scopes
	stored.Settings = settings
	if _, err := c.saveStored(ctx, ids, stored, adapter.StatusAwaitingAuthorization); err != nil {
		return "", err
	}

	clientID, _, err := cn.ClientCredentials()
	if err != nil {
		return "", merrors.ErrConnectionUpdateFailed.WithCause(err)
	}
	state, err := c.box.EncryptPayload(statePayload{
		ConnectorID: p.ConnectorID,
		OwnerID:     p.OwnerID,
		Timestamp:   time.Now().Unix(),
		RedirectURL: p.RedirectURL,
	})
	if err != nil {
		return "", merrors.ErrConnectionUpdateFailed.WithCause(err)
	}

	u, err := url.Parse(cn.Auth.AuthorizeURL(settings))
	if err != nil {
		return "", merrors.ErrConnectionUpdateFailed.WithCause(err)
	}
	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", clientID)
	q.Set("redirect_uri", c.redirectURI())
	q.Set("scope", strings.Join(scopes, " "))
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Callback cierra el flujo OAuth: canjea el code por tokens y persiste el
// resultado. Si el provider rechaza el canje o no entrega access_token la
// conexión vuelve a unauthorized; todos los caminos retornan la conexión y el
// redirectUrl original para que la UI pueda cerrar el loop.
func (c *Client) Callback(ctx context.Context, code, state string) (*adapter.Connection, string, error) {
	var p statePayload
	if err := c.box.DecryptPayload(state, &p); err != nil {
		return nil, "", merrors.ErrConnectionUpdateFailed.WithCause(err)
	}
	cn, err := c.registry.Get(p.ConnectorID)
	if err != nil {
		return nil, "", merrors.ErrConnectionRetrieveFailed.WithCause(err)
	}
	if cn.Auth.Type != connector.AuthTypeOAuth2 {
		return nil, "", merrors.ErrAuthTypeNotSupported.WithDetail(string(cn.Auth.Type))
	}
	ids := adapter.ConnectionIDs{ConnectorID: p.ConnectorID, OwnerID: p.OwnerID}
	conn, err := c.Retrieve(ctx, ids)
	if err != nil {
		return nil, "", err
	}
	stored, err := c.loadStored(conn)
	if err != nil {
		return nil, "", merrors.ErrConnectionRetrieveFailed.WithCause(err)
	}

	token, err := c.exchangeCode(ctx, cn, stored.Settings, code)
	if err != nil {
		var rejected *tokenRejectedError
		if !errors.As(err, &rejected) {
			// Falla de transporte o decode: el canje quizá nunca llegó al
			// provider, no se toca el estado de la conexión.
			return nil, "", merrors.ErrConnectionUpdateFailed.WithCause(err)
		}
	}

	access, _ := token["access_token"].(string)
	if access == "" {
		// Canje rechazado o sin token: la conexión queda sin autorización,
		// sin error.
		logger.From(ctx).Warn("token exchange sin access_token",
			logger.ConnectorID(p.ConnectorID), logger.OwnerID(p.OwnerID), logger.Err(err))
		stored.OAuth = nil
		updated, err := c.saveStored(ctx, ids, stored, adapter.StatusUnauthorized)
		if err != nil {
			return nil, "", err
		}
		return updated, p.RedirectURL, nil
	}

	oauth := &StoredOAuth{AccessToken: access}
	if rt, ok := token["refresh_token"].(string); ok {
		oauth.RefreshToken = rt
	}
	if in, ok := token["expires_in"].(float64); ok && in > 0 {
		oauth.ExpiresAt = time.Now().Add(time.Duration(in) * time.Second).UTC().Format(time.RFC3339)
	}
	stored.OAuth = oauth

	if cn.Auth.OnTokenExchange != nil {
		if extra := cn.Auth.OnTokenExchange(token); len(extra) > 0 {
			if stored.Settings == nil {
				stored.Settings = map[string]string{}
			}
			for k, v := range extra {
				stored.Settings[k] = v
			}
		}
	}

	updated, err := c.saveStored(ctx, ids, stored, adapter.StatusAuthorized)
	if err != nil {
		return nil, "", err
	}
	logger.From(ctx).Info("conexión autorizada",
		logger.ConnectorID(p.ConnectorID), logger.OwnerID(p.OwnerID))
	return updated, p.RedirectURL, nil
}

// exchangeCode canjea el authorization code contra el token endpoint.
func (c *Client) exchangeCode(ctx context.Context, cn *connector.Connector, settings map[string]string, code string) (map[string]any, error) {
	clientID, clientSecret, err := cn.ClientCredentials()
	if err != nil {
		return nil, err
	}
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", clientID)
	form.Set("client_secret", clientSecret)
	form.Set("redirect_uri", c.redirectURI())

	return c.postTokenForm(ctx, cn.Auth.AccessTokenURL(settings), form)
}

// tokenRejectedError es una respuesta no-2xx del token endpoint: el provider
// recibió el canje y lo rechazó (invalid_grant, code vencido, code reusado).
type tokenRejectedError struct {
	status      int
	code        string
	description string
}

func (e *tokenRejectedError) Error() string {
	return fmt.Sprintf("token http %d: %s %s", e.status, e.code, e.description)
}

// postTokenForm hace el POST x-www-form-urlencoded y decodifica el JSON.
func (c *Client) postTokenForm(ctx context.Context, endpoint string, form url.Values) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		var b struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&b)
		return nil, &tokenRejectedError{status: resp.StatusCode, code: b.Error, description: b.ErrorDescription}
	}
	var token map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, err
	}
	return token, nil
}

func (c *Client) redirectURI() string {
	return strings.TrimRight(c.baseURL, "/") + "/callback"
}
