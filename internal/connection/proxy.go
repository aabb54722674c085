package connection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dropDatabas3/morphcore/internal/adapter"
	"github.com/dropDatabas3/morphcore/internal/connector"
	merrors "github.com/dropDatabas3/morphcore/internal/errors"
	"github.com/dropDatabas3/morphcore/internal/observability/logger"
	"github.com/dropDatabas3/morphcore/internal/observability/metrics"
	"github.com/dropDatabas3/morphcore/internal/util"
)

// refreshBuffer: un token que vence dentro de esta ventana se refresca antes
// de usarse.
const refreshBuffer = 30 * time.Second

// ProxyParams describe una request hacia el provider.
type ProxyParams struct {
	ConnectorID string
	OwnerID     string
	Method      string
	// Path relativo a la base URL del connector.
	Path string
	// Query admite valores anidados: arrays se unen con comas, objetos se
	// expanden con notación de corchetes (filter[name]=x).
	Query   map[string]any
	Headers map[string]string
	// Body se serializa como JSON si no es nil.
	Body any
}

// ProxyResult es la respuesta cruda del provider.
type ProxyResult struct {
	Status int
	Header http.Header
	Body   []byte
}

// Proxy arma y ejecuta una request autenticada contra el provider. Un solo
// intento: los retries quedan en manos del caller.
func (c *Client) Proxy(ctx context.Context, p ProxyParams) (*ProxyResult, error) {
	cn, err := c.registry.Get(p.ConnectorID)
	if err != nil {
		return nil, merrors.ErrProxyRequestFailed.WithCause(err)
	}
	ids := adapter.ConnectionIDs{ConnectorID: p.ConnectorID, OwnerID: p.OwnerID}
	conn, err := c.Retrieve(ctx, ids)
	if err != nil {
		return nil, err
	}
	stored, err := c.loadStored(conn)
	if err != nil {
		return nil, merrors.ErrConnectionRetrieveFailed.WithCause(err)
	}

	base, err := cn.Proxy.BaseURL(stored.Settings)
	if err != nil {
		return nil, merrors.ErrProxyRequestFailed.WithCause(err)
	}
	authz, err := c.authorizationHeader(ctx, cn, ids, stored)
	if err != nil {
		return nil, err
	}

	full := strings.TrimRight(base, "/") + "/" + strings.TrimLeft(p.Path, "/")
	u, err := url.Parse(full)
	if err != nil {
		return nil, merrors.ErrProxyRequestFailed.WithCause(err)
	}
	if len(p.Query) > 0 {
		u.RawQuery = SerializeQuery(p.Query).Encode()
	}

	var body io.Reader
	if p.Body != nil {
		raw, err := json.Marshal(p.Body)
		if err != nil {
			return nil, merrors.ErrProxyRequestFailed.WithCause(err)
		}
		body = bytes.NewReader(raw)
	}

	method := p.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, merrors.ErrProxyRequestFailed.WithCause(err)
	}
	req.Header.Set("Authorization", authz)
	if p.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ProxyRequests.WithLabelValues(p.ConnectorID, "error").Inc()
		return nil, merrors.ErrProxyRequestFailed.WithCause(err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ProxyRequests.WithLabelValues(p.ConnectorID, "error").Inc()
		return nil, merrors.ErrProxyRequestFailed.WithCause(err)
	}
	metrics.ProxyRequests.WithLabelValues(p.ConnectorID, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode/100 != 2 {
		// El body del provider se preserva en Detail para el caller.
		return nil, merrors.ErrProxyRequestFailed.WithDetail(string(raw))
	}
	return &ProxyResult{Status: resp.StatusCode, Header: resp.Header, Body: raw}, nil
}

// AuthorizationHeader expone el header Bearer vigente, refrescando si hace
// falta. Lo usan los subscribe handlers de webhooks.
func (c *Client) AuthorizationHeader(ctx context.Context, ids adapter.ConnectionIDs) (string, error) {
	conn, err := c.Retrieve(ctx, ids)
	if err != nil {
		return "", err
	}
	stored, err := c.loadStored(conn)
	if err != nil {
		return "", merrors.ErrConnectionRetrieveFailed.WithCause(err)
	}
	cn, err := c.registry.Get(ids.ConnectorID)
	if err != nil {
		return "", merrors.ErrConnectionRetrieveFailed.WithCause(err)
	}
	return c.authorizationHeader(ctx, cn, ids, stored)
}

// AccessToken expone el access token vigente, refrescando si hace falta.
func (c *Client) AccessToken(ctx context.Context, ids adapter.ConnectionIDs) (string, error) {
	h, err := c.AuthorizationHeader(ctx, ids)
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(h, "Bearer "), nil
}

// Settings expone los settings almacenados de la conexión (descifrados).
func (c *Client) Settings(ctx context.Context, ids adapter.ConnectionIDs) (map[string]string, error) {
	conn, err := c.Retrieve(ctx, ids)
	if err != nil {
		return nil, err
	}
	stored, err := c.loadStored(conn)
	if err != nil {
		return nil, merrors.ErrConnectionRetrieveFailed.WithCause(err)
	}
	return stored.Settings, nil
}

// authorizationHeader retorna "Bearer <token>", refrescando el token si vence
// dentro de refreshBuffer.
func (c *Client) authorizationHeader(ctx context.Context, cn *connector.Connector, ids adapter.ConnectionIDs, stored *StoredData) (string, error) {
	if stored.OAuth == nil || stored.OAuth.AccessToken == "" {
		return "", merrors.ErrAccessTokenMissing
	}
	exp := stored.OAuth.ExpiryTime()
	if stored.OAuth.RefreshToken != "" && !exp.IsZero() && !time.Now().Add(refreshBuffer).Before(exp) {
		refreshed, err := c.refreshToken(ctx, cn, ids)
		if err != nil {
			return "", err
		}
		stored = refreshed
	}
	return "Bearer " + stored.OAuth.AccessToken, nil
}

// refreshToken rota el access token bajo el lock in-process de la conexión.
// Tras tomar el lock relee el blob: si otro goroutine ya refrescó, el token
// nuevo no vence dentro del buffer y se reusa sin llamar al provider.
func (c *Client) refreshToken(ctx context.Context, cn *connector.Connector, ids adapter.ConnectionIDs) (*StoredData, error) {
	lock := c.lockFor(ids)
	lock.Lock()
	defer lock.Unlock()

	conn, err := c.Retrieve(ctx, ids)
	if err != nil {
		return nil, err
	}
	stored, err := c.loadStored(conn)
	if err != nil {
		return nil, merrors.ErrConnectionRetrieveFailed.WithCause(err)
	}
	if stored.OAuth == nil || stored.OAuth.AccessToken == "" {
		return nil, merrors.ErrAccessTokenMissing
	}
	exp := stored.OAuth.ExpiryTime()
	if exp.IsZero() || time.Now().Add(refreshBuffer).Before(exp) {
		return stored, nil
	}

	clientID, clientSecret, err := cn.ClientCredentials()
	if err != nil {
		return nil, merrors.ErrProxyRequestFailed.WithCause(err)
	}
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", stored.OAuth.RefreshToken)
	form.Set("client_id", clientID)
	form.Set("client_secret", clientSecret)

	token, err := c.postTokenForm(ctx, cn.Auth.AccessTokenURL(stored.Settings), form)
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues(ids.ConnectorID, "failure").Inc()
		return nil, merrors.ErrProxyRequestFailed.WithCause(err)
	}
	access, _ := token["access_token"].(string)
	if access == "" {
		metrics.TokenRefreshes.WithLabelValues(ids.ConnectorID, "failure").Inc()
		return nil, merrors.ErrAccessTokenMissing
	}

	stored.OAuth.AccessToken = access
	if rt, ok := token["refresh_token"].(string); ok && rt != "" {
		stored.OAuth.RefreshToken = rt
	}
	if in, ok := token["expires_in"].(float64); ok && in > 0 {
		stored.OAuth.ExpiresAt = time.Now().Add(time.Duration(in) * time.Second).UTC().Format(time.RFC3339)
	} else {
		stored.OAuth.ExpiresAt = ""
	}
	if _, err := c.saveStored(ctx, ids, stored, ""); err != nil {
		metrics.TokenRefreshes.WithLabelValues(ids.ConnectorID, "failure").Inc()
		return nil, err
	}
	metrics.TokenRefreshes.WithLabelValues(ids.ConnectorID, "success").Inc()
	logger.From(ctx).Debug("access token refrescado",
		logger.ConnectorID(ids.ConnectorID), logger.OwnerID(ids.OwnerID),
		logger.String("token", util.MaskToken(access)))
	return stored, nil
}

// SerializeQuery aplana query params anidados: arrays unidos por comas,
// objetos expandidos con corchetes (filter[name]=x), escalares via Sprint.
func SerializeQuery(q map[string]any) url.Values {
	out := url.Values{}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		flattenQuery(out, k, q[k])
	}
	return out
}

func flattenQuery(out url.Values, key string, v any) {
	switch t := v.(type) {
	case map[string]any:
		subKeys := make([]string, 0, len(t))
		for sk := range t {
			subKeys = append(subKeys, sk)
		}
		sort.Strings(subKeys)
		for _, sk := range subKeys {
			flattenQuery(out, key+"["+sk+"]", t[sk])
		}
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			parts = append(parts, fmt.Sprint(e))
		}
		out.Set(key, strings.Join(parts, ","))
	case []string:
		out.Set(key, strings.Join(t, ","))
	case nil:
		// se omite
	default:
		out.Set(key, fmt.Sprint(t))
	}
}
