package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/bytedance/sonic"

	"taskboard/domain"
)

const sessionHeader = "X-Session-ID"

// StatusError is a non-2xx answer from the REST edge.
type StatusError struct {
	Code    int    `json:"-"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (e *StatusError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%d %s: %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("%d %s", e.Code, e.Message)
}

// REST calls the board REST API. Session, when set, is sent with every
// request so broadcasts caused by this client skip its own socket.
type REST struct {
	BaseURL string
	Bearer  string
	Session string
	HTTP    *http.Client
}

// NewREST creates a REST client for baseURL.
func NewREST(baseURL, bearer, session string) *REST {
	return &REST{BaseURL: strings.TrimRight(baseURL, "/"), Bearer: bearer, Session: session, HTTP: &http.Client{}}
}

func (c *REST) GetBoard(ctx context.Context, boardID string) (domain.BoardView, error) {
	var v domain.BoardView
	err := c.do(ctx, http.MethodGet, "/api/boards/"+url.PathEscape(boardID), nil, &v)
	return v, err
}

func (c *REST) ListBoards(ctx context.Context) ([]domain.Board, error) {
	var out []domain.Board
	err := c.do(ctx, http.MethodGet, "/api/boards", nil, &out)
	return out, err
}

func (c *REST) MoveCard(ctx context.Context, cardID string, req domain.MoveRequest) (domain.CardMove, error) {
	var res domain.CardMove
	err := c.do(ctx, http.MethodPut, "/api/cards/"+url.PathEscape(cardID)+"/move", req, &res)
	return res, err
}

func (c *REST) MoveList(ctx context.Context, listID string, req domain.MoveRequest) (domain.ListMove, error) {
	var res domain.ListMove
	err := c.do(ctx, http.MethodPut, "/api/lists/"+url.PathEscape(listID)+"/move", req, &res)
	return res, err
}

func (c *REST) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		raw, err := sonic.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.Bearer)
	}
	if c.Session != "" {
		req.Header.Set(sessionHeader, c.Session)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{Code: resp.StatusCode}
		if sonic.Unmarshal(raw, se) != nil || se.Message == "" {
			se.Message = http.StatusText(resp.StatusCode)
		}
		return se
	}
	if out == nil {
		return nil
	}
	return sonic.Unmarshal(raw, out)
}
