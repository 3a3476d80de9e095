package adminapi

import (
	"context"
	"errors"
	"net/http"
	"net/url"
)

// ReplaceRequest describes a bulk find/replace across a book's text blocks.
type ReplaceRequest struct {
	Find          string `json:"find"`
	Replace       string `json:"replace"`
	CaseSensitive bool   `json:"caseSensitive"`
}

// ReplaceResult reports how many occurrences were replaced.
type ReplaceResult struct {
	ReplacedCount int `json:"replacedCount"`
}

// ReplaceText runs a bulk text replacement inside one book.
func (c *Client) ReplaceText(ctx context.Context, bookID string, req ReplaceRequest) (*ReplaceResult, error) {
	if bookID == "" {
		return nil, ErrMissingID
	}
	if req.Find == "" {
		return nil, errors.New("find text is required")
	}
	env, err := c.doJSON(ctx, http.MethodPost, "/api/admin/books/:bookId/replace",
		"/api/admin/books/"+url.PathEscape(bookID)+"/replace", nil, req)
	if err != nil {
		return nil, err
	}
	var res ReplaceResult
	if err := env.decodeData(&res); err != nil {
		return nil, NewAPIError(http.StatusOK, "unexpected replace response", err)
	}
	return &res, nil
}
