package datasource

import (
	"context"
	"errors"
	"fmt"
)

// ValidateToken reports whether the current token is still accepted, by
// probing the account's received messages. An expired token is (false, nil);
// any other failure is returned as an error.
func (c *Client) ValidateToken(ctx context.Context) (bool, error) {
	if c.userID == "" {
		return false, errors.New("datasource: ECOLEDIRECTE_USER_ID is required to probe the token")
	}
	if c.creds == nil {
		return false, errors.New("datasource: no credentials configured")
	}
	token, err := c.creds.Token(ctx)
	if err != nil {
		return false, err
	}
	path := fmt.Sprintf(pathMessages, c.userID)
	raw, err := c.post(ctx, path, token, []byte("{}"))
	if err != nil {
		return false, err
	}
	if _, err := decodeEnvelope(path, raw); err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
