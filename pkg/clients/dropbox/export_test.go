package dropbox

import "time"

// SetSleep replaces the rate-limit backoff sleeper.
func (c *Client) SetSleep(fn func(time.Duration)) {
	c.sleep = fn
}
