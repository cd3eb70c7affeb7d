package feed

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// wireBlockUpdate is the JSON shape Tycho sends over the websocket feed:
// hex-string scalars/addresses, decoded into BlockUpdate's typed form
// by Client.Run before handing it to a Registry.
type wireBlockUpdate struct {
	BlockNumber uint64 `json:"block_number"`
	NewPairs    []struct {
		ID             string            `json:"id"`
		ProtocolSystem string            `json:"protocol_system"`
		Tokens         []string          `json:"tokens"`
		Static         map[string]string `json:"static_attributes"`
	} `json:"new_pairs"`
	States []struct {
		ComponentID string            `json:"component_id"`
		Attributes  map[string]string `json:"updated_attributes"`
		Balances    map[string]string `json:"balances"`
	} `json:"states"`
	RemovedPairs []string `json:"removed_pairs"`
}

// Client maintains a resilient websocket subscription to a Tycho feed
// endpoint, reconnecting with backoff on drop, and forwards decoded
// BlockUpdates to Handler.
type Client struct {
	URL     string
	APIKey  string
	Handler func(BlockUpdate)

	dialer      *websocket.Dialer
	backoffBase time.Duration
	backoffMax  time.Duration
}

// NewClient builds a Client with the package's default backoff curve.
func NewClient(url, apiKey string, handler func(BlockUpdate)) *Client {
	return &Client{
		URL:         url,
		APIKey:      apiKey,
		Handler:     handler,
		dialer:      websocket.DefaultDialer,
		backoffBase: 500 * time.Millisecond,
		backoffMax:  30 * time.Second,
	}
}

// Run connects and streams BlockUpdates until ctx is canceled,
// reconnecting with exponential backoff whenever the connection drops.
func (c *Client) Run(ctx context.Context) error {
	backoff := c.backoffBase
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := c.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			log.Printf("feed: connection to %s dropped: %v, retrying in %s", c.URL, err, backoff)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > c.backoffMax {
			backoff = c.backoffMax
		}
	}
}

func (c *Client) runOnce(ctx context.Context) error {
	header := http.Header{}
	if c.APIKey != "" {
		header.Set("Authorization", c.APIKey)
	}

	conn, _, err := c.dialer.DialContext(ctx, c.URL, header)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		var wire wireBlockUpdate
		if err := conn.ReadJSON(&wire); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		c.Handler(decodeWireBlockUpdate(wire))
	}
}

func decodeWireBlockUpdate(w wireBlockUpdate) BlockUpdate {
	update := BlockUpdate{
		BlockNumber:  w.BlockNumber,
		RemovedPairs: w.RemovedPairs,
	}

	for _, np := range w.NewPairs {
		comp := ProtocolComponent{
			ID:             np.ID,
			ProtocolSystem: np.ProtocolSystem,
			Static:         hexMapToBytes(np.Static),
		}
		for _, t := range np.Tokens {
			comp.Tokens = append(comp.Tokens, hexToAddress(t))
		}
		update.NewPairs = append(update.NewPairs, comp)
	}

	for _, s := range w.States {
		update.States = append(update.States, StateDelta{
			ComponentID: s.ComponentID,
			Attributes:  hexMapToBytes(s.Attributes),
			Balances:    hexMapToBigInt(s.Balances),
		})
	}

	return update
}
