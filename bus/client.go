// Package bus implements the Frame Bus Client (spec §4.1): a subscription
// to a single named pub/sub channel that yields decoded frame records, plus
// the downstream publish side a streaming worker type uses to republish its
// derived output. Resolved to Redis per SPEC_FULL §6, grounded in
// original_source's core/collector.py (`redis.StrictRedis(...).pubsub()`).
/*
 * Copyright (c) 2024, argussight authors.
 */
package bus

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/walesch-yan/argussight/cmn/cos"
	"github.com/walesch-yan/argussight/cmn/nlog"
	"github.com/walesch-yan/argussight/core"
)

// Client wraps one Redis connection shared by every worker's independent
// subscription and by any worker that republishes a derived stream (spec
// §2 data flow: "one independent subscription per worker").
type Client struct {
	rdb     *redis.Client
	channel string
}

func New(host string, port int, channel string) *Client {
	return &Client{
		rdb:     redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%d", host, port)}),
		channel: channel,
	}
}

// Close releases the underlying connection pool.
func (c *Client) Close() error { return c.rdb.Close() }

// wireFrame is the JSON envelope the upstream producer publishes (spec §6):
// base64-encoded raw RGB bytes, a wall-clock string, a (width, height,
// channels) shape tuple, and the producer's frame sequence number.
type wireFrame struct {
	Data        string `json:"data"`
	Time        string `json:"time"`
	Size        [3]int `json:"size"`
	FrameNumber int64  `json:"frame_number"`
}

// Subscribe starts one independent, non-restartable subscription on this
// client's channel and returns a channel of decoded frame records. On bus
// connection loss (ctx cancellation or the underlying subscription ending)
// the returned channel is closed; the caller does not get an automatic
// reconnect (spec §4.1).
func (c *Client) Subscribe(ctx context.Context) (<-chan core.Frame, error) {
	sub := c.rdb.Subscribe(ctx, c.channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribe to channel %q: %w", c.channel, err)
	}

	out := make(chan core.Frame)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				frame, err := decodeFrame(msg.Payload)
				if err != nil {
					nlog.Errorf("bus: malformed frame on channel %q: %v", c.channel, err)
					continue
				}
				select {
				case out <- frame:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func decodeFrame(payload string) (core.Frame, error) {
	var w wireFrame
	if err := cos.JSONUnmarshal([]byte(payload), &w); err != nil {
		return core.Frame{}, err
	}
	raw, err := base64.StdEncoding.DecodeString(w.Data)
	if err != nil {
		return core.Frame{}, fmt.Errorf("decode frame payload: %w", err)
	}
	return core.Frame{
		Seq:      w.FrameNumber,
		TimeStr:  w.Time,
		Width:    w.Size[0],
		Height:   w.Size[1],
		Channels: w.Size[2],
		RGB:      raw,
	}, nil
}

// wireStream is the JSON envelope a streaming worker publishes under its
// stream id (spec §6 "Downstream derived streams"): base64-encoded JPEG
// bytes plus a shape tuple.
type wireStream struct {
	Data string `json:"data"`
	Size [3]int `json:"size"`
}

// EncodeStreamPayload builds the wire payload for a derived-stream publish.
func EncodeStreamPayload(jpegBytes []byte, shape [3]int) []byte {
	return cos.MustMarshal(wireStream{
		Data: base64.StdEncoding.EncodeToString(jpegBytes),
		Size: shape,
	})
}

// Publish republishes payload on the named channel (typically a worker's
// own stream id).
func (c *Client) Publish(channel string, payload []byte) error {
	return c.rdb.Publish(context.Background(), channel, payload).Err()
}
