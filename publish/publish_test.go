// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package publish_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/OpenPSG/mea/config"
	"github.com/OpenPSG/mea/internal/synth"
	"github.com/OpenPSG/mea/publish"
	"github.com/OpenPSG/mea/session"
	"github.com/OpenPSG/mea/spike"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProducer acknowledges every message it accepts.
type fakeProducer struct {
	mu       sync.Mutex
	messages []*kafka.Message
	failures []error
	closed   bool
}

func (f *fakeProducer) Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return err
	}
	f.messages = append(f.messages, msg)
	deliveryChan <- msg
	return nil
}

func (f *fakeProducer) Flush(int) int { return 0 }

func (f *fakeProducer) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func result(t *testing.T) *session.Result {
	t.Helper()

	var channels [][]float64
	for c := 0; c < 4; c++ {
		channels = append(channels, synth.Channel(12000, synth.Train(1000+10*c, 50, 6)...))
	}
	p := config.Default()
	p.SpikeMethod = spike.RMS
	p.BurstChannelThreshold = 2

	s, err := session.New(synth.Recording(channels...), p)
	require.NoError(t, err)
	res, err := s.Run(context.Background(), nil)
	require.NoError(t, err)
	return res
}

func TestNewReport(t *testing.T) {
	res := result(t)
	r := publish.NewReport("network.edf", res)

	assert.NotEmpty(t, r.ReportID)
	assert.Equal(t, res.RunID, r.RunID)
	assert.Len(t, r.Bursts, 1)

	payload, err := r.ToJSON()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, "network.edf", decoded["recording"])
	assert.Equal(t, "CharacteristicsReady", decoded["state"])
	assert.NotContains(t, decoded, "spikes")
}

func TestPublish(t *testing.T) {
	fake := &fakeProducer{}
	p := publish.NewPublisher(fake, "results")

	r := publish.NewReport("network.edf", result(t))
	require.NoError(t, p.Publish(context.Background(), r))
	p.Close()

	require.Len(t, fake.messages, 1)
	msg := fake.messages[0]
	assert.Equal(t, "results", *msg.TopicPartition.Topic)
	assert.Equal(t, r.ReportID, string(msg.Key))
	assert.Equal(t, kafka.Header{Key: "run_id", Value: []byte(r.RunID)}, msg.Headers[0])
	assert.True(t, fake.closed)

	m := p.Metrics()
	assert.Equal(t, int64(1), m["messages_sent"])
	assert.Equal(t, int64(1), m["messages_acked"])
	assert.Equal(t, int64(0), m["messages_pending"])
}

func TestPublishRetriesFullQueue(t *testing.T) {
	full := kafka.NewError(kafka.ErrQueueFull, "queue full", false)
	fake := &fakeProducer{failures: []error{full, full}}
	p := publish.NewPublisher(fake, "results", publish.WithRetry(3, time.Millisecond))
	defer p.Close()

	require.NoError(t, p.Publish(context.Background(), publish.NewReport("a.edf", result(t))))
	assert.Len(t, fake.messages, 1)
}

func TestPublishNonRetriable(t *testing.T) {
	fake := &fakeProducer{failures: []error{errors.New("producer closed")}}
	p := publish.NewPublisher(fake, "results", publish.WithRetry(3, time.Millisecond))
	defer p.Close()

	err := p.Publish(context.Background(), publish.NewReport("a.edf", result(t)))
	require.Error(t, err)
	assert.Empty(t, fake.messages)
	assert.Equal(t, int64(1), p.Metrics()["messages_rejected"])
}

func TestPublishCancelledDuringBackoff(t *testing.T) {
	full := kafka.NewError(kafka.ErrQueueFull, "queue full", false)
	fake := &fakeProducer{failures: []error{full, full, full}}
	p := publish.NewPublisher(fake, "results", publish.WithRetry(3, time.Hour))
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Publish(ctx, publish.NewReport("a.edf", result(t)))
	require.ErrorIs(t, err, context.Canceled)
}
