// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package characteristics summarises detected spikes, burstlets and bursts
// into global, per-channel, per-burst and per-minute tables.
package characteristics

import (
	"sort"
	"strconv"
	"strings"

	"github.com/OpenPSG/mea"
	"github.com/OpenPSG/mea/burst"
	"github.com/OpenPSG/mea/burstlet"
	"github.com/OpenPSG/mea/internal/stats"
	"github.com/OpenPSG/mea/spike"
)

const (
	// LargeBurstSpikes is the spike count at which a burst is classed large.
	LargeBurstSpikes = 100
	// TimeBinSeconds is the width of a Time table bin.
	TimeBinSeconds = 60
)

// Size classes of a burst.
const (
	Small = "small"
	Large = "large"
)

// Global holds recording-wide scalars.
type Global struct {
	TotalSpikes       int     `json:"Total number of spikes"`
	SpikesPerSecond   float64 `json:"Spikes per second"`
	AmplitudeMean     float64 `json:"Mean spike amplitude (V)"`
	AmplitudeStd      float64 `json:"Spike amplitude std (V)"`
	AmplitudeMedian   float64 `json:"Median spike amplitude (V)"`
	TotalBurstlets    int     `json:"Total number of burstlets"`
	Bursts            int     `json:"Number of bursts"`
	BurstsPerMinute   float64 `json:"Bursts per minute"`
	TSRMean           float64 `json:"TSR mean"`
	TSRStd            float64 `json:"TSR std"`
	TSRFrequency      float64 `json:"TSR dominant frequency (Hz)"`
	SmallBursts       int     `json:"Number of small bursts"`
	LargeBursts       int     `json:"Number of large bursts"`
	MeanBurstDuration float64 `json:"Mean burst duration (s)"`
	ActiveChannels    int     `json:"Number of active channels"`
}

// Channel holds per-channel vectors, one entry per recording channel.
type Channel struct {
	Spikes       []int     `json:"Number of spikes"`
	FiringRate   []float64 `json:"Firing rate (Hz)"`
	Amplitude    []float64 `json:"Mean spike amplitude (V)"`
	Burstlets    []int     `json:"Number of burstlets"`
	Bursts       []int     `json:"Burst participation"`
	Activation   []float64 `json:"Mean activation time (ms)"`
	Deactivation []float64 `json:"Mean deactivation time (ms)"`
}

// Burst holds per-burst vectors.
type Burst struct {
	Start       []float64 `json:"Start (s)"`
	End         []float64 `json:"End (s)"`
	Duration    []float64 `json:"Duration (s)"`
	Spikes      []int     `json:"Number of spikes"`
	Channels    []int     `json:"Number of channels"`
	ChannelList []string  `json:"Channels"`
	Size        []string  `json:"Size"`
}

// Time holds per-minute vectors.
type Time struct {
	Start  []float64 `json:"Start (s)"`
	End    []float64 `json:"End (s)"`
	Bursts []int     `json:"Number of bursts"`
	Spikes []int     `json:"Number of spikes"`
}

// Characteristics is the full set of derived tables.
type Characteristics struct {
	Global  Global  `json:"global"`
	Channel Channel `json:"channel"`
	Burst   Burst   `json:"burst"`
	Time    Time    `json:"time"`
}

// Calculate aggregates the detection results. Burstlets and bursts may be nil,
// in which case their tables are empty.
func Calculate(rec *mea.Recording, spikes *spike.Result, burstlets [][]burstlet.Burstlet, bursts *burst.Result) *Characteristics {
	c := &Characteristics{}
	channels(c, rec, spikes, burstlets, bursts)
	global(c, rec, spikes, bursts)
	burstTable(c, rec, spikes, bursts)
	timeTable(c, rec, spikes, bursts)
	return c
}

func channels(c *Characteristics, rec *mea.Recording, spikes *spike.Result, burstlets [][]burstlet.Burstlet, bursts *burst.Result) {
	n := rec.Channels()
	ch := Channel{
		Spikes:       make([]int, n),
		FiringRate:   make([]float64, n),
		Amplitude:    make([]float64, n),
		Burstlets:    make([]int, n),
		Bursts:       make([]int, n),
		Activation:   make([]float64, n),
		Deactivation: make([]float64, n),
	}

	duration := rec.Duration()
	for i := 0; i < n; i++ {
		if spikes != nil {
			train := spikes.Trains[i]
			ch.Spikes[i] = train.Len()
			if duration > 0 {
				ch.FiringRate[i] = float64(train.Len()) / duration
			}
			ch.Amplitude[i] = stats.Mean(train.Amplitudes)
		}
		if i < len(burstlets) {
			ch.Burstlets[i] = len(burstlets[i])
		}
		if bursts != nil {
			ch.Bursts[i] = len(bursts.Starts[i])
			ch.Activation[i] = bursts.Activation[i]
			ch.Deactivation[i] = bursts.Deactivation[i]
		}
	}

	c.Channel = ch
}

func global(c *Characteristics, rec *mea.Recording, spikes *spike.Result, bursts *burst.Result) {
	g := Global{}

	var amplitudes []float64
	for i, n := range c.Channel.Spikes {
		g.TotalSpikes += n
		if n > 0 {
			g.ActiveChannels++
			amplitudes = append(amplitudes, spikes.Trains[i].Amplitudes...)
		}
	}
	for _, n := range c.Channel.Burstlets {
		g.TotalBurstlets += n
	}

	duration := rec.Duration()
	if duration > 0 {
		g.SpikesPerSecond = float64(g.TotalSpikes) / duration
	}
	g.AmplitudeMean = stats.Mean(amplitudes)
	g.AmplitudeStd = stats.PopStdDev(amplitudes)
	g.AmplitudeMedian = stats.Median(amplitudes)

	if spikes != nil {
		counts := spikes.TSR.Floats()
		g.TSRMean = stats.Mean(counts)
		g.TSRStd = stats.PopStdDev(counts)
		g.TSRFrequency = DominantFrequency(counts, 1000/spike.BinMs)
	}

	if bursts != nil {
		g.Bursts = len(bursts.Bursts)
		if duration > 0 {
			g.BurstsPerMinute = float64(g.Bursts) / (duration / 60)
		}
	}

	c.Global = g
}

func burstTable(c *Characteristics, rec *mea.Recording, spikes *spike.Result, bursts *burst.Result) {
	t := Burst{
		Start:       []float64{},
		End:         []float64{},
		Duration:    []float64{},
		Spikes:      []int{},
		Channels:    []int{},
		ChannelList: []string{},
		Size:        []string{},
	}

	if bursts != nil {
		var durations []float64
		for _, b := range bursts.Bursts {
			start, end := rec.SampleTime(b.Start), rec.SampleTime(b.End)

			count := 0
			if spikes != nil {
				for _, ch := range b.Channels {
					lo, hi := spikes.Trains[ch].Between(b.Start, b.End)
					count += hi - lo
				}
			}

			names := make([]string, len(b.Channels))
			for i, ch := range b.Channels {
				names[i] = strconv.Itoa(ch)
			}

			size := Small
			if count >= LargeBurstSpikes {
				size = Large
				c.Global.LargeBursts++
			} else {
				c.Global.SmallBursts++
			}

			t.Start = append(t.Start, start)
			t.End = append(t.End, end)
			t.Duration = append(t.Duration, end-start)
			t.Spikes = append(t.Spikes, count)
			t.Channels = append(t.Channels, len(b.Channels))
			t.ChannelList = append(t.ChannelList, strings.Join(names, ";"))
			t.Size = append(t.Size, size)
			durations = append(durations, end-start)
		}
		c.Global.MeanBurstDuration = stats.Mean(durations)
	}

	c.Burst = t
}

func timeTable(c *Characteristics, rec *mea.Recording, spikes *spike.Result, bursts *burst.Result) {
	t := Time{Start: []float64{}, End: []float64{}, Bursts: []int{}, Spikes: []int{}}

	n := rec.Len()
	width := TimeBinSeconds * rec.FS
	for s0 := 0; s0 < n; s0 += width {
		s1 := min(s0+width, n)

		spikeCount := 0
		if spikes != nil {
			for _, train := range spikes.Trains {
				spikeCount += sort.SearchInts(train.Peaks, s1) - sort.SearchInts(train.Peaks, s0)
			}
		}

		burstCount := 0
		if bursts != nil {
			for _, b := range bursts.Bursts {
				if b.Start >= s0 && b.Start < s1 {
					burstCount++
				}
			}
		}

		t.Start = append(t.Start, rec.SampleTime(s0))
		t.End = append(t.End, rec.SampleTime(s1))
		t.Bursts = append(t.Bursts, burstCount)
		t.Spikes = append(t.Spikes, spikeCount)
	}

	c.Time = t
}
