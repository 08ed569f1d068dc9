package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/netmerge/internal/review"
)

func selectedSession(t *testing.T) *review.Session {
	t.Helper()
	a, b := testNetworks(t)
	s := review.NewSession()
	require.NoError(t, s.SelectNetworks(context.Background(), a, b))
	require.Equal(t, review.NodeReview, s.Stage())
	require.Len(t, s.Items(), 1)
	return s
}

func TestNewReviewer(t *testing.T) {
	tests := []struct {
		assume string
		want   reviewer
	}{
		{"yes", autoReviewer{consolidate: true}},
		{"Y", autoReviewer{consolidate: true}},
		{"no", autoReviewer{consolidate: false}},
		{"n", autoReviewer{consolidate: false}},
	}
	for _, tt := range tests {
		t.Run(tt.assume, func(t *testing.T) {
			got, err := newReviewer(tt.assume, strings.NewReader(""), &bytes.Buffer{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	got, err := newReviewer("", strings.NewReader(""), &bytes.Buffer{})
	require.NoError(t, err)
	assert.IsType(t, &promptReviewer{}, got)

	_, err = newReviewer("maybe", strings.NewReader(""), &bytes.Buffer{})
	assert.Error(t, err)
}

func TestAutoReviewer_Consolidate(t *testing.T) {
	s := selectedSession(t)
	require.NoError(t, autoReviewer{consolidate: true}.Review(context.Background(), s))
	assert.Equal(t, review.Output, s.Stage())

	out, err := s.Output()
	require.NoError(t, err)
	assert.Len(t, out.Nodes(), 3)

	nodes, _ := s.Stats()
	assert.Equal(t, 1, nodes.Merged)
}

func TestAutoReviewer_Reject(t *testing.T) {
	s := selectedSession(t)
	require.NoError(t, autoReviewer{consolidate: false}.Review(context.Background(), s))

	out, err := s.Output()
	require.NoError(t, err)
	assert.Len(t, out.Nodes(), 4)
}

func TestAutoReviewer_Cancelled(t *testing.T) {
	s := selectedSession(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := autoReviewer{consolidate: true}.Review(ctx, s)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestPromptReviewer_ConsolidateAndFinish(t *testing.T) {
	s := selectedSession(t)
	var out bytes.Buffer
	p := newPromptReviewer(strings.NewReader("l\nc\nf\n"), &out)

	require.NoError(t, p.Review(context.Background(), s))
	assert.Equal(t, review.Output, s.Stage())

	o, err := s.Output()
	require.NoError(t, err)
	assert.Len(t, o.Nodes(), 3)

	text := out.String()
	assert.Contains(t, text, "Commands:")
	assert.Contains(t, text, "Pair 1 of 1")
	assert.Contains(t, text, "A: Leeds (a1)")
	assert.Contains(t, text, "B: Leeds (b1)")
	assert.Contains(t, text, "CONFIDENCE")
	assert.Contains(t, text, "name")
}

func TestPromptReviewer_FinishNeedsConfirmation(t *testing.T) {
	s := selectedSession(t)
	var out bytes.Buffer
	p := newPromptReviewer(strings.NewReader("f\nn\nf\ny\n"), &out)

	require.NoError(t, p.Review(context.Background(), s))
	assert.Contains(t, out.String(), "undecided")

	o, err := s.Output()
	require.NoError(t, err)
	assert.Len(t, o.Nodes(), 4)
}

func TestPromptReviewer_Quit(t *testing.T) {
	s := selectedSession(t)
	p := newPromptReviewer(strings.NewReader("x\nh\nq\n"), &bytes.Buffer{})

	err := p.Review(context.Background(), s)
	assert.True(t, errors.Is(err, errQuit))
	assert.Equal(t, review.NodeReview, s.Stage())
}

func TestPromptReviewer_InputClosed(t *testing.T) {
	s := selectedSession(t)
	p := newPromptReviewer(strings.NewReader("r\n"), &bytes.Buffer{})

	err := p.Review(context.Background(), s)
	assert.True(t, errors.Is(err, errQuit))
	assert.Equal(t, 1, s.Counts().Rejected)
}

func TestPromptReviewer_Confirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"y", true},
	}
	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			var out bytes.Buffer
			got, err := newPromptReviewer(strings.NewReader(tt.input), &out).Confirm("Proceed?")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, "Proceed? [y/N] ", out.String())
		})
	}
}
