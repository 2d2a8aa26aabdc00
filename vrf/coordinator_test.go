package vrf

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fulfillment struct {
	requestID string
	word      uint64
}

type stubFulfiller struct {
	mu   sync.Mutex
	err  error
	got  chan fulfillment
}

func newStubFulfiller() *stubFulfiller {
	return &stubFulfiller{got: make(chan fulfillment, 8)}
}

func (s *stubFulfiller) FulfillRandomness(requestID string, word uint64) (string, error) {
	s.mu.Lock()
	err := s.err
	s.mu.Unlock()
	if err != nil {
		return "", err
	}
	s.got <- fulfillment{requestID: requestID, word: word}
	return "winner", nil
}

func (s *stubFulfiller) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func waitFor(t *testing.T, ch chan fulfillment) fulfillment {
	t.Helper()
	select {
	case f := <-ch:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fulfillment")
		return fulfillment{}
	}
}

func TestRequestDeliversAsynchronously(t *testing.T) {
	stub := newStubFulfiller()
	c := NewCoordinator(stub, 0)

	id, err := c.RequestRandomness()
	require.NoError(t, err)
	require.NotEmpty(t, id)

	f := waitFor(t, stub.got)
	assert.Equal(t, id, f.requestID)
	assert.Empty(t, c.Outstanding())
}

func TestRequestIDsAreUnique(t *testing.T) {
	stub := newStubFulfiller()
	c := NewCoordinator(stub, time.Hour) // keep requests outstanding

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		id, err := c.RequestRandomness()
		require.NoError(t, err)
		require.False(t, seen[id], "duplicate request id %s", id)
		seen[id] = true
	}
	assert.Len(t, c.Outstanding(), 20)
}

func TestManualFulfill(t *testing.T) {
	stub := newStubFulfiller()
	c := NewCoordinator(stub, time.Hour)

	id, err := c.RequestRandomness()
	require.NoError(t, err)
	assert.Contains(t, c.Outstanding(), id)

	require.NoError(t, c.Fulfill(id, 99))
	f := waitFor(t, stub.got)
	assert.Equal(t, id, f.requestID)
	assert.Equal(t, uint64(99), f.word)

	// Consumed: a second delivery is rejected.
	err = c.Fulfill(id, 99)
	require.ErrorIs(t, err, ErrUnknownRequest)
}

func TestFulfillUnknownID(t *testing.T) {
	c := NewCoordinator(newStubFulfiller(), time.Hour)
	err := c.Fulfill("never-issued", 1)
	require.ErrorIs(t, err, ErrUnknownRequest)
}

func TestRejectedFulfillmentStaysOutstanding(t *testing.T) {
	stub := newStubFulfiller()
	c := NewCoordinator(stub, time.Hour)

	id, err := c.RequestRandomness()
	require.NoError(t, err)

	stub.setErr(errors.New("payout failed"))
	err = c.Fulfill(id, 7)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrUnknownRequest)
	assert.Contains(t, c.Outstanding(), id)

	// Retry succeeds once the fulfiller recovers.
	stub.setErr(nil)
	require.NoError(t, c.Fulfill(id, 7))
	f := waitFor(t, stub.got)
	assert.Equal(t, id, f.requestID)
	assert.Empty(t, c.Outstanding())
}
